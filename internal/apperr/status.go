package apperr

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
)

// HTTPStatus maps an error from the core to the HTTP status the API returns.
func HTTPStatus(err error) int {
	var ae *AlreadyExistsError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case IsTenantMismatch(err), errors.Is(err, ErrMissingTenant),
		errors.Is(err, ErrRLSViolation), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrResourceExhausted):
		return http.StatusServiceUnavailable
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &ae):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode is the gRPC counterpart of HTTPStatus.
func GRPCCode(err error) codes.Code {
	switch HTTPStatus(err) {
	case http.StatusOK:
		return codes.OK
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusServiceUnavailable:
		return codes.ResourceExhausted
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

// PublicMessage returns the message safe to show a client. Authentication
// failures never carry detail.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}
