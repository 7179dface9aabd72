package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"authentication", fmt.Errorf("lookup: %w", ErrAuthentication), http.StatusUnauthorized},
		{"tenant mismatch", &TenantMismatchError{Entity: "employee", Active: uuid.New(), Row: uuid.New()}, http.StatusForbidden},
		{"missing tenant", ErrMissingTenant, http.StatusForbidden},
		{"rls violation", fmt.Errorf("insert: %w", ErrRLSViolation), http.StatusForbidden},
		{"exhausted", ErrResourceExhausted, http.StatusServiceUnavailable},
		{"validation", &ValidationError{Field: "tenant_id", Message: "not a uuid"}, http.StatusBadRequest},
		{"not found", ErrEmployeeNotFound, http.StatusNotFound},
		{"exists", ErrTenantAlreadyAssigned, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.Unauthenticated, GRPCCode(ErrAuthentication))
	assert.Equal(t, codes.PermissionDenied, GRPCCode(&TenantMismatchError{}))
	assert.Equal(t, codes.ResourceExhausted, GRPCCode(ErrResourceExhausted))
	assert.Equal(t, codes.InvalidArgument, GRPCCode(&ValidationError{Message: "x"}))
	assert.Equal(t, codes.Internal, GRPCCode(errors.New("boom")))
}

func TestPublicMessage_HidesAuthDetail(t *testing.T) {
	err := fmt.Errorf("session abc expired for user 42: %w", ErrAuthentication)
	assert.Equal(t, "unauthorized", PublicMessage(err))
	assert.Equal(t, "validation error: name - required", PublicMessage(&ValidationError{Field: "name", Message: "required"}))
}

func TestNotFoundError_Is(t *testing.T) {
	err := fmt.Errorf("get: %w", &NotFoundError{Entity: "employee"})
	assert.True(t, errors.Is(err, ErrEmployeeNotFound))
	assert.False(t, errors.Is(err, ErrTenantNotFound))
	assert.True(t, IsNotFound(err))
}
