package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAuthentication means there is no valid session or token. Callers must
// surface it without detail.
var ErrAuthentication = errors.New("authentication required")

// ErrResourceExhausted is returned by the connection governor when a new
// unit of work cannot be admitted. Safe to retry after backoff.
var ErrResourceExhausted = errors.New("resource exhausted")

// ErrMissingTenant means a tenant-owned resource was written without an
// active tenant context.
var ErrMissingTenant = errors.New("no active tenant context")

// ErrRLSViolation is returned when the database row-level-security policy
// rejected a statement. It should never fire when the application layer is
// correct.
var ErrRLSViolation = errors.New("row-level security policy violation")

// ErrForbidden means the caller is authenticated but lacks the role for an
// operation.
var ErrForbidden = errors.New("forbidden")

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// Is enables errors.Is() comparison for NotFoundError
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

// ValidationError represents malformed input, such as an unparseable tenant id.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// TenantMismatchError is raised when code attempts to write or read a row
// belonging to a tenant other than the active one.
type TenantMismatchError struct {
	Entity string
	Active uuid.UUID
	Row    uuid.UUID
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("tenant mismatch on %s: active tenant %s, row tenant %s", e.Entity, e.Active, e.Row)
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Entity  string
	Context string
}

func (e *AlreadyExistsError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s already exists %s", e.Entity, e.Context)
	}
	return fmt.Sprintf("%s already exists", e.Entity)
}

// Is enables errors.Is() comparison for AlreadyExistsError
func (e *AlreadyExistsError) Is(target error) bool {
	t, ok := target.(*AlreadyExistsError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

var (
	ErrTenantNotFound   = &NotFoundError{Entity: "tenant"}
	ErrUserNotFound     = &NotFoundError{Entity: "user"}
	ErrEmployeeNotFound = &NotFoundError{Entity: "employee"}

	ErrTenantAlreadyAssigned = &AlreadyExistsError{Entity: "tenant membership", Context: "for this user"}
)

// IsTenantMismatch reports whether err is a TenantMismatchError.
func IsTenantMismatch(err error) bool {
	var tm *TenantMismatchError
	return errors.As(err, &tm)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError of any entity.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
