// Package tenancy carries the active tenant for one unit of work.
//
// The tenant travels in a context.Context rather than in process-global or
// goroutine-local state. A context is created per request or per background
// task and is dropped when that unit of work ends, so a tenant can never leak
// into unrelated work that happens to run on the same goroutine or pooled
// connection afterwards.
package tenancy

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
)

type ctxKey struct{}

// Set returns a context carrying tenant v. v may be a uuid.UUID, a string,
// a 16-byte slice or nil. nil and uuid.Nil return a cleared context.
func Set(ctx context.Context, v any) (context.Context, error) {
	id, err := Parse(v)
	if err != nil {
		return ctx, err
	}
	if id == uuid.Nil {
		return Clear(ctx), nil
	}
	return context.WithValue(ctx, ctxKey{}, id), nil
}

// MustSet is Set for ids already known to be valid.
func MustSet(ctx context.Context, id uuid.UUID) context.Context {
	ctx, err := Set(ctx, id)
	if err != nil {
		panic(err)
	}
	return ctx
}

// Get returns the active tenant, if any.
func Get(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Clear returns a context with no active tenant. Values set by the parent
// other than the tenant are kept.
func Clear(ctx context.Context) context.Context {
	if _, ok := Get(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, uuid.Nil)
}

// Detach drops the tenant before work crosses a dispatch boundary.
func Detach(ctx context.Context) context.Context {
	return Clear(context.WithoutCancel(ctx))
}

// Parse converts the accepted tenant id representations to a uuid.UUID.
func Parse(v any) (uuid.UUID, error) {
	switch t := v.(type) {
	case nil:
		return uuid.Nil, nil
	case uuid.UUID:
		return t, nil
	case *uuid.UUID:
		if t == nil {
			return uuid.Nil, nil
		}
		return *t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return uuid.Nil, nil
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, &apperr.ValidationError{Field: "tenant_id", Message: "not a valid uuid"}
		}
		return id, nil
	case []byte:
		id, err := uuid.FromBytes(t)
		if err != nil {
			return uuid.Nil, &apperr.ValidationError{Field: "tenant_id", Message: "not a valid uuid"}
		}
		return id, nil
	default:
		return uuid.Nil, &apperr.ValidationError{Field: "tenant_id", Message: "unsupported identifier type"}
	}
}
