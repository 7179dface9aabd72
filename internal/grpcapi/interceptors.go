// Package grpcapi carries the isolation guarantees of the HTTP surface over
// to gRPC: every call is one governed unit of work, is authenticated by its
// session and runs in the session's tenant.
package grpcapi

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// MetadataSessionToken is the metadata key carrying the session id.
const MetadataSessionToken = "x-session-token"

// SessionLookup is implemented by session.Service.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	TouchStale(ctx context.Context, sess *model.Session)
}

type sessionKey struct{}

// SessionFrom returns the session that authenticated the call.
func SessionFrom(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*model.Session)
	return s, ok && s != nil
}

// exempt reports whether method skips governance and authentication.
func exempt(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/") ||
		strings.HasPrefix(method, "/grpc.reflection.")
}

// toStatus converts a core error into a gRPC status error.
func toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := apperr.GRPCCode(err)
	if code == codes.Internal {
		zerolog.Ctx(ctx).Error().Err(err).Msg("RPC failed")
	}
	return status.Error(code, apperr.PublicMessage(err))
}

type interceptor struct {
	gov        *governor.Governor
	sessions   SessionLookup
	retryAfter time.Duration
	noTenant   map[string]bool
}

// admit acquires a permit for the call.
func (i *interceptor) admit(ctx context.Context) (context.Context, func(), error) {
	permit, err := i.gov.Acquire()
	if err != nil {
		st := status.New(codes.ResourceExhausted, apperr.PublicMessage(err))
		if detailed, derr := st.WithDetails(&errdetails.RetryInfo{RetryDelay: durationpb.New(i.retryAfter)}); derr == nil {
			st = detailed
		}
		return ctx, nil, st.Err()
	}
	return governor.WithPermit(ctx, permit), permit.Release, nil
}

// authenticate resolves the session from metadata and binds its tenant.
func (i *interceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(MetadataSessionToken); len(vals) > 0 {
			token = strings.TrimSpace(vals[0])
		}
	}
	if token == "" {
		return ctx, status.Error(codes.Unauthenticated, apperr.PublicMessage(apperr.ErrAuthentication))
	}

	sess, err := i.sessions.Get(ctx, token)
	if err != nil {
		return ctx, toStatus(ctx, err)
	}
	if sess == nil {
		return ctx, status.Error(codes.Unauthenticated, apperr.PublicMessage(apperr.ErrAuthentication))
	}

	ctx = tenancy.Clear(ctx)
	logCtx := zerolog.Ctx(ctx).With().Str("method", method).Str("user_id", sess.UserID.String())
	tenantID, ok := sess.Tenant()
	if ok {
		ctx = tenancy.MustSet(ctx, tenantID)
		logCtx = logCtx.Str("tenant_id", tenantID.String())
	} else if !i.noTenant[method] {
		return ctx, status.Error(codes.PermissionDenied, apperr.PublicMessage(apperr.ErrMissingTenant))
	}
	logger := logCtx.Logger()
	ctx = logger.WithContext(context.WithValue(ctx, sessionKey{}, sess))

	i.sessions.TouchStale(ctx, sess)
	return ctx, nil
}

func (i *interceptor) prepare(ctx context.Context, method string) (context.Context, func(), error) {
	ctx, release, err := i.admit(ctx)
	if err != nil {
		return ctx, nil, err
	}
	ctx, err = i.authenticate(ctx, method)
	if err != nil {
		release()
		return ctx, nil, err
	}
	return ctx, release, nil
}

func (i *interceptor) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if exempt(info.FullMethod) {
		return handler(ctx, req)
	}
	ctx, release, err := i.prepare(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := handler(ctx, req)
	return resp, toStatus(ctx, err)
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

func (i *interceptor) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if exempt(info.FullMethod) {
		return handler(srv, ss)
	}
	ctx, release, err := i.prepare(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	defer release()

	return toStatus(ctx, handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx}))
}
