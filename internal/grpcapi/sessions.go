package grpcapi

import (
	"context"
	"time"

	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names of the Sessions service.
const (
	MethodCurrentSession = "/tenantisolation.v1.Sessions/Current"
	MethodEndSession     = "/tenantisolation.v1.Sessions/End"
	MethodCurrentTenant  = "/tenantisolation.v1.Sessions/CurrentTenant"
	MethodListEmployees  = "/tenantisolation.v1.Sessions/ListEmployees"
)

// SessionsNoTenantMethods may be called before onboarding.
var SessionsNoTenantMethods = []string{MethodCurrentSession, MethodEndSession}

const (
	defaultEmployeePage = 50
	maxEmployeePage     = 200
)

type SessionRevoker interface {
	Revoke(ctx context.Context, id string) error
}

type TenantReader interface {
	Get(ctx context.Context) (*model.Tenant, error)
}

type EmployeeLister interface {
	List(ctx context.Context, limit, offset int) ([]model.Employee, error)
}

// SessionsServer exposes the caller's session, tenant and tenant-owned data
// over gRPC. It relies on the interceptors for admission, authentication and
// tenant binding.
type SessionsServer struct {
	sessions  SessionRevoker
	tenants   TenantReader
	employees EmployeeLister
}

func NewSessionsServer(sessions SessionRevoker, tenants TenantReader, employees EmployeeLister) *SessionsServer {
	return &SessionsServer{sessions: sessions, tenants: tenants, employees: employees}
}

// Current describes the calling session.
func (s *SessionsServer) Current(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return nil, apperr.ErrAuthentication
	}
	fields := map[string]any{
		"user_id":             sess.UserID.String(),
		"role":                string(sess.Role),
		"onboarding_complete": sess.OnboardingComplete,
		"expires_at":          sess.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if tenantID, ok := sess.Tenant(); ok {
		fields["tenant_id"] = tenantID.String()
	}
	return structpb.NewStruct(fields)
}

// End revokes the calling session.
func (s *SessionsServer) End(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	sess, ok := SessionFrom(ctx)
	if !ok {
		return nil, apperr.ErrAuthentication
	}
	if err := s.sessions.Revoke(ctx, sess.ID); err != nil {
		return nil, err
	}
	return wrapperspb.Bool(true), nil
}

// CurrentTenant returns the tenant bound to the call.
func (s *SessionsServer) CurrentTenant(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	t, err := s.tenants.Get(ctx)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"id":        t.ID.String(),
		"name":      t.Name,
		"is_active": t.IsActive,
	})
}

// ListEmployees returns the first page of the tenant's employees; the
// request carries the page size.
func (s *SessionsServer) ListEmployees(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	limit := int(req.GetValue())
	if limit <= 0 {
		limit = defaultEmployeePage
	}
	limit = min(limit, maxEmployeePage)

	employees, err := s.employees.List(ctx, limit, 0)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(employees))
	for _, e := range employees {
		items = append(items, map[string]any{
			"id":        e.ID.String(),
			"full_name": e.FullName,
			"email":     e.Email,
			"job_title": e.JobTitle,
		})
	}
	return structpb.NewList(items)
}

// sessionsAPI is the handler type checked by grpc.Server.RegisterService.
type sessionsAPI interface {
	Current(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	End(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	CurrentTenant(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListEmployees(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
}

func unaryMethod(fullMethod string, newReq func() any, call func(srv sessionsAPI, ctx context.Context, req any) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(sessionsAPI), ctx, req)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
	}
}

func newEmpty() any { return new(emptypb.Empty) }

var sessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: "tenantisolation.v1.Sessions",
	HandlerType: (*sessionsAPI)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Current",
			Handler: unaryMethod(MethodCurrentSession, newEmpty, func(srv sessionsAPI, ctx context.Context, req any) (any, error) {
				return srv.Current(ctx, req.(*emptypb.Empty))
			}),
		},
		{
			MethodName: "End",
			Handler: unaryMethod(MethodEndSession, newEmpty, func(srv sessionsAPI, ctx context.Context, req any) (any, error) {
				return srv.End(ctx, req.(*emptypb.Empty))
			}),
		},
		{
			MethodName: "CurrentTenant",
			Handler: unaryMethod(MethodCurrentTenant, newEmpty, func(srv sessionsAPI, ctx context.Context, req any) (any, error) {
				return srv.CurrentTenant(ctx, req.(*emptypb.Empty))
			}),
		},
		{
			MethodName: "ListEmployees",
			Handler: unaryMethod(MethodListEmployees, func() any { return new(wrapperspb.Int32Value) }, func(srv sessionsAPI, ctx context.Context, req any) (any, error) {
				return srv.ListEmployees(ctx, req.(*wrapperspb.Int32Value))
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterSessions registers srv on s.
func RegisterSessions(s grpc.ServiceRegistrar, srv *SessionsServer) {
	s.RegisterService(&sessionsServiceDesc, srv)
}
