package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeSessions struct {
	sessions map[string]*model.Session
	err      error
	touched  int
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[id], nil
}

func (f *fakeSessions) TouchStale(ctx context.Context, sess *model.Session) { f.touched++ }

const method = "/tenants.v1.Employees/List"

func newInterceptor(limit int, sessions *fakeSessions) (*interceptor, *governor.Governor) {
	gov := governor.New(limit)
	return &interceptor{
		gov:        gov,
		sessions:   sessions,
		retryAfter: 3 * time.Second,
		noTenant:   map[string]bool{"/tenants.v1.Tenants/Onboard": true},
	}, gov
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataSessionToken, token))
}

func TestUnary_BindsSessionTenant(t *testing.T) {
	tenantID := uuid.New()
	sess := &model.Session{ID: "s1", UserID: uuid.New(), TenantID: &tenantID, IsActive: true}
	i, gov := newInterceptor(2, &fakeSessions{sessions: map[string]*model.Session{"s1": sess}})

	var seen uuid.UUID
	var permitted bool
	_, err := i.unary(withToken("s1"), nil, &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) {
			seen, _ = tenancy.Get(ctx)
			_, permitted = governor.PermitFrom(ctx)
			got, ok := SessionFrom(ctx)
			assert.True(t, ok)
			assert.Equal(t, sess, got)
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, tenantID, seen)
	assert.True(t, permitted)
	assert.Equal(t, 0, gov.InUse())
}

func TestUnary_Unauthenticated(t *testing.T) {
	i, gov := newInterceptor(2, &fakeSessions{sessions: map[string]*model.Session{}})

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no metadata", context.Background()},
		{"empty token", withToken("")},
		{"unknown session", withToken("nope")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := i.unary(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: method},
				func(ctx context.Context, req any) (any, error) {
					t.Fatal("handler must not run")
					return nil, nil
				})
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
			assert.Equal(t, "unauthorized", status.Convert(err).Message())
		})
	}
	assert.Equal(t, 0, gov.InUse())
}

func TestUnary_TenantRequired(t *testing.T) {
	pre := &model.Session{ID: "s1", UserID: uuid.New(), IsActive: true}
	i, _ := newInterceptor(2, &fakeSessions{sessions: map[string]*model.Session{"s1": pre}})
	ok := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	_, err := i.unary(withToken("s1"), nil, &grpc.UnaryServerInfo{FullMethod: method}, ok)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = i.unary(withToken("s1"), nil, &grpc.UnaryServerInfo{FullMethod: "/tenants.v1.Tenants/Onboard"}, ok)
	assert.NoError(t, err)
}

func TestUnary_ResourceExhaustedCarriesRetryInfo(t *testing.T) {
	i, gov := newInterceptor(1, &fakeSessions{})
	p, err := gov.Acquire()
	require.NoError(t, err)
	defer p.Release()

	_, err = i.unary(withToken("s1"), nil, &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) { return nil, nil })

	st := status.Convert(err)
	assert.Equal(t, codes.ResourceExhausted, st.Code())
	require.Len(t, st.Details(), 1)
	info, ok := st.Details()[0].(*errdetails.RetryInfo)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, info.RetryDelay.AsDuration())
}

func TestUnary_ErrorsAreTranslated(t *testing.T) {
	tenantID := uuid.New()
	sess := &model.Session{ID: "s1", UserID: uuid.New(), TenantID: &tenantID, IsActive: true}
	i, _ := newInterceptor(2, &fakeSessions{sessions: map[string]*model.Session{"s1": sess}})

	tests := []struct {
		err  error
		code codes.Code
	}{
		{apperr.ErrRLSViolation, codes.PermissionDenied},
		{apperr.ErrEmployeeNotFound, codes.NotFound},
		{&apperr.ValidationError{Field: "id", Message: "must be a UUID"}, codes.InvalidArgument},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.Aborted, "kept"), codes.Aborted},
	}

	for _, tt := range tests {
		_, err := i.unary(withToken("s1"), nil, &grpc.UnaryServerInfo{FullMethod: method},
			func(ctx context.Context, req any) (any, error) { return nil, tt.err })
		assert.Equal(t, tt.code, status.Code(err), tt.err.Error())
	}
}

func TestUnary_SessionStoreFailure(t *testing.T) {
	i, gov := newInterceptor(1, &fakeSessions{err: errors.New("db down")})

	_, err := i.unary(withToken("s1"), nil, &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) { return nil, nil })

	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, 0, gov.InUse())
}

type testStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *testStream) Context() context.Context { return s.ctx }

func TestStream_BindsSessionTenant(t *testing.T) {
	tenantID := uuid.New()
	sess := &model.Session{ID: "s1", UserID: uuid.New(), TenantID: &tenantID, IsActive: true}
	i, _ := newInterceptor(1, &fakeSessions{sessions: map[string]*model.Session{"s1": sess}})

	var seen uuid.UUID
	err := i.stream(nil, &testStream{ctx: withToken("s1")}, &grpc.StreamServerInfo{FullMethod: method},
		func(srv any, ss grpc.ServerStream) error {
			seen, _ = tenancy.Get(ss.Context())
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, tenantID, seen)
}

func TestHealthIsExempt(t *testing.T) {
	gov := governor.New(1)
	p, err := gov.Acquire()
	require.NoError(t, err)
	defer p.Release()

	server, hs := NewServer(gov, &fakeSessions{}, Options{})
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
