package grpcapi

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/governor"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type recordingBackend struct {
	mu       sync.Mutex
	revoked  []string
	tenantOf []uuid.UUID
	permits  int
	limits   []int
}

func (b *recordingBackend) observe(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := tenancy.Get(ctx)
	b.tenantOf = append(b.tenantOf, id)
	if _, ok := governor.PermitFrom(ctx); ok {
		b.permits++
	}
}

func (b *recordingBackend) Revoke(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked = append(b.revoked, id)
	return nil
}

func (b *recordingBackend) Get(ctx context.Context) (*model.Tenant, error) {
	b.observe(ctx)
	id, ok := tenancy.Get(ctx)
	if !ok {
		return nil, apperr.ErrMissingTenant
	}
	return &model.Tenant{ID: id, Name: "Acme", IsActive: true}, nil
}

func (b *recordingBackend) List(ctx context.Context, limit, offset int) ([]model.Employee, error) {
	b.observe(ctx)
	b.mu.Lock()
	b.limits = append(b.limits, limit)
	b.mu.Unlock()
	e := model.Employee{FullName: "Ada", Email: "ada@example.com"}
	e.ID = uuid.New()
	return []model.Employee{e}, nil
}

type sessionsFixture struct {
	conn     *grpc.ClientConn
	gov      *governor.Governor
	backend  *recordingBackend
	tenantID uuid.UUID
}

func newSessionsFixture(t *testing.T) *sessionsFixture {
	t.Helper()
	f := &sessionsFixture{
		gov:      governor.New(2),
		backend:  &recordingBackend{},
		tenantID: uuid.New(),
	}
	sessions := &fakeSessions{sessions: map[string]*model.Session{
		"tok-member": {ID: "tok-member", UserID: uuid.New(), TenantID: &f.tenantID, Role: model.RoleMember,
			OnboardingComplete: true, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)},
		"tok-new": {ID: "tok-new", UserID: uuid.New(), IsActive: true, ExpiresAt: time.Now().Add(time.Hour)},
	}}

	server, _ := NewServer(f.gov, sessions, Options{NoTenantMethods: SessionsNoTenantMethods})
	RegisterSessions(server, NewSessionsServer(f.backend, f.backend, f.backend))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	f.conn = conn
	return f
}

func (f *sessionsFixture) call(t *testing.T, token, method string, in, out any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, MetadataSessionToken, token)
	}
	return f.conn.Invoke(ctx, method, in, out)
}

func TestSessions_CurrentTenantRunsInSessionTenant(t *testing.T) {
	f := newSessionsFixture(t)

	out := &structpb.Struct{}
	require.NoError(t, f.call(t, "tok-member", MethodCurrentTenant, &emptypb.Empty{}, out))

	assert.Equal(t, f.tenantID.String(), out.Fields["id"].GetStringValue())
	assert.Equal(t, []uuid.UUID{f.tenantID}, f.backend.tenantOf)
	assert.Equal(t, 1, f.backend.permits)
	assert.Equal(t, 0, f.gov.InUse())
}

func TestSessions_RequiresSession(t *testing.T) {
	f := newSessionsFixture(t)

	for _, token := range []string{"", "tok-unknown"} {
		err := f.call(t, token, MethodCurrentSession, &emptypb.Empty{}, &structpb.Struct{})
		assert.Equal(t, codes.Unauthenticated, status.Code(err), token)
	}
	assert.Empty(t, f.backend.tenantOf)
}

func TestSessions_BeforeOnboarding(t *testing.T) {
	f := newSessionsFixture(t)

	out := &structpb.Struct{}
	require.NoError(t, f.call(t, "tok-new", MethodCurrentSession, &emptypb.Empty{}, out))
	_, hasTenant := out.Fields["tenant_id"]
	assert.False(t, hasTenant)

	err := f.call(t, "tok-new", MethodCurrentTenant, &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	err = f.call(t, "tok-new", MethodListEmployees, wrapperspb.Int32(10), &structpb.ListValue{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Empty(t, f.backend.tenantOf)
}

func TestSessions_End(t *testing.T) {
	f := newSessionsFixture(t)

	out := &wrapperspb.BoolValue{}
	require.NoError(t, f.call(t, "tok-new", MethodEndSession, &emptypb.Empty{}, out))
	assert.True(t, out.GetValue())
	assert.Equal(t, []string{"tok-new"}, f.backend.revoked)
}

func TestSessions_ListEmployeesCapsPageSize(t *testing.T) {
	f := newSessionsFixture(t)

	out := &structpb.ListValue{}
	require.NoError(t, f.call(t, "tok-member", MethodListEmployees, wrapperspb.Int32(500), out))
	require.Len(t, out.Values, 1)
	assert.Equal(t, "Ada", out.Values[0].GetStructValue().Fields["full_name"].GetStringValue())

	require.NoError(t, f.call(t, "tok-member", MethodListEmployees, &wrapperspb.Int32Value{}, &structpb.ListValue{}))
	assert.Equal(t, []int{maxEmployeePage, defaultEmployeePage}, f.backend.limits)
}

func TestSessions_GovernorExhausted(t *testing.T) {
	f := newSessionsFixture(t)
	for i := 0; i < f.gov.Max(); i++ {
		p, err := f.gov.Acquire()
		require.NoError(t, err)
		defer p.Release()
	}

	err := f.call(t, "tok-member", MethodCurrentTenant, &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Empty(t, f.backend.tenantOf)
}
