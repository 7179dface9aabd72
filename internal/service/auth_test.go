package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/authn"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
)

type AuthServiceTestSuite struct {
	suite.Suite
	verifier *MockVerifier
	users    *MockUserStore
	tenants  *MockTenantStore
	sessions *MockSessions
	service  *AuthService
}

func (suite *AuthServiceTestSuite) SetupTest() {
	suite.verifier = new(MockVerifier)
	suite.users = new(MockUserStore)
	suite.tenants = new(MockTenantStore)
	suite.sessions = new(MockSessions)
	suite.service = NewAuthService(suite.verifier, suite.users, suite.tenants, suite.sessions)
}

func (suite *AuthServiceTestSuite) TearDownTest() {
	suite.verifier.AssertExpectations(suite.T())
	suite.users.AssertExpectations(suite.T())
	suite.tenants.AssertExpectations(suite.T())
	suite.sessions.AssertExpectations(suite.T())
}

var alice = &authn.Identity{Subject: "idp|alice", Email: "alice@example.com", Name: "Alice"}

func (suite *AuthServiceTestSuite) TestLogin_FirstLoginProvisionsUser() {
	user := &model.User{ID: uuid.New(), Subject: alice.Subject, Role: model.RoleMember, IsActive: true}
	meta := model.ClientMeta{IP: "10.0.0.1"}

	suite.verifier.On("Verify", "tok").Return(alice, nil)
	suite.users.On("EnsureBySubject", mock.Anything, alice.Subject, alice.Email, alice.Name).Return(user, nil)
	suite.sessions.On("Create", mock.Anything, user, meta).Return(&model.Session{ID: "s1", UserID: user.ID}, nil)

	sess, err := suite.service.Login(context.Background(), "tok", meta)

	suite.Require().NoError(err)
	suite.Equal("s1", sess.ID)
}

func (suite *AuthServiceTestSuite) TestLogin_ActiveTenant() {
	tenantID := uuid.New()
	user := &model.User{ID: uuid.New(), TenantID: &tenantID, Role: model.RoleOwner, OnboardingComplete: true, IsActive: true}

	suite.verifier.On("Verify", "tok").Return(alice, nil)
	suite.users.On("EnsureBySubject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(user, nil)
	suite.tenants.On("GetByID", mock.Anything, tenantID).Return(&model.Tenant{ID: tenantID, IsActive: true}, nil)
	suite.sessions.On("Create", mock.Anything, user, mock.Anything).Return(&model.Session{ID: "s1", TenantID: &tenantID}, nil)

	sess, err := suite.service.Login(context.Background(), "tok", model.ClientMeta{})

	suite.Require().NoError(err)
	suite.Equal(&tenantID, sess.TenantID)
}

func (suite *AuthServiceTestSuite) TestLogin_Rejections() {
	tenantID := uuid.New()
	inactiveUser := &model.User{ID: uuid.New(), IsActive: false}
	tenantUser := &model.User{ID: uuid.New(), TenantID: &tenantID, IsActive: true}

	testCases := []struct {
		name  string
		setup func()
	}{
		{
			name: "bad token",
			setup: func() {
				suite.verifier.On("Verify", "tok").Return(nil, fmt.Errorf("%w: expired", apperr.ErrAuthentication)).Once()
			},
		},
		{
			name: "inactive user",
			setup: func() {
				suite.verifier.On("Verify", "tok").Return(alice, nil).Once()
				suite.users.On("EnsureBySubject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(inactiveUser, nil).Once()
			},
		},
		{
			name: "inactive tenant",
			setup: func() {
				suite.verifier.On("Verify", "tok").Return(alice, nil).Once()
				suite.users.On("EnsureBySubject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tenantUser, nil).Once()
				suite.tenants.On("GetByID", mock.Anything, tenantID).Return(&model.Tenant{ID: tenantID, IsActive: false}, nil).Once()
			},
		},
		{
			name: "deleted tenant",
			setup: func() {
				suite.verifier.On("Verify", "tok").Return(alice, nil).Once()
				suite.users.On("EnsureBySubject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tenantUser, nil).Once()
				suite.tenants.On("GetByID", mock.Anything, tenantID).Return(nil, nil).Once()
			},
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			tc.setup()
			sess, err := suite.service.Login(context.Background(), "tok", model.ClientMeta{})
			suite.Nil(sess)
			suite.ErrorIs(err, apperr.ErrAuthentication)
		})
	}
	suite.sessions.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *AuthServiceTestSuite) TestLogin_StoreFailureIsNotAuthentication() {
	suite.verifier.On("Verify", "tok").Return(alice, nil)
	suite.users.On("EnsureBySubject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := suite.service.Login(context.Background(), "tok", model.ClientMeta{})

	suite.Error(err)
	suite.NotErrorIs(err, apperr.ErrAuthentication)
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func (suite *AuthServiceTestSuite) TestLogin_TenantDeactivatedBeforeSessionIsWritten() {
	tenantID := uuid.New()
	user := &model.User{ID: uuid.New(), TenantID: &tenantID, Role: model.RoleMember, OnboardingComplete: true, IsActive: true}

	suite.verifier.On("Verify", "tok").Return(alice, nil)
	suite.users.On("EnsureBySubject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(user, nil)
	suite.tenants.On("GetByID", mock.Anything, tenantID).Return(&model.Tenant{ID: tenantID, IsActive: true}, nil)
	suite.sessions.On("Create", mock.Anything, user, mock.Anything).Return(nil, apperr.ErrAuthentication)

	sess, err := suite.service.Login(context.Background(), "tok", model.ClientMeta{})

	suite.Nil(sess)
	suite.ErrorIs(err, apperr.ErrAuthentication)
}
