package services

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/testutil"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type AuthServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *AuthService
	client  ClientInfo
}

func (suite *AuthServiceTestSuite) SetupTest() {
	suite.db = testutil.NewDB(suite.T())
	suite.service = NewAuthService(suite.db, testutil.Config(suite.T()), nil)
	suite.client = ClientInfo{UserAgent: "go-test", IPAddress: "127.0.0.1"}
}

func (suite *AuthServiceTestSuite) register(email string) *AuthResponse {
	resp, err := suite.service.Register(&RegisterRequest{
		Email:    email,
		Password: testutil.TestPassword,
		Name:     "  New Student ",
	}, suite.client)
	suite.Require().NoError(err)
	return resp
}

func (suite *AuthServiceTestSuite) TestRegister() {
	resp := suite.register("New@Example.com")

	suite.Equal("new@example.com", resp.User.Email)
	suite.Equal("New Student", resp.User.Name)
	suite.Equal(models.UserRoleUser, resp.User.Role)
	suite.Equal("Bearer", resp.TokenType)
	suite.Equal(3600, resp.ExpiresIn)
	suite.NotEmpty(resp.AccessToken)
	suite.NotEmpty(resp.RefreshToken)

	claims, err := utils.ValidateJWT(resp.AccessToken)
	suite.Require().NoError(err)
	suite.Equal(resp.User.ID.String(), claims.UserID)

	var session models.Session
	suite.Require().NoError(suite.db.Where("user_id = ?", resp.User.ID).First(&session).Error)
	suite.Equal(utils.HashString(resp.RefreshToken), session.RefreshTokenHash)
	suite.Equal("go-test", session.UserAgent)
}

func (suite *AuthServiceTestSuite) TestRegisterDuplicateEmail() {
	suite.register("dup@example.com")

	_, err := suite.service.Register(&RegisterRequest{
		Email:    " DUP@example.com",
		Password: testutil.TestPassword,
		Name:     "Again",
	}, suite.client)
	suite.ErrorIs(err, ErrUserExists)
}

func (suite *AuthServiceTestSuite) TestLogin() {
	suite.register("login@example.com")

	resp, err := suite.service.Login(&LoginRequest{Email: "LOGIN@example.com", Password: testutil.TestPassword}, suite.client)
	suite.Require().NoError(err)
	suite.NotNil(resp.User.LastLoginAt)

	_, err = suite.service.Login(&LoginRequest{Email: "login@example.com", Password: "wrong"}, suite.client)
	suite.ErrorIs(err, ErrInvalidCredentials)

	_, err = suite.service.Login(&LoginRequest{Email: "missing@example.com", Password: testutil.TestPassword}, suite.client)
	suite.ErrorIs(err, ErrInvalidCredentials)
}

func (suite *AuthServiceTestSuite) TestLoginSuspended() {
	user := testutil.CreateUser(suite.T(), suite.db, "suspended@example.com")
	suite.Require().NoError(suite.db.Model(user).Update("status", models.UserStatusSuspended).Error)

	_, err := suite.service.Login(&LoginRequest{Email: user.Email, Password: testutil.TestPassword}, suite.client)
	suite.ErrorIs(err, ErrAccountSuspended)
}

func (suite *AuthServiceTestSuite) TestAuthenticate() {
	resp := suite.register("auth@example.com")

	user, session, err := suite.service.Authenticate(resp.AccessToken)
	suite.Require().NoError(err)
	suite.Equal(resp.User.ID, user.ID)
	suite.Equal(user.ID, session.UserID)

	_, _, err = suite.service.Authenticate("not-a-token")
	suite.ErrorIs(err, ErrUnauthorized)

	suite.Require().NoError(suite.db.Model(user).Update("status", models.UserStatusSuspended).Error)
	_, _, err = suite.service.Authenticate(resp.AccessToken)
	suite.ErrorIs(err, ErrAccountSuspended)
}

func (suite *AuthServiceTestSuite) TestRefreshRotatesToken() {
	resp := suite.register("refresh@example.com")

	rotated, err := suite.service.Refresh(resp.RefreshToken)
	suite.Require().NoError(err)
	suite.NotEqual(resp.RefreshToken, rotated.RefreshToken)

	_, err = suite.service.Refresh(resp.RefreshToken)
	suite.ErrorIs(err, ErrSessionInvalid)

	_, err = suite.service.Refresh(rotated.RefreshToken)
	suite.NoError(err)
}

func (suite *AuthServiceTestSuite) TestLogoutRevokesSession() {
	resp := suite.register("logout@example.com")
	_, session, err := suite.service.Authenticate(resp.AccessToken)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.service.Logout(session.ID))

	_, _, err = suite.service.Authenticate(resp.AccessToken)
	suite.ErrorIs(err, ErrSessionInvalid)
	_, err = suite.service.Refresh(resp.RefreshToken)
	suite.ErrorIs(err, ErrSessionInvalid)
}

func (suite *AuthServiceTestSuite) TestRevokeUserSessions() {
	first := suite.register("multi@example.com")
	second, err := suite.service.Login(&LoginRequest{Email: "multi@example.com", Password: testutil.TestPassword}, suite.client)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.service.RevokeUserSessions(first.User.ID))

	_, _, err = suite.service.Authenticate(first.AccessToken)
	suite.ErrorIs(err, ErrSessionInvalid)
	_, _, err = suite.service.Authenticate(second.AccessToken)
	suite.ErrorIs(err, ErrSessionInvalid)
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
