package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/testutil"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type fakeOAuthClient struct {
	profile   *clients.OAuthProfile
	exchanged []string
}

func (f *fakeOAuthClient) AuthorizeURL(state string) string {
	return "https://provider.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeOAuthClient) Exchange(ctx context.Context, code, state string) (string, error) {
	f.exchanged = append(f.exchanged, code)
	return "provider-token", nil
}

func (f *fakeOAuthClient) Profile(ctx context.Context, accessToken string) (*clients.OAuthProfile, error) {
	return f.profile, nil
}

func newOAuthService(t *testing.T, profile *clients.OAuthProfile) (*OAuthService, *gorm.DB) {
	db := testutil.NewDB(t)
	auth := NewAuthService(db, testutil.Config(t), nil)
	service := NewOAuthService(db, auth, map[models.OAuthProvider]clients.OAuthClient{
		models.OAuthProviderKakao: &fakeOAuthClient{profile: profile},
	})
	return service, db
}

func callback(t *testing.T, service *OAuthService, redirect string) (*OAuthLoginResult, error) {
	t.Helper()
	state, err := utils.GenerateStateToken(string(models.OAuthProviderKakao), redirect, time.Minute)
	require.NoError(t, err)
	return service.Callback(context.Background(), models.OAuthProviderKakao,
		&OAuthCallbackRequest{Code: "code", State: state}, ClientInfo{UserAgent: "go-test"})
}

func TestOAuthParseProvider(t *testing.T) {
	service, _ := newOAuthService(t, nil)

	provider, err := service.ParseProvider("kakao")
	require.NoError(t, err)
	assert.Equal(t, models.OAuthProviderKakao, provider)

	_, err = service.ParseProvider("naver")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOAuthAuthorizeURLDropsOffsiteRedirect(t *testing.T) {
	service, _ := newOAuthService(t, nil)

	raw, err := service.AuthorizeURL(models.OAuthProviderKakao, "//evil.example.com")
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	state, err := utils.ValidateStateToken(parsed.Query().Get("state"), string(models.OAuthProviderKakao))
	require.NoError(t, err)
	assert.Empty(t, state.Redirect)
}

func TestOAuthCallbackCreatesUser(t *testing.T) {
	service, db := newOAuthService(t, &clients.OAuthProfile{
		ID:            "k-1",
		Email:         "Social@Example.com",
		EmailVerified: true,
		Name:          "Social User",
	})

	result, err := callback(t, service, "/courses/go")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "/courses/go", result.Redirect)
	assert.Equal(t, "social@example.com", result.User.Email)
	assert.NotEmpty(t, result.AccessToken)

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", result.User.ID).Error)
	assert.NotNil(t, user.EmailVerifiedAt)
	assert.Empty(t, user.PasswordHash)

	again, err := callback(t, service, "")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, result.User.ID, again.User.ID)

	var links int64
	db.Model(&models.OAuthAccount{}).Where("user_id = ?", user.ID).Count(&links)
	assert.Equal(t, int64(1), links)
}

func TestOAuthCallbackAfterAccountDeletion(t *testing.T) {
	service, db := newOAuthService(t, &clients.OAuthProfile{
		ID:            "k-9",
		Email:         "again@example.com",
		EmailVerified: true,
	})

	first, err := callback(t, service, "")
	require.NoError(t, err)
	require.NoError(t, NewUserService(db, nil).DeleteAccount(first.User.ID, ""))

	second, err := callback(t, service, "")
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.User.ID, second.User.ID)
	assert.Equal(t, "again@example.com", second.User.Email)
}

func TestOAuthCallbackLinksVerifiedEmail(t *testing.T) {
	service, db := newOAuthService(t, &clients.OAuthProfile{
		ID:            "k-2",
		Email:         "existing@example.com",
		EmailVerified: true,
	})
	existing := testutil.CreateUser(t, db, "existing@example.com")

	result, err := callback(t, service, "")
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, existing.ID, result.User.ID)
}

func TestOAuthCallbackRejectsUnverifiedCollision(t *testing.T) {
	service, db := newOAuthService(t, &clients.OAuthProfile{
		ID:    "k-3",
		Email: "existing@example.com",
	})
	testutil.CreateUser(t, db, "existing@example.com")

	_, err := callback(t, service, "")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestOAuthCallbackWithoutEmail(t *testing.T) {
	service, _ := newOAuthService(t, &clients.OAuthProfile{ID: "k-4"})

	result, err := callback(t, service, "")
	require.NoError(t, err)
	assert.Equal(t, "kakao_k-4@oauth.local", result.User.Email)
	assert.Equal(t, "회원", result.User.Name)
}

func TestOAuthCallbackRejectsBadState(t *testing.T) {
	service, _ := newOAuthService(t, &clients.OAuthProfile{ID: "k-5"})

	state, err := utils.GenerateStateToken(string(models.OAuthProviderNaver), "", time.Minute)
	require.NoError(t, err)

	_, err = service.Callback(context.Background(), models.OAuthProviderKakao,
		&OAuthCallbackRequest{Code: "code", State: state}, ClientInfo{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestOAuthCallbackSuspendedUser(t *testing.T) {
	service, db := newOAuthService(t, &clients.OAuthProfile{
		ID:            "k-6",
		Email:         "banned@example.com",
		EmailVerified: true,
	})
	user := testutil.CreateUser(t, db, "banned@example.com")
	require.NoError(t, db.Model(user).Update("status", models.UserStatusSuspended).Error)

	_, err := callback(t, service, "")
	assert.ErrorIs(t, err, ErrAccountSuspended)
}
