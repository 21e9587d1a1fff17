// internal/services/oauth_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

const oauthStateTTL = 10 * time.Minute

// OAuthService signs users in with Kakao or Naver and links those accounts to local users.
type OAuthService struct {
	db        *gorm.DB
	auth      *AuthService
	providers map[models.OAuthProvider]clients.OAuthClient
}

type OAuthCallbackRequest struct {
	Code  string `json:"code" form:"code" validate:"required"`
	State string `json:"state" form:"state" validate:"required"`
}

type OAuthLoginResult struct {
	*AuthResponse
	Redirect string `json:"redirect,omitempty"`
	Created  bool   `json:"created"`
}

func NewOAuthService(db *gorm.DB, auth *AuthService, providers map[models.OAuthProvider]clients.OAuthClient) *OAuthService {
	return &OAuthService{
		db:        db,
		auth:      auth,
		providers: providers,
	}
}

// ParseProvider maps a path segment such as "kakao" to a configured provider.
func (s *OAuthService) ParseProvider(name string) (models.OAuthProvider, error) {
	provider := models.OAuthProvider(strings.ToUpper(name))
	if _, ok := s.providers[provider]; !ok {
		return "", fmt.Errorf("oauth provider %q %w", name, ErrNotFound)
	}
	return provider, nil
}

// AuthorizeURL returns the provider login page with a signed state parameter.
func (s *OAuthService) AuthorizeURL(provider models.OAuthProvider, redirect string) (string, error) {
	client, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("oauth provider %q %w", provider, ErrNotFound)
	}

	if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		redirect = ""
	}

	state, err := utils.GenerateStateToken(string(provider), redirect, oauthStateTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return client.AuthorizeURL(state), nil
}

// Callback finishes the authorization-code flow and opens a session.
func (s *OAuthService) Callback(ctx context.Context, provider models.OAuthProvider, req *OAuthCallbackRequest, info ClientInfo) (*OAuthLoginResult, error) {
	client, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("oauth provider %q %w", provider, ErrNotFound)
	}

	state, err := utils.ValidateStateToken(req.State, string(provider))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid oauth state: %v", ErrUnauthorized, err)
	}

	token, err := client.Exchange(ctx, req.Code, req.State)
	if err != nil {
		return nil, err
	}
	profile, err := client.Profile(ctx, token)
	if err != nil {
		return nil, err
	}

	user, created, err := s.linkAccount(provider, profile)
	if err != nil {
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	auth, err := s.auth.IssueSession(user, info)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"provider": provider,
		"user_id":  user.ID,
		"created":  created,
	}).Info("OAuth login")

	return &OAuthLoginResult{AuthResponse: auth, Redirect: state.Redirect, Created: created}, nil
}

// linkAccount resolves the local user for a provider profile: an existing link first,
// then a user with the same verified email, else a new passwordless user.
func (s *OAuthService) linkAccount(provider models.OAuthProvider, profile *clients.OAuthProfile) (*models.User, bool, error) {
	var user models.User
	created := false

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var account models.OAuthAccount
		err := tx.Where("provider = ? AND provider_user_id = ?", provider, profile.ID).First(&account).Error
		if err == nil {
			return tx.First(&user, "id = ?", account.UserID).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up oauth account: %w", err)
		}

		email := normalizeEmail(profile.Email)
		found := false
		if email != "" && profile.EmailVerified {
			err := tx.Where("email = ?", email).First(&user).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("failed to look up user: %w", err)
			}
		}

		if !found {
			if email == "" {
				email = fmt.Sprintf("%s_%s@oauth.local", strings.ToLower(string(provider)), profile.ID)
			}
			// An unverified address that is already taken cannot be claimed.
			var taken int64
			if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&taken).Error; err != nil {
				return fmt.Errorf("failed to check email: %w", err)
			}
			if taken > 0 {
				return ErrUserExists
			}

			now := time.Now()
			user = models.User{
				Email:  email,
				Name:   oauthDisplayName(profile),
				Phone:  profile.Phone,
				Role:   models.UserRoleUser,
				Status: models.UserStatusActive,
			}
			if profile.EmailVerified {
				user.EmailVerifiedAt = &now
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			created = true
		}

		account = models.OAuthAccount{
			Provider:       provider,
			ProviderUserID: profile.ID,
			UserID:         user.ID,
			Email:          profile.Email,
		}
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("failed to link oauth account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &user, created, nil
}

func oauthDisplayName(profile *clients.OAuthProfile) string {
	if profile.Name != "" {
		return profile.Name
	}
	if at := strings.Index(profile.Email, "@"); at > 0 {
		return profile.Email[:at]
	}
	return "회원"
}
