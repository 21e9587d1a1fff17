// internal/services/auth_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type AuthService struct {
	db       *gorm.DB
	cfg      *config.Config
	notifier *NotificationService
	now      func() time.Time
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,strong_password"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=30"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ClientInfo describes the device a session was opened from.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"` // in seconds
}

func NewAuthService(db *gorm.DB, cfg *config.Config, notifier *NotificationService) *AuthService {
	return &AuthService{
		db:       db,
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *AuthService) Register(req *RegisterRequest, client ClientInfo) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)

	// Check if user already exists
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	user := &models.User{
		Email:  email,
		Name:   strings.TrimSpace(req.Name),
		Phone:  req.Phone,
		Role:   models.UserRoleUser,
		Status: models.UserStatusActive,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.notifier != nil {
		go func(u models.User) {
			if err := s.notifier.SendWelcomeEmail(&u); err != nil {
				logrus.WithError(err).WithField("user_id", u.ID).Warn("Failed to send welcome email")
			}
		}(*user)
	}

	return s.IssueSession(user, client)
}

func (s *AuthService) Login(req *LoginRequest, client ClientInfo) (*AuthResponse, error) {
	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	// Verify password
	if err := user.CheckPassword(req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	return s.IssueSession(&user, client)
}

// IssueSession opens a new session for user and signs its tokens.
func (s *AuthService) IssueSession(user *models.User, client ClientInfo) (*AuthResponse, error) {
	refreshToken, err := utils.GenerateRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := s.now()
	session := &models.Session{
		UserID:           user.ID,
		RefreshTokenHash: utils.HashString(refreshToken),
		UserAgent:        client.UserAgent,
		IPAddress:        client.IPAddress,
		ExpiresAt:        now.Add(s.refreshTTL()),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	user.LastLoginAt = &now
	s.db.Model(user).Update("last_login_at", now)

	return s.tokens(user, session, refreshToken)
}

// Refresh rotates the refresh token of a live session and signs a new access token.
func (s *AuthService) Refresh(refreshToken string) (*AuthResponse, error) {
	var session models.Session
	if err := s.db.Where("refresh_token_hash = ?", utils.HashString(refreshToken)).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := s.now()
	if !session.Active(now) {
		return nil, ErrSessionInvalid
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", session.UserID).Error; err != nil {
		return nil, ErrSessionInvalid
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	newRefreshToken, err := utils.GenerateRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	session.RefreshTokenHash = utils.HashString(newRefreshToken)
	session.ExpiresAt = now.Add(s.refreshTTL())
	if err := s.db.Model(&session).Updates(map[string]interface{}{
		"refresh_token_hash": session.RefreshTokenHash,
		"expires_at":         session.ExpiresAt,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	return s.tokens(&user, &session, newRefreshToken)
}

func (s *AuthService) Logout(sessionID uuid.UUID) error {
	now := s.now()
	if err := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", now).Error; err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeUserSessions ends every open session of a user, e.g. after suspension.
func (s *AuthService) RevokeUserSessions(userID uuid.UUID) error {
	return s.db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now()).Error
}

// Authenticate resolves an access token to its live session and active user.
func (s *AuthService) Authenticate(accessToken string) (*models.User, *models.Session, error) {
	claims, err := utils.ValidateJWT(accessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sessionID, err := claims.SessionID()
	if err != nil {
		return nil, nil, ErrSessionInvalid
	}

	var session models.Session
	if err := s.db.First(&session, "id = ?", sessionID).Error; err != nil {
		return nil, nil, ErrSessionInvalid
	}
	if !session.Active(s.now()) || session.UserID.String() != claims.UserID {
		return nil, nil, ErrSessionInvalid
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", session.UserID).Error; err != nil {
		return nil, nil, ErrSessionInvalid
	}
	if user.Status != models.UserStatusActive {
		return nil, nil, ErrAccountSuspended
	}

	return &user, &session, nil
}

func (s *AuthService) GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.Preload("OAuthAccounts").First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (s *AuthService) tokens(user *models.User, session *models.Session, refreshToken string) (*AuthResponse, error) {
	accessToken, err := utils.GenerateJWT(user.ID, session.ID, string(user.Role), s.accessTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.accessTTL().Seconds()),
	}, nil
}

func (s *AuthService) accessTTL() time.Duration {
	return time.Duration(s.cfg.JWT.AccessTokenTTL) * time.Hour
}

func (s *AuthService) refreshTTL() time.Duration {
	return time.Duration(s.cfg.JWT.RefreshTokenTTL) * time.Hour
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
