// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Email           string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Name            string     `json:"name" gorm:"size:100;not null"`
	Phone           string     `json:"phone,omitempty" gorm:"size:30"`
	PasswordHash    string     `json:"-" gorm:"size:255"`
	Role            UserRole   `json:"role" gorm:"type:varchar(20);default:'USER';not null"`
	Status          UserStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE';not null"`
	ImwebMemberCode string     `json:"imweb_member_code,omitempty" gorm:"size:100;index"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at"`

	// Relationships
	OAuthAccounts []OAuthAccount `json:"oauth_accounts,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	if u.PasswordHash == "" {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// Session backs a login; the JWT id claim carries Session.ID.
type Session struct {
	BaseModel
	UserID           uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	RefreshTokenHash string     `json:"-" gorm:"size:64;not null;index"`
	UserAgent        string     `json:"user_agent" gorm:"type:text"`
	IPAddress        string     `json:"ip_address" gorm:"size:45"`
	ExpiresAt        time.Time  `json:"expires_at" gorm:"not null;index"`
	RevokedAt        *time.Time `json:"revoked_at"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type OAuthAccount struct {
	BaseModel
	Provider       OAuthProvider `json:"provider" gorm:"type:varchar(20);not null;uniqueIndex:idx_oauth_provider_uid"`
	ProviderUserID string        `json:"provider_user_id" gorm:"size:191;not null;uniqueIndex:idx_oauth_provider_uid"`
	UserID         uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;index"`
	Email          string        `json:"email,omitempty" gorm:"size:255"`
}

type Teacher struct {
	BaseModel
	Name         string `json:"name" gorm:"size:100;not null"`
	Headline     string `json:"headline" gorm:"size:255"`
	Bio          string `json:"bio" gorm:"type:text"`
	ProfileImage string `json:"profile_image" gorm:"size:500"`
	Position     int    `json:"position" gorm:"not null;default:0;index"`
}
