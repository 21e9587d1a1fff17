// internal/services/user_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type UserService struct {
	db       *gorm.DB
	notifier *NotificationService
}

type UpdateUserProfileRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=30"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,strong_password"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=ACTIVE SUSPENDED"`
	Role   models.UserRole   `json:"role,omitempty" validate:"omitempty,oneof=USER ADMIN"`
}

func NewUserService(db *gorm.DB, notifier *NotificationService) *UserService {
	return &UserService{
		db:       db,
		notifier: notifier,
	}
}

func (s *UserService) UpdateProfile(userID uuid.UUID, req *UpdateUserProfileRequest) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
		updates["name"] = user.Name
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
		updates["phone"] = user.Phone
	}
	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &user, nil
}

// ChangePassword sets a new password and ends every other session of the user.
func (s *UserService) ChangePassword(userID, currentSession uuid.UUID, req *ChangePasswordRequest) error {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return notFound(err, "user")
	}

	if err := user.CheckPassword(req.CurrentPassword); err != nil {
		return ErrInvalidCredentials
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("password_hash", user.PasswordHash).Error; err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return tx.Model(&models.Session{}).
			Where("user_id = ? AND id <> ? AND revoked_at IS NULL", userID, currentSession).
			Update("revoked_at", time.Now()).Error
	})
}

// DeleteAccount soft deletes the user. Accounts created through social login have no
// password and skip the check.
func (s *UserService) DeleteAccount(userID uuid.UUID, password string) error {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return notFound(err, "user")
	}

	if user.PasswordHash != "" {
		if err := user.CheckPassword(password); err != nil {
			return ErrInvalidCredentials
		}
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Session{}).
			Where("user_id = ? AND revoked_at IS NULL", userID).
			Update("revoked_at", time.Now()).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&models.OAuthAccount{}).Error; err != nil {
			return err
		}
		// The soft-deleted row keeps its unique email, so free it for a future sign-up.
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"email":             retiredEmail(user.Email, user.ID),
			"imweb_member_code": "",
		}).Error; err != nil {
			return fmt.Errorf("failed to retire account email: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}

// retiredEmail is never a valid address, so it cannot collide with a live account.
func retiredEmail(email string, id uuid.UUID) string {
	suffix := "#deleted-" + strings.ReplaceAll(id.String(), "-", "")[:8]
	if len(email)+len(suffix) > 255 {
		email = email[:255-len(suffix)]
	}
	return email + suffix
}

// Admin operations

func (s *UserService) ListUsers(params utils.PaginationParams, role string) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})

	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}
	if role != "" {
		query = query.Where("role = ?", strings.ToUpper(role))
	}
	if params.Search != "" {
		term := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", term, term)
	}

	var users []models.User
	total, err := utils.Paginate(query, params, []string{"created_at", "email", "name", "last_login_at"}, &users)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, total, nil
}

func (s *UserService) GetUserDetail(userID uuid.UUID) (map[string]interface{}, error) {
	var user models.User
	if err := s.db.Preload("OAuthAccounts").First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	var enrollments []models.Enrollment
	if err := s.db.Preload("Course").Where("user_id = ?", userID).Order("end_at DESC").Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch enrollments: %w", err)
	}

	var entitlements []models.TextbookEntitlement
	if err := s.db.Preload("Textbook").Where("user_id = ?", userID).Order("end_at DESC").Find(&entitlements).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch textbook entitlements: %w", err)
	}

	var orders []models.Order
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(20).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	return map[string]interface{}{
		"user":         user,
		"enrollments":  enrollments,
		"entitlements": entitlements,
		"orders":       orders,
	}, nil
}

// UpdateUserStatus suspends or reactivates a user. Suspension ends all sessions.
func (s *UserService) UpdateUserStatus(adminID, userID uuid.UUID, req *UpdateUserStatusRequest) (*models.User, error) {
	if adminID == userID && (req.Status != models.UserStatusActive || (req.Role != "" && req.Role != models.UserRoleAdmin)) {
		return nil, fmt.Errorf("%w: cannot demote or suspend yourself", ErrForbidden)
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	oldStatus := user.Status
	user.Status = req.Status
	updates := map[string]interface{}{"status": req.Status}
	if req.Role != "" {
		user.Role = req.Role
		updates["role"] = req.Role
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if req.Status == models.UserStatusSuspended {
			return tx.Model(&models.Session{}).
				Where("user_id = ? AND revoked_at IS NULL", userID).
				Update("revoked_at", time.Now()).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldStatus != user.Status && s.notifier != nil {
		if err := s.notifier.SendStatusChangeNotice(&user, oldStatus); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to send status change notice")
		}
	}
	return &user, nil
}
