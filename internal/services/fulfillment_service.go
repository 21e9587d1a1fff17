// internal/services/fulfillment_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

// FulfillmentService turns paid orders into enrollments and textbook entitlements.
type FulfillmentService struct {
	db     *gorm.DB
	config *config.Config
	now    func() time.Time
}

type GrantEnrollmentRequest struct {
	UserID   uuid.UUID `json:"user_id" validate:"required"`
	CourseID uuid.UUID `json:"course_id" validate:"required"`
	StartAt  time.Time `json:"start_at" validate:"required"`
	EndAt    time.Time `json:"end_at" validate:"required"`
}

type ExtendEnrollmentRequest struct {
	EndAt *time.Time `json:"end_at,omitempty"`
	Days  int        `json:"days,omitempty" validate:"omitempty,min=1,max=3650"`
}

type EnrollmentFilter struct {
	utils.PaginationParams
	UserID   *uuid.UUID
	CourseID *uuid.UUID
}

func NewFulfillmentService(db *gorm.DB, config *config.Config) *FulfillmentService {
	return &FulfillmentService{
		db:     db,
		config: config,
		now:    time.Now,
	}
}

// FulfillOrder grants what order paid for. It must run inside the transaction that
// completes the order.
func (s *FulfillmentService) FulfillOrder(tx *gorm.DB, order *models.Order) error {
	switch order.ProductType {
	case models.ProductTypeCourse:
		var course models.Course
		if err := tx.Preload("Textbooks").First(&course, "id = ?", order.ProductID).Error; err != nil {
			return fmt.Errorf("failed to load course %s: %w", order.ProductID, err)
		}

		if _, err := s.upsertEnrollment(tx, order.UserID, course.ID, &order.ID, course.AccessDays); err != nil {
			return err
		}
		for i := range course.Textbooks {
			textbook := course.Textbooks[i]
			days := textbook.AccessDays
			if days == 0 {
				days = course.AccessDays
			}
			if _, err := s.upsertEntitlement(tx, order.UserID, textbook.ID, &order.ID, days); err != nil {
				return err
			}
		}

	case models.ProductTypeTextbook:
		var textbook models.Textbook
		if err := tx.First(&textbook, "id = ?", order.ProductID).Error; err != nil {
			return fmt.Errorf("failed to load textbook %s: %w", order.ProductID, err)
		}
		if _, err := s.upsertEntitlement(tx, order.UserID, textbook.ID, &order.ID, textbook.AccessDays); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: unknown product type %q", ErrInvalidRequest, order.ProductType)
	}

	logrus.WithFields(logrus.Fields{
		"order_no":     order.OrderNo,
		"user_id":      order.UserID,
		"product_type": order.ProductType,
		"product_id":   order.ProductID,
	}).Info("Order fulfilled")

	return nil
}

// RevokeOrder revokes every grant that order created or last extended.
func (s *FulfillmentService) RevokeOrder(tx *gorm.DB, order *models.Order) error {
	if err := tx.Model(&models.Enrollment{}).
		Where("order_id = ? AND status = ?", order.ID, models.GrantStatusActive).
		Update("status", models.GrantStatusRevoked).Error; err != nil {
		return fmt.Errorf("failed to revoke enrollments: %w", err)
	}

	if err := tx.Model(&models.TextbookEntitlement{}).
		Where("order_id = ? AND status = ?", order.ID, models.GrantStatusActive).
		Update("status", models.GrantStatusRevoked).Error; err != nil {
		return fmt.Errorf("failed to revoke textbook entitlements: %w", err)
	}

	logrus.WithField("order_no", order.OrderNo).Info("Order grants revoked")
	return nil
}

func (s *FulfillmentService) upsertEnrollment(tx *gorm.DB, userID, courseID uuid.UUID, orderID *uuid.UUID, accessDays int) (*models.Enrollment, error) {
	now := s.now()

	var enrollment models.Enrollment
	err := lockForUpdate(tx).Unscoped().
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		enrollment = models.Enrollment{UserID: userID, CourseID: courseID}
	case err != nil:
		return nil, fmt.Errorf("failed to look up enrollment: %w", err)
	}

	start, end := s.nextPeriod(enrollment.Status, enrollment.StartAt, enrollment.EndAt, now, accessDays)
	enrollment.StartAt = start
	enrollment.EndAt = end
	enrollment.Status = models.GrantStatusActive
	enrollment.OrderID = orderID
	enrollment.DeletedAt = gorm.DeletedAt{}

	if err := tx.Unscoped().Save(&enrollment).Error; err != nil {
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}
	return &enrollment, nil
}

func (s *FulfillmentService) upsertEntitlement(tx *gorm.DB, userID, textbookID uuid.UUID, orderID *uuid.UUID, accessDays int) (*models.TextbookEntitlement, error) {
	now := s.now()

	var entitlement models.TextbookEntitlement
	err := lockForUpdate(tx).Unscoped().
		Where("user_id = ? AND textbook_id = ?", userID, textbookID).
		First(&entitlement).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		entitlement = models.TextbookEntitlement{UserID: userID, TextbookID: textbookID}
	case err != nil:
		return nil, fmt.Errorf("failed to look up textbook entitlement: %w", err)
	}

	start, end := s.nextPeriod(entitlement.Status, entitlement.StartAt, entitlement.EndAt, now, accessDays)
	entitlement.StartAt = start
	entitlement.EndAt = end
	entitlement.Status = models.GrantStatusActive
	entitlement.OrderID = orderID
	entitlement.DeletedAt = gorm.DeletedAt{}

	if err := tx.Unscoped().Save(&entitlement).Error; err != nil {
		return nil, fmt.Errorf("failed to save textbook entitlement: %w", err)
	}
	return &entitlement, nil
}

// nextPeriod extends a running grant from its current end, or starts a fresh one now.
func (s *FulfillmentService) nextPeriod(status models.GrantStatus, start, end, now time.Time, accessDays int) (time.Time, time.Time) {
	if accessDays <= 0 {
		accessDays = s.config.Learning.DefaultAccessDays
	}
	if accessDays <= 0 {
		accessDays = 365
	}

	if status == models.GrantStatusActive && end.After(now) {
		return start, end.AddDate(0, 0, accessDays)
	}
	return now, now.AddDate(0, 0, accessDays)
}

// Admin operations

func (s *FulfillmentService) ListEnrollments(filter EnrollmentFilter) ([]models.Enrollment, int64, error) {
	query := s.db.Model(&models.Enrollment{}).Preload("Course").Preload("User")

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var enrollments []models.Enrollment
	total, err := utils.Paginate(query, filter.PaginationParams, []string{"created_at", "start_at", "end_at", "status"}, &enrollments)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch enrollments: %w", err)
	}
	return enrollments, total, nil
}

// GrantEnrollment creates or replaces a user's enrollment with an explicit period.
func (s *FulfillmentService) GrantEnrollment(req *GrantEnrollmentRequest) (*models.Enrollment, error) {
	if !req.EndAt.After(req.StartAt) {
		return nil, ErrInvalidPeriod
	}

	var enrollment models.Enrollment
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.User{}, "id = ?", req.UserID).Error; err != nil {
			return notFound(err, "user")
		}
		if err := tx.Select("id").First(&models.Course{}, "id = ?", req.CourseID).Error; err != nil {
			return notFound(err, "course")
		}

		err := lockForUpdate(tx).Unscoped().
			Where("user_id = ? AND course_id = ?", req.UserID, req.CourseID).
			First(&enrollment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			enrollment = models.Enrollment{UserID: req.UserID, CourseID: req.CourseID}
		} else if err != nil {
			return fmt.Errorf("failed to look up enrollment: %w", err)
		}

		enrollment.StartAt = req.StartAt
		enrollment.EndAt = req.EndAt
		enrollment.Status = models.GrantStatusActive
		enrollment.OrderID = nil
		enrollment.DeletedAt = gorm.DeletedAt{}
		return tx.Unscoped().Save(&enrollment).Error
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExtendEnrollment moves the end of an enrollment to an explicit date or by a number of days.
func (s *FulfillmentService) ExtendEnrollment(id uuid.UUID, req *ExtendEnrollmentRequest) (*models.Enrollment, error) {
	if req.EndAt == nil && req.Days <= 0 {
		return nil, fmt.Errorf("%w: end_at or days is required", ErrInvalidRequest)
	}

	var enrollment models.Enrollment
	if err := s.db.First(&enrollment, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "enrollment")
	}

	newEnd := enrollment.EndAt
	if req.EndAt != nil {
		newEnd = *req.EndAt
	} else {
		base := enrollment.EndAt
		if now := s.now(); base.Before(now) {
			base = now
		}
		newEnd = base.AddDate(0, 0, req.Days)
	}
	if !newEnd.After(enrollment.StartAt) {
		return nil, ErrInvalidPeriod
	}

	enrollment.EndAt = newEnd
	if newEnd.After(s.now()) {
		enrollment.Status = models.GrantStatusActive
	}
	if err := s.db.Save(&enrollment).Error; err != nil {
		return nil, fmt.Errorf("failed to extend enrollment: %w", err)
	}
	return &enrollment, nil
}

func (s *FulfillmentService) RevokeEnrollment(id uuid.UUID) error {
	result := s.db.Model(&models.Enrollment{}).Where("id = ?", id).Update("status", models.GrantStatusRevoked)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke enrollment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("enrollment %w", ErrNotFound)
	}
	return nil
}

// ExpireGrants flips ACTIVE grants whose period has ended to EXPIRED.
func (s *FulfillmentService) ExpireGrants() (int64, error) {
	now := s.now()

	enrollments := s.db.Model(&models.Enrollment{}).
		Where("status = ? AND end_at <= ?", models.GrantStatusActive, now).
		Update("status", models.GrantStatusExpired)
	if enrollments.Error != nil {
		return 0, fmt.Errorf("failed to expire enrollments: %w", enrollments.Error)
	}

	entitlements := s.db.Model(&models.TextbookEntitlement{}).
		Where("status = ? AND end_at <= ?", models.GrantStatusActive, now).
		Update("status", models.GrantStatusExpired)
	if entitlements.Error != nil {
		return 0, fmt.Errorf("failed to expire textbook entitlements: %w", entitlements.Error)
	}

	return enrollments.RowsAffected + entitlements.RowsAffected, nil
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// notFound maps gorm.ErrRecordNotFound onto ErrNotFound, labelled with the resource.
func notFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", resource, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", resource, err)
}
