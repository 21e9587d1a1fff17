// internal/services/review_service.go
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
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type ReviewService struct {
	db     *gorm.DB
	config *config.Config
}

type CreateReviewRequest struct {
	ProductType models.ProductType `json:"product_type" validate:"required,oneof=COURSE TEXTBOOK"`
	ProductID   uuid.UUID          `json:"product_id" validate:"required"`
	Rating      int                `json:"rating" validate:"required,min=1,max=5"`
	Content     string             `json:"content" validate:"required,min=5,max=2000"`
}

type UpdateReviewRequest struct {
	Rating  *int    `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Content *string `json:"content,omitempty" validate:"omitempty,min=5,max=2000"`
}

type ReportReviewRequest struct {
	Reason string `json:"reason" validate:"required,min=2,max=500"`
}

type ResolveReportRequest struct {
	Action string `json:"action" validate:"required,oneof=hide dismiss"`
}

type ReviewSummary struct {
	Average      float64       `json:"average"`
	Count        int64         `json:"count"`
	Distribution map[int]int64 `json:"distribution"`
}

type ReviewList struct {
	Reviews []models.Review `json:"reviews"`
	Summary ReviewSummary   `json:"summary"`
}

func NewReviewService(db *gorm.DB, config *config.Config) *ReviewService {
	return &ReviewService{db: db, config: config}
}

func (s *ReviewService) CreateReview(userID uuid.UUID, req *CreateReviewRequest) (*models.Review, error) {
	content := strings.TrimSpace(req.Content)
	if len([]rune(content)) < 5 {
		return nil, fmt.Errorf("%w: review content is too short", ErrInvalidRequest)
	}

	if err := s.productExists(req.ProductType, req.ProductID); err != nil {
		return nil, err
	}

	eligible, err := s.hasPurchased(userID, req.ProductType, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrReviewNotEligible
	}

	var review models.Review
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		err := tx.Unscoped().
			Where("user_id = ? AND product_type = ? AND product_id = ?", userID, req.ProductType, req.ProductID).
			First(&review).Error
		switch {
		case err == nil && !review.DeletedAt.Valid:
			return ErrAlreadyReviewed
		case err == nil:
			// A deleted review is brought back with the new content.
			review.DeletedAt = gorm.DeletedAt{}
			review.CreatedAt = time.Now()
		case errors.Is(err, gorm.ErrRecordNotFound):
			review = models.Review{
				UserID:      userID,
				ProductType: req.ProductType,
				ProductID:   req.ProductID,
			}
		default:
			return err
		}

		review.Rating = req.Rating
		review.Content = content
		review.Status = models.ReviewStatusVisible
		review.ReportCount = 0
		return tx.Unscoped().Save(&review).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyReviewed
		}
		return nil, err
	}
	return &review, nil
}

func (s *ReviewService) UpdateReview(userID, reviewID uuid.UUID, req *UpdateReviewRequest) (*models.Review, error) {
	var review models.Review
	if err := s.db.First(&review, "id = ?", reviewID).Error; err != nil {
		return nil, notFound(err, "review")
	}
	if review.UserID != userID {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{}
	if req.Rating != nil {
		review.Rating = *req.Rating
		updates["rating"] = review.Rating
	}
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		if len([]rune(content)) < 5 {
			return nil, fmt.Errorf("%w: review content is too short", ErrInvalidRequest)
		}
		review.Content = content
		updates["content"] = content
	}
	if len(updates) == 0 {
		return &review, nil
	}

	if err := s.db.Model(&review).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update review: %w", err)
	}
	return &review, nil
}

func (s *ReviewService) DeleteReview(userID uuid.UUID, isAdmin bool, reviewID uuid.UUID) error {
	var review models.Review
	if err := s.db.First(&review, "id = ?", reviewID).Error; err != nil {
		return notFound(err, "review")
	}
	if review.UserID != userID && !isAdmin {
		return ErrForbidden
	}

	if err := s.db.Delete(&review).Error; err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

// ListReviews returns a page of visible reviews, newest first, with the product summary.
func (s *ReviewService) ListReviews(productType models.ProductType, productID uuid.UUID, params utils.PaginationParams) (*ReviewList, int64, error) {
	query := s.db.Model(&models.Review{}).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name") }).
		Where("product_type = ? AND product_id = ? AND status = ?", productType, productID, models.ReviewStatusVisible)

	params.Sort, params.Order = sanitizeReviewSort(params)

	var reviews []models.Review
	total, err := utils.Paginate(query, params, []string{"created_at", "rating"}, &reviews)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	summary, err := s.Summary(productType, productID)
	if err != nil {
		return nil, 0, err
	}

	return &ReviewList{Reviews: reviews, Summary: *summary}, total, nil
}

// Summary aggregates the visible reviews of one product.
func (s *ReviewService) Summary(productType models.ProductType, productID uuid.UUID) (*ReviewSummary, error) {
	type bucket struct {
		Rating int
		Count  int64
	}

	var buckets []bucket
	if err := s.db.Model(&models.Review{}).
		Select("rating, COUNT(*) AS count").
		Where("product_type = ? AND product_id = ? AND status = ?", productType, productID, models.ReviewStatusVisible).
		Group("rating").
		Scan(&buckets).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate reviews: %w", err)
	}

	summary := &ReviewSummary{Distribution: map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	var sum int64
	for _, b := range buckets {
		if b.Rating < 1 || b.Rating > 5 {
			continue
		}
		summary.Distribution[b.Rating] = b.Count
		summary.Count += b.Count
		sum += int64(b.Rating) * b.Count
	}
	if summary.Count > 0 {
		summary.Average = roundRating(float64(sum) / float64(summary.Count))
	}
	return summary, nil
}

func (s *ReviewService) MyReviews(userID uuid.UUID) ([]models.Review, error) {
	var reviews []models.Review
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch reviews: %w", err)
	}
	return reviews, nil
}

// ReportReview files a report; the review is hidden once it collects the configured
// number of reports.
func (s *ReviewService) ReportReview(reporterID, reviewID uuid.UUID, req *ReportReviewRequest) (*models.ReviewReport, error) {
	var report models.ReviewReport
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var review models.Review
		if err := lockForUpdate(tx).First(&review, "id = ?", reviewID).Error; err != nil {
			return notFound(err, "review")
		}
		if review.UserID == reporterID {
			return fmt.Errorf("%w: cannot report your own review", ErrForbidden)
		}

		var existing int64
		if err := tx.Model(&models.ReviewReport{}).
			Where("review_id = ? AND reporter_id = ?", reviewID, reporterID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyReported
		}

		report = models.ReviewReport{
			ReviewID:   reviewID,
			ReporterID: reporterID,
			Reason:     strings.TrimSpace(req.Reason),
			Status:     models.ReportStatusPending,
		}
		if err := tx.Create(&report).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyReported
			}
			return fmt.Errorf("failed to create report: %w", err)
		}

		review.ReportCount++
		updates := map[string]interface{}{"report_count": review.ReportCount}
		if review.Status == models.ReviewStatusVisible && review.ReportCount >= s.reportThreshold() {
			review.Status = models.ReviewStatusHidden
			updates["status"] = review.Status
			logrus.WithFields(logrus.Fields{
				"review_id":    review.ID,
				"report_count": review.ReportCount,
			}).Info("Review hidden after reports")
		}
		return tx.Model(&review).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Admin operations

func (s *ReviewService) ListReports(params utils.PaginationParams) ([]models.ReviewReport, int64, error) {
	query := s.db.Model(&models.ReviewReport{}).Preload("Review").Preload("Review.User")
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}

	var reports []models.ReviewReport
	total, err := utils.Paginate(query, params, []string{"created_at", "status"}, &reports)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reports: %w", err)
	}
	return reports, total, nil
}

func (s *ReviewService) ListAllReviews(params utils.PaginationParams, productType models.ProductType) ([]models.Review, int64, error) {
	query := s.db.Model(&models.Review{}).Preload("User")
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}
	if productType != "" {
		query = query.Where("product_type = ?", productType)
	}
	if params.Search != "" {
		query = query.Where("LOWER(content) LIKE ?", "%"+strings.ToLower(params.Search)+"%")
	}

	var reviews []models.Review
	total, err := utils.Paginate(query, params, []string{"created_at", "rating", "report_count"}, &reviews)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reviews: %w", err)
	}
	return reviews, total, nil
}

// ResolveReport either hides the reported review or dismisses the report.
func (s *ReviewService) ResolveReport(adminID, reportID uuid.UUID, req *ResolveReportRequest) (*models.ReviewReport, error) {
	var report models.ReviewReport
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&report, "id = ?", reportID).Error; err != nil {
			return notFound(err, "report")
		}

		now := time.Now()
		report.ResolvedBy = &adminID
		report.ResolvedAt = &now

		switch req.Action {
		case "hide":
			report.Status = models.ReportStatusResolved
			if err := tx.Model(&models.Review{}).Where("id = ?", report.ReviewID).
				Update("status", models.ReviewStatusHidden).Error; err != nil {
				return fmt.Errorf("failed to hide review: %w", err)
			}
		case "dismiss":
			report.Status = models.ReportStatusDismissed
		default:
			return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
		}

		return tx.Model(&report).Updates(map[string]interface{}{
			"status":      report.Status,
			"resolved_by": adminID,
			"resolved_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// SetReviewStatus hides or restores a review. Restoring clears the report counter and
// dismisses open reports.
func (s *ReviewService) SetReviewStatus(adminID, reviewID uuid.UUID, status models.ReviewStatus) (*models.Review, error) {
	var review models.Review
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&review, "id = ?", reviewID).Error; err != nil {
			return notFound(err, "review")
		}

		updates := map[string]interface{}{"status": status}
		if status == models.ReviewStatusVisible {
			updates["report_count"] = 0
			review.ReportCount = 0

			now := time.Now()
			if err := tx.Model(&models.ReviewReport{}).
				Where("review_id = ? AND status = ?", reviewID, models.ReportStatusPending).
				Updates(map[string]interface{}{
					"status":      models.ReportStatusDismissed,
					"resolved_by": adminID,
					"resolved_at": now,
				}).Error; err != nil {
				return err
			}
		}
		review.Status = status
		return tx.Model(&review).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *ReviewService) reportThreshold() int {
	if s.config.Learning.ReviewReportThreshold > 0 {
		return s.config.Learning.ReviewReportThreshold
	}
	return 5
}

func (s *ReviewService) productExists(productType models.ProductType, productID uuid.UUID) error {
	switch productType {
	case models.ProductTypeCourse:
		if err := s.db.Select("id").First(&models.Course{}, "id = ?", productID).Error; err != nil {
			return notFound(err, "course")
		}
	case models.ProductTypeTextbook:
		if err := s.db.Select("id").First(&models.Textbook{}, "id = ?", productID).Error; err != nil {
			return notFound(err, "textbook")
		}
	default:
		return fmt.Errorf("%w: unknown product type %q", ErrInvalidRequest, productType)
	}
	return nil
}

// hasPurchased reports whether the user holds or has held access to the product.
// Grants revoked by a refund do not count.
func (s *ReviewService) hasPurchased(userID uuid.UUID, productType models.ProductType, productID uuid.UUID) (bool, error) {
	var count int64
	var err error
	switch productType {
	case models.ProductTypeCourse:
		err = s.db.Model(&models.Enrollment{}).
			Where("user_id = ? AND course_id = ? AND status <> ?", userID, productID, models.GrantStatusRevoked).
			Count(&count).Error
	case models.ProductTypeTextbook:
		err = s.db.Model(&models.TextbookEntitlement{}).
			Where("user_id = ? AND textbook_id = ? AND status <> ?", userID, productID, models.GrantStatusRevoked).
			Count(&count).Error
	}
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return count > 0, nil
}

func sanitizeReviewSort(params utils.PaginationParams) (string, string) {
	if params.Sort == "rating" {
		return params.Sort, params.Order
	}
	return "created_at", "desc"
}
