// internal/services/notice_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type NoticeService struct {
	db *gorm.DB
}

type NoticeRequest struct {
	Title     string     `json:"title" validate:"required,max=255"`
	Body      string     `json:"body" validate:"required"`
	CourseID  *uuid.UUID `json:"course_id,omitempty"`
	Pinned    bool       `json:"pinned"`
	Published *bool      `json:"published,omitempty"`
}

func NewNoticeService(db *gorm.DB) *NoticeService {
	return &NoticeService{db: db}
}

// ListNotices returns published notices, pinned first then newest. With a course id the
// list holds global notices plus those of that course; without one, global notices only.
func (s *NoticeService) ListNotices(params utils.PaginationParams, courseID *uuid.UUID) ([]models.Notice, int64, error) {
	query := s.db.Model(&models.Notice{}).Where("published = ?", true)
	if courseID != nil {
		query = query.Where("course_id IS NULL OR course_id = ?", *courseID)
	} else {
		query = query.Where("course_id IS NULL")
	}

	params.Sort, params.Order = "", ""
	query = query.Order("pinned DESC").Order("created_at DESC")

	var notices []models.Notice
	total, err := utils.Paginate(query, params, nil, &notices)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notices: %w", err)
	}
	return notices, total, nil
}

func (s *NoticeService) GetNotice(id uuid.UUID, includeDrafts bool) (*models.Notice, error) {
	query := s.db
	if !includeDrafts {
		query = query.Where("published = ?", true)
	}

	var notice models.Notice
	if err := query.First(&notice, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "notice")
	}
	return &notice, nil
}

// Admin operations

func (s *NoticeService) ListAllNotices(params utils.PaginationParams) ([]models.Notice, int64, error) {
	query := s.db.Model(&models.Notice{})
	if params.Search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(params.Search)+"%")
	}

	var notices []models.Notice
	total, err := utils.Paginate(query, params, []string{"created_at", "title", "pinned"}, &notices)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notices: %w", err)
	}
	return notices, total, nil
}

func (s *NoticeService) CreateNotice(authorID uuid.UUID, req *NoticeRequest) (*models.Notice, error) {
	if err := s.checkCourse(req.CourseID); err != nil {
		return nil, err
	}

	notice := &models.Notice{
		Title:     strings.TrimSpace(req.Title),
		Body:      req.Body,
		CourseID:  req.CourseID,
		Pinned:    req.Pinned,
		Published: req.Published == nil || *req.Published,
		AuthorID:  authorID,
	}
	if err := s.db.Create(notice).Error; err != nil {
		return nil, fmt.Errorf("failed to create notice: %w", err)
	}
	return notice, nil
}

func (s *NoticeService) UpdateNotice(id uuid.UUID, req *NoticeRequest) (*models.Notice, error) {
	var notice models.Notice
	if err := s.db.First(&notice, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "notice")
	}
	if err := s.checkCourse(req.CourseID); err != nil {
		return nil, err
	}

	notice.Title = strings.TrimSpace(req.Title)
	notice.Body = req.Body
	notice.CourseID = req.CourseID
	notice.Pinned = req.Pinned
	if req.Published != nil {
		notice.Published = *req.Published
	}

	if err := s.db.Save(&notice).Error; err != nil {
		return nil, fmt.Errorf("failed to update notice: %w", err)
	}
	return &notice, nil
}

func (s *NoticeService) DeleteNotice(id uuid.UUID) error {
	result := s.db.Delete(&models.Notice{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete notice: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notice %w", ErrNotFound)
	}
	return nil
}

func (s *NoticeService) checkCourse(courseID *uuid.UUID) error {
	if courseID == nil {
		return nil
	}
	var count int64
	if err := s.db.Model(&models.Course{}).Where("id = ?", *courseID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("course %w", ErrNotFound)
	}
	return nil
}
