// internal/services/admin_service.go
package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/now"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

// AdminService manages the catalog content behind the back-office.
type AdminService struct {
	db      *gorm.DB
	config  *config.Config
	storage *StorageService
	vimeo   *VimeoService
	now     func() time.Time
}

type AdminDashboardStats struct {
	TotalUsers          int64   `json:"total_users"`
	NewUsersThisMonth   int64   `json:"new_users_this_month"`
	RevenueThisMonth    int64   `json:"revenue_this_month"`
	RevenueLastMonth    int64   `json:"revenue_last_month"`
	RevenueGrowth       float64 `json:"revenue_growth"`
	OrdersThisMonth     int64   `json:"orders_this_month"`
	PendingOrders       int64   `json:"pending_orders"`
	ActiveEnrollments   int64   `json:"active_enrollments"`
	PendingReports      int64   `json:"pending_reports"`
	FailedWebhookEvents int64   `json:"failed_webhook_events"`
}

type CourseRequest struct {
	Title          string               `json:"title" validate:"required,max=255"`
	Slug           string               `json:"slug,omitempty" validate:"omitempty,slug,max=191"`
	Summary        string               `json:"summary" validate:"max=500"`
	Description    string               `json:"description"`
	Price          int64                `json:"price" validate:"min=0"`
	SalePrice      *int64               `json:"sale_price,omitempty" validate:"omitempty,min=0"`
	AccessDays     int                  `json:"access_days" validate:"min=0,max=3650"`
	ThumbnailURL   string               `json:"thumbnail_url" validate:"omitempty,max=500"`
	Status         models.PublishStatus `json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
	TeacherID      *uuid.UUID           `json:"teacher_id,omitempty"`
	ImwebProductNo string               `json:"imweb_product_no" validate:"max=100"`
	TextbookIDs    []uuid.UUID          `json:"textbook_ids"`
}

type TextbookRequest struct {
	Title          string               `json:"title" validate:"required,max=255"`
	Slug           string               `json:"slug,omitempty" validate:"omitempty,slug,max=191"`
	Author         string               `json:"author" validate:"max=255"`
	Description    string               `json:"description"`
	Price          int64                `json:"price" validate:"min=0"`
	SalePrice      *int64               `json:"sale_price,omitempty" validate:"omitempty,min=0"`
	AccessDays     int                  `json:"access_days" validate:"min=0,max=3650"`
	CoverURL       string               `json:"cover_url" validate:"omitempty,max=500"`
	Status         models.PublishStatus `json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
	ImwebProductNo string               `json:"imweb_product_no" validate:"max=100"`
}

type TeacherRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Headline     string `json:"headline" validate:"max=255"`
	Bio          string `json:"bio"`
	ProfileImage string `json:"profile_image" validate:"omitempty,max=500"`
}

type LessonRequest struct {
	Title           string `json:"title" validate:"max=255"`
	Description     string `json:"description"`
	VimeoURL        string `json:"vimeo_url" validate:"omitempty,url,max=500"`
	VideoID         string `json:"video_id" validate:"max=100"`
	DurationSeconds int    `json:"duration_seconds" validate:"min=0"`
	ThumbnailURL    string `json:"thumbnail_url" validate:"omitempty,max=500"`
	IsPreview       bool   `json:"is_preview"`
	Published       *bool  `json:"published,omitempty"`
}

type ReorderRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

type MoveLessonRequest struct {
	Position int `json:"position" validate:"required,min=1"`
}

type PositionUpdate struct {
	ID       uuid.UUID `json:"id" validate:"required"`
	Position int       `json:"position" validate:"min=1"`
}

type BulkPositionRequest struct {
	Items []PositionUpdate `json:"items" validate:"required,min=1,dive"`
}

type AttachmentRequest struct {
	CourseID *uuid.UUID
	LessonID *uuid.UUID
}

func NewAdminService(db *gorm.DB, config *config.Config, storage *StorageService, vimeo *VimeoService) *AdminService {
	return &AdminService{
		db:      db,
		config:  config,
		storage: storage,
		vimeo:   vimeo,
		now:     time.Now,
	}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats() (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}
	current := now.With(s.now())
	monthStart := current.BeginningOfMonth()
	lastMonthStart := now.With(monthStart.AddDate(0, 0, -1)).BeginningOfMonth()

	paid := []models.OrderStatus{
		models.OrderStatusCompleted,
		models.OrderStatusPartiallyRefunded,
		models.OrderStatusRefunded,
	}

	queries := []struct {
		name  string
		query *gorm.DB
		dest  interface{}
	}{
		{"total users", s.db.Model(&models.User{}).Select("COUNT(*)"), &stats.TotalUsers},
		{"new users", s.db.Model(&models.User{}).Select("COUNT(*)").Where("created_at >= ?", monthStart), &stats.NewUsersThisMonth},
		{"revenue", s.db.Model(&models.Order{}).
			Select("COALESCE(SUM(amount - refunded_amount), 0)").
			Where("status IN ? AND paid_at >= ?", paid, monthStart), &stats.RevenueThisMonth},
		{"last month revenue", s.db.Model(&models.Order{}).
			Select("COALESCE(SUM(amount - refunded_amount), 0)").
			Where("status IN ? AND paid_at >= ? AND paid_at < ?", paid, lastMonthStart, monthStart), &stats.RevenueLastMonth},
		{"orders", s.db.Model(&models.Order{}).Select("COUNT(*)").
			Where("status IN ? AND paid_at >= ?", paid, monthStart), &stats.OrdersThisMonth},
		{"pending orders", s.db.Model(&models.Order{}).Select("COUNT(*)").
			Where("status = ?", models.OrderStatusPending), &stats.PendingOrders},
		{"enrollments", s.db.Model(&models.Enrollment{}).Select("COUNT(*)").
			Where("status = ? AND end_at > ?", models.GrantStatusActive, s.now()), &stats.ActiveEnrollments},
		{"reports", s.db.Model(&models.ReviewReport{}).Select("COUNT(*)").
			Where("status = ?", models.ReportStatusPending), &stats.PendingReports},
		{"webhook events", s.db.Model(&models.OrderEvent{}).Select("COUNT(*)").
			Where("status = ?", models.EventStatusFailed), &stats.FailedWebhookEvents},
	}
	for _, q := range queries {
		if err := q.query.Scan(q.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to compute %s: %w", q.name, err)
		}
	}

	if stats.RevenueLastMonth > 0 {
		stats.RevenueGrowth = float64(stats.RevenueThisMonth-stats.RevenueLastMonth) / float64(stats.RevenueLastMonth) * 100
	}

	return stats, nil
}

func (s *AdminService) ListAuditLogs(params utils.PaginationParams, userID *uuid.UUID) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if params.Search != "" {
		query = query.Where("LOWER(action) LIKE ?", "%"+strings.ToLower(params.Search)+"%")
	}

	var logs []models.AuditLog
	total, err := utils.Paginate(query, params, []string{"created_at", "action", "status_code"}, &logs)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}

// Courses

func (s *AdminService) ListCourses(params utils.PaginationParams) ([]models.Course, int64, error) {
	query := s.db.Model(&models.Course{}).Preload("Teacher")
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}
	if params.Search != "" {
		term := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(slug) LIKE ?", term, term)
	}

	var courses []models.Course
	total, err := utils.Paginate(query, params, []string{"position", "created_at", "title", "price", "status"}, &courses)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch courses: %w", err)
	}
	return courses, total, nil
}

func (s *AdminService) GetCourse(id uuid.UUID) (*models.Course, error) {
	var course models.Course
	err := s.db.Preload("Teacher").
		Preload("Textbooks").
		Preload("Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&course, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "course")
	}
	return &course, nil
}

func (s *AdminService) CreateCourse(req *CourseRequest) (*models.Course, error) {
	if err := checkSalePrice(req.Price, req.SalePrice); err != nil {
		return nil, err
	}

	course := &models.Course{}
	applyCourseRequest(course, req)

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, &models.Course{}, req.Slug, req.Title, "course", uuid.Nil)
		if err != nil {
			return err
		}
		course.Slug = slug
		if course.Position, err = nextPosition(tx, &models.Course{}, ""); err != nil {
			return err
		}
		if err := s.checkTeacher(tx, req.TeacherID); err != nil {
			return err
		}
		if err := tx.Create(course).Error; err != nil {
			return fmt.Errorf("failed to create course: %w", err)
		}
		return s.bundleTextbooks(tx, course, req.TextbookIDs)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"course_id": course.ID, "slug": course.Slug}).Info("Course created")
	return course, nil
}

func (s *AdminService) UpdateCourse(id uuid.UUID, req *CourseRequest) (*models.Course, error) {
	if err := checkSalePrice(req.Price, req.SalePrice); err != nil {
		return nil, err
	}

	var course models.Course
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&course, "id = ?", id).Error; err != nil {
			return notFound(err, "course")
		}
		if err := s.checkTeacher(tx, req.TeacherID); err != nil {
			return err
		}

		applyCourseRequest(&course, req)
		if req.Slug != "" && req.Slug != course.Slug {
			slug, err := uniqueSlug(tx, &models.Course{}, req.Slug, req.Title, "course", course.ID)
			if err != nil {
				return err
			}
			course.Slug = slug
		}

		if err := tx.Omit("Teacher", "Lessons", "Textbooks").Save(&course).Error; err != nil {
			return fmt.Errorf("failed to update course: %w", err)
		}
		return s.bundleTextbooks(tx, &course, req.TextbookIDs)
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// DeleteCourse soft deletes the course and frees its slug for reuse.
func (s *AdminService) DeleteCourse(id uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var course models.Course
		if err := tx.First(&course, "id = ?", id).Error; err != nil {
			return notFound(err, "course")
		}
		if err := tx.Model(&course).Update("slug", retiredSlug(course.Slug, course.ID)).Error; err != nil {
			return err
		}
		if err := tx.Delete(&course).Error; err != nil {
			return fmt.Errorf("failed to delete course: %w", err)
		}
		return renumber(tx, &models.Course{}, "")
	})
}

func (s *AdminService) ReorderCourses(ids []uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return reorderExact(tx, &models.Course{}, "", ids)
	})
}

// Lessons

func (s *AdminService) ListLessons(courseID uuid.UUID) ([]models.Lesson, error) {
	var lessons []models.Lesson
	if err := s.db.Where("course_id = ?", courseID).Order("position ASC").Find(&lessons).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch lessons: %w", err)
	}
	return lessons, nil
}

// CreateLesson appends a lesson after the last one of the course. Metadata is pulled
// from Vimeo when a video is given; a failed lookup does not fail the request.
func (s *AdminService) CreateLesson(ctx context.Context, courseID uuid.UUID, req *LessonRequest) (*models.Lesson, error) {
	lesson := &models.Lesson{CourseID: courseID}
	applyLessonRequest(lesson, req)
	if lesson.Title == "" && lesson.VimeoURL == "" && lesson.VideoID == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var course models.Course
		if err := lockForUpdate(tx).First(&course, "id = ?", courseID).Error; err != nil {
			return notFound(err, "course")
		}

		position, err := nextPosition(tx, &models.Lesson{}, "course_id = ?", courseID)
		if err != nil {
			return err
		}
		lesson.Position = position
		if err := tx.Create(lesson).Error; err != nil {
			return fmt.Errorf("failed to create lesson: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncVideo(ctx, lesson)
	return lesson, nil
}

func (s *AdminService) UpdateLesson(ctx context.Context, id uuid.UUID, req *LessonRequest) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := s.db.First(&lesson, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "lesson")
	}

	videoChanged := req.VimeoURL != lesson.VimeoURL || (req.VideoID != "" && req.VideoID != lesson.VideoID)
	applyLessonRequest(&lesson, req)

	if err := s.db.Save(&lesson).Error; err != nil {
		return nil, fmt.Errorf("failed to update lesson: %w", err)
	}

	if videoChanged {
		s.syncVideo(ctx, &lesson)
	}
	return &lesson, nil
}

// DeleteLesson removes a lesson and closes the gap it leaves.
func (s *AdminService) DeleteLesson(id uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var lesson models.Lesson
		if err := tx.First(&lesson, "id = ?", id).Error; err != nil {
			return notFound(err, "lesson")
		}
		if err := lockForUpdate(tx).Select("id").First(&models.Course{}, "id = ?", lesson.CourseID).Error; err != nil {
			return notFound(err, "course")
		}
		if err := tx.Delete(&lesson).Error; err != nil {
			return fmt.Errorf("failed to delete lesson: %w", err)
		}
		return renumber(tx, &models.Lesson{}, "course_id = ?", lesson.CourseID)
	})
}

// ReorderLessons sets lesson order from ids, which must hold every lesson of the
// course exactly once.
func (s *AdminService) ReorderLessons(courseID uuid.UUID, ids []uuid.UUID) ([]models.Lesson, error) {
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Select("id").First(&models.Course{}, "id = ?", courseID).Error; err != nil {
			return notFound(err, "course")
		}
		return reorderExact(tx, &models.Lesson{}, "course_id = ?", ids, courseID)
	})
	if err != nil {
		return nil, err
	}
	return s.ListLessons(courseID)
}

// MoveLesson puts a lesson at position, shifting the lessons in between by one.
func (s *AdminService) MoveLesson(id uuid.UUID, position int) ([]models.Lesson, error) {
	var courseID uuid.UUID
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var lesson models.Lesson
		if err := tx.First(&lesson, "id = ?", id).Error; err != nil {
			return notFound(err, "lesson")
		}
		courseID = lesson.CourseID
		if err := lockForUpdate(tx).Select("id").First(&models.Course{}, "id = ?", courseID).Error; err != nil {
			return notFound(err, "course")
		}

		// Start from a contiguous 1..n sequence so the shift below stays exact.
		if err := renumber(tx, &models.Lesson{}, "course_id = ?", courseID); err != nil {
			return err
		}
		if err := tx.First(&lesson, "id = ?", id).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&count).Error; err != nil {
			return err
		}
		target := position
		if target > int(count) {
			target = int(count)
		}
		current := lesson.Position
		if target == current {
			return nil
		}

		shift := tx.Model(&models.Lesson{}).Where("course_id = ? AND id <> ?", courseID, id)
		if target < current {
			shift = shift.Where("position >= ? AND position < ?", target, current).
				UpdateColumn("position", gorm.Expr("position + 1"))
		} else {
			shift = shift.Where("position > ? AND position <= ?", current, target).
				UpdateColumn("position", gorm.Expr("position - 1"))
		}
		if shift.Error != nil {
			return fmt.Errorf("failed to shift lessons: %w", shift.Error)
		}

		return tx.Model(&lesson).UpdateColumn("position", target).Error
	})
	if err != nil {
		return nil, err
	}
	return s.ListLessons(courseID)
}

func (s *AdminService) syncVideo(ctx context.Context, lesson *models.Lesson) {
	if s.vimeo == nil || videoPageURL(lesson) == "" {
		return
	}
	synced, err := s.vimeo.SyncLesson(ctx, lesson.ID)
	if err != nil {
		logrus.WithError(err).WithField("lesson_id", lesson.ID).Warn("Vimeo metadata lookup failed")
		return
	}
	*lesson = *synced
}

// Textbooks

func (s *AdminService) ListTextbooks(params utils.PaginationParams) ([]models.Textbook, int64, error) {
	query := s.db.Model(&models.Textbook{})
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}
	if params.Search != "" {
		term := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", term, term)
	}

	var textbooks []models.Textbook
	total, err := utils.Paginate(query, params, []string{"position", "created_at", "title", "price", "status"}, &textbooks)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch textbooks: %w", err)
	}
	return textbooks, total, nil
}

func (s *AdminService) CreateTextbook(req *TextbookRequest) (*models.Textbook, error) {
	if err := checkSalePrice(req.Price, req.SalePrice); err != nil {
		return nil, err
	}

	textbook := &models.Textbook{}
	applyTextbookRequest(textbook, req)

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, &models.Textbook{}, req.Slug, req.Title, "textbook", uuid.Nil)
		if err != nil {
			return err
		}
		textbook.Slug = slug
		if textbook.Position, err = nextPosition(tx, &models.Textbook{}, ""); err != nil {
			return err
		}
		if err := tx.Create(textbook).Error; err != nil {
			return fmt.Errorf("failed to create textbook: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return textbook, nil
}

func (s *AdminService) UpdateTextbook(id uuid.UUID, req *TextbookRequest) (*models.Textbook, error) {
	if err := checkSalePrice(req.Price, req.SalePrice); err != nil {
		return nil, err
	}

	var textbook models.Textbook
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&textbook, "id = ?", id).Error; err != nil {
			return notFound(err, "textbook")
		}
		applyTextbookRequest(&textbook, req)
		if req.Slug != "" && req.Slug != textbook.Slug {
			slug, err := uniqueSlug(tx, &models.Textbook{}, req.Slug, req.Title, "textbook", textbook.ID)
			if err != nil {
				return err
			}
			textbook.Slug = slug
		}
		if err := tx.Save(&textbook).Error; err != nil {
			return fmt.Errorf("failed to update textbook: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &textbook, nil
}

func (s *AdminService) DeleteTextbook(id uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var textbook models.Textbook
		if err := tx.First(&textbook, "id = ?", id).Error; err != nil {
			return notFound(err, "textbook")
		}
		if err := tx.Exec("DELETE FROM course_textbooks WHERE textbook_id = ?", textbook.ID).Error; err != nil {
			return fmt.Errorf("failed to unbundle textbook: %w", err)
		}
		if err := tx.Model(&textbook).Update("slug", retiredSlug(textbook.Slug, textbook.ID)).Error; err != nil {
			return err
		}
		if err := tx.Delete(&textbook).Error; err != nil {
			return fmt.Errorf("failed to delete textbook: %w", err)
		}
		return renumber(tx, &models.Textbook{}, "")
	})
}

// BulkUpdatePositions applies the requested positions, then renumbers all textbooks
// 1..n. On a tie the textbook named in the request goes first.
func (s *AdminService) BulkUpdatePositions(items []PositionUpdate) ([]models.Textbook, error) {
	requested := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if _, dup := requested[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidReorder, item.ID)
		}
		requested[item.ID] = item.Position
	}

	var textbooks []models.Textbook
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Order("position ASC, created_at ASC").Find(&textbooks).Error; err != nil {
			return fmt.Errorf("failed to fetch textbooks: %w", err)
		}

		found := 0
		for i := range textbooks {
			if pos, ok := requested[textbooks[i].ID]; ok {
				textbooks[i].Position = pos
				found++
			}
		}
		if found != len(requested) {
			return fmt.Errorf("%w: unknown textbook id", ErrInvalidReorder)
		}

		sort.SliceStable(textbooks, func(i, j int) bool {
			if textbooks[i].Position != textbooks[j].Position {
				return textbooks[i].Position < textbooks[j].Position
			}
			_, iReq := requested[textbooks[i].ID]
			_, jReq := requested[textbooks[j].ID]
			return iReq && !jReq
		})

		for i := range textbooks {
			textbooks[i].Position = i + 1
			if err := tx.Model(&models.Textbook{}).Where("id = ?", textbooks[i].ID).
				UpdateColumn("position", i+1).Error; err != nil {
				return fmt.Errorf("failed to update position: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return textbooks, nil
}

// UploadTextbookFile stores the downloadable file of a textbook in private storage.
func (s *AdminService) UploadTextbookFile(id uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.Textbook, error) {
	var textbook models.Textbook
	if err := s.db.First(&textbook, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "textbook")
	}

	result, err := s.storage.UploadFile(file, header, s.storage.GetDefaultUploadOptions("textbooks"))
	if err != nil {
		return nil, err
	}

	previous := textbook.FileKey
	if err := s.db.Model(&textbook).Update("file_key", result.Key).Error; err != nil {
		return nil, fmt.Errorf("failed to save textbook file: %w", err)
	}
	textbook.FileKey = result.Key

	if previous != "" && previous != result.Key {
		if err := s.storage.DeleteFile(previous); err != nil {
			logrus.WithError(err).WithField("key", previous).Warn("Failed to delete replaced textbook file")
		}
	}
	return &textbook, nil
}

// UploadImage stores a public image (thumbnail, cover, profile) and returns its URL.
func (s *AdminService) UploadImage(file multipart.File, header *multipart.FileHeader) (*UploadResult, error) {
	return s.storage.UploadFile(file, header, s.storage.GetDefaultUploadOptions("images"))
}

// Teachers

func (s *AdminService) ListTeachers() ([]models.Teacher, error) {
	var teachers []models.Teacher
	if err := s.db.Order("position ASC, name ASC").Find(&teachers).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch teachers: %w", err)
	}
	return teachers, nil
}

func (s *AdminService) CreateTeacher(req *TeacherRequest) (*models.Teacher, error) {
	teacher := &models.Teacher{
		Name:         strings.TrimSpace(req.Name),
		Headline:     req.Headline,
		Bio:          req.Bio,
		ProfileImage: req.ProfileImage,
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		position, err := nextPosition(tx, &models.Teacher{}, "")
		if err != nil {
			return err
		}
		teacher.Position = position
		return tx.Create(teacher).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create teacher: %w", err)
	}
	return teacher, nil
}

func (s *AdminService) UpdateTeacher(id uuid.UUID, req *TeacherRequest) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := s.db.First(&teacher, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "teacher")
	}

	teacher.Name = strings.TrimSpace(req.Name)
	teacher.Headline = req.Headline
	teacher.Bio = req.Bio
	teacher.ProfileImage = req.ProfileImage

	if err := s.db.Save(&teacher).Error; err != nil {
		return nil, fmt.Errorf("failed to update teacher: %w", err)
	}
	return &teacher, nil
}

// DeleteTeacher removes a teacher; their courses stay, without a teacher.
func (s *AdminService) DeleteTeacher(id uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var teacher models.Teacher
		if err := tx.First(&teacher, "id = ?", id).Error; err != nil {
			return notFound(err, "teacher")
		}
		if err := tx.Model(&models.Course{}).Where("teacher_id = ?", id).Update("teacher_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&teacher).Error; err != nil {
			return fmt.Errorf("failed to delete teacher: %w", err)
		}
		return renumber(tx, &models.Teacher{}, "")
	})
}

func (s *AdminService) ReorderTeachers(ids []uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return reorderExact(tx, &models.Teacher{}, "", ids)
	})
}

// Attachments

func (s *AdminService) UploadAttachment(uploaderID uuid.UUID, target AttachmentRequest, file multipart.File, header *multipart.FileHeader) (*models.Attachment, error) {
	courseID, err := s.attachmentCourse(target)
	if err != nil {
		return nil, err
	}

	result, err := s.storage.UploadFile(file, header, s.storage.GetDefaultUploadOptions("attachments"))
	if err != nil {
		return nil, err
	}

	attachment := &models.Attachment{
		CourseID:   &courseID,
		LessonID:   target.LessonID,
		FileName:   header.Filename,
		StorageKey: result.Key,
		Size:       result.Size,
		MimeType:   result.MimeType,
		UploadedBy: uploaderID,
	}
	if err := s.db.Create(attachment).Error; err != nil {
		if delErr := s.storage.DeleteFile(result.Key); delErr != nil {
			logrus.WithError(delErr).WithField("key", result.Key).Warn("Failed to clean up orphaned upload")
		}
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}
	return attachment, nil
}

func (s *AdminService) ListAttachments(courseID uuid.UUID) ([]models.Attachment, error) {
	var attachments []models.Attachment
	if err := s.db.Where("course_id = ?", courseID).Order("created_at ASC").Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch attachments: %w", err)
	}
	return attachments, nil
}

func (s *AdminService) DeleteAttachment(id uuid.UUID) error {
	var attachment models.Attachment
	if err := s.db.First(&attachment, "id = ?", id).Error; err != nil {
		return notFound(err, "attachment")
	}

	if err := s.storage.DeleteFile(attachment.StorageKey); err != nil {
		logrus.WithError(err).WithField("key", attachment.StorageKey).Warn("Failed to delete attachment object")
	}
	if err := s.db.Delete(&attachment).Error; err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

// attachmentCourse resolves the course an attachment belongs to; a lesson id implies
// its course.
func (s *AdminService) attachmentCourse(target AttachmentRequest) (uuid.UUID, error) {
	if target.LessonID != nil {
		var lesson models.Lesson
		if err := s.db.Select("id", "course_id").First(&lesson, "id = ?", *target.LessonID).Error; err != nil {
			return uuid.Nil, notFound(err, "lesson")
		}
		if target.CourseID != nil && *target.CourseID != lesson.CourseID {
			return uuid.Nil, fmt.Errorf("%w: lesson does not belong to course", ErrInvalidRequest)
		}
		return lesson.CourseID, nil
	}
	if target.CourseID == nil {
		return uuid.Nil, fmt.Errorf("%w: course_id or lesson_id is required", ErrInvalidRequest)
	}
	if err := s.db.Select("id").First(&models.Course{}, "id = ?", *target.CourseID).Error; err != nil {
		return uuid.Nil, notFound(err, "course")
	}
	return *target.CourseID, nil
}

// Helper methods

func (s *AdminService) checkTeacher(tx *gorm.DB, teacherID *uuid.UUID) error {
	if teacherID == nil {
		return nil
	}
	if err := tx.Select("id").First(&models.Teacher{}, "id = ?", *teacherID).Error; err != nil {
		return notFound(err, "teacher")
	}
	return nil
}

// bundleTextbooks replaces the textbooks sold with the course. A nil list leaves the
// bundle untouched.
func (s *AdminService) bundleTextbooks(tx *gorm.DB, course *models.Course, ids []uuid.UUID) error {
	if ids == nil {
		return nil
	}

	var textbooks []models.Textbook
	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Find(&textbooks).Error; err != nil {
			return fmt.Errorf("failed to fetch textbooks: %w", err)
		}
		if len(textbooks) != len(uniqueIDs(ids)) {
			return fmt.Errorf("textbook %w", ErrNotFound)
		}
	}

	if err := tx.Model(course).Association("Textbooks").Replace(textbooks); err != nil {
		return fmt.Errorf("failed to bundle textbooks: %w", err)
	}
	course.Textbooks = textbooks
	return nil
}

func applyCourseRequest(course *models.Course, req *CourseRequest) {
	course.Title = strings.TrimSpace(req.Title)
	course.Summary = req.Summary
	course.Description = req.Description
	course.Price = req.Price
	course.SalePrice = req.SalePrice
	course.AccessDays = req.AccessDays
	course.ThumbnailURL = req.ThumbnailURL
	course.TeacherID = req.TeacherID
	course.ImwebProductNo = strings.TrimSpace(req.ImwebProductNo)
	if req.Status != "" {
		course.Status = req.Status
	} else if course.ID == uuid.Nil {
		course.Status = models.PublishStatusDraft
	}
}

func applyTextbookRequest(textbook *models.Textbook, req *TextbookRequest) {
	textbook.Title = strings.TrimSpace(req.Title)
	textbook.Author = req.Author
	textbook.Description = req.Description
	textbook.Price = req.Price
	textbook.SalePrice = req.SalePrice
	textbook.AccessDays = req.AccessDays
	textbook.CoverURL = req.CoverURL
	textbook.ImwebProductNo = strings.TrimSpace(req.ImwebProductNo)
	if req.Status != "" {
		textbook.Status = req.Status
	} else if textbook.ID == uuid.Nil {
		textbook.Status = models.PublishStatusDraft
	}
}

// applyLessonRequest copies req onto lesson. Empty title, video id, duration and
// thumbnail keep the stored values so an update does not wipe synced metadata.
func applyLessonRequest(lesson *models.Lesson, req *LessonRequest) {
	if title := strings.TrimSpace(req.Title); title != "" {
		lesson.Title = title
	}
	if videoID := strings.TrimSpace(req.VideoID); videoID != "" {
		lesson.VideoID = videoID
	}
	if req.DurationSeconds > 0 {
		lesson.DurationSeconds = req.DurationSeconds
	}
	if req.ThumbnailURL != "" {
		lesson.ThumbnailURL = req.ThumbnailURL
	}
	lesson.Description = req.Description
	lesson.VimeoURL = strings.TrimSpace(req.VimeoURL)
	lesson.IsPreview = req.IsPreview
	if req.Published != nil {
		lesson.Published = *req.Published
	} else if lesson.ID == uuid.Nil {
		lesson.Published = true
	}
}

func checkSalePrice(price int64, salePrice *int64) error {
	if salePrice != nil && *salePrice > price {
		return fmt.Errorf("%w: sale price exceeds price", ErrInvalidRequest)
	}
	return nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its ASCII words with hyphens.
func Slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// uniqueSlug returns the requested slug, or one derived from title, and fails with
// ErrConflict when an explicit slug is taken. Derived slugs get a suffix instead.
func uniqueSlug(tx *gorm.DB, model interface{}, requested, title, fallback string, selfID uuid.UUID) (string, error) {
	taken := func(slug string) (bool, error) {
		var count int64
		err := tx.Unscoped().Model(model).Where("slug = ? AND id <> ?", slug, selfID).Count(&count).Error
		return count > 0, err
	}

	if requested != "" {
		exists, err := taken(requested)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("%w: slug %q is already in use", ErrConflict, requested)
		}
		return requested, nil
	}

	base := Slugify(title)
	if base == "" {
		base = fallback
	}
	if len(base) > 160 {
		base = strings.Trim(base[:160], "-")
	}
	slug := base
	for attempt := 0; attempt < 5; attempt++ {
		exists, err := taken(slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	}
	return "", fmt.Errorf("%w: could not derive a free slug", ErrConflict)
}

func retiredSlug(slug string, id uuid.UUID) string {
	suffix := "-deleted-" + strings.ReplaceAll(id.String(), "-", "")[:8]
	if len(slug)+len(suffix) > 191 {
		slug = slug[:191-len(suffix)]
	}
	return slug + suffix
}

// nextPosition is one past the highest position in scope.
func nextPosition(tx *gorm.DB, model interface{}, scope string, args ...interface{}) (int, error) {
	query := tx.Model(model)
	if scope != "" {
		query = query.Where(scope, args...)
	}

	var highest int
	if err := query.Select("COALESCE(MAX(position), 0)").Scan(&highest).Error; err != nil {
		return 0, fmt.Errorf("failed to read positions: %w", err)
	}
	return highest + 1, nil
}

type positionRow struct {
	ID       uuid.UUID
	Position int
}

// renumber rewrites positions in scope to 1..n, keeping the current order.
func renumber(tx *gorm.DB, model interface{}, scope string, args ...interface{}) error {
	query := tx.Model(model)
	if scope != "" {
		query = query.Where(scope, args...)
	}

	var rows []positionRow
	if err := query.Select("id", "position").Order("position ASC, created_at ASC").Scan(&rows).Error; err != nil {
		return fmt.Errorf("failed to read positions: %w", err)
	}
	for i, row := range rows {
		if row.Position == i+1 {
			continue
		}
		if err := tx.Model(model).Where("id = ?", row.ID).UpdateColumn("position", i+1).Error; err != nil {
			return fmt.Errorf("failed to renumber: %w", err)
		}
	}
	return nil
}

// reorderExact assigns positions 1..n following ids, which must be exactly the set of
// rows in scope.
func reorderExact(tx *gorm.DB, model interface{}, scope string, ids []uuid.UUID, args ...interface{}) error {
	query := tx.Model(model)
	if scope != "" {
		query = query.Where(scope, args...)
	}

	var current []uuid.UUID
	if err := query.Pluck("id", &current).Error; err != nil {
		return fmt.Errorf("failed to read items: %w", err)
	}

	if len(ids) != len(current) {
		return fmt.Errorf("%w: expected %d ids, got %d", ErrInvalidReorder, len(current), len(ids))
	}
	known := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		known[id] = false
	}
	for _, id := range ids {
		seen, ok := known[id]
		if !ok {
			return fmt.Errorf("%w: unknown id %s", ErrInvalidReorder, id)
		}
		if seen {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidReorder, id)
		}
		known[id] = true
	}

	for i, id := range ids {
		if err := tx.Model(model).Where("id = ?", id).UpdateColumn("position", i+1).Error; err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}
	}
	return nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
