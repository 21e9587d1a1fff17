// internal/services/catalog_service.go
package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

// CatalogService serves the public storefront: published courses, textbooks and teachers.
type CatalogService struct {
	db  *gorm.DB
	now func() time.Time
}

type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

type CourseListItem struct {
	models.Course
	EffectivePrice int64         `json:"effective_price"`
	LessonCount    int64         `json:"lesson_count"`
	Rating         RatingSummary `json:"rating"`
}

type TextbookListItem struct {
	models.Textbook
	EffectivePrice int64         `json:"effective_price"`
	Rating         RatingSummary `json:"rating"`
}

// LessonView is a lesson as shown on the course page. VideoID is only filled for
// lessons the viewer may play.
type LessonView struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationSeconds int       `json:"duration_seconds"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	Position        int       `json:"position"`
	IsPreview       bool      `json:"is_preview"`
	VideoID         string    `json:"video_id,omitempty"`
	Locked          bool      `json:"locked"`
}

type CourseDetail struct {
	models.Course
	EffectivePrice int64              `json:"effective_price"`
	Lessons        []LessonView       `json:"lessons"`
	Rating         RatingSummary      `json:"rating"`
	Enrollment     *models.Enrollment `json:"enrollment,omitempty"`
	Enrolled       bool               `json:"enrolled"`
}

type TextbookDetail struct {
	models.Textbook
	EffectivePrice int64                       `json:"effective_price"`
	Rating         RatingSummary               `json:"rating"`
	Entitlement    *models.TextbookEntitlement `json:"entitlement,omitempty"`
	Owned          bool                        `json:"owned"`
}

// Viewer is the caller of a catalog request; UserID is nil for anonymous visitors.
type Viewer struct {
	UserID  *uuid.UUID
	IsAdmin bool
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db, now: time.Now}
}

func (s *CatalogService) ListCourses(params utils.PaginationParams, teacherID *uuid.UUID) ([]CourseListItem, int64, error) {
	query := s.db.Model(&models.Course{}).
		Preload("Teacher").
		Where("status = ?", models.PublishStatusPublished)

	if teacherID != nil {
		query = query.Where("teacher_id = ?", *teacherID)
	}
	if params.Search != "" {
		term := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(summary) LIKE ?", term, term)
	}
	if !sortRequested(params) {
		params.Sort, params.Order = "position", "asc"
	}

	var courses []models.Course
	total, err := utils.Paginate(query, params, []string{"position", "created_at", "price", "title"}, &courses)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch courses: %w", err)
	}

	ids := make([]uuid.UUID, len(courses))
	for i := range courses {
		ids[i] = courses[i].ID
	}
	ratings, err := s.ratings(models.ProductTypeCourse, ids)
	if err != nil {
		return nil, 0, err
	}
	lessonCounts, err := s.lessonCounts(ids)
	if err != nil {
		return nil, 0, err
	}

	items := make([]CourseListItem, len(courses))
	for i, course := range courses {
		items[i] = CourseListItem{
			Course:         course,
			EffectivePrice: course.EffectivePrice(),
			LessonCount:    lessonCounts[course.ID],
			Rating:         ratings[course.ID],
		}
	}
	return items, total, nil
}

// GetCourse loads a published course by id or slug.
func (s *CatalogService) GetCourse(idOrSlug string, viewer Viewer) (*CourseDetail, error) {
	var course models.Course
	query := s.db.Preload("Teacher").
		Preload("Textbooks", "status = ?", models.PublishStatusPublished)
	if !viewer.IsAdmin {
		query = query.Where("status = ?", models.PublishStatusPublished)
	}
	if err := whereIDOrSlug(query, idOrSlug).First(&course).Error; err != nil {
		return nil, notFound(err, "course")
	}

	var lessons []models.Lesson
	lessonQuery := s.db.Where("course_id = ?", course.ID)
	if !viewer.IsAdmin {
		lessonQuery = lessonQuery.Where("published = ?", true)
	}
	if err := lessonQuery.Order("position ASC").Find(&lessons).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch lessons: %w", err)
	}

	detail := &CourseDetail{
		Course:         course,
		EffectivePrice: course.EffectivePrice(),
	}

	canWatch := viewer.IsAdmin
	if viewer.UserID != nil {
		var enrollment models.Enrollment
		err := s.db.Where("user_id = ? AND course_id = ?", *viewer.UserID, course.ID).First(&enrollment).Error
		if err == nil {
			detail.Enrollment = &enrollment
			detail.Enrolled = enrollment.ActiveAt(s.now())
			canWatch = canWatch || detail.Enrolled
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to fetch enrollment: %w", err)
		}
	}

	detail.Lessons = make([]LessonView, len(lessons))
	for i, lesson := range lessons {
		view := LessonView{
			ID:              lesson.ID,
			Title:           lesson.Title,
			Description:     lesson.Description,
			DurationSeconds: lesson.DurationSeconds,
			ThumbnailURL:    lesson.ThumbnailURL,
			Position:        lesson.Position,
			IsPreview:       lesson.IsPreview,
			Locked:          !(canWatch || lesson.IsPreview),
		}
		if !view.Locked {
			view.VideoID = lesson.VideoID
		}
		detail.Lessons[i] = view
	}
	detail.Course.Lessons = nil

	ratings, err := s.ratings(models.ProductTypeCourse, []uuid.UUID{course.ID})
	if err != nil {
		return nil, err
	}
	detail.Rating = ratings[course.ID]

	return detail, nil
}

func (s *CatalogService) ListTextbooks(params utils.PaginationParams) ([]TextbookListItem, int64, error) {
	query := s.db.Model(&models.Textbook{}).Where("status = ?", models.PublishStatusPublished)

	if params.Search != "" {
		term := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", term, term)
	}
	if !sortRequested(params) {
		params.Sort, params.Order = "position", "asc"
	}

	var textbooks []models.Textbook
	total, err := utils.Paginate(query, params, []string{"position", "created_at", "price", "title"}, &textbooks)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch textbooks: %w", err)
	}

	ids := make([]uuid.UUID, len(textbooks))
	for i := range textbooks {
		ids[i] = textbooks[i].ID
	}
	ratings, err := s.ratings(models.ProductTypeTextbook, ids)
	if err != nil {
		return nil, 0, err
	}

	items := make([]TextbookListItem, len(textbooks))
	for i, textbook := range textbooks {
		items[i] = TextbookListItem{
			Textbook:       textbook,
			EffectivePrice: textbook.EffectivePrice(),
			Rating:         ratings[textbook.ID],
		}
	}
	return items, total, nil
}

func (s *CatalogService) GetTextbook(idOrSlug string, viewer Viewer) (*TextbookDetail, error) {
	var textbook models.Textbook
	query := s.db
	if !viewer.IsAdmin {
		query = query.Where("status = ?", models.PublishStatusPublished)
	}
	if err := whereIDOrSlug(query, idOrSlug).First(&textbook).Error; err != nil {
		return nil, notFound(err, "textbook")
	}

	detail := &TextbookDetail{
		Textbook:       textbook,
		EffectivePrice: textbook.EffectivePrice(),
	}

	if viewer.UserID != nil {
		var entitlement models.TextbookEntitlement
		err := s.db.Where("user_id = ? AND textbook_id = ?", *viewer.UserID, textbook.ID).First(&entitlement).Error
		if err == nil {
			detail.Entitlement = &entitlement
			detail.Owned = entitlement.ActiveAt(s.now())
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to fetch textbook entitlement: %w", err)
		}
	}

	ratings, err := s.ratings(models.ProductTypeTextbook, []uuid.UUID{textbook.ID})
	if err != nil {
		return nil, err
	}
	detail.Rating = ratings[textbook.ID]

	return detail, nil
}

func (s *CatalogService) ListTeachers() ([]models.Teacher, error) {
	var teachers []models.Teacher
	if err := s.db.Order("position ASC, name ASC").Find(&teachers).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch teachers: %w", err)
	}
	return teachers, nil
}

func (s *CatalogService) GetTeacher(id uuid.UUID) (map[string]interface{}, error) {
	var teacher models.Teacher
	if err := s.db.First(&teacher, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "teacher")
	}

	var courses []models.Course
	if err := s.db.Where("teacher_id = ? AND status = ?", id, models.PublishStatusPublished).
		Order("position ASC").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch courses: %w", err)
	}

	return map[string]interface{}{
		"teacher": teacher,
		"courses": courses,
	}, nil
}

type ratingRow struct {
	ProductID uuid.UUID
	Average   float64
	Count     int64
}

// ratings aggregates visible reviews per product.
func (s *CatalogService) ratings(productType models.ProductType, ids []uuid.UUID) (map[uuid.UUID]RatingSummary, error) {
	result := make(map[uuid.UUID]RatingSummary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []ratingRow
	if err := s.db.Model(&models.Review{}).
		Select("product_id, AVG(rating) AS average, COUNT(*) AS count").
		Where("product_type = ? AND status = ? AND product_id IN ?", productType, models.ReviewStatusVisible, ids).
		Group("product_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	for _, row := range rows {
		result[row.ProductID] = RatingSummary{Average: roundRating(row.Average), Count: row.Count}
	}
	return result, nil
}

type countRow struct {
	CourseID uuid.UUID
	Count    int64
}

func (s *CatalogService) lessonCounts(courseIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	result := make(map[uuid.UUID]int64, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}

	var rows []countRow
	if err := s.db.Model(&models.Lesson{}).
		Select("course_id, COUNT(*) AS count").
		Where("course_id IN ? AND published = ?", courseIDs, true).
		Group("course_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count lessons: %w", err)
	}
	for _, row := range rows {
		result[row.CourseID] = row.Count
	}
	return result, nil
}

func whereIDOrSlug(query *gorm.DB, idOrSlug string) *gorm.DB {
	if id, err := uuid.Parse(idOrSlug); err == nil {
		return query.Where("id = ?", id)
	}
	return query.Where("slug = ?", idOrSlug)
}

// sortRequested reports whether the caller chose an ordering other than the
// pagination default.
func sortRequested(params utils.PaginationParams) bool {
	return !(params.Sort == "" || (params.Sort == "created_at" && params.Order == "desc"))
}

func roundRating(v float64) float64 {
	return math.Round(v*10) / 10
}
