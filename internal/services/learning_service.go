// internal/services/learning_service.go
package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
)

// LearningService backs the student's classroom: dashboard, playback and progress.
type LearningService struct {
	db      *gorm.DB
	config  *config.Config
	storage *StorageService
	now     func() time.Time
}

type DashboardCourse struct {
	Enrollment       models.Enrollment `json:"enrollment"`
	RemainingDays    int               `json:"remaining_days"`
	TotalLessons     int64             `json:"total_lessons"`
	CompletedLessons int64             `json:"completed_lessons"`
	Percent          int               `json:"percent"`
	LastLessonID     *uuid.UUID        `json:"last_lesson_id,omitempty"`
}

type DashboardTextbook struct {
	Entitlement   models.TextbookEntitlement `json:"entitlement"`
	RemainingDays int                        `json:"remaining_days"`
}

type Dashboard struct {
	Courses   []DashboardCourse   `json:"courses"`
	Textbooks []DashboardTextbook `json:"textbooks"`
	Expired   []models.Enrollment `json:"expired"`
}

type LessonPlayback struct {
	Lesson       models.Lesson `json:"lesson"`
	VideoID      string        `json:"video_id"`
	LastPosition int           `json:"last_position"`
	Completed    bool          `json:"completed"`
	PrevLessonID *uuid.UUID    `json:"prev_lesson_id,omitempty"`
	NextLessonID *uuid.UUID    `json:"next_lesson_id,omitempty"`
}

type SaveProgressRequest struct {
	Position int `json:"position" validate:"min=0"`
	Duration int `json:"duration" validate:"min=0"`
}

type DownloadLink struct {
	URL       string    `json:"url"`
	FileName  string    `json:"file_name,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewLearningService(db *gorm.DB, config *config.Config, storage *StorageService) *LearningService {
	return &LearningService{
		db:      db,
		config:  config,
		storage: storage,
		now:     time.Now,
	}
}

func (s *LearningService) Dashboard(userID uuid.UUID) (*Dashboard, error) {
	now := s.now()
	dashboard := &Dashboard{
		Courses:   []DashboardCourse{},
		Textbooks: []DashboardTextbook{},
		Expired:   []models.Enrollment{},
	}

	var enrollments []models.Enrollment
	if err := s.db.Preload("Course").Preload("Course.Teacher").
		Where("user_id = ?", userID).
		Order("end_at DESC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch enrollments: %w", err)
	}

	for _, enrollment := range enrollments {
		if !enrollment.ActiveAt(now) {
			if enrollment.Status != models.GrantStatusRevoked {
				dashboard.Expired = append(dashboard.Expired, enrollment)
			}
			continue
		}

		item := DashboardCourse{
			Enrollment:    enrollment,
			RemainingDays: remainingDays(enrollment.EndAt, now),
		}

		if err := s.db.Model(&models.Lesson{}).
			Where("course_id = ? AND published = ?", enrollment.CourseID, true).
			Count(&item.TotalLessons).Error; err != nil {
			return nil, fmt.Errorf("failed to count lessons: %w", err)
		}
		if err := s.db.Model(&models.LessonProgress{}).
			Joins("JOIN lessons ON lessons.id = lesson_progresses.lesson_id AND lessons.deleted_at IS NULL").
			Where("lesson_progresses.user_id = ? AND lesson_progresses.course_id = ? AND lesson_progresses.completed = ? AND lessons.published = ?",
				userID, enrollment.CourseID, true, true).
			Count(&item.CompletedLessons).Error; err != nil {
			return nil, fmt.Errorf("failed to count completed lessons: %w", err)
		}
		item.Percent = completionPercent(item.CompletedLessons, item.TotalLessons)

		var last models.LessonProgress
		if err := s.db.Where("user_id = ? AND course_id = ?", userID, enrollment.CourseID).
			Order("updated_at DESC").First(&last).Error; err == nil {
			item.LastLessonID = &last.LessonID
		}

		dashboard.Courses = append(dashboard.Courses, item)
	}

	var entitlements []models.TextbookEntitlement
	if err := s.db.Preload("Textbook").
		Where("user_id = ? AND status = ? AND end_at > ?", userID, models.GrantStatusActive, now).
		Order("end_at DESC").
		Find(&entitlements).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch textbook entitlements: %w", err)
	}
	for _, entitlement := range entitlements {
		if !entitlement.ActiveAt(now) {
			continue
		}
		dashboard.Textbooks = append(dashboard.Textbooks, DashboardTextbook{
			Entitlement:   entitlement,
			RemainingDays: remainingDays(entitlement.EndAt, now),
		})
	}

	return dashboard, nil
}

// LessonAccess returns playback data for a lesson the user may watch.
func (s *LearningService) LessonAccess(userID uuid.UUID, isAdmin bool, lessonID uuid.UUID) (*LessonPlayback, error) {
	lesson, err := s.authorizeLesson(userID, isAdmin, lessonID)
	if err != nil {
		return nil, err
	}

	playback := &LessonPlayback{
		Lesson:  *lesson,
		VideoID: lesson.VideoID,
	}

	var progress models.LessonProgress
	if err := s.db.Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&progress).Error; err == nil {
		playback.LastPosition = progress.LastPosition
		playback.Completed = progress.Completed
	}

	var prev, next models.Lesson
	if err := s.db.Select("id").
		Where("course_id = ? AND published = ? AND position < ?", lesson.CourseID, true, lesson.Position).
		Order("position DESC").First(&prev).Error; err == nil {
		playback.PrevLessonID = &prev.ID
	}
	if err := s.db.Select("id").
		Where("course_id = ? AND published = ? AND position > ?", lesson.CourseID, true, lesson.Position).
		Order("position ASC").First(&next).Error; err == nil {
		playback.NextLessonID = &next.ID
	}

	return playback, nil
}

// SaveProgress records the playback position. Completion is sticky once the watched
// time reaches the configured share of the duration.
func (s *LearningService) SaveProgress(userID uuid.UUID, isAdmin bool, lessonID uuid.UUID, req *SaveProgressRequest) (*models.LessonProgress, error) {
	lesson, err := s.authorizeLesson(userID, isAdmin, lessonID)
	if err != nil {
		return nil, err
	}

	duration := req.Duration
	if duration <= 0 {
		duration = lesson.DurationSeconds
	}
	position := req.Position
	if duration > 0 {
		position = clamp(position, 0, duration)
	} else if position < 0 {
		position = 0
	}

	var progress models.LessonProgress
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		err := lockForUpdate(tx).Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&progress).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			progress = models.LessonProgress{
				UserID:   userID,
				LessonID: lessonID,
				CourseID: lesson.CourseID,
			}
		case err != nil:
			return err
		}

		progress.LastPosition = position
		progress.Duration = duration
		if position > progress.WatchedSeconds {
			progress.WatchedSeconds = position
		}
		if !progress.Completed && duration > 0 &&
			float64(progress.WatchedSeconds) >= s.config.Learning.CompletionRatio*float64(duration) {
			now := s.now()
			progress.Completed = true
			progress.CompletedAt = &now
		}

		return tx.Save(&progress).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}
	return &progress, nil
}

// CourseProgress lists the user's progress rows for one course.
func (s *LearningService) CourseProgress(userID, courseID uuid.UUID) ([]models.LessonProgress, error) {
	var rows []models.LessonProgress
	if err := s.db.Where("user_id = ? AND course_id = ?", userID, courseID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch progress: %w", err)
	}
	return rows, nil
}

// TextbookDownload signs a short-lived link to the textbook file.
func (s *LearningService) TextbookDownload(userID uuid.UUID, isAdmin bool, textbookID uuid.UUID) (*DownloadLink, error) {
	var textbook models.Textbook
	if err := s.db.First(&textbook, "id = ?", textbookID).Error; err != nil {
		return nil, notFound(err, "textbook")
	}

	if !isAdmin {
		var entitlement models.TextbookEntitlement
		err := s.db.Where("user_id = ? AND textbook_id = ?", userID, textbookID).First(&entitlement).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to fetch textbook entitlement: %w", err)
		}
		if err != nil || !entitlement.ActiveAt(s.now()) {
			return nil, ErrForbidden
		}
	}

	if textbook.FileKey == "" {
		return nil, fmt.Errorf("textbook file %w", ErrNotFound)
	}

	return s.sign(textbook.FileKey, textbook.Title)
}

// CourseAttachments lists downloadable files of a course the user is enrolled in.
func (s *LearningService) CourseAttachments(userID uuid.UUID, isAdmin bool, courseID uuid.UUID) ([]models.Attachment, error) {
	if !isAdmin {
		if err := s.requireEnrollment(userID, courseID); err != nil {
			return nil, err
		}
	}

	var attachments []models.Attachment
	if err := s.db.Where("course_id = ? OR lesson_id IN (?)", courseID,
		s.db.Model(&models.Lesson{}).Select("id").Where("course_id = ?", courseID)).
		Order("created_at ASC").Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch attachments: %w", err)
	}
	return attachments, nil
}

// AttachmentDownload signs a link for one attachment of a course the user is enrolled in.
func (s *LearningService) AttachmentDownload(userID uuid.UUID, isAdmin bool, attachmentID uuid.UUID) (*DownloadLink, error) {
	var attachment models.Attachment
	if err := s.db.First(&attachment, "id = ?", attachmentID).Error; err != nil {
		return nil, notFound(err, "attachment")
	}

	courseID := attachment.CourseID
	if courseID == nil && attachment.LessonID != nil {
		var lesson models.Lesson
		if err := s.db.Select("course_id").First(&lesson, "id = ?", *attachment.LessonID).Error; err != nil {
			return nil, notFound(err, "lesson")
		}
		courseID = &lesson.CourseID
	}

	if !isAdmin {
		if courseID == nil {
			return nil, ErrForbidden
		}
		if err := s.requireEnrollment(userID, *courseID); err != nil {
			return nil, err
		}
	}

	return s.sign(attachment.StorageKey, attachment.FileName)
}

func (s *LearningService) authorizeLesson(userID uuid.UUID, isAdmin bool, lessonID uuid.UUID) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := s.db.First(&lesson, "id = ?", lessonID).Error; err != nil {
		return nil, notFound(err, "lesson")
	}

	if isAdmin {
		return &lesson, nil
	}
	if !lesson.Published {
		return nil, fmt.Errorf("lesson %w", ErrNotFound)
	}
	if lesson.IsPreview {
		return &lesson, nil
	}
	if err := s.requireEnrollment(userID, lesson.CourseID); err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (s *LearningService) requireEnrollment(userID, courseID uuid.UUID) error {
	var enrollment models.Enrollment
	err := s.db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&enrollment).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to fetch enrollment: %w", err)
	}
	if err != nil || !enrollment.ActiveAt(s.now()) {
		return ErrEnrollmentNeeded
	}
	return nil
}

func (s *LearningService) sign(key, name string) (*DownloadLink, error) {
	ttl := s.config.Learning.DownloadURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	url, err := s.storage.GeneratePresignedURL(key, ttl)
	if err != nil {
		return nil, err
	}
	return &DownloadLink{
		URL:       url,
		FileName:  name,
		ExpiresAt: s.now().Add(ttl),
	}, nil
}

func remainingDays(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

func completionPercent(completed, total int64) int {
	if total == 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(completed * 100 / total)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
