// internal/services/vimeo_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/models"
)

// VimeoService copies video metadata from Vimeo oEmbed onto lessons.
type VimeoService struct {
	db     *gorm.DB
	client *clients.VimeoClient
}

func NewVimeoService(db *gorm.DB, client *clients.VimeoClient) *VimeoService {
	return &VimeoService{db: db, client: client}
}

// SyncLesson refreshes duration, thumbnail and video id. The title is only filled
// when the lesson has none.
func (s *VimeoService) SyncLesson(ctx context.Context, lessonID uuid.UUID) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := s.db.First(&lesson, "id = ?", lessonID).Error; err != nil {
		return nil, notFound(err, "lesson")
	}
	if err := s.sync(ctx, &lesson); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// SyncAll refreshes every lesson that points at a video and reports how many
// succeeded and failed.
func (s *VimeoService) SyncAll(ctx context.Context) (int, int, error) {
	var lessons []models.Lesson
	if err := s.db.Where("vimeo_url <> '' OR video_id <> ''").Find(&lessons).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to fetch lessons: %w", err)
	}

	synced, failed := 0, 0
	for i := range lessons {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := s.sync(ctx, &lessons[i]); err != nil {
			failed++
			logrus.WithError(err).WithField("lesson_id", lessons[i].ID).Warn("Vimeo sync failed")
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (s *VimeoService) sync(ctx context.Context, lesson *models.Lesson) error {
	videoURL := videoPageURL(lesson)
	if videoURL == "" {
		return fmt.Errorf("%w: lesson has no video", ErrInvalidRequest)
	}

	meta, err := s.client.OEmbed(ctx, videoURL)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"duration_seconds": meta.Duration,
		"thumbnail_url":    meta.ThumbnailURL,
	}
	lesson.DurationSeconds = meta.Duration
	lesson.ThumbnailURL = meta.ThumbnailURL
	if id := meta.VideoIDString(); id != "" {
		lesson.VideoID = id
		updates["video_id"] = id
	}
	if strings.TrimSpace(lesson.Title) == "" && meta.Title != "" {
		lesson.Title = meta.Title
		updates["title"] = meta.Title
	}

	if err := s.db.Model(lesson).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update lesson: %w", err)
	}
	return nil
}

func videoPageURL(lesson *models.Lesson) string {
	if lesson.VimeoURL != "" {
		return lesson.VimeoURL
	}
	if lesson.VideoID != "" {
		return "https://vimeo.com/" + lesson.VideoID
	}
	return ""
}
