package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/testutil"
)

func newLearningService(t *testing.T) (*LearningService, *gorm.DB) {
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	storage, err := NewStorageService(cfg)
	require.NoError(t, err)
	return NewLearningService(db, cfg, storage), db
}

func TestLessonAccessRequiresEnrollment(t *testing.T) {
	service, db := newLearningService(t)
	student := testutil.CreateUser(t, db, "student@example.com")
	course := testutil.CreateCourse(t, db, "history", 20000)
	lessons := testutil.CreateLessons(t, db, course.ID, 3)

	_, err := service.LessonAccess(student.ID, false, lessons[0].ID)
	assert.ErrorIs(t, err, ErrEnrollmentNeeded)

	require.NoError(t, db.Model(&lessons[0]).Update("is_preview", true).Error)
	preview, err := service.LessonAccess(student.ID, false, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, lessons[0].VideoID, preview.VideoID)

	admin := testutil.CreateAdmin(t, db, "admin@example.com")
	_, err = service.LessonAccess(admin.ID, true, lessons[1].ID)
	assert.NoError(t, err)

	testutil.Enroll(t, db, student.ID, course.ID)
	playback, err := service.LessonAccess(student.ID, false, lessons[1].ID)
	require.NoError(t, err)
	require.NotNil(t, playback.PrevLessonID)
	require.NotNil(t, playback.NextLessonID)
	assert.Equal(t, lessons[0].ID, *playback.PrevLessonID)
	assert.Equal(t, lessons[2].ID, *playback.NextLessonID)
}

func TestLessonAccessExpiredEnrollment(t *testing.T) {
	service, db := newLearningService(t)
	student := testutil.CreateUser(t, db, "student@example.com")
	course := testutil.CreateCourse(t, db, "art", 20000)
	lessons := testutil.CreateLessons(t, db, course.ID, 1)
	enrollment := testutil.Enroll(t, db, student.ID, course.ID)
	require.NoError(t, db.Model(enrollment).Update("end_at", time.Now().Add(-time.Minute)).Error)

	_, err := service.LessonAccess(student.ID, false, lessons[0].ID)
	assert.ErrorIs(t, err, ErrEnrollmentNeeded)
}

func TestSaveProgressMarksCompletion(t *testing.T) {
	service, db := newLearningService(t)
	student := testutil.CreateUser(t, db, "student@example.com")
	course := testutil.CreateCourse(t, db, "music", 20000)
	lessons := testutil.CreateLessons(t, db, course.ID, 2)
	testutil.Enroll(t, db, student.ID, course.ID)

	progress, err := service.SaveProgress(student.ID, false, lessons[0].ID, &SaveProgressRequest{Position: 300})
	require.NoError(t, err)
	assert.False(t, progress.Completed)
	assert.Equal(t, 600, progress.Duration)
	assert.Equal(t, 300, progress.WatchedSeconds)

	progress, err = service.SaveProgress(student.ID, false, lessons[0].ID, &SaveProgressRequest{Position: 9999, Duration: 600})
	require.NoError(t, err)
	assert.True(t, progress.Completed)
	assert.Equal(t, 600, progress.LastPosition)
	require.NotNil(t, progress.CompletedAt)

	// Seeking back keeps the lesson completed.
	progress, err = service.SaveProgress(student.ID, false, lessons[0].ID, &SaveProgressRequest{Position: 10})
	require.NoError(t, err)
	assert.True(t, progress.Completed)
	assert.Equal(t, 10, progress.LastPosition)
	assert.Equal(t, 600, progress.WatchedSeconds)

	rows, err := service.CourseProgress(student.ID, course.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	dashboard, err := service.Dashboard(student.ID)
	require.NoError(t, err)
	require.Len(t, dashboard.Courses, 1)
	item := dashboard.Courses[0]
	assert.Equal(t, int64(2), item.TotalLessons)
	assert.Equal(t, int64(1), item.CompletedLessons)
	assert.Equal(t, 50, item.Percent)
	require.NotNil(t, item.LastLessonID)
	assert.Equal(t, lessons[0].ID, *item.LastLessonID)
}

func TestDashboardSeparatesExpiredAndRevoked(t *testing.T) {
	service, db := newLearningService(t)
	student := testutil.CreateUser(t, db, "student@example.com")
	active := testutil.CreateCourse(t, db, "active", 10000)
	expired := testutil.CreateCourse(t, db, "expired", 10000)
	revoked := testutil.CreateCourse(t, db, "revoked", 10000)
	textbook := testutil.CreateTextbook(t, db, "reader", 5000)

	testutil.Enroll(t, db, student.ID, active.ID)
	old := testutil.Enroll(t, db, student.ID, expired.ID)
	require.NoError(t, db.Model(old).Updates(map[string]interface{}{
		"end_at": time.Now().Add(-time.Hour),
		"status": models.GrantStatusExpired,
	}).Error)
	gone := testutil.Enroll(t, db, student.ID, revoked.ID)
	require.NoError(t, db.Model(gone).Update("status", models.GrantStatusRevoked).Error)
	testutil.Entitle(t, db, student.ID, textbook.ID)

	dashboard, err := service.Dashboard(student.ID)
	require.NoError(t, err)
	require.Len(t, dashboard.Courses, 1)
	assert.Equal(t, active.ID, dashboard.Courses[0].Enrollment.CourseID)
	assert.Equal(t, 30, dashboard.Courses[0].RemainingDays)
	require.Len(t, dashboard.Expired, 1)
	assert.Equal(t, expired.ID, dashboard.Expired[0].CourseID)
	require.Len(t, dashboard.Textbooks, 1)
	assert.Equal(t, textbook.ID, dashboard.Textbooks[0].Entitlement.TextbookID)
}

func TestDownloads(t *testing.T) {
	service, db := newLearningService(t)
	student := testutil.CreateUser(t, db, "student@example.com")
	course := testutil.CreateCourse(t, db, "science", 10000)
	lessons := testutil.CreateLessons(t, db, course.ID, 1)
	textbook := testutil.CreateTextbook(t, db, "lab-manual", 8000)

	attachment := &models.Attachment{LessonID: &lessons[0].ID, FileName: "slides.pdf", StorageKey: "attachments/slides.pdf"}
	require.NoError(t, db.Create(attachment).Error)

	_, err := service.TextbookDownload(student.ID, false, textbook.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = service.AttachmentDownload(student.ID, false, attachment.ID)
	assert.ErrorIs(t, err, ErrEnrollmentNeeded)

	testutil.Entitle(t, db, student.ID, textbook.ID)
	testutil.Enroll(t, db, student.ID, course.ID)

	link, err := service.TextbookDownload(student.ID, false, textbook.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/textbooks/lab-manual.pdf", link.URL)
	assert.Equal(t, textbook.Title, link.FileName)
	assert.True(t, link.ExpiresAt.After(time.Now()))

	link, err = service.AttachmentDownload(student.ID, false, attachment.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/attachments/slides.pdf", link.URL)

	attachments, err := service.CourseAttachments(student.ID, false, course.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, attachment.ID, attachments[0].ID)
}

func TestCompletionPercent(t *testing.T) {
	assert.Equal(t, 0, completionPercent(0, 0))
	assert.Equal(t, 33, completionPercent(1, 3))
	assert.Equal(t, 100, completionPercent(4, 3))
}
