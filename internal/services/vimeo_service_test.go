package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/testutil"
)

func oembedServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("url") {
		case "https://vimeo.com/1000":
			w.Write([]byte(`{"video_id":1000,"title":"Intro","duration":321,"thumbnail_url":"https://i.vimeocdn.com/1000.jpg"}`))
		case "https://vimeo.com/channels/staff/2000":
			w.Write([]byte(`{"video_id":2000,"title":"Staff pick","duration":90,"thumbnail_url":"https://i.vimeocdn.com/2000.jpg"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSyncLesson(t *testing.T) {
	db := testutil.NewDB(t)
	server := oembedServer(t)
	service := NewVimeoService(db, clients.NewVimeoClient(server.URL, 5*time.Second))

	course := testutil.CreateCourse(t, db, "go", 10000)
	lessons := testutil.CreateLessons(t, db, course.ID, 1)

	lesson, err := service.SyncLesson(context.Background(), lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 321, lesson.DurationSeconds)
	assert.Equal(t, "Lesson 1", lesson.Title)

	var stored models.Lesson
	require.NoError(t, db.First(&stored, "id = ?", lessons[0].ID).Error)
	assert.Equal(t, 321, stored.DurationSeconds)
	assert.Equal(t, "https://i.vimeocdn.com/1000.jpg", stored.ThumbnailURL)
}

func TestSyncLessonFromPageURL(t *testing.T) {
	db := testutil.NewDB(t)
	server := oembedServer(t)
	service := NewVimeoService(db, clients.NewVimeoClient(server.URL, 5*time.Second))

	course := testutil.CreateCourse(t, db, "go", 10000)
	lesson := &models.Lesson{CourseID: course.ID, Title: " ", VimeoURL: "https://vimeo.com/channels/staff/2000", Position: 1}
	require.NoError(t, db.Create(lesson).Error)

	synced, err := service.SyncLesson(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, "2000", synced.VideoID)
	assert.Equal(t, "Staff pick", synced.Title)

	empty := &models.Lesson{CourseID: course.ID, Title: "No video", Position: 2}
	require.NoError(t, db.Create(empty).Error)
	_, err = service.SyncLesson(context.Background(), empty.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSyncAllCountsFailures(t *testing.T) {
	db := testutil.NewDB(t)
	server := oembedServer(t)
	service := NewVimeoService(db, clients.NewVimeoClient(server.URL, 5*time.Second))

	course := testutil.CreateCourse(t, db, "go", 10000)
	testutil.CreateLessons(t, db, course.ID, 2)
	require.NoError(t, db.Create(&models.Lesson{CourseID: course.ID, Title: "Text only", Position: 3}).Error)

	synced, failed, err := service.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 1, failed)
}
