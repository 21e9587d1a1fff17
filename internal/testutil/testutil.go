// Package testutil provides an in-memory database and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

const (
	TestJWTSecret = "test-secret"
	TestPassword  = "Passw0rd!"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret(TestJWTSecret)
}

// NewDB opens a private in-memory SQLite database with every table migrated.
// One connection keeps the in-memory schema alive for the whole test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=off", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

// Config returns settings suited to tests: local storage under a temp dir,
// no outbound credentials.
func Config(t testing.TB) *config.Config {
	t.Helper()

	return &config.Config{
		Environment: "test",
		JWT: config.JWTConfig{
			SecretKey:       TestJWTSecret,
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
			CookieName:      "classroom_session",
		},
		AWS: config.AWSConfig{
			LocalUploadDir: t.TempDir(),
		},
		Payment: config.PaymentConfig{
			Provider:       "toss",
			Currency:       "KRW",
			TimeoutSeconds: 5,
		},
		Imweb: config.ImwebConfig{
			WebhookSecret: "imweb-secret",
			WebhookToken:  "imweb-token",
		},
		Email: config.EmailConfig{
			FromEmail: "noreply@classroom.test",
			FromName:  "Classroom",
		},
		I18n: config.I18nConfig{DefaultLocale: "ko"},
		Frontend: config.FrontendConfig{
			BaseURL:        "http://localhost:3000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Learning: config.LearningConfig{
			DefaultAccessDays:     365,
			CompletionRatio:       0.9,
			ReviewReportThreshold: 3,
			DownloadURLTTL:        15 * time.Minute,
		},
		Scheduler: config.SchedulerConfig{MaxEventAttempts: 5},
	}
}

func CreateUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		Email:  email,
		Name:   "Test User",
		Role:   models.UserRoleUser,
		Status: models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword(TestPassword))
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateAdmin(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := CreateUser(t, db, email)
	require.NoError(t, db.Model(user).Update("role", models.UserRoleAdmin).Error)
	user.Role = models.UserRoleAdmin
	return user
}

func CreateTeacher(t testing.TB, db *gorm.DB, name string, position int) *models.Teacher {
	t.Helper()

	teacher := &models.Teacher{Name: name, Position: position}
	require.NoError(t, db.Create(teacher).Error)
	return teacher
}

// CreateCourse stores a published course priced at price.
func CreateCourse(t testing.TB, db *gorm.DB, slug string, price int64) *models.Course {
	t.Helper()

	var position int64
	db.Model(&models.Course{}).Count(&position)

	course := &models.Course{
		Title:      "Course " + slug,
		Slug:       slug,
		Price:      price,
		AccessDays: 30,
		Status:     models.PublishStatusPublished,
		Position:   int(position) + 1,
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

func CreateTextbook(t testing.TB, db *gorm.DB, slug string, price int64) *models.Textbook {
	t.Helper()

	var position int64
	db.Model(&models.Textbook{}).Count(&position)

	textbook := &models.Textbook{
		Title:      "Textbook " + slug,
		Slug:       slug,
		Price:      price,
		AccessDays: 30,
		FileKey:    "textbooks/" + slug + ".pdf",
		Status:     models.PublishStatusPublished,
		Position:   int(position) + 1,
	}
	require.NoError(t, db.Create(textbook).Error)
	return textbook
}

// CreateLessons appends n published lessons to the course, positions 1..n.
func CreateLessons(t testing.TB, db *gorm.DB, courseID uuid.UUID, n int) []models.Lesson {
	t.Helper()

	lessons := make([]models.Lesson, n)
	for i := range lessons {
		lessons[i] = models.Lesson{
			CourseID:        courseID,
			Title:           fmt.Sprintf("Lesson %d", i+1),
			VideoID:         fmt.Sprintf("%d", 1000+i),
			DurationSeconds: 600,
			Position:        i + 1,
			Published:       true,
		}
		require.NoError(t, db.Create(&lessons[i]).Error)
	}
	return lessons
}

// Enroll grants an active enrollment covering now.
func Enroll(t testing.TB, db *gorm.DB, userID, courseID uuid.UUID) *models.Enrollment {
	t.Helper()

	now := time.Now()
	enrollment := &models.Enrollment{
		UserID:   userID,
		CourseID: courseID,
		StartAt:  now.Add(-time.Hour),
		EndAt:    now.AddDate(0, 0, 30),
		Status:   models.GrantStatusActive,
	}
	require.NoError(t, db.Create(enrollment).Error)
	return enrollment
}

// Entitle grants an active textbook entitlement covering now.
func Entitle(t testing.TB, db *gorm.DB, userID, textbookID uuid.UUID) *models.TextbookEntitlement {
	t.Helper()

	now := time.Now()
	entitlement := &models.TextbookEntitlement{
		UserID:     userID,
		TextbookID: textbookID,
		StartAt:    now.Add(-time.Hour),
		EndAt:      now.AddDate(0, 0, 30),
		Status:     models.GrantStatusActive,
	}
	require.NoError(t, db.Create(entitlement).Error)
	return entitlement
}

// Params is a first-page request big enough for fixture data.
func Params() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 50, Sort: "created_at", Order: "desc"}
}
