// internal/database/connection.go
package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

// Models lists every table owned by the service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Session{},
		&models.OAuthAccount{},
		&models.Teacher{},
		&models.Textbook{},
		&models.Course{},
		&models.Lesson{},
		&models.Attachment{},
		&models.Notice{},
		&models.Order{},
		&models.OrderEvent{},
		&models.Enrollment{},
		&models.TextbookEntitlement{},
		&models.LessonProgress{},
		&models.Review{},
		&models.ReviewReport{},
		&models.AuditLog{},
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		createIndexes(db)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_courses_status_position ON courses(status, position)",
		"CREATE INDEX IF NOT EXISTS idx_textbooks_status_position ON textbooks(status, position)",
		"CREATE INDEX IF NOT EXISTS idx_lessons_course_position ON lessons(course_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_paid ON orders(status, paid_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_enrollments_status_end ON enrollments(status, end_at)",
		"CREATE INDEX IF NOT EXISTS idx_entitlements_status_end ON textbook_entitlements(status, end_at)",
		"CREATE INDEX IF NOT EXISTS idx_reviews_product_status ON reviews(product_type, product_id, status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_order_events_status_attempts ON order_events(status, attempts)",
		"CREATE INDEX IF NOT EXISTS idx_notices_listing ON notices(published, pinned DESC, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
}

// SeedInitialData creates the first admin account when none exists.
func SeedInitialData(db *gorm.DB, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		logrus.Info("Admin seed skipped: ADMIN_EMAIL or ADMIN_PASSWORD not set")
		return nil
	}

	var adminCount int64
	if err := db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&adminCount).Error; err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if adminCount > 0 {
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", adminEmail).First(&existing).Error
	switch {
	case err == nil:
		if err := db.Model(&existing).Update("role", models.UserRoleAdmin).Error; err != nil {
			return fmt.Errorf("failed to promote admin user: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		admin := &models.User{
			Email:  adminEmail,
			Name:   "Administrator",
			Role:   models.UserRoleAdmin,
			Status: models.UserStatusActive,
		}
		if err := admin.SetPassword(adminPassword); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}
		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
	default:
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	logrus.WithField("email", adminEmail).Info("Default admin user seeded")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
