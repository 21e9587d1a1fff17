// internal/models/enrollment.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Enrollment struct {
	BaseModel
	UserID   uuid.UUID   `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_user_course"`
	CourseID uuid.UUID   `json:"course_id" gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_user_course"`
	OrderID  *uuid.UUID  `json:"order_id" gorm:"type:uuid;index"`
	StartAt  time.Time   `json:"start_at" gorm:"not null"`
	EndAt    time.Time   `json:"end_at" gorm:"not null;index"`
	Status   GrantStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE';not null;index"`

	Course *Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	User   *User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// ActiveAt reports whether the enrollment grants access at t.
func (e *Enrollment) ActiveAt(t time.Time) bool {
	return e.Status == GrantStatusActive && !t.Before(e.StartAt) && t.Before(e.EndAt)
}

type TextbookEntitlement struct {
	BaseModel
	UserID     uuid.UUID   `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_entitlements_user_textbook"`
	TextbookID uuid.UUID   `json:"textbook_id" gorm:"type:uuid;not null;uniqueIndex:idx_entitlements_user_textbook"`
	OrderID    *uuid.UUID  `json:"order_id" gorm:"type:uuid;index"`
	StartAt    time.Time   `json:"start_at" gorm:"not null"`
	EndAt      time.Time   `json:"end_at" gorm:"not null;index"`
	Status     GrantStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE';not null;index"`

	Textbook *Textbook `json:"textbook,omitempty" gorm:"foreignKey:TextbookID"`
}

func (e *TextbookEntitlement) ActiveAt(t time.Time) bool {
	return e.Status == GrantStatusActive && !t.Before(e.StartAt) && t.Before(e.EndAt)
}

type LessonProgress struct {
	BaseModel
	UserID         uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson"`
	LessonID       uuid.UUID  `json:"lesson_id" gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_lesson"`
	CourseID       uuid.UUID  `json:"course_id" gorm:"type:uuid;not null;index"`
	LastPosition   int        `json:"last_position" gorm:"not null;default:0"`
	WatchedSeconds int        `json:"watched_seconds" gorm:"not null;default:0"`
	Duration       int        `json:"duration" gorm:"not null;default:0"`
	Completed      bool       `json:"completed" gorm:"default:false;index"`
	CompletedAt    *time.Time `json:"completed_at"`
}
