// internal/models/review.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Review struct {
	BaseModel
	UserID      uuid.UUID    `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_reviews_user_product"`
	ProductType ProductType  `json:"product_type" gorm:"type:varchar(20);not null;uniqueIndex:idx_reviews_user_product;index:idx_reviews_product"`
	ProductID   uuid.UUID    `json:"product_id" gorm:"type:uuid;not null;uniqueIndex:idx_reviews_user_product;index:idx_reviews_product"`
	Rating      int          `json:"rating" gorm:"not null"`
	Content     string       `json:"content" gorm:"type:text;not null"`
	Status      ReviewStatus `json:"status" gorm:"type:varchar(20);default:'VISIBLE';not null;index"`
	ReportCount int          `json:"report_count" gorm:"not null;default:0"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

type ReviewReport struct {
	BaseModel
	ReviewID   uuid.UUID    `json:"review_id" gorm:"type:uuid;not null;uniqueIndex:idx_review_reports_reporter"`
	ReporterID uuid.UUID    `json:"reporter_id" gorm:"type:uuid;not null;uniqueIndex:idx_review_reports_reporter"`
	Reason     string       `json:"reason" gorm:"type:text;not null"`
	Status     ReportStatus `json:"status" gorm:"type:varchar(20);default:'PENDING';not null;index"`
	ResolvedBy *uuid.UUID   `json:"resolved_by" gorm:"type:uuid"`
	ResolvedAt *time.Time   `json:"resolved_at"`

	Review *Review `json:"review,omitempty" gorm:"foreignKey:ReviewID"`
}
