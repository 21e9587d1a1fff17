// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", value)
	}

	if len(raw) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(raw, j)
}

// Enums
type UserRole string

const (
	UserRoleUser  UserRole = "USER"
	UserRoleAdmin UserRole = "ADMIN"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

type OAuthProvider string

const (
	OAuthProviderKakao OAuthProvider = "KAKAO"
	OAuthProviderNaver OAuthProvider = "NAVER"
)

type PublishStatus string

const (
	PublishStatusDraft     PublishStatus = "DRAFT"
	PublishStatusPublished PublishStatus = "PUBLISHED"
	PublishStatusArchived  PublishStatus = "ARCHIVED"
)

type ProductType string

const (
	ProductTypeCourse   ProductType = "COURSE"
	ProductTypeTextbook ProductType = "TEXTBOOK"
)

func (p ProductType) Valid() bool {
	return p == ProductTypeCourse || p == ProductTypeTextbook
}

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "PENDING"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusPartiallyRefunded OrderStatus = "PARTIALLY_REFUNDED"
	OrderStatusRefunded          OrderStatus = "REFUNDED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusFailed            OrderStatus = "FAILED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:           {OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusCompleted:         {OrderStatusPartiallyRefunded, OrderStatusRefunded},
	OrderStatusPartiallyRefunded: {OrderStatusPartiallyRefunded, OrderStatusRefunded},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Refundable reports whether money can still be returned for the order.
func (s OrderStatus) Refundable() bool {
	return s == OrderStatusCompleted || s == OrderStatusPartiallyRefunded
}

type PaymentProvider string

const (
	PaymentProviderToss   PaymentProvider = "TOSS"
	PaymentProviderStripe PaymentProvider = "STRIPE"
	PaymentProviderImweb  PaymentProvider = "IMWEB"
	PaymentProviderManual PaymentProvider = "MANUAL"
)

type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "ACTIVE"
	GrantStatusExpired GrantStatus = "EXPIRED"
	GrantStatusRevoked GrantStatus = "REVOKED"
)

type EventStatus string

const (
	EventStatusReceived  EventStatus = "RECEIVED"
	EventStatusProcessed EventStatus = "PROCESSED"
	EventStatusFailed    EventStatus = "FAILED"
	EventStatusIgnored   EventStatus = "IGNORED"
)

type ReviewStatus string

const (
	ReviewStatusVisible ReviewStatus = "VISIBLE"
	ReviewStatusHidden  ReviewStatus = "HIDDEN"
)

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "PENDING"
	ReportStatusResolved  ReportStatus = "RESOLVED"
	ReportStatusDismissed ReportStatus = "DISMISSED"
)
