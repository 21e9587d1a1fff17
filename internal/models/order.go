// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Order struct {
	BaseModel
	OrderNo         string          `json:"order_no" gorm:"size:64;not null;uniqueIndex"`
	UserID          uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	ProductType     ProductType     `json:"product_type" gorm:"type:varchar(20);not null;index:idx_orders_product"`
	ProductID       uuid.UUID       `json:"product_id" gorm:"type:uuid;not null;index:idx_orders_product"`
	ProductTitle    string          `json:"product_title" gorm:"size:255"`
	Amount          int64           `json:"amount" gorm:"not null"`
	RefundedAmount  int64           `json:"refunded_amount" gorm:"not null;default:0"`
	RefundPending   int64           `json:"-" gorm:"not null;default:0"`
	Currency        string          `json:"currency" gorm:"size:3;default:'KRW'"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(30);default:'PENDING';not null;index"`
	Provider        PaymentProvider `json:"provider" gorm:"type:varchar(20);not null"`
	PaymentKey      string          `json:"payment_key,omitempty" gorm:"size:200;index"`
	ProviderOrderNo string          `json:"provider_order_no,omitempty" gorm:"size:100;index"`
	Method          string          `json:"method,omitempty" gorm:"size:50"`
	FailureCode     string          `json:"failure_code,omitempty" gorm:"size:100"`
	FailureMessage  string          `json:"failure_message,omitempty" gorm:"type:text"`
	PaidAt          *time.Time      `json:"paid_at"`
	RefundedAt      *time.Time      `json:"refunded_at"`
	CancelReason    string          `json:"cancel_reason,omitempty" gorm:"type:text"`
	PaymentPayload  datatypes.JSON  `json:"-"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// RemainingAmount is the part of the order that has not been refunded yet.
func (o *Order) RemainingAmount() int64 {
	return o.Amount - o.RefundedAmount
}

// OrderEvent is an inbound provider notification, stored before it is processed.
type OrderEvent struct {
	BaseModel
	Provider    PaymentProvider `json:"provider" gorm:"type:varchar(20);not null;uniqueIndex:idx_order_events_external"`
	ExternalID  string          `json:"external_id" gorm:"size:191;not null;uniqueIndex:idx_order_events_external"`
	EventType   string          `json:"event_type" gorm:"size:100;not null;index"`
	Payload     datatypes.JSON  `json:"payload"`
	Status      EventStatus     `json:"status" gorm:"type:varchar(20);default:'RECEIVED';not null;index"`
	Error       string          `json:"error,omitempty" gorm:"type:text"`
	Attempts    int             `json:"attempts" gorm:"not null;default:0"`
	ProcessedAt *time.Time      `json:"processed_at"`
}
