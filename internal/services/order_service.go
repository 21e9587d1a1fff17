// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/database"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type OrderService struct {
	db          *gorm.DB
	config      *config.Config
	gateway     PaymentGateway
	fulfillment *FulfillmentService
	notifier    *NotificationService
	now         func() time.Time
}

type CreateOrderRequest struct {
	ProductType models.ProductType `json:"product_type" validate:"required,oneof=COURSE TEXTBOOK"`
	ProductID   uuid.UUID          `json:"product_id" validate:"required"`
}

type CheckoutResponse struct {
	Order   *models.Order          `json:"order"`
	Payment map[string]interface{} `json:"payment,omitempty"`
}

type ConfirmPaymentRequest struct {
	PaymentKey string `json:"payment_key" validate:"required"`
	OrderNo    string `json:"order_no" validate:"required"`
	Amount     int64  `json:"amount" validate:"min=0"`
}

type RefundRequest struct {
	Amount *int64 `json:"amount,omitempty" validate:"omitempty,min=1"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type OrderFilter struct {
	utils.PaginationParams
	UserID      *uuid.UUID
	ProductType models.ProductType
	Provider    models.PaymentProvider
}

func NewOrderService(db *gorm.DB, config *config.Config, gateway PaymentGateway, fulfillment *FulfillmentService, notifier *NotificationService) *OrderService {
	return &OrderService{
		db:          db,
		config:      config,
		gateway:     gateway,
		fulfillment: fulfillment,
		notifier:    notifier,
		now:         time.Now,
	}
}

// CreateOrder opens a PENDING order at the product's current price. Free products are
// completed immediately.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req *CreateOrderRequest) (*CheckoutResponse, error) {
	title, amount, err := s.priceProduct(req.ProductType, req.ProductID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNo:      generateOrderNo(s.now()),
		UserID:       userID,
		ProductType:  req.ProductType,
		ProductID:    req.ProductID,
		ProductTitle: title,
		Amount:       amount,
		Currency:     s.config.Payment.Currency,
		Status:       models.OrderStatusPending,
		Provider:     s.gateway.Provider(),
	}

	if amount == 0 {
		order.Provider = models.PaymentProviderManual
		err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
			if err := tx.Create(order).Error; err != nil {
				return err
			}
			return s.complete(tx, order, &GatewayResult{Method: "FREE"})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to complete free order: %w", err)
		}
		return &CheckoutResponse{Order: order}, nil
	}

	if err := s.db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	payment, err := s.gateway.Prepare(ctx, order)
	if err != nil {
		s.markFailed(order, err)
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	if key, ok := payment["payment_key"].(string); ok && key != "" {
		order.PaymentKey = key
		if err := s.db.Model(order).Update("payment_key", key).Error; err != nil {
			return nil, fmt.Errorf("failed to store payment key: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"order_no": order.OrderNo,
		"user_id":  userID,
		"amount":   amount,
	}).Info("Order created")

	return &CheckoutResponse{Order: order, Payment: payment}, nil
}

// ConfirmPayment approves a PENDING order with the gateway and fulfills it. Confirming a
// COMPLETED order again returns it unchanged.
func (s *OrderService) ConfirmPayment(ctx context.Context, userID uuid.UUID, req *ConfirmPaymentRequest) (*models.Order, error) {
	var order models.Order
	if err := s.db.Where("order_no = ?", req.OrderNo).First(&order).Error; err != nil {
		return nil, notFound(err, "order")
	}

	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if order.Status == models.OrderStatusCompleted {
		return &order, nil
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrOrderNotPayable
	}
	if req.Amount != order.Amount {
		logrus.WithFields(logrus.Fields{
			"order_no": order.OrderNo,
			"expected": order.Amount,
			"received": req.Amount,
		}).Warn("Payment amount mismatch")
		return nil, ErrInvalidAmount
	}

	result, err := s.gateway.Confirm(ctx, &order, req.PaymentKey)
	if err != nil {
		s.markFailed(&order, err)
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	if result.PaymentKey == "" {
		result.PaymentKey = req.PaymentKey
	}

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		// Another request may have completed the order while the gateway call was in flight.
		var current models.Order
		if err := lockForUpdate(tx).First(&current, "id = ?", order.ID).Error; err != nil {
			return err
		}
		if current.Status == models.OrderStatusCompleted {
			order = current
			return nil
		}
		if current.Status != models.OrderStatusPending {
			return ErrOrderNotPayable
		}
		return s.complete(tx, &order, result)
	})
	if err != nil {
		return nil, err
	}

	s.sendReceipt(&order)
	return &order, nil
}

// CancelOrder lets the buyer abandon an order that has not been paid.
func (s *OrderService) CancelOrder(userID uuid.UUID, orderNo, reason string) (*models.Order, error) {
	var order models.Order
	if err := s.db.Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		return nil, notFound(err, "order")
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if !order.Status.CanTransition(models.OrderStatusCancelled) {
		return nil, ErrOrderNotPayable
	}

	order.Status = models.OrderStatusCancelled
	order.CancelReason = reason
	if err := s.db.Model(&order).Updates(map[string]interface{}{
		"status":        order.Status,
		"cancel_reason": reason,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	return &order, nil
}

// RefundOrder returns part or all of a paid order through the gateway. A full refund
// revokes what the order granted.
func (s *OrderService) RefundOrder(ctx context.Context, orderID uuid.UUID, req *RefundRequest) (*models.Order, error) {
	var order models.Order
	if err := s.db.First(&order, "id = ?", orderID).Error; err != nil {
		return nil, notFound(err, "order")
	}

	if order.Status == models.OrderStatusPending {
		order.Status = models.OrderStatusCancelled
		order.CancelReason = req.Reason
		if err := s.db.Model(&order).Updates(map[string]interface{}{
			"status":        order.Status,
			"cancel_reason": req.Reason,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to cancel order: %w", err)
		}
		return &order, nil
	}

	if !order.Status.Refundable() {
		return nil, ErrOrderNotRefund
	}

	amount := order.RemainingAmount()
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 || amount > order.RemainingAmount() {
		return nil, ErrInvalidAmount
	}
	if err := s.reserveRefund(&order, amount); err != nil {
		return nil, err
	}

	var result *GatewayResult
	if order.Provider == models.PaymentProviderToss || order.Provider == models.PaymentProviderStripe {
		var err error
		result, err = s.gateway.Refund(ctx, &order, amount, req.Reason)
		if err != nil {
			logrus.WithError(err).WithField("order_no", order.OrderNo).Error("Refund rejected by gateway")
			s.releaseRefund(&order, amount)
			return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
	}

	if err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&order, "id = ?", order.ID).Error; err != nil {
			return err
		}
		return s.applyRefund(tx, &order, amount, req.Reason, result)
	}); err != nil {
		// The gateway has paid out; the reservation is kept for reconciliation.
		logrus.WithError(err).WithFields(logrus.Fields{
			"order_no": order.OrderNo,
			"amount":   amount,
		}).Error("Failed to record refund")
		return nil, err
	}

	s.sendRefundNotice(&order, amount, req.Reason)
	return &order, nil
}

// reserveRefund holds amount against the order's unrefunded balance before the gateway is
// called. The check and the hold are one conditional UPDATE, so two refunds can never
// both claim the same balance.
func (s *OrderService) reserveRefund(order *models.Order, amount int64) error {
	refundable := []string{string(models.OrderStatusCompleted), string(models.OrderStatusPartiallyRefunded)}
	result := s.db.Model(&models.Order{}).
		Where("id = ? AND status IN ? AND refunded_amount + refund_pending + ? <= amount", order.ID, refundable, amount).
		Update("refund_pending", gorm.Expr("refund_pending + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to reserve refund: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidAmount
	}
	if err := s.db.First(order, "id = ?", order.ID).Error; err != nil {
		return fmt.Errorf("failed to reload order: %w", err)
	}
	return nil
}

func (s *OrderService) releaseRefund(order *models.Order, amount int64) {
	if err := s.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("refund_pending", gorm.Expr("refund_pending - ?", amount)).Error; err != nil {
		logrus.WithError(err).WithField("order_no", order.OrderNo).Error("Failed to release refund reservation")
	}
}

// applyRefund records a reserved amount against a freshly loaded order and revokes grants
// once nothing is left.
func (s *OrderService) applyRefund(tx *gorm.DB, order *models.Order, amount int64, reason string, result *GatewayResult) error {
	next := models.OrderStatusPartiallyRefunded
	if order.RefundedAmount+amount >= order.Amount {
		next = models.OrderStatusRefunded
	}
	if !order.Status.CanTransition(next) {
		return ErrOrderNotRefund
	}

	now := s.now()
	order.RefundedAmount += amount
	order.RefundPending -= amount
	order.Status = next
	order.RefundedAt = &now
	order.CancelReason = reason

	updates := map[string]interface{}{
		"refunded_amount": gorm.Expr("refunded_amount + ?", amount),
		"refund_pending":  gorm.Expr("refund_pending - ?", amount),
		"status":          order.Status,
		"refunded_at":     now,
		"cancel_reason":   reason,
	}
	if result != nil && len(result.Raw) > 0 {
		order.PaymentPayload = datatypes.JSON(result.Raw)
		updates["payment_payload"] = order.PaymentPayload
	}
	if err := tx.Model(order).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	if next == models.OrderStatusRefunded {
		if err := s.fulfillment.RevokeOrder(tx, order); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"order_no": order.OrderNo,
		"amount":   amount,
		"status":   order.Status,
	}).Info("Order refunded")
	return nil
}

func (s *OrderService) MyOrders(userID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	return s.ListOrders(OrderFilter{PaginationParams: params, UserID: &userID})
}

func (s *OrderService) GetOrder(userID uuid.UUID, orderNo string) (*models.Order, error) {
	var order models.Order
	if err := s.db.Where("order_no = ? AND user_id = ?", orderNo, userID).First(&order).Error; err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

// GetOrderByID loads any order with its buyer, for the back-office.
func (s *OrderService) GetOrderByID(id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("User").First(&order, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

func (s *OrderService) ListOrders(filter OrderFilter) ([]models.Order, int64, error) {
	query := s.db.Model(&models.Order{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	} else {
		query = query.Preload("User")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(filter.Status))
	}
	if filter.ProductType != "" {
		query = query.Where("product_type = ?", filter.ProductType)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(order_no) LIKE ? OR LOWER(product_title) LIKE ?", term, term)
	}

	var orders []models.Order
	total, err := utils.Paginate(query, filter.PaginationParams, []string{"created_at", "paid_at", "amount", "status"}, &orders)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return orders, total, nil
}

// complete marks order COMPLETED with the gateway result and grants access, using tx only.
func (s *OrderService) complete(tx *gorm.DB, order *models.Order, result *GatewayResult) error {
	paidAt := s.now()
	if result.PaidAt != nil {
		paidAt = *result.PaidAt
	}

	order.Status = models.OrderStatusCompleted
	order.PaymentKey = result.PaymentKey
	order.Method = result.Method
	order.PaidAt = &paidAt
	order.FailureCode = ""
	order.FailureMessage = ""
	if len(result.Raw) > 0 {
		order.PaymentPayload = datatypes.JSON(result.Raw)
	}

	if err := tx.Save(order).Error; err != nil {
		return fmt.Errorf("failed to complete order: %w", err)
	}
	return s.fulfillment.FulfillOrder(tx, order)
}

func (s *OrderService) markFailed(order *models.Order, cause error) {
	order.Status = models.OrderStatusFailed
	order.FailureMessage = cause.Error()
	if pe, ok := clients.AsProviderError(cause); ok {
		order.FailureCode = pe.Code
		order.FailureMessage = pe.Message
	}

	if err := s.db.Model(order).Updates(map[string]interface{}{
		"status":          order.Status,
		"failure_code":    order.FailureCode,
		"failure_message": order.FailureMessage,
	}).Error; err != nil {
		logrus.WithError(err).WithField("order_no", order.OrderNo).Error("Failed to mark order as failed")
	}

	logrus.WithFields(logrus.Fields{
		"order_no": order.OrderNo,
		"code":     order.FailureCode,
	}).Warn("Payment failed")
}

func (s *OrderService) priceProduct(productType models.ProductType, productID uuid.UUID) (string, int64, error) {
	switch productType {
	case models.ProductTypeCourse:
		var course models.Course
		if err := s.db.Where("id = ? AND status = ?", productID, models.PublishStatusPublished).First(&course).Error; err != nil {
			return "", 0, notFound(err, "course")
		}
		return course.Title, course.EffectivePrice(), nil
	case models.ProductTypeTextbook:
		var textbook models.Textbook
		if err := s.db.Where("id = ? AND status = ?", productID, models.PublishStatusPublished).First(&textbook).Error; err != nil {
			return "", 0, notFound(err, "textbook")
		}
		return textbook.Title, textbook.EffectivePrice(), nil
	default:
		return "", 0, fmt.Errorf("%w: unknown product type %q", ErrInvalidRequest, productType)
	}
}

func (s *OrderService) sendReceipt(order *models.Order) {
	if s.notifier == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", order.UserID).Error; err != nil {
		return
	}
	if err := s.notifier.SendOrderReceipt(order, &user); err != nil {
		logrus.WithError(err).WithField("order_no", order.OrderNo).Warn("Failed to send order receipt")
	}
}

func (s *OrderService) sendRefundNotice(order *models.Order, amount int64, reason string) {
	if s.notifier == nil {
		return
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", order.UserID).Error; err != nil {
		return
	}
	if err := s.notifier.SendRefundNotice(order, &user, amount, reason); err != nil {
		logrus.WithError(err).WithField("order_no", order.OrderNo).Warn("Failed to send refund notice")
	}
}

// generateOrderNo builds a sortable, collision-resistant order number.
func generateOrderNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CR%s%s", now.Format("20060102150405"), suffix)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
