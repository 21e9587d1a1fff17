// internal/services/imweb_service.go
package services

import (
	"context"
	"encoding/json"
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

const (
	ImwebEventOrderComplete   = "ORDER_COMPLETE"
	ImwebEventPaymentComplete = "PAYMENT_COMPLETE"
	ImwebEventOrderCancel     = "ORDER_CANCEL"
	ImwebEventRefund          = "REFUND"
	ImwebEventMemberJoin      = "MEMBER_JOIN"
	ImwebEventMemberUpdate    = "MEMBER_UPDATE"
)

// ImwebAPI is the part of the Imweb REST API the webhook processor reads.
type ImwebAPI interface {
	GetMember(ctx context.Context, memberCode string) (*clients.ImwebMember, error)
	GetOrder(ctx context.Context, orderNo string) (*clients.ImwebOrder, error)
}

// ImwebService stores Imweb webhook events and replays them into users, orders and grants.
type ImwebService struct {
	db          *gorm.DB
	config      *config.Config
	api         ImwebAPI
	fulfillment *FulfillmentService
	now         func() time.Time
}

type imwebWebhook struct {
	EventID string           `json:"event_id"`
	Event   string           `json:"event"`
	Data    imwebWebhookData `json:"data"`
}

type imwebWebhookData struct {
	OrderNo    string `json:"order_no"`
	ProdNo     string `json:"prod_no"`
	MemberCode string `json:"member_code"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Call       string `json:"call"`
}

type WebhookResult struct {
	EventID   uuid.UUID          `json:"event_id"`
	Status    models.EventStatus `json:"status"`
	Duplicate bool               `json:"duplicate"`
}

func NewImwebService(db *gorm.DB, config *config.Config, api ImwebAPI, fulfillment *FulfillmentService) *ImwebService {
	return &ImwebService{
		db:          db,
		config:      config,
		api:         api,
		fulfillment: fulfillment,
		now:         time.Now,
	}
}

// VerifyWebhook accepts a body signed with the webhook secret or a request carrying
// the shared token. With neither configured every request is rejected.
func (s *ImwebService) VerifyWebhook(body []byte, signature, token string) error {
	if s.config.Imweb.WebhookSecret != "" && utils.VerifyHMAC(body, signature, s.config.Imweb.WebhookSecret) {
		return nil
	}
	if s.config.Imweb.WebhookToken != "" && utils.SecureCompare(token, s.config.Imweb.WebhookToken) {
		return nil
	}
	return ErrInvalidSignature
}

// Receive persists a verified webhook body and processes it once. A redelivered event
// is reported as a duplicate and left alone.
func (s *ImwebService) Receive(ctx context.Context, body []byte) (*WebhookResult, error) {
	var hook imwebWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", ErrInvalidRequest)
	}
	hook.Event = strings.ToUpper(strings.TrimSpace(hook.Event))
	if hook.Event == "" {
		return nil, fmt.Errorf("%w: webhook event type is missing", ErrInvalidRequest)
	}

	externalID := hook.EventID
	if externalID == "" {
		externalID = utils.HashString(string(body))
	}

	var existing models.OrderEvent
	err := s.db.Where("provider = ? AND external_id = ?", models.PaymentProviderImweb, externalID).First(&existing).Error
	if err == nil {
		return &WebhookResult{EventID: existing.ID, Status: existing.Status, Duplicate: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up webhook event: %w", err)
	}

	event := models.OrderEvent{
		Provider:   models.PaymentProviderImweb,
		ExternalID: externalID,
		EventType:  hook.Event,
		Payload:    datatypes.JSON(body),
		Status:     models.EventStatusReceived,
	}
	if err := s.db.Create(&event).Error; err != nil {
		if isUniqueViolation(err) {
			return &WebhookResult{Status: models.EventStatusReceived, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("failed to store webhook event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"external_id": externalID,
		"type":        hook.Event,
	}).Info("Imweb webhook received")

	s.Process(ctx, &event)
	return &WebhookResult{EventID: event.ID, Status: event.Status}, nil
}

// Process runs a stored event and records the outcome on it.
func (s *ImwebService) Process(ctx context.Context, event *models.OrderEvent) {
	var hook imwebWebhook
	err := json.Unmarshal(event.Payload, &hook)
	status := models.EventStatusProcessed

	if err == nil {
		switch event.EventType {
		case ImwebEventOrderComplete, ImwebEventPaymentComplete:
			err = s.handleOrderComplete(ctx, hook.Data)
		case ImwebEventOrderCancel, ImwebEventRefund:
			err = s.handleOrderCancel(hook.Data)
		case ImwebEventMemberJoin, ImwebEventMemberUpdate:
			_, err = s.syncMember(ctx, hook.Data.MemberCode, memberHint{
				Email: hook.Data.Email,
				Name:  hook.Data.Name,
				Phone: hook.Data.Call,
			})
		default:
			status = models.EventStatusIgnored
		}
	}

	now := s.now()
	event.Attempts++
	event.Error = ""
	if err != nil {
		status = models.EventStatusFailed
		event.Error = err.Error()
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_id": event.ID,
			"type":     event.EventType,
			"attempts": event.Attempts,
		}).Warn("Imweb event processing failed")
	} else {
		event.ProcessedAt = &now
	}
	event.Status = status

	if err := s.db.Model(event).Updates(map[string]interface{}{
		"status":       event.Status,
		"error":        event.Error,
		"attempts":     event.Attempts,
		"processed_at": event.ProcessedAt,
	}).Error; err != nil {
		logrus.WithError(err).WithField("event_id", event.ID).Error("Failed to record event outcome")
	}
}

// RetryFailed reprocesses failed events that have not used up their attempts.
func (s *ImwebService) RetryFailed(ctx context.Context, maxAttempts int) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var events []models.OrderEvent
	if err := s.db.Where("provider = ? AND status = ? AND attempts < ?",
		models.PaymentProviderImweb, models.EventStatusFailed, maxAttempts).
		Order("created_at ASC").
		Limit(100).
		Find(&events).Error; err != nil {
		return 0, fmt.Errorf("failed to fetch failed events: %w", err)
	}

	recovered := 0
	for i := range events {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		s.Process(ctx, &events[i])
		if events[i].Status != models.EventStatusFailed {
			recovered++
		}
	}
	return recovered, nil
}

func (s *ImwebService) ListEvents(params utils.PaginationParams) ([]models.OrderEvent, int64, error) {
	query := s.db.Model(&models.OrderEvent{})
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}
	if params.Search != "" {
		query = query.Where("event_type = ? OR external_id = ?", strings.ToUpper(params.Search), params.Search)
	}

	var events []models.OrderEvent
	total, err := utils.Paginate(query, params, []string{"created_at", "status", "attempts"}, &events)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch events: %w", err)
	}
	return events, total, nil
}

// ReprocessEvent runs a single event again on an admin's request.
func (s *ImwebService) ReprocessEvent(ctx context.Context, id uuid.UUID) (*models.OrderEvent, error) {
	var event models.OrderEvent
	if err := s.db.First(&event, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "event")
	}
	s.Process(ctx, &event)
	return &event, nil
}

// handleOrderComplete loads the order from the API and creates one completed order per
// item that maps to a course or textbook.
func (s *ImwebService) handleOrderComplete(ctx context.Context, data imwebWebhookData) error {
	if data.OrderNo == "" {
		return fmt.Errorf("%w: order_no is missing", ErrInvalidRequest)
	}
	remote, err := s.loadOrder(ctx, data)
	if err != nil {
		return err
	}

	user, err := s.syncMember(ctx, remote.Orderer.MemberCode, memberHint{
		Email: remote.Orderer.Email,
		Name:  remote.Orderer.Name,
		Phone: remote.Orderer.Call,
	})
	if err != nil {
		return err
	}

	paidAt := s.now()
	if remote.OrderTime > 0 {
		paidAt = time.Unix(remote.OrderTime, 0)
	}

	for _, item := range remote.Items {
		product, err := s.mapProduct(item.ProdNo)
		if err != nil {
			return err
		}
		if product == nil {
			logrus.WithFields(logrus.Fields{
				"order_no": remote.OrderNo,
				"prod_no":  item.ProdNo,
			}).Info("Imweb item has no matching product")
			continue
		}

		count := item.Count
		if count < 1 {
			count = 1
		}
		price := item.Price
		if price <= 0 {
			price = product.Price
		}
		order := models.Order{
			OrderNo:         fmt.Sprintf("IMWEB-%s-%s", remote.OrderNo, item.ProdNo),
			UserID:          user.ID,
			ProductType:     product.Type,
			ProductID:       product.ID,
			ProductTitle:    product.Title,
			Amount:          price * int64(count),
			Currency:        "KRW",
			Status:          models.OrderStatusCompleted,
			Provider:        models.PaymentProviderImweb,
			ProviderOrderNo: remote.OrderNo,
			Method:          "IMWEB",
			PaidAt:          &paidAt,
		}

		err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
			var exists int64
			if err := tx.Model(&models.Order{}).Where("order_no = ?", order.OrderNo).Count(&exists).Error; err != nil {
				return err
			}
			if exists > 0 {
				return nil
			}
			if err := tx.Create(&order).Error; err != nil {
				return fmt.Errorf("failed to create order: %w", err)
			}
			return s.fulfillment.FulfillOrder(tx, &order)
		})
		if err != nil && !isUniqueViolation(err) {
			return err
		}
	}
	return nil
}

// handleOrderCancel refunds the orders created for an Imweb order and revokes what they
// granted. A prod_no narrows it to one item.
func (s *ImwebService) handleOrderCancel(data imwebWebhookData) error {
	if data.OrderNo == "" {
		return fmt.Errorf("%w: order_no is missing", ErrInvalidRequest)
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		query := lockForUpdate(tx).Where("provider = ? AND provider_order_no = ? AND status IN ?",
			models.PaymentProviderImweb, data.OrderNo,
			[]models.OrderStatus{models.OrderStatusCompleted, models.OrderStatusPartiallyRefunded})
		if data.ProdNo != "" {
			query = query.Where("order_no = ?", fmt.Sprintf("IMWEB-%s-%s", data.OrderNo, data.ProdNo))
		}

		var orders []models.Order
		if err := query.Find(&orders).Error; err != nil {
			return fmt.Errorf("failed to fetch orders: %w", err)
		}

		now := s.now()
		for i := range orders {
			order := &orders[i]
			order.Status = models.OrderStatusRefunded
			order.RefundedAmount = order.Amount
			order.RefundedAt = &now
			order.CancelReason = "imweb order cancelled"

			if err := tx.Model(order).Updates(map[string]interface{}{
				"status":          order.Status,
				"refunded_amount": order.RefundedAmount,
				"refunded_at":     now,
				"cancel_reason":   order.CancelReason,
			}).Error; err != nil {
				return fmt.Errorf("failed to refund order: %w", err)
			}
			if err := s.fulfillment.RevokeOrder(tx, order); err != nil {
				return err
			}
		}
		return nil
	})
}

type memberHint struct {
	Email string
	Name  string
	Phone string
}

// syncMember finds the local user for an Imweb member by member code, then email,
// creating one when neither matches. The API is authoritative when reachable.
func (s *ImwebService) syncMember(ctx context.Context, memberCode string, hint memberHint) (*models.User, error) {
	if memberCode != "" && s.api != nil {
		member, err := s.api.GetMember(ctx, memberCode)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch imweb member %s: %w", memberCode, err)
		}
		hint = memberHint{
			Email: firstNonEmpty(member.Email, hint.Email),
			Name:  firstNonEmpty(member.Name, hint.Name),
			Phone: firstNonEmpty(member.Call, hint.Phone),
		}
	}

	email := normalizeEmail(hint.Email)
	if memberCode == "" && email == "" {
		return nil, fmt.Errorf("%w: member has neither code nor email", ErrInvalidRequest)
	}

	var user models.User
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		found := false
		if memberCode != "" {
			err := tx.Where("imweb_member_code = ?", memberCode).First(&user).Error
			if err == nil {
				found = true
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if !found && email != "" {
			err := tx.Where("email = ?", email).First(&user).Error
			if err == nil {
				found = true
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if !found {
			if email == "" {
				email = fmt.Sprintf("imweb_%s@imweb.local", strings.ToLower(memberCode))
			}
			user = models.User{
				Email:           email,
				Name:            firstNonEmpty(hint.Name, "회원"),
				Phone:           hint.Phone,
				Role:            models.UserRoleUser,
				Status:          models.UserStatusActive,
				ImwebMemberCode: memberCode,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			logrus.WithFields(logrus.Fields{
				"user_id":     user.ID,
				"member_code": memberCode,
			}).Info("User created from Imweb member")
			return nil
		}

		updates := map[string]interface{}{}
		if memberCode != "" && user.ImwebMemberCode != memberCode {
			user.ImwebMemberCode = memberCode
			updates["imweb_member_code"] = memberCode
		}
		if hint.Name != "" && hint.Name != user.Name {
			user.Name = hint.Name
			updates["name"] = hint.Name
		}
		if hint.Phone != "" && hint.Phone != user.Phone {
			user.Phone = hint.Phone
			updates["phone"] = hint.Phone
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&user).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// loadOrder reads the order from the Imweb API. Without API credentials the webhook
// payload stands in for it, one item per delivery.
func (s *ImwebService) loadOrder(ctx context.Context, data imwebWebhookData) (*clients.ImwebOrder, error) {
	if s.api != nil {
		remote, err := s.api.GetOrder(ctx, data.OrderNo)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch imweb order %s: %w", data.OrderNo, err)
		}
		return remote, nil
	}

	if data.ProdNo == "" {
		return nil, fmt.Errorf("%w: prod_no is required when the imweb api is not configured", ErrInvalidRequest)
	}
	return &clients.ImwebOrder{
		OrderNo: data.OrderNo,
		Orderer: clients.ImwebOrderer{
			MemberCode: data.MemberCode,
			Name:       data.Name,
			Email:      data.Email,
			Call:       data.Call,
		},
		Items: []clients.ImwebOrderItem{{ProdNo: data.ProdNo, Count: 1}},
	}, nil
}

type mappedProduct struct {
	Type  models.ProductType
	ID    uuid.UUID
	Title string
	Price int64
}

// mapProduct finds the course or textbook sold under an Imweb product number. A nil
// result means nothing matches.
func (s *ImwebService) mapProduct(prodNo string) (*mappedProduct, error) {
	if prodNo == "" {
		return nil, nil
	}

	var course models.Course
	err := s.db.Where("imweb_product_no = ?", prodNo).First(&course).Error
	if err == nil {
		return &mappedProduct{models.ProductTypeCourse, course.ID, course.Title, course.EffectivePrice()}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to map product: %w", err)
	}

	var textbook models.Textbook
	err = s.db.Where("imweb_product_no = ?", prodNo).First(&textbook).Error
	if err == nil {
		return &mappedProduct{models.ProductTypeTextbook, textbook.ID, textbook.Title, textbook.EffectivePrice()}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to map product: %w", err)
	}
	return nil, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
