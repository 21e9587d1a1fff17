// internal/services/payment_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/models"
)

// PaymentGateway is the card processor behind checkout.
type PaymentGateway interface {
	Provider() models.PaymentProvider
	// Prepare returns what the browser widget needs to start paying for order.
	Prepare(ctx context.Context, order *models.Order) (map[string]interface{}, error)
	Confirm(ctx context.Context, order *models.Order, paymentKey string) (*GatewayResult, error)
	Refund(ctx context.Context, order *models.Order, amount int64, reason string) (*GatewayResult, error)
}

type GatewayResult struct {
	PaymentKey string
	Method     string
	Amount     int64
	PaidAt     *time.Time
	Raw        []byte
}

// NewPaymentGateway picks the gateway named by PAYMENT_PROVIDER.
func NewPaymentGateway(cfg *config.Config) PaymentGateway {
	timeout := time.Duration(cfg.Payment.TimeoutSeconds) * time.Second
	if cfg.Payment.Provider == "stripe" {
		return NewStripeGateway(cfg.Payment.StripeSecretKey)
	}
	return NewTossGateway(clients.NewTossClient(cfg.Payment.TossBaseURL, cfg.Payment.TossSecretKey, timeout), cfg.Payment.TossClientKey)
}

type TossGateway struct {
	client    *clients.TossClient
	clientKey string
}

func NewTossGateway(client *clients.TossClient, clientKey string) *TossGateway {
	return &TossGateway{client: client, clientKey: clientKey}
}

func (g *TossGateway) Provider() models.PaymentProvider {
	return models.PaymentProviderToss
}

func (g *TossGateway) Prepare(_ context.Context, order *models.Order) (map[string]interface{}, error) {
	return map[string]interface{}{
		"provider":   "toss",
		"client_key": g.clientKey,
		"order_id":   order.OrderNo,
		"order_name": order.ProductTitle,
		"amount":     order.Amount,
	}, nil
}

func (g *TossGateway) Confirm(ctx context.Context, order *models.Order, paymentKey string) (*GatewayResult, error) {
	payment, raw, err := g.client.Confirm(ctx, paymentKey, order.OrderNo, order.Amount, "confirm-"+order.OrderNo)
	if err != nil {
		return nil, err
	}

	result := &GatewayResult{
		PaymentKey: payment.PaymentKey,
		Method:     payment.Method,
		Amount:     payment.TotalAmount,
		Raw:        raw,
	}
	if approved, err := time.Parse(time.RFC3339, payment.ApprovedAt); err == nil {
		result.PaidAt = &approved
	}
	return result, nil
}

func (g *TossGateway) Refund(ctx context.Context, order *models.Order, amount int64, reason string) (*GatewayResult, error) {
	// Keyed by the refunded total so a retried request is not applied twice.
	idempotencyKey := fmt.Sprintf("cancel-%s-%d", order.OrderNo, order.RefundedAmount+amount)

	var cancelAmount *int64
	if amount != order.RemainingAmount() || order.RefundedAmount > 0 {
		cancelAmount = &amount
	}

	payment, raw, err := g.client.Cancel(ctx, order.PaymentKey, reason, cancelAmount, idempotencyKey)
	if err != nil {
		return nil, err
	}

	return &GatewayResult{
		PaymentKey: payment.PaymentKey,
		Method:     payment.Method,
		Amount:     amount,
		Raw:        raw,
	}, nil
}

// StripeGateway settles orders as PaymentIntents. KRW is a zero-decimal currency, so
// amounts go to Stripe unchanged.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	// Initialize Stripe
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (g *StripeGateway) Provider() models.PaymentProvider {
	return models.PaymentProviderStripe
}

func (g *StripeGateway) Prepare(ctx context.Context, order *models.Order) (map[string]interface{}, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(order.Amount),
		Currency: stripe.String(stripeCurrency(order.Currency)),
	}
	params.Context = ctx
	params.AddMetadata("order_no", order.OrderNo)
	params.AddMetadata("user_id", order.UserID.String())
	params.SetIdempotencyKey("intent-" + order.OrderNo)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, stripeProviderError(err)
	}

	return map[string]interface{}{
		"provider":      "stripe",
		"client_secret": pi.ClientSecret,
		"payment_key":   pi.ID,
		"order_id":      order.OrderNo,
		"amount":        order.Amount,
	}, nil
}

func (g *StripeGateway) Confirm(ctx context.Context, order *models.Order, paymentKey string) (*GatewayResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(paymentKey, params)
	if err != nil {
		return nil, stripeProviderError(err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &clients.ProviderError{
			Provider: "stripe",
			Code:     string(pi.Status),
			Message:  "payment intent has not succeeded",
		}
	}
	if pi.Metadata["order_no"] != "" && pi.Metadata["order_no"] != order.OrderNo {
		return nil, &clients.ProviderError{Provider: "stripe", Code: "order_mismatch", Message: "payment intent belongs to another order"}
	}

	raw, _ := json.Marshal(pi)
	paidAt := time.Unix(pi.Created, 0)
	method := ""
	if len(pi.PaymentMethodTypes) > 0 {
		method = pi.PaymentMethodTypes[0]
	}

	return &GatewayResult{
		PaymentKey: pi.ID,
		Method:     method,
		Amount:     pi.Amount,
		PaidAt:     &paidAt,
		Raw:        raw,
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, order *models.Order, amount int64, reason string) (*GatewayResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(order.PaymentKey),
		Amount:        stripe.Int64(amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("reason", reason)
	params.SetIdempotencyKey(fmt.Sprintf("refund-%s-%d", order.OrderNo, order.RefundedAmount+amount))

	r, err := refund.New(params)
	if err != nil {
		return nil, stripeProviderError(err)
	}

	raw, _ := json.Marshal(r)
	return &GatewayResult{
		PaymentKey: order.PaymentKey,
		Amount:     r.Amount,
		Raw:        raw,
	}, nil
}

func stripeCurrency(currency string) string {
	if currency == "" {
		return "krw"
	}
	return string(stripe.Currency(strings.ToLower(currency)))
}

func stripeProviderError(err error) error {
	if se, ok := err.(*stripe.Error); ok {
		return &clients.ProviderError{
			Provider: "stripe",
			Status:   se.HTTPStatusCode,
			Code:     string(se.Code),
			Message:  se.Msg,
		}
	}
	return fmt.Errorf("stripe request failed: %w", err)
}
