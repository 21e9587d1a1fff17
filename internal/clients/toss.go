// internal/clients/toss.go
package clients

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const tossProvider = "toss"

// TossClient talks to the Toss Payments core API. Authentication is HTTP Basic with the
// secret key as user name and an empty password.
type TossClient struct {
	http *resty.Client
}

type TossPayment struct {
	PaymentKey    string       `json:"paymentKey"`
	OrderID       string       `json:"orderId"`
	OrderName     string       `json:"orderName"`
	Status        string       `json:"status"`
	Method        string       `json:"method"`
	TotalAmount   int64        `json:"totalAmount"`
	BalanceAmount int64        `json:"balanceAmount"`
	ApprovedAt    string       `json:"approvedAt"`
	Cancels       []TossCancel `json:"cancels"`
}

type TossCancel struct {
	CancelAmount int64  `json:"cancelAmount"`
	CancelReason string `json:"cancelReason"`
	CanceledAt   string `json:"canceledAt"`
}

type tossError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewTossClient(baseURL, secretKey string, timeout time.Duration) *TossClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(secretKey, "").
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &TossClient{http: client}
}

// Confirm approves a payment the buyer authorised in the widget.
func (c *TossClient) Confirm(ctx context.Context, paymentKey, orderID string, amount int64, idempotencyKey string) (*TossPayment, []byte, error) {
	var payment TossPayment
	var apiErr tossError

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(map[string]interface{}{
			"paymentKey": paymentKey,
			"orderId":    orderID,
			"amount":     amount,
		}).
		SetResult(&payment).
		SetError(&apiErr).
		Post("/v1/payments/confirm")
	if err != nil {
		return nil, nil, fmt.Errorf("toss confirm request failed: %w", err)
	}
	if resp.IsError() {
		return nil, resp.Body(), newProviderError(tossProvider, resp, apiErr.Code, apiErr.Message)
	}

	return &payment, resp.Body(), nil
}

// Cancel refunds amount (nil for the full balance) of a confirmed payment.
func (c *TossClient) Cancel(ctx context.Context, paymentKey, reason string, amount *int64, idempotencyKey string) (*TossPayment, []byte, error) {
	body := map[string]interface{}{
		"cancelReason": reason,
	}
	if amount != nil {
		body["cancelAmount"] = *amount
	}

	var payment TossPayment
	var apiErr tossError

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(body).
		SetResult(&payment).
		SetError(&apiErr).
		Post("/v1/payments/" + url.PathEscape(paymentKey) + "/cancel")
	if err != nil {
		return nil, nil, fmt.Errorf("toss cancel request failed: %w", err)
	}
	if resp.IsError() {
		return nil, resp.Body(), newProviderError(tossProvider, resp, apiErr.Code, apiErr.Message)
	}

	return &payment, resp.Body(), nil
}
