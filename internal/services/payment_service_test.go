package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/testutil"
)

type tossCall struct {
	path           string
	idempotencyKey string
	body           map[string]interface{}
}

func tossServer(t *testing.T, calls *[]tossCall) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*calls = append(*calls, tossCall{path: r.URL.Path, idempotencyKey: r.Header.Get("Idempotency-Key"), body: body})

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"paymentKey":"pk_1","orderId":"CR1","status":"DONE","method":"간편결제","totalAmount":30000,"approvedAt":"2024-03-01T10:00:00+09:00"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewPaymentGatewaySelectsProvider(t *testing.T) {
	cfg := testutil.Config(t)
	assert.Equal(t, models.PaymentProviderToss, NewPaymentGateway(cfg).Provider())

	cfg.Payment.Provider = "stripe"
	assert.Equal(t, models.PaymentProviderStripe, NewPaymentGateway(cfg).Provider())
}

func TestTossGatewayConfirm(t *testing.T) {
	var calls []tossCall
	server := tossServer(t, &calls)
	gateway := NewTossGateway(clients.NewTossClient(server.URL, "test_sk", 5*time.Second), "test_ck")

	order := &models.Order{OrderNo: "CR1", ProductTitle: "Go", Amount: 30000}

	prepared, err := gateway.Prepare(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "test_ck", prepared["client_key"])
	assert.Equal(t, "CR1", prepared["order_id"])

	result, err := gateway.Confirm(context.Background(), order, "pk_1")
	require.NoError(t, err)
	assert.Equal(t, "pk_1", result.PaymentKey)
	assert.Equal(t, int64(30000), result.Amount)
	require.NotNil(t, result.PaidAt)
	assert.Equal(t, 2024, result.PaidAt.Year())

	require.Len(t, calls, 1)
	assert.Equal(t, "confirm-CR1", calls[0].idempotencyKey)
}

func TestTossGatewayRefundAmounts(t *testing.T) {
	var calls []tossCall
	server := tossServer(t, &calls)
	gateway := NewTossGateway(clients.NewTossClient(server.URL, "test_sk", 5*time.Second), "")

	order := &models.Order{OrderNo: "CR1", PaymentKey: "pk_1", Amount: 30000}

	_, err := gateway.Refund(context.Background(), order, 30000, "full")
	require.NoError(t, err)
	_, err = gateway.Refund(context.Background(), order, 10000, "partial")
	require.NoError(t, err)
	order.RefundedAmount = 10000
	_, err = gateway.Refund(context.Background(), order, 20000, "rest")
	require.NoError(t, err)

	require.Len(t, calls, 3)
	assert.Equal(t, "/v1/payments/pk_1/cancel", calls[0].path)
	assert.NotContains(t, calls[0].body, "cancelAmount")
	assert.Equal(t, float64(10000), calls[1].body["cancelAmount"])
	assert.Equal(t, float64(20000), calls[2].body["cancelAmount"])
	assert.Equal(t, "cancel-CR1-30000", calls[2].idempotencyKey)
}

func TestStripeHelpers(t *testing.T) {
	assert.Equal(t, "krw", stripeCurrency(""))
	assert.Equal(t, "usd", stripeCurrency("USD"))

	err := stripeProviderError(&stripe.Error{HTTPStatusCode: 402, Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."})
	pe, ok := clients.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "stripe", pe.Provider)
	assert.Equal(t, 402, pe.Status)
	assert.Equal(t, "card_declined", pe.Code)

	_, ok = clients.AsProviderError(stripeProviderError(errors.New("dial tcp: timeout")))
	assert.False(t, ok)
}
