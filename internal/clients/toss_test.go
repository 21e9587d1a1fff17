package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTossConfirm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/confirm", r.URL.Path)
		assert.Equal(t, "confirm-CR1", r.Header.Get("Idempotency-Key"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "test_sk", user)
		assert.Empty(t, pass)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pk_1", body["paymentKey"])
		assert.Equal(t, "CR1", body["orderId"])
		assert.Equal(t, float64(50000), body["amount"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"paymentKey":"pk_1","orderId":"CR1","status":"DONE","method":"카드","totalAmount":50000,"balanceAmount":50000,"approvedAt":"2024-03-01T10:00:00+09:00"}`))
	}))
	defer server.Close()

	client := NewTossClient(server.URL, "test_sk", 5*time.Second)
	payment, raw, err := client.Confirm(context.Background(), "pk_1", "CR1", 50000, "confirm-CR1")
	require.NoError(t, err)
	assert.Equal(t, "DONE", payment.Status)
	assert.Equal(t, int64(50000), payment.TotalAmount)
	assert.Contains(t, string(raw), `"paymentKey":"pk_1"`)
}

func TestTossConfirmError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"ALREADY_PROCESSED_PAYMENT","message":"이미 처리된 결제 입니다."}`))
	}))
	defer server.Close()

	client := NewTossClient(server.URL, "test_sk", 5*time.Second)
	_, _, err := client.Confirm(context.Background(), "pk_1", "CR1", 50000, "confirm-CR1")
	require.Error(t, err)

	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "toss", pe.Provider)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Equal(t, "ALREADY_PROCESSED_PAYMENT", pe.Code)
}

func TestTossCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pk_1/cancel", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "changed mind", body["cancelReason"])
		assert.Equal(t, float64(10000), body["cancelAmount"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"paymentKey":"pk_1","status":"PARTIAL_CANCELED","balanceAmount":40000,"cancels":[{"cancelAmount":10000,"cancelReason":"changed mind"}]}`))
	}))
	defer server.Close()

	amount := int64(10000)
	client := NewTossClient(server.URL, "test_sk", 5*time.Second)
	payment, _, err := client.Cancel(context.Background(), "pk_1", "changed mind", &amount, "refund-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40000), payment.BalanceAmount)
	require.Len(t, payment.Cancels, 1)
	assert.Equal(t, amount, payment.Cancels[0].CancelAmount)
}
