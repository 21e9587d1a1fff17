package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/testutil"
)

type fakeGateway struct {
	confirmCalls int
	refundCalls  int
	confirmErr   error
	refundErr    error
}

func (g *fakeGateway) Provider() models.PaymentProvider { return models.PaymentProviderToss }

func (g *fakeGateway) Prepare(ctx context.Context, order *models.Order) (map[string]interface{}, error) {
	return map[string]interface{}{"order_id": order.OrderNo, "amount": order.Amount}, nil
}

func (g *fakeGateway) Confirm(ctx context.Context, order *models.Order, paymentKey string) (*GatewayResult, error) {
	g.confirmCalls++
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &GatewayResult{PaymentKey: paymentKey, Method: "CARD", Amount: order.Amount}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, order *models.Order, amount int64, reason string) (*GatewayResult, error) {
	g.refundCalls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &GatewayResult{PaymentKey: order.PaymentKey, Amount: amount}, nil
}

// heldGateway parks the first refund until release is closed.
type heldGateway struct {
	fakeGateway
	entered  chan struct{}
	release  chan struct{}
	calls    int32
	refunded int64
}

func newHeldGateway() *heldGateway {
	return &heldGateway{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *heldGateway) Refund(ctx context.Context, order *models.Order, amount int64, reason string) (*GatewayResult, error) {
	if atomic.AddInt32(&g.calls, 1) == 1 {
		close(g.entered)
		<-g.release
	}
	atomic.AddInt64(&g.refunded, amount)
	return &GatewayResult{PaymentKey: order.PaymentKey, Amount: amount}, nil
}

// keyedGateway hands out a payment key when the order is prepared, as Stripe does.
type keyedGateway struct {
	fakeGateway
}

func (g *keyedGateway) Prepare(ctx context.Context, order *models.Order) (map[string]interface{}, error) {
	return map[string]interface{}{"payment_key": "pi_" + order.OrderNo}, nil
}

type OrderServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	gateway *fakeGateway
	service *OrderService
	buyer   *models.User
	course  *models.Course
	ctx     context.Context
}

func (suite *OrderServiceTestSuite) SetupTest() {
	suite.db = testutil.NewDB(suite.T())
	cfg := testutil.Config(suite.T())
	suite.gateway = &fakeGateway{}
	suite.service = NewOrderService(suite.db, cfg, suite.gateway, NewFulfillmentService(suite.db, cfg), nil)
	suite.buyer = testutil.CreateUser(suite.T(), suite.db, "buyer@example.com")
	suite.course = testutil.CreateCourse(suite.T(), suite.db, "go-basics", 50000)
	suite.ctx = context.Background()
}

func (suite *OrderServiceTestSuite) createOrder() *models.Order {
	checkout, err := suite.service.CreateOrder(suite.ctx, suite.buyer.ID, &CreateOrderRequest{
		ProductType: models.ProductTypeCourse,
		ProductID:   suite.course.ID,
	})
	suite.Require().NoError(err)
	return checkout.Order
}

func (suite *OrderServiceTestSuite) confirm(order *models.Order) *models.Order {
	confirmed, err := suite.service.ConfirmPayment(suite.ctx, suite.buyer.ID, &ConfirmPaymentRequest{
		PaymentKey: "pk_test",
		OrderNo:    order.OrderNo,
		Amount:     order.Amount,
	})
	suite.Require().NoError(err)
	return confirmed
}

func (suite *OrderServiceTestSuite) TestCreateOrderUsesServerPrice() {
	salePrice := int64(39000)
	suite.Require().NoError(suite.db.Model(suite.course).Update("sale_price", salePrice).Error)

	order := suite.createOrder()

	suite.Equal(models.OrderStatusPending, order.Status)
	suite.Equal(salePrice, order.Amount)
	suite.Equal(models.PaymentProviderToss, order.Provider)
	suite.NotEmpty(order.OrderNo)
}

func (suite *OrderServiceTestSuite) TestCreateOrderRejectsDraftProduct() {
	suite.Require().NoError(suite.db.Model(suite.course).Update("status", models.PublishStatusDraft).Error)

	_, err := suite.service.CreateOrder(suite.ctx, suite.buyer.ID, &CreateOrderRequest{
		ProductType: models.ProductTypeCourse,
		ProductID:   suite.course.ID,
	})
	suite.ErrorIs(err, ErrNotFound)
}

func (suite *OrderServiceTestSuite) TestCreateOrderStoresPreparedPaymentKey() {
	cfg := testutil.Config(suite.T())
	service := NewOrderService(suite.db, cfg, &keyedGateway{}, NewFulfillmentService(suite.db, cfg), nil)

	checkout, err := service.CreateOrder(suite.ctx, suite.buyer.ID, &CreateOrderRequest{
		ProductType: models.ProductTypeCourse,
		ProductID:   suite.course.ID,
	})
	suite.Require().NoError(err)
	suite.Equal("pi_"+checkout.Order.OrderNo, checkout.Order.PaymentKey)

	var stored models.Order
	suite.Require().NoError(suite.db.First(&stored, "id = ?", checkout.Order.ID).Error)
	suite.Equal(checkout.Order.PaymentKey, stored.PaymentKey)
}

func (suite *OrderServiceTestSuite) TestFreeOrderCompletesImmediately() {
	free := testutil.CreateCourse(suite.T(), suite.db, "free-course", 0)

	checkout, err := suite.service.CreateOrder(suite.ctx, suite.buyer.ID, &CreateOrderRequest{
		ProductType: models.ProductTypeCourse,
		ProductID:   free.ID,
	})
	suite.Require().NoError(err)
	suite.Equal(models.OrderStatusCompleted, checkout.Order.Status)
	suite.Equal(models.PaymentProviderManual, checkout.Order.Provider)
	suite.Nil(checkout.Payment)

	var enrollment models.Enrollment
	suite.Require().NoError(suite.db.Where("user_id = ? AND course_id = ?", suite.buyer.ID, free.ID).First(&enrollment).Error)
	suite.Equal(models.GrantStatusActive, enrollment.Status)
}

func (suite *OrderServiceTestSuite) TestConfirmPaymentGrantsEnrollment() {
	order := suite.confirm(suite.createOrder())

	suite.Equal(models.OrderStatusCompleted, order.Status)
	suite.Equal("pk_test", order.PaymentKey)
	suite.NotNil(order.PaidAt)

	var enrollment models.Enrollment
	suite.Require().NoError(suite.db.Where("user_id = ? AND course_id = ?", suite.buyer.ID, suite.course.ID).First(&enrollment).Error)
	suite.Equal(order.ID, *enrollment.OrderID)
	suite.WithinDuration(enrollment.StartAt.AddDate(0, 0, suite.course.AccessDays), enrollment.EndAt, time.Second)
}

func (suite *OrderServiceTestSuite) TestConfirmPaymentIsIdempotent() {
	order := suite.createOrder()
	suite.confirm(order)
	again := suite.confirm(order)

	suite.Equal(models.OrderStatusCompleted, again.Status)
	suite.Equal(1, suite.gateway.confirmCalls)

	var count int64
	suite.db.Model(&models.Enrollment{}).Where("user_id = ?", suite.buyer.ID).Count(&count)
	suite.Equal(int64(1), count)
}

func (suite *OrderServiceTestSuite) TestConfirmPaymentAmountMismatch() {
	order := suite.createOrder()

	_, err := suite.service.ConfirmPayment(suite.ctx, suite.buyer.ID, &ConfirmPaymentRequest{
		PaymentKey: "pk_test",
		OrderNo:    order.OrderNo,
		Amount:     order.Amount - 1,
	})
	suite.ErrorIs(err, ErrInvalidAmount)
	suite.Zero(suite.gateway.confirmCalls)

	var stored models.Order
	suite.Require().NoError(suite.db.First(&stored, "id = ?", order.ID).Error)
	suite.Equal(models.OrderStatusPending, stored.Status)
}

func (suite *OrderServiceTestSuite) TestConfirmPaymentByAnotherUser() {
	order := suite.createOrder()
	other := testutil.CreateUser(suite.T(), suite.db, "other@example.com")

	_, err := suite.service.ConfirmPayment(suite.ctx, other.ID, &ConfirmPaymentRequest{
		PaymentKey: "pk_test",
		OrderNo:    order.OrderNo,
		Amount:     order.Amount,
	})
	suite.ErrorIs(err, ErrForbidden)
}

func (suite *OrderServiceTestSuite) TestConfirmPaymentGatewayFailure() {
	suite.gateway.confirmErr = &clients.ProviderError{Provider: "toss", Code: "REJECT_CARD_COMPANY", Message: "card declined"}
	order := suite.createOrder()

	_, err := suite.service.ConfirmPayment(suite.ctx, suite.buyer.ID, &ConfirmPaymentRequest{
		PaymentKey: "pk_test",
		OrderNo:    order.OrderNo,
		Amount:     order.Amount,
	})
	suite.ErrorIs(err, ErrPaymentFailed)

	var stored models.Order
	suite.Require().NoError(suite.db.First(&stored, "id = ?", order.ID).Error)
	suite.Equal(models.OrderStatusFailed, stored.Status)
	suite.Equal("REJECT_CARD_COMPANY", stored.FailureCode)

	var count int64
	suite.db.Model(&models.Enrollment{}).Count(&count)
	suite.Zero(count)
}

func (suite *OrderServiceTestSuite) TestCancelOrder() {
	order := suite.createOrder()

	cancelled, err := suite.service.CancelOrder(suite.buyer.ID, order.OrderNo, "changed my mind")
	suite.Require().NoError(err)
	suite.Equal(models.OrderStatusCancelled, cancelled.Status)

	_, err = suite.service.ConfirmPayment(suite.ctx, suite.buyer.ID, &ConfirmPaymentRequest{
		PaymentKey: "pk_test",
		OrderNo:    order.OrderNo,
		Amount:     order.Amount,
	})
	suite.ErrorIs(err, ErrOrderNotPayable)
}

func (suite *OrderServiceTestSuite) TestPartialThenFullRefund() {
	order := suite.confirm(suite.createOrder())

	partial := int64(10000)
	refunded, err := suite.service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Amount: &partial, Reason: "partial"})
	suite.Require().NoError(err)
	suite.Equal(models.OrderStatusPartiallyRefunded, refunded.Status)
	suite.Equal(partial, refunded.RefundedAmount)

	var enrollment models.Enrollment
	suite.Require().NoError(suite.db.Where("user_id = ?", suite.buyer.ID).First(&enrollment).Error)
	suite.Equal(models.GrantStatusActive, enrollment.Status)

	refunded, err = suite.service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Reason: "rest"})
	suite.Require().NoError(err)
	suite.Equal(models.OrderStatusRefunded, refunded.Status)
	suite.Equal(order.Amount, refunded.RefundedAmount)
	suite.Equal(2, suite.gateway.refundCalls)

	suite.Require().NoError(suite.db.Where("user_id = ?", suite.buyer.ID).First(&enrollment).Error)
	suite.Equal(models.GrantStatusRevoked, enrollment.Status)
}

func (suite *OrderServiceTestSuite) TestRefundExceedingRemainder() {
	order := suite.confirm(suite.createOrder())

	tooMuch := order.Amount + 1
	_, err := suite.service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Amount: &tooMuch, Reason: "oops"})
	suite.ErrorIs(err, ErrInvalidAmount)
	suite.Zero(suite.gateway.refundCalls)
}

func (suite *OrderServiceTestSuite) refundWhileHeld(first, second int64) (firstErr, secondErr error, gateway *heldGateway) {
	order := suite.confirm(suite.createOrder())
	gateway = newHeldGateway()
	cfg := testutil.Config(suite.T())
	service := NewOrderService(suite.db, cfg, gateway, NewFulfillmentService(suite.db, cfg), nil)

	done := make(chan error, 1)
	go func() {
		_, err := service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Amount: &first, Reason: "first"})
		done <- err
	}()
	<-gateway.entered

	_, secondErr = service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Amount: &second, Reason: "second"})
	close(gateway.release)
	return <-done, secondErr, gateway
}

func (suite *OrderServiceTestSuite) TestConcurrentRefundsCannotExceedBalance() {
	firstErr, secondErr, gateway := suite.refundWhileHeld(30000, 30000)

	suite.NoError(firstErr)
	suite.ErrorIs(secondErr, ErrInvalidAmount)
	suite.Equal(int32(1), atomic.LoadInt32(&gateway.calls))

	var stored models.Order
	suite.Require().NoError(suite.db.First(&stored, "user_id = ?", suite.buyer.ID).Error)
	suite.Equal(int64(30000), stored.RefundedAmount)
	suite.Zero(stored.RefundPending)
	suite.Equal(models.OrderStatusPartiallyRefunded, stored.Status)
}

func (suite *OrderServiceTestSuite) TestConcurrentPartialRefundsAccumulate() {
	firstErr, secondErr, gateway := suite.refundWhileHeld(20000, 20000)

	suite.NoError(firstErr)
	suite.NoError(secondErr)
	suite.Equal(int64(40000), atomic.LoadInt64(&gateway.refunded))

	var stored models.Order
	suite.Require().NoError(suite.db.First(&stored, "user_id = ?", suite.buyer.ID).Error)
	suite.Equal(int64(40000), stored.RefundedAmount)
	suite.Zero(stored.RefundPending)
	suite.Equal(models.OrderStatusPartiallyRefunded, stored.Status)
}

func (suite *OrderServiceTestSuite) TestRejectedRefundReleasesReservation() {
	order := suite.confirm(suite.createOrder())
	suite.gateway.refundErr = &clients.ProviderError{Provider: "toss", Status: 400, Code: "NOT_CANCELABLE_PAYMENT"}

	partial := int64(10000)
	_, err := suite.service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Amount: &partial, Reason: "partial"})
	suite.ErrorIs(err, ErrPaymentFailed)

	var stored models.Order
	suite.Require().NoError(suite.db.First(&stored, "id = ?", order.ID).Error)
	suite.Zero(stored.RefundPending)
	suite.Zero(stored.RefundedAmount)
	suite.Equal(models.OrderStatusCompleted, stored.Status)

	suite.gateway.refundErr = nil
	refunded, err := suite.service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Reason: "all"})
	suite.Require().NoError(err)
	suite.Equal(models.OrderStatusRefunded, refunded.Status)
}

func (suite *OrderServiceTestSuite) TestRefundPendingOrderCancelsIt() {
	order := suite.createOrder()

	refunded, err := suite.service.RefundOrder(suite.ctx, order.ID, &RefundRequest{Reason: "admin cancel"})
	suite.Require().NoError(err)
	suite.Equal(models.OrderStatusCancelled, refunded.Status)
	suite.Zero(suite.gateway.refundCalls)
}

func (suite *OrderServiceTestSuite) TestListOrdersFilters() {
	suite.createOrder()
	textbook := testutil.CreateTextbook(suite.T(), suite.db, "workbook", 12000)
	_, err := suite.service.CreateOrder(suite.ctx, suite.buyer.ID, &CreateOrderRequest{
		ProductType: models.ProductTypeTextbook,
		ProductID:   textbook.ID,
	})
	suite.Require().NoError(err)

	orders, total, err := suite.service.ListOrders(OrderFilter{
		PaginationParams: testutil.Params(),
		ProductType:      models.ProductTypeTextbook,
	})
	suite.Require().NoError(err)
	suite.Equal(int64(1), total)
	suite.Require().Len(orders, 1)
	suite.Equal(textbook.ID, orders[0].ProductID)

	mine, total, err := suite.service.MyOrders(suite.buyer.ID, testutil.Params())
	suite.Require().NoError(err)
	suite.Equal(int64(2), total)
	suite.Len(mine, 2)
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}

func TestGenerateOrderNo(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	a := generateOrderNo(now)
	b := generateOrderNo(now)

	assert.Regexp(t, `^CR20240301093000[0-9A-F]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestNotFoundWrapsResource(t *testing.T) {
	err := notFound(gorm.ErrRecordNotFound, "course")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "course not found", err.Error())

	other := notFound(errors.New("boom"), "course")
	assert.False(t, errors.Is(other, ErrNotFound))
}
