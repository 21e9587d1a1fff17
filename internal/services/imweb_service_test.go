package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/testutil"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type fakeImwebAPI struct {
	members  map[string]*clients.ImwebMember
	orders   map[string]*clients.ImwebOrder
	orderErr error
}

func (f *fakeImwebAPI) GetMember(ctx context.Context, memberCode string) (*clients.ImwebMember, error) {
	member, ok := f.members[memberCode]
	if !ok {
		return nil, &clients.ProviderError{Provider: "imweb", Status: 404, Message: "member not found"}
	}
	return member, nil
}

func (f *fakeImwebAPI) GetOrder(ctx context.Context, orderNo string) (*clients.ImwebOrder, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	order, ok := f.orders[orderNo]
	if !ok {
		return nil, &clients.ProviderError{Provider: "imweb", Status: 404, Message: "order not found"}
	}
	return order, nil
}

func newImwebService(t *testing.T, api ImwebAPI) (*ImwebService, *gorm.DB) {
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	return NewImwebService(db, cfg, api, NewFulfillmentService(db, cfg)), db
}

func TestVerifyWebhook(t *testing.T) {
	service, _ := newImwebService(t, nil)
	body := []byte(`{"event":"ORDER_COMPLETE"}`)

	assert.NoError(t, service.VerifyWebhook(body, utils.SignHMAC(body, "imweb-secret"), ""))
	assert.NoError(t, service.VerifyWebhook(body, "sha256="+utils.SignHMAC(body, "imweb-secret"), ""))
	assert.NoError(t, service.VerifyWebhook(body, "", "imweb-token"))
	assert.ErrorIs(t, service.VerifyWebhook(body, utils.SignHMAC(body, "wrong"), ""), ErrInvalidSignature)
	assert.ErrorIs(t, service.VerifyWebhook(body, "", "wrong-token"), ErrInvalidSignature)
	assert.ErrorIs(t, service.VerifyWebhook(body, "", ""), ErrInvalidSignature)

	service.config.Imweb.WebhookSecret = ""
	service.config.Imweb.WebhookToken = ""
	assert.ErrorIs(t, service.VerifyWebhook(body, utils.SignHMAC(body, ""), ""), ErrInvalidSignature)
}

func TestReceiveRejectsMalformedBody(t *testing.T) {
	service, _ := newImwebService(t, nil)

	_, err := service.Receive(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = service.Receive(context.Background(), []byte(`{"event_id":"e1"}`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReceiveOrderCompleteFromAPI(t *testing.T) {
	api := &fakeImwebAPI{
		members: map[string]*clients.ImwebMember{
			"m100": {MemberCode: "m100", Name: "Kim", Email: "Kim@Example.com", Call: "010-0000-0000"},
		},
		orders: map[string]*clients.ImwebOrder{
			"2024001": {
				OrderNo:   "2024001",
				OrderTime: 1700000000,
				Orderer:   clients.ImwebOrderer{MemberCode: "m100"},
				Items: []clients.ImwebOrderItem{
					{ProdNo: "P-1", Price: 55000, Count: 1},
					{ProdNo: "UNKNOWN", Price: 1000, Count: 1},
				},
			},
		},
	}
	service, db := newImwebService(t, api)
	course := testutil.CreateCourse(t, db, "imweb-course", 60000)
	require.NoError(t, db.Model(course).Update("imweb_product_no", "P-1").Error)

	body := []byte(`{"event_id":"evt-1","event":"order_complete","data":{"order_no":"2024001"}}`)
	result, err := service.Receive(context.Background(), body)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, models.EventStatusProcessed, result.Status)

	var user models.User
	require.NoError(t, db.Where("imweb_member_code = ?", "m100").First(&user).Error)
	assert.Equal(t, "kim@example.com", user.Email)
	assert.Equal(t, "010-0000-0000", user.Phone)

	var order models.Order
	require.NoError(t, db.Where("order_no = ?", "IMWEB-2024001-P-1").First(&order).Error)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, models.PaymentProviderImweb, order.Provider)
	assert.Equal(t, int64(55000), order.Amount)
	assert.Equal(t, user.ID, order.UserID)

	var enrollment models.Enrollment
	require.NoError(t, db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&enrollment).Error)
	assert.Equal(t, models.GrantStatusActive, enrollment.Status)

	again, err := service.Receive(context.Background(), body)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, result.EventID, again.EventID)

	var orders int64
	db.Model(&models.Order{}).Count(&orders)
	assert.Equal(t, int64(1), orders)
}

func TestReceiveOrderCompleteWithoutAPI(t *testing.T) {
	service, db := newImwebService(t, nil)
	textbook := testutil.CreateTextbook(t, db, "imweb-book", 18000)
	require.NoError(t, db.Model(textbook).Update("imweb_product_no", "B-7").Error)
	existing := testutil.CreateUser(t, db, "reader@example.com")

	body := []byte(`{"event":"PAYMENT_COMPLETE","data":{"order_no":"2024002","prod_no":"B-7","email":"reader@example.com","name":"Reader"}}`)
	result, err := service.Receive(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusProcessed, result.Status)

	var order models.Order
	require.NoError(t, db.Where("provider_order_no = ?", "2024002").First(&order).Error)
	assert.Equal(t, existing.ID, order.UserID)
	assert.Equal(t, int64(18000), order.Amount)
	assert.Equal(t, models.ProductTypeTextbook, order.ProductType)

	var entitlement models.TextbookEntitlement
	require.NoError(t, db.Where("user_id = ? AND textbook_id = ?", existing.ID, textbook.ID).First(&entitlement).Error)

	var event models.OrderEvent
	require.NoError(t, db.First(&event, "id = ?", result.EventID).Error)
	assert.Equal(t, utils.HashString(string(body)), event.ExternalID)
}

func TestReceiveOrderCompleteWithoutAPIRequiresProduct(t *testing.T) {
	service, _ := newImwebService(t, nil)

	result, err := service.Receive(context.Background(), []byte(`{"event_id":"evt-9","event":"ORDER_COMPLETE","data":{"order_no":"1","email":"a@example.com"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFailed, result.Status)
}

func TestOrderCancelRevokesGrants(t *testing.T) {
	service, db := newImwebService(t, nil)
	course := testutil.CreateCourse(t, db, "cancel-course", 30000)
	require.NoError(t, db.Model(course).Update("imweb_product_no", "C-1").Error)

	_, err := service.Receive(context.Background(), []byte(`{"event_id":"buy","event":"ORDER_COMPLETE","data":{"order_no":"77","prod_no":"C-1","email":"buyer@example.com"}}`))
	require.NoError(t, err)

	result, err := service.Receive(context.Background(), []byte(`{"event_id":"cancel","event":"ORDER_CANCEL","data":{"order_no":"77"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusProcessed, result.Status)

	var order models.Order
	require.NoError(t, db.Where("provider_order_no = ?", "77").First(&order).Error)
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
	assert.Equal(t, order.Amount, order.RefundedAmount)

	var enrollment models.Enrollment
	require.NoError(t, db.Where("course_id = ?", course.ID).First(&enrollment).Error)
	assert.Equal(t, models.GrantStatusRevoked, enrollment.Status)
}

func TestUnknownEventIsIgnored(t *testing.T) {
	service, _ := newImwebService(t, nil)

	result, err := service.Receive(context.Background(), []byte(`{"event_id":"x","event":"BOARD_POST","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusIgnored, result.Status)
}

func TestMemberJoinCreatesUser(t *testing.T) {
	service, db := newImwebService(t, nil)

	_, err := service.Receive(context.Background(), []byte(`{"event_id":"join","event":"MEMBER_JOIN","data":{"member_code":"M-55","name":"Lee","call":"010-1111-2222"}}`))
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.Where("imweb_member_code = ?", "M-55").First(&user).Error)
	assert.Equal(t, "imweb_m-55@imweb.local", user.Email)
	assert.Equal(t, "Lee", user.Name)
	assert.Equal(t, "010-1111-2222", user.Phone)
}

func TestMemberJoinAfterAccountDeletion(t *testing.T) {
	service, db := newImwebService(t, nil)
	user := testutil.CreateUser(t, db, "returning@example.com")
	require.NoError(t, db.Model(user).Update("imweb_member_code", "M-77").Error)
	require.NoError(t, NewUserService(db, nil).DeleteAccount(user.ID, testutil.TestPassword))

	result, err := service.Receive(context.Background(), []byte(`{"event_id":"rejoin","event":"MEMBER_JOIN","data":{"member_code":"M-77","email":"returning@example.com","name":"Choi"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusProcessed, result.Status)

	var rejoined models.User
	require.NoError(t, db.Where("email = ?", "returning@example.com").First(&rejoined).Error)
	assert.NotEqual(t, user.ID, rejoined.ID)
	assert.Equal(t, "M-77", rejoined.ImwebMemberCode)
}

func TestRetryFailedRecoversEvents(t *testing.T) {
	api := &fakeImwebAPI{
		members:  map[string]*clients.ImwebMember{"m1": {MemberCode: "m1", Email: "m1@example.com"}},
		orders:   map[string]*clients.ImwebOrder{},
		orderErr: errors.New("imweb unavailable"),
	}
	service, db := newImwebService(t, api)
	course := testutil.CreateCourse(t, db, "retry-course", 10000)
	require.NoError(t, db.Model(course).Update("imweb_product_no", "R-1").Error)

	result, err := service.Receive(context.Background(), []byte(`{"event_id":"retry","event":"ORDER_COMPLETE","data":{"order_no":"900"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFailed, result.Status)

	recovered, err := service.RetryFailed(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	api.orderErr = nil
	api.orders["900"] = &clients.ImwebOrder{
		OrderNo: "900",
		Orderer: clients.ImwebOrderer{MemberCode: "m1"},
		Items:   []clients.ImwebOrderItem{{ProdNo: "R-1", Count: 1}},
	}

	recovered, err = service.RetryFailed(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	var event models.OrderEvent
	require.NoError(t, db.First(&event, "id = ?", result.EventID).Error)
	assert.Equal(t, models.EventStatusProcessed, event.Status)
	assert.Equal(t, 3, event.Attempts)
	assert.Empty(t, event.Error)

	var order models.Order
	require.NoError(t, db.Where("provider_order_no = ?", "900").First(&order).Error)
	assert.Equal(t, int64(10000), order.Amount)

	events, total, err := service.ListEvents(testutil.Params())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, events, 1)
}
