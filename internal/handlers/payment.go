// internal/handlers/payment.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type PaymentHandler struct {
	orderService *services.OrderService
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func NewPaymentHandler(orderService *services.OrderService) *PaymentHandler {
	return &PaymentHandler{
		orderService: orderService,
	}
}

// POST /orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	checkout, err := h.orderService.CreateOrder(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, checkout)
}

// POST /payments/confirm
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.ConfirmPaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	order, err := h.orderService.ConfirmPayment(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentSuccess),
		"order":   order,
	})
}

// POST /orders/:orderNo/cancel
func (h *PaymentHandler) CancelOrder(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req CancelOrderRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}

	order, err := h.orderService.CancelOrder(userID, c.Param("orderNo"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

// GET /orders
func (h *PaymentHandler) MyOrders(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	orders, total, err := h.orderService.MyOrders(userID, params)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, orders, total, params)
}

// GET /orders/:orderNo
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	order, err := h.orderService.GetOrder(userID, c.Param("orderNo"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

// GET /admin/orders
func (h *PaymentHandler) ListOrders(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := services.OrderFilter{
		PaginationParams: params,
		ProductType:      models.ProductType(strings.ToUpper(c.Query("product_type"))),
		Provider:         models.PaymentProvider(strings.ToUpper(c.Query("provider"))),
	}

	orders, total, err := h.orderService.ListOrders(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, orders, total, params)
}

// GET /admin/orders/:id
func (h *PaymentHandler) AdminGetOrder(c *gin.Context) {
	orderID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrderByID(orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

// POST /admin/orders/:id/refund
func (h *PaymentHandler) RefundOrder(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	orderID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RefundRequest
	if !bindAndValidate(c, &req) {
		return
	}

	order, err := h.orderService.RefundOrder(c.Request.Context(), orderID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentRefunded),
		"order":   order,
	})
}
