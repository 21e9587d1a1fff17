// internal/handlers/review.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{
		reviewService: reviewService,
	}
}

// GET /reviews?product_type=COURSE&product_id=...
func (h *ReviewHandler) ListReviews(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	productType := models.ProductType(strings.ToUpper(c.Query("product_type")))
	if !productType.Valid() {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "product_type"), nil)
		return
	}
	productID, err := uuid.Parse(c.Query("product_id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "product_id"), nil)
		return
	}

	params := utils.GetPaginationParams(c)
	list, total, err := h.reviewService.ListReviews(productType, productID, params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(list.Reviews, total, params)
	utils.SetPaginationHeaders(c, result)
	utils.SuccessResponseWithMeta(c, list.Reviews, gin.H{
		"summary": list.Summary,
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

// GET /reviews/mine
func (h *ReviewHandler) MyReviews(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	reviews, err := h.reviewService.MyReviews(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, reviews)
}

// POST /reviews
func (h *ReviewHandler) CreateReview(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateReviewRequest
	if !bindAndValidate(c, &req) {
		return
	}

	review, err := h.reviewService.CreateReview(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyReviewCreated),
		"review":  review,
	})
}

// PUT /reviews/:id
func (h *ReviewHandler) UpdateReview(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	reviewID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateReviewRequest
	if !bindAndValidate(c, &req) {
		return
	}

	review, err := h.reviewService.UpdateReview(userID, reviewID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, review)
}

// DELETE /reviews/:id
func (h *ReviewHandler) DeleteReview(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	reviewID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.reviewService.DeleteReview(userID, isAdmin(c), reviewID); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeySuccess)})
}

// POST /reviews/:id/report
func (h *ReviewHandler) ReportReview(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	reviewID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ReportReviewRequest
	if !bindAndValidate(c, &req) {
		return
	}

	report, err := h.reviewService.ReportReview(userID, reviewID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyReviewReported),
		"report":  report,
	})
}

// GET /admin/reviews
func (h *ReviewHandler) AdminListReviews(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	productType := models.ProductType(strings.ToUpper(c.Query("product_type")))

	reviews, total, err := h.reviewService.ListAllReviews(params, productType)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, reviews, total, params)
}

// PUT /admin/reviews/:id/hide and /admin/reviews/:id/restore
func (h *ReviewHandler) SetReviewStatus(status models.ReviewStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, exists := utils.GetUserIDFromContext(c)
		if !exists {
			utils.UnauthorizedResponse(c, "")
			return
		}
		reviewID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		review, err := h.reviewService.SetReviewStatus(adminID, reviewID, status)
		if err != nil {
			respondError(c, err)
			return
		}

		utils.SuccessResponse(c, review)
	}
}

// GET /admin/reports
func (h *ReviewHandler) ListReports(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	reports, total, err := h.reviewService.ListReports(params)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, reports, total, params)
}

// POST /admin/reports/:id/resolve
func (h *ReviewHandler) ResolveReport(c *gin.Context) {
	adminID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	reportID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ResolveReportRequest
	if !bindAndValidate(c, &req) {
		return
	}

	report, err := h.reviewService.ResolveReport(adminID, reportID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, report)
}
