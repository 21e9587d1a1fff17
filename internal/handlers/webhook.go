// internal/handlers/webhook.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

const (
	imwebSignatureHeader = "X-Imweb-Signature"
	maxWebhookBody       = 1 << 20
)

type WebhookHandler struct {
	imwebService *services.ImwebService
}

func NewWebhookHandler(imwebService *services.ImwebService) *WebhookHandler {
	return &WebhookHandler{
		imwebService: imwebService,
	}
}

// POST /webhooks/imweb
func (h *WebhookHandler) Imweb(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "body"), nil)
		return
	}

	if err := h.imwebService.VerifyWebhook(body, c.GetHeader(imwebSignatureHeader), c.Query("token")); err != nil {
		logrus.WithField("ip", c.ClientIP()).Warn("Rejected Imweb webhook with bad signature")
		respondError(c, err)
		return
	}

	result, err := h.imwebService.Receive(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// GET /admin/webhook-events
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	events, total, err := h.imwebService.ListEvents(params)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, events, total, params)
}

// POST /admin/webhook-events/:id/reprocess
func (h *WebhookHandler) ReprocessEvent(c *gin.Context) {
	eventID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	event, err := h.imwebService.ReprocessEvent(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, event)
}
