// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/classroom-app/classroom-backend/internal/clients"
	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

// respondError maps a service error onto the response envelope.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrNotFound):
		respondNotFound(c, err)

	case errors.Is(err, services.ErrEnrollmentNeeded):
		utils.ErrorResponse(c, http.StatusForbidden, utils.CodeForbidden, i18n.T(lang, i18n.KeyEnrollmentRequired), nil)
	case errors.Is(err, services.ErrReviewNotEligible):
		utils.ErrorResponse(c, http.StatusForbidden, utils.CodeForbidden, i18n.T(lang, i18n.KeyReviewNotEligible), nil)
	case errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c, "")
	case errors.Is(err, services.ErrAccountSuspended):
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyAuthSuspended))

	case errors.Is(err, services.ErrInvalidCredentials):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidCredentials))
	case errors.Is(err, services.ErrSessionInvalid):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthSessionRevoked))
	case errors.Is(err, services.ErrInvalidSignature):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyWebhookInvalidSignature))
	case errors.Is(err, services.ErrUnauthorized):
		utils.UnauthorizedResponse(c, "")

	case errors.Is(err, services.ErrUserExists):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyAuthUserExists))
	case errors.Is(err, services.ErrAlreadyReviewed):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyReviewAlreadyExists))
	case errors.Is(err, services.ErrAlreadyReported):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyReviewAlreadyReported))
	case errors.Is(err, services.ErrOrderNotPayable):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyOrderNotPayable))
	case errors.Is(err, services.ErrOrderNotRefund):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyOrderNotRefundable))
	case errors.Is(err, services.ErrConflict):
		utils.ConflictResponse(c, err.Error())

	case errors.Is(err, services.ErrInvalidAmount):
		utils.ErrorResponse(c, http.StatusBadRequest, utils.CodeInvalidAmount, i18n.T(lang, i18n.KeyPaymentInvalidAmt), nil)
	case errors.Is(err, services.ErrPaymentFailed):
		respondPaymentFailed(c, err)

	case errors.Is(err, services.ErrInvalidReorder):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyReorderInvalid), err.Error())
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrInvalidPeriod):
		utils.BadRequestResponse(c, err.Error(), nil)

	default:
		if pe, ok := clients.AsProviderError(err); ok {
			logrus.WithError(err).WithField("provider", pe.Provider).Warn("Upstream provider error")
			utils.ErrorResponse(c, http.StatusBadGateway, utils.CodeInternalError, pe.Message, gin.H{
				"provider": pe.Provider,
				"code":     pe.Code,
			})
			return
		}
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled service error")
		utils.InternalErrorResponse(c, "")
	}
}

// respondNotFound localizes "<resource> not found" errors, falling back to a generic message.
func respondNotFound(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)
	message := i18n.T(lang, i18n.KeyNotFound)
	if fields := strings.Fields(err.Error()); len(fields) > 0 {
		key := fields[0] + ".not_found"
		if text := i18n.T(lang, key); text != key {
			message = text
		}
	}
	utils.ErrorResponse(c, http.StatusNotFound, utils.CodeNotFound, message, nil)
}

func respondPaymentFailed(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)
	var details gin.H
	if pe, ok := clients.AsProviderError(err); ok {
		details = gin.H{"provider": pe.Provider, "code": pe.Code, "message": pe.Message}
	}
	utils.ErrorResponse(c, http.StatusPaymentRequired, utils.CodePaymentFailed, i18n.T(lang, i18n.KeyPaymentFailed), details)
}

// bindAndValidate decodes the JSON body into req and runs struct validation, writing
// the error response itself when either step fails.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)

	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func paginated(c *gin.Context, data interface{}, total int64, params utils.PaginationParams) {
	utils.PaginatedResponse(c, utils.CreatePaginationResult(data, total, params))
}

// viewer describes the caller of an endpoint that also serves anonymous visitors.
func viewer(c *gin.Context) services.Viewer {
	v := services.Viewer{}
	if id, ok := utils.GetUserIDFromContext(c); ok {
		v.UserID = &id
	}
	role, _ := utils.GetUserRoleFromContext(c)
	v.IsAdmin = role == "ADMIN"
	return v
}

func isAdmin(c *gin.Context) bool {
	role, _ := utils.GetUserRoleFromContext(c)
	return role == "ADMIN"
}
