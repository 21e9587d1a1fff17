// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// PUT /users/me
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.UpdateUserProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}

// PUT /users/me/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	sessionID, _ := utils.GetSessionIDFromContext(c)

	var req services.ChangePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.userService.ChangePassword(userID, sessionID, &req); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeySuccess),
	})
}

// DELETE /users/me
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.DeleteAccountRequest
	// The body is optional for accounts without a password.
	_ = c.ShouldBindJSON(&req)

	if err := h.userService.DeleteAccount(userID, req.Password); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeySuccess),
	})
}

// GET /admin/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	users, total, err := h.userService.ListUsers(params, c.Query("role"))
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, users, total, params)
}

// GET /admin/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.userService.GetUserDetail(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, detail)
}

// PUT /admin/users/:id/status
func (h *UserHandler) UpdateUserStatus(c *gin.Context) {
	adminID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	userID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateUserStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.userService.UpdateUserStatus(adminID, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}
