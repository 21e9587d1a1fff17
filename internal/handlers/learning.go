// internal/handlers/learning.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type LearningHandler struct {
	learningService *services.LearningService
}

func NewLearningHandler(learningService *services.LearningService) *LearningHandler {
	return &LearningHandler{
		learningService: learningService,
	}
}

// GET /learning/dashboard
func (h *LearningHandler) Dashboard(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	dashboard, err := h.learningService.Dashboard(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, dashboard)
}

// GET /learning/lessons/:id
func (h *LearningHandler) GetLesson(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	lessonID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	playback, err := h.learningService.LessonAccess(userID, isAdmin(c), lessonID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, playback)
}

// PUT /learning/lessons/:id/progress
func (h *LearningHandler) SaveProgress(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	lessonID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SaveProgressRequest
	if !bindAndValidate(c, &req) {
		return
	}

	progress, err := h.learningService.SaveProgress(userID, isAdmin(c), lessonID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, progress)
}

// GET /learning/courses/:id/progress
func (h *LearningHandler) CourseProgress(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	progress, err := h.learningService.CourseProgress(userID, courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, progress)
}

// GET /learning/courses/:id/attachments
func (h *LearningHandler) CourseAttachments(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	attachments, err := h.learningService.CourseAttachments(userID, isAdmin(c), courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, attachments)
}

// GET /learning/attachments/:id/download
func (h *LearningHandler) DownloadAttachment(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	attachmentID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	link, err := h.learningService.AttachmentDownload(userID, isAdmin(c), attachmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, link)
}

// GET /learning/textbooks/:id/download
func (h *LearningHandler) DownloadTextbook(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	textbookID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	link, err := h.learningService.TextbookDownload(userID, isAdmin(c), textbookID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, link)
}
