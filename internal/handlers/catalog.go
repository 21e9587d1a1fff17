// internal/handlers/catalog.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

// CatalogHandler serves the public storefront and notices.
type CatalogHandler struct {
	catalogService *services.CatalogService
	noticeService  *services.NoticeService
}

func NewCatalogHandler(catalogService *services.CatalogService, noticeService *services.NoticeService) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		noticeService:  noticeService,
	}
}

// GET /courses
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	// Callers that do not ask for an order get the curated one.
	if c.Query("sort") == "" {
		params.Sort = ""
	}

	var teacherID *uuid.UUID
	if raw := c.Query("teacher_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "teacher_id"), nil)
			return
		}
		teacherID = &id
	}

	courses, total, err := h.catalogService.ListCourses(params, teacherID)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, courses, total, params)
}

// GET /courses/:idOrSlug
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	course, err := h.catalogService.GetCourse(c.Param("idOrSlug"), viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, course)
}

// GET /textbooks
func (h *CatalogHandler) ListTextbooks(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	if c.Query("sort") == "" {
		params.Sort = ""
	}

	textbooks, total, err := h.catalogService.ListTextbooks(params)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, textbooks, total, params)
}

// GET /textbooks/:idOrSlug
func (h *CatalogHandler) GetTextbook(c *gin.Context) {
	textbook, err := h.catalogService.GetTextbook(c.Param("idOrSlug"), viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, textbook)
}

// GET /teachers
func (h *CatalogHandler) ListTeachers(c *gin.Context) {
	teachers, err := h.catalogService.ListTeachers()
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, teachers)
}

// GET /teachers/:id
func (h *CatalogHandler) GetTeacher(c *gin.Context) {
	teacherID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	teacher, err := h.catalogService.GetTeacher(teacherID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, teacher)
}

// GET /notices
func (h *CatalogHandler) ListNotices(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	var courseID *uuid.UUID
	if raw := c.Query("course_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "course_id"), nil)
			return
		}
		courseID = &id
	}

	notices, total, err := h.noticeService.ListNotices(params, courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, notices, total, params)
}

// GET /notices/:id
func (h *CatalogHandler) GetNotice(c *gin.Context) {
	noticeID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	notice, err := h.noticeService.GetNotice(noticeID, isAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, notice)
}
