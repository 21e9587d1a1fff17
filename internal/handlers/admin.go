// internal/handlers/admin.go
package handlers

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type AdminHandler struct {
	adminService       *services.AdminService
	noticeService      *services.NoticeService
	fulfillmentService *services.FulfillmentService
	vimeoService       *services.VimeoService
}

func NewAdminHandler(
	adminService *services.AdminService,
	noticeService *services.NoticeService,
	fulfillmentService *services.FulfillmentService,
	vimeoService *services.VimeoService,
) *AdminHandler {
	return &AdminHandler{
		adminService:       adminService,
		noticeService:      noticeService,
		fulfillmentService: fulfillmentService,
		vimeoService:       vimeoService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats()
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "user_id"), nil)
			return
		}
		userID = &id
	}

	logs, total, err := h.adminService.ListAuditLogs(params, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, logs, total, params)
}

// Courses

// GET /admin/courses
func (h *AdminHandler) ListCourses(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	courses, total, err := h.adminService.ListCourses(params)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, courses, total, params)
}

// GET /admin/courses/:id
func (h *AdminHandler) GetCourse(c *gin.Context) {
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	course, err := h.adminService.GetCourse(courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, course)
}

// POST /admin/courses
func (h *AdminHandler) CreateCourse(c *gin.Context) {
	var req services.CourseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	course, err := h.adminService.CreateCourse(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, course)
}

// PUT /admin/courses/:id
func (h *AdminHandler) UpdateCourse(c *gin.Context) {
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.CourseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	course, err := h.adminService.UpdateCourse(courseID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, course)
}

// DELETE /admin/courses/:id
func (h *AdminHandler) DeleteCourse(c *gin.Context) {
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteCourse(courseID); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// PUT /admin/courses/reorder
func (h *AdminHandler) ReorderCourses(c *gin.Context) {
	var req services.ReorderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.adminService.ReorderCourses(req.IDs); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// Lessons

// GET /admin/courses/:id/lessons
func (h *AdminHandler) ListLessons(c *gin.Context) {
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	lessons, err := h.adminService.ListLessons(courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, lessons)
}

// POST /admin/courses/:id/lessons
func (h *AdminHandler) CreateLesson(c *gin.Context) {
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.LessonRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lesson, err := h.adminService.CreateLesson(c.Request.Context(), courseID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, lesson)
}

// PUT /admin/courses/:id/lessons/reorder
func (h *AdminHandler) ReorderLessons(c *gin.Context) {
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ReorderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lessons, err := h.adminService.ReorderLessons(courseID, req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, lessons)
}

// PUT /admin/lessons/:id
func (h *AdminHandler) UpdateLesson(c *gin.Context) {
	lessonID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.LessonRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lesson, err := h.adminService.UpdateLesson(c.Request.Context(), lessonID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, lesson)
}

// PUT /admin/lessons/:id/position
func (h *AdminHandler) MoveLesson(c *gin.Context) {
	lessonID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.MoveLessonRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lessons, err := h.adminService.MoveLesson(lessonID, req.Position)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, lessons)
}

// DELETE /admin/lessons/:id
func (h *AdminHandler) DeleteLesson(c *gin.Context) {
	lessonID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteLesson(lessonID); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// POST /admin/lessons/:id/sync-video
func (h *AdminHandler) SyncLessonVideo(c *gin.Context) {
	lessonID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	lesson, err := h.vimeoService.SyncLesson(c.Request.Context(), lessonID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, lesson)
}

// POST /admin/lessons/sync-videos
func (h *AdminHandler) SyncAllVideos(c *gin.Context) {
	synced, failed, err := h.vimeoService.SyncAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"synced": synced,
		"failed": failed,
	})
}

// Textbooks

// GET /admin/textbooks
func (h *AdminHandler) ListTextbooks(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	textbooks, total, err := h.adminService.ListTextbooks(params)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, textbooks, total, params)
}

// POST /admin/textbooks
func (h *AdminHandler) CreateTextbook(c *gin.Context) {
	var req services.TextbookRequest
	if !bindAndValidate(c, &req) {
		return
	}

	textbook, err := h.adminService.CreateTextbook(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, textbook)
}

// PUT /admin/textbooks/:id
func (h *AdminHandler) UpdateTextbook(c *gin.Context) {
	textbookID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.TextbookRequest
	if !bindAndValidate(c, &req) {
		return
	}

	textbook, err := h.adminService.UpdateTextbook(textbookID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, textbook)
}

// DELETE /admin/textbooks/:id
func (h *AdminHandler) DeleteTextbook(c *gin.Context) {
	textbookID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteTextbook(textbookID); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// PUT /admin/textbooks/positions
func (h *AdminHandler) UpdateTextbookPositions(c *gin.Context) {
	var req services.BulkPositionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	textbooks, err := h.adminService.BulkUpdatePositions(req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, textbooks)
}

// POST /admin/textbooks/:id/file
func (h *AdminHandler) UploadTextbookFile(c *gin.Context) {
	textbookID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	file, header, ok := formFile(c)
	if !ok {
		return
	}
	defer file.Close()

	textbook, err := h.adminService.UploadTextbookFile(textbookID, file, header)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, textbook)
}

// POST /admin/uploads/image
func (h *AdminHandler) UploadImage(c *gin.Context) {
	file, header, ok := formFile(c)
	if !ok {
		return
	}
	defer file.Close()

	result, err := h.adminService.UploadImage(file, header)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// Teachers

// GET /admin/teachers
func (h *AdminHandler) ListTeachers(c *gin.Context) {
	teachers, err := h.adminService.ListTeachers()
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, teachers)
}

// POST /admin/teachers
func (h *AdminHandler) CreateTeacher(c *gin.Context) {
	var req services.TeacherRequest
	if !bindAndValidate(c, &req) {
		return
	}

	teacher, err := h.adminService.CreateTeacher(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, teacher)
}

// PUT /admin/teachers/:id
func (h *AdminHandler) UpdateTeacher(c *gin.Context) {
	teacherID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.TeacherRequest
	if !bindAndValidate(c, &req) {
		return
	}

	teacher, err := h.adminService.UpdateTeacher(teacherID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, teacher)
}

// DELETE /admin/teachers/:id
func (h *AdminHandler) DeleteTeacher(c *gin.Context) {
	teacherID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteTeacher(teacherID); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// PUT /admin/teachers/reorder
func (h *AdminHandler) ReorderTeachers(c *gin.Context) {
	var req services.ReorderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.adminService.ReorderTeachers(req.IDs); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// Attachments

// GET /admin/courses/:id/attachments
func (h *AdminHandler) ListAttachments(c *gin.Context) {
	courseID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	attachments, err := h.adminService.ListAttachments(courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, attachments)
}

// POST /admin/attachments (multipart: file, course_id or lesson_id)
func (h *AdminHandler) UploadAttachment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	uploaderID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var target services.AttachmentRequest
	for field, dest := range map[string]**uuid.UUID{
		"course_id": &target.CourseID,
		"lesson_id": &target.LessonID,
	} {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, field), nil)
			return
		}
		*dest = &id
	}

	file, header, ok := formFile(c)
	if !ok {
		return
	}
	defer file.Close()

	attachment, err := h.adminService.UploadAttachment(uploaderID, target, file, header)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, attachment)
}

// DELETE /admin/attachments/:id
func (h *AdminHandler) DeleteAttachment(c *gin.Context) {
	attachmentID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteAttachment(attachmentID); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// Notices

// GET /admin/notices
func (h *AdminHandler) ListNotices(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	notices, total, err := h.noticeService.ListAllNotices(params)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, notices, total, params)
}

// POST /admin/notices
func (h *AdminHandler) CreateNotice(c *gin.Context) {
	authorID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.NoticeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	notice, err := h.noticeService.CreateNotice(authorID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, notice)
}

// PUT /admin/notices/:id
func (h *AdminHandler) UpdateNotice(c *gin.Context) {
	noticeID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.NoticeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	notice, err := h.noticeService.UpdateNotice(noticeID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, notice)
}

// DELETE /admin/notices/:id
func (h *AdminHandler) DeleteNotice(c *gin.Context) {
	noticeID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.noticeService.DeleteNotice(noticeID); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

// Enrollments

// GET /admin/enrollments
func (h *AdminHandler) ListEnrollments(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	filter := services.EnrollmentFilter{
		PaginationParams: utils.GetPaginationParams(c),
	}

	for field, dest := range map[string]**uuid.UUID{
		"user_id":   &filter.UserID,
		"course_id": &filter.CourseID,
	} {
		raw := c.Query(field)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, field), nil)
			return
		}
		*dest = &id
	}

	enrollments, total, err := h.fulfillmentService.ListEnrollments(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	paginated(c, enrollments, total, filter.PaginationParams)
}

// POST /admin/enrollments
func (h *AdminHandler) GrantEnrollment(c *gin.Context) {
	var req services.GrantEnrollmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	enrollment, err := h.fulfillmentService.GrantEnrollment(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, enrollment)
}

// PUT /admin/enrollments/:id/extend
func (h *AdminHandler) ExtendEnrollment(c *gin.Context) {
	enrollmentID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ExtendEnrollmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	enrollment, err := h.fulfillmentService.ExtendEnrollment(enrollmentID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, enrollment)
}

// DELETE /admin/enrollments/:id
func (h *AdminHandler) RevokeEnrollment(c *gin.Context) {
	enrollmentID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.fulfillmentService.RevokeEnrollment(enrollmentID); err != nil {
		respondError(c, err)
		return
	}

	h.actionSuccess(c)
}

func (h *AdminHandler) actionSuccess(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyAdminActionSuccess),
	})
}

// formFile reads the multipart "file" field, answering 400 when it is absent.
func formFile(c *gin.Context) (multipart.File, *multipart.FileHeader, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyFileRequired), nil)
		return nil, nil, false
	}
	return file, header, true
}
