// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"
	KeyAccessDenied  = "error.access_denied"
	KeyConflict      = "error.conflict"
	KeyNotFound      = "error.not_found"
	KeyInvalidReq    = "error.invalid_request"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthSessionRevoked     = "auth.session_revoked"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthSuspended          = "auth.suspended"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthLogoutSuccess      = "auth.logout_success"
	KeyAuthRegisterSuccess    = "auth.register_success"
	KeyAuthOAuthFailed        = "auth.oauth_failed"

	// Users
	KeyUserNotFound = "user.not_found"

	// Catalog
	KeyCourseNotFound     = "course.not_found"
	KeyLessonNotFound     = "lesson.not_found"
	KeyTextbookNotFound   = "textbook.not_found"
	KeyTeacherNotFound    = "teacher.not_found"
	KeyNoticeNotFound     = "notice.not_found"
	KeyAttachmentNotFound = "attachment.not_found"
	KeyProductNotFound    = "product.not_found"

	// Orders & payments
	KeyOrderNotFound      = "order.not_found"
	KeyPaymentSuccess     = "payment.success"
	KeyPaymentFailed      = "payment.failed"
	KeyPaymentRefunded    = "payment.refunded"
	KeyPaymentInvalidAmt  = "payment.invalid_amount"
	KeyOrderNotPayable    = "order.not_payable"
	KeyOrderNotRefundable = "order.not_refundable"

	// Learning
	KeyEnrollmentNotFound = "enrollment.not_found"
	KeyEnrollmentRequired = "enrollment.required"
	KeyProgressSaved      = "progress.saved"

	// Reviews
	KeyReviewNotFound        = "review.not_found"
	KeyReviewCreated         = "review.created"
	KeyReviewAlreadyExists   = "review.already_exists"
	KeyReviewNotEligible     = "review.not_eligible"
	KeyReviewAlreadyReported = "review.already_reported"
	KeyReviewReported        = "review.reported"
	KeyReportNotFound        = "report.not_found"

	// Admin
	KeyAdminActionSuccess = "admin.action_success"
	KeyReorderInvalid     = "admin.reorder_invalid"

	// Webhooks
	KeyWebhookInvalidSignature = "webhook.invalid_signature"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadFailed = "file.upload_failed"
	KeyFileTooLarge     = "file.too_large"
	KeyFileRequired     = "file.required"
)
