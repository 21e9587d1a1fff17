// internal/services/errors.go
package services

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user with this email already exists")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrSessionInvalid     = errors.New("session is not active")

	ErrInvalidAmount     = errors.New("payment amount does not match order")
	ErrOrderNotPayable   = errors.New("order is not awaiting payment")
	ErrOrderNotRefund    = errors.New("order cannot be refunded")
	ErrPaymentFailed     = errors.New("payment provider rejected the request")
	ErrEnrollmentNeeded  = errors.New("active enrollment required")
	ErrInvalidPeriod     = errors.New("end must be after start")
	ErrInvalidReorder    = errors.New("reorder list does not match current items")
	ErrAlreadyReviewed   = errors.New("review already exists")
	ErrReviewNotEligible = errors.New("product not purchased")
	ErrAlreadyReported   = errors.New("review already reported")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
)
