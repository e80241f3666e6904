// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound             = errors.New("resource not found")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrSubscriptionExpired  = errors.New("subscription expired")
)

// Error kinds exposed to clients. Clients branch on Kind; Code narrows it.
const (
	KindValidation     = "ValidationError"
	KindConflict       = "ConflictError"
	KindAuthentication = "AuthenticationError"
	KindForbidden      = "ForbiddenError"
	KindEntitlement    = "EntitlementError"
	KindNotFound       = "NotFoundError"
	KindRateLimited    = "RateLimitError"
	KindInternal       = "InternalError"
)

type AppError struct {
	Err     error          `json:"-"`
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:     err,
		Kind:    kindForStatus(status),
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusPaymentRequired:
		return KindEntitlement
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindInternal
	}
}

func ValidationError(message string) *AppError {
	return NewAppError(ErrInvalidInput, message, http.StatusBadRequest, "VALIDATION_FAILED")
}

func DuplicateError(field string) *AppError {
	return NewAppError(
		ErrDuplicateKey,
		fmt.Sprintf("%s already in use", field),
		http.StatusConflict,
		"DUPLICATE_"+strings.ToUpper(field),
	).WithDetail("field", field)
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func InvalidCredentialsError() *AppError {
	return NewAppError(
		ErrUnauthorized,
		"invalid username, email or password",
		http.StatusUnauthorized,
		"INVALID_CREDENTIALS",
	)
}

func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func NotFoundError(resource string) *AppError {
	return NewAppError(
		ErrNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound,
		"NOT_FOUND",
	).WithDetail("resource", resource)
}

// All token failures share one client-facing code.
func TokenExpiredError() *AppError {
	return NewAppError(ErrTokenExpired, "invalid or expired token", http.StatusUnauthorized, "INVALID_TOKEN")
}

func TokenRevokedError() *AppError {
	return NewAppError(ErrTokenRevoked, "invalid or expired token", http.StatusUnauthorized, "INVALID_TOKEN")
}

func TokenInvalidError() *AppError {
	return NewAppError(ErrTokenInvalid, "invalid or expired token", http.StatusUnauthorized, "INVALID_TOKEN")
}

const (
	DetailRequiredTier = "requiredTier"
	DetailCurrentTier  = "currentTier"
)

// EntitlementError is the 402 answer for a denied tier check. Code carries
// the reason, SubscriptionRequired or SubscriptionExpired.
func EntitlementError(reason error, requiredTier, currentTier string) *AppError {
	code := "SubscriptionRequired"
	message := fmt.Sprintf("a %s subscription is required", requiredTier)
	if errors.Is(reason, ErrSubscriptionExpired) {
		code = "SubscriptionExpired"
		message = "your subscription has expired"
	}

	return NewAppError(reason, message, http.StatusPaymentRequired, code).
		WithDetail(DetailRequiredTier, requiredTier).
		WithDetail(DetailCurrentTier, currentTier)
}

func InternalError(err error) *AppError {
	return NewAppError(err, "internal server error", http.StatusInternalServerError, "INTERNAL_ERROR")
}

// ToAppError maps wrapped sentinels onto the client taxonomy. Anything
// unrecognised becomes an InternalError.
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return NewAppError(err, err.Error(), http.StatusBadRequest, "VALIDATION_FAILED")
	case errors.Is(err, ErrDuplicateKey):
		return NewAppError(err, "resource already exists", http.StatusConflict, "DUPLICATE")
	case errors.Is(err, ErrTokenExpired):
		return TokenExpiredError()
	case errors.Is(err, ErrTokenRevoked):
		return TokenRevokedError()
	case errors.Is(err, ErrTokenInvalid):
		return TokenInvalidError()
	case errors.Is(err, ErrUnauthorized):
		return UnauthorizedError("")
	case errors.Is(err, ErrForbidden):
		return ForbiddenError("")
	case errors.Is(err, ErrNotFound):
		return NewAppError(err, "resource not found", http.StatusNotFound, "NOT_FOUND")
	case errors.Is(err, ErrSubscriptionExpired), errors.Is(err, ErrSubscriptionRequired):
		return EntitlementError(err, "", "")
	default:
		return InternalError(err)
	}
}

