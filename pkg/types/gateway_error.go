package types

import (
	"fmt"
	"net/http"
)

// ErrorCode is the machine readable reason attached to every rejection.
type ErrorCode string

const (
	CodeMethodNotAllowed     ErrorCode = "METHOD_NOT_ALLOWED"
	CodeURLTooLong           ErrorCode = "URL_TOO_LONG"
	CodeUnsupportedMediaType ErrorCode = "UNSUPPORTED_CONTENT_TYPE"
	CodePayloadTooLarge      ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeMalformedBody        ErrorCode = "MALFORMED_BODY"
	CodeJSONTooDeep          ErrorCode = "JSON_TOO_DEEP"
	CodeArrayTooLong         ErrorCode = "ARRAY_TOO_LONG"
	CodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeBlacklisted          ErrorCode = "BLACKLISTED"
	CodeWebhookUnauthorized  ErrorCode = "WEBHOOK_UNAUTHORIZED"
	CodeAdminUnauthorized    ErrorCode = "ADMIN_UNAUTHORIZED"
	CodeUploadRejected       ErrorCode = "UPLOAD_REJECTED"
	CodeRequestTimeout       ErrorCode = "REQUEST_TIMEOUT"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Category groups rejections by how a caller can recover from them.
type Category string

const (
	CategoryStructural     Category = "structural"
	CategoryAbuse          Category = "abuse"
	CategoryAuthentication Category = "authentication"
	CategoryContent        Category = "content"
	CategoryInternal       Category = "internal"
)

// GatewayError is the only error type that crosses the middleware boundary.
// Anything else reaching the fiber error handler is reported as a generic 500.
type GatewayError struct {
	StatusCode int
	Code       ErrorCode
	Category   Category
	Message    string
	Details    interface{}
	RetryAfter int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later without changes.
func (e *GatewayError) Retryable() bool {
	return e.Category == CategoryAbuse
}

// Body is the JSON payload written for a rejection.
func (e *GatewayError) Body() map[string]interface{} {
	body := map[string]interface{}{
		"error": e.Message,
		"code":  e.Code,
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	if e.RetryAfter > 0 {
		body["retry_after"] = e.RetryAfter
	}
	return body
}

func NewInternalError(err error) *GatewayError {
	return &GatewayError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Category:   CategoryInternal,
		Message:    "internal validation failure",
		Err:        err,
	}
}
