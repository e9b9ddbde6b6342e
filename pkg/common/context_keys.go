package common

type contextKey string

const (
	RequestIDKey      contextKey = "request_id"
	IdentifierKey     contextKey = "identifier"
	IdentitySourceKey contextKey = "identity_source"
	RateLimitKey      contextKey = "rate_limit"
	UploadResultKey   contextKey = "upload_result"
	WebhookResultKey  contextKey = "webhook_result"
	LatencyContextKey contextKey = "__execution_time"
)
