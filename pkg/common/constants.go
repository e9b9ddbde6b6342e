package common

const (
	RequestIDHeader  = "X-Request-ID"
	AdminTokenHeader = "X-Admin-Token"

	RetryAfterHeader         = "Retry-After"
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"

	UploadPath = "/api/v1/uploads"

	WebhookNameParam = "name"
	IdentifierParam  = "identifier"
)
