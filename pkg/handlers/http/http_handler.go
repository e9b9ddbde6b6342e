package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Gateway traffic
	ForwardedHandler       Handler
	UploadHandler          Handler
	WebhookReceivedHandler Handler

	// Rate limiting
	GetRateLimitStatusHandler Handler
	ListRulesHandler          Handler
	UpdateBlacklistHandler    Handler
	DeleteBlacklistHandler    Handler
	UpdateWhitelistHandler    Handler
	DeleteWhitelistHandler    Handler

	// Webhooks
	ListWebhooksHandler    Handler
	RegisterWebhookHandler Handler
	DeleteWebhookHandler   Handler
	WebhookSelfTestHandler Handler

	GetVersionHandler Handler
}
