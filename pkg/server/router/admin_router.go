package router

import (
	"fmt"

	"github.com/NeuralTrust/gateguard/pkg/common"
	handlers "github.com/NeuralTrust/gateguard/pkg/handlers/http"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

const AdminPath = "/__/admin"

type adminRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
	port                int
}

func NewAdminRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
	port int,
) ServerRouter {
	return &adminRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
		port:                port,
	}
}

func (r *adminRouter) BuildRoutes(router *fiber.App) error {
	if r.middlewareTransport == nil || r.handlerTransport == nil || r.middlewareTransport.AdminAuthMiddleware == nil {
		return ErrInvalidHandlerTransport
	}
	ht := r.handlerTransport

	router.Static("/swagger.json", "./docs/swagger.json")
	router.Get("/docs/*", swagger.New(swagger.Config{
		URL: fmt.Sprintf("http://localhost:%d/swagger.json", r.port),
	}))

	admin := router.Group(AdminPath, r.middlewareTransport.AdminAuthMiddleware.Middleware())
	{
		admin.Get("/rules", ht.ListRulesHandler.Handle)

		identifierPath := "/:" + common.IdentifierParam
		admin.Get("/identifiers"+identifierPath, ht.GetRateLimitStatusHandler.Handle)

		blacklist := admin.Group("/blacklist")
		{
			blacklist.Put(identifierPath, ht.UpdateBlacklistHandler.Handle)
			blacklist.Delete(identifierPath, ht.DeleteBlacklistHandler.Handle)
		}

		whitelist := admin.Group("/whitelist")
		{
			whitelist.Put(identifierPath, ht.UpdateWhitelistHandler.Handle)
			whitelist.Delete(identifierPath, ht.DeleteWhitelistHandler.Handle)
		}

		webhooks := admin.Group("/webhooks")
		{
			namePath := "/:" + common.WebhookNameParam
			webhooks.Get("", ht.ListWebhooksHandler.Handle)
			webhooks.Put(namePath, ht.RegisterWebhookHandler.Handle)
			webhooks.Delete(namePath, ht.DeleteWebhookHandler.Handle)
			webhooks.Post(namePath+"/self-test", ht.WebhookSelfTestHandler.Handle)
		}
	}
	return nil
}
