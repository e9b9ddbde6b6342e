package router

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	handlers "github.com/NeuralTrust/gateguard/pkg/handlers/http"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

const (
	APIPath     = "/api/v1"
	UploadPath  = common.UploadPath
	WebhookPath = "/webhooks/:" + common.WebhookNameParam
	VersionPath = "/version"
)

type gatewayRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
}

func NewGatewayRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
) ServerRouter {
	return &gatewayRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

// BuildRoutes mounts the global validation chain and the public routes. Every
// route registered after this point, admin included, runs behind the chain.
func (r *gatewayRouter) BuildRoutes(router *fiber.App) error {
	if r.middlewareTransport == nil || r.handlerTransport == nil {
		return ErrInvalidHandlerTransport
	}
	ht := r.handlerTransport
	mt := r.middlewareTransport

	if chain := mt.GetMiddlewares(); len(chain) > 0 {
		router.Use(chain...)
	}

	router.Get(VersionPath, ht.GetVersionHandler.Handle)

	router.Post(UploadPath, mt.UploadMiddleware.Middleware(), ht.UploadHandler.Handle)
	router.Post(WebhookPath, mt.WebhookMiddleware.Middleware(), ht.WebhookReceivedHandler.Handle)

	router.All(APIPath+"/*", ht.ForwardedHandler.Handle)
	return nil
}
