package server

import (
	"github.com/NeuralTrust/gateguard/pkg/config"
	handlers "github.com/NeuralTrust/gateguard/pkg/handlers/http"
	"github.com/NeuralTrust/gateguard/pkg/infra/prometheus"
	"github.com/NeuralTrust/gateguard/pkg/middleware"
	"github.com/NeuralTrust/gateguard/pkg/server/router"
	"github.com/sirupsen/logrus"
)

type (
	GatewayServerDI struct {
		Config              *config.Config
		Logger              *logrus.Logger
		MiddlewareTransport *middleware.Transport
		HandlerTransport    *handlers.HandlerTransport
	}
	GatewayServer struct {
		*BaseServer
		middlewareTransport *middleware.Transport
		handlerTransport    *handlers.HandlerTransport
	}
)

func NewGatewayServer(di GatewayServerDI) (*GatewayServer, error) {
	prometheus.Initialize(prometheus.MetricsConfig{
		EnableLatency: di.Config.Metrics.Enabled,
	})

	s := &GatewayServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}

	s.setupHealthCheck()
	err := s.WithRouters(
		router.NewGatewayRouter(di.MiddlewareTransport, di.HandlerTransport),
		router.NewAdminRouter(di.MiddlewareTransport, di.HandlerTransport, di.Config.Server.Port),
	)
	if err != nil {
		return nil, err
	}
	s.setupMetricsEndpoint()
	return s, nil
}

func (s *GatewayServer) Run() error {
	return s.serve()
}
