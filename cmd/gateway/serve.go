package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/config"
	"github.com/NeuralTrust/gateguard/pkg/dependency_container"
	infraLogger "github.com/NeuralTrust/gateguard/pkg/infra/logger"
	"github.com/NeuralTrust/gateguard/pkg/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway and, when enabled, the metrics server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	logger, closer := infraLogger.NewLogger("gateway")
	defer func() { _ = closer.Close() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		return err
	}

	container, err := dependency_container.NewContainer(dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.WithError(err).Error("failed to release dependencies")
		}
	}()

	srv, err := server.NewGatewayServer(server.GatewayServerDI{
		Config:              cfg,
		Logger:              logger,
		MiddlewareTransport: container.MiddlewareTransport,
		HandlerTransport:    container.HandlerTransport,
	})
	if err != nil {
		return fmt.Errorf("failed to build routes: %w", err)
	}
	if err := container.Start(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server failed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("error shutting down server")
		return err
	}
	if err := <-errCh; err != nil {
		logger.WithError(err).Warn("listener returned an error during shutdown")
	}
	logger.Info("server gracefully stopped")
	return nil
}
