package dependency_container_test

import (
	"io"
	"testing"

	"github.com/NeuralTrust/gateguard/pkg/config"
	"github.com/NeuralTrust/gateguard/pkg/dependency_container"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewContainer_InMemory(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.Whitelist = []string{"10.0.0.1"}
	cfg.Webhooks = map[string]config.WebhookConfig{
		"billing": {Secret: "whsec_a"},
		"github":  {Secret: "whsec_b", Algorithm: "sha1"},
	}

	c, err := dependency_container.NewContainer(dependency_container.ContainerDI{Cfg: cfg, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Nil(t, c.RedisClient)
	assert.Len(t, c.Limiter.Rules(), len(cfg.RateLimit.Rules))
	assert.ElementsMatch(t, []string{"billing", "github"}, c.Authenticator.Names())
	assert.Equal(t, cfg.Limits.MaxBodySize, c.LimitsGuard.Config().MaxBodySize)
	assert.Greater(t, c.UploadGuard.Config().MaxBodySize, cfg.Upload.MaxTotalSize)
	assert.Equal(t, cfg.Upload.MaxFiles, c.UploadValidator.Config().MaxFiles)

	require.NotNil(t, c.MiddlewareTransport)
	assert.Len(t, c.MiddlewareTransport.GetMiddlewares(), 8)
	require.NotNil(t, c.HandlerTransport)
	assert.NotNil(t, c.HandlerTransport.WebhookSelfTestHandler)

	require.NoError(t, c.Start())
	require.NoError(t, c.Close())
}

func TestNewContainer_UploadFlags(t *testing.T) {
	cfg := config.Default()
	disabled := false
	cfg.Upload.ScanContent = &disabled

	c, err := dependency_container.NewContainer(dependency_container.ContainerDI{Cfg: cfg, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.False(t, c.UploadValidator.Config().ScanContent)
	assert.True(t, c.UploadValidator.Config().SanitizeFilenames)
}

func TestNewContainer_RedisUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 1

	_, err := dependency_container.NewContainer(dependency_container.ContainerDI{Cfg: cfg, Logger: quietLogger()})
	assert.Error(t, err)
}

func TestNewContainer_RequiresConfig(t *testing.T) {
	_, err := dependency_container.NewContainer(dependency_container.ContainerDI{Logger: quietLogger()})
	assert.Error(t, err)
}
