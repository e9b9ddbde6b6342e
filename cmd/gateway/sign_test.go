package main

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/NeuralTrust/gateguard/pkg/config"
	"github.com/NeuralTrust/gateguard/pkg/webhook"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignPayload(t *testing.T) {
	cfg := config.Default()
	cfg.Webhooks = map[string]config.WebhookConfig{
		"billing": {Secret: "whsec_test", Algorithm: "sha512"},
	}
	payload := []byte(`{"event":"invoice.paid"}`)

	headers, err := signPayload(cfg, "billing", payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(headers[webhook.SignatureHeader], "sha512="))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	auth := webhook.NewAuthenticator(logger, nil, webhook.Options{})
	require.NoError(t, auth.Register("billing", webhook.Config{Secret: "whsec_test", Algorithm: webhook.SHA512}))

	res := auth.ValidateWebhook(context.Background(), "billing", webhook.Request{
		Method:  "POST",
		URL:     "https://gateway.example.com/webhooks/billing",
		Headers: headers,
		Body:    payload,
	})
	assert.True(t, res.Valid, res.Error)
}

func TestSignPayload_UnknownWebhook(t *testing.T) {
	_, err := signPayload(config.Default(), "missing", []byte("{}"))
	assert.ErrorIs(t, err, webhook.ErrWebhookNotFound)
}

func TestReadPayload(t *testing.T) {
	t.Cleanup(func() { signData, signDataFile = "", "" })

	signData, signDataFile = "", "-"
	data, err := readPayload(strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(data))

	signData, signDataFile = `{"a":1}`, ""
	data, err = readPayload(nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	signData, signDataFile = "", ""
	_, err = readPayload(nil)
	assert.Error(t, err)
}
