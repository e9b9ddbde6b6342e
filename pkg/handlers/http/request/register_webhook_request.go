package request

import (
	"time"

	"github.com/NeuralTrust/gateguard/pkg/webhook"
)

type RegisterWebhookRequest struct {
	Secret           string        `mapstructure:"secret" json:"secret"`
	Algorithm        string        `mapstructure:"algorithm" json:"algorithm" example:"sha256"`
	AllowedDomains   []string      `mapstructure:"allowed_domains" json:"allowed_domains"`
	MaxPayloadSize   int64         `mapstructure:"max_payload_size" json:"max_payload_size"`
	ReplayWindow     time.Duration `mapstructure:"replay_window" json:"replay_window" swaggertype:"string" example:"5m"`
	ReplayProtection *bool         `mapstructure:"replay_protection" json:"replay_protection"`
}

func (r *RegisterWebhookRequest) ToConfig() webhook.Config {
	return webhook.Config{
		Secret:           r.Secret,
		Algorithm:        webhook.Algorithm(r.Algorithm),
		AllowedDomains:   r.AllowedDomains,
		MaxPayloadSize:   r.MaxPayloadSize,
		ReplayWindow:     r.ReplayWindow,
		ReplayProtection: r.ReplayProtection,
	}
}
