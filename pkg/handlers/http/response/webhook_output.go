package response

import "github.com/NeuralTrust/gateguard/pkg/webhook"

// WebhookOutput never carries the secret.
type WebhookOutput struct {
	Name             string   `json:"name"`
	Algorithm        string   `json:"algorithm"`
	AllowedDomains   []string `json:"allowed_domains"`
	MaxPayloadSize   int64    `json:"max_payload_size"`
	ReplayWindow     string   `json:"replay_window"`
	ReplayProtection bool     `json:"replay_protection"`
}

func NewWebhookOutput(name string, cfg webhook.Config) WebhookOutput {
	domains := cfg.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	return WebhookOutput{
		Name:             name,
		Algorithm:        string(cfg.Algorithm),
		AllowedDomains:   domains,
		MaxPayloadSize:   cfg.MaxPayloadSize,
		ReplayWindow:     cfg.ReplayWindow.String(),
		ReplayProtection: cfg.ReplayProtection != nil && *cfg.ReplayProtection,
	}
}
