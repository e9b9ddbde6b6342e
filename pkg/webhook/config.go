package webhook

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- legacy X-Hub-Signature senders
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"
)

type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
	SHA512 Algorithm = "sha512"

	DefaultMaxPayloadSize = 1 << 20
	DefaultReplayWindow   = 5 * time.Minute
)

var (
	ErrMissingSecret        = errors.New("webhook secret is required")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)

type Config struct {
	Secret           string        `mapstructure:"secret" json:"-"`
	Algorithm        Algorithm     `mapstructure:"algorithm" json:"algorithm"`
	AllowedDomains   []string      `mapstructure:"allowed_domains" json:"allowed_domains,omitempty"`
	MaxPayloadSize   int64         `mapstructure:"max_payload_size" json:"max_payload_size"`
	ReplayWindow     time.Duration `mapstructure:"replay_window" json:"replay_window"`
	ReplayProtection *bool         `mapstructure:"replay_protection" json:"replay_protection"`
}

func (c *Config) applyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = SHA256
	}
	c.Algorithm = Algorithm(strings.ToLower(string(c.Algorithm)))
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if c.ReplayWindow <= 0 {
		c.ReplayWindow = DefaultReplayWindow
	}
	if c.ReplayProtection == nil {
		enabled := true
		c.ReplayProtection = &enabled
	}
	domains := make([]string, 0, len(c.AllowedDomains))
	for _, d := range c.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	c.AllowedDomains = domains
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	if _, err := c.Algorithm.hasher(); err != nil {
		return err
	}
	return nil
}

func (c *Config) replayEnabled() bool {
	return c.ReplayProtection == nil || *c.ReplayProtection
}

func (a Algorithm) hasher() (func() hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New, nil
	case SHA1:
		return sha1.New, nil
	case SHA512:
		return sha512.New, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
}

// sign is the single signing path for inbound verification and outbound
// header generation.
func sign(cfg Config, timestamp string, payload []byte) (string, error) {
	newHash, err := cfg.Algorithm.hasher()
	if err != nil {
		return "", err
	}
	mac := hmac.New(newHash, []byte(cfg.Secret))
	if timestamp != "" {
		mac.Write([]byte(timestamp))
		mac.Write([]byte{'.'})
	}
	mac.Write(payload)
	return fmt.Sprintf("%s=%x", cfg.Algorithm, mac.Sum(nil)), nil
}

// secureCompare runs in time that depends only on the length of its inputs.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

func domainAllowed(host string, allowed []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range allowed {
		if strings.HasPrefix(d, "*.") {
			if strings.HasSuffix(host, d[1:]) && len(host) > len(d)-1 {
				return true
			}
			continue
		}
		if host == d {
			return true
		}
	}
	return false
}
