package request

import (
	"errors"
	"net/url"
)

type SelfTestRequest struct {
	Target  string                 `mapstructure:"target" json:"target" example:"https://hooks.example.com/webhooks/billing"`
	Payload map[string]interface{} `mapstructure:"payload" json:"payload"`
}

func (r *SelfTestRequest) Validate() error {
	if r.Target == "" {
		return errors.New("target is required")
	}
	u, err := url.Parse(r.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("target must be an absolute http(s) URL")
	}
	return nil
}
