package request

import (
	"errors"
	"time"
)

const maxBlacklistDuration = 30 * 24 * time.Hour

type BlacklistRequest struct {
	Duration time.Duration `mapstructure:"duration" json:"duration" swaggertype:"string" example:"30m"`
}

func (r *BlacklistRequest) Validate() error {
	if r.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	if r.Duration > maxBlacklistDuration {
		return errors.New("duration must not exceed 30 days")
	}
	return nil
}
