package request

import (
	"encoding/json"
	"fmt"

	"github.com/NeuralTrust/gateguard/pkg/infra/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/mitchellh/mapstructure"
)

// MaxBodySize caps an admin request body once its Content-Encoding is undone.
const MaxBodySize = 64 << 10

// DecodeCtx decodes the body of c the way Decode does, inflating it at most
// to MaxBodySize.
func DecodeCtx(c *fiber.Ctx, out interface{}) error {
	body, _, err := httpx.DecodeBody(c.Get(fiber.HeaderContentEncoding), c.Request().Body(), MaxBodySize)
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return Decode(body, out)
}

// Decode maps a JSON body onto out through mapstructure so that durations may
// be sent as "90s" strings and numbers may arrive quoted.
func Decode(body []byte, out interface{}) error {
	var raw map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return fmt.Errorf("invalid request body: %w", err)
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
