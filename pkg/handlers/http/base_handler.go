package http

import (
	"errors"

	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// identifierError answers 400 for a missing identifier and a logged 500 for
// store failures.
func identifierError(c *fiber.Ctx, logger *logrus.Logger, err error, message string) error {
	if errors.Is(err, ratelimit.ErrEmptyIdentifier) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	logger.WithError(err).WithField("path", c.Path()).Error(message)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}
