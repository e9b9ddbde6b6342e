package http

import (
	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/upload"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type uploadHandler struct {
	logger *logrus.Logger
}

func NewUploadHandler(logger *logrus.Logger) Handler {
	return &uploadHandler{logger: logger}
}

// Handle @Summary Upload files
// @Description Accepts a multipart batch that passed upload validation
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} upload.BatchResult "Files accepted"
// @Failure 413 {object} map[string]interface{} "Batch too large"
// @Failure 422 {object} map[string]interface{} "Files failed validation"
// @Router /api/v1/uploads [post]
func (h *uploadHandler) Handle(c *fiber.Ctx) error {
	batch, ok := c.Locals(common.UploadResultKey).(upload.BatchResult)
	if !ok {
		h.logger.Error("upload result not found in context")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "upload was not validated"})
	}
	h.logger.WithFields(logrus.Fields{
		"files":      len(batch.Files),
		"total_size": batch.TotalSize,
	}).Info("upload accepted")
	return c.Status(fiber.StatusCreated).JSON(batch)
}
