package middleware

import (
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"slices"

	"github.com/NeuralTrust/gateguard/pkg/common"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/NeuralTrust/gateguard/pkg/upload"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type uploadMiddleware struct {
	logger    *logrus.Logger
	validator *upload.Validator
}

// NewUploadMiddleware validates every file part of a multipart request. The
// batch result is left in the request locals for the handler.
func NewUploadMiddleware(logger *logrus.Logger, validator *upload.Validator) Middleware {
	return &uploadMiddleware{
		logger:    logger,
		validator: validator,
	}
}

func (m *uploadMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return reject(c, m.logger, StageUpload, &types.GatewayError{
				StatusCode: fiber.StatusBadRequest,
				Code:       types.CodeMalformedBody,
				Category:   types.CategoryStructural,
				Message:    "request is not a valid multipart form",
				Err:        err,
			}, nil)
		}

		files, err := m.collect(form)
		if err != nil {
			return fmt.Errorf("read upload parts: %w", err)
		}
		if len(files) == 0 {
			return reject(c, m.logger, StageUpload, &types.GatewayError{
				StatusCode: fiber.StatusUnprocessableEntity,
				Code:       types.CodeUploadRejected,
				Category:   types.CategoryContent,
				Message:    "no files in upload",
			}, nil)
		}

		batch, err := m.validator.ValidateFiles(c.UserContext(), files)
		if err != nil {
			return fmt.Errorf("validate upload: %w", err)
		}
		c.Locals(common.UploadResultKey, batch)
		if batch.Valid {
			return c.Next()
		}

		gerr := &types.GatewayError{
			StatusCode: fiber.StatusUnprocessableEntity,
			Code:       types.CodeUploadRejected,
			Category:   types.CategoryContent,
			Message:    "upload failed validation",
			Details:    batch,
		}
		if len(batch.Errors) > 0 {
			gerr.StatusCode = fiber.StatusRequestEntityTooLarge
			gerr.Code = types.CodePayloadTooLarge
			gerr.Message = batch.Errors[0]
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name)
		}
		return reject(c, m.logger, StageUpload, gerr, logrus.Fields{
			"files":      names,
			"total_size": batch.TotalSize,
		})
	}
}

func (m *uploadMiddleware) collect(form *multipart.Form) ([]upload.File, error) {
	limit := m.validator.Config().MaxFileSize
	var files []upload.File
	for _, field := range slices.Sorted(maps.Keys(form.File)) {
		for _, fh := range form.File[field] {
			content, err := readPart(fh, limit)
			if err != nil {
				return nil, err
			}
			files = append(files, upload.File{
				Name:     fh.Filename,
				MimeType: fh.Header.Get(fiber.HeaderContentType),
				Size:     fh.Size,
				Content:  content,
			})
		}
	}
	return files, nil
}

// readPart reads at most limit+1 bytes; an oversized file is rejected on its
// declared size so the tail is never needed.
func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if limit <= 0 {
		return io.ReadAll(f)
	}
	return io.ReadAll(io.LimitReader(f, limit+1))
}
