// Package httperr maps service errors onto the REST error body
// {"error": <code>, "message": <text>}.
package httperr

import (
	"errors"

	"github.com/cognitoforge/redteam-backend/internal/fetcher"
	"github.com/cognitoforge/redteam-backend/internal/genai"
	"github.com/cognitoforge/redteam-backend/internal/runlog"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/gofiber/fiber/v2"
)

// Error codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeDataError      = "data_error"
	CodeUpstreamError  = "upstream_error"
	CodeInternalError  = "internal_error"
)

const unexpectedMessage = "Unexpected server error"

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidRepoID), errors.Is(err, model.ErrInvalidRequest):
		return fiber.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, runlog.ErrRunNotFound), errors.Is(err, fetcher.ErrManifestNotFound):
		return fiber.StatusNotFound, CodeNotFound
	case errors.Is(err, runlog.ErrRunData):
		return fiber.StatusInternalServerError, CodeDataError
	case errors.Is(err, genai.ErrNotConfigured):
		return fiber.StatusServiceUnavailable, CodeUpstreamError
	case errors.Is(err, fetcher.ErrFetch):
		return fiber.StatusBadGateway, CodeUpstreamError
	default:
		return fiber.StatusInternalServerError, CodeInternalError
	}
}

// Respond writes the error body for err. Internal errors get a generic message.
func Respond(c *fiber.Ctx, err error) error {
	status, code := Classify(err)
	message := err.Error()
	if code == CodeInternalError {
		message = unexpectedMessage
	}
	return Write(c, status, code, message)
}

// BadRequest writes a 400 with the given message.
func BadRequest(c *fiber.Ctx, message string) error {
	return Write(c, fiber.StatusBadRequest, CodeInvalidRequest, message)
}

// Write sends an error body.
func Write(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}
