package api

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
)

// envelope is the failure body shared by every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return fiber.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrDenied):
		return fiber.StatusForbidden
	case apperrors.Is(err, apperrors.ErrQueueFull):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes the failure envelope for err, merging extra fields.
func (s *Server) fail(c *fiber.Ctx, err error, extra fiber.Map) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("path", c.Path()).
			Str("request_id", requestID(c)).
			Msg("request failed")
	}

	body := fiber.Map{"success": false, "error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(code).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(envelope{Success: false, Error: msg})
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.InvalidInputf("Invalid JSON body")
	}
	return nil
}
