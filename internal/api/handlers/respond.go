package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/storage/sqlite"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// storeError maps storage failures to responses. A missing or unfinished
// analysis is a 404; anything else is logged and hidden behind a 500.
func storeError(c *fiber.Ctx, err error, what string) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, what+" not found")
	}
	logger.Error("Failed to read "+what, zap.String("path", c.Path()), zap.Error(err))
	return errorJSON(c, fiber.StatusInternalServerError, "Failed to read "+what)
}
