package metrics

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// HTTPMiddleware counts requests by route pattern and status class, so path
// parameters do not create new series.
func HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		HTTPRequests.WithLabelValues(c.Route().Path, strconv.Itoa(status/100)+"xx").Inc()
		return err
	}
}
