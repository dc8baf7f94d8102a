package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// HandleReconciliationStats returns the global attempt-state counters
func HandleReconciliationStats(c *fiber.Ctx) error {
	stats, err := statsReporter.Overview(c.UserContext())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "stats unavailable")
	}
	return c.JSON(stats)
}

// HandleUploadStats returns the counters scoped to one upload batch
func HandleUploadStats(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid upload id")
	}

	stats, err := statsReporter.ForUpload(c.UserContext(), uint(id))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "stats unavailable")
	}
	return c.JSON(stats)
}
