package controllers

import (
	"errors"
	"strconv"
	"strings"

	"timetable_go/middleware"
	"timetable_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const conflictMessage = "Schedule conflicts detected. Resolve them or resubmit with force=true."

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	if ve, ok := services.IsValidationError(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":            "validation_failed",
			"message":          ve.Error(),
			"issues":           ve.Issues,
			"unknown_sections": ve.UnknownSections,
		})
	}
	if ce, ok := services.IsConflictError(err); ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "conflict",
			"message":   conflictMessage,
			"conflicts": ce.Conflicts,
		})
	}
	switch {
	case errors.Is(err, services.ErrTeacherNotFound), errors.Is(err, services.ErrSlotNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidScope), errors.Is(err, services.ErrUnsupportedFile), errors.Is(err, services.ErrUnknownExport):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrArchiveDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	logrus.WithError(err).WithField("path", c.Path()).Error(fallback)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}

// isTruthy accepts the spellings clients use for boolean flags.
func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// forceRequested reads ?force=true; body is the decoded body flag.
func forceRequested(c *fiber.Ctx, body bool) bool {
	return body || isTruthy(c.Query("force")) || isTruthy(c.Query("ignoreConflicts"))
}

func reconcileOptions(c *fiber.Ctx, force bool) services.ReconcileOptions {
	return services.ReconcileOptions{
		Force: force,
		Actor: middleware.Actor(c),
		IP:    c.IP(),
	}
}

func intParam(c *fiber.Ctx, name string) (int, error) {
	return strconv.Atoi(c.Params(name))
}
