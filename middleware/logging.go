package middleware

import (
	"encoding/json"
	"time"

	"timetable_go/models"
	"timetable_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing the caller's when given.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(requestIDHeader, id)
		return c.Next()
	}
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"request_id": c.Locals("request_id"),
		})
		switch {
		case status >= 500:
			entry.Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		default:
			entry.Info("HTTP Request")
		}
		return err
	}
}

// LogActivity records a non-timetable action (login, logout, export) in the
// audit trail. Timetable writes are recorded by the reconciler itself.
func LogActivity(c *fiber.Ctx, recorder services.AuditRecorder, action string, details interface{}) {
	if recorder == nil {
		return
	}
	entry := models.AuditEntry{
		Action:    action,
		Scope:     c.Path(),
		Actor:     Actor(c),
		IPAddress: c.IP(),
	}
	payload := map[string]interface{}{
		"request_id": c.Locals("request_id"),
		"method":     c.Method(),
		"user_agent": c.Get("User-Agent"),
	}
	if details != nil {
		payload["details"] = details
	}
	if data, err := json.Marshal(payload); err == nil {
		entry.Details = datatypes.JSON(data)
	}
	recorder.Record(c.UserContext(), entry)
}
