package controllers

import (
	"timetable_go/services"

	"github.com/gofiber/fiber/v2"
)

// ReportController serves read-only analyses of the persisted timetable.
type ReportController struct {
	service *services.TimetableService
}

func NewReportController(service *services.TimetableService) *ReportController {
	return &ReportController{service: service}
}

// GetConflicts reports conflicts that were persisted with force
func (rc *ReportController) GetConflicts(c *fiber.Ctx) error {
	report, err := rc.service.PersistedConflicts(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to compute conflicts")
	}
	return c.JSON(fiber.Map{
		"count":           len(report.Conflicts),
		"conflicts":       report.Conflicts,
		"double_bookings": report.DoubleBookings,
	})
}

func (rc *ReportController) GetGaps(c *fiber.Ctx) error {
	gaps, err := rc.service.CoverageGaps(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to compute coverage gaps")
	}
	return c.JSON(fiber.Map{"classes": gaps, "count": len(gaps)})
}

func (rc *ReportController) GetLoad(c *fiber.Ctx) error {
	loads, err := rc.service.TeacherLoads(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to compute teacher load")
	}
	return c.JSON(fiber.Map{"teachers": loads})
}
