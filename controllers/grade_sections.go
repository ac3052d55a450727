package controllers

import (
	"timetable_go/services"

	"github.com/gofiber/fiber/v2"
)

type GradeSectionController struct {
	service *services.TimetableService
}

func NewGradeSectionController(service *services.TimetableService) *GradeSectionController {
	return &GradeSectionController{service: service}
}

// GetGradeSections returns the effective sections of every grade
func (gc *GradeSectionController) GetGradeSections(c *fiber.Ctx) error {
	views, err := gc.service.GradeSections(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to fetch grade sections")
	}
	return c.JSON(fiber.Map{"grade_sections": views})
}

func (gc *GradeSectionController) GetGradeSection(c *fiber.Ctx) error {
	grade, err := intParam(c, "grade")
	if err != nil {
		return badRequest(c, "Invalid grade")
	}
	view, err := gc.service.GradeSection(c.UserContext(), grade)
	if err != nil {
		return respondError(c, err, "Failed to fetch grade sections")
	}
	return c.JSON(view)
}

// UpdateGradeSection replaces the section list of one grade
func (gc *GradeSectionController) UpdateGradeSection(c *fiber.Ctx) error {
	grade, err := intParam(c, "grade")
	if err != nil {
		return badRequest(c, "Invalid grade")
	}
	var req struct {
		Sections []int `json:"sections"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	view, orphaned, err := gc.service.UpdateGradeSection(c.UserContext(), grade, req.Sections, reconcileOptions(c, false))
	if err != nil {
		return respondError(c, err, "Failed to update grade sections")
	}
	return c.JSON(fiber.Map{
		"message":        "Grade sections updated successfully",
		"grade_section":  view,
		"orphaned_slots": orphaned,
	})
}
