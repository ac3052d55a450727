package controllers

import (
	"timetable_go/services"
	"timetable_go/utils"

	"github.com/gofiber/fiber/v2"
)

type TeacherController struct {
	service    *services.TimetableService
	reconciler *services.SlotReconciler
}

func NewTeacherController(service *services.TimetableService, reconciler *services.SlotReconciler) *TeacherController {
	return &TeacherController{service: service, reconciler: reconciler}
}

// GetTeachers returns all teachers
func (tc *TeacherController) GetTeachers(c *fiber.Ctx) error {
	teachers, err := tc.service.ListTeachers(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to fetch teachers")
	}
	return c.JSON(fiber.Map{"teachers": teachers, "total": len(teachers)})
}

// GetTeacher returns a specific teacher by ID
func (tc *TeacherController) GetTeacher(c *fiber.Ctx) error {
	teacher, err := tc.service.GetTeacher(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to fetch teacher")
	}
	return c.JSON(fiber.Map{"teacher": teacher})
}

// GetTeacherSlots returns the teacher's slots in day/period order
func (tc *TeacherController) GetTeacherSlots(c *fiber.Ctx) error {
	slots, err := tc.service.TeacherSlots(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Failed to fetch teacher schedule")
	}
	return c.JSON(fiber.Map{"slots": slots})
}

// CreateTeacher creates a new teacher
func (tc *TeacherController) CreateTeacher(c *fiber.Ctx) error {
	var in services.TeacherInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	in.Name = utils.SanitizeString(in.Name)

	teacher, err := tc.service.CreateTeacher(c.UserContext(), in, reconcileOptions(c, false))
	if err != nil {
		return respondError(c, err, "Failed to create teacher")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Teacher created successfully",
		"teacher": teacher,
	})
}

// UpdateTeacher updates name and/or subject
func (tc *TeacherController) UpdateTeacher(c *fiber.Ctx) error {
	var patch services.TeacherPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if patch.Name != nil {
		name := utils.SanitizeString(*patch.Name)
		patch.Name = &name
	}

	teacher, err := tc.service.UpdateTeacher(c.UserContext(), c.Params("id"), patch, reconcileOptions(c, false))
	if err != nil {
		return respondError(c, err, "Failed to update teacher")
	}
	return c.JSON(fiber.Map{
		"message": "Teacher updated successfully",
		"teacher": teacher,
	})
}

// DeleteTeacher deletes a teacher and all of its slots
func (tc *TeacherController) DeleteTeacher(c *fiber.Ctx) error {
	if err := tc.service.DeleteTeacher(c.UserContext(), c.Params("id"), reconcileOptions(c, false)); err != nil {
		return respondError(c, err, "Failed to delete teacher")
	}
	return c.JSON(fiber.Map{"message": "Teacher deleted successfully"})
}

// ReplaceTeacherSlots replaces every slot of one teacher
func (tc *TeacherController) ReplaceTeacherSlots(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	scope := services.TeacherScope(c.Params("id"))
	result, err := tc.reconciler.Reconcile(c.UserContext(), scope, req.Slots, reconcileOptions(c, forceRequested(c, req.Force)))
	if err != nil {
		return respondError(c, err, "Failed to save teacher schedule")
	}
	return c.JSON(reconcileResponse(result))
}
