package controllers

import (
	"timetable_go/services"

	"github.com/gofiber/fiber/v2"
)

// batchRequest is the body of every batch replace and of the dry-run check.
type batchRequest struct {
	Slots []services.SlotInput `json:"slots"`
	Force bool                 `json:"force"`
}

// checkRequest names the scope to check against; an empty scope is global.
type checkRequest struct {
	Scope services.Scope       `json:"scope"`
	Slots []services.SlotInput `json:"slots"`
}

type slotRequest struct {
	services.SlotInput
	Force bool `json:"force"`
}

type slotPatchRequest struct {
	services.SlotPatch
	Force bool `json:"force"`
}

func reconcileResponse(result *services.ReconcileResult) fiber.Map {
	resp := fiber.Map{
		"success":   true,
		"scope":     result.Scope,
		"slots":     result.Slots,
		"count":     len(result.Slots),
		"forced":    result.Forced,
		"conflicts": result.Conflicts,
	}
	if len(result.DoubleBookings) > 0 {
		resp["double_bookings"] = result.DoubleBookings
	}
	return resp
}

type ScheduleController struct {
	service    *services.TimetableService
	reconciler *services.SlotReconciler
}

func NewScheduleController(service *services.TimetableService, reconciler *services.SlotReconciler) *ScheduleController {
	return &ScheduleController{service: service, reconciler: reconciler}
}

// GetSlots lists every slot
func (sc *ScheduleController) GetSlots(c *fiber.Ctx) error {
	slots, err := sc.service.ListSlots(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to fetch schedule slots")
	}
	services.SortSlots(slots)
	return c.JSON(fiber.Map{"slots": slots, "total": len(slots)})
}

// CreateSlot adds one slot, conflict-checked against every other slot
func (sc *ScheduleController) CreateSlot(c *fiber.Ctx) error {
	var req slotRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	result, err := sc.reconciler.CreateSlot(c.UserContext(), req.SlotInput, reconcileOptions(c, forceRequested(c, req.Force)))
	if err != nil {
		return respondError(c, err, "Failed to create schedule slot")
	}
	return c.Status(fiber.StatusCreated).JSON(reconcileResponse(result))
}

// UpdateSlot patches one slot
func (sc *ScheduleController) UpdateSlot(c *fiber.Ctx) error {
	var req slotPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	result, err := sc.reconciler.UpdateSlot(c.UserContext(), c.Params("id"), req.SlotPatch, reconcileOptions(c, forceRequested(c, req.Force)))
	if err != nil {
		return respondError(c, err, "Failed to update schedule slot")
	}
	return c.JSON(reconcileResponse(result))
}

// DeleteSlot removes one slot
func (sc *ScheduleController) DeleteSlot(c *fiber.Ctx) error {
	if err := sc.reconciler.DeleteSlot(c.UserContext(), c.Params("id"), reconcileOptions(c, false)); err != nil {
		return respondError(c, err, "Failed to delete schedule slot")
	}
	return c.JSON(fiber.Map{"message": "Schedule slot deleted successfully"})
}

// ClearSlots removes every slot. Teachers and grade sections stay.
func (sc *ScheduleController) ClearSlots(c *fiber.Ctx) error {
	if _, err := sc.reconciler.Reconcile(c.UserContext(), services.GlobalScope(), nil, reconcileOptions(c, true)); err != nil {
		return respondError(c, err, "Failed to clear schedule")
	}
	return c.JSON(fiber.Map{"message": "All schedule slots deleted"})
}

// ReplaceAllSlots replaces the whole timetable
func (sc *ScheduleController) ReplaceAllSlots(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	result, err := sc.reconciler.Reconcile(c.UserContext(), services.GlobalScope(), req.Slots, reconcileOptions(c, forceRequested(c, req.Force)))
	if err != nil {
		return respondError(c, err, "Failed to save schedule")
	}
	return c.JSON(reconcileResponse(result))
}

// CheckSlots validates and conflict-checks slots without saving them
func (sc *ScheduleController) CheckSlots(c *fiber.Ctx) error {
	var req checkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	scope := req.Scope
	if scope.Kind == "" {
		scope = services.GlobalScope()
	}
	result, err := sc.reconciler.Check(c.UserContext(), scope, req.Slots)
	if err != nil {
		return respondError(c, err, "Failed to check schedule")
	}
	return c.JSON(fiber.Map{
		"valid":           len(result.Conflicts) == 0,
		"scope":           result.Scope,
		"count":           len(result.Slots),
		"conflicts":       result.Conflicts,
		"double_bookings": result.DoubleBookings,
	})
}

// GetClassSchedule returns one class's week
func (sc *ScheduleController) GetClassSchedule(c *fiber.Ctx) error {
	grade, gErr := intParam(c, "grade")
	section, sErr := intParam(c, "section")
	if gErr != nil || sErr != nil {
		return badRequest(c, "Invalid grade or section")
	}
	entries, err := sc.service.ClassSchedule(c.UserContext(), grade, section)
	if err != nil {
		return respondError(c, err, "Failed to fetch class schedule")
	}
	return c.JSON(fiber.Map{
		"grade":    grade,
		"section":  section,
		"schedule": entries,
	})
}

// ReplaceClassSlots replaces every slot of one class
func (sc *ScheduleController) ReplaceClassSlots(c *fiber.Ctx) error {
	grade, gErr := intParam(c, "grade")
	section, sErr := intParam(c, "section")
	if gErr != nil || sErr != nil {
		return badRequest(c, "Invalid grade or section")
	}
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	result, err := sc.reconciler.Reconcile(c.UserContext(), services.ClassScope(grade, section), req.Slots, reconcileOptions(c, forceRequested(c, req.Force)))
	if err != nil {
		return respondError(c, err, "Failed to save class schedule")
	}
	return c.JSON(reconcileResponse(result))
}
