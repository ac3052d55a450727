package controllers

import (
	"timetable_go/services"
	"timetable_go/utils"

	"github.com/gofiber/fiber/v2"
)

var importExtensions = []string{"xlsx", "xlsm", "csv"}

// ScheduleImportController replaces the timetable from a master grid upload.
type ScheduleImportController struct {
	importer *services.ImportService
}

func NewScheduleImportController(importer *services.ImportService) *ScheduleImportController {
	return &ScheduleImportController{importer: importer}
}

// Import parses the uploaded master grid and replaces all teachers and slots.
// Overlaps inside the file answer 409 with the parsed content unless the
// form carries force (or ignoreConflicts).
func (sic *ScheduleImportController) Import(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	if !utils.IsValidFileExtension(fileHeader.Filename, importExtensions) {
		return badRequest(c, services.ErrUnsupportedFile.Error())
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "cannot open file")
	}
	defer file.Close()

	rows, err := services.ReadSpreadsheet(fileHeader.Filename, file)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if len(rows) == 0 {
		return badRequest(c, "file is empty")
	}

	force := forceRequested(c, isTruthy(c.FormValue("force")) || isTruthy(c.FormValue("ignoreConflicts")))
	report, err := sic.importer.Import(c.UserContext(), rows, reconcileOptions(c, force))
	if err != nil {
		if ce, ok := services.IsConflictError(err); ok && report != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":     "conflict",
				"message":   conflictMessage,
				"conflicts": ce.Conflicts,
				"teachers":  report.Batch.Teachers,
				"slots":     report.Batch.Slots,
				"warnings":  report.Warnings,
				"unparsed":  report.Unparsed,
			})
		}
		if ve, ok := services.IsValidationError(err); ok && report != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":            "validation_failed",
				"message":          ve.Error(),
				"issues":           ve.Issues,
				"unknown_sections": ve.UnknownSections,
				"warnings":         report.Warnings,
				"unparsed":         report.Unparsed,
			})
		}
		return respondError(c, err, "Failed to import schedule")
	}

	return c.JSON(fiber.Map{
		"message": "Schedule imported successfully",
		"report":  report,
	})
}
