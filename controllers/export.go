package controllers

import (
	"fmt"

	"timetable_go/middleware"
	"timetable_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ExportController struct {
	exporter *services.ExportService
	audit    services.AuditRecorder
}

func NewExportController(exporter *services.ExportService, audit services.AuditRecorder) *ExportController {
	return &ExportController{exporter: exporter, audit: audit}
}

// Export streams the requested workbook. It writes nothing.
func (ec *ExportController) Export(c *fiber.Ctx) error {
	file, err := ec.exporter.Export(c.UserContext(), services.ExportKind(c.Params("kind")))
	if err != nil {
		return respondError(c, err, "Failed to build export")
	}

	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, file.FileName))
	return c.Send(file.Data)
}

// Archive builds the requested workbook and uploads it to archive storage.
// The archive record is returned even when the upload failed.
func (ec *ExportController) Archive(c *fiber.Ctx) error {
	kind := services.ExportKind(c.Params("kind"))
	file, err := ec.exporter.Export(c.UserContext(), kind)
	if err != nil {
		return respondError(c, err, "Failed to build export")
	}

	archive, err := ec.exporter.Archive(c.UserContext(), file)
	if err != nil {
		if archive == nil {
			return respondError(c, err, "Failed to archive export")
		}
		logrus.WithError(err).Warn("export archive failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Failed to upload export",
			"archive": archive,
		})
	}

	middleware.LogActivity(c, ec.audit, "export."+string(kind)+".archive", fiber.Map{"records": file.Records, "bytes": len(file.Data), "key": archive.S3Key})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Export archived",
		"archive": archive,
	})
}
