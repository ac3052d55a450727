package controllers

import (
	"strconv"

	"timetable_go/services"

	"github.com/gofiber/fiber/v2"
)

// AuditController exposes the audit trail and the archive ledger.
type AuditController struct {
	audit *services.AuditService
}

func NewAuditController(audit *services.AuditService) *AuditController {
	return &AuditController{audit: audit}
}

// GetEntries returns the newest audit entries
func (ac *AuditController) GetEntries(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	entries, err := ac.audit.List(c.UserContext(), limit)
	if err != nil {
		return respondError(c, err, "Failed to fetch audit entries")
	}
	return c.JSON(fiber.Map{"entries": entries, "total": len(entries)})
}

// GetArchives lists uploaded workbook and audit archives
func (ac *AuditController) GetArchives(c *fiber.Ctx) error {
	archives, err := ac.audit.Archives(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to fetch archives")
	}
	return c.JSON(fiber.Map{"archives": archives})
}

// FlushQueue moves queued entries from Redis into the database now
func (ac *AuditController) FlushQueue(c *fiber.Ctx) error {
	n, err := ac.audit.FlushCached(c.UserContext())
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(fiber.Map{"flushed": n})
}
