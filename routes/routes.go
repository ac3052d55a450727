package routes

import (
	"timetable_go/controllers"
	"timetable_go/middleware"
	"timetable_go/services"
	"timetable_go/services/websocket"

	"github.com/gofiber/fiber/v2"
)

// Dependencies are the services the routes are served from.
type Dependencies struct {
	Reconciler *services.SlotReconciler
	Timetable  *services.TimetableService
	Importer   *services.ImportService
	Exporter   *services.ExportService
	Audit      *services.AuditService
	Health     *services.HealthService
	Hub        *websocket.Hub
	Auth       middleware.AuthOptions
	Login      controllers.AuthConfig
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	var audit services.AuditRecorder
	if deps.Audit != nil {
		audit = deps.Audit
	}

	authController := controllers.NewAuthController(deps.Login, audit)
	teacherController := controllers.NewTeacherController(deps.Timetable, deps.Reconciler)
	scheduleController := controllers.NewScheduleController(deps.Timetable, deps.Reconciler)
	gradeSectionController := controllers.NewGradeSectionController(deps.Timetable)
	reportController := controllers.NewReportController(deps.Timetable)
	importController := controllers.NewScheduleImportController(deps.Importer)
	exportController := controllers.NewExportController(deps.Exporter, audit)
	healthController := controllers.NewHealthController(deps.Health)

	requireAdmin := middleware.JWTMiddleware(deps.Auth)

	app.Get("/health", healthController.GetHealthStatus)

	api := app.Group("/api")
	api.Get("/health", healthController.GetHealthStatus)

	// Authentication routes
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Post("/logout", requireAdmin, authController.Logout)
	auth.Get("/profile", requireAdmin, authController.Profile)

	// Teachers
	teachers := api.Group("/teachers")
	teachers.Get("/", teacherController.GetTeachers)
	teachers.Get("/:id", teacherController.GetTeacher)
	teachers.Get("/:id/schedule-slots", teacherController.GetTeacherSlots)
	teachers.Post("/", requireAdmin, teacherController.CreateTeacher)
	teachers.Patch("/:id", requireAdmin, teacherController.UpdateTeacher)
	teachers.Put("/:id", requireAdmin, teacherController.UpdateTeacher)
	teachers.Delete("/:id", requireAdmin, teacherController.DeleteTeacher)
	teachers.Post("/:id/schedule-slots/batch", requireAdmin, teacherController.ReplaceTeacherSlots)

	// Schedule slots
	slots := api.Group("/schedule-slots")
	slots.Get("/", scheduleController.GetSlots)
	slots.Post("/", requireAdmin, scheduleController.CreateSlot)
	slots.Delete("/", requireAdmin, scheduleController.ClearSlots)
	slots.Post("/batch", requireAdmin, scheduleController.ReplaceAllSlots)
	slots.Post("/check", requireAdmin, scheduleController.CheckSlots)
	slots.Patch("/:id", requireAdmin, scheduleController.UpdateSlot)
	slots.Delete("/:id", requireAdmin, scheduleController.DeleteSlot)

	// Class timetables
	classes := api.Group("/class-schedules")
	classes.Get("/:grade/:section", scheduleController.GetClassSchedule)
	classes.Post("/:grade/:section", requireAdmin, scheduleController.ReplaceClassSlots)

	// Grade/section configuration
	grades := api.Group("/grade-sections")
	grades.Get("/", gradeSectionController.GetGradeSections)
	grades.Get("/:grade", gradeSectionController.GetGradeSection)
	grades.Put("/:grade", requireAdmin, gradeSectionController.UpdateGradeSection)

	// Reports
	api.Get("/conflicts", reportController.GetConflicts)
	api.Get("/schedule/gaps", reportController.GetGaps)
	api.Get("/schedule/load", reportController.GetLoad)

	// Spreadsheets
	api.Post("/import-excel", requireAdmin, importController.Import)
	api.Get("/export/:kind", exportController.Export)
	api.Post("/export/:kind/archive", requireAdmin, exportController.Archive)

	// Audit trail
	if deps.Audit != nil {
		auditController := controllers.NewAuditController(deps.Audit)
		api.Get("/audit", requireAdmin, auditController.GetEntries)
		api.Get("/archives", requireAdmin, auditController.GetArchives)
		api.Post("/audit/flush", requireAdmin, auditController.FlushQueue)
	}

	// Live updates
	if deps.Hub != nil {
		wsController := controllers.NewWebSocketController(deps.Hub)
		app.Use("/ws", wsController.UpgradeRequired)
		app.Get("/ws", wsController.WebSocketHandler())
		api.Get("/ws/stats", wsController.GetWebSocketStats)
	}
}
