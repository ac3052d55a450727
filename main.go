package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"timetable_go/config"
	"timetable_go/controllers"
	"timetable_go/database"
	"timetable_go/database/seeders"
	"timetable_go/middleware"
	"timetable_go/routes"
	"timetable_go/services"
	"timetable_go/services/websocket"
	"timetable_go/storage"
	"timetable_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "Timetable API"
	serviceVersion = "1.0.0"
)

func init() {
	// Load configuration
	config.LoadConfig()

	// Initialize logging
	setupLogging(config.AppConfig)

	// Connect to database
	if err := database.Connect(config.AppConfig); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
}

func main() {
	cfg := config.AppConfig

	// Create WebSocket hub first
	wsHub := websocket.NewHub()
	go wsHub.Run()

	var store services.TimetableStore
	if cfg.DBDriver == "memory" {
		store = services.NewMemoryStore()
	} else {
		store = database.NewGormStore(database.DB)
	}

	normalizer := services.NewSubjectNormalizer()
	if cfg.SubjectSynonymsFile != "" {
		n, err := services.LoadSubjectNormalizer(cfg.SubjectSynonymsFile)
		if err != nil {
			log.Fatal("Failed to load subject synonyms:", err)
		}
		normalizer = n
	}

	audit := services.NewAuditService(database.DB, database.GetRedisClient())

	reconciler := services.NewSlotReconciler(store)
	reconciler.SetNotifier(wsHub)
	reconciler.SetAuditRecorder(audit)

	timetable := services.NewTimetableService(reconciler, normalizer)
	importer := services.NewImportService(reconciler, normalizer)
	exporter := services.NewExportService(store)

	if cfg.S3BucketName != "" {
		archiveStore, err := storage.NewArchiveStore(context.Background(), cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			logrus.WithError(err).Warn("S3 archiving disabled")
		} else {
			exporter.SetArchiver(archiveStore, audit)
			audit.SetUploader(archiveStore)
			log.Printf("Archiving exports to s3://%s", cfg.S3BucketName)
		}
	}

	// Start audit maintenance scheduler
	maintenance, err := audit.StartMaintenance(cfg.AuditFlushCron, cfg.AuditArchiveDays)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.SeedDefaults {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := seeders.SeedAll(ctx, store); err != nil {
			logrus.WithError(err).Error("Seeding failed")
		}
		cancel()
	}

	health := services.NewHealthService(serviceName, serviceVersion, services.HealthOptions{
		DB:          database.DB,
		Driver:      cfg.DBDriver,
		RedisClient: database.GetRedisClient(),
		Store:       store,
		Environment: cfg.AppEnv,
		Flags: services.HealthFlags{
			SkipMigrate:  cfg.SkipMigrate,
			SeedDefaults: cfg.SeedDefaults,
			AuthEnabled:  cfg.AuthEnabled(),
		},
	})

	login := controllers.AuthConfig{
		Username:    cfg.AdminUsername,
		Secret:      cfg.JWTSecret,
		ExpiresIn:   cfg.JWTExpiresIn,
		RedisClient: database.GetRedisClient(),
	}
	if cfg.AuthEnabled() {
		hash, err := utils.HashPassword(cfg.AdminPassword)
		if err != nil {
			log.Fatal("Failed to hash admin password:", err)
		}
		login.PasswordHash = hash
	} else {
		log.Println("⚠️ ADMIN_PASSWORD not set: write routes are open")
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	// Custom middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerMiddleware())

	// API routes
	routes.SetupRoutes(app, routes.Dependencies{
		Reconciler: reconciler,
		Timetable:  timetable,
		Importer:   importer,
		Exporter:   exporter,
		Audit:      audit,
		Health:     health,
		Hub:        wsHub,
		Auth: middleware.AuthOptions{
			Enabled:     cfg.AuthEnabled(),
			Secret:      cfg.JWTSecret,
			RedisClient: database.GetRedisClient(),
		},
		Login: login,
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		<-maintenance.Stop().Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	log.Printf("🚀 Server starting on port %s", cfg.Port)
	log.Printf("📚 %s v%s", serviceName, serviceVersion)
	log.Printf("🌍 Environment: %s (db=%s)", cfg.AppEnv, cfg.DBDriver)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := audit.FlushCached(ctx); err != nil {
		logrus.WithError(err).Warn("Final audit flush failed")
	}
	cancel()
	database.Close()
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Log to stdout in development, to file otherwise
	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"status": code,
	})
}
