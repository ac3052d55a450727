package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"timetable_go/config"
	"timetable_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var RedisClient *redis.Client

// Connect opens the SQL database (unless DB_DRIVER=memory) and the optional
// Redis connection.
func Connect(cfg *config.Config) error {
	if cfg.DBDriver != "memory" {
		db, err := Open(cfg)
		if err != nil {
			return err
		}
		DB = db
		if !cfg.SkipMigrate {
			if err := AutoMigrate(DB); err != nil {
				return err
			}
		}
	}
	connectRedis(cfg)
	return nil
}

// Open connects with the configured driver. Network drivers are retried with
// a growing backoff.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.AppEnv == "development" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}
	gcfg := &gorm.Config{Logger: gormLogger}

	dsn := cfg.GetDSN()
	var dialector gorm.Dialector
	attempts := 1
	switch cfg.DBDriver {
	case "mysql":
		dialector = mysql.Open(dsn)
		attempts = 8
	case "postgres":
		dialector = postgres.Open(dsn)
		attempts = 8
	case "sqlite":
		if dir := filepath.Dir(cfg.DBPath); dir != "." && cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	var (
		db  *gorm.DB
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err = gorm.Open(dialector, gcfg)
		if err == nil {
			break
		}
		logrus.WithError(err).Warnf("Database connect attempt %d failed", attempt)
		time.Sleep(time.Duration(attempt*attempt) * 300 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.DBDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		// one writer; the reconciler serializes writes anyway
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(55 * time.Minute)
	}

	logrus.Infof("Database connected successfully (%s)", cfg.DBDriver)
	return db, nil
}

// AutoMigrate performs automatic database migration
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Teacher{},
		&models.ScheduleSlot{},
		&models.GradeSection{},
		&models.AuditEntry{},
		&models.ExportArchive{},
	)
	if err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	logrus.Info("Database migration completed successfully")
	return nil
}

// connectRedis initializes the Redis connection used by the audit queue.
// Redis is optional: without REDIS_HOST, or when it is unreachable, audit
// entries are written to the database directly.
func connectRedis(cfg *config.Config) {
	if cfg.RedisHost == "" {
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("Redis connection failed, continuing without audit queue")
		client.Close()
		return
	}
	RedisClient = client
	logrus.Info("Redis connected successfully")
}

// GetRedisClient returns the Redis client instance
func GetRedisClient() *redis.Client {
	return RedisClient
}

// Close closes the database and Redis connections
func Close() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing Redis connection")
		}
	}
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		logrus.WithError(err).Warn("Error getting database instance")
		return
	}
	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Warn("Error closing database connection")
		return
	}
	logrus.Info("Database connection closed")
}
