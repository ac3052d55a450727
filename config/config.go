package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBDriver   string // sqlite, mysql, postgres, memory
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT / admin login
	JWTSecret     string
	JWTExpiresIn  time.Duration
	AdminUsername string
	AdminPassword string

	// AWS S3
	AWSRegion    string
	S3BucketName string

	// Server
	Port   string
	AppEnv string

	// File Upload
	MaxFileSize int64

	// Logging
	LogLevel string
	LogFile  string

	// Timetable data
	SubjectSynonymsFile string
	AuditFlushCron      string
	AuditArchiveDays    int

	// Feature Toggles
	SeedDefaults bool
	SkipMigrate  bool
}

// GetDSN returns the connection string for the configured SQL driver.
func (c *Config) GetDSN() string {
	switch c.DBDriver {
	case "mysql":
		return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	default:
		return c.DBPath + "?_foreign_keys=on&_journal_mode=WAL"
	}
}

// AuthEnabled reports whether mutating routes require an admin token.
func (c *Config) AuthEnabled() bool {
	return strings.TrimSpace(c.AdminPassword) != ""
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var (
		ssmClient *ssm.SSM
		paramMap  map[string]string
	)

	// Stage & base path for SSM
	basePath := getEnv("SSM_BASE_PATH", "/timetable")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "me-south-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		ssmClient = ssm.New(sess)
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssmClient, prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	cfg, err := build(getVal)
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg

	validateConfig(AppConfig, useSSM)
}

// build assembles a Config from a key lookup. Split out of LoadConfig so it
// can run without touching the process environment.
func build(getVal func(key, def string) string) (*Config, error) {
	jwtExpires, err := ParseDurationShorthand(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN format: %w", err)
	}

	maxFileSize, err := strconv.ParseInt(getVal("MAX_FILE_SIZE", "10485760"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_FILE_SIZE format: %w", err)
	}

	archiveDays, err := strconv.Atoi(getVal("AUDIT_ARCHIVE_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_ARCHIVE_DAYS format: %w", err)
	}

	driver := strings.ToLower(getVal("DB_DRIVER", "sqlite"))
	switch driver {
	case "sqlite", "mysql", "postgres", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	defaultPort := "3306"
	if driver == "postgres" {
		defaultPort = "5432"
	}

	return &Config{
		DBDriver:   driver,
		DBPath:     getVal("DB_PATH", "data/timetable.db"),
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", defaultPort),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "timetable"),

		RedisHost:     getVal("REDIS_HOST", ""),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:     getVal("JWT_SECRET", "change_me_timetable_secret"),
		JWTExpiresIn:  jwtExpires,
		AdminUsername: getVal("ADMIN_USERNAME", "admin"),
		AdminPassword: getVal("ADMIN_PASSWORD", ""),

		AWSRegion:    getVal("AWS_REGION", ""),
		S3BucketName: getVal("S3_BUCKET_NAME", ""),

		Port:   getVal("PORT", "5000"),
		AppEnv: getVal("APP_ENV", "development"),

		MaxFileSize: maxFileSize,

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		SubjectSynonymsFile: getVal("SUBJECT_SYNONYMS_FILE", ""),
		AuditFlushCron:      getVal("AUDIT_FLUSH_CRON", "@every 5m"),
		AuditArchiveDays:    archiveDays,

		SeedDefaults: strings.ToLower(getVal("SEED_DEFAULTS", "true")) == "true",
		SkipMigrate:  strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
	}, nil
}

// ParseDurationShorthand accepts time.ParseDuration input plus "7d" and "2w".
func ParseDurationShorthand(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(value))
	if len(s) > 1 {
		unit := s[len(s)-1]
		if n, convErr := strconv.Atoi(s[:len(s)-1]); convErr == nil {
			switch unit {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			key := name[strings.LastIndex(name, "/")+1:]
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	if c.DBDriver == "mysql" || c.DBDriver == "postgres" {
		if strings.TrimSpace(c.DBPassword) == "" {
			log.Fatalf("Missing required secret DB_PASSWORD in production (SSM=%v)", usedSSM)
		}
	}
	if c.AuthEnabled() && len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
