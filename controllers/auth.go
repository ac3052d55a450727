package controllers

import (
	"crypto/subtle"
	"time"

	"timetable_go/middleware"
	"timetable_go/services"
	"timetable_go/utils"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AuthConfig is the single admin account guarding mutating routes.
type AuthConfig struct {
	Username     string
	PasswordHash string
	Secret       string
	ExpiresIn    time.Duration
	RedisClient  *redis.Client
}

type AuthController struct {
	cfg      AuthConfig
	audit    services.AuditRecorder
	validate *validator.Validate
}

func NewAuthController(cfg AuthConfig, audit services.AuditRecorder) *AuthController {
	return &AuthController{cfg: cfg, audit: audit, validate: validator.New()}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login issues an admin JWT
func (ac *AuthController) Login(c *fiber.Ctx) error {
	if ac.cfg.PasswordHash == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Authentication is disabled"})
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := ac.validate.Struct(req); err != nil {
		return badRequest(c, "Username and password are required")
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(ac.cfg.Username)) == 1
	passOK := utils.CheckPassword(req.Password, ac.cfg.PasswordHash) == nil
	if !userOK || !passOK {
		c.Locals("actor", req.Username)
		middleware.LogActivity(c, ac.audit, "auth.login_failed", nil)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	token, claims, err := middleware.GenerateToken(ac.cfg.Secret, ac.cfg.ExpiresIn, ac.cfg.Username)
	if err != nil {
		logrus.WithError(err).Error("Failed to sign token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	c.Locals("actor", ac.cfg.Username)
	middleware.LogActivity(c, ac.audit, "auth.login", nil)
	return c.JSON(fiber.Map{
		"message":    "Login successful",
		"token":      token,
		"expires_at": claims.ExpiresAt.Time,
		"username":   ac.cfg.Username,
	})
}

// Logout blacklists the current token until it expires
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		// auth disabled: nothing to revoke
		return c.JSON(fiber.Map{"message": "Logged out successfully"})
	}
	if err := middleware.RevokeToken(c.UserContext(), ac.cfg.RedisClient, claims); err != nil {
		logrus.WithError(err).Warn("Failed to blacklist token")
	}
	middleware.LogActivity(c, ac.audit, "auth.logout", nil)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// Profile returns who the token belongs to
func (ac *AuthController) Profile(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return c.JSON(fiber.Map{"username": middleware.Actor(c), "auth_enabled": false})
	}
	return c.JSON(fiber.Map{
		"username":     claims.Username,
		"role":         claims.Role,
		"expires_at":   claims.ExpiresAt.Time,
		"auth_enabled": true,
	})
}
