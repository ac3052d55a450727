package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	roleAdmin       = "admin"
	blacklistPrefix = "jwt:blacklist:"
	anonymousActor  = "anonymous"
)

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthOptions configures JWTMiddleware. With Enabled false every request
// passes as the anonymous actor.
type AuthOptions struct {
	Enabled     bool
	Secret      string
	RedisClient *redis.Client
}

// GenerateToken issues an admin token for username.
func GenerateToken(secret string, ttl time.Duration, username string) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Role:     roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseToken validates tokenString and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// JWTMiddleware guards mutating routes with the admin token.
func JWTMiddleware(opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !opts.Enabled {
			c.Locals("actor", anonymousActor)
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims, err := ParseToken(opts.Secret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}
		if revoked(c.UserContext(), opts.RedisClient, claims.ID) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token has been revoked",
			})
		}
		if claims.Role != roleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}

		c.Locals("claims", claims)
		c.Locals("actor", claims.Username)
		return c.Next()
	}
}

// RevokeToken blacklists claims until they expire. Without Redis tokens stay
// valid until expiry.
func RevokeToken(ctx context.Context, client *redis.Client, claims *Claims) error {
	if client == nil || claims == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return client.Set(ctx, blacklistPrefix+claims.ID, "1", ttl).Err()
}

func revoked(ctx context.Context, client *redis.Client, jti string) bool {
	if client == nil || jti == "" {
		return false
	}
	n, err := client.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		logrus.WithError(err).Warn("token blacklist lookup failed")
		return false
	}
	return n > 0
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}

// Actor names who is making the request, for the audit trail.
func Actor(c *fiber.Ctx) string {
	if actor, ok := c.Locals("actor").(string); ok && actor != "" {
		return actor
	}
	return anonymousActor
}
