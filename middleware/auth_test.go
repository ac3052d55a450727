package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

const testSecret = "test-secret"

func newProtectedApp(opts AuthOptions) *fiber.App {
	app := fiber.New()
	app.Post("/protected", JWTMiddleware(opts), func(c *fiber.Ctx) error {
		return c.SendString(Actor(c))
	})
	return app
}

func TestGenerateAndParseToken(t *testing.T) {
	token, claims, err := GenerateToken(testSecret, time.Hour, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Username != "admin" || parsed.Role != roleAdmin || parsed.ID != claims.ID {
		t.Fatalf("unexpected claims %+v", parsed)
	}
	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, _, err := GenerateToken(testSecret, -time.Minute, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(testSecret, token); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestJWTMiddleware(t *testing.T) {
	valid, _, err := GenerateToken(testSecret, time.Hour, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name   string
		opts   AuthOptions
		header string
		want   int
	}{
		{"disabled lets everyone through", AuthOptions{}, "", fiber.StatusOK},
		{"missing header", AuthOptions{Enabled: true, Secret: testSecret}, "", fiber.StatusUnauthorized},
		{"not a bearer token", AuthOptions{Enabled: true, Secret: testSecret}, valid, fiber.StatusUnauthorized},
		{"garbage token", AuthOptions{Enabled: true, Secret: testSecret}, "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"valid token", AuthOptions{Enabled: true, Secret: testSecret}, "Bearer " + valid, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newProtectedApp(tt.opts)
			req := httptest.NewRequest("POST", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRevokeTokenWithoutRedisIsNoop(t *testing.T) {
	_, claims, err := GenerateToken(testSecret, time.Hour, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := RevokeToken(context.Background(), nil, claims); err != nil {
		t.Fatalf("revoke: %v", err)
	}
}
