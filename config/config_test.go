package config

import (
	"testing"
	"time"
)

func TestParseDurationShorthand(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"90m", 90 * time.Minute},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseDurationShorthand(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}

	if _, err := ParseDurationShorthand("soon"); err == nil {
		t.Fatalf("expected error for invalid input")
	}
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := build(func(_, def string) string { return def })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.DBDriver)
	}
	if cfg.AuthEnabled() {
		t.Fatalf("auth should be disabled without ADMIN_PASSWORD")
	}
	if cfg.GetDSN() != "data/timetable.db?_foreign_keys=on&_journal_mode=WAL" {
		t.Fatalf("unexpected sqlite DSN %q", cfg.GetDSN())
	}
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	_, err := build(func(key, def string) string {
		if key == "DB_DRIVER" {
			return "oracle"
		}
		return def
	})
	if err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg, err := build(func(key, def string) string {
		switch key {
		case "DB_DRIVER":
			return "postgres"
		case "DB_PASSWORD":
			return "secret"
		}
		return def
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "host=localhost port=5432 user=root password=secret dbname=timetable sslmode=disable TimeZone=UTC"
	if cfg.GetDSN() != want {
		t.Fatalf("expected %q, got %q", want, cfg.GetDSN())
	}
}
