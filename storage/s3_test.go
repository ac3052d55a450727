package storage

import (
	"context"
	"errors"
	"testing"
)

func TestObjectURLRoundTrip(t *testing.T) {
	url := ObjectURL("school-archives", "me-south-1", "exports/2026/10/master_schedule.xlsx")
	want := "https://school-archives.s3.me-south-1.amazonaws.com/exports/2026/10/master_schedule.xlsx"
	if url != want {
		t.Fatalf("ObjectURL = %s, want %s", url, want)
	}
	if key := KeyFromURL(url); key != "exports/2026/10/master_schedule.xlsx" {
		t.Fatalf("KeyFromURL = %s", key)
	}
	if key := KeyFromURL("https://example.com/file"); key != "" {
		t.Fatalf("foreign URL should yield empty key, got %s", key)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"master.xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"audit.ZIP":    "application/zip",
		"grid.csv":     "text/csv",
		"noext":        "application/octet-stream",
		"entries.json": "application/json",
	}
	for name, want := range tests {
		if got := ContentTypeFor(name); got != want {
			t.Errorf("ContentTypeFor(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestNewArchiveStoreRequiresBucket(t *testing.T) {
	if _, err := NewArchiveStore(context.Background(), "me-south-1", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
