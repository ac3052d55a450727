package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"timetable_go/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&models.AuditEntry{}, &models.ExportArchive{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestAuditServiceMemoryMode(t *testing.T) {
	svc := NewAuditService(nil, nil)
	ctx := context.Background()

	for _, action := range []string{"reconcile", "import", "slot.delete"} {
		svc.Record(ctx, models.AuditEntry{Action: action, Actor: "admin"})
	}

	entries, err := svc.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "slot.delete" || entries[1].Action != "import" {
		t.Fatalf("expected newest first, got %+v", entries)
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Fatalf("id and time should be assigned, got %+v", entries[0])
	}

	if _, err := svc.FlushCached(ctx); err == nil {
		t.Fatalf("flush without redis should fail")
	}
	if _, err := svc.ArchiveOld(ctx, 3); err == nil {
		t.Fatalf("archive age below 7 days should be rejected")
	}
	if _, err := svc.ArchiveOld(ctx, 30); err == nil {
		t.Fatalf("archive without storage should fail")
	}
	archives, err := svc.Archives(ctx)
	if err != nil || len(archives) != 0 {
		t.Fatalf("expected no archives, got %+v (%v)", archives, err)
	}
}

func TestAuditServiceRecentCapacity(t *testing.T) {
	svc := NewAuditService(nil, nil)
	for i := 0; i < recentCapacity+25; i++ {
		svc.Record(context.Background(), models.AuditEntry{Action: "reconcile"})
	}
	entries, _ := svc.List(context.Background(), 5000)
	if len(entries) != 100 {
		t.Fatalf("limit above 1000 falls back to 100, got %d", len(entries))
	}
	svc.mu.Lock()
	n := len(svc.recent)
	svc.mu.Unlock()
	if n != recentCapacity {
		t.Fatalf("expected %d remembered entries, got %d", recentCapacity, n)
	}
}

func TestAuditServiceDatabaseArchive(t *testing.T) {
	db := openAuditDB(t)
	svc := NewAuditService(db, nil)
	uploader := &fakeUploader{}
	svc.SetUploader(uploader)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -40)
	svc.Record(ctx, models.AuditEntry{Action: "import", Actor: "admin", SlotCount: 120, BaseModel: models.BaseModel{CreatedAt: old}})
	svc.Record(ctx, models.AuditEntry{Action: "reconcile", Actor: "admin"})

	entries, err := svc.List(ctx, 10)
	if err != nil || len(entries) != 2 || entries[0].Action != "reconcile" {
		t.Fatalf("expected 2 entries newest first, got %+v (%v)", entries, err)
	}

	archive, err := svc.ArchiveOld(ctx, 30)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archive == nil || archive.RecordCount != 1 || archive.Kind != "audit" {
		t.Fatalf("unexpected archive %+v", archive)
	}
	if len(uploader.keys) != 1 || !strings.HasPrefix(uploader.keys[0], "audit/archived/") {
		t.Fatalf("unexpected upload keys %v", uploader.keys)
	}

	entries, _ = svc.List(ctx, 10)
	if len(entries) != 1 {
		t.Fatalf("archived entries should be deleted, got %d left", len(entries))
	}
	archives, err := svc.Archives(ctx)
	if err != nil || len(archives) != 1 {
		t.Fatalf("expected archive metadata, got %+v (%v)", archives, err)
	}

	again, err := svc.ArchiveOld(ctx, 30)
	if err != nil || again != nil {
		t.Fatalf("nothing left to archive, got %+v (%v)", again, err)
	}
}

func TestBuildAuditArchive(t *testing.T) {
	entries := []models.AuditEntry{
		{BaseModel: models.BaseModel{ID: "1", CreatedAt: time.Date(2026, 1, 4, 8, 0, 0, 0, time.UTC)}, Action: "import", Scope: "global", Forced: true, SlotCount: 3},
	}
	data, err := buildAuditArchive(entries, "audit_test.zip")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("not a zip: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "audit.json" || zr.File[1].Name != "audit.csv" {
		t.Fatalf("unexpected archive members")
	}

	jf, _ := zr.File[0].Open()
	var doc struct {
		RecordCount int                 `json:"record_count"`
		Entries     []models.AuditEntry `json:"entries"`
	}
	if err := json.NewDecoder(jf).Decode(&doc); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	jf.Close()
	if doc.RecordCount != 1 || doc.Entries[0].Action != "import" {
		t.Fatalf("unexpected json %+v", doc)
	}

	cf, _ := zr.File[1].Open()
	rows, err := csv.NewReader(cf).ReadAll()
	cf.Close()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "import" || rows[1][4] != "true" || rows[1][8] != "2026-01-04 08:00:00" {
		t.Fatalf("unexpected csv %v", rows)
	}
}
