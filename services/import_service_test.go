package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"timetable_go/models"
)

func masterRows(rows ...[]string) [][]string {
	out := make([][]string, GridFirstRow-1)
	return append(out, rows...)
}

func TestImportReplacesRoster(t *testing.T) {
	f := newReconcilerFixture(t)
	svc := NewImportService(f.reconciler, nil)
	ctx := context.Background()

	report, err := svc.Import(ctx, masterRows(
		gridRow("سعيد", "اللغة العربية", map[[2]int]string{{0, 1}: "10/1", {0, 2}: "10/2"}),
		gridRow("منى", "biology", map[[2]int]string{{0, 1}: "10/2", {3, 3}: "x"}),
	), ReconcileOptions{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !report.Success || report.TeachersImported != 2 || report.SlotsImported != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Unparsed) != 1 {
		t.Fatalf("expected one unparsed cell, got %+v", report.Unparsed)
	}

	teachers, _ := f.store.ListTeachers(ctx)
	if len(teachers) != 2 || teachers[0].Subject != "عربي" || teachers[1].Subject != "أحياء" {
		t.Fatalf("old roster should be replaced by the imported one, got %+v", teachers)
	}
}

func TestImportConflicts(t *testing.T) {
	rows := masterRows(
		gridRow("سعيد", "عربي", map[[2]int]string{{0, 1}: "10/1"}),
		gridRow("منى", "أحياء", map[[2]int]string{{0, 1}: "1/10"}),
	)

	t.Run("refused", func(t *testing.T) {
		f := newReconcilerFixture(t)
		report, err := NewImportService(f.reconciler, nil).Import(context.Background(), rows, ReconcileOptions{})
		if _, ok := IsConflictError(err); !ok {
			t.Fatalf("expected conflict error, got %v", err)
		}
		if report == nil || report.Success || len(report.Conflicts) != 1 || len(report.Batch.Teachers) != 2 {
			t.Fatalf("refused import should still report the parsed batch, got %+v", report)
		}
		teachers, _ := f.store.ListTeachers(context.Background())
		if len(teachers) != 2 || teachers[0].ID != "a" {
			t.Fatalf("refused import must not touch the store")
		}
	})

	t.Run("forced", func(t *testing.T) {
		f := newReconcilerFixture(t)
		report, err := NewImportService(f.reconciler, nil).Import(context.Background(), rows, ReconcileOptions{Force: true})
		if err != nil {
			t.Fatalf("forced import: %v", err)
		}
		if !report.Forced || len(report.Conflicts) != 1 || report.SlotsImported != 2 {
			t.Fatalf("unexpected report %+v", report)
		}
	})
}

func TestImportValidation(t *testing.T) {
	f := newReconcilerFixture(t)
	svc := NewImportService(f.reconciler, nil)

	_, err := svc.Import(context.Background(), masterRows(), ReconcileOptions{})
	if _, ok := IsValidationError(err); !ok {
		t.Fatalf("empty grid should fail validation, got %v", err)
	}

	_, err = svc.Import(context.Background(), masterRows(
		gridRow("سعيد", "عربي", map[[2]int]string{{0, 1}: "10/9"}),
	), ReconcileOptions{Force: true})
	verr, ok := IsValidationError(err)
	if !ok || len(verr.UnknownSections) != 1 {
		t.Fatalf("expected unknown section 10/9, got %v", err)
	}
}

func TestImportFile(t *testing.T) {
	f := newReconcilerFixture(t)
	svc := NewImportService(f.reconciler, nil)

	row := gridRow("سعيد", "عربي", map[[2]int]string{{0, 1}: "10/1"})
	var csv bytes.Buffer
	for i := 0; i < GridFirstRow-1; i++ {
		csv.WriteString("header\n")
	}
	csv.WriteString(strings.Join(row, ",") + "\n")

	report, err := svc.ImportFile(context.Background(), "grid.CSV", &csv, ReconcileOptions{})
	if err != nil {
		t.Fatalf("csv import: %v", err)
	}
	if report.SlotsImported != 1 {
		t.Fatalf("expected one slot, got %+v", report)
	}

	if _, err := svc.ImportFile(context.Background(), "grid.pdf", strings.NewReader(""), ReconcileOptions{}); !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestImportedSlotsUseConfiguredSections(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	if err := f.store.SaveGradeSection(ctx, models.NewGradeSection(12, []int{1, 2, 3, 4, 5, 6, 7, 8, 9})); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := NewImportService(f.reconciler, nil).Import(ctx, masterRows(
		gridRow("سعيد", "عربي", map[[2]int]string{{4, 7}: "12/9"}),
	), ReconcileOptions{})
	if err != nil {
		t.Fatalf("12/9 is configured: %v", err)
	}
}
