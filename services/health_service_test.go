package services

import (
	"context"
	"testing"
	"time"
)

func TestHealthReportMemoryStore(t *testing.T) {
	f := newReconcilerFixture(t)
	svc := NewHealthService("", "", HealthOptions{Driver: "memory", Store: f.store, Flags: HealthFlags{SeedDefaults: true}})
	svc.SetStartTime(time.Now().Add(-90 * time.Second))

	report := svc.GetHealthReport(context.Background())
	if report.Status != overallStatusOK {
		t.Fatalf("expected ok, got %s (%+v)", report.Status, report.Dependencies)
	}
	if report.Service != defaultServiceName || report.Environment != "unknown" {
		t.Fatalf("unexpected defaults %s/%s", report.Service, report.Environment)
	}
	if len(report.Dependencies) != 2 || report.Dependencies[0].Status != dependencyStatusDisabled || report.Dependencies[1].Status != dependencyStatusDisabled {
		t.Fatalf("memory store without redis reports both dependencies disabled, got %+v", report.Dependencies)
	}
	if report.Metrics.Timetable == nil || report.Metrics.Timetable.Teachers != 2 {
		t.Fatalf("expected timetable stats, got %+v", report.Metrics.Timetable)
	}
	if report.UptimeHuman != "1m 30s" {
		t.Fatalf("unexpected uptime %q", report.UptimeHuman)
	}
	if !report.Flags.SeedDefaults {
		t.Fatalf("flags should be echoed")
	}
}

func TestHealthReportMissingDatabase(t *testing.T) {
	svc := NewHealthService("svc", "2.0.0", HealthOptions{Driver: "sqlite"})
	report := svc.GetHealthReport(context.Background())
	if report.Status != overallStatusCritical {
		t.Fatalf("expected critical, got %s", report.Status)
	}
	if svc.HTTPStatusForOverall(report.Status) != 503 {
		t.Fatalf("critical should map to 503")
	}
}

func TestCombineStatus(t *testing.T) {
	tests := []struct {
		current, candidate, expected string
	}{
		{overallStatusOK, overallStatusDegraded, overallStatusDegraded},
		{overallStatusDegraded, overallStatusOK, overallStatusDegraded},
		{overallStatusDegraded, overallStatusCritical, overallStatusCritical},
		{"bogus", overallStatusOK, overallStatusOK},
		{overallStatusOK, "bogus", overallStatusOK},
	}
	for _, tc := range tests {
		if got := combineStatus(tc.current, tc.candidate); got != tc.expected {
			t.Fatalf("combineStatus(%s, %s) = %s, expected %s", tc.current, tc.candidate, got, tc.expected)
		}
	}
}
