package services

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// ImportService replaces the timetable with the content of a master grid.
type ImportService struct {
	reconciler *SlotReconciler
	normalizer *SubjectNormalizer
}

func NewImportService(reconciler *SlotReconciler, normalizer *SubjectNormalizer) *ImportService {
	if normalizer == nil {
		normalizer = NewSubjectNormalizer()
	}
	return &ImportService{reconciler: reconciler, normalizer: normalizer}
}

// ImportReport describes an import attempt. On a refused import it still
// carries the parsed teachers and slots so the operator can review them.
type ImportReport struct {
	Success          bool             `json:"success"`
	TeachersImported int              `json:"teachers_imported"`
	SlotsImported    int              `json:"slots_imported"`
	Forced           bool             `json:"forced"`
	Conflicts        []Conflict       `json:"conflicts"`
	DoubleBookings   []DoubleBooking  `json:"double_bookings,omitempty"`
	Unparsed         []UnparsedCell   `json:"unparsed"`
	Warnings         []SubjectWarning `json:"warnings"`
	Batch            *ImportBatch     `json:"-"`
}

// ImportFile reads filename's content and imports it.
func (s *ImportService) ImportFile(ctx context.Context, filename string, r io.Reader, opts ReconcileOptions) (*ImportReport, error) {
	rows, err := ReadSpreadsheet(filename, r)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, rows, opts)
}

// Import parses rows as a master grid and replaces all teachers and slots
// with the result. Overlaps inside the batch refuse the import unless
// opts.Force is set; the returned report is non-nil in that case too.
func (s *ImportService) Import(ctx context.Context, rows [][]string, opts ReconcileOptions) (*ImportReport, error) {
	batch := ParseMasterGrid(rows, s.normalizer)
	report := &ImportReport{
		Unparsed: batch.Unparsed,
		Warnings: batch.Warnings,
		Batch:    batch,
	}

	if len(batch.Teachers) == 0 {
		verr := &ValidationError{}
		verr.add(-1, "file", nil, "no teacher rows found (name in column 39, subject in column 38, from row 5)")
		return report, verr
	}

	result, err := s.reconciler.ReplaceRoster(ctx, batch.Teachers, batch.Slots, opts)
	if err != nil {
		if ce, ok := IsConflictError(err); ok {
			report.Conflicts = ce.Conflicts
		}
		return report, err
	}

	report.Success = true
	report.TeachersImported = len(batch.Teachers)
	report.SlotsImported = len(result.Slots)
	report.Forced = result.Forced
	report.Conflicts = result.Conflicts
	report.DoubleBookings = result.DoubleBookings

	logrus.WithFields(logrus.Fields{
		"teachers": report.TeachersImported,
		"slots":    report.SlotsImported,
		"unparsed": len(report.Unparsed),
		"warnings": len(report.Warnings),
		"forced":   report.Forced,
	}).Info("master grid imported")
	return report, nil
}
