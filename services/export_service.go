package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"timetable_go/models"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

type ExportKind string

const (
	ExportMaster   ExportKind = "master"
	ExportTeachers ExportKind = "teachers"
	ExportClasses  ExportKind = "classes"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	ErrUnknownExport   = errors.New("unknown export kind (master, teachers, classes)")
	ErrArchiveDisabled = errors.New("archive storage not configured")
)

// ExportFile is a rendered workbook.
type ExportFile struct {
	Kind        ExportKind `json:"kind"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	Records     int        `json:"records"`
	Data        []byte     `json:"-"`
}

// ObjectUploader stores a blob and returns where it can be fetched from.
type ObjectUploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// ArchiveLedger keeps metadata of uploaded archives.
type ArchiveLedger interface {
	SaveArchive(ctx context.Context, archive *models.ExportArchive) error
}

// ExportService renders timetables as Excel workbooks.
type ExportService struct {
	store    TimetableStore
	uploader ObjectUploader
	ledger   ArchiveLedger
}

func NewExportService(store TimetableStore) *ExportService {
	return &ExportService{store: store}
}

// SetArchiver enables Archive. Either argument may be nil.
func (s *ExportService) SetArchiver(uploader ObjectUploader, ledger ArchiveLedger) {
	s.uploader = uploader
	s.ledger = ledger
}

// Export renders the workbook of the given kind from the current store state.
func (s *ExportService) Export(ctx context.Context, kind ExportKind) (*ExportFile, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	teachers, slots := snap.Teachers, snap.Slots

	var (
		f       *excelize.File
		name    string
		records int
	)
	switch kind {
	case ExportMaster:
		f, err = BuildMasterWorkbook(teachers, slots)
		name, records = "master_schedule.xlsx", len(teachers)
	case ExportTeachers:
		f, err = BuildTeacherWorkbook(teachers, slots)
		name, records = "teacher_schedules.xlsx", len(teachers)
	case ExportClasses:
		index := GradeSectionIndex(snap.Sections)
		var classes []GradeSectionRef
		for _, g := range models.Grades() {
			for _, sec := range SectionsFor(index, g) {
				classes = append(classes, GradeSectionRef{Grade: g, Section: sec})
			}
		}
		f, err = BuildClassWorkbook(classes, teachers, slots)
		name, records = "class_schedules.xlsx", len(classes)
	default:
		return nil, ErrUnknownExport
	}
	if err != nil {
		return nil, fmt.Errorf("build %s workbook: %w", kind, err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write %s workbook: %w", kind, err)
	}
	return &ExportFile{Kind: kind, FileName: name, ContentType: xlsxContentType, Records: records, Data: buf.Bytes()}, nil
}

// Archive uploads file and records it in the ledger.
func (s *ExportService) Archive(ctx context.Context, file *ExportFile) (*models.ExportArchive, error) {
	if s.uploader == nil {
		return nil, ErrArchiveDisabled
	}
	now := time.Now().UTC()
	key := fmt.Sprintf("exports/%d/%02d/%s_%s", now.Year(), now.Month(), now.Format("20060102T150405"), file.FileName)

	archive := &models.ExportArchive{
		Kind:        string(file.Kind),
		FileName:    file.FileName,
		S3Key:       key,
		RecordCount: file.Records,
		FileSize:    int64(len(file.Data)),
		Status:      "completed",
	}
	url, err := s.uploader.Upload(ctx, key, file.ContentType, file.Data)
	if err != nil {
		archive.Status = "failed"
		archive.Error = err.Error()
	}
	archive.URL = url

	if s.ledger != nil {
		if ledgerErr := s.ledger.SaveArchive(ctx, archive); ledgerErr != nil {
			logrus.WithError(ledgerErr).Error("Failed to save export archive metadata")
		}
	}
	if err != nil {
		return archive, fmt.Errorf("upload %s: %w", key, err)
	}
	return archive, nil
}

// BuildMasterWorkbook writes every teacher's week on one sheet in the layout
// ParseMasterGrid reads back.
func BuildMasterWorkbook(teachers []models.Teacher, slots []models.ScheduleSlot) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "الجدول الرئيسي"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	setRightToLeft(f, sheet)

	set := func(col, row int, value interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, value)
	}

	if err := set(1, 1, "الجدول الرئيسي"); err != nil {
		return nil, err
	}
	for _, day := range models.Days {
		first := GridColumn(day, models.MaxPeriod)
		last := GridColumn(day, models.MinPeriod)
		if err := set(first, 3, day); err != nil {
			return nil, err
		}
		if err := mergeRange(f, sheet, first, 3, last, 3); err != nil {
			return nil, err
		}
		for _, period := range models.Periods() {
			if err := set(GridColumn(day, period), 4, period); err != nil {
				return nil, err
			}
		}
	}
	headers := map[int]string{
		1:                  "م",
		GridSubjectCol:     "المادة",
		GridTeacherCol:     "اسم المعلم",
		GridTeacherCol + 1: "مجموع الحصص",
	}
	for i, g := range models.Grades() {
		headers[GridTeacherCol+2+i] = strconv.Itoa(g)
	}
	for col, text := range headers {
		if err := set(col, 4, text); err != nil {
			return nil, err
		}
	}

	loads := computeLoads(teachers, slots)
	byTeacher := slotsByTeacher(slots)
	for i, t := range teachers {
		row := GridFirstRow + i
		if err := set(1, row, i+1); err != nil {
			return nil, err
		}
		for _, slot := range byTeacher[t.ID] {
			col := GridColumn(slot.Day, slot.Period)
			if col == 0 {
				continue
			}
			if err := set(col, row, FormatGradeSection(slot.Grade, slot.Section)); err != nil {
				return nil, err
			}
		}
		if err := set(GridSubjectCol, row, t.Subject); err != nil {
			return nil, err
		}
		if err := set(GridTeacherCol, row, t.Name); err != nil {
			return nil, err
		}
		if err := set(GridTeacherCol+1, row, loads[i].Total); err != nil {
			return nil, err
		}
		for j, g := range models.Grades() {
			if err := set(GridTeacherCol+2+j, row, loads[i].PerGrade[g]); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// BuildTeacherWorkbook writes one sheet per teacher: days down column B,
// periods across row 3, consecutive identical cells merged.
func BuildTeacherWorkbook(teachers []models.Teacher, slots []models.ScheduleSlot) (*excelize.File, error) {
	f := excelize.NewFile()
	used := make(map[string]bool)
	byTeacher := slotsByTeacher(slots)

	for i, t := range teachers {
		cells := make(map[string][]string, len(models.Days))
		for _, day := range models.Days {
			cells[day] = make([]string, models.MaxPeriod)
		}
		for _, slot := range byTeacher[t.ID] {
			if row, ok := cells[slot.Day]; ok && slot.Period >= models.MinPeriod && slot.Period <= models.MaxPeriod {
				row[slot.Period-1] = FormatGradeSection(slot.Grade, slot.Section)
			}
		}
		sheet := uniqueSheetName(t.Name, used)
		if err := addWeekSheet(f, i == 0, sheet, "جدول المعلم: "+t.Name, cells); err != nil {
			return nil, err
		}
	}
	if len(teachers) == 0 {
		if err := f.SetCellValue("Sheet1", "A1", "لا يوجد معلمون"); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// BuildClassWorkbook writes one sheet per class with subject and teacher in
// every filled cell.
func BuildClassWorkbook(classes []GradeSectionRef, teachers []models.Teacher, slots []models.ScheduleSlot) (*excelize.File, error) {
	f := excelize.NewFile()
	used := make(map[string]bool)
	index := TeacherIndex(teachers)

	byClass := make(map[GradeSectionRef][]models.ScheduleSlot)
	for _, slot := range slots {
		ref := GradeSectionRef{Grade: slot.Grade, Section: slot.Section}
		byClass[ref] = append(byClass[ref], slot)
	}

	for i, class := range classes {
		cells := make(map[string][]string, len(models.Days))
		for _, day := range models.Days {
			cells[day] = make([]string, models.MaxPeriod)
		}
		for _, slot := range byClass[class] {
			row, ok := cells[slot.Day]
			if !ok || slot.Period < models.MinPeriod || slot.Period > models.MaxPeriod {
				continue
			}
			t := index[slot.TeacherID]
			text := t.Subject + "\n" + t.Name
			if row[slot.Period-1] != "" {
				// forced conflict: keep both names visible
				text = row[slot.Period-1] + "\n" + text
			}
			row[slot.Period-1] = text
		}
		label := FormatGradeSection(class.Grade, class.Section)
		sheet := uniqueSheetName(fmt.Sprintf("%d-%d", class.Grade, class.Section), used)
		if err := addWeekSheet(f, i == 0, sheet, "جدول الصف "+label, cells); err != nil {
			return nil, err
		}
	}
	if len(classes) == 0 {
		if err := f.SetCellValue("Sheet1", "A1", "لا توجد صفوف"); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func addWeekSheet(f *excelize.File, first bool, sheet, title string, cells map[string][]string) error {
	if first {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
	} else if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	setRightToLeft(f, sheet)

	if err := f.SetCellValue(sheet, "D1", title); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "B3", "اليوم"); err != nil {
		return err
	}
	for p, name := range models.PeriodNames {
		cell, _ := excelize.CoordinatesToCellName(3+p, 3)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	for d, day := range models.Days {
		row := 4 + d
		cell, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellValue(sheet, cell, day); err != nil {
			return err
		}
		values := cells[day]
		for p, v := range values {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(3+p, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		for _, run := range mergeRuns(values) {
			if err := mergeRange(f, sheet, 3+run.Start, row, 3+run.End, row); err != nil {
				return err
			}
		}
	}
	return f.SetColWidth(sheet, "C", "I", 14)
}

// cellRun is a stretch of identical non-empty values, 0-based inclusive.
type cellRun struct {
	Start int
	End   int
	Value string
}

// mergeRuns finds stretches of two or more equal consecutive non-empty values.
func mergeRuns(values []string) []cellRun {
	var runs []cellRun
	for i := 0; i < len(values); {
		j := i
		for j+1 < len(values) && values[i] != "" && values[j+1] == values[i] {
			j++
		}
		if j > i {
			runs = append(runs, cellRun{Start: i, End: j, Value: values[i]})
		}
		i = j + 1
	}
	return runs
}

func mergeRange(f *excelize.File, sheet string, col1, row1, col2, row2 int) error {
	if col1 == col2 && row1 == row2 {
		return nil
	}
	from, err := excelize.CoordinatesToCellName(col1, row1)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(col2, row2)
	if err != nil {
		return err
	}
	return f.MergeCell(sheet, from, to)
}

func setRightToLeft(f *excelize.File, sheet string) {
	rtl := true
	if err := f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		logrus.WithError(err).Debug("could not set sheet direction")
	}
}

var sheetNameCleaner = strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")")

// uniqueSheetName fits name into Excel's 31-character sheet-name limit and
// appends a counter when it is already taken.
func uniqueSheetName(name string, used map[string]bool) string {
	base := strings.TrimSpace(sheetNameCleaner.Replace(name))
	if base == "" {
		base = "Sheet"
	}
	base = truncateRunes(base, 31)
	candidate := base
	for n := 2; used[candidate]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(base, 31-utf8.RuneCountInString(suffix)) + suffix
	}
	used[candidate] = true
	return candidate
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func slotsByTeacher(slots []models.ScheduleSlot) map[string][]models.ScheduleSlot {
	out := make(map[string][]models.ScheduleSlot)
	for _, slot := range slots {
		out[slot.TeacherID] = append(out[slot.TeacherID], slot)
	}
	return out
}
