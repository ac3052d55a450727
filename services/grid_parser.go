package services

import (
	"fmt"
	"strconv"
	"strings"

	"timetable_go/models"

	"github.com/google/uuid"
)

// Master grid layout, 1-based like the spreadsheet itself. Each teacher row
// holds 35 day×period cells starting at GridFirstCol; days run right to left
// (last day first) and so do periods inside a day.
const (
	GridFirstRow   = 5
	GridFirstCol   = 3
	GridSubjectCol = 38
	GridTeacherCol = 39
)

var arabicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// ParseGradeSection reads an "A/B" cell. Whichever number lies in the grade
// range is the grade and the other the section. Both or neither in range, a
// non-positive section, or anything but two integers is rejected.
func ParseGradeSection(text string) (grade, section int, ok bool) {
	parts := strings.Split(arabicDigits.Replace(strings.TrimSpace(text)), "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	aGrade := a >= models.MinGrade && a <= models.MaxGrade
	bGrade := b >= models.MinGrade && b <= models.MaxGrade
	switch {
	case aGrade && !bGrade:
		grade, section = a, b
	case bGrade && !aGrade:
		grade, section = b, a
	default:
		return 0, 0, false
	}
	if section < 1 {
		return 0, 0, false
	}
	return grade, section, true
}

// FormatGradeSection renders the cell text written by exports.
func FormatGradeSection(grade, section int) string {
	return fmt.Sprintf("%d/%d", grade, section)
}

// GridColumn returns the 1-based master-grid column of day/period.
func GridColumn(day string, period int) int {
	dayIdx := models.DayIndex(day)
	if dayIdx < 0 || period < models.MinPeriod || period > models.MaxPeriod {
		return 0
	}
	reversedDay := len(models.Days) - 1 - dayIdx
	reversedPeriod := models.MaxPeriod - period
	return GridFirstCol + reversedDay*models.MaxPeriod + reversedPeriod
}

// UnparsedCell is a grid cell whose text could not be read as grade/section.
type UnparsedCell struct {
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	Teacher string `json:"teacher"`
	Day     string `json:"day"`
	Period  int    `json:"period"`
	Text    string `json:"text"`
}

// SubjectWarning flags a subject name missing from the synonym table.
type SubjectWarning struct {
	Row     int    `json:"row"`
	Teacher string `json:"teacher"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// ImportBatch is the parsed content of a master grid.
type ImportBatch struct {
	Teachers []models.Teacher `json:"teachers"`
	Slots    []SlotInput      `json:"slots"`
	Unparsed []UnparsedCell   `json:"unparsed"`
	Warnings []SubjectWarning `json:"warnings"`
}

// ParseMasterGrid turns spreadsheet rows (0-based, as returned by the
// readers) into teachers and candidate slots. Rows without both a teacher
// name and a subject are skipped. A teacher name seen twice keeps the first
// row's id and subject.
func ParseMasterGrid(rows [][]string, normalizer *SubjectNormalizer) *ImportBatch {
	batch := &ImportBatch{}
	byName := make(map[string]int)

	for r := GridFirstRow - 1; r < len(rows); r++ {
		row := rows[r]
		name := strings.TrimSpace(cellAt(row, GridTeacherCol))
		rawSubject := strings.TrimSpace(cellAt(row, GridSubjectCol))
		if name == "" || rawSubject == "" {
			continue
		}

		idx, ok := byName[name]
		if !ok {
			subject, known := normalizer.Normalize(rawSubject)
			if !known {
				batch.Warnings = append(batch.Warnings, SubjectWarning{
					Row:     r + 1,
					Teacher: name,
					Subject: rawSubject,
					Message: fmt.Sprintf("unknown subject %q kept as written", rawSubject),
				})
			}
			idx = len(batch.Teachers)
			byName[name] = idx
			batch.Teachers = append(batch.Teachers, models.Teacher{
				BaseModel: models.BaseModel{ID: uuid.NewString()},
				Name:      name,
				Subject:   subject,
			})
		}
		teacherID := batch.Teachers[idx].ID

		for _, day := range models.Days {
			for _, period := range models.Periods() {
				col := GridColumn(day, period)
				text := strings.TrimSpace(cellAt(row, col))
				if text == "" {
					continue
				}
				grade, section, ok := ParseGradeSection(text)
				if !ok {
					batch.Unparsed = append(batch.Unparsed, UnparsedCell{
						Row: r + 1, Column: col, Teacher: name, Day: day, Period: period, Text: text,
					})
					continue
				}
				batch.Slots = append(batch.Slots, SlotInput{
					TeacherID: teacherID,
					Day:       day,
					Period:    period,
					Grade:     grade,
					Section:   section,
				})
			}
		}
	}
	return batch
}

// cellAt returns the 1-based column of row, or "" past its end.
func cellAt(row []string, col int) string {
	if col < 1 || col > len(row) {
		return ""
	}
	return row[col-1]
}
