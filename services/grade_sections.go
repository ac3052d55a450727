package services

import "timetable_go/models"

// GradeSectionIndex maps configuration rows by grade.
func GradeSectionIndex(rows []models.GradeSection) map[int]models.GradeSection {
	out := make(map[int]models.GradeSection, len(rows))
	for _, gs := range rows {
		out[gs.Grade] = gs
	}
	return out
}

// SectionsFor returns the configured sections of grade. A grade inside the
// school range without stored configuration falls back to
// models.FallbackSections; a grade outside the range has none.
func SectionsFor(index map[int]models.GradeSection, grade int) []int {
	if grade < models.MinGrade || grade > models.MaxGrade {
		return nil
	}
	if gs, ok := index[grade]; ok {
		return gs.SectionList()
	}
	return append([]int(nil), models.FallbackSections...)
}

// HasGradeSection reports whether grade/section is configured.
func HasGradeSection(index map[int]models.GradeSection, grade, section int) bool {
	for _, s := range SectionsFor(index, grade) {
		if s == section {
			return true
		}
	}
	return false
}
