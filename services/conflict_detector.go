package services

import (
	"fmt"

	"timetable_go/models"
)

// SlotKey identifies one classroom cell of the weekly grid.
type SlotKey struct {
	Day     string
	Period  int
	Grade   int
	Section int
}

func KeyOf(slot models.ScheduleSlot) SlotKey {
	return SlotKey{Day: slot.Day, Period: slot.Period, Grade: slot.Grade, Section: slot.Section}
}

type ConflictType string

const (
	// ConflictOverlap: every clashing slot is part of the submitted batch.
	ConflictOverlap ConflictType = "overlap"
	// ConflictExisting: at least one clashing slot is already persisted.
	ConflictExisting ConflictType = "existing"
)

// ConflictTeacher is the teacher summary attached to a conflict.
type ConflictTeacher struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
}

// Conflict is one classroom cell claimed by more than one teacher.
type Conflict struct {
	Type     ConflictType      `json:"type"`
	Message  string            `json:"message"`
	Day      string            `json:"day"`
	Period   int               `json:"period"`
	Grade    int               `json:"grade"`
	Section  int               `json:"section"`
	Teachers []ConflictTeacher `json:"teachers"`
}

type cellClaims struct {
	key         SlotKey
	teacherIDs  []string
	seen        map[string]bool
	fromContext bool
}

// DetectConflicts groups candidates and persisted slots by SlotKey and reports every
// cell held by more than one distinct teacher. Conflicts come out in the order
// their key is first met while scanning candidates, then persisted; teachers
// inside a conflict keep scan order. Teachers missing from the lookup are
// reported by id only.
func DetectConflicts(candidates, persisted []models.ScheduleSlot, teachers map[string]models.Teacher) []Conflict {
	index := make(map[SlotKey]*cellClaims)
	var order []*cellClaims

	scan := func(slots []models.ScheduleSlot, isContext bool) {
		for _, slot := range slots {
			key := KeyOf(slot)
			cell, ok := index[key]
			if !ok {
				cell = &cellClaims{key: key, seen: make(map[string]bool)}
				index[key] = cell
				order = append(order, cell)
			}
			if !cell.seen[slot.TeacherID] {
				cell.seen[slot.TeacherID] = true
				cell.teacherIDs = append(cell.teacherIDs, slot.TeacherID)
			}
			if isContext {
				cell.fromContext = true
			}
		}
	}
	scan(candidates, false)
	scan(persisted, true)

	var conflicts []Conflict
	for _, cell := range order {
		if len(cell.teacherIDs) < 2 {
			continue
		}
		c := Conflict{
			Type:    ConflictOverlap,
			Message: conflictMessage(cell.key),
			Day:     cell.key.Day,
			Period:  cell.key.Period,
			Grade:   cell.key.Grade,
			Section: cell.key.Section,
		}
		if cell.fromContext {
			c.Type = ConflictExisting
		}
		for _, id := range cell.teacherIDs {
			ct := ConflictTeacher{ID: id}
			if t, ok := teachers[id]; ok {
				ct.Name = t.Name
				ct.Subject = t.Subject
			}
			c.Teachers = append(c.Teachers, ct)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// DetectImportOverlaps reports duplicate claims inside one import batch. The
// batch teachers are not persisted yet, so the lookup is built from them.
func DetectImportOverlaps(slots []models.ScheduleSlot, teachers []models.Teacher) []Conflict {
	return DetectConflicts(slots, nil, TeacherIndex(teachers))
}

// TeacherIndex maps teachers by id.
func TeacherIndex(teachers []models.Teacher) map[string]models.Teacher {
	out := make(map[string]models.Teacher, len(teachers))
	for _, t := range teachers {
		out[t.ID] = t
	}
	return out
}

func conflictMessage(k SlotKey) string {
	return fmt.Sprintf("تعارض في الحصة: %s - الحصة %d - الصف %d/%d", k.Day, k.Period, k.Grade, k.Section)
}

// DoubleBooking is a teacher placed in more than one classroom at the same
// day and period. It does not block a write; it is reported alongside.
type DoubleBooking struct {
	TeacherID   string            `json:"teacher_id"`
	TeacherName string            `json:"teacher_name"`
	Day         string            `json:"day"`
	Period      int               `json:"period"`
	Classes     []GradeSectionRef `json:"classes"`
}

// FindDoubleBookings lists teachers holding several classrooms in one
// (day, period), in first-encounter order.
func FindDoubleBookings(slots []models.ScheduleSlot, teachers map[string]models.Teacher) []DoubleBooking {
	type teacherTime struct {
		teacherID string
		day       string
		period    int
	}
	index := make(map[teacherTime]*DoubleBooking)
	var order []*DoubleBooking

	for _, s := range slots {
		k := teacherTime{s.TeacherID, s.Day, s.Period}
		b, ok := index[k]
		if !ok {
			b = &DoubleBooking{TeacherID: s.TeacherID, Day: s.Day, Period: s.Period}
			if t, found := teachers[s.TeacherID]; found {
				b.TeacherName = t.Name
			}
			index[k] = b
			order = append(order, b)
		}
		ref := GradeSectionRef{Grade: s.Grade, Section: s.Section}
		dup := false
		for _, c := range b.Classes {
			if c == ref {
				dup = true
				break
			}
		}
		if !dup {
			b.Classes = append(b.Classes, ref)
		}
	}

	var out []DoubleBooking
	for _, b := range order {
		if len(b.Classes) > 1 {
			out = append(out, *b)
		}
	}
	return out
}
