package services

import (
	"context"
	"fmt"

	"timetable_go/models"
)

// TimetableStore persists teachers, slots and the grade/section configuration.
// ReplaceSlots, ReplaceRoster, SaveSlot and DeleteTeacher must commit as one
// unit: a failure leaves the previous state intact.
type TimetableStore interface {
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	GetTeacher(ctx context.Context, id string) (*models.Teacher, error)
	CreateTeacher(ctx context.Context, teacher *models.Teacher) error
	UpdateTeacher(ctx context.Context, teacher *models.Teacher) error
	// DeleteTeacher removes the teacher and every slot it owns.
	DeleteTeacher(ctx context.Context, id string) error

	ListSlots(ctx context.Context) ([]models.ScheduleSlot, error)
	GetSlot(ctx context.Context, id string) (*models.ScheduleSlot, error)
	// SaveSlot deletes the superseded slot ids and upserts slot.
	SaveSlot(ctx context.Context, slot models.ScheduleSlot, supersedes []string) error
	DeleteSlot(ctx context.Context, id string) error
	// ReplaceSlots deletes every slot inside scope and inserts slots.
	ReplaceSlots(ctx context.Context, scope Scope, slots []models.ScheduleSlot) error
	// ReplaceRoster wipes all teachers and slots and inserts the given ones.
	ReplaceRoster(ctx context.Context, teachers []models.Teacher, slots []models.ScheduleSlot) error

	ListGradeSections(ctx context.Context) ([]models.GradeSection, error)
	SaveGradeSection(ctx context.Context, gs models.GradeSection) error

	// Snapshot reads teachers, slots and grade sections as one consistent
	// state; a concurrent write is seen either fully or not at all.
	Snapshot(ctx context.Context) (*StoreSnapshot, error)
}

// StoreSnapshot is the whole store read at one point in time.
type StoreSnapshot struct {
	Teachers []models.Teacher
	Slots    []models.ScheduleSlot
	Sections []models.GradeSection
}

type ScopeKind string

const (
	ScopeTeacher ScopeKind = "teacher"
	ScopeClass   ScopeKind = "class"
	ScopeGlobal  ScopeKind = "global"
)

// Scope selects which persisted slots a reconcile replaces.
type Scope struct {
	Kind      ScopeKind `json:"kind"`
	TeacherID string    `json:"teacher_id,omitempty"`
	Grade     int       `json:"grade,omitempty"`
	Section   int       `json:"section,omitempty"`
}

func TeacherScope(teacherID string) Scope {
	return Scope{Kind: ScopeTeacher, TeacherID: teacherID}
}

func ClassScope(grade, section int) Scope {
	return Scope{Kind: ScopeClass, Grade: grade, Section: section}
}

func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

// Validate checks that the scope carries the fields its kind needs.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeTeacher:
		if s.TeacherID == "" {
			return fmt.Errorf("%w: teacher scope without teacher id", ErrInvalidScope)
		}
	case ScopeClass:
		if s.Grade < models.MinGrade || s.Grade > models.MaxGrade || s.Section < 1 {
			return fmt.Errorf("%w: class %d/%d", ErrInvalidScope, s.Grade, s.Section)
		}
	case ScopeGlobal:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, s.Kind)
	}
	return nil
}

// Contains reports whether slot is owned by the scope.
func (s Scope) Contains(slot models.ScheduleSlot) bool {
	switch s.Kind {
	case ScopeTeacher:
		return slot.TeacherID == s.TeacherID
	case ScopeClass:
		return slot.Grade == s.Grade && slot.Section == s.Section
	case ScopeGlobal:
		return true
	}
	return false
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeTeacher:
		return "teacher:" + s.TeacherID
	case ScopeClass:
		return fmt.Sprintf("class:%d/%d", s.Grade, s.Section)
	}
	return string(s.Kind)
}
