package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"timetable_go/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// TimetableService covers teacher management, grade/section configuration
// and the read-side reports. Writes share the reconciler's lock.
type TimetableService struct {
	reconciler *SlotReconciler
	store      TimetableStore
	normalizer *SubjectNormalizer
}

func NewTimetableService(reconciler *SlotReconciler, normalizer *SubjectNormalizer) *TimetableService {
	if normalizer == nil {
		normalizer = NewSubjectNormalizer()
	}
	return &TimetableService{reconciler: reconciler, store: reconciler.Store(), normalizer: normalizer}
}

type TeacherInput struct {
	Name    string `json:"name" validate:"required,max=255"`
	Subject string `json:"subject" validate:"required"`
}

type TeacherPatch struct {
	Name    *string `json:"name"`
	Subject *string `json:"subject"`
}

func (s *TimetableService) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	return s.store.ListTeachers(ctx)
}

func (s *TimetableService) GetTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	return s.store.GetTeacher(ctx, id)
}

// CreateTeacher stores a new teacher. The subject is normalized and must
// resolve to a known subject.
func (s *TimetableService) CreateTeacher(ctx context.Context, in TeacherInput, opts ReconcileOptions) (*models.Teacher, error) {
	teacher, err := s.checkTeacher(in)
	if err != nil {
		return nil, err
	}
	err = s.reconciler.exclusive(func() error {
		return s.store.CreateTeacher(ctx, teacher)
	})
	if err != nil {
		return nil, fmt.Errorf("create teacher: %w", err)
	}
	s.reconciler.committed(ctx, "teacher.create", opts, &ReconcileResult{Scope: TeacherScope(teacher.ID)})
	return teacher, nil
}

// UpdateTeacher renames a teacher or changes its subject.
func (s *TimetableService) UpdateTeacher(ctx context.Context, id string, patch TeacherPatch, opts ReconcileOptions) (*models.Teacher, error) {
	var updated *models.Teacher
	err := s.reconciler.exclusive(func() error {
		current, err := s.store.GetTeacher(ctx, id)
		if err != nil {
			return err
		}
		in := TeacherInput{Name: current.Name, Subject: current.Subject}
		if patch.Name != nil {
			in.Name = *patch.Name
		}
		if patch.Subject != nil {
			in.Subject = *patch.Subject
		}
		teacher, err := s.checkTeacher(in)
		if err != nil {
			return err
		}
		teacher.ID = current.ID
		if err := s.store.UpdateTeacher(ctx, teacher); err != nil {
			return err
		}
		updated = teacher
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.reconciler.committed(ctx, "teacher.update", opts, &ReconcileResult{Scope: TeacherScope(id)})
	return updated, nil
}

// DeleteTeacher removes the teacher together with all of its slots.
func (s *TimetableService) DeleteTeacher(ctx context.Context, id string, opts ReconcileOptions) error {
	err := s.reconciler.exclusive(func() error {
		return s.store.DeleteTeacher(ctx, id)
	})
	if err != nil {
		return err
	}
	s.reconciler.committed(ctx, "teacher.delete", opts, &ReconcileResult{Scope: TeacherScope(id)})
	return nil
}

func (s *TimetableService) checkTeacher(in TeacherInput) (*models.Teacher, error) {
	in.Name = strings.TrimSpace(in.Name)
	verr := &ValidationError{}
	if err := s.reconciler.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.add(-1, fe.Field(), fe.Value(), fmt.Sprintf("failed %s validation", fe.Tag()))
			}
		} else {
			verr.add(-1, "teacher", nil, err.Error())
		}
	}
	subject := in.Subject
	if strings.TrimSpace(in.Subject) != "" {
		canonical, ok := s.normalizer.Normalize(in.Subject)
		if !ok {
			verr.add(-1, "subject", in.Subject, "must be one of "+strings.Join(models.Subjects, ", "))
		}
		subject = canonical
	}
	if !verr.empty() {
		return nil, verr
	}
	return &models.Teacher{Name: in.Name, Subject: subject}, nil
}

func (s *TimetableService) ListSlots(ctx context.Context) ([]models.ScheduleSlot, error) {
	return s.store.ListSlots(ctx)
}

func (s *TimetableService) GetSlot(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	return s.store.GetSlot(ctx, id)
}

// TeacherSlots lists the slots of one teacher in day/period order.
func (s *TimetableService) TeacherSlots(ctx context.Context, teacherID string) ([]models.ScheduleSlot, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := TeacherIndex(snap.Teachers)[teacherID]; !ok {
		return nil, ErrTeacherNotFound
	}
	var out []models.ScheduleSlot
	for _, slot := range snap.Slots {
		if slot.TeacherID == teacherID {
			out = append(out, slot)
		}
	}
	SortSlots(out)
	return out, nil
}

// ClassScheduleEntry is one filled cell of a class timetable.
type ClassScheduleEntry struct {
	SlotID      string `json:"slot_id"`
	Day         string `json:"day"`
	Period      int    `json:"period"`
	Subject     string `json:"subject"`
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name"`
}

// ClassSchedule lists the filled cells of grade/section in day/period order.
func (s *TimetableService) ClassSchedule(ctx context.Context, grade, section int) ([]ClassScheduleEntry, error) {
	if err := ClassScope(grade, section).Validate(); err != nil {
		return nil, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	index := TeacherIndex(snap.Teachers)

	var class []models.ScheduleSlot
	for _, slot := range snap.Slots {
		if slot.Grade == grade && slot.Section == section {
			class = append(class, slot)
		}
	}
	SortSlots(class)

	out := make([]ClassScheduleEntry, 0, len(class))
	for _, slot := range class {
		t := index[slot.TeacherID]
		out = append(out, ClassScheduleEntry{
			SlotID:      slot.ID,
			Day:         slot.Day,
			Period:      slot.Period,
			Subject:     t.Subject,
			TeacherID:   slot.TeacherID,
			TeacherName: t.Name,
		})
	}
	return out, nil
}

// GradeSectionView is the effective section list of a grade.
type GradeSectionView struct {
	Grade      int   `json:"grade"`
	Sections   []int `json:"sections"`
	Configured bool  `json:"configured"`
}

func (s *TimetableService) GradeSections(ctx context.Context) ([]GradeSectionView, error) {
	rows, err := s.store.ListGradeSections(ctx)
	if err != nil {
		return nil, err
	}
	return gradeSectionViews(rows), nil
}

func gradeSectionViews(rows []models.GradeSection) []GradeSectionView {
	index := GradeSectionIndex(rows)
	out := make([]GradeSectionView, 0, models.MaxGrade-models.MinGrade+1)
	for _, g := range models.Grades() {
		_, configured := index[g]
		out = append(out, GradeSectionView{Grade: g, Sections: SectionsFor(index, g), Configured: configured})
	}
	return out
}

func (s *TimetableService) GradeSection(ctx context.Context, grade int) (*GradeSectionView, error) {
	if grade < models.MinGrade || grade > models.MaxGrade {
		verr := &ValidationError{}
		verr.add(-1, "grade", grade, fmt.Sprintf("must be between %d and %d", models.MinGrade, models.MaxGrade))
		return nil, verr
	}
	views, err := s.GradeSections(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.Grade == grade {
			v := v
			return &v, nil
		}
	}
	return nil, fmt.Errorf("grade %d missing from view", grade)
}

// UpdateGradeSection replaces the sections of grade. Slots that sit in a
// section no longer configured are kept; their count is returned.
func (s *TimetableService) UpdateGradeSection(ctx context.Context, grade int, sections []int, opts ReconcileOptions) (*GradeSectionView, int, error) {
	verr := &ValidationError{}
	if grade < models.MinGrade || grade > models.MaxGrade {
		verr.add(-1, "grade", grade, fmt.Sprintf("must be between %d and %d", models.MinGrade, models.MaxGrade))
	}
	if len(sections) == 0 {
		verr.add(-1, "sections", sections, "at least one section is required")
	}
	for i, sec := range sections {
		if sec < 1 {
			verr.add(i, "sections", sec, "must be a positive section number")
		}
	}
	if !verr.empty() {
		return nil, 0, verr
	}

	gs := models.NewGradeSection(grade, sections)
	orphaned := 0
	err := s.reconciler.exclusive(func() error {
		if err := s.store.SaveGradeSection(ctx, gs); err != nil {
			return err
		}
		slots, err := s.store.ListSlots(ctx)
		if err != nil {
			return err
		}
		for _, slot := range slots {
			if slot.Grade == grade && !gs.HasSection(slot.Section) {
				orphaned++
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("save grade sections: %w", err)
	}
	if orphaned > 0 {
		logrus.WithFields(logrus.Fields{"grade": grade, "orphaned_slots": orphaned}).
			Warn("grade sections updated; some slots are now outside the configuration")
	}
	s.reconciler.committed(ctx, "grade_sections.update", opts, &ReconcileResult{Scope: GlobalScope()})
	return &GradeSectionView{Grade: grade, Sections: gs.SectionList(), Configured: true}, orphaned, nil
}

// ConflictReport is the detector run over everything persisted.
type ConflictReport struct {
	Conflicts      []Conflict      `json:"conflicts"`
	DoubleBookings []DoubleBooking `json:"double_bookings"`
}

// PersistedConflicts reports conflicts already stored, which only exist when
// a write was forced.
func (s *TimetableService) PersistedConflicts(ctx context.Context) (*ConflictReport, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	index := TeacherIndex(snap.Teachers)
	return &ConflictReport{
		Conflicts:      DetectConflicts(snap.Slots, nil, index),
		DoubleBookings: FindDoubleBookings(snap.Slots, index),
	}, nil
}

// DayPeriod names one cell of a class's week.
type DayPeriod struct {
	Day    string `json:"day"`
	Period int    `json:"period"`
}

// ClassGaps lists the empty cells of one configured class.
type ClassGaps struct {
	Grade   int         `json:"grade"`
	Section int         `json:"section"`
	Filled  int         `json:"filled"`
	Missing []DayPeriod `json:"missing"`
}

// CoverageGaps returns, per configured class, the day/period cells no slot
// covers. Fully covered classes are omitted.
func (s *TimetableService) CoverageGaps(ctx context.Context) ([]ClassGaps, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return computeGaps(gradeSectionViews(snap.Sections), snap.Slots), nil
}

func computeGaps(views []GradeSectionView, slots []models.ScheduleSlot) []ClassGaps {
	filled := make(map[SlotKey]bool, len(slots))
	for _, slot := range slots {
		filled[KeyOf(slot)] = true
	}
	var out []ClassGaps
	for _, v := range views {
		for _, section := range v.Sections {
			g := ClassGaps{Grade: v.Grade, Section: section}
			for _, day := range models.Days {
				for _, period := range models.Periods() {
					if filled[SlotKey{Day: day, Period: period, Grade: v.Grade, Section: section}] {
						g.Filled++
						continue
					}
					g.Missing = append(g.Missing, DayPeriod{Day: day, Period: period})
				}
			}
			if len(g.Missing) > 0 {
				out = append(out, g)
			}
		}
	}
	return out
}

// TeacherLoad is a teacher's weekly period count, split by grade.
type TeacherLoad struct {
	TeacherID string      `json:"teacher_id"`
	Name      string      `json:"name"`
	Subject   string      `json:"subject"`
	Total     int         `json:"total"`
	PerGrade  map[int]int `json:"per_grade"`
}

func (s *TimetableService) TeacherLoads(ctx context.Context) ([]TeacherLoad, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return computeLoads(snap.Teachers, snap.Slots), nil
}

func computeLoads(teachers []models.Teacher, slots []models.ScheduleSlot) []TeacherLoad {
	pos := make(map[string]int, len(teachers))
	out := make([]TeacherLoad, 0, len(teachers))
	for _, t := range teachers {
		pos[t.ID] = len(out)
		perGrade := make(map[int]int)
		for _, g := range models.Grades() {
			perGrade[g] = 0
		}
		out = append(out, TeacherLoad{TeacherID: t.ID, Name: t.Name, Subject: t.Subject, PerGrade: perGrade})
	}
	for _, slot := range slots {
		i, ok := pos[slot.TeacherID]
		if !ok {
			continue
		}
		out[i].Total++
		out[i].PerGrade[slot.Grade]++
	}
	return out
}

// SortSlots orders slots by day, period, grade, section.
func SortSlots(slots []models.ScheduleSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if da, db := models.DayIndex(a.Day), models.DayIndex(b.Day); da != db {
			return da < db
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		return a.Section < b.Section
	})
}
