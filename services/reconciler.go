package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"timetable_go/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// SlotInput is one candidate slot as submitted by a client or an import.
type SlotInput struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	Day       string `json:"day" validate:"required,oneof=الأحد الاثنين الثلاثاء الأربعاء الخميس"`
	Period    int    `json:"period" validate:"min=1,max=7"`
	Grade     int    `json:"grade" validate:"min=10,max=12"`
	Section   int    `json:"section" validate:"min=1"`
}

// SlotPatch carries the fields of a partial slot update.
type SlotPatch struct {
	TeacherID *string `json:"teacher_id"`
	Day       *string `json:"day"`
	Period    *int    `json:"period"`
	Grade     *int    `json:"grade"`
	Section   *int    `json:"section"`
}

// InputFromSlot converts a persisted slot back into a candidate.
func InputFromSlot(s models.ScheduleSlot) SlotInput {
	return SlotInput{TeacherID: s.TeacherID, Day: s.Day, Period: s.Period, Grade: s.Grade, Section: s.Section}
}

func (in SlotInput) toSlot(id string) models.ScheduleSlot {
	return models.ScheduleSlot{
		BaseModel: models.BaseModel{ID: id},
		TeacherID: in.TeacherID,
		Day:       in.Day,
		Period:    in.Period,
		Grade:     in.Grade,
		Section:   in.Section,
	}
}

type ReconcileOptions struct {
	Force bool
	Actor string
	IP    string
}

// ReconcileResult is what a successful write produced. Conflicts is non-empty
// only when the write was forced through.
type ReconcileResult struct {
	Scope          Scope                 `json:"scope"`
	Slots          []models.ScheduleSlot `json:"slots"`
	Conflicts      []Conflict            `json:"conflicts"`
	DoubleBookings []DoubleBooking       `json:"double_bookings,omitempty"`
	Forced         bool                  `json:"forced"`
}

// Notifier receives an event after every committed change.
type Notifier interface {
	Broadcast(message interface{})
}

// AuditRecorder stores a trail entry for every committed change.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// TimetableEvent is broadcast to websocket clients.
type TimetableEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const EventTimetableUpdated = "timetable.updated"

// SlotReconciler applies slot changes for a scope. Writers are serialized:
// the lock is held from loading the snapshot until the store commits, so a
// validation or detection result is never stale when it is acted on.
type SlotReconciler struct {
	store    TimetableStore
	validate *validator.Validate

	mu       sync.Mutex
	notifier Notifier
	audit    AuditRecorder
}

func NewSlotReconciler(store TimetableStore) *SlotReconciler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &SlotReconciler{store: store, validate: v}
}

func (r *SlotReconciler) SetNotifier(n Notifier) {
	r.notifier = n
}

func (r *SlotReconciler) SetAuditRecorder(a AuditRecorder) {
	r.audit = a
}

// Store exposes the backing store for read paths.
func (r *SlotReconciler) Store() TimetableStore {
	return r.store
}

type snapshot struct {
	teachers map[string]models.Teacher
	slots    []models.ScheduleSlot
	sections map[int]models.GradeSection
}

func (r *SlotReconciler) load(ctx context.Context, withTeachers bool) (*snapshot, error) {
	state, err := r.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load timetable: %w", err)
	}
	snap := &snapshot{
		teachers: map[string]models.Teacher{},
		slots:    state.Slots,
		sections: GradeSectionIndex(state.Sections),
	}
	if withTeachers {
		snap.teachers = TeacherIndex(state.Teachers)
	}
	return snap, nil
}

// Reconcile replaces the slots owned by scope with candidates. Teacher scope
// forces every candidate's teacher to the scope teacher, class scope forces
// grade and section. Nothing is written when validation fails, or when
// conflicts are found and opts.Force is false.
func (r *SlotReconciler) Reconcile(ctx context.Context, scope Scope, candidates []SlotInput, opts ReconcileOptions) (*ReconcileResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slots, conflicts, bookings, err := r.prepare(ctx, scope, candidates)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 && !opts.Force {
		return nil, &ConflictError{Conflicts: conflicts}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.store.ReplaceSlots(ctx, scope, slots); err != nil {
		return nil, fmt.Errorf("persist %s: %w", scope, err)
	}

	result := &ReconcileResult{
		Scope:          scope,
		Slots:          slots,
		Conflicts:      conflicts,
		DoubleBookings: bookings,
		Forced:         len(conflicts) > 0,
	}
	r.committed(ctx, "reconcile", opts, result)
	return result, nil
}

// Check runs validation and detection for scope without writing anything.
// A validation failure is returned as *ValidationError.
func (r *SlotReconciler) Check(ctx context.Context, scope Scope, candidates []SlotInput) (*ReconcileResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	slots, conflicts, bookings, err := r.prepare(ctx, scope, candidates)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{Scope: scope, Slots: slots, Conflicts: conflicts, DoubleBookings: bookings}, nil
}

func (r *SlotReconciler) prepare(ctx context.Context, scope Scope, candidates []SlotInput) ([]models.ScheduleSlot, []Conflict, []DoubleBooking, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	snap, err := r.load(ctx, true)
	if err != nil {
		return nil, nil, nil, err
	}
	if scope.Kind == ScopeTeacher {
		if _, ok := snap.teachers[scope.TeacherID]; !ok {
			return nil, nil, nil, ErrTeacherNotFound
		}
	}

	scoped := make([]SlotInput, len(candidates))
	for i, c := range candidates {
		switch scope.Kind {
		case ScopeTeacher:
			c.TeacherID = scope.TeacherID
		case ScopeClass:
			c.Grade = scope.Grade
			c.Section = scope.Section
		}
		scoped[i] = c
	}

	if verr := r.validateCandidates(scoped, snap.teachers, snap.sections); verr != nil {
		return nil, nil, nil, verr
	}

	slots := dedupeCandidates(scoped)
	var persisted []models.ScheduleSlot
	for _, s := range snap.slots {
		if !scope.Contains(s) {
			persisted = append(persisted, s)
		}
	}
	conflicts := DetectConflicts(slots, persisted, snap.teachers)
	bookings := FindDoubleBookings(append(append([]models.ScheduleSlot{}, slots...), persisted...), snap.teachers)
	return slots, conflicts, bookings, nil
}

// CreateSlot adds one slot, or moves the teacher's slot at the same
// day/period to the new classroom.
func (r *SlotReconciler) CreateSlot(ctx context.Context, input SlotInput, opts ReconcileOptions) (*ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveSlot(ctx, "", input, opts)
}

// UpdateSlot applies patch to an existing slot.
func (r *SlotReconciler) UpdateSlot(ctx context.Context, id string, patch SlotPatch, opts ReconcileOptions) (*ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	input := InputFromSlot(*current)
	if patch.TeacherID != nil {
		input.TeacherID = *patch.TeacherID
	}
	if patch.Day != nil {
		input.Day = *patch.Day
	}
	if patch.Period != nil {
		input.Period = *patch.Period
	}
	if patch.Grade != nil {
		input.Grade = *patch.Grade
	}
	if patch.Section != nil {
		input.Section = *patch.Section
	}
	return r.saveSlot(ctx, id, input, opts)
}

func (r *SlotReconciler) saveSlot(ctx context.Context, id string, input SlotInput, opts ReconcileOptions) (*ReconcileResult, error) {
	snap, err := r.load(ctx, true)
	if err != nil {
		return nil, err
	}
	if verr := r.validateCandidates([]SlotInput{input}, snap.teachers, snap.sections); verr != nil {
		return nil, verr
	}

	if id == "" {
		id = uuid.NewString()
	}
	slot := input.toSlot(id)

	var supersedes []string
	var persisted []models.ScheduleSlot
	for _, s := range snap.slots {
		if s.ID == id {
			continue
		}
		if s.TeacherID == slot.TeacherID && s.Day == slot.Day && s.Period == slot.Period {
			supersedes = append(supersedes, s.ID)
			continue
		}
		persisted = append(persisted, s)
	}

	conflicts := DetectConflicts([]models.ScheduleSlot{slot}, persisted, snap.teachers)
	if len(conflicts) > 0 && !opts.Force {
		return nil, &ConflictError{Conflicts: conflicts}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.store.SaveSlot(ctx, slot, supersedes); err != nil {
		return nil, fmt.Errorf("persist slot %s: %w", id, err)
	}

	result := &ReconcileResult{
		Scope:     TeacherScope(slot.TeacherID),
		Slots:     []models.ScheduleSlot{slot},
		Conflicts: conflicts,
		Forced:    len(conflicts) > 0,
	}
	r.committed(ctx, "slot.save", opts, result)
	return result, nil
}

// DeleteSlot removes one slot.
func (r *SlotReconciler) DeleteSlot(ctx context.Context, id string, opts ReconcileOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.store.GetSlot(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteSlot(ctx, id); err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	r.committed(ctx, "slot.delete", opts, &ReconcileResult{Scope: TeacherScope(slot.TeacherID)})
	return nil
}

// ReplaceRoster swaps the whole timetable for an imported one. Teachers and
// slots are validated against each other, not against persisted data.
func (r *SlotReconciler) ReplaceRoster(ctx context.Context, teachers []models.Teacher, candidates []SlotInput, opts ReconcileOptions) (*ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sections, err := r.store.ListGradeSections(ctx)
	if err != nil {
		return nil, fmt.Errorf("load grade sections: %w", err)
	}
	index := TeacherIndex(teachers)
	if verr := r.validateCandidates(candidates, index, GradeSectionIndex(sections)); verr != nil {
		return nil, verr
	}

	slots := dedupeCandidates(candidates)
	conflicts := DetectImportOverlaps(slots, teachers)
	if len(conflicts) > 0 && !opts.Force {
		return nil, &ConflictError{Conflicts: conflicts}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.store.ReplaceRoster(ctx, teachers, slots); err != nil {
		return nil, fmt.Errorf("persist roster: %w", err)
	}

	result := &ReconcileResult{
		Scope:          GlobalScope(),
		Slots:          slots,
		Conflicts:      conflicts,
		DoubleBookings: FindDoubleBookings(slots, index),
		Forced:         len(conflicts) > 0,
	}
	r.committed(ctx, "import", opts, result)
	return result, nil
}

// exclusive runs fn while holding the writer lock.
func (r *SlotReconciler) exclusive(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

func (r *SlotReconciler) validateCandidates(candidates []SlotInput, teachers map[string]models.Teacher, sections map[int]models.GradeSection) error {
	verr := &ValidationError{}
	unknown := make(map[GradeSectionRef]bool)

	for i, c := range candidates {
		if err := r.validate.Struct(c); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					verr.add(i, fe.Field(), fe.Value(), fieldMessage(fe))
				}
			} else {
				verr.add(i, "slot", nil, err.Error())
			}
		}
		if c.TeacherID != "" {
			if _, ok := teachers[c.TeacherID]; !ok {
				verr.add(i, "teacher_id", c.TeacherID, "teacher does not exist")
			}
		}
		inRange := c.Grade >= models.MinGrade && c.Grade <= models.MaxGrade
		if inRange && c.Section >= 1 && !HasGradeSection(sections, c.Grade, c.Section) {
			ref := GradeSectionRef{Grade: c.Grade, Section: c.Section}
			if !unknown[ref] {
				unknown[ref] = true
				verr.UnknownSections = append(verr.UnknownSections, ref)
			}
		}
	}

	if verr.empty() {
		return nil
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "teacher_id":
		return "is required"
	case "day":
		return "must be one of " + strings.Join(models.Days, ", ")
	case "period":
		return fmt.Sprintf("must be between %d and %d", models.MinPeriod, models.MaxPeriod)
	case "grade":
		return fmt.Sprintf("must be between %d and %d", models.MinGrade, models.MaxGrade)
	case "section":
		return "must be a positive section number"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// dedupeCandidates keys candidates on teacher+day+period. A later entry
// replaces an earlier one in place. Every slot gets a fresh id.
func dedupeCandidates(candidates []SlotInput) []models.ScheduleSlot {
	type teacherTime struct {
		teacherID string
		day       string
		period    int
	}
	pos := make(map[teacherTime]int, len(candidates))
	out := make([]models.ScheduleSlot, 0, len(candidates))
	for _, c := range candidates {
		k := teacherTime{c.TeacherID, c.Day, c.Period}
		if i, ok := pos[k]; ok {
			out[i] = c.toSlot(out[i].ID)
			continue
		}
		pos[k] = len(out)
		out = append(out, c.toSlot(uuid.NewString()))
	}
	return out
}

// committed fans a successful write out to the audit trail and websocket
// clients. Both are optional.
func (r *SlotReconciler) committed(ctx context.Context, action string, opts ReconcileOptions, result *ReconcileResult) {
	logrus.WithFields(logrus.Fields{
		"action":    action,
		"scope":     result.Scope.String(),
		"slots":     len(result.Slots),
		"conflicts": len(result.Conflicts),
		"forced":    result.Forced,
	}).Info("timetable updated")

	if r.audit != nil {
		details, _ := json.Marshal(map[string]interface{}{
			"conflicts":       result.Conflicts,
			"double_bookings": result.DoubleBookings,
		})
		r.audit.Record(ctx, models.AuditEntry{
			Action:        action,
			Scope:         result.Scope.String(),
			Actor:         opts.Actor,
			Forced:        result.Forced,
			SlotCount:     len(result.Slots),
			ConflictCount: len(result.Conflicts),
			Details:       datatypes.JSON(details),
			IPAddress:     opts.IP,
		})
	}

	if r.notifier != nil {
		r.notifier.Broadcast(TimetableEvent{
			Type: EventTimetableUpdated,
			Data: map[string]interface{}{
				"action":    action,
				"scope":     result.Scope,
				"slots":     len(result.Slots),
				"conflicts": len(result.Conflicts),
				"forced":    result.Forced,
			},
		})
	}
}
