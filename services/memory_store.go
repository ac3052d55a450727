package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"timetable_go/models"

	"github.com/google/uuid"
)

// MemoryStore is a TimetableStore kept in process memory. Every write builds
// new slices and swaps them in under the write lock, so a reader holding an
// old slice never sees a half-applied change. Used with DB_DRIVER=memory and
// in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	teachers []models.Teacher
	slots    []models.ScheduleSlot
	sections map[int]models.GradeSection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sections: make(map[int]models.GradeSection)}
}

func (m *MemoryStore) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Teacher(nil), m.teachers...), nil
}

func (m *MemoryStore) GetTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.teachers {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, ErrTeacherNotFound
}

func (m *MemoryStore) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now()
	teacher.CreatedAt, teacher.UpdatedAt = now, now
	next := make([]models.Teacher, 0, len(m.teachers)+1)
	next = append(next, m.teachers...)
	m.teachers = append(next, *teacher)
	return nil
}

func (m *MemoryStore) UpdateTeacher(ctx context.Context, teacher *models.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := append([]models.Teacher(nil), m.teachers...)
	for i := range next {
		if next[i].ID == teacher.ID {
			teacher.CreatedAt = next[i].CreatedAt
			teacher.UpdatedAt = time.Now()
			next[i] = *teacher
			m.teachers = next
			return nil
		}
	}
	return ErrTeacherNotFound
}

func (m *MemoryStore) DeleteTeacher(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	teachers := make([]models.Teacher, 0, len(m.teachers))
	for _, t := range m.teachers {
		if t.ID == id {
			found = true
			continue
		}
		teachers = append(teachers, t)
	}
	if !found {
		return ErrTeacherNotFound
	}
	slots := make([]models.ScheduleSlot, 0, len(m.slots))
	for _, s := range m.slots {
		if s.TeacherID != id {
			slots = append(slots, s)
		}
	}
	m.teachers, m.slots = teachers, slots
	return nil
}

func (m *MemoryStore) ListSlots(ctx context.Context) ([]models.ScheduleSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ScheduleSlot(nil), m.slots...), nil
}

func (m *MemoryStore) GetSlot(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.slots {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (m *MemoryStore) SaveSlot(ctx context.Context, slot models.ScheduleSlot, supersedes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(supersedes))
	for _, id := range supersedes {
		drop[id] = true
	}
	now := time.Now()
	slot.UpdatedAt = now
	next := make([]models.ScheduleSlot, 0, len(m.slots)+1)
	replaced := false
	for _, s := range m.slots {
		if drop[s.ID] {
			continue
		}
		if s.ID == slot.ID {
			slot.CreatedAt = s.CreatedAt
			next = append(next, slot)
			replaced = true
			continue
		}
		next = append(next, s)
	}
	if !replaced {
		slot.CreatedAt = now
		next = append(next, slot)
	}
	m.slots = next
	return nil
}

func (m *MemoryStore) DeleteSlot(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]models.ScheduleSlot, 0, len(m.slots))
	for _, s := range m.slots {
		if s.ID != id {
			next = append(next, s)
		}
	}
	if len(next) == len(m.slots) {
		return ErrSlotNotFound
	}
	m.slots = next
	return nil
}

func (m *MemoryStore) ReplaceSlots(ctx context.Context, scope Scope, slots []models.ScheduleSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	next := make([]models.ScheduleSlot, 0, len(m.slots)+len(slots))
	for _, s := range m.slots {
		if !scope.Contains(s) {
			next = append(next, s)
		}
	}
	for _, s := range slots {
		s.CreatedAt, s.UpdatedAt = now, now
		next = append(next, s)
	}
	m.slots = next
	return nil
}

func (m *MemoryStore) ReplaceRoster(ctx context.Context, teachers []models.Teacher, slots []models.ScheduleSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	nextTeachers := make([]models.Teacher, 0, len(teachers))
	for _, t := range teachers {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CreatedAt, t.UpdatedAt = now, now
		nextTeachers = append(nextTeachers, t)
	}
	nextSlots := make([]models.ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		s.CreatedAt, s.UpdatedAt = now, now
		nextSlots = append(nextSlots, s)
	}
	m.teachers, m.slots = nextTeachers, nextSlots
	return nil
}

func (m *MemoryStore) ListGradeSections(ctx context.Context) ([]models.GradeSection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.GradeSection, 0, len(m.sections))
	for _, gs := range m.sections {
		out = append(out, gs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Grade < out[j].Grade })
	return out, nil
}

func (m *MemoryStore) Snapshot(ctx context.Context) (*StoreSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := &StoreSnapshot{
		Teachers: append([]models.Teacher(nil), m.teachers...),
		Slots:    append([]models.ScheduleSlot(nil), m.slots...),
		Sections: make([]models.GradeSection, 0, len(m.sections)),
	}
	for _, gs := range m.sections {
		snap.Sections = append(snap.Sections, gs)
	}
	sort.Slice(snap.Sections, func(i, j int) bool { return snap.Sections[i].Grade < snap.Sections[j].Grade })
	return snap, nil
}

func (m *MemoryStore) SaveGradeSection(ctx context.Context, gs models.GradeSection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[int]models.GradeSection, len(m.sections)+1)
	for k, v := range m.sections {
		next[k] = v
	}
	gs.UpdatedAt = time.Now()
	next[gs.Grade] = gs
	m.sections = next
	return nil
}
