package services

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"timetable_go/models"
)

func slot(id, teacherID, day string, period, grade, section int) models.ScheduleSlot {
	return models.ScheduleSlot{
		BaseModel: models.BaseModel{ID: id},
		TeacherID: teacherID,
		Day:       day,
		Period:    period,
		Grade:     grade,
		Section:   section,
	}
}

func TestDetectConflicts(t *testing.T) {
	teachers := TeacherIndex([]models.Teacher{
		{BaseModel: models.BaseModel{ID: "a"}, Name: "أحمد", Subject: "رياضيات"},
		{BaseModel: models.BaseModel{ID: "b"}, Name: "خالد", Subject: "فيزياء"},
	})

	tests := []struct {
		name       string
		candidates []models.ScheduleSlot
		persisted  []models.ScheduleSlot
		expTypes   []ConflictType
	}{
		{
			name:       "empty input",
			candidates: nil,
			expTypes:   nil,
		},
		{
			name: "distinct cells",
			candidates: []models.ScheduleSlot{
				slot("1", "a", "الأحد", 1, 10, 1),
				slot("2", "b", "الأحد", 1, 10, 2),
			},
			expTypes: nil,
		},
		{
			name: "same teacher twice in one cell is not a conflict",
			candidates: []models.ScheduleSlot{
				slot("1", "a", "الأحد", 1, 10, 1),
				slot("2", "a", "الأحد", 1, 10, 1),
			},
			expTypes: nil,
		},
		{
			name: "overlap inside the batch",
			candidates: []models.ScheduleSlot{
				slot("1", "a", "الأحد", 1, 10, 1),
				slot("2", "b", "الأحد", 1, 10, 1),
			},
			expTypes: []ConflictType{ConflictOverlap},
		},
		{
			name: "clash with persisted slot",
			candidates: []models.ScheduleSlot{
				slot("1", "a", "الاثنين", 3, 11, 2),
			},
			persisted: []models.ScheduleSlot{
				slot("9", "b", "الاثنين", 3, 11, 2),
			},
			expTypes: []ConflictType{ConflictExisting},
		},
		{
			name: "persisted slots alone",
			persisted: []models.ScheduleSlot{
				slot("8", "a", "الخميس", 7, 12, 1),
				slot("9", "b", "الخميس", 7, 12, 1),
			},
			expTypes: []ConflictType{ConflictExisting},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := DetectConflicts(tc.candidates, tc.persisted, teachers)
			if len(got) != len(tc.expTypes) {
				t.Fatalf("expected %d conflicts, got %d: %+v", len(tc.expTypes), len(got), got)
			}
			for i, c := range got {
				if c.Type != tc.expTypes[i] {
					t.Fatalf("conflict %d: expected type %s, got %s", i, tc.expTypes[i], c.Type)
				}
				if len(c.Teachers) < 2 {
					t.Fatalf("conflict %d lists %d teachers", i, len(c.Teachers))
				}
			}
		})
	}
}

func TestDetectConflictsReportsTeachersAndMessage(t *testing.T) {
	teachers := TeacherIndex([]models.Teacher{
		{BaseModel: models.BaseModel{ID: "a"}, Name: "أحمد", Subject: "رياضيات"},
	})
	got := DetectConflicts([]models.ScheduleSlot{
		slot("1", "a", "الأحد", 2, 10, 3),
		slot("2", "ghost", "الأحد", 2, 10, 3),
	}, nil, teachers)

	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(got))
	}
	c := got[0]
	if c.Day != "الأحد" || c.Period != 2 || c.Grade != 10 || c.Section != 3 {
		t.Fatalf("unexpected cell: %+v", c)
	}
	if c.Message != "تعارض في الحصة: الأحد - الحصة 2 - الصف 10/3" {
		t.Fatalf("unexpected message %q", c.Message)
	}
	if c.Teachers[0].Name != "أحمد" || c.Teachers[0].Subject != "رياضيات" {
		t.Fatalf("expected first teacher resolved, got %+v", c.Teachers[0])
	}
	if c.Teachers[1].ID != "ghost" || c.Teachers[1].Name != "" {
		t.Fatalf("unknown teacher should be reported by id only, got %+v", c.Teachers[1])
	}
}

func TestDetectConflictsOrder(t *testing.T) {
	got := DetectConflicts([]models.ScheduleSlot{
		slot("1", "a", "الثلاثاء", 4, 12, 1),
		slot("2", "a", "الأحد", 1, 10, 1),
		slot("3", "b", "الأحد", 1, 10, 1),
		slot("4", "b", "الثلاثاء", 4, 12, 1),
	}, nil, nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(got))
	}
	if got[0].Day != "الثلاثاء" || got[1].Day != "الأحد" {
		t.Fatalf("conflicts should follow first-seen order, got %s then %s", got[0].Day, got[1].Day)
	}
}

func TestFindDoubleBookings(t *testing.T) {
	teachers := TeacherIndex([]models.Teacher{
		{BaseModel: models.BaseModel{ID: "a"}, Name: "أحمد", Subject: "رياضيات"},
	})
	got := FindDoubleBookings([]models.ScheduleSlot{
		slot("1", "a", "الأحد", 1, 10, 1),
		slot("2", "a", "الأحد", 1, 11, 2),
		slot("3", "a", "الأحد", 2, 10, 1),
		slot("4", "b", "الأحد", 1, 10, 1),
	}, teachers)

	if len(got) != 1 {
		t.Fatalf("expected 1 double booking, got %d", len(got))
	}
	b := got[0]
	if b.TeacherID != "a" || b.TeacherName != "أحمد" || b.Period != 1 {
		t.Fatalf("unexpected booking %+v", b)
	}
	if len(b.Classes) != 2 || b.Classes[1] != (GradeSectionRef{Grade: 11, Section: 2}) {
		t.Fatalf("unexpected classes %+v", b.Classes)
	}
}

// conflictSet reduces conflicts to key -> sorted teacher ids and type, which
// is what must not depend on input order.
func conflictSet(conflicts []Conflict) map[SlotKey]string {
	out := make(map[SlotKey]string, len(conflicts))
	for _, c := range conflicts {
		ids := make([]string, 0, len(c.Teachers))
		for _, ct := range c.Teachers {
			ids = append(ids, ct.ID)
		}
		sort.Strings(ids)
		key := SlotKey{Day: c.Day, Period: c.Period, Grade: c.Grade, Section: c.Section}
		out[key] = string(c.Type) + ":" + fmt.Sprint(ids)
	}
	return out
}

func TestDetectConflictsOrderIndependent(t *testing.T) {
	teachers := TeacherIndex([]models.Teacher{
		{BaseModel: models.BaseModel{ID: "a"}, Name: "أحمد", Subject: "رياضيات"},
		{BaseModel: models.BaseModel{ID: "b"}, Name: "خالد", Subject: "فيزياء"},
		{BaseModel: models.BaseModel{ID: "c"}, Name: "منى", Subject: "أحياء"},
	})
	candidates := []models.ScheduleSlot{
		slot("1", "a", "الأحد", 1, 10, 1),
		slot("2", "b", "الأحد", 1, 10, 1),
		slot("3", "c", "الأحد", 1, 10, 1),
		slot("4", "a", "الاثنين", 2, 11, 3),
		slot("5", "c", "الخميس", 7, 12, 2),
		slot("6", "b", "الخميس", 7, 12, 2),
		slot("7", "a", "الخميس", 7, 12, 2),
		slot("8", "b", "الثلاثاء", 4, 10, 5),
	}
	persisted := []models.ScheduleSlot{
		slot("p1", "c", "الاثنين", 2, 11, 3),
		slot("p2", "b", "الثلاثاء", 4, 10, 5),
		slot("p3", "a", "الأربعاء", 3, 10, 2),
	}

	expected := conflictSet(DetectConflicts(candidates, persisted, teachers))
	if len(expected) != 3 {
		t.Fatalf("expected 3 conflicting cells, got %v", expected)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		c := append([]models.ScheduleSlot(nil), candidates...)
		p := append([]models.ScheduleSlot(nil), persisted...)
		rng.Shuffle(len(c), func(i, j int) { c[i], c[j] = c[j], c[i] })
		rng.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })

		if got := conflictSet(DetectConflicts(c, p, teachers)); !reflect.DeepEqual(got, expected) {
			t.Fatalf("permutation %d: expected %v, got %v", i, expected, got)
		}
	}
}
