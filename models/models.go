package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Teacher model
type Teacher struct {
	BaseModel
	Name    string `json:"name" gorm:"size:255;not null"`
	Subject string `json:"subject" gorm:"size:50;not null"`

	// Relationships
	Slots []ScheduleSlot `json:"-" gorm:"foreignKey:TeacherID;constraint:OnDelete:CASCADE"`
}

// ScheduleSlot places a teacher in one (day, period) cell for a grade/section.
type ScheduleSlot struct {
	BaseModel
	TeacherID string `json:"teacher_id" gorm:"size:36;not null;index"`
	Day       string `json:"day" gorm:"size:20;not null;index:idx_slot_cell"`
	Period    int    `json:"period" gorm:"not null;index:idx_slot_cell"`
	Grade     int    `json:"grade" gorm:"not null;index:idx_slot_cell;index:idx_slot_class"`
	Section   int    `json:"section" gorm:"not null;index:idx_slot_cell;index:idx_slot_class"`
}

// GradeSection holds the configured section numbers of a grade.
type GradeSection struct {
	Grade     int            `json:"grade" gorm:"primaryKey;autoIncrement:false"`
	Sections  datatypes.JSON `json:"sections" gorm:"type:json;not null"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewGradeSection builds a configuration row with sorted, de-duplicated sections.
func NewGradeSection(grade int, sections []int) GradeSection {
	gs := GradeSection{Grade: grade}
	gs.SetSections(sections)
	return gs
}

// SectionList decodes the stored sections. A malformed column yields nil.
func (g GradeSection) SectionList() []int {
	if len(g.Sections) == 0 {
		return nil
	}
	var out []int
	if err := json.Unmarshal(g.Sections, &out); err != nil {
		return nil
	}
	return out
}

// SetSections stores the sections sorted and without duplicates.
func (g *GradeSection) SetSections(sections []int) {
	seen := make(map[int]bool, len(sections))
	clean := make([]int, 0, len(sections))
	for _, s := range sections {
		if seen[s] {
			continue
		}
		seen[s] = true
		clean = append(clean, s)
	}
	sort.Ints(clean)
	data, _ := json.Marshal(clean)
	g.Sections = datatypes.JSON(data)
}

// HasSection reports whether the section is configured for the grade.
func (g GradeSection) HasSection(section int) bool {
	for _, s := range g.SectionList() {
		if s == section {
			return true
		}
	}
	return false
}

// AuditEntry records one timetable mutation (reconcile, import, teacher edit).
type AuditEntry struct {
	BaseModel
	Action        string         `json:"action" gorm:"size:100;not null;index"`
	Scope         string         `json:"scope" gorm:"size:100"`
	Actor         string         `json:"actor" gorm:"size:100"`
	Forced        bool           `json:"forced"`
	SlotCount     int            `json:"slot_count"`
	ConflictCount int            `json:"conflict_count"`
	Details       datatypes.JSON `json:"details" gorm:"type:json"`
	IPAddress     string         `json:"ip_address" gorm:"size:45"`
}

// ExportArchive is the metadata of a workbook or audit archive uploaded to S3.
type ExportArchive struct {
	BaseModel
	Kind        string `json:"kind" gorm:"size:50;not null"`
	FileName    string `json:"file_name" gorm:"size:255;not null"`
	S3Key       string `json:"s3_key" gorm:"size:500;not null"`
	URL         string `json:"url" gorm:"size:1000"`
	RecordCount int    `json:"record_count"`
	FileSize    int64  `json:"file_size"`
	Status      string `json:"status" gorm:"size:50;not null;default:'pending'"` // pending, completed, failed
	Error       string `json:"error" gorm:"type:text"`
}
