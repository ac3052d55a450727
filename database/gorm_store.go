package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"timetable_go/models"
	"timetable_go/services"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 200

// GormStore is the SQL-backed services.TimetableStore. Multi-row writes run
// inside one transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	var teachers []models.Teacher
	err := s.db.WithContext(ctx).Order("created_at ASC").Order("name ASC").Find(&teachers).Error
	return teachers, err
}

func (s *GormStore) GetTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&teacher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrTeacherNotFound
		}
		return nil, err
	}
	return &teacher, nil
}

func (s *GormStore) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	return s.db.WithContext(ctx).Create(teacher).Error
}

func (s *GormStore) UpdateTeacher(ctx context.Context, teacher *models.Teacher) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Teacher
		if err := tx.Where("id = ?", teacher.ID).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrTeacherNotFound
			}
			return err
		}
		return tx.Model(&existing).Updates(map[string]interface{}{
			"name":       teacher.Name,
			"subject":    teacher.Subject,
			"updated_at": time.Now(),
		}).Error
	})
}

func (s *GormStore) DeleteTeacher(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("teacher_id = ?", id).Delete(&models.ScheduleSlot{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Teacher{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrTeacherNotFound
		}
		return nil
	})
}

func (s *GormStore) ListSlots(ctx context.Context) ([]models.ScheduleSlot, error) {
	var slots []models.ScheduleSlot
	err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&slots).Error
	return slots, err
}

func (s *GormStore) GetSlot(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	var slot models.ScheduleSlot
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&slot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrSlotNotFound
		}
		return nil, err
	}
	return &slot, nil
}

func (s *GormStore) SaveSlot(ctx context.Context, slot models.ScheduleSlot, supersedes []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(supersedes) > 0 {
			if err := tx.Where("id IN ?", supersedes).Delete(&models.ScheduleSlot{}).Error; err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"teacher_id", "day", "period", "grade", "section", "updated_at"}),
		}).Create(&slot).Error
	})
}

func (s *GormStore) DeleteSlot(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ScheduleSlot{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrSlotNotFound
	}
	return nil
}

func (s *GormStore) ReplaceSlots(ctx context.Context, scope services.Scope, slots []models.ScheduleSlot) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scopeFilter(tx, scope).Delete(&models.ScheduleSlot{}).Error; err != nil {
			return err
		}
		return insertSlots(tx, slots)
	})
}

func (s *GormStore) ReplaceRoster(ctx context.Context, teachers []models.Teacher, slots []models.ScheduleSlot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&models.ScheduleSlot{}).Error; err != nil {
			return err
		}
		if err := all.Delete(&models.Teacher{}).Error; err != nil {
			return err
		}
		if len(teachers) > 0 {
			// keep the file's row order stable through created_at
			base := time.Now()
			rows := make([]models.Teacher, len(teachers))
			for i, t := range teachers {
				t.Slots = nil
				t.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
				t.UpdatedAt = base
				rows[i] = t
			}
			if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return insertSlots(tx, slots)
	})
}

func (s *GormStore) ListGradeSections(ctx context.Context) ([]models.GradeSection, error) {
	var rows []models.GradeSection
	err := s.db.WithContext(ctx).Order("grade ASC").Find(&rows).Error
	return rows, err
}

func (s *GormStore) SaveGradeSection(ctx context.Context, gs models.GradeSection) error {
	gs.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grade"}},
		DoUpdates: clause.AssignmentColumns([]string{"sections", "updated_at"}),
	}).Create(&gs).Error
}

// Snapshot reads the three tables inside one repeatable-read transaction so
// a roster replacement committed in between is not half visible. Postgres
// defaults to read committed, which would give each query its own view.
func (s *GormStore) Snapshot(ctx context.Context) (*services.StoreSnapshot, error) {
	snap := &services.StoreSnapshot{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("created_at ASC").Order("name ASC").Find(&snap.Teachers).Error; err != nil {
			return err
		}
		if err := tx.Order("created_at ASC").Order("id ASC").Find(&snap.Slots).Error; err != nil {
			return err
		}
		return tx.Order("grade ASC").Find(&snap.Sections).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Count returns the number of teachers and slots.
func (s *GormStore) Count(ctx context.Context) (teachers, slots int64, err error) {
	if err = s.db.WithContext(ctx).Model(&models.Teacher{}).Count(&teachers).Error; err != nil {
		return
	}
	err = s.db.WithContext(ctx).Model(&models.ScheduleSlot{}).Count(&slots).Error
	return
}

func scopeFilter(tx *gorm.DB, scope services.Scope) *gorm.DB {
	switch scope.Kind {
	case services.ScopeTeacher:
		return tx.Where("teacher_id = ?", scope.TeacherID)
	case services.ScopeClass:
		return tx.Where("grade = ? AND section = ?", scope.Grade, scope.Section)
	}
	return tx.Session(&gorm.Session{AllowGlobalUpdate: true})
}

func insertSlots(tx *gorm.DB, slots []models.ScheduleSlot) error {
	if len(slots) == 0 {
		return nil
	}
	rows := append([]models.ScheduleSlot(nil), slots...)
	return tx.CreateInBatches(rows, insertBatchSize).Error
}
