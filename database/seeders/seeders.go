package seeders

import (
	"context"

	"timetable_go/models"
	"timetable_go/services"

	"github.com/sirupsen/logrus"
)

type teacherSeed struct {
	Name    string
	Subject string
}

var defaultTeachers = []teacherSeed{
	{"إبراهيم علي عبد العزيز", "إسلامية"},
	{"محمد علي علي الشرقاوي", "إسلامية"},
	{"إبراهيم جابر يونس غانم", "إسلامية"},
	{"السعيد محمود عبد السلام", "إسلامية"},
	{"مصطفى عبد العزيز", "إسلامية"},
	{"رمضان رمضان إبراهيم", "عربي"},
	{"عنتر عبده عبده المجدي", "عربي"},
	{"محمد تحفة", "عربي"},
	{"فتحي كمال", "عربي"},
	{"خالد ريحان عطاالله", "عربي"},
	{"محمد علي ضاحي", "عربي"},
	{"اسلام عادل", "عربي"},
	{"هاني جاد سالم", "عربي"},
	{"إشراف مصطفى عبد السلام", "إنجليزي"},
	{"إيهاب طلعت محمود", "إنجليزي"},
	{"صيام مصطفى أحمد", "إنجليزي"},
	{"رمضان سيف حافظ", "إنجليزي"},
	{"عصام محمد رجب", "إنجليزي"},
	{"جمال عيسى", "إنجليزي"},
	{"بسيوني علي", "إنجليزي"},
	{"عبد السميع محمد صالح", "رياضيات"},
	{"عبد المنعم فرج إبراهيم", "رياضيات"},
	{"محمد عبد الله علي إبراهيم", "رياضيات"},
	{"إبراهيم محمد الخضرجي", "رياضيات"},
	{"محمود حسانين إسماعيل", "رياضيات"},
	{"أيمن وحيد", "رياضيات"},
	{"شريف لطفي", "رياضيات"},
	{"أحمد مريسي", "رياضيات"},
	{"خليل حسن عثمان خليل", "كيمياء"},
	{"احمد عبد العزيز سليم خاطر", "كيمياء"},
	{"الحسين محمد شاكر", "كيمياء"},
	{"عاطف محمد عبد الرحيم", "كيمياء"},
	{"محمود قطب", "كيمياء"},
	{"محمد حجاب", "فيزياء"},
	{"عامر محمد العلوة", "فيزياء"},
	{"عبدالسلام عطية", "فيزياء"},
	{"حسني محمد جاد الكريم", "فيزياء"},
	{"محمد حسن", "أحياء"},
	{"مهند عارضة", "أحياء"},
	{"عبد الحكيم علي إسماعيل", "أحياء"},
	{"احمد عطية الضوي", "أحياء"},
	{"طارق عبد الفتاح سعيد", "اجتماعيات"},
	{"زكي هاني", "اجتماعيات"},
	{"طه حمزة جلال", "حاسوب"},
	{"أسامة أبو الفتوح", "حاسوب"},
	{"تامر الأشوح", "بدنية"},
	{"إيهاب مرزوق", "بدنية"},
	{"حمادة بسطاوي", "بدنية"},
	{"خالد عرفان", "بدنية"},
	{"إبراهيم إبراهيم حافظ عبد النبي", "فنية"},
}

// SeedAll fills an empty store with the default staff and grade sections.
// Tables that already hold rows are left alone.
func SeedAll(ctx context.Context, store services.TimetableStore) error {
	logrus.Info("Starting database seeding...")

	if err := SeedGradeSections(ctx, store); err != nil {
		return err
	}
	if err := SeedTeachers(ctx, store); err != nil {
		return err
	}

	logrus.Info("Database seeding completed successfully!")
	return nil
}

// SeedTeachers seeds the teachers table
func SeedTeachers(ctx context.Context, store services.TimetableStore) error {
	existing, err := store.ListTeachers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logrus.Debug("Teachers already seeded, skipping...")
		return nil
	}

	teachers := make([]models.Teacher, 0, len(defaultTeachers))
	for _, t := range defaultTeachers {
		teachers = append(teachers, models.Teacher{Name: t.Name, Subject: t.Subject})
	}
	// ReplaceRoster keeps the listed order
	if err := store.ReplaceRoster(ctx, teachers, nil); err != nil {
		return err
	}
	logrus.Infof("Seeded %d teachers", len(teachers))
	return nil
}

// SeedGradeSections stores the default section numbers of every grade that
// has no configuration yet.
func SeedGradeSections(ctx context.Context, store services.TimetableStore) error {
	rows, err := store.ListGradeSections(ctx)
	if err != nil {
		return err
	}
	configured := make(map[int]bool, len(rows))
	for _, r := range rows {
		configured[r.Grade] = true
	}
	for _, grade := range models.Grades() {
		if configured[grade] {
			continue
		}
		if err := store.SaveGradeSection(ctx, models.NewGradeSection(grade, models.DefaultGradeSections[grade])); err != nil {
			return err
		}
	}
	return nil
}
