package models

// Subjects taught at the school. Teacher.Subject is always one of these after
// normalization succeeds.
var Subjects = []string{
	"إسلامية",
	"عربي",
	"إنجليزي",
	"رياضيات",
	"كيمياء",
	"فيزياء",
	"أحياء",
	"اجتماعيات",
	"حاسوب",
	"بدنية",
	"فنية",
}

// Days of the school week in calendar order.
var Days = []string{"الأحد", "الاثنين", "الثلاثاء", "الأربعاء", "الخميس"}

// Periods per day and the grade range the school teaches.
const (
	MinPeriod = 1
	MaxPeriod = 7
	MinGrade  = 10
	MaxGrade  = 12
)

// PeriodNames are the ordinal labels used in printed timetables.
var PeriodNames = []string{"الأولى", "الثانية", "الثالثة", "الرابعة", "الخامسة", "السادسة", "السابعة"}

// DefaultGradeSections is the initial section configuration.
var DefaultGradeSections = map[int][]int{
	10: {1, 2, 3, 4, 5, 6, 7, 8},
	11: {1, 2, 3, 4, 5, 6, 7, 8},
	12: {1, 2, 3, 4, 5, 6, 7},
}

// FallbackSections is used for a grade that has no stored configuration.
var FallbackSections = []int{1, 2, 3, 4, 5, 6, 7}

// Periods returns 1..MaxPeriod.
func Periods() []int {
	out := make([]int, 0, MaxPeriod)
	for p := MinPeriod; p <= MaxPeriod; p++ {
		out = append(out, p)
	}
	return out
}

// Grades returns MinGrade..MaxGrade.
func Grades() []int {
	out := make([]int, 0, MaxGrade-MinGrade+1)
	for g := MinGrade; g <= MaxGrade; g++ {
		out = append(out, g)
	}
	return out
}

// DayIndex returns the position of day in Days, or -1.
func DayIndex(day string) int {
	for i, d := range Days {
		if d == day {
			return i
		}
	}
	return -1
}

// IsValidDay reports whether day is a school day.
func IsValidDay(day string) bool {
	return DayIndex(day) >= 0
}

// IsValidSubject reports whether subject is one of Subjects.
func IsValidSubject(subject string) bool {
	for _, s := range Subjects {
		if s == subject {
			return true
		}
	}
	return false
}
