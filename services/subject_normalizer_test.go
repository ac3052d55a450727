package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFoldArabic(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{name: "hamza carriers", a: "إسلامية", b: "اسلاميه", equal: true},
		{name: "definite article", a: "الرياضيات", b: "رياضيات", equal: true},
		{name: "qualifier word", a: "اللغة العربية", b: "عربية", equal: true},
		{name: "harakat and tatweel", a: "فِيزيـاء", b: "فيزياء", equal: true},
		{name: "alef maqsura", a: "موسيقى", b: "موسيقي", equal: true},
		{name: "latin case", a: "  Physics ", b: "physics", equal: true},
		{name: "short word keeps al", a: "الف", b: "ف", equal: false},
		{name: "different subjects", a: "كيمياء", b: "فيزياء", equal: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			fa, fb := FoldArabic(tc.a), FoldArabic(tc.b)
			if (fa == fb) != tc.equal {
				t.Fatalf("FoldArabic(%q)=%q, FoldArabic(%q)=%q, expected equal=%v", tc.a, fa, tc.b, fb, tc.equal)
			}
		})
	}
}

func TestSubjectNormalizer(t *testing.T) {
	n := NewSubjectNormalizer()

	tests := []struct {
		input    string
		expected string
		known    bool
	}{
		{input: "رياضيات", expected: "رياضيات", known: true},
		{input: "الرياضيات", expected: "رياضيات", known: true},
		{input: "math", expected: "رياضيات", known: true},
		{input: "انكليزي", expected: "إنجليزي", known: true},
		{input: "اللغة الإنجليزية", expected: "إنجليزي", known: true},
		{input: "التربية الإسلامية", expected: "إسلامية", known: true},
		{input: "التربية البدنية", expected: "بدنية", known: true},
		{input: "كيميا", expected: "كيمياء", known: true},
		{input: "حاسب آلي", expected: "حاسوب", known: true},
		{input: "لغهعربيه", expected: "عربي", known: true},
		{input: "لغةعربية", expected: "عربي", known: true},
		{input: "لغهانجليزيه", expected: "إنجليزي", known: true},
		{input: "حاسبالي", expected: "حاسوب", known: true},
		{input: "رياضهبدنيه", expected: "بدنية", known: true},
		{input: " فلسفة ", expected: "فلسفة", known: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			got, ok := n.Normalize(tc.input)
			if ok != tc.known || got != tc.expected {
				t.Fatalf("Normalize(%q) = %q, %v; expected %q, %v", tc.input, got, ok, tc.expected, tc.known)
			}
		})
	}
}

func TestLoadSubjectNormalizer(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	if err := os.WriteFile(valid, []byte(`{"عربي": ["arabi"]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := LoadSubjectNormalizer(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := n.Normalize("Arabi"); !ok || got != "عربي" {
		t.Fatalf("expected custom variant to resolve, got %q %v", got, ok)
	}

	unknown := filepath.Join(dir, "unknown.json")
	if err := os.WriteFile(unknown, []byte(`{"فلسفة": ["philosophy"]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSubjectNormalizer(unknown); err == nil {
		t.Fatalf("expected error for unknown canonical subject")
	}

	clash := filepath.Join(dir, "clash.json")
	if err := os.WriteFile(clash, []byte(`{"عربي": ["x"], "فنية": ["x"]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSubjectNormalizer(clash); err == nil {
		t.Fatalf("expected error for a variant mapped twice")
	}

	if _, err := LoadSubjectNormalizer(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
