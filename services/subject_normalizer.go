package services

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"timetable_go/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed data/subject_synonyms.json
var defaultSubjectSynonyms []byte

// NFD splits hamza and madda carriers (أ إ آ ؤ ئ) into base letter plus a
// nonspacing mark; dropping Mn then removes those together with harakat.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

var letterFolds = strings.NewReplacer(
	"ـ", "", // tatweel
	"ٱ", "ا",
	"ة", "ه",
	"ى", "ي",
)

// Words that qualify a subject name without identifying it, compared after
// folding and article removal.
var subjectQualifiers = map[string]bool{
	"لغه":   true,
	"ماده":  true,
	"تربيه": true,
}

// FoldArabic reduces s to the comparison form used by subject lookup:
// marks and tatweel removed, letter variants unified, lowercased, the
// definite article and qualifier words dropped, whitespace removed.
func FoldArabic(s string) string {
	folded, _, err := transform.String(stripMarks, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(letterFolds.Replace(folded))

	words := strings.Fields(folded)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		w = stripArticle(w)
		if subjectQualifiers[w] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		for _, w := range words {
			kept = append(kept, stripArticle(w))
		}
	}
	return strings.Join(kept, "")
}

func stripArticle(w string) string {
	if strings.HasPrefix(w, "ال") && utf8.RuneCountInString(w) >= 4 {
		return strings.TrimPrefix(w, "ال")
	}
	return w
}

// SubjectNormalizer maps free-form subject names to models.Subjects.
type SubjectNormalizer struct {
	table map[string]string
}

// NewSubjectNormalizer uses the embedded synonym table.
func NewSubjectNormalizer() *SubjectNormalizer {
	n, err := parseSubjectSynonyms(defaultSubjectSynonyms)
	if err != nil {
		panic(fmt.Sprintf("embedded subject synonyms: %v", err))
	}
	return n
}

// LoadSubjectNormalizer reads a synonym table from path, or the embedded one
// when path is empty.
func LoadSubjectNormalizer(path string) (*SubjectNormalizer, error) {
	if strings.TrimSpace(path) == "" {
		return NewSubjectNormalizer(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subject synonyms: %w", err)
	}
	return parseSubjectSynonyms(data)
}

// parseSubjectSynonyms reads {"canonical": ["variant", ...]}. Canonical names
// must be known subjects and no folded variant may point at two of them.
func parseSubjectSynonyms(data []byte) (*SubjectNormalizer, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse subject synonyms: %w", err)
	}
	table := make(map[string]string)
	for canonical, variants := range raw {
		if !models.IsValidSubject(canonical) {
			return nil, fmt.Errorf("unknown canonical subject %q", canonical)
		}
		for _, v := range append([]string{canonical}, variants...) {
			key := FoldArabic(v)
			if key == "" {
				continue
			}
			if prev, ok := table[key]; ok && prev != canonical {
				return nil, fmt.Errorf("variant %q maps to both %q and %q", v, prev, canonical)
			}
			table[key] = canonical
		}
	}
	return &SubjectNormalizer{table: table}, nil
}

// Normalize returns the canonical subject for raw. Unknown names come back
// trimmed but otherwise unchanged, with ok false.
func (n *SubjectNormalizer) Normalize(raw string) (string, bool) {
	key := FoldArabic(raw)
	if canonical, ok := n.table[key]; ok {
		return canonical, true
	}
	logrus.WithFields(logrus.Fields{
		"subject": raw,
		"folded":  key,
	}).Warn("unknown subject variation, keeping original text")
	return strings.TrimSpace(raw), false
}
