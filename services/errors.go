package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTeacherNotFound = errors.New("teacher not found")
	ErrSlotNotFound    = errors.New("schedule slot not found")
	ErrInvalidScope    = errors.New("invalid reconcile scope")
)

// ValidationIssue describes one rejected field of one candidate slot.
// Index is the position in the submitted list, -1 for request-level issues.
type ValidationIssue struct {
	Index   int         `json:"index"`
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// GradeSectionRef names a grade/section pair.
type GradeSectionRef struct {
	Grade   int `json:"grade"`
	Section int `json:"section"`
}

// ValidationError carries every issue found before any mutation happened.
type ValidationError struct {
	Issues          []ValidationIssue `json:"issues"`
	UnknownSections []GradeSectionRef `json:"unknown_sections,omitempty"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues)+1)
	if len(e.UnknownSections) > 0 {
		refs := make([]string, 0, len(e.UnknownSections))
		for _, r := range e.UnknownSections {
			refs = append(refs, fmt.Sprintf("%d/%d", r.Grade, r.Section))
		}
		parts = append(parts, "unknown grade sections: "+strings.Join(refs, ", "))
	}
	for _, is := range e.Issues {
		if is.Index >= 0 {
			parts = append(parts, fmt.Sprintf("slot %d: %s: %s", is.Index, is.Field, is.Message))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", is.Field, is.Message))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) empty() bool {
	return len(e.Issues) == 0 && len(e.UnknownSections) == 0
}

func (e *ValidationError) add(index int, field string, value interface{}, message string) {
	e.Issues = append(e.Issues, ValidationIssue{Index: index, Field: field, Value: value, Message: message})
}

// ConflictError is returned when a reconcile was refused because of
// conflicts and the caller did not ask to force it.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d schedule conflict(s) detected", len(e.Conflicts))
}

// IsValidationError unwraps err into a *ValidationError.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsConflictError unwraps err into a *ConflictError.
func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
