// Package validate checks and normalizes user input before it reaches the workflow.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
)

const (
	MinNoteLength = 5
	MaxNoteLength = 10000

	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// ErrInvalid is the class of every validation failure.
var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// NoteText checks a raw submission's length in characters.
func NoteText(text string) error {
	if strings.TrimSpace(text) == "" {
		return invalid("note text cannot be empty")
	}
	n := utf8.RuneCountInString(text)
	if n < MinNoteLength {
		return invalid("note text must be at least %d characters", MinNoteLength)
	}
	if n > MaxNoteLength {
		return invalid("note text cannot exceed %d characters", MaxNoteLength)
	}
	return nil
}

// Date checks a YYYY-MM-DD string.
func Date(s string) error {
	if s == "" {
		return invalid("date cannot be empty")
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return invalid("date must be in YYYY-MM-DD format")
	}
	return nil
}

// Timestamp checks an HH:MM:SS string.
func Timestamp(s string) error {
	if s == "" {
		return invalid("timestamp cannot be empty")
	}
	if _, err := time.Parse(TimeLayout, s); err != nil {
		return invalid("timestamp must be in HH:MM:SS format")
	}
	return nil
}

// Category checks a label against the registry.
func Category(label string) error {
	if label == "" {
		return invalid("category cannot be empty")
	}
	if !category.IsValid(label) {
		return invalid("%q is not a valid category", label)
	}
	return nil
}

// Status checks an approval status.
func Status(s string) error {
	if !domain.ApprovalStatus(s).Valid() {
		return invalid("status must be one of: pending, approved, rejected")
	}
	return nil
}

var whitespace = regexp.MustCompile(`\s+`)

// Sanitize trims the input and collapses whitespace runs to single spaces.
func Sanitize(text string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(text), " ")
}
