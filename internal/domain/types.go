package domain

import "time"

// ApprovalStatus is the review state of a note.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Statuses lists every approval status in lifecycle order.
var Statuses = []ApprovalStatus{StatusPending, StatusApproved, StatusRejected}

// Valid reports whether s is one of the known statuses.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Project groups notes. Deleting a project deletes its notes.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Note represents a captured project note
type Note struct {
	ID                 int64          `json:"id"`
	ProjectID          int64          `json:"project_id"`
	RawText            string         `json:"raw_text"`
	CleanedText        *string        `json:"cleaned_text,omitempty"`
	Category           *string        `json:"category,omitempty"`
	Date               string         `json:"date"`
	Timestamp          string         `json:"timestamp"`
	ApprovalStatus     ApprovalStatus `json:"approval_status"`
	ConfidenceScore    *float64       `json:"confidence_score,omitempty"`
	ClarifyingQuestion *string        `json:"clarifying_question,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// DisplayText returns the cleaned text, falling back to the raw input.
func (n Note) DisplayText() string {
	if n.CleanedText != nil && *n.CleanedText != "" {
		return *n.CleanedText
	}
	return n.RawText
}

// CategoryName returns the category or "" when unset.
func (n Note) CategoryName() string {
	if n.Category == nil {
		return ""
	}
	return *n.Category
}

// NoteUpdate carries a partial note update. Nil fields are left untouched.
type NoteUpdate struct {
	CleanedText    *string
	Category       *string
	ApprovalStatus *ApprovalStatus
}

// Empty reports whether the update changes nothing.
func (u NoteUpdate) Empty() bool {
	return u.CleanedText == nil && u.Category == nil && u.ApprovalStatus == nil
}

// NoteCandidate is a validated, not yet persisted note proposed by the classifier.
type NoteCandidate struct {
	CleanedText        string  `json:"cleaned_text"`
	Category           string  `json:"category"`
	ConfidenceScore    float64 `json:"confidence_score"`
	ClarifyingQuestion *string `json:"clarifying_question"`
	Date               string  `json:"date"`
	Timestamp          string  `json:"timestamp"`
}

// LogEntry is an append-only audit record.
type LogEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	UserID     *string   `json:"user_id,omitempty"`
	ActionType *string   `json:"action_type,omitempty"`
}

// NoteFilter narrows note listings. Zero values mean "no filter", except
// Status which defaults to approved in the store.
type NoteFilter struct {
	Status    ApprovalStatus
	ProjectID int64
	DateFrom  string
	DateTo    string
	Category  string
	Page      int
	PerPage   int
}

// Offset returns the row offset for the filter's page.
func (f NoteFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Stats aggregates note counts.
type Stats struct {
	ByStatus    map[ApprovalStatus]int `json:"by_status"`
	ByCategory  map[string]int         `json:"by_category"`
	NotesPerDay map[string]int         `json:"notes_per_day"`
}

// DefaultConfidence is used when the classifier omits a confidence score.
const DefaultConfidence = 0.75

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
