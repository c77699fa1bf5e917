package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApprovalStatusValid(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ApprovalStatus("archived").Valid())
	assert.False(t, ApprovalStatus("").Valid())
}

func TestNoteDisplayText(t *testing.T) {
	cleaned := "cleaned"
	empty := ""

	assert.Equal(t, "raw", Note{RawText: "raw"}.DisplayText())
	assert.Equal(t, "raw", Note{RawText: "raw", CleanedText: &empty}.DisplayText())
	assert.Equal(t, "cleaned", Note{RawText: "raw", CleanedText: &cleaned}.DisplayText())
}

func TestPaging(t *testing.T) {
	assert.Equal(t, 0, NoteFilter{Page: 0, PerPage: 10}.Offset())
	assert.Equal(t, 0, NoteFilter{Page: 1, PerPage: 10}.Offset())
	assert.Equal(t, 20, NoteFilter{Page: 3, PerPage: 10}.Offset())

	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 0, TotalPages(5, 0))
}

func TestNoteUpdateEmpty(t *testing.T) {
	assert.True(t, NoteUpdate{}.Empty())
	s := StatusApproved
	assert.False(t, NoteUpdate{ApprovalStatus: &s}.Empty())
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}
