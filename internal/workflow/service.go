// Package workflow drives notes from submission through review: it cleans
// input, calls the classifier, stores pending notes and applies reviewer
// decisions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/audit"
	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/fetcher"
	"github.com/pbaille/notes/internal/logger"
	"github.com/pbaille/notes/internal/metrics"
	"github.com/pbaille/notes/internal/store"
	"github.com/pbaille/notes/internal/validate"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed in the note's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidCategory is returned for category edits outside the registry.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrNotFound is returned for unknown note or project ids.
	ErrNotFound = store.ErrNotFound
	// ErrNoClassifier is returned by PingClassifier when submissions run in
	// manual mode.
	ErrNoClassifier = errors.New("no classifier configured")
)

// Store is the persistence the workflow needs.
type Store interface {
	InsertNote(ctx context.Context, n domain.Note) (*domain.Note, error)
	InsertNotes(ctx context.Context, notes []domain.Note) ([]domain.Note, error)
	GetNote(ctx context.Context, id int64) (*domain.Note, error)
	UpdateNote(ctx context.Context, id int64, u domain.NoteUpdate) (bool, error)
	DeleteNote(ctx context.Context, id int64) (bool, error)
	SetStatusWhere(ctx context.Context, from, to domain.ApprovalStatus, projectID int64) (int64, error)
	DeleteWhereStatus(ctx context.Context, status domain.ApprovalStatus, projectID int64) (int64, error)
	CreateProject(ctx context.Context, name string) (*domain.Project, error)
	DeleteProject(ctx context.Context, id int64) (bool, error)
	Backup(ctx context.Context, dir string) (string, error)
}

// Classifier turns raw text into note candidates.
type Classifier interface {
	ProcessNotes(ctx context.Context, raw string) ([]domain.NoteCandidate, error)
}

// LinkFetcher downloads a linked page.
type LinkFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
}

// Service applies the note workflow.
type Service struct {
	store    Store
	client   Classifier
	links    LinkFetcher
	audit    *audit.Recorder
	metrics  *metrics.Metrics
	endpoint string
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClassifier enables automatic processing. endpoint labels audit records.
func WithClassifier(c Classifier, endpoint string) Option {
	return func(s *Service) {
		s.client = c
		s.endpoint = endpoint
	}
}

// WithLinkFetcher enables expanding bare-URL submissions.
func WithLinkFetcher(f LinkFetcher) Option {
	return func(s *Service) { s.links = f }
}

func WithAudit(r *audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service on st. Without WithClassifier every submission is
// stored as a manual note.
func New(st Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		audit: audit.New(nil),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClassifierAvailable reports whether submissions are processed automatically.
func (s *Service) ClassifierAvailable() bool {
	return s.client != nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// PingClassifier checks that the classifier answers a test request.
func (s *Service) PingClassifier(ctx context.Context) error {
	if s.client == nil {
		return ErrNoClassifier
	}
	start := time.Now()
	var err error
	if p, ok := s.client.(pinger); ok {
		err = p.Ping(ctx)
	} else {
		_, err = s.client.ProcessNotes(ctx, "Test connection")
	}
	s.audit.APICall(ctx, s.endpoint, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("ping classifier: %w", err)
	}
	return nil
}

// SubmitRequest is one raw submission.
type SubmitRequest struct {
	ProjectID  int64
	RawText    string
	User       string
	FetchLinks bool
}

// SubmitResult lists the notes created by a submission.
type SubmitResult struct {
	Notes []domain.Note
	// Manual is set when the classifier was unavailable and the raw text was
	// stored as is.
	Manual bool
}

// Submit validates and cleans the raw text, runs it through the classifier
// and stores every candidate as a pending note. Without a classifier the
// text is saved as a manual note. When the classifier call or the save
// fails nothing is stored and the error is returned; the caller may then
// use SaveManual.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validate.NoteText(req.RawText); err != nil {
		s.metrics.RecordSubmission(metrics.OutcomeInvalid)
		return nil, err
	}
	raw := validate.Sanitize(req.RawText)

	if s.client == nil {
		n, err := s.SaveManual(ctx, req.ProjectID, raw, req.User)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Notes: []domain.Note{*n}, Manual: true}, nil
	}

	input := s.expandLink(ctx, raw, req.FetchLinks)

	start := time.Now()
	candidates, err := s.client.ProcessNotes(ctx, input)
	elapsed := time.Since(start)
	s.audit.APICall(ctx, s.endpoint, elapsed, err)
	if err != nil {
		s.metrics.RecordLLMCall("failure", elapsed)
		s.metrics.RecordSubmission(metrics.OutcomeFailed)
		return nil, fmt.Errorf("process notes: %w", err)
	}
	s.metrics.RecordLLMCall("success", elapsed)

	now := s.now()
	pending := make([]domain.Note, 0, len(candidates))
	for _, c := range candidates {
		pending = append(pending, s.candidateNote(req.ProjectID, raw, c, now))
	}
	saved, err := s.store.InsertNotes(ctx, pending)
	if err != nil {
		s.metrics.RecordSubmission(metrics.OutcomeFailed)
		return nil, fmt.Errorf("save notes: %w", err)
	}
	res := &SubmitResult{Notes: saved}
	for _, n := range saved {
		s.metrics.RecordNoteCreated(n.CategoryName())
	}

	s.metrics.RecordSubmission(metrics.OutcomeProcessed)
	s.audit.UserAction(ctx, req.User, audit.ActionSubmit,
		fmt.Sprintf("Processed %d note(s)", len(res.Notes)))
	return res, nil
}

// SaveManual stores text verbatim as a pending General note.
func (s *Service) SaveManual(ctx context.Context, projectID int64, text, user string) (*domain.Note, error) {
	if err := validate.NoteText(text); err != nil {
		s.metrics.RecordSubmission(metrics.OutcomeInvalid)
		return nil, err
	}
	text = validate.Sanitize(text)
	now := s.now()
	general := category.General

	n, err := s.store.InsertNote(ctx, domain.Note{
		ProjectID:      projectID,
		RawText:        text,
		CleanedText:    &text,
		Category:       &general,
		Date:           now.Format(validate.DateLayout),
		Timestamp:      now.Format(validate.TimeLayout),
		ApprovalStatus: domain.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("save manual note: %w", err)
	}

	s.metrics.RecordSubmission(metrics.OutcomeManual)
	s.metrics.RecordNoteCreated(general)
	s.audit.UserAction(ctx, user, audit.ActionManualEntry, "Saved manual note")
	return n, nil
}

func (s *Service) expandLink(ctx context.Context, raw string, enabled bool) string {
	if !enabled || s.links == nil || !fetcher.IsURL(raw) {
		return raw
	}
	page, err := s.links.Fetch(ctx, raw)
	if err != nil {
		logger.Log(ctx).Warn(ctx, "link fetch failed, classifying the url only",
			zap.String("url", raw), zap.Error(err))
		return raw
	}
	return page.Note()
}

func (s *Service) candidateNote(projectID int64, raw string, c domain.NoteCandidate, now time.Time) domain.Note {
	cleaned, cat, score := c.CleanedText, c.Category, c.ConfidenceScore
	n := domain.Note{
		ProjectID:          projectID,
		RawText:            raw,
		CleanedText:        &cleaned,
		Category:           &cat,
		Date:               c.Date,
		Timestamp:          c.Timestamp,
		ApprovalStatus:     domain.StatusPending,
		ConfidenceScore:    &score,
		ClarifyingQuestion: c.ClarifyingQuestion,
	}
	if validate.Date(n.Date) != nil {
		n.Date = now.Format(validate.DateLayout)
	}
	if validate.Timestamp(n.Timestamp) != nil {
		n.Timestamp = now.Format(validate.TimeLayout)
	}
	return n
}

// Edits are optional content changes applied with an approval or edit.
type Edits struct {
	CleanedText *string
	Category    *string
}

func (e Edits) validate() error {
	if e.CleanedText != nil {
		if err := validate.NoteText(*e.CleanedText); err != nil {
			return err
		}
	}
	if e.Category != nil && !category.IsValid(*e.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, *e.Category)
	}
	return nil
}

// Approve moves a pending note to approved, applying any edits.
func (s *Service) Approve(ctx context.Context, id int64, user string, e Edits) (*domain.Note, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return s.apply(ctx, id, user, ActionApprove, e)
}

// Reject moves a pending note to rejected. The note is kept.
func (s *Service) Reject(ctx context.Context, id int64, user string) (*domain.Note, error) {
	return s.apply(ctx, id, user, ActionReject, Edits{})
}

// Restore moves a rejected note back to pending.
func (s *Service) Restore(ctx context.Context, id int64, user string) (*domain.Note, error) {
	return s.apply(ctx, id, user, ActionRestore, Edits{})
}

// Edit changes the text or category of a pending or approved note without
// changing its status.
func (s *Service) Edit(ctx context.Context, id int64, user string, e Edits) (*domain.Note, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if e.CleanedText == nil && e.Category == nil {
		return s.getNote(ctx, id)
	}
	return s.apply(ctx, id, user, ActionEdit, e)
}

// Delete permanently removes a note in any status.
func (s *Service) Delete(ctx context.Context, id int64, user string) error {
	if _, err := s.getNote(ctx, id); err != nil {
		return err
	}
	ok, err := s.store.DeleteNote(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete note %d: %w", id, ErrNotFound)
	}
	s.metrics.RecordReview(string(ActionDelete))
	s.audit.UserAction(ctx, user, audit.ActionDelete, "Note ID: "+strconv.FormatInt(id, 10))
	return nil
}

func (s *Service) apply(ctx context.Context, id int64, user string, action Action, e Edits) (*domain.Note, error) {
	n, err := s.getNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(n, action); err != nil {
		return nil, err
	}

	u := domain.NoteUpdate{CleanedText: e.CleanedText, Category: e.Category}
	if to := transitions[action].to; to != "" {
		u.ApprovalStatus = &to
	}
	ok, err := s.store.UpdateNote(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s note %d: %w", action, id, ErrNotFound)
	}

	s.metrics.RecordReview(string(action))
	s.audit.UserAction(ctx, user, string(action), "Note ID: "+strconv.FormatInt(id, 10))
	return s.getNote(ctx, id)
}

func (s *Service) getNote(ctx context.Context, id int64) (*domain.Note, error) {
	return s.store.GetNote(ctx, id)
}

// RestoreAll moves every rejected note of a project (or all projects when
// projectID is zero) back to pending.
func (s *Service) RestoreAll(ctx context.Context, projectID int64, user string) (int64, error) {
	n, err := s.store.SetStatusWhere(ctx, domain.StatusRejected, domain.StatusPending, projectID)
	if err != nil {
		return 0, err
	}
	s.audit.UserAction(ctx, user, audit.ActionRestoreAll, fmt.Sprintf("Restored %d note(s)", n))
	return n, nil
}

// PurgeRejected permanently deletes every rejected note of a project (or
// all projects when projectID is zero).
func (s *Service) PurgeRejected(ctx context.Context, projectID int64, user string) (int64, error) {
	n, err := s.store.DeleteWhereStatus(ctx, domain.StatusRejected, projectID)
	if err != nil {
		return 0, err
	}
	s.audit.UserAction(ctx, user, audit.ActionPurgeRejected, fmt.Sprintf("Deleted %d note(s)", n))
	return n, nil
}

// CreateProject adds a project.
func (s *Service) CreateProject(ctx context.Context, name, user string) (*domain.Project, error) {
	p, err := s.store.CreateProject(ctx, name)
	if err != nil {
		return nil, err
	}
	s.audit.UserAction(ctx, user, audit.ActionCreateProject, "Project: "+p.Name)
	return p, nil
}

// DeleteProject removes a project and all of its notes.
func (s *Service) DeleteProject(ctx context.Context, id int64, user string) error {
	ok, err := s.store.DeleteProject(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete project %d: %w", id, ErrNotFound)
	}
	s.audit.UserAction(ctx, user, audit.ActionDeleteProject, "Project ID: "+strconv.FormatInt(id, 10))
	return nil
}

// Backup snapshots the database into dir.
func (s *Service) Backup(ctx context.Context, dir, user string) (string, error) {
	path, err := s.store.Backup(ctx, dir)
	if err != nil {
		return "", err
	}
	s.audit.UserAction(ctx, user, audit.ActionBackup, path)
	return path, nil
}

// RecordExport audits a download of n notes in format.
func (s *Service) RecordExport(ctx context.Context, user, format string, n int) {
	s.audit.UserAction(ctx, user, audit.ActionExport, fmt.Sprintf("%s export of %d note(s)", format, n))
}
