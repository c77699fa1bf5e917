package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pbaille/notes/internal/domain"
)

const noteColumns = `id, project_id, raw_text, cleaned_text, category, date, timestamp,
	approval_status, confidence_score, clarifying_question, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertNote stores n and returns it with its ID and created_at set. An
// empty status is stored as pending.
func (s *Store) InsertNote(ctx context.Context, n domain.Note) (*domain.Note, error) {
	return s.insertNote(ctx, s.db, n)
}

// InsertNotes stores every note in one transaction: either all are saved or
// none is.
func (s *Store) InsertNotes(ctx context.Context, notes []domain.Note) ([]domain.Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert notes: %w", err)
	}
	defer tx.Rollback()

	out := make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		saved, err := s.insertNote(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, *saved)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert notes: %w", err)
	}
	return out, nil
}

func (s *Store) insertNote(ctx context.Context, db execer, n domain.Note) (*domain.Note, error) {
	if n.ProjectID == 0 {
		return nil, fmt.Errorf("insert note: %w: project id is required", ErrIntegrity)
	}
	if n.ApprovalStatus == "" {
		n.ApprovalStatus = domain.StatusPending
	}
	if !n.ApprovalStatus.Valid() {
		return nil, fmt.Errorf("insert note: %w: status %q", ErrIntegrity, n.ApprovalStatus)
	}
	if n.ConfidenceScore != nil {
		c := domain.ClampConfidence(*n.ConfidenceScore)
		n.ConfidenceScore = &c
	}

	n.CreatedAt = s.now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO notes (project_id, raw_text, cleaned_text, category, date, timestamp,
			approval_status, confidence_score, clarifying_question, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ProjectID, n.RawText, n.CleanedText, n.Category, n.Date, n.Timestamp,
		string(n.ApprovalStatus), n.ConfidenceScore, n.ClarifyingQuestion, n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", classify(err))
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("insert note id: %w", err)
	}
	return &n, nil
}

// GetNote retrieves a note by ID.
func (s *Store) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get note %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get note %d: %w", id, err)
	}
	return n, nil
}

// UpdateNote applies the non-nil fields of u. It reports whether a note with
// id exists; an empty update changes nothing but still reports existence.
func (s *Store) UpdateNote(ctx context.Context, id int64, u domain.NoteUpdate) (bool, error) {
	if u.Empty() {
		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM notes WHERE id = ?", id).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return false, nil
		case err != nil:
			return false, fmt.Errorf("update note %d: %w", id, err)
		}
		return true, nil
	}

	var (
		sets []string
		args []any
	)
	if u.CleanedText != nil {
		sets = append(sets, "cleaned_text = ?")
		args = append(args, *u.CleanedText)
	}
	if u.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *u.Category)
	}
	if u.ApprovalStatus != nil {
		if !u.ApprovalStatus.Valid() {
			return false, fmt.Errorf("update note: %w: status %q", ErrIntegrity, *u.ApprovalStatus)
		}
		sets = append(sets, "approval_status = ?")
		args = append(args, string(*u.ApprovalStatus))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE notes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("update note %d: %w", id, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update note rows: %w", err)
	}
	return n > 0, nil
}

// DeleteNote removes a note and reports whether it existed.
func (s *Store) DeleteNote(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete note %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete note rows: %w", err)
	}
	return n > 0, nil
}

// SetStatusWhere moves every note in from to status to, optionally limited
// to one project, and returns the number of notes moved.
func (s *Store) SetStatusWhere(ctx context.Context, from, to domain.ApprovalStatus, projectID int64) (int64, error) {
	if !from.Valid() || !to.Valid() {
		return 0, fmt.Errorf("set status: %w: %q -> %q", ErrIntegrity, from, to)
	}
	q := "UPDATE notes SET approval_status = ? WHERE approval_status = ?"
	args := []any{string(to), string(from)}
	if projectID > 0 {
		q += " AND project_id = ?"
		args = append(args, projectID)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("set status: %w", err)
	}
	return res.RowsAffected()
}

// DeleteWhereStatus removes every note in status, optionally limited to one
// project, and returns the number removed.
func (s *Store) DeleteWhereStatus(ctx context.Context, status domain.ApprovalStatus, projectID int64) (int64, error) {
	q := "DELETE FROM notes WHERE approval_status = ?"
	args := []any{string(status)}
	if projectID > 0 {
		q += " AND project_id = ?"
		args = append(args, projectID)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete notes: %w", err)
	}
	return res.RowsAffected()
}

// ListNotes returns one page of notes matching f, newest date first, and
// the total number of matches. Status defaults to approved. A PerPage of
// zero returns every match.
func (s *Store) ListNotes(ctx context.Context, f domain.NoteFilter) ([]domain.Note, int, error) {
	where, args := filterClause(f)
	return s.page(ctx, where, args, "date DESC, timestamp DESC, id DESC", f)
}

// SearchNotes is ListNotes with an additional case-insensitive substring
// match against cleaned text, raw text and category.
func (s *Store) SearchNotes(ctx context.Context, query string, f domain.NoteFilter) ([]domain.Note, int, error) {
	where, args := filterClause(f)
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + escapeLike(q) + "%"
		where += ` AND (cleaned_text LIKE ? ESCAPE '\' OR raw_text LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\')`
		args = append(args, like, like, like)
	}
	return s.page(ctx, where, args, "date DESC, timestamp DESC, id DESC", f)
}

// ListPending returns pending notes, most recently created first.
func (s *Store) ListPending(ctx context.Context, projectID int64, page, perPage int) ([]domain.Note, int, error) {
	f := domain.NoteFilter{Status: domain.StatusPending, ProjectID: projectID, Page: page, PerPage: perPage}
	where, args := filterClause(f)
	return s.page(ctx, where, args, "created_at DESC, id DESC", f)
}

// ListByCategory returns every note in category with the given status.
func (s *Store) ListByCategory(ctx context.Context, category string, status domain.ApprovalStatus, projectID int64) ([]domain.Note, error) {
	notes, _, err := s.ListNotes(ctx, domain.NoteFilter{Status: status, ProjectID: projectID, Category: category})
	return notes, err
}

func (s *Store) page(ctx context.Context, where string, args []any, order string, f domain.NoteFilter) ([]domain.Note, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notes WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	limit, offset := -1, 0
	if f.PerPage > 0 {
		limit, offset = f.PerPage, f.Offset()
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE "+where+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	return notes, total, nil
}

func filterClause(f domain.NoteFilter) (string, []any) {
	status := f.Status
	if status == "" {
		status = domain.StatusApproved
	}
	clauses := []string{"approval_status = ?"}
	args := []any{string(status)}

	if f.ProjectID > 0 {
		clauses = append(clauses, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.DateTo)
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanNote(row rowScanner) (*domain.Note, error) {
	var (
		n         domain.Note
		projectID sql.NullInt64
		cleaned   sql.NullString
		category  sql.NullString
		date      sql.NullString
		ts        sql.NullString
		status    sql.NullString
		conf      sql.NullFloat64
		question  sql.NullString
		created   sql.NullTime
	)
	if err := row.Scan(&n.ID, &projectID, &n.RawText, &cleaned, &category, &date, &ts,
		&status, &conf, &question, &created); err != nil {
		return nil, err
	}

	n.ProjectID = projectID.Int64
	n.CleanedText = nullString(cleaned)
	n.Category = nullString(category)
	n.Date = date.String
	n.Timestamp = ts.String
	n.ApprovalStatus = domain.ApprovalStatus(status.String)
	if n.ApprovalStatus == "" {
		n.ApprovalStatus = domain.StatusPending
	}
	if conf.Valid {
		n.ConfidenceScore = &conf.Float64
	}
	n.ClarifyingQuestion = nullString(question)
	n.CreatedAt = created.Time
	return &n, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
