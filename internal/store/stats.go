package store

import (
	"context"
	"fmt"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/validate"
)

// StatsWindowDays is how far back NotesPerDay reaches.
const StatsWindowDays = 30

// Stats counts notes by status, approved notes by category, and approved
// notes per day over the trailing window. A projectID of zero covers every project.
func (s *Store) Stats(ctx context.Context, projectID int64) (*domain.Stats, error) {
	stats := &domain.Stats{
		ByStatus:    make(map[domain.ApprovalStatus]int),
		ByCategory:  make(map[string]int),
		NotesPerDay: make(map[string]int),
	}

	scope, args := "", []any{}
	if projectID > 0 {
		scope, args = " AND project_id = ?", []any{projectID}
	}

	if err := s.countInto(ctx,
		"SELECT approval_status, COUNT(*) FROM notes WHERE approval_status IS NOT NULL"+scope+" GROUP BY approval_status",
		args, func(k string, n int) { stats.ByStatus[domain.ApprovalStatus(k)] = n }); err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}

	if err := s.countInto(ctx,
		"SELECT category, COUNT(*) FROM notes WHERE approval_status = 'approved' AND category IS NOT NULL"+scope+" GROUP BY category",
		args, func(k string, n int) { stats.ByCategory[k] = n }); err != nil {
		return nil, fmt.Errorf("stats by category: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -StatsWindowDays).Format(validate.DateLayout)
	if err := s.countInto(ctx,
		"SELECT date, COUNT(*) FROM notes WHERE approval_status = 'approved' AND date >= ?"+scope+" GROUP BY date",
		append([]any{cutoff}, args...), func(k string, n int) { stats.NotesPerDay[k] = n }); err != nil {
		return nil, fmt.Errorf("stats per day: %w", err)
	}

	return stats, nil
}

func (s *Store) countInto(ctx context.Context, q string, args []any, put func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		put(key, n)
	}
	return rows.Err()
}
