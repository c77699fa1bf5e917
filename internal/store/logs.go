package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pbaille/notes/internal/domain"
)

// InsertLog appends an audit record. Empty userID and actionType are stored as NULL.
func (s *Store) InsertLog(ctx context.Context, level, message, userID, actionType string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO logs (timestamp, level, message, user_id, action_type) VALUES (?, ?, ?, ?, ?)",
		s.now().UTC(), strings.ToUpper(level), message, nullable(userID), nullable(actionType),
	)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	return res.LastInsertId()
}

// ListLogs returns the newest audit records first, optionally filtered by level.
func (s *Store) ListLogs(ctx context.Context, level string, limit int) ([]domain.LogEntry, error) {
	q := "SELECT id, timestamp, level, message, user_id, action_type FROM logs"
	var args []any
	if level != "" {
		q += " WHERE level = ?"
		args = append(args, strings.ToUpper(level))
	}
	if limit <= 0 {
		limit = -1
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			e      domain.LogEntry
			ts     sql.NullTime
			lvl    sql.NullString
			msg    sql.NullString
			user   sql.NullString
			action sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &lvl, &msg, &user, &action); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Timestamp = ts.Time
		e.Level = lvl.String
		e.Message = msg.String
		e.UserID = nullString(user)
		e.ActionType = nullString(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
