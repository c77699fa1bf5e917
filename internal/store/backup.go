package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/logger"
)

const backupLayout = "20060102_150405"

// Backup writes a consistent copy of the database to
// dir/notes_backup_YYYYMMDD_HHMMSS.db and returns its path.
func (s *Store) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("notes_backup_%s.db", s.now().Format(backupLayout)))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("backup %s: already exists", path)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("backup database: %w", err)
	}

	logger.Log(ctx).Info(ctx, "database backed up", zap.String("path", path))
	return path, nil
}
