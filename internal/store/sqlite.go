// Package store persists projects, notes and audit logs in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultProjectName is assigned to notes created before projects existed.
const DefaultProjectName = "Default Project"

const (
	schemaBase    = 1
	busyTimeoutMS = 5000
)

// Store handles database operations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at values and stats windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the database file if needed, brings its schema up to date
// and returns a ready Store. Legacy databases keep their rows.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d", path, busyTimeoutMS)
	if err := migrateSchema(ctx, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	logger.Log(ctx).Debug(ctx, "database ready", zap.String("path", path))
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateSchema runs the base migration, patches columns that legacy
// databases lack, then applies the remaining migrations. It uses its own
// handle because the migrate driver closes the database on Close.
func migrateSchema(ctx context.Context, dsn string) error {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("init migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()

	version, _, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		version = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}
	if version < schemaBase {
		if err := m.Migrate(schemaBase); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate base schema: %w", err)
		}
	}

	if err := reconcileLegacy(ctx, db); err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// reconcileLegacy adds the columns introduced after the first release to an
// existing notes table and moves orphan notes into the default project.
func reconcileLegacy(ctx context.Context, db *sql.DB) error {
	cols, err := tableColumns(ctx, db, "notes")
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconcile: %w", err)
	}
	defer tx.Rollback()

	log := logger.Log(ctx)
	if !cols["project_id"] {
		if _, err := tx.ExecContext(ctx,
			"ALTER TABLE notes ADD COLUMN project_id INTEGER REFERENCES projects(id) ON DELETE CASCADE"); err != nil {
			return fmt.Errorf("add project_id column: %w", err)
		}
		log.Info(ctx, "added project_id column to legacy notes table")
	}
	if !cols["confidence_score"] {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN confidence_score REAL"); err != nil {
			return fmt.Errorf("add confidence_score column: %w", err)
		}
	}
	if !cols["clarifying_question"] {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN clarifying_question TEXT"); err != nil {
			return fmt.Errorf("add clarifying_question column: %w", err)
		}
	}

	var orphans int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notes WHERE project_id IS NULL").Scan(&orphans); err != nil {
		return fmt.Errorf("count orphan notes: %w", err)
	}
	if orphans > 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO projects (name) VALUES (?)", DefaultProjectName); err != nil {
			return fmt.Errorf("create default project: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE notes SET project_id = (SELECT id FROM projects WHERE name = ?) WHERE project_id IS NULL",
			DefaultProjectName); err != nil {
			return fmt.Errorf("assign default project: %w", err)
		}
		log.Info(ctx, "assigned legacy notes to default project", zap.Int("notes", orphans))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconcile: %w", err)
	}
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
