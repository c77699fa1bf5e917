package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pbaille/notes/internal/domain"
)

// CreateProject inserts a project with a unique, non-empty name.
func (s *Store) CreateProject(ctx context.Context, name string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create project: %w: name is required", ErrIntegrity)
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (name, created_at) VALUES (?, ?)",
		name, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create project id: %w", err)
	}

	return &domain.Project{ID: id, Name: name, CreatedAt: now}, nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM projects WHERE id = ?", id))
}

// GetProjectByName retrieves a project by its exact name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM projects WHERE name = ?", strings.TrimSpace(name)))
}

// EnsureProject returns the project called name, creating it when missing.
func (s *Store) EnsureProject(ctx context.Context, name string) (*domain.Project, error) {
	p, err := s.GetProjectByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateProject(ctx, name)
}

// EnsureDefaultProject returns the fallback project, creating it on first run.
func (s *Store) EnsureDefaultProject(ctx context.Context) (*domain.Project, error) {
	return s.EnsureProject(ctx, DefaultProjectName)
}

// ListProjects returns all projects in creation order.
func (s *Store) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM projects ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var (
			p       domain.Project
			created sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = created.Time
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, through the foreign key, all of its
// notes. It reports whether a project was removed.
func (s *Store) DeleteProject(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete project rows: %w", err)
	}
	return n > 0, nil
}

func (s *Store) scanProject(row *sql.Row) (*domain.Project, error) {
	var (
		p       domain.Project
		created sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get project: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.CreatedAt = created.Time
	return &p, nil
}
