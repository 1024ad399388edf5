// Package projects manages the project namespace rows everything else hangs
// off. Identifiers are normalized to lowercase before they reach the store,
// so two creations differing only in case collide on the primary key.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/models"
	"github.com/ateamhq/warroom/pkg/scope"
)

// Service manages project rows.
type Service struct {
	db *database.Client
}

// NewService creates a project service.
func NewService(db *database.Client) *Service {
	return &Service{db: db}
}

// List returns all projects ordered by creation time.
func (s *Service) List(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("failed to list projects: %w", err))
	}
	defer rows.Close()

	list := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, apperr.Wrap(err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err)
	}
	return list, nil
}

// Create registers a project explicitly. The identifier is normalized first;
// a duplicate (including one differing only in case) is a CONFLICT.
func (s *Service) Create(ctx context.Context, rawID, name string) (*models.Project, error) {
	id, err := scope.NormalizeProjectID(rawID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = id
	}

	var p models.Project
	err = s.db.DB().QueryRowContext(ctx,
		`INSERT INTO projects (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING id, name, created_at, updated_at`,
		id, name).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.CodeConflict, "project '%s' already exists", id)
		}
		return nil, apperr.Wrap(fmt.Errorf("failed to create project: %w", err))
	}
	return &p, nil
}

// Ensure creates the project row on first use. Called by the scope guard for
// every project-scoped request; the id must already be normalized.
func (s *Service) Ensure(ctx context.Context, id string) error {
	_, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO projects (id, name) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return apperr.Wrap(fmt.Errorf("failed to ensure project: %w", err))
	}
	return nil
}
