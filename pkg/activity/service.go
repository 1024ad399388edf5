// Package activity implements the project-scoped append-only activity feed.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// DefaultListLimit bounds list responses when the caller gives no limit.
const DefaultListLimit = 100

// Service appends and reads activity entries.
type Service struct {
	db     *database.Client
	broker *events.Broker
}

// NewService creates an activity service.
func NewService(db *database.Client, broker *events.Broker) *Service {
	return &Service{db: db, broker: broker}
}

// LogRequest parameterizes one append.
type LogRequest struct {
	Message   string               `json:"message"`
	Agent     *string              `json:"agent"`
	Level     models.ActivityLevel `json:"level"`
	MissionID *string              `json:"missionId"`
}

// Log appends one entry. Level defaults to info; entries without an explicit
// mission are associated with the project's current non-archived mission.
func (s *Service) Log(ctx context.Context, projectID string, req LogRequest) (*models.ActivityEntry, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.Validation("message", "required")
	}
	level := req.Level
	if level == "" {
		level = models.ActivityInfo
	}
	if !level.Valid() {
		return nil, apperr.EnumValidation("level", string(level), models.ActivityLevelNames())
	}

	var entry *models.ActivityEntry
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		entry = nil

		missionID := req.MissionID
		if missionID == nil {
			id, err := currentMissionID(ctx, tx, projectID)
			if err != nil {
				return err
			}
			missionID = id
		}

		row := tx.QueryRowContext(ctx,
			`INSERT INTO activity_logs (project_id, mission_id, agent_name, message, level)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, project_id, mission_id, agent_name, message, level, created_at`,
			projectID, missionID, req.Agent, req.Message, level)
		var e models.ActivityEntry
		if err := scanEntry(row, &e); err != nil {
			return fmt.Errorf("failed to append activity entry: %w", err)
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	s.broker.Publish(projectID, events.New(events.EventActivityEntryAdded,
		events.ActivityEntryAddedPayload{Entry: *entry}))
	return entry, nil
}

// ListRequest parameterizes a read.
type ListRequest struct {
	Limit int
	// MissionID filters the feed. Empty defaults to the current mission
	// when one exists, otherwise the whole project.
	MissionID *string
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, projectID string, req ListRequest) ([]models.ActivityEntry, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	missionID := req.MissionID
	if missionID == nil {
		id, err := currentMissionID(ctx, s.db.DB(), projectID)
		if err != nil {
			return nil, apperr.Wrap(err)
		}
		missionID = id
	}

	query := `SELECT id, project_id, mission_id, agent_name, message, level, created_at
		 FROM activity_logs WHERE project_id = $1`
	args := []any{projectID}
	if missionID != nil {
		query += ` AND mission_id = $2`
		args = append(args, *missionID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("failed to list activity: %w", err))
	}
	defer rows.Close()

	entries := []models.ActivityEntry{}
	for rows.Next() {
		var e models.ActivityEntry
		if err := scanEntry(rows, &e); err != nil {
			return nil, apperr.Wrap(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner, e *models.ActivityEntry) error {
	return row.Scan(&e.ID, &e.ProjectID, &e.MissionID, &e.Agent, &e.Message, &e.Level, &e.CreatedAt)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// currentMissionID returns the project's non-archived mission id, or nil.
func currentMissionID(ctx context.Context, q queryer, projectID string) (*string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM missions WHERE project_id = $1 AND archived_at IS NULL`,
		projectID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current mission id: %w", err)
	}
	return &id, nil
}
