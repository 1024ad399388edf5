// Package missions implements the mission lifecycle state machine. A mission
// moves initializing → prechecking → running → postchecking → completed and
// ends in the absorbing archived state; failed checks park it in failed.
// The missions_active_per_project partial unique index enforces the
// one-active-mission rule; force creation archives the incumbent in the same
// transaction.
package missions

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/marker"
	"github.com/ateamhq/warroom/pkg/models"
)

const activeMissionConstraint = "missions_active_per_project"

// Service is the mission state machine.
type Service struct {
	db     *database.Client
	broker *events.Broker
	board  *board.Service
	marker *marker.Writer
}

// NewService creates a mission service.
func NewService(db *database.Client, broker *events.Broker, boardSvc *board.Service, mk *marker.Writer) *Service {
	return &Service{db: db, broker: broker, board: boardSvc, marker: mk}
}

// CreateRequest parameterizes mission creation.
type CreateRequest struct {
	Name    string `json:"name"`
	PRDPath string `json:"prdPath"`
	// Force archives the current mission (and its items) before creating
	// the new one.
	Force bool `json:"force"`
}

// Create starts a new mission in initializing. At most one non-archived
// mission may exist per project; with force the incumbent is archived
// atomically with the creation.
func (s *Service) Create(ctx context.Context, projectID string, req CreateRequest) (*models.Mission, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name", "required")
	}

	var (
		created *models.Mission
		evts    []events.Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		created, evts = nil, nil

		current, err := currentTx(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if current != nil {
			if !req.Force {
				return apperr.Newf(apperr.CodeConflict,
					"project '%s' already has an active mission", projectID).
					WithDetails(map[string]any{
						"missionId": current.ID,
						"state":     string(current.State),
					})
			}
			archivedItems, err := archiveTx(ctx, tx, projectID, current, nil, false)
			if err != nil {
				return err
			}
			for _, id := range archivedItems {
				evts = append(evts, events.New(events.EventItemDeleted,
					events.ItemDeletedPayload{ItemID: id}))
			}
		}

		now := time.Now()
		id := "msn-" + uuid.NewString()[:8]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO missions (id, project_id, name, prd_path, state, started_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6, $6)`,
			id, projectID, strings.TrimSpace(req.Name), req.PRDPath, models.MissionInitializing, now)
		if err != nil {
			return fmt.Errorf("failed to insert mission: %w", err)
		}

		created, err = missionByID(ctx, tx, projectID, id)
		return err
	})
	if err != nil {
		// The partial unique index decides concurrent create races.
		if database.IsUniqueViolation(err, activeMissionConstraint) {
			return nil, apperr.Newf(apperr.CodeConflict,
				"project '%s' already has an active mission", projectID)
		}
		return nil, apperr.Wrap(err)
	}

	for _, e := range evts {
		s.broker.Publish(projectID, e)
	}
	if len(evts) > 0 {
		s.publishBoardSnapshot(ctx, projectID)
	}
	return created, nil
}

// Current returns the project's non-archived mission.
func (s *Service) Current(ctx context.Context, projectID string) (*models.Mission, error) {
	mission, err := currentTx(ctx, s.db.DB(), projectID, false)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if mission == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "project '%s' has no active mission", projectID)
	}
	return mission, nil
}

// List returns the project's missions, newest first.
func (s *Service) List(ctx context.Context, projectID string) ([]models.Mission, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+missionColumns+` FROM missions
		 WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID)
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("failed to list missions: %w", err))
	}
	defer rows.Close()

	missions := []models.Mission{}
	for rows.Next() {
		m, err := board.ScanMission(rows)
		if err != nil {
			return nil, apperr.Wrap(err)
		}
		missions = append(missions, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err)
	}
	return missions, nil
}

// publishBoardSnapshot broadcasts a fresh full snapshot; used after archival
// cascades that touch more than one item.
func (s *Service) publishBoardSnapshot(ctx context.Context, projectID string) {
	snapshot, err := s.board.GetBoardState(ctx, projectID, false)
	if err != nil {
		return
	}
	s.broker.Publish(projectID, events.New(events.EventBoardUpdated,
		events.BoardUpdatedPayload{Snapshot: *snapshot}))
}
