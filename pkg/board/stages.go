package board

import (
	"context"
	"fmt"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// ListStages returns the fixed stage set with current WIP limits.
func (s *Service) ListStages(ctx context.Context) ([]models.Stage, error) {
	stages, err := listStages(ctx, s.db.DB())
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return stages, nil
}

// UpdateStageWIP sets or clears a stage's WIP limit (nil = unlimited). WIP
// limits are the only mutable per-stage field; the stage set itself is
// closed. The refreshed board is broadcast to the requesting project's
// topic.
func (s *Service) UpdateStageWIP(ctx context.Context, projectID string, stageID models.StageID, wipLimit *int) (*models.Stage, error) {
	if !stageID.Valid() {
		return nil, apperr.Newf(apperr.CodeInvalidStage, "unknown stage '%s'", stageID).
			WithDetails(map[string]any{"stage": string(stageID), "allowed": models.StageNames()})
	}
	if wipLimit != nil && *wipLimit < 0 {
		return nil, apperr.Validation("wipLimit", "must be non-negative or null")
	}

	res, err := s.db.DB().ExecContext(ctx,
		`UPDATE stages SET wip_limit = $2 WHERE id = $1`, stageID, wipLimit)
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("failed to update WIP limit: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, apperr.Newf(apperr.CodeInvalidStage, "unknown stage '%s'", stageID)
	}

	var updated models.Stage
	err = s.db.DB().QueryRowContext(ctx,
		`SELECT id, name, position, wip_limit FROM stages WHERE id = $1`, stageID).
		Scan(&updated.ID, &updated.Name, &updated.Position, &updated.WIPLimit)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	if snapshot, err := s.snapshot(ctx, s.db.DB(), projectID, false); err == nil {
		s.broker.Publish(projectID, events.New(events.EventBoardUpdated,
			events.BoardUpdatedPayload{Snapshot: *snapshot}))
	}

	return &updated, nil
}
