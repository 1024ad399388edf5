package missions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// ArchiveRequest parameterizes mission archival.
type ArchiveRequest struct {
	// ItemIDs restricts archival to a subset of the mission's linked items.
	// A strict subset leaves the mission active; empty means everything.
	ItemIDs []string `json:"itemIds"`
	// Complete marks a finished mission: the marker file is cleared and,
	// when the mission actually reached completed, mission-completed is
	// emitted. Implies full archival.
	Complete bool `json:"complete"`
	// DryRun reports what would be archived without changing anything.
	DryRun bool `json:"dryRun"`
}

// Archive soft-deletes the current mission and its linked items, stamping
// archivedAt on the mission, the items, and the links. Repeating the call
// after the mission is archived is an idempotent success.
func (s *Service) Archive(ctx context.Context, projectID string, req ArchiveRequest) (*models.ArchiveResult, error) {
	var (
		result    *models.ArchiveResult
		mission   *models.Mission
		evts      []events.Event
		completed bool
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, mission, evts = nil, nil, nil
		completed = false

		current, err := currentTx(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if current == nil {
			latest, err := latestMission(ctx, tx, projectID)
			if err != nil {
				return err
			}
			if latest == nil {
				return apperr.Newf(apperr.CodeNotFound, "project '%s' has no mission", projectID)
			}
			result = &models.ArchiveResult{
				MissionID:     latest.ID,
				ArchivedItems: []string{},
				Complete:      req.Complete,
				AlreadyDone:   true,
			}
			return nil
		}

		linked, err := linkedItems(ctx, tx, current.ID)
		if err != nil {
			return err
		}

		selection := linked
		partial := false
		if len(req.ItemIDs) > 0 && !req.Complete {
			linkedSet := make(map[string]bool, len(linked))
			for _, id := range linked {
				linkedSet[id] = true
			}
			var notLinked []string
			for _, id := range req.ItemIDs {
				if !linkedSet[id] {
					notLinked = append(notLinked, id)
				}
			}
			if len(notLinked) > 0 {
				return apperr.Newf(apperr.CodeValidation,
					"items not linked to mission '%s'", current.ID).
					WithDetails(map[string]any{"itemIds": notLinked})
			}
			selection = req.ItemIDs
			partial = len(selection) < len(linked)
		}

		result = &models.ArchiveResult{
			MissionID:     current.ID,
			ArchivedItems: append([]string{}, selection...),
			Complete:      req.Complete,
			DryRun:        req.DryRun,
		}
		if req.DryRun {
			return nil
		}

		// Completion side effects belong to the completed→archived edge;
		// archiving a mission that never passed postcheck is force-style and
		// stamps no completedAt.
		completed = current.State == models.MissionCompleted

		var archiveItems []string
		if partial {
			archiveItems = selection
		}
		archived, err := archiveTx(ctx, tx, projectID, current, archiveItems, req.Complete && completed)
		if err != nil {
			return err
		}
		result.ArchivedItems = archived

		for _, id := range archived {
			evts = append(evts, events.New(events.EventItemDeleted,
				events.ItemDeletedPayload{ItemID: id}))
		}
		if !partial {
			mission, err = missionByID(ctx, tx, projectID, current.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	if result.AlreadyDone || result.DryRun {
		return result, nil
	}

	if req.Complete {
		s.marker.Clear(projectID)
	}
	for _, e := range evts {
		s.broker.Publish(projectID, e)
	}
	if mission != nil && req.Complete && completed {
		s.broker.Publish(projectID, events.New(events.EventMissionCompleted,
			events.MissionCompletedPayload{Mission: *mission}))
	}
	s.publishBoardSnapshot(ctx, projectID)
	return result, nil
}

// archiveTx stamps archivedAt on the selected items, their links, and (for a
// full archive) the mission row itself. Claims on archived items are
// released. itemIDs == nil archives everything linked and the mission;
// a non-nil subset archives only those items and leaves the mission active.
// Returns the ids actually archived.
func archiveTx(ctx context.Context, tx *sql.Tx, projectID string, mission *models.Mission, itemIDs []string, complete bool) ([]string, error) {
	partial := itemIDs != nil
	ids := itemIDs
	if !partial {
		var err error
		ids, err = linkedItems(ctx, tx, mission.ID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if len(ids) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET archived_at = $3, assigned_agent = NULL, updated_at = $3
			 WHERE project_id = $1 AND id = ANY($2) AND archived_at IS NULL`,
			projectID, ids, now); err != nil {
			return nil, fmt.Errorf("failed to archive items: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE mission_items SET archived_at = $3
			 WHERE mission_id = $1 AND item_id = ANY($2) AND archived_at IS NULL`,
			mission.ID, ids, now); err != nil {
			return nil, fmt.Errorf("failed to archive mission links: %w", err)
		}
		// Archived items leave the board; any custody goes with them.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM agent_claims WHERE project_id = $1 AND item_id = ANY($2)`,
			projectID, ids); err != nil {
			return nil, fmt.Errorf("failed to release claims on archived items: %w", err)
		}
	}

	if !partial {
		query := `UPDATE missions SET state = $3, archived_at = $4, updated_at = $4
			 WHERE project_id = $1 AND id = $2`
		args := []any{projectID, mission.ID, models.MissionArchived, now}
		if complete {
			query = `UPDATE missions SET state = $3, archived_at = $4, updated_at = $4,
				 completed_at = COALESCE(completed_at, $4)
			 WHERE project_id = $1 AND id = $2`
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to archive mission: %w", err)
		}
	}
	return ids, nil
}
