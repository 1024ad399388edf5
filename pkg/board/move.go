package board

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// transitions is the admissible-move matrix for force=false. blocked and
// done have no entries: the only escape from blocked is a forced
// administrative move, and done is terminal short of archival.
var transitions = map[models.StageID][]models.StageID{
	models.StageBriefings:    {models.StageReady},
	models.StageReady:        {models.StageTesting},
	models.StageTesting:      {models.StageImplementing, models.StageBlocked},
	models.StageImplementing: {models.StageReview, models.StageBlocked},
	models.StageReview:       {models.StageProbing, models.StageBlocked, models.StageImplementing},
	models.StageProbing:      {models.StageDone, models.StageBlocked},
	models.StageBlocked:      {},
	models.StageDone:         {},
}

func transitionAllowed(from, to models.StageID) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func allowedTargets(from models.StageID) []string {
	targets := make([]string, len(transitions[from]))
	for i, t := range transitions[from] {
		targets[i] = string(t)
	}
	return targets
}

// MoveRequest parameterizes a stage transition.
type MoveRequest struct {
	ToStage models.StageID
	Force   bool
	// ActingAgent is the agent initiating the move, when known. A move
	// without it leaves the item unclaimed; a move by a different agent
	// than the claimant releases the prior claim.
	ActingAgent string
}

// MoveItem transitions an item between stages, enforcing the transition
// matrix (unless forced), WIP limits (always), and the automatic effects of
// entering review and done.
func (s *Service) MoveItem(ctx context.Context, projectID, itemID string, req MoveRequest) (*models.Item, error) {
	if !req.ToStage.Valid() {
		return nil, apperr.Newf(apperr.CodeInvalidStage, "unknown stage '%s'", req.ToStage).
			WithDetails(map[string]any{"stage": string(req.ToStage), "allowed": models.StageNames()})
	}

	var (
		moved *models.Item
		evts  []events.Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		moved, evts = nil, nil

		item, newEvents, err := s.applyMoveTx(ctx, tx, projectID, itemID, req)
		if err != nil {
			return err
		}
		moved, evts = item, newEvents
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	s.publish(projectID, evts)
	return moved, nil
}

// ApplyMoveTx runs the move inside the caller's transaction and returns the
// events to publish after commit. Used by the claim manager's combined stop
// operation.
func (s *Service) ApplyMoveTx(ctx context.Context, tx *sql.Tx, projectID, itemID string, req MoveRequest) (*models.Item, []events.Event, error) {
	return s.applyMoveTx(ctx, tx, projectID, itemID, req)
}

func (s *Service) applyMoveTx(ctx context.Context, tx *sql.Tx, projectID, itemID string, req MoveRequest) (*models.Item, []events.Event, error) {
	item, err := GetItemTx(ctx, tx, projectID, itemID, true)
	if err != nil {
		return nil, nil, err
	}

	fromStage := item.StageID
	toStage := req.ToStage
	if fromStage == toStage {
		return item, nil, nil
	}

	if !req.Force && !transitionAllowed(fromStage, toStage) {
		return nil, nil, apperr.Newf(apperr.CodeInvalidTransition,
			"cannot move item '%s' from %s to %s", itemID, fromStage, toStage).
			WithDetails(map[string]any{
				"from":    string(fromStage),
				"to":      string(toStage),
				"allowed": allowedTargets(fromStage),
			})
	}

	// Promotion out of briefings requires every dependency in done.
	if fromStage == models.StageBriefings && toStage == models.StageReady && !req.Force {
		unmet, err := unmetDependencies(ctx, tx, projectID, item)
		if err != nil {
			return nil, nil, err
		}
		if len(unmet) > 0 {
			return nil, nil, apperr.Newf(apperr.CodeConflict,
				"item '%s' has unmet dependencies", itemID).
				WithDetails(map[string]any{"unmetDeps": unmet})
		}
	}

	// WIP is enforced even on forced moves.
	if err := checkWIP(ctx, tx, projectID, toStage); err != nil {
		return nil, nil, err
	}

	// A move by anyone other than the claimant releases the claim; entering
	// review always releases custody so reviewers start unassigned.
	claim, err := claimOnItem(ctx, tx, projectID, itemID)
	if err != nil {
		return nil, nil, err
	}
	if claim != nil && (claim.Agent != req.ActingAgent || toStage == models.StageReview) {
		if err := releaseClaimTx(ctx, tx, projectID, itemID); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now()
	var completedAt any
	if toStage == models.StageDone {
		completedAt = now
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE items SET stage_id = $3, completed_at = $4, updated_at = $5
		 WHERE project_id = $1 AND id = $2`,
		projectID, itemID, toStage, completedAt, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to move item: %w", err)
	}

	moved, err := GetItemTx(ctx, tx, projectID, itemID, false)
	if err != nil {
		return nil, nil, err
	}

	evts := []events.Event{
		events.New(events.EventItemMoved, events.ItemMovedPayload{
			ItemID:    itemID,
			FromStage: fromStage,
			ToStage:   toStage,
			Item:      *moved,
		}),
	}

	// Entering done may unblock dependents still waiting in briefings.
	if toStage == models.StageDone {
		promoted, err := promoteReadyDependents(ctx, tx, projectID, itemID)
		if err != nil {
			return nil, nil, err
		}
		for _, dep := range promoted {
			evts = append(evts, events.New(events.EventItemMoved, events.ItemMovedPayload{
				ItemID:    dep.ID,
				FromStage: models.StageBriefings,
				ToStage:   models.StageReady,
				Item:      dep,
			}))
		}
	}

	return moved, evts, nil
}

// RejectItem sends a reviewed item back for rework: review → implementing,
// rejection count incremented, claim released, work log appended.
func (s *Service) RejectItem(ctx context.Context, projectID, itemID, reason, agent string) (*models.Item, error) {
	if agent == "" {
		return nil, apperr.Validation("agent", "required")
	}

	var (
		rejected *models.Item
		evts     []events.Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		rejected, evts = nil, nil

		item, err := GetItemTx(ctx, tx, projectID, itemID, true)
		if err != nil {
			return err
		}
		if item.StageID != models.StageReview {
			return apperr.Newf(apperr.CodeInvalidTransition,
				"item '%s' is in %s, only items in review can be rejected", itemID, item.StageID).
				WithDetails(map[string]any{
					"from":    string(item.StageID),
					"to":      string(models.StageImplementing),
					"allowed": allowedTargets(item.StageID),
				})
		}

		if err := checkWIP(ctx, tx, projectID, models.StageImplementing); err != nil {
			return err
		}
		if err := releaseClaimTx(ctx, tx, projectID, itemID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE items SET stage_id = $3, rejection_count = rejection_count + 1, updated_at = $4
			 WHERE project_id = $1 AND id = $2`,
			projectID, itemID, models.StageImplementing, time.Now())
		if err != nil {
			return fmt.Errorf("failed to reject item: %w", err)
		}

		if err := appendWorkLogTx(ctx, tx, projectID, itemID, agent, models.WorkLogRejected, reason); err != nil {
			return err
		}

		rejected, err = GetItemTx(ctx, tx, projectID, itemID, false)
		if err != nil {
			return err
		}

		evts = []events.Event{
			events.New(events.EventItemMoved, events.ItemMovedPayload{
				ItemID:    itemID,
				FromStage: models.StageReview,
				ToStage:   models.StageImplementing,
				Item:      *rejected,
			}),
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	s.publish(projectID, evts)
	return rejected, nil
}

// checkWIP refuses the move when the post-move count in the target stage
// would exceed its finite limit.
func checkWIP(ctx context.Context, q queryer, projectID string, stage models.StageID) error {
	var limit *int
	err := q.QueryRowContext(ctx,
		`SELECT wip_limit FROM stages WHERE id = $1`, stage).Scan(&limit)
	if err != nil {
		return fmt.Errorf("failed to load WIP limit for %s: %w", stage, err)
	}
	if limit == nil {
		return nil
	}

	current, err := stageCount(ctx, q, projectID, stage)
	if err != nil {
		return err
	}
	if current+1 > *limit {
		return apperr.Newf(apperr.CodeWIPLimitExceeded,
			"stage '%s' is at its WIP limit (%d)", stage, *limit).
			WithDetails(map[string]any{
				"stage":   string(stage),
				"limit":   *limit,
				"current": current,
			})
	}
	return nil
}

func unmetDependencies(ctx context.Context, q queryer, projectID string, item *models.Item) ([]string, error) {
	if len(item.Dependencies) == 0 {
		return nil, nil
	}
	done, err := doneSet(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	var unmet []string
	for _, dep := range item.Dependencies {
		if !done[dep] {
			unmet = append(unmet, dep)
		}
	}
	return unmet, nil
}

// promoteReadyDependents moves briefings items whose dependencies are now
// all done into ready. Called after an item enters done.
func promoteReadyDependents(ctx context.Context, q queryer, projectID, doneItemID string) ([]models.Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT d.item_id FROM item_dependencies d
		 JOIN items i ON i.project_id = d.project_id AND i.id = d.item_id
		 WHERE d.project_id = $1 AND d.depends_on_id = $2
		   AND i.stage_id = 'briefings' AND i.archived_at IS NULL`,
		projectID, doneItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependents of %s: %w", doneItemID, err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var promoted []models.Item
	for _, id := range candidates {
		item, err := GetItemTx(ctx, q, projectID, id, false)
		if err != nil {
			return nil, err
		}
		unmet, err := unmetDependencies(ctx, q, projectID, item)
		if err != nil {
			return nil, err
		}
		if len(unmet) > 0 {
			continue
		}
		// Auto-promotion is still a move into ready; a full stage leaves the
		// item in briefings for an explicit move later.
		if err := checkWIP(ctx, q, projectID, models.StageReady); err != nil {
			if apperr.IsCode(err, apperr.CodeWIPLimitExceeded) {
				continue
			}
			return nil, err
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE items SET stage_id = 'ready', updated_at = $3
			 WHERE project_id = $1 AND id = $2`,
			projectID, id, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to promote dependent %s: %w", id, err)
		}
		item.StageID = models.StageReady
		promoted = append(promoted, *item)
	}
	return promoted, nil
}
