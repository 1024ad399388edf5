// Package claims implements exclusive agent-to-item custody. The two unique
// indexes on agent_claims are the source of truth; the in-transaction reads
// exist to produce structured details, and the race loser is decided by the
// database.
package claims

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// Constraint names from the schema; used to map 23505 to semantic codes.
const (
	agentUniqueConstraint = "agent_claims_agent_name_key"
	itemUniqueConstraint  = "agent_claims_item_key"
)

// StopOutcome selects where a stopping agent sends the item.
type StopOutcome string

const (
	StopCompleted StopOutcome = "completed"
	StopBlocked   StopOutcome = "blocked"
)

// Service is the claim manager.
type Service struct {
	db     *database.Client
	broker *events.Broker
	board  *board.Service
}

// NewService creates a claim manager.
func NewService(db *database.Client, broker *events.Broker, boardSvc *board.Service) *Service {
	return &Service{db: db, broker: broker, board: boardSvc}
}

// Claim acquires exclusive custody of an item for an agent. Claiming an item
// the agent already holds is an idempotent success.
func (s *Service) Claim(ctx context.Context, projectID, itemID, agent string) (*models.AgentClaim, error) {
	return s.acquire(ctx, projectID, itemID, agent, "")
}

// Start acquires custody and appends a "started" work log entry. taskID, when
// present, is recorded in the summary for traceability.
func (s *Service) Start(ctx context.Context, projectID, itemID, agent, taskID string) (*models.AgentClaim, error) {
	summary := "started work"
	if taskID != "" {
		summary = fmt.Sprintf("started work (task %s)", taskID)
	}
	return s.acquire(ctx, projectID, itemID, agent, summary)
}

func (s *Service) acquire(ctx context.Context, projectID, itemID, agent, workLogSummary string) (*models.AgentClaim, error) {
	if agent == "" {
		return nil, apperr.Validation("agent", "required")
	}

	var (
		claim   *models.AgentClaim
		updated *models.Item
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		claim, updated = nil, nil

		if _, err := board.GetItemTx(ctx, tx, projectID, itemID, true); err != nil {
			return err
		}

		// Advisory reads: produce structured conflict details before the
		// unique indexes get the final say.
		existing, err := claimOnItem(ctx, tx, projectID, itemID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Agent == agent {
				claim = existing
				return nil
			}
			return claimConflict(itemID, existing.Agent)
		}

		held, err := claimByAgent(ctx, tx, agent)
		if err != nil {
			return err
		}
		if held != nil {
			return agentBusy(agent, held.ItemID)
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agent_claims (id, project_id, item_id, agent_name, claimed_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), projectID, itemID, agent, now); err != nil {
			return fmt.Errorf("failed to insert claim: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET assigned_agent = $3, updated_at = $4
			 WHERE project_id = $1 AND id = $2`,
			projectID, itemID, agent, now); err != nil {
			return fmt.Errorf("failed to assign item: %w", err)
		}

		if workLogSummary != "" {
			if err := appendWorkLog(ctx, tx, projectID, itemID, agent, models.WorkLogStarted, workLogSummary); err != nil {
				return err
			}
		}

		claim = &models.AgentClaim{ProjectID: projectID, ItemID: itemID, Agent: agent, ClaimedAt: now}
		updated, err = board.GetItemTx(ctx, tx, projectID, itemID, false)
		return err
	})
	if err != nil {
		return nil, s.mapAcquireError(ctx, err, projectID, itemID, agent)
	}

	if updated != nil {
		s.broker.Publish(projectID, events.New(events.EventItemUpdated,
			events.ItemUpdatedPayload{Item: *updated}))
	}
	return claim, nil
}

// mapAcquireError turns a lost insert race into the same coded errors the
// advisory reads produce. The re-read runs outside the aborted transaction.
func (s *Service) mapAcquireError(ctx context.Context, err error, projectID, itemID, agent string) error {
	switch {
	case database.IsUniqueViolation(err, itemUniqueConstraint):
		claimedBy := ""
		if winner, readErr := claimOnItem(ctx, s.db.DB(), projectID, itemID); readErr == nil && winner != nil {
			claimedBy = winner.Agent
		}
		return claimConflict(itemID, claimedBy)
	case database.IsUniqueViolation(err, agentUniqueConstraint):
		heldItem := ""
		if held, readErr := claimByAgent(ctx, s.db.DB(), agent); readErr == nil && held != nil {
			heldItem = held.ItemID
		}
		return agentBusy(agent, heldItem)
	default:
		return apperr.Wrap(err)
	}
}

// Release drops any claim on the item. Releasing an unclaimed item is a
// no-op success, so clients may retry freely.
func (s *Service) Release(ctx context.Context, projectID, itemID string) error {
	var updated *models.Item
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		updated = nil

		if _, err := board.GetItemTx(ctx, tx, projectID, itemID, true); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM agent_claims WHERE project_id = $1 AND item_id = $2`,
			projectID, itemID); err != nil {
			return fmt.Errorf("failed to release claim: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET assigned_agent = NULL, updated_at = $3
			 WHERE project_id = $1 AND id = $2`,
			projectID, itemID, time.Now()); err != nil {
			return fmt.Errorf("failed to clear assignment: %w", err)
		}

		var err error
		updated, err = board.GetItemTx(ctx, tx, projectID, itemID, false)
		return err
	})
	if err != nil {
		return apperr.Wrap(err)
	}

	s.broker.Publish(projectID, events.New(events.EventItemUpdated,
		events.ItemUpdatedPayload{Item: *updated}))
	return nil
}

// Stop atomically verifies custody, appends the work log, releases the
// claim, and moves the item to review (outcome completed) or blocked.
func (s *Service) Stop(ctx context.Context, projectID, itemID, agent, summary string, outcome StopOutcome) (*models.Item, error) {
	if agent == "" {
		return nil, apperr.Validation("agent", "required")
	}
	if outcome == "" {
		outcome = StopCompleted
	}
	if outcome != StopCompleted && outcome != StopBlocked {
		return nil, apperr.EnumValidation("outcome", string(outcome),
			[]string{string(StopCompleted), string(StopBlocked)})
	}

	toStage := models.StageReview
	action := models.WorkLogCompleted
	if outcome == StopBlocked {
		toStage = models.StageBlocked
		action = models.WorkLogNote
	}

	var (
		stopped *models.Item
		evts    []events.Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stopped, evts = nil, nil

		if _, err := board.GetItemTx(ctx, tx, projectID, itemID, true); err != nil {
			return err
		}

		claim, err := claimOnItem(ctx, tx, projectID, itemID)
		if err != nil {
			return err
		}
		if claim == nil {
			return apperr.Newf(apperr.CodeNotClaimed, "item '%s' is not claimed", itemID)
		}
		if claim.Agent != agent {
			return apperr.Newf(apperr.CodeClaimMismatch,
				"item '%s' is claimed by %s", itemID, claim.Agent).
				WithDetails(map[string]any{"claimedBy": claim.Agent})
		}

		if err := appendWorkLog(ctx, tx, projectID, itemID, agent, action, summary); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM agent_claims WHERE project_id = $1 AND item_id = $2`,
			projectID, itemID); err != nil {
			return fmt.Errorf("failed to release claim: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET assigned_agent = NULL, updated_at = $3
			 WHERE project_id = $1 AND id = $2`,
			projectID, itemID, time.Now()); err != nil {
			return fmt.Errorf("failed to clear assignment: %w", err)
		}

		// The stop move is administrative: agents may stop from any working
		// stage, so it bypasses the matrix but keeps WIP enforcement.
		item, moveEvents, err := s.board.ApplyMoveTx(ctx, tx, projectID, itemID, board.MoveRequest{
			ToStage: toStage,
			Force:   true,
		})
		if err != nil {
			return err
		}
		stopped, evts = item, moveEvents
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	for _, e := range evts {
		s.broker.Publish(projectID, e)
	}
	return stopped, nil
}

func claimConflict(itemID, claimedBy string) *apperr.Error {
	return apperr.Newf(apperr.CodeClaimConflict,
		"item '%s' is already claimed", itemID).
		WithDetails(map[string]any{"claimedBy": claimedBy})
}

func agentBusy(agent, heldItem string) *apperr.Error {
	return apperr.Newf(apperr.CodeAgentBusy,
		"agent '%s' already holds a claim", agent).
		WithDetails(map[string]any{"itemId": heldItem})
}
