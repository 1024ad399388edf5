package claims

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ateamhq/warroom/pkg/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func claimOnItem(ctx context.Context, q queryer, projectID, itemID string) (*models.AgentClaim, error) {
	var claim models.AgentClaim
	err := q.QueryRowContext(ctx,
		`SELECT project_id, item_id, agent_name, claimed_at
		 FROM agent_claims WHERE project_id = $1 AND item_id = $2`,
		projectID, itemID).
		Scan(&claim.ProjectID, &claim.ItemID, &claim.Agent, &claim.ClaimedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim for item %s: %w", itemID, err)
	}
	return &claim, nil
}

// claimByAgent looks across all projects: an agent holds at most one claim
// anywhere.
func claimByAgent(ctx context.Context, q queryer, agent string) (*models.AgentClaim, error) {
	var claim models.AgentClaim
	err := q.QueryRowContext(ctx,
		`SELECT project_id, item_id, agent_name, claimed_at
		 FROM agent_claims WHERE agent_name = $1`,
		agent).
		Scan(&claim.ProjectID, &claim.ItemID, &claim.Agent, &claim.ClaimedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim for agent %s: %w", agent, err)
	}
	return &claim, nil
}

func appendWorkLog(ctx context.Context, q queryer, projectID, itemID, agent string, action models.WorkLogAction, summary string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO work_logs (project_id, item_id, agent_name, action, summary)
		 VALUES ($1, $2, $3, $4, $5)`,
		projectID, itemID, agent, action, summary)
	if err != nil {
		return fmt.Errorf("failed to append work log: %w", err)
	}
	return nil
}
