package board

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const itemColumns = `project_id, id, title, description, item_type, priority, stage_id,
	assigned_agent, rejection_count, output_test, output_impl, output_types,
	created_at, updated_at, completed_at, archived_at`

func scanItem(row interface{ Scan(dest ...any) error }) (*models.Item, error) {
	var item models.Item
	err := row.Scan(
		&item.ProjectID, &item.ID, &item.Title, &item.Description,
		&item.Type, &item.Priority, &item.StageID,
		&item.AssignedAgent, &item.RejectionCount,
		&item.Outputs.Test, &item.Outputs.Impl, &item.Outputs.Types,
		&item.CreatedAt, &item.UpdatedAt, &item.CompletedAt, &item.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItemTx loads a non-archived item. Pass forUpdate to take a row lock for
// the duration of the transaction.
func GetItemTx(ctx context.Context, q queryer, projectID, itemID string, forUpdate bool) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE project_id = $1 AND id = $2 AND archived_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	item, err := scanItem(q.QueryRowContext(ctx, query, projectID, itemID))
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeItemNotFound, "item '%s' not found", itemID).
			WithDetails(map[string]any{"itemId": itemID})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	deps, err := listDependencies(ctx, q, projectID, itemID)
	if err != nil {
		return nil, err
	}
	item.Dependencies = deps
	return item, nil
}

func listDependencies(ctx context.Context, q queryer, projectID, itemID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT depends_on_id FROM item_dependencies
		 WHERE project_id = $1 AND item_id = $2 ORDER BY depends_on_id`,
		projectID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependencies for %s: %w", itemID, err)
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// loadEdges returns every dependency edge in the project, keyed by dependent.
func loadEdges(ctx context.Context, q queryer, projectID string) (map[string][]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT item_id, depends_on_id FROM item_dependencies WHERE project_id = $1`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependency edges: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		edges[from] = append(edges[from], to)
	}
	return edges, rows.Err()
}

func listItemsWithDeps(ctx context.Context, q queryer, projectID string, includeArchived bool) ([]models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE project_id = $1`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	index := make(map[string]int)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		index[item.ID] = len(items)
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := loadEdges(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	for id, deps := range edges {
		if i, ok := index[id]; ok {
			items[i].Dependencies = deps
		}
	}
	return items, nil
}

// stageCount counts active (non-archived) items currently in a stage.
func stageCount(ctx context.Context, q queryer, projectID string, stage models.StageID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items
		 WHERE project_id = $1 AND stage_id = $2 AND archived_at IS NULL`,
		projectID, stage).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in stage %s: %w", stage, err)
	}
	return count, nil
}

// doneSet returns the ids of the project's items in stage done.
func doneSet(ctx context.Context, q queryer, projectID string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM items
		 WHERE project_id = $1 AND stage_id = 'done' AND archived_at IS NULL`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load done items: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		done[id] = true
	}
	return done, rows.Err()
}

// releaseClaimTx deletes any claim on the item and clears assigned_agent.
// Idempotent.
func releaseClaimTx(ctx context.Context, q queryer, projectID, itemID string) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM agent_claims WHERE project_id = $1 AND item_id = $2`,
		projectID, itemID); err != nil {
		return fmt.Errorf("failed to release claim on %s: %w", itemID, err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE items SET assigned_agent = NULL, updated_at = $3
		 WHERE project_id = $1 AND id = $2`,
		projectID, itemID, time.Now()); err != nil {
		return fmt.Errorf("failed to clear assigned agent on %s: %w", itemID, err)
	}
	return nil
}

// claimOnItem returns the active claim on an item, or nil.
func claimOnItem(ctx context.Context, q queryer, projectID, itemID string) (*models.AgentClaim, error) {
	var claim models.AgentClaim
	err := q.QueryRowContext(ctx,
		`SELECT project_id, item_id, agent_name, claimed_at FROM agent_claims
		 WHERE project_id = $1 AND item_id = $2`,
		projectID, itemID).Scan(&claim.ProjectID, &claim.ItemID, &claim.Agent, &claim.ClaimedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim on %s: %w", itemID, err)
	}
	return &claim, nil
}

// appendWorkLogTx appends one work log entry.
func appendWorkLogTx(ctx context.Context, q queryer, projectID, itemID, agent string, action models.WorkLogAction, summary string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO work_logs (project_id, item_id, agent_name, action, summary)
		 VALUES ($1, $2, $3, $4, $5)`,
		projectID, itemID, agent, action, summary)
	if err != nil {
		return fmt.Errorf("failed to append work log for %s: %w", itemID, err)
	}
	return nil
}
