package missions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const missionColumns = `id, project_id, name, prd_path, state, started_at, completed_at,
	archived_at, precheck_result, postcheck_result, final_review, post_checks,
	documentation, created_at, updated_at`

// currentTx returns the project's non-archived mission, or nil. forUpdate
// locks the row for the duration of the transaction.
func currentTx(ctx context.Context, q queryer, projectID string, forUpdate bool) (*models.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions
		 WHERE project_id = $1 AND archived_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	mission, err := board.ScanMission(q.QueryRowContext(ctx, query, projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current mission: %w", err)
	}
	return mission, nil
}

func missionByID(ctx context.Context, q queryer, projectID, missionID string) (*models.Mission, error) {
	mission, err := board.ScanMission(q.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE project_id = $1 AND id = $2`,
		projectID, missionID))
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeNotFound, "mission '%s' not found", missionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mission %s: %w", missionID, err)
	}
	return mission, nil
}

// latestMission returns the most recently created mission regardless of
// archival, or nil. Used to make repeated archive calls idempotent.
func latestMission(ctx context.Context, q queryer, projectID string) (*models.Mission, error) {
	mission, err := board.ScanMission(q.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions
		 WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`,
		projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest mission: %w", err)
	}
	return mission, nil
}

// linkedItems returns the ids of the mission's non-archived linked items.
func linkedItems(ctx context.Context, q queryer, missionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT mi.item_id FROM mission_items mi
		 JOIN items i ON i.project_id = mi.project_id AND i.id = mi.item_id
		 WHERE mi.mission_id = $1 AND mi.archived_at IS NULL AND i.archived_at IS NULL
		 ORDER BY mi.item_id`,
		missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mission items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// pendingItems returns linked items not yet in done.
func pendingItems(ctx context.Context, q queryer, missionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT mi.item_id FROM mission_items mi
		 JOIN items i ON i.project_id = mi.project_id AND i.id = mi.item_id
		 WHERE mi.mission_id = $1 AND mi.archived_at IS NULL
		   AND i.archived_at IS NULL AND i.stage_id <> 'done'
		 ORDER BY mi.item_id`,
		missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending mission items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func saveCheckRun(ctx context.Context, q queryer, projectID, missionID, column string, state models.MissionState, run *models.CheckRun, completedAt *time.Time) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode check run: %w", err)
	}
	query := fmt.Sprintf(
		`UPDATE missions SET state = $3, %s = $4, updated_at = $5 WHERE project_id = $1 AND id = $2`,
		column)
	args := []any{projectID, missionID, state, payload, time.Now()}
	if completedAt != nil {
		query = fmt.Sprintf(
			`UPDATE missions SET state = $3, %s = $4, updated_at = $5, completed_at = $6
			 WHERE project_id = $1 AND id = $2`,
			column)
		args = append(args, *completedAt)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to persist check run: %w", err)
	}
	return nil
}
