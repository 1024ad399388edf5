// Package board implements the board engine: stage transitions, WIP
// enforcement, dependency readiness, and the automatic effects moves carry.
package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// Service is the board engine. All mutations run in single transactions;
// events are published only after commit.
type Service struct {
	db     *database.Client
	broker *events.Broker
}

// NewService creates a board service.
func NewService(db *database.Client, broker *events.Broker) *Service {
	return &Service{db: db, broker: broker}
}

// Broker exposes the event broker for the HTTP layer's stream handler.
func (s *Service) Broker() *events.Broker {
	return s.broker
}

// publish fans events out after a committed write.
func (s *Service) publish(projectID string, evts []events.Event) {
	for _, e := range evts {
		s.broker.Publish(projectID, e)
	}
}

// GetBoardState returns the full board snapshot: stages with counts, items,
// claims, and the current mission. includeCompleted adds archived items.
func (s *Service) GetBoardState(ctx context.Context, projectID string, includeCompleted bool) (*models.BoardSnapshot, error) {
	snapshot, err := s.snapshot(ctx, s.db.DB(), projectID, includeCompleted)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return snapshot, nil
}

func (s *Service) snapshot(ctx context.Context, q queryer, projectID string, includeCompleted bool) (*models.BoardSnapshot, error) {
	stages, err := listStages(ctx, q)
	if err != nil {
		return nil, err
	}

	items, err := listItemsWithDeps(ctx, q, projectID, includeCompleted)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.StageID]int)
	for _, item := range items {
		if item.ArchivedAt == nil {
			counts[item.StageID]++
		}
	}

	summaries := make([]models.StageSummary, len(stages))
	for i, st := range stages {
		summaries[i] = models.StageSummary{Stage: st, ItemCount: counts[st.ID]}
	}

	claims, err := listClaims(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	mission, err := currentMission(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	return &models.BoardSnapshot{
		Stages:         summaries,
		Items:          items,
		Claims:         claims,
		CurrentMission: mission,
	}, nil
}

// Readiness partitions the project's items into ready-but-still-in-briefings
// and items with unmet dependencies.
func (s *Service) Readiness(ctx context.Context, projectID string) (*models.ReadinessReport, error) {
	q := s.db.DB()

	items, err := listItemsWithDeps(ctx, q, projectID, false)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	done, err := doneSet(ctx, q, projectID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	report := &models.ReadinessReport{Ready: []models.Item{}, Blocked: []models.BlockedItem{}}
	for _, item := range items {
		var unmet []string
		for _, dep := range item.Dependencies {
			if !done[dep] {
				unmet = append(unmet, dep)
			}
		}

		switch {
		case item.StageID == models.StageBriefings && len(unmet) == 0:
			report.Ready = append(report.Ready, item)
		case len(unmet) > 0 && item.StageID != models.StageDone:
			sort.Strings(unmet)
			report.Blocked = append(report.Blocked, models.BlockedItem{
				ItemID:     item.ID,
				UnmetCount: len(unmet),
				UnmetDeps:  unmet,
			})
		}
	}
	return report, nil
}

func listStages(ctx context.Context, q queryer) ([]models.Stage, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, position, wip_limit FROM stages ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		var st models.Stage
		if err := rows.Scan(&st.ID, &st.Name, &st.Position, &st.WIPLimit); err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

func listClaims(ctx context.Context, q queryer, projectID string) ([]models.AgentClaim, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT project_id, item_id, agent_name, claimed_at FROM agent_claims
		 WHERE project_id = $1 ORDER BY claimed_at`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := []models.AgentClaim{}
	for rows.Next() {
		var c models.AgentClaim
		if err := rows.Scan(&c.ProjectID, &c.ItemID, &c.Agent, &c.ClaimedAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

const missionColumns = `id, project_id, name, prd_path, state, started_at, completed_at,
	archived_at, precheck_result, postcheck_result, final_review, post_checks,
	documentation, created_at, updated_at`

// ScanMission scans one mission row, decoding the JSONB sub-records.
func ScanMission(row interface{ Scan(dest ...any) error }) (*models.Mission, error) {
	var m models.Mission
	var precheck, postcheck, finalReview, postChecks, documentation []byte
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Name, &m.PRDPath, &m.State,
		&m.StartedAt, &m.CompletedAt, &m.ArchivedAt,
		&precheck, &postcheck, &finalReview, &postChecks, &documentation,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(precheck) > 0 {
		m.PrecheckResult = &models.CheckRun{}
		if err := json.Unmarshal(precheck, m.PrecheckResult); err != nil {
			return nil, fmt.Errorf("failed to decode precheck result: %w", err)
		}
	}
	if len(postcheck) > 0 {
		m.PostcheckResult = &models.CheckRun{}
		if err := json.Unmarshal(postcheck, m.PostcheckResult); err != nil {
			return nil, fmt.Errorf("failed to decode postcheck result: %w", err)
		}
	}
	m.FinalReview = json.RawMessage(finalReview)
	m.PostChecks = json.RawMessage(postChecks)
	m.Documentation = json.RawMessage(documentation)
	return &m, nil
}

// currentMission returns the project's non-archived mission, or nil.
func currentMission(ctx context.Context, q queryer, projectID string) (*models.Mission, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions
		 WHERE project_id = $1 AND archived_at IS NULL`,
		projectID)
	mission, err := ScanMission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current mission: %w", err)
	}
	return mission, nil
}
