// Package hooks ingests agent tool-use telemetry. Events deduplicate on
// {projectId, correlationId, eventType} via a partial unique index; tool-use
// durations are derived read-side by pairing post events with their
// pre_tool_use counterpart on correlation id.
package hooks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// Service is the hook-event ingestor.
type Service struct {
	db     *database.Client
	broker *events.Broker
}

// NewService creates a hook-event service.
func NewService(db *database.Client, broker *events.Broker) *Service {
	return &Service{db: db, broker: broker}
}

// Submission is one incoming hook event.
type Submission struct {
	EventType     models.HookEventType `json:"eventType"`
	Agent         string               `json:"agent"`
	Tool          *string              `json:"tool"`
	Status        string               `json:"status"`
	Summary       string               `json:"summary"`
	CorrelationID *string              `json:"correlationId"`
	Timestamp     time.Time            `json:"timestamp"`
	MissionID     *string              `json:"missionId"`
}

// Ingest stores a batch of events. Any invalid eventType rejects the whole
// batch; duplicates on {correlationId, eventType} are skipped individually.
// One hook-event is published carrying every stored row.
func (s *Service) Ingest(ctx context.Context, projectID string, submissions []Submission) (*models.HookIngestResult, error) {
	if len(submissions) == 0 {
		return nil, apperr.Validation("events", "at least one event required")
	}
	for i, sub := range submissions {
		if !sub.EventType.Valid() {
			return nil, apperr.EnumValidation(
				fmt.Sprintf("events[%d].eventType", i),
				string(sub.EventType),
				models.HookEventTypeNames())
		}
		if sub.Agent == "" {
			return nil, apperr.Validation(fmt.Sprintf("events[%d].agent", i), "required")
		}
	}

	var (
		result *models.HookIngestResult
		stored []models.HookEvent
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, stored = nil, nil

		res := &models.HookIngestResult{}
		for _, sub := range submissions {
			ts := sub.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			// ON CONFLICT would need the partial index predicate spelled
			// out; an insert guarded by NOT EXISTS reads clearer and the
			// unique index still backstops concurrent duplicates.
			row := tx.QueryRowContext(ctx,
				`INSERT INTO hook_events (project_id, event_type, agent_name, tool, status, summary, correlation_id, mission_id, event_at)
				 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
				 WHERE $7::text IS NULL OR NOT EXISTS (
					 SELECT 1 FROM hook_events
					 WHERE project_id = $1 AND correlation_id = $7 AND event_type = $2)
				 RETURNING id, project_id, event_type, agent_name, tool, status, summary, correlation_id, mission_id, event_at`,
				projectID, sub.EventType, sub.Agent, sub.Tool, sub.Status, sub.Summary,
				sub.CorrelationID, sub.MissionID, ts)

			var e models.HookEvent
			err := row.Scan(&e.ID, &e.ProjectID, &e.EventType, &e.Agent, &e.Tool,
				&e.Status, &e.Summary, &e.CorrelationID, &e.MissionID, &e.Timestamp)
			if err == sql.ErrNoRows {
				res.Skipped++
				continue
			}
			if err != nil {
				if database.IsUniqueViolation(err, "hook_events_dedup") {
					res.Skipped++
					continue
				}
				return fmt.Errorf("failed to insert hook event: %w", err)
			}
			res.Created++
			stored = append(stored, e)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	if len(stored) > 0 {
		s.broker.Publish(projectID, events.New(events.EventHookEvent,
			events.HookEventPayload{Events: stored}))
	}
	return result, nil
}

// List returns the project's events newest first, with durations paired in.
func (s *Service) List(ctx context.Context, projectID string, limit int) ([]models.HookEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT h.id, h.project_id, h.event_type, h.agent_name, h.tool, h.status,
			h.summary, h.correlation_id, h.mission_id, h.event_at,
			CASE WHEN h.event_type IN ('post_tool_use', 'post_tool_use_failed')
			     THEN (EXTRACT(EPOCH FROM (h.event_at - pre.event_at)) * 1000)::bigint
			END AS duration_ms
		 FROM hook_events h
		 LEFT JOIN hook_events pre
		   ON pre.project_id = h.project_id
		  AND pre.correlation_id = h.correlation_id
		  AND pre.event_type = 'pre_tool_use'
		  AND h.correlation_id IS NOT NULL
		 WHERE h.project_id = $1
		 ORDER BY h.event_at DESC, h.id DESC
		 LIMIT $2`,
		projectID, limit)
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("failed to list hook events: %w", err))
	}
	defer rows.Close()

	evts := []models.HookEvent{}
	for rows.Next() {
		var e models.HookEvent
		err := rows.Scan(&e.ID, &e.ProjectID, &e.EventType, &e.Agent, &e.Tool,
			&e.Status, &e.Summary, &e.CorrelationID, &e.MissionID, &e.Timestamp,
			&e.DurationMs)
		if err != nil {
			return nil, apperr.Wrap(err)
		}
		evts = append(evts, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err)
	}
	return evts, nil
}

// Prune deletes events older than the cutoff, keeping anything linked to
// the project's non-archived mission. Returns the count deleted.
func (s *Service) Prune(ctx context.Context, projectID string, olderThan time.Time) (int64, error) {
	if olderThan.IsZero() {
		return 0, apperr.Validation("olderThan", "required")
	}
	res, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM hook_events
		 WHERE project_id = $1 AND event_at < $2
		   AND (mission_id IS NULL OR mission_id NOT IN (
			   SELECT id FROM missions WHERE project_id = $1 AND archived_at IS NULL))`,
		projectID, olderThan)
	if err != nil {
		return 0, apperr.Wrap(fmt.Errorf("failed to prune hook events: %w", err))
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(err)
	}
	return pruned, nil
}
