package missions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// Precheck runs mission_init: the reported check results are persisted and
// the mission moves from initializing to running (pass, or no checks
// supplied) or failed. Checks execute in the caller before the report, so
// the intermediate prechecking state is never stored. On pass the
// per-project marker file is written for external hook programs.
func (s *Service) Precheck(ctx context.Context, projectID string, checks []models.CheckResult) (*models.Mission, error) {
	// mission_init clears any stale marker left by a crashed predecessor.
	s.marker.Clear(projectID)

	var mission *models.Mission
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		mission = nil

		current, err := currentTx(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.Newf(apperr.CodeNotFound, "project '%s' has no active mission", projectID)
		}
		if current.State != models.MissionInitializing {
			return apperr.Newf(apperr.CodeInvalidTransition,
				"precheck requires an initializing mission, found %s", current.State).
				WithDetails(map[string]any{"state": string(current.State)})
		}

		run := newCheckRun(checks)
		next := models.MissionRunning
		if !run.Passed {
			next = models.MissionFailed
		}
		if err := saveCheckRun(ctx, tx, projectID, current.ID, "precheck_result", next, run, nil); err != nil {
			return err
		}

		mission, err = missionByID(ctx, tx, projectID, current.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	if mission.State == models.MissionRunning {
		s.marker.WriteActive(projectID)
	}
	return mission, nil
}

// Postcheck closes out a running mission: every linked item must be in done,
// the check results are persisted, and the mission moves from running to
// completed (pass) or failed without storing the intermediate postchecking
// state. The marker is cleared and mission-completed emitted by the
// subsequent archive call, not here.
func (s *Service) Postcheck(ctx context.Context, projectID string, checks []models.CheckResult) (*models.Mission, error) {
	var mission *models.Mission
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		mission = nil

		current, err := currentTx(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.Newf(apperr.CodeNotFound, "project '%s' has no active mission", projectID)
		}
		if current.State != models.MissionRunning {
			return apperr.Newf(apperr.CodeInvalidTransition,
				"postcheck requires a running mission, found %s", current.State).
				WithDetails(map[string]any{"state": string(current.State)})
		}

		pending, err := pendingItems(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return apperr.Newf(apperr.CodeConflict,
				"mission '%s' has items not yet done", current.ID).
				WithDetails(map[string]any{"pendingItems": pending})
		}

		run := newCheckRun(checks)
		next := models.MissionCompleted
		var completedAt *time.Time
		if run.Passed {
			now := time.Now()
			completedAt = &now
		} else {
			next = models.MissionFailed
		}
		if err := saveCheckRun(ctx, tx, projectID, current.ID, "postcheck_result", next, run, completedAt); err != nil {
			return err
		}

		mission, err = missionByID(ctx, tx, projectID, current.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return mission, nil
}

// newCheckRun aggregates reported results. An empty report means the checks
// were skipped, which counts as a pass.
func newCheckRun(checks []models.CheckResult) *models.CheckRun {
	run := &models.CheckRun{
		Passed: true,
		Checks: checks,
		RanAt:  time.Now(),
	}
	if len(checks) == 0 {
		run.Skipped = true
		return run
	}
	for _, c := range checks {
		if !c.Passed {
			run.Passed = false
			break
		}
	}
	return run
}

// SubstateKind names one of the completion-panel sub-records.
type SubstateKind string

const (
	SubstateFinalReview   SubstateKind = "finalReview"
	SubstatePostChecks    SubstateKind = "postChecks"
	SubstateDocumentation SubstateKind = "documentation"
)

// SubstatePhase positions an update within the completion sequence.
type SubstatePhase string

const (
	PhaseStarted  SubstatePhase = "started"
	PhaseUpdate   SubstatePhase = "update"
	PhaseComplete SubstatePhase = "complete"
)

// substateEvents maps kind and phase to the published event type. Only
// postChecks has an intermediate update phase.
var substateEvents = map[SubstateKind]map[SubstatePhase]string{
	SubstateFinalReview: {
		PhaseStarted:  events.EventFinalReviewStarted,
		PhaseComplete: events.EventFinalReviewComplete,
	},
	SubstatePostChecks: {
		PhaseStarted:  events.EventPostChecksStarted,
		PhaseUpdate:   events.EventPostCheckUpdate,
		PhaseComplete: events.EventPostChecksComplete,
	},
	SubstateDocumentation: {
		PhaseStarted:  events.EventDocumentationStarted,
		PhaseComplete: events.EventDocumentationComplete,
	},
}

var substateColumns = map[SubstateKind]string{
	SubstateFinalReview:   "final_review",
	SubstatePostChecks:    "post_checks",
	SubstateDocumentation: "documentation",
}

// UpdateSubstate persists a completion-panel sub-record verbatim on the
// current mission and publishes the matching sequence event. The core does
// not interpret the record.
func (s *Service) UpdateSubstate(ctx context.Context, projectID string, kind SubstateKind, phase SubstatePhase, record json.RawMessage) (*models.Mission, error) {
	phases, ok := substateEvents[kind]
	if !ok {
		return nil, apperr.EnumValidation("kind", string(kind),
			[]string{string(SubstateFinalReview), string(SubstatePostChecks), string(SubstateDocumentation)})
	}
	eventType, ok := phases[phase]
	if !ok {
		allowed := make([]string, 0, len(phases))
		for p := range phases {
			allowed = append(allowed, string(p))
		}
		return nil, apperr.EnumValidation("phase", string(phase), allowed)
	}

	var mission *models.Mission
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		mission = nil

		current, err := currentTx(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.Newf(apperr.CodeNotFound, "project '%s' has no active mission", projectID)
		}

		if len(record) > 0 {
			query := fmt.Sprintf(
				`UPDATE missions SET %s = $3, updated_at = $4 WHERE project_id = $1 AND id = $2`,
				substateColumns[kind])
			if _, err := tx.ExecContext(ctx, query, projectID, current.ID, []byte(record), time.Now()); err != nil {
				return fmt.Errorf("failed to persist %s record: %w", kind, err)
			}
		}

		mission, err = missionByID(ctx, tx, projectID, current.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	s.broker.Publish(projectID, events.New(eventType, events.MissionSubstatePayload{
		MissionID: mission.ID,
		Record:    record,
	}))
	return mission, nil
}
