package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
	"github.com/ateamhq/warroom/test/testdb"
)

const testProject = "p1"

func newTestService(t *testing.T) (*Service, *database.Client) {
	t.Helper()
	db := testdb.NewTestClient(t)
	svc := NewService(db, events.NewBroker(events.DefaultQueueCapacity))

	_, err := db.DB().ExecContext(context.Background(),
		`INSERT INTO projects (id, name) VALUES ($1, $1)`, testProject)
	require.NoError(t, err)
	return svc, db
}

func strPtr(s string) *string { return &s }

func TestIngest_DedupCounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	corr := strPtr("corr-1")
	batch := []Submission{
		{EventType: models.HookPreToolUse, Agent: "murdock", Tool: strPtr("editor"), CorrelationID: corr},
		{EventType: models.HookPostToolUse, Agent: "murdock", Tool: strPtr("editor"), CorrelationID: corr},
	}

	result, err := svc.Ingest(ctx, testProject, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Skipped)

	// Resubmission with the same {correlationId, eventType} is skipped.
	result, err = svc.Ingest(ctx, testProject, batch[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)

	// Events without a correlation id never dedup.
	noCorr := []Submission{{EventType: models.HookNotification, Agent: "murdock"}}
	for i := 0; i < 2; i++ {
		result, err = svc.Ingest(ctx, testProject, noCorr)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)
	}
}

func TestIngest_InvalidTypeRejectsWholeBatch(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	batch := []Submission{
		{EventType: models.HookPreToolUse, Agent: "murdock"},
		{EventType: "tool_exploded", Agent: "murdock"},
	}
	_, err := svc.Ingest(ctx, testProject, batch)
	require.True(t, apperr.IsCode(err, apperr.CodeValidation))

	var count int
	require.NoError(t, db.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM hook_events WHERE project_id = $1`, testProject).Scan(&count))
	assert.Equal(t, 0, count, "no event from the rejected batch may be stored")
}

func TestList_DurationPairing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	corr := strPtr("corr-pair")
	_, err := svc.Ingest(ctx, testProject, []Submission{
		{EventType: models.HookPreToolUse, Agent: "ba", Tool: strPtr("shell"), CorrelationID: corr, Timestamp: base},
		{EventType: models.HookPostToolUse, Agent: "ba", Tool: strPtr("shell"), CorrelationID: corr, Timestamp: base.Add(1500 * time.Millisecond)},
	})
	require.NoError(t, err)

	list, err := svc.List(ctx, testProject, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// Newest first: the post event leads and carries the pairing.
	assert.Equal(t, models.HookPostToolUse, list[0].EventType)
	require.NotNil(t, list[0].DurationMs)
	assert.Equal(t, int64(1500), *list[0].DurationMs)
	assert.Nil(t, list[1].DurationMs)
}

func TestPrune_SparesCurrentMission(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// An active mission to anchor the exclusion.
	_, err := db.DB().ExecContext(ctx,
		`INSERT INTO missions (id, project_id, name, state) VALUES ('msn-1', $1, 'alpha', 'running')`,
		testProject)
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	_, err = svc.Ingest(ctx, testProject, []Submission{
		{EventType: models.HookNotification, Agent: "amy", Timestamp: old},
		{EventType: models.HookStop, Agent: "amy", Timestamp: old, MissionID: strPtr("msn-1")},
		{EventType: models.HookNotification, Agent: "amy"},
	})
	require.NoError(t, err)

	pruned, err := svc.Prune(ctx, testProject, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned, "only the old unlinked event is pruned")

	list, err := svc.List(ctx, testProject, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
