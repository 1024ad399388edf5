package missions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/marker"
	"github.com/ateamhq/warroom/pkg/models"
	"github.com/ateamhq/warroom/test/testdb"
)

const testProject = "p1"

type fixture struct {
	svc       *Service
	board     *board.Service
	broker    *events.Broker
	markerDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.NewTestClient(t)
	broker := events.NewBroker(events.DefaultQueueCapacity)
	boardSvc := board.NewService(db, broker)
	markerDir := t.TempDir()
	svc := NewService(db, broker, boardSvc, marker.NewWriter(markerDir))

	_, err := db.DB().ExecContext(context.Background(),
		`INSERT INTO projects (id, name) VALUES ($1, $1)`, testProject)
	require.NoError(t, err)
	return &fixture{svc: svc, board: boardSvc, broker: broker, markerDir: markerDir}
}

// drainTypes empties the subscription's queue and returns the event types seen.
func drainTypes(sub *events.Subscription) []string {
	var types []string
	for {
		select {
		case e := <-sub.Events():
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func (f *fixture) markerExists() bool {
	_, err := os.Stat(filepath.Join(f.markerDir, "mission-active-"+testProject))
	return err == nil
}

func (f *fixture) completeItem(t *testing.T, itemID string) {
	t.Helper()
	ctx := context.Background()
	for _, stage := range []models.StageID{
		models.StageReady, models.StageTesting, models.StageImplementing,
		models.StageReview, models.StageProbing, models.StageDone,
	} {
		_, err := f.board.MoveItem(ctx, testProject, itemID, board.MoveRequest{ToStage: stage})
		require.NoError(t, err)
	}
}

func TestMissionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mission, err := f.svc.Create(ctx, testProject, CreateRequest{Name: "alpha", PRDPath: "docs/prd.md"})
	require.NoError(t, err)
	assert.Equal(t, models.MissionInitializing, mission.State)
	assert.Equal(t, "docs/prd.md", mission.PRDPath)
	assert.NotNil(t, mission.StartedAt)

	// Items created while the mission is active are linked to it.
	item, err := f.board.CreateItem(ctx, testProject, board.CreateItemRequest{Title: "work"})
	require.NoError(t, err)

	// Precheck pass: initializing → running, marker written.
	mission, err = f.svc.Precheck(ctx, testProject, []models.CheckResult{
		{Name: "git-clean", Passed: true},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MissionRunning, mission.State)
	require.NotNil(t, mission.PrecheckResult)
	assert.True(t, mission.PrecheckResult.Passed)
	assert.True(t, f.markerExists())

	// Postcheck refuses while items are pending.
	_, err = f.svc.Postcheck(ctx, testProject, nil)
	require.True(t, apperr.IsCode(err, apperr.CodeConflict))
	appErr, _ := apperr.As(err)
	assert.Equal(t, []string{item.ID}, appErr.Details["pendingItems"])

	f.completeItem(t, item.ID)

	// Postcheck with no checks counts as a skipped pass.
	mission, err = f.svc.Postcheck(ctx, testProject, nil)
	require.NoError(t, err)
	assert.Equal(t, models.MissionCompleted, mission.State)
	require.NotNil(t, mission.PostcheckResult)
	assert.True(t, mission.PostcheckResult.Skipped)
	assert.NotNil(t, mission.CompletedAt)

	// Archive complete: mission archived, items soft-deleted, marker gone,
	// mission-completed emitted.
	sub := f.broker.Subscribe(testProject)
	defer sub.Close()
	result, err := f.svc.Archive(ctx, testProject, ArchiveRequest{Complete: true})
	require.NoError(t, err)
	assert.Equal(t, []string{item.ID}, result.ArchivedItems)
	assert.False(t, f.markerExists())
	assert.Contains(t, drainTypes(sub), events.EventMissionCompleted)

	_, err = f.svc.Current(ctx, testProject)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	items, err := f.board.ListItems(ctx, testProject)
	require.NoError(t, err)
	assert.Empty(t, items)

	// Repeating the archive is an idempotent success.
	again, err := f.svc.Archive(ctx, testProject, ArchiveRequest{Complete: true})
	require.NoError(t, err)
	assert.True(t, again.AlreadyDone)
}

func TestPrecheckFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, testProject, CreateRequest{Name: "alpha"})
	require.NoError(t, err)

	mission, err := f.svc.Precheck(ctx, testProject, []models.CheckResult{
		{Name: "git-clean", Passed: true},
		{Name: "build", Passed: false, Output: "compile error"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MissionFailed, mission.State)
	assert.False(t, mission.PrecheckResult.Passed)
	assert.False(t, f.markerExists())

	// Precheck is only admissible from initializing.
	_, err = f.svc.Precheck(ctx, testProject, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))
}

func TestCreate_SingleActiveRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, testProject, CreateRequest{Name: "first"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, testProject, CreateRequest{Name: "second"})
	require.True(t, apperr.IsCode(err, apperr.CodeConflict))
	appErr, _ := apperr.As(err)
	assert.Equal(t, first.ID, appErr.Details["missionId"])

	// Force archives the incumbent and its items atomically.
	_, err = f.board.CreateItem(ctx, testProject, board.CreateItemRequest{Title: "orphaned"})
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, testProject, CreateRequest{Name: "second", Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.MissionInitializing, second.State)

	current, err := f.svc.Current(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	items, err := f.board.ListItems(ctx, testProject)
	require.NoError(t, err)
	assert.Empty(t, items, "incumbent's items should be archived")

	missions, err := f.svc.List(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, missions, 2)
	assert.Equal(t, second.ID, missions[0].ID)
	assert.Equal(t, models.MissionArchived, missions[1].State)
}

func TestArchive_DryRunAndSubset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, testProject, CreateRequest{Name: "alpha"})
	require.NoError(t, err)

	a, err := f.board.CreateItem(ctx, testProject, board.CreateItemRequest{Title: "a"})
	require.NoError(t, err)
	b, err := f.board.CreateItem(ctx, testProject, board.CreateItemRequest{Title: "b"})
	require.NoError(t, err)

	// Dry run reports the selection without changing anything.
	result, err := f.svc.Archive(ctx, testProject, ArchiveRequest{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, result.ArchivedItems)

	items, err := f.board.ListItems(ctx, testProject)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// A strict subset archives those items and keeps the mission active.
	result, err = f.svc.Archive(ctx, testProject, ArchiveRequest{ItemIDs: []string{a.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, result.ArchivedItems)

	current, err := f.svc.Current(ctx, testProject)
	require.NoError(t, err)
	assert.NotEqual(t, models.MissionArchived, current.State)

	items, err = f.board.ListItems(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)

	// Unknown ids in the selection are refused.
	_, err = f.svc.Archive(ctx, testProject, ArchiveRequest{ItemIDs: []string{"itm-nope"}})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestArchive_CompleteBeforePostcheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, testProject, CreateRequest{Name: "alpha"})
	require.NoError(t, err)
	_, err = f.svc.Precheck(ctx, testProject, nil)
	require.NoError(t, err)

	// Archiving a running mission with complete is force-style: the mission
	// is archived and the marker cleared, but it never reached completed, so
	// no completedAt is stamped and no mission-completed goes out.
	sub := f.broker.Subscribe(testProject)
	defer sub.Close()
	result, err := f.svc.Archive(ctx, testProject, ArchiveRequest{Complete: true})
	require.NoError(t, err)
	assert.False(t, result.AlreadyDone)
	assert.False(t, f.markerExists())
	assert.NotContains(t, drainTypes(sub), events.EventMissionCompleted)

	missions, err := f.svc.List(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, missions, 1)
	assert.Equal(t, models.MissionArchived, missions[0].State)
	assert.Nil(t, missions[0].CompletedAt)
	assert.NotNil(t, missions[0].ArchivedAt)
}

func TestUpdateSubstate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, testProject, CreateRequest{Name: "alpha"})
	require.NoError(t, err)
	_, err = f.svc.Precheck(ctx, testProject, nil)
	require.NoError(t, err)

	record := []byte(`{"approved": true, "reviewer": "hannibal"}`)
	mission, err := f.svc.UpdateSubstate(ctx, testProject, SubstateFinalReview, PhaseComplete, record)
	require.NoError(t, err)
	assert.JSONEq(t, string(record), string(mission.FinalReview))

	// finalReview has no intermediate update phase.
	_, err = f.svc.UpdateSubstate(ctx, testProject, SubstateFinalReview, PhaseUpdate, record)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = f.svc.UpdateSubstate(ctx, testProject, "retrospective", PhaseStarted, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}
