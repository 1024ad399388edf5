package activity

import (
	"context"
	"fmt"
	"testing"

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

func TestLog_Defaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Log(ctx, testProject, LogRequest{Message: "mission briefing posted"})
	require.NoError(t, err)
	assert.Equal(t, models.ActivityInfo, entry.Level)
	assert.Nil(t, entry.MissionID, "no mission to associate with")
	assert.False(t, entry.CreatedAt.IsZero())

	_, err = svc.Log(ctx, testProject, LogRequest{Message: "  "})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = svc.Log(ctx, testProject, LogRequest{Message: "x", Level: "debug"})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestLog_AssociatesCurrentMission(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := db.DB().ExecContext(ctx,
		`INSERT INTO missions (id, project_id, name, state) VALUES ('msn-1', $1, 'alpha', 'running')`,
		testProject)
	require.NoError(t, err)

	entry, err := svc.Log(ctx, testProject, LogRequest{Message: "claimed item"})
	require.NoError(t, err)
	require.NotNil(t, entry.MissionID)
	assert.Equal(t, "msn-1", *entry.MissionID)
}

func TestList_NewestFirstAndBounded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Log(ctx, testProject, LogRequest{Message: fmt.Sprintf("entry %d", i)})
		require.NoError(t, err)
	}

	entries, err := svc.List(ctx, testProject, ListRequest{Limit: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry 4", entries[0].Message)
	assert.Equal(t, "entry 2", entries[2].Message)
}

func TestList_MissionFilterDefaultsToCurrent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Entry from before any mission existed.
	_, err := svc.Log(ctx, testProject, LogRequest{Message: "pre-mission"})
	require.NoError(t, err)

	_, err = db.DB().ExecContext(ctx,
		`INSERT INTO missions (id, project_id, name, state) VALUES ('msn-1', $1, 'alpha', 'running')`,
		testProject)
	require.NoError(t, err)

	_, err = svc.Log(ctx, testProject, LogRequest{Message: "during mission"})
	require.NoError(t, err)

	// Default list scopes to the current mission.
	entries, err := svc.List(ctx, testProject, ListRequest{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "during mission", entries[0].Message)

	// Explicit mission filter behaves the same.
	mid := "msn-1"
	entries, err = svc.List(ctx, testProject, ListRequest{MissionID: &mid})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
