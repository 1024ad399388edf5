package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ateamhq/warroom/pkg/config"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/hooks"
	"github.com/ateamhq/warroom/pkg/models"
	"github.com/ateamhq/warroom/pkg/projects"
	"github.com/ateamhq/warroom/test/testdb"
)

func TestPruneAll(t *testing.T) {
	db := testdb.NewTestClient(t)
	ctx := context.Background()

	projectSvc := projects.NewService(db)
	hookSvc := hooks.NewService(db, events.NewBroker(events.DefaultQueueCapacity))
	for _, id := range []string{"p1", "p2"} {
		require.NoError(t, projectSvc.Ensure(ctx, id))
	}

	old := time.Now().Add(-96 * time.Hour)
	for _, project := range []string{"p1", "p2"} {
		_, err := hookSvc.Ingest(ctx, project, []hooks.Submission{
			{EventType: models.HookNotification, Agent: "amy", Timestamp: old},
			{EventType: models.HookNotification, Agent: "amy"},
		})
		require.NoError(t, err)
	}

	cfg := &config.RetentionConfig{HookEventTTL: 72 * time.Hour, Interval: time.Hour}
	svc := NewService(cfg, projectSvc, hookSvc)
	svc.pruneAll(ctx)

	for _, project := range []string{"p1", "p2"} {
		list, err := hookSvc.List(ctx, project, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1, "only the recent event survives in %s", project)
	}
}

func TestStartStop(t *testing.T) {
	db := testdb.NewTestClient(t)

	cfg := &config.RetentionConfig{HookEventTTL: 72 * time.Hour, Interval: time.Hour}
	svc := NewService(cfg,
		projects.NewService(db),
		hooks.NewService(db, events.NewBroker(events.DefaultQueueCapacity)))

	svc.Start(context.Background())
	svc.Start(context.Background()) // second Start is a no-op
	svc.Stop()
}
