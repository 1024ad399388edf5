package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ateamhq/warroom/pkg/activity"
	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/claims"
	"github.com/ateamhq/warroom/pkg/config"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/hooks"
	"github.com/ateamhq/warroom/pkg/marker"
	"github.com/ateamhq/warroom/pkg/missions"
	"github.com/ateamhq/warroom/pkg/projects"
	"github.com/ateamhq/warroom/test/testdb"
)

type testApp struct {
	server *httptest.Server
	client *http.Client
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := testdb.NewTestClient(t)
	broker := events.NewBroker(events.DefaultQueueCapacity)
	boardSvc := board.NewService(db, broker)

	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Broker.HeartbeatInterval = config.DefaultHeartbeatInterval
	cfg.Server.ShutdownTimeout = config.DefaultShutdownTimeout

	srv := NewServer(cfg, db, broker, Services{
		Projects: projects.NewService(db),
		Board:    boardSvc,
		Claims:   claims.NewService(db, broker, boardSvc),
		Missions: missions.NewService(db, broker, boardSvc, marker.NewWriter(t.TempDir())),
		Activity: activity.NewService(db, broker),
		Hooks:    hooks.NewService(db, broker),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testApp{server: ts, client: ts.Client()}
}

// do issues a request with the project header and decodes the envelope.
func (a *testApp) do(t *testing.T, method, path, project string, body any) (int, Envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if project != "" {
		req.Header.Set("X-Project-ID", project)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func dataMap(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	require.True(t, ok, "expected object data, got %T", env.Data)
	return m
}

func TestEnvelopeAndStatuses(t *testing.T) {
	app := newTestApp(t)

	// Create: 201 with success envelope.
	status, env := app.do(t, http.MethodPost, "/api/items", "p1", map[string]any{"title": "parse config"})
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)
	item := dataMap(t, env)
	assert.Equal(t, "briefings", item["stage"])
	itemID := item["id"].(string)

	// Validation error: 400 with coded error envelope.
	status, env = app.do(t, http.MethodPost, "/api/items", "p1", map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	require.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	// Illegal transition: 409 with allowed targets in details.
	status, env = app.do(t, http.MethodPost, "/api/board/move", "p1",
		map[string]any{"itemId": itemID, "toStage": "done"})
	assert.Equal(t, http.StatusConflict, status)
	require.False(t, env.Success)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	assert.Equal(t, []any{"ready"}, env.Error.Details["allowed"])

	// Unknown item: 404.
	status, env = app.do(t, http.MethodPost, "/api/board/move", "p1",
		map[string]any{"itemId": "itm-nope", "toStage": "ready"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ITEM_NOT_FOUND", env.Error.Code)

	// Missing project header: 400.
	status, env = app.do(t, http.MethodGet, "/api/items", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestClaimFlowStatuses(t *testing.T) {
	app := newTestApp(t)

	_, env := app.do(t, http.MethodPost, "/api/items", "p1", map[string]any{"title": "a"})
	itemID := dataMap(t, env)["id"].(string)
	for _, stage := range []string{"ready", "testing"} {
		status, _ := app.do(t, http.MethodPost, "/api/board/move", "p1",
			map[string]any{"itemId": itemID, "toStage": stage})
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := app.do(t, http.MethodPost, "/api/board/claim", "p1",
		map[string]any{"itemId": itemID, "agent": "murdock"})
	require.Equal(t, http.StatusOK, status)

	// Competing claim: 409 CLAIM_CONFLICT.
	status, env = app.do(t, http.MethodPost, "/api/board/claim", "p1",
		map[string]any{"itemId": itemID, "agent": "lynch"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CLAIM_CONFLICT", env.Error.Code)
	assert.Equal(t, "murdock", env.Error.Details["claimedBy"])

	// Stop by the wrong agent: 403 CLAIM_MISMATCH.
	status, env = app.do(t, http.MethodPost, "/api/agents/stop", "p1",
		map[string]any{"itemId": itemID, "agent": "lynch", "summary": "s"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "CLAIM_MISMATCH", env.Error.Code)

	// Stop by the holder lands the item in review.
	status, env = app.do(t, http.MethodPost, "/api/agents/stop", "p1",
		map[string]any{"itemId": itemID, "agent": "murdock", "summary": "done"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "review", dataMap(t, env)["stage"])
}

func TestCrossProjectIsolation(t *testing.T) {
	app := newTestApp(t)

	_, env := app.do(t, http.MethodPost, "/api/items", "alpha", map[string]any{"title": "alpha item"})
	alphaItem := dataMap(t, env)["id"].(string)

	status, env := app.do(t, http.MethodGet, "/api/items", "beta", nil)
	require.Equal(t, http.StatusOK, status)
	items, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Empty(t, items, "beta must not see alpha's items")

	// Nor can beta act on alpha's item.
	status, env = app.do(t, http.MethodPost, "/api/board/move", "beta",
		map[string]any{"itemId": alphaItem, "toStage": "ready"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ITEM_NOT_FOUND", env.Error.Code)
}

func TestProjectCreateCaseInsensitiveConflict(t *testing.T) {
	app := newTestApp(t)

	status, env := app.do(t, http.MethodPost, "/api/projects", "",
		map[string]any{"id": "Alpha", "name": "Alpha Team"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "alpha", dataMap(t, env)["id"])

	status, env = app.do(t, http.MethodPost, "/api/projects", "",
		map[string]any{"id": "ALPHA", "name": "Other"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = app.do(t, http.MethodPost, "/api/projects", "",
		map[string]any{"id": "not a valid id!"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestStageWIPUpdate(t *testing.T) {
	app := newTestApp(t)

	status, env := app.do(t, http.MethodPatch, "/api/stages/ready", "p1",
		map[string]any{"wipLimit": 2})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), dataMap(t, env)["wipLimit"])

	status, env = app.do(t, http.MethodPatch, "/api/stages/shipping", "p1",
		map[string]any{"wipLimit": 2})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_STAGE", env.Error.Code)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.client.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestEventStream_SnapshotThenEvents(t *testing.T) {
	app := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		app.server.URL+"/api/board/events?projectId=p1", nil)
	require.NoError(t, err)
	resp, err := app.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	readEvent := func() map[string]any {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue // heartbeats and blank separators
			}
			var event map[string]any
			require.NoError(t, json.Unmarshal([]byte(line[len("data: "):]), &event))
			return event
		}
	}

	// Snapshot arrives first.
	first := readEvent()
	assert.Equal(t, "board-updated", first["type"])

	// A write through the API shows up on the stream.
	status, env := app.do(t, http.MethodPost, "/api/items", "p1", map[string]any{"title": "streamed"})
	require.Equal(t, http.StatusCreated, status)
	itemID := dataMap(t, env)["id"].(string)

	second := readEvent()
	assert.Equal(t, "item-added", second["type"])
	data := second["data"].(map[string]any)
	assert.Equal(t, itemID, data["item"].(map[string]any)["id"])

	status, _ = app.do(t, http.MethodPost, "/api/board/move", "p1",
		map[string]any{"itemId": itemID, "toStage": "ready"})
	require.Equal(t, http.StatusOK, status)

	third := readEvent()
	assert.Equal(t, "item-moved", third["type"])
	moveData := third["data"].(map[string]any)
	assert.Equal(t, "briefings", moveData["fromStage"])
	assert.Equal(t, "ready", moveData["toStage"])
}

func TestHookIngestSingleAndBatch(t *testing.T) {
	app := newTestApp(t)

	// Single object form.
	status, env := app.do(t, http.MethodPost, "/api/hooks/events", "p1",
		map[string]any{"eventType": "notification", "agent": "amy"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), dataMap(t, env)["created"])

	// Batch form with a duplicate correlation key.
	batch := []map[string]any{
		{"eventType": "pre_tool_use", "agent": "amy", "correlationId": "c1"},
		{"eventType": "pre_tool_use", "agent": "amy", "correlationId": "c1"},
	}
	status, env = app.do(t, http.MethodPost, "/api/hooks/events", "p1", batch)
	require.Equal(t, http.StatusOK, status)
	result := dataMap(t, env)
	assert.Equal(t, float64(1), result["created"])
	assert.Equal(t, float64(1), result["skipped"])
}

func TestMissionEndpoints(t *testing.T) {
	app := newTestApp(t)

	status, env := app.do(t, http.MethodPost, "/api/missions", "p1",
		map[string]any{"name": "alpha", "prdPath": "docs/prd.md"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "initializing", dataMap(t, env)["state"])

	status, env = app.do(t, http.MethodPost, "/api/missions", "p1",
		map[string]any{"name": "beta"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = app.do(t, http.MethodPost, "/api/missions/precheck", "p1",
		map[string]any{"checks": []map[string]any{{"name": "git", "passed": true}}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "running", dataMap(t, env)["state"])

	status, env = app.do(t, http.MethodGet, "/api/missions/current", "p1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "running", dataMap(t, env)["state"])

	status, env = app.do(t, http.MethodPost, "/api/missions/archive", "p1",
		map[string]any{"complete": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, dataMap(t, env)["complete"])

	status, env = app.do(t, http.MethodGet, "/api/missions/current", "p1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestActivityEndpoints(t *testing.T) {
	app := newTestApp(t)

	status, env := app.do(t, http.MethodPost, "/api/activity", "p1",
		map[string]any{"message": "hello"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "info", dataMap(t, env)["level"])

	for i := 0; i < 3; i++ {
		app.do(t, http.MethodPost, "/api/activity", "p1",
			map[string]any{"message": fmt.Sprintf("entry %d", i), "level": "warn"})
	}

	status, env = app.do(t, http.MethodGet, "/api/activity?limit=2", "p1", nil)
	require.Equal(t, http.StatusOK, status)
	entries, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, entries, 2)
}
