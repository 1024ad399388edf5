package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/scope"
)

// StreamEvents is the server-sent-events endpoint. The project comes from
// ?projectId= (EventSource cannot set headers). On connect the client gets a
// board-updated event carrying the full snapshot, then live events in publish
// order. Heartbeat comments keep intermediaries from timing out; a subscriber
// that falls behind the broker's queue is dropped and the stream ends.
func (s *Server) StreamEvents(c *gin.Context) {
	project, err := scope.NormalizeProjectID(c.Query("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.projects.Ensure(c.Request.Context(), project); err != nil {
		respondError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, apperr.New(apperr.CodeServer, "streaming unsupported"))
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	// Subscribe before the snapshot read so no committed change between the
	// two can be missed; the client may see a change twice, never not at all.
	sub := s.broker.Subscribe(project)
	defer sub.Close()

	snapshot, err := s.board.GetBoardState(c.Request.Context(), project, false)
	if err == nil {
		writeSSE(c.Writer, events.New(events.EventBoardUpdated,
			events.BoardUpdatedPayload{Snapshot: *snapshot}))
		flusher.Flush()
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-sub.Events():
			if !open {
				// Queue overflow; the client should reconnect and resync
				// from a fresh snapshot.
				return
			}
			writeSSE(c.Writer, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
