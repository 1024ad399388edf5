package api

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/hooks"
)

// IngestHookEvents accepts a single event or an array of events.
func (s *Server) IngestHookEvents(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apperr.Newf(apperr.CodeValidation, "failed to read request body: %v", err))
		return
	}

	var batch []hooks.Submission
	if err := json.Unmarshal(body, &batch); err != nil {
		var single hooks.Submission
		if err := json.Unmarshal(body, &single); err != nil {
			respondError(c, apperr.Newf(apperr.CodeValidation, "invalid request body: %v", err))
			return
		}
		batch = []hooks.Submission{single}
	}

	result, err := s.hooks.Ingest(c.Request.Context(), projectID(c), batch)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

type pruneRequest struct {
	OlderThan time.Time `json:"olderThan"`
}

// PruneHookEvents deletes events older than the cutoff, sparing the current
// mission's.
func (s *Server) PruneHookEvents(c *gin.Context) {
	var req pruneRequest
	if !bindJSON(c, &req) {
		return
	}
	pruned, err := s.hooks.Prune(c.Request.Context(), projectID(c), req.OlderThan)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"pruned": pruned})
}

// ListHookEvents returns telemetry newest first, with tool-use durations
// paired in.
func (s *Server) ListHookEvents(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	evts, err := s.hooks.List(c.Request.Context(), projectID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, evts)
}
