package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/activity"
)

// ListActivity returns the feed, newest first. ?missionId= filters; without
// it the current mission's entries are returned when a mission is active.
func (s *Server) ListActivity(c *gin.Context) {
	var req activity.ListRequest
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Limit = n
		}
	}
	if v := c.Query("missionId"); v != "" {
		req.MissionID = &v
	}

	entries, err := s.activity.List(c.Request.Context(), projectID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}

// LogActivity appends one entry.
func (s *Server) LogActivity(c *gin.Context) {
	var req activity.LogRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := s.activity.Log(c.Request.Context(), projectID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, entry)
}
