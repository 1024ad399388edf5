package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/claims"
)

type agentStartRequest struct {
	ItemID string `json:"itemId"`
	Agent  string `json:"agent"`
	TaskID string `json:"task_id"`
}

// AgentStart claims the item for the agent and records a started work log
// entry.
func (s *Server) AgentStart(c *gin.Context) {
	var req agentStartRequest
	if !bindJSON(c, &req) {
		return
	}
	claim, err := s.claims.Start(c.Request.Context(), projectID(c), req.ItemID, req.Agent, req.TaskID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, claim)
}

type agentStopRequest struct {
	ItemID  string `json:"itemId"`
	Agent   string `json:"agent"`
	Summary string `json:"summary"`
	Outcome string `json:"outcome"`
}

// AgentStop verifies custody, logs the summary, releases the claim, and
// moves the item to review (default) or blocked.
func (s *Server) AgentStop(c *gin.Context) {
	var req agentStopRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := s.claims.Stop(c.Request.Context(), projectID(c), req.ItemID, req.Agent,
		req.Summary, claims.StopOutcome(req.Outcome))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, item)
}
