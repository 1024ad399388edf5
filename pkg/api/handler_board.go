package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/models"
)

// GetBoard returns the full snapshot. ?includeCompleted=true adds archived
// items.
func (s *Server) GetBoard(c *gin.Context) {
	includeCompleted := c.Query("includeCompleted") == "true"
	snapshot, err := s.board.GetBoardState(c.Request.Context(), projectID(c), includeCompleted)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, snapshot)
}

// GetReadiness reports which briefings items could be promoted and which
// items wait on unmet dependencies.
func (s *Server) GetReadiness(c *gin.Context) {
	report, err := s.board.Readiness(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

type moveRequest struct {
	ItemID  string `json:"itemId"`
	ToStage string `json:"toStage"`
	Force   bool   `json:"force"`
	Agent   string `json:"agent"`
}

// MoveItem transitions an item between stages.
func (s *Server) MoveItem(c *gin.Context) {
	var req moveRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := s.board.MoveItem(c.Request.Context(), projectID(c), req.ItemID, board.MoveRequest{
		ToStage:     models.StageID(req.ToStage),
		Force:       req.Force,
		ActingAgent: req.Agent,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, item)
}

type claimRequest struct {
	ItemID string `json:"itemId"`
	Agent  string `json:"agent"`
}

// ClaimItem acquires exclusive custody of an item for an agent.
func (s *Server) ClaimItem(c *gin.Context) {
	var req claimRequest
	if !bindJSON(c, &req) {
		return
	}
	claim, err := s.claims.Claim(c.Request.Context(), projectID(c), req.ItemID, req.Agent)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, claim)
}

type releaseRequest struct {
	ItemID string `json:"itemId"`
}

// ReleaseItem drops any claim on an item. Idempotent.
func (s *Server) ReleaseItem(c *gin.Context) {
	var req releaseRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.claims.Release(c.Request.Context(), projectID(c), req.ItemID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"released": true})
}
