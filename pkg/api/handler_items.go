package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/board"
)

// ListItems returns the project's non-archived items.
func (s *Server) ListItems(c *gin.Context) {
	items, err := s.board.ListItems(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, items)
}

// CreateItem creates an item in briefings.
func (s *Server) CreateItem(c *gin.Context) {
	var req board.CreateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := s.board.CreateItem(c.Request.Context(), projectID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, item)
}

// UpdateItem applies a partial update.
func (s *Server) UpdateItem(c *gin.Context) {
	var req board.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := s.board.UpdateItem(c.Request.Context(), projectID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, item)
}

type rejectRequest struct {
	Reason string `json:"reason"`
	Agent  string `json:"agent"`
}

// RejectItem sends a reviewed item back to implementing.
func (s *Server) RejectItem(c *gin.Context) {
	var req rejectRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := s.board.RejectItem(c.Request.Context(), projectID(c), c.Param("id"), req.Reason, req.Agent)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, item)
}

// GetWorkLog returns the item's work log, oldest first.
func (s *Server) GetWorkLog(c *gin.Context) {
	entries, err := s.board.ListWorkLog(c.Request.Context(), projectID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}
