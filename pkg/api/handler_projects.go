package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/models"
)

// ListProjects returns all projects. No project header required.
func (s *Server) ListProjects(c *gin.Context) {
	list, err := s.projects.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

type createProjectRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateProject registers a project explicitly.
func (s *Server) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := s.projects.Create(c.Request.Context(), req.ID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, project)
}

// UpdateStage sets or clears a stage's WIP limit.
func (s *Server) UpdateStage(c *gin.Context) {
	var req struct {
		WIPLimit *int `json:"wipLimit"`
	}
	if !bindJSON(c, &req) {
		return
	}
	stage, err := s.board.UpdateStageWIP(c.Request.Context(), projectID(c),
		models.StageID(c.Param("stageId")), req.WIPLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stage)
}
