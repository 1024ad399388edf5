package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/missions"
	"github.com/ateamhq/warroom/pkg/models"
)

// ListMissions returns the project's missions, newest first.
func (s *Server) ListMissions(c *gin.Context) {
	list, err := s.missions.List(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// CreateMission starts a new mission; force archives the incumbent.
func (s *Server) CreateMission(c *gin.Context) {
	var req missions.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	mission, err := s.missions.Create(c.Request.Context(), projectID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, mission)
}

// CurrentMission returns the non-archived mission, 404 when none.
func (s *Server) CurrentMission(c *gin.Context) {
	mission, err := s.missions.Current(c.Request.Context(), projectID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, mission)
}

type checkReportRequest struct {
	Checks []models.CheckResult `json:"checks"`
}

// Precheck runs mission_init with the reported check results.
func (s *Server) Precheck(c *gin.Context) {
	var req checkReportRequest
	if !bindJSON(c, &req) {
		return
	}
	mission, err := s.missions.Precheck(c.Request.Context(), projectID(c), req.Checks)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, mission)
}

// Postcheck closes out a running mission with the reported check results.
func (s *Server) Postcheck(c *gin.Context) {
	var req checkReportRequest
	if !bindJSON(c, &req) {
		return
	}
	mission, err := s.missions.Postcheck(c.Request.Context(), projectID(c), req.Checks)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, mission)
}

// ArchiveMission soft-deletes the current mission and its items.
func (s *Server) ArchiveMission(c *gin.Context) {
	var req missions.ArchiveRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := s.missions.Archive(c.Request.Context(), projectID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

type substateRequest struct {
	Kind   string          `json:"kind"`
	Phase  string          `json:"phase"`
	Record json.RawMessage `json:"record"`
}

// UpdateMissionSubstate persists a completion-panel sub-record and publishes
// the matching sequence event.
func (s *Server) UpdateMissionSubstate(c *gin.Context) {
	var req substateRequest
	if !bindJSON(c, &req) {
		return
	}
	mission, err := s.missions.UpdateSubstate(c.Request.Context(), projectID(c),
		missions.SubstateKind(req.Kind), missions.SubstatePhase(req.Phase), req.Record)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, mission)
}
