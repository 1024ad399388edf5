package models

import (
	"encoding/json"
	"time"
)

// MissionState is a mission lifecycle state. archived is absorbing.
type MissionState string

const (
	MissionInitializing MissionState = "initializing"
	MissionPrechecking  MissionState = "prechecking"
	MissionRunning      MissionState = "running"
	MissionPostchecking MissionState = "postchecking"
	MissionCompleted    MissionState = "completed"
	MissionFailed       MissionState = "failed"
	MissionArchived     MissionState = "archived"
)

// MissionStates lists the allowed mission states.
var MissionStates = []MissionState{
	MissionInitializing,
	MissionPrechecking,
	MissionRunning,
	MissionPostchecking,
	MissionCompleted,
	MissionFailed,
	MissionArchived,
}

// Valid reports whether s is a known mission state.
func (s MissionState) Valid() bool {
	for _, known := range MissionStates {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions other than archival.
func (s MissionState) Terminal() bool {
	return s == MissionArchived
}

// CheckResult is the outcome of a single pre- or postcheck command.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
}

// CheckRun aggregates the results of one precheck or postcheck pass.
type CheckRun struct {
	Passed  bool          `json:"passed"`
	Checks  []CheckResult `json:"checks,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
	RanAt   time.Time     `json:"ranAt"`
}

// Mission is the top-level unit of work for a project: a named batch of
// items with a lifecycle. The finalReview/postChecks/documentation
// sub-records drive the viewer's completion panel and are persisted
// verbatim; the core does not interpret them beyond event emission.
type Mission struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"projectId"`
	Name            string          `json:"name"`
	PRDPath         string          `json:"prdPath"`
	State           MissionState    `json:"state"`
	StartedAt       *time.Time      `json:"startedAt"`
	CompletedAt     *time.Time      `json:"completedAt"`
	ArchivedAt      *time.Time      `json:"archivedAt"`
	PrecheckResult  *CheckRun       `json:"precheckResult,omitempty"`
	PostcheckResult *CheckRun       `json:"postcheckResult,omitempty"`
	FinalReview     json.RawMessage `json:"finalReview,omitempty"`
	PostChecks      json.RawMessage `json:"postChecks,omitempty"`
	Documentation   json.RawMessage `json:"documentation,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ArchiveResult reports what a mission archive did (or would do, for dry runs).
type ArchiveResult struct {
	MissionID     string   `json:"missionId"`
	ArchivedItems []string `json:"archivedItems"`
	Complete      bool     `json:"complete"`
	DryRun        bool     `json:"dryRun,omitempty"`
	AlreadyDone   bool     `json:"alreadyArchived,omitempty"`
}
