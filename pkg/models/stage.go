package models

// StageID identifies one of the eight fixed pipeline stages.
type StageID string

// The closed stage set, in canonical order. Stage definitions are
// process-global; WIP limits are the only mutable per-stage field.
const (
	StageBriefings    StageID = "briefings"
	StageReady        StageID = "ready"
	StageTesting      StageID = "testing"
	StageImplementing StageID = "implementing"
	StageProbing      StageID = "probing"
	StageReview       StageID = "review"
	StageDone         StageID = "done"
	StageBlocked      StageID = "blocked"
)

// StageOrder lists all stages in canonical display order.
var StageOrder = []StageID{
	StageBriefings,
	StageReady,
	StageTesting,
	StageImplementing,
	StageProbing,
	StageReview,
	StageDone,
	StageBlocked,
}

// Valid reports whether s is one of the eight fixed stages.
func (s StageID) Valid() bool {
	for _, known := range StageOrder {
		if s == known {
			return true
		}
	}
	return false
}

// StageNames returns the allowed stage identifiers as strings, for
// validation error details.
func StageNames() []string {
	names := make([]string, len(StageOrder))
	for i, s := range StageOrder {
		names[i] = string(s)
	}
	return names
}

// Stage is a pipeline position with an optional WIP limit (nil = unlimited).
type Stage struct {
	ID       StageID `json:"id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	WIPLimit *int    `json:"wipLimit"`
}

// StageSummary is a Stage plus its current item count, used in board snapshots.
type StageSummary struct {
	Stage
	ItemCount int `json:"itemCount"`
}
