package models

import "time"

// ItemType classifies a work item.
type ItemType string

const (
	ItemTypeFeature     ItemType = "feature"
	ItemTypeBug         ItemType = "bug"
	ItemTypeEnhancement ItemType = "enhancement"
	ItemTypeTask        ItemType = "task"
)

// ItemTypes lists the allowed item types.
var ItemTypes = []ItemType{ItemTypeFeature, ItemTypeBug, ItemTypeEnhancement, ItemTypeTask}

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	for _, known := range ItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Priority ranks a work item.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists the allowed priorities.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// Outputs holds the file paths an item produces. Two items in the same
// project may not share a non-nil output path unless directly dependent.
type Outputs struct {
	Test  *string `json:"test,omitempty"`
	Impl  *string `json:"impl,omitempty"`
	Types *string `json:"types,omitempty"`
}

// Paths returns the non-nil output paths keyed by output kind.
func (o Outputs) Paths() map[string]string {
	paths := make(map[string]string, 3)
	if o.Test != nil {
		paths["test"] = *o.Test
	}
	if o.Impl != nil {
		paths["impl"] = *o.Impl
	}
	if o.Types != nil {
		paths["types"] = *o.Types
	}
	return paths
}

// Item is a unit of work flowing through the pipeline. Belongs to exactly
// one project.
type Item struct {
	ProjectID      string     `json:"projectId"`
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Type           ItemType   `json:"type"`
	Priority       Priority   `json:"priority"`
	StageID        StageID    `json:"stage"`
	AssignedAgent  *string    `json:"assignedAgent"`
	RejectionCount int        `json:"rejectionCount"`
	Outputs        Outputs    `json:"outputs"`
	Dependencies   []string   `json:"dependencies,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt"`
	ArchivedAt     *time.Time `json:"archivedAt"`
}

// BlockedItem is an item with unmet dependencies, as reported by readiness.
type BlockedItem struct {
	ItemID     string   `json:"itemId"`
	UnmetCount int      `json:"unmetCount"`
	UnmetDeps  []string `json:"unmetDeps"`
}

// ReadinessReport partitions briefings items into ready and blocked sets.
type ReadinessReport struct {
	Ready   []Item        `json:"ready"`
	Blocked []BlockedItem `json:"blocked"`
}

// WorkLogAction classifies a work log entry.
type WorkLogAction string

const (
	WorkLogStarted   WorkLogAction = "started"
	WorkLogCompleted WorkLogAction = "completed"
	WorkLogRejected  WorkLogAction = "rejected"
	WorkLogNote      WorkLogAction = "note"
)

// WorkLogEntry is an append-only per-item record of agent activity.
type WorkLogEntry struct {
	ID        int64         `json:"id"`
	ProjectID string        `json:"projectId"`
	ItemID    string        `json:"itemId"`
	Agent     string        `json:"agent"`
	Action    WorkLogAction `json:"action"`
	Summary   string        `json:"summary"`
	CreatedAt time.Time     `json:"createdAt"`
}
