package models

import "time"

// Project is the namespace every other entity belongs to. Identifiers are
// URL-safe and normalized to lowercase.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AgentClaim binds one agent to one item. At any instant an agent holds at
// most one claim and an item is claimed by at most one agent.
type AgentClaim struct {
	ProjectID string    `json:"projectId"`
	ItemID    string    `json:"itemId"`
	Agent     string    `json:"agent"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// BoardSnapshot is the full state returned by GET /api/board.
type BoardSnapshot struct {
	Stages         []StageSummary `json:"stages"`
	Items          []Item         `json:"items"`
	Claims         []AgentClaim   `json:"claims"`
	CurrentMission *Mission       `json:"currentMission"`
}
