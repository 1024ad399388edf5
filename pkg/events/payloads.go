package events

import (
	"encoding/json"

	"github.com/ateamhq/warroom/pkg/models"
)

// Typed payloads for the event kinds. The HTTP layer serializes these as the
// "data" member of the wire event.

// ItemAddedPayload accompanies item-added.
type ItemAddedPayload struct {
	Item models.Item `json:"item"`
}

// ItemMovedPayload accompanies item-moved.
type ItemMovedPayload struct {
	ItemID    string         `json:"itemId"`
	FromStage models.StageID `json:"fromStage"`
	ToStage   models.StageID `json:"toStage"`
	Item      models.Item    `json:"item"`
}

// ItemUpdatedPayload accompanies item-updated.
type ItemUpdatedPayload struct {
	Item models.Item `json:"item"`
}

// ItemDeletedPayload accompanies item-deleted. Items leave the board only
// through mission archival (soft delete).
type ItemDeletedPayload struct {
	ItemID string `json:"itemId"`
}

// BoardUpdatedPayload accompanies board-updated. Snapshot is the full board
// state; emitted on connect and after changes that are wider than one item
// (WIP limit edits, readiness cascades, archival).
type BoardUpdatedPayload struct {
	Snapshot models.BoardSnapshot `json:"snapshot"`
}

// ActivityEntryAddedPayload accompanies activity-entry-added.
type ActivityEntryAddedPayload struct {
	Entry models.ActivityEntry `json:"entry"`
}

// MissionCompletedPayload accompanies mission-completed.
type MissionCompletedPayload struct {
	Mission models.Mission `json:"mission"`
}

// MissionSubstatePayload accompanies the final-review-*, post-check*, and
// documentation-* kinds. The record is persisted and forwarded verbatim.
type MissionSubstatePayload struct {
	MissionID string          `json:"missionId"`
	Record    json.RawMessage `json:"record,omitempty"`
}

// HookEventPayload accompanies hook-event. Batch submissions publish one
// event carrying every stored row.
type HookEventPayload struct {
	Events []models.HookEvent `json:"events"`
}
