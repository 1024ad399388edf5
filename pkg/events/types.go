// Package events provides live event delivery to board subscribers.
//
// One topic exists per project. Each subscriber owns a bounded FIFO queue;
// publishers enqueue without blocking and the broker drops any subscriber
// whose queue is full (the drop-slow-subscriber policy). Events are
// live-only: a subscriber that connects late receives a snapshot from the
// HTTP layer, not a replay.
package events

import "time"

// Event kinds published on a project topic.
const (
	EventItemAdded   = "item-added"
	EventItemMoved   = "item-moved"
	EventItemUpdated = "item-updated"
	EventItemDeleted = "item-deleted"

	EventBoardUpdated = "board-updated"

	EventActivityEntryAdded = "activity-entry-added"

	EventMissionCompleted      = "mission-completed"
	EventFinalReviewStarted    = "final-review-started"
	EventFinalReviewComplete   = "final-review-complete"
	EventPostChecksStarted     = "post-checks-started"
	EventPostCheckUpdate       = "post-check-update"
	EventPostChecksComplete    = "post-checks-complete"
	EventDocumentationStarted  = "documentation-started"
	EventDocumentationComplete = "documentation-complete"

	EventHookEvent = "hook-event"
)

// Event is one record on a project topic. Timestamp marshals as RFC 3339,
// matching the wire contract.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// New builds an event stamped with the current time.
func New(eventType string, data any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
