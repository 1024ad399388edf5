package models

import "time"

// HookEventType is the fixed enum of agent tool-use telemetry events.
type HookEventType string

const (
	HookPreToolUse        HookEventType = "pre_tool_use"
	HookPostToolUse       HookEventType = "post_tool_use"
	HookPostToolUseFailed HookEventType = "post_tool_use_failed"
	HookNotification      HookEventType = "notification"
	HookStop              HookEventType = "stop"
	HookSubagentStop      HookEventType = "subagent_stop"
)

// HookEventTypes lists the allowed hook event types.
var HookEventTypes = []HookEventType{
	HookPreToolUse,
	HookPostToolUse,
	HookPostToolUseFailed,
	HookNotification,
	HookStop,
	HookSubagentStop,
}

// Valid reports whether t is a known hook event type.
func (t HookEventType) Valid() bool {
	for _, known := range HookEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// HookEventTypeNames returns the allowed hook event types as strings, for
// validation error details.
func HookEventTypeNames() []string {
	names := make([]string, len(HookEventTypes))
	for i, t := range HookEventTypes {
		names[i] = string(t)
	}
	return names
}

// HookEvent is one row of project-scoped agent telemetry. Events with the
// same {correlationId, eventType} within a project are stored at most once.
// DurationMs is derived read-side by pairing post_tool_use (or the failure
// variant) with the matching pre_tool_use on correlation id; it is never
// stored on the row.
type HookEvent struct {
	ID            int64         `json:"id"`
	ProjectID     string        `json:"projectId"`
	EventType     HookEventType `json:"eventType"`
	Agent         string        `json:"agent"`
	Tool          *string       `json:"tool,omitempty"`
	Status        string        `json:"status"`
	Summary       string        `json:"summary"`
	CorrelationID *string       `json:"correlationId,omitempty"`
	MissionID     *string       `json:"missionId,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	DurationMs    *int64        `json:"durationMs,omitempty"`
}

// HookIngestResult reports how a batch submission was handled.
type HookIngestResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}
