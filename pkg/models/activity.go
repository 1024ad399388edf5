package models

import "time"

// ActivityLevel is the severity of an activity entry.
type ActivityLevel string

const (
	ActivityInfo  ActivityLevel = "info"
	ActivityWarn  ActivityLevel = "warn"
	ActivityError ActivityLevel = "error"
)

// ActivityLevels lists the allowed activity levels.
var ActivityLevels = []ActivityLevel{ActivityInfo, ActivityWarn, ActivityError}

// Valid reports whether l is a known activity level.
func (l ActivityLevel) Valid() bool {
	for _, known := range ActivityLevels {
		if l == known {
			return true
		}
	}
	return false
}

// ActivityLevelNames returns the allowed levels as strings, for validation
// error details.
func ActivityLevelNames() []string {
	names := make([]string, len(ActivityLevels))
	for i, l := range ActivityLevels {
		names[i] = string(l)
	}
	return names
}

// ActivityEntry is one row of the project-scoped, append-only activity feed.
type ActivityEntry struct {
	ID        int64         `json:"id"`
	ProjectID string        `json:"projectId"`
	MissionID *string       `json:"missionId"`
	Agent     *string       `json:"agent"`
	Message   string        `json:"message"`
	Level     ActivityLevel `json:"level"`
	CreatedAt time.Time     `json:"createdAt"`
}
