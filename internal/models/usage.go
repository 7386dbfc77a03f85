package models

import (
	"fmt"
	"time"
)

// UsageBucket is one quota window with its utilization and reset time.
type UsageBucket struct {
	ResetAt *time.Time `json:"resetAt,omitempty"`
	Percent float64    `json:"percent"`
}

// TimeRemaining formats the time left until the bucket resets.
func (b UsageBucket) TimeRemaining(now time.Time) string {
	if b.ResetAt == nil {
		return "--"
	}

	seconds := int(b.ResetAt.Sub(now).Seconds())
	if seconds <= 0 {
		return "now"
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// ClaudeUsage holds the three Claude subscription windows.
type ClaudeUsage struct {
	FiveHour    UsageBucket `json:"fiveHour"`
	WeeklyAll   UsageBucket `json:"weeklyAll"`
	WeeklyModel UsageBucket `json:"weeklyModel"`
}

// MaxPercent returns the highest utilization across the three windows.
func (u ClaudeUsage) MaxPercent() float64 {
	return max(u.FiveHour.Percent, u.WeeklyAll.Percent, u.WeeklyModel.Percent)
}

// ModelCount is the premium request count attributed to one model.
type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

// CopilotUsage holds the monthly premium request consumption.
type CopilotUsage struct {
	ByModel []ModelCount `json:"byModel"`
	Used    int          `json:"used"`
	// Limit is the inferred plan allowance; 0 means unknown.
	Limit   int     `json:"limit"`
	Percent float64 `json:"percent"`
}

// Remaining returns the requests left in the allowance, never negative.
func (u CopilotUsage) Remaining() int {
	if u.Limit <= u.Used {
		return 0
	}
	return u.Limit - u.Used
}
