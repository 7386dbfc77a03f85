package models

// Metric selects the figure shown in the compact status line.
type Metric string

const (
	// MetricClaudeFiveHour is the Claude five-hour window.
	MetricClaudeFiveHour Metric = "claude_5hour"
	// MetricClaudeWeeklyAll is the Claude weekly window across all models.
	MetricClaudeWeeklyAll Metric = "claude_weekly_all"
	// MetricClaudeWeeklyModel is the Claude weekly window for the premium model.
	MetricClaudeWeeklyModel Metric = "claude_weekly_sonnet"
	// MetricCopilotPremium is the Copilot premium request allowance.
	MetricCopilotPremium Metric = "copilot_premium"
)

// DefaultMetric is used when nothing was selected yet.
const DefaultMetric = MetricClaudeFiveHour

// AllMetrics lists the metrics in display order.
var AllMetrics = []Metric{
	MetricClaudeFiveHour,
	MetricClaudeWeeklyAll,
	MetricClaudeWeeklyModel,
	MetricCopilotPremium,
}

// ParseMetric returns the metric named s, or DefaultMetric when s is unknown.
func ParseMetric(s string) Metric {
	for _, m := range AllMetrics {
		if string(m) == s {
			return m
		}
	}
	return DefaultMetric
}

// DisplayName returns the long label of the metric.
func (m Metric) DisplayName() string {
	switch m {
	case MetricClaudeFiveHour:
		return "Claude 5-Hour Window"
	case MetricClaudeWeeklyAll:
		return "Claude Weekly (All Models)"
	case MetricClaudeWeeklyModel:
		return "Claude Weekly (Sonnet)"
	case MetricCopilotPremium:
		return "Copilot Premium Requests"
	default:
		return string(m)
	}
}

// ShortName returns the compact label of the metric.
func (m Metric) ShortName() string {
	switch m {
	case MetricClaudeFiveHour:
		return "5h"
	case MetricClaudeWeeklyAll:
		return "7d"
	case MetricClaudeWeeklyModel:
		return "7d-S"
	case MetricCopilotPremium:
		return "CP"
	default:
		return "?"
	}
}

// Provider returns the provider the metric belongs to.
func (m Metric) Provider() Provider {
	if m == MetricCopilotPremium {
		return ProviderCopilot
	}
	return ProviderClaude
}

// Next returns the metric after m in display order, wrapping around.
func (m Metric) Next() Metric {
	for i, candidate := range AllMetrics {
		if candidate == m {
			return AllMetrics[(i+1)%len(AllMetrics)]
		}
	}
	return DefaultMetric
}

// Percent extracts the metric's utilization from the loaded usage values.
// ok is false when the owning provider has no usage loaded.
func (m Metric) Percent(claude *ClaudeUsage, copilot *CopilotUsage) (percent float64, ok bool) {
	switch m {
	case MetricClaudeFiveHour:
		if claude == nil {
			return 0, false
		}
		return claude.FiveHour.Percent, true
	case MetricClaudeWeeklyAll:
		if claude == nil {
			return 0, false
		}
		return claude.WeeklyAll.Percent, true
	case MetricClaudeWeeklyModel:
		if claude == nil {
			return 0, false
		}
		return claude.WeeklyModel.Percent, true
	case MetricCopilotPremium:
		if copilot == nil {
			return 0, false
		}
		return copilot.Percent, true
	default:
		return 0, false
	}
}
