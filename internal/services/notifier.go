package services

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
)

// resetDrop is how many percentage points utilization has to fall between
// two updates to count as a quota reset.
const resetDrop = 20.0

// notifyFunc shows a desktop notification. Tests replace it.
var notifyFunc = func(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Notifier raises desktop notifications when a metric crosses the critical
// threshold upwards or drops sharply after a reset.
type Notifier struct {
	previous  map[models.Metric]float64
	threshold float64
	enabled   bool
	mu        sync.Mutex
}

// NewNotifier creates a notifier for threshold, in percent.
func NewNotifier(threshold float64, enabled bool) *Notifier {
	return &Notifier{
		previous:  make(map[models.Metric]float64),
		threshold: threshold,
		enabled:   enabled,
	}
}

// ObserveClaude records the three Claude windows.
func (n *Notifier) ObserveClaude(u models.ClaudeUsage) {
	for _, metric := range []models.Metric{
		models.MetricClaudeFiveHour,
		models.MetricClaudeWeeklyAll,
		models.MetricClaudeWeeklyModel,
	} {
		percent, _ := metric.Percent(&u, nil)
		n.Observe(metric, percent)
	}
}

// ObserveCopilot records the Copilot premium request utilization.
func (n *Notifier) ObserveCopilot(u models.CopilotUsage) {
	n.Observe(models.MetricCopilotPremium, u.Percent)
}

// Observe records percent for metric and notifies on a transition. The
// first value seen for a metric only sets the baseline.
func (n *Notifier) Observe(metric models.Metric, percent float64) {
	n.mu.Lock()
	old, exists := n.previous[metric]
	n.previous[metric] = percent
	n.mu.Unlock()

	if !exists || !n.enabled {
		return
	}

	// Only notify if we crossed the threshold upwards
	if percent >= n.threshold && old < n.threshold {
		title := fmt.Sprintf("Critical Quota: %s", metric.DisplayName())
		body := fmt.Sprintf("Usage reached %.0f%% (alert threshold %.0f%%)", percent, n.threshold)
		n.notify(title, body)
	}

	if old-percent > resetDrop {
		title := fmt.Sprintf("Quota Reset: %s", metric.DisplayName())
		n.notify(title, "Your quota has been refreshed.")
	}
}

// Forget drops the baselines of provider's metrics, so reconnecting does
// not look like a reset.
func (n *Notifier) Forget(provider models.Provider) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for metric := range n.previous {
		if metric.Provider() == provider {
			delete(n.previous, metric)
		}
	}
}

func (n *Notifier) notify(title, body string) {
	if err := notifyFunc(title, body); err != nil {
		logger.Warn("failed to show notification", "title", title, "error", err)
	}
}
