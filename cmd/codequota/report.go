package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

// report is the status command output.
type report struct {
	Metric  metricReport   `json:"metric"`
	Claude  providerReport `json:"claude"`
	Copilot providerReport `json:"copilot"`
}

type metricReport struct {
	Percent *float64 `json:"percent,omitempty"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Short   string   `json:"short"`
}

type providerReport struct {
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Usage       any        `json:"usage,omitempty"`
	claude      *models.ClaudeUsage
	copilot     *models.CopilotUsage
	Username    string `json:"username,omitempty"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	Updated     string `json:"updated"`
	Connected   bool   `json:"connected"`
}

func buildReport(state services.State, now time.Time) report {
	r := report{
		Claude:  snapshotReport(state.ClaudeAuth, state.Claude, now),
		Copilot: snapshotReport(state.CopilotAuth, state.Copilot, now),
		Metric: metricReport{
			ID:    string(state.Metric),
			Name:  state.Metric.DisplayName(),
			Short: state.Metric.ShortName(),
		},
	}

	if state.Claude.State.IsLoaded() {
		usage := state.Claude.State.Usage
		r.Claude.claude = &usage
		r.Claude.Usage = usage
	}
	if state.Copilot.State.IsLoaded() {
		usage := state.Copilot.State.Usage
		r.Copilot.copilot = &usage
		r.Copilot.Usage = usage
	}

	if percent, ok := state.Metric.Percent(r.Claude.claude, r.Copilot.copilot); ok {
		r.Metric.Percent = &percent
	}

	return r
}

func snapshotReport[T any](auth models.AuthStatus, snap models.Snapshot[T], now time.Time) providerReport {
	r := providerReport{
		Connected: auth.Connected,
		Username:  auth.Username,
		State:     snap.State.Kind.String(),
		Error:     snap.State.Message,
		Updated:   "never",
	}
	if !snap.LastUpdated.IsZero() {
		updated := snap.LastUpdated
		r.LastUpdated = &updated
		r.Updated = formatAgo(updated, now)
	}
	return r
}

func formatAgo(t, now time.Time) string {
	elapsed := now.Sub(t).Round(time.Second)
	if elapsed < 5*time.Second {
		return "just now"
	}
	return elapsed.String() + " ago"
}

func writeJSONReport(w io.Writer, r report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeTextReport(w io.Writer, r report) error {
	var b strings.Builder
	now := time.Now()

	b.WriteString("Claude")
	writeAccount(&b, r.Claude)
	switch {
	case r.Claude.claude != nil:
		usage := r.Claude.claude
		writeBucket(&b, "5-hour", usage.FiveHour, now)
		writeBucket(&b, "weekly", usage.WeeklyAll, now)
		writeBucket(&b, "weekly sonnet", usage.WeeklyModel, now)
	default:
		writeState(&b, r.Claude)
	}

	b.WriteString("\nCopilot")
	writeAccount(&b, r.Copilot)
	switch {
	case r.Copilot.copilot != nil:
		usage := r.Copilot.copilot
		if usage.Limit > 0 {
			fmt.Fprintf(&b, "  %-14s %5.1f%%  %d / %d requests\n", "premium", usage.Percent, usage.Used, usage.Limit)
		} else {
			fmt.Fprintf(&b, "  %-14s %d requests, limit unknown\n", "premium", usage.Used)
		}
		for _, mc := range usage.ByModel {
			fmt.Fprintf(&b, "    %-24s %d\n", mc.Model, mc.Count)
		}
	default:
		writeState(&b, r.Copilot)
	}

	fmt.Fprintf(&b, "\nMenu bar: %s", r.Metric.Name)
	if r.Metric.Percent != nil {
		fmt.Fprintf(&b, " (%s %.0f%%)", r.Metric.Short, *r.Metric.Percent)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeAccount(b *strings.Builder, r providerReport) {
	if r.Username != "" {
		fmt.Fprintf(b, " (%s)", r.Username)
	}
	if r.Connected {
		fmt.Fprintf(b, ", updated %s", r.Updated)
	}
	b.WriteString("\n")
}

func writeBucket(b *strings.Builder, label string, bucket models.UsageBucket, now time.Time) {
	fmt.Fprintf(b, "  %-14s %5.1f%%  resets in %s\n", label, bucket.Percent, bucket.TimeRemaining(now))
}

func writeState(b *strings.Builder, r providerReport) {
	switch {
	case !r.Connected:
		b.WriteString("  not connected\n")
	case r.Error != "":
		fmt.Fprintf(b, "  error: %s\n", r.Error)
	default:
		fmt.Fprintf(b, "  %s\n", r.State)
	}
}
