package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func loadedState() services.State {
	reset := testNow.Add(90 * time.Minute)
	return services.State{
		ClaudeAuth:  models.AuthStatus{Provider: models.ProviderClaude, Connected: true},
		CopilotAuth: models.AuthStatus{Provider: models.ProviderCopilot, Connected: true, Username: "octocat"},
		Claude: models.Snapshot[models.ClaudeUsage]{
			Provider:    models.ProviderClaude,
			LastUpdated: testNow.Add(-2 * time.Minute),
			State: models.Loaded(models.ClaudeUsage{
				FiveHour:    models.UsageBucket{Percent: 42, ResetAt: &reset},
				WeeklyAll:   models.UsageBucket{Percent: 10},
				WeeklyModel: models.UsageBucket{Percent: 5},
			}),
		},
		Copilot: models.Snapshot[models.CopilotUsage]{
			Provider:    models.ProviderCopilot,
			LastUpdated: testNow,
			State: models.Loaded(models.CopilotUsage{
				Used:    30,
				Limit:   300,
				Percent: 10,
				ByModel: []models.ModelCount{{Model: "gpt-4.1", Count: 30}},
			}),
		},
		Metric: models.MetricClaudeFiveHour,
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input   string
		want    models.Provider
		wantErr bool
	}{
		{input: "claude", want: models.ProviderClaude},
		{input: " Claude ", want: models.ProviderClaude},
		{input: "anthropic", want: models.ProviderClaude},
		{input: "github", want: models.ProviderCopilot},
		{input: "COPILOT", want: models.ProviderCopilot},
		{input: "gemini", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseProvider(tt.input)
			if tt.wantErr {
				if !errors.Is(err, services.ErrUnknownProvider) {
					t.Errorf("error = %v, want ErrUnknownProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseProvider(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildReport(t *testing.T) {
	r := buildReport(loadedState(), testNow)

	if !r.Claude.Connected || r.Claude.State != "loaded" {
		t.Errorf("claude = %+v", r.Claude)
	}
	if r.Claude.Updated != "2m0s ago" {
		t.Errorf("claude updated = %q", r.Claude.Updated)
	}
	if r.Copilot.Updated != "just now" || r.Copilot.Username != "octocat" {
		t.Errorf("copilot = %+v", r.Copilot)
	}
	if r.Metric.Percent == nil || *r.Metric.Percent != 42 {
		t.Errorf("metric percent = %v, want 42", r.Metric.Percent)
	}
	if r.Metric.Short != "5h" {
		t.Errorf("metric short = %q", r.Metric.Short)
	}
}

func TestBuildReport_NotConnected(t *testing.T) {
	state := services.State{
		Claude:  models.Snapshot[models.ClaudeUsage]{State: models.NotConnected[models.ClaudeUsage]()},
		Copilot: models.Snapshot[models.CopilotUsage]{State: models.Failed[models.CopilotUsage]("token expired")},
		Metric:  models.MetricCopilotPremium,
	}

	r := buildReport(state, testNow)
	if r.Claude.Updated != "never" || r.Claude.Usage != nil {
		t.Errorf("claude = %+v", r.Claude)
	}
	if r.Copilot.Error != "token expired" {
		t.Errorf("copilot error = %q", r.Copilot.Error)
	}
	if r.Metric.Percent != nil {
		t.Error("metric percent should be absent without usage")
	}
}

func TestWriteJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := writeJSONReport(&buf, buildReport(loadedState(), testNow)); err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Claude struct {
			Usage struct {
				FiveHour struct {
					Percent float64 `json:"percent"`
				} `json:"fiveHour"`
			} `json:"usage"`
			Connected bool `json:"connected"`
		} `json:"claude"`
		Copilot struct {
			Usage struct {
				Used int `json:"used"`
			} `json:"usage"`
		} `json:"copilot"`
		Metric struct {
			ID string `json:"id"`
		} `json:"metric"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if !decoded.Claude.Connected || decoded.Claude.Usage.FiveHour.Percent != 42 {
		t.Errorf("claude = %+v", decoded.Claude)
	}
	if decoded.Copilot.Usage.Used != 30 {
		t.Errorf("copilot used = %d", decoded.Copilot.Usage.Used)
	}
	if decoded.Metric.ID != "claude_5hour" {
		t.Errorf("metric = %q", decoded.Metric.ID)
	}
}

func TestWriteTextReport(t *testing.T) {
	var buf bytes.Buffer
	if err := writeTextReport(&buf, buildReport(loadedState(), testNow)); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"Claude, updated 2m0s ago",
		"5-hour",
		"42.0%",
		"Copilot (octocat)",
		"30 / 300 requests",
		"gpt-4.1",
		"Menu bar: Claude 5-Hour Window (5h 42%)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTextReport_States(t *testing.T) {
	state := services.State{
		CopilotAuth: models.AuthStatus{Connected: true},
		Claude:      models.Snapshot[models.ClaudeUsage]{State: models.NotConnected[models.ClaudeUsage]()},
		Copilot:     models.Snapshot[models.CopilotUsage]{State: models.Failed[models.CopilotUsage]("HTTP 500")},
		Metric:      models.DefaultMetric,
	}

	var buf bytes.Buffer
	if err := writeTextReport(&buf, buildReport(state, testNow)); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "not connected") || !strings.Contains(out, "error: HTTP 500") {
		t.Errorf("output:\n%s", out)
	}
}

func TestWaitForDeviceLogin(t *testing.T) {
	copilot := func(status models.AuthStatus, err error) services.ServiceEvent {
		status.Provider = models.ProviderCopilot
		return services.AuthChangedEvent{Status: status, Error: err}
	}

	tests := []struct {
		wantErr error
		name    string
		events  []services.ServiceEvent
	}{
		{
			name: "Connected",
			events: []services.ServiceEvent{
				services.MetricChangedEvent{Metric: models.DefaultMetric},
				services.AuthChangedEvent{Status: models.AuthStatus{Provider: models.ProviderClaude, Connected: true}},
				copilot(models.AuthStatus{Phase: models.PhasePolling}, nil),
				copilot(models.AuthStatus{Phase: models.PhaseConnected, Connected: true, Username: "octocat"}, nil),
			},
		},
		{
			name:    "Denied",
			events:  []services.ServiceEvent{copilot(models.AuthStatus{}, models.ErrAuthorizationDenied)},
			wantErr: models.ErrAuthorizationDenied,
		},
		{
			name:    "Canceled",
			events:  []services.ServiceEvent{copilot(models.AuthStatus{Phase: models.PhaseIdle}, nil)},
			wantErr: errLoginCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan services.ServiceEvent, len(tt.events))
			for _, e := range tt.events {
				ch <- e
			}

			status, err := waitForDeviceLogin(context.Background(), ch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.Username != "octocat" {
				t.Errorf("username = %q", status.Username)
			}
		})
	}

	t.Run("ContextDone", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := waitForDeviceLogin(ctx, make(chan services.ServiceEvent)); !errors.Is(err, errLoginCanceled) {
			t.Errorf("error = %v, want errLoginCanceled", err)
		}
	})

	t.Run("ClosedChannel", func(t *testing.T) {
		ch := make(chan services.ServiceEvent)
		close(ch)
		if _, err := waitForDeviceLogin(context.Background(), ch); !errors.Is(err, errLoginCanceled) {
			t.Errorf("error = %v, want errLoginCanceled", err)
		}
	})
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()

	for _, name := range []string{"status", "login", "logout", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "codequota ") {
		t.Errorf("version output = %q", buf.String())
	}

	root.SetArgs([]string{"login", "gemini"})
	if err := root.Execute(); !errors.Is(err, services.ErrUnknownProvider) {
		t.Errorf("login gemini error = %v", err)
	}
}
