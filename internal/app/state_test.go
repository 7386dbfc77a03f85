package app

import (
	"testing"
	"time"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

func TestNewState(t *testing.T) {
	state := NewState()
	if state == nil {
		t.Fatal("NewState returned nil")
	}
	if !state.IsInitialLoading() {
		t.Error("Initial loading should be true")
	}
	if state.Services().Metric != models.DefaultMetric {
		t.Errorf("Metric = %q, want default", state.Services().Metric)
	}
	if len(state.GetNotifications()) != 0 {
		t.Error("Notifications should be empty")
	}
}

func TestState_SetServices(t *testing.T) {
	state := NewState()
	state.SetServices(services.State{
		Metric:     models.MetricCopilotPremium,
		ClaudeAuth: models.AuthStatus{Provider: models.ProviderClaude, Connected: true},
	})

	if state.IsInitialLoading() {
		t.Error("Initial loading should end with the first snapshot")
	}
	got := state.Services()
	if got.Metric != models.MetricCopilotPremium || !got.ClaudeAuth.Connected {
		t.Errorf("Services() = %+v", got)
	}
}

func TestState_AnyLoading(t *testing.T) {
	tests := []struct {
		name  string
		state services.State
		want  bool
	}{
		{name: "Idle", state: services.State{}},
		{
			name: "ClaudeFetching",
			state: services.State{Claude: models.Snapshot[models.ClaudeUsage]{
				State: models.Loading[models.ClaudeUsage](),
			}},
			want: true,
		},
		{
			name: "CopilotFetching",
			state: services.State{Copilot: models.Snapshot[models.CopilotUsage]{
				State: models.Loading[models.CopilotUsage](),
			}},
			want: true,
		},
		{
			name:  "DevicePolling",
			state: services.State{CopilotAuth: models.AuthStatus{Phase: models.PhasePolling}},
			want:  true,
		},
		{
			name:  "Connected",
			state: services.State{ClaudeAuth: models.AuthStatus{Phase: models.PhaseConnected}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState()
			state.SetServices(tt.state)
			if got := state.AnyLoading(); got != tt.want {
				t.Errorf("AnyLoading() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_ApplyEvent(t *testing.T) {
	state := NewState()
	state.SetPendingAuthURL("https://claude.ai/oauth/authorize?x=1")

	claude := models.Snapshot[models.ClaudeUsage]{
		Provider: models.ProviderClaude,
		State:    models.Loaded(models.ClaudeUsage{FiveHour: models.UsageBucket{Percent: 30}}),
	}
	copilot := models.Snapshot[models.CopilotUsage]{
		Provider: models.ProviderCopilot,
		State:    models.Failed[models.CopilotUsage]("boom"),
	}

	events := []services.ServiceEvent{
		services.ClaudeUpdatedEvent{Snapshot: claude},
		services.CopilotUpdatedEvent{Snapshot: copilot},
		services.MetricChangedEvent{Metric: models.MetricClaudeWeeklyAll},
		services.AuthChangedEvent{Status: models.AuthStatus{Provider: models.ProviderCopilot, Username: "octocat"}},
	}
	for _, e := range events {
		if !state.ApplyEvent(e) {
			t.Errorf("ApplyEvent(%T) = false", e)
		}
	}

	got := state.Services()
	if got.Claude.State.Usage.FiveHour.Percent != 30 {
		t.Errorf("Claude = %+v", got.Claude)
	}
	if got.Copilot.State.Message != "boom" {
		t.Errorf("Copilot = %+v", got.Copilot)
	}
	if got.Metric != models.MetricClaudeWeeklyAll {
		t.Errorf("Metric = %q", got.Metric)
	}
	if got.CopilotAuth.Username != "octocat" {
		t.Errorf("CopilotAuth = %+v", got.CopilotAuth)
	}
	if state.GetPendingAuthURL() == "" {
		t.Error("Copilot auth change should not clear the Claude URL")
	}

	state.ApplyEvent(services.AuthChangedEvent{Status: models.AuthStatus{
		Provider: models.ProviderClaude,
		Phase:    models.PhaseExchanging,
	}})
	if state.GetPendingAuthURL() != "" {
		t.Error("Leaving the awaiting phase should clear the URL")
	}

	if state.ApplyEvent(services.ErrorEvent{}) {
		t.Error("ErrorEvent should not change the snapshot")
	}
	if state.ApplyEvent(services.AuthChangedEvent{Status: models.AuthStatus{Provider: "gemini"}}) {
		t.Error("Unknown provider should be ignored")
	}
}

func TestState_Notifications(t *testing.T) {
	state := NewState()

	id := state.AddNotification(NotificationInfo, "Test", time.Minute)
	if id == "" {
		t.Error("AddNotification returned empty ID")
	}

	notes := state.GetNotifications()
	if len(notes) != 1 || notes[0].Message != "Test" {
		t.Fatalf("GetNotifications() = %+v", notes)
	}

	state.RemoveNotification(id)
	if len(state.GetNotifications()) != 0 {
		t.Error("Notification not removed")
	}
}

func TestState_NotificationsAreCapped(t *testing.T) {
	state := NewState()

	var ids []string
	for range maxNotifications + 3 {
		ids = append(ids, state.AddNotification(NotificationInfo, "n", 0))
	}

	notes := state.GetNotifications()
	if len(notes) != maxNotifications {
		t.Fatalf("len = %d, want %d", len(notes), maxNotifications)
	}
	if notes[0].ID != ids[3] {
		t.Errorf("oldest kept = %s, want %s", notes[0].ID, ids[3])
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ID %s", id)
		}
		seen[id] = true
	}
}

func TestState_ClearExpiredNotifications(t *testing.T) {
	state := NewState()

	state.AddNotification(NotificationInfo, "Expired", time.Millisecond)
	state.AddNotification(NotificationInfo, "Valid", time.Hour)

	time.Sleep(5 * time.Millisecond)

	state.ClearExpiredNotifications()

	notes := state.GetNotifications()
	if len(notes) != 1 || notes[0].Message != "Valid" {
		t.Errorf("GetNotifications() = %+v", notes)
	}
}

func TestState_LoadingNotification(t *testing.T) {
	state := NewState()

	state.SetLoadingNotification("Loading...")
	state.SetLoadingNotification("Still loading...")

	notes := state.GetNotifications()
	if len(notes) != 1 {
		t.Fatalf("len = %d, want 1", len(notes))
	}
	if notes[0].ID != LoadingNotificationID || notes[0].Message != "Still loading..." {
		t.Errorf("notification = %+v", notes[0])
	}

	state.ClearLoadingNotification()
	if len(state.GetNotifications()) != 0 {
		t.Error("Loading notification not cleared")
	}
}

func TestNotificationType_String(t *testing.T) {
	tests := []struct {
		want string
		n    NotificationType
	}{
		{n: NotificationSuccess, want: "success"},
		{n: NotificationError, want: "error"},
		{n: NotificationWarning, want: "warning"},
		{n: NotificationInfo, want: "info"},
		{n: NotificationLoading, want: "loading"},
		{n: NotificationType(99), want: "unknown"},
	}

	for _, tt := range tests {
		if got := tt.n.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
