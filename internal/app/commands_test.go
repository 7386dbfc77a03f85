package app

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/codequota/internal/config"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

// newTestManager creates a manager backed by a temporary SQLite store. Its
// endpoints are unreachable, so only offline operations succeed.
func newTestManager(t *testing.T) *services.Manager {
	t.Helper()

	cfg := &config.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "codequota.db"),
		CredentialStore: config.StoreSQLite,
		Anthropic: config.AnthropicConfig{
			ClientID:     "claude-client",
			AuthorizeURL: "https://claude.test/oauth/authorize",
			TokenURL:     "http://127.0.0.1:1/v1/oauth/token",
			RedirectURL:  "https://claude.test/oauth/code/callback",
			UsageURL:     "http://127.0.0.1:1/api/oauth/usage",
		},
		GitHub: config.GitHubConfig{
			ClientID:      "github-client",
			DeviceCodeURL: "http://127.0.0.1:1/login/device/code",
			TokenURL:      "http://127.0.0.1:1/login/oauth/access_token",
			APIURL:        "http://127.0.0.1:1",
		},
		ClaudeRefreshInterval:  time.Hour,
		CopilotRefreshInterval: time.Hour,
		NotifyThreshold:        95,
	}

	mgr, err := services.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestTickCmd(t *testing.T) {
	if tickCmd(time.Millisecond) == nil {
		t.Error("tickCmd returned nil")
	}
	if defaultTickCmd() == nil {
		t.Error("defaultTickCmd returned nil")
	}
}

func TestNotifyCmds(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) tea.Cmd
		want NotificationType
	}{
		{"Success", notifySuccessCmd, NotificationSuccess},
		{"Error", notifyErrorCmd, NotificationError},
		{"Warning", notifyWarningCmd, NotificationWarning},
		{"Info", notifyInfoCmd, NotificationInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.fn("msg")()

			addMsg, ok := msg.(AddNotificationMsg)
			if !ok {
				t.Fatalf("Expected AddNotificationMsg, got %T", msg)
			}
			if addMsg.Type != tt.want {
				t.Errorf("Type = %v, want %v", addMsg.Type, tt.want)
			}
			if addMsg.Message != "msg" {
				t.Errorf("Message = %q, want msg", addMsg.Message)
			}
			if addMsg.Duration <= 0 {
				t.Error("Notifications should expire")
			}
		})
	}
}

func TestClearNotificationCmd(t *testing.T) {
	msg := clearNotificationCmd("id-1", time.Millisecond)()
	removeMsg, ok := msg.(RemoveNotificationMsg)
	if !ok || removeMsg.ID != "id-1" {
		t.Errorf("got %#v, want RemoveNotificationMsg{ID: id-1}", msg)
	}
}

func TestCopyToClipboardCmd(t *testing.T) {
	previous := clipboardWrite
	t.Cleanup(func() { clipboardWrite = previous })

	var copied string
	clipboardWrite = func(text string) error {
		copied = text
		return nil
	}

	msg := copyToClipboardCmd("ABCD-1234", "code")().(ClipboardResultMsg)
	if msg.Error != nil || msg.Label != "code" || copied != "ABCD-1234" {
		t.Errorf("msg = %+v, copied = %q", msg, copied)
	}

	clipboardWrite = func(string) error { return errors.New("no clipboard") }
	msg = copyToClipboardCmd("x", "link")().(ClipboardResultMsg)
	if msg.Error == nil {
		t.Error("Expected clipboard error")
	}
}

func TestManagerCmds(t *testing.T) {
	mgr := newTestManager(t)

	t.Run("LoadState", func(t *testing.T) {
		msg := loadStateCmd(mgr)().(StateLoadedMsg)
		if msg.State.Metric != models.DefaultMetric {
			t.Errorf("Metric = %q", msg.State.Metric)
		}
		if msg.State.ClaudeAuth.Connected || msg.State.CopilotAuth.Connected {
			t.Error("Fresh store should be disconnected")
		}
	})

	t.Run("BeginClaudeLogin", func(t *testing.T) {
		msg := beginClaudeLoginCmd(mgr)().(ClaudeLoginStartedMsg)
		if msg.Error != nil {
			t.Fatalf("Error = %v", msg.Error)
		}
		if !strings.HasPrefix(msg.URL, "https://claude.test/oauth/authorize?") {
			t.Errorf("URL = %q", msg.URL)
		}
		if cmd := cancelLoginCmd(mgr, models.ProviderClaude); cmd() != nil {
			t.Error("Cancel should succeed silently")
		}
	})

	t.Run("SubmitWithoutLogin", func(t *testing.T) {
		msg := submitClaudeCodeCmd(mgr, "code#state")().(LoginResultMsg)
		if !errors.Is(msg.Error, models.ErrNoPendingAuthorization) {
			t.Errorf("Error = %v, want ErrNoPendingAuthorization", msg.Error)
		}
	})

	t.Run("CancelUnknownProvider", func(t *testing.T) {
		msg := cancelLoginCmd(mgr, "gemini")()
		if addMsg, ok := msg.(AddNotificationMsg); !ok || addMsg.Type != NotificationError {
			t.Errorf("got %#v", msg)
		}
	})

	t.Run("Refresh", func(t *testing.T) {
		msg := refreshCmd(mgr, "gemini")().(RefreshResultMsg)
		if !errors.Is(msg.Error, services.ErrUnknownProvider) {
			t.Errorf("Error = %v", msg.Error)
		}
	})

	t.Run("CycleMetric", func(t *testing.T) {
		msg := cycleMetricCmd(mgr)().(MetricSelectedMsg)
		if msg.Error != nil {
			t.Fatalf("Error = %v", msg.Error)
		}
		if msg.Metric != models.DefaultMetric.Next() {
			t.Errorf("Metric = %q, want %q", msg.Metric, models.DefaultMetric.Next())
		}
		if mgr.SelectedMetric() != msg.Metric {
			t.Error("Manager did not keep the metric")
		}
	})

	t.Run("Disconnect", func(t *testing.T) {
		msg := disconnectCmd(mgr, models.ProviderCopilot)().(DisconnectResultMsg)
		if msg.Error != nil {
			t.Errorf("Error = %v", msg.Error)
		}
	})
}

func TestSubscriptionCmds(t *testing.T) {
	mgr := newTestManager(t)

	msg := subscribeToServicesCmd(mgr)().(SubscriptionEventMsg)
	if msg.Channel == nil {
		t.Fatal("Channel is nil")
	}

	msg.Channel <- services.MetricChangedEvent{Metric: models.MetricCopilotPremium}
	found := false
	for range 10 {
		event := waitForServiceEventCmd(msg.Channel)().(ServiceEventMsg)
		if e, ok := event.Event.(services.MetricChangedEvent); ok {
			found = e.Metric == models.MetricCopilotPremium
			break
		}
	}
	if !found {
		t.Error("MetricChangedEvent not delivered")
	}

	mgr.Unsubscribe(msg.Channel)
	for range cap(msg.Channel) + 1 {
		if waitForServiceEventCmd(msg.Channel)() == nil {
			return
		}
	}
	t.Error("closed channel should yield nil")
}
