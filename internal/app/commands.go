package app

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = time.Second

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second

	// requestTimeout bounds commands that talk to a provider.
	requestTimeout = 30 * time.Second
)

// clipboardWrite copies text to the system clipboard. Tests replace it.
var clipboardWrite = clipboard.WriteAll

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// defaultTickCmd returns a command that sends a TickMsg after the default interval.
func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// loadStateCmd returns a command that reads the manager snapshot.
func loadStateCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		return StateLoadedMsg{State: mgr.State()}
	}
}

// refreshCmd returns a command that requests a refresh of one or both providers.
func refreshCmd(mgr *services.Manager, provider models.Provider) tea.Cmd {
	return func() tea.Msg {
		var err error
		if provider == "" {
			err = mgr.RefreshAll()
		} else {
			err = mgr.Refresh(provider)
		}
		return RefreshResultMsg{Provider: provider, Error: err}
	}
}

// subscribeToServicesCmd returns a command that subscribes to service events.
func subscribeToServicesCmd(mgr *services.Manager) tea.Cmd {
	ch, _ := mgr.Subscribe()
	return func() tea.Msg {
		return SubscriptionEventMsg{Channel: ch}
	}
}

// waitForServiceEventCmd returns a command that waits for the next service event.
func waitForServiceEventCmd(ch <-chan services.ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ServiceEventMsg{Event: event}
	}
}

// beginClaudeLoginCmd returns a command that generates a Claude authorization URL.
func beginClaudeLoginCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		url, err := mgr.BeginClaudeLogin()
		return ClaudeLoginStartedMsg{URL: url, Error: err}
	}
}

// submitClaudeCodeCmd returns a command that exchanges a pasted code.
func submitClaudeCodeCmd(mgr *services.Manager, code string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		err := mgr.SubmitClaudeCode(ctx, code)
		return LoginResultMsg{Provider: models.ProviderClaude, Error: err}
	}
}

// startCopilotLoginCmd returns a command that requests a GitHub device code.
// Polling continues in the background; completion arrives as an AuthChangedEvent.
func startCopilotLoginCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		session, err := mgr.StartCopilotLogin(ctx)
		return DeviceLoginStartedMsg{Session: session, Error: err}
	}
}

// cancelLoginCmd returns a command that aborts a login flow.
func cancelLoginCmd(mgr *services.Manager, provider models.Provider) tea.Cmd {
	return func() tea.Msg {
		if err := mgr.CancelLogin(provider); err != nil {
			return AddNotificationMsg{
				Type:     NotificationError,
				Message:  "Cancel failed: " + err.Error(),
				Duration: LongNotificationDuration,
			}
		}
		return nil
	}
}

// disconnectCmd returns a command that removes a provider's credentials.
func disconnectCmd(mgr *services.Manager, provider models.Provider) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		err := mgr.Disconnect(ctx, provider)
		return DisconnectResultMsg{Provider: provider, Error: err}
	}
}

// cycleMetricCmd returns a command that advances and persists the metric.
func cycleMetricCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		metric, err := mgr.CycleMetric(ctx)
		return MetricSelectedMsg{Metric: metric, Error: err}
	}
}

// copyToClipboardCmd returns a command that copies text to the clipboard.
func copyToClipboardCmd(text, label string) tea.Cmd {
	return func() tea.Msg {
		return ClipboardResultMsg{Label: label, Error: clipboardWrite(text)}
	}
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

// notifySuccessCmd returns a command that adds a success notification.
func notifySuccessCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationSuccess,
			Message:  message,
			Duration: DefaultNotificationDuration,
		}
	}
}

// notifyErrorCmd returns a command that adds an error notification.
func notifyErrorCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationError,
			Message:  message,
			Duration: LongNotificationDuration,
		}
	}
}

// notifyWarningCmd returns a command that adds a warning notification.
func notifyWarningCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationWarning,
			Message:  message,
			Duration: DefaultNotificationDuration,
		}
	}
}

// notifyInfoCmd returns a command that adds an info notification.
func notifyInfoCmd(message string) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{
			Type:     NotificationInfo,
			Message:  message,
			Duration: QuickNotificationDuration,
		}
	}
}
