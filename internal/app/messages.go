package app

import (
	"time"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

// TickMsg is sent periodically to expire notifications and animate spinners.
type TickMsg struct {
	Time time.Time
}

// StateLoadedMsg contains a full manager snapshot.
type StateLoadedMsg struct {
	State services.State
}

// RefreshMsg requests a usage refresh. An empty Provider refreshes both.
type RefreshMsg struct {
	Provider models.Provider
}

// RefreshResultMsg contains the result of a refresh request.
type RefreshResultMsg struct {
	Error    error
	Provider models.Provider
}

// ConnectMsg requests starting the login flow of a provider.
type ConnectMsg struct {
	Provider models.Provider
}

// ClaudeLoginStartedMsg carries the authorization URL of a Claude login.
type ClaudeLoginStartedMsg struct {
	Error error
	URL   string
}

// SubmitCodeMsg submits the pasted Claude authorization code.
type SubmitCodeMsg struct {
	Code string
}

// DeviceLoginStartedMsg carries the device session of a GitHub login.
type DeviceLoginStartedMsg struct {
	Error   error
	Session models.DeviceSession
}

// LoginResultMsg contains the outcome of a code exchange.
type LoginResultMsg struct {
	Error    error
	Provider models.Provider
}

// CancelLoginMsg aborts a running login flow.
type CancelLoginMsg struct {
	Provider models.Provider
}

// DisconnectMsg requests removing a provider's credentials.
type DisconnectMsg struct {
	Provider models.Provider
}

// DisconnectResultMsg contains the result of a disconnect.
type DisconnectResultMsg struct {
	Error    error
	Provider models.Provider
}

// CycleMetricMsg requests advancing the highlighted metric.
type CycleMetricMsg struct{}

// MetricSelectedMsg contains the result of a metric change.
type MetricSelectedMsg struct {
	Error  error
	Metric models.Metric
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// CopyToClipboardMsg requests copying text to clipboard.
type CopyToClipboardMsg struct {
	Text string
	// Label names the copied value in the confirmation toast.
	Label string
}

// ClipboardResultMsg contains the result of a clipboard operation.
type ClipboardResultMsg struct {
	Error error
	Label string
}
