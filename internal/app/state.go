// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"strconv"
	"sync"
	"time"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"

	maxNotifications = 10
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Type      NotificationType
	Duration  time.Duration
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// State is the UI's copy of the manager state plus transient UI data.
// Tabs read it from View; only the root model writes it.
type State struct {
	mu sync.RWMutex

	services services.State

	// PendingAuthURL is the Claude authorization URL while the user is
	// expected to paste a code back.
	PendingAuthURL string

	initialLoading bool

	notifications   []Notification
	notificationSeq int
}

// NewState creates a state waiting for its first manager snapshot.
func NewState() *State {
	return &State{
		services:       services.State{Metric: models.DefaultMetric},
		initialLoading: true,
		notifications:  make([]Notification, 0),
	}
}

// SetServices replaces the whole manager snapshot and ends initial loading.
func (s *State) SetServices(state services.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = state
	s.initialLoading = false
}

// Services returns a copy of the manager snapshot.
func (s *State) Services() services.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// IsInitialLoading returns true until the first manager snapshot arrives.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialLoading
}

// AnyLoading returns true if the UI waits on any provider.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.initialLoading ||
		s.services.Claude.State.Kind == models.StateLoading ||
		s.services.Copilot.State.Kind == models.StateLoading ||
		s.services.ClaudeAuth.InProgress() ||
		s.services.CopilotAuth.InProgress()
}

// ApplyEvent folds a service event into the snapshot. It reports whether
// the event changed anything the UI renders.
func (s *State) ApplyEvent(event services.ServiceEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := event.(type) {
	case services.AuthChangedEvent:
		switch e.Status.Provider {
		case models.ProviderClaude:
			s.services.ClaudeAuth = e.Status
			if e.Status.Phase != models.PhaseAwaitingCode {
				s.PendingAuthURL = ""
			}
		case models.ProviderCopilot:
			s.services.CopilotAuth = e.Status
		default:
			return false
		}
	case services.ClaudeUpdatedEvent:
		s.services.Claude = e.Snapshot
	case services.CopilotUpdatedEvent:
		s.services.Copilot = e.Snapshot
	case services.MetricChangedEvent:
		s.services.Metric = e.Metric
	default:
		return false
	}
	return true
}

// SetPendingAuthURL records the authorization URL of a started Claude login.
func (s *State) SetPendingAuthURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingAuthURL = url
}

// GetPendingAuthURL returns the authorization URL, or "" when none is pending.
func (s *State) GetPendingAuthURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PendingAuthURL
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := time.Now().Format("20060102150405") + "-" + strconv.Itoa(s.notificationSeq)

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})

	// Keep only the last 10 notifications
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.RemoveNotification(LoadingNotificationID)
}
