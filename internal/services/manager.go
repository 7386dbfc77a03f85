// Package services provides service orchestration for the TUI and CLI.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/codequota/internal/config"
	"github.com/j-veylop/codequota/internal/credstore"
	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services/oauth"
	"github.com/j-veylop/codequota/internal/services/quota"
)

type (
	// AuthChangedEvent is emitted when an auth client's status changes.
	AuthChangedEvent struct {
		Error  error
		Status models.AuthStatus
	}

	// ClaudeUpdatedEvent is emitted when the Claude snapshot changes.
	ClaudeUpdatedEvent struct {
		Snapshot models.Snapshot[models.ClaudeUsage]
	}

	// CopilotUpdatedEvent is emitted when the Copilot snapshot changes.
	CopilotUpdatedEvent struct {
		Snapshot models.Snapshot[models.CopilotUsage]
	}

	// MetricChangedEvent is emitted when the highlighted metric changes.
	MetricChangedEvent struct {
		Metric models.Metric
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Error   error
		Service string
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (AuthChangedEvent) isServiceEvent()    {}
func (ClaudeUpdatedEvent) isServiceEvent()  {}
func (CopilotUpdatedEvent) isServiceEvent() {}
func (MetricChangedEvent) isServiceEvent()  {}
func (ErrorEvent) isServiceEvent()          {}

// ErrUnknownProvider is returned for a provider the manager does not track.
var ErrUnknownProvider = errors.New("unknown provider")

// State is a consistent view of everything the UI renders.
type State struct {
	ClaudeAuth  models.AuthStatus
	CopilotAuth models.AuthStatus
	Claude      models.Snapshot[models.ClaudeUsage]
	Copilot     models.Snapshot[models.CopilotUsage]
	Metric      models.Metric
}

// MetricPercent returns metric's utilization. ok is false while the
// metric's provider has no usage loaded.
func (s State) MetricPercent(metric models.Metric) (percent float64, ok bool) {
	var claude *models.ClaudeUsage
	if s.Claude.State.IsLoaded() {
		claude = &s.Claude.State.Usage
	}
	var copilot *models.CopilotUsage
	if s.Copilot.State.IsLoaded() {
		copilot = &s.Copilot.State.Usage
	}
	return metric.Percent(claude, copilot)
}

// Manager owns the credential store, both auth clients and both sync
// engines, and routes their events to subscribers.
type Manager struct {
	store       credstore.Store
	claudeAuth  *oauth.PKCEClient
	copilotAuth *oauth.DeviceClient
	claude      *quota.Engine[models.ClaudeUsage]
	copilot     *quota.Engine[models.CopilotUsage]
	notifier    *Notifier
	stopChan    chan struct{}
	subscribers []chan ServiceEvent
	metric      models.Metric
	wg          sync.WaitGroup
	closeOnce   sync.Once
	mu          sync.RWMutex
	autoRefresh bool
}

// NewManager creates a new service manager with the credential store
// selected by cfg.
func NewManager(cfg *config.Config) (*Manager, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	m, err := newManager(context.Background(), cfg, store, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return m, nil
}

func openStore(cfg *config.Config) (credstore.Store, error) {
	switch cfg.CredentialStore {
	case config.StoreSQLite, "":
		store, err := credstore.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store, nil
	case config.StoreFile:
		return credstore.NewFile(cfg.CredentialsPath)
	default:
		return nil, fmt.Errorf("unknown credential store %q (want %s or %s)",
			cfg.CredentialStore, config.StoreSQLite, config.StoreFile)
	}
}

func newManager(ctx context.Context, cfg *config.Config, store credstore.Store, httpClient *http.Client) (*Manager, error) {
	m := &Manager{
		store:    store,
		notifier: NewNotifier(cfg.NotifyThreshold, cfg.NotifyEnabled),
		stopChan: make(chan struct{}),
	}

	var err error
	m.claudeAuth, err = oauth.NewPKCEClient(ctx, models.ProviderClaude, credstore.KeyAnthropicCredentials,
		oauth.PKCEConfig{
			ClientID:     cfg.Anthropic.ClientID,
			AuthorizeURL: cfg.Anthropic.AuthorizeURL,
			TokenURL:     cfg.Anthropic.TokenURL,
			RedirectURL:  cfg.Anthropic.RedirectURL,
			Scopes:       config.AnthropicScopes,
		}, store, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to load Claude credentials: %w", err)
	}

	m.copilotAuth, err = oauth.NewDeviceClient(ctx, models.ProviderCopilot,
		credstore.KeyGitHubCredentials, credstore.KeyGitHubUsername,
		oauth.DeviceConfig{
			ClientID:      cfg.GitHub.ClientID,
			DeviceCodeURL: cfg.GitHub.DeviceCodeURL,
			TokenURL:      cfg.GitHub.TokenURL,
			APIURL:        cfg.GitHub.APIURL,
			APIVersion:    config.GitHubAPIVersion,
			Scopes:        config.GitHubScopes,
		}, store, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to load GitHub credentials: %w", err)
	}

	m.claude = quota.New[models.ClaudeUsage](m.claudeAuth,
		quota.NewClaudeFetcher(httpClient, cfg.Anthropic.UsageURL, config.AnthropicBetaHeader),
		quota.DefaultConfig(cfg.ClaudeRefreshInterval))
	m.copilot = quota.New[models.CopilotUsage](m.copilotAuth,
		quota.NewCopilotFetcher(httpClient, m.copilotAuth, cfg.GitHub.APIURL, config.GitHubAPIVersion),
		quota.DefaultConfig(cfg.CopilotRefreshInterval))

	selected, err := credstore.GetString(ctx, store, credstore.KeySelectedMetric)
	if err != nil {
		logger.Warn("failed to load selected metric", "error", err)
	}
	m.metric = models.ParseMetric(selected)

	m.wg.Add(1)
	go m.routeEvents()

	return m, nil
}

// routeEvents routes events from individual services to subscribers.
func (m *Manager) routeEvents() {
	defer m.wg.Done()

	var storeEvents <-chan credstore.Event
	if w, ok := m.store.(credstore.Watcher); ok {
		storeEvents = w.Events()
	}

	for {
		select {
		case event := <-m.claudeAuth.Events():
			m.handleAuthEvent(event, m.claude.Sync, m.claude.StartAutoRefresh, m.claude.Reset)

		case event := <-m.copilotAuth.Events():
			m.handleAuthEvent(event, m.copilot.Sync, m.copilot.StartAutoRefresh, m.copilot.Reset)

		case event := <-m.claude.Events():
			if event.Type == quota.EventStateChanged && event.Snapshot.State.IsLoaded() {
				m.notifier.ObserveClaude(event.Snapshot.State.Usage)
			}
			m.broadcast(ClaudeUpdatedEvent{Snapshot: event.Snapshot})

		case event := <-m.copilot.Events():
			if event.Type == quota.EventStateChanged && event.Snapshot.State.IsLoaded() {
				m.notifier.ObserveCopilot(event.Snapshot.State.Usage)
			}
			m.broadcast(CopilotUpdatedEvent{Snapshot: event.Snapshot})

		case event := <-storeEvents:
			m.handleStoreEvent(event)

		case <-m.stopChan:
			return
		}
	}
}

// handleAuthEvent keeps an engine in step with its auth client.
func (m *Manager) handleAuthEvent(event oauth.Event, fetchNow, start, reset func() error) {
	switch event.Type {
	case oauth.EventConnected:
		m.mu.RLock()
		auto := m.autoRefresh
		m.mu.RUnlock()

		fetch := fetchNow
		if auto {
			fetch = start
		}
		if err := fetch(); err != nil {
			logger.Warn("failed to start fetch after connect", "provider", event.Provider, "error", err)
		}

	case oauth.EventDisconnected:
		if err := reset(); err != nil {
			logger.Warn("failed to reset engine", "provider", event.Provider, "error", err)
		}
		m.notifier.Forget(event.Provider)
	}

	m.broadcast(AuthChangedEvent{Status: event.Status, Error: event.Error})
}

// handleStoreEvent reloads the clients whose records were edited by
// another process.
func (m *Manager) handleStoreEvent(event credstore.Event) {
	if event.Type == credstore.EventError {
		m.broadcast(ErrorEvent{Service: "credentials", Error: event.Error})
		return
	}

	ctx := context.Background()
	if slices.Contains(event.Keys, credstore.KeyAnthropicCredentials) {
		if err := m.claudeAuth.Reload(ctx); err != nil {
			m.broadcast(ErrorEvent{Service: "claude", Error: err})
		}
	}
	if slices.Contains(event.Keys, credstore.KeyGitHubCredentials) ||
		slices.Contains(event.Keys, credstore.KeyGitHubUsername) {
		if err := m.copilotAuth.Reload(ctx); err != nil {
			m.broadcast(ErrorEvent{Service: "copilot", Error: err})
		}
	}
	if slices.Contains(event.Keys, credstore.KeySelectedMetric) {
		selected, err := credstore.GetString(ctx, m.store, credstore.KeySelectedMetric)
		if err != nil {
			m.broadcast(ErrorEvent{Service: "credentials", Error: err})
			return
		}
		m.setMetric(models.ParseMetric(selected))
	}
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// StartAutoRefresh starts periodic fetching for the connected providers.
// Providers that connect later start automatically.
func (m *Manager) StartAutoRefresh() {
	m.mu.Lock()
	m.autoRefresh = true
	m.mu.Unlock()

	if m.claudeAuth.HasCredentials() {
		if err := m.claude.StartAutoRefresh(); err != nil {
			logger.Warn("failed to start Claude auto refresh", "error", err)
		}
	}
	if m.copilotAuth.HasCredentials() {
		if err := m.copilot.StartAutoRefresh(); err != nil {
			logger.Warn("failed to start Copilot auto refresh", "error", err)
		}
	}
}

// BeginClaudeLogin starts the Claude authorization and returns the URL the
// user has to open.
func (m *Manager) BeginClaudeLogin() (string, error) {
	return m.claudeAuth.BeginAuthorization()
}

// SubmitClaudeCode exchanges the code the user pasted back.
func (m *Manager) SubmitClaudeCode(ctx context.Context, code string) error {
	return m.claudeAuth.ExchangeCode(ctx, code)
}

// StartCopilotLogin starts the GitHub device flow. Polling continues in the
// background; completion is reported as an AuthChangedEvent.
func (m *Manager) StartCopilotLogin(ctx context.Context) (models.DeviceSession, error) {
	return m.copilotAuth.Start(ctx)
}

// CancelLogin abandons a running login flow for provider.
func (m *Manager) CancelLogin(provider models.Provider) error {
	switch provider {
	case models.ProviderClaude:
		m.claudeAuth.Cancel()
	case models.ProviderCopilot:
		m.copilotAuth.Cancel()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return nil
}

// Refresh requests a fetch for provider.
func (m *Manager) Refresh(provider models.Provider) error {
	switch provider {
	case models.ProviderClaude:
		return m.claude.Refresh()
	case models.ProviderCopilot:
		return m.copilot.Refresh()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// RefreshAll requests a fetch for both providers.
func (m *Manager) RefreshAll() error {
	return errors.Join(m.claude.Refresh(), m.copilot.Refresh())
}

// Disconnect removes provider's credentials. The engine returns to
// NotConnected once the auth client reports the disconnect.
func (m *Manager) Disconnect(ctx context.Context, provider models.Provider) error {
	switch provider {
	case models.ProviderClaude:
		return m.claudeAuth.Disconnect(ctx)
	case models.ProviderCopilot:
		return m.copilotAuth.Disconnect(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// AuthStatus returns the auth status of provider.
func (m *Manager) AuthStatus(provider models.Provider) models.AuthStatus {
	if provider == models.ProviderCopilot {
		return m.copilotAuth.Status()
	}
	return m.claudeAuth.Status()
}

// SelectedMetric returns the highlighted metric.
func (m *Manager) SelectedMetric() models.Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metric
}

// SelectMetric highlights metric and persists the choice.
func (m *Manager) SelectMetric(ctx context.Context, metric models.Metric) error {
	if err := credstore.PutString(ctx, m.store, credstore.KeySelectedMetric, string(metric)); err != nil {
		return fmt.Errorf("failed to save selected metric: %w", err)
	}
	m.setMetric(metric)
	return nil
}

// CycleMetric highlights the next metric and returns it.
func (m *Manager) CycleMetric(ctx context.Context) (models.Metric, error) {
	next := m.SelectedMetric().Next()
	if err := m.SelectMetric(ctx, next); err != nil {
		return m.SelectedMetric(), err
	}
	return next, nil
}

func (m *Manager) setMetric(metric models.Metric) {
	m.mu.Lock()
	changed := m.metric != metric
	m.metric = metric
	m.mu.Unlock()

	if changed {
		m.broadcast(MetricChangedEvent{Metric: metric})
	}
}

// State returns the current state of all services.
func (m *Manager) State() State {
	return State{
		ClaudeAuth:  m.claudeAuth.Status(),
		CopilotAuth: m.copilotAuth.Status(),
		Claude:      m.claude.Snapshot(),
		Copilot:     m.copilot.Snapshot(),
		Metric:      m.SelectedMetric(),
	}
}

// FetchAll fetches both connected providers and waits for the results.
func (m *Manager) FetchAll(ctx context.Context) (State, error) {
	var errs []error
	if m.claudeAuth.HasCredentials() {
		if _, err := m.claude.RefreshAndWait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("claude: %w", err))
		}
	}
	if m.copilotAuth.HasCredentials() {
		if _, err := m.copilot.RefreshAndWait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("copilot: %w", err))
		}
	}
	return m.State(), errors.Join(errs...)
}

// Close closes the manager and all its services.
func (m *Manager) Close() error {
	var errs []error

	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		m.copilotAuth.Close()

		if err := m.claude.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := m.copilot.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := m.store.Close(); err != nil {
			errs = append(errs, err)
		}
	})

	return errors.Join(errs...)
}
