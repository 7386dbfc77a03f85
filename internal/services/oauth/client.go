// Package oauth implements the two OAuth flows used to connect providers:
// the PKCE authorization-code grant and the device-code grant.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/j-veylop/codequota/internal/credstore"
	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/version"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// Event represents an auth client event.
type Event struct {
	Error    error
	Status   models.AuthStatus
	Provider models.Provider
	Type     EventType
}

// EventType defines the type of auth event.
type EventType int

const (
	// EventStatusChanged indicates that the published status changed.
	EventStatusChanged EventType = iota
	// EventConnected indicates that credentials were obtained.
	EventConnected
	// EventDisconnected indicates that credentials were removed.
	EventDisconnected
	// EventError indicates that a flow step failed.
	EventError
)

// core holds what both clients share: the credential record, the
// published status and token refresh coalescing.
type core struct {
	store      credstore.Store
	httpClient *http.Client
	now        func() time.Time
	creds      *models.Credentials
	eventChan  chan Event
	refreshes  singleflight.Group
	key        string
	provider   models.Provider
	status     models.AuthStatus
	mu         sync.RWMutex
}

func newCore(provider models.Provider, key string, store credstore.Store, httpClient *http.Client) *core {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &core{
		store:      store,
		httpClient: httpClient,
		now:        time.Now,
		key:        key,
		provider:   provider,
		eventChan:  make(chan Event, 100),
		status:     models.AuthStatus{Provider: provider},
	}
}

// load reads the stored record. A corrupt record is removed.
func (c *core) load(ctx context.Context) error {
	creds, err := credstore.LoadCredentials(ctx, c.store, c.key)
	if err != nil {
		logger.Warn("discarding unreadable credentials", "key", c.key, "error", err)
		if delErr := c.store.Delete(ctx, c.key); delErr != nil {
			return fmt.Errorf("failed to remove unreadable credentials: %w", delErr)
		}
		creds = nil
	}

	c.mu.Lock()
	c.creds = creds
	c.status.Connected = creds != nil
	if creds != nil {
		c.status.Phase = models.PhaseConnected
	} else if c.status.Phase == models.PhaseConnected {
		c.status.Phase = models.PhaseIdle
	}
	c.mu.Unlock()
	return nil
}

// Events returns the event channel.
func (c *core) Events() <-chan Event {
	return c.eventChan
}

// Status returns a copy of the published status.
func (c *core) Status() models.AuthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := c.status
	if status.Session != nil {
		session := *status.Session
		status.Session = &session
	}
	return status
}

// HasCredentials reports whether a credential record is held.
func (c *core) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds != nil
}

// Credentials returns a copy of the held credentials, or nil.
func (c *core) Credentials() *models.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds == nil {
		return nil
	}
	creds := *c.creds
	return &creds
}

// updateStatus applies fn under the lock and publishes the result.
func (c *core) updateStatus(fn func(*models.AuthStatus)) {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()
	c.publish(EventStatusChanged, nil)
}

func (c *core) publish(eventType EventType, err error) {
	c.sendEvent(Event{
		Type:     eventType,
		Provider: c.provider,
		Status:   c.Status(),
		Error:    err,
	})
}

// sendEvent sends an event to the event channel non-blocking.
func (c *core) sendEvent(event Event) {
	select {
	case c.eventChan <- event:
	default:
		// Channel full, drop oldest
		select {
		case <-c.eventChan:
		default:
		}
		select {
		case c.eventChan <- event:
		default:
		}
	}
}

// saveCredentials persists creds and marks the client connected.
func (c *core) saveCredentials(ctx context.Context, creds *models.Credentials) error {
	if err := credstore.SaveCredentials(ctx, c.store, c.key, creds); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	c.mu.Lock()
	c.creds = creds
	c.status.Connected = true
	c.status.Phase = models.PhaseConnected
	c.status.Error = ""
	c.status.Session = nil
	c.mu.Unlock()
	return nil
}

// clearCredentials removes the held and stored credentials together with
// any extra keys. The status message is set to reason.
func (c *core) clearCredentials(ctx context.Context, reason string, extraKeys ...string) error {
	keys := append([]string{c.key}, extraKeys...)
	err := c.store.Delete(ctx, keys...)

	c.mu.Lock()
	c.creds = nil
	c.status.Connected = false
	c.status.Phase = models.PhaseIdle
	c.status.Session = nil
	c.status.Username = ""
	c.status.Error = reason
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// refresh coalesces concurrent refreshes into one call of exchange. Any
// failure removes the credentials.
func (c *core) refresh(ctx context.Context, exchange func(ctx context.Context, current models.Credentials) (*models.Credentials, error)) error {
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		current := c.Credentials()
		if current == nil {
			return nil, models.ErrNotConnected
		}

		// A caller going away must not log the user out.
		refreshed, err := exchange(context.WithoutCancel(ctx), *current)
		if err != nil {
			logger.Warn("token refresh failed, disconnecting", "provider", c.provider, "error", err)
			if clearErr := c.clearCredentials(context.WithoutCancel(ctx), models.ErrSessionExpired.Error()); clearErr != nil {
				logger.Error("failed to clear credentials", "provider", c.provider, "error", clearErr)
			}
			c.publish(EventDisconnected, err)
			return nil, fmt.Errorf("%w: %w", models.ErrSessionExpired, err)
		}

		if err := c.saveCredentials(context.WithoutCancel(ctx), refreshed); err != nil {
			return nil, err
		}
		logger.Debug("token refreshed", "provider", c.provider, "expires_at", refreshed.ExpiresAt)
		return nil, nil
	})
	return err
}

// validToken returns the held access token when it has not expired and
// refreshes it otherwise. canRefresh reports whether creds can be renewed;
// tokens that cannot are returned as they are.
func (c *core) validToken(ctx context.Context, canRefresh func(models.Credentials) bool,
	exchange func(ctx context.Context, current models.Credentials) (*models.Credentials, error),
) (string, error) {
	current := c.Credentials()
	if current == nil {
		return "", models.ErrNotConnected
	}
	if !current.IsExpired(c.now()) || !canRefresh(*current) {
		return current.AccessToken, nil
	}

	if err := c.refresh(ctx, exchange); err != nil {
		return "", err
	}
	refreshed := c.Credentials()
	if refreshed == nil {
		return "", models.ErrSessionExpired
	}
	return refreshed.AccessToken, nil
}

// postJSON sends payload as a JSON body and returns the status and body.
// Transport failures are returned as *models.NetworkError.
func (c *core) postJSON(ctx context.Context, op, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	return c.do(req, op)
}

func (c *core) do(req *http.Request, op string) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &models.NetworkError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, &models.NetworkError{Op: op, Err: err}
	}
	return resp.StatusCode, body, nil
}
