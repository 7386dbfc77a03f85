package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/j-veylop/codequota/internal/credstore"
	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/version"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// Device-flow error codes returned by the token endpoint.
const (
	errAuthorizationPending = "authorization_pending"
	errSlowDown             = "slow_down"
	errExpiredToken         = "expired_token"
	errAccessDenied         = "access_denied"
)

// slowDownSteps is how many interval units a slow_down reply adds.
const slowDownSteps = 5

// DeviceConfig describes an OAuth application using the device grant.
type DeviceConfig struct {
	ClientID      string
	DeviceCodeURL string
	TokenURL      string
	APIURL        string
	APIVersion    string
	Scopes        string
}

// DeviceClient drives the device-code flow for one provider and resolves
// the account login once connected.
type DeviceClient struct {
	*core
	pollCancel   context.CancelFunc
	pollDone     chan struct{}
	cfg          DeviceConfig
	loginKey     string
	intervalUnit time.Duration
}

// NewDeviceClient creates a client and loads any stored credentials and
// login. loginKey names the store record holding the account login.
func NewDeviceClient(ctx context.Context, provider models.Provider, key, loginKey string, cfg DeviceConfig,
	store credstore.Store, httpClient *http.Client,
) (*DeviceClient, error) {
	c := &DeviceClient{
		core:         newCore(provider, key, store, httpClient),
		cfg:          cfg,
		loginKey:     loginKey,
		intervalUnit: time.Second,
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the credentials and login from the store.
func (c *DeviceClient) Reload(ctx context.Context) error {
	was := c.HasCredentials()
	if err := c.load(ctx); err != nil {
		return err
	}

	login, err := credstore.GetString(ctx, c.store, c.loginKey)
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return fmt.Errorf("failed to load login: %w", err)
	}
	c.mu.Lock()
	if c.creds == nil {
		login = ""
	}
	c.status.Username = login
	c.mu.Unlock()

	publishReload(c.core, was)
	return nil
}

// deviceCodeResponse is the reply of the device-code endpoint.
type deviceCodeResponse struct {
	DeviceCode      string  `json:"device_code"`
	UserCode        string  `json:"user_code"`
	VerificationURI string  `json:"verification_uri"`
	Interval        float64 `json:"interval"`
	ExpiresIn       float64 `json:"expires_in"`
}

// Start requests a device code and begins polling for the user's approval
// in the background. A running flow is replaced.
func (c *DeviceClient) Start(ctx context.Context) (models.DeviceSession, error) {
	c.stopPolling()
	c.updateStatus(func(s *models.AuthStatus) {
		s.Phase = models.PhaseRequesting
		s.Session = nil
		s.Error = ""
	})

	session, err := c.requestCode(ctx)
	if err != nil {
		logger.Warn("device code request failed", "provider", c.provider, "error", err)
		c.mu.Lock()
		c.status.Phase = c.idlePhase()
		c.status.Error = err.Error()
		c.mu.Unlock()
		c.publish(EventError, err)
		return models.DeviceSession{}, err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.pollCancel = cancel
	c.pollDone = done
	c.status.Phase = models.PhasePolling
	c.status.Session = &session
	c.mu.Unlock()
	c.publish(EventStatusChanged, nil)

	logger.Info("device authorization started", "provider", c.provider,
		"verification_url", session.VerificationURL, "interval", session.Interval)

	go func() {
		defer cancel()
		c.pollLoop(pollCtx, done, session)
	}()
	return session, nil
}

func (c *DeviceClient) requestCode(ctx context.Context) (models.DeviceSession, error) {
	payload := map[string]string{
		"client_id": c.cfg.ClientID,
		"scope":     c.cfg.Scopes,
	}
	status, body, err := c.postJSON(ctx, "device code request", c.cfg.DeviceCodeURL, payload)
	if err != nil {
		return models.DeviceSession{}, err
	}
	if status < 200 || status >= 300 {
		if resp, perr := parseTokenResponse(body); perr == nil && resp.Error != "" {
			return models.DeviceSession{}, &models.AuthenticationError{Status: status, Reason: resp.message()}
		}
		return models.DeviceSession{}, &models.ServerError{Status: status, Message: snippet(body)}
	}

	var resp deviceCodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.DeviceSession{}, &models.ParseError{Kind: models.InvalidJSON, Err: err}
	}
	if resp.DeviceCode == "" || resp.UserCode == "" || resp.VerificationURI == "" {
		return models.DeviceSession{}, &models.AuthenticationError{
			Status: status,
			Reason: "device code response is missing device_code, user_code or verification_uri",
		}
	}

	interval := time.Duration(models.DefaultPollInterval/time.Second) * c.intervalUnit
	if resp.Interval > 0 {
		interval = time.Duration(resp.Interval * float64(c.intervalUnit))
	}
	session := models.DeviceSession{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURL: resp.VerificationURI,
		Interval:        interval,
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn * float64(time.Second)))
	}
	return session, nil
}

// pollLoop polls the token endpoint until the flow ends or ctx is canceled.
func (c *DeviceClient) pollLoop(ctx context.Context, done chan struct{}, session models.DeviceSession) {
	defer close(done)

	interval := session.Interval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		creds, code, err := c.poll(ctx, session.DeviceCode)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			var netErr *models.NetworkError
			var parseErr *models.ParseError
			var serverErr *models.ServerError
			if errors.As(err, &netErr) || errors.As(err, &parseErr) || errors.As(err, &serverErr) {
				logger.Debug("device poll failed, retrying", "provider", c.provider, "error", err)
				break
			}
			c.finish(ctx, err)
			return
		case code == errAuthorizationPending:
		case code == errSlowDown:
			interval += slowDownSteps * c.intervalUnit
			c.mu.Lock()
			if ctx.Err() == nil && c.status.Session != nil {
				c.status.Session.Interval = interval
			}
			c.mu.Unlock()
			logger.Debug("device poll slowed down", "provider", c.provider, "interval", interval)
			c.publish(EventStatusChanged, nil)
		case creds != nil:
			c.complete(ctx, creds)
			return
		}

		if !session.ExpiresAt.IsZero() && !c.now().Before(session.ExpiresAt) {
			c.finish(ctx, models.ErrAuthorizationExpired)
			return
		}
		timer.Reset(interval)
	}
}

// poll performs one token request. It returns credentials on success, the
// provider's code for pending and slow_down replies, and an error for
// everything else.
func (c *DeviceClient) poll(ctx context.Context, deviceCode string) (*models.Credentials, string, error) {
	payload := map[string]string{
		"client_id":   c.cfg.ClientID,
		"device_code": deviceCode,
		"grant_type":  deviceGrantType,
	}

	issuedAt := c.now()
	status, body, err := c.postJSON(ctx, "device token poll", c.cfg.TokenURL, payload)
	if err != nil {
		return nil, "", err
	}

	resp, err := tokenError(status, body)
	if resp != nil {
		switch resp.Error {
		case errAuthorizationPending, errSlowDown:
			return nil, resp.Error, nil
		case errExpiredToken:
			return nil, resp.Error, models.ErrAuthorizationExpired
		case errAccessDenied:
			return nil, resp.Error, models.ErrAuthorizationDenied
		}
	}
	if err != nil {
		return nil, "", err
	}
	return resp.credentials(issuedAt), "", nil
}

// finish ends the flow with a terminal error.
func (c *DeviceClient) finish(ctx context.Context, err error) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.clearPollLocked()
	c.status.Phase = c.idlePhase()
	c.status.Session = nil
	c.status.Error = err.Error()
	c.mu.Unlock()

	logger.Warn("device authorization failed", "provider", c.provider, "error", err)
	c.publish(EventError, err)
}

// complete stores the credentials obtained by the flow.
func (c *DeviceClient) complete(ctx context.Context, creds *models.Credentials) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.clearPollLocked()
	c.mu.Unlock()

	if err := c.saveCredentials(ctx, creds); err != nil {
		c.updateStatus(func(s *models.AuthStatus) {
			s.Phase = models.PhaseIdle
			s.Session = nil
			s.Error = err.Error()
		})
		c.publish(EventError, err)
		return
	}

	// The new token may belong to another account than the one logged in
	// before.
	if err := c.forgetLogin(ctx); err != nil {
		logger.Warn("failed to remove previous login", "provider", c.provider, "error", err)
	}

	logger.Info("connected", "provider", c.provider)
	c.publish(EventConnected, nil)

	if _, err := c.Login(ctx); err != nil {
		logger.Warn("failed to resolve login", "provider", c.provider, "error", err)
	}
}

// forgetLogin drops the cached and stored account login.
func (c *DeviceClient) forgetLogin(ctx context.Context) error {
	c.updateStatus(func(s *models.AuthStatus) {
		s.Username = ""
	})
	if err := c.store.Delete(ctx, c.loginKey); err != nil {
		return fmt.Errorf("failed to delete login: %w", err)
	}
	return nil
}

// clearPollLocked forgets the polling goroutine. c.mu must be held.
func (c *DeviceClient) clearPollLocked() {
	c.pollCancel = nil
	c.pollDone = nil
}

// idlePhase is the phase to return to when no flow runs. c.mu must be held.
func (c *DeviceClient) idlePhase() models.AuthPhase {
	if c.creds != nil {
		return models.PhaseConnected
	}
	return models.PhaseIdle
}

// stopPolling cancels the polling goroutine, if any, and waits for it.
func (c *DeviceClient) stopPolling() bool {
	c.mu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.clearPollLocked()
	if cancel != nil {
		cancel()
	}
	c.mu.Unlock()

	if done == nil {
		return false
	}
	<-done
	return true
}

// Cancel stops polling and clears the session and any pending error.
// Stored credentials are kept. Calling it when idle is a no-op.
func (c *DeviceClient) Cancel() {
	stopped := c.stopPolling()

	c.mu.Lock()
	changed := stopped || c.status.Session != nil || c.status.Error != ""
	c.status.Session = nil
	c.status.Error = ""
	c.status.Phase = c.idlePhase()
	c.mu.Unlock()

	if changed {
		c.publish(EventStatusChanged, nil)
	}
}

// Disconnect cancels any flow and removes the stored credentials and login.
func (c *DeviceClient) Disconnect(ctx context.Context) error {
	c.Cancel()
	if !c.HasCredentials() {
		return nil
	}
	if err := c.clearCredentials(ctx, "", c.loginKey); err != nil {
		return err
	}
	logger.Info("disconnected", "provider", c.provider)
	c.publish(EventDisconnected, nil)
	return nil
}

// Close stops the polling goroutine.
func (c *DeviceClient) Close() {
	c.stopPolling()
}

// Refresh renews the access token. Tokens issued without a refresh token
// cannot be renewed, so the call disconnects the client.
func (c *DeviceClient) Refresh(ctx context.Context) error {
	return c.refresh(ctx, c.exchangeRefresh)
}

// ValidToken returns the access token, refreshing it first when it has
// expired and can be renewed. Tokens without a refresh token are returned
// as they are.
func (c *DeviceClient) ValidToken(ctx context.Context) (string, error) {
	return c.validToken(ctx, func(creds models.Credentials) bool {
		return creds.RefreshToken != ""
	}, c.exchangeRefresh)
}

func (c *DeviceClient) exchangeRefresh(ctx context.Context, current models.Credentials) (*models.Credentials, error) {
	// GitHub may omit a rotated refresh token; the stored one stays valid.
	return refreshGrant(ctx, c.core, c.cfg.TokenURL, c.cfg.ClientID, current, true)
}

// Username returns the cached account login, or "".
func (c *DeviceClient) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Username
}

// Login returns the account login, fetching and storing it when it is not
// known yet.
func (c *DeviceClient) Login(ctx context.Context) (string, error) {
	if login := c.Username(); login != "" {
		return login, nil
	}

	token, err := c.ValidToken(ctx)
	if err != nil {
		return "", err
	}
	login, err := c.fetchLogin(ctx, token)
	if err != nil {
		return "", err
	}

	if err := credstore.PutString(ctx, c.store, c.loginKey, login); err != nil {
		return "", fmt.Errorf("failed to persist login: %w", err)
	}
	c.updateStatus(func(s *models.AuthStatus) {
		s.Username = login
	})
	logger.Info("resolved login", "provider", c.provider, "login", login)
	return login, nil
}

func (c *DeviceClient) fetchLogin(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/user", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create user request: %w", err)
	}
	SetGitHubHeaders(req, token, c.cfg.APIVersion)

	status, body, err := c.do(req, "user lookup")
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", &models.AuthenticationError{Status: status, Reason: snippet(body)}
	case status < 200 || status >= 300:
		return "", &models.ServerError{Status: status, Message: snippet(body)}
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return "", &models.ParseError{Kind: models.InvalidJSON, Err: err}
	}
	if user.Login == "" {
		return "", &models.ParseError{Kind: models.UnrecognizedFormat, Keys: []string{"login"}}
	}
	return user.Login, nil
}

// SetGitHubHeaders sets the headers the GitHub REST API expects.
func SetGitHubHeaders(req *http.Request, token, apiVersion string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", version.UserAgent())
	if apiVersion != "" {
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
	}
}
