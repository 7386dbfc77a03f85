package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/j-veylop/codequota/internal/credstore"
	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/pkce"
)

// PKCEConfig describes an OAuth application using the authorization-code
// grant with PKCE.
type PKCEConfig struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	RedirectURL  string
	Scopes       string
}

// PKCEClient drives the authorization-code flow for one provider.
type PKCEClient struct {
	*core
	generate   func() (pkce.Pair, error)
	cfg        PKCEConfig
	verifier   string
	exchanging bool
}

// NewPKCEClient creates a client and loads any stored credentials.
func NewPKCEClient(ctx context.Context, provider models.Provider, key string, cfg PKCEConfig,
	store credstore.Store, httpClient *http.Client,
) (*PKCEClient, error) {
	c := &PKCEClient{
		core:     newCore(provider, key, store, httpClient),
		cfg:      cfg,
		generate: pkce.Generate,
	}
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// BeginAuthorization starts a new flow and returns the URL the user has to
// open. A flow already awaiting its code is replaced.
func (c *PKCEClient) BeginAuthorization() (string, error) {
	pair, err := c.generate()
	if err != nil {
		return "", fmt.Errorf("failed to start authorization: %w", err)
	}

	c.mu.Lock()
	if c.exchanging {
		c.mu.Unlock()
		return "", models.ErrExchangeInProgress
	}
	c.verifier = pair.Verifier
	c.status.Phase = models.PhaseAwaitingCode
	c.status.Error = ""
	c.mu.Unlock()
	c.publish(EventStatusChanged, nil)

	params := url.Values{}
	params.Set("code", "true")
	params.Set("client_id", c.cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", c.cfg.RedirectURL)
	params.Set("scope", c.cfg.Scopes)
	params.Set("code_challenge", pair.Challenge)
	params.Set("code_challenge_method", pkce.Method)
	// The verifier doubles as state; it is echoed back with the code.
	params.Set("state", pair.Verifier)

	return c.cfg.AuthorizeURL + "?" + params.Encode(), nil
}

// ExchangeCode trades the code pasted by the user for tokens. The pasted
// value may carry the state after a '#'.
func (c *PKCEClient) ExchangeCode(ctx context.Context, raw string) error {
	code, state, _ := strings.Cut(strings.TrimSpace(raw), "#")

	c.mu.Lock()
	if c.exchanging {
		c.mu.Unlock()
		return models.ErrExchangeInProgress
	}
	if c.verifier == "" {
		c.mu.Unlock()
		return models.ErrNoPendingAuthorization
	}
	if code == "" {
		c.mu.Unlock()
		return &models.AuthenticationError{Reason: "authorization code is empty"}
	}
	verifier := c.verifier
	c.exchanging = true
	c.status.Phase = models.PhaseExchanging
	c.status.Error = ""
	c.mu.Unlock()
	c.publish(EventStatusChanged, nil)

	creds, err := c.exchangeCode(ctx, code, state, verifier)

	c.mu.Lock()
	c.exchanging = false
	if err != nil {
		c.verifier = ""
		c.status.Phase = models.PhaseIdle
		if c.creds != nil {
			c.status.Phase = models.PhaseConnected
		}
		c.status.Error = err.Error()
	}
	c.mu.Unlock()

	if err != nil {
		logger.Warn("code exchange failed", "provider", c.provider, "error", err)
		c.publish(EventError, err)
		return err
	}

	if err := c.saveCredentials(ctx, creds); err != nil {
		c.updateStatus(func(s *models.AuthStatus) {
			s.Phase = models.PhaseIdle
			s.Error = err.Error()
		})
		return err
	}

	c.mu.Lock()
	c.verifier = ""
	c.mu.Unlock()

	logger.Info("connected", "provider", c.provider)
	c.publish(EventConnected, nil)
	return nil
}

func (c *PKCEClient) exchangeCode(ctx context.Context, code, state, verifier string) (*models.Credentials, error) {
	payload := map[string]string{
		"code":          code,
		"grant_type":    "authorization_code",
		"client_id":     c.cfg.ClientID,
		"redirect_uri":  c.cfg.RedirectURL,
		"code_verifier": verifier,
	}
	if state != "" {
		payload["state"] = state
	}

	issuedAt := c.now()
	status, body, err := c.postJSON(ctx, "token exchange", c.cfg.TokenURL, payload)
	if err != nil {
		return nil, err
	}
	resp, err := tokenError(status, body)
	if err != nil {
		return nil, err
	}
	if resp.RefreshToken == "" {
		return nil, &models.AuthenticationError{Status: status, Reason: "token response has no refresh token"}
	}
	return resp.credentials(issuedAt), nil
}

// Refresh renews the access token. Any failure removes the stored
// credentials and the client reports disconnected.
func (c *PKCEClient) Refresh(ctx context.Context) error {
	return c.refresh(ctx, c.exchangeRefresh)
}

// ValidToken returns an unexpired access token, refreshing it first when
// needed.
func (c *PKCEClient) ValidToken(ctx context.Context) (string, error) {
	return c.validToken(ctx, func(models.Credentials) bool { return true }, c.exchangeRefresh)
}

func (c *PKCEClient) exchangeRefresh(ctx context.Context, current models.Credentials) (*models.Credentials, error) {
	return refreshGrant(ctx, c.core, c.cfg.TokenURL, c.cfg.ClientID, current, false)
}

// Cancel abandons a flow awaiting its code. Calling it with no flow
// running is a no-op.
func (c *PKCEClient) Cancel() {
	c.mu.Lock()
	if c.verifier == "" && c.status.Error == "" {
		c.mu.Unlock()
		return
	}
	c.verifier = ""
	c.status.Error = ""
	if !c.exchanging {
		c.status.Phase = models.PhaseIdle
		if c.creds != nil {
			c.status.Phase = models.PhaseConnected
		}
	}
	c.mu.Unlock()
	c.publish(EventStatusChanged, nil)
}

// Disconnect removes the stored credentials. It is a no-op when nothing is
// stored.
func (c *PKCEClient) Disconnect(ctx context.Context) error {
	c.Cancel()
	if !c.HasCredentials() {
		return nil
	}
	if err := c.clearCredentials(ctx, ""); err != nil {
		return err
	}
	logger.Info("disconnected", "provider", c.provider)
	c.publish(EventDisconnected, nil)
	return nil
}

// Reload re-reads the credentials from the store, after an external change.
func (c *PKCEClient) Reload(ctx context.Context) error {
	was := c.HasCredentials()
	if err := c.load(ctx); err != nil {
		return err
	}
	publishReload(c.core, was)
	return nil
}

// refreshGrant performs a refresh_token grant against tokenURL. A reply
// without a refresh token is an authentication error unless keepRefresh is
// set, in which case the current refresh token is reused.
func refreshGrant(ctx context.Context, c *core, tokenURL, clientID string, current models.Credentials,
	keepRefresh bool,
) (*models.Credentials, error) {
	if current.RefreshToken == "" {
		return nil, errors.New("no refresh token stored")
	}

	payload := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": current.RefreshToken,
		"client_id":     clientID,
	}

	issuedAt := c.now()
	status, body, err := c.postJSON(ctx, "token refresh", tokenURL, payload)
	if err != nil {
		return nil, err
	}
	resp, err := tokenError(status, body)
	if err != nil {
		return nil, err
	}
	if resp.RefreshToken == "" {
		if !keepRefresh {
			return nil, &models.AuthenticationError{Status: status, Reason: "refresh response has no refresh token"}
		}
		resp.RefreshToken = current.RefreshToken
	}
	return resp.credentials(issuedAt), nil
}

// publishReload reports the connection change caused by a reload.
func publishReload(c *core, was bool) {
	switch has := c.HasCredentials(); {
	case has && !was:
		c.publish(EventConnected, nil)
	case !has && was:
		c.publish(EventDisconnected, nil)
	default:
		c.publish(EventStatusChanged, nil)
	}
}
