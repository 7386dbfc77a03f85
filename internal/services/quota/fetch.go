package quota

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services/oauth"
	"github.com/j-veylop/codequota/internal/usage"
	"github.com/j-veylop/codequota/internal/version"
)

// maxBodySize caps how much of a usage response is read.
const maxBodySize = 1 << 20

// ClaudeFetcher reads the Claude subscription usage.
type ClaudeFetcher struct {
	httpClient *http.Client
	usageURL   string
	beta       string
}

// NewClaudeFetcher creates a fetcher for usageURL. beta is sent as the
// anthropic-beta header.
func NewClaudeFetcher(httpClient *http.Client, usageURL, beta string) *ClaudeFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ClaudeFetcher{httpClient: httpClient, usageURL: usageURL, beta: beta}
}

// Provider returns models.ProviderClaude.
func (f *ClaudeFetcher) Provider() models.Provider {
	return models.ProviderClaude
}

// Fetch retrieves and parses the usage with token.
func (f *ClaudeFetcher) Fetch(ctx context.Context, token string) (models.ClaudeUsage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.usageURL, nil)
	if err != nil {
		return models.ClaudeUsage{}, fmt.Errorf("failed to create usage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if f.beta != "" {
		req.Header.Set("anthropic-beta", f.beta)
	}

	status, body, err := do(f.httpClient, req, "usage fetch")
	if err != nil {
		return models.ClaudeUsage{}, err
	}
	if err := statusError(status, body); err != nil {
		return models.ClaudeUsage{}, err
	}
	return usage.ParseClaude(body)
}

// LoginSource resolves the account login the billing endpoint is keyed on.
type LoginSource interface {
	Login(ctx context.Context) (string, error)
}

// CopilotFetcher reads the Copilot premium request usage of the current
// month.
type CopilotFetcher struct {
	httpClient *http.Client
	logins     LoginSource
	now        func() time.Time
	apiURL     string
	apiVersion string
}

// NewCopilotFetcher creates a fetcher against the GitHub API at apiURL.
func NewCopilotFetcher(httpClient *http.Client, logins LoginSource, apiURL, apiVersion string) *CopilotFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CopilotFetcher{
		httpClient: httpClient,
		logins:     logins,
		now:        time.Now,
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiVersion: apiVersion,
	}
}

// Provider returns models.ProviderCopilot.
func (f *CopilotFetcher) Provider() models.Provider {
	return models.ProviderCopilot
}

// UsageURL returns the billing URL for login in the month containing at.
func (f *CopilotFetcher) UsageURL(login string, at time.Time) string {
	at = at.UTC()
	q := url.Values{}
	q.Set("year", fmt.Sprint(at.Year()))
	q.Set("month", fmt.Sprint(int(at.Month())))
	return fmt.Sprintf("%s/users/%s/settings/billing/premium_request/usage?%s",
		f.apiURL, url.PathEscape(login), q.Encode())
}

// Fetch retrieves and parses the usage with token.
func (f *CopilotFetcher) Fetch(ctx context.Context, token string) (models.CopilotUsage, error) {
	login, err := f.logins.Login(ctx)
	if err != nil {
		return models.CopilotUsage{}, fmt.Errorf("failed to resolve GitHub login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.UsageURL(login, f.now()), nil)
	if err != nil {
		return models.CopilotUsage{}, fmt.Errorf("failed to create usage request: %w", err)
	}
	oauth.SetGitHubHeaders(req, token, f.apiVersion)

	status, body, err := do(f.httpClient, req, "usage fetch")
	if err != nil {
		return models.CopilotUsage{}, err
	}
	switch status {
	case http.StatusForbidden:
		return models.CopilotUsage{}, &models.AuthenticationError{
			Status: status,
			Reason: "token cannot read billing usage, reconnect to grant the required scope",
		}
	case http.StatusNotFound:
		return models.CopilotUsage{}, &models.ServerError{
			Status:  status,
			Message: "billing API not found (Copilot Pro subscription required?)",
		}
	}
	if err := statusError(status, body); err != nil {
		return models.CopilotUsage{}, err
	}
	return usage.ParseCopilot(body)
}

// do sends req and returns the status and body. Transport failures are
// returned as *models.NetworkError.
func do(client *http.Client, req *http.Request, op string) (int, []byte, error) {
	resp, err := client.Do(req)
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

// statusError maps a non-2xx status to an error.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &models.AuthenticationError{Status: status, Reason: "token rejected"}
	default:
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return &models.ServerError{Status: status, Message: msg}
	}
}
