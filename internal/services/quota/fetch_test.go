package quota

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/j-veylop/codequota/internal/models"
)

// MockRoundTripper implements http.RoundTripper for testing
type MockRoundTripper struct {
	RoundTripFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req)
}

func respond(status int, body string) *MockRoundTripper {
	return &MockRoundTripper{
		RoundTripFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}, nil
		},
	}
}

// staticLogin implements LoginSource for testing
type staticLogin struct {
	err   error
	login string
}

func (s staticLogin) Login(context.Context) (string, error) {
	return s.login, s.err
}

func TestClaudeFetcher_Request(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/oauth/usage" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("anthropic-beta"); got != "oauth-2025-04-20" {
			t.Errorf("anthropic-beta = %q", got)
		}
		_, _ = w.Write([]byte(`{"five_hour":{"utilization":12.5,"resets_at":"2025-01-01T05:00:00Z"},"seven_day":{"utilization":40}}`))
	}))
	defer server.Close()

	f := NewClaudeFetcher(server.Client(), server.URL+"/api/oauth/usage", "oauth-2025-04-20")
	if f.Provider() != models.ProviderClaude {
		t.Errorf("Provider() = %q", f.Provider())
	}

	u, err := f.Fetch(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if u.FiveHour.Percent != 12.5 || u.FiveHour.ResetAt == nil || u.WeeklyAll.Percent != 40 {
		t.Errorf("usage = %+v", u)
	}
}

func TestClaudeFetcher_Errors(t *testing.T) {
	tests := []struct {
		transport http.RoundTripper
		check     func(error) bool
		name      string
	}{
		{
			name:      "Unauthorized",
			transport: respond(401, `{"error":"invalid token"}`),
			check: func(err error) bool {
				var authErr *models.AuthenticationError
				return errors.As(err, &authErr) && authErr.Status == 401
			},
		},
		{
			name:      "ServerError",
			transport: respond(529, `overloaded`),
			check: func(err error) bool {
				var serverErr *models.ServerError
				return errors.As(err, &serverErr) && serverErr.Status == 529 && serverErr.Message == "overloaded"
			},
		},
		{
			name: "Network",
			transport: &MockRoundTripper{RoundTripFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("no such host")
			}},
			check: func(err error) bool {
				var netErr *models.NetworkError
				return errors.As(err, &netErr)
			},
		},
		{
			name:      "InvalidJSON",
			transport: respond(200, `<html>`),
			check: func(err error) bool {
				var parseErr *models.ParseError
				return errors.As(err, &parseErr) && parseErr.Kind == models.InvalidJSON
			},
		},
		{
			name:      "Unrecognized",
			transport: respond(200, `{"foo":1}`),
			check: func(err error) bool {
				var parseErr *models.ParseError
				return errors.As(err, &parseErr) && parseErr.Kind == models.UnrecognizedFormat
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewClaudeFetcher(&http.Client{Transport: tt.transport}, "http://usage", "")
			_, err := f.Fetch(context.Background(), "tok")
			if !tt.check(err) {
				t.Errorf("Fetch() error = %v (%T)", err, err)
			}
		})
	}
}

func TestCopilotFetcher_UsageURL(t *testing.T) {
	f := NewCopilotFetcher(nil, staticLogin{}, "https://api.github.com/", "2022-11-28")
	at := time.Date(2025, 2, 28, 23, 30, 0, 0, time.FixedZone("X", -3*3600))

	got := f.UsageURL("octo cat", at)
	want := "https://api.github.com/users/octo%20cat/settings/billing/premium_request/usage?month=3&year=2025"
	if got != want {
		t.Errorf("UsageURL() = %q, want %q", got, want)
	}
}

func TestCopilotFetcher_Request(t *testing.T) {
	var gotURL string
	f := NewCopilotFetcher(&http.Client{Transport: &MockRoundTripper{
		RoundTripFunc: func(req *http.Request) (*http.Response, error) {
			gotURL = req.URL.String()
			if req.Header.Get("Authorization") != "Bearer tok" ||
				req.Header.Get("Accept") != "application/vnd.github+json" ||
				req.Header.Get("X-GitHub-Api-Version") != "2022-11-28" {
				t.Errorf("headers = %v", req.Header)
			}
			body := `{"usageItems":[{"model":"gpt-4o","grossQuantity":100,"discountQuantity":100},` +
				`{"model":"claude-sonnet","grossQuantity":50,"discountQuantity":50},` +
				`{"model":"gpt-4o","grossQuantity":30,"discountQuantity":30}]}`
			return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body))}, nil
		},
	}}, staticLogin{login: "octocat"}, "https://api.github.com", "2022-11-28")
	f.now = func() time.Time { return time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC) }

	u, err := f.Fetch(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.HasPrefix(gotURL, "https://api.github.com/users/octocat/settings/billing/premium_request/usage?") ||
		!strings.Contains(gotURL, "year=2025") || !strings.Contains(gotURL, "month=7") {
		t.Errorf("URL = %q", gotURL)
	}
	if u.Used != 180 || u.Limit != 300 || u.Percent != 60 || u.ByModel[0].Model != "gpt-4o" {
		t.Errorf("usage = %+v", u)
	}
}

func TestCopilotFetcher_Errors(t *testing.T) {
	tests := []struct {
		transport http.RoundTripper
		logins    LoginSource
		check     func(error) bool
		name      string
	}{
		{
			name:      "Forbidden",
			transport: respond(403, `{"message":"Resource not accessible by integration"}`),
			logins:    staticLogin{login: "octocat"},
			check: func(err error) bool {
				var authErr *models.AuthenticationError
				return errors.As(err, &authErr) && authErr.Status == 403 && strings.Contains(authErr.Reason, "scope")
			},
		},
		{
			name:      "NotFound",
			transport: respond(404, `{"message":"Not Found"}`),
			logins:    staticLogin{login: "octocat"},
			check: func(err error) bool {
				var serverErr *models.ServerError
				return errors.As(err, &serverErr) && strings.Contains(serverErr.Message, "Copilot Pro subscription required")
			},
		},
		{
			name:      "Unauthorized",
			transport: respond(401, ``),
			logins:    staticLogin{login: "octocat"},
			check: func(err error) bool {
				var authErr *models.AuthenticationError
				return errors.As(err, &authErr) && authErr.Status == 401
			},
		},
		{
			name:      "LoginFailure",
			transport: respond(200, `{}`),
			logins:    staticLogin{err: &models.AuthenticationError{Status: 401, Reason: "bad"}},
			check: func(err error) bool {
				return isUnauthorized(err) && strings.Contains(err.Error(), "GitHub login")
			},
		},
		{
			name:      "NoItems",
			transport: respond(200, `{"timePeriod":{"year":2025}}`),
			logins:    staticLogin{login: "octocat"},
			check:     func(err error) bool { return err == nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewCopilotFetcher(&http.Client{Transport: tt.transport}, tt.logins, "http://api", "")
			_, err := f.Fetch(context.Background(), "tok")
			if !tt.check(err) {
				t.Errorf("Fetch() error = %v", err)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	if err := statusError(204, nil); err != nil {
		t.Errorf("statusError(204) = %v", err)
	}
	long := strings.Repeat("a", 500)
	var serverErr *models.ServerError
	if err := statusError(500, []byte(long)); !errors.As(err, &serverErr) || len(serverErr.Message) != 203 {
		t.Errorf("statusError(500) = %v", err)
	}
}
