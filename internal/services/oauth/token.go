package oauth

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/j-veylop/codequota/internal/models"
)

// tokenResponse is the decoded body of a token endpoint reply.
type tokenResponse struct {
	raw              map[string]any
	AccessToken      string
	RefreshToken     string
	Error            string
	ErrorDescription string
	// ExpiresIn is zero when the reply carries no usable lifetime.
	ExpiresIn time.Duration
}

// parseTokenResponse decodes a token endpoint body. expires_in may be an
// integer or a fraction of seconds.
func parseTokenResponse(body []byte) (*tokenResponse, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, &models.ParseError{Kind: models.InvalidJSON, Err: err}
	}

	resp := &tokenResponse{raw: raw}
	resp.AccessToken, _ = raw["access_token"].(string)
	resp.RefreshToken, _ = raw["refresh_token"].(string)
	resp.Error, _ = raw["error"].(string)
	resp.ErrorDescription, _ = raw["error_description"].(string)
	if secs, ok := raw["expires_in"].(float64); ok && secs > 0 {
		resp.ExpiresIn = time.Duration(secs * float64(time.Second))
	}
	return resp, nil
}

// message returns the human readable error of the reply.
func (r *tokenResponse) message() string {
	if r.ErrorDescription != "" {
		return r.ErrorDescription
	}
	return r.Error
}

// keys returns the sorted top-level keys, for diagnostics.
func (r *tokenResponse) keys() []string {
	keys := lo.Keys(r.raw)
	slices.Sort(keys)
	return keys
}

// credentials converts the reply into credentials issued at issuedAt.
func (r *tokenResponse) credentials(issuedAt time.Time) *models.Credentials {
	creds := models.NewCredentials(r.AccessToken, r.RefreshToken, issuedAt, r.ExpiresIn)
	return &creds
}

// tokenError maps a token endpoint reply to an error. It returns nil for a
// successful reply carrying an access token.
func tokenError(status int, body []byte) (*tokenResponse, error) {
	resp, err := parseTokenResponse(body)
	if err != nil {
		if status < 200 || status >= 300 {
			return nil, &models.ServerError{Status: status, Message: snippet(body)}
		}
		return nil, err
	}

	if resp.Error != "" {
		return resp, &models.AuthenticationError{Status: status, Reason: resp.message()}
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return resp, &models.AuthenticationError{Status: status, Reason: snippet(body)}
	}
	if status < 200 || status >= 300 {
		return resp, &models.ServerError{Status: status, Message: snippet(body)}
	}
	if resp.AccessToken == "" {
		return resp, &models.AuthenticationError{
			Status: status,
			Reason: "missing access token, response keys: " + strings.Join(resp.keys(), ", "),
		}
	}
	return resp, nil
}

// snippet shortens a body for inclusion in an error message.
func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
