// Package models defines data structures and domain types.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTokenLifetime is used when a token response omits expires_in or
// carries a value that cannot be read as seconds.
const DefaultTokenLifetime = 3600 * time.Second

// Credentials holds an OAuth token set for one provider.
type Credentials struct {
	ExpiresAt    time.Time `json:"expiresAt"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

// NewCredentials builds credentials that expire lifetime after issuedAt.
// A non-positive lifetime falls back to DefaultTokenLifetime.
func NewCredentials(accessToken, refreshToken string, issuedAt time.Time, lifetime time.Duration) Credentials {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    issuedAt.Add(lifetime),
	}
}

// IsExpired reports whether the access token is no longer usable at now.
// A token is expired at the exact instant of ExpiresAt.
func (c *Credentials) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Marshal encodes the credentials as an opaque store record.
func (c *Credentials) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCredentials decodes a store record produced by Marshal.
func UnmarshalCredentials(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if c.AccessToken == "" {
		return nil, fmt.Errorf("credentials record has no access token")
	}
	return &c, nil
}
