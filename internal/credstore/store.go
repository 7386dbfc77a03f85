// Package credstore persists provider credentials and small settings.
package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/j-veylop/codequota/internal/models"
)

// Keys used by the application.
const (
	KeyAnthropicCredentials = "anthropic_oauth_credentials"
	KeyGitHubCredentials    = "github_oauth_credentials"
	KeyGitHubUsername       = "github_username"
	KeySelectedMetric       = "menubar_selected_metric"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("credential not found")

// Store is a key/value store for opaque secret records.
type Store interface {
	// Get returns the value under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes all keys together. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Close releases the store's resources.
	Close() error
}

// Watcher is implemented by stores that can be modified by other processes.
type Watcher interface {
	Events() <-chan Event
}

// Event reports an external change to a store.
type Event struct {
	Error error
	Keys  []string
	Type  EventType
}

// EventType defines the type of store event.
type EventType int

const (
	// EventChanged indicates that the listed keys were changed externally.
	EventChanged EventType = iota
	// EventError indicates that the store could not be reloaded.
	EventError
)

// LoadCredentials reads credentials stored under key. It returns nil and
// no error when nothing is stored.
func LoadCredentials(ctx context.Context, s Store, key string) (*models.Credentials, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	creds, err := models.UnmarshalCredentials(data)
	if err != nil {
		return nil, fmt.Errorf("stored %s: %w", key, err)
	}
	return creds, nil
}

// SaveCredentials writes credentials under key.
func SaveCredentials(ctx context.Context, s Store, key string, creds *models.Credentials) error {
	data, err := creds.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return s.Put(ctx, key, data)
}

// GetString reads a text value, returning "" when nothing is stored.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutString stores a text value.
func PutString(ctx context.Context, s Store, key, value string) error {
	return s.Put(ctx, key, []byte(value))
}
