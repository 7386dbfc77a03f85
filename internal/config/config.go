// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath           string
	CredentialStore        string
	CredentialsPath        string
	LogLevel               string
	LogPath                string
	Anthropic              AnthropicConfig
	GitHub                 GitHubConfig
	ClaudeRefreshInterval  time.Duration
	CopilotRefreshInterval time.Duration
	NotifyThreshold        float64
	NotifyEnabled          bool
}

// AnthropicConfig holds the Claude OAuth client and endpoints.
type AnthropicConfig struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	RedirectURL  string
	UsageURL     string
}

// GitHubConfig holds the GitHub OAuth client and endpoints.
type GitHubConfig struct {
	ClientID      string
	DeviceCodeURL string
	TokenURL      string
	APIURL        string
}

// Default values
const (
	defaultClaudeRefreshInterval  = 30 * time.Second
	defaultCopilotRefreshInterval = 120 * time.Second
	// defaultNotifyThreshold is the utilization percent that triggers a
	// critical quota notification.
	defaultNotifyThreshold = 95.0
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		DatabasePath:           getEnvString("DATABASE_PATH", getDefaultPath("codequota.db")),
		CredentialStore:        strings.ToLower(getEnvString("CREDENTIAL_STORE", StoreSQLite)),
		CredentialsPath:        getEnvString("CREDENTIALS_PATH", getDefaultPath("credentials.json")),
		LogLevel:               getEnvString("LOG_LEVEL", "info"),
		LogPath:                getEnvString("LOG_PATH", getDefaultPath("codequota.log")),
		ClaudeRefreshInterval:  getEnvDuration("CLAUDE_REFRESH_INTERVAL", defaultClaudeRefreshInterval),
		CopilotRefreshInterval: getEnvDuration("COPILOT_REFRESH_INTERVAL", defaultCopilotRefreshInterval),
		NotifyEnabled:          getEnvBool("NOTIFY_ENABLED", true),
		NotifyThreshold:        getEnvFloat("NOTIFY_THRESHOLD", defaultNotifyThreshold),
		Anthropic: AnthropicConfig{
			ClientID:     getEnvString("ANTHROPIC_CLIENT_ID", DefaultAnthropicClientID),
			AuthorizeURL: getEnvString("ANTHROPIC_AUTHORIZE_URL", DefaultAnthropicAuthorizeURL),
			TokenURL:     getEnvString("ANTHROPIC_TOKEN_URL", DefaultAnthropicTokenURL),
			RedirectURL:  getEnvString("ANTHROPIC_REDIRECT_URL", DefaultAnthropicRedirectURL),
			UsageURL:     getEnvString("ANTHROPIC_USAGE_URL", DefaultAnthropicUsageURL),
		},
		GitHub: GitHubConfig{
			ClientID:      getEnvString("GITHUB_CLIENT_ID", DefaultGitHubClientID),
			DeviceCodeURL: getEnvString("GITHUB_DEVICE_CODE_URL", DefaultGitHubDeviceCodeURL),
			TokenURL:      getEnvString("GITHUB_TOKEN_URL", DefaultGitHubTokenURL),
			APIURL:        strings.TrimRight(getEnvString("GITHUB_API_URL", DefaultGitHubAPIURL), "/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure data directories exist
	for _, path := range []string{cfg.DatabasePath, cfg.CredentialsPath, cfg.LogPath} {
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	switch c.CredentialStore {
	case StoreSQLite, StoreFile:
	default:
		return fmt.Errorf("CREDENTIAL_STORE must be %q or %q, got %q", StoreSQLite, StoreFile, c.CredentialStore)
	}
	if c.ClaudeRefreshInterval <= 0 {
		return fmt.Errorf("CLAUDE_REFRESH_INTERVAL must be positive, got %s", c.ClaudeRefreshInterval)
	}
	if c.CopilotRefreshInterval <= 0 {
		return fmt.Errorf("COPILOT_REFRESH_INTERVAL must be positive, got %s", c.CopilotRefreshInterval)
	}
	if c.NotifyThreshold <= 0 || c.NotifyThreshold > 100 {
		return fmt.Errorf("NOTIFY_THRESHOLD must be in (0, 100], got %v", c.NotifyThreshold)
	}
	if c.Anthropic.ClientID == "" || c.GitHub.ClientID == "" {
		return fmt.Errorf("ANTHROPIC_CLIENT_ID and GITHUB_CLIENT_ID must not be empty")
	}
	return nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "codequota", ".env"),
			filepath.Join(home, ".codequota", ".env"),
		)
	}

	// Parent directories (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
	}

	return paths
}

// getDefaultPath returns name inside the application config directory.
func getDefaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "codequota", name)
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o700)
}
