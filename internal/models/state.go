package models

import "time"

// StateKind tags the variant held by a UsageState.
type StateKind int

const (
	// StateNotConnected means the provider has no credentials.
	StateNotConnected StateKind = iota
	// StateLoading means a fetch is running and nothing has loaded yet.
	StateLoading
	// StateLoaded means Usage holds the latest successful fetch.
	StateLoaded
	// StateError means the latest fetch failed; Message describes why.
	StateError
)

// String returns the string representation of a StateKind.
func (k StateKind) String() string {
	switch k {
	case StateNotConnected:
		return "not_connected"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// UsageState is the value a sync engine publishes for one provider.
type UsageState[T any] struct {
	Usage   T
	Message string
	Kind    StateKind
}

// NotConnected returns the initial state.
func NotConnected[T any]() UsageState[T] {
	return UsageState[T]{Kind: StateNotConnected}
}

// Loading returns the loading state.
func Loading[T any]() UsageState[T] {
	return UsageState[T]{Kind: StateLoading}
}

// Loaded wraps a successfully fetched usage value.
func Loaded[T any](usage T) UsageState[T] {
	return UsageState[T]{Kind: StateLoaded, Usage: usage}
}

// Failed wraps an error message for display.
func Failed[T any](message string) UsageState[T] {
	return UsageState[T]{Kind: StateError, Message: message}
}

// IsLoaded reports whether the state carries a usage value.
func (s UsageState[T]) IsLoaded() bool {
	return s.Kind == StateLoaded
}

// Snapshot is a published view of an engine: its state plus freshness.
type Snapshot[T any] struct {
	LastUpdated    time.Time
	Provider       Provider
	LastUpdateText string
	State          UsageState[T]
}

// Provider identifies one of the monitored services.
type Provider string

const (
	// ProviderClaude is the Anthropic Claude subscription.
	ProviderClaude Provider = "claude"
	// ProviderCopilot is the GitHub Copilot subscription.
	ProviderCopilot Provider = "copilot"
)

// DisplayName returns the user-facing provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderClaude:
		return "Claude"
	case ProviderCopilot:
		return "Copilot"
	default:
		return string(p)
	}
}
