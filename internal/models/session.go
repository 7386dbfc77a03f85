package models

import "time"

// DefaultPollInterval is used when the device-code response omits interval.
const DefaultPollInterval = 5 * time.Second

// DeviceSession is the transient state of a device-code authorization.
// It is never persisted.
type DeviceSession struct {
	DeviceCode      string        `json:"-"`
	UserCode        string        `json:"userCode"`
	VerificationURL string        `json:"verificationUrl"`
	Interval        time.Duration `json:"interval"`
	ExpiresAt       time.Time     `json:"expiresAt,omitzero"`
}

// AuthPhase is the position of an auth client in its state machine.
type AuthPhase int

const (
	// PhaseIdle means no flow is running.
	PhaseIdle AuthPhase = iota
	// PhaseAwaitingCode means an authorization URL was generated and the
	// client waits for the user to paste the code back.
	PhaseAwaitingCode
	// PhaseExchanging means the code is being exchanged for tokens.
	PhaseExchanging
	// PhaseRequesting means a device code is being requested.
	PhaseRequesting
	// PhasePolling means the token endpoint is polled for the device code.
	PhasePolling
	// PhaseConnected means credentials are stored.
	PhaseConnected
)

// String returns the string representation of an AuthPhase.
func (p AuthPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingCode:
		return "awaiting_code"
	case PhaseExchanging:
		return "exchanging"
	case PhaseRequesting:
		return "requesting"
	case PhasePolling:
		return "polling"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// AuthStatus is the published view of an auth client.
type AuthStatus struct {
	Session   *DeviceSession `json:"session,omitempty"`
	Provider  Provider       `json:"provider"`
	Error     string         `json:"error,omitempty"`
	Username  string         `json:"username,omitempty"`
	Phase     AuthPhase      `json:"phase"`
	Connected bool           `json:"connected"`
}

// InProgress reports whether a flow is waiting on the user or the network.
func (s AuthStatus) InProgress() bool {
	switch s.Phase {
	case PhaseAwaitingCode, PhaseExchanging, PhaseRequesting, PhasePolling:
		return true
	default:
		return false
	}
}
