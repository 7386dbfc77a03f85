package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoPendingAuthorization is returned when a code is submitted without
	// an authorization URL having been generated first.
	ErrNoPendingAuthorization = errors.New("no pending authorization, open the authorization link first")
	// ErrExchangeInProgress is returned when a code exchange is already running.
	ErrExchangeInProgress = errors.New("a code exchange is already in progress")
	// ErrAuthorizationDenied is returned when the user declined the device flow.
	ErrAuthorizationDenied = errors.New("authorization was denied")
	// ErrAuthorizationExpired is returned when the device code expired.
	ErrAuthorizationExpired = errors.New("authorization timed out, please try again")
	// ErrSessionExpired is returned when no valid token could be obtained.
	ErrSessionExpired = errors.New("session expired, please reconnect")
	// ErrNotConnected is returned when a provider has no stored credentials.
	ErrNotConnected = errors.New("not connected")
)

// NetworkError is a transport-level failure.
type NetworkError struct {
	Err error
	Op  string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError is a 401/403 response or an unusable token payload.
type AuthenticationError struct {
	Reason string
	Status int
}

func (e *AuthenticationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed (HTTP %d): %s", e.Status, e.Reason)
	}
	return "authentication failed: " + e.Reason
}

// ServerError is a non-2xx response that is not an authentication failure.
type ServerError struct {
	Message string
	Status  int
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.Status)
}

// ParseErrorKind distinguishes the ways a usage payload can be rejected.
type ParseErrorKind int

const (
	// InvalidJSON means the body is not a JSON object.
	InvalidJSON ParseErrorKind = iota
	// UnrecognizedFormat means no usage bucket could be located.
	UnrecognizedFormat
)

// ParseError is returned by the usage parsers.
type ParseError struct {
	Err  error
	Keys []string
	Kind ParseErrorKind
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case UnrecognizedFormat:
		return "unrecognized usage format, keys: " + strings.Join(e.Keys, ", ")
	default:
		if e.Err != nil {
			return fmt.Sprintf("invalid JSON: %v", e.Err)
		}
		return "invalid JSON"
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err means the user has to authenticate again.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrNotConnected)
}
