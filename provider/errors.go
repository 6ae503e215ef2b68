package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when merchant id, key or salt is empty
	ErrMissingCredentials = errors.New("merchant credentials are not set")

	// ErrValidation matches every *ValidationError
	ErrValidation = errors.New("invalid payment request")

	// ErrSignatureMismatch is returned when a callback hash does not verify
	ErrSignatureMismatch = errors.New("callback hash mismatch")
)

// ConfigurationError reports a gateway that cannot be used until an operator fixes it
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError reports caller input rejected before any network call
type ValidationError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Provider, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError wraps a failure to reach the provider
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a provider response that could not be understood
type ProtocolError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid provider response (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("invalid provider response (status %d)", e.StatusCode)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
