package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when an optional provider has no credentials.
	ErrNotConfigured = errors.New("provider not configured")

	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UpstreamError is a failure of the AI provider or the identity provider.
// Callers may offer a retry.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}
