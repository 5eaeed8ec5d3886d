package provider

import (
	"errors"
	"fmt"
)

// UnavailableError reports that a backend could not be consulted at all:
// it is unreachable, locked, or the caller is not authenticated.
//
// It is deliberately distinct from a missing key. Get returns found=false
// with a nil error when the backend answered and the key is simply absent.
type UnavailableError struct {
	Provider string
	Message  string
	Err      error
}

func (e UnavailableError) Error() string {
	msg := fmt.Sprintf("provider %s is unavailable", e.Provider)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e UnavailableError) Unwrap() error {
	return e.Err
}

// ReadOnlyError is returned when a write is attempted against a provider
// whose AllowsSet reports false.
type ReadOnlyError struct {
	Provider string
}

func (e ReadOnlyError) Error() string {
	return fmt.Sprintf("provider %s is read-only", e.Provider)
}

// WriteRejectedError is returned when a writable backend refused a write,
// for example because of permissions or quota.
type WriteRejectedError struct {
	Provider string
	Key      string
	Err      error
}

func (e WriteRejectedError) Error() string {
	msg := fmt.Sprintf("provider %s rejected write of %s", e.Provider, e.Key)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e WriteRejectedError) Unwrap() error {
	return e.Err
}

// InvalidURIError reports a provider identifier that cannot be used,
// either because its syntax is malformed or because no backend is
// registered for its scheme.
type InvalidURIError struct {
	URI    string
	Reason string
	Err    error
}

func (e InvalidURIError) Error() string {
	msg := fmt.Sprintf("invalid provider URI %q", e.URI)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e InvalidURIError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is or wraps an UnavailableError.
func IsUnavailable(err error) bool {
	var target UnavailableError
	return errors.As(err, &target)
}

// IsReadOnly reports whether err is or wraps a ReadOnlyError.
func IsReadOnly(err error) bool {
	var target ReadOnlyError
	return errors.As(err, &target)
}

// IsWriteRejected reports whether err is or wraps a WriteRejectedError.
func IsWriteRejected(err error) bool {
	var target WriteRejectedError
	return errors.As(err, &target)
}

// IsInvalidURI reports whether err is or wraps an InvalidURIError.
func IsInvalidURI(err error) bool {
	var target InvalidURIError
	return errors.As(err, &target)
}
