package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrStatus is wrapped by a FetchError for non-2xx responses.
	ErrStatus = errors.New("unexpected status code")

	// ErrDisallowed is wrapped by a FetchError when robots.txt forbids the URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrInvalidProxyAddress is returned when the proxy address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// FetchError describes a failed retrieval. StatusCode is 0 when no
// response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
