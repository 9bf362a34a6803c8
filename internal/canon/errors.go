package canon

import "errors"

var (
	// ErrInvalidSeed is returned when the seed URL cannot be parsed.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrUnsupportedScheme is returned when the seed is not an http(s) URL.
	ErrUnsupportedScheme = errors.New("unsupported seed URL scheme: must be http or https")

	// ErrMissingHost is returned when the seed URL has no host.
	ErrMissingHost = errors.New("seed URL has no host")
)
