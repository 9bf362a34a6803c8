package crawler

import "errors"

// ErrInvalidPattern is returned when an ignore or follow pattern is not a
// valid glob.
var ErrInvalidPattern = errors.New("invalid URL pattern")
