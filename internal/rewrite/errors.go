package rewrite

import "fmt"

// MalformedDocumentError is returned when a fetched page cannot be parsed or
// rendered as HTML. Callers treat such a page as having no links.
type MalformedDocumentError struct {
	// URL is the page that failed.
	URL string

	// Err is the underlying parse or render error.
	Err error
}

// Error implements the error interface.
func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}
