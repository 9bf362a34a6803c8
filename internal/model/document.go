package model

import (
	"net/http"
	"strings"
)

// Document is a fetched page. Body is decoded to UTF-8 when the response
// declared or implied another charset.
type Document struct {
	// URL is the absolute URL the document was requested with.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the media type of the response, e.g. "text/html; charset=utf-8".
	ContentType string `json:"content_type"`

	// Headers contains the response headers in canonical form.
	Headers http.Header `json:"headers,omitempty"`

	// Body is the response body, limited by the fetch gateway.
	Body []byte `json:"-"`

	// Charset is CharsetUTF8 when Body is known to be UTF-8, either as
	// served or after decoding. It is empty when the charset is unknown.
	Charset string `json:"charset,omitempty"`
}

// CharsetUTF8 marks a Document whose Body is UTF-8.
const CharsetUTF8 = "utf-8"

// IsHTML reports whether the content type indicates an HTML document.
func (d *Document) IsHTML() bool {
	mediaType, _, _ := strings.Cut(d.ContentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// GetHeader returns the first value of the named header, or "".
func (d *Document) GetHeader(name string) string {
	if d.Headers == nil {
		return ""
	}
	return d.Headers.Get(name)
}
