package canon

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DocumentExtension is appended to every canonical file name.
	DocumentExtension = ".html"

	// Substitute replaces path separators and unsafe characters in file names.
	Substitute = '_'
)

// Scope is the result of a scope decision.
type Scope int

const (
	// OutOfScope marks a URL that is not mirrored.
	OutOfScope Scope = iota

	// InScope marks a URL under the scope root.
	InScope
)

// String returns the scope name used in logs and reports.
func (s Scope) String() string {
	switch s {
	case InScope:
		return "in-scope"
	case OutOfScope:
		return "out-of-scope"
	default:
		return "unknown"
	}
}

// Canonicalizer holds the immutable site origin and scope root of one crawl.
// All methods are pure and safe for concurrent use.
type Canonicalizer struct {
	// origin is scheme://host[:port] of the seed, without a trailing slash.
	origin string

	// host is the seed host including the port, used as the fallback name.
	host string

	// scopeRoot is the seed with its last path segment removed.
	scopeRoot string
}

// New builds a Canonicalizer from the seed URL.
// The seed must be an absolute http or https URL.
func New(seed string) (*Canonicalizer, error) {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	if u.Host == "" {
		return nil, ErrMissingHost
	}

	origin := scheme + "://" + u.Host

	// Everything after the last "/" of the path is the final segment
	// (typically an index file) and is not part of the scope.
	path := u.EscapedPath()
	root := origin + "/"
	if i := strings.LastIndex(path, "/"); i >= 0 {
		root = origin + path[:i+1]
	}

	return &Canonicalizer{
		origin:    origin,
		host:      u.Host,
		scopeRoot: root,
	}, nil
}

// Origin returns the site origin, e.g. "http://127.0.0.1:48626".
func (c *Canonicalizer) Origin() string {
	return c.origin
}

// Host returns the seed host including any port.
func (c *Canonicalizer) Host() string {
	return c.host
}

// ScopeRoot returns the prefix every in-scope URL starts with.
func (c *Canonicalizer) ScopeRoot() string {
	return c.scopeRoot
}

// ClassifyScope reports whether rawURL, with any fragment removed, lies
// under the scope root.
func (c *Canonicalizer) ClassifyScope(rawURL string) Scope {
	if strings.HasPrefix(StripFragment(rawURL), c.scopeRoot) {
		return InScope
	}
	return OutOfScope
}

// SameOrigin reports whether rawURL belongs to the site origin.
func (c *Canonicalizer) SameOrigin(rawURL string) bool {
	if !strings.HasPrefix(rawURL, c.origin) {
		return false
	}
	// "http://host:80" must not match "http://host:8080/...".
	rest := rawURL[len(c.origin):]
	return rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#'
}

// Filename maps rawURL to its canonical file name in the mirror.
//
// The query string and fragment are dropped, the site origin is removed, and
// the remaining path segments are joined with Substitute. An empty result
// falls back to the host name. The function never fails and applying it to
// its own output returns the output unchanged.
func (c *Canonicalizer) Filename(rawURL string) string {
	s, _, _ := strings.Cut(rawURL, "?")
	s, _, _ = strings.Cut(s, "#")

	name := strings.TrimPrefix(s, c.origin)
	name = strings.Trim(name, "/")
	name = strings.ReplaceAll(name, "/", string(Substitute))

	if name == "" {
		name = c.hostOf(s)
	}

	name = strings.Map(safeRune, name)

	if !strings.HasSuffix(name, DocumentExtension) {
		name += DocumentExtension
	}

	return strings.TrimLeft(name, string(Substitute))
}

// hostOf returns the host of s, or the seed host when s has none.
func (c *Canonicalizer) hostOf(s string) string {
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		return u.Host
	}
	return c.host
}

// safeRune replaces characters that are unsafe in file names.
func safeRune(r rune) rune {
	if IsUnsafe(r) {
		return Substitute
	}
	return r
}

// IsUnsafe reports whether r may not appear in a canonical file name.
func IsUnsafe(r rune) bool {
	switch r {
	case '\\', '/', '*', '?', ':', '"', '<', '>', '|':
		return true
	}
	return r < 0x20 || r == 0x7f
}

// StripFragment returns rawURL without its "#fragment" part.
func StripFragment(rawURL string) string {
	base, _, _ := strings.Cut(rawURL, "#")
	return base
}
