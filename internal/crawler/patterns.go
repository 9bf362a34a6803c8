package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// pathPattern is a compiled ignore or follow pattern.
type pathPattern struct {
	raw string
	g   glob.Glob

	// baseName patterns contain no "/" and are matched against the last
	// path segment, so "*.pdf" matches "/docs/manual.pdf".
	baseName bool
}

// compilePatterns compiles glob patterns over URL paths. "*" does not cross
// a "/" while "**" does.
func compilePatterns(patterns []string) ([]pathPattern, error) {
	compiled := make([]pathPattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, p, err)
		}
		compiled = append(compiled, pathPattern{
			raw:      p,
			g:        g,
			baseName: !strings.Contains(p, "/"),
		})
	}
	return compiled, nil
}

func (p pathPattern) match(urlPath string) bool {
	if p.baseName {
		return p.g.Match(path.Base(urlPath))
	}
	return p.g.Match(urlPath)
}

// linkFilter decides which discovered links may be enqueued.
type linkFilter struct {
	ignore []pathPattern
	follow []pathPattern
}

// allows reports whether targetURL passes the filter:
//  1. a URL whose path matches an ignore pattern is rejected
//  2. with follow patterns set, the path must match one of them
//  3. anything else is accepted
func (f *linkFilter) allows(targetURL string) bool {
	if len(f.ignore) == 0 && len(f.follow) == 0 {
		return true
	}

	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.ignore {
		if pattern.match(p) {
			return false
		}
	}

	if len(f.follow) == 0 {
		return true
	}
	for _, pattern := range f.follow {
		if pattern.match(p) {
			return true
		}
	}
	return false
}
