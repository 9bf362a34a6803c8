package scope

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/docmirror/internal/canon"
	"github.com/nao1215/docmirror/internal/model"
)

// Policy names accepted by New.
const (
	PolicyPrefix  = "prefix"
	PolicyContent = "content"
)

// Classifier decides whether a fetched document is in scope.
type Classifier interface {
	Classify(doc *model.Document) canon.Scope
}

// DefaultKeywords are the words that mark a page as documentation.
var DefaultKeywords = []string{
	"documentation", "docs", "manual", "reference",
	"guide", "api", "help", "tutorial",
}

// DefaultMarkers are selectors of elements typical for documentation pages.
var DefaultMarkers = []string{
	"nav", "[role=navigation]", ".toc", ".breadcrumbs", ".sidebar", "#toc",
}

// PrefixClassifier accepts every document whose URL lies under the scope root.
type PrefixClassifier struct {
	canon *canon.Canonicalizer
}

// NewPrefixClassifier creates a PrefixClassifier for the crawl described by c.
func NewPrefixClassifier(c *canon.Canonicalizer) *PrefixClassifier {
	return &PrefixClassifier{canon: c}
}

// Classify implements Classifier.
func (p *PrefixClassifier) Classify(doc *model.Document) canon.Scope {
	return p.canon.ClassifyScope(doc.URL)
}

// ContentClassifier requires the scope root prefix and then looks for
// documentation signals in the page. A page without any signal is in scope
// unless the classifier is strict.
type ContentClassifier struct {
	canon    *canon.Canonicalizer
	keywords map[string]struct{}
	markers  []string
	strict   bool
}

// ContentOption configures a ContentClassifier.
type ContentOption func(*ContentClassifier)

// WithKeywords replaces the default keyword set. Matching is case-insensitive
// on whole words.
func WithKeywords(keywords ...string) ContentOption {
	return func(c *ContentClassifier) {
		if len(keywords) == 0 {
			return
		}
		c.keywords = keywordSet(keywords)
	}
}

// WithMarkers replaces the default marker selectors.
func WithMarkers(selectors ...string) ContentOption {
	return func(c *ContentClassifier) {
		if len(selectors) == 0 {
			return
		}
		c.markers = selectors
	}
}

// WithStrict makes pages without any signal out of scope.
func WithStrict(strict bool) ContentOption {
	return func(c *ContentClassifier) {
		c.strict = strict
	}
}

// NewContentClassifier creates a ContentClassifier for the crawl described by c.
func NewContentClassifier(c *canon.Canonicalizer, opts ...ContentOption) *ContentClassifier {
	cc := &ContentClassifier{
		canon:    c,
		keywords: keywordSet(DefaultKeywords),
		markers:  DefaultMarkers,
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Classify implements Classifier.
func (c *ContentClassifier) Classify(doc *model.Document) canon.Scope {
	if c.canon.ClassifyScope(doc.URL) == canon.OutOfScope {
		return canon.OutOfScope
	}
	if c.HasSignal(doc) || !c.strict {
		return canon.InScope
	}
	return canon.OutOfScope
}

// HasSignal reports whether doc looks like a documentation page: a keyword
// in the title or in the body class and id attributes, or a marker element.
// Unparseable content has no signal.
func (c *ContentClassifier) HasSignal(doc *model.Document) bool {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return false
	}

	if c.containsKeyword(d.Find("title").First().Text()) {
		return true
	}

	body := d.Find("body").First()
	for _, attr := range []string{"class", "id"} {
		if v, ok := body.Attr(attr); ok && c.containsKeyword(v) {
			return true
		}
	}

	for _, sel := range c.markers {
		if d.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func (c *ContentClassifier) containsKeyword(s string) bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := c.keywords[w]; ok {
			return true
		}
	}
	return false
}

func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// New returns the classifier for the named policy. Unknown policies fall
// back to the prefix policy.
func New(policy string, c *canon.Canonicalizer, opts ...ContentOption) Classifier {
	if policy == PolicyContent {
		return NewContentClassifier(c, opts...)
	}
	return NewPrefixClassifier(c)
}

// ValidPolicy reports whether policy names a known classifier.
func ValidPolicy(policy string) bool {
	return policy == PolicyPrefix || policy == PolicyContent
}
