package rewrite

import (
	"bytes"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/docmirror/internal/canon"
)

// urlParser resolves hrefs the way browsers do.
var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// Rewriter rewrites the hyperlinks of one crawl's pages.
// It holds no per-page state and is safe for concurrent use.
type Rewriter struct {
	canon *canon.Canonicalizer
}

// NewRewriter creates a Rewriter that names files and decides scope with c.
func NewRewriter(c *canon.Canonicalizer) *Rewriter {
	return &Rewriter{canon: c}
}

// Result is the outcome of rewriting one document tree.
type Result struct {
	// Doc is the rewritten copy of the input tree.
	Doc *html.Node

	// Links are the same-origin absolute URLs found on the page, fragment
	// stripped, in document order and without duplicates.
	Links []string

	// Rewritten counts hrefs pointed at a mirrored file.
	Rewritten int

	// Anchors counts hrefs turned into same-page "#fragment" references.
	Anchors int

	// Stripped counts links replaced by their text.
	Stripped int
}

// Rendered is a rewritten document serialized back to HTML.
type Rendered struct {
	// Content is the rendered HTML.
	Content []byte

	// Links are the discovered URLs, see Result.Links.
	Links []string

	Rewritten int
	Anchors   int
	Stripped  int

	// Relabeled counts <meta> charset declarations changed to UTF-8.
	Relabeled int
}

// Rewrite returns a rewritten copy of doc, which is the parse tree of the
// page at pageURL. doc itself is left untouched.
//
// For each <a href> element the href is resolved against pageURL and then:
//   - a fragment whose base is the page itself becomes "#fragment"
//   - an in-scope target becomes its canonical file name, keeping any fragment
//   - anything else is replaced by the element's text content
func (r *Rewriter) Rewrite(pageURL string, doc *html.Node) *Result {
	out := cloneTree(doc)
	page := r.normalizePage(pageURL)

	res := &Result{Doc: out, Links: make([]string, 0)}
	seen := make(map[string]struct{})

	// Collect first: replacing nodes while walking would skip siblings.
	for _, a := range collectAnchors(out) {
		href, ok := getAttr(a, "href")
		if !ok {
			continue
		}

		href = strings.TrimSpace(href)
		_, fragment, hasFragment := strings.Cut(href, "#")
		resolved, err := urlParser.ParseRef(page, href)
		if err != nil {
			replaceWithText(a)
			res.Stripped++
			continue
		}
		base := resolved.Href(true)
		sameDoc := hasFragment && base == page

		// Links with a fragment discover their base page too.
		if !sameDoc && r.canon.SameOrigin(base) {
			if _, dup := seen[base]; !dup {
				seen[base] = struct{}{}
				res.Links = append(res.Links, base)
			}
		}

		switch {
		case sameDoc:
			setAttr(a, "href", "#"+fragment)
			res.Anchors++
		case r.canon.ClassifyScope(base) == canon.InScope:
			target := r.canon.Filename(base)
			if hasFragment {
				target += "#" + fragment
			}
			setAttr(a, "href", target)
			res.Rewritten++
		default:
			replaceWithText(a)
			res.Stripped++
		}
	}

	return res
}

// RewriteHTML parses content, rewrites it, and renders the result.
// Content that cannot be parsed or rendered yields a *MalformedDocumentError.
func (r *Rewriter) RewriteHTML(pageURL string, content []byte, opts ...RenderOption) (*Rendered, error) {
	var o renderOptions
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, &MalformedDocumentError{URL: pageURL, Err: err}
	}

	res := r.Rewrite(pageURL, doc)
	relabeled := 0
	if o.utf8Meta {
		relabeled = relabelCharset(res.Doc)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, res.Doc); err != nil {
		return nil, &MalformedDocumentError{URL: pageURL, Err: err}
	}

	return &Rendered{
		Content:   buf.Bytes(),
		Links:     res.Links,
		Rewritten: res.Rewritten,
		Anchors:   res.Anchors,
		Stripped:  res.Stripped,
		Relabeled: relabeled,
	}, nil
}

// NormalizeURL parses rawURL and returns its serialized form without the
// fragment, as used for discovered links.
func NormalizeURL(rawURL string) (string, error) {
	u, err := urlParser.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	return u.Href(true), nil
}

// normalizePage returns pageURL in the same serialized form as resolved
// hrefs, so that same-page comparison is exact.
func (r *Rewriter) normalizePage(pageURL string) string {
	page, err := NormalizeURL(pageURL)
	if err != nil {
		return canon.StripFragment(pageURL)
	}
	return page
}

// collectAnchors returns every <a> element below n in document order.
func collectAnchors(n *html.Node) []*html.Node {
	var anchors []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			anchors = append(anchors, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return anchors
}

// replaceWithText swaps n for a text node holding n's visible text.
// A node without a parent is left as is.
func replaceWithText(n *html.Node) {
	if n.Parent == nil {
		return
	}
	text := &html.Node{Type: html.TextNode, Data: textContent(n)}
	n.Parent.InsertBefore(text, n)
	n.Parent.RemoveChild(n)
}

// textContent concatenates the text nodes below n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// setAttr sets an existing attribute value on an HTML node.
func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// cloneTree returns a deep copy of n that shares no nodes with it.
func cloneTree(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneTree(child))
	}
	return c
}
