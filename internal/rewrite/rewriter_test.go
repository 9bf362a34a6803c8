package rewrite

import (
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/nao1215/docmirror/internal/canon"
)

const testPage = "http://x/docs/index.html"

func newTestRewriter(t *testing.T) *Rewriter {
	t.Helper()

	c, err := canon.New(testPage)
	if err != nil {
		t.Fatalf("failed to create canonicalizer: %v", err)
	}
	return NewRewriter(c)
}

func parseDoc(t *testing.T, s string) *html.Node {
	t.Helper()

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()

	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		t.Fatalf("failed to render: %v", err)
	}
	return sb.String()
}

// hrefs returns the href of every <a> element in document order.
func hrefs(n *html.Node) []string {
	var out []string
	for _, a := range collectAnchors(n) {
		if v, ok := getAttr(a, "href"); ok {
			out = append(out, v)
		}
	}
	return out
}

// TestRewriteScenario tests the documented four-link scenario.
func TestRewriteScenario(t *testing.T) {
	t.Parallel()

	r := newTestRewriter(t)
	doc := parseDoc(t, `<html><body>
		<a href="guide.html">Guide</a>
		<a href="../other.html">Other</a>
		<a href="http://external.com">External</a>
		<a href="#top">Top</a>
	</body></html>`)

	res := r.Rewrite(testPage, doc)

	got := hrefs(res.Doc)
	want := []string{"docs_guide.html", "#top"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected hrefs %v, got %v", want, got)
	}

	out := render(t, res.Doc)
	for _, text := range []string{"Other", "External"} {
		if !strings.Contains(out, text) {
			t.Errorf("expected stripped link text %q to remain, output: %s", text, out)
		}
	}
	if strings.Contains(out, "external.com") || strings.Contains(out, "other.html") {
		t.Errorf("out-of-scope targets must not survive: %s", out)
	}

	if res.Rewritten != 1 || res.Anchors != 1 || res.Stripped != 2 {
		t.Errorf("unexpected counters: rewritten=%d anchors=%d stripped=%d",
			res.Rewritten, res.Anchors, res.Stripped)
	}

	wantLinks := []string{"http://x/docs/guide.html", "http://x/other.html"}
	if strings.Join(res.Links, ",") != strings.Join(wantLinks, ",") {
		t.Errorf("expected links %v, got %v", wantLinks, res.Links)
	}
}

// TestRewriteIsPure tests that the input tree is not modified.
func TestRewriteIsPure(t *testing.T) {
	t.Parallel()

	r := newTestRewriter(t)
	src := `<html><head></head><body><a href="guide.html">Guide</a><a href="http://e.com/">E</a></body></html>`
	doc := parseDoc(t, src)
	before := render(t, doc)

	res := r.Rewrite(testPage, doc)

	if after := render(t, doc); after != before {
		t.Errorf("input tree was modified:\nbefore: %s\nafter:  %s", before, after)
	}
	if res.Doc == doc {
		t.Error("expected a new tree")
	}
}

// TestRewriteFragments tests fragment handling on other pages.
func TestRewriteFragments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		href     string
		wantHref string
		stripped bool
	}{
		{name: "in-scope page with fragment", href: "guide.html#install", wantHref: "docs_guide.html#install"},
		{name: "absolute same page fragment", href: "http://x/docs/index.html#top", wantHref: "#top"},
		{name: "empty fragment on same page", href: "#", wantHref: "#"},
		{name: "nested page fragment", href: "nodes/sop.html#parms", wantHref: "docs_nodes_sop.html#parms"},
		{name: "out of scope fragment", href: "../other.html#x", stripped: true},
		{name: "external fragment", href: "http://e.com/a#b", stripped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRewriter(t)
			doc := parseDoc(t, `<p><a href="`+tt.href+`">link text</a></p>`)
			res := r.Rewrite(testPage, doc)

			got := hrefs(res.Doc)
			if tt.stripped {
				if len(got) != 0 {
					t.Errorf("expected link to be stripped, got hrefs %v", got)
				}
				if !strings.Contains(render(t, res.Doc), "link text") {
					t.Error("expected link text to remain")
				}
				return
			}
			if len(got) != 1 || got[0] != tt.wantHref {
				t.Errorf("expected href %q, got %v", tt.wantHref, got)
			}
		})
	}
}

// TestRewriteNeverEmitsOutOfScopeHref tests that every surviving href is
// either a same-page anchor or a mirrored file name.
func TestRewriteNeverEmitsOutOfScopeHref(t *testing.T) {
	t.Parallel()

	r := newTestRewriter(t)
	doc := parseDoc(t, `<body>
		<a href="mailto:dev@example.com">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="https://x/docs/guide.html">other scheme</a>
		<a href="//cdn.example.com/lib.js">protocol relative</a>
		<a href="/">site root</a>
		<a href="/docs">no slash</a>
		<a href="sub/">sub dir</a>
		<a href="http://[::1">broken</a>
		<a href="">self</a>
	</body>`)

	res := r.Rewrite(testPage, doc)

	for _, h := range hrefs(res.Doc) {
		if strings.Contains(h, "://") || strings.HasPrefix(h, "mailto:") || strings.HasPrefix(h, "javascript:") {
			t.Errorf("unexpected href left in output: %q", h)
		}
	}

	got := hrefs(res.Doc)
	want := []string{"docs_sub.html", "docs_index.html"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected hrefs %v, got %v", want, got)
	}
}

// TestRewriteLinkDiscovery tests discovery order and deduplication.
func TestRewriteLinkDiscovery(t *testing.T) {
	t.Parallel()

	r := newTestRewriter(t)
	doc := parseDoc(t, `<body>
		<a href="b.html">B</a>
		<a href="a.html">A</a>
		<a href="b.html">B again</a>
		<a href="http://x/docs/a.html">A absolute</a>
		<a href="c.html#section">C with fragment</a>
		<a href="http://x:8080/docs/d.html">other port</a>
		<a href="http://other/docs/e.html">other host</a>
	</body>`)

	res := r.Rewrite(testPage, doc)

	want := []string{"http://x/docs/b.html", "http://x/docs/a.html", "http://x/docs/c.html"}
	if strings.Join(res.Links, ",") != strings.Join(want, ",") {
		t.Errorf("expected links %v, got %v", want, res.Links)
	}
}

// TestRewriteKeepsNonAnchorContent tests that only <a> elements change.
func TestRewriteKeepsNonAnchorContent(t *testing.T) {
	t.Parallel()

	r := newTestRewriter(t)
	doc := parseDoc(t, `<head><link href="http://e.com/style.css" rel="stylesheet"></head>
		<body><img src="http://e.com/logo.png"><a name="top">Anchor target</a>
		<a href="http://e.com/"><b>bold</b> text</a></body>`)

	out := render(t, r.Rewrite(testPage, doc).Doc)

	for _, want := range []string{
		`href="http://e.com/style.css"`,
		`src="http://e.com/logo.png"`,
		`<a name="top">Anchor target</a>`,
		"bold text",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
	if strings.Contains(out, "<b>bold</b>") {
		t.Error("stripped link should keep only its text")
	}
}

// TestRewriteHTML tests the parse, rewrite, render round trip.
func TestRewriteHTML(t *testing.T) {
	t.Parallel()

	r := newTestRewriter(t)
	res, err := r.RewriteHTML(testPage, []byte(`<html><body><a href="guide.html">Guide</a></body></html>`))
	if err != nil {
		t.Fatalf("RewriteHTML failed: %v", err)
	}

	if !strings.Contains(string(res.Content), `<a href="docs_guide.html">Guide</a>`) {
		t.Errorf("unexpected content: %s", res.Content)
	}
	if len(res.Links) != 1 || res.Links[0] != "http://x/docs/guide.html" {
		t.Errorf("unexpected links: %v", res.Links)
	}
	if res.Rewritten != 1 {
		t.Errorf("expected 1 rewritten link, got %d", res.Rewritten)
	}
}

// TestRewriteHTMLRelabelsCharset tests that meta charset declarations are
// changed to UTF-8 only when asked to.
func TestRewriteHTMLRelabelsCharset(t *testing.T) {
	t.Parallel()

	r := newTestRewriter(t)
	content := []byte(`<html><head>
		<meta charset="Shift_JIS">
		<meta http-equiv="Content-Type" content="text/html; charset=ISO-8859-1">
	</head><body><a href="guide.html">Guide</a></body></html>`)

	t.Run("relabels with option", func(t *testing.T) {
		t.Parallel()

		res, err := r.RewriteHTML(testPage, content, WithUTF8Meta())
		if err != nil {
			t.Fatalf("RewriteHTML failed: %v", err)
		}
		out := string(res.Content)
		if !strings.Contains(out, `<meta charset="utf-8"/>`) {
			t.Errorf("expected relabeled meta charset, got %s", out)
		}
		if !strings.Contains(out, `content="text/html; charset=utf-8"`) {
			t.Errorf("expected relabeled content-type meta, got %s", out)
		}
		if strings.Contains(out, "Shift_JIS") || strings.Contains(out, "ISO-8859-1") {
			t.Errorf("expected original charsets to be gone, got %s", out)
		}
		if res.Relabeled != 2 {
			t.Errorf("expected 2 relabeled declarations, got %d", res.Relabeled)
		}
	})

	t.Run("keeps declarations without option", func(t *testing.T) {
		t.Parallel()

		res, err := r.RewriteHTML(testPage, content)
		if err != nil {
			t.Fatalf("RewriteHTML failed: %v", err)
		}
		if !strings.Contains(string(res.Content), "Shift_JIS") || res.Relabeled != 0 {
			t.Errorf("expected declarations untouched, got %s", res.Content)
		}
	})
}

func TestReplaceCharsetParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "text/html; charset=euc-jp", want: "text/html; charset=utf-8", wantOK: true},
		{in: `text/html; charset="latin1"; x=y`, want: "text/html; charset=utf-8; x=y", wantOK: true},
		{in: "text/html; CHARSET = big5", want: "text/html; CHARSET = utf-8", wantOK: true},
		{in: "text/html; charset=UTF-8", want: "text/html; charset=UTF-8"},
		{in: "text/html", want: "text/html"},
		{in: "text/html; charset", want: "text/html; charset"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, ok := replaceCharsetParam(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("replaceCharsetParam(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestMalformedDocumentError tests the error wrapper.
func TestMalformedDocumentError(t *testing.T) {
	t.Parallel()

	err := &MalformedDocumentError{URL: testPage, Err: io.ErrUnexpectedEOF}

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected error to unwrap to the cause")
	}
	if !strings.Contains(err.Error(), testPage) {
		t.Errorf("expected URL in message, got %q", err.Error())
	}

	var target *MalformedDocumentError
	if !errors.As(error(err), &target) {
		t.Error("expected errors.As to match")
	}
}

// TestCloneTree tests that the copy shares no nodes with the source.
func TestCloneTree(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<div class="a"><p>one</p><p>two</p></div>`)
	c := cloneTree(doc)

	if render(t, c) != render(t, doc) {
		t.Error("clone renders differently")
	}

	c.FirstChild.Data = "mutated"
	if doc.FirstChild.Data == "mutated" {
		t.Error("clone shares nodes with source")
	}
}

// TestNormalizeURL tests seed normalization.
func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"http://X/docs/index.html":       "http://x/docs/index.html",
		"  http://x/docs/a.html#top  ":   "http://x/docs/a.html",
		"http://x:80/docs/":              "http://x/docs/",
		"http://x/docs/../api/page.html": "http://x/api/page.html",
	}
	for in, want := range tests {
		got, err := NormalizeURL(in)
		if err != nil {
			t.Errorf("NormalizeURL(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := NormalizeURL("http://[::1"); err == nil {
		t.Error("expected error for unparseable URL")
	}
}
