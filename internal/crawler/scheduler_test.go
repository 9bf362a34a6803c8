package crawler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/docmirror/internal/fetch"
	"github.com/nao1215/docmirror/internal/model"
)

const seedURL = "http://x/docs/index.html"

type fakePage struct {
	contentType string
	body        string
	charset     string
}

// fakeFetcher serves pages from a map. Unknown URLs are 404s.
type fakeFetcher struct {
	pages map[string]fakePage
	calls []string

	// onFetch runs before every fetch when set.
	onFetch func(pageURL string)
}

func (f *fakeFetcher) Fetch(ctx context.Context, pageURL string) (*model.Document, error) {
	f.calls = append(f.calls, pageURL)
	if f.onFetch != nil {
		f.onFetch(pageURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, &fetch.FetchError{URL: pageURL, Err: err}
	}

	p, ok := f.pages[pageURL]
	if !ok {
		return nil, &fetch.FetchError{URL: pageURL, StatusCode: 404, Err: fetch.ErrStatus}
	}
	ct := p.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &model.Document{URL: pageURL, StatusCode: 200, ContentType: ct, Body: []byte(p.body), Charset: p.charset}, nil
}

func (f *fakeFetcher) fetched(pageURL string) int {
	n := 0
	for _, c := range f.calls {
		if c == pageURL {
			n++
		}
	}
	return n
}

// memorySink keeps stored files in memory.
type memorySink struct {
	files map[string]string
	order []string
	fail  map[string]bool
}

func newMemorySink() *memorySink {
	return &memorySink{files: make(map[string]string), fail: make(map[string]bool)}
}

func (s *memorySink) Store(_ context.Context, filename string, content []byte) (bool, error) {
	if s.fail[filename] {
		return false, errors.New("disk full")
	}
	_, exists := s.files[filename]
	s.files[filename] = string(content)
	s.order = append(s.order, filename)
	return exists, nil
}

func page(links ...string) fakePage {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Docs</title></head><body>")
	for _, l := range links {
		sb.WriteString(`<a href="` + l + `">` + l + `</a>`)
	}
	sb.WriteString("</body></html>")
	return fakePage{body: sb.String()}
}

func newTestScheduler(t *testing.T, f Fetcher, s Sink, opts ...Option) *Scheduler {
	t.Helper()

	opts = append([]Option{WithDelay(0)}, opts...)
	sched, err := NewScheduler(seedURL, f, s, opts...)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	return sched
}

// TestSchedulerNotFoundScenario tests that a 404 is skipped and the rest is mirrored.
func TestSchedulerNotFoundScenario(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                page("a.html", "b.html"),
		"http://x/docs/a.html": page("index.html"),
	}}
	sink := newMemorySink()

	report, err := newTestScheduler(t, f, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.PagesSaved != 2 {
		t.Errorf("expected 2 pages saved, got %d", report.PagesSaved)
	}
	if report.FetchFailed != 1 {
		t.Errorf("expected 1 fetch failure, got %d", report.FetchFailed)
	}
	if report.State != model.RunCompleted {
		t.Errorf("expected completed, got %q", report.State)
	}
	if _, ok := sink.files["docs_b.html"]; ok {
		t.Error("a failed page must not be stored")
	}

	var failed model.PageRecord
	for _, p := range report.Pages {
		if p.Outcome == model.OutcomeFetchFailed {
			failed = p
		}
	}
	if failed.URL != "http://x/docs/b.html" || failed.StatusCode != 404 {
		t.Errorf("unexpected failure record: %+v", failed)
	}
}

// TestSchedulerBudgetScenario tests that the page budget stops the crawl.
func TestSchedulerBudgetScenario(t *testing.T) {
	t.Parallel()

	pages := map[string]fakePage{
		seedURL: page("p1.html", "p2.html", "p3.html", "p4.html", "p5.html"),
	}
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5"} {
		pages["http://x/docs/"+p+".html"] = page()
	}
	f := &fakeFetcher{pages: pages}
	sink := newMemorySink()

	report, err := newTestScheduler(t, f, sink, WithMaxPages(2)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.PagesSaved != 2 || len(sink.files) != 2 {
		t.Errorf("expected exactly 2 pages, got %d saved and %d files", report.PagesSaved, len(sink.files))
	}
	if report.State != model.RunBudgetReached {
		t.Errorf("expected budget_reached, got %q", report.State)
	}
	if report.Pending != 4 {
		t.Errorf("expected 4 pending URLs, got %d", report.Pending)
	}
	if len(f.calls) != 2 {
		t.Errorf("expected 2 fetches, got %d", len(f.calls))
	}
}

// TestSchedulerVisitsEachURLOnce tests deduplication.
func TestSchedulerVisitsEachURLOnce(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                page("a.html", "b.html", "a.html", "index.html", "a.html#part"),
		"http://x/docs/a.html": page("b.html", "index.html", "http://x/docs/a.html"),
		"http://x/docs/b.html": page("a.html", "./index.html", "../docs/b.html"),
	}}
	sink := newMemorySink()

	report, err := newTestScheduler(t, f, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for u := range f.pages {
		if n := f.fetched(u); n != 1 {
			t.Errorf("%s fetched %d times", u, n)
		}
	}
	if len(f.calls) != 3 || report.PagesSaved != 3 {
		t.Errorf("expected 3 fetches and 3 saved pages, got %d and %d", len(f.calls), report.PagesSaved)
	}

	want := []string{"docs_index.html", "docs_a.html", "docs_b.html"}
	if strings.Join(sink.order, ",") != strings.Join(want, ",") {
		t.Errorf("expected FIFO order %v, got %v", want, sink.order)
	}
}

// TestSchedulerFollowsFragmentLinks tests that a page reached only through
// links with a fragment is mirrored.
func TestSchedulerFollowsFragmentLinks(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                    page("guide.html#install", "guide.html#usage", "#top"),
		"http://x/docs/guide.html": page("index.html#top"),
	}}
	sink := newMemorySink()

	report, err := newTestScheduler(t, f, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.Contains(sink.files["docs_index.html"], `href="docs_guide.html#install"`) {
		t.Errorf("expected rewritten fragment link, got: %s", sink.files["docs_index.html"])
	}
	if _, ok := sink.files["docs_guide.html"]; !ok {
		t.Errorf("expected the fragment target to be mirrored, stored %v", sink.order)
	}
	if n := f.fetched("http://x/docs/guide.html"); n != 1 {
		t.Errorf("expected guide fetched once, got %d", n)
	}
	if n := f.fetched(seedURL); n != 1 {
		t.Errorf("expected seed fetched once, got %d", n)
	}
	if report.PagesSaved != 2 {
		t.Errorf("expected 2 saved pages, got %d", report.PagesSaved)
	}
}

// TestSchedulerRelabelsDecodedCharset tests that a page decoded to UTF-8 is
// stored with a matching meta charset.
func TestSchedulerRelabelsDecodedCharset(t *testing.T) {
	t.Parallel()

	latin1 := `<html><head><meta charset="iso-8859-1"></head><body>café</body></html>`
	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                  {body: latin1 + `<a href="raw.html">raw</a>`, charset: model.CharsetUTF8},
		"http://x/docs/raw.html": {body: latin1},
	}}
	sink := newMemorySink()

	if _, err := newTestScheduler(t, f, sink).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if index := sink.files["docs_index.html"]; !strings.Contains(index, `<meta charset="utf-8"/>`) {
		t.Errorf("expected decoded page relabeled as UTF-8, got: %s", index)
	}
	if raw := sink.files["docs_raw.html"]; !strings.Contains(raw, `charset="iso-8859-1"`) {
		t.Errorf("expected page of unknown charset left as declared, got: %s", raw)
	}
}

// TestSchedulerStoresRewrittenContent tests the rewrite of stored pages.
func TestSchedulerStoresRewrittenContent(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL: {body: `<html><body>
			<a href="guide.html">Guide</a>
			<a href="../other.html">Other</a>
			<a href="http://external.com">External</a>
			<a href="#top">Top</a>
		</body></html>`},
		"http://x/docs/guide.html": page(),
		"http://x/other.html":      page(),
	}}
	sink := newMemorySink()

	report, err := newTestScheduler(t, f, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	index := sink.files["docs_index.html"]
	for _, want := range []string{`href="docs_guide.html"`, `href="#top"`, "Other", "External"} {
		if !strings.Contains(index, want) {
			t.Errorf("expected stored page to contain %q, got: %s", want, index)
		}
	}
	if strings.Contains(index, "external.com") || strings.Contains(index, "other.html") {
		t.Errorf("stored page leaks out-of-scope links: %s", index)
	}

	if report.OutOfScope != 1 {
		t.Errorf("expected the same-origin page outside the scope root to be rejected, got %d", report.OutOfScope)
	}
	if _, ok := sink.files["other.html"]; ok {
		t.Error("out-of-scope page must not be stored")
	}
	if f.fetched("http://external.com/") != 0 {
		t.Error("foreign origin must never be fetched")
	}
	if report.LinksRewritten != 1 || report.AnchorsKept != 1 || report.LinksStripped != 2 {
		t.Errorf("unexpected link counters: %+v", report)
	}
}

// TestSchedulerSkipsNonHTML tests that non-HTML responses are not stored.
func TestSchedulerSkipsNonHTML(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                    page("manual.pdf"),
		"http://x/docs/manual.pdf": {contentType: "application/pdf", body: "%PDF"},
	}}
	sink := newMemorySink()

	report, err := newTestScheduler(t, f, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.NotHTML != 1 || len(sink.files) != 1 {
		t.Errorf("expected the PDF to be skipped, got not_html=%d files=%d", report.NotHTML, len(sink.files))
	}
}

// TestSchedulerStoreFailure tests that store errors are recorded and the crawl continues.
func TestSchedulerStoreFailure(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                page("a.html"),
		"http://x/docs/a.html": page(),
	}}
	sink := newMemorySink()
	sink.fail["docs_index.html"] = true

	report, err := newTestScheduler(t, f, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.StoreFailed != 1 || report.PagesSaved != 1 {
		t.Errorf("expected 1 store failure and 1 saved page, got %d and %d", report.StoreFailed, report.PagesSaved)
	}
	if _, ok := sink.files["docs_a.html"]; !ok {
		t.Error("links of a page that failed to store must still be followed")
	}
}

// TestSchedulerOverwrite tests that colliding file names are reported.
func TestSchedulerOverwrite(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                page("guide", "guide/"),
		"http://x/docs/guide":  page(),
		"http://x/docs/guide/": page(),
	}}
	sink := newMemorySink()

	report, err := newTestScheduler(t, f, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.PagesSaved != 3 || report.Overwritten != 1 {
		t.Errorf("expected 3 saved pages with 1 overwrite, got %d and %d", report.PagesSaved, report.Overwritten)
	}
	if len(sink.files) != 2 {
		t.Errorf("expected 2 files, got %d", len(sink.files))
	}
}

// TestSchedulerPatterns tests ignore and follow patterns.
func TestSchedulerPatterns(t *testing.T) {
	t.Parallel()

	pages := map[string]fakePage{
		seedURL: page("api/a.html", "api/b.html", "guide/c.html", "archive/old.html"),
	}
	for _, p := range []string{"api/a.html", "api/b.html", "guide/c.html", "archive/old.html"} {
		pages["http://x/docs/"+p] = page()
	}

	t.Run("ignore", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{pages: pages}
		report, err := newTestScheduler(t, f, newMemorySink(),
			WithIgnorePatterns([]string{"/docs/archive/**"}),
		).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.PagesSaved != 4 || f.fetched("http://x/docs/archive/old.html") != 0 {
			t.Errorf("expected archive to be ignored, got %d pages", report.PagesSaved)
		}
	})

	t.Run("follow", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{pages: pages}
		report, err := newTestScheduler(t, f, newMemorySink(),
			WithFollowPatterns([]string{"/docs/api/*"}),
		).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.PagesSaved != 3 {
			t.Errorf("expected seed plus 2 api pages, got %d", report.PagesSaved)
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()

		_, err := NewScheduler(seedURL, &fakeFetcher{}, newMemorySink(), WithIgnorePatterns([]string{"[unclosed"}))
		if !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("expected ErrInvalidPattern, got %v", err)
		}
	})
}

// TestSchedulerStates tests the lifecycle.
func TestSchedulerStates(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                page("a.html"),
		"http://x/docs/a.html": page(),
	}}
	s := newTestScheduler(t, f, newMemorySink())
	ctx := context.Background()

	if s.State() != StateIdle || s.Pending() != 1 || s.Visited() != 0 {
		t.Fatalf("unexpected initial state: %v pending=%d visited=%d", s.State(), s.Pending(), s.Visited())
	}

	if !s.Step(ctx) {
		t.Fatal("expected more work after the seed")
	}
	if s.State() != StateRunning || s.Pending() != 1 || s.Visited() != 1 {
		t.Errorf("unexpected state after first step: %v pending=%d visited=%d", s.State(), s.Pending(), s.Visited())
	}

	if s.Step(ctx) {
		t.Error("expected the scheduler to be done after the last page")
	}
	if s.State() != StateDone {
		t.Errorf("expected done, got %v", s.State())
	}
	if s.Step(ctx) {
		t.Error("a done scheduler must not step")
	}

	report, err := s.Run(ctx)
	if err != nil || report.PagesSaved != 2 {
		t.Errorf("Run on a done scheduler returned %v, %v", report, err)
	}

	if StateIdle.String() != "idle" || StateDone.String() != "done" || State(9).String() != "unknown" {
		t.Error("unexpected state names")
	}
}

// TestSchedulerDelay tests the pause between requests.
func TestSchedulerDelay(t *testing.T) {
	t.Parallel()

	const delay = 30 * time.Millisecond

	f := &fakeFetcher{pages: map[string]fakePage{
		seedURL:                page("a.html", "b.html"),
		"http://x/docs/a.html": page(),
		"http://x/docs/b.html": page(),
	}}

	start := time.Now()
	report, err := newTestScheduler(t, f, newMemorySink(), WithDelay(delay)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	elapsed := time.Since(start)

	if report.PagesSaved != 3 {
		t.Fatalf("expected 3 pages, got %d", report.PagesSaved)
	}
	if elapsed < 2*delay {
		t.Errorf("expected at least %v between three requests, took %v", 2*delay, elapsed)
	}
}

// TestSchedulerCancellation tests context handling.
func TestSchedulerCancellation(t *testing.T) {
	t.Parallel()

	t.Run("canceled before start", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{pages: map[string]fakePage{seedURL: page()}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := newTestScheduler(t, f, newMemorySink()).Run(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if report.State != model.RunCanceled || len(f.calls) != 0 {
			t.Errorf("expected no fetches and canceled state, got %q with %d fetches", report.State, len(f.calls))
		}
	})

	t.Run("canceled during delay", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{pages: map[string]fakePage{
			seedURL:                page("a.html"),
			"http://x/docs/a.html": page(),
		}}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		report, err := newTestScheduler(t, f, newMemorySink(), WithDelay(time.Hour)).Run(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if time.Since(start) > 10*time.Second {
			t.Error("delay did not honor the context")
		}
		if report.PagesSaved != 1 || report.Pending != 1 {
			t.Errorf("expected partial report with 1 page and 1 pending, got %d and %d", report.PagesSaved, report.Pending)
		}
	})

	t.Run("canceled during fetch", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f := &fakeFetcher{pages: map[string]fakePage{seedURL: page("a.html")}}
		f.onFetch = func(string) { cancel() }

		report, err := newTestScheduler(t, f, newMemorySink()).Run(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if report.FetchFailed != 0 || len(report.Pages) != 0 {
			t.Errorf("an interrupted fetch must not be recorded, got %+v", report.Pages)
		}
	})
}

// TestNewSchedulerErrors tests seed validation.
func TestNewSchedulerErrors(t *testing.T) {
	t.Parallel()

	for _, seed := range []string{"", "not a url", "ftp://x/docs/", "/docs/index.html"} {
		if _, err := NewScheduler(seed, &fakeFetcher{}, newMemorySink()); err == nil {
			t.Errorf("NewScheduler(%q) expected error", seed)
		}
	}

	s, err := NewScheduler("HTTP://X/docs/index.html#intro", &fakeFetcher{}, newMemorySink())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Report().Seed != seedURL {
		t.Errorf("expected normalized seed %q, got %q", seedURL, s.Report().Seed)
	}
	if s.Canonicalizer().ScopeRoot() != "http://x/docs/" {
		t.Errorf("unexpected scope root %q", s.Canonicalizer().ScopeRoot())
	}
}

// TestLinkFilter tests pattern matching on URL paths.
func TestLinkFilter(t *testing.T) {
	t.Parallel()

	ignore, err := compilePatterns([]string{"*.pdf", "/docs/private/*", " "})
	if err != nil {
		t.Fatal(err)
	}
	follow, err := compilePatterns([]string{"/docs/**"})
	if err != nil {
		t.Fatal(err)
	}
	f := &linkFilter{ignore: ignore, follow: follow}

	tests := []struct {
		url  string
		want bool
	}{
		{url: "http://x/docs/a.html", want: true},
		{url: "http://x/docs/deep/er/b.html", want: true},
		{url: "http://x/docs/manual.pdf", want: false},
		{url: "http://x/docs/private/key.html", want: false},
		{url: "http://x/docs/private/sub/key.html", want: true},
		{url: "http://x/blog/post.html", want: false},
	}
	for _, tt := range tests {
		if got := f.allows(tt.url); got != tt.want {
			t.Errorf("allows(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	open := &linkFilter{}
	if !open.allows("http://x/anything") {
		t.Error("an empty filter must allow everything")
	}
}
