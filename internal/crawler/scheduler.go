package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/docmirror/internal/canon"
	"github.com/nao1215/docmirror/internal/fetch"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/rewrite"
	"github.com/nao1215/docmirror/internal/scope"
)

// Fetcher retrieves a document. A non-2xx response or a transport failure
// is returned as an error.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*model.Document, error)
}

// Sink persists rewritten documents under their canonical file name.
// overwrote reports that a file with the same name already existed.
type Sink interface {
	Store(ctx context.Context, filename string, content []byte) (overwrote bool, err error)
}

// State is the lifecycle state of a Scheduler.
type State int

const (
	// StateIdle is the state before the first Step.
	StateIdle State = iota
	// StateRunning is the state while URLs are processed.
	StateRunning
	// StateDone is terminal.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

var _ Fetcher = (*fetch.Client)(nil)

// Scheduler crawls one documentation site. It is not safe for concurrent
// use; independent sites are mirrored with independent Schedulers.
type Scheduler struct {
	canon      *canon.Canonicalizer
	rewriter   *rewrite.Rewriter
	fetcher    Fetcher
	sink       Sink
	classifier scope.Classifier
	logger     *slog.Logger
	filter     *linkFilter

	// maxPages limits the number of saved pages. 0 means unlimited.
	maxPages int

	// delay is the pause after each fetch attempt.
	delay time.Duration

	scopePolicy    string
	scopeOptions   []scope.ContentOption
	ignorePatterns []string
	followPatterns []string

	state   State
	queue   []string
	queued  map[string]struct{}
	visited map[string]struct{}
	report  *model.MirrorReport
	err     error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxPages sets the page budget. 0 means unlimited.
func WithMaxPages(maxPages int) Option {
	return func(s *Scheduler) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the delay between requests.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		s.delay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScopePolicy selects the scope classifier by policy name
// (scope.PolicyPrefix or scope.PolicyContent).
func WithScopePolicy(policy string, opts ...scope.ContentOption) Option {
	return func(s *Scheduler) {
		s.scopePolicy = policy
		s.scopeOptions = opts
	}
}

// WithClassifier sets a custom classifier, overriding WithScopePolicy.
func WithClassifier(c scope.Classifier) Option {
	return func(s *Scheduler) {
		s.classifier = c
	}
}

// WithIgnorePatterns sets URL path patterns that are never enqueued.
// Patterns use glob syntax (e.g. "/docs/archive/**", "*.pdf").
func WithIgnorePatterns(patterns []string) Option {
	return func(s *Scheduler) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts enqueued URLs to paths matching at least one
// pattern. Empty means all paths are followed.
func WithFollowPatterns(patterns []string) Option {
	return func(s *Scheduler) {
		s.followPatterns = patterns
	}
}

// NewScheduler creates a Scheduler for seed and enqueues the seed.
// The seed must be an absolute http or https URL.
func NewScheduler(seed string, f Fetcher, sink Sink, opts ...Option) (*Scheduler, error) {
	normalized, err := rewrite.NormalizeURL(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", canon.ErrInvalidSeed, err)
	}
	c, err := canon.New(normalized)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		canon:       c,
		rewriter:    rewrite.NewRewriter(c),
		fetcher:     f,
		sink:        sink,
		logger:      slog.Default(),
		delay:       time.Second,
		scopePolicy: scope.PolicyPrefix,
		state:       StateIdle,
		queued:      make(map[string]struct{}),
		visited:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.classifier == nil {
		s.classifier = scope.New(s.scopePolicy, c, s.scopeOptions...)
	}

	ignore, err := compilePatterns(s.ignorePatterns)
	if err != nil {
		return nil, err
	}
	follow, err := compilePatterns(s.followPatterns)
	if err != nil {
		return nil, err
	}
	s.filter = &linkFilter{ignore: ignore, follow: follow}

	s.report = model.NewMirrorReport(normalized)
	s.report.ScopeRoot = c.ScopeRoot()
	s.push(normalized)

	return s, nil
}

// Canonicalizer returns the canonicalizer of this crawl.
func (s *Scheduler) Canonicalizer() *canon.Canonicalizer {
	return s.canon
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return s.state
}

// Pending returns the number of queued URLs.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Visited returns the number of URLs taken from the queue.
func (s *Scheduler) Visited() int {
	return len(s.visited)
}

// Report returns the report of this crawl. It is final once the
// Scheduler is done.
func (s *Scheduler) Report() *model.MirrorReport {
	return s.report
}

// Run steps the Scheduler until it is done and returns the report.
// When ctx is canceled the partial report is returned with ctx's error.
func (s *Scheduler) Run(ctx context.Context) (*model.MirrorReport, error) {
	for s.Step(ctx) {
	}
	return s.report, s.err
}

// Step processes the next pending URL and reports whether the Scheduler
// can make further progress. It returns false once the Scheduler is done.
func (s *Scheduler) Step(ctx context.Context) bool {
	switch s.state {
	case StateDone:
		return false
	case StateIdle:
		s.state = StateRunning
		s.logger.Info("starting mirror",
			"seed", s.report.Seed,
			"scope_root", s.canon.ScopeRoot(),
			"max_pages", s.maxPages,
			"delay", s.delay,
		)
	case StateRunning:
	}

	if err := ctx.Err(); err != nil {
		s.finish(model.RunCanceled, err)
		return false
	}

	pageURL, ok := s.next()
	if !ok {
		s.finish(model.RunCompleted, nil)
		return false
	}

	s.process(ctx, pageURL)

	if err := ctx.Err(); err != nil {
		s.finish(model.RunCanceled, err)
		return false
	}
	if s.budgetReached() {
		s.finish(model.RunBudgetReached, nil)
		return false
	}
	if len(s.queue) == 0 {
		s.finish(model.RunCompleted, nil)
		return false
	}

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			s.finish(model.RunCanceled, ctx.Err())
			return false
		case <-time.After(s.delay):
		}
	}
	return true
}

// next dequeues the first URL that has not been visited yet and marks it
// visited.
func (s *Scheduler) next() (string, bool) {
	for len(s.queue) > 0 {
		u := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, u)

		if _, seen := s.visited[u]; seen {
			continue
		}
		s.visited[u] = struct{}{}
		return u, true
	}
	return "", false
}

// push appends u unless it was visited or is already queued.
func (s *Scheduler) push(u string) bool {
	if _, seen := s.visited[u]; seen {
		return false
	}
	if _, dup := s.queued[u]; dup {
		return false
	}
	s.queue = append(s.queue, u)
	s.queued[u] = struct{}{}
	return true
}

// process moves one URL through fetch, classify, rewrite and store, and
// enqueues the links it discovers.
func (s *Scheduler) process(ctx context.Context, pageURL string) {
	rec := model.PageRecord{
		URL:      pageURL,
		Filename: s.canon.Filename(pageURL),
	}

	doc, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("failed to fetch page", "url", pageURL, "error", err)
		var fe *fetch.FetchError
		if errors.As(err, &fe) {
			rec.StatusCode = fe.StatusCode
		}
		rec.Outcome = model.OutcomeFetchFailed
		rec.Error = err.Error()
		s.report.AddPage(rec)
		return
	}
	rec.StatusCode = doc.StatusCode

	if !doc.IsHTML() {
		s.logger.Debug("skipping non-HTML content", "url", pageURL, "content_type", doc.ContentType)
		rec.Outcome = model.OutcomeNotHTML
		s.report.AddPage(rec)
		return
	}

	if s.classifier.Classify(doc) == canon.OutOfScope {
		s.logger.Debug("skipping out-of-scope page", "url", pageURL)
		rec.Outcome = model.OutcomeOutOfScope
		s.report.AddPage(rec)
		return
	}

	content := doc.Body
	var links []string
	var renderOpts []rewrite.RenderOption
	if doc.Charset == model.CharsetUTF8 {
		renderOpts = append(renderOpts, rewrite.WithUTF8Meta())
	}
	rendered, err := s.rewriter.RewriteHTML(pageURL, doc.Body, renderOpts...)
	if err != nil {
		s.logger.Warn("storing page without rewriting", "url", pageURL, "error", err)
		rec.Malformed = true
	} else {
		content = rendered.Content
		links = rendered.Links
		if rendered.Relabeled > 0 {
			s.logger.Debug("relabeled charset declaration as UTF-8", "url", pageURL)
		}
		s.report.LinksRewritten += rendered.Rewritten
		s.report.AnchorsKept += rendered.Anchors
		s.report.LinksStripped += rendered.Stripped
	}
	rec.Links = len(links)

	overwrote, err := s.sink.Store(ctx, rec.Filename, content)
	if err != nil {
		s.logger.Error("failed to store page", "url", pageURL, "filename", rec.Filename, "error", err)
		rec.Outcome = model.OutcomeStoreFailed
		rec.Error = err.Error()
	} else {
		if overwrote {
			s.logger.Warn("overwrote existing file", "url", pageURL, "filename", rec.Filename)
		}
		s.logger.Info("saved page", "url", pageURL, "filename", rec.Filename, "links", len(links))
		rec.Outcome = model.OutcomeSaved
		rec.Overwrote = overwrote
		rec.Hash = model.ContentHash(content)
	}
	s.report.AddPage(rec)

	for _, link := range links {
		if !s.filter.allows(link) {
			continue
		}
		s.push(link)
	}
}

func (s *Scheduler) budgetReached() bool {
	return s.maxPages > 0 && s.report.PagesSaved >= s.maxPages
}

func (s *Scheduler) finish(state model.RunState, err error) {
	s.state = StateDone
	s.err = err
	s.report.Pending = len(s.queue)
	s.report.Finish(state, err)

	s.logger.Info("mirror finished",
		"seed", s.report.Seed,
		"state", s.report.State,
		"pages_saved", s.report.PagesSaved,
		"fetch_failed", s.report.FetchFailed,
		"pending", s.report.Pending,
	)
}
