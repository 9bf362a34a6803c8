package model

import (
	"context"
	"errors"
	"time"
)

// PageRecord is the outcome of processing one URL.
type PageRecord struct {
	// URL is the absolute, fragment-free URL that was processed.
	URL string `json:"url"`

	// Filename is the canonical file name in the mirror. Set for every
	// outcome so that a failed page can be matched against earlier runs.
	Filename string `json:"filename"`

	// Outcome is what happened to the page.
	Outcome Outcome `json:"outcome"`

	// StatusCode is the HTTP status code, 0 when no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// Overwrote is true when the stored file replaced an existing one.
	Overwrote bool `json:"overwrote,omitempty"`

	// Malformed is true when the document could not be parsed and was
	// stored without rewriting.
	Malformed bool `json:"malformed,omitempty"`

	// Hash is the ContentHash of the stored content.
	Hash string `json:"hash,omitempty"`

	// Links is the number of URLs discovered on the page.
	Links int `json:"links"`

	// Error is the failure message for fetch_failed and store_failed pages.
	Error string `json:"error,omitempty"`
}

// MirrorReport is the result of one mirror run.
type MirrorReport struct {
	// ID is the run history identifier, 0 when the run was not recorded.
	ID int64 `json:"id,omitempty"`

	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// ScopeRoot is the prefix every mirrored URL starts with.
	ScopeRoot string `json:"scope_root"`

	// OutputDir is the directory the mirror was written to.
	OutputDir string `json:"output_dir"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// State is the terminal state of the run.
	State RunState `json:"state"`

	// PagesSaved is the number of pages persisted to the mirror.
	PagesSaved int `json:"pages_saved"`

	FetchFailed int `json:"fetch_failed"`
	OutOfScope  int `json:"out_of_scope"`
	NotHTML     int `json:"not_html"` //nolint:tagliatelle // HTML is an acronym
	StoreFailed int `json:"store_failed"`
	Overwritten int `json:"overwritten"`
	Malformed   int `json:"malformed"`

	// LinksRewritten, AnchorsKept and LinksStripped sum the rewriter
	// counters over all saved pages.
	LinksRewritten int `json:"links_rewritten"`
	AnchorsKept    int `json:"anchors_kept"`
	LinksStripped  int `json:"links_stripped"`

	// Pending is the number of URLs left in the queue when the run ended.
	Pending int `json:"pending"`

	// Pages lists every processed URL in processing order.
	Pages []PageRecord `json:"pages"`

	// Error is the error that ended the run, if any.
	Error error `json:"-"`

	// ErrorMessage is the string representation of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewMirrorReport creates a running report for seed.
func NewMirrorReport(seed string) *MirrorReport {
	return &MirrorReport{
		Seed:      seed,
		StartedAt: time.Now(),
		State:     RunRunning,
		Pages:     make([]PageRecord, 0),
	}
}

// AddPage appends rec and updates the counters.
func (r *MirrorReport) AddPage(rec PageRecord) {
	r.Pages = append(r.Pages, rec)

	switch rec.Outcome {
	case OutcomeSaved:
		r.PagesSaved++
		if rec.Overwrote {
			r.Overwritten++
		}
		if rec.Malformed {
			r.Malformed++
		}
	case OutcomeFetchFailed:
		r.FetchFailed++
	case OutcomeOutOfScope:
		r.OutOfScope++
	case OutcomeNotHTML:
		r.NotHTML++
	case OutcomeStoreFailed:
		r.StoreFailed++
	case OutcomeUnknown:
	}
}

// Finish records the terminal state. A context error marks the run as
// canceled whatever state is passed.
func (r *MirrorReport) Finish(state RunState, err error) {
	r.FinishedAt = time.Now()
	r.State = state
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.State = RunCanceled
		}
	}
}

// Duration returns how long the run took, or 0 while it is running.
func (r *MirrorReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SavedPages returns the content hash of every saved page keyed by URL.
func (r *MirrorReport) SavedPages() map[string]string {
	saved := make(map[string]string, r.PagesSaved)
	for _, p := range r.Pages {
		if p.Outcome == OutcomeSaved {
			saved[p.URL] = p.Hash
		}
	}
	return saved
}

// Failed returns the records of pages that were abandoned because of an error.
func (r *MirrorReport) Failed() []PageRecord {
	var failed []PageRecord
	for _, p := range r.Pages {
		if p.Outcome == OutcomeFetchFailed || p.Outcome == OutcomeStoreFailed {
			failed = append(failed, p)
		}
	}
	return failed
}
