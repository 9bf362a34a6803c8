package model

import (
	"slices"
	"time"
)

// RunSummary is the header of a recorded run used in comparisons and
// history listings.
type RunSummary struct {
	ID          int64     `json:"id"`
	Seed        string    `json:"seed"`
	StartedAt   time.Time `json:"started_at"`
	State       RunState  `json:"state"`
	PagesSaved  int       `json:"pages_saved"`
	FetchFailed int       `json:"fetch_failed"`
}

// Summary returns the run header of r.
func (r *MirrorReport) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		Seed:        r.Seed,
		StartedAt:   r.StartedAt,
		State:       r.State,
		PagesSaved:  r.PagesSaved,
		FetchFailed: r.FetchFailed,
	}
}

// Comparison is the difference between the saved pages of two runs.
type Comparison struct {
	// Seed is the seed URL of the newer run.
	Seed string `json:"seed"`

	// Previous and Current describe the compared runs.
	Previous RunSummary `json:"previous"`
	Current  RunSummary `json:"current"`

	// Added lists URLs saved only in the current run.
	Added []string `json:"added,omitempty"`

	// Removed lists URLs saved only in the previous run.
	Removed []string `json:"removed,omitempty"`

	// Changed lists URLs saved in both runs with different content.
	Changed []string `json:"changed,omitempty"`

	// Unchanged is the number of URLs saved in both runs with equal content.
	Unchanged int `json:"unchanged"`
}

// Compare diffs the saved pages of previous and current by URL and content
// hash. The URL lists are sorted.
func Compare(previous, current *MirrorReport) *Comparison {
	c := &Comparison{
		Seed:     current.Seed,
		Previous: previous.Summary(),
		Current:  current.Summary(),
	}

	before := previous.SavedPages()
	after := current.SavedPages()

	for u, hash := range after {
		old, ok := before[u]
		switch {
		case !ok:
			c.Added = append(c.Added, u)
		case old != hash:
			c.Changed = append(c.Changed, u)
		default:
			c.Unchanged++
		}
	}
	for u := range before {
		if _, ok := after[u]; !ok {
			c.Removed = append(c.Removed, u)
		}
	}

	slices.Sort(c.Added)
	slices.Sort(c.Removed)
	slices.Sort(c.Changed)

	return c
}

// HasChanges reports whether any page was added, removed or changed.
func (c *Comparison) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.Changed) > 0
}
