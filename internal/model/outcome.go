package model

// Outcome is what happened to one URL taken from the pending queue.
type Outcome string

// Outcome constants.
const (
	// OutcomeUnknown represents an unrecognized outcome.
	OutcomeUnknown Outcome = ""
	// OutcomeSaved means the rewritten page was written to the mirror.
	OutcomeSaved Outcome = "saved"
	// OutcomeFetchFailed means the page could not be retrieved.
	OutcomeFetchFailed Outcome = "fetch_failed"
	// OutcomeOutOfScope means the page was fetched but is not documentation.
	OutcomeOutOfScope Outcome = "out_of_scope"
	// OutcomeNotHTML means the response was not an HTML document.
	OutcomeNotHTML Outcome = "not_html"
	// OutcomeStoreFailed means the page could not be written to the mirror.
	OutcomeStoreFailed Outcome = "store_failed"
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	if o == OutcomeUnknown {
		return "unknown"
	}
	return string(o)
}

// IsValid returns true if this is a known outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSaved, OutcomeFetchFailed, OutcomeOutOfScope,
		OutcomeNotHTML, OutcomeStoreFailed:
		return true
	default:
		return false
	}
}

// ParseOutcome converts a string to Outcome.
func ParseOutcome(s string) Outcome {
	o := Outcome(s)
	if o.IsValid() {
		return o
	}
	return OutcomeUnknown
}

// RunState is the terminal state of a mirror run.
type RunState string

// RunState constants.
const (
	// RunRunning marks a run that has not finished yet.
	RunRunning RunState = "running"
	// RunCompleted means the pending queue was drained.
	RunCompleted RunState = "completed"
	// RunBudgetReached means the page budget stopped the crawl.
	RunBudgetReached RunState = "budget_reached"
	// RunCanceled means the run was interrupted by its context.
	RunCanceled RunState = "canceled"
	// RunFailed means the run could not start, e.g. because of an invalid seed.
	RunFailed RunState = "failed"
)

// String returns the string representation of the RunState.
func (s RunState) String() string {
	return string(s)
}
