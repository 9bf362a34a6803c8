package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/docmirror/internal/model"
)

// SimpleWriter outputs human-readable text reports.
type SimpleWriter struct {
	baseWriter

	// verbose lists every processed page, not only the failed ones.
	verbose bool

	title cases.Caser
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-page listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		title:      cases.Title(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *model.MirrorReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeFailures(&sb, report)
	if w.verbose {
		w.writePages(&sb, report)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.MirrorReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         DOCMIRROR REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed:           %s\n", report.Seed)
	fmt.Fprintf(sb, "Scope Root:     %s\n", report.ScopeRoot)
	fmt.Fprintf(sb, "Output:         %s\n", report.OutputDir)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format(timeLayout))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))

	if report.ErrorMessage != "" {
		fmt.Fprintf(sb, "Status:         %s - %s\n", w.stateText(report.State), report.ErrorMessage)
	} else {
		fmt.Fprintf(sb, "Status:         %s\n", w.stateText(report.State))
	}
	sb.WriteString("\n")
}

// stateText turns "budget_reached" into "Budget Reached".
func (w *SimpleWriter) stateText(state model.RunState) string {
	return w.title.String(strings.ReplaceAll(state.String(), "_", " "))
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.MirrorReport) {
	writeSection(sb, "SUMMARY")

	fmt.Fprintf(sb, "  Pages persisted:   %d\n", report.PagesSaved)
	fmt.Fprintf(sb, "  Fetch failures:    %d\n", report.FetchFailed)
	fmt.Fprintf(sb, "  Out of scope:      %d\n", report.OutOfScope)
	fmt.Fprintf(sb, "  Not HTML:          %d\n", report.NotHTML)
	fmt.Fprintf(sb, "  Store failures:    %d\n", report.StoreFailed)
	fmt.Fprintf(sb, "  Overwritten files: %d\n", report.Overwritten)
	fmt.Fprintf(sb, "  Malformed pages:   %d\n", report.Malformed)
	fmt.Fprintf(sb, "  Pending URLs:      %d\n", report.Pending)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Links rewritten: %d, anchors kept: %d, links stripped: %d\n",
		report.LinksRewritten, report.AnchorsKept, report.LinksStripped)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.MirrorReport) {
	failed := report.Failed()
	if len(failed) == 0 {
		return
	}

	writeSection(sb, "FAILED PAGES")
	for _, p := range failed {
		fmt.Fprintf(sb, "  [!] %s\n", p.URL)
		if p.StatusCode != 0 {
			fmt.Fprintf(sb, "      Status: %d\n", p.StatusCode)
		}
		if p.Error != "" {
			fmt.Fprintf(sb, "      Error:  %s\n", p.Error)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.MirrorReport) {
	writeSection(sb, "PAGES")
	if len(report.Pages) == 0 {
		sb.WriteString("  No pages processed\n\n")
		return
	}
	for _, p := range report.Pages {
		fmt.Fprintf(sb, "  %-12s %s\n", p.Outcome.String(), p.URL)
		if p.Outcome == model.OutcomeSaved {
			fmt.Fprintf(sb, "               -> %s\n", p.Filename)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by docmirror\n")
	sb.WriteString("https://github.com/nao1215/docmirror\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// WriteComparison outputs the difference between two runs.
func (w *SimpleWriter) WriteComparison(c *model.Comparison) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	writeSection(&sb, "RUN COMPARISON")
	fmt.Fprintf(&sb, "Seed:     %s\n", c.Seed)
	fmt.Fprintf(&sb, "Previous: #%d %s (%d pages)\n",
		c.Previous.ID, c.Previous.StartedAt.Format(timeLayout), c.Previous.PagesSaved)
	fmt.Fprintf(&sb, "Current:  #%d %s (%d pages)\n",
		c.Current.ID, c.Current.StartedAt.Format(timeLayout), c.Current.PagesSaved)
	sb.WriteString("\n")

	if !c.HasChanges() {
		fmt.Fprintf(&sb, "No changes. %d page(s) unchanged.\n", c.Unchanged)
		return io.WriteString(w.output, sb.String())
	}

	writeURLList(&sb, "+", "Added", c.Added)
	writeURLList(&sb, "-", "Removed", c.Removed)
	writeURLList(&sb, "~", "Changed", c.Changed)
	fmt.Fprintf(&sb, "Unchanged: %d\n", c.Unchanged)

	return io.WriteString(w.output, sb.String())
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func writeURLList(sb *strings.Builder, marker, title string, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s (%d):\n", title, len(urls))
	for _, u := range urls {
		fmt.Fprintf(sb, "  %s %s\n", marker, u)
	}
	sb.WriteString("\n")
}
