package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/docmirror/internal/model"
)

// MarkdownWriter outputs reports in GitHub Flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.MirrorReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeFailures(md, report)
	w.writePages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.MirrorReport) {
	md.H1("docmirror Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + report.Seed + "`"},
			{"Scope Root", "`" + report.ScopeRoot + "`"},
			{"Output", "`" + report.OutputDir + "`"},
			{"Started", report.StartedAt.Format(timeLayout)},
			{"Duration", report.Duration().String()},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *model.MirrorReport) string {
	switch report.State {
	case model.RunCompleted:
		return "✅ Completed"
	case model.RunBudgetReached:
		return "⏹️ Page budget reached"
	case model.RunCanceled:
		return "⚠️ Canceled (partial mirror)"
	case model.RunFailed:
		return "❌ Failed - " + report.ErrorMessage
	case model.RunRunning:
		return "⏳ Running"
	default:
		return report.State.String()
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.MirrorReport) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"**Pages persisted**", "**" + strconv.Itoa(report.PagesSaved) + "**"},
			{"Fetch failures", strconv.Itoa(report.FetchFailed)},
			{"Out of scope", strconv.Itoa(report.OutOfScope)},
			{"Not HTML", strconv.Itoa(report.NotHTML)},
			{"Store failures", strconv.Itoa(report.StoreFailed)},
			{"Overwritten files", strconv.Itoa(report.Overwritten)},
			{"Malformed pages", strconv.Itoa(report.Malformed)},
			{"Pending URLs", strconv.Itoa(report.Pending)},
		},
	})
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Links", "Count"},
		Rows: [][]string{
			{"Rewritten", strconv.Itoa(report.LinksRewritten)},
			{"Anchors kept", strconv.Itoa(report.AnchorsKept)},
			{"Stripped", strconv.Itoa(report.LinksStripped)},
		},
	})
	md.PlainText("")

	if len(report.Pages) > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.MirrorReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)

	counts := []struct {
		label string
		n     int
	}{
		{"Saved", report.PagesSaved},
		{"Fetch failed", report.FetchFailed},
		{"Out of scope", report.OutOfScope},
		{"Not HTML", report.NotHTML},
		{"Store failed", report.StoreFailed},
	}
	for _, c := range counts {
		if c.n > 0 {
			chart.LabelAndIntValue(c.label, uint64(c.n)) //nolint:gosec // counts are non-negative
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.MirrorReport) {
	switch {
	case report.State == model.RunCanceled:
		md.Warningf("The run was canceled. %d URL(s) were still pending.", report.Pending)
	case report.StoreFailed > 0:
		md.Cautionf("%d page(s) could not be written to the output directory.", report.StoreFailed)
	case report.FetchFailed > 0:
		md.Importantf("%d page(s) could not be fetched.", report.FetchFailed)
	case report.Overwritten > 0:
		md.Note("Some URLs map to the same file name; later pages overwrote earlier ones.")
	default:
		md.Tip("All discovered pages were mirrored.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.MirrorReport) {
	failed := report.Failed()
	if len(failed) == 0 {
		return
	}

	md.H2("Failed Pages")
	md.PlainText("")

	rows := make([][]string, len(failed))
	for i, p := range failed {
		status := "-"
		if p.StatusCode != 0 {
			status = strconv.Itoa(p.StatusCode)
		}
		rows[i] = []string{p.URL, p.Outcome.String(), status, truncateString(p.Error, 60)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Outcome", "Status", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.MirrorReport) {
	md.H2("Mirrored Pages")
	md.PlainText("")

	if report.PagesSaved == 0 {
		md.PlainText("No pages were mirrored.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, report.PagesSaved)
	for _, p := range report.Pages {
		if p.Outcome != model.OutcomeSaved {
			continue
		}
		rows = append(rows, []string{p.URL, "`" + p.Filename + "`", strconv.Itoa(p.Links)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "File", "Links"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [docmirror](https://github.com/nao1215/docmirror)*")
}

// WriteComparison outputs the difference between two runs in Markdown.
func (w *MarkdownWriter) WriteComparison(c *model.Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Run Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Run", "ID", "Started", "Pages"},
		Rows: [][]string{
			{"Previous", strconv.FormatInt(c.Previous.ID, 10), c.Previous.StartedAt.Format(timeLayout), strconv.Itoa(c.Previous.PagesSaved)},
			{"Current", strconv.FormatInt(c.Current.ID, 10), c.Current.StartedAt.Format(timeLayout), strconv.Itoa(c.Current.PagesSaved)},
		},
	})
	md.PlainText("")

	if !c.HasChanges() {
		md.Tip("No changes between the runs.")
		md.PlainText("")
	}

	sections := []struct {
		title string
		urls  []string
	}{
		{"Added", c.Added},
		{"Removed", c.Removed},
		{"Changed", c.Changed},
	}
	for _, s := range sections {
		if len(s.urls) == 0 {
			continue
		}
		md.H2(s.title + " (" + strconv.Itoa(len(s.urls)) + ")")
		md.PlainText("")
		md.BulletList(s.urls...)
		md.PlainText("")
	}

	md.PlainTextf("Unchanged pages: %d", c.Unchanged)

	return len(md.String()), md.Build()
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
