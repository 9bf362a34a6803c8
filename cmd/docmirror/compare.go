package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/docmirror/internal/config"
	"github.com/nao1215/docmirror/internal/database"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/report"
	"github.com/nao1215/docmirror/internal/rewrite"
)

// listTimeLayout is the time format of history listings.
const listTimeLayout = "2006-01-02 15:04:05"

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [seed-url]",
		Short: "Compare mirror runs recorded in the history database",
		Long: `Compare shows how a documentation site changed between two mirror runs:
- pages that were added since the previous run
- pages that are gone
- pages whose content changed

By default the latest two runs of the seed are compared. Runs are
recorded by 'docmirror mirror' unless --no-db was given.

Examples:
  # Compare the latest two runs
  docmirror compare https://example.com/docs/

  # List the recorded runs of a seed
  docmirror compare --list https://example.com/docs/

  # Compare the latest run with run 5
  docmirror compare --with-run-id 5 https://example.com/docs/

  # Compare with the first run since a date
  docmirror compare --since 2025-01-01 https://example.com/docs/

  # Show the recorded outcomes of one page
  docmirror compare --page https://example.com/docs/guide.html

  # List every seed in the database
  docmirror compare --list-seeds`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List the recorded runs of the seed")
	cmd.Flags().BoolP("list-seeds", "L", false,
		"List every seed in the database")
	cmd.Flags().String("page", "",
		"Show the recorded outcomes of one page URL")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare the latest run with the run of this ID (see --list)")
	cmd.Flags().StringP("since", "s", "",
		"Compare the latest run with the first run since this date (YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the comparison in Markdown format")

	cmd.Flags().String("db-dir", "",
		"History database directory (default: $XDG_DATA_HOME/docmirror)")

	return cmd
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listSeeds, err := flags.GetBool("list-seeds")
	if err != nil {
		return err
	}
	pageURL, err := flags.GetString("page")
	if err != nil {
		return err
	}

	// Validate before opening the database.
	var seed string
	if !listSeeds && pageURL == "" {
		if len(args) == 0 {
			return errors.New("seed URL is required (use --list-seeds to see recorded seeds)")
		}
		seed, err = rewrite.NormalizeURL(args[0])
		if err != nil {
			return fmt.Errorf("invalid seed URL: %w", err)
		}
	}

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case listSeeds:
		return listRecordedSeeds(ctx, out, db)
	case pageURL != "":
		return showPageHistory(ctx, out, db, pageURL)
	}

	list, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	if list {
		return listRunHistory(ctx, out, db, seed)
	}

	withRunID, err := flags.GetInt64("with-run-id")
	if err != nil {
		return err
	}
	since, err := flags.GetString("since")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	comparison, err := compareRuns(ctx, db, seed, withRunID, since)
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	_, err = w.WriteComparison(comparison)
	return err
}

// listRecordedSeeds prints every seed that has at least one run.
func listRecordedSeeds(ctx context.Context, out io.Writer, db *database.MirrorDB) error {
	seeds, err := db.ListSeeds(ctx)
	if err != nil {
		return err
	}

	if len(seeds) == 0 {
		fmt.Fprintln(out, "No mirror runs found in the database.")
		fmt.Fprintln(out, "\nUse 'docmirror mirror <seed-url>' to mirror a site.")
		return nil
	}

	fmt.Fprintf(out, "Recorded seeds (%d):\n\n", len(seeds))
	for _, s := range seeds {
		fmt.Fprintf(out, "  • %s\n", s)
	}
	fmt.Fprintln(out, "\nUse 'docmirror compare --list <seed-url>' to see the runs of a seed.")
	return nil
}

// listRunHistory prints the runs of seed, newest first.
func listRunHistory(ctx context.Context, out io.Writer, db *database.MirrorDB, seed string) error {
	runs, err := db.ListRuns(ctx, seed)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs found for %s\n", seed)
		return nil
	}

	fmt.Fprintf(out, "Runs of %s (%d):\n\n", seed, len(runs))
	fmt.Fprintf(out, "  %-6s  %-19s  %-15s  %6s  %6s\n", "ID", "Date", "State", "Saved", "Failed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 62))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-19s  %-15s  %6d  %6d\n",
			r.ID, r.StartedAt.Local().Format(listTimeLayout), r.State, r.PagesSaved, r.FetchFailed)
	}

	fmt.Fprintln(out, "\nUse 'docmirror compare <seed-url>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'docmirror compare --with-run-id <id> <seed-url>' to compare with a specific run.")
	return nil
}

// showPageHistory prints the recorded outcomes of one page.
func showPageHistory(ctx context.Context, out io.Writer, db *database.MirrorDB, rawURL string) error {
	pageURL, err := rewrite.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("invalid page URL: %w", err)
	}

	entries, err := db.PageHistory(ctx, pageURL)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No recorded outcomes for %s\n", pageURL)
		return nil
	}

	fmt.Fprintf(out, "History of %s (%d):\n\n", pageURL, len(entries))
	fmt.Fprintf(out, "  %-6s  %-19s  %-12s  %-6s  %s\n", "Run", "Date", "Outcome", "Status", "File")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 62))

	// Entries are newest first; a run is marked when its content differs
	// from the saved copy of the run before it.
	changed := make([]bool, len(entries))
	prevHash := ""
	for i := len(entries) - 1; i >= 0; i-- {
		h := entries[i].Hash
		if h == "" {
			continue
		}
		changed[i] = prevHash != "" && h != prevHash
		prevHash = h
	}

	for i, e := range entries {
		status := "-"
		if e.StatusCode != 0 {
			status = strconv.Itoa(e.StatusCode)
		}
		marker := " "
		if changed[i] {
			marker = "~"
		}
		fmt.Fprintf(out, "%s %-6d  %-19s  %-12s  %-6s  %s\n",
			marker, e.RunID, e.StartedAt.Local().Format(listTimeLayout), e.Outcome, status, e.Filename)
	}
	fmt.Fprintln(out, "\n~ marks content that changed since the previous saved copy.")
	return nil
}

// compareRuns selects the runs to compare and diffs them. The latest run
// is always the current one.
func compareRuns(ctx context.Context, db *database.MirrorDB, seed string, withRunID int64, since string) (*model.Comparison, error) {
	latest, err := db.LatestRuns(ctx, seed, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("no runs found for %s", seed)
	}
	current := latest[0]

	var previous *model.MirrorReport
	switch {
	case withRunID > 0:
		previous, err = db.GetRun(ctx, withRunID)
		if err != nil {
			return nil, fmt.Errorf("failed to get run %d: %w", withRunID, err)
		}
		if previous == nil {
			return nil, fmt.Errorf("run %d not found", withRunID)
		}
		if previous.Seed != seed {
			return nil, fmt.Errorf("run %d belongs to %s, not %s", withRunID, previous.Seed, seed)
		}

	case since != "":
		previous, err = firstRunSince(ctx, db, seed, since)
		if err != nil {
			return nil, err
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", since)
		}

	default:
		if len(latest) < 2 {
			return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(latest))
		}
		previous = latest[1]
	}

	return model.Compare(previous, current), nil
}

// firstRunSince returns the oldest run of seed started at or after date.
func firstRunSince(ctx context.Context, db *database.MirrorDB, seed, date string) (*model.MirrorReport, error) {
	since, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
	}

	runs, err := db.ListRuns(ctx, seed)
	if err != nil {
		return nil, err
	}
	// Newest first: walk backwards to find the oldest match.
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].StartedAt.Before(since) {
			continue
		}
		run, err := db.GetRun(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		if run != nil {
			return run, nil
		}
	}
	return nil, fmt.Errorf("no runs found since %s", date)
}
