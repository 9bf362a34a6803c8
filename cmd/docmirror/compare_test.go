package main

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/docmirror/internal/database"
	"github.com/nao1215/docmirror/internal/model"
)

const compareSeed = "https://example.com/docs/"

// saveRun records a finished run of compareSeed. pages maps URLs to the
// content of their stored copy.
func saveRun(t *testing.T, db *database.MirrorDB, startedAt time.Time, pages map[string]string) int64 {
	t.Helper()

	r := model.NewMirrorReport(compareSeed)
	r.ScopeRoot = compareSeed
	r.OutputDir = "out"
	r.StartedAt = startedAt
	for u, content := range pages {
		r.AddPage(model.PageRecord{
			URL:        u,
			Filename:   strings.TrimPrefix(u, "https://example.com/") + ".html",
			Outcome:    model.OutcomeSaved,
			StatusCode: 200,
			Hash:       model.ContentHash([]byte(content)),
		})
	}
	r.Finish(model.RunCompleted, nil)
	r.FinishedAt = startedAt.Add(time.Second)

	id, err := db.SaveRun(context.Background(), r)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	return id
}

// newHistoryDB creates a database with three runs of compareSeed and
// returns its directory and the run IDs, oldest first.
func newHistoryDB(t *testing.T) (string, []int64) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	ids := []int64{
		saveRun(t, db, base, map[string]string{
			compareSeed + "a": "a1",
			compareSeed + "b": "b1",
		}),
		saveRun(t, db, base.Add(24*time.Hour), map[string]string{
			compareSeed + "a": "a1",
			compareSeed + "b": "b2",
		}),
		saveRun(t, db, base.Add(48*time.Hour), map[string]string{
			compareSeed + "a": "a1",
			compareSeed + "c": "c1",
		}),
	}
	return dir, ids
}

func TestCompareCmd(t *testing.T) {
	t.Parallel()

	dbDir, ids := newHistoryDB(t)

	t.Run("compares latest two runs", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, "compare", "--db-dir", dbDir, compareSeed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{
			"RUN COMPARISON",
			"Added (1):",
			"+ " + compareSeed + "c",
			"Removed (1):",
			"- " + compareSeed + "b",
			"Unchanged: 1",
		} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected %q in output, got %q", want, stdout)
			}
		}
	})

	t.Run("compares with run id", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, "compare", "--db-dir", dbDir, "--json",
			"--with-run-id", strconv.FormatInt(ids[0], 10), compareSeed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var c model.Comparison
		if err := json.Unmarshal([]byte(stdout), &c); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if c.Previous.ID != ids[0] || c.Current.ID != ids[2] {
			t.Errorf("unexpected runs: %d -> %d", c.Previous.ID, c.Current.ID)
		}
		if len(c.Added) != 1 || len(c.Removed) != 1 || c.Unchanged != 1 {
			t.Errorf("unexpected comparison: %+v", c)
		}
	})

	t.Run("compares with first run since date", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, "compare", "--db-dir", dbDir, "--markdown",
			"--since", "2025-03-02", compareSeed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "# Run Comparison") {
			t.Errorf("expected Markdown comparison, got %q", stdout)
		}
		if !strings.Contains(stdout, "## Added (1)") || !strings.Contains(stdout, "## Removed (1)") {
			t.Errorf("expected added and removed sections, got %q", stdout)
		}
	})

	t.Run("lists runs", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, "compare", "--db-dir", dbDir, "--list", compareSeed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Runs of "+compareSeed+" (3)") {
			t.Errorf("expected run count, got %q", stdout)
		}
		newest := strings.Index(stdout, "2025-03-03")
		oldest := strings.Index(stdout, "2025-03-01")
		if newest < 0 || oldest < 0 || newest > oldest {
			t.Errorf("expected newest run first, got %q", stdout)
		}
	})

	t.Run("lists seeds", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, "compare", "--db-dir", dbDir, "--list-seeds")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "• "+compareSeed) {
			t.Errorf("expected seed in output, got %q", stdout)
		}
	})

	t.Run("shows page history", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeCmd(t, "compare", "--db-dir", dbDir, "--page", compareSeed+"b")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "History of "+compareSeed+"b (2)") {
			t.Errorf("expected two entries, got %q", stdout)
		}
		if !strings.Contains(stdout, "~ "+strconv.FormatInt(ids[1], 10)) {
			t.Errorf("expected changed marker on run %d, got %q", ids[1], stdout)
		}
	})
}

func TestCompareCmdErrors(t *testing.T) {
	t.Parallel()

	dbDir, _ := newHistoryDB(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing seed",
			args:    []string{"compare", "--db-dir", dbDir},
			wantErr: "seed URL is required",
		},
		{
			name:    "unknown seed",
			args:    []string{"compare", "--db-dir", dbDir, "https://other.example.com/"},
			wantErr: "no runs found",
		},
		{
			name:    "unknown run id",
			args:    []string{"compare", "--db-dir", dbDir, "--with-run-id", "999", compareSeed},
			wantErr: "run 999 not found",
		},
		{
			name:    "only the latest run since date",
			args:    []string{"compare", "--db-dir", dbDir, "--since", "2025-03-03", compareSeed},
			wantErr: "only one run found",
		},
		{
			name:    "invalid date",
			args:    []string{"compare", "--db-dir", dbDir, "--since", "03/01/2025", compareSeed},
			wantErr: "invalid date format",
		},
		{
			name:    "missing database",
			args:    []string{"compare", "--db-dir", t.TempDir(), compareSeed},
			wantErr: "failed to open database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := executeCmd(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
