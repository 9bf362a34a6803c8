package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/docmirror/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "docmirror.db"

// MirrorDB stores the history of mirror runs in SQLite.
type MirrorDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures MirrorDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a MirrorDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist,
// ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*MirrorDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file. busy_timeout lets parallel
	// readers wait for a writer instead of failing with "database is locked".
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MirrorDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Path returns the path of the database file.
func (mdb *MirrorDB) Path() string {
	return mdb.dbPath
}

// Close closes the database connection.
func (mdb *MirrorDB) Close() error {
	return mdb.db.Close()
}

func (mdb *MirrorDB) createTables() error {
	schema := `
	-- One row per mirror run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		scope_root TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		state TEXT NOT NULL,
		pages_saved INTEGER NOT NULL DEFAULT 0,
		fetch_failed INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per processed URL of a run
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		filename TEXT NOT NULL,
		outcome TEXT NOT NULL,
		status_code INTEGER,
		hash TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`

	_, err := mdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun records report and its pages and sets report.ID.
func (mdb *MirrorDB) SaveRun(ctx context.Context, report *model.MirrorReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := mdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (seed, scope_root, output_dir, started_at, finished_at, state, pages_saved, fetch_failed, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Seed,
		report.ScopeRoot,
		report.OutputDir,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.State.String(),
		report.PagesSaved,
		report.FetchFailed,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, url, filename, outcome, status_code, hash)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range report.Pages {
		if _, err := stmt.ExecContext(ctx, id, p.URL, p.Filename, p.Outcome.String(), p.StatusCode, p.Hash); err != nil {
			return 0, fmt.Errorf("failed to save page %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	report.ID = id
	return id, nil
}

// GetRun retrieves a run by its database ID. It returns nil, nil when the
// run does not exist.
func (mdb *MirrorDB) GetRun(ctx context.Context, id int64) (*model.MirrorReport, error) {
	var reportJSON string
	err := mdb.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.MirrorReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	report.ID = id

	return &report, nil
}

// ListRuns returns the runs of seed, newest first.
func (mdb *MirrorDB) ListRuns(ctx context.Context, seed string) ([]model.RunSummary, error) {
	rows, err := mdb.db.QueryContext(ctx, `
	SELECT id, seed, started_at, state, pages_saved, fetch_failed
	FROM runs
	WHERE seed = ?
	ORDER BY started_at DESC, id DESC
	`, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		var (
			run       model.RunSummary
			startedAt string
			state     string
		)
		if err := rows.Scan(&run.ID, &run.Seed, &startedAt, &state, &run.PagesSaved, &run.FetchFailed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = parseTimestamp(startedAt)
		run.State = model.RunState(state)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LatestRuns returns up to limit of the newest runs of seed, fully loaded.
func (mdb *MirrorDB) LatestRuns(ctx context.Context, seed string, limit int) ([]*model.MirrorReport, error) {
	runs, err := mdb.ListRuns(ctx, seed)
	if err != nil {
		return nil, err
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}

	reports := make([]*model.MirrorReport, 0, len(runs))
	for _, run := range runs {
		report, err := mdb.GetRun(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		if report != nil {
			reports = append(reports, report)
		}
	}
	return reports, nil
}

// ListSeeds returns every seed with at least one recorded run.
func (mdb *MirrorDB) ListSeeds(ctx context.Context) ([]string, error) {
	rows, err := mdb.db.QueryContext(ctx, `SELECT DISTINCT seed FROM runs ORDER BY seed`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []string
	for rows.Next() {
		var seed string
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("failed to scan seed: %w", err)
		}
		seeds = append(seeds, seed)
	}

	return seeds, rows.Err()
}

// PageEntry is one recorded outcome of a URL.
type PageEntry struct {
	RunID      int64
	StartedAt  time.Time
	Filename   string
	Outcome    model.Outcome
	StatusCode int
	Hash       string
}

// PageHistory returns the recorded outcomes of pageURL over all runs,
// newest first.
func (mdb *MirrorDB) PageHistory(ctx context.Context, pageURL string) ([]PageEntry, error) {
	rows, err := mdb.db.QueryContext(ctx, `
	SELECT p.run_id, r.started_at, p.filename, p.outcome, p.status_code, p.hash
	FROM pages p
	JOIN runs r ON r.id = p.run_id
	WHERE p.url = ?
	ORDER BY r.started_at DESC, p.run_id DESC
	`, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get page history: %w", err)
	}
	defer rows.Close()

	var entries []PageEntry
	for rows.Next() {
		var (
			e         PageEntry
			startedAt string
			outcome   string
			status    sql.NullInt64
			hash      sql.NullString
		)
		if err := rows.Scan(&e.RunID, &startedAt, &e.Filename, &outcome, &status, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		e.StartedAt = parseTimestamp(startedAt)
		e.Outcome = model.Outcome(outcome)
		e.StatusCode = int(status.Int64)
		e.Hash = hash.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// timestampLayout has a fixed width so that stored times sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats. It returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
