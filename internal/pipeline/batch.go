package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/docmirror/internal/canon"
	"github.com/nao1215/docmirror/internal/model"
)

// Factory creates the pipeline for one seed.
type Factory func(seed string) (*Pipeline, error)

// BatchProcessor mirrors several seeds concurrently. Each seed gets its own
// pipeline, scheduler and report.
type BatchProcessor struct {
	factory     Factory
	concurrency int
	outputDir   string
	logger      *slog.Logger

	results []*model.MirrorReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of sites mirrored at once.
// Default is 1.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithOutputDir sets the base output directory. A single seed is mirrored
// directly into it; several seeds get one subdirectory each (see SeedDir).
func WithOutputDir(dir string) BatchOption {
	return func(b *BatchProcessor) {
		b.outputDir = dir
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch mirrors seeds and returns one report per seed, in input
// order. Failed seeds still get a report. The error is non-nil only when
// ctx was canceled before every seed was started.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.MirrorReport, error) {
	bp.results = make([]*model.MirrorReport, len(seeds))

	err := bp.run(ctx, seeds, func(report *model.MirrorReport, index int) {
		bp.mu.Lock()
		bp.results[index] = report
		bp.mu.Unlock()
	})

	return bp.results, err
}

// ProcessBatchWithCallback mirrors seeds and calls callback with each
// finished report and the index of its seed. The callback is called from
// worker goroutines.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(report *model.MirrorReport, index int),
) error {
	return bp.run(ctx, seeds, callback)
}

func (bp *BatchProcessor) run(ctx context.Context, seeds []string, done func(*model.MirrorReport, int)) error {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	dirs := make([]string, len(seeds))
	if len(seeds) > 1 {
		for i, dir := range SeedDirs(seeds) {
			dirs[i] = filepath.Join(bp.outputDir, dir)
		}
	} else {
		for i := range dirs {
			dirs[i] = bp.outputDir
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("mirroring site", "seed", seed, "index", i+1, "total", len(seeds))
			report := bp.mirror(ctx, seed, dirs[i])
			done(report, i)

			if report.Error != nil {
				bp.logger.Warn("mirror failed", "seed", seed, "state", report.State, "error", report.Error)
			}
			// Seed failures are recorded in the report; the others go on.
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)

	return err
}

func (bp *BatchProcessor) mirror(ctx context.Context, seed, outputDir string) *model.MirrorReport {
	report := model.NewMirrorReport(seed)
	report.OutputDir = outputDir

	p, err := bp.factory(seed)
	if err != nil {
		report.Finish(model.RunFailed, err)
		return report
	}

	_ = p.Execute(ctx, report) //nolint:errcheck // the error is stored in the report
	return report
}

// SeedDir returns the subdirectory name used for seed in a batch, built
// from the host and the scope root path, e.g. "example.com_docs".
// Unparseable seeds are sanitized as is.
func SeedDir(seed string) string {
	c, err := canon.New(seed)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if canon.IsUnsafe(r) {
				return canon.Substitute
			}
			return r
		}, seed)
	}

	host := strings.TrimSuffix(c.Filename(c.Origin()), canon.DocumentExtension)
	root := strings.TrimSuffix(c.Filename(c.ScopeRoot()), canon.DocumentExtension)
	if root == host {
		return host
	}
	return host + string(canon.Substitute) + root
}

// SeedDirs returns one distinct subdirectory name per seed, in input order.
// Seeds that share a SeedDir get a numeric suffix from the second one on,
// e.g. "example.com_docs" and "example.com_docs_2", so that no two crawls
// write into the same directory.
func SeedDirs(seeds []string) []string {
	dirs := make([]string, len(seeds))
	used := make(map[string]struct{}, len(seeds))
	for i, seed := range seeds {
		dirs[i] = SeedDir(seed)
	}
	// Natural names are reserved first so a suffixed name never takes one.
	for _, dir := range dirs {
		used[dir] = struct{}{}
	}

	taken := make(map[string]struct{}, len(seeds))
	for i, dir := range dirs {
		if _, dup := taken[dir]; !dup {
			taken[dir] = struct{}{}
			continue
		}
		for n := 2; ; n++ {
			candidate := dir + string(canon.Substitute) + strconv.Itoa(n)
			_, reserved := used[candidate]
			_, dup := taken[candidate]
			if !reserved && !dup {
				dirs[i] = candidate
				taken[candidate] = struct{}{}
				break
			}
		}
	}
	return dirs
}
