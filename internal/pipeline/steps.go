package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/docmirror/internal/canon"
	"github.com/nao1215/docmirror/internal/config"
	"github.com/nao1215/docmirror/internal/crawler"
	"github.com/nao1215/docmirror/internal/fetch"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/scope"
	"github.com/nao1215/docmirror/internal/store"
)

// MirrorStep crawls the report's seed into the report's output directory.
type MirrorStep struct {
	fetcher   crawler.Fetcher
	crawlOpts []crawler.Option
	logger    *slog.Logger
}

// MirrorStepOption configures a MirrorStep.
type MirrorStepOption func(*MirrorStep)

// WithCrawlerOptions passes options to the scheduler of each run.
func WithCrawlerOptions(opts ...crawler.Option) MirrorStepOption {
	return func(s *MirrorStep) {
		s.crawlOpts = append(s.crawlOpts, opts...)
	}
}

// WithMirrorLogger sets a custom logger for the mirror step.
func WithMirrorLogger(logger *slog.Logger) MirrorStepOption {
	return func(s *MirrorStep) {
		s.logger = logger
	}
}

// NewMirrorStep creates a mirror step that fetches pages with fetcher.
func NewMirrorStep(fetcher crawler.Fetcher, opts ...MirrorStepOption) *MirrorStep {
	s := &MirrorStep{
		fetcher: fetcher,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *MirrorStep) Name() string {
	return "mirror"
}

// Do runs a scheduler for report.Seed and replaces the content of report
// with the scheduler's report. OutputDir is kept.
func (s *MirrorStep) Do(ctx context.Context, report *model.MirrorReport) error {
	sink := store.NewDirSink(report.OutputDir)

	opts := append([]crawler.Option{crawler.WithLogger(s.logger)}, s.crawlOpts...)
	scheduler, err := crawler.NewScheduler(report.Seed, s.fetcher, sink, opts...)
	if err != nil {
		report.Finish(model.RunFailed, err)
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	result, err := scheduler.Run(ctx)
	result.OutputDir = report.OutputDir
	*report = *result

	return err
}

// RunRecorder stores finished runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, report *model.MirrorReport) (int64, error)
}

// RecordStep saves the report in the run history.
type RecordStep struct {
	recorder RunRecorder
	logger   *slog.Logger
}

// RecordStepOption configures a RecordStep.
type RecordStepOption func(*RecordStep)

// WithRecordLogger sets a custom logger for the record step.
func WithRecordLogger(logger *slog.Logger) RecordStepOption {
	return func(s *RecordStep) {
		s.logger = logger
	}
}

// NewRecordStep creates a step that saves reports with recorder.
func NewRecordStep(recorder RunRecorder, opts ...RecordStepOption) *RecordStep {
	s := &RecordStep{
		recorder: recorder,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do saves report and sets its ID.
func (s *RecordStep) Do(ctx context.Context, report *model.MirrorReport) error {
	id, err := s.recorder.SaveRun(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.logger.Debug("run recorded", "seed", report.Seed, "run_id", id)
	return nil
}

// DefaultPipeline builds the pipeline for seed from cfg: a mirror step
// configured with the settings for the seed's host, followed by a record
// step when recorder is not nil. The pipeline continues on error so that
// failed runs are recorded as well.
func DefaultPipeline(cfg *config.Config, seed string, recorder RunRecorder, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c, err := canon.New(seed)
	if err != nil {
		return nil, err
	}
	site := cfg.ForHost(c.Host())

	client, err := fetch.NewClient(
		fetch.WithUserAgent(site.UserAgent),
		fetch.WithTimeout(site.Timeout),
		fetch.WithMaxBodySize(site.MaxBodySize),
		fetch.WithHeaders(site.Headers),
		fetch.WithProxy(site.Proxy),
		fetch.WithRobots(site.RespectRobots),
		fetch.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var contentOpts []scope.ContentOption
	if len(site.Keywords) > 0 {
		contentOpts = append(contentOpts, scope.WithKeywords(site.Keywords...))
	}
	contentOpts = append(contentOpts, scope.WithStrict(site.StrictScope))

	mirror := NewMirrorStep(client,
		WithMirrorLogger(logger),
		WithCrawlerOptions(
			crawler.WithMaxPages(site.MaxPages),
			crawler.WithDelay(site.Delay),
			crawler.WithScopePolicy(site.ScopePolicy, contentOpts...),
			crawler.WithIgnorePatterns(site.IgnorePatterns),
			crawler.WithFollowPatterns(site.FollowPatterns),
		),
	)

	p := New(WithLogger(logger), WithContinueOnError(true))
	p.AddStep(mirror)
	if recorder != nil {
		p.AddStep(NewRecordStep(recorder, WithRecordLogger(logger)))
	}

	return p, nil
}
