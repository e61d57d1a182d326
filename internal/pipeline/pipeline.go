// Package pipeline runs a complete compression batch: discovery, scheduling
// and the optional CSV report.
package pipeline

import (
	"context"
	"fmt"

	"github.com/betech74/SmartCompressor/internal/compressor"
	"github.com/betech74/SmartCompressor/internal/config"
	"github.com/betech74/SmartCompressor/internal/imagemeta"
	"github.com/betech74/SmartCompressor/internal/report"
	"github.com/betech74/SmartCompressor/internal/scanner"
	"github.com/betech74/SmartCompressor/internal/scheduler"
	"github.com/betech74/SmartCompressor/internal/statistics"
	"github.com/sirupsen/logrus"
)

// Runner holds the collaborators shared by every batch.
type Runner struct {
	cfg      *config.Config
	logger   *logrus.Logger
	exec     compressor.Executor
	backends compressor.Set
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor replaces the command executor used for ffmpeg and ffprobe.
func WithExecutor(ex compressor.Executor) Option {
	return func(r *Runner) { r.exec = ex }
}

// WithBackends replaces the backends built from the configuration.
func WithBackends(set compressor.Set) Option {
	return func(r *Runner) { r.backends = set }
}

// New returns a Runner for cfg.
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, logger: logger, exec: compressor.NewExecExecutor()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Batch describes one run.
type Batch struct {
	Source string
	Target string
	// ReportPath overrides the configured CSV path when set.
	ReportPath string
}

// Summary is what a finished batch produced.
type Summary struct {
	Results    []compressor.Result
	Accel      bool
	ReportRows int
}

// Run discovers the files under b.Source, compresses them into b.Target and
// writes the report. Only setup errors are returned; per-file problems are
// part of the results.
func (r *Runner) Run(ctx context.Context, b Batch, stats *statistics.Statistics, onProgress scheduler.ProgressFunc) (Summary, error) {
	var sum Summary
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	defer stats.Finalize()

	cfg := *r.cfg
	cfg.SourceDirectory = config.ExpandPath(b.Source)
	cfg.TargetDirectory = config.ExpandPath(b.Target)
	if err := cfg.ValidateDirectories(); err != nil {
		return sum, err
	}

	opts, err := cfg.BackendOptions()
	if err != nil {
		return sum, err
	}

	sum.Accel = cfg.HardwareAccel(ctx, r.exec)
	r.logger.WithField("accel", sum.Accel).Info("Hardware acceleration resolved")

	tasks, err := scanner.New(r.logger, stats).Discover(cfg.SourceDirectory, cfg.TargetDirectory, sum.Accel)
	if err != nil {
		return sum, fmt.Errorf("failed to discover files: %w", err)
	}

	backends := r.backends
	if backends == nil {
		orient := imagemeta.NewEXIFReader(r.logger)
		backends = compressor.NewDefaultSet(opts, r.exec, orient, r.logger)
	}

	sched := scheduler.New(backends, r.logger,
		scheduler.WithPolicy(cfg.Policy()),
		scheduler.WithSmallVideoThreshold(cfg.Video.SmallThreshold),
		scheduler.WithStatistics(stats),
	)
	sum.Results = sched.Run(ctx, tasks, onProgress)

	reportPath := b.ReportPath
	if reportPath == "" {
		reportPath = cfg.Report.CSVPath
	}
	if reportPath != "" {
		rows, err := report.WriteFile(config.ExpandPath(reportPath), sum.Results)
		if err != nil {
			r.logger.Errorf("Report not written: %v", err)
			stats.AddError(reportPath, "report", err.Error())
		} else {
			r.logger.Infof("Report written to %s (%d rows)", reportPath, rows)
		}
		sum.ReportRows = rows
	}

	return sum, nil
}
