package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/betech74/SmartCompressor/internal/compressor"
	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/betech74/SmartCompressor/internal/statistics"
	"github.com/sirupsen/logrus"
)

var (
	// ErrCanceled marks tasks that were never started because the batch was
	// canceled.
	ErrCanceled = errors.New("batch canceled before task started")
	// ErrPanic marks tasks whose backend panicked.
	ErrPanic = errors.New("backend panicked")
	// ErrNoBackend marks tasks whose kind has no registered backend.
	ErrNoBackend = errors.New("no backend for media kind")
)

// Scheduler runs compression tasks tier by tier, each tier on its own
// bounded worker pool.
type Scheduler struct {
	backends  compressor.Set
	policy    Policy
	threshold int64
	logger    *logrus.Logger
	stats     *statistics.Statistics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPolicy sets the per-tier worker counts.
func WithPolicy(p Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithSmallVideoThreshold sets the inclusive size limit of the VideoSmall tier.
func WithSmallVideoThreshold(bytes int64) Option {
	return func(s *Scheduler) { s.threshold = bytes }
}

// WithStatistics makes the scheduler record outcomes into stats.
func WithStatistics(stats *statistics.Statistics) Option {
	return func(s *Scheduler) { s.stats = stats }
}

// New returns a Scheduler dispatching to backends.
func New(backends compressor.Set, log *logrus.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		backends:  backends,
		policy:    DefaultPolicy(),
		threshold: media.DefaultSmallVideoThreshold,
		logger:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan is the classified, routed form of a batch.
type Plan struct {
	// Tasks holds the supported tasks in input order.
	Tasks []media.Task
	// Tiers maps each tier to positions in Tasks, in input order.
	Tiers map[media.Tier][]int
	// Unsupported counts the dropped tasks.
	Unsupported int
}

// Plan classifies tasks, captures their sizes and partitions them into tiers.
// Each task's Index is set to its position in tasks. Unsupported tasks are
// dropped.
func (s *Scheduler) Plan(tasks []media.Task) Plan {
	plan := Plan{Tiers: make(map[media.Tier][]int)}
	for i, task := range tasks {
		task.Index = i
		ext := task.Extension
		if ext == "" {
			ext = filepath.Ext(task.Source)
		}
		task.Extension = media.NormalizeExtension(ext)
		task.Kind = media.Classify(task.Extension)
		task.Size = -1
		if info, err := os.Stat(task.Source); err == nil {
			task.Size = info.Size()
		}

		tier, ok := media.Route(task.Kind, task.Size, s.threshold)
		if !ok {
			plan.Unsupported++
			s.logger.WithField("file", task.Source).Debug("Skipping unsupported file")
			continue
		}
		plan.Tiers[tier] = append(plan.Tiers[tier], len(plan.Tasks))
		plan.Tasks = append(plan.Tasks, task)
	}
	return plan
}

// Run compresses tasks and returns one result per supported task, ordered by
// input index. Tiers run strictly one after another. Canceling ctx stops the
// dispatch of new tasks; those are reported as failed with ErrCanceled while
// tasks already running finish normally. onProgress may be nil.
func (s *Scheduler) Run(ctx context.Context, tasks []media.Task, onProgress ProgressFunc) []compressor.Result {
	plan := s.Plan(tasks)
	if s.stats != nil {
		for i := 0; i < plan.Unsupported; i++ {
			s.stats.IncrementFilesUnsupported()
		}
	}

	results := make([]compressor.Result, len(plan.Tasks))
	if len(plan.Tasks) == 0 {
		s.logger.Info("No supported files to compress")
		return results
	}

	agg := NewAggregator(plan.Tasks, onProgress)
	s.logger.Infof("Compressing %d files (%d unsupported skipped)", len(plan.Tasks), plan.Unsupported)

	for _, tier := range media.Tiers() {
		positions := plan.Tiers[tier]
		if len(positions) == 0 {
			continue
		}
		s.runTier(ctx, tier, plan.Tasks, positions, results, agg)
	}

	s.logger.Info("Batch completed")
	return results
}

// runTier processes one tier with a fixed pool of workers fed from a job
// channel. It returns once every task of the tier has a result.
func (s *Scheduler) runTier(ctx context.Context, tier media.Tier, tasks []media.Task, positions []int, results []compressor.Result, agg *Aggregator) {
	workers := min(s.policy.Bound(tier), len(positions))
	log := logger.WithOperation(s.logger, "tier").WithField("tier", tier.String())
	log.Infof("Starting tier with %d files on %d workers", len(positions), workers)
	started := time.Now()

	var wg sync.WaitGroup
	jobs := make(chan int, len(positions))

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				results[pos] = s.dispatch(ctx, tier, tasks[pos], pos, agg)
			}
		}()
	}

	for _, pos := range positions {
		jobs <- pos
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(started)
	if s.stats != nil {
		s.stats.RecordTier(tier.String(), elapsed)
	}
	log.Infof("Tier finished in %v", elapsed.Round(time.Millisecond))
}

// dispatch runs one task and converts whatever happens into a Result.
func (s *Scheduler) dispatch(ctx context.Context, tier media.Tier, task media.Task, pos int, agg *Aggregator) (res compressor.Result) {
	log := logger.WithTask(s.logger, task)
	defer agg.Finish(pos)
	defer func() { s.record(tier, res) }()

	if err := ctx.Err(); err != nil {
		return compressor.FailedResult(task, "canceled", fmt.Errorf("%w: %w", ErrCanceled, err))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Backend panicked: %v", r)
			res = compressor.FailedResult(task, "backend panicked", fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	backend, ok := s.backends.For(task.Kind)
	if !ok {
		return compressor.FailedResult(task, "no backend", fmt.Errorf("%w: %s", ErrNoBackend, task.Kind))
	}
	if err := compressor.EnsureParentDir(task.Destination); err != nil {
		return compressor.FailedResult(task, "cannot create destination directory", err)
	}

	log.Debug("Dispatching")
	res = backend.Compress(context.WithoutCancel(ctx), task, func(percent float64) {
		agg.Report(pos, percent)
	})
	res.Task = task
	return res
}

func (s *Scheduler) record(tier media.Tier, res compressor.Result) {
	log := logger.WithTask(s.logger, res.Task).WithField("outcome", res.Outcome.String())
	switch {
	case res.Outcome == compressor.OutcomeFailed:
		log.Errorf("Failed: %v", res.Err)
	case res.Outcome == compressor.OutcomeFallbackCopy:
		log.Infof("Copied unchanged: %s", res.Message)
	default:
		log.Debugf("Done: %s", res.Message)
	}

	if s.stats == nil {
		return
	}
	if errors.Is(res.Err, ErrCanceled) {
		s.stats.IncrementFilesCanceled()
	}
	s.stats.RecordOutcome(res.Task.Kind.String(), res.Outcome.String(), res.OriginalSize, res.CompressedSize)
	if res.Err != nil {
		s.stats.AddError(res.Task.Source, tier.String(), res.Err.Error())
	}
}
