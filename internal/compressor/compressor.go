package compressor

import (
	"context"
	"errors"
	"time"

	"github.com/betech74/SmartCompressor/internal/media"
)

// Outcome is the terminal classification of one compressed file.
type Outcome int

const (
	// OutcomeFailed means neither compression nor the fallback copy succeeded.
	OutcomeFailed Outcome = iota
	// OutcomeCompressed means the backend wrote a compressed destination.
	OutcomeCompressed
	// OutcomeFallbackCopy means the source was copied unchanged.
	OutcomeFallbackCopy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompressed:
		return "compressed"
	case OutcomeFallbackCopy:
		return "fallback_copy"
	default:
		return "failed"
	}
}

// ErrFallbackFailed wraps the error of a raw copy that could not be made.
var ErrFallbackFailed = errors.New("fallback copy failed")

// ProgressFunc receives the completion percentage of a single file in [0,100].
type ProgressFunc func(percent float64)

// Result describes what happened to a single task.
type Result struct {
	Task            media.Task
	Outcome         Outcome
	OriginalSize    int64
	CompressedSize  int64
	PercentageSaved float64
	Message         string
	StartedAt       time.Time
	FinishedAt      time.Time
	// Err is the cause of a fallback copy or failure. It is nil for
	// OutcomeCompressed.
	Err error
}

// Backend compresses one file. Implementations never panic, always attempt a
// raw fallback copy on failure and call onProgress(100) exactly once before
// returning, whatever the outcome.
type Backend interface {
	Compress(ctx context.Context, task media.Task, onProgress ProgressFunc) Result
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, task media.Task, onProgress ProgressFunc) Result

// Compress calls f.
func (f BackendFunc) Compress(ctx context.Context, task media.Task, onProgress ProgressFunc) Result {
	return f(ctx, task, onProgress)
}

// Options carries the per-run settings shared by the backends.
type Options struct {
	// ImageQuality is the JPEG/WebP quality on a 10-100 scale.
	ImageQuality int
	// VideoCRF is the constant rate factor, 0-51, lower is better quality.
	VideoCRF    int
	FFmpegPath  string
	FFprobePath string
	// VideoExtraArgs are appended to the ffmpeg command before the output path.
	VideoExtraArgs []string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ImageQuality: 75,
		VideoCRF:     28,
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
	}
}

// report calls fn when it is set.
func report(fn ProgressFunc, percent float64) {
	if fn != nil {
		fn(percent)
	}
}

func newResult(task media.Task) Result {
	return Result{
		Task:         task,
		OriginalSize: task.Size,
		StartedAt:    time.Now(),
	}
}

func (r *Result) finish(outcome Outcome, message string, err error) {
	r.Outcome = outcome
	r.Message = message
	r.Err = err
	r.FinishedAt = time.Now()
	if outcome != OutcomeFailed && r.OriginalSize > 0 && r.CompressedSize > 0 && r.CompressedSize < r.OriginalSize {
		r.PercentageSaved = float64(r.OriginalSize-r.CompressedSize) * 100 / float64(r.OriginalSize)
	}
}

// FailedResult returns a terminal failure for a task that never reached a
// backend.
func FailedResult(task media.Task, message string, err error) Result {
	res := newResult(task)
	res.finish(OutcomeFailed, message, err)
	return res
}
