package scheduler

import (
	"sync"

	"github.com/betech74/SmartCompressor/internal/media"
)

// Update is one change of a task's progress.
type Update struct {
	// Index is the task's position in the caller's input list.
	Index  int
	Source string
	// Percent is the task's progress in [0,100].
	Percent float64
	// Aggregate is the mean progress over every dispatched task.
	Aggregate float64
}

// ProgressFunc receives progress updates. It is called with the aggregator
// lock held, so updates arrive in a consistent order and the callback must
// not block for long.
type ProgressFunc func(Update)

// Aggregator tracks per-task progress and the batch mean. Reports that would
// move a task backwards are dropped, so every task reaches 100 exactly once.
type Aggregator struct {
	mu     sync.Mutex
	tasks  []media.Task
	values []float64
	sink   ProgressFunc
}

// NewAggregator returns an Aggregator for the dispatched tasks. Every task
// starts at 0.
func NewAggregator(tasks []media.Task, sink ProgressFunc) *Aggregator {
	return &Aggregator{
		tasks:  tasks,
		values: make([]float64, len(tasks)),
		sink:   sink,
	}
}

// Report sets the progress of the task at position pos. Values are clamped
// to [0,100]; regressions and repeats are ignored.
func (a *Aggregator) Report(pos int, percent float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pos < 0 || pos >= len(a.values) {
		return
	}
	percent = min(100, max(0, percent))
	if percent <= a.values[pos] {
		return
	}
	a.values[pos] = percent

	if a.sink != nil {
		a.sink(Update{
			Index:     a.tasks[pos].Index,
			Source:    a.tasks[pos].Source,
			Percent:   percent,
			Aggregate: a.aggregate(),
		})
	}
}

// Finish drives the task at pos to 100 if it is not there yet.
func (a *Aggregator) Finish(pos int) {
	a.Report(pos, 100)
}

// Progress returns the current value of the task at pos.
func (a *Aggregator) Progress(pos int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pos < 0 || pos >= len(a.values) {
		return 0
	}
	return a.values[pos]
}

// Aggregate returns the mean progress over all tasks. An empty batch is
// complete.
func (a *Aggregator) Aggregate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aggregate()
}

func (a *Aggregator) aggregate() float64 {
	if len(a.values) == 0 {
		return 100
	}
	var sum float64
	for _, v := range a.values {
		sum += v
	}
	return sum / float64(len(a.values))
}
