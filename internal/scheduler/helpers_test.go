package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/betech74/SmartCompressor/internal/compressor"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type span struct {
	source     string
	kind       media.Kind
	start, end time.Time
}

// fakeBackend copies the source, optionally after a delay, and records when
// each task ran and how many ran at once.
type fakeBackend struct {
	delay    time.Duration
	progress []float64
	before   func(ctx context.Context, task media.Task)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu    sync.Mutex
	spans []span
}

func (f *fakeBackend) Compress(ctx context.Context, task media.Task, onProgress compressor.ProgressFunc) compressor.Result {
	start := time.Now()
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.before != nil {
		f.before(ctx, task)
	}
	for _, p := range f.progress {
		onProgress(p)
	}
	time.Sleep(f.delay)
	onProgress(100)

	res := compressor.Result{Task: task, OriginalSize: task.Size, Outcome: compressor.OutcomeCompressed, Message: "fake"}
	if err := compressor.CopyFile(task.Source, task.Destination); err != nil {
		res.Outcome = compressor.OutcomeFailed
		res.Err = err
	}

	f.mu.Lock()
	f.spans = append(f.spans, span{source: task.Source, kind: task.Kind, start: start, end: time.Now()})
	f.mu.Unlock()
	return res
}

func (f *fakeBackend) recorded() []span {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]span(nil), f.spans...)
}

func allKinds(b compressor.Backend) compressor.Set {
	set := compressor.Set{}
	for _, k := range media.Kinds() {
		set[k] = b
	}
	return set
}

func nullLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

// fixture creates a source file of size bytes under dir/src and returns a
// task targeting the same name under dir/dst.
func fixture(t *testing.T, dir, name string, size int) media.Task {
	t.Helper()
	src := filepath.Join(dir, "src", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	data := make([]byte, size)
	for i := range data {
		data[i] = 'x'
	}
	require.NoError(t, os.WriteFile(src, data, 0644))
	return media.Task{Source: src, Destination: filepath.Join(dir, "dst", name)}
}

type updateLog struct {
	mu      sync.Mutex
	updates []Update
}

func (u *updateLog) record(up Update) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.updates = append(u.updates, up)
}

func (u *updateLog) byIndex() map[int][]float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[int][]float64)
	for _, up := range u.updates {
		out[up.Index] = append(out[up.Index], up.Percent)
	}
	return out
}

func (u *updateLog) last() Update {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.updates[len(u.updates)-1]
}
