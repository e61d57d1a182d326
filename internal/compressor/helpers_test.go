package compressor

import (
	"context"
	"image"
	"image/color"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeExecutor is a stand-in for ffmpeg and ffprobe.
type fakeExecutor struct {
	runFunc    func(ctx context.Context, name string, args []string, stdout io.Writer) error
	outputFunc func(ctx context.Context, name string, args []string) ([]byte, error)
}

func (f *fakeExecutor) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	if f.runFunc != nil {
		return f.runFunc(ctx, name, args, stdout)
	}
	return nil
}

func (f *fakeExecutor) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	if f.outputFunc != nil {
		return f.outputFunc(ctx, name, args)
	}
	return nil, nil
}

type progressRecorder struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressRecorder) record(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressRecorder) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

func (p *progressRecorder) count(v float64) int {
	n := 0
	for _, got := range p.snapshot() {
		if got == v {
			n++
		}
	}
	return n
}

func nullLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func newTask(t *testing.T, src, dst string) media.Task {
	t.Helper()
	size := int64(-1)
	if info, err := os.Stat(src); err == nil {
		size = info.Size()
	}
	ext := filepath.Ext(src)
	return media.Task{
		Source:      src,
		Destination: dst,
		Extension:   ext,
		Kind:        media.Classify(ext),
		Size:        size,
	}
}

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8((x + y) / 2), A: 255})
		}
	}
	return img
}

func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func saveImage(t *testing.T, img image.Image, path string, opts ...imaging.EncodeOption) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, imaging.Save(img, path, opts...))
	return path
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
