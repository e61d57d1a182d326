package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectEncoder(t *testing.T) {
	tests := []struct {
		ext   string
		accel bool
		want  Encoder
	}{
		{".mp4", true, EncoderSoftware},
		{".MOV", true, EncoderSoftware},
		{".mkv", true, EncoderSoftware},
		{".avi", true, EncoderNVENC},
		{".webm", true, EncoderNVENC},
		{".avi", false, EncoderSoftware},
		{".mp4", false, EncoderSoftware},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.ext, tt.accel), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectEncoder(tt.ext, tt.accel))
		})
	}
}

func TestVideoArgs(t *testing.T) {
	opts := DefaultOptions()
	opts.VideoCRF = 31
	opts.VideoExtraArgs = []string{"-map_metadata", "0"}
	v := NewVideoBackend(opts, nil, nullLogger())

	sw := v.Args("in.avi", "out.avi", EncoderSoftware)
	assert.Equal(t, "out.avi", sw[len(sw)-1])
	assert.Contains(t, strings.Join(sw, " "), "-c:v libx265 -preset medium -crf 31")
	assert.Contains(t, strings.Join(sw, " "), "-progress pipe:1 -map_metadata 0 out.avi")

	hw := v.Args("in.avi", "out.avi", EncoderNVENC)
	assert.Contains(t, strings.Join(hw, " "), "-c:v hevc_nvenc -rc vbr_hq -cq 31")
}

func TestParseProgressLine(t *testing.T) {
	p, ok := ParseProgressLine("out_time_ms=5000000", 10)
	require.True(t, ok)
	assert.InDelta(t, 50.0, p, 1e-9)

	p, ok = ParseProgressLine("out_time_us=20000000\n", 10)
	require.True(t, ok)
	assert.Equal(t, 100.0, p, "percentages are capped at 100")

	_, ok = ParseProgressLine("out_time_ms=5000000", 0)
	assert.False(t, ok, "unknown duration disables progress")

	_, ok = ParseProgressLine("frame=42", 10)
	assert.False(t, ok)

	_, ok = ParseProgressLine("out_time_ms=N/A", 10)
	assert.False(t, ok)
}

func TestParseDuration(t *testing.T) {
	assert.InDelta(t, 12.5, ParseDuration("12.500000\n"), 1e-9)
	assert.Zero(t, ParseDuration("N/A"))
	assert.Zero(t, ParseDuration(""))
	assert.Zero(t, ParseDuration("garbage"))
}

func TestDetectHardwareEncoder(t *testing.T) {
	ex := &fakeExecutor{outputFunc: func(context.Context, string, []string) ([]byte, error) {
		return []byte(" V....D hevc_nvenc  NVIDIA NVENC hevc encoder"), nil
	}}
	assert.True(t, DetectHardwareEncoder(context.Background(), ex, "ffmpeg"))

	ex = &fakeExecutor{outputFunc: func(context.Context, string, []string) ([]byte, error) {
		return []byte(" V....D libx265"), nil
	}}
	assert.False(t, DetectHardwareEncoder(context.Background(), ex, "ffmpeg"))

	ex = &fakeExecutor{outputFunc: func(context.Context, string, []string) ([]byte, error) {
		return nil, errors.New("not found")
	}}
	assert.False(t, DetectHardwareEncoder(context.Background(), ex, "ffmpeg"))
}

// transcodingExecutor reports progress the way ffmpeg -progress pipe:1 does
// and writes a small output file.
func transcodingExecutor(duration string, steps []int64) *fakeExecutor {
	return &fakeExecutor{
		outputFunc: func(context.Context, string, []string) ([]byte, error) {
			return []byte(duration), nil
		},
		runFunc: func(_ context.Context, _ string, args []string, stdout io.Writer) error {
			for _, us := range steps {
				fmt.Fprintf(stdout, "frame=1\nout_time_ms=%d\nprogress=continue\n", us)
			}
			fmt.Fprint(stdout, "progress=end\n")
			return os.WriteFile(args[len(args)-1], []byte("hevc"), 0644)
		},
	}
}

func TestVideoCompressStreamsProgress(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "clip.avi"), bytes.Repeat([]byte("v"), 1024))
	dst := filepath.Join(dir, "out", "clip.avi")

	ex := transcodingExecutor("10.0", []int64{2_500_000, 5_000_000, 7_500_000})
	progress := &progressRecorder{}
	res := NewVideoBackend(DefaultOptions(), ex, nullLogger()).
		Compress(context.Background(), newTask(t, src, dst), progress.record)

	require.Equal(t, OutcomeCompressed, res.Outcome, res.Err)
	assert.Equal(t, []float64{25, 50, 75, 100}, progress.snapshot())
	got, _ := os.ReadFile(dst)
	assert.Equal(t, "hevc", string(got))
	assert.Equal(t, int64(4), res.CompressedSize)
}

func TestVideoReportsCompletionOnce(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "clip.avi"), bytes.Repeat([]byte("v"), 1024))
	dst := filepath.Join(dir, "out", "clip.avi")

	ex := transcodingExecutor("10.0", []int64{5_000_000, 10_000_000, 10_000_000})
	progress := &progressRecorder{}
	res := NewVideoBackend(DefaultOptions(), ex, nullLogger()).
		Compress(context.Background(), newTask(t, src, dst), progress.record)

	require.Equal(t, OutcomeCompressed, res.Outcome, res.Err)
	assert.Equal(t, 1, progress.count(100))
	assert.Equal(t, []float64{50, 100}, progress.snapshot())
}

func TestVideoWithoutDurationStillCompresses(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "clip.mkv"), []byte("video"))
	dst := filepath.Join(dir, "out", "clip.mkv")

	ex := transcodingExecutor("", []int64{1_000_000})
	ex.outputFunc = func(context.Context, string, []string) ([]byte, error) {
		return nil, errors.New("ffprobe missing")
	}
	progress := &progressRecorder{}
	res := NewVideoBackend(DefaultOptions(), ex, nullLogger()).
		Compress(context.Background(), newTask(t, src, dst), progress.record)

	assert.Equal(t, OutcomeCompressed, res.Outcome)
	assert.Equal(t, []float64{100}, progress.snapshot())
}

func TestVideoFailureFallsBackToCopy(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "clip.flv"), []byte("original video"))
	dst := filepath.Join(dir, "out", "clip.flv")

	ex := &fakeExecutor{
		outputFunc: func(context.Context, string, []string) ([]byte, error) { return []byte("4"), nil },
		runFunc: func(_ context.Context, _ string, args []string, stdout io.Writer) error {
			fmt.Fprint(stdout, "out_time_ms=1000000\n")
			_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0644)
			return errors.New("ffmpeg: exit status 1")
		},
	}
	progress := &progressRecorder{}
	res := NewVideoBackend(DefaultOptions(), ex, nullLogger()).
		Compress(context.Background(), newTask(t, src, dst), progress.record)

	assert.Equal(t, OutcomeFallbackCopy, res.Outcome)
	assert.Error(t, res.Err)
	got, _ := os.ReadFile(dst)
	assert.Equal(t, "original video", string(got))
	_, err := os.Stat(tempPath(dst))
	assert.True(t, os.IsNotExist(err), "partial output must be removed")
	assert.Equal(t, []float64{25, 100}, progress.snapshot())
}

func TestVideoEmptyOutputFallsBack(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "clip.ts"), []byte("ts data"))
	dst := filepath.Join(dir, "out", "clip.ts")

	ex := &fakeExecutor{runFunc: func(_ context.Context, _ string, args []string, _ io.Writer) error {
		return os.WriteFile(args[len(args)-1], nil, 0644)
	}}
	res := NewVideoBackend(DefaultOptions(), ex, nullLogger()).
		Compress(context.Background(), newTask(t, src, dst), nil)

	assert.Equal(t, OutcomeFallbackCopy, res.Outcome)
}

func TestVideoUsesHardwareEncoderWhenAllowed(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "clip.wmv"), []byte("wmv"))
	dst := filepath.Join(dir, "out", "clip.wmv")

	var gotArgs []string
	ex := &fakeExecutor{runFunc: func(_ context.Context, _ string, args []string, _ io.Writer) error {
		gotArgs = args
		return os.WriteFile(args[len(args)-1], []byte("x"), 0644)
	}}
	task := newTask(t, src, dst)
	task.Accel = true
	NewVideoBackend(DefaultOptions(), ex, nullLogger()).Compress(context.Background(), task, nil)

	assert.Contains(t, gotArgs, string(EncoderNVENC))
}
