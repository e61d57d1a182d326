package compressor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Executor runs external commands. It exists so tests can stand in for
// ffmpeg and ffprobe.
type Executor interface {
	// Run executes name with args, streaming standard output to stdout
	// while the command runs. The returned error includes captured stderr.
	Run(ctx context.Context, name string, args []string, stdout io.Writer) error
	// Output executes name with args and returns its standard output.
	Output(ctx context.Context, name string, args []string) ([]byte, error)
}

// ExecExecutor runs commands with os/exec.
type ExecExecutor struct{}

// NewExecExecutor returns an Executor backed by os/exec.
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{}
}

// Run implements Executor.
func (ExecExecutor) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderrBuf bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, lastLines(stderrBuf.String(), 5))
	}
	return nil
}

// Output implements Executor.
func (ExecExecutor) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// ProbeDuration returns the container duration of path in seconds, or 0 when
// ffprobe cannot tell.
func ProbeDuration(ctx context.Context, ex Executor, ffprobe, path string) (float64, error) {
	out, err := ex.Output(ctx, ffprobe, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	})
	if err != nil {
		return 0, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseDuration(string(out)), nil
}

// ParseDuration parses ffprobe's bare duration output. Anything that is not a
// positive number yields 0.
func ParseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ParseProgressLine converts one line of ffmpeg's -progress output into a
// percentage of duration seconds. ok is false for lines that carry no
// elapsed time, and always when duration is not positive.
//
// ffmpeg reports elapsed output time as out_time_us and, for historical
// reasons, out_time_ms; both are in microseconds.
func ParseProgressLine(line string, duration float64) (percent float64, ok bool) {
	if duration <= 0 {
		return 0, false
	}
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || (key != "out_time_us" && key != "out_time_ms") {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return min(100, float64(us)/(duration*1_000_000)*100), true
}

// readProgress scans ffmpeg progress lines from r and publishes percentages
// on events. It drains r completely so the encoder never blocks on a full
// pipe, and closes events when r is exhausted.
func readProgress(r io.Reader, duration float64, events chan<- float64) {
	defer close(events)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if percent, ok := ParseProgressLine(scanner.Text(), duration); ok {
			events <- percent
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// DetectHardwareEncoder reports whether ffmpeg lists an NVENC encoder.
func DetectHardwareEncoder(ctx context.Context, ex Executor, ffmpeg string) bool {
	out, err := ex.Output(ctx, ffmpeg, []string{"-hide_banner", "-encoders"})
	if err != nil {
		return false
	}
	s := string(out)
	return strings.Contains(s, "h264_nvenc") || strings.Contains(s, "hevc_nvenc")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
