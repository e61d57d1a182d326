package config_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/betech74/SmartCompressor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	encoders string
}

func (s stubExecutor) Run(context.Context, string, []string, io.Writer) error { return nil }

func (s stubExecutor) Output(context.Context, string, []string) ([]byte, error) {
	return []byte(s.encoders), nil
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		cfg, err := config.LoadConfig("")
		require.NoError(t, err)

		assert.Equal(t, 75, cfg.Image.Quality)
		assert.Equal(t, 28, cfg.Video.CRF)
		assert.Equal(t, config.HardwareAuto, cfg.Video.Hardware)
		assert.Equal(t, int64(10*1024*1024), cfg.Video.SmallThreshold)
		assert.Equal(t, "ffmpeg", cfg.Video.FFmpegPath)
		assert.Equal(t, 8, cfg.Performance.ImageWorkers)
		assert.Equal(t, 10*time.Second, cfg.Web.ShutdownTimeout)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("SMART_COMPRESSOR_IMAGE_QUALITY", "500")
		t.Setenv("SMART_COMPRESSOR_VIDEO_CRF", "-3")
		t.Setenv("SMART_COMPRESSOR_VIDEO_SMALL_THRESHOLD", "5MB")
		t.Setenv("SMART_COMPRESSOR_VIDEO_HARDWARE", "NEVER")
		t.Setenv("SMART_COMPRESSOR_PERFORMANCE_IMAGE_WORKERS", "2")
		t.Setenv("SMART_COMPRESSOR_WEB_SHUTDOWN_TIMEOUT", "1m30s")

		cfg, err := config.LoadConfig("")
		require.NoError(t, err)

		assert.Equal(t, 100, cfg.Image.Quality, "quality is clamped")
		assert.Equal(t, 0, cfg.Video.CRF, "crf is clamped")
		assert.Equal(t, int64(5*1024*1024), cfg.Video.SmallThreshold)
		assert.Equal(t, config.HardwareNever, cfg.Video.Hardware)
		assert.Equal(t, 2, cfg.Performance.ImageWorkers)
		assert.Equal(t, 90*time.Second, cfg.Web.ShutdownTimeout)
	})

	t.Run("reads a yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
source_directory: /data/in
target_directory: /data/out
image:
  quality: 5
video:
  small_threshold: 512KB
  extra_args: -map_metadata 0 -tag:v "hvc1"
report:
  csv_path: /data/report.csv
logging:
  level: DEBUG
  format: json
`), 0644))

		cfg, err := config.LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "/data/in", cfg.SourceDirectory)
		assert.Equal(t, "/data/out", cfg.TargetDirectory)
		assert.Equal(t, 10, cfg.Image.Quality)
		assert.Equal(t, int64(512*1024), cfg.Video.SmallThreshold)
		assert.Equal(t, "/data/report.csv", cfg.Report.CSVPath)
		assert.Equal(t, "debug", cfg.Logging.Level)

		opts, err := cfg.BackendOptions()
		require.NoError(t, err)
		assert.Equal(t, []string{"-map_metadata", "0", "-tag:v", "hvc1"}, opts.VideoExtraArgs)
		assert.Equal(t, 10, opts.ImageQuality)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		t.Setenv("SMART_COMPRESSOR_VIDEO_HARDWARE", "gpu")
		_, err := config.LoadConfig("")
		assert.ErrorContains(t, err, "video.hardware")
	})

	t.Run("reports a malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("image: [unclosed"), 0644))
		_, err := config.LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Video.ExtraArgs = `-metadata title="unterminated`
	assert.Error(t, cfg.Validate())

	cfg = config.DefaultConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())

	cfg = config.DefaultConfig()
	cfg.Performance.VideoWorkers = 0
	cfg.Video.SmallThreshold = -1
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Performance.VideoWorkers)
	assert.Equal(t, int64(10*1024*1024), cfg.Video.SmallThreshold)
}

func TestValidateDirectories(t *testing.T) {
	src := t.TempDir()
	cfg := config.DefaultConfig()

	assert.ErrorContains(t, cfg.ValidateDirectories(), "source_directory is required")

	cfg.SourceDirectory = filepath.Join(src, "missing")
	assert.ErrorContains(t, cfg.ValidateDirectories(), "does not exist")

	cfg.SourceDirectory = src
	assert.ErrorContains(t, cfg.ValidateDirectories(), "target_directory is required")

	cfg.TargetDirectory = src + string(filepath.Separator)
	assert.ErrorContains(t, cfg.ValidateDirectories(), "must differ")

	cfg.TargetDirectory = filepath.Join(src, "out")
	assert.NoError(t, cfg.ValidateDirectories())
}

func TestHardwareAccel(t *testing.T) {
	cfg := config.DefaultConfig()
	nvenc := stubExecutor{encoders: " V....D hevc_nvenc  NVIDIA NVENC hevc encoder"}
	none := stubExecutor{encoders: " V....D libx265  libx265 H.265 / HEVC"}

	assert.True(t, cfg.HardwareAccel(context.Background(), nvenc))
	assert.False(t, cfg.HardwareAccel(context.Background(), none))

	cfg.Video.Hardware = config.HardwareAlways
	assert.True(t, cfg.HardwareAccel(context.Background(), none))

	cfg.Video.Hardware = config.HardwareNever
	assert.False(t, cfg.HardwareAccel(context.Background(), nvenc))
}

func TestExpandPath(t *testing.T) {
	t.Setenv("SC_TEST_ROOT", "/srv/media")
	assert.Equal(t, "/srv/media/in", config.ExpandPath("$SC_TEST_ROOT/in"))
	assert.Equal(t, "", config.ExpandPath(""))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "pics"), config.ExpandPath("~/pics"))
}
