package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/betech74/SmartCompressor/internal/compressor"
	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/betech74/SmartCompressor/internal/scheduler"
	"github.com/c2h5oh/datasize"
	"github.com/google/shlex"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Hardware acceleration modes.
const (
	HardwareAuto   = "auto"
	HardwareAlways = "always"
	HardwareNever  = "never"
)

// Config represents the main configuration structure
type Config struct {
	SourceDirectory string            `mapstructure:"source_directory"`
	TargetDirectory string            `mapstructure:"target_directory"`
	Image           ImageConfig       `mapstructure:"image"`
	Video           VideoConfig       `mapstructure:"video"`
	Performance     PerformanceConfig `mapstructure:"performance"`
	Report          ReportConfig      `mapstructure:"report"`
	Web             WebConfig         `mapstructure:"web"`
	Logging         LoggingConfig     `mapstructure:"logging"`
}

// ImageConfig contains image encoding settings
type ImageConfig struct {
	Quality int `mapstructure:"quality"` // 10-100
}

// VideoConfig contains video transcoding settings
type VideoConfig struct {
	CRF            int    `mapstructure:"crf"`             // 0-51, lower is better
	Hardware       string `mapstructure:"hardware"`        // auto, always, never
	SmallThreshold int64  `mapstructure:"small_threshold"` // bytes, accepts "10MB"
	FFmpegPath     string `mapstructure:"ffmpeg_path"`
	FFprobePath    string `mapstructure:"ffprobe_path"`
	ExtraArgs      string `mapstructure:"extra_args"` // shell syntax
}

// PerformanceConfig caps the parallel tiers
type PerformanceConfig struct {
	ImageWorkers int `mapstructure:"image_workers"`
	VideoWorkers int `mapstructure:"video_workers"`
}

// ReportConfig contains CSV report settings
type ReportConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// WebConfig contains web server settings
type WebConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Image: ImageConfig{
			Quality: 75,
		},
		Video: VideoConfig{
			CRF:            28,
			Hardware:       HardwareAuto,
			SmallThreshold: 10 * 1024 * 1024,
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
		},
		Performance: PerformanceConfig{
			ImageWorkers: scheduler.DefaultWorkerCap,
			VideoWorkers: scheduler.DefaultWorkerCap,
		},
		Report: ReportConfig{
			CSVPath: "",
		},
		Web: WebConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// setDefaults registers every key so that environment variables can
// override keys that are absent from the config file.
func setDefaults(vp *viper.Viper, c *Config) {
	vp.SetDefault("source_directory", c.SourceDirectory)
	vp.SetDefault("target_directory", c.TargetDirectory)
	vp.SetDefault("image.quality", c.Image.Quality)
	vp.SetDefault("video.crf", c.Video.CRF)
	vp.SetDefault("video.hardware", c.Video.Hardware)
	vp.SetDefault("video.small_threshold", "10MB")
	vp.SetDefault("video.ffmpeg_path", c.Video.FFmpegPath)
	vp.SetDefault("video.ffprobe_path", c.Video.FFprobePath)
	vp.SetDefault("video.extra_args", c.Video.ExtraArgs)
	vp.SetDefault("performance.image_workers", c.Performance.ImageWorkers)
	vp.SetDefault("performance.video_workers", c.Performance.VideoWorkers)
	vp.SetDefault("report.csv_path", c.Report.CSVPath)
	vp.SetDefault("web.port", c.Web.Port)
	vp.SetDefault("web.shutdown_timeout", "10s")
	vp.SetDefault("logging.level", c.Logging.Level)
	vp.SetDefault("logging.format", c.Logging.Format)
	vp.SetDefault("logging.file_path", c.Logging.FilePath)
	vp.SetDefault("logging.max_size", c.Logging.MaxSize)
	vp.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	vp.SetDefault("logging.max_age", c.Logging.MaxAge)
	vp.SetDefault("logging.compress", c.Logging.Compress)
}

// stringToDurationHookFunc parses Go duration strings such as "30s".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes such as "10MB" into
// int64 byte counts.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(strings.TrimSpace(data.(string)))); err != nil {
			// Not a size, let mapstructure try a plain integer.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	vp := viper.New()
	setDefaults(vp, config)

	vp.SetConfigType("yaml")
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("smart-compressor")
		vp.AddConfigPath(".")
		vp.AddConfigPath("$HOME/.smart-compressor")
		vp.AddConfigPath("/etc/smart-compressor")
	}

	vp.SetEnvPrefix("SMART_COMPRESSOR")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err := vp.Unmarshal(config, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate normalizes the configuration, clamping qualities into range, and
// rejects values that cannot be used.
func (c *Config) Validate() error {
	c.Image.Quality = clamp(c.Image.Quality, 10, 100)
	c.Video.CRF = clamp(c.Video.CRF, 0, 51)

	c.Video.Hardware = strings.ToLower(strings.TrimSpace(c.Video.Hardware))
	if c.Video.Hardware == "" {
		c.Video.Hardware = HardwareAuto
	}
	validHardware := map[string]bool{
		HardwareAuto:   true,
		HardwareAlways: true,
		HardwareNever:  true,
	}
	if !validHardware[c.Video.Hardware] {
		return fmt.Errorf("invalid video.hardware: %s (valid: auto, always, never)", c.Video.Hardware)
	}

	if c.Video.SmallThreshold <= 0 {
		c.Video.SmallThreshold = 10 * 1024 * 1024
	}
	if c.Video.FFmpegPath == "" {
		c.Video.FFmpegPath = "ffmpeg"
	}
	if c.Video.FFprobePath == "" {
		c.Video.FFprobePath = "ffprobe"
	}
	if _, err := shlex.Split(c.Video.ExtraArgs); err != nil {
		return fmt.Errorf("invalid video.extra_args: %w", err)
	}

	if c.Performance.ImageWorkers <= 0 {
		c.Performance.ImageWorkers = scheduler.DefaultWorkerCap
	}
	if c.Performance.VideoWorkers <= 0 {
		c.Performance.VideoWorkers = scheduler.DefaultWorkerCap
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web.port: %d", c.Web.Port)
	}
	if c.Web.ShutdownTimeout <= 0 {
		c.Web.ShutdownTimeout = 10 * time.Second
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	c.SourceDirectory = ExpandPath(c.SourceDirectory)
	c.TargetDirectory = ExpandPath(c.TargetDirectory)
	c.Report.CSVPath = ExpandPath(c.Report.CSVPath)
	return nil
}

// ValidateDirectories checks the directories a compression run needs: the
// source must be an existing directory and the target must be set and differ
// from it.
func (c *Config) ValidateDirectories() error {
	if c.SourceDirectory == "" {
		return fmt.Errorf("source_directory is required")
	}
	if !isValidPath(c.SourceDirectory) {
		return fmt.Errorf("source_directory does not exist or is not accessible: %s", c.SourceDirectory)
	}
	if c.TargetDirectory == "" {
		return fmt.Errorf("target_directory is required")
	}
	src, _ := filepath.Abs(c.SourceDirectory)
	dst, _ := filepath.Abs(c.TargetDirectory)
	if src == dst {
		return fmt.Errorf("target_directory must differ from source_directory")
	}
	return nil
}

// BackendOptions returns the per-run backend settings.
func (c *Config) BackendOptions() (compressor.Options, error) {
	extra, err := shlex.Split(c.Video.ExtraArgs)
	if err != nil {
		return compressor.Options{}, fmt.Errorf("invalid video.extra_args: %w", err)
	}
	return compressor.Options{
		ImageQuality:   c.Image.Quality,
		VideoCRF:       c.Video.CRF,
		FFmpegPath:     c.Video.FFmpegPath,
		FFprobePath:    c.Video.FFprobePath,
		VideoExtraArgs: extra,
	}, nil
}

// Policy returns the scheduler worker policy for the configured caps.
func (c *Config) Policy() scheduler.Policy {
	return scheduler.NewPolicy(c.Performance.ImageWorkers, c.Performance.VideoWorkers)
}

// HardwareAccel resolves the hardware mode into the acceleration flag. In
// auto mode ffmpeg is asked for its encoder list.
func (c *Config) HardwareAccel(ctx context.Context, ex compressor.Executor) bool {
	switch c.Video.Hardware {
	case HardwareAlways:
		return true
	case HardwareNever:
		return false
	default:
		return compressor.DetectHardwareEncoder(ctx, ex, c.Video.FFmpegPath)
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.LoggerConfig {
	return logger.LoggerConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
		Console:    true,
	}
}

// ExpandPath expands environment variables and a leading "~".
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

// Helper functions

func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	stat, err := os.Stat(ExpandPath(path))
	return err == nil && stat.IsDir()
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
