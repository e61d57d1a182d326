package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/betech74/SmartCompressor/internal/compressor"
	"github.com/betech74/SmartCompressor/internal/config"
	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/betech74/SmartCompressor/internal/pipeline"
	"github.com/betech74/SmartCompressor/internal/scanner"
	"github.com/betech74/SmartCompressor/internal/scheduler"
	"github.com/betech74/SmartCompressor/internal/statistics"
	"github.com/betech74/SmartCompressor/internal/web"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	sourceDir  string
	targetDir  string
	reportPath string
	quality    int
	crf        int
	hardware   string
	noProgress bool
	verbose    bool
	quiet      bool
	version    = "dev"
	port       int

	cfg *config.Config
)

// rootCmd compresses a directory tree.
var rootCmd = &cobra.Command{
	Use:   "smart-compressor",
	Short: "Compress images, videos, PDFs and text files into a mirrored tree",
	Long: `SmartCompressor walks a source directory and writes a smaller copy of
every supported file into a target directory with the same layout.

- Images (jpg, png, webp) are re-encoded at the configured quality
- Videos are transcoded to HEVC with ffmpeg, on NVENC when available
- PDFs are rewritten with compressed object streams
- Text files (txt, json, csv) lose trailing whitespace and blank lines

A file that cannot be compressed, or would grow, is copied unchanged.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd)
	},
}

// scanCmd estimates the savings for a directory without writing anything.
var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Estimate the compressed size of a directory",
	Long: `Scan the specified directory (or the configured source directory) and
print the number of supported files per kind, how they would be scheduled
and the expected size after compression.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args)
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts an HTTP server that can start and stop compression jobs and
streams their progress over a WebSocket at /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// hwaccelCmd reports whether a hardware HEVC encoder is usable.
var hwaccelCmd = &cobra.Command{
	Use:   "hwaccel",
	Short: "Check for a hardware video encoder",
	RunE: func(cmd *cobra.Command, args []string) error {
		ex := compressor.NewExecExecutor()
		if compressor.DetectHardwareEncoder(cmd.Context(), ex, cfg.Video.FFmpegPath) {
			fmt.Println("NVENC encoder available: videos outside mp4/mov/mkv use hevc_nvenc")
		} else {
			fmt.Println("No hardware encoder found: all videos use libx265")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./smart-compressor.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVar(&sourceDir, "source", "", "source directory containing files to compress")
	rootCmd.Flags().StringVar(&targetDir, "target", "", "target directory for compressed files")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "write a CSV report to this path")
	rootCmd.Flags().IntVar(&quality, "quality", 0, "image quality 10-100 (default from config)")
	rootCmd.Flags().IntVar(&crf, "crf", -1, "video CRF 0-51, lower is better (default from config)")
	rootCmd.Flags().StringVar(&hardware, "hardware", "", "hardware encoding: auto, always or never")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hwaccelCmd)
}

// loadConfig loads the configuration file and environment variables.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command) error {
	if sourceDir != "" {
		cfg.SourceDirectory = sourceDir
	}
	if targetDir != "" {
		cfg.TargetDirectory = targetDir
	}
	if cmd.Flags().Changed("quality") {
		cfg.Image.Quality = quality
	}
	if cmd.Flags().Changed("crf") {
		cfg.Video.CRF = crf
	}
	if hardware != "" {
		cfg.Video.Hardware = hardware
	}
	return cfg.Validate()
}

// runCompress executes a full batch from the command line.
func runCompress(cmd *cobra.Command) error {
	if err := applyFlags(cmd); err != nil {
		return err
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *progressbar.ProgressBar
	if !quiet && !noProgress {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("compressing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetPredictTime(true),
		)
	}
	onProgress := func(u scheduler.Update) {
		if bar != nil {
			_ = bar.Set(int(u.Aggregate))
		}
	}

	sum, err := pipeline.New(cfg, log).Run(ctx, pipeline.Batch{
		Source:     cfg.SourceDirectory,
		Target:     cfg.TargetDirectory,
		ReportPath: reportPath,
	}, stats, onProgress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		fmt.Println("\n" + stats.GetKindBreakdown())
		if stats.GetFilesWithErrors() > 0 {
			fmt.Println(stats.GetErrorSummary())
		}
	}

	failed := 0
	for _, res := range sum.Results {
		if res.Outcome == compressor.OutcomeFailed {
			failed++
		}
	}
	if ctx.Err() != nil {
		return errors.New("interrupted, remaining files were not processed")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(sum.Results))
	}
	return nil
}

// runScan discovers files and prints the size estimate and tier plan.
func runScan(args []string) error {
	scanDir := cfg.SourceDirectory
	if len(args) > 0 {
		scanDir = config.ExpandPath(args[0])
	}
	if scanDir == "" {
		scanDir = "."
	}

	log := setupLogger(cfg)
	fmt.Fprintf(os.Stderr, "Scanning directory: %s\n", scanDir)

	tasks, err := scanner.New(log, nil).Discover(scanDir, "", false)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	plan := scheduler.New(nil, log, scheduler.WithSmallVideoThreshold(cfg.Video.SmallThreshold)).Plan(tasks)
	policy := cfg.Policy()

	if quiet {
		return nil
	}
	fmt.Println("\n==================================================")
	fmt.Println("SCAN RESULTS")
	fmt.Println("==================================================")
	fmt.Println()
	fmt.Print(scanner.EstimateTasks(tasks).String())
	fmt.Println("\nSchedule:")
	for _, tier := range media.Tiers() {
		n := len(plan.Tiers[tier])
		if n == 0 {
			continue
		}
		fmt.Printf("  %-12s %5d files, %d at a time\n", tier, n, policy.Bound(tier))
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log, pipeline.New(cfg, log))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Web.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("SmartCompressor API listening on http://localhost:%d\n", cfg.Web.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := cfg.LoggerConfig()
	loggerCfg.Console = !quiet

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
