package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/betech74/SmartCompressor/internal/statistics"
	"github.com/sirupsen/logrus"
)

// Scanner walks a source tree and turns supported files into tasks.
type Scanner struct {
	logger *logrus.Logger
	stats  *statistics.Statistics
}

// New returns a Scanner. stats may be nil.
func New(log *logrus.Logger, stats *statistics.Statistics) *Scanner {
	return &Scanner{logger: log, stats: stats}
}

// Discover returns a task for every supported file under source, in walk
// order. Each destination mirrors the file's path relative to source under
// target. When target lies inside source it is not descended into.
// Unreadable entries are logged and skipped.
func (s *Scanner) Discover(source, target string, accel bool) ([]media.Task, error) {
	root, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", root)
	}

	var skip string
	if target != "" {
		if skip, err = filepath.Abs(target); err != nil {
			return nil, fmt.Errorf("resolve target: %w", err)
		}
	}

	var tasks []media.Task
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logger.WithFile(s.logger, path).Warnf("Error accessing path: %v", err)
			return nil
		}

		if info.IsDir() {
			if skip != "" && path == skip && path != root {
				s.logger.Debugf("Skipping target directory: %s", path)
				return filepath.SkipDir
			}
			if s.stats != nil {
				s.stats.IncrementDirectoriesScanned()
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		ext := media.NormalizeExtension(filepath.Ext(path))
		kind := media.Classify(ext)
		if !kind.IsSupported() {
			logger.WithFile(s.logger, path).Debug("Skipping unsupported file")
			if s.stats != nil {
				s.stats.IncrementFilesUnsupported()
			}
			return nil
		}

		task := media.Task{
			Index:     len(tasks),
			Source:    path,
			Extension: ext,
			Kind:      kind,
			Accel:     accel,
			Size:      info.Size(),
		}
		if target != "" {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				logger.WithFile(s.logger, path).Warnf("Cannot mirror path: %v", err)
				return nil
			}
			task.Destination = filepath.Join(skip, rel)
		}

		tasks = append(tasks, task)
		if s.stats != nil {
			s.stats.IncrementFilesFound()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Found %d supported files in %s", len(tasks), root)
	return tasks, nil
}

// estimateRatios are the expected compressed/original size ratios for
// non-video files. Videos use videoRatio; anything else is assumed to stay
// the same size.
var estimateRatios = map[string]float64{
	".jpg":  0.6,
	".jpeg": 0.6,
	".png":  0.7,
	".pdf":  0.65,
	".txt":  0.2,
	".json": 0.2,
	".csv":  0.2,
}

const videoRatio = 0.4

// EstimateSize returns the expected compressed size of a file with the given
// extension and size.
func EstimateSize(ext string, size int64) int64 {
	ext = media.NormalizeExtension(ext)
	if media.Classify(ext) == media.KindVideo {
		return int64(float64(size) * videoRatio)
	}
	ratio, ok := estimateRatios[ext]
	if !ok {
		return size
	}
	return int64(float64(size) * ratio)
}

// KindEstimate sums the files of one media kind.
type KindEstimate struct {
	Files     int
	Original  int64
	Estimated int64
}

// Estimate summarizes a set of tasks before compression.
type Estimate struct {
	Files     int
	Original  int64
	Estimated int64
	ByKind    map[media.Kind]KindEstimate
}

// Saved returns the expected number of bytes saved.
func (e Estimate) Saved() int64 {
	return e.Original - e.Estimated
}

// EstimateTasks sums the original and expected sizes of tasks.
func EstimateTasks(tasks []media.Task) Estimate {
	est := Estimate{ByKind: make(map[media.Kind]KindEstimate)}
	for _, task := range tasks {
		if task.Size < 0 {
			continue
		}
		guess := EstimateSize(task.Extension, task.Size)
		est.Files++
		est.Original += task.Size
		est.Estimated += guess

		k := est.ByKind[task.Kind]
		k.Files++
		k.Original += task.Size
		k.Estimated += guess
		est.ByKind[task.Kind] = k
	}
	return est
}

// String renders the estimate one kind per line.
func (e Estimate) String() string {
	var b strings.Builder
	for _, kind := range media.Kinds() {
		k, ok := e.ByKind[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%-6s %5d files  %10s -> %10s\n", kind, k.Files,
			statistics.FormatBytes(k.Original), statistics.FormatBytes(k.Estimated))
	}
	fmt.Fprintf(&b, "total  %5d files  %10s -> %10s (saves %s)\n", e.Files,
		statistics.FormatBytes(e.Original), statistics.FormatBytes(e.Estimated),
		statistics.FormatBytes(e.Saved()))
	return b.String()
}
