package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains the counters of one compression batch.
type Statistics struct {
	TotalFilesFound     int64
	FilesUnsupported    int64
	TotalFilesProcessed int64
	FilesCompressed     int64
	FilesFallbackCopied int64
	FilesFailed         int64
	FilesCanceled       int64

	BytesOriginal   int64
	BytesCompressed int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64
	SavedPercent   float64

	DirectoriesScanned int64

	Errors []StatError

	mutex sync.RWMutex

	// KindStats counts processed files per media kind ("image", "video"...).
	KindStats map[string]int64
	// TierDurations records how long each scheduling tier ran.
	TierDurations map[string]time.Duration
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		KindStats:     make(map[string]int64),
		TierDurations: make(map[string]time.Duration),
		Errors:        make([]StatError, 0),
	}
}

// IncrementFilesFound increases the count of found files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.TotalFilesFound, 1)
}

// IncrementFilesUnsupported increases the count of files with no backend by 1.
func (s *Statistics) IncrementFilesUnsupported() {
	atomic.AddInt64(&s.FilesUnsupported, 1)
}

// IncrementDirectoriesScanned increases the count of scanned directories by 1.
func (s *Statistics) IncrementDirectoriesScanned() {
	atomic.AddInt64(&s.DirectoriesScanned, 1)
}

// IncrementFilesCanceled increases the count of tasks skipped by cancellation by 1.
func (s *Statistics) IncrementFilesCanceled() {
	atomic.AddInt64(&s.FilesCanceled, 1)
}

// RecordOutcome accounts for one finished file. outcome is one of
// "compressed", "fallback_copy" or "failed".
func (s *Statistics) RecordOutcome(kind, outcome string, original, compressed int64) {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
	switch outcome {
	case "compressed":
		atomic.AddInt64(&s.FilesCompressed, 1)
	case "fallback_copy":
		atomic.AddInt64(&s.FilesFallbackCopied, 1)
	default:
		atomic.AddInt64(&s.FilesFailed, 1)
	}
	if outcome != "failed" && original > 0 {
		atomic.AddInt64(&s.BytesOriginal, original)
		atomic.AddInt64(&s.BytesCompressed, compressed)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.KindStats[kind]++
}

// RecordTier stores the wall time spent in a tier.
func (s *Statistics) RecordTier(tier string, d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.TierDurations[tier] += d
}

// Finalize calculates duration, throughput and the overall saving.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}

	original := atomic.LoadInt64(&s.BytesOriginal)
	compressed := atomic.LoadInt64(&s.BytesCompressed)
	if original > 0 {
		s.SavedPercent = float64(original-compressed) * 100 / float64(original)
	}
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Smart Compressor Summary:

Files:
		Total Found: %d
		Unsupported: %d
		Processed: %d
		Compressed: %d
		Copied Unchanged: %d
		Failed: %d
		Canceled: %d

Size:
		Original: %s
		Written: %s
		Saved: %.1f%%

Performance:
		Duration: %v
		Files/Second: %.2f
		Directories Scanned: %d`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.FilesUnsupported),
		atomic.LoadInt64(&s.TotalFilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesFallbackCopied),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.FilesCanceled),
		FormatBytes(atomic.LoadInt64(&s.BytesOriginal)),
		FormatBytes(atomic.LoadInt64(&s.BytesCompressed)),
		s.SavedPercent,
		s.Duration.Round(time.Millisecond),
		s.FilesPerSecond,
		atomic.LoadInt64(&s.DirectoriesScanned))
}

// GetKindBreakdown returns a formatted breakdown of processed files per kind.
func (s *Statistics) GetKindBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.KindStats) == 0 {
		return "No file kind statistics available"
	}

	kinds := make([]string, 0, len(s.KindStats))
	for kind := range s.KindStats {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var b strings.Builder
	b.WriteString("File Kind Breakdown:\n")
	for _, kind := range kinds {
		fmt.Fprintf(&b, "  %s: %d\n", kind, s.KindStats[kind])
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetTotalFilesProcessed returns the total number of files processed.
func (s *Statistics) GetTotalFilesProcessed() int64 {
	return atomic.LoadInt64(&s.TotalFilesProcessed)
}

// GetFilesWithErrors returns the number of recorded errors.
func (s *Statistics) GetFilesWithErrors() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return int64(len(s.Errors))
}

// GetDuration returns the total duration of the operation.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
