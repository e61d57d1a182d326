// Package report writes the per-file outcome of a batch as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/betech74/SmartCompressor/internal/compressor"
)

// Header is the first CSV row.
var Header = []string{"file", "original", "compressed", "gain"}

// Write emits one row per result whose destination exists. Sizes are read
// from disk; the original size falls back to the one recorded in the result
// when the source has gone away. It returns the number of rows written.
func Write(w io.Writer, results []compressor.Result) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}

	rows := 0
	for _, res := range results {
		if res.Task.Destination == "" {
			continue
		}
		dst, err := os.Stat(res.Task.Destination)
		if err != nil {
			continue
		}
		original := res.OriginalSize
		if src, err := os.Stat(res.Task.Source); err == nil {
			original = src.Size()
		}
		compressed := dst.Size()

		record := []string{
			res.Task.Source,
			strconv.FormatInt(original, 10),
			strconv.FormatInt(compressed, 10),
			strconv.FormatInt(original-compressed, 10),
		}
		if err := cw.Write(record); err != nil {
			return rows, err
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}

// WriteFile writes the report to path, creating its directory if needed.
func WriteFile(path string, results []compressor.Result) (int, error) {
	if err := compressor.EnsureParentDir(path); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create report: %w", err)
	}
	rows, err := Write(f, results)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return rows, fmt.Errorf("write report %s: %w", path, err)
	}
	return rows, nil
}
