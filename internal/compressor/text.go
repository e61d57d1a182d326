package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/sirupsen/logrus"
	xunicode "golang.org/x/text/encoding/unicode"
)

// ErrNotUTF8 is returned for text files that are not valid UTF-8.
var ErrNotUTF8 = errors.New("not valid UTF-8")

// TextBackend normalizes text files.
type TextBackend struct {
	log *logrus.Logger
}

// NewTextBackend returns a TextBackend.
func NewTextBackend(log *logrus.Logger) *TextBackend {
	return &TextBackend{log: log}
}

// Compress implements Backend.
func (b *TextBackend) Compress(_ context.Context, task media.Task, onProgress ProgressFunc) Result {
	res := newResult(task)
	defer report(onProgress, 100)

	data, err := os.ReadFile(task.Source)
	if err != nil {
		return fallbackCopy(b.log, res, "cannot read text", err)
	}
	res.OriginalSize = int64(len(data))

	normalized, err := NormalizeText(data)
	if err != nil {
		return fallbackCopy(b.log, res, "cannot decode text", err)
	}
	if len(normalized) == 0 && len(data) > 0 {
		return fallbackCopy(b.log, res, "text normalizes to nothing", nil)
	}

	if err := EnsureParentDir(task.Destination); err != nil {
		return fallbackCopy(b.log, res, "cannot prepare destination", err)
	}
	tmp := tempPath(task.Destination)
	if err := os.WriteFile(tmp, normalized, 0644); err != nil {
		_ = os.Remove(tmp)
		return fallbackCopy(b.log, res, "cannot write text", err)
	}
	if err := commit(tmp, &res); err != nil {
		return fallbackCopy(b.log, res, "cannot save text", err)
	}

	res.finish(OutcomeCompressed, "text normalized", nil)
	return res
}

// NormalizeText strips trailing whitespace from every line, drops blank lines
// and joins the rest with "\n". A leading UTF-8 byte order mark is removed.
// Input that is not valid UTF-8 is rejected with ErrNotUTF8.
func NormalizeText(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, ErrNotUTF8
	}
	decoded, err := xunicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var out bytes.Buffer
	out.Grow(len(decoded))
	for _, line := range strings.Split(string(decoded), "\n") {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(line)
	}
	return out.Bytes(), nil
}

