package compressor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/sirupsen/logrus"
)

// EnsureParentDir creates the parent directory of path. Concurrent calls for
// the same directory are safe: an existing directory is not an error.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// CopyFile copies src to dst byte for byte, keeping the source permissions
// and modification time. The destination directory is created when missing.
func CopyFile(src, dst string) error {
	if err := EnsureParentDir(dst); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	_ = os.Chmod(dst, info.Mode().Perm())
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return nil
}

// tempPath returns a hidden sibling of dst that keeps its extension, so
// encoders that pick the container from the file name still work.
func tempPath(dst string) string {
	dir, name := filepath.Split(dst)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+".smartcompressor-tmp"+ext)
}

// fallbackCopy replaces the destination with a raw copy of the source.
// cause is what made compression impossible or unproductive.
func fallbackCopy(log *logrus.Logger, res Result, message string, cause error) Result {
	entry := logger.WithFileOperation(log, res.Task.Source, "fallback_copy")
	if cause != nil {
		entry.Warnf("%s: %v", message, cause)
	} else {
		entry.Debug(message)
	}

	if err := CopyFile(res.Task.Source, res.Task.Destination); err != nil {
		entry.Errorf("Fallback copy to %s failed: %v", res.Task.Destination, err)
		res.CompressedSize = 0
		failure := fmt.Errorf("%w: %w", ErrFallbackFailed, err)
		if cause != nil {
			failure = fmt.Errorf("%w (after: %v)", failure, cause)
		}
		res.finish(OutcomeFailed, "fallback copy failed", failure)
		return res
	}

	if info, err := os.Stat(res.Task.Destination); err == nil {
		res.CompressedSize = info.Size()
		if res.OriginalSize < 0 {
			res.OriginalSize = info.Size()
		}
	}
	res.finish(OutcomeFallbackCopy, message, cause)
	return res
}

// commit moves a finished temporary file into place and records its size.
func commit(tmp string, res *Result) error {
	if err := os.Rename(tmp, res.Task.Destination); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	info, err := os.Stat(res.Task.Destination)
	if err != nil {
		return fmt.Errorf("stat compressed: %w", err)
	}
	res.CompressedSize = info.Size()
	return nil
}

// sourceSize stats the source when the task did not capture its size.
func sourceSize(res *Result) error {
	info, err := os.Stat(res.Task.Source)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	res.OriginalSize = info.Size()
	return nil
}
