package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/betech74/SmartCompressor/internal/compressor"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "in", "a.jpg"), 100)
	write(t, filepath.Join(dir, "out", "a.jpg"), 40)
	write(t, filepath.Join(dir, "in", "b, c.txt"), 10)
	write(t, filepath.Join(dir, "out", "b, c.txt"), 10)

	results := []compressor.Result{
		{Task: media.Task{Source: filepath.Join(dir, "in", "a.jpg"), Destination: filepath.Join(dir, "out", "a.jpg")}},
		{Task: media.Task{Source: filepath.Join(dir, "in", "gone.mp4"), Destination: filepath.Join(dir, "out", "gone.mp4")}, Outcome: compressor.OutcomeFailed},
		{Task: media.Task{Source: filepath.Join(dir, "in", "b, c.txt"), Destination: filepath.Join(dir, "out", "b, c.txt")}},
	}

	var buf bytes.Buffer
	rows, err := Write(&buf, results)
	require.NoError(t, err)

	assert.Equal(t, 2, rows)
	want := "file,original,compressed,gain\n" +
		filepath.Join(dir, "in", "a.jpg") + ",100,40,60\n" +
		`"` + filepath.Join(dir, "in", "b, c.txt") + `",10,10,0` + "\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteUsesRecordedSizeForMissingSource(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "out", "v.mkv"), 30)

	results := []compressor.Result{{
		Task:         media.Task{Source: filepath.Join(dir, "in", "v.mkv"), Destination: filepath.Join(dir, "out", "v.mkv")},
		OriginalSize: 90,
	}}

	var buf bytes.Buffer
	_, err := Write(&buf, results)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), ",90,30,60\n")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.csv")

	rows, err := WriteFile(path, nil)
	require.NoError(t, err)
	assert.Zero(t, rows)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file,original,compressed,gain\n", string(data))
}
