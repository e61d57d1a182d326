package imagemeta

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFReader reads orientation tags with goexif.
type EXIFReader struct {
	logger *logrus.Logger
}

// NewEXIFReader returns a new EXIFReader.
func NewEXIFReader(logger *logrus.Logger) *EXIFReader {
	return &EXIFReader{logger: logger}
}

// Orientation returns the EXIF orientation of filePath. Files without EXIF
// data, or with an unreadable or out of range tag, report OrientationNormal
// and no error; only a missing or unreadable file is an error.
func (e *EXIFReader) Orientation(filePath string) (Orientation, error) {
	if _, err := os.Stat(filePath); err != nil {
		return OrientationNormal, fmt.Errorf("failed to stat file: %w", err)
	}
	if !e.SupportsFile(filePath) {
		return OrientationNormal, nil
	}

	orientation, err := e.readOrientation(filePath)
	if err != nil {
		e.logger.Debugf("No usable EXIF orientation in %s: %v", filePath, err)
		return OrientationNormal, nil
	}
	return orientation, nil
}

// SupportsFile reports whether the file format can carry EXIF orientation.
func (e *EXIFReader) SupportsFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return slices.Contains([]string{".jpg", ".jpeg"}, ext)
}

func (e *EXIFReader) readOrientation(filePath string) (Orientation, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return OrientationNormal, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return OrientationNormal, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal, err
	}
	value, err := tag.Int(0)
	if err != nil {
		return OrientationNormal, fmt.Errorf("invalid orientation tag: %w", err)
	}

	orientation := Orientation(value)
	if !orientation.Valid() {
		return OrientationNormal, fmt.Errorf("orientation %d out of range", value)
	}
	e.logger.Debugf("Extracted orientation %s from EXIF for file %s", orientation, filePath)
	return orientation, nil
}
