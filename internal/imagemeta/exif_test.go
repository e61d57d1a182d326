package imagemeta

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJPEG(t *testing.T, dir, name string) string {
	t.Helper()
	img := imaging.New(8, 4, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestOrientationWithoutEXIFIsNormal(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reader := NewEXIFReader(logger)
	path := writeJPEG(t, t.TempDir(), "plain.jpg")

	o, err := reader.Orientation(path)
	require.NoError(t, err)
	assert.Equal(t, OrientationNormal, o)
}

func TestOrientationMissingFile(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reader := NewEXIFReader(logger)

	_, err := reader.Orientation(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestOrientationUnsupportedFormat(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reader := NewEXIFReader(logger)
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte("not really a png"), 0644))

	o, err := reader.Orientation(path)
	require.NoError(t, err)
	assert.Equal(t, OrientationNormal, o)
	assert.False(t, reader.SupportsFile(path))
}

func TestApply(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))

	assert.Equal(t, image.Rect(0, 0, 4, 8), Apply(img, OrientationRotate90CW).Bounds())
	assert.Equal(t, image.Rect(0, 0, 4, 8), Apply(img, OrientationRotate90CCW).Bounds())
	assert.Equal(t, image.Rect(0, 0, 8, 4), Apply(img, OrientationRotate180).Bounds())
	assert.Same(t, img, Apply(img, OrientationNormal))
	assert.Same(t, img, Apply(img, Orientation(0)))
}

func TestApplyRotate90CWMovesTopLeftToTopRight(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	out := imaging.Clone(Apply(img, OrientationRotate90CW))
	// A 2x1 image rotated clockwise is 1 wide and 2 tall; the former
	// top-left pixel ends up at the top.
	assert.Equal(t, image.Rect(0, 0, 1, 2), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(0, 0))
}

func TestOrientationValid(t *testing.T) {
	assert.True(t, OrientationTransverse.Valid())
	assert.False(t, Orientation(9).Valid())
	assert.Equal(t, "rotate 90 cw", OrientationRotate90CW.String())
}
