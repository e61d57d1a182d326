package compressor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/betech74/SmartCompressor/internal/imagemeta"
	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// ImageBackend re-encodes JPEG, PNG and WebP images.
type ImageBackend struct {
	opts   Options
	orient imagemeta.OrientationReader
	exec   Executor
	log    *logrus.Logger
}

// NewImageBackend returns an ImageBackend. WebP images are re-encoded with
// ffmpeg through ex; orient may be nil to skip EXIF orientation handling.
func NewImageBackend(opts Options, orient imagemeta.OrientationReader, ex Executor, log *logrus.Logger) *ImageBackend {
	return &ImageBackend{opts: opts, orient: orient, exec: ex, log: log}
}

// Compress implements Backend. The destination is never larger than the
// source: an output that is not strictly smaller is replaced by a raw copy.
func (b *ImageBackend) Compress(ctx context.Context, task media.Task, onProgress ProgressFunc) Result {
	res := newResult(task)
	defer report(onProgress, 100)

	if res.OriginalSize < 0 {
		if err := sourceSize(&res); err != nil {
			return fallbackCopy(b.log, res, "cannot read source", err)
		}
	}
	if err := EnsureParentDir(task.Destination); err != nil {
		return fallbackCopy(b.log, res, "cannot prepare destination", err)
	}

	tmp := tempPath(task.Destination)
	if err := b.encode(ctx, task.Source, tmp); err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, fs.ErrPermission) {
			return fallbackCopy(b.log, res, "permission denied", err)
		}
		return fallbackCopy(b.log, res, "image encode failed", err)
	}

	compInfo, err := os.Stat(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return fallbackCopy(b.log, res, "stat compressed failed", err)
	}
	if compInfo.Size() >= res.OriginalSize {
		_ = os.Remove(tmp)
		return fallbackCopy(b.log, res, "compressed file not smaller than original, saved original", nil)
	}

	if err := commit(tmp, &res); err != nil {
		return fallbackCopy(b.log, res, "cannot save compressed image", err)
	}
	res.finish(OutcomeCompressed, "image compressed", nil)
	logger.WithFile(b.log, task.Source).Debugf("Image compressed: %d -> %d bytes", res.OriginalSize, res.CompressedSize)
	return res
}

func (b *ImageBackend) encode(ctx context.Context, src, dst string) error {
	switch ext := media.NormalizeExtension(filepath.Ext(src)); ext {
	case ".webp":
		return b.encodeWebP(ctx, src, dst)
	case ".jpg", ".jpeg", ".png":
		img, err := imaging.Open(src)
		if err != nil {
			return fmt.Errorf("open error: %w", err)
		}
		img = PromotePaletted(img)
		if b.orient != nil {
			if o, err := b.orient.Orientation(src); err == nil {
				img = imagemeta.Apply(img, o)
			}
		}

		f, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		if ext == ".png" {
			err = imaging.Encode(f, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
		} else {
			err = imaging.Encode(f, Flatten(img, color.White), imaging.JPEG, imaging.JPEGQuality(b.opts.ImageQuality))
		}
		if err != nil {
			f.Close()
			return fmt.Errorf("encode error: %w", err)
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported image extension %q", ext)
	}
}

// encodeWebP re-encodes a WebP image with ffmpeg's libwebp encoder at the
// configured quality and the slowest, most thorough compression method.
func (b *ImageBackend) encodeWebP(ctx context.Context, src, dst string) error {
	if b.exec == nil {
		return fmt.Errorf("webp encoding needs ffmpeg")
	}
	args := []string{
		"-y", "-loglevel", "error",
		"-i", src,
		"-c:v", "libwebp",
		"-quality", strconv.Itoa(b.opts.ImageQuality),
		"-compression_level", "6",
		dst,
	}
	return b.exec.Run(ctx, b.opts.FFmpegPath, args, nil)
}

// PromotePaletted converts a paletted image whose palette holds transparent
// entries to full color with alpha. Other images are returned as is.
func PromotePaletted(img image.Image) image.Image {
	p, ok := img.(*image.Paletted)
	if !ok {
		return img
	}
	for _, c := range p.Palette {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return imaging.Clone(img)
		}
	}
	return img
}

// Flatten composites an image that has transparency onto an opaque
// background. Opaque images are returned unchanged.
func Flatten(img image.Image, background color.Color) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	bounds := img.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), background)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
