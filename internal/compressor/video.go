package compressor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/sirupsen/logrus"
)

// progressBuffer bounds the queue between the ffmpeg progress reader and the
// progress forwarder.
const progressBuffer = 16

// Encoder names the HEVC encoder a video is transcoded with.
type Encoder string

const (
	EncoderSoftware Encoder = "libx265"
	EncoderNVENC    Encoder = "hevc_nvenc"
)

// softwareContainers always use the software encoder, whatever hardware is
// available.
var softwareContainers = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
}

// SelectEncoder picks the encoder for a container extension. The hardware
// encoder is used only when accel is set and the container is not one of the
// common ones.
func SelectEncoder(ext string, accel bool) Encoder {
	if softwareContainers[media.NormalizeExtension(ext)] {
		return EncoderSoftware
	}
	if accel {
		return EncoderNVENC
	}
	return EncoderSoftware
}

// VideoBackend transcodes videos to HEVC with ffmpeg.
type VideoBackend struct {
	opts Options
	exec Executor
	log  *logrus.Logger
}

// NewVideoBackend returns a VideoBackend.
func NewVideoBackend(opts Options, ex Executor, log *logrus.Logger) *VideoBackend {
	return &VideoBackend{opts: opts, exec: ex, log: log}
}

// Args builds the ffmpeg argument list for a transcode of src into dst.
func (v *VideoBackend) Args(src, dst string, encoder Encoder) []string {
	crf := strconv.Itoa(v.opts.VideoCRF)
	args := []string{"-y", "-nostats", "-loglevel", "error", "-i", src}
	if encoder == EncoderNVENC {
		args = append(args,
			"-c:v", string(EncoderNVENC), "-rc", "vbr_hq", "-cq", crf,
			"-b:v", "0", "-preset", "slow",
		)
	} else {
		args = append(args,
			"-c:v", string(EncoderSoftware),
			"-preset", "medium",
			"-crf", crf,
			"-x265-params", "threads=auto:rc-lookahead=20:b-intra=0:aq-mode=2:psy-rd=1.0:sao=0",
		)
	}
	args = append(args, "-c:a", "aac", "-progress", "pipe:1")
	args = append(args, v.opts.VideoExtraArgs...)
	return append(args, dst)
}

// Compress implements Backend.
func (v *VideoBackend) Compress(ctx context.Context, task media.Task, onProgress ProgressFunc) Result {
	res := newResult(task)
	defer report(onProgress, 100)

	log := logger.WithFileOperation(v.log, task.Source, "video")

	if res.OriginalSize < 0 {
		if err := sourceSize(&res); err != nil {
			return fallbackCopy(v.log, res, "cannot read source", err)
		}
	}
	if err := EnsureParentDir(task.Destination); err != nil {
		return fallbackCopy(v.log, res, "cannot prepare destination", err)
	}

	encoder := SelectEncoder(filepath.Ext(task.Source), task.Accel)

	duration, err := ProbeDuration(ctx, v.exec, v.opts.FFprobePath, task.Source)
	if err != nil {
		log.Debugf("Duration unknown, progress disabled: %v", err)
	}

	tmp := tempPath(task.Destination)
	log.Debugf("Transcoding with %s (duration %.1fs)", encoder, duration)

	if err := v.transcode(ctx, task.Source, tmp, encoder, duration, onProgress); err != nil {
		_ = os.Remove(tmp)
		return fallbackCopy(v.log, res, "transcode failed", err)
	}
	if err := commit(tmp, &res); err != nil {
		return fallbackCopy(v.log, res, "cannot save transcoded video", err)
	}

	res.finish(OutcomeCompressed, fmt.Sprintf("transcoded with %s", encoder), nil)
	log.Debugf("Video compressed: %d -> %d bytes", res.OriginalSize, res.CompressedSize)
	return res
}

// transcode runs ffmpeg while a reader goroutine turns its progress stream
// into percentages and a forwarder hands them to onProgress.
func (v *VideoBackend) transcode(ctx context.Context, src, dst string, encoder Encoder, duration float64, onProgress ProgressFunc) error {
	pr, pw := io.Pipe()
	events := make(chan float64, progressBuffer)
	forwarded := make(chan struct{})

	go readProgress(pr, duration, events)
	go func() {
		defer close(forwarded)
		for percent := range events {
			// Compress reports the terminal 100 itself.
			if percent < 100 {
				report(onProgress, percent)
			}
		}
	}()

	err := v.exec.Run(ctx, v.opts.FFmpegPath, v.Args(src, dst, encoder), pw)
	_ = pw.Close()
	<-forwarded
	if err != nil {
		return err
	}

	info, statErr := os.Stat(dst)
	if statErr != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", statErr)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced an empty file")
	}
	return nil
}
