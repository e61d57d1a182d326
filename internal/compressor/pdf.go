package compressor

import (
	"context"
	"fmt"
	"os"

	"github.com/betech74/SmartCompressor/internal/logger"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

func init() {
	// Keep pdfcpu from creating a configuration directory in $HOME.
	model.ConfigPath = "disable"
}

// PDFBackend rewrites PDF documents with recompressed streams and without
// unreferenced objects.
type PDFBackend struct {
	log *logrus.Logger
}

// NewPDFBackend returns a PDFBackend.
func NewPDFBackend(log *logrus.Logger) *PDFBackend {
	return &PDFBackend{log: log}
}

// Compress implements Backend. The rewrite is not incrementally observable,
// so the only progress report is the final 100.
func (p *PDFBackend) Compress(_ context.Context, task media.Task, onProgress ProgressFunc) Result {
	res := newResult(task)
	defer report(onProgress, 100)

	if res.OriginalSize < 0 {
		if err := sourceSize(&res); err != nil {
			return fallbackCopy(p.log, res, "cannot read source", err)
		}
	}
	if err := EnsureParentDir(task.Destination); err != nil {
		return fallbackCopy(p.log, res, "cannot prepare destination", err)
	}

	tmp := tempPath(task.Destination)
	if err := optimizePDF(task.Source, tmp); err != nil {
		_ = os.Remove(tmp)
		return fallbackCopy(p.log, res, "pdf rewrite failed", err)
	}
	if err := commit(tmp, &res); err != nil {
		return fallbackCopy(p.log, res, "cannot save rewritten pdf", err)
	}

	res.finish(OutcomeCompressed, "pdf rewritten", nil)
	logger.WithFile(p.log, task.Source).Debugf("PDF rewritten: %d -> %d bytes", res.OriginalSize, res.CompressedSize)
	return res
}

func optimizePDF(src, dst string) (err error) {
	// pdfcpu reports some malformed input by panicking.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	conf.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(src, dst, conf)
}
