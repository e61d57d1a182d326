package compressor

import (
	"github.com/betech74/SmartCompressor/internal/imagemeta"
	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/sirupsen/logrus"
)

// Set maps each supported media kind to the backend that compresses it.
type Set map[media.Kind]Backend

// NewDefaultSet wires the image, video, PDF and text backends.
func NewDefaultSet(opts Options, ex Executor, orient imagemeta.OrientationReader, log *logrus.Logger) Set {
	return Set{
		media.KindImage: NewImageBackend(opts, orient, ex, log),
		media.KindVideo: NewVideoBackend(opts, ex, log),
		media.KindPDF:   NewPDFBackend(log),
		media.KindText:  NewTextBackend(log),
	}
}

// For returns the backend registered for kind.
func (s Set) For(kind media.Kind) (Backend, bool) {
	b, ok := s[kind]
	return b, ok && b != nil
}
