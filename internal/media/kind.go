package media

import (
	"path/filepath"
	"strings"
)

// Kind is the media category a file is compressed as.
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindVideo
	KindPDF
	KindText
)

// Extension allowlists. Classification parity with other implementations
// depends on these lists staying exactly as they are.
var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	VideoExtensions = []string{
		".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm",
		".m4v", ".3gp", ".ts", ".mts", ".m2ts", ".vob", ".ogv",
	}
	TextExtensions = []string{".txt", ".json", ".csv"}
	PDFExtensions  = []string{".pdf"}
)

var kindByExtension = buildKindIndex()

func buildKindIndex() map[string]Kind {
	idx := make(map[string]Kind)
	for _, ext := range ImageExtensions {
		idx[ext] = KindImage
	}
	for _, ext := range VideoExtensions {
		idx[ext] = KindVideo
	}
	for _, ext := range TextExtensions {
		idx[ext] = KindText
	}
	for _, ext := range PDFExtensions {
		idx[ext] = KindPDF
	}
	return idx
}

// Classify maps a file extension to its Kind. The lookup is case-insensitive
// and accepts the extension with or without its leading dot. Unknown
// extensions classify as KindUnsupported.
func Classify(ext string) Kind {
	return kindByExtension[NormalizeExtension(ext)]
}

// ClassifyPath classifies a file by the extension of its path.
func ClassifyPath(path string) Kind {
	return Classify(filepath.Ext(path))
}

// NormalizeExtension lowercases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindPDF:
		return "pdf"
	case KindText:
		return "text"
	default:
		return "unsupported"
	}
}

// IsSupported reports whether files of this kind are dispatched at all.
func (k Kind) IsSupported() bool {
	return k != KindUnsupported
}

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindImage, KindVideo, KindPDF, KindText}
}
