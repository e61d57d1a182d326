package media

// DefaultSmallVideoThreshold is the inclusive size limit for a video to be
// transcoded in the parallel VideoSmall tier.
const DefaultSmallVideoThreshold int64 = 10 * 1024 * 1024

// Tier is an execution phase of a batch. Tiers run in ascending order.
type Tier int

const (
	TierPDF Tier = iota
	TierText
	TierImage
	TierVideoSmall
	TierVideoLarge
)

// Tiers returns every tier in execution order.
func Tiers() []Tier {
	return []Tier{TierPDF, TierText, TierImage, TierVideoSmall, TierVideoLarge}
}

func (t Tier) String() string {
	switch t {
	case TierPDF:
		return "pdf"
	case TierText:
		return "text"
	case TierImage:
		return "image"
	case TierVideoSmall:
		return "video-small"
	case TierVideoLarge:
		return "video-large"
	default:
		return "unknown"
	}
}

// Route returns the tier a task of the given kind and size runs in.
// Videos up to and including threshold bytes are small; a negative size
// (unknown) routes to TierVideoLarge. A non-positive threshold falls back to
// DefaultSmallVideoThreshold. The second return is false for unsupported kinds.
func Route(kind Kind, size, threshold int64) (Tier, bool) {
	switch kind {
	case KindPDF:
		return TierPDF, true
	case KindText:
		return TierText, true
	case KindImage:
		return TierImage, true
	case KindVideo:
		if threshold <= 0 {
			threshold = DefaultSmallVideoThreshold
		}
		if size >= 0 && size <= threshold {
			return TierVideoSmall, true
		}
		return TierVideoLarge, true
	default:
		return 0, false
	}
}
