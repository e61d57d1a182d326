package scheduler

import (
	"runtime"

	"github.com/betech74/SmartCompressor/internal/media"
	"github.com/shirou/gopsutil/v3/cpu"
)

// DefaultWorkerCap bounds the parallel tiers when nothing is configured.
const DefaultWorkerCap = 8

// Policy holds the worker count of every tier. PDF, text and large video
// tiers always run one task at a time.
type Policy struct {
	ImageWorkers      int
	VideoSmallWorkers int
}

// NewPolicy sizes the parallel tiers to the number of logical CPUs, capped
// at imageCap and videoCap. A non-positive cap means DefaultWorkerCap.
func NewPolicy(imageCap, videoCap int) Policy {
	cpus := LogicalCPUs()
	return Policy{
		ImageWorkers:      boundTo(imageCap, cpus),
		VideoSmallWorkers: boundTo(videoCap, cpus),
	}
}

// DefaultPolicy returns NewPolicy with the default caps.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultWorkerCap, DefaultWorkerCap)
}

// Bound returns the maximum number of tasks of tier that run at once.
func (p Policy) Bound(tier media.Tier) int {
	switch tier {
	case media.TierImage:
		return max(1, p.ImageWorkers)
	case media.TierVideoSmall:
		return max(1, p.VideoSmallWorkers)
	default:
		return 1
	}
}

// LogicalCPUs returns the number of logical CPUs, falling back to the Go
// runtime's view when the host cannot be inspected.
func LogicalCPUs() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

func boundTo(limit, cpus int) int {
	if limit <= 0 {
		limit = DefaultWorkerCap
	}
	return max(1, min(limit, cpus))
}
