package pyrowave

import (
	"runtime"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"golang.org/x/sys/cpu"
)

// Device owns the worker pool every pass dispatches on, plus the lane
// width the dispatcher batches blocks by. It is the session analogue of
// a compute queue: encoders and decoders borrow it, they do not own it.
type Device struct {
	pool      workerpool.Executor
	closer    interface{ Close() }
	laneWidth int
	workers   int
}

// Supported lane widths, in preference order per detected ISA width.
var laneWidths = []int{16, 32, 64, 128}

// NewDevice probes the host and builds a worker pool sized to it.
func NewDevice() (*Device, error) {
	return NewDeviceWorkers(runtime.GOMAXPROCS(0))
}

// NewDeviceWorkers builds a device with an explicit worker count.
func NewDeviceWorkers(workers int) (*Device, error) {
	if workers < 1 {
		workers = 1
	}

	d := &Device{
		laneWidth: probeLaneWidth(),
		workers:   workers,
	}
	if d.laneWidth == 0 {
		return nil, errConfigf("%w: no usable dispatch lane width", ErrUnsupportedCapability)
	}

	pool := workerpool.New(workers)
	d.pool = pool
	d.closer = pool
	return d, nil
}

// probeLaneWidth picks how many blocks one work item covers. Wider
// vector units get wider lanes so per-range overhead amortizes the same
// way a wider subgroup would.
func probeLaneWidth() int {
	switch {
	case cpu.X86.HasAVX512F:
		return laneWidths[3]
	case cpu.X86.HasAVX2:
		return laneWidths[2]
	case cpu.ARM64.HasASIMD:
		return laneWidths[1]
	default:
		return laneWidths[0]
	}
}

// dispatchBlocks spreads [0, n) over the pool in lane-width batches, so
// one work item always covers a full lane of blocks.
func (d *Device) dispatchBlocks(n int, fn func(start, end int)) {
	lanes := ceilDiv(n, d.laneWidth)
	d.pool.ParallelFor(lanes, func(laneStart, laneEnd int) {
		start := laneStart * d.laneWidth
		end := min(laneEnd*d.laneWidth, n)
		if start < end {
			fn(start, end)
		}
	})
}

// LaneWidth returns the block batch granule chosen at probe time.
func (d *Device) LaneWidth() int {
	return d.laneWidth
}

// Workers returns the pool size.
func (d *Device) Workers() int {
	return d.workers
}

// Close releases the worker pool. The device must not be used after.
func (d *Device) Close() {
	if d.closer != nil {
		d.closer.Close()
		d.closer = nil
	}
}
