package pyrowave

import (
	"math"
	"math/bits"

	"github.com/pyrowave/pyrowave/bitstream"
)

// Rate control constants. Blocks are spread across spatial subdivisions
// so the analyze pass appends to its own bucket lists without
// contention; scores span 128 buckets around a center offset.
const (
	BlockSpaceSubdivision = 16
	NumRDOBuckets         = 128
	rdoBucketOffset       = 64
	rdoScoreScale         = 4
)

// rdoOp is one candidate plane-drop: applying quant to the block at
// blockOffset (within its subdivision) saves saving words.
type rdoOp struct {
	quant       uint8
	blockOffset uint16
	saving      uint16
}

type rdoBuckets struct {
	perSubdivision int // power of two
	shamt          int
	ops            [NumRDOBuckets][BlockSpaceSubdivision][]rdoOp
}

func (r *rdoBuckets) init(blocks32 int) {
	per := ceilDiv(blocks32, BlockSpaceSubdivision)
	if per < 1 {
		per = 1
	}
	per = 1 << bits.Len(uint(per-1))
	r.perSubdivision = per
	r.shamt = bits.TrailingZeros(uint(per))
}

func (r *rdoBuckets) reset() {
	for b := range r.ops {
		for s := range r.ops[b] {
			r.ops[b][s] = r.ops[b][s][:0]
		}
	}
}

// analyzeRDO scores every candidate plane-drop of every coarse block
// and appends it to the bucket of its rounded rate-distortion slope.
func (e *Encoder) analyzeRDO() {
	e.buckets.reset()
	pool := e.device.pool
	per := e.buckets.perSubdivision

	pool.ParallelFor(BlockSpaceSubdivision, func(start, end int) {
		for sub := start; sub < end; sub++ {
			for local := 0; local < per; local++ {
				idx := sub<<e.buckets.shamt + local
				if idx >= e.blockCount32 {
					break
				}
				e.analyzeCoarseBlock(idx, sub, uint16(local))
			}
		}
	})
}

func (e *Encoder) analyzeCoarseBlock(idx, sub int, local uint16) {
	band := &e.bands[e.coarseBand[idx]]
	mapping := &e.coarseToFine[idx]

	var words [MaxPlaneDrop + 1]uint32
	var errSum [MaxPlaneDrop + 1]float64
	var saturated [MaxPlaneDrop + 1]bool

	for k := 0; k <= MaxPlaneDrop; k++ {
		bitsSum := 0
		for fy := 0; fy < mapping.BlockHeight8; fy++ {
			for fx := 0; fx < mapping.BlockWidth8; fx++ {
				st := &e.stats[mapping.BlockOffset8+fy*mapping.BlockStride8+fx]
				bitsSum += int(st.cost[k])
				ferr := float64(st.err[k].Float32())
				errSum[k] += ferr
				if ferr >= statSaturation*0.999 {
					saturated[k] = true
				}
			}
		}
		if bitsSum > 0 {
			words[k] = uint32(2 + ceilDiv(bitsSum, 32))
		}
	}

	e.coarseCost[idx] = words[0]

	for k := 1; k <= MaxPlaneDrop; k++ {
		saving := int(words[k-1]) - int(words[k])
		if saving <= 0 {
			continue
		}

		dd := (errSum[k] - errSum[k-1]) * float64(band.distortionScale)

		var score int
		switch {
		case saturated[k] || saturated[k-1]:
			// Ordering is lost past saturation; admit these last.
			score = 0
		case dd <= 0:
			// Free savings: the dropped planes carry no energy.
			score = NumRDOBuckets - 1
		default:
			score = rdoBucketOffset + int(math.Round(rdoScoreScale*math.Log2(float64(saving)/dd)))
			score = min(max(score, 0), NumRDOBuckets-1)
		}

		e.buckets.ops[score][sub] = append(e.buckets.ops[score][sub], rdoOp{
			quant:       uint8(k),
			blockOffset: local,
			saving:      uint16(saving),
		})
	}
}

// resolveRDO admits plane-drops from the best-scoring bucket down until
// the frame fits the byte budget, writing each admitted block's chosen
// drop. The budget first pays for the frame sequence header.
func (e *Encoder) resolveRDO(targetSize int) {
	budget := targetSize
	if budget >= bitstream.HeaderSize {
		budget -= bitstream.HeaderSize
	}
	budgetWords := budget / 4

	total := 0
	for _, w := range e.coarseCost {
		total += int(w)
	}

	deficit := total - budgetWords
	if deficit <= 0 {
		return
	}

	cum := 0
	for b := NumRDOBuckets - 1; b >= 0 && cum < deficit; b-- {
		for sub := 0; sub < BlockSpaceSubdivision && cum < deficit; sub++ {
			for _, op := range e.buckets.ops[b][sub] {
				idx := sub<<e.buckets.shamt + int(op.blockOffset)
				if e.quant[idx] < op.quant {
					e.quant[idx] = op.quant
				}
				cum += int(op.saving)
				if cum >= deficit {
					break
				}
			}
		}
	}
}
