package pyrowave

import (
	"math"
	"math/bits"

	"github.com/ajroetker/go-highway/hwy"
)

// blockStats is the per-fine-block output of the quantizer pass: how
// many significance planes the block needs, and for each candidate
// plane-drop the squared error it would add and the bits it would cost.
type blockStats struct {
	numPlanes uint32
	err       [MaxPlaneDrop + 1]hwy.Float16
	cost      [MaxPlaneDrop + 1]uint16
}

// statSaturation caps stored squared errors inside half-float range.
// Saturated entries lose their ordering; rate control scores them so
// they are only ever admitted last.
const statSaturation = 65000.0

// quantize runs the quantizer pass: every coded band's coefficients are
// divided by the band step into magnitude/sign form, and per-fine-block
// statistics are collected for rate control.
func (e *Encoder) quantize() {
	for i := range e.bands {
		band := &e.bands[i]
		blocksX := band.info.BlockStride8
		blocksY := ceilDiv(band.height, FineBlockSize)

		e.device.dispatchBlocks(blocksX*blocksY, func(start, end int) {
			for bi := start; bi < end; bi++ {
				bx, by := bi%blocksX, bi/blocksX
				e.quantizeFineBlock(band, bx, by)
			}
		})
	}
}

func (e *Encoder) quantizeFineBlock(band *bandRef, bx, by int) {
	fine := band.info.BlockOffset8 + by*band.info.BlockStride8 + bx
	mags := e.rawMag[fine*64 : fine*64+64]
	clear(mags)

	wv, hv := fineBlockBounds(band, bx, by)

	var signs uint64
	maxMag := uint16(0)
	for y := 0; y < hv; y++ {
		row := (by*FineBlockSize + y) * band.width
		for x := 0; x < wv; x++ {
			v := band.coeffs.load(row + bx*FineBlockSize + x)
			mag := uint16(min(math.Round(math.Abs(float64(v))*float64(band.invQuantStep)), 1<<maxSignificancePlanes-1))
			mags[y*FineBlockSize+x] = mag
			if v < 0 && mag != 0 {
				signs |= 1 << (y*FineBlockSize + x)
			}
			if mag > maxMag {
				maxMag = mag
			}
		}
	}
	e.rawSign[fine] = signs

	st := &e.stats[fine]
	st.numPlanes = uint32(bits.Len16(maxMag))

	step := float64(band.quantStep)
	for k := 0; k <= MaxPlaneDrop; k++ {
		errSum := 0.0
		if k > 0 {
			for i := 0; i < 64; i++ {
				mag := int(mags[i])
				recon := mag >> k << k
				if recon > 0 {
					recon += 1 << (k - 1)
				}
				d := float64(mag-recon) * step
				errSum += d * d
			}
		}
		st.err[k] = hwy.Float32ToFloat16(float32(math.Min(errSum, statSaturation)))

		fb := analyzeFine(mags, wv, hv, k)
		st.cost[k] = uint16(fb.bits)
	}
}

// fineAnalysis describes how one fine block codes at a given plane
// drop: its control entry, the total coded planes across active
// sub-blocks, and the sign count.
type fineAnalysis struct {
	present  bool
	inBounds uint8
	ctrl     fineControl
	planes   int
	signs    int
	bits     int
}

// fineControl mirrors the wire control entry in decoded form.
type fineControl struct {
	subMask uint16
	qBits   int
}

// analyzeFine derives the coded shape of a fine block when its
// magnitudes are shifted down by drop planes. Out-of-bounds sub-blocks
// never activate; the base plane count is pulled up to within the
// 2-bit extra range of the deepest sub-block.
func analyzeFine(mags []uint16, wv, hv, drop int) fineAnalysis {
	inBounds := subBlockInBoundsMask(wv, hv)

	var subPlanes [8]int
	maxPlanes := 0
	signs := 0
	for s := 0; s < 8; s++ {
		if inBounds&(1<<s) == 0 {
			continue
		}
		sx, sy := (s&1)*4, (s>>1)*2
		maxMag := uint16(0)
		for i := 0; i < 8; i++ {
			mag := mags[(sy+(i>>2))*FineBlockSize+sx+(i&3)] >> drop
			if mag > maxMag {
				maxMag = mag
			}
			if mag != 0 {
				signs++
			}
		}
		subPlanes[s] = bits.Len16(maxMag)
		if subPlanes[s] > maxPlanes {
			maxPlanes = subPlanes[s]
		}
	}

	var fa fineAnalysis
	fa.inBounds = inBounds
	if maxPlanes == 0 {
		return fa
	}
	fa.present = true
	fa.signs = signs

	qBits := max(0, maxPlanes-3)
	fa.ctrl.qBits = qBits

	for s := 0; s < 8; s++ {
		if inBounds&(1<<s) == 0 {
			continue
		}
		extra := max(0, subPlanes[s]-qBits)
		fa.ctrl.subMask |= uint16(extra) << (2 * s)
		if qBits+extra > 0 {
			fa.planes += qBits + extra
		}
	}

	fa.bits = 24 + 8*fa.planes + fa.signs
	return fa
}
