package pyrowave

import (
	"math"
	"math/bits"

	"github.com/pyrowave/pyrowave/bitstream"
)

var componentNames = [NumComponents]string{"Y", "Cb", "Cr"}
var bandNames = [NumBandsPerLevel]string{"LL", "HL", "LH", "HH"}

// ReportStats logs per-band bit rates and an entropy estimate of the
// significance planes for the frame described by meta and bitstreamBuf.
// Purely observational; the buffers are not modified.
func (e *Encoder) ReportStats(meta, bitstreamBuf []byte) {
	if len(meta) < e.MetaRequiredSize() {
		e.log.Error("meta buffer too small for stats", "have", len(meta), "need", e.MetaRequiredSize())
		return
	}

	const maxPlanes = 16
	var planeHistogram [maxPlanes][256]int
	var totalPlanes [maxPlanes]int

	totalWords := 0
	totalPixels := 0

	for i := range e.bands {
		band := &e.bands[i]
		blocksX := band.info.BlockStride32
		blocksY := ceilDiv(band.height, CoarseBlockSize)

		words := 0
		for by := 0; by < blocksY; by++ {
			for bx := 0; bx < blocksX; bx++ {
				idx := band.info.BlockOffset32 + by*band.info.BlockStride32 + bx
				m := readMeta(meta, idx)
				if m.NumWords == 0 {
					continue
				}
				words += int(m.NumWords)
				e.accumulatePlaneHistogram(bitstreamBuf[m.OffsetU32*4:(m.OffsetU32+m.NumWords)*4],
					&planeHistogram, &totalPlanes)
			}
		}

		bpp := float64(words*32) / float64(band.width*band.height)
		e.log.Debug("band rate",
			"component", componentNames[band.component],
			"level", band.level,
			"band", bandNames[band.band],
			"bpp", bpp)

		totalWords += words
		if band.component == 0 {
			totalPixels += band.width * band.height
		}
	}

	for p := 0; p < maxPlanes; p++ {
		if totalPlanes[p] == 0 {
			continue
		}
		entropy := 0.0
		for v := 0; v < 256; v++ {
			if planeHistogram[p][v] == 0 {
				continue
			}
			prob := float64(planeHistogram[p][v]) / float64(totalPlanes[p])
			entropy -= prob * math.Log2(prob)
		}
		e.log.Debug("plane entropy", "plane", p,
			"fraction", entropy/8.0, "bytes", totalPlanes[p])
	}

	if totalPixels > 0 {
		e.log.Debug("overall rate", "bpp", float64(totalWords*32)/float64(totalPixels))
	}
}

// accumulatePlaneHistogram tallies plane byte values by plane depth for
// the entropy report.
func (e *Encoder) accumulatePlaneHistogram(packet []byte, hist *[16][256]int, totals *[16]int) {
	var header bitstream.BlockHeader
	header.Unpack(packet)

	numFine := bits.OnesCount16(header.Ballot)
	ctrlOffset := bitstream.HeaderSize
	planeOffset := ctrlOffset + numFine*bitstream.ControlSize

	mapping := &e.coarseToFine[header.BlockIndex]
	band := &e.bands[e.coarseBand[header.BlockIndex]]

	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if header.Ballot&(1<<bit) == 0 {
			continue
		}
		ctrl := bitstream.UnpackControl(packet[ctrlOffset:])
		ctrlOffset += bitstream.ControlSize

		fine := mapping.BlockOffset8 + (bit>>2)*mapping.BlockStride8 + bit&3
		rel := fine - band.info.BlockOffset8
		wv, hv := fineBlockBounds(band, rel%band.info.BlockStride8, rel/band.info.BlockStride8)
		inBounds := subBlockInBoundsMask(wv, hv)

		for s := 0; s < 8; s++ {
			planes := subPlaneCount(ctrl, inBounds, s)
			for p := 0; p < planes; p++ {
				b := packet[planeOffset]
				planeOffset++
				if p < len(hist) {
					hist[p][b]++
					totals[p]++
				}
			}
		}
	}
}
