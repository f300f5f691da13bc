package pyrowave

import (
	"log/slog"

	"github.com/pyrowave/pyrowave/bitstream"
	"github.com/pyrowave/pyrowave/wavelet"
)

// ImagePlane is one component plane of a frame. Samples are centered
// around zero, nominally in [-0.5, 0.5]; a neutral plane is all zeros.
// Stride is in samples.
type ImagePlane struct {
	Data   []float32
	Width  int
	Height int
	Stride int
}

// ViewBuffers carries the three component planes of a frame.
type ViewBuffers struct {
	Planes [NumComponents]ImagePlane
}

// BitstreamBuffers receives the encoder's output: the raw block
// bitstream, the per-block meta index the packetizer walks, and the
// frame byte budget rate control solves against.
type BitstreamBuffers struct {
	Meta       []byte
	Bitstream  []byte
	TargetSize int
}

// BlockPacketMeta is one meta entry: where a coarse block's packet
// landed in the bitstream buffer and how long it is. NumWords == 0
// marks an empty block.
type BlockPacketMeta struct {
	OffsetU32 uint32
	NumWords  uint32
}

// BlockPacketMetaSize is the wire size of one meta entry.
const BlockPacketMetaSize = 8

// Encoder is a session that compresses frames of a fixed geometry.
// All heavy state is allocated at construction and reused per frame.
type Encoder struct {
	waveletBuffers

	log *slog.Logger

	// Forward transform scratch.
	dwtScratch []float32
	bandTemp   [NumBandsPerLevel][]float32

	// Quantizer output: magnitudes and sign masks per fine block, plus
	// rate statistics.
	rawMag  []uint16
	rawSign []uint64
	stats   []blockStats

	// Rate control state.
	buckets    rdoBuckets
	quant      []uint8
	coarseCost []uint32 // base cost in words per coarse block

	// Packer staging: one packet per coarse block.
	blockData [][]byte

	sequence uint32
}

// NewEncoder builds an encoder session for the given geometry.
func NewEncoder(device *Device, cfg Config) (*Encoder, error) {
	e := &Encoder{}
	if err := e.waveletBuffers.init(device, cfg); err != nil {
		return nil, err
	}
	e.log = cfg.logger()

	aw, ah := e.alignedWidth, e.alignedHeight
	e.dwtScratch = make([]float32, aw*ah)
	for i := range e.bandTemp {
		e.bandTemp[i] = make([]float32, aw/2*(ah/2))
	}

	e.rawMag = make([]uint16, e.blockCoeffs)
	e.rawSign = make([]uint64, e.blockCount8)
	e.stats = make([]blockStats, e.blockCount8)

	e.buckets.init(e.blockCount32)
	e.quant = make([]uint8, e.blockCount32)
	e.coarseCost = make([]uint32, e.blockCount32)
	e.blockData = make([][]byte, e.blockCount32)

	return e, nil
}

// MetaRequiredSize returns the byte size of the meta buffer the caller
// must supply to Encode.
func (e *Encoder) MetaRequiredSize() int {
	return e.blockCount32 * BlockPacketMetaSize
}

// BitstreamWorstCaseSize returns a bitstream buffer size that can hold
// any frame at this geometry.
func (e *Encoder) BitstreamWorstCaseSize() int {
	return e.alignedWidth*e.alignedHeight*2 + 2*e.MetaRequiredSize()
}

// Encode runs the full pipeline on one frame: forward DWT, per-block
// quantization and statistics, the two rate-control passes and block
// packing. The bitstream and meta buffers are filled the way the
// packetizer expects to read them back.
func (e *Encoder) Encode(views *ViewBuffers, out *BitstreamBuffers) error {
	if len(out.Meta) < e.MetaRequiredSize() {
		return errConfigf("meta buffer is %d bytes, need %d", len(out.Meta), e.MetaRequiredSize())
	}
	if err := checkViewsFor(&e.waveletBuffers, views); err != nil {
		return err
	}

	e.sequence = (e.sequence + 1) & bitstream.SequenceMask

	clear(e.quant)

	e.forwardDWT(views)
	e.quantize()
	e.analyzeRDO()
	e.resolveRDO(out.TargetSize)
	return e.blockPacking(out)
}

// componentDims returns the true plane size of a component.
func componentDims(w *waveletBuffers, c int) (int, int) {
	if c != 0 && w.cfg.Chroma == Chroma420 {
		return w.width / 2, w.height / 2
	}
	return w.width, w.height
}

// forwardDWT decomposes the three input planes into the session's band
// images. Each component walks the pyramid from its entry level down to
// the coarsest, the level-0 read applying mirror-repeat extension of
// the true image into the aligned window.
func (e *Encoder) forwardDWT(views *ViewBuffers) {
	pool := e.device.pool

	for c := 0; c < NumComponents; c++ {
		startLevel := 0
		curW, curH := e.alignedWidth, e.alignedHeight
		if c != 0 && e.cfg.Chroma == Chroma420 {
			startLevel = 1
			curW, curH = e.alignedWidth/2, e.alignedHeight/2
		}

		e.sampleMirrored(&views.Planes[c], curW, curH)

		for level := startLevel; level < DecompositionLevels; level++ {
			bw, bh := curW/2, curH/2

			var bands [NumBandsPerLevel][]float32
			for b := 0; b < NumBandsPerLevel; b++ {
				bands[b] = e.bandTemp[b][:bw*bh]
			}

			wavelet.ForwardLevel(pool, e.dwtScratch, curW, curH, curW, &bands, bw)

			for b := firstBand(level); b < NumBandsPerLevel; b++ {
				e.storeBand(c, level, b, bands[b], bw, bh)
			}
			if level < DecompositionLevels-1 {
				// LL feeds the next level, repacked to the new stride.
				copy(e.dwtScratch[:bw*bh], bands[wavelet.BandLL])
			}

			curW, curH = bw, bh
		}
	}
}

// sampleMirrored fills the transform scratch with the component plane
// extended to the aligned window by mirrored repeat.
func (e *Encoder) sampleMirrored(p *ImagePlane, w, h int) {
	pool := e.device.pool
	dst := e.dwtScratch

	pool.ParallelFor(h, func(start, end int) {
		for y := start; y < end; y++ {
			sy := mirrorIndex(y, p.Height)
			row := p.Data[sy*p.Stride:]
			for x := 0; x < w; x++ {
				dst[y*w+x] = row[mirrorIndex(x, p.Width)]
			}
		}
	})
}

// mirrorIndex reflects an index into [0, n) the way a mirrored-repeat
// sampler does.
func mirrorIndex(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

func (e *Encoder) storeBand(component, level, band int, src []float32, bw, bh int) {
	ref := e.bandAt(component, level, band)
	pool := e.device.pool
	pool.ParallelFor(bh, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < bw; x++ {
				ref.coeffs.store(y*bw+x, src[y*bw+x])
			}
		}
	})
}

// Sequence returns the sequence number of the most recent frame.
func (e *Encoder) Sequence() uint32 {
	return e.sequence
}
