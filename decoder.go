package pyrowave

import (
	"log/slog"

	"github.com/pyrowave/pyrowave/wavelet"
)

// missingBlock marks a coarse block no packet has arrived for.
const missingBlock = ^uint32(0)

// Decoder is a session that reconstructs frames from wire packets. It
// tolerates loss: a frame can be decoded once more than half of its
// blocks have arrived, with missing blocks reconstructed as zero
// coefficients.
type Decoder struct {
	waveletBuffers

	log *slog.Logger

	// Per-sequence ingest state.
	dequantOffset  []uint32 // byte offset into payload, missingBlock if absent
	payload        []byte   // staged block packets, appended per frame
	decodedBlocks  int
	totalBlocks    int
	lastSeq        uint32
	decodedCurrent bool

	// Inverse transform scratch.
	dwtScratch []float32
	bandTemp   [NumBandsPerLevel][]float32
}

// NewDecoder builds a decoder session for the given geometry.
func NewDecoder(device *Device, cfg Config) (*Decoder, error) {
	d := &Decoder{}
	if err := d.waveletBuffers.init(device, cfg); err != nil {
		return nil, err
	}
	d.log = cfg.logger()

	aw, ah := d.alignedWidth, d.alignedHeight
	d.dwtScratch = make([]float32, aw*ah)
	for i := range d.bandTemp {
		d.bandTemp[i] = make([]float32, aw/2*(ah/2))
	}

	d.dequantOffset = make([]uint32, d.blockCount32)
	d.payload = make([]byte, 0, 1<<20)
	d.lastSeq = missingBlock
	d.clearSequence()
	return d, nil
}

// Clear resets all sequence state; the next packet starts fresh.
func (d *Decoder) Clear() {
	d.lastSeq = missingBlock
	d.clearSequence()
}

func (d *Decoder) clearSequence() {
	for i := range d.dequantOffset {
		d.dequantOffset[i] = missingBlock
	}
	d.payload = d.payload[:0]
	d.decodedBlocks = 0
	d.decodedCurrent = false
	d.totalBlocks = d.blockCount32
}

// DecodedBlocks returns how many coarse blocks of the current sequence
// have arrived.
func (d *Decoder) DecodedBlocks() int {
	return d.decodedBlocks
}

// TotalBlocksInSequence returns the block count announced by the
// current sequence header.
func (d *Decoder) TotalBlocksInSequence() int {
	return d.totalBlocks
}

// LastSequence returns the sequence number the decoder is locked to,
// or a negative value before the first packet.
func (d *Decoder) LastSequence() int {
	if d.lastSeq == missingBlock {
		return -1
	}
	return int(d.lastSeq)
}

// DecodeIsReady reports whether enough of the current frame has arrived
// to decode it. With allowPartial, more than half the blocks suffice;
// otherwise every block announced by the sequence header is required.
func (d *Decoder) DecodeIsReady(allowPartial bool) bool {
	if d.decodedCurrent {
		return false
	}
	if d.decodedBlocks < d.totalBlocks {
		if !allowPartial || d.decodedBlocks <= d.totalBlocks/2 {
			return false
		}
	}
	return true
}

// Decode dequantizes the staged payload and runs the inverse transform
// into the caller's planes. The frame cannot be decoded twice; a new
// sequence must arrive first.
func (d *Decoder) Decode(views *ViewBuffers) error {
	if !d.DecodeIsReady(true) {
		return ErrNotReady
	}
	if err := checkViewsFor(&d.waveletBuffers, views); err != nil {
		return err
	}

	d.dequantize()
	d.inverseDWT(views)

	d.decodedCurrent = true
	return nil
}

func checkViewsFor(w *waveletBuffers, views *ViewBuffers) error {
	if views == nil {
		return errConfigf("nil plane views")
	}
	for c := 0; c < NumComponents; c++ {
		p := &views.Planes[c]
		cw, ch := componentDims(w, c)
		if p.Width != cw || p.Height != ch {
			return errConfigf("component %d is %dx%d, want %dx%d", c, p.Width, p.Height, cw, ch)
		}
		if p.Stride < p.Width || len(p.Data) < p.Stride*p.Height {
			return errConfigf("component %d plane is short", c)
		}
	}
	return nil
}

// inverseDWT recombines the four bands of every level from the coarsest
// down, writing the finest level straight into the output planes.
func (d *Decoder) inverseDWT(views *ViewBuffers) {
	pool := d.device.pool

	for c := 0; c < NumComponents; c++ {
		stopLevel := 0
		if c != 0 && d.cfg.Chroma == Chroma420 {
			stopLevel = 1
		}

		for level := DecompositionLevels - 1; level >= stopLevel; level-- {
			bw, bh := d.bandDims(level)
			outW, outH := bw*2, bh*2

			var bands [NumBandsPerLevel][]float32
			if level == DecompositionLevels-1 {
				d.loadBand(c, level, wavelet.BandLL, d.bandTemp[0], bw, bh)
			}
			bands[wavelet.BandLL] = d.bandTemp[0][:bw*bh]
			for b := 1; b < NumBandsPerLevel; b++ {
				d.loadBand(c, level, b, d.bandTemp[b], bw, bh)
				bands[b] = d.bandTemp[b][:bw*bh]
			}

			wavelet.InverseLevel(pool, d.dwtScratch, outW, outH, outW, &bands, bw)

			if level > stopLevel {
				// The reconstruction is the next level's LL input.
				copy(d.bandTemp[0][:outW*outH], d.dwtScratch[:outW*outH])
			}
		}

		d.cropOutput(&views.Planes[c], stopLevel)
	}
}

// loadBand expands a stored band plane into float32 scratch.
func (d *Decoder) loadBand(component, level, band int, dst []float32, bw, bh int) {
	ref := d.bandAt(component, level, band)
	pool := d.device.pool
	pool.ParallelFor(bh, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < bw; x++ {
				dst[y*bw+x] = ref.coeffs.load(y*bw + x)
			}
		}
	})
}

// cropOutput copies the aligned reconstruction into the caller plane,
// discarding the mirror-extension margin.
func (d *Decoder) cropOutput(p *ImagePlane, stopLevel int) {
	pool := d.device.pool
	alignedW := d.alignedWidth >> stopLevel

	pool.ParallelFor(p.Height, func(start, end int) {
		for y := start; y < end; y++ {
			copy(p.Data[y*p.Stride:y*p.Stride+p.Width], d.dwtScratch[y*alignedW:y*alignedW+p.Width])
		}
	})
}
