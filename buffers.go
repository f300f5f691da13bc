package pyrowave

import (
	"github.com/ajroetker/go-highway/hwy"

	"github.com/pyrowave/pyrowave/bitstream"
)

// plane is one band coefficient image. Storage is half or single
// precision depending on the session precision mode; arithmetic on
// loaded values is always float32.
type plane struct {
	w, h int
	f16  []hwy.Float16
	f32  []float32
}

func newPlane(w, h int, half bool) *plane {
	p := &plane{w: w, h: h}
	if half {
		p.f16 = make([]hwy.Float16, w*h)
	} else {
		p.f32 = make([]float32, w*h)
	}
	return p
}

func (p *plane) load(i int) float32 {
	if p.f16 != nil {
		return p.f16[i].Float32()
	}
	return p.f32[i]
}

func (p *plane) store(i int, v float32) {
	if p.f16 != nil {
		p.f16[i] = hwy.Float32ToFloat16(v)
	} else {
		p.f32[i] = v
	}
}

func (p *plane) zero() {
	if p.f16 != nil {
		clear(p.f16)
	} else {
		clear(p.f32)
	}
}

// BlockInfo locates a band's block grids inside the global index space.
type BlockInfo struct {
	BlockOffset8  int
	BlockStride8  int
	BlockOffset32 int
	BlockStride32 int
}

// BlockMapping is the dense coarse-to-fine descriptor of one 32x32
// block: where its up-to-4x4 fine blocks start, and how many of them
// are in bounds at band edges.
type BlockMapping struct {
	BlockOffset8 int
	BlockStride8 int
	BlockWidth8  int
	BlockHeight8 int
}

// bandRef is one coded band: its identity, geometry and per-band
// quantization constants resolved at init.
type bandRef struct {
	level, component, band int
	width, height          int

	info BlockInfo

	// quantStep is the effective band step after code round-tripping;
	// invQuantStep its reciprocal, distortionScale the CSF weight for
	// rate control.
	quantCode       uint8
	quantStep       float32
	invQuantStep    float32
	distortionScale float32

	coeffs *plane
}

// waveletBuffers owns band planes and the block-index geometry shared
// by the encoder and decoder sessions.
type waveletBuffers struct {
	cfg    Config
	device *Device

	width, height               int
	alignedWidth, alignedHeight int

	bands []bandRef

	blockMeta     [NumComponents][DecompositionLevels][NumBandsPerLevel]BlockInfo
	coarseToFine  []BlockMapping
	coarseBand    []int32 // band list index per coarse block
	blockCount8   int
	blockCount32  int
	blockCoeffs   int // total coefficient capacity across fine blocks
}

// bandDims returns the band size at a decomposition level. Chroma in
// 4:2:0 enters the pyramid one level down, so its band sizes coincide
// with luma's at every coded level.
func (w *waveletBuffers) bandDims(level int) (int, int) {
	return w.alignedWidth >> (level + 1), w.alignedHeight >> (level + 1)
}

// chromaSkipped reports whether a component has no bands at a level.
func (w *waveletBuffers) chromaSkipped(level, component int) bool {
	return level == 0 && component != 0 && w.cfg.Chroma == Chroma420
}

// firstBand returns the first coded band index at a level: all four at
// the coarsest level, HL onward elsewhere (LL feeds the next level).
func firstBand(level int) int {
	if level == DecompositionLevels-1 {
		return 0
	}
	return 1
}

func (w *waveletBuffers) init(device *Device, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if device == nil {
		return errConfigf("nil device")
	}

	w.cfg = cfg
	w.device = device
	w.width = cfg.Width
	w.height = cfg.Height
	w.alignedWidth = max(alignUp(cfg.Width, Alignment), MinimumImageSize)
	w.alignedHeight = max(alignUp(cfg.Height, Alignment), MinimumImageSize)

	w.initBlockMeta()
	w.allocatePlanes()
	return nil
}

// initBlockMeta enumerates the global block grids. The order defines
// the wire's block indices: levels from coarsest to finest, components
// inside a level, bands inside a component, rows then columns inside a
// band.
func (w *waveletBuffers) initBlockMeta() {
	for level := DecompositionLevels - 1; level >= 0; level-- {
		for component := 0; component < NumComponents; component++ {
			if w.chromaSkipped(level, component) {
				continue
			}

			for band := firstBand(level); band < NumBandsPerLevel; band++ {
				bw, bh := w.bandDims(level)

				blocksX8 := ceilDiv(bw, FineBlockSize)
				blocksY8 := ceilDiv(bh, FineBlockSize)
				blocksX32 := ceilDiv(bw, CoarseBlockSize)

				info := BlockInfo{
					BlockOffset8:  w.blockCount8,
					BlockStride8:  blocksX8,
					BlockOffset32: w.blockCount32,
					BlockStride32: blocksX32,
				}
				w.blockMeta[component][level][band] = info

				w.bands = append(w.bands, bandRef{
					level:     level,
					component: component,
					band:      band,
					width:     bw,
					height:    bh,
					info:      info,
				})

				w.accumulateBlockMapping(blocksX8, blocksY8)
			}
		}
	}

	for i := range w.bands {
		b := &w.bands[i]
		res := quantResolution(b.level, b.component, b.band)
		b.quantCode = bitstream.EncodeQuant(1.0 / res)
		b.quantStep = bitstream.DecodeQuant(b.quantCode)
		b.invQuantStep = 1.0 / b.quantStep
		b.distortionScale = rdoDistortionScale(b.level, b.component, b.band)
	}

	w.blockCoeffs = w.blockCount8 * FineBlockSize * FineBlockSize
}

func (w *waveletBuffers) accumulateBlockMapping(blocksX8, blocksY8 int) {
	bandIndex := int32(len(w.bands) - 1)
	blocksX32 := ceilDiv(blocksX8, FinePerCoarse)
	blocksY32 := ceilDiv(blocksY8, FinePerCoarse)

	for y := 0; y < blocksY32; y++ {
		for x := 0; x < blocksX32; x++ {
			w.coarseToFine = append(w.coarseToFine, BlockMapping{
				BlockOffset8: w.blockCount8 + FinePerCoarse*y*blocksX8 + FinePerCoarse*x,
				BlockStride8: blocksX8,
				BlockWidth8:  min(FinePerCoarse, blocksX8-FinePerCoarse*x),
				BlockHeight8: min(FinePerCoarse, blocksY8-FinePerCoarse*y),
			})
			w.coarseBand = append(w.coarseBand, bandIndex)
			w.blockCount32++
		}
	}

	w.blockCount8 += blocksX8 * blocksY8
}

// allocatePlanes builds the coded band images. Mixed precision keeps
// the two coarsest levels at float32 and everything finer at half.
func (w *waveletBuffers) allocatePlanes() {
	for i := range w.bands {
		b := &w.bands[i]
		half := false
		switch w.cfg.Precision {
		case PrecisionFP16:
			half = true
		case PrecisionMixed:
			half = b.level < DecompositionLevels-2
		}
		b.coeffs = newPlane(b.width, b.height, half)
	}
}

// BlockCount32 returns the global coarse block count of the session.
func (w *waveletBuffers) BlockCount32() int {
	return w.blockCount32
}

// BlockCount8 returns the global fine block count of the session.
func (w *waveletBuffers) BlockCount8() int {
	return w.blockCount8
}

// AlignedDims returns the aligned transform dimensions.
func (w *waveletBuffers) AlignedDims() (int, int) {
	return w.alignedWidth, w.alignedHeight
}

// bandAt finds a coded band by identity.
func (w *waveletBuffers) bandAt(component, level, band int) *bandRef {
	for i := range w.bands {
		b := &w.bands[i]
		if b.component == component && b.level == level && b.band == band {
			return b
		}
	}
	return nil
}

// fineBlockBounds returns the in-bounds coefficient extent of a fine
// block inside its band; both are in (0, 8].
func fineBlockBounds(b *bandRef, bx, by int) (int, int) {
	wv := min(FineBlockSize, b.width-bx*FineBlockSize)
	hv := min(FineBlockSize, b.height-by*FineBlockSize)
	return wv, hv
}

// subBlockInBoundsMask returns which of the eight 4x2 sub-blocks of a
// fine block intersect the valid wv x hv region.
func subBlockInBoundsMask(wv, hv int) uint8 {
	var mask uint8
	for s := 0; s < 8; s++ {
		sx := (s & 1) * 4
		sy := (s >> 1) * 2
		if sx < wv && sy < hv {
			mask |= 1 << s
		}
	}
	return mask
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
