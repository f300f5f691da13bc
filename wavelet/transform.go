package wavelet

import (
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Band layer order within a decomposition level.
const (
	BandLL = 0
	BandHL = 1
	BandLH = 2
	BandHH = 3
)

// ForwardLevel performs one 2D decomposition of src (w by h samples at
// the given stride, both even) into four half-resolution band planes.
// src is clobbered. Rows and columns are spread across pool workers;
// the horizontal pass completes before the vertical pass starts.
func ForwardLevel(pool workerpool.Executor, src []float32, w, h, stride int, bands *[4][]float32, bandStride int) {
	pool.ParallelFor(h, func(start, end int) {
		row := make([]float32, w)
		for y := start; y < end; y++ {
			copy(row, src[y*stride:y*stride+w])
			Forward1D(row)
			copy(src[y*stride:y*stride+w], row)
		}
	})

	pool.ParallelFor(w, func(start, end int) {
		col := make([]float32, h)
		for x := start; x < end; x++ {
			for y := 0; y < h; y++ {
				col[y] = src[y*stride+x]
			}
			Forward1D(col)
			for y := 0; y < h; y++ {
				src[y*stride+x] = col[y]
			}
		}
	})

	hw, hh := w/2, h/2
	pool.ParallelFor(hh, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < hw; x++ {
				bands[BandLL][y*bandStride+x] = src[y*stride+x]
				bands[BandHL][y*bandStride+x] = src[y*stride+hw+x]
				bands[BandLH][y*bandStride+x] = src[(hh+y)*stride+x]
				bands[BandHH][y*bandStride+x] = src[(hh+y)*stride+hw+x]
			}
		}
	})
}

// InverseLevel reconstructs dst (w by h at stride) from four
// half-resolution band planes.
func InverseLevel(pool workerpool.Executor, dst []float32, w, h, stride int, bands *[4][]float32, bandStride int) {
	hw, hh := w/2, h/2
	pool.ParallelFor(hh, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < hw; x++ {
				dst[y*stride+x] = bands[BandLL][y*bandStride+x]
				dst[y*stride+hw+x] = bands[BandHL][y*bandStride+x]
				dst[(hh+y)*stride+x] = bands[BandLH][y*bandStride+x]
				dst[(hh+y)*stride+hw+x] = bands[BandHH][y*bandStride+x]
			}
		}
	})

	pool.ParallelFor(w, func(start, end int) {
		col := make([]float32, h)
		for x := start; x < end; x++ {
			for y := 0; y < h; y++ {
				col[y] = dst[y*stride+x]
			}
			Inverse1D(col)
			for y := 0; y < h; y++ {
				dst[y*stride+x] = col[y]
			}
		}
	})

	pool.ParallelFor(h, func(start, end int) {
		row := make([]float32, w)
		for y := start; y < end; y++ {
			copy(row, dst[y*stride:y*stride+w])
			Inverse1D(row)
			copy(dst[y*stride:y*stride+w], row)
		}
	})
}
