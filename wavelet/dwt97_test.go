package wavelet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// TestForwardInverse1D checks perfect reconstruction of the lifting
// transform across signal sizes.
func TestForwardInverse1D(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"Size 4", 4},
		{"Size 8", 8},
		{"Size 32", 32},
		{"Size 128", 128},
		{"Size 1024", 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(tt.size)))

			original := make([]float32, tt.size)
			for i := range original {
				original[i] = rng.Float32() - 0.5
			}

			data := make([]float32, tt.size)
			copy(data, original)

			Forward1D(data)
			Inverse1D(data)

			maxErr := 0.0
			for i := range data {
				err := math.Abs(float64(data[i] - original[i]))
				if err > maxErr {
					maxErr = err
				}
			}

			if maxErr > 1e-5 {
				t.Errorf("reconstruction error too large: %e", maxErr)
			}
		})
	}
}

// TestConstantSignal checks the normalization contract: a flat signal
// produces itself in the low half and zero detail.
func TestConstantSignal(t *testing.T) {
	const c = 0.25
	data := make([]float32, 64)
	for i := range data {
		data[i] = c
	}

	Forward1D(data)

	for i := 0; i < 32; i++ {
		if math.Abs(float64(data[i]-c)) > 1e-6 {
			t.Fatalf("low-pass sample %d = %v, want %v", i, data[i], c)
		}
	}
	for i := 32; i < 64; i++ {
		if math.Abs(float64(data[i])) > 1e-6 {
			t.Fatalf("high-pass sample %d = %v, want 0", i, data[i])
		}
	}
}

// TestForwardInverseLevel checks one 2D decomposition level round-trips
// through the band planes.
func TestForwardInverseLevel(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	const w, h = 64, 32

	rng := rand.New(rand.NewSource(42))
	original := make([]float32, w*h)
	for i := range original {
		original[i] = rng.Float32() - 0.5
	}

	src := make([]float32, w*h)
	copy(src, original)

	var bands [4][]float32
	for b := range bands {
		bands[b] = make([]float32, w/2*(h/2))
	}

	ForwardLevel(pool, src, w, h, w, &bands, w/2)

	dst := make([]float32, w*h)
	InverseLevel(pool, dst, w, h, w, &bands, w/2)

	for i := range original {
		if math.Abs(float64(dst[i]-original[i])) > 1e-4 {
			t.Fatalf("sample %d: got %v, want %v", i, dst[i], original[i])
		}
	}
}

// TestLevelEnergyCompaction checks a smooth gradient concentrates into
// the LL band.
func TestLevelEnergyCompaction(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	const w, h = 64, 64
	src := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src[y*w+x] = float32(x+y) / float32(w+h)
		}
	}

	var bands [4][]float32
	for b := range bands {
		bands[b] = make([]float32, w/2*(h/2))
	}
	ForwardLevel(pool, src, w, h, w, &bands, w/2)

	energy := func(p []float32) float64 {
		var e float64
		for _, v := range p {
			e += float64(v) * float64(v)
		}
		return e
	}

	ll := energy(bands[BandLL])
	detail := energy(bands[BandHL]) + energy(bands[BandLH]) + energy(bands[BandHH])
	if ll < 100*detail {
		t.Errorf("poor energy compaction: LL %v vs detail %v", ll, detail)
	}
}
