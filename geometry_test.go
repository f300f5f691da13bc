package pyrowave

import (
	"testing"
)

func testDevice(t *testing.T) *Device {
	t.Helper()
	dev, err := NewDeviceWorkers(4)
	if err != nil {
		t.Fatalf("NewDeviceWorkers: %v", err)
	}
	t.Cleanup(dev.Close)
	return dev
}

// TestBlockIndexOrdering checks the global coarse index space is dense:
// every band's blocks are contiguous and strictly increasing in the
// level-major iteration order that defines the wire indices.
func TestBlockIndexOrdering(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		chroma ChromaSubsampling
	}{
		{"128x128 444", 128, 128, Chroma444},
		{"128x128 420", 128, 128, Chroma420},
		{"1920x1088 420", 1920, 1088, Chroma420},
		{"1024x1200 420", 1024, 1200, Chroma420},
		{"640x480 444", 640, 480, Chroma444},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wb waveletBuffers
			err := wb.init(testDevice(t), Config{Width: tt.w, Height: tt.h, Chroma: tt.chroma})
			if err != nil {
				t.Fatalf("init: %v", err)
			}

			next := 0
			for level := DecompositionLevels - 1; level >= 0; level-- {
				for component := 0; component < NumComponents; component++ {
					if wb.chromaSkipped(level, component) {
						continue
					}
					for band := firstBand(level); band < NumBandsPerLevel; band++ {
						info := wb.blockMeta[component][level][band]
						if info.BlockOffset32 != next {
							t.Fatalf("band (%d,%d,%d): offset %d, want %d",
								level, component, band, info.BlockOffset32, next)
						}
						bw, bh := wb.bandDims(level)
						next += ceilDiv(bw, CoarseBlockSize) * ceilDiv(bh, CoarseBlockSize)
					}
				}
			}
			if next != wb.blockCount32 {
				t.Fatalf("enumerated %d coarse blocks, session has %d", next, wb.blockCount32)
			}
			if len(wb.coarseToFine) != wb.blockCount32 {
				t.Fatalf("coarse-to-fine table has %d entries, want %d", len(wb.coarseToFine), wb.blockCount32)
			}
		})
	}
}

// TestCoarseToFineMapping checks edge blocks truncate their fine spans.
func TestCoarseToFineMapping(t *testing.T) {
	var wb waveletBuffers
	if err := wb.init(testDevice(t), Config{Width: 1024, Height: 1200, Chroma: Chroma420}); err != nil {
		t.Fatalf("init: %v", err)
	}

	for idx, mapping := range wb.coarseToFine {
		if mapping.BlockWidth8 < 1 || mapping.BlockWidth8 > FinePerCoarse ||
			mapping.BlockHeight8 < 1 || mapping.BlockHeight8 > FinePerCoarse {
			t.Fatalf("block %d: fine span %dx%d out of range", idx, mapping.BlockWidth8, mapping.BlockHeight8)
		}
		if mapping.BlockOffset8 < 0 || mapping.BlockOffset8 >= wb.blockCount8 {
			t.Fatalf("block %d: fine offset %d out of range", idx, mapping.BlockOffset8)
		}
	}
}

// TestAlignedDims checks dimensions align up to a multiple of 32.
func TestAlignedDims(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{128, 128, 128, 128},
		{1920, 1088, 1920, 1088},
		{1024, 1200, 1024, 1216},
		{130, 642, 160, 672},
	}

	for _, tt := range tests {
		var wb waveletBuffers
		if err := wb.init(testDevice(t), Config{Width: tt.w, Height: tt.h, Chroma: Chroma444}); err != nil {
			t.Fatalf("init %dx%d: %v", tt.w, tt.h, err)
		}
		if wb.alignedWidth != tt.wantW || wb.alignedHeight != tt.wantH {
			t.Errorf("%dx%d: aligned %dx%d, want %dx%d",
				tt.w, tt.h, wb.alignedWidth, wb.alignedHeight, tt.wantW, tt.wantH)
		}
	}
}

// TestConfigValidation checks the init-time failure surface.
func TestConfigValidation(t *testing.T) {
	dev := testDevice(t)

	bad := []Config{
		{Width: 64, Height: 128, Chroma: Chroma420},
		{Width: 128, Height: 64, Chroma: Chroma420},
		{Width: 1 << 14, Height: 128, Chroma: Chroma444},
		{Width: 129, Height: 130, Chroma: Chroma420},
		{Width: 128, Height: 128, Chroma: Chroma444, Precision: Precision(5)},
	}
	for i, cfg := range bad {
		if _, err := NewEncoder(dev, cfg); err == nil {
			t.Errorf("config %d: expected error", i)
		}
	}

	if _, err := NewEncoder(dev, Config{Width: 128, Height: 128, Chroma: Chroma444}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

// TestQuantModel pins the band resolutions of the psychovisual model.
func TestQuantModel(t *testing.T) {
	tests := []struct {
		level, component, band int
		want                   float32
	}{
		{4, 0, 0, 512}, // 2^12 capped by the fp16 guard
		{4, 0, 3, 512}, // 2^10 capped
		{0, 0, 3, 64},  // 2^6
		{0, 0, 1, 128}, // 2^7
		{1, 1, 1, 128}, // chroma one bit down
	}

	for _, tt := range tests {
		got := quantResolution(tt.level, tt.component, tt.band)
		if got != tt.want {
			t.Errorf("resolution(%d,%d,%d) = %v, want %v",
				tt.level, tt.component, tt.band, got, tt.want)
		}
	}

	for _, b := range []int{0, 1, 2, 3} {
		if s := rdoDistortionScale(3, 0, b); s <= 0 {
			t.Errorf("distortion scale for band %d is %v", b, s)
		}
	}
}

func TestMirrorIndex(t *testing.T) {
	n := 4
	want := []int{0, 1, 2, 3, 3, 2, 1, 0, 0, 1}
	for i, w := range want {
		if got := mirrorIndex(i, n); got != w {
			t.Errorf("mirrorIndex(%d, %d) = %d, want %d", i, n, got, w)
		}
	}
}
