package y4m

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []StreamInfo{
		{Width: 1920, Height: 1080, Format: YUV420P, FrameRateNum: 30, FrameRateDen: 1},
		{Width: 128, Height: 128, Format: YUV444P, FrameRateNum: 60, FrameRateDen: 1, FullRange: true},
		{Width: 1024, Height: 1200, Format: YUV420P, FrameRateNum: 30000, FrameRateDen: 1001},
	}

	for _, info := range tests {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, info)
		if err != nil {
			t.Fatalf("NewWriter: %v", err)
		}

		frame := make([]byte, info.FrameSize())
		for i := range frame {
			frame[i] = byte(i)
		}
		if err := w.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}

		r, err := NewReader(&buf)
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		if got := r.Info(); got != info {
			t.Fatalf("info round-trip: got %+v, want %+v", got, info)
		}

		decoded := make([]byte, info.FrameSize())
		if err := r.ReadFrame(decoded); err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(frame, decoded) {
			t.Fatal("frame data mismatch")
		}
		if err := r.ReadFrame(decoded); err != ErrEndOfStream {
			t.Fatalf("expected end of stream, got %v", err)
		}
	}
}

func TestInvalidMagic(t *testing.T) {
	if _, err := NewReader(bytes.NewBufferString("MPEG4YUV2 W64 H64\n")); err == nil {
		t.Fatal("bad magic accepted")
	}
}

func TestPlaneConversion(t *testing.T) {
	info := StreamInfo{Width: 4, Height: 2, Format: YUV420P}

	frame := []byte{
		0, 64, 128, 255,
		128, 128, 128, 128,
		128, 0, // Cb
		255, 128, // Cr
	}

	planes := [3][]float32{
		make([]float32, 8),
		make([]float32, 2),
		make([]float32, 2),
	}
	info.FrameToPlanes(frame, planes)

	if planes[0][2] != 0 {
		t.Errorf("neutral luma maps to %v, want 0", planes[0][2])
	}
	if planes[1][1] >= 0 || planes[2][0] <= 0 {
		t.Errorf("chroma extremes lost their sign: %v %v", planes[1][1], planes[2][0])
	}

	out := make([]byte, len(frame))
	info.PlanesToFrame(planes, out)
	if !bytes.Equal(frame, out) {
		t.Fatalf("conversion round-trip: %v != %v", out, frame)
	}
}
