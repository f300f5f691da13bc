package y4m

import "math"

// Samples are normalized around neutral: byte 128 maps to 0.0, so a
// flat grey frame decomposes to pure zeros in the codec.

// FrameToPlanes expands an 8-bit planar frame into three normalized,
// neutral-centered float planes sized for the stream geometry.
func (s *StreamInfo) FrameToPlanes(frame []byte, planes [3][]float32) {
	cw, ch := s.ChromaDims()
	sizes := [3]int{s.Width * s.Height, cw * ch, cw * ch}

	offset := 0
	for c := 0; c < 3; c++ {
		src := frame[offset : offset+sizes[c]]
		dst := planes[c]
		for i, v := range src {
			dst[i] = (float32(v) - 128.0) * (1.0 / 255.0)
		}
		offset += sizes[c]
	}
}

// PlanesToFrame quantizes three normalized float planes back to an
// 8-bit planar frame with rounding and clamping.
func (s *StreamInfo) PlanesToFrame(planes [3][]float32, frame []byte) {
	cw, ch := s.ChromaDims()
	sizes := [3]int{s.Width * s.Height, cw * ch, cw * ch}

	offset := 0
	for c := 0; c < 3; c++ {
		dst := frame[offset : offset+sizes[c]]
		for i, v := range planes[c][:sizes[c]] {
			x := int(math.Round(float64(v)*255.0 + 128.0))
			if x < 0 {
				x = 0
			} else if x > 255 {
				x = 255
			}
			dst[i] = byte(x)
		}
		offset += sizes[c]
	}
}
