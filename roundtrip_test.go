package pyrowave

import (
	"math"
	"math/rand"
	"testing"
)

// session bundles an encoder/decoder pair over one device for tests.
type session struct {
	dev *Device
	enc *Encoder
	dec *Decoder
	cfg Config
}

func newSession(t *testing.T, w, h int, chroma ChromaSubsampling) *session {
	t.Helper()
	cfg := Config{Width: w, Height: h, Chroma: chroma}

	dev := testDevice(t)
	enc, err := NewEncoder(dev, cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder(dev, cfg)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return &session{dev: dev, enc: enc, dec: dec, cfg: cfg}
}

func (s *session) newViews() *ViewBuffers {
	views := &ViewBuffers{}
	for c := 0; c < NumComponents; c++ {
		w, h := componentDims(&s.enc.waveletBuffers, c)
		views.Planes[c] = ImagePlane{Data: make([]float32, w*h), Width: w, Height: h, Stride: w}
	}
	return views
}

// fillSmoothNoise fills planes with band-limited noise: random values
// smoothed so the frame compresses like video rather than static.
func fillSmoothNoise(views *ViewBuffers, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for c := range views.Planes {
		p := &views.Planes[c]
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				v := 0.35 * math.Sin(float64(x)/17.0+float64(c)) * math.Cos(float64(y)/23.0)
				v += 0.1 * (rng.Float64() - 0.5)
				p.Data[y*p.Stride+x] = float32(v)
			}
		}
	}
}

// encodeAndPacketize runs the encoder and packetizer for one frame.
func (s *session) encodeAndPacketize(t *testing.T, views *ViewBuffers, targetSize, mtu int) ([]Packet, []byte) {
	t.Helper()

	meta := make([]byte, s.enc.MetaRequiredSize())
	bits := make([]byte, s.enc.BitstreamWorstCaseSize())
	out := BitstreamBuffers{Meta: meta, Bitstream: bits, TargetSize: targetSize}

	if err := s.enc.Encode(views, &out); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	packetized := make([]byte, s.enc.BitstreamWorstCaseSize())
	packets, err := s.enc.Packetize(mtu, packetized, meta, bits)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}
	return packets, packetized
}

func pushAll(t *testing.T, dec *Decoder, packets []Packet, wire []byte) {
	t.Helper()
	for i, p := range packets {
		if err := dec.PushPacket(wire[p.Offset : p.Offset+p.Size]); err != nil {
			t.Fatalf("PushPacket %d: %v", i, err)
		}
	}
}

func psnr(a, b *ImagePlane) float64 {
	var sse float64
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			d := float64(a.Data[y*a.Stride+x]-b.Data[y*b.Stride+x]) * 255.0
			sse += d * d
		}
	}
	mse := sse / float64(a.Width*a.Height)
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(255*255/mse)
}

func maxAbsDiff(a, b *ImagePlane) float64 {
	var m float64
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			d := math.Abs(float64(a.Data[y*a.Stride+x] - b.Data[y*b.Stride+x]))
			if d > m {
				m = d
			}
		}
	}
	return m
}

// TestRoundTripSinglePacket is the small-frame boundary scenario: a
// generous budget yields exactly one packet that reconstructs at high
// fidelity.
func TestRoundTripSinglePacket(t *testing.T) {
	const target = 400000
	s := newSession(t, 128, 128, Chroma444)

	input := s.newViews()
	fillSmoothNoise(input, 1)

	packets, wire := s.encodeAndPacketize(t, input, target, target)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if packets[0].Size > target {
		t.Fatalf("packet is %d bytes, over the %d budget", packets[0].Size, target)
	}

	pushAll(t, s.dec, packets, wire)
	if !s.dec.DecodeIsReady(false) {
		t.Fatal("decoder not ready after all packets")
	}

	output := s.newViews()
	if err := s.dec.Decode(output); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for c := 0; c < NumComponents; c++ {
		if got := psnr(&input.Planes[c], &output.Planes[c]); got < 40 {
			t.Errorf("component %d: PSNR %.2f dB, want >= 40", c, got)
		}
	}
}

// TestRoundTripUniformGrey: a flat neutral frame decomposes to zeros,
// codes into (nearly) nothing and reconstructs exactly.
func TestRoundTripUniformGrey(t *testing.T) {
	s := newSession(t, 1920, 1088, Chroma420)

	input := s.newViews() // all zeros: neutral grey

	meta := make([]byte, s.enc.MetaRequiredSize())
	bits := make([]byte, s.enc.BitstreamWorstCaseSize())
	out := BitstreamBuffers{Meta: meta, Bitstream: bits, TargetSize: 1 << 20}
	if err := s.enc.Encode(input, &out); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flat input: every block packet stays within a few words of header.
	const headerWords = 2
	for i := 0; i < s.enc.BlockCount32(); i++ {
		if m := readMeta(meta, i); m.NumWords > 3+headerWords {
			t.Fatalf("block %d: %d words for a flat frame", i, m.NumWords)
		}
	}

	packetized := make([]byte, s.enc.BitstreamWorstCaseSize())
	packets, err := s.enc.Packetize(1200, packetized, meta, bits)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}

	pushAll(t, s.dec, packets, packetized)
	output := s.newViews()
	if err := s.dec.Decode(output); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for c := 0; c < NumComponents; c++ {
		if d := maxAbsDiff(&input.Planes[c], &output.Planes[c]); d > 1.0/255.0 {
			t.Errorf("component %d deviates by %v from flat grey", c, d)
		}
	}
}

// TestRoundTripAccuracy checks the reconstruction error bound on a
// textured frame with an unconstrained budget.
func TestRoundTripAccuracy(t *testing.T) {
	s := newSession(t, 320, 256, Chroma420)

	input := s.newViews()
	fillSmoothNoise(input, 7)

	packets, wire := s.encodeAndPacketize(t, input, 16<<20, 1500)
	pushAll(t, s.dec, packets, wire)

	output := s.newViews()
	if err := s.dec.Decode(output); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for c := 0; c < NumComponents; c++ {
		if d := maxAbsDiff(&input.Planes[c], &output.Planes[c]); d > 0.05 {
			t.Errorf("component %d: max deviation %v", c, d)
		}
		if got := psnr(&input.Planes[c], &output.Planes[c]); got < 40 {
			t.Errorf("component %d: PSNR %.2f dB", c, got)
		}
	}
}

// TestRoundTripPacketLoss drops every other packet; with more than half
// the blocks delivered the frame still decodes to defined output.
func TestRoundTripPacketLoss(t *testing.T) {
	s := newSession(t, 1024, 1200, Chroma420)

	input := s.newViews()
	fillSmoothNoise(input, 3)

	packets, wire := s.encodeAndPacketize(t, input, 1<<20, 1200)
	if len(packets) < 4 {
		t.Fatalf("scenario needs several packets, got %d", len(packets))
	}

	// Keep the first packet (sequence header) and every other one after.
	for i, p := range packets {
		if i != 0 && i%2 == 1 {
			continue
		}
		if err := s.dec.PushPacket(wire[p.Offset : p.Offset+p.Size]); err != nil {
			t.Fatalf("PushPacket %d: %v", i, err)
		}
	}

	delivered := s.dec.DecodedBlocks()
	total := s.dec.TotalBlocksInSequence()
	wantReady := delivered > total/2
	if got := s.dec.DecodeIsReady(true); got != wantReady {
		t.Fatalf("DecodeIsReady(true) = %v with %d/%d blocks", got, delivered, total)
	}
	if s.dec.DecodeIsReady(false) {
		t.Fatal("DecodeIsReady(false) must not accept a partial frame")
	}

	if !wantReady {
		t.Skipf("only %d/%d blocks delivered", delivered, total)
	}

	output := s.newViews()
	if err := s.dec.Decode(output); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// Degraded but defined: all samples finite and in sane range.
	for c := 0; c < NumComponents; c++ {
		p := &output.Planes[c]
		for i, v := range p.Data {
			if math.IsNaN(float64(v)) || v < -2 || v > 2 {
				t.Fatalf("component %d sample %d is %v", c, i, v)
			}
		}
	}
}

// TestRoundTripBudgeted checks rate control actually engages and the
// output stays within budget over a sweep of targets.
func TestRoundTripBudgeted(t *testing.T) {
	s := newSession(t, 320, 256, Chroma420)

	input := s.newViews()
	fillSmoothNoise(input, 11)

	for _, target := range []int{20000, 60000, 200000} {
		packets, _ := s.encodeAndPacketize(t, input, target, 1<<30)
		total := 0
		for _, p := range packets {
			total += p.Size
		}
		if total > target {
			t.Errorf("target %d: packetized %d bytes", target, total)
		}
	}
}

// TestSecondFrameReuse checks per-frame state fully resets between
// encodes and sequence numbers advance.
func TestSecondFrameReuse(t *testing.T) {
	s := newSession(t, 128, 128, Chroma420)

	input := s.newViews()
	fillSmoothNoise(input, 5)

	for frame := 0; frame < 3; frame++ {
		packets, wire := s.encodeAndPacketize(t, input, 1<<20, 1<<20)
		pushAll(t, s.dec, packets, wire)

		output := s.newViews()
		if err := s.dec.Decode(output); err != nil {
			t.Fatalf("frame %d: Decode: %v", frame, err)
		}
		if got := psnr(&input.Planes[0], &output.Planes[0]); got < 40 {
			t.Errorf("frame %d: PSNR %.2f dB", frame, got)
		}
		if want := uint32(frame + 1); s.enc.Sequence() != want {
			t.Errorf("frame %d: sequence %d, want %d", frame, s.enc.Sequence(), want)
		}
	}
}
