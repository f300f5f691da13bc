package pyrowave

import (
	"testing"
)

func benchmarkSession(b *testing.B, w, h int, chroma ChromaSubsampling) (*session, *ViewBuffers) {
	b.Helper()
	dev, err := NewDeviceWorkers(0)
	if err != nil {
		b.Fatalf("NewDeviceWorkers: %v", err)
	}
	b.Cleanup(dev.Close)

	cfg := Config{Width: w, Height: h, Chroma: chroma}
	enc, err := NewEncoder(dev, cfg)
	if err != nil {
		b.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder(dev, cfg)
	if err != nil {
		b.Fatalf("NewDecoder: %v", err)
	}

	s := &session{dev: dev, enc: enc, dec: dec, cfg: cfg}
	views := s.newViews()
	fillSmoothNoise(views, 99)
	return s, views
}

func BenchmarkEncode1080p(b *testing.B) {
	s, views := benchmarkSession(b, 1920, 1088, Chroma420)

	meta := make([]byte, s.enc.MetaRequiredSize())
	bits := make([]byte, s.enc.BitstreamWorstCaseSize())
	out := BitstreamBuffers{Meta: meta, Bitstream: bits, TargetSize: 400000}

	b.SetBytes(int64(1920 * 1088 * 3 / 2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.enc.Encode(views, &out); err != nil {
			b.Fatalf("Encode: %v", err)
		}
	}
}

func BenchmarkDecode1080p(b *testing.B) {
	s, views := benchmarkSession(b, 1920, 1088, Chroma420)

	meta := make([]byte, s.enc.MetaRequiredSize())
	bits := make([]byte, s.enc.BitstreamWorstCaseSize())
	out := BitstreamBuffers{Meta: meta, Bitstream: bits, TargetSize: 400000}
	if err := s.enc.Encode(views, &out); err != nil {
		b.Fatalf("Encode: %v", err)
	}
	wire := make([]byte, s.enc.BitstreamWorstCaseSize())
	packets, err := s.enc.Packetize(1200, wire, meta, bits)
	if err != nil {
		b.Fatalf("Packetize: %v", err)
	}

	output := s.newViews()

	b.SetBytes(int64(1920 * 1088 * 3 / 2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.dec.Clear()
		for _, p := range packets {
			if err := s.dec.PushPacket(wire[p.Offset : p.Offset+p.Size]); err != nil {
				b.Fatalf("PushPacket: %v", err)
			}
		}
		if err := s.dec.Decode(output); err != nil {
			b.Fatalf("Decode: %v", err)
		}
	}
}

func BenchmarkPacketize1080p(b *testing.B) {
	s, views := benchmarkSession(b, 1920, 1088, Chroma420)

	meta := make([]byte, s.enc.MetaRequiredSize())
	bits := make([]byte, s.enc.BitstreamWorstCaseSize())
	out := BitstreamBuffers{Meta: meta, Bitstream: bits, TargetSize: 400000}
	if err := s.enc.Encode(views, &out); err != nil {
		b.Fatalf("Encode: %v", err)
	}
	wire := make([]byte, s.enc.BitstreamWorstCaseSize())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.enc.Packetize(1200, wire, meta, bits); err != nil {
			b.Fatalf("Packetize: %v", err)
		}
	}
}
