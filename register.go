package pyrowave

import (
	"sync"

	"github.com/pyrowave/pyrowave/codec"
)

// registeredCodec adapts encoder/decoder sessions to the generic
// frame-codec interface. Sessions are built lazily and reused while
// frame geometry stays put.
type registeredCodec struct {
	mu  sync.Mutex
	dev *Device
	enc *Encoder
	dec *Decoder
	cfg Config

	meta       []byte
	bitstreamB []byte
	packetized []byte
}

func init() {
	codec.Register(&registeredCodec{})
}

func (c *registeredCodec) FourCC() string { return "PYRW" }
func (c *registeredCodec) Name() string   { return "pyrowave" }

func (c *registeredCodec) configFor(frame *codec.Frame) Config {
	chroma := Chroma444
	if frame.Subsampled() {
		chroma = Chroma420
	}
	return Config{Width: frame.Width, Height: frame.Height, Chroma: chroma}
}

func (c *registeredCodec) ensureSessions(frame *codec.Frame) error {
	cfg := c.configFor(frame)
	if c.dev != nil && cfg.Width == c.cfg.Width && cfg.Height == c.cfg.Height && cfg.Chroma == c.cfg.Chroma {
		return nil
	}

	dev, err := NewDevice()
	if err != nil {
		return err
	}

	enc, err := NewEncoder(dev, cfg)
	if err != nil {
		dev.Close()
		return err
	}
	dec, err := NewDecoder(dev, cfg)
	if err != nil {
		dev.Close()
		return err
	}

	if c.dev != nil {
		c.dev.Close()
	}
	c.dev, c.enc, c.dec, c.cfg = dev, enc, dec, cfg
	c.meta = make([]byte, enc.MetaRequiredSize())
	c.bitstreamB = make([]byte, enc.BitstreamWorstCaseSize())
	c.packetized = make([]byte, enc.BitstreamWorstCaseSize())
	return nil
}

func viewsFromFrame(frame *codec.Frame) (*ViewBuffers, error) {
	var views ViewBuffers
	for i := 0; i < NumComponents; i++ {
		w, h := frame.PlaneDims(i)
		if len(frame.Planes[i]) < w*h {
			return nil, codec.ErrInvalidFrame
		}
		views.Planes[i] = ImagePlane{Data: frame.Planes[i], Width: w, Height: h, Stride: w}
	}
	return &views, nil
}

func (c *registeredCodec) EncodeFrame(frame *codec.Frame, targetSize, mtu int) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureSessions(frame); err != nil {
		return nil, err
	}
	views, err := viewsFromFrame(frame)
	if err != nil {
		return nil, err
	}

	out := BitstreamBuffers{Meta: c.meta, Bitstream: c.bitstreamB, TargetSize: targetSize}
	if err := c.enc.Encode(views, &out); err != nil {
		return nil, err
	}

	packets, err := c.enc.Packetize(mtu, c.packetized, c.meta, c.bitstreamB)
	if err != nil {
		return nil, err
	}

	wire := make([][]byte, len(packets))
	for i, p := range packets {
		wire[i] = append([]byte(nil), c.packetized[p.Offset:p.Offset+p.Size]...)
	}
	return wire, nil
}

func (c *registeredCodec) DecodeFrame(packets [][]byte, frame *codec.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureSessions(frame); err != nil {
		return err
	}
	views, err := viewsFromFrame(frame)
	if err != nil {
		return err
	}

	c.dec.Clear()
	for _, p := range packets {
		if err := c.dec.PushPacket(p); err != nil {
			return err
		}
	}
	if !c.dec.DecodeIsReady(true) {
		return ErrNotReady
	}
	return c.dec.Decode(views)
}
