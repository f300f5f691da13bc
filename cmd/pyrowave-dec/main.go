// pyrowave-dec expands a PYROWAVE container back into YUV4MPEG2.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	pyrowave "github.com/pyrowave/pyrowave"
	"github.com/pyrowave/pyrowave/bitstream"
	"github.com/pyrowave/pyrowave/container"
	"github.com/pyrowave/pyrowave/y4m"
)

var opts struct {
	input        string
	output       string
	allowPartial bool
	verbose      bool
}

func main() {
	cmd := &cobra.Command{
		Use:   "pyrowave-dec",
		Short: "Decode a PyroWave container to YUV4MPEG2 video",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run()
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input .pyrowave file (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output .y4m file (required)")
	cmd.Flags().BoolVar(&opts.allowPartial, "allow-partial", false, "emit frames that arrived incomplete")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	in, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	params, err := container.ReadHeader(in)
	if err != nil {
		return err
	}

	info := y4m.StreamInfo{
		Width:        int(params.Width),
		Height:       int(params.Height),
		Format:       y4m.Format(params.YUVFormat),
		FullRange:    params.IsFullRange != 0,
		FrameRateNum: int(params.FrameRateNum),
		FrameRateDen: int(params.FrameRateDen),
	}
	chroma := pyrowave.ChromaSubsampling(params.Chroma)

	dev, err := pyrowave.NewDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	dec, err := pyrowave.NewDecoder(dev, pyrowave.Config{
		Width:  info.Width,
		Height: info.Height,
		Chroma: chroma,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	out, err := os.Create(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	writer, err := y4m.NewWriter(out, info)
	if err != nil {
		return err
	}

	cw, ch := info.ChromaDims()
	frame := make([]byte, info.FrameSize())
	planes := [3][]float32{
		make([]float32, info.Width*info.Height),
		make([]float32, cw*ch),
		make([]float32, cw*ch),
	}

	views := &pyrowave.ViewBuffers{}
	views.Planes[0] = pyrowave.ImagePlane{Data: planes[0], Width: info.Width, Height: info.Height, Stride: info.Width}
	for c := 1; c < 3; c++ {
		views.Planes[c] = pyrowave.ImagePlane{Data: planes[c], Width: cw, Height: ch, Stride: cw}
	}

	emit := func() error {
		if err := dec.Decode(views); err != nil {
			return err
		}
		info.PlanesToFrame(planes, frame)
		return writer.WriteFrame(frame)
	}

	frames := 0
	var packet []byte
	for {
		packet, err = container.ReadPacket(in, packet)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		// A new frame's first packet flips the sequence; flush a
		// partial previous frame before pushing it.
		if len(packet) >= bitstream.HeaderSize && dec.DecodeIsReady(opts.allowPartial) {
			var h bitstream.BlockHeader
			h.Unpack(packet)
			if int(h.Sequence) != dec.LastSequence() {
				if err := emit(); err != nil {
					return err
				}
				frames++
			}
		}

		if err := dec.PushPacket(packet); err != nil {
			return fmt.Errorf("frame %d: %w", frames, err)
		}

		if dec.DecodeIsReady(false) {
			if err := emit(); err != nil {
				return err
			}
			frames++
		}
	}

	if dec.DecodeIsReady(opts.allowPartial) {
		if err := emit(); err != nil {
			return err
		}
		frames++
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	logger.Info("done", "frames", frames)
	return nil
}
