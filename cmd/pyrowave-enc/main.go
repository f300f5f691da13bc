// pyrowave-enc compresses a YUV4MPEG2 stream into a PYROWAVE container.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	pyrowave "github.com/pyrowave/pyrowave"
	"github.com/pyrowave/pyrowave/container"
	"github.com/pyrowave/pyrowave/y4m"
)

var opts struct {
	input      string
	output     string
	bitrateMbs float64
	fps        float64
	mtu        int
	precision  int
	stats      bool
	verbose    bool
}

func main() {
	cmd := &cobra.Command{
		Use:   "pyrowave-enc",
		Short: "Encode YUV4MPEG2 video to a PyroWave container",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run()
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input .y4m file (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output .pyrowave file (required)")
	cmd.Flags().Float64VarP(&opts.bitrateMbs, "bitrate", "b", 80, "target bitrate in Mbit/s")
	cmd.Flags().Float64Var(&opts.fps, "fps", 0, "override frame rate for budget purposes")
	cmd.Flags().IntVar(&opts.mtu, "mtu", 1200, "packet boundary in bytes")
	cmd.Flags().IntVar(&opts.precision, "precision", envPrecision(), "coefficient precision 0=fp16 1=mixed 2=fp32")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "log per-band statistics per frame")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// envPrecision honors the PYROWAVE_PRECISION environment variable as
// the default for the --precision flag.
func envPrecision() int {
	if env := os.Getenv("PYROWAVE_PRECISION"); env != "" {
		if v, err := strconv.Atoi(env); err == nil && v >= 0 && v <= 2 {
			return v
		}
		fmt.Fprintln(os.Stderr, "pyrowave: PYROWAVE_PRECISION must be in range [0, 2]")
	}
	return 0
}

func run() error {
	level := slog.LevelInfo
	if opts.verbose || opts.stats {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	in, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	reader, err := y4m.NewReader(in)
	if err != nil {
		return err
	}
	info := reader.Info()

	chroma := pyrowave.Chroma444
	if info.Format.HasSubsampling() {
		chroma = pyrowave.Chroma420
	}

	fps := opts.fps
	if fps <= 0 {
		fps = float64(info.FrameRateNum) / float64(max(info.FrameRateDen, 1))
	}
	targetSize := int(opts.bitrateMbs * 1e6 / 8.0 / fps)

	dev, err := pyrowave.NewDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	enc, err := pyrowave.NewEncoder(dev, pyrowave.Config{
		Width:     info.Width,
		Height:    info.Height,
		Chroma:    chroma,
		Precision: pyrowave.Precision(opts.precision),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	out, err := os.Create(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	fullRange := int32(0)
	if info.FullRange {
		fullRange = 1
	}
	err = container.WriteHeader(out, container.Params{
		Width:        int32(info.Width),
		Height:       int32(info.Height),
		YUVFormat:    int32(info.Format),
		Chroma:       int32(chroma),
		IsFullRange:  fullRange,
		FrameRateNum: int32(info.FrameRateNum),
		FrameRateDen: int32(info.FrameRateDen),
	})
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

	meta := make([]byte, enc.MetaRequiredSize())
	bits := make([]byte, enc.BitstreamWorstCaseSize())
	packetized := make([]byte, enc.BitstreamWorstCaseSize())

	frameIndex := 0
	for {
		if err := reader.ReadFrame(frame); err != nil {
			if err == y4m.ErrEndOfStream {
				break
			}
			return err
		}
		info.FrameToPlanes(frame, planes)

		buffers := pyrowave.BitstreamBuffers{Meta: meta, Bitstream: bits, TargetSize: targetSize}
		if err := enc.Encode(views, &buffers); err != nil {
			return fmt.Errorf("frame %d: %w", frameIndex, err)
		}

		packets, err := enc.Packetize(opts.mtu, packetized, meta, bits)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frameIndex, err)
		}
		if opts.stats {
			enc.ReportStats(meta, bits)
		}

		total := 0
		for _, p := range packets {
			if err := container.WritePacket(out, packetized[p.Offset:p.Offset+p.Size]); err != nil {
				return err
			}
			total += p.Size
		}
		if total > targetSize {
			logger.Warn("frame exceeded its byte budget", "frame", frameIndex,
				"bytes", total, "target", targetSize)
		}

		logger.Debug("encoded frame", "frame", frameIndex, "packets", len(packets), "bytes", total)
		frameIndex++
	}

	logger.Info("done", "frames", frameIndex)
	return nil
}
