// pyrowave-psnr measures per-plane PSNR between two YUV4MPEG2 streams.
package main

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/pyrowave/pyrowave/y4m"
)

func main() {
	cmd := &cobra.Command{
		Use:   "pyrowave-psnr <reference.y4m> <distorted.y4m>",
		Short: "Per-plane PSNR between two YUV4MPEG2 streams",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0], args[1])
		},
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(refPath, distPath string) error {
	refFile, err := os.Open(refPath)
	if err != nil {
		return err
	}
	defer refFile.Close()

	distFile, err := os.Open(distPath)
	if err != nil {
		return err
	}
	defer distFile.Close()

	ref, err := y4m.NewReader(refFile)
	if err != nil {
		return err
	}
	dist, err := y4m.NewReader(distFile)
	if err != nil {
		return err
	}

	ri, di := ref.Info(), dist.Info()
	if ri.Width != di.Width || ri.Height != di.Height || ri.Format != di.Format {
		return errors.New("stream geometries do not match")
	}

	cw, ch := ri.ChromaDims()
	planeSizes := [3]int{ri.Width * ri.Height, cw * ch, cw * ch}
	planeNames := [3]string{"Y", "Cb", "Cr"}

	refFrame := make([]byte, ri.FrameSize())
	distFrame := make([]byte, ri.FrameSize())

	var sse [3]float64
	var samples [3]int64
	frames := 0

	for {
		errRef := ref.ReadFrame(refFrame)
		errDist := dist.ReadFrame(distFrame)
		if errRef == y4m.ErrEndOfStream || errDist == y4m.ErrEndOfStream {
			break
		}
		if errRef != nil {
			return errRef
		}
		if errDist != nil {
			return errDist
		}

		offset := 0
		for c := 0; c < 3; c++ {
			for i := 0; i < planeSizes[c]; i++ {
				d := float64(refFrame[offset+i]) - float64(distFrame[offset+i])
				sse[c] += d * d
			}
			samples[c] += int64(planeSizes[c])
			offset += planeSizes[c]
		}
		frames++
	}

	if frames == 0 {
		return errors.New("no frames to compare")
	}

	for c := 0; c < 3; c++ {
		mse := sse[c] / float64(samples[c])
		if mse == 0 {
			fmt.Printf("%s: inf dB\n", planeNames[c])
			continue
		}
		fmt.Printf("%s: %.3f dB\n", planeNames[c], 10*math.Log10(255*255/mse))
	}
	fmt.Printf("frames: %d\n", frames)
	return nil
}
