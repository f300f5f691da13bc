package pyrowave

import "math"

// The base quantizer aims for a flat spectrum with noise-power
// normalization: the CDF 9/7 low-pass gain is about 6 dB, so every
// decomposition level earns one extra bit, LL two more, HL/LH one.

// maxQuantResolution caps the step reciprocal so quantized magnitudes
// stay inside half-precision range.
const maxQuantResolution = 512.0

func noisePowerNormalizedQuantResolution(level, component, band int) float32 {
	bits := 6

	if band == 0 {
		bits += 2
	} else if band < 3 {
		bits++
	}

	bits += level

	// Chroma starts one level down, subtract a bit.
	if component != 0 {
		bits--
	}

	return float32(int(1) << bits)
}

func quantResolution(level, component, band int) float32 {
	return min(maxQuantResolution, noisePowerNormalizedQuantResolution(level, component, band))
}

// Contrast sensitivity model constants: a 96 DPI panel at one meter.
const (
	viewingDPI      = 96.0
	viewingDistance = 1.0
	cpdNyquist      = 0.34 * viewingDistance * viewingDPI
)

// rdoDistortionScale weights a band's distortion by the Mannos-Sakrison
// contrast sensitivity at the band's spatial frequency midpoint, squared
// into power terms together with the noise-power normalization.
func rdoDistortionScale(level, component, band int) float32 {
	horizMid := 0.25
	if band&1 != 0 {
		horizMid = 0.75
	}
	vertMid := 0.25
	if band&2 != 0 {
		vertMid = 0.75
	}

	cpd := math.Sqrt(horizMid*horizMid+vertMid*vertMid) * cpdNyquist * math.Exp2(-float64(level))

	// Never land in a regime where the LL band quantizes hard.
	cpd = math.Max(cpd, 8.0)

	csf := 2.6 * (0.0192 + 0.114*cpd) * math.Exp(-math.Pow(0.114*cpd, 1.1))

	// Heavily discount chroma quality.
	if component != 0 && level != DecompositionLevels-1 {
		csf *= 0.4
	}

	resolution := float64(noisePowerNormalizedQuantResolution(level, component, band))
	weighted := csf * resolution

	// Distortion scales in power, not amplitude.
	return float32(weighted * weighted)
}
