package bitstream

import "math"

// Quantizer step codes use a custom float form (e<<3)|m for steps in
// [2^-20, 2): the step reconstructs as (8+m) * 2^(20-e) / 2^23 with
// m in [0,7] and e in [0,20]. The encoder truncates the mantissa, so
// inside that range a reconstructed step never exceeds the requested
// one; smaller steps clamp to e=20 and reconstruct larger.

// MaxQuantCode is one past the largest code exercised by the six-bit
// round-trip contract.
const MaxQuantCode = 1 << 6

// maxQuantExp bounds the code exponent field.
const maxQuantExp = 20

// DecodeQuant reconstructs the quantizer step for a code.
func DecodeQuant(code uint8) float32 {
	e := int(code >> 3)
	m := int(code & 0x7)
	return float32(8+m) * float32(math.Exp2(float64(20-e))) / (1 << 23)
}

// EncodeQuant maps a step back to its code by pulling exponent and
// mantissa straight out of the float32 bit pattern.
func EncodeQuant(step float32) uint8 {
	v := math.Float32bits(step)
	e := -(int(v>>23&0xff) - 127)
	m := int(v>>20) & 0x7
	if e < 0 {
		e = 0
	} else if e > maxQuantExp {
		e = maxQuantExp
	}
	return uint8(e<<3 | m)
}
