// Package wavelet implements the Cohen-Daubechies-Feauveau 9/7 discrete
// wavelet transform as a 4-step lifting scheme with whole-sample mirror
// boundary handling. Signals are always even-length: the codec operates
// on dimensions aligned to a multiple of 32, so every decomposition
// window stays even down to the coarsest level.
package wavelet

// 9/7 lifting coefficients.
const (
	Alpha = -1.586134342059924
	Beta  = -0.052980118572961
	Gamma = 0.882911075530934
	Delta = 0.443506852043971

	// K normalizes the branches: the low-pass lifting gain is K, so
	// scaling low by 1/K and high by K leaves the low branch with unit
	// DC gain. A constant signal decomposes to itself plus zero detail.
	K    = 1.230174104914001
	InvK = 1.0 / K
)

// liftOdd applies x[2i+1] += c*(x[2i] + x[2i+2]) with mirror repeat at
// the right edge.
func liftOdd(x []float32, c float32) {
	n := len(x)
	for i := 1; i+1 < n; i += 2 {
		x[i] += c * (x[i-1] + x[i+1])
	}
	x[n-1] += c * 2 * x[n-2]
}

// liftEven applies x[2i] += c*(x[2i-1] + x[2i+1]) with mirror repeat at
// the left edge.
func liftEven(x []float32, c float32) {
	n := len(x)
	x[0] += c * 2 * x[1]
	for i := 2; i < n; i += 2 {
		if i+1 < n {
			x[i] += c * (x[i-1] + x[i+1])
		} else {
			x[i] += c * 2 * x[i-1]
		}
	}
}

// Forward1D transforms an even-length signal in place and deinterleaves
// it into [L | H] halves.
func Forward1D(x []float32) {
	n := len(x)
	if n < 2 {
		return
	}

	liftOdd(x, Alpha)
	liftEven(x, Beta)
	liftOdd(x, Gamma)
	liftEven(x, Delta)

	for i := 0; i < n; i += 2 {
		x[i] *= InvK
		x[i+1] *= K
	}

	deinterleave(x)
}

// Inverse1D reconstructs an even-length signal from [L | H] halves in
// place.
func Inverse1D(x []float32) {
	n := len(x)
	if n < 2 {
		return
	}

	interleave(x)

	for i := 0; i < n; i += 2 {
		x[i] *= K
		x[i+1] *= InvK
	}

	liftEven(x, -Delta)
	liftOdd(x, -Gamma)
	liftEven(x, -Beta)
	liftOdd(x, -Alpha)
}

// deinterleave reorders even/odd interleaved samples into [L | H].
func deinterleave(x []float32) {
	n := len(x)
	half := n / 2
	tmp := make([]float32, n)
	for i := 0; i < half; i++ {
		tmp[i] = x[2*i]
		tmp[half+i] = x[2*i+1]
	}
	copy(x, tmp)
}

// interleave reorders [L | H] halves back to even/odd interleaved.
func interleave(x []float32) {
	n := len(x)
	half := n / 2
	tmp := make([]float32, n)
	for i := 0; i < half; i++ {
		tmp[2*i] = x[i]
		tmp[2*i+1] = x[half+i]
	}
	copy(x, tmp)
}
