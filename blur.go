package fiatlux

import (
	"math"
	"sync"
)

// maxBlurSigma bounds kernel size; larger radii on big images use this sigma.
const maxBlurSigma = 64

// gaussianKernel returns a normalized 1D Gaussian with 2*ceil(3σ)+1 taps.
// Sigma <= 0 yields the identity kernel.
func gaussianKernel(sigma float64) []float32 {
	if sigma <= 0 {
		return []float32{1}
	}
	sigma = math.Min(sigma, maxBlurSigma)
	key := int(math.Round(sigma * 100))
	if k, ok := kernelCache.Load(key); ok {
		return k.([]float32)
	}

	half := int(math.Ceil(sigma * 3))
	kernel := make([]float32, 2*half+1)
	twoSigmaSq := 2 * sigma * sigma
	var sum float64
	for i := range kernel {
		x := float64(i - half)
		v := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(v)
		sum += v
	}
	inv := float32(1 / sum)
	for i := range kernel {
		kernel[i] *= inv
	}
	kernelCache.Store(key, kernel)
	return kernel
}

var kernelCache sync.Map
