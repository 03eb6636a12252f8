package fiatlux

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func neutralUniforms() *Uniforms {
	return &Uniforms{ExposureGain: 1, ContrastPower: 1}
}

func TestShadePixelExposure(t *testing.T) {
	var curves [4][]float32
	c := rgb{0.1, 0.2, 0.3}

	for _, tc := range []struct {
		ev   float64
		want rgb
	}{
		{0, c},
		{1, rgb{0.2, 0.4, 0.6}},
		{-1, rgb{0.05, 0.1, 0.15}},
	} {
		u := neutralUniforms()
		u.ExposureGain = float32(math.Exp2(tc.ev))
		got := shadePixel(u, &curves, c)
		assert.InDelta(t, tc.want.r, got.r, 1e-6, "ev %v", tc.ev)
		assert.InDelta(t, tc.want.g, got.g, 1e-6, "ev %v", tc.ev)
		assert.InDelta(t, tc.want.b, got.b, 1e-6, "ev %v", tc.ev)
	}
}

func TestApplySaturationCollapsesToGray(t *testing.T) {
	got := applySaturation(0, -1, rgb{0.8, 0.2, 0.1})
	assert.Equal(t, got.r, got.g)
	assert.Equal(t, got.g, got.b)
	assert.InDelta(t, luminance(0.8, 0.2, 0.1), got.r, 1e-6)
}

func TestApplySaturationVibranceSparesSaturated(t *testing.T) {
	muted := rgb{0.5, 0.45, 0.4}
	vivid := rgb{0.9, 0.05, 0.05}

	spread := func(c rgb) float32 { return max(c.r, c.g, c.b) - min(c.r, c.g, c.b) }

	mutedGain := spread(applySaturation(0.5, 0, muted)) / spread(muted)
	vividGain := spread(applySaturation(0.5, 0, vivid)) / spread(vivid)
	assert.Greater(t, mutedGain, vividGain)
}

func TestContrastPivot(t *testing.T) {
	assert.InDelta(t, contrastPivot, applyContrast(contrastPivot, 1.7), 1e-6)
	assert.Less(t, applyContrast(0.05, 1.5), float32(0.05))
	assert.Greater(t, applyContrast(0.6, 1.5), float32(0.6))
	assert.Equal(t, float32(0), applyContrast(-0.1, 1.5))
}

func TestHSLWeightsPartitionOfUnity(t *testing.T) {
	for h := 0.0; h < 360; h += 7.5 {
		lo, hi, w := hslWeights(h)
		if lo < 0 || lo >= HSLBands || hi < 0 || hi >= HSLBands {
			t.Fatalf("hue %v: bands %d, %d", h, lo, hi)
		}
		if w < 0 || w > 1 {
			t.Fatalf("hue %v: weight %v", h, w)
		}
	}
	lo, _, w := hslWeights(240)
	assert.Equal(t, 5, lo)
	assert.Equal(t, float32(0), w)

	lo, hi, w := hslWeights(330)
	assert.Equal(t, 7, lo)
	assert.Equal(t, 0, hi)
	assert.InDelta(t, 0.5, w, 1e-6)
}

func TestApplyHSLLeavesGrayAlone(t *testing.T) {
	var adj [3][HSLBands]float32
	for i := range adj {
		for b := range adj[i] {
			adj[i][b] = 1
		}
	}
	gray := rgb{0.4, 0.4, 0.4}
	assert.Equal(t, gray, applyHSL(&adj, gray))
}

func TestApplyHSLDesaturatesBand(t *testing.T) {
	var adj [3][HSLBands]float32
	adj[1][5] = -1 // Blue saturation -100

	got := applyHSL(&adj, rgb{0.1, 0.1, 0.9})
	assert.InDelta(t, got.r, got.b, 1e-5)
	assert.InDelta(t, got.g, got.b, 1e-5)

	red := rgb{0.9, 0.1, 0.1}
	got = applyHSL(&adj, red)
	assert.InDelta(t, red.r, got.r, 1e-4)
}

func TestApplyCurvesFlatRGB(t *testing.T) {
	var luts [4][]float32
	luts[0] = BakeCurve([]CurvePoint{{0, 0.5}, {1, 0.5}}, DefaultLUTSize)

	got := applyCurves([4]bool{true}, &luts, rgb{0.01, 0.5, 1})
	want := srgbInvOetf(0.5)
	assert.InDelta(t, want, got.r, 1e-5)
	assert.InDelta(t, want, got.g, 1e-5)
	assert.InDelta(t, want, got.b, 1e-5)
}

func TestGaussianKernel(t *testing.T) {
	assert.Equal(t, []float32{1}, gaussianKernel(0))

	k := gaussianKernel(2)
	assert.Len(t, k, 13)
	var sum float32
	for i, v := range k {
		sum += v
		assert.InDelta(t, v, k[len(k)-1-i], 1e-7)
	}
	assert.InDelta(t, 1, sum, 1e-5)
	assert.Greater(t, k[6], k[5])
}

func TestSRGBRoundTrip(t *testing.T) {
	assert.InDelta(t, 0.735, srgbOetf(0.5), 1e-3)
	for _, v := range []float32{0, 0.001, 0.18, 0.5, 1} {
		assert.InDelta(t, v, srgbInvOetf(srgbOetf(v)), 1e-5)
	}
}

func TestWhiteBalanceGain(t *testing.T) {
	g, active := whiteBalanceGain(ReferenceTemperature, 0)
	assert.False(t, active)
	assert.Equal(t, rgb{1, 1, 1}, g)

	warm, active := whiteBalanceGain(8000, 0)
	assert.True(t, active)
	assert.Greater(t, warm.r, warm.b)
	assert.InDelta(t, 1, luminance(warm.r, warm.g, warm.b), 1e-5)

	cool, _ := whiteBalanceGain(3000, 0)
	assert.Greater(t, cool.b, cool.r)

	magenta, _ := whiteBalanceGain(ReferenceTemperature, 100)
	assert.Less(t, magenta.g, magenta.r)
}

func TestEstimateColorTemperature(t *testing.T) {
	assert.Equal(t, 6000, EstimateColorTemperature(WhiteBalance{R: 2, G: 2, B: 1.5}))
	assert.Equal(t, 8000, EstimateColorTemperature(WhiteBalance{R: 2, G: 1, B: 1.5}))
	assert.Equal(t, ReferenceTemperature, EstimateColorTemperature(WhiteBalance{}))
}
