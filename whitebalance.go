package fiatlux

import "math"

// ReferenceTemperature is the white point at which the temperature slider is neutral.
const ReferenceTemperature = 5500

// WhiteBalance holds per-channel camera multipliers as reported by the converter.
type WhiteBalance struct {
	R, G, B float64
}

// EstimateColorTemperature derives an approximate scene temperature in kelvin
// from camera multipliers. Unknown multipliers yield ReferenceTemperature.
func EstimateColorTemperature(wb WhiteBalance) int {
	if wb.G <= 0 || wb.R <= 0 || math.IsNaN(wb.R) || math.IsNaN(wb.G) {
		return ReferenceTemperature
	}
	return int(math.Round(4000 + wb.R/wb.G*2000))
}

// planckianXY approximates the chromaticity of a black body at kelvin
// (Kim et al. cubic spline, valid 1667 K to 25000 K).
func planckianXY(kelvin float64) (float64, float64) {
	t := math.Max(1667, math.Min(25000, kelvin))
	t2, t3 := t*t, t*t*t
	var x float64
	if t <= 4000 {
		x = -0.2661239e9/t3 - 0.2343589e6/t2 + 0.8776956e3/t + 0.179910
	} else {
		x = -3.0258469e9/t3 + 2.1070379e6/t2 + 0.2226347e3/t + 0.240390
	}
	x2, x3 := x*x, x*x*x
	var y float64
	switch {
	case t <= 2222:
		y = -1.1063814*x3 - 1.34811020*x2 + 2.18555832*x - 0.20219683
	case t <= 4000:
		y = -0.9549476*x3 - 1.37418593*x2 + 2.09137015*x - 0.16748867
	default:
		y = 3.0817580*x3 - 5.87338670*x2 + 3.75112997*x - 0.37001483
	}
	return x, y
}

// illuminantRGB returns the linear sRGB color of a black body at kelvin, Y = 1.
func illuminantRGB(kelvin float64) rgb {
	x, y := planckianXY(kelvin)
	return mulMat3(xyzToRGB[colorGamutSRGB], rgb{float32(x / y), 1, float32((1 - x - y) / y)})
}

// whiteBalanceGain converts temperature and tint sliders into per-channel gains.
// The slider value is the assumed scene illuminant: higher values warm the image.
// Positive tint removes green. Gains keep luminance constant.
func whiteBalanceGain(temperature, tint float64) (rgb, bool) {
	if temperature == ReferenceTemperature && tint == 0 {
		return rgb{1, 1, 1}, false
	}
	ref := illuminantRGB(ReferenceTemperature)
	cur := illuminantRGB(temperature)
	m := rgb{
		r: ref.r / max(cur.r, 1e-4),
		g: ref.g / max(cur.g, 1e-4),
		b: ref.b / max(cur.b, 1e-4),
	}
	m.g *= float32(1 - tint/150*0.3)
	if l := luminance(m.r, m.g, m.b); l > 0 {
		m.r /= l
		m.g /= l
		m.b /= l
	}
	return m, true
}
