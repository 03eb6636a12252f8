package fiatlux

import (
	"bytes"
	"math"

	"golang.org/x/image/math/f64"
)

type rgb struct {
	r, g, b float32
}

type colorGamut int

type colorTransfer int

const (
	colorGamutSRGB colorGamut = iota
	colorGamutDisplayP3
	colorGamutAdobeRGB
)

const (
	colorTransferSRGB colorTransfer = iota
	colorTransferGamma22
)

type colorProfile struct {
	gamut    colorGamut
	transfer colorTransfer
}

func (p colorProfile) String() string {
	switch p.gamut {
	case colorGamutDisplayP3:
		return "display-p3"
	case colorGamutAdobeRGB:
		return "adobe-rgb"
	}
	return "srgb"
}

// toLinear decodes a display-encoded component.
func (p colorProfile) toLinear(v float32) float32 {
	if p.transfer == colorTransferGamma22 {
		return float32(math.Pow(float64(max(v, 0)), 563.0/256.0))
	}
	return srgbInvOetf(v)
}

func detectColorProfileFromICCProfile(profile []byte) colorProfile {
	if len(profile) == 0 {
		return colorProfile{gamut: colorGamutSRGB, transfer: colorTransferSRGB}
	}
	lower := bytes.ToLower(profile)
	// Description tags are enough for camera previews.
	if bytes.Contains(lower, []byte("display p3")) || bytes.Contains(lower, []byte("dci-p3")) {
		return colorProfile{gamut: colorGamutDisplayP3, transfer: colorTransferSRGB}
	}
	if bytes.Contains(lower, []byte("adobe rgb")) || bytes.Contains(lower, []byte("adobergb")) {
		return colorProfile{gamut: colorGamutAdobeRGB, transfer: colorTransferGamma22}
	}
	return colorProfile{gamut: colorGamutSRGB, transfer: colorTransferSRGB}
}

// rgbToXYZ and xyzToRGB are indexed by colorGamut; all primaries are D65.
var (
	rgbToXYZ = [...]f64.Mat3{
		colorGamutSRGB: {
			0.4123908, 0.35758433, 0.1804808,
			0.212639, 0.71516865, 0.07219232,
			0.019330818, 0.11919478, 0.95053214,
		},
		colorGamutDisplayP3: {
			0.48657095, 0.2656677, 0.19821729,
			0.22897457, 0.69173855, 0.07928691,
			0, 0.04511338, 1.0439444,
		},
		colorGamutAdobeRGB: {
			0.5767309, 0.185554, 0.1881852,
			0.2973769, 0.6273491, 0.0752741,
			0.0270343, 0.0706872, 0.9911085,
		},
	}
	xyzToRGB = [...]f64.Mat3{
		colorGamutSRGB: {
			3.24097, -1.5373832, -0.49861076,
			-0.96924365, 1.8759675, 0.041555058,
			0.05563008, -0.20397696, 1.0569715,
		},
		colorGamutDisplayP3: {
			2.493497, -0.9313836, -0.4027108,
			-0.829489, 1.7626641, 0.023624685,
			0.03584583, -0.07617239, 0.9568845,
		},
		colorGamutAdobeRGB: {
			2.041369, -0.5649464, -0.3446944,
			-0.969266, 1.8760108, 0.041556,
			0.0134474, -0.1183897, 1.0154096,
		},
	}
)

func mulMat3(m f64.Mat3, v rgb) rgb {
	r, g, b := float64(v.r), float64(v.g), float64(v.b)
	return rgb{
		float32(m[0]*r + m[1]*g + m[2]*b),
		float32(m[3]*r + m[4]*g + m[5]*b),
		float32(m[6]*r + m[7]*g + m[8]*b),
	}
}

// gamutMatrix maps linear RGB in from to linear RGB in to.
func gamutMatrix(from, to colorGamut) f64.Mat3 {
	a, b := xyzToRGB[to], rgbToXYZ[from]
	var m f64.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i*3+j] = a[i*3]*b[j] + a[i*3+1]*b[3+j] + a[i*3+2]*b[6+j]
		}
	}
	return m
}

func exp2f(v float32) float32 { return float32(math.Exp2(float64(v))) }

func srgbInvOetf(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow(float64((v+0.055)/1.055), 2.4))
}

func srgbOetf(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*float32(math.Pow(float64(v), 1.0/2.4)) - 0.055
}

// Rec. 709 luminance weights.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

func luminance(r, g, b float32) float32 { return lumaR*r + lumaG*g + lumaB*b }

func clamp01(v float32) float32 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func smoothstep(e0, e1, x float32) float32 {
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

func mix(a, b, t float32) float32 { return a + (b-a)*t }

// encode8 converts a linear component to an 8-bit sRGB value.
func encode8(v float32) uint8 {
	return uint8(clamp01(srgbOetf(clamp01(v)))*255 + 0.5)
}
