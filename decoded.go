package fiatlux

import (
	"image"

	"github.com/anthonynsimon/bild/clone"

	"github.com/vearutop/fiatlux/internal/parallel"
)

// DecodedImage is a linear-light RGB image with samples in [0,1].
type DecodedImage struct {
	Width  int
	Height int
	// Pix holds interleaved RGB, Width*Height*3 samples.
	Pix []float32

	// WhiteBalance holds the camera multipliers, zero when unknown.
	WhiteBalance WhiteBalance
	// ColorTemperature is the estimated scene temperature in kelvin.
	ColorTemperature int

	// Scale is the resolution relative to the full sensor resolution (1 or 0.5).
	Scale float64
	// FromPreview marks images decoded from an embedded display-referred JPEG.
	FromPreview bool
	// Strategy names the decode strategy that produced the image.
	Strategy string
}

// Pixels returns Width*Height.
func (d *DecodedImage) Pixels() int { return d.Width * d.Height }

// Downsample returns a copy reduced by factor in each dimension.
func (d *DecodedImage) Downsample(factor int) *DecodedImage {
	if factor <= 1 {
		return d
	}
	w, h := max(1, d.Width/factor), max(1, d.Height/factor)
	out := *d
	out.Width, out.Height = w, h
	out.Pix = resampleRGB(parallel.Default(), d.Pix, d.Width, d.Height, w, h)
	scale := d.Scale
	if scale <= 0 {
		scale = 1
	}
	out.Scale = scale / float64(factor)
	return &out
}

// linearFromImage converts a display-referred image to linear sRGB primaries
// using the given color profile.
func linearFromImage(img image.Image, profile colorProfile) *DecodedImage {
	rgba := clone.AsRGBA(img)
	b := rgba.Bounds()
	w, h := b.Dx(), b.Dy()

	var lut [256]float32
	for i := range lut {
		lut[i] = profile.toLinear(float32(i) / 255)
	}

	toSRGB := gamutMatrix(profile.gamut, colorGamutSRGB)

	out := &DecodedImage{Width: w, Height: h, Pix: make([]float32, w*h*3), Scale: 1}
	parallel.Default().For(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < w; x++ {
				c := rgb{lut[row[x*4]], lut[row[x*4+1]], lut[row[x*4+2]]}
				if profile.gamut != colorGamutSRGB {
					c = nonNegative(mulMat3(toSRGB, c))
				}
				i := (y*w + x) * 3
				out.Pix[i] = clamp01(c.r)
				out.Pix[i+1] = clamp01(c.g)
				out.Pix[i+2] = clamp01(c.b)
			}
		}
	})
	return out
}
