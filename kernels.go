package fiatlux

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

type kernelInputs struct {
	src    *softTexture
	aux    *softTexture
	curves [4][]float32
}

// kernelFunc shades rows [y0, y1) of dst.
type kernelFunc func(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int)

var kernels = [passKindCount]kernelFunc{
	PassMain:          mainKernel,
	PassBlurH:         blurHKernel,
	PassDehaze:        dehazeKernel,
	PassLocalContrast: localContrastKernel,
	PassSharpen:       sharpenKernel,
	PassDenoise:       denoiseKernel,
	PassVignette:      vignetteKernel,
	PassOutput:        outputKernel,
}

func (t *softTexture) at(x, y int) rgb {
	i := (y*t.w + x) * 3
	return rgb{t.pix[i], t.pix[i+1], t.pix[i+2]}
}

func (t *softTexture) set(x, y int, c rgb) {
	i := (y*t.w + x) * 3
	t.pix[i] = c.r
	t.pix[i+1] = c.g
	t.pix[i+2] = c.b
}

func nonNegative(c rgb) rgb {
	return rgb{max(c.r, 0), max(c.g, 0), max(c.b, 0)}
}

func mainKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			dst.set(x, y, shadePixel(u, &in.curves, in.src.at(x, y)))
		}
	}
}

// shadePixel applies the main adjustments to one linear pixel.
func shadePixel(u *Uniforms, curves *[4][]float32, c rgb) rgb {
	if u.ApplyWB {
		c = rgb{c.r * u.WhiteBalance.r, c.g * u.WhiteBalance.g, c.b * u.WhiteBalance.b}
	}
	if u.ExposureGain != 1 {
		c = rgb{c.r * u.ExposureGain, c.g * u.ExposureGain, c.b * u.ExposureGain}
	}
	if u.ContrastPower != 1 {
		c = rgb{applyContrast(c.r, u.ContrastPower), applyContrast(c.g, u.ContrastPower), applyContrast(c.b, u.ContrastPower)}
	}
	if u.ApplyTone {
		c = applyToneRegions(u.Tone, c)
	}
	if u.ApplyHSL || u.ApplyGrading {
		e := rgb{srgbOetf(clamp01(c.r)), srgbOetf(clamp01(c.g)), srgbOetf(clamp01(c.b))}
		if u.ApplyHSL {
			e = applyHSL(&u.HSL, e)
		}
		if u.ApplyGrading {
			e = applyGrading(&u.Grading, e)
		}
		c = rgb{srgbInvOetf(clamp01(e.r)), srgbInvOetf(clamp01(e.g)), srgbInvOetf(clamp01(e.b))}
	}
	if u.ApplySaturation {
		c = applySaturation(u.Vibrance, u.Saturation, c)
	}
	if u.ApplyCurves != [4]bool{} {
		c = applyCurves(u.ApplyCurves, curves, c)
	}
	return c
}

// contrastPivot is middle gray in linear light.
const contrastPivot = 0.18

func applyContrast(v, power float32) float32 {
	if v <= 0 {
		return 0
	}
	return contrastPivot * float32(math.Pow(float64(v/contrastPivot), float64(power)))
}

// applyToneRegions scales the pixel by an EV offset built from smooth
// luminance masks evaluated in the display-encoded domain.
func applyToneRegions(tone [4]float32, c rgb) rgb {
	l := srgbOetf(clamp01(luminance(c.r, c.g, c.b)))
	highlights := smoothstep(0.5, 1, l)
	shadows := 1 - smoothstep(0, 0.5, l)
	whites := smoothstep(0.75, 1, l)
	blacks := 1 - smoothstep(0, 0.25, l)
	ev := tone[0]*highlights + tone[1]*shadows + 0.75*(tone[2]*whites+tone[3]*blacks)
	if ev == 0 {
		return c
	}
	g := exp2f(ev)
	return rgb{c.r * g, c.g * g, c.b * g}
}

// hslCenters are the band centers in degrees; band i spans to the next center.
var hslCenters = [HSLBands + 1]float64{0, 30, 60, 120, 180, 240, 270, 300, 360}

// hslWeights splits hue h between the two nearest bands.
func hslWeights(h float64) (lo, hi int, t float32) {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	for i := 0; i < HSLBands; i++ {
		if h < hslCenters[i+1] {
			return i, (i + 1) % HSLBands, float32((h - hslCenters[i]) / (hslCenters[i+1] - hslCenters[i]))
		}
	}
	return 0, 1, 0
}

// applyHSL shifts hue by up to 30 degrees, scales saturation and moves
// lightness of colored pixels, per hue band.
func applyHSL(adj *[3][HSLBands]float32, e rgb) rgb {
	col := colorful.Color{R: float64(e.r), G: float64(e.g), B: float64(e.b)}
	h, s, l := col.Hsl()
	if s == 0 {
		return e
	}
	lo, hi, t := hslWeights(h)
	band := func(row int) float64 {
		return float64(mix(adj[row][lo], adj[row][hi], t))
	}
	h += band(0) * 30
	s = math.Max(0, math.Min(1, s*(1+band(1))))
	l = math.Max(0, math.Min(1, l+band(2)*0.25*s))
	h = math.Mod(h+360, 360)
	out := colorful.Hsl(h, s, l)
	return rgb{float32(out.R), float32(out.G), float32(out.B)}
}

// newGradingTint precomputes the color offset of a grading zone.
func newGradingTint(z GradingZoneValues) gradingTint {
	if z.Saturation == 0 && z.Luminance == 0 {
		return gradingTint{}
	}
	tint := colorful.Hsl(math.Mod(z.Hue, 360), 1, 0.5)
	tl := luminance(float32(tint.R), float32(tint.G), float32(tint.B))
	k := float32(z.Saturation / 100 * 0.25)
	return gradingTint{
		offset: rgb{(float32(tint.R) - tl) * k, (float32(tint.G) - tl) * k, (float32(tint.B) - tl) * k},
		gain:   float32(z.Luminance / 100 * 0.5),
		active: true,
	}
}

func applyGrading(zones *[4]gradingTint, e rgb) rgb {
	l := luminance(e.r, e.g, e.b)
	shadows := 1 - smoothstep(0, 0.5, l)
	highlights := smoothstep(0.5, 1, l)
	weights := [4]float32{shadows, 1 - shadows - highlights, highlights, 1}
	for i, z := range zones {
		w := weights[i]
		if !z.active || w <= 0 {
			continue
		}
		e.r += z.offset.r * w
		e.g += z.offset.g * w
		e.b += z.offset.b * w
		if z.gain != 0 {
			g := exp2f(z.gain * w)
			e = rgb{e.r * g, e.g * g, e.b * g}
		}
	}
	return e
}

// applySaturation applies vibrance (weighted toward muted colors) then
// saturation as a blend with luminance. Saturation -1 yields exact gray.
func applySaturation(vibrance, saturation float32, c rgb) rgb {
	l := luminance(c.r, c.g, c.b)
	if vibrance != 0 {
		mx := max(c.r, c.g, c.b)
		mn := min(c.r, c.g, c.b)
		var sat float32
		if mx > 0 {
			sat = (mx - mn) / mx
		}
		f := 1 + vibrance*(1-sat)
		c = rgb{l + (c.r-l)*f, l + (c.g-l)*f, l + (c.b-l)*f}
	}
	if saturation != 0 {
		f := 1 + saturation
		if f == 0 {
			return rgb{max(l, 0), max(l, 0), max(l, 0)}
		}
		c = rgb{l + (c.r-l)*f, l + (c.g-l)*f, l + (c.b-l)*f}
	}
	return nonNegative(c)
}

// applyCurves evaluates per-channel curves, then the RGB curve, in the
// display-encoded domain.
func applyCurves(active [4]bool, luts *[4][]float32, c rgb) rgb {
	e := rgb{srgbOetf(clamp01(c.r)), srgbOetf(clamp01(c.g)), srgbOetf(clamp01(c.b))}
	if active[1] {
		e.r = lookupLUT(luts[1], e.r)
	}
	if active[2] {
		e.g = lookupLUT(luts[2], e.g)
	}
	if active[3] {
		e.b = lookupLUT(luts[3], e.b)
	}
	if active[0] {
		e = rgb{lookupLUT(luts[0], e.r), lookupLUT(luts[0], e.g), lookupLUT(luts[0], e.b)}
	}
	return rgb{srgbInvOetf(e.r), srgbInvOetf(e.g), srgbInvOetf(e.b)}
}

func blurHKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	k := u.Kernel
	r := len(k) / 2
	src := in.src
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			var acc rgb
			for i, w := range k {
				sx := min(max(x+i-r, 0), src.w-1)
				c := src.at(sx, y)
				if u.BlurDark {
					d := min(c.r, c.g, c.b) * w
					acc.r += d
					continue
				}
				acc.r += c.r * w
				acc.g += c.g * w
				acc.b += c.b * w
			}
			if u.BlurDark {
				acc.g, acc.b = acc.r, acc.r
			}
			dst.set(x, y, acc)
		}
	}
}

// blurV completes a separable blur at (x, y) from the horizontal leg in aux.
func blurV(k []float32, aux *softTexture, x, y int) rgb {
	r := len(k) / 2
	var acc rgb
	for i, w := range k {
		sy := min(max(y+i-r, 0), aux.h-1)
		c := aux.at(x, sy)
		acc.r += c.r * w
		acc.g += c.g * w
		acc.b += c.b * w
	}
	return acc
}

// dehazeKernel removes (or adds) a veil estimated from the blurred dark channel.
func dehazeKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	const airlight = 1
	a := u.Amount
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			c := in.src.at(x, y)
			haze := clamp01(blurV(u.Kernel, in.aux, x, y).r)
			if a > 0 {
				t := max(1-a*0.6*haze, 0.1)
				c = rgb{(c.r-airlight)/t + airlight, (c.g-airlight)/t + airlight, (c.b-airlight)/t + airlight}
			} else {
				t := 1 + a*0.5
				c = rgb{mix(0.8, c.r, t), mix(0.8, c.g, t), mix(0.8, c.b, t)}
			}
			dst.set(x, y, nonNegative(c))
		}
	}
}

// localContrastKernel adds back detail (current minus blurred), restricted to
// midtones for clarity.
func localContrastKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			c := in.src.at(x, y)
			b := blurV(u.Kernel, in.aux, x, y)
			k := u.Amount
			if u.Midtones {
				l := 2*srgbOetf(clamp01(luminance(c.r, c.g, c.b))) - 1
				k *= 1 - l*l
			}
			dst.set(x, y, nonNegative(rgb{c.r + (c.r-b.r)*k, c.g + (c.g-b.g)*k, c.b + (c.b-b.b)*k}))
		}
	}
}

// sharpenKernel is an unsharp mask; Detail near 1 sharpens everything,
// lower values suppress small differences.
func sharpenKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	threshold := (1 - u.Detail) * 0.02
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			c := in.src.at(x, y)
			b := blurV(u.Kernel, in.aux, x, y)
			d := rgb{c.r - b.r, c.g - b.g, c.b - b.b}
			gate := float32(1)
			if threshold > 0 {
				mag := luminance(d.r, d.g, d.b)
				if mag < 0 {
					mag = -mag
				}
				gate = smoothstep(threshold*0.5, threshold*1.5, mag)
			}
			k := u.Amount * gate
			dst.set(x, y, nonNegative(rgb{c.r + d.r*k, c.g + d.g*k, c.b + d.b*k}))
		}
	}
}

// denoiseKernel blends luminance and chroma toward the blurred image separately.
func denoiseKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			c := in.src.at(x, y)
			b := blurV(u.Kernel, in.aux, x, y)
			lc := luminance(c.r, c.g, c.b)
			lb := luminance(b.r, b.g, b.b)
			l := mix(lc, lb, u.NoiseLuma)
			out := rgb{
				l + mix(c.r-lc, b.r-lb, u.NoiseChroma),
				l + mix(c.g-lc, b.g-lb, u.NoiseChroma),
				l + mix(c.b-lc, b.b-lb, u.NoiseChroma),
			}
			dst.set(x, y, nonNegative(out))
		}
	}
}

// vignetteFactor returns the vignette mask in [0,1] at source pixel (px, py).
func vignetteFactor(u *Uniforms, px, py, cos, sin float32) float32 {
	f := u.Frame
	hw, hh := f.w/2, f.h/2
	dx, dy := px-(f.x+hw), py-(f.y+hh)
	if u.Rotation != 0 {
		dx, dy = dx*cos+dy*sin, -dx*sin+dy*cos
	}
	v := u.Vignette
	round := float32(v.Roundness / 100)
	nx, ny := dx/hw, dy/hh
	if round > 0 {
		r := float32(math.Sqrt(float64(hw * hh)))
		nx, ny = mix(nx, dx/r, round), mix(ny, dy/r, round)
	}
	n := float64(2 + max(0, -round)*6)
	d := float32(math.Pow(math.Pow(math.Abs(float64(nx)), n)+math.Pow(math.Abs(float64(ny)), n), 1/n))
	inner := 0.2 + float32(v.Midpoint/100)
	width := 0.05 + float32(v.Feather/100)
	return smoothstep(inner, inner+width, d)
}

func vignetteKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	a := float32(u.Vignette.Amount / 100)
	sin, cos := math.Sincos(float64(u.Rotation))
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			c := in.src.at(x, y)
			t := vignetteFactor(u, float32(x)+0.5, float32(y)+0.5, float32(cos), float32(sin))
			if a < 0 {
				k := 1 + a*t
				c = rgb{c.r * k, c.g * k, c.b * k}
			} else {
				k := a * t
				c = rgb{lighten(c.r, k), lighten(c.g, k), lighten(c.b, k)}
			}
			dst.set(x, y, c)
		}
	}
}

func lighten(v, k float32) float32 {
	if v >= 1 {
		return v
	}
	return mix(v, 1, k)
}

// sampleBilinear reads src at continuous pixel coordinates with clamp-to-edge.
func sampleBilinear(src *softTexture, fx, fy float32) rgb {
	fx = min(max(fx, 0), float32(src.w-1))
	fy = min(max(fy, 0), float32(src.h-1))
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, src.w-1), min(y0+1, src.h-1)
	tx, ty := fx-float32(x0), fy-float32(y0)
	if tx == 0 && ty == 0 {
		return src.at(x0, y0)
	}
	a, b := src.at(x0, y0), src.at(x1, y0)
	c, d := src.at(x0, y1), src.at(x1, y1)
	return rgb{
		mix(mix(a.r, b.r, tx), mix(c.r, d.r, tx), ty),
		mix(mix(a.g, b.g, tx), mix(c.g, d.g, tx), ty),
		mix(mix(a.b, b.b, tx), mix(c.b, d.b, tx), ty),
	}
}

// outputKernel maps each output pixel into the (rotated) frame of the source
// and writes display-encoded values.
func outputKernel(u *Uniforms, in *kernelInputs, dst *softTexture, y0, y1 int) {
	f := u.Frame
	cx, cy := f.x+f.w/2, f.y+f.h/2
	sin, cos := math.Sincos(float64(u.Rotation))
	s, co := float32(sin), float32(cos)
	ow, oh := float32(dst.w)/2, float32(dst.h)/2
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.w; x++ {
			ox, oy := float32(x)+0.5-ow, float32(y)+0.5-oh
			sx, sy := cx+ox, cy+oy
			if u.Rotation != 0 {
				sx, sy = cx+ox*co-oy*s, cy+ox*s+oy*co
			}
			c := sampleBilinear(in.src, sx-0.5, sy-0.5)
			dst.set(x, y, rgb{srgbOetf(clamp01(c.r)), srgbOetf(clamp01(c.g)), srgbOetf(clamp01(c.b))})
		}
	}
}
