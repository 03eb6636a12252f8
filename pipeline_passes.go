package fiatlux

import (
	"fmt"
	"math"
)

// neutral is the magnitude below which a slider counts as untouched.
const neutral = 0.01

// minSharpenAmount is the smallest sharpening amount that runs the pass.
const minSharpenAmount = 1

// frame is one execution of the pass chain over an arena of targets.
type frame struct {
	p       *Pipeline
	img     *DecodedImage
	src     Texture
	targets [slotCount]Texture
	output  Texture
	scratch bool

	cur int
	log []PassKind
}

func (f *frame) tex(slot int) Texture {
	if slot == sourceSlot {
		return f.src
	}
	return f.targets[slot]
}

// next returns the general target that is not currently holding the image.
func (f *frame) next() int {
	if f.cur == targetA {
		return targetB
	}
	return targetA
}

// draw runs one pass, refusing to write a slot it also reads.
func (f *frame) draw(kind PassKind, u *Uniforms, src, aux, dst int) error {
	if dst == src || dst == aux {
		return fmt.Errorf("%s pass: %w", kind, ErrTargetAliasing)
	}
	in := Inputs{Source: f.tex(src), Curves: f.p.curves}
	if aux != sourceSlot {
		in.Aux = f.tex(aux)
	}
	if err := f.p.dev.Draw(f.p.programs[kind], u, in, f.tex(dst)); err != nil {
		return fmt.Errorf("%s pass: %w", kind, err)
	}
	f.log = append(f.log, kind)
	return nil
}

// step runs a single-input pass from the current slot into the other general target.
func (f *frame) step(kind PassKind, u *Uniforms) error {
	dst := f.next()
	if err := f.draw(kind, u, f.cur, sourceSlot, dst); err != nil {
		return err
	}
	f.cur = dst
	return nil
}

// blurBlend runs the horizontal blur leg into the temporary target, then the
// fused vertical leg of kind from (current, temp) into the other general target.
func (f *frame) blurBlend(kind PassKind, u *Uniforms, dark bool) error {
	h := *u
	h.BlurDark = dark
	if err := f.draw(PassBlurH, &h, f.cur, sourceSlot, targetTemp); err != nil {
		return err
	}
	dst := f.next()
	if err := f.draw(kind, u, f.cur, targetTemp, dst); err != nil {
		return err
	}
	f.cur = dst
	return nil
}

// run executes the ordered passes, skipping those at neutral values,
// and always finishes with the output pass.
func (f *frame) run(params EditParameters, opts RenderOptions) error {
	f.cur = sourceSlot
	f.log = f.log[:0]

	scale := f.img.Scale
	if scale <= 0 {
		scale = 1
	}
	shorter := float64(min(f.img.Width, f.img.Height))

	if u, ok := mainUniforms(params); ok {
		if err := f.step(PassMain, u); err != nil {
			return err
		}
	}

	if math.Abs(params.Dehaze) >= neutral {
		u := &Uniforms{Kernel: gaussianKernel(shorter * 0.03), Amount: float32(params.Dehaze / 100)}
		if err := f.blurBlend(PassDehaze, u, true); err != nil {
			return err
		}
	}

	if math.Abs(params.Clarity) >= neutral {
		u := &Uniforms{Kernel: gaussianKernel(shorter * 0.02), Amount: float32(params.Clarity / 100), Midtones: true}
		if err := f.blurBlend(PassLocalContrast, u, false); err != nil {
			return err
		}
	}
	if math.Abs(params.Texture) >= neutral {
		u := &Uniforms{Kernel: gaussianKernel(math.Max(3*scale, 0.5)), Amount: float32(params.Texture / 100 * 0.8)}
		if err := f.blurBlend(PassLocalContrast, u, false); err != nil {
			return err
		}
	}

	if sh := params.Sharpening; sh.Amount >= minSharpenAmount {
		u := &Uniforms{
			Kernel: gaussianKernel(math.Max(sh.Radius*scale, 0.5)),
			Amount: float32(sh.Amount / 100),
			Detail: float32(sh.Detail / 100),
		}
		if err := f.blurBlend(PassSharpen, u, false); err != nil {
			return err
		}
	}

	if nr := params.NoiseReduction; nr.Luminance >= neutral || nr.Color >= neutral {
		strength := math.Max(nr.Luminance, nr.Color) / 100
		u := &Uniforms{
			Kernel:      gaussianKernel(math.Max((0.5+2.5*strength)*scale, 0.5)),
			NoiseLuma:   float32(nr.Luminance / 100),
			NoiseChroma: float32(nr.Color / 100),
		}
		if err := f.blurBlend(PassDenoise, u, false); err != nil {
			return err
		}
	}

	frameRect, rotation := cropFrame(params.Crop, f.img.Width, f.img.Height, opts.CropEditing)

	if !opts.CropEditing && math.Abs(params.Vignette.Amount) >= neutral {
		u := &Uniforms{Vignette: params.Vignette, Frame: frameRect, Rotation: rotation}
		if err := f.step(PassVignette, u); err != nil {
			return err
		}
	}

	ow, oh := max(1, int(math.Round(float64(frameRect.w)))), max(1, int(math.Round(float64(frameRect.h))))
	out, err := f.outputTarget(ow, oh)
	if err != nil {
		return err
	}
	u := &Uniforms{Frame: frameRect, Rotation: rotation}
	if err := f.p.dev.Draw(f.p.programs[PassOutput], u, Inputs{Source: f.tex(f.cur)}, out); err != nil {
		return fmt.Errorf("%s pass: %w", PassOutput, err)
	}
	f.log = append(f.log, PassOutput)
	Logger().Debug("frame rendered", "passes", len(f.log), "width", ow, "height", oh)
	return nil
}

// outputTarget returns a target of the output size, reusing the pipeline's
// cached one for the installed source.
func (f *frame) outputTarget(w, h int) (Texture, error) {
	if !f.scratch && f.p.output != nil {
		if ow, oh := f.p.output.Size(); ow == w && oh == h {
			f.output = f.p.output
			return f.output, nil
		}
		f.p.dev.Release(f.p.output)
		f.p.output = nil
	}
	t, err := f.p.dev.NewTarget(w, h)
	if err != nil {
		return nil, fmt.Errorf("output target: %w", err)
	}
	f.output = t
	if !f.scratch {
		f.p.output = t
	}
	return t, nil
}

// release frees scratch resources.
func (f *frame) release() {
	if !f.scratch {
		return
	}
	for i, t := range f.targets {
		if t != nil {
			f.p.dev.Release(t)
			f.targets[i] = nil
		}
	}
	if f.output != nil {
		f.p.dev.Release(f.output)
		f.output = nil
	}
	if f.src != nil {
		f.p.dev.Release(f.src)
		f.src = nil
	}
}

// cropFrame converts a normalized crop to source pixels. Crop editing and a
// nil crop select the whole image.
func cropFrame(c *Crop, w, h int, editing bool) (rect, float32) {
	if c == nil || editing {
		return rect{0, 0, float32(w), float32(h)}, 0
	}
	r := rect{
		x: float32(c.X * float64(w)),
		y: float32(c.Y * float64(h)),
		w: float32(c.Width * float64(w)),
		h: float32(c.Height * float64(h)),
	}
	return r, float32(c.Rotation * math.Pi / 180)
}

// mainUniforms prepares the main pass; ok is false when every adjustment is neutral.
func mainUniforms(p EditParameters) (*Uniforms, bool) {
	u := &Uniforms{ExposureGain: 1, ContrastPower: 1}
	active := false

	if gain, ok := whiteBalanceGain(p.WhiteBalance, p.Tint); ok {
		u.WhiteBalance, u.ApplyWB = gain, true
		active = true
	}
	if math.Abs(p.Exposure) >= neutral/100 {
		u.ExposureGain = float32(math.Exp2(p.Exposure))
		active = true
	}
	if math.Abs(p.Contrast) >= neutral {
		u.ContrastPower = float32(math.Exp2(p.Contrast / 100))
		active = true
	}
	u.Tone = [4]float32{float32(p.Highlights / 100), float32(p.Shadows / 100), float32(p.Whites / 100), float32(p.Blacks / 100)}
	for _, v := range u.Tone {
		if math.Abs(float64(v)) >= neutral/100 {
			u.ApplyTone = true
		}
	}
	for b := 0; b < HSLBands; b++ {
		u.HSL[0][b] = float32(p.HSL.Hue[b] / 100)
		u.HSL[1][b] = float32(p.HSL.Saturation[b] / 100)
		u.HSL[2][b] = float32(p.HSL.Luminance[b] / 100)
		if p.HSL.Hue[b] != 0 || p.HSL.Saturation[b] != 0 || p.HSL.Luminance[b] != 0 {
			u.ApplyHSL = true
		}
	}
	g := p.ColorGrading
	for i, z := range []GradingZoneValues{g.Shadows, g.Midtones, g.Highlights, g.Global} {
		u.Grading[i] = newGradingTint(z)
		u.ApplyGrading = u.ApplyGrading || u.Grading[i].active
	}
	if math.Abs(p.Vibrance) >= neutral || math.Abs(p.Saturation) >= neutral {
		u.Vibrance = float32(p.Vibrance / 100)
		u.Saturation = float32(p.Saturation / 100)
		u.ApplySaturation = true
	}
	tc := p.ToneCurve
	for i, pts := range [][]CurvePoint{tc.RGB, tc.Red, tc.Green, tc.Blue} {
		u.ApplyCurves[i] = !isIdentityCurve(pts)
	}

	active = active || u.ApplyTone || u.ApplyHSL || u.ApplyGrading || u.ApplySaturation || u.ApplyCurves != [4]bool{}
	return u, active
}
