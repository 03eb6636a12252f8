package fiatlux

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"slices"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Tier selects the resolution RenderToBuffer works at.
type Tier int

const (
	// TierCurrent renders the installed source as is.
	TierCurrent Tier = iota
	// TierHalf renders the installed source downsampled by two.
	TierHalf
)

// View positions the rendered frame on the display surface.
type View struct {
	// Zoom is relative to the fit-to-surface scale, 1 fits the whole frame.
	Zoom float64
	// PanX and PanY offset the frame in surface pixels.
	PanX, PanY float64
}

const (
	MinZoom = 0.1
	MaxZoom = 20
)

// Normalized returns the view with zoom clamped to [MinZoom, MaxZoom]; zero zoom means fit.
func (v View) Normalized() View {
	if v.Zoom == 0 || math.IsNaN(v.Zoom) {
		v.Zoom = 1
	}
	v.Zoom = math.Max(MinZoom, math.Min(MaxZoom, v.Zoom))
	return v
}

// RenderOptions alter what a render shows without changing the parameters.
type RenderOptions struct {
	// CropEditing renders the whole frame, ignoring the crop and the vignette.
	CropEditing bool
	// Original renders with default parameters.
	Original bool
}

// Arena slots. sourceSlot refers to the source texture.
const (
	sourceSlot = -1
	targetA    = 0
	targetB    = 1
	targetTemp = 2
	slotCount  = 3
)

// SurfaceBackground fills the display surface around the frame.
var SurfaceBackground = color.NRGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff}

// Pipeline owns the compiled programs, curve lookup tables, the source
// texture and a fixed arena of render targets. It is safe for concurrent
// use; renders are serialized.
type Pipeline struct {
	mu sync.Mutex

	dev      Device
	programs [passKindCount]Program
	curves   [4]Texture
	uploaded [4][]CurvePoint

	source  Texture
	srcImg  *DecodedImage
	targets [slotCount]Texture
	output  Texture

	lastViewport image.Rectangle
	passes       []PassKind
	closed       bool
}

// NewPipeline compiles every pass program and allocates the curve tables.
// A nil device selects the software device. Compile failures are fatal and
// release whatever was already created.
func NewPipeline(dev Device) (*Pipeline, error) {
	if dev == nil {
		dev = NewSoftwareDevice()
	}
	p := &Pipeline{dev: dev}
	for k := PassKind(0); k < passKindCount; k++ {
		prog, err := dev.CompileProgram(k)
		if err != nil {
			p.Close()
			var pe *ProgramError
			if !errors.As(err, &pe) {
				err = &ProgramError{Pass: k, Err: err}
			}
			return nil, fmt.Errorf("new pipeline: %w", err)
		}
		p.programs[k] = prog
	}
	identity := BakeCurve(nil, DefaultLUTSize)
	for i := range p.curves {
		lut, err := dev.NewLUT(DefaultLUTSize)
		if err == nil {
			err = dev.WriteLUT(lut, identity)
		}
		if err != nil {
			if lut != nil {
				dev.Release(lut)
			}
			p.Close()
			return nil, fmt.Errorf("new pipeline: curve table: %w", err)
		}
		p.curves[i] = lut
		p.uploaded[i] = DefaultCurve()
	}
	return p, nil
}

// SetSource installs img as the render source and reallocates the target
// arena at its size. The device takes ownership of img.Pix.
func (p *Pipeline) SetSource(img *DecodedImage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrReleased
	}
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return errors.New("set source: empty image")
	}
	p.releaseSourceLocked()

	src, err := p.dev.NewTexture(img.Width, img.Height, img.Pix)
	if err != nil {
		return fmt.Errorf("set source: %w", err)
	}
	p.source = src
	p.srcImg = img
	for i := range p.targets {
		t, err := p.dev.NewTarget(img.Width, img.Height)
		if err != nil {
			p.releaseSourceLocked()
			return fmt.Errorf("set source: target %d: %w", i, err)
		}
		p.targets[i] = t
	}
	Logger().Debug("source installed", "width", img.Width, "height", img.Height, "scale", img.Scale)
	return nil
}

func (p *Pipeline) releaseSourceLocked() {
	for i, t := range p.targets {
		if t != nil {
			p.dev.Release(t)
			p.targets[i] = nil
		}
	}
	if p.output != nil {
		p.dev.Release(p.output)
		p.output = nil
	}
	if p.source != nil {
		p.dev.Release(p.source)
		p.source = nil
	}
	p.srcImg = nil
}

// ImageDimensions returns the size of the installed source, zero without one.
func (p *Pipeline) ImageDimensions() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.srcImg == nil {
		return 0, 0
	}
	return p.srcImg.Width, p.srcImg.Height
}

// LastViewport returns the surface rectangle covered by the last Render.
func (p *Pipeline) LastViewport() image.Rectangle {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastViewport
}

// Passes returns the passes executed by the last render, in order.
func (p *Pipeline) Passes() []PassKind {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.passes)
}

// Render draws the frame onto surface according to view.
// Without a source it does nothing.
func (p *Pipeline) Render(params EditParameters, surface draw.Image, view View, opts RenderOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrReleased
	}
	if p.source == nil {
		return nil
	}
	frame, err := p.renderInstalledLocked(params, opts)
	if err != nil {
		return err
	}
	p.lastViewport = present(surface, frame, view.Normalized())
	return nil
}

// RenderToBuffer renders the installed source off-screen at the given tier.
func (p *Pipeline) RenderToBuffer(params EditParameters, tier Tier, opts RenderOptions) (*image.NRGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrReleased
	}
	if p.source == nil {
		return nil, ErrNoSource
	}
	if tier == TierHalf && p.srcImg.Width >= 2 && p.srcImg.Height >= 2 {
		return p.renderScratchLocked(p.srcImg.Downsample(2), params, opts)
	}
	return p.renderInstalledLocked(params, opts)
}

// RenderImage renders img with scratch resources, leaving the installed source untouched.
func (p *Pipeline) RenderImage(img *DecodedImage, params EditParameters, opts RenderOptions) (*image.NRGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrReleased
	}
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return nil, ErrNoSource
	}
	return p.renderScratchLocked(img, params, opts)
}

// Close releases every program, table, texture and target. It is idempotent.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.releaseSourceLocked()
	for i, lut := range p.curves {
		if lut != nil {
			p.dev.Release(lut)
			p.curves[i] = nil
		}
	}
	for k, prog := range p.programs {
		if prog != nil {
			p.dev.Release(prog)
			p.programs[k] = nil
		}
	}
}

func (p *Pipeline) renderInstalledLocked(params EditParameters, opts RenderOptions) (*image.NRGBA, error) {
	f := &frame{p: p, img: p.srcImg, src: p.source, targets: p.targets}
	img, err := p.runLocked(f, params, opts)
	p.passes = f.log
	return img, err
}

func (p *Pipeline) renderScratchLocked(img *DecodedImage, params EditParameters, opts RenderOptions) (*image.NRGBA, error) {
	f := &frame{p: p, img: img, scratch: true}
	defer f.release()

	src, err := p.dev.NewTexture(img.Width, img.Height, img.Pix)
	if err != nil {
		return nil, fmt.Errorf("scratch source: %w", err)
	}
	f.src = src
	for i := range f.targets {
		t, err := p.dev.NewTarget(img.Width, img.Height)
		if err != nil {
			return nil, fmt.Errorf("scratch target %d: %w", i, err)
		}
		f.targets[i] = t
	}
	out, err := p.runLocked(f, params, opts)
	p.passes = f.log
	return out, err
}

// runLocked uploads curve tables, runs the pass chain and reads the output back.
func (p *Pipeline) runLocked(f *frame, params EditParameters, opts RenderOptions) (*image.NRGBA, error) {
	if opts.Original {
		params = NewDefaultParameters()
	}
	if err := p.uploadCurvesLocked(params.ToneCurve); err != nil {
		return nil, err
	}
	if err := f.run(params, opts); err != nil {
		return nil, err
	}

	out, ow, oh, err := p.outputTarget(f)
	if err != nil {
		return nil, err
	}
	pix, err := p.dev.ReadPixels(out)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return encodedToNRGBA(pix, ow, oh), nil
}

// outputTarget returns the target the output pass wrote to.
func (p *Pipeline) outputTarget(f *frame) (Texture, int, int, error) {
	if f.output == nil {
		return nil, 0, 0, errors.New("output pass did not run")
	}
	w, h := f.output.Size()
	return f.output, w, h, nil
}

func (p *Pipeline) uploadCurvesLocked(tc ToneCurves) error {
	for i, pts := range [][]CurvePoint{tc.RGB, tc.Red, tc.Green, tc.Blue} {
		if isIdentityCurve(pts) || slices.Equal(pts, p.uploaded[i]) {
			continue
		}
		if err := p.dev.WriteLUT(p.curves[i], BakeCurve(pts, DefaultLUTSize)); err != nil {
			return fmt.Errorf("upload %s curve: %w", CurveChannel(i), err)
		}
		p.uploaded[i] = slices.Clone(pts)
	}
	return nil
}

// encodedToNRGBA quantizes display-encoded RGB to an opaque 8-bit image.
func encodedToNRGBA(pix []float32, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4] = uint8(clamp01(pix[i*3])*255 + 0.5)
		img.Pix[i*4+1] = uint8(clamp01(pix[i*3+1])*255 + 0.5)
		img.Pix[i*4+2] = uint8(clamp01(pix[i*3+2])*255 + 0.5)
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// present fits frame into surface, applies zoom and pan, and returns the
// covered surface rectangle.
func present(surface draw.Image, frame *image.NRGBA, v View) image.Rectangle {
	sb := surface.Bounds()
	draw.Draw(surface, sb, image.NewUniform(SurfaceBackground), image.Point{}, draw.Src)

	fw, fh := float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy())
	if sb.Empty() || fw == 0 || fh == 0 {
		return image.Rectangle{}
	}
	fit := math.Min(float64(sb.Dx())/fw, float64(sb.Dy())/fh)
	scale := fit * v.Zoom
	dw, dh := fw*scale, fh*scale
	ox := float64(sb.Min.X) + (float64(sb.Dx())-dw)/2 + v.PanX
	oy := float64(sb.Min.Y) + (float64(sb.Dy())-dh)/2 + v.PanY

	m := f64.Aff3{scale, 0, ox, 0, scale, oy}
	xdraw.ApproxBiLinear.Transform(surface, m, frame, frame.Bounds(), xdraw.Over, nil)

	r := image.Rect(int(math.Floor(ox)), int(math.Floor(oy)), int(math.Ceil(ox+dw)), int(math.Ceil(oy+dh)))
	return r.Intersect(sb)
}
