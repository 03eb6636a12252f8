package fiatlux

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientImage(w, h int) *DecodedImage {
	img := &DecodedImage{Width: w, Height: h, Pix: make([]float32, w*h*3), Scale: 1}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			img.Pix[i] = 0.05 + 0.4*float32(x)/float32(w)
			img.Pix[i+1] = 0.1 + 0.3*float32(y)/float32(h)
			img.Pix[i+2] = 0.2
		}
	}
	return img
}

func newTestPipeline(t *testing.T, img *DecodedImage) (*Pipeline, *SoftwareDevice) {
	t.Helper()

	dev := NewSoftwareDevice(func(o *SoftwareOptions) { o.Workers = 3 })
	p, err := NewPipeline(dev)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	if img != nil {
		require.NoError(t, p.SetSource(img))
	}
	return p, dev
}

func TestPipelineNeutralIsDirectCopy(t *testing.T) {
	src := gradientImage(16, 12)
	p, _ := newTestPipeline(t, src)

	out, err := p.RenderToBuffer(NewDefaultParameters(), TierCurrent, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []PassKind{PassOutput}, p.Passes())
	require.Equal(t, image.Rect(0, 0, 16, 12), out.Bounds())

	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			i := (y*16 + x) * 3
			c := out.NRGBAAt(x, y)
			if c.R != encode8(src.Pix[i]) || c.G != encode8(src.Pix[i+1]) || c.B != encode8(src.Pix[i+2]) || c.A != 255 {
				t.Fatalf("pixel %d,%d = %v", x, y, c)
			}
		}
	}
}

func TestPipelineExposure(t *testing.T) {
	src := gradientImage(8, 8)
	p, _ := newTestPipeline(t, src)

	for _, ev := range []float64{1, -1} {
		params := ScalarChange{Param: ParamExposure, Value: ev}.Apply(NewDefaultParameters())
		out, err := p.RenderToBuffer(params, TierCurrent, RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, []PassKind{PassMain, PassOutput}, p.Passes())

		gain := float32(2)
		if ev < 0 {
			gain = 0.5
		}
		c := out.NRGBAAt(3, 5)
		i := (5*8 + 3) * 3
		assert.Equal(t, encode8(src.Pix[i]*gain), c.R)
		assert.Equal(t, encode8(src.Pix[i+1]*gain), c.G)
		assert.Equal(t, encode8(src.Pix[i+2]*gain), c.B)
	}
}

func TestPipelineSaturationCollapsesToGray(t *testing.T) {
	p, _ := newTestPipeline(t, gradientImage(10, 10))

	params := ScalarChange{Param: ParamSaturation, Value: -100}.Apply(NewDefaultParameters())
	out, err := p.RenderToBuffer(params, TierCurrent, RenderOptions{})
	require.NoError(t, err)

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			c := out.NRGBAAt(x, y)
			if c.R != c.G || c.G != c.B {
				t.Fatalf("pixel %d,%d not gray: %v", x, y, c)
			}
		}
	}
}

func allAdjustments() EditParameters {
	p := NewDefaultParameters()
	for _, c := range []Change{
		ScalarChange{Param: ParamExposure, Value: 0.3},
		ScalarChange{Param: ParamDehaze, Value: 20},
		ScalarChange{Param: ParamClarity, Value: 30},
		ScalarChange{Param: ParamTexture, Value: -10},
		ScalarChange{Param: ParamSharpenAmount, Value: 60},
		ScalarChange{Param: ParamNoiseLuminance, Value: 25},
		ScalarChange{Param: ParamVignetteAmount, Value: -40},
		CropChange{Crop: &Crop{X: 0.25, Y: 0, Width: 0.5, Height: 0.5}},
	} {
		p = c.Apply(p)
	}
	return p
}

func TestPipelinePassOrder(t *testing.T) {
	p, _ := newTestPipeline(t, gradientImage(20, 16))

	out, err := p.RenderToBuffer(allAdjustments(), TierCurrent, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []PassKind{
		PassMain,
		PassBlurH, PassDehaze,
		PassBlurH, PassLocalContrast,
		PassBlurH, PassLocalContrast,
		PassBlurH, PassSharpen,
		PassBlurH, PassDenoise,
		PassVignette,
		PassOutput,
	}, p.Passes())
	assert.Equal(t, image.Rect(0, 0, 10, 8), out.Bounds())
}

func TestPipelineCropEditingIgnoresCropAndVignette(t *testing.T) {
	p, _ := newTestPipeline(t, gradientImage(20, 16))

	out, err := p.RenderToBuffer(allAdjustments(), TierCurrent, RenderOptions{CropEditing: true})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 16), out.Bounds())
	assert.NotContains(t, p.Passes(), PassVignette)
}

func TestPipelineOriginalRendersDefaults(t *testing.T) {
	p, _ := newTestPipeline(t, gradientImage(20, 16))

	out, err := p.RenderToBuffer(allAdjustments(), TierCurrent, RenderOptions{Original: true})
	require.NoError(t, err)
	assert.Equal(t, []PassKind{PassOutput}, p.Passes())
	assert.Equal(t, image.Rect(0, 0, 20, 16), out.Bounds())
}

func TestPipelineNoSource(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	surface := image.NewRGBA(image.Rect(0, 0, 4, 4))
	require.NoError(t, p.Render(NewDefaultParameters(), surface, View{}, RenderOptions{}))
	assert.Empty(t, p.Passes())

	_, err := p.RenderToBuffer(NewDefaultParameters(), TierCurrent, RenderOptions{})
	require.ErrorIs(t, err, ErrNoSource)

	w, h := p.ImageDimensions()
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestPipelineCompileFailure(t *testing.T) {
	dev := NewSoftwareDevice(func(o *SoftwareOptions) { o.Unsupported = []PassKind{PassDenoise} })

	p, err := NewPipeline(dev)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrProgramCompile)

	var pe *ProgramError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, PassDenoise, pe.Pass)
	assert.Zero(t, dev.Live(), "programs compiled before the failure must be released")
}

func TestPipelineCloseReleasesEverything(t *testing.T) {
	dev := NewSoftwareDevice()
	p, err := NewPipeline(dev)
	require.NoError(t, err)
	assert.Equal(t, int(passKindCount)+4, dev.Live())

	require.NoError(t, p.SetSource(gradientImage(8, 8)))
	require.NoError(t, p.SetSource(gradientImage(6, 4)))
	assert.Equal(t, int(passKindCount)+4+1+slotCount, dev.Live(), "old source and targets are released")

	_, err = p.RenderToBuffer(allAdjustments(), TierCurrent, RenderOptions{})
	require.NoError(t, err)
	_, err = p.RenderImage(gradientImage(5, 5), allAdjustments(), RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, int(passKindCount)+4+1+slotCount+1, dev.Live(), "scratch renders release their resources")

	p.Close()
	p.Close()
	assert.Zero(t, dev.Live())

	_, err = p.RenderToBuffer(NewDefaultParameters(), TierCurrent, RenderOptions{})
	require.ErrorIs(t, err, ErrReleased)
}

func TestPipelineRenderPresentsCentered(t *testing.T) {
	p, _ := newTestPipeline(t, gradientImage(40, 20))

	surface := image.NewRGBA(image.Rect(0, 0, 100, 100))
	require.NoError(t, p.Render(NewDefaultParameters(), surface, View{}, RenderOptions{}))
	assert.Equal(t, image.Rect(0, 25, 100, 75), p.LastViewport())
	assert.Equal(t, SurfaceBackground.R, surface.RGBAAt(50, 5).R)

	require.NoError(t, p.Render(NewDefaultParameters(), surface, View{Zoom: 4}, RenderOptions{}))
	assert.Equal(t, surface.Bounds(), p.LastViewport())
}

func TestPipelineHalfTier(t *testing.T) {
	p, _ := newTestPipeline(t, gradientImage(21, 10))

	out, err := p.RenderToBuffer(NewDefaultParameters(), TierHalf, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 5), out.Bounds())

	w, h := p.ImageDimensions()
	assert.Equal(t, 21, w)
	assert.Equal(t, 10, h)
}

func TestFrameRefusesAliasing(t *testing.T) {
	p, _ := newTestPipeline(t, gradientImage(4, 4))

	f := &frame{p: p, img: p.srcImg, src: p.source, targets: p.targets, cur: targetA}
	err := f.draw(PassMain, &Uniforms{ExposureGain: 1, ContrastPower: 1}, targetA, sourceSlot, targetA)
	require.ErrorIs(t, err, ErrTargetAliasing)

	err = f.draw(PassSharpen, &Uniforms{Kernel: []float32{1}}, targetA, targetTemp, targetTemp)
	require.ErrorIs(t, err, ErrTargetAliasing)
}

func TestSoftwareDeviceRefusesAliasing(t *testing.T) {
	dev := NewSoftwareDevice()
	prog, err := dev.CompileProgram(PassMain)
	require.NoError(t, err)
	tex, err := dev.NewTarget(2, 2)
	require.NoError(t, err)

	err = dev.Draw(prog, &Uniforms{ExposureGain: 1, ContrastPower: 1}, Inputs{Source: tex}, tex)
	require.ErrorIs(t, err, ErrTargetAliasing)

	dev.Release(tex)
	dev.Release(tex)
	dev.Release(prog)
	assert.Zero(t, dev.Live())
}

func TestCropFrame(t *testing.T) {
	r, rot := cropFrame(&Crop{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.25, Rotation: 90}, 200, 100, false)
	assert.InDelta(t, 20, r.x, 1e-4)
	assert.InDelta(t, 20, r.y, 1e-4)
	assert.InDelta(t, 100, r.w, 1e-4)
	assert.InDelta(t, 25, r.h, 1e-4)
	assert.InDelta(t, 1.5707963, rot, 1e-6)

	r, rot = cropFrame(&Crop{Width: 0.5, Height: 0.5}, 200, 100, true)
	assert.Equal(t, rect{0, 0, 200, 100}, r)
	assert.Zero(t, rot)
}
