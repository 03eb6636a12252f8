package fiatlux

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func editedParameters() EditParameters {
	p := NewDefaultParameters()
	p = ScalarChange{Param: ParamExposure, Value: 0.7}.Apply(p)
	p = ScalarChange{Param: ParamWhiteBalance, Value: 6500}.Apply(p)
	p = HSLChange{Channel: HSLSaturation, Band: 5, Value: -20}.Apply(p)
	p = GradingChange{Zone: ZoneShadows, Component: GradingHue, Value: 210}.Apply(p)
	p = CurveChange{Channel: CurveRGB, Points: []CurvePoint{{0, 0}, {0.25, 0.2}, {0.75, 0.8}, {1, 1}}}.Apply(p)
	p = CropChange{Crop: &Crop{X: 0.1, Y: 0.1, Width: 0.5, Height: 0.5, Rotation: 3}}.Apply(p)
	return p
}

func TestDefaultsAreIndependent(t *testing.T) {
	a := NewDefaultParameters()
	b := NewDefaultParameters()
	a.ToneCurve.RGB[1].Y = 0.5
	assert.Equal(t, 1.0, b.ToneCurve.RGB[1].Y)
}

func TestCloneIsDeep(t *testing.T) {
	p := editedParameters()
	c := p.Clone()
	require.True(t, Equal(p, c))

	c.ToneCurve.RGB[1].Y = 0
	c.Crop.Width = 0.9
	c.HSL.Hue[0] = 10
	assert.InDelta(t, 0.2, p.ToneCurve.RGB[1].Y, 1e-12)
	assert.InDelta(t, 0.5, p.Crop.Width, 1e-12)
	assert.Zero(t, p.HSL.Hue[0])
	assert.False(t, Equal(p, c))
}

func TestDiffOfDefaultsIsEmpty(t *testing.T) {
	assert.Empty(t, Diff(NewDefaultParameters()))
}

func TestDiffMergeRoundTrip(t *testing.T) {
	p := editedParameters()
	d := Diff(p)
	assert.ElementsMatch(t, []string{"exposure", "whiteBalance", "hsl", "colorGrading", "toneCurve", "crop"}, d.Keys())

	got, err := Merge(NewDefaultParameters(), d)
	require.NoError(t, err)
	assert.True(t, Equal(p, got))

	// Repeated serialization does not drift.
	for i := 0; i < 3; i++ {
		raw, err := json.Marshal(Diff(got))
		require.NoError(t, err)
		var back SparseDiff
		require.NoError(t, json.Unmarshal(raw, &back))
		got, err = LoadParameters(back)
		require.NoError(t, err)
	}
	assert.True(t, Equal(p, got))
}

func TestMergeIgnoresUnknownAndKeepsBaseOnError(t *testing.T) {
	got, err := Merge(NewDefaultParameters(), SparseDiff{
		"unknown":  json.RawMessage(`1`),
		"exposure": json.RawMessage(`"bright"`),
		"contrast": json.RawMessage(`25`),
	})
	require.Error(t, err)
	assert.Zero(t, got.Exposure)
	assert.Equal(t, 25.0, got.Contrast)
}

func TestLoadParametersSanitizes(t *testing.T) {
	got, err := LoadParameters(SparseDiff{
		"exposure":  json.RawMessage(`12`),
		"toneCurve": json.RawMessage(`{"rgb":[{"x":0.5,"y":0.5}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Exposure)
	assert.Equal(t, DefaultCurve(), got.ToneCurve.RGB)
	assert.Equal(t, DefaultCurve(), got.ToneCurve.Red)
}

func TestScalarChangeClampsAndLabels(t *testing.T) {
	p := ScalarChange{Param: ParamExposure, Value: 9}.Apply(NewDefaultParameters())
	assert.Equal(t, 5.0, p.Exposure)

	p = ScalarChange{Param: ParamExposure, Value: 0.5}.Apply(p)
	assert.Equal(t, "Exposure +0.50", ScalarChange{Param: ParamExposure}.Label(p))

	p = ScalarChange{Param: ParamWhiteBalance, Value: 6512}.Apply(p)
	assert.Equal(t, "Temperature 6512", ScalarChange{Param: ParamWhiteBalance}.Label(p))

	p = ScalarChange{Param: ParamContrast, Value: math.NaN()}.Apply(p)
	assert.Zero(t, p.Contrast)
}

func TestCompositeChangeLabels(t *testing.T) {
	p := editedParameters()
	assert.Equal(t, "HSL Blue Saturation -20", HSLChange{Channel: HSLSaturation, Band: 5}.Label(p))
	assert.Equal(t, "Color Grading Shadows Hue 210", GradingChange{Zone: ZoneShadows, Component: GradingHue}.Label(p))
	assert.Equal(t, "Tone Curve RGB", CurveChange{Channel: CurveRGB}.Label(p))
	assert.Equal(t, "Crop", CropChange{Crop: &Crop{}}.Label(p))
	assert.Equal(t, "Clear Crop", CropChange{}.Label(p))
}

func TestChangeKeysGroupBySlider(t *testing.T) {
	assert.Equal(t, ScalarChange{Param: ParamExposure, Value: 1}.Key(), ScalarChange{Param: ParamExposure, Value: 2}.Key())
	assert.NotEqual(t, ScalarChange{Param: ParamExposure}.Key(), ScalarChange{Param: ParamContrast}.Key())
	assert.NotEqual(t, HSLChange{Band: 1}.Key(), HSLChange{Band: 2}.Key())
	assert.NotEqual(t, ScalarChange{}.Key(), CropChange{}.Key())
}

func TestCropChangeClamps(t *testing.T) {
	p := CropChange{Crop: &Crop{X: 0.8, Y: -1, Width: 0.5, Height: 2, Rotation: 90}}.Apply(NewDefaultParameters())
	require.NotNil(t, p.Crop)
	assert.InDelta(t, 0.2, p.Crop.Width, 1e-12)
	assert.Equal(t, 0.0, p.Crop.Y)
	assert.Equal(t, 1.0, p.Crop.Height)
	assert.Equal(t, float64(MaxCropRotation), p.Crop.Rotation)

	p = CropChange{Crop: &Crop{X: 1, Width: 0.5, Height: 0.5}}.Apply(p)
	assert.Nil(t, p.Crop)
}

func TestSanitizeCurve(t *testing.T) {
	got := SanitizeCurve([]CurvePoint{{0.9, 1.2}, {0.1, 0.2}, {0.5, 0.4}, {0.5, 0.6}, {math.NaN(), 0}})
	assert.Equal(t, []CurvePoint{{0, 0.2}, {0.5, 0.6}, {1, 1}}, got)
	assert.Equal(t, DefaultCurve(), SanitizeCurve(nil))
}

func TestRanges(t *testing.T) {
	r := Ranges()
	assert.Len(t, r, int(paramCount))
	assert.Equal(t, ParamRange{Min: 2000, Max: 12000, Step: 50, Default: 5500}, r[ParamWhiteBalance])
	assert.Equal(t, 25.0, r[ParamSharpenDetail].Default)
	assert.Equal(t, "sharpening.amount", ParamSharpenAmount.String())
}
