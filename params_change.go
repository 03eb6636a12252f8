package fiatlux

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ParamRange describes the accepted values of a slider.
type ParamRange struct {
	Min     float64
	Max     float64
	Step    float64
	Default float64
}

// Clamp limits v to the range. NaN maps to the default.
func (r ParamRange) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Default
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Param identifies a scalar slider.
type Param int

const (
	ParamWhiteBalance Param = iota
	ParamTint
	ParamExposure
	ParamContrast
	ParamHighlights
	ParamShadows
	ParamWhites
	ParamBlacks
	ParamTexture
	ParamClarity
	ParamDehaze
	ParamVibrance
	ParamSaturation
	ParamSharpenAmount
	ParamSharpenRadius
	ParamSharpenDetail
	ParamNoiseLuminance
	ParamNoiseColor
	ParamVignetteAmount
	ParamVignetteMidpoint
	ParamVignetteRoundness
	ParamVignetteFeather

	paramCount
)

type paramInfo struct {
	key   string
	label string
	rng   ParamRange
}

var (
	bipolar100 = ParamRange{Min: -100, Max: 100, Step: 1}
	unipolar   = ParamRange{Min: 0, Max: 100, Step: 1}
)

var paramTable = [paramCount]paramInfo{
	ParamWhiteBalance:      {"whiteBalance", "Temperature", ParamRange{Min: 2000, Max: 12000, Step: 50, Default: 5500}},
	ParamTint:              {"tint", "Tint", ParamRange{Min: -150, Max: 150, Step: 1}},
	ParamExposure:          {"exposure", "Exposure", ParamRange{Min: -5, Max: 5, Step: 0.01}},
	ParamContrast:          {"contrast", "Contrast", bipolar100},
	ParamHighlights:        {"highlights", "Highlights", bipolar100},
	ParamShadows:           {"shadows", "Shadows", bipolar100},
	ParamWhites:            {"whites", "Whites", bipolar100},
	ParamBlacks:            {"blacks", "Blacks", bipolar100},
	ParamTexture:           {"texture", "Texture", bipolar100},
	ParamClarity:           {"clarity", "Clarity", bipolar100},
	ParamDehaze:            {"dehaze", "Dehaze", bipolar100},
	ParamVibrance:          {"vibrance", "Vibrance", bipolar100},
	ParamSaturation:        {"saturation", "Saturation", bipolar100},
	ParamSharpenAmount:     {"sharpening.amount", "Sharpening Amount", ParamRange{Min: 0, Max: 150, Step: 1}},
	ParamSharpenRadius:     {"sharpening.radius", "Sharpening Radius", ParamRange{Min: 0.5, Max: 3, Step: 0.1, Default: 1}},
	ParamSharpenDetail:     {"sharpening.detail", "Sharpening Detail", ParamRange{Min: 0, Max: 100, Step: 1, Default: 25}},
	ParamNoiseLuminance:    {"noiseReduction.luminance", "Luminance Noise Reduction", unipolar},
	ParamNoiseColor:        {"noiseReduction.color", "Color Noise Reduction", unipolar},
	ParamVignetteAmount:    {"vignette.amount", "Vignette Amount", bipolar100},
	ParamVignetteMidpoint:  {"vignette.midpoint", "Vignette Midpoint", ParamRange{Min: 0, Max: 100, Step: 1, Default: 50}},
	ParamVignetteRoundness: {"vignette.roundness", "Vignette Roundness", bipolar100},
	ParamVignetteFeather:   {"vignette.feather", "Vignette Feather", ParamRange{Min: 0, Max: 100, Step: 1, Default: 50}},
}

func (p Param) valid() bool { return p >= 0 && p < paramCount }

// Range returns the accepted values of the slider.
func (p Param) Range() ParamRange {
	if !p.valid() {
		return ParamRange{}
	}
	return paramTable[p].rng
}

// String returns the dotted key of the slider, e.g. "sharpening.amount".
func (p Param) String() string {
	if !p.valid() {
		return "Param(" + strconv.Itoa(int(p)) + ")"
	}
	return paramTable[p].key
}

// Label returns a human readable slider name.
func (p Param) Label() string {
	if !p.valid() {
		return p.String()
	}
	return paramTable[p].label
}

// Ranges returns the range of every scalar slider.
func Ranges() map[Param]ParamRange {
	out := make(map[Param]ParamRange, paramCount)
	for p := Param(0); p < paramCount; p++ {
		out[p] = paramTable[p].rng
	}
	return out
}

func (p Param) field(e *EditParameters) *float64 {
	switch p {
	case ParamWhiteBalance:
		return &e.WhiteBalance
	case ParamTint:
		return &e.Tint
	case ParamExposure:
		return &e.Exposure
	case ParamContrast:
		return &e.Contrast
	case ParamHighlights:
		return &e.Highlights
	case ParamShadows:
		return &e.Shadows
	case ParamWhites:
		return &e.Whites
	case ParamBlacks:
		return &e.Blacks
	case ParamTexture:
		return &e.Texture
	case ParamClarity:
		return &e.Clarity
	case ParamDehaze:
		return &e.Dehaze
	case ParamVibrance:
		return &e.Vibrance
	case ParamSaturation:
		return &e.Saturation
	case ParamSharpenAmount:
		return &e.Sharpening.Amount
	case ParamSharpenRadius:
		return &e.Sharpening.Radius
	case ParamSharpenDetail:
		return &e.Sharpening.Detail
	case ParamNoiseLuminance:
		return &e.NoiseReduction.Luminance
	case ParamNoiseColor:
		return &e.NoiseReduction.Color
	case ParamVignetteAmount:
		return &e.Vignette.Amount
	case ParamVignetteMidpoint:
		return &e.Vignette.Midpoint
	case ParamVignetteRoundness:
		return &e.Vignette.Roundness
	case ParamVignetteFeather:
		return &e.Vignette.Feather
	}
	return nil
}

// Get returns the current value of the slider in e.
func (p Param) Get(e EditParameters) float64 {
	if f := p.field(&e); f != nil {
		return *f
	}
	return 0
}

// ChangeKey identifies what a Change modifies. Consecutive changes with equal
// keys are grouped into one history entry.
type ChangeKey struct {
	kind  changeKind
	param int
	sub   int
}

type changeKind int

const (
	changeScalar changeKind = iota + 1
	changeHSL
	changeGrading
	changeCurve
	changeCrop
)

// Change is a typed mutation of EditParameters.
type Change interface {
	// Key identifies the modified parameter.
	Key() ChangeKey
	// Apply returns a copy of p with the change applied and clamped.
	Apply(p EditParameters) EditParameters
	// Label describes the change for the history timeline, using the value in p.
	Label(p EditParameters) string
}

// ScalarChange sets one slider.
type ScalarChange struct {
	Param Param
	Value float64
}

func (c ScalarChange) Key() ChangeKey { return ChangeKey{kind: changeScalar, param: int(c.Param)} }

func (c ScalarChange) Apply(p EditParameters) EditParameters {
	out := p.Clone()
	if f := c.Param.field(&out); f != nil {
		*f = c.Param.Range().Clamp(c.Value)
	}
	return out
}

func (c ScalarChange) Label(p EditParameters) string {
	return c.Param.Label() + " " + formatValue(c.Param.Get(p), c.Param.Range())
}

// formatValue prints v with the precision of the slider step, signed for bipolar sliders.
func formatValue(v float64, r ParamRange) string {
	decimals := 0
	if r.Step > 0 && r.Step < 1 {
		decimals = int(math.Ceil(-math.Log10(r.Step) - 1e-9))
	}
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if r.Min < 0 && v > 0 {
		s = "+" + s
	}
	return s
}

// HSLChannel selects the hue, saturation or luminance row of the HSL adjustment.
type HSLChannel int

const (
	HSLHue HSLChannel = iota
	HSLSaturation
	HSLLuminance
)

func (c HSLChannel) String() string {
	switch c {
	case HSLHue:
		return "Hue"
	case HSLSaturation:
		return "Saturation"
	case HSLLuminance:
		return "Luminance"
	}
	return "HSLChannel(" + strconv.Itoa(int(c)) + ")"
}

// HSLChange sets one band of one HSL channel.
type HSLChange struct {
	Channel HSLChannel
	Band    int
	Value   float64
}

func (c HSLChange) Key() ChangeKey {
	return ChangeKey{kind: changeHSL, param: int(c.Channel), sub: c.Band}
}

func (c HSLChange) row(h *HSL) *[HSLBands]float64 {
	switch c.Channel {
	case HSLHue:
		return &h.Hue
	case HSLSaturation:
		return &h.Saturation
	case HSLLuminance:
		return &h.Luminance
	}
	return nil
}

func (c HSLChange) Apply(p EditParameters) EditParameters {
	out := p.Clone()
	row := c.row(&out.HSL)
	if row == nil || c.Band < 0 || c.Band >= HSLBands {
		return out
	}
	row[c.Band] = bipolar100.Clamp(c.Value)
	return out
}

func (c HSLChange) Label(p EditParameters) string {
	row := c.row(&p.HSL)
	if row == nil || c.Band < 0 || c.Band >= HSLBands {
		return "HSL"
	}
	return fmt.Sprintf("HSL %s %s %s", HSLBandNames[c.Band], c.Channel, formatValue(row[c.Band], bipolar100))
}

// GradingZone selects a color-grading zone.
type GradingZone int

const (
	ZoneShadows GradingZone = iota
	ZoneMidtones
	ZoneHighlights
	ZoneGlobal
)

func (z GradingZone) String() string {
	switch z {
	case ZoneShadows:
		return "Shadows"
	case ZoneMidtones:
		return "Midtones"
	case ZoneHighlights:
		return "Highlights"
	case ZoneGlobal:
		return "Global"
	}
	return "GradingZone(" + strconv.Itoa(int(z)) + ")"
}

func (z GradingZone) values(g *ColorGrading) *GradingZoneValues {
	switch z {
	case ZoneShadows:
		return &g.Shadows
	case ZoneMidtones:
		return &g.Midtones
	case ZoneHighlights:
		return &g.Highlights
	case ZoneGlobal:
		return &g.Global
	}
	return nil
}

// GradingComponent selects hue, saturation or luminance of a grading zone.
type GradingComponent int

const (
	GradingHue GradingComponent = iota
	GradingSaturation
	GradingLuminance
)

var gradingRanges = [...]ParamRange{
	GradingHue:        {Min: 0, Max: 360, Step: 1},
	GradingSaturation: {Min: 0, Max: 100, Step: 1},
	GradingLuminance:  bipolar100,
}

func (c GradingComponent) String() string {
	switch c {
	case GradingHue:
		return "Hue"
	case GradingSaturation:
		return "Saturation"
	case GradingLuminance:
		return "Luminance"
	}
	return "GradingComponent(" + strconv.Itoa(int(c)) + ")"
}

// GradingChange sets one component of one color-grading zone.
type GradingChange struct {
	Zone      GradingZone
	Component GradingComponent
	Value     float64
}

func (c GradingChange) Key() ChangeKey {
	return ChangeKey{kind: changeGrading, param: int(c.Zone), sub: int(c.Component)}
}

func (c GradingChange) field(g *ColorGrading) (*float64, ParamRange) {
	z := c.Zone.values(g)
	if z == nil {
		return nil, ParamRange{}
	}
	switch c.Component {
	case GradingHue:
		return &z.Hue, gradingRanges[GradingHue]
	case GradingSaturation:
		return &z.Saturation, gradingRanges[GradingSaturation]
	case GradingLuminance:
		return &z.Luminance, gradingRanges[GradingLuminance]
	}
	return nil, ParamRange{}
}

func (c GradingChange) Apply(p EditParameters) EditParameters {
	out := p.Clone()
	if f, r := c.field(&out.ColorGrading); f != nil {
		*f = r.Clamp(c.Value)
	}
	return out
}

func (c GradingChange) Label(p EditParameters) string {
	f, r := c.field(&p.ColorGrading)
	if f == nil {
		return "Color Grading"
	}
	return fmt.Sprintf("Color Grading %s %s %s", c.Zone, c.Component, formatValue(*f, r))
}

// CurveChannel selects one of the tone curves.
type CurveChannel int

const (
	CurveRGB CurveChannel = iota
	CurveRed
	CurveGreen
	CurveBlue
)

func (c CurveChannel) String() string {
	switch c {
	case CurveRGB:
		return "RGB"
	case CurveRed:
		return "Red"
	case CurveGreen:
		return "Green"
	case CurveBlue:
		return "Blue"
	}
	return "CurveChannel(" + strconv.Itoa(int(c)) + ")"
}

func (c CurveChannel) curve(t *ToneCurves) *[]CurvePoint {
	switch c {
	case CurveRGB:
		return &t.RGB
	case CurveRed:
		return &t.Red
	case CurveGreen:
		return &t.Green
	case CurveBlue:
		return &t.Blue
	}
	return nil
}

// Curve returns the points of the selected curve in p.
func (c CurveChannel) Curve(p EditParameters) []CurvePoint {
	if pts := c.curve(&p.ToneCurve); pts != nil {
		return *pts
	}
	return nil
}

// CurveChange replaces the points of one tone curve.
type CurveChange struct {
	Channel CurveChannel
	Points  []CurvePoint
}

func (c CurveChange) Key() ChangeKey { return ChangeKey{kind: changeCurve, param: int(c.Channel)} }

func (c CurveChange) Apply(p EditParameters) EditParameters {
	out := p.Clone()
	if dst := c.Channel.curve(&out.ToneCurve); dst != nil {
		*dst = SanitizeCurve(c.Points)
	}
	return out
}

func (c CurveChange) Label(EditParameters) string { return "Tone Curve " + c.Channel.String() }

// SanitizeCurve returns a well-formed copy of pts: coordinates clamped to
// [0,1], sorted by x with duplicates dropped, first x = 0 and last x = 1.
// Fewer than two usable points yield the identity curve.
func SanitizeCurve(pts []CurvePoint) []CurvePoint {
	out := make([]CurvePoint, 0, len(pts)+2)
	for _, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		out = append(out, CurvePoint{X: clamp01f64(p.X), Y: clamp01f64(p.Y)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })

	dedup := out[:0]
	for _, p := range out {
		if n := len(dedup); n > 0 && dedup[n-1].X == p.X {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	out = dedup
	if len(out) < 2 {
		return DefaultCurve()
	}
	out[0].X = 0
	out[len(out)-1].X = 1
	return out
}

// CropChange sets or clears the crop rectangle.
type CropChange struct {
	Crop *Crop
}

// MaxCropRotation limits the crop rotation in degrees.
const MaxCropRotation = 45

func (c CropChange) Key() ChangeKey { return ChangeKey{kind: changeCrop} }

func (c CropChange) Apply(p EditParameters) EditParameters {
	out := p.Clone()
	if c.Crop == nil {
		out.Crop = nil
		return out
	}
	cr := *c.Crop
	cr.X = clamp01f64(cr.X)
	cr.Y = clamp01f64(cr.Y)
	cr.Width = math.Min(clamp01f64(cr.Width), 1-cr.X)
	cr.Height = math.Min(clamp01f64(cr.Height), 1-cr.Y)
	if math.IsNaN(cr.Rotation) {
		cr.Rotation = 0
	}
	cr.Rotation = math.Max(-MaxCropRotation, math.Min(MaxCropRotation, cr.Rotation))
	if cr.Width <= 0 || cr.Height <= 0 {
		out.Crop = nil
		return out
	}
	out.Crop = &cr
	return out
}

func (c CropChange) Label(EditParameters) string {
	if c.Crop == nil {
		return "Clear Crop"
	}
	return "Crop"
}

func clamp01f64(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
