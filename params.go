package fiatlux

import (
	"reflect"

	"github.com/jinzhu/copier"
)

// CurvePoint is a tone-curve control point in normalized [0,1] coordinates.
type CurvePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ToneCurves holds the master and per-channel curves.
// The RGB curve is applied after the per-channel ones.
type ToneCurves struct {
	RGB   []CurvePoint `json:"rgb"`
	Red   []CurvePoint `json:"red"`
	Green []CurvePoint `json:"green"`
	Blue  []CurvePoint `json:"blue"`
}

// HSLBands is the number of hue bands of the HSL adjustment.
const HSLBands = 8

// HSLBandNames labels the hue bands in order.
var HSLBandNames = [HSLBands]string{"Red", "Orange", "Yellow", "Green", "Aqua", "Blue", "Purple", "Magenta"}

// HSL holds per-band hue, saturation and luminance offsets in [-100, 100].
type HSL struct {
	Hue        [HSLBands]float64 `json:"hue"`
	Saturation [HSLBands]float64 `json:"saturation"`
	Luminance  [HSLBands]float64 `json:"luminance"`
}

// GradingZoneValues is the tint of one color-grading zone.
type GradingZoneValues struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Luminance  float64 `json:"luminance"`
}

// ColorGrading tints shadows, midtones, highlights and the whole image.
type ColorGrading struct {
	Shadows    GradingZoneValues `json:"shadows"`
	Midtones   GradingZoneValues `json:"midtones"`
	Highlights GradingZoneValues `json:"highlights"`
	Global     GradingZoneValues `json:"global"`
}

type Sharpening struct {
	Amount float64 `json:"amount"`
	Radius float64 `json:"radius"`
	Detail float64 `json:"detail"`
}

type NoiseReduction struct {
	Luminance float64 `json:"luminance"`
	Color     float64 `json:"color"`
}

type Vignette struct {
	Amount    float64 `json:"amount"`
	Midpoint  float64 `json:"midpoint"`
	Roundness float64 `json:"roundness"`
	Feather   float64 `json:"feather"`
}

// Crop is a normalized crop rectangle with a rotation in degrees around its center.
type Crop struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
}

// EditParameters is the complete set of adjustments applied to an image.
// Values are treated as immutable: changes produce a new value.
type EditParameters struct {
	WhiteBalance float64 `json:"whiteBalance"`
	Tint         float64 `json:"tint"`
	Exposure     float64 `json:"exposure"`
	Contrast     float64 `json:"contrast"`
	Highlights   float64 `json:"highlights"`
	Shadows      float64 `json:"shadows"`
	Whites       float64 `json:"whites"`
	Blacks       float64 `json:"blacks"`
	Texture      float64 `json:"texture"`
	Clarity      float64 `json:"clarity"`
	Dehaze       float64 `json:"dehaze"`
	Vibrance     float64 `json:"vibrance"`
	Saturation   float64 `json:"saturation"`

	ToneCurve      ToneCurves     `json:"toneCurve"`
	HSL            HSL            `json:"hsl"`
	ColorGrading   ColorGrading   `json:"colorGrading"`
	Sharpening     Sharpening     `json:"sharpening"`
	NoiseReduction NoiseReduction `json:"noiseReduction"`
	Vignette       Vignette       `json:"vignette"`
	Crop           *Crop          `json:"crop"`
}

// DefaultCurve returns a fresh identity curve.
func DefaultCurve() []CurvePoint {
	return []CurvePoint{{X: 0, Y: 0}, {X: 1, Y: 1}}
}

// NewDefaultParameters returns neutral parameters. Every call returns an independent value.
func NewDefaultParameters() EditParameters {
	return EditParameters{
		WhiteBalance: ParamWhiteBalance.Range().Default,
		ToneCurve: ToneCurves{
			RGB:   DefaultCurve(),
			Red:   DefaultCurve(),
			Green: DefaultCurve(),
			Blue:  DefaultCurve(),
		},
		Sharpening: Sharpening{
			Radius: ParamSharpenRadius.Range().Default,
			Detail: ParamSharpenDetail.Range().Default,
		},
		Vignette: Vignette{
			Midpoint: ParamVignetteMidpoint.Range().Default,
			Feather:  ParamVignetteFeather.Range().Default,
		},
	}
}

// Clone returns a deep copy that shares no slices or pointers with p.
func (p EditParameters) Clone() EditParameters {
	var out EditParameters
	if err := copier.CopyWithOption(&out, &p, copier.Option{DeepCopy: true}); err != nil {
		// Both sides have the same type, copier only fails on type mismatch.
		panic("fiatlux: clone parameters: " + err.Error())
	}
	return out
}

// Equal reports structural equality. Nil and empty curves compare equal.
func Equal(a, b EditParameters) bool {
	return valuesEqual(reflect.ValueOf(a), reflect.ValueOf(b))
}

func valuesEqual(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Slice, reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !valuesEqual(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !valuesEqual(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Pointer:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return valuesEqual(a.Elem(), b.Elem())
	case reflect.Float32, reflect.Float64:
		return a.Float() == b.Float()
	default:
		return a.Interface() == b.Interface()
	}
}

func isIdentityCurve(pts []CurvePoint) bool {
	if len(pts) < 2 {
		return true
	}
	first, last := pts[0], pts[len(pts)-1]
	if first.X != 0 || last.X != 1 {
		return false
	}
	for _, p := range pts {
		if p.X != p.Y {
			return false
		}
	}
	return true
}
