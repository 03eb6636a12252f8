package fiatlux

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// SparseDiff holds the top-level parameter groups that differ from the defaults,
// keyed by their JSON name.
type SparseDiff map[string]json.RawMessage

// Keys returns the keys present in the diff.
func (d SparseDiff) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return keys
}

var paramsType = reflect.TypeOf(EditParameters{})

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// Diff returns the top-level fields of p that differ from the defaults.
// Nested groups (curves, HSL, grading, ...) are stored whole when any part differs.
func Diff(p EditParameters) SparseDiff {
	def := reflect.ValueOf(NewDefaultParameters())
	val := reflect.ValueOf(p)
	out := SparseDiff{}
	for i := 0; i < paramsType.NumField(); i++ {
		if valuesEqual(val.Field(i), def.Field(i)) {
			continue
		}
		raw, err := json.Marshal(val.Field(i).Interface())
		if err != nil {
			// Only NaN/Inf fail to marshal; such values are dropped, not persisted.
			Logger().Warn("sparse diff: skip field", "field", jsonName(paramsType.Field(i)), "error", err)
			continue
		}
		out[jsonName(paramsType.Field(i))] = raw
	}
	return out
}

// Merge overlays diff onto base and returns the result. Unknown keys are ignored;
// a malformed value leaves that field at its base value.
func Merge(base EditParameters, diff SparseDiff) (EditParameters, error) {
	out := base.Clone()
	if len(diff) == 0 {
		return out, nil
	}
	val := reflect.ValueOf(&out).Elem()
	var firstErr error
	for i := 0; i < paramsType.NumField(); i++ {
		raw, ok := diff[jsonName(paramsType.Field(i))]
		if !ok {
			continue
		}
		field := reflect.New(paramsType.Field(i).Type)
		if err := json.Unmarshal(raw, field.Interface()); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("merge %s: %w", jsonName(paramsType.Field(i)), err)
			}
			continue
		}
		val.Field(i).Set(field.Elem())
	}
	return out, firstErr
}

// LoadParameters merges a persisted diff over fresh defaults and sanitizes the result.
func LoadParameters(diff SparseDiff) (EditParameters, error) {
	p, err := Merge(NewDefaultParameters(), diff)
	return sanitizeParameters(p), err
}

// sanitizeParameters clamps every value into its range and repairs curves.
func sanitizeParameters(p EditParameters) EditParameters {
	for prm := Param(0); prm < paramCount; prm++ {
		f := prm.field(&p)
		*f = prm.Range().Clamp(*f)
	}
	for _, ch := range []CurveChannel{CurveRGB, CurveRed, CurveGreen, CurveBlue} {
		c := ch.curve(&p.ToneCurve)
		*c = SanitizeCurve(*c)
	}
	for i := 0; i < HSLBands; i++ {
		p.HSL.Hue[i] = bipolar100.Clamp(p.HSL.Hue[i])
		p.HSL.Saturation[i] = bipolar100.Clamp(p.HSL.Saturation[i])
		p.HSL.Luminance[i] = bipolar100.Clamp(p.HSL.Luminance[i])
	}
	for z := ZoneShadows; z <= ZoneGlobal; z++ {
		for c := GradingHue; c <= GradingLuminance; c++ {
			f, r := GradingChange{Zone: z, Component: c}.field(&p.ColorGrading)
			*f = r.Clamp(*f)
		}
	}
	if p.Crop != nil {
		p = CropChange{Crop: p.Crop}.Apply(p)
	}
	return p
}
