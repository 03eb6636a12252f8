package fiatlux

import "sort"

// DefaultLUTSize is the number of entries of a baked tone curve.
const DefaultLUTSize = 256

// BakeCurve evaluates the piecewise-linear curve through points at size
// evenly spaced inputs in [0,1]. Fewer than two points bake the identity ramp.
// Inputs outside the covered x range take the nearest endpoint's y.
// A size below 2 uses DefaultLUTSize.
func BakeCurve(points []CurvePoint, size int) []float32 {
	if size < 2 {
		size = DefaultLUTSize
	}
	lut := make([]float32, size)
	last := float64(size - 1)
	if len(points) < 2 {
		for i := range lut {
			lut[i] = float32(float64(i) / last)
		}
		return lut
	}

	pts := append([]CurvePoint(nil), points...)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].X < pts[j].X })

	seg := 0
	for i := range lut {
		t := float64(i) / last
		var y float64
		switch {
		case t <= pts[0].X:
			y = pts[0].Y
		case t >= pts[len(pts)-1].X:
			y = pts[len(pts)-1].Y
		default:
			// t grows monotonically, so the bracketing segment only moves forward.
			for seg < len(pts)-2 && pts[seg+1].X < t {
				seg++
			}
			a, b := pts[seg], pts[seg+1]
			if dx := b.X - a.X; dx > 0 {
				y = a.Y + (b.Y-a.Y)*(t-a.X)/dx
			} else {
				y = b.Y
			}
		}
		lut[i] = float32(clamp01f64(y))
	}
	return lut
}

// lookupLUT samples lut at v in [0,1] with linear interpolation.
func lookupLUT(lut []float32, v float32) float32 {
	if v <= 0 {
		return lut[0]
	}
	n := len(lut) - 1
	if v >= 1 {
		return lut[n]
	}
	pos := v * float32(n)
	i := int(pos)
	f := pos - float32(i)
	return lut[i] + (lut[i+1]-lut[i])*f
}
