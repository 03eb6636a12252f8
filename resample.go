package fiatlux

import (
	"math"
	"sync"

	"github.com/vearutop/fiatlux/internal/parallel"
)

// tentTable holds per-output-sample weights of a tent filter stretched over
// the reduction ratio, so each output sample averages its source footprint.
type tentTable struct {
	first  []int
	weight []float32
	taps   int
}

type tentKey struct{ src, dst int }

var tentTables sync.Map

func tentWeights(src, dst int) tentTable {
	key := tentKey{src, dst}
	if t, ok := tentTables.Load(key); ok {
		return t.(tentTable)
	}

	ratio := math.Max(float64(src)/float64(dst), 1)
	taps := 2 * int(math.Ceil(ratio))
	t := tentTable{first: make([]int, dst), weight: make([]float32, dst*taps), taps: taps}
	for o := 0; o < dst; o++ {
		center := (float64(o)+0.5)*float64(src)/float64(dst) - 0.5
		first := int(math.Floor(center)) - taps/2 + 1
		t.first[o] = first

		ws := t.weight[o*taps : (o+1)*taps]
		var sum float64
		for k := range ws {
			w := math.Max(0, 1-math.Abs(center-float64(first+k))/ratio)
			ws[k] = float32(w)
			sum += w
		}
		if sum > 0 {
			for k := range ws {
				ws[k] = float32(float64(ws[k]) / sum)
			}
		}
	}

	tentTables.Store(key, t)
	return t
}

// scratch recycles the intermediate buffer between the two filter legs.
var scratch = sync.Pool{New: func() any { return new([]float32) }}

// resampleRGB scales an interleaved linear RGB buffer: columns first into a
// scratch buffer of dstW x srcH, then rows into the result.
func resampleRGB(pool *parallel.Pool, src []float32, srcW, srcH, dstW, dstH int) []float32 {
	cols := tentWeights(srcW, dstW)
	rows := tentWeights(srcH, dstH)

	bp := scratch.Get().(*[]float32)
	if cap(*bp) < dstW*srcH*3 {
		*bp = make([]float32, dstW*srcH*3)
	}
	mid := (*bp)[:dstW*srcH*3]

	pool.For(srcH, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			in := src[y*srcW*3 : (y+1)*srcW*3]
			out := mid[y*dstW*3 : (y+1)*dstW*3]
			for x := 0; x < dstW; x++ {
				accumulate(out[x*3:x*3+3], cols, x, srcW, func(i int) []float32 { return in[i*3 : i*3+3] })
			}
		}
	})

	dst := make([]float32, dstW*dstH*3)
	pool.For(dstH, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < dstW; x++ {
				i := (y*dstW + x) * 3
				accumulate(dst[i:i+3], rows, y, srcH, func(r int) []float32 {
					j := (r*dstW + x) * 3
					return mid[j : j+3]
				})
			}
		}
	})

	scratch.Put(bp)
	return dst
}

// accumulate writes the weighted sum of the taps of output sample o into px.
// Source indices past the edges repeat the edge sample.
func accumulate(px []float32, t tentTable, o, n int, at func(i int) []float32) {
	var r, g, b float32
	ws := t.weight[o*t.taps : (o+1)*t.taps]
	for k, w := range ws {
		if w == 0 {
			continue
		}
		s := at(min(max(t.first[o]+k, 0), n-1))
		r += s[0] * w
		g += s[1] * w
		b += s[2] * w
	}
	px[0], px[1], px[2] = r, g, b
}
