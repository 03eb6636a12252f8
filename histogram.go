package fiatlux

import (
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HistogramBins is the number of bins per channel.
const HistogramBins = 256

// HistogramData holds per-channel 8-bit distributions of a rendered region.
type HistogramData struct {
	R, G, B, Lum [HistogramBins]uint32
	// Samples is the number of pixels that contributed.
	Samples int
}

// HistogramOptions configures NewHistogramSampler.
type HistogramOptions struct {
	// Interval is the minimum time between computations; calls inside it are dropped.
	Interval time.Duration
	// Stride samples every Stride-th pixel of the region.
	Stride int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// HistogramSampler computes throttled histograms of the displayed frame and
// publishes them to subscribers.
type HistogramSampler struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	stride  int
	now     func() time.Time
	latest  *HistogramData
	subs    map[uint64]func(*HistogramData)
	nextID  uint64
}

// NewHistogramSampler creates a sampler, by default limited to one computation per 100ms.
func NewHistogramSampler(opts ...func(o *HistogramOptions)) *HistogramSampler {
	o := HistogramOptions{Interval: 100 * time.Millisecond, Stride: 4, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Stride < 1 {
		o.Stride = 1
	}
	return &HistogramSampler{
		limiter: rate.NewLimiter(rate.Every(o.Interval), 1),
		stride:  o.Stride,
		now:     o.Now,
		subs:    map[uint64]func(*HistogramData){},
	}
}

// Update samples region of src unless throttled. It reports whether a new
// histogram was published.
func (s *HistogramSampler) Update(src image.Image, region image.Rectangle) bool {
	region = region.Intersect(src.Bounds())
	if region.Empty() {
		return false
	}

	s.mu.Lock()
	if !s.limiter.AllowN(s.now(), 1) {
		s.mu.Unlock()
		return false
	}
	stride := s.stride
	s.mu.Unlock()

	h := computeHistogram(src, region, stride)

	s.mu.Lock()
	s.latest = h
	subs := make([]func(*HistogramData), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(h)
	}
	return true
}

// Latest returns the most recent histogram, nil before the first one.
// The result must not be modified.
func (s *HistogramSampler) Latest() *HistogramData {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latest
}

// Subscribe registers fn for every new histogram and returns a function that unsubscribes it.
func (s *HistogramSampler) Subscribe(fn func(*HistogramData)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.subs, id)
	}
}

func computeHistogram(src image.Image, region image.Rectangle, stride int) *HistogramData {
	h := &HistogramData{}
	w := region.Dx()
	total := w * region.Dy()
	for i := 0; i < total; i += stride {
		x, y := region.Min.X+i%w, region.Min.Y+i/w
		r, g, b := pixel8(src, x, y)
		h.R[r]++
		h.G[g]++
		h.B[b]++
		l := int(math.Round(lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)))
		h.Lum[min(l, 255)]++
		h.Samples++
	}
	return h
}

func pixel8(src image.Image, x, y int) (uint8, uint8, uint8) {
	switch im := src.(type) {
	case *image.RGBA:
		i := im.PixOffset(x, y)
		return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
	case *image.NRGBA:
		i := im.PixOffset(x, y)
		return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
	}
	c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
	return c.R, c.G, c.B
}

// DisplayHistogram is a histogram prepared for drawing: log-scaled bins
// normalized to [0,1] and the active bin range.
type DisplayHistogram struct {
	R, G, B, Lum [HistogramBins]float64
	// Lo and Hi bound the bins where any of R, G, B is nonzero.
	Lo, Hi int
}

// Display applies log(1+count), normalizes by the peak over bins 1..254 and
// trims the x range to the first and last bins with color content.
func (h *HistogramData) Display() DisplayHistogram {
	var d DisplayHistogram
	peak := 0.0
	for i := 0; i < HistogramBins; i++ {
		d.R[i] = math.Log1p(float64(h.R[i]))
		d.G[i] = math.Log1p(float64(h.G[i]))
		d.B[i] = math.Log1p(float64(h.B[i]))
		d.Lum[i] = math.Log1p(float64(h.Lum[i]))
		if i > 0 && i < HistogramBins-1 {
			peak = math.Max(peak, math.Max(math.Max(d.R[i], d.G[i]), math.Max(d.B[i], d.Lum[i])))
		}
	}
	if peak == 0 {
		peak = 1
	}
	for i := 0; i < HistogramBins; i++ {
		d.R[i] = math.Min(d.R[i]/peak, 1)
		d.G[i] = math.Min(d.G[i]/peak, 1)
		d.B[i] = math.Min(d.B[i]/peak, 1)
		d.Lum[i] = math.Min(d.Lum[i]/peak, 1)
	}

	empty := func(i int) bool { return h.R[i]+h.G[i]+h.B[i] == 0 }
	d.Lo, d.Hi = 0, HistogramBins-1
	for d.Lo < HistogramBins-1 && empty(d.Lo) {
		d.Lo++
	}
	for d.Hi > d.Lo && empty(d.Hi) {
		d.Hi--
	}
	return d
}
