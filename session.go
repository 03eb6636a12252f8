package fiatlux

import (
	"context"
	"errors"
	"fmt"
	"image/draw"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// SessionOptions configures NewSession.
type SessionOptions struct {
	// Decoder is required.
	Decoder Decoder
	// Store persists edits; nil keeps them in memory only.
	Store EditStore
	// Pipeline renders frames; nil creates one on the software device.
	Pipeline *Pipeline
	// Histogram receives displayed frames; nil creates a default sampler.
	Histogram *HistogramSampler

	PixelBudget      int
	HistoryCapacity  int
	HistoryDebounce  time.Duration
	AutosaveDebounce time.Duration
	// Scheduler drives debounce timers; nil uses SystemScheduler.
	Scheduler Scheduler
}

// Session is the editing state of one catalog: the active image, its
// history, the view and the display options. Commands may be issued from
// any goroutine; a display loop calls Frame once per refresh.
type Session struct {
	catalog   Catalog
	decoder   Decoder
	pipeline  *Pipeline
	ownsPipe  bool
	loader    *FullResLoader
	history   *HistoryEngine
	autosave  *AutoSaver
	histogram *HistogramSampler
	unsub     func()

	redraw atomic.Bool

	mu            sync.Mutex
	index         int
	generation    uint64
	raw           []byte
	current       *DecodedImage
	fullRequested bool
	fullDone      chan struct{}
	view          View
	cropEditing   bool
	compare       bool
	closed        bool
}

// NewSession creates a session over catalog. No image is open until Open.
func NewSession(catalog Catalog, opts ...func(o *SessionOptions)) (*Session, error) {
	var o SessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Decoder == nil {
		return nil, errors.New("new session: decoder is required")
	}

	s := &Session{
		catalog:   catalog,
		decoder:   o.Decoder,
		pipeline:  o.Pipeline,
		loader:    NewFullResLoader(o.Decoder, o.PixelBudget),
		histogram: o.Histogram,
		index:     -1,
		view:      View{Zoom: 1},
	}
	if s.pipeline == nil {
		p, err := NewPipeline(nil)
		if err != nil {
			return nil, fmt.Errorf("new session: %w", err)
		}
		s.pipeline, s.ownsPipe = p, true
	}
	if s.histogram == nil {
		s.histogram = NewHistogramSampler()
	}

	s.history = NewHistoryEngine(func(ho *HistoryOptions) {
		if o.HistoryCapacity > 0 {
			ho.Capacity = o.HistoryCapacity
		}
		if o.HistoryDebounce > 0 {
			ho.Debounce = o.HistoryDebounce
		}
		ho.Scheduler = o.Scheduler
	})
	if o.Store != nil {
		s.autosave = NewAutoSaver(o.Store, s.history, func(ao *AutoSaveOptions) {
			if o.AutosaveDebounce > 0 {
				ao.Debounce = o.AutosaveDebounce
			}
			ao.Scheduler = o.Scheduler
		})
	}
	s.unsub = s.history.Subscribe(func(EditParameters) { s.RequestRedraw() })
	return s, nil
}

// History returns the history engine of the active image.
func (s *Session) History() *HistoryEngine { return s.history }

// Histogram returns the sampler fed by Frame.
func (s *Session) Histogram() *HistogramSampler { return s.histogram }

// Pipeline returns the render pipeline.
func (s *Session) Pipeline() *Pipeline { return s.pipeline }

// Index returns the active catalog index, -1 before the first Open.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index
}

// Name returns the active file name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.catalog.Name(s.index)
}

// Generation returns the selection generation; it grows on every Open.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generation
}

// Image returns the installed image.
func (s *Session) Image() *DecodedImage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Open selects catalog image i: pending edits of the previous image are
// flushed and saved, the image is decoded at half size and its stored edits
// and timeline are restored. A decode superseded by a later Open is dropped.
func (s *Session) Open(ctx context.Context, i int) error {
	if i < 0 || i >= s.catalog.Len() {
		return fmt.Errorf("open: index %d out of range [0, %d)", i, s.catalog.Len())
	}
	s.history.Flush()
	if s.autosave != nil {
		s.autosave.Flush()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrReleased
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	name := s.catalog.Name(i)
	raw, err := s.catalog.Read(ctx, i)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	img, err := s.decoder.Decode(ctx, raw, true)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	params, tl := NewDefaultParameters(), (*Timeline)(nil)
	if s.autosave != nil {
		params, tl, err = LoadEdits(s.autosave.store, name)
		if err != nil {
			Logger().Warn("stored edits not restored", "file", name, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		Logger().Debug("discarding superseded decode", "file", name, "generation", gen)
		return nil
	}
	if err := s.pipeline.SetSource(img); err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	s.index = i
	s.raw = raw
	s.current = img
	s.fullRequested = false
	s.fullDone = nil
	s.view = View{Zoom: 1}
	s.cropEditing = false
	s.compare = false

	// Edits made on the previous image up to the swap are saved under its name.
	replace := func() Snapshot { return s.history.Replace(params, tl) }
	if s.autosave != nil {
		_ = s.autosave.Switch(name, replace)
	} else {
		replace()
	}
	s.RequestRedraw()
	Logger().Info("image opened", "file", name, "width", img.Width, "height", img.Height,
		"strategy", img.Strategy, "preview", img.FromPreview)
	return nil
}

// Next opens the following image. It reports false at the end of the catalog.
func (s *Session) Next(ctx context.Context) (bool, error) {
	i := s.Index() + 1
	if i >= s.catalog.Len() {
		return false, nil
	}
	return true, s.Open(ctx, i)
}

// Prev opens the preceding image. It reports false at the start of the catalog.
func (s *Session) Prev(ctx context.Context) (bool, error) {
	i := s.Index() - 1
	if i < 0 {
		return false, nil
	}
	return true, s.Open(ctx, i)
}

// Set applies a change to the active image.
func (s *Session) Set(c Change) EditParameters { return s.history.Set(c) }

// Undo steps back in history.
func (s *Session) Undo() bool { return s.history.Undo() }

// Redo steps forward in history.
func (s *Session) Redo() bool { return s.history.Redo() }

// Reset returns all parameters to defaults.
func (s *Session) Reset() bool { return s.history.ResetAll() }

// ToggleCrop enters or leaves crop editing and returns the new state.
// While editing the whole frame is shown without crop and vignette.
func (s *Session) ToggleCrop() bool {
	s.history.Flush()

	s.mu.Lock()
	s.cropEditing = !s.cropEditing
	on := s.cropEditing
	s.mu.Unlock()

	s.RequestRedraw()
	return on
}

// CropEditing reports whether crop editing is active.
func (s *Session) CropEditing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cropEditing
}

// SetCompare shows the unedited image while on is true.
func (s *Session) SetCompare(on bool) {
	s.mu.Lock()
	changed := s.compare != on
	s.compare = on
	s.mu.Unlock()

	if changed {
		s.RequestRedraw()
	}
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.view
}

// SetView updates zoom and pan. Zooming past the fit level requests the
// full-resolution image once per opened image.
func (s *Session) SetView(ctx context.Context, v View) {
	v = v.Normalized()

	s.mu.Lock()
	s.view = v
	var ch <-chan FullResResult
	if v.Zoom > 1 && !s.fullRequested && s.raw != nil && s.current != nil && s.current.Scale < 1 {
		s.fullRequested = true
		s.fullDone = make(chan struct{})
		ch = s.loader.Start(ctx, s.generation, s.raw)
		go s.awaitFullRes(ch, s.fullDone)
	}
	s.mu.Unlock()

	s.RequestRedraw()
}

func (s *Session) awaitFullRes(ch <-chan FullResResult, done chan struct{}) {
	defer close(done)

	res := <-ch

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return
	case res.Generation != s.generation:
		Logger().Warn("discarding stale full resolution decode", "job", res.JobID.String(),
			"generation", res.Generation, "current", s.generation)
		return
	case res.Err != nil:
		Logger().Warn("full resolution unavailable", "job", res.JobID.String(), "error", res.Err)
		return
	}
	if err := s.pipeline.SetSource(res.Image); err != nil {
		Logger().Warn("full resolution not installed", "error", err)
		return
	}
	s.current = res.Image
	s.RequestRedraw()
	Logger().Info("full resolution applied", "job", res.JobID.String(), "width", res.Image.Width, "height", res.Image.Height)
}

// fullResDone returns a channel closed when the pending full-resolution
// request has been handled, nil when none was made.
func (s *Session) fullResDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fullDone
}

// RequestRedraw marks the display stale. Requests made before the next
// Frame collapse into one; it reports whether this call scheduled it.
func (s *Session) RequestRedraw() bool {
	return s.redraw.CompareAndSwap(false, true)
}

// Frame renders onto surface if a redraw is pending and feeds the
// histogram with the displayed region. It reports whether it rendered.
func (s *Session) Frame(surface draw.Image) (bool, error) {
	if !s.redraw.CompareAndSwap(true, false) {
		return false, nil
	}

	s.mu.Lock()
	view := s.view
	opts := RenderOptions{CropEditing: s.cropEditing, Original: s.compare}
	s.mu.Unlock()

	if err := s.pipeline.Render(s.history.Live(), surface, view, opts); err != nil {
		return true, fmt.Errorf("frame: %w", err)
	}
	s.histogram.Update(surface, s.pipeline.LastViewport())
	return true, nil
}

// Export decodes the active image at full resolution, renders it with the
// live parameters and writes a JPEG to w.
func (s *Session) Export(ctx context.Context, w io.Writer, opts ExportOptions) error {
	s.mu.Lock()
	raw, cur := s.raw, s.current
	s.mu.Unlock()

	if raw == nil {
		return ErrNoSource
	}
	img := cur
	if img.Scale < 1 {
		full, err := s.decoder.Decode(ctx, raw, false)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		img = full
	}
	return Export(w, s.pipeline, img, s.history.Live(), opts)
}

// Close flushes history and pending saves and releases the pipeline if the
// session created it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.history.Flush()
	s.unsub()
	if s.autosave != nil {
		s.autosave.Close()
	}
	if s.ownsPipe {
		s.pipeline.Close()
	}
}
