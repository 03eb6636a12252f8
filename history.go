package fiatlux

import (
	"fmt"
	"sync"
	"time"
)

// HistoryState is the state of the history engine.
type HistoryState int

// History engine states.
const (
	// HistoryIdle means live parameters equal the current entry or were flushed.
	HistoryIdle HistoryState = iota
	// HistoryAccumulating means a burst of changes to one parameter awaits its debounce.
	HistoryAccumulating
	// HistoryNavigating means live parameters were restored from an entry by undo, redo or jump.
	HistoryNavigating
)

func (s HistoryState) String() string {
	switch s {
	case HistoryIdle:
		return "idle"
	case HistoryAccumulating:
		return "accumulating"
	case HistoryNavigating:
		return "navigating"
	}
	return fmt.Sprintf("HistoryState(%d)", int(s))
}

// History defaults.
const (
	DefaultHistoryCapacity = 100
	DefaultHistoryDebounce = 500 * time.Millisecond
)

// Initial and reset entry labels.
const (
	LabelOpen  = "Open"
	LabelReset = "Reset"
)

// HistoryEntry is one snapshot on the timeline.
type HistoryEntry struct {
	Parameters EditParameters
	Label      string
	Timestamp  time.Time
}

// HistoryOptions configures NewHistoryEngine.
type HistoryOptions struct {
	Capacity  int
	Debounce  time.Duration
	Scheduler Scheduler
	Now       func() time.Time
}

// HistoryEngine owns the live parameters of the active image and groups
// bursts of changes into labelled timeline entries.
type HistoryEngine struct {
	debounce *Debouncer
	capacity int
	now      func() time.Time

	mu         sync.Mutex
	live       EditParameters
	entries    []HistoryEntry
	index      int
	state      HistoryState
	pendingKey ChangeKey
	lastChange Change
	dirty      bool

	subs   map[uint64]func(EditParameters)
	nextID uint64
}

// NewHistoryEngine creates an engine holding defaults and a single "Open" entry.
func NewHistoryEngine(opts ...func(o *HistoryOptions)) *HistoryEngine {
	o := HistoryOptions{Capacity: DefaultHistoryCapacity, Debounce: DefaultHistoryDebounce, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Capacity < 2 {
		o.Capacity = 2
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	h := &HistoryEngine{
		capacity: o.Capacity,
		now:      o.Now,
		subs:     map[uint64]func(EditParameters){},
	}
	h.debounce = NewDebouncer(o.Scheduler, o.Debounce, h.commit)
	h.resetLocked(NewDefaultParameters(), nil)
	return h
}

// Subscribe registers fn to receive live parameters after every change to
// them or to the timeline (set, flush, undo, redo, jump, reset). Loading does
// not notify.
func (h *HistoryEngine) Subscribe(fn func(EditParameters)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.subs, id)
	}
}

func (h *HistoryEngine) notify(p EditParameters) {
	h.mu.Lock()
	subs := make([]func(EditParameters), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(p.Clone())
	}
}

// Set applies c to the live parameters immediately. Consecutive changes with
// the same key collapse into one entry pushed when the debounce elapses; a
// change with another key flushes the pending burst first.
func (h *HistoryEngine) Set(c Change) EditParameters {
	h.mu.Lock()
	if h.state == HistoryAccumulating && c.Key() != h.pendingKey {
		h.pushLocked(h.label())
	}
	h.live = c.Apply(h.live)
	h.lastChange = c
	h.pendingKey = c.Key()
	h.state = HistoryAccumulating
	h.dirty = true
	live := h.live.Clone()
	h.mu.Unlock()

	h.debounce.Trigger()
	h.notify(live)
	return live
}

// commit is the debounce callback.
func (h *HistoryEngine) commit() {
	h.mu.Lock()
	pushed := h.flushLocked()
	live := h.live.Clone()
	h.mu.Unlock()

	if pushed {
		h.notify(live)
	}
}

// Flush pushes a pending burst now. It is called on image switch, drag
// release and before navigation.
func (h *HistoryEngine) Flush() {
	h.debounce.Cancel()
	h.commit()
}

func (h *HistoryEngine) flushLocked() bool {
	if h.state != HistoryAccumulating {
		return false
	}
	pushed := h.pushLocked(h.label())
	h.state = HistoryIdle
	h.lastChange = nil
	return pushed
}

func (h *HistoryEngine) label() string {
	if h.lastChange == nil {
		return "Edit"
	}
	return h.lastChange.Label(h.live)
}

// pushLocked appends live as a new entry if it differs from the current one,
// truncating redo entries and dropping the oldest beyond capacity.
func (h *HistoryEngine) pushLocked(label string) bool {
	if Equal(h.live, h.entries[h.index].Parameters) {
		return false
	}
	h.entries = append(h.entries[:h.index+1], HistoryEntry{
		Parameters: h.live.Clone(),
		Label:      label,
		Timestamp:  h.now(),
	})
	if over := len(h.entries) - h.capacity; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
	h.index = len(h.entries) - 1
	return true
}

// Undo moves to the previous entry. It reports false at the start of the timeline.
func (h *HistoryEngine) Undo() bool {
	return h.move(func(i int) int { return i - 1 })
}

// Redo moves to the next entry. It reports false at the end of the timeline.
func (h *HistoryEngine) Redo() bool {
	return h.move(func(i int) int { return i + 1 })
}

// JumpTo restores entry i. It reports false when i is out of range.
func (h *HistoryEngine) JumpTo(i int) bool {
	return h.move(func(int) int { return i })
}

// move flushes, then replaces live with a copy of the target entry. It never pushes.
func (h *HistoryEngine) move(target func(current int) int) bool {
	h.Flush()

	h.mu.Lock()
	i := target(h.index)
	if i < 0 || i >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	if i == h.index {
		h.mu.Unlock()
		return true
	}
	h.index = i
	h.live = h.entries[i].Parameters.Clone()
	h.state = HistoryNavigating
	h.dirty = true
	live := h.live.Clone()
	h.mu.Unlock()

	h.notify(live)
	return true
}

// ResetAll flushes and, unless live already equals defaults, pushes a "Reset"
// entry holding defaults.
func (h *HistoryEngine) ResetAll() bool {
	h.Flush()

	h.mu.Lock()
	defaults := NewDefaultParameters()
	if Equal(h.live, defaults) {
		h.mu.Unlock()
		return false
	}
	h.live = defaults
	h.pushLocked(LabelReset)
	h.state = HistoryIdle
	h.dirty = true
	live := h.live.Clone()
	h.mu.Unlock()

	h.notify(live)
	return true
}

// Load replaces live parameters and the timeline for a newly selected image,
// cancelling any pending burst. A nil or empty timeline starts a fresh one
// with a single "Open" entry.
func (h *HistoryEngine) Load(p EditParameters, tl *Timeline) {
	h.debounce.Cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.resetLocked(p, tl)
}

// Snapshot is the state an image leaves behind when another one is loaded.
type Snapshot struct {
	Live     EditParameters
	Timeline *Timeline
	// Dirty is set when Live holds changes not yet persisted.
	Dirty bool
}

// Replace pushes a pending burst and swaps in p and tl in one step,
// returning the replaced state. A concurrent Set lands either in the
// returned snapshot or in the new state, never in neither.
func (h *HistoryEngine) Replace(p EditParameters, tl *Timeline) Snapshot {
	h.debounce.Cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.flushLocked()
	prev := Snapshot{Live: h.live.Clone(), Timeline: h.timelineLocked(), Dirty: h.dirty}
	h.resetLocked(p, tl)
	return prev
}

func (h *HistoryEngine) resetLocked(p EditParameters, tl *Timeline) {
	h.live = p.Clone()
	h.state = HistoryIdle
	h.lastChange = nil
	h.pendingKey = ChangeKey{}
	h.dirty = false

	if entries, index, ok := tl.restore(); ok {
		if len(entries) > h.capacity {
			drop := len(entries) - h.capacity
			entries = entries[drop:]
			index = max(index-drop, 0)
		}
		h.entries, h.index = entries, index
		return
	}
	h.entries = []HistoryEntry{{Parameters: p.Clone(), Label: LabelOpen, Timestamp: h.now()}}
	h.index = 0
}

// Live returns a copy of the live parameters.
func (h *HistoryEngine) Live() EditParameters {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.live.Clone()
}

// Index returns the current timeline position.
func (h *HistoryEngine) Index() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.index
}

// State returns the engine state.
func (h *HistoryEngine) State() HistoryState {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// Entries returns a copy of the timeline.
func (h *HistoryEngine) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[i] = HistoryEntry{Parameters: e.Parameters.Clone(), Label: e.Label, Timestamp: e.Timestamp}
	}
	return out
}

// CanUndo reports whether Undo would move.
func (h *HistoryEngine) CanUndo() bool { return h.Index() > 0 }

// CanRedo reports whether Redo would move.
func (h *HistoryEngine) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.index < len(h.entries)-1
}

// Dirty reports whether live parameters changed since Load or MarkClean.
func (h *HistoryEngine) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dirty
}

// MarkClean clears the dirty flag after persisting.
func (h *HistoryEngine) MarkClean() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dirty = false
}

// Timeline returns the persistable form of the timeline.
func (h *HistoryEngine) Timeline() *Timeline {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.timelineLocked()
}

func (h *HistoryEngine) timelineLocked() *Timeline {
	tl := &Timeline{Index: h.index, Entries: make([]TimelineEntry, len(h.entries))}
	for i, e := range h.entries {
		tl.Entries[i] = TimelineEntry{Edits: Diff(e.Parameters), Label: e.Label, Timestamp: e.Timestamp}
	}
	return tl
}

// Timeline is the persisted history of one image. Entries hold sparse diffs
// against defaults.
type Timeline struct {
	Entries []TimelineEntry `json:"entries"`
	Index   int             `json:"index"`
}

// TimelineEntry is a persisted HistoryEntry.
type TimelineEntry struct {
	Edits     SparseDiff `json:"edits"`
	Label     string     `json:"label"`
	Timestamp time.Time  `json:"timestamp"`
}

// restore expands the timeline, clamping the index. Entries that fail to
// merge keep the fields that did.
func (tl *Timeline) restore() ([]HistoryEntry, int, bool) {
	if tl == nil || len(tl.Entries) == 0 {
		return nil, 0, false
	}
	entries := make([]HistoryEntry, len(tl.Entries))
	for i, e := range tl.Entries {
		p, err := LoadParameters(e.Edits)
		if err != nil {
			Logger().Warn("history entry partially restored", "index", i, "label", e.Label, "error", err)
		}
		entries[i] = HistoryEntry{Parameters: p, Label: e.Label, Timestamp: e.Timestamp}
	}
	return entries, min(max(tl.Index, 0), len(entries)-1), true
}

// RelativeTime formats the age of t for the history list.
func RelativeTime(t, now time.Time) string {
	secs := int(now.Sub(t) / time.Second)
	switch {
	case secs < 5:
		return "just now"
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	}
	return fmt.Sprintf("%dh ago", secs/3600)
}
