package fiatlux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T, opts ...func(o *HistoryOptions)) (*HistoryEngine, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	clock := newFakeClock()
	h := NewHistoryEngine(append([]func(o *HistoryOptions){func(o *HistoryOptions) {
		o.Scheduler = sched
		o.Now = clock.Now
	}}, opts...)...)
	return h, sched
}

func exposure(v float64) Change { return ScalarChange{Param: ParamExposure, Value: v} }

func TestHistoryStartsWithOpenEntry(t *testing.T) {
	h, _ := newTestHistory(t)
	entries := h.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, LabelOpen, entries[0].Label)
	assert.True(t, Equal(NewDefaultParameters(), entries[0].Parameters))
	assert.Equal(t, HistoryIdle, h.State())
	assert.False(t, h.CanUndo())
}

func TestHistoryCoalescesSameParameter(t *testing.T) {
	h, sched := newTestHistory(t)

	h.Set(exposure(0.1))
	sched.Advance(100 * time.Millisecond)
	h.Set(exposure(0.2))
	sched.Advance(100 * time.Millisecond)
	live := h.Set(exposure(0.5))
	assert.Equal(t, 0.5, live.Exposure, "changes apply immediately")
	assert.Equal(t, HistoryAccumulating, h.State())
	assert.Len(t, h.Entries(), 1)

	sched.Advance(DefaultHistoryDebounce)
	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Exposure +0.50", entries[1].Label)
	assert.Equal(t, 0.5, entries[1].Parameters.Exposure)
	assert.Equal(t, HistoryIdle, h.State())
}

func TestHistorySwitchingParameterFlushes(t *testing.T) {
	h, sched := newTestHistory(t)

	h.Set(exposure(1))
	h.Set(ScalarChange{Param: ParamContrast, Value: 20})
	require.Len(t, h.Entries(), 2)

	sched.Advance(DefaultHistoryDebounce)
	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Exposure +1.00", entries[1].Label)
	assert.Zero(t, entries[1].Parameters.Contrast)
	assert.Equal(t, "Contrast +20", entries[2].Label)
}

func TestHistoryUndoRedo(t *testing.T) {
	h, sched := newTestHistory(t)

	h.Set(exposure(1))
	sched.Advance(DefaultHistoryDebounce)
	before := h.Live()
	h.Set(ScalarChange{Param: ParamSaturation, Value: -50})
	after := h.Live()

	// Undo flushes the pending burst first.
	require.True(t, h.Undo())
	assert.True(t, Equal(before, h.Live()))
	assert.Equal(t, HistoryNavigating, h.State())
	assert.Len(t, h.Entries(), 3)
	assert.True(t, h.CanRedo())

	require.True(t, h.Redo())
	assert.True(t, Equal(after, h.Live()))
	assert.False(t, h.Redo())

	require.True(t, h.JumpTo(0))
	assert.True(t, Equal(NewDefaultParameters(), h.Live()))
	assert.False(t, h.Undo())
	assert.False(t, h.JumpTo(7))
	assert.Len(t, h.Entries(), 3, "navigation never pushes")
}

func TestHistorySetAfterUndoTruncatesRedo(t *testing.T) {
	h, _ := newTestHistory(t)

	h.Set(exposure(1))
	h.Flush()
	h.Set(exposure(2))
	h.Flush()
	require.True(t, h.Undo())

	h.Set(ScalarChange{Param: ParamBlacks, Value: -10})
	h.Flush()
	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Blacks -10", entries[2].Label)
	assert.Equal(t, 1.0, entries[2].Parameters.Exposure)
	assert.False(t, h.CanRedo())
}

func TestHistoryFlushWithoutChangeDoesNotPush(t *testing.T) {
	h, _ := newTestHistory(t)

	h.Set(exposure(1))
	h.Set(exposure(0))
	h.Flush()
	assert.Len(t, h.Entries(), 1)
}

func TestHistoryCapacity(t *testing.T) {
	h, _ := newTestHistory(t, func(o *HistoryOptions) { o.Capacity = 3 })

	for i := 1; i <= 5; i++ {
		h.Set(exposure(float64(i) / 10))
		h.Flush()
	}
	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 0.3, entries[0].Parameters.Exposure)
	assert.Equal(t, 2, h.Index())
}

func TestHistoryResetAll(t *testing.T) {
	h, _ := newTestHistory(t)
	assert.False(t, h.ResetAll(), "defaults are not pushed again")

	h.Set(exposure(1))
	require.True(t, h.ResetAll())
	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, LabelReset, entries[2].Label)
	assert.True(t, Equal(NewDefaultParameters(), h.Live()))
}

func TestHistorySubscribers(t *testing.T) {
	h, sched := newTestHistory(t)
	var seen []float64
	unsubscribe := h.Subscribe(func(p EditParameters) { seen = append(seen, p.Exposure) })

	h.Set(exposure(1))
	sched.Advance(DefaultHistoryDebounce)
	h.Undo()
	h.Load(NewDefaultParameters(), nil)
	unsubscribe()
	h.Set(exposure(2))

	assert.Equal(t, []float64{1, 1, 0}, seen)
}

func TestHistoryTimelineRoundTrip(t *testing.T) {
	h, _ := newTestHistory(t)
	h.Set(exposure(1))
	h.Flush()
	h.Set(HSLChange{Channel: HSLLuminance, Band: 2, Value: 30})
	h.Flush()
	h.Undo()

	tl := h.Timeline()
	require.Len(t, tl.Entries, 3)
	assert.Equal(t, 1, tl.Index)
	assert.Empty(t, tl.Entries[0].Edits)

	restored, _ := newTestHistory(t)
	restored.Load(h.Live(), tl)
	assert.Equal(t, 1, restored.Index())
	assert.False(t, restored.Dirty())
	entries := restored.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "HSL Yellow Luminance +30", entries[2].Label)
	assert.Equal(t, 30.0, entries[2].Parameters.HSL.Luminance[2])

	tl.Index = 99
	restored.Load(h.Live(), tl)
	assert.Equal(t, 2, restored.Index(), "index is clamped")

	restored.Load(h.Live(), &Timeline{})
	assert.Len(t, restored.Entries(), 1)
}

func TestHistoryLoadCancelsPendingBurst(t *testing.T) {
	h, sched := newTestHistory(t)
	h.Set(exposure(1))
	h.Load(NewDefaultParameters(), nil)
	sched.Advance(time.Second)
	assert.Len(t, h.Entries(), 1)
	assert.Equal(t, HistoryIdle, h.State())
}

func TestHistoryReplaceReturnsPendingBurst(t *testing.T) {
	h, sched := newTestHistory(t)
	h.Set(exposure(0.5))

	prev := h.Replace(NewDefaultParameters(), nil)
	assert.True(t, prev.Dirty)
	assert.InDelta(t, 0.5, prev.Live.Exposure, 1e-9)
	require.NotNil(t, prev.Timeline)
	require.Len(t, prev.Timeline.Entries, 2)
	assert.Equal(t, 1, prev.Timeline.Index)
	assert.Equal(t, "Exposure +0.50", prev.Timeline.Entries[1].Label)

	assert.Equal(t, HistoryIdle, h.State())
	assert.False(t, h.Dirty())
	assert.InDelta(t, 0, h.Live().Exposure, 1e-9)

	sched.Advance(DefaultHistoryDebounce)
	entries := h.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, LabelOpen, entries[0].Label)
}

func TestRelativeTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for d, want := range map[time.Duration]string{
		2 * time.Second:   "just now",
		12 * time.Second:  "12s ago",
		3 * time.Minute:   "3m ago",
		150 * time.Minute: "2h ago",
	} {
		assert.Equal(t, want, RelativeTime(now.Add(-d), now))
	}
}
