package fiatlux

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vearutop/fiatlux/internal/store"
)

// Edit record identification.
const (
	EditRecordVersion = 1
	AppName           = "fiatlux"
)

// DefaultAutosaveDebounce is the quiet period before edits are persisted.
const DefaultAutosaveDebounce = 500 * time.Millisecond

// EditRecord is what is persisted per image.
type EditRecord struct {
	Version      int        `json:"version"`
	App          string     `json:"app"`
	LastModified time.Time  `json:"lastModified"`
	Edits        SparseDiff `json:"edits"`
	History      *Timeline  `json:"history,omitempty"`
}

// EditStore persists edit records by image file name.
type EditStore interface {
	// Load returns nil without error when no record exists.
	Load(name string) (*EditRecord, error)
	Save(name string, rec *EditRecord) error
	Has(name string) bool
}

// FolderStore keeps the records of a folder in one JSON file inside it.
type FolderStore struct {
	f *store.Folder
}

var _ EditStore = (*FolderStore)(nil)

// NewFolderStore opens the edit store of dir.
func NewFolderStore(dir string) *FolderStore {
	return &FolderStore{f: store.Open(dir)}
}

// Path returns the backing file.
func (s *FolderStore) Path() string { return s.f.Path() }

// Load implements EditStore.
func (s *FolderStore) Load(name string) (*EditRecord, error) {
	raw, err := s.f.Get(name)
	if err != nil || raw == nil {
		return nil, err
	}
	var rec EditRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode edits of %s: %w", name, err)
	}
	return &rec, nil
}

// Save implements EditStore.
func (s *FolderStore) Save(name string, rec *EditRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode edits of %s: %w", name, err)
	}
	return s.f.Put(name, raw)
}

// Has implements EditStore.
func (s *FolderStore) Has(name string) bool { return s.f.Has(name) }

// Names lists images with stored edits.
func (s *FolderStore) Names() ([]string, error) { return s.f.Names() }

// LoadEdits returns the stored parameters and timeline of name. Missing or
// empty records yield defaults and a nil timeline.
func LoadEdits(s EditStore, name string) (EditParameters, *Timeline, error) {
	rec, err := s.Load(name)
	if err != nil {
		return NewDefaultParameters(), nil, err
	}
	if rec == nil {
		return NewDefaultParameters(), nil, nil
	}
	p, err := LoadParameters(rec.Edits)
	return p, rec.History, err
}

// AutoSaveOptions configures NewAutoSaver.
type AutoSaveOptions struct {
	Debounce  time.Duration
	Scheduler Scheduler
	Now       func() time.Time
}

// AutoSaver persists the live parameters and timeline of the active image
// after the history engine has been quiet for the debounce period.
// Failures are logged; in-memory edits are never rolled back.
type AutoSaver struct {
	store    EditStore
	history  *HistoryEngine
	debounce *Debouncer
	now      func() time.Time
	unsub    func()

	// saving serializes Save and Switch.
	saving sync.Mutex

	mu     sync.Mutex
	active string
}

// NewAutoSaver subscribes to h and saves into s.
func NewAutoSaver(s EditStore, h *HistoryEngine, opts ...func(o *AutoSaveOptions)) *AutoSaver {
	o := AutoSaveOptions{Debounce: DefaultAutosaveDebounce, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	a := &AutoSaver{store: s, history: h, now: o.Now}
	a.debounce = NewDebouncer(o.Scheduler, o.Debounce, func() { _ = a.Save() })
	a.unsub = h.Subscribe(func(EditParameters) {
		if a.Active() != "" {
			a.debounce.Trigger()
		}
	})
	return a
}

// Active returns the file name edits are saved under.
func (a *AutoSaver) Active() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.active
}

// SetActive flushes a pending save for the previous image and switches to name.
func (a *AutoSaver) SetActive(name string) {
	a.debounce.Flush()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = name
}

// Save persists the current state now.
func (a *AutoSaver) Save() error {
	a.saving.Lock()
	defer a.saving.Unlock()

	name := a.Active()
	if name == "" {
		return nil
	}
	if err := a.persist(name, a.history.Live(), a.history.Timeline()); err != nil {
		return err
	}
	a.history.MarkClean()
	return nil
}

// Switch makes name the active image. replace installs the new image state
// in the history engine and returns the previous one, which is saved under
// the previously active name when it holds unsaved edits. No autosave runs
// in between, so edits of one image are never written under the other name.
func (a *AutoSaver) Switch(name string, replace func() Snapshot) error {
	a.saving.Lock()
	defer a.saving.Unlock()

	a.debounce.Cancel()
	prev := replace()

	a.mu.Lock()
	old := a.active
	a.active = name
	a.mu.Unlock()

	if old == "" || !prev.Dirty {
		return nil
	}
	return a.persist(old, prev.Live, prev.Timeline)
}

func (a *AutoSaver) persist(name string, live EditParameters, tl *Timeline) error {
	rec := &EditRecord{
		Version:      EditRecordVersion,
		App:          AppName,
		LastModified: a.now().UTC(),
		Edits:        Diff(live),
		History:      tl,
	}
	if err := a.store.Save(name, rec); err != nil {
		Logger().Warn("autosave failed", "file", name, "error", err)
		return fmt.Errorf("save edits of %s: %w", name, err)
	}
	Logger().Debug("edits saved", "file", name, "keys", rec.Edits.Keys())
	return nil
}

// Pending reports whether a save is scheduled.
func (a *AutoSaver) Pending() bool { return a.debounce.Pending() }

// Flush saves now if a save is pending.
func (a *AutoSaver) Flush() { a.debounce.Flush() }

// Close flushes and detaches from the history engine.
func (a *AutoSaver) Close() {
	a.unsub()
	a.debounce.Flush()
}
