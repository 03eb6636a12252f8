// Package store keeps edit records for the images of one folder in a single JSON file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileName is the name of the record file inside a folder.
const FileName = ".fiatlux.json"

// Folder is a name -> record map persisted next to the images it describes.
// Records are opaque JSON documents.
type Folder struct {
	path string

	mu      sync.Mutex
	loaded  bool
	records map[string]json.RawMessage
}

// Open returns the store for dir. The file is read lazily.
func Open(dir string) *Folder {
	return &Folder{path: filepath.Join(dir, FileName)}
}

// Path returns the backing file path.
func (f *Folder) Path() string { return f.path }

func (f *Folder) load() error {
	if f.loaded {
		return nil
	}
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.records = map[string]json.RawMessage{}
	case err != nil:
		return fmt.Errorf("read %s: %w", f.path, err)
	default:
		records := map[string]json.RawMessage{}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("decode %s: %w", f.path, err)
			}
		}
		f.records = records
	}
	f.loaded = true
	return nil
}

// Get returns the raw record stored under name, or nil when absent.
func (f *Folder) Get(name string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return nil, err
	}
	rec, ok := f.records[name]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), rec...), nil
}

// Has reports whether a record exists for name.
func (f *Folder) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return false
	}
	_, ok := f.records[name]
	return ok
}

// Names lists record names in lexical order.
func (f *Folder) Names() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.records))
	for n := range f.records {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Put stores rec under name and rewrites the file. A nil rec deletes the entry.
func (f *Folder) Put(name string, rec json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	prev, had := f.records[name]
	if rec == nil {
		delete(f.records, name)
	} else {
		f.records[name] = append(json.RawMessage(nil), rec...)
	}
	if err := f.flush(); err != nil {
		if had {
			f.records[name] = prev
		} else {
			delete(f.records, name)
		}
		return err
	}
	return nil
}

// flush writes the records to a temporary file and renames it over the target.
func (f *Folder) flush() error {
	data, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), FileName+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
