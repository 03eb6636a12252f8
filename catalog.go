package fiatlux

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog lists the images of a session and reads their bytes.
type Catalog interface {
	Len() int
	Name(i int) string
	Read(ctx context.Context, i int) ([]byte, error)
}

// RawExtensions are the file extensions DirCatalog picks up, lower case.
var RawExtensions = []string{
	".3fr", ".arw", ".cr2", ".cr3", ".crw", ".dng", ".erf", ".kdc", ".mef", ".mos", ".mrw",
	".nef", ".nrw", ".orf", ".pef", ".raf", ".raw", ".rw2", ".rwl", ".sr2", ".srf", ".srw", ".x3f",
	".jpg", ".jpeg", ".png", ".tif", ".tiff",
}

// DirCatalog is a Catalog of the image files in one directory.
type DirCatalog struct {
	dir   string
	names []string
}

var _ Catalog = (*DirCatalog)(nil)

// NewDirCatalog lists the images in dir sorted by name.
func NewDirCatalog(dir string) (*DirCatalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	c := &DirCatalog{dir: dir}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if isImageName(e.Name()) {
			c.names = append(c.names, e.Name())
		}
	}
	sort.Strings(c.names)
	return c, nil
}

func isImageName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range RawExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Dir returns the catalog directory.
func (c *DirCatalog) Dir() string { return c.dir }

// Len implements Catalog.
func (c *DirCatalog) Len() int { return len(c.names) }

// Name implements Catalog.
func (c *DirCatalog) Name(i int) string {
	if i < 0 || i >= len(c.names) {
		return ""
	}
	return c.names[i]
}

// Read implements Catalog.
func (c *DirCatalog) Read(_ context.Context, i int) ([]byte, error) {
	if i < 0 || i >= len(c.names) {
		return nil, fmt.Errorf("catalog index %d out of range", i)
	}
	return os.ReadFile(filepath.Join(c.dir, c.names[i]))
}

// Edited reports whether the store holds edits for image i.
func (c *DirCatalog) Edited(s EditStore, i int) bool {
	return s != nil && s.Has(c.Name(i))
}
