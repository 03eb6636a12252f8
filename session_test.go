package fiatlux

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCatalog struct {
	names []string
}

func (c memCatalog) Len() int { return len(c.names) }

func (c memCatalog) Name(i int) string {
	if i < 0 || i >= len(c.names) {
		return ""
	}
	return c.names[i]
}

func (c memCatalog) Read(_ context.Context, i int) ([]byte, error) {
	return []byte(c.names[i]), nil
}

// tierDecoder returns 8x6 half-size and 16x12 full-size images. Full
// decodes wait for release when gate is set.
type tierDecoder struct {
	mu    sync.Mutex
	gate  chan struct{}
	calls []string
}

func (d *tierDecoder) Decode(ctx context.Context, buf []byte, halfSize bool) (*DecodedImage, error) {
	d.mu.Lock()
	d.calls = append(d.calls, fmt.Sprintf("%s half=%v", buf, halfSize))
	gate := d.gate
	d.mu.Unlock()

	if halfSize {
		img := gradientImage(8, 6)
		img.Scale = 0.5
		return img, nil
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return gradientImage(16, 12), nil
}

func newTestSession(t *testing.T, dec Decoder, store EditStore, names ...string) (*Session, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	s, err := NewSession(memCatalog{names: names}, func(o *SessionOptions) {
		o.Decoder = dec
		o.Store = store
		o.Scheduler = sched
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, sched
}

func awaitFullRes(t *testing.T, s *Session) {
	t.Helper()
	done := s.fullResDone()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("full resolution decode did not finish")
	}
}

func TestSessionRequiresDecoder(t *testing.T) {
	_, err := NewSession(memCatalog{})
	assert.Error(t, err)
}

func TestSessionOpenAndFrameCoalescing(t *testing.T) {
	s, _ := newTestSession(t, &tierDecoder{}, nil, "a.CR2", "b.CR2")
	surface := image.NewRGBA(image.Rect(0, 0, 40, 30))

	rendered, err := s.Frame(surface)
	require.NoError(t, err)
	assert.False(t, rendered, "nothing requested before open")

	require.NoError(t, s.Open(context.Background(), 0))
	assert.Equal(t, "a.CR2", s.Name())
	assert.False(t, s.RequestRedraw(), "already pending")

	rendered, err = s.Frame(surface)
	require.NoError(t, err)
	assert.True(t, rendered)
	rendered, _ = s.Frame(surface)
	assert.False(t, rendered)
	require.NotNil(t, s.Histogram().Latest())

	s.Set(exposure(1))
	s.Set(exposure(1.5))
	rendered, _ = s.Frame(surface)
	assert.True(t, rendered)
	rendered, _ = s.Frame(surface)
	assert.False(t, rendered)
}

func TestSessionNavigationPersistsEdits(t *testing.T) {
	fs := NewFolderStore(t.TempDir())
	s, _ := newTestSession(t, &tierDecoder{}, fs, "a.CR2", "b.CR2")
	ctx := context.Background()

	ok, err := s.Prev(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Open(ctx, 0))
	s.Set(exposure(1))

	ok, err = s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, s.Index())
	assert.True(t, fs.Has("a.CR2"), "switching saves the previous image")
	assert.Zero(t, s.History().Live().Exposure)

	ok, err = s.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Prev(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, s.History().Live().Exposure)
	entries := s.History().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Exposure +1.00", entries[1].Label)
}

func TestSessionCommands(t *testing.T) {
	s, _ := newTestSession(t, &tierDecoder{}, nil, "a.CR2")
	require.NoError(t, s.Open(context.Background(), 0))

	s.Set(exposure(1))
	s.Set(ScalarChange{Param: ParamContrast, Value: 10})
	require.True(t, s.Undo())
	assert.Zero(t, s.History().Live().Contrast)
	require.True(t, s.Redo())
	assert.Equal(t, 10.0, s.History().Live().Contrast)
	require.True(t, s.Reset())
	assert.True(t, Equal(NewDefaultParameters(), s.History().Live()))

	assert.True(t, s.ToggleCrop())
	assert.True(t, s.CropEditing())
	assert.False(t, s.ToggleCrop())

	s.SetCompare(true)
	surface := image.NewRGBA(image.Rect(0, 0, 16, 12))
	rendered, err := s.Frame(surface)
	require.NoError(t, err)
	assert.True(t, rendered)
}

func TestSessionZoomLoadsFullResolution(t *testing.T) {
	dec := &tierDecoder{}
	s, _ := newTestSession(t, dec, nil, "a.CR2")
	require.NoError(t, s.Open(context.Background(), 0))
	w, h := s.Pipeline().ImageDimensions()
	assert.Equal(t, []int{8, 6}, []int{w, h})

	s.SetView(context.Background(), View{Zoom: 1})
	assert.Nil(t, s.fullResDone(), "fit level does not need full resolution")

	s.SetView(context.Background(), View{Zoom: 3})
	awaitFullRes(t, s)
	w, h = s.Pipeline().ImageDimensions()
	assert.Equal(t, []int{16, 12}, []int{w, h})
	assert.Equal(t, 1.0, s.Image().Scale)

	s.SetView(context.Background(), View{Zoom: 4})
	assert.Equal(t, []string{"a.CR2 half=true", "a.CR2 half=false"}, dec.calls, "requested once")
}

func TestSessionDiscardsStaleFullResolution(t *testing.T) {
	dec := &tierDecoder{gate: make(chan struct{})}
	s, _ := newTestSession(t, dec, nil, "a.CR2", "b.CR2")
	ctx := context.Background()
	require.NoError(t, s.Open(ctx, 0))

	s.SetView(ctx, View{Zoom: 2})
	done := s.fullResDone()
	require.NotNil(t, done)

	_, err := s.Next(ctx)
	require.NoError(t, err)
	close(dec.gate)
	<-done

	w, h := s.Pipeline().ImageDimensions()
	assert.Equal(t, []int{8, 6}, []int{w, h}, "result for the previous image is ignored")
	assert.Equal(t, "b.CR2", s.Name())
}

func TestSessionExport(t *testing.T) {
	s, _ := newTestSession(t, &tierDecoder{}, nil, "a.CR2")

	var buf bytes.Buffer
	assert.ErrorIs(t, s.Export(context.Background(), &buf, ExportOptions{}), ErrNoSource)

	require.NoError(t, s.Open(context.Background(), 0))
	require.NoError(t, s.Export(context.Background(), &buf, ExportOptions{Border: BorderBlack, BorderWidth: 20}))
	cfg, err := jpeg.DecodeConfig(&buf)
	require.NoError(t, err)
	// Full resolution 16x12 with round(12*0.2) = 2px border.
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 16, cfg.Height)
}

func TestDirCatalog(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.NEF", "a.cr2", "notes.txt", "c.JPG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
	// Dot-files such as the edit store are not catalog entries.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".fiatlux.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.NEF"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.dng"), 0o700))

	c, err := NewDirCatalog(dir)
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	assert.Equal(t, "a.cr2", c.Name(0))
	assert.Equal(t, "b.NEF", c.Name(1))
	assert.Equal(t, "c.JPG", c.Name(2))
	assert.Equal(t, "", c.Name(3))

	data, err := c.Read(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "b.NEF", string(data))

	fs := NewFolderStore(dir)
	assert.False(t, c.Edited(fs, 0))
	require.NoError(t, fs.Save("a.cr2", &EditRecord{Version: EditRecordVersion, App: AppName}))
	assert.True(t, c.Edited(fs, 0))
}
