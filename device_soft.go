package fiatlux

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/vearutop/fiatlux/internal/parallel"
)

// SoftwareOptions configures NewSoftwareDevice.
type SoftwareOptions struct {
	// Workers bounds row-band parallelism, 0 means GOMAXPROCS.
	Workers int
	// Unsupported lists pass kinds whose programs fail to compile.
	Unsupported []PassKind
}

// SoftwareDevice runs pass programs on the CPU, splitting each draw into row bands.
type SoftwareDevice struct {
	pool        *parallel.Pool
	unsupported map[PassKind]bool
	live        atomic.Int64
}

var _ Device = (*SoftwareDevice)(nil)

// NewSoftwareDevice creates a CPU device.
func NewSoftwareDevice(opts ...func(o *SoftwareOptions)) *SoftwareDevice {
	var o SoftwareOptions
	for _, opt := range opts {
		opt(&o)
	}
	d := &SoftwareDevice{pool: parallel.Default(), unsupported: map[PassKind]bool{}}
	if o.Workers > 0 {
		d.pool = parallel.NewPool(o.Workers)
	}
	for _, k := range o.Unsupported {
		d.unsupported[k] = true
	}
	return d
}

// Live returns the number of textures and programs not yet released.
func (d *SoftwareDevice) Live() int { return int(d.live.Load()) }

type softProgram struct {
	kind     PassKind
	kernel   kernelFunc
	released bool
}

func (p *softProgram) Kind() PassKind { return p.kind }

type softTexture struct {
	w, h     int
	pix      []float32
	lut      bool
	released bool
}

func (t *softTexture) Size() (int, int) { return t.w, t.h }

func (d *SoftwareDevice) CompileProgram(kind PassKind) (Program, error) {
	if d.unsupported[kind] {
		return nil, &ProgramError{Pass: kind, Err: errors.New("unsupported by device")}
	}
	if kind < 0 || kind >= passKindCount || kernels[kind] == nil {
		return nil, &ProgramError{Pass: kind, Err: errors.New("unknown pass kind")}
	}
	d.live.Add(1)
	return &softProgram{kind: kind, kernel: kernels[kind]}, nil
}

func (d *SoftwareDevice) NewTexture(w, h int, pix []float32) (Texture, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("texture size %dx%d", w, h)
	}
	if len(pix) < w*h*3 {
		return nil, fmt.Errorf("texture data: have %d samples, need %d", len(pix), w*h*3)
	}
	d.live.Add(1)
	return &softTexture{w: w, h: h, pix: pix[:w*h*3]}, nil
}

func (d *SoftwareDevice) NewTarget(w, h int) (Texture, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("target size %dx%d", w, h)
	}
	d.live.Add(1)
	return &softTexture{w: w, h: h, pix: make([]float32, w*h*3)}, nil
}

func (d *SoftwareDevice) NewLUT(size int) (Texture, error) {
	if size < 2 {
		return nil, fmt.Errorf("lut size %d", size)
	}
	d.live.Add(1)
	return &softTexture{w: size, h: 1, pix: make([]float32, size), lut: true}, nil
}

func (d *SoftwareDevice) WriteLUT(lut Texture, data []float32) error {
	t, err := liveTexture(lut)
	if err != nil {
		return err
	}
	if !t.lut || len(data) != t.w {
		return fmt.Errorf("lut write: size %d into %d", len(data), t.w)
	}
	copy(t.pix, data)
	return nil
}

func liveTexture(t Texture) (*softTexture, error) {
	st, ok := t.(*softTexture)
	if !ok || st == nil {
		return nil, fmt.Errorf("foreign texture %T", t)
	}
	if st.released {
		return nil, ErrReleased
	}
	return st, nil
}

func optionalTexture(t Texture) (*softTexture, error) {
	if t == nil {
		return nil, nil
	}
	return liveTexture(t)
}

func (d *SoftwareDevice) Draw(p Program, u *Uniforms, in Inputs, dst Texture) error {
	prog, ok := p.(*softProgram)
	if !ok || prog == nil {
		return fmt.Errorf("foreign program %T", p)
	}
	if prog.released {
		return ErrReleased
	}
	out, err := liveTexture(dst)
	if err != nil {
		return fmt.Errorf("%s: target: %w", prog.kind, err)
	}
	src, err := liveTexture(in.Source)
	if err != nil {
		return fmt.Errorf("%s: source: %w", prog.kind, err)
	}
	aux, err := optionalTexture(in.Aux)
	if err != nil {
		return fmt.Errorf("%s: aux: %w", prog.kind, err)
	}
	if out == src || out == aux {
		return fmt.Errorf("%s: %w", prog.kind, ErrTargetAliasing)
	}
	if prog.kind != PassOutput && (src.w != out.w || src.h != out.h) {
		return fmt.Errorf("%s: source %dx%d does not match target %dx%d", prog.kind, src.w, src.h, out.w, out.h)
	}

	ki := kernelInputs{src: src, aux: aux}
	for i, c := range in.Curves {
		lt, err := optionalTexture(c)
		if err != nil {
			return fmt.Errorf("%s: curve %d: %w", prog.kind, i, err)
		}
		if lt != nil {
			ki.curves[i] = lt.pix
		}
	}

	d.pool.For(out.h, func(y0, y1 int) {
		prog.kernel(u, &ki, out, y0, y1)
	})
	return nil
}

func (d *SoftwareDevice) ReadPixels(t Texture) ([]float32, error) {
	st, err := liveTexture(t)
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), st.pix...), nil
}

func (d *SoftwareDevice) Release(r any) {
	switch v := r.(type) {
	case *softTexture:
		if v != nil && !v.released {
			v.released = true
			v.pix = nil
			d.live.Add(-1)
		}
	case *softProgram:
		if v != nil && !v.released {
			v.released = true
			d.live.Add(-1)
		}
	}
}
