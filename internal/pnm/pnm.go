// Package pnm parses binary portable pixmaps as produced by RAW converters.
package pnm

import (
	"errors"
	"fmt"
	"strconv"
)

// Image is a decoded pixmap with samples normalized to [0,1].
type Image struct {
	Width  int
	Height int
	MaxVal int
	// Pix holds interleaved RGB samples; graymaps are expanded to RGB.
	Pix []float32
}

// Decode parses a binary P6 (RGB) or P5 (gray) pixmap.
// Samples wider than 8 bits (maxval > 255) are big-endian 16-bit.
func Decode(data []byte) (*Image, error) {
	r := reader{data: data}

	magic, err := r.token()
	if err != nil {
		return nil, fmt.Errorf("pnm: magic: %w", err)
	}
	var channels int
	switch magic {
	case "P6":
		channels = 3
	case "P5":
		channels = 1
	default:
		return nil, fmt.Errorf("pnm: unsupported magic %q", magic)
	}

	w, err := r.int("width")
	if err != nil {
		return nil, err
	}
	h, err := r.int("height")
	if err != nil {
		return nil, err
	}
	maxVal, err := r.int("maxval")
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("pnm: invalid dimensions %dx%d", w, h)
	}
	if maxVal <= 0 || maxVal > 65535 {
		return nil, fmt.Errorf("pnm: invalid maxval %d", maxVal)
	}

	// Exactly one whitespace byte separates the header from the raster.
	if r.pos >= len(data) {
		return nil, errors.New("pnm: missing raster")
	}
	r.pos++

	bytesPerSample := 1
	if maxVal > 255 {
		bytesPerSample = 2
	}
	samples := w * h * channels
	raster := data[r.pos:]
	if len(raster) < samples*bytesPerSample {
		return nil, fmt.Errorf("pnm: raster truncated: have %d bytes, need %d", len(raster), samples*bytesPerSample)
	}

	img := &Image{Width: w, Height: h, MaxVal: maxVal, Pix: make([]float32, w*h*3)}
	scale := 1 / float32(maxVal)
	for i := 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			s := i*channels + min(c, channels-1)
			var v int
			if bytesPerSample == 2 {
				v = int(raster[2*s])<<8 | int(raster[2*s+1])
			} else {
				v = int(raster[s])
			}
			img.Pix[i*3+c] = min(float32(v)*scale, 1)
		}
	}
	return img, nil
}

type reader struct {
	data []byte
	pos  int
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// token skips whitespace and '#' comments, then returns the next word.
func (r *reader) token() (string, error) {
	for r.pos < len(r.data) {
		b := r.data[r.pos]
		if b == '#' {
			for r.pos < len(r.data) && r.data[r.pos] != '\n' {
				r.pos++
			}
			continue
		}
		if !isSpace(b) {
			break
		}
		r.pos++
	}
	start := r.pos
	for r.pos < len(r.data) && !isSpace(r.data[r.pos]) && r.data[r.pos] != '#' {
		r.pos++
	}
	if start == r.pos {
		return "", errors.New("unexpected end of header")
	}
	return string(r.data[start:r.pos]), nil
}

func (r *reader) int(name string) (int, error) {
	tok, err := r.token()
	if err != nil {
		return 0, fmt.Errorf("pnm: %s: %w", name, err)
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("pnm: %s: %w", name, err)
	}
	return v, nil
}
