package jpegx

import (
	"errors"
	"fmt"
)

// ErrNoFrame is returned when a stream has no start-of-frame segment before its first scan.
var ErrNoFrame = errors.New("jpegx: no frame header")

// FrameHeader is the content of a SOFn segment.
type FrameHeader struct {
	Marker     byte
	Precision  int
	Width      int
	Height     int
	Components int
}

// Lossless reports whether the frame uses one of the lossless processes.
// RAW containers store undemosaiced sensor data this way.
func (h FrameHeader) Lossless() bool { return isLosslessSOF(h.Marker) }

// Progressive reports whether the frame is progressively coded.
func (h FrameHeader) Progressive() bool {
	return h.Marker == markerSOF2 || h.Marker == 0xc6 || h.Marker == 0xca || h.Marker == 0xce
}

// Pixels returns Width*Height.
func (h FrameHeader) Pixels() int { return h.Width * h.Height }

// ParseFrameHeader reads the first SOFn segment of a JPEG stream.
func ParseFrameHeader(data []byte) (FrameHeader, error) {
	var (
		h     FrameHeader
		found bool
		perr  error
	)
	err := walkHeader(data, func(marker byte, payload []byte) bool {
		if !isSOF(marker) {
			return true
		}
		if len(payload) < 6 {
			perr = fmt.Errorf("jpegx: short SOF%d segment", marker-markerSOF0)
			return false
		}
		h = FrameHeader{
			Marker:     marker,
			Precision:  int(payload[0]),
			Height:     int(payload[1])<<8 | int(payload[2]),
			Width:      int(payload[3])<<8 | int(payload[4]),
			Components: int(payload[5]),
		}
		found = true
		return false
	})
	if err != nil {
		return FrameHeader{}, fmt.Errorf("jpegx: %w", err)
	}
	if perr != nil {
		return FrameHeader{}, perr
	}
	if !found {
		return FrameHeader{}, ErrNoFrame
	}
	return h, nil
}
