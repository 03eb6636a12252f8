package fiatlux

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/vearutop/fiatlux/internal/jpegx"
)

// Metadata describes a RAW file. Unknown fields are left zero.
type Metadata struct {
	Camera      string  `json:"camera,omitempty"`
	ISO         float64 `json:"iso,omitempty"`
	// Shutter is formatted like "1/250".
	Shutter     string  `json:"shutter,omitempty"`
	// Aperture is formatted like "f/2.8".
	Aperture    string  `json:"aperture,omitempty"`
	// FocalLength is formatted like "50mm".
	FocalLength string  `json:"focalLength,omitempty"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
}

// ExtractMetadata identifies buf with conv. It never fails: converter errors
// and malformed output leave fields empty. When the converter reports no
// size, the embedded preview dimensions are used.
func ExtractMetadata(ctx context.Context, conv Converter, buf []byte) (md Metadata) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Debug("metadata extraction panicked", "panic", r)
		}
		if md.Width == 0 || md.Height == 0 {
			md.Width, md.Height = previewSize(buf)
		}
	}()

	if conv == nil {
		return md
	}
	text, err := conv.Identify(ctx, buf)
	if err != nil {
		Logger().Debug("identify failed", "error", err)
		return md
	}
	return parseIdentify(text)
}

func previewSize(buf []byte) (int, int) {
	data, err := ExtractEmbeddedPreview(buf)
	if err != nil {
		return 0, 0
	}
	h, err := jpegx.ParseFrameHeader(data)
	if err != nil {
		return 0, 0
	}
	return h.Width, h.Height
}

var (
	imageSizeRe   = regexp.MustCompile(`(\d+)\s*x\s*(\d+)`)
	focalLengthRe = regexp.MustCompile(`([\d.]+)\s*mm`)
)

func parseIdentify(text string) Metadata {
	var md Metadata
	for _, line := range strings.Split(text, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch key {
		case "Camera":
			md.Camera = val
		case "ISO speed":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				md.ISO = v
			}
		case "Shutter":
			md.Shutter = formatShutter(val)
		case "Aperture":
			md.Aperture = val
		case "Image size":
			if m := imageSizeRe.FindStringSubmatch(val); m != nil {
				md.Width, _ = strconv.Atoi(m[1])
				md.Height, _ = strconv.Atoi(m[2])
			}
		case "Focal length":
			if m := focalLengthRe.FindStringSubmatch(val); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					md.FocalLength = strconv.FormatFloat(v, 'f', -1, 64) + "mm"
				}
			}
		}
	}
	return md
}

// formatShutter turns "1/250.0 sec" into "1/250" and "0.004 sec" into "1/250".
func formatShutter(s string) string {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "sec"))
	if s == "" {
		return ""
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		if d, err := strconv.ParseFloat(den, 64); err == nil {
			return num + "/" + strconv.FormatFloat(d, 'f', -1, 64)
		}
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if v > 0 && v < 1 {
		return fmt.Sprintf("1/%d", int(math.Round(1/v)))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
