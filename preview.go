package fiatlux

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"sort"

	"github.com/vearutop/fiatlux/internal/jpegx"
)

const (
	minPreviewEdge = 64
	maxPreviewEdge = 20000
	// Baseline JPEG at camera quality stays well under this; sensor dumps
	// that merely share the SOI/EOI markers do not.
	maxPreviewBytesPerPixel = 1.6
)

// ExtractEmbeddedPreview returns the largest valid JPEG preview embedded in a
// RAW container. Candidates are tried from the biggest down; lossless frames,
// implausible dimensions and streams too large for their pixel count are
// skipped.
func ExtractEmbeddedPreview(buf []byte) ([]byte, error) {
	ranges := jpegx.Scan(buf)
	if len(ranges) == 0 {
		return nil, ErrNoPreview
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i][1]-ranges[i][0] > ranges[j][1]-ranges[j][0]
	})

	var lastErr error
	for _, r := range ranges {
		data := buf[r[0]:r[1]]
		if err := validatePreview(data); err != nil {
			Logger().Debug("embedded JPEG rejected", "offset", r[0], "size", len(data), "error", err)
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidPreview, lastErr)
}

func validatePreview(data []byte) error {
	h, err := jpegx.ParseFrameHeader(data)
	if err != nil {
		return err
	}
	if h.Lossless() {
		return fmt.Errorf("lossless frame %dx%d", h.Width, h.Height)
	}
	if h.Components != 1 && h.Components != 3 {
		return fmt.Errorf("%d components", h.Components)
	}
	if h.Width < minPreviewEdge || h.Height < minPreviewEdge || h.Width > maxPreviewEdge || h.Height > maxPreviewEdge {
		return fmt.Errorf("implausible dimensions %dx%d", h.Width, h.Height)
	}
	if bpp := float64(len(data)) / float64(h.Pixels()); bpp > maxPreviewBytesPerPixel {
		return fmt.Errorf("%.2f bytes per pixel for %dx%d", bpp, h.Width, h.Height)
	}
	return nil
}

// decodePreview decodes a display-referred JPEG into linear light, honoring
// an embedded ICC profile.
func decodePreview(data []byte) (*DecodedImage, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}
	return linearFromImage(img, jpegColorProfile(data)), nil
}

func jpegColorProfile(data []byte) colorProfile {
	_, app2, err := jpegx.AppSegments(data)
	if err != nil {
		return detectColorProfileFromICCProfile(nil)
	}
	return detectColorProfileFromICCProfile(jpegx.ICCProfile(app2))
}
