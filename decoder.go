package fiatlux

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/png" // Rendered-image fallback.

	_ "golang.org/x/image/tiff" // Rendered-image fallback.

	"github.com/vearutop/fiatlux/internal/pnm"
)

// Decode strategy names reported in DecodedImage.Strategy.
const (
	StrategyConverter = "converter"
	StrategyPreview   = "preview"
	StrategyRendered  = "rendered"
)

// ConvertOptions controls a RAW conversion.
type ConvertOptions struct {
	// HalfSize skips demosaicing and halves each dimension.
	HalfSize bool
}

// Conversion is the output of a RAW converter.
type Conversion struct {
	// Pixmap is a binary portable pixmap with linear samples.
	Pixmap []byte
	// Multipliers are the camera white balance multipliers, zero when unknown.
	Multipliers WhiteBalance
}

// Converter turns RAW bytes into a linear pixmap.
type Converter interface {
	Convert(ctx context.Context, raw []byte, opts ConvertOptions) (*Conversion, error)
	// Identify returns a textual description of the file (camera, exposure, size).
	Identify(ctx context.Context, raw []byte) (string, error)
}

// Decoder produces linear images from RAW bytes.
type Decoder interface {
	Decode(ctx context.Context, buf []byte, halfSize bool) (*DecodedImage, error)
}

// DecoderOptions configures NewRawDecoder.
type DecoderOptions struct {
	// Converter is the primary strategy; nil skips it.
	Converter Converter
	// SkipPreview disables the embedded preview fallback.
	SkipPreview bool
}

// RawDecoder decodes RAW buffers with a chain of strategies: the external
// converter, the embedded JPEG preview, and finally the standard image
// decoders for already rendered files.
type RawDecoder struct {
	conv        Converter
	skipPreview bool
}

var _ Decoder = (*RawDecoder)(nil)

// NewRawDecoder creates a decoder.
func NewRawDecoder(opts ...func(o *DecoderOptions)) *RawDecoder {
	var o DecoderOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &RawDecoder{conv: o.Converter, skipPreview: o.SkipPreview}
}

// WithConverter sets the primary converter.
func WithConverter(c Converter) func(o *DecoderOptions) {
	return func(o *DecoderOptions) { o.Converter = c }
}

// Converter returns the configured converter, nil if none.
func (d *RawDecoder) Converter() Converter { return d.conv }

type decodeStrategy struct {
	name string
	fn   func(ctx context.Context, buf []byte, halfSize bool) (*DecodedImage, error)
}

// Decode runs the strategy chain and returns the first success.
// A *DecodeError carrying every failure is returned when all strategies fail.
func (d *RawDecoder) Decode(ctx context.Context, buf []byte, halfSize bool) (*DecodedImage, error) {
	strategies := make([]decodeStrategy, 0, 3)
	if d.conv != nil {
		strategies = append(strategies, decodeStrategy{StrategyConverter, d.convert})
	}
	if !d.skipPreview {
		strategies = append(strategies, decodeStrategy{StrategyPreview, d.preview})
	}
	strategies = append(strategies, decodeStrategy{StrategyRendered, d.rendered})

	var attempts []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := s.fn(ctx, buf, halfSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			Logger().Debug("decode strategy failed", "strategy", s.name, "error", err)
			attempts = append(attempts, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		img.Strategy = s.name
		if img.FromPreview {
			Logger().Warn("RAW decode unavailable, using embedded preview",
				"width", img.Width, "height", img.Height, "attempts", errors.Join(attempts...))
		}
		Logger().Debug("decoded", "strategy", s.name, "width", img.Width, "height", img.Height, "half", halfSize)
		return img, nil
	}
	return nil, &DecodeError{Attempts: attempts}
}

func (d *RawDecoder) convert(ctx context.Context, buf []byte, halfSize bool) (*DecodedImage, error) {
	conv, err := d.conv.Convert(ctx, buf, ConvertOptions{HalfSize: halfSize})
	if err != nil {
		return nil, err
	}
	pm, err := pnm.Decode(conv.Pixmap)
	if err != nil {
		return nil, err
	}
	scale := 1.0
	if halfSize {
		scale = 0.5
	}
	return &DecodedImage{
		Width:            pm.Width,
		Height:           pm.Height,
		Pix:              pm.Pix,
		WhiteBalance:     conv.Multipliers,
		ColorTemperature: EstimateColorTemperature(conv.Multipliers),
		Scale:            scale,
	}, nil
}

func (d *RawDecoder) preview(_ context.Context, buf []byte, halfSize bool) (*DecodedImage, error) {
	data, err := ExtractEmbeddedPreview(buf)
	if err != nil {
		return nil, err
	}
	img, err := decodePreview(data)
	if err != nil {
		return nil, err
	}
	if halfSize {
		img = img.Downsample(2)
	}
	img.FromPreview = true
	img.ColorTemperature = ReferenceTemperature
	return img, nil
}

func (d *RawDecoder) rendered(_ context.Context, buf []byte, halfSize bool) (*DecodedImage, error) {
	img, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	profile := detectColorProfileFromICCProfile(nil)
	if format == "jpeg" {
		profile = jpegColorProfile(buf)
	}
	out := linearFromImage(img, profile)
	if halfSize {
		out = out.Downsample(2)
	}
	// The first image of a camera TIFF is its thumbnail, not the sensor data.
	out.FromPreview = format == "tiff" && cameraTIFF(buf)
	out.ColorTemperature = ReferenceTemperature
	return out, nil
}

// IFD0 tags that mark a TIFF container as camera RAW.
const (
	tiffNewSubfileType = 0x00FE
	tiffSubIFDs        = 0x014A
	tiffDNGVersion     = 0xC612
)

// cameraTIFF reports whether buf is a TIFF-based RAW file (CR2, NEF, ARW,
// DNG and the like): it has the CR2 signature, or IFD0 carries a DNG
// version, sub-IFDs or describes a reduced-resolution image.
func cameraTIFF(buf []byte) bool {
	if len(buf) < 8 {
		return false
	}
	var bo binary.ByteOrder
	switch string(buf[:4]) {
	case "II*\x00":
		bo = binary.LittleEndian
	case "MM\x00*":
		bo = binary.BigEndian
	default:
		return false
	}
	if len(buf) > 10 && string(buf[8:10]) == "CR" && buf[10] == 2 {
		return true
	}

	off := uint64(bo.Uint32(buf[4:8]))
	if off < 8 || off+2 > uint64(len(buf)) {
		return false
	}
	n := uint64(bo.Uint16(buf[off:]))
	for i := uint64(0); i < n; i++ {
		e := off + 2 + i*12
		if e+12 > uint64(len(buf)) {
			return false
		}
		entry := buf[e : e+12]
		switch bo.Uint16(entry) {
		case tiffDNGVersion, tiffSubIFDs:
			return true
		case tiffNewSubfileType:
			// Bit 0: reduced-resolution version of another image.
			v := bo.Uint32(entry[8:])
			if bo.Uint16(entry[2:]) == 3 { // SHORT
				v = uint32(bo.Uint16(entry[8:]))
			}
			if v&1 != 0 {
				return true
			}
		}
	}
	return false
}
