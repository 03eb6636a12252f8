package fiatlux

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Border selects the frame composited around exported images.
type Border int

// Border colors.
const (
	BorderNone Border = iota
	BorderWhite
	BorderBlack
)

func (b Border) String() string {
	switch b {
	case BorderWhite:
		return "white"
	case BorderBlack:
		return "black"
	}
	return "none"
}

// ParseBorder converts "none", "white" or "black".
func ParseBorder(s string) (Border, error) {
	switch s {
	case "", "none":
		return BorderNone, nil
	case "white":
		return BorderWhite, nil
	case "black":
		return BorderBlack, nil
	}
	return BorderNone, fmt.Errorf("unknown border %q", s)
}

func (b Border) color() color.NRGBA {
	if b == BorderWhite {
		return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	return color.NRGBA{A: 0xff}
}

// Export limits.
const (
	DefaultExportQuality = 92
	MaxBorderWidth       = 20
)

// ExportOptions controls Export.
type ExportOptions struct {
	// Quality is the JPEG quality, 1 to 100.
	Quality int
	Border  Border
	// BorderWidth is a percentage of the shorter side, 0 to 20.
	BorderWidth float64
	// MaxEdge downscales the rendered image so its longer side fits; 0 keeps full size.
	MaxEdge uint
}

// BorderSize returns the border thickness in pixels for a w x h image.
func BorderSize(w, h int, percent float64) int {
	percent = math.Max(0, math.Min(MaxBorderWidth, percent))
	return int(math.Round(float64(min(w, h)) * percent * 0.01))
}

// AddBorder composites img centered on a solid frame. With BorderNone or a
// zero width the result has the same dimensions as img.
func AddBorder(img image.Image, b Border, percent float64) *image.NRGBA {
	bounds := img.Bounds()
	px := 0
	if b != BorderNone {
		px = BorderSize(bounds.Dx(), bounds.Dy(), percent)
	}

	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx()+2*px, bounds.Dy()+2*px))
	if px > 0 {
		draw.Draw(out, out.Bounds(), image.NewUniform(b.color()), image.Point{}, draw.Src)
	}
	draw.Draw(out, image.Rect(px, px, px+bounds.Dx(), px+bounds.Dy()), img, bounds.Min, draw.Src)
	return out
}

// Export renders img with params at full resolution, optionally downscales
// it, adds the border and writes a JPEG to w.
func Export(w io.Writer, p *Pipeline, img *DecodedImage, params EditParameters, opts ExportOptions) error {
	rendered, err := p.RenderImage(img, params, RenderOptions{})
	if err != nil {
		return fmt.Errorf("export: render: %w", err)
	}
	return EncodeExport(w, rendered, opts)
}

// EncodeExport applies the size limit and border of opts to a rendered image
// and encodes it.
func EncodeExport(w io.Writer, rendered image.Image, opts ExportOptions) error {
	var out image.Image = rendered
	if b := out.Bounds(); opts.MaxEdge > 0 && uint(max(b.Dx(), b.Dy())) > opts.MaxEdge {
		out = resize.Thumbnail(opts.MaxEdge, opts.MaxEdge, out, resize.Lanczos3)
	}
	framed := AddBorder(out, opts.Border, opts.BorderWidth)

	q := opts.Quality
	if q == 0 {
		q = DefaultExportQuality
	}
	q = max(1, min(100, q))
	if err := jpeg.Encode(w, framed, &jpeg.Options{Quality: q}); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	Logger().Info("exported", "width", framed.Rect.Dx(), "height", framed.Rect.Dy(), "quality", q, "border", opts.Border.String())
	return nil
}
