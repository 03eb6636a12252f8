package fiatlux

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorderSize(t *testing.T) {
	assert.Equal(t, 4, BorderSize(100, 80, 5))
	assert.Equal(t, 0, BorderSize(100, 80, 0))
	assert.Equal(t, 16, BorderSize(100, 80, 50), "width is capped at 20%")
	assert.Equal(t, 2, BorderSize(30, 30, 5), "1.5 rounds half away from zero")
	assert.Equal(t, 1, BorderSize(30, 30, 4), "1.2 rounds to whole pixels")
}

func TestAddBorder(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 80))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 0x80, 0x80, 0x80, 0xff
	}

	out := AddBorder(src, BorderWhite, 5)
	assert.Equal(t, image.Rect(0, 0, 108, 88), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}, out.NRGBAAt(4, 4))

	out = AddBorder(src, BorderBlack, 5)
	assert.Equal(t, color.NRGBA{A: 0xff}, out.NRGBAAt(107, 87))

	assert.Equal(t, src.Bounds(), AddBorder(src, BorderNone, 5).Bounds())
	assert.Equal(t, src.Bounds(), AddBorder(src, BorderWhite, 0).Bounds())
}

func TestParseBorder(t *testing.T) {
	for _, b := range []Border{BorderNone, BorderWhite, BorderBlack} {
		got, err := ParseBorder(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
	_, err := ParseBorder("red")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	img := gradientImage(120, 60)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, p, img, NewDefaultParameters(), ExportOptions{
		Quality:     80,
		Border:      BorderWhite,
		BorderWidth: 10,
		MaxEdge:     60,
	}))

	cfg, err := jpeg.DecodeConfig(&buf)
	require.NoError(t, err)
	// 120x60 fits into 60x30, then a 3px border on each side.
	assert.Equal(t, 66, cfg.Width)
	assert.Equal(t, 36, cfg.Height)
}
