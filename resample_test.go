package fiatlux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/fiatlux/internal/parallel"
)

func TestResampleRGB_flat(t *testing.T) {
	src := make([]float32, 9*7*3)
	for i := 0; i < len(src); i += 3 {
		src[i], src[i+1], src[i+2] = 0.2, 0.5, 0.8
	}

	out := resampleRGB(parallel.NewPool(2), src, 9, 7, 4, 3)
	require.Len(t, out, 4*3*3)
	for i := 0; i < len(out); i += 3 {
		assert.InDelta(t, 0.2, out[i], 1e-5)
		assert.InDelta(t, 0.5, out[i+1], 1e-5)
		assert.InDelta(t, 0.8, out[i+2], 1e-5)
	}
}

func TestDecodedImage_Downsample(t *testing.T) {
	img := &DecodedImage{Width: 8, Height: 2, Pix: make([]float32, 8*2*3), Scale: 1}
	for y := 0; y < 2; y++ {
		for x := 0; x < 8; x++ {
			v := float32(x) / 7
			i := (y*8 + x) * 3
			img.Pix[i], img.Pix[i+1], img.Pix[i+2] = v, v, v
		}
	}

	half := img.Downsample(2)
	assert.Equal(t, 4, half.Width)
	assert.Equal(t, 1, half.Height)
	assert.InDelta(t, 0.5, half.Scale, 1e-9)

	// A ramp stays monotonic and inside the source range.
	prev := float32(-1)
	for x := 0; x < 4; x++ {
		v := half.Pix[x*3]
		if v <= prev || v < 0 || v > 1 {
			t.Fatalf("sample %d = %v after %v", x, v, prev)
		}
		prev = v
	}

	assert.Same(t, img, img.Downsample(1))
}
