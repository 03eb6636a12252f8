package fiatlux

import "strconv"

// PassKind identifies a render program.
type PassKind int

const (
	// PassMain applies white balance, tone, HSL, grading, saturation and curves.
	PassMain PassKind = iota
	// PassBlurH is the horizontal leg of a separable blur, written to the temporary target.
	PassBlurH
	// PassDehaze is the vertical blur leg fused with the dehaze blend.
	PassDehaze
	// PassLocalContrast is the vertical blur leg fused with the clarity or texture blend.
	PassLocalContrast
	// PassSharpen is the vertical blur leg fused with the unsharp mask.
	PassSharpen
	// PassDenoise is the vertical blur leg fused with the noise reduction blend.
	PassDenoise
	// PassVignette darkens or lightens toward the frame edges.
	PassVignette
	// PassOutput crops, rotates and encodes to display gamma.
	PassOutput

	passKindCount
)

var passNames = [passKindCount]string{
	PassMain:          "main",
	PassBlurH:         "blur-h",
	PassDehaze:        "dehaze",
	PassLocalContrast: "local-contrast",
	PassSharpen:       "sharpen",
	PassDenoise:       "denoise",
	PassVignette:      "vignette",
	PassOutput:        "output",
}

func (k PassKind) String() string {
	if k < 0 || k >= passKindCount {
		return "pass(" + strconv.Itoa(int(k)) + ")"
	}
	return passNames[k]
}

// Texture is a device-side RGB float image or lookup table.
type Texture interface {
	Size() (w, h int)
}

// Program is a compiled pass.
type Program interface {
	Kind() PassKind
}

// Inputs are the textures a pass samples from.
type Inputs struct {
	// Source is the primary input.
	Source Texture
	// Aux is the intermediate blur result for fused blur passes.
	Aux Texture
	// Curves holds the RGB, red, green and blue curve lookup tables.
	Curves [4]Texture
}

// Device abstracts the GPU: programs, textures, render targets and draws.
// Implementations need not be safe for concurrent use; Pipeline serializes access.
type Device interface {
	CompileProgram(kind PassKind) (Program, error)
	// NewTexture uploads interleaved linear RGB pixels; the device takes ownership of pix.
	NewTexture(w, h int, pix []float32) (Texture, error)
	NewTarget(w, h int) (Texture, error)
	NewLUT(size int) (Texture, error)
	WriteLUT(lut Texture, data []float32) error
	// Draw runs program over every pixel of dst.
	Draw(p Program, u *Uniforms, in Inputs, dst Texture) error
	// ReadPixels copies a texture back to interleaved RGB.
	ReadPixels(t Texture) ([]float32, error)
	// Release frees a texture or program. Releasing twice is a no-op.
	Release(r any)
}

// rect is a rectangle in source pixel coordinates.
type rect struct {
	x, y, w, h float32
}

// Uniforms are the per-draw parameters of every pass kind.
type Uniforms struct {
	// Main pass.
	WhiteBalance    rgb
	ApplyWB         bool
	ExposureGain    float32
	ContrastPower   float32
	Tone            [4]float32 // highlights, shadows, whites, blacks in [-1, 1]
	ApplyTone       bool
	HSL             [3][HSLBands]float32 // hue, saturation, luminance in [-1, 1]
	ApplyHSL        bool
	Grading         [4]gradingTint
	ApplyGrading    bool
	Vibrance        float32
	Saturation      float32
	ApplySaturation bool
	ApplyCurves     [4]bool // rgb, red, green, blue

	// Blur legs.
	Kernel   []float32
	BlurDark bool

	// Blends.
	Amount      float32
	Detail      float32
	Midtones    bool
	NoiseLuma   float32
	NoiseChroma float32

	// Vignette and output.
	Vignette Vignette
	Frame    rect
	Rotation float32 // radians
}

// gradingTint is a precomputed color-grading zone.
type gradingTint struct {
	offset rgb     // encoded-domain color offset at full weight
	gain   float32 // luminance multiplier exponent in EV
	active bool
}
