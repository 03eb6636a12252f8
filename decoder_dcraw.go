package fiatlux

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// DcrawConverter runs the dcraw binary.
type DcrawConverter struct {
	// Path is the executable, "dcraw" when empty.
	Path string
}

var _ Converter = DcrawConverter{}

// DcrawError describes a failed dcraw invocation.
type DcrawError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *DcrawError) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	if last := strings.Join(lines, "\n"); last != "" {
		return fmt.Sprintf("dcraw: %v: %s", e.Err, last)
	}
	return fmt.Sprintf("dcraw: %v", e.Err)
}

func (e *DcrawError) Unwrap() error { return e.Err }

// Command returns the command line that was executed.
func (e *DcrawError) Command() string {
	return "dcraw " + strings.Join(e.Args, " ")
}

// Convert produces a 16-bit linear sRGB pixmap with camera white balance and
// AHD interpolation.
func (c DcrawConverter) Convert(ctx context.Context, raw []byte, opts ConvertOptions) (*Conversion, error) {
	args := []string{"-c", "-4", "-w", "-o", "1", "-q", "3", "-v"}
	if opts.HalfSize {
		args = append(args, "-h")
	}
	stdout, stderr, err := c.run(ctx, raw, args)
	if err != nil {
		return nil, err
	}
	return &Conversion{Pixmap: stdout, Multipliers: parseMultipliers(stderr)}, nil
}

// Identify returns dcraw's verbose identification text.
func (c DcrawConverter) Identify(ctx context.Context, raw []byte) (string, error) {
	stdout, _, err := c.run(ctx, raw, []string{"-i", "-v"})
	if err != nil {
		return "", err
	}
	return string(stdout), nil
}

func (c DcrawConverter) run(ctx context.Context, raw []byte, args []string) ([]byte, string, error) {
	f, err := os.CreateTemp("", "fiatlux-*.raw")
	if err != nil {
		return nil, "", fmt.Errorf("dcraw: temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("dcraw: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, "", fmt.Errorf("dcraw: close temp file: %w", err)
	}

	path := c.Path
	if path == "" {
		path = "dcraw"
	}
	args = append(args, f.Name())

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, stderr.String(), &DcrawError{Args: args, Stderr: stderr.String(), Err: err}
	}
	if stdout.Len() == 0 {
		return nil, stderr.String(), &DcrawError{Args: args, Stderr: stderr.String(), Err: fmt.Errorf("no output")}
	}
	return stdout.Bytes(), stderr.String(), nil
}

var multipliersRe = regexp.MustCompile(`multipliers\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)`)

// parseMultipliers reads the white balance multipliers from verbose output.
func parseMultipliers(verbose string) WhiteBalance {
	m := multipliersRe.FindStringSubmatch(verbose)
	if m == nil {
		return WhiteBalance{}
	}
	var v [3]float64
	for i := range v {
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return WhiteBalance{}
		}
		v[i] = f
	}
	return WhiteBalance{R: v[0], G: v[1], B: v[2]}
}
