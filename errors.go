package fiatlux

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSource is returned by operations that need an installed source image.
	ErrNoSource = errors.New("fiatlux: no source image")
	// ErrProgramCompile reports that a render program could not be built.
	ErrProgramCompile = errors.New("fiatlux: program compile failed")
	// ErrPixelBudget reports a full-resolution decode above the configured pixel budget.
	ErrPixelBudget = errors.New("fiatlux: pixel budget exceeded")
	// ErrNoPreview means a RAW buffer carries no embedded JPEG.
	ErrNoPreview = errors.New("fiatlux: no embedded preview")
	// ErrInvalidPreview means the embedded JPEG failed validation.
	ErrInvalidPreview = errors.New("fiatlux: invalid embedded preview")
	// ErrTargetAliasing is returned when a pass would read and write the same target.
	ErrTargetAliasing = errors.New("fiatlux: pass reads and writes the same target")
	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("fiatlux: resource released")
)

// ProgramError describes a failed render program build.
type ProgramError struct {
	Pass PassKind
	Err  error
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("compile %s program: %v", e.Pass, e.Err)
}

func (e *ProgramError) Unwrap() []error { return []error{ErrProgramCompile, e.Err} }

// DecodeError is returned when every decode strategy failed.
type DecodeError struct {
	// Attempts holds one error per strategy in the order they were tried.
	Attempts []error
}

func (e *DecodeError) Error() string {
	if len(e.Attempts) == 0 {
		return "decode: no strategy available"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		parts = append(parts, err.Error())
	}
	return "decode failed: " + strings.Join(parts, "; ")
}

func (e *DecodeError) Unwrap() []error { return e.Attempts }
