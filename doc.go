// Package fiatlux is a non-destructive RAW photo editing engine.
//
// A decoded linear-light image and a set of EditParameters go through an
// ordered chain of adjustment passes (white balance, tone, HSL, color grading,
// dehaze, local contrast, sharpening, noise reduction, vignette, crop) to
// produce a display frame. Edits are grouped into an undoable timeline and
// persisted as sparse diffs against the defaults.
//
// RAW bytes are decoded by an external converter (dcraw) when available, and
// otherwise by the largest embedded JPEG preview.
package fiatlux
