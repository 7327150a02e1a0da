// Package indexmap relates source order (newest first, index 0 is the most
// recent bar) to display order (oldest first, left to right). Every call site
// that maps a displayed position back to snapshot arrays goes through here.
package indexmap

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySeries is returned for zero-length input.
	ErrEmptySeries = errors.New("indexmap: empty series")
	// ErrOutOfRange is returned for a display index outside [0, length).
	ErrOutOfRange = errors.New("indexmap: index out of range")
)

// ToDisplay returns a reversed copy of src. src is not modified.
func ToDisplay[T any](src []T) ([]T, error) {
	if len(src) == 0 {
		return nil, ErrEmptySeries
	}
	out := make([]T, len(src))
	last := len(src) - 1
	for i, v := range src {
		out[last-i] = v
	}
	return out, nil
}

// SourceIndex maps a display index to the source index: length-1-display.
func SourceIndex(displayIndex, length int) (int, error) {
	if length <= 0 {
		return 0, ErrEmptySeries
	}
	if displayIndex < 0 || displayIndex >= length {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, displayIndex, length)
	}
	return length - 1 - displayIndex, nil
}

// At returns the source-ordered element shown at displayIndex. length is the
// shared data length N; src shorter or longer than N yields ok=false so a
// malformed sub-series can never be read at a misaligned timestamp.
func At[T any](src []T, displayIndex, length int) (v T, ok bool) {
	if len(src) != length {
		return v, false
	}
	i, err := SourceIndex(displayIndex, length)
	if err != nil {
		return v, false
	}
	return src[i], true
}
