package geom

import (
	"fmt"
)

// Flag marks whether the engine considered a cell well formed.
type Flag int32

const (
	FlagOK Flag = iota
	FlagDegenerate
)

// Sample holds one geometric measurement of the whole population:
// per-cell volume, surface area, contact (face) count, and a degeneracy
// flag, all in particle order. A Sample is immutable once built and is
// consumed exactly once by the controller.
type Sample struct {
	Volume   []float64
	Area     []float64
	Contacts []int32
	Flags    []Flag
}

// NewSample allocates an empty sample with capacity for n cells.
func NewSample(n int) *Sample {
	return &Sample{
		Volume:   make([]float64, 0, n),
		Area:     make([]float64, 0, n),
		Contacts: make([]int32, 0, n),
		Flags:    make([]Flag, 0, n),
	}
}

// Len returns the number of cells in the sample.
func (sm *Sample) Len() int { return len(sm.Volume) }

// Append concatenates other onto sm, preserving particle order. Chunked
// engine calls are reassembled with this.
func (sm *Sample) Append(other *Sample) {
	sm.Volume = append(sm.Volume, other.Volume...)
	sm.Area = append(sm.Area, other.Area...)
	sm.Contacts = append(sm.Contacts, other.Contacts...)
	sm.Flags = append(sm.Flags, other.Flags...)
}

// Check verifies that the sample covers exactly n cells with consistent
// field lengths.
func (sm *Sample) Check(n int) error {
	if len(sm.Volume) != n || len(sm.Area) != n ||
		len(sm.Contacts) != n || len(sm.Flags) != n {
		return fmt.Errorf(
			"sample field lengths (V=%d, S=%d, contacts=%d, flags=%d) "+
				"don't match particle count %d",
			len(sm.Volume), len(sm.Area), len(sm.Contacts), len(sm.Flags), n,
		)
	}
	return nil
}

// Degenerate returns true if any cell in the sample carries a
// non-OK flag.
func (sm *Sample) Degenerate() bool {
	for _, f := range sm.Flags {
		if f != FlagOK {
			return true
		}
	}
	return false
}
