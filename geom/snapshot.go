package geom

const (
	// wrapEps backs positions off the upper domain edge so a wrapped
	// coordinate can never round to exactly 1.0.
	wrapEps = 1e-9

	// MinRadius and MaxRadius bound the radii a snapshot will carry into
	// the geometry engine. Zero or negative radii produce degenerate
	// power cells.
	MinRadius = 1e-6
	MaxRadius = 1.0
)

// Snapshot is an owned copy of particle state taken at job submission
// time. It never aliases the simulator's buffers, so the background
// measurement can read it while relaxation keeps running.
type Snapshot struct {
	Positions []Vec
	Radii     []float64
}

// NewSnapshot copies positions and radii and sanitizes them for the
// geometry engine: positions wrapped into [0, 1), radii clipped into
// [MinRadius, MaxRadius], and exact positional duplicates separated by a
// tiny deterministic offset. The inputs are not modified.
func NewSnapshot(positions []Vec, radii []float64) *Snapshot {
	s := &Snapshot{
		Positions: make([]Vec, len(positions)),
		Radii:     make([]float64, len(radii)),
	}
	copy(s.Positions, positions)
	copy(s.Radii, radii)

	for i := range s.Positions {
		for k := 0; k < 3; k++ {
			x := Wrap01(s.Positions[i][k])
			if x >= 1-wrapEps {
				x = 1 - wrapEps
			}
			s.Positions[i][k] = x
		}
	}

	for i, r := range s.Radii {
		if r < MinRadius {
			s.Radii[i] = MinRadius
		} else if r > MaxRadius {
			s.Radii[i] = MaxRadius
		}
	}

	s.splitDuplicates()
	return s
}

// splitDuplicates nudges exact positional overlaps apart. Coincident
// points are an engine edge case, not a meaningful configuration.
func (s *Snapshot) splitDuplicates() {
	seen := make(map[Vec]int, len(s.Positions))
	for i, p := range s.Positions {
		n, dup := seen[p]
		if !dup {
			seen[p] = 1
			continue
		}
		seen[p] = n + 1
		for k := 0; k < 3; k++ {
			s.Positions[i][k] = Wrap01(p[k] + float64(n)*wrapEps)
		}
	}
}

// Len returns the number of particles in the snapshot.
func (s *Snapshot) Len() int { return len(s.Positions) }

// Weights returns the power-diagram weights, w = r². A fresh slice is
// returned on every call.
func (s *Snapshot) Weights() []float64 {
	w := make([]float64, len(s.Radii))
	for i, r := range s.Radii {
		w[i] = r * r
	}
	return w
}

// Slice returns an owned copy of the particles in [i, j). The copy's
// backing arrays are independent of the parent snapshot, so it stays
// valid for the full duration of an external engine call.
func (s *Snapshot) Slice(i, j int) *Snapshot {
	sub := &Snapshot{
		Positions: make([]Vec, j-i),
		Radii:     make([]float64, j-i),
	}
	copy(sub.Positions, s.Positions[i:j])
	copy(sub.Radii, s.Radii[i:j])
	return sub
}
