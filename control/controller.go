package control

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/gofoam/geom"
)

const (
	// dominanceVolumeFrac is the share of the unit box above which a
	// single cell trips the dominance guard.
	dominanceVolumeFrac = 0.5

	// dominanceDamping scales every radius delta while the dominance
	// guard is tripped.
	dominanceDamping = 0.5

	// dispersionLimit is the std(r)/mean(r) ratio above which the
	// dispersion fuse rescales the population back to its prior mass.
	dispersionLimit = 0.25
)

// IQ computes the isoperimetric quotient 36π V²/S³ for each cell. The
// quotient is 1 for a perfect sphere and falls toward 0 as the cell
// flattens. Areas are floored before cubing so sliver cells don't
// divide by zero.
func IQ(volume, area []float64) []float64 {
	iq := make([]float64, len(volume))
	for i, v := range volume {
		s := area[i]
		if s < areaFloor {
			s = areaFloor
		}
		iq[i] = 36 * math.Pi * v * v / (s * s * s)
	}
	return iq
}

// Apply runs one controller step: it grades every cell of the sample by
// isoperimetric quotient, assigns zero-sum volume deltas that grow
// under-band cells at the expense of over-band ones, converts the deltas
// to radius changes, and passes the result through the safety guards.
//
// r is not modified. The returned radii always lie in [p.RMin, p.RMax];
// the returned quotients are the raw per-cell IQ values, including those
// of degenerate cells.
func Apply(r []float64, sm *geom.Sample, p Params) (rNew, iq []float64, err error) {
	n := len(r)
	if err := sm.Check(n); err != nil {
		return nil, nil, fmt.Errorf("controller input: %v", err)
	}
	if n == 0 {
		return []float64{}, []float64{}, nil
	}

	// Guard against corrupted state arriving from outside.
	rc := make([]float64, n)
	for i, ri := range r {
		rc[i] = clamp(ri, p.RMin, p.RMax)
	}

	iq = IQ(sm.Volume, sm.Area)

	// Partition the well-formed cells around the band. Degenerate cells
	// sit out the update entirely.
	var (
		low, high, mid []int
		okVolSum       float64
		okCount        int
	)
	for i := 0; i < n; i++ {
		if sm.Flags[i] != geom.FlagOK {
			continue
		}
		okVolSum += sm.Volume[i]
		okCount++
		switch {
		case iq[i] < p.IQMin:
			low = append(low, i)
		case iq[i] > p.IQMax:
			high = append(high, i)
		default:
			mid = append(mid, i)
		}
	}

	dV := make([]float64, n)
	for _, i := range low {
		dV[i] = p.BetaGrow * sm.Volume[i]
	}
	if len(high) > 0 && okCount > 0 {
		meanVol := okVolSum / float64(okCount)
		for _, i := range high {
			dV[i] = -p.BetaShrink * meanVol
		}
	}

	ok := make([]int, 0, okCount)
	ok = append(ok, low...)
	ok = append(ok, high...)
	ok = append(ok, mid...)
	rebalance(dV, low, high, mid, ok)

	// dV -> dr through the sphere shell relation dV = 4π r² dr.
	dr := make([]float64, n)
	for i := 0; i < n; i++ {
		r2 := rc[i] * rc[i]
		if r2 < radius2Floor {
			r2 = radius2Floor
		}
		dr[i] = dV[i] / (4 * math.Pi * r2)
	}

	// Guard order matters: damping before the cap, the cap before the
	// hard clamp, the fuse last.
	if dominated(sm) {
		floats.Scale(dominanceDamping, dr)
	}

	rNew = make([]float64, n)
	for i := 0; i < n; i++ {
		maxStep := p.DrCap * rc[i]
		rNew[i] = clamp(rc[i]+clamp(dr[i], -maxStep, maxStep), p.RMin, p.RMax)
	}

	if mean := stat.Mean(rNew, nil); mean > 0 {
		if stat.PopStdDev(rNew, nil)/mean > dispersionLimit {
			scale := floats.Sum(rc) / floats.Sum(rNew)
			for i := range rNew {
				rNew[i] = clamp(rNew[i]*scale, p.RMin, p.RMax)
			}
		}
	}

	return rNew, iq, nil
}

// rebalance makes the volume deltas sum to zero. Shrinkage is scaled to
// exactly cancel growth; pure growth is paid for by the in-band cells,
// or by every well-formed cell if none are in band.
func rebalance(dV []float64, low, high, mid, ok []int) {
	var pos, neg float64
	for _, i := range low {
		pos += dV[i]
	}
	for _, i := range high {
		neg -= dV[i]
	}

	switch {
	case pos > 0 && neg > 0:
		scale := pos / neg
		for _, i := range high {
			dV[i] *= scale
		}
	case pos > 0:
		payers := mid
		if len(payers) == 0 {
			payers = ok
		}
		if len(payers) == 0 {
			return
		}
		share := pos / float64(len(payers))
		for _, i := range payers {
			dV[i] -= share
		}
	}
}

// dominated reports whether the sample trips the dominance guard: one
// cell holding over half the box, or a degeneracy anywhere.
func dominated(sm *geom.Sample) bool {
	for _, v := range sm.Volume {
		if v > dominanceVolumeFrac {
			return true
		}
	}
	return sm.Degenerate()
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
