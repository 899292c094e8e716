/*Package geom contains the domain primitives shared by the foam loop:
positions on the periodic unit box, owned snapshots handed across the
async boundary, and per-cell measurement samples.*/
package geom

// Vec is a particle position in the periodic unit box. Every coordinate
// is kept in [0, 1).
type Vec [3]float64

// Wrap01 maps x onto [0, 1) under periodic boundary conditions.
func Wrap01(x float64) float64 {
	x -= float64(int(x))
	if x < 0 {
		x += 1
	}
	if x >= 1 {
		// Rounding can push x-floor(x) back up to 1.0.
		x = 0
	}
	return x
}

// Wrap maps every coordinate of v onto [0, 1).
func (v *Vec) Wrap() {
	for i := 0; i < 3; i++ {
		v[i] = Wrap01(v[i])
	}
}

// WrapVecs wraps every vector of vs onto the unit box in place.
func WrapVecs(vs []Vec) {
	for i := range vs {
		vs[i].Wrap()
	}
}

// PeriodicDist returns the distance between x1 and x2 along one axis of
// the unit box, accounting for wraparound.
func PeriodicDist(x1, x2 float64) float64 {
	var low, high float64
	if x1 < x2 {
		low, high = x1, x2
	} else {
		low, high = x2, x1
	}

	d1 := high - low
	d2 := low + 1 - high
	if d1 < d2 {
		return d1
	}
	return d2
}
