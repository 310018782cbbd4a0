// Package mathx holds the small numeric helpers shared by every subsystem.
package mathx

import "golang.org/x/exp/constraints"

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Percent clamps a score to [0, 100].
func Percent(v float64) float64 {
	return Clamp(v, 0, 100)
}

// Approach moves v toward target by at most step, never overshooting.
func Approach(v, target, step float64) float64 {
	if v < target {
		v += step
		if v > target {
			v = target
		}
		return v
	}
	v -= step
	if v < target {
		v = target
	}
	return v
}
