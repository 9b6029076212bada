package services

import (
	"math"

	"github.com/dipolehq/dipole/internal/models"
)

// Normalize maps a raw widget value onto the signed [-50, +50] scale.
//
// Discrete mode expects raw to be an integer position in [0, points-1];
// continuous mode expects a float in [0, 100]. Out-of-domain raw values
// produce out-of-range results rather than errors; the input domain is the
// caller's contract. A flipped presentation negates the result so the
// stored low pole always sits on the negative end. The result carries one
// decimal, rounded half away from zero.
func Normalize(raw float64, flipped bool, mode models.ScaleMode, points int) float64 {
	var v float64
	if mode == models.ModeContinuous {
		v = raw - 50
	} else {
		mid := float64(points-1) / 2
		if mid <= 0 {
			// Single-point scales have no spread to express.
			return 0
		}
		v = ((raw - mid) / mid) * 50
	}
	if flipped {
		v = -v
	}
	return round1(v)
}

// round1 rounds half away from zero to one decimal. The zero check keeps
// negative zero out of stored values.
func round1(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0
	}
	return r
}
