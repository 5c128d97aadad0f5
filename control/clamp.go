// Package control implements the scalar feedback controllers used to turn pose errors into
// velocity actions.
package control

import "math"

// Clamp bounds value to [-maxMagnitude, maxMagnitude] while keeping its sign.
// Clamp(0, m) is 0.
func Clamp(value, maxMagnitude float64) float64 {
	if math.Abs(value) > maxMagnitude {
		return sign(value) * maxMagnitude
	}
	return value
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
