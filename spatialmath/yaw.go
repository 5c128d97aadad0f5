// Package spatialmath holds the small amount of rotation math the navigator needs: heading
// extraction from quaternions and world-to-body frame changes.
package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// QuatToYaw returns the rotation about +Z, in radians in (-pi, pi], encoded by q. q does not
// need to be normalised.
func QuatToYaw(q quat.Number) float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return math.Atan2(2*(x*y+w*z), w*w+x*x-y*y-z*z)
}

// YawToQuat returns the unit quaternion for a pure rotation of yaw radians about +Z.
func YawToQuat(yaw float64) quat.Number {
	half := yaw / 2
	return quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
}

// NormalizeAngle wraps theta into (-pi, pi].
func NormalizeAngle(theta float64) float64 {
	wrapped := math.Mod(theta+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}
