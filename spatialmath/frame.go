package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// WorldToBody rotates the planar world-frame pair (ax, ay) into the frame of a body with heading
// yaw. Both outputs are computed from the unrotated inputs.
func WorldToBody(ax, ay, yaw float64) (float64, float64) {
	sin, cos := math.Sincos(yaw)
	return ax*cos + ay*sin, ay*cos - ax*sin
}

// VectorToBody applies WorldToBody to the X/Y components of v. Z is a vertical rate and is
// returned unchanged.
func VectorToBody(v r3.Vector, yaw float64) r3.Vector {
	x, y := WorldToBody(v.X, v.Y, yaw)
	return r3.Vector{X: x, Y: y, Z: v.Z}
}

// BodyToWorld is the inverse of WorldToBody.
func BodyToWorld(bx, by, yaw float64) (float64, float64) {
	return WorldToBody(bx, by, -yaw)
}
