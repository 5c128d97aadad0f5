// Package sim closes the loop around a navigator with a simulated vehicle so trajectories can
// be flown without hardware.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/dronenav/components/base"
	"go.viam.com/dronenav/services/navigation"
	"go.viam.com/dronenav/spatialmath"
)

var _ base.Base = (*Vehicle)(nil)

// Vehicle is a holonomic point mass with a heading. Its velocity follows the last commanded
// body-frame velocity with a first-order lag.
type Vehicle struct {
	mu sync.Mutex

	position r3.Vector
	yaw      float64
	// velocity is in the world frame
	velocity r3.Vector
	yawRate  float64

	cmdLinear  r3.Vector
	cmdYawRate float64

	timeConstant time.Duration
}

// NewVehicle returns a vehicle at rest at start. A timeConstant of zero makes the vehicle reach
// commanded velocities instantly.
func NewVehicle(start navigation.PoseEstimate, timeConstant time.Duration) *Vehicle {
	return &Vehicle{
		position:     start.Position,
		yaw:          start.Yaw(),
		timeConstant: timeConstant,
	}
}

// SetVelocity sets the commanded body-frame velocity. Only the Z component of angular is used.
func (v *Vehicle) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cmdLinear = linear
	v.cmdYawRate = angular.Z
	return nil
}

// Stop brings the vehicle to rest immediately.
func (v *Vehicle) Stop(ctx context.Context, extra map[string]interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cmdLinear = r3.Vector{}
	v.cmdYawRate = 0
	v.velocity = r3.Vector{}
	v.yawRate = 0
	return nil
}

// IsMoving reports whether the vehicle has any velocity.
func (v *Vehicle) IsMoving(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.velocity != (r3.Vector{}) || v.yawRate != 0, nil
}

// Step integrates the vehicle forward by dt.
func (v *Vehicle) Step(dt time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	secs := dt.Seconds()
	if secs <= 0 {
		return
	}

	wx, wy := spatialmath.BodyToWorld(v.cmdLinear.X, v.cmdLinear.Y, v.yaw)
	target := r3.Vector{X: wx, Y: wy, Z: v.cmdLinear.Z}
	alpha := 1.0
	if v.timeConstant > 0 {
		alpha = secs / v.timeConstant.Seconds()
		if alpha > 1 {
			alpha = 1
		}
	}
	v.velocity = v.velocity.Add(target.Sub(v.velocity).Mul(alpha))
	v.yawRate += (v.cmdYawRate - v.yawRate) * alpha

	v.position = v.position.Add(v.velocity.Mul(secs))
	v.yaw = spatialmath.NormalizeAngle(v.yaw + v.yawRate*secs)
}

// Pose returns the vehicle's pose stamped with stamp.
func (v *Vehicle) Pose(stamp time.Time) navigation.PoseEstimate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return navigation.PoseEstimate{
		Position:    v.position,
		Orientation: spatialmath.YawToQuat(v.yaw),
		Stamp:       stamp,
	}
}

// Speed returns the magnitude of the vehicle's world-frame velocity.
func (v *Vehicle) Speed() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.velocity.Norm()
}
