// Package base defines the mobile base a navigator drives: something that accepts body-frame
// linear and angular velocities.
package base

import (
	"context"

	"github.com/golang/geo/r3"
)

// A Base represents a physical base of a robot that can be commanded by velocity.
type Base interface {
	// SetVelocity sets the linear velocity in m/s and the angular velocity in rad/s, both in the
	// base's own frame.
	SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error

	// Stop stops the base. It is assumed the base stops immediately.
	Stop(ctx context.Context, extra map[string]interface{}) error

	// IsMoving returns whether the base is moving.
	IsMoving(ctx context.Context) (bool, error)
}
