package navigation

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/dronenav/spatialmath"
)

// Waypoint is a goal position and heading. Yaw is in radians about +Z.
type Waypoint struct {
	Position r3.Vector `json:"position"`
	Yaw      float64   `json:"yaw"`
}

// NewWaypoint is shorthand for a Waypoint at (x, y, z) with heading yaw.
func NewWaypoint(x, y, z, yaw float64) Waypoint {
	return Waypoint{Position: r3.Vector{X: x, Y: y, Z: z}, Yaw: yaw}
}

func (w Waypoint) String() string {
	return fmt.Sprintf("(%f, %f, %f, %f)", w.Position.X, w.Position.Y, w.Position.Z, w.Yaw)
}

// Trajectory is an ordered list of waypoints delivered as one unit.
type Trajectory struct {
	ID        uuid.UUID  `json:"id"`
	Waypoints []Waypoint `json:"waypoints"`
	Stamp     time.Time  `json:"stamp"`
}

// NewTrajectory returns a trajectory with a fresh ID.
func NewTrajectory(waypoints ...Waypoint) Trajectory {
	return Trajectory{ID: uuid.New(), Waypoints: waypoints}
}

// PoseEstimate is the robot's current position and orientation in the world frame.
type PoseEstimate struct {
	Position    r3.Vector
	Orientation quat.Number
	Stamp       time.Time
}

// NewPoseEstimate builds a pose with a pure heading orientation.
func NewPoseEstimate(x, y, z, yaw float64) PoseEstimate {
	return PoseEstimate{
		Position:    r3.Vector{X: x, Y: y, Z: z},
		Orientation: spatialmath.YawToQuat(yaw),
	}
}

// Yaw returns the heading encoded in the orientation. A zero quaternion is treated as
// identity.
func (p PoseEstimate) Yaw() float64 {
	if p.Orientation == (quat.Number{}) {
		return 0
	}
	return spatialmath.QuatToYaw(p.Orientation)
}

// VelocityCommand is a body-frame linear velocity plus a yaw rate.
type VelocityCommand struct {
	Linear   r3.Vector `json:"linear"`
	AngularZ float64   `json:"angular_z"`
}

// Angular returns the yaw rate as an angular velocity vector.
func (c VelocityCommand) Angular() r3.Vector {
	return r3.Vector{Z: c.AngularZ}
}

// Stamped attaches a timestamp to the command.
func (c VelocityCommand) Stamped(stamp time.Time) StampedVelocityCommand {
	return StampedVelocityCommand{VelocityCommand: c, Stamp: stamp}
}

// StampedVelocityCommand carries the same content as VelocityCommand plus the time it was issued.
type StampedVelocityCommand struct {
	VelocityCommand
	Stamp time.Time `json:"stamp"`
}
