// Package navigation drives a robot through an ordered list of waypoints by turning pose
// estimates into velocity commands.
package navigation

// State describes what the navigator is currently doing.
type State uint8

// The set of known states.
const (
	// StateAwaitingTrajectory is the initial state. Poses are ignored until a trajectory arrives.
	StateAwaitingTrajectory = State(iota)
	// StateTracking means a trajectory is being followed.
	StateTracking
	// StateHovering means the final waypoint was reached. The navigator holds it until a new
	// trajectory arrives.
	StateHovering
)

func (s State) String() string {
	switch s {
	case StateAwaitingTrajectory:
		return "awaiting_trajectory"
	case StateTracking:
		return "tracking"
	case StateHovering:
		return "hovering"
	default:
		return "unknown"
	}
}
