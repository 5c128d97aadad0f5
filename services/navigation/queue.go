package navigation

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyQueue is returned when advancing a queue with nothing left in it.
	ErrEmptyQueue = errors.New("waypoint queue is empty")
	// ErrEmptyTrajectory is returned when a trajectory without waypoints is supplied.
	ErrEmptyTrajectory = errors.New("trajectory has no waypoints")
)

// WaypointQueue is a FIFO of waypoints that is replaced wholesale when a new trajectory arrives
// and drained one entry per reached goal. All methods are safe for concurrent use.
type WaypointQueue struct {
	mu      sync.Mutex
	pending []Waypoint
	total   int
}

// Replace discards anything queued, stores waypoints and pops the first of them as the active
// goal. An empty input is rejected and leaves the queue as it was.
func (q *WaypointQueue) Replace(waypoints []Waypoint) (Waypoint, error) {
	if len(waypoints) == 0 {
		return Waypoint{}, ErrEmptyTrajectory
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.total = len(waypoints)
	q.pending = make([]Waypoint, len(waypoints)-1)
	copy(q.pending, waypoints[1:])
	return waypoints[0], nil
}

// Advance pops the next queued waypoint.
func (q *WaypointQueue) Advance() (Waypoint, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Waypoint{}, ErrEmptyQueue
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	return next, nil
}

// Remaining returns how many waypoints are still queued behind the active goal.
func (q *WaypointQueue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Total returns the length of the trajectory last passed to Replace.
func (q *WaypointQueue) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}

// Pending returns a copy of the queued waypoints.
func (q *WaypointQueue) Pending() []Waypoint {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Waypoint, len(q.pending))
	copy(out, q.pending)
	return out
}
