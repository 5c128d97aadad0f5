package navigation

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"go.viam.com/dronenav/control"
	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/spatialmath"
)

// Option configures optional collaborators of a Navigator.
type Option func(*Navigator)

// WithClock sets the clock used to measure the time between control cycles.
func WithClock(clk clock.Clock) Option {
	return func(n *Navigator) {
		n.clock = clk
	}
}

// WithToleranceSource sets where tolerances are read from when a trajectory is accepted. By
// default the tolerances of the Config passed to New are used.
func WithToleranceSource(src ToleranceSource) Option {
	return func(n *Navigator) {
		n.tolerances = src
	}
}

// Navigator is the waypoint tracking state machine. Each pose update runs one control cycle:
// per-axis PID on the position error, clamping, rotation into the body frame, and on arrival
// either advancing to the next waypoint or hovering at the last one.
//
// A Navigator owns all of its controller state and is not safe for concurrent use; callers must
// serialise OnTrajectory and OnPose.
type Navigator struct {
	cfg        Config
	logger     logging.Logger
	clock      clock.Clock
	tolerances ToleranceSource

	x, y, z, yaw *control.AxisPID

	queue        WaypointQueue
	state        State
	trajectoryID uuid.UUID
	goal         Waypoint
	// index is the 1-based position of goal within the trajectory.
	index int
	total int

	// base is read once per trajectory; active is what the next check uses.
	base        Tolerances
	active      Tolerances
	pendingExit bool

	lastCycle    time.Time
	hasLastCycle bool

	// paced by clock; a zero interval warns once
	noTrajectoryWarning *rate.Limiter
}

// New returns a navigator in StateAwaitingTrajectory.
func New(cfg Config, logger logging.Logger, opts ...Option) (*Navigator, error) {
	if err := cfg.Validate("navigation"); err != nil {
		return nil, err
	}
	mode, err := control.ParseIntegralMode(cfg.IntegralMode)
	if err != nil {
		return nil, err
	}

	n := &Navigator{
		cfg:                 cfg,
		logger:              logger,
		clock:               clock.New(),
		tolerances:          staticTolerances(cfg.Tolerances()),
		x:                   control.NewAxisPID("x", cfg.X, mode),
		y:                   control.NewAxisPID("y", cfg.Y, mode),
		z:                   control.NewAxisPID("z", cfg.Z, mode),
		yaw:                 control.NewAxisPID("yaw", cfg.Yaw, mode),
		state:               StateAwaitingTrajectory,
		base:                cfg.Tolerances(),
		active:              cfg.Tolerances(),
		noTrajectoryWarning: rate.NewLimiter(warnLimit(cfg.WarnInterval), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func warnLimit(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return 0
	}
	return rate.Every(interval)
}

// OnTrajectory replaces whatever is being followed with traj and starts tracking its first
// waypoint. An empty trajectory is rejected and the navigator stays in its current state.
func (n *Navigator) OnTrajectory(ctx context.Context, traj Trajectory) error {
	first, err := n.queue.Replace(traj.Waypoints)
	if err != nil {
		n.logger.Warnw("rejecting trajectory", "trajectory", traj.ID, "state", n.state, "error", err)
		return errors.Wrapf(err, "trajectory %s", traj.ID)
	}

	n.trajectoryID = traj.ID
	n.goal = first
	n.index = 1
	n.total = n.queue.Total()
	n.pendingExit = false
	n.hasLastCycle = false

	tol := n.tolerances.Tolerances()
	if tol.Position <= 0 || tol.Yaw <= 0 {
		n.logger.Warnw("ignoring non-positive tolerances from source, keeping configured values",
			"position", tol.Position, "yaw", tol.Yaw)
		tol = n.cfg.Tolerances()
	}
	n.base = tol
	n.active = tol
	if n.onFinalGoal() {
		n.tightenForFinalApproach()
	}

	n.state = StateTracking
	n.logger.Infof("%d waypoints received", n.total)
	n.logger.CDebugw(ctx, "tracking", "trajectory", n.trajectoryID, "goal", n.goal, "tolerance", n.active.Position)
	return nil
}

// OnPose runs one control cycle. It returns the command to publish, or nil when no command should
// be sent this cycle, and whether the final waypoint of the current trajectory was reached on this
// cycle. The goal reached flag is true at most once per trajectory.
func (n *Navigator) OnPose(ctx context.Context, pose PoseEstimate) (*VelocityCommand, bool) {
	if n.state == StateAwaitingTrajectory {
		if n.noTrajectoryWarning.AllowN(n.clock.Now(), 1) {
			n.logger.Warn("waypoints not received, skipping current pose")
		}
		return nil, false
	}

	dt := n.elapsed()
	yaw := pose.Yaw()

	posErr := n.goal.Position.Sub(pose.Position)
	maxTrans := n.cfg.MaxSpeed.Translational
	action := r3.Vector{
		X: control.Clamp(n.x.Next(posErr.X, dt), maxTrans),
		Y: control.Clamp(n.y.Next(posErr.Y, dt), maxTrans),
		Z: control.Clamp(n.z.Next(posErr.Z, dt), maxTrans),
	}
	cmd := &VelocityCommand{Linear: spatialmath.VectorToBody(action, yaw)}

	n.logger.CDebugw(ctx, "cycle", "error", posErr, "action", action, "dt", dt)

	if n.withinPositionTolerance(posErr) {
		yawCmd, aligned := n.controlYaw(yaw, dt)
		if aligned {
			return n.arrive(ctx)
		}
		cmd = yawCmd
	}

	if n.onFinalGoal() {
		n.tightenForFinalApproach()
	}
	return cmd, false
}

// arrive handles a cycle on which the active goal was reached in both position and heading.
// No command is published on such a cycle.
func (n *Navigator) arrive(ctx context.Context) (*VelocityCommand, bool) {
	if !n.onFinalGoal() {
		next, err := n.queue.Advance()
		if err != nil {
			// index < total guarantees a queued entry
			n.logger.Errorw("advancing waypoints", "index", n.index, "total", n.total, "error", err)
			return nil, false
		}
		n.goal = next
		n.index++
		n.logger.Info("error in accepted range, next waypoint")
		n.logger.Infow("next goal", "index", n.index, "coordinates", n.goal)
		if n.onFinalGoal() {
			n.tightenForFinalApproach()
		}
		return nil, false
	}

	if n.state == StateHovering {
		return nil, false
	}
	n.state = StateHovering
	n.logger.Info("final waypoint reached, hovering")
	n.logger.CDebugw(ctx, "goal reached", "trajectory", n.trajectoryID)
	return nil, true
}

// controlYaw returns (nil, true) when the heading is within tolerance. Otherwise it returns a
// pure rotation command.
func (n *Navigator) controlYaw(yaw float64, dt time.Duration) (*VelocityCommand, bool) {
	yawErr := n.goal.Yaw - yaw
	if n.cfg.WrapYawError {
		yawErr = spatialmath.NormalizeAngle(yawErr)
	}
	if math.Abs(yawErr) <= n.active.Yaw {
		return nil, true
	}
	action := control.Clamp(n.yaw.Next(yawErr, dt), n.cfg.MaxSpeed.Rotational)
	return &VelocityCommand{AngularZ: action}, false
}

func (n *Navigator) withinPositionTolerance(posErr r3.Vector) bool {
	tol := n.active.Position
	return math.Abs(posErr.X) <= tol && math.Abs(posErr.Y) <= tol && math.Abs(posErr.Z) <= tol
}

func (n *Navigator) onFinalGoal() bool {
	return n.index == n.total
}

func (n *Navigator) tightenForFinalApproach() {
	n.pendingExit = true
	n.active.Position = n.base.Final()
}

// elapsed returns the time since the previous cycle. The first cycle of a trajectory has no
// previous cycle and reports zero, which makes the controllers skip their rate terms.
func (n *Navigator) elapsed() time.Duration {
	now := n.clock.Now()
	var dt time.Duration
	if n.hasLastCycle {
		dt = now.Sub(n.lastCycle)
	}
	n.lastCycle = now
	n.hasLastCycle = true
	return dt
}

// State returns the current state.
func (n *Navigator) State() State {
	return n.state
}

// ActiveGoal returns the waypoint being pursued and its 1-based index in the trajectory. ok is
// false before any trajectory has been accepted.
func (n *Navigator) ActiveGoal() (goal Waypoint, index int, ok bool) {
	return n.goal, n.index, n.state != StateAwaitingTrajectory
}

// TrajectoryID returns the ID of the trajectory being followed.
func (n *Navigator) TrajectoryID() uuid.UUID {
	return n.trajectoryID
}

// Tolerances returns the tolerances used for the next within-tolerance check.
func (n *Navigator) Tolerances() Tolerances {
	return n.active
}

// FinalApproach reports whether the active goal is the last waypoint of the trajectory.
func (n *Navigator) FinalApproach() bool {
	return n.pendingExit
}

// Remaining returns how many waypoints are queued behind the active goal.
func (n *Navigator) Remaining() int {
	return n.queue.Remaining()
}
