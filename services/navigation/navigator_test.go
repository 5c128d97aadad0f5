package navigation_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/dronenav/control"
	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
)

// xOnlyConfig drives only the x axis so expected commands are easy to compute.
func xOnlyConfig() navigation.Config {
	cfg := navigation.DefaultConfig()
	cfg.Y = control.Gains{}
	cfg.Z = control.Gains{}
	cfg.Yaw = control.Gains{}
	return cfg
}

func newTestNavigator(t *testing.T, cfg navigation.Config, opts ...navigation.Option) (*navigation.Navigator, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	opts = append([]navigation.Option{navigation.WithClock(clk)}, opts...)
	nav, err := navigation.New(cfg, logging.NewTestLogger(t), opts...)
	test.That(t, err, test.ShouldBeNil)
	return nav, clk
}

type fakeTolerances struct {
	tol navigation.Tolerances
}

func (f *fakeTolerances) Tolerances() navigation.Tolerances {
	return f.tol
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := navigation.DefaultConfig()
	cfg.Tolerance = 0
	_, err := navigation.New(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "tolerance")
}

func TestSingleWaypointHovers(t *testing.T) {
	ctx := context.Background()
	nav, _ := newTestNavigator(t, navigation.DefaultConfig())
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateAwaitingTrajectory)

	err := nav.OnTrajectory(ctx, navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 0, 0)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateTracking)
	test.That(t, nav.FinalApproach(), test.ShouldBeTrue)
	test.That(t, nav.Tolerances().Position, test.ShouldAlmostEqual, 0.075)

	cmd, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, cmd, test.ShouldBeNil)
	test.That(t, reached, test.ShouldBeTrue)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateHovering)

	for i := 0; i < 5; i++ {
		cmd, reached = nav.OnPose(ctx, navigation.NewPoseEstimate(0.01, -0.01, 0, 0.01))
		test.That(t, cmd, test.ShouldBeNil)
		test.That(t, reached, test.ShouldBeFalse)
		test.That(t, nav.State(), test.ShouldEqual, navigation.StateHovering)
	}
}

func TestAdvanceThenCommand(t *testing.T) {
	ctx := context.Background()
	nav, clk := newTestNavigator(t, xOnlyConfig())

	traj := navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 0, 0), navigation.NewWaypoint(1, 0, 0, 0))
	test.That(t, nav.OnTrajectory(ctx, traj), test.ShouldBeNil)
	test.That(t, nav.TrajectoryID(), test.ShouldEqual, traj.ID)
	test.That(t, nav.Remaining(), test.ShouldEqual, 1)
	test.That(t, nav.FinalApproach(), test.ShouldBeFalse)
	test.That(t, nav.Tolerances().Position, test.ShouldAlmostEqual, 0.15)

	// already at the first waypoint: advance, no command
	cmd, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, cmd, test.ShouldBeNil)
	test.That(t, reached, test.ShouldBeFalse)
	goal, index, ok := nav.ActiveGoal()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, index, test.ShouldEqual, 2)
	test.That(t, goal, test.ShouldResemble, navigation.NewWaypoint(1, 0, 0, 0))
	test.That(t, nav.Remaining(), test.ShouldEqual, 0)
	test.That(t, nav.FinalApproach(), test.ShouldBeTrue)
	test.That(t, nav.Tolerances().Position, test.ShouldAlmostEqual, 0.075)

	clk.Add(100 * time.Millisecond)
	cmd, reached = nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, reached, test.ShouldBeFalse)
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, 0.5)
	test.That(t, cmd.Linear.Y, test.ShouldAlmostEqual, 0)
	test.That(t, cmd.Linear.Z, test.ShouldAlmostEqual, 0)
	test.That(t, cmd.AngularZ, test.ShouldAlmostEqual, 0)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateTracking)
}

func TestNoTrajectoryWarnsOnce(t *testing.T) {
	ctx := context.Background()
	cfg := navigation.DefaultConfig()
	cfg.WarnInterval = time.Hour
	logger, logs := logging.NewObservedTestLogger(t)
	nav, err := navigation.New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < 20; i++ {
		cmd, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(float64(i), 0, 0, 0))
		test.That(t, cmd, test.ShouldBeNil)
		test.That(t, reached, test.ShouldBeFalse)
	}
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateAwaitingTrajectory)
	test.That(t, logs.FilterMessage("waypoints not received, skipping current pose").Len(), test.ShouldEqual, 1)

	_, _, ok := nav.ActiveGoal()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestNoTrajectoryWarningInterval(t *testing.T) {
	ctx := context.Background()
	cfg := navigation.DefaultConfig()
	cfg.WarnInterval = 5 * time.Second
	logger, logs := logging.NewObservedTestLogger(t)
	clk := clock.NewMock()
	nav, err := navigation.New(cfg, logger, navigation.WithClock(clk))
	test.That(t, err, test.ShouldBeNil)

	warnings := func() int {
		return logs.FilterMessage("waypoints not received, skipping current pose").Len()
	}
	for i := 0; i < 5; i++ {
		nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
		clk.Add(time.Second)
	}
	test.That(t, warnings(), test.ShouldEqual, 1)

	// five seconds after the first warning
	nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, warnings(), test.ShouldEqual, 2)
	nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, warnings(), test.ShouldEqual, 2)

	cfg.WarnInterval = 0
	logger, logs = logging.NewObservedTestLogger(t)
	nav, err = navigation.New(cfg, logger, navigation.WithClock(clk))
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
		clk.Add(time.Hour)
	}
	test.That(t, warnings(), test.ShouldEqual, 1)
}

func TestYawAlignment(t *testing.T) {
	ctx := context.Background()
	nav, _ := newTestNavigator(t, navigation.DefaultConfig())

	test.That(t, nav.OnTrajectory(ctx, navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 0, 0.5))), test.ShouldBeNil)

	cmd, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, reached, test.ShouldBeFalse)
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldEqual, 0.0)
	test.That(t, cmd.Linear.Y, test.ShouldEqual, 0.0)
	test.That(t, cmd.Linear.Z, test.ShouldEqual, 0.0)
	test.That(t, cmd.AngularZ, test.ShouldAlmostEqual, 0.25)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateTracking)

	cmd, reached = nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0.48))
	test.That(t, cmd, test.ShouldBeNil)
	test.That(t, reached, test.ShouldBeTrue)
}

func TestYawErrorWrapping(t *testing.T) {
	ctx := context.Background()
	goal := navigation.NewWaypoint(0, 0, 0, math.Pi-0.1)
	pose := navigation.NewPoseEstimate(0, 0, 0, -math.Pi+0.1)

	nav, _ := newTestNavigator(t, navigation.DefaultConfig())
	test.That(t, nav.OnTrajectory(ctx, navigation.NewTrajectory(goal)), test.ShouldBeNil)
	cmd, _ := nav.OnPose(ctx, pose)
	test.That(t, cmd, test.ShouldNotBeNil)
	// raw error is 2pi - 0.2, so the command saturates
	test.That(t, cmd.AngularZ, test.ShouldAlmostEqual, navigation.DefaultRotationalSpeed)

	cfg := navigation.DefaultConfig()
	cfg.WrapYawError = true
	nav, _ = newTestNavigator(t, cfg)
	test.That(t, nav.OnTrajectory(ctx, navigation.NewTrajectory(goal)), test.ShouldBeNil)
	cmd, _ = nav.OnPose(ctx, pose)
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.AngularZ, test.ShouldAlmostEqual, -0.1, 1e-9)
}

func TestBodyFrameRotation(t *testing.T) {
	ctx := context.Background()
	nav, _ := newTestNavigator(t, xOnlyConfig())
	test.That(t, nav.OnTrajectory(ctx, navigation.NewTrajectory(navigation.NewWaypoint(1, 0, 0, 0))), test.ShouldBeNil)

	// facing +Y, so a world +X velocity is to the robot's right
	cmd, _ := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, math.Pi/2))
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, 0)
	test.That(t, cmd.Linear.Y, test.ShouldAlmostEqual, -0.5)
}

func TestCommandsAreClamped(t *testing.T) {
	ctx := context.Background()
	cfg := navigation.DefaultConfig()
	cfg.MaxSpeed.Translational = 0.3
	nav, _ := newTestNavigator(t, cfg)
	test.That(t, nav.OnTrajectory(ctx, navigation.NewTrajectory(navigation.NewWaypoint(10, -10, 4, 0))), test.ShouldBeNil)

	cmd, _ := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, 0.3)
	test.That(t, cmd.Linear.Y, test.ShouldAlmostEqual, -0.3)
	test.That(t, cmd.Linear.Z, test.ShouldAlmostEqual, 0.3)
}

func TestFinalToleranceTightening(t *testing.T) {
	ctx := context.Background()
	nav, _ := newTestNavigator(t, xOnlyConfig())
	traj := navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 0, 0), navigation.NewWaypoint(1, 0, 0, 0))
	test.That(t, nav.OnTrajectory(ctx, traj), test.ShouldBeNil)

	_, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(0.1, 0, 0, 0))
	test.That(t, reached, test.ShouldBeFalse)
	_, index, _ := nav.ActiveGoal()
	test.That(t, index, test.ShouldEqual, 2)

	// within the base tolerance but not the halved one
	cmd, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(0.9, 0, 0, 0))
	test.That(t, reached, test.ShouldBeFalse)
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldBeGreaterThan, 0)

	cmd, reached = nav.OnPose(ctx, navigation.NewPoseEstimate(0.95, 0, 0, 0))
	test.That(t, cmd, test.ShouldBeNil)
	test.That(t, reached, test.ShouldBeTrue)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateHovering)
}

func TestHoveringCorrectsDisplacement(t *testing.T) {
	ctx := context.Background()
	nav, _ := newTestNavigator(t, xOnlyConfig())
	test.That(t, nav.OnTrajectory(ctx, navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 0, 0))), test.ShouldBeNil)
	_, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, reached, test.ShouldBeTrue)

	cmd, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(1, 0, 0, 0))
	test.That(t, reached, test.ShouldBeFalse)
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, -0.5)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateHovering)

	cmd, reached = nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, cmd, test.ShouldBeNil)
	test.That(t, reached, test.ShouldBeFalse)
}

func TestNewTrajectoryWhileHovering(t *testing.T) {
	ctx := context.Background()
	nav, _ := newTestNavigator(t, navigation.DefaultConfig())
	first := navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 0, 0))
	test.That(t, nav.OnTrajectory(ctx, first), test.ShouldBeNil)
	_, reached := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, reached, test.ShouldBeTrue)

	second := navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 1, 0), navigation.NewWaypoint(0, 0, 2, 0))
	test.That(t, nav.OnTrajectory(ctx, second), test.ShouldBeNil)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateTracking)
	test.That(t, nav.TrajectoryID(), test.ShouldEqual, second.ID)
	test.That(t, nav.FinalApproach(), test.ShouldBeFalse)
	test.That(t, nav.Tolerances().Position, test.ShouldAlmostEqual, 0.15)

	_, reached = nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 1, 0))
	test.That(t, reached, test.ShouldBeFalse)
	_, reached = nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 2, 0))
	test.That(t, reached, test.ShouldBeTrue)
}

func TestEmptyTrajectoryRejected(t *testing.T) {
	ctx := context.Background()
	nav, _ := newTestNavigator(t, navigation.DefaultConfig())

	err := nav.OnTrajectory(ctx, navigation.NewTrajectory())
	test.That(t, errors.Is(err, navigation.ErrEmptyTrajectory), test.ShouldBeTrue)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateAwaitingTrajectory)

	traj := navigation.NewTrajectory(navigation.NewWaypoint(3, 0, 0, 0), navigation.NewWaypoint(4, 0, 0, 0))
	test.That(t, nav.OnTrajectory(ctx, traj), test.ShouldBeNil)

	err = nav.OnTrajectory(ctx, navigation.Trajectory{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, nav.State(), test.ShouldEqual, navigation.StateTracking)
	test.That(t, nav.TrajectoryID(), test.ShouldEqual, traj.ID)
	goal, index, _ := nav.ActiveGoal()
	test.That(t, goal, test.ShouldResemble, navigation.NewWaypoint(3, 0, 0, 0))
	test.That(t, index, test.ShouldEqual, 1)
	test.That(t, nav.Remaining(), test.ShouldEqual, 1)
}

func TestControlCycleTiming(t *testing.T) {
	ctx := context.Background()
	cfg := xOnlyConfig()
	cfg.X = control.Gains{Kp: 0.5, Kd: 0.1}
	nav, clk := newTestNavigator(t, cfg)
	test.That(t, nav.OnTrajectory(ctx, navigation.NewTrajectory(navigation.NewWaypoint(1, 0, 0, 0))), test.ShouldBeNil)

	// no previous cycle, so only the proportional term contributes
	cmd, _ := nav.OnPose(ctx, navigation.NewPoseEstimate(0, 0, 0, 0))
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, 0.5)

	clk.Add(500 * time.Millisecond)
	// p = 0.25, d = 0.1 * (0.5 - 1) / 0.5 = -0.1
	cmd, _ = nav.OnPose(ctx, navigation.NewPoseEstimate(0.5, 0, 0, 0))
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, 0.15)

	// a pose with no elapsed time skips the derivative
	cmd, _ = nav.OnPose(ctx, navigation.NewPoseEstimate(0.6, 0, 0, 0))
	test.That(t, cmd, test.ShouldNotBeNil)
	test.That(t, cmd.Linear.X, test.ShouldAlmostEqual, 0.2)
}

func TestToleranceSourceReadPerTrajectory(t *testing.T) {
	ctx := context.Background()
	src := &fakeTolerances{tol: navigation.Tolerances{Position: 0.4, Yaw: 0.2}}
	nav, _ := newTestNavigator(t, xOnlyConfig(), navigation.WithToleranceSource(src))

	traj := navigation.NewTrajectory(navigation.NewWaypoint(0, 0, 0, 0), navigation.NewWaypoint(1, 0, 0, 0))
	test.That(t, nav.OnTrajectory(ctx, traj), test.ShouldBeNil)
	test.That(t, nav.Tolerances(), test.ShouldResemble, navigation.Tolerances{Position: 0.4, Yaw: 0.2})

	// changes only apply to the next trajectory
	src.tol = navigation.Tolerances{Position: 0.01, Yaw: 0.01}
	_, _ = nav.OnPose(ctx, navigation.NewPoseEstimate(0.3, 0, 0, 0.1))
	_, index, _ := nav.ActiveGoal()
	test.That(t, index, test.ShouldEqual, 2)
	test.That(t, nav.Tolerances().Position, test.ShouldAlmostEqual, 0.2)

	test.That(t, nav.OnTrajectory(ctx, traj), test.ShouldBeNil)
	test.That(t, nav.Tolerances(), test.ShouldResemble, navigation.Tolerances{Position: 0.01, Yaw: 0.01})

	// non-positive values fall back to the configured tolerances
	src.tol = navigation.Tolerances{Position: -1, Yaw: 0.1}
	test.That(t, nav.OnTrajectory(ctx, traj), test.ShouldBeNil)
	test.That(t, nav.Tolerances(), test.ShouldResemble, navigation.Tolerances{
		Position: navigation.DefaultPositionTolerance,
		Yaw:      navigation.DefaultYawTolerance,
	})
}
