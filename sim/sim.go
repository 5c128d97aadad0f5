package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
	"go.viam.com/dronenav/transport"
)

// Defaults for Config.
const (
	DefaultStep     = 50 * time.Millisecond
	DefaultMaxSteps = 20000
)

// Config describes a simulation run.
type Config struct {
	// Step is both the control period and the integration step.
	Step     time.Duration
	MaxSteps int
	// TimeConstant is the vehicle's velocity lag. Zero means no lag.
	TimeConstant time.Duration
	Start        navigation.PoseEstimate
	// StartTime is the simulated wall clock at the first step.
	StartTime time.Time
	// Clock, if set, is the clock the simulator advances. Sinks that stamp their own records
	// should share it.
	Clock *clock.Mock
}

func (cfg Config) withDefaults() Config {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Unix(0, 0)
	}
	return cfg
}

// A Simulator flies a Vehicle with a Navigator, stepping a mock clock so runs are deterministic
// and take no real time.
type Simulator struct {
	cfg     Config
	clock   *clock.Mock
	nav     *navigation.Navigator
	vehicle *Vehicle
	rec     *transport.Recorder
	sink    transport.MultiSink
	logger  logging.Logger
}

// New returns a simulator. Every cycle's output goes to the vehicle and to each of extra.
func New(
	navCfg navigation.Config,
	cfg Config,
	logger logging.Logger,
	extra []transport.Sink,
	opts ...navigation.Option,
) (*Simulator, error) {
	cfg = cfg.withDefaults()
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewMock()
	}
	clk.Set(cfg.StartTime)

	opts = append([]navigation.Option{navigation.WithClock(clk)}, opts...)
	nav, err := navigation.New(navCfg, logger.Sublogger("navigator"), opts...)
	if err != nil {
		return nil, err
	}

	vehicle := NewVehicle(cfg.Start, cfg.TimeConstant)
	rec := &transport.Recorder{}
	sink := append(transport.MultiSink{transport.BaseSink{Base: vehicle}, rec}, extra...)
	return &Simulator{
		cfg:     cfg,
		clock:   clk,
		nav:     nav,
		vehicle: vehicle,
		rec:     rec,
		sink:    sink,
		logger:  logger,
	}, nil
}

// Report summarises one Run.
type Report struct {
	TrajectoryID  string
	Reached       bool
	Steps         int
	Duration      time.Duration
	Commands      int
	GoalSignals   int
	FinalPosition r3.Vector
	// FinalError is the distance from the last waypoint when the run ended.
	FinalError float64
	// MeanError, P95Error and MaxError describe the distance to the active goal over the run.
	MeanError float64
	P95Error  float64
	MaxError  float64
	MaxSpeed  float64
}

func (r Report) String() string {
	return fmt.Sprintf(
		"trajectory=%s reached=%t steps=%d duration=%s commands=%d goal_signals=%d final_error=%.3f "+
			"error(mean=%.3f p95=%.3f max=%.3f) max_speed=%.3f",
		r.TrajectoryID, r.Reached, r.Steps, r.Duration, r.Commands, r.GoalSignals, r.FinalError,
		r.MeanError, r.P95Error, r.MaxError, r.MaxSpeed)
}

// Run flies traj until the final waypoint is reached or the step budget runs out. The
// vehicle keeps its state between runs.
func (s *Simulator) Run(ctx context.Context, traj navigation.Trajectory) (*Report, error) {
	if err := s.nav.OnTrajectory(ctx, traj); err != nil {
		return nil, err
	}
	if err := s.sink.ObserveTrajectory(ctx, traj); err != nil {
		s.logger.Warnw("failed to record trajectory", "error", err)
	}
	final := traj.Waypoints[len(traj.Waypoints)-1].Position

	goalsBefore := len(s.rec.Goals())
	commandsBefore := len(s.rec.Commands())
	started := s.clock.Now()
	report := &Report{TrajectoryID: traj.ID.String()}
	var distances, speeds stats.Float64Data

	for report.Steps < s.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pose := s.vehicle.Pose(s.clock.Now())
		if goal, _, ok := s.nav.ActiveGoal(); ok {
			distances = append(distances, goal.Position.Sub(pose.Position).Norm())
		}

		cmd, reached := s.nav.OnPose(ctx, pose)
		if err := transport.Dispatch(ctx, s.sink, traj.ID, cmd, reached, s.clock.Now()); err != nil {
			s.logger.Warnw("failed to publish", "error", err)
		}
		report.Steps++
		if reached {
			report.Reached = true
			break
		}

		s.vehicle.Step(s.cfg.Step)
		speeds = append(speeds, s.vehicle.Speed())
		s.clock.Add(s.cfg.Step)
	}

	report.Duration = s.clock.Now().Sub(started)
	report.Commands = len(s.rec.Commands()) - commandsBefore
	report.GoalSignals = len(s.rec.Goals()) - goalsBefore
	report.FinalPosition = s.vehicle.Pose(s.clock.Now()).Position
	report.FinalError = final.Sub(report.FinalPosition).Norm()
	if err := report.summarise(distances, speeds); err != nil {
		return nil, err
	}

	if report.Reached {
		s.logger.Infow("simulation reached final waypoint", "steps", report.Steps, "duration", report.Duration)
	} else {
		s.logger.Warnw("simulation ran out of steps", "steps", report.Steps, "final_error", report.FinalError)
	}
	return report, nil
}

func (r *Report) summarise(distances, speeds stats.Float64Data) error {
	var err error
	if len(distances) > 0 {
		if r.MeanError, err = distances.Mean(); err != nil {
			return errors.Wrap(err, "mean error")
		}
		if r.P95Error, err = distances.Percentile(95); err != nil {
			return errors.Wrap(err, "p95 error")
		}
		if r.MaxError, err = distances.Max(); err != nil {
			return errors.Wrap(err, "max error")
		}
	}
	if len(speeds) > 0 {
		if r.MaxSpeed, err = speeds.Max(); err != nil {
			return errors.Wrap(err, "max speed")
		}
	}
	return nil
}

// Navigator returns the simulated navigator.
func (s *Simulator) Navigator() *navigation.Navigator {
	return s.nav
}

// Vehicle returns the simulated vehicle.
func (s *Simulator) Vehicle() *Vehicle {
	return s.vehicle
}

// Recorder returns everything the navigator has published.
func (s *Simulator) Recorder() *transport.Recorder {
	return s.rec
}
