package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/dronenav/config"
	"go.viam.com/dronenav/flightlog"
	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/ros"
	"go.viam.com/dronenav/serial"
	"go.viam.com/dronenav/services/navigation"
	"go.viam.com/dronenav/sim"
	"go.viam.com/dronenav/transport"
)

func printf(w io.Writer, format string, a ...interface{}) {
	_, _ = fmt.Fprintf(w, format+"\n", a...)
}

// setup builds the logger and reads the config named by the global flags.
func setup(c *cli.Context) (*config.Config, logging.Logger, error) {
	logger := logging.NewBlankLogger("navigate")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))

	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, nil, err
		}
	}
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(cfg.Level())
	}
	return cfg, logger, nil
}

// openOutputs opens the serial link and flight log the config asks for. flightLog overrides
// the configured flight log path when set.
func openOutputs(cfg *config.Config, flightLog string, clk clock.Clock, logger logging.Logger) (transport.MultiSink, error) {
	var sinks transport.MultiSink
	if cfg.Serial != nil {
		w, err := serial.NewTwistWriter(cfg.Serial.Path, serial.DefaultOptions(cfg.Serial.BaudRate), logger.Sublogger("serial"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	}

	if flightLog == "" {
		flightLog = cfg.FlightLog
	}
	if flightLog != "" {
		fl, err := flightlog.Open(flightLog, clk, logger.Sublogger("flightlog"))
		if err != nil {
			return nil, multierr.Combine(err, sinks.Close())
		}
		sinks = append(sinks, fl)
	}
	return sinks, nil
}

// SimulateAction flies a trajectory with a simulated vehicle and prints a report.
func SimulateAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	traj, err := trajectoryFromFlags(c)
	if err != nil {
		return err
	}
	start, err := parseWaypoint(c.String(flagStart))
	if err != nil {
		return errors.Wrapf(err, "--%s", flagStart)
	}

	clk := clock.NewMock()
	outputs, err := openOutputs(cfg, c.String(flagFlightLog), clk, logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(outputs.Close)

	s, err := sim.New(cfg.Config, sim.Config{
		Step:         c.Duration(flagStep),
		MaxSteps:     c.Int(flagMaxSteps),
		TimeConstant: c.Duration(flagLag),
		Start:        navigation.NewPoseEstimate(start.Position.X, start.Position.Y, start.Position.Z, start.Yaw),
		StartTime:    time.Now(),
		Clock:        clk,
	}, logger, outputs)
	if err != nil {
		return err
	}

	report, err := s.Run(c.Context, traj)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", report)
	if !report.Reached {
		return errors.Errorf("final waypoint not reached after %d steps", report.Steps)
	}
	return nil
}

// ReplayAction feeds the poses and trajectories recorded in a rosbag through a navigator.
func ReplayAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	rb, err := ros.ReadBag(c.String(flagBag))
	if err != nil {
		return err
	}
	events, err := ros.ReplayEvents(rb)
	if err != nil {
		return err
	}
	logger.Infow("replaying bag", "path", c.String(flagBag), "events", len(events))

	var stats transport.NodeStats
	if c.Bool(flagRealtime) {
		stats, err = replayLive(c.Context, events, cfg, c.String(flagFlightLog), logger)
	} else {
		stats, err = replayEvents(c.Context, events, cfg, c.String(flagFlightLog), logger)
	}
	if err != nil {
		return err
	}
	printStats(c.App.Writer, stats)
	return nil
}

// replayEvents runs events through a navigator as fast as possible, with the navigator's clock
// following the recorded timestamps.
func replayEvents(
	ctx context.Context,
	events []ros.Event,
	cfg *config.Config,
	flightLog string,
	logger logging.Logger,
) (transport.NodeStats, error) {
	var stats transport.NodeStats
	clk := clock.NewMock()
	nav, err := navigation.New(cfg.Config, logger.Sublogger("navigator"), navigation.WithClock(clk))
	if err != nil {
		return stats, err
	}
	sink, err := openOutputs(cfg, flightLog, clk, logger)
	if err != nil {
		return stats, err
	}
	defer utils.UncheckedErrorFunc(sink.Close)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !ev.Time.Before(clk.Now()) {
			clk.Set(ev.Time)
		}
		switch {
		case ev.Trajectory != nil:
			if err := nav.OnTrajectory(ctx, *ev.Trajectory); err != nil {
				logger.Warnw("skipping trajectory", "error", err)
				continue
			}
			stats.Trajectories++
			if err := sink.ObserveTrajectory(ctx, *ev.Trajectory); err != nil {
				stats.PublishErrors++
				logger.Warnw("failed to record trajectory", "error", err)
			}
		case ev.Pose != nil:
			cmd, reached := nav.OnPose(ctx, *ev.Pose)
			stats.Cycles++
			if cmd != nil {
				stats.Commands++
			}
			if reached {
				stats.GoalsReached++
			}
			if err := transport.Dispatch(ctx, sink, nav.TrajectoryID(), cmd, reached, clk.Now()); err != nil {
				stats.PublishErrors++
				logger.Warnw("failed to publish", "error", err)
			}
		}
	}
	return stats, nil
}

// replayLive submits events to a running node, waiting out the recorded gap between them. The
// config file, if any, is watched so tolerance edits apply to the next trajectory.
func replayLive(
	ctx context.Context,
	events []ros.Event,
	cfg *config.Config,
	flightLog string,
	logger logging.Logger,
) (transport.NodeStats, error) {
	opts := []navigation.Option{}
	if cfg.ConfigFilePath != "" {
		watcher, err := config.NewWatcher(cfg.ConfigFilePath, logger.Sublogger("config"))
		if err != nil {
			return transport.NodeStats{}, err
		}
		defer utils.UncheckedErrorFunc(watcher.Close)
		opts = append(opts, navigation.WithToleranceSource(watcher))
	}

	nav, err := navigation.New(cfg.Config, logger.Sublogger("navigator"), opts...)
	if err != nil {
		return transport.NodeStats{}, err
	}
	clk := clock.New()
	sink, err := openOutputs(cfg, flightLog, clk, logger)
	if err != nil {
		return transport.NodeStats{}, err
	}
	node := transport.NewNode(nav, sink, clk, logger.Sublogger("node"))

	var last time.Time
	for _, ev := range events {
		if !last.IsZero() && ev.Time.After(last) {
			if !utils.SelectContextOrWait(ctx, ev.Time.Sub(last)) {
				return node.Stats(), multierr.Combine(ctx.Err(), node.Close())
			}
		}
		last = ev.Time

		var err error
		switch {
		case ev.Trajectory != nil:
			if err = node.SubmitTrajectory(ctx, *ev.Trajectory); err != nil && !errors.Is(err, navigation.ErrEmptyTrajectory) {
				return node.Stats(), multierr.Combine(err, node.Close())
			}
		case ev.Pose != nil:
			if err = node.SubmitPose(ctx, *ev.Pose); err != nil {
				return node.Stats(), multierr.Combine(err, node.Close())
			}
		}
	}
	// let the last queued poses drain before stopping
	waitForDrain(ctx, node, countPoses(events))
	err = node.Close()
	return node.Stats(), err
}

func countPoses(events []ros.Event) int64 {
	var n int64
	for _, ev := range events {
		if ev.Pose != nil {
			n++
		}
	}
	return n
}

func waitForDrain(ctx context.Context, node *transport.Node, cycles int64) {
	for node.Stats().Cycles < cycles {
		if !utils.SelectContextOrWait(ctx, 10*time.Millisecond) {
			return
		}
	}
}

func printStats(w io.Writer, stats transport.NodeStats) {
	printf(w, "cycles=%d commands=%d goals_reached=%d trajectories=%d publish_errors=%d",
		stats.Cycles, stats.Commands, stats.GoalsReached, stats.Trajectories, stats.PublishErrors)
}

// ValidateConfigAction reads the config, reporting any error, and prints it with defaults
// filled in.
func ValidateConfigAction(c *cli.Context) error {
	if c.String(flagConfig) == "" {
		return errors.Errorf("--%s is required", flagConfig)
	}
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

type waypointEntry struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

type waypointFile struct {
	Waypoints []waypointEntry `json:"waypoints"`
}

// trajectoryFromFlags builds a trajectory from --waypoints followed by each --waypoint.
func trajectoryFromFlags(c *cli.Context) (navigation.Trajectory, error) {
	var waypoints []navigation.Waypoint
	if path := c.String(flagWaypoints); path != "" {
		//nolint:gosec
		raw, err := os.ReadFile(path)
		if err != nil {
			return navigation.Trajectory{}, err
		}
		var file waypointFile
		if err := json5.Unmarshal(raw, &file); err != nil {
			return navigation.Trajectory{}, errors.Wrapf(err, "failed to decode waypoints %q", path)
		}
		for _, w := range file.Waypoints {
			waypoints = append(waypoints, navigation.NewWaypoint(w.X, w.Y, w.Z, w.Yaw))
		}
	}
	var args []string
	if wa, ok := c.Generic(flagWaypoint).(*waypointArgs); ok && wa != nil {
		args = *wa
	}
	for _, s := range args {
		w, err := parseWaypoint(s)
		if err != nil {
			return navigation.Trajectory{}, errors.Wrapf(err, "--%s", flagWaypoint)
		}
		waypoints = append(waypoints, w)
	}
	if len(waypoints) == 0 {
		return navigation.Trajectory{}, errors.Errorf("no waypoints given; use --%s or --%s", flagWaypoints, flagWaypoint)
	}
	return navigation.NewTrajectory(waypoints...), nil
}

// parseWaypoint parses "x,y,z,yaw".
func parseWaypoint(s string) (navigation.Waypoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return navigation.Waypoint{}, errors.Errorf("expected x,y,z,yaw but got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return navigation.Waypoint{}, errors.Wrapf(err, "parsing %q", s)
		}
		v[i] = f
	}
	return navigation.NewWaypoint(v[0], v[1], v[2], v[3]), nil
}
