// Package transport connects a navigator to the outside world: where its commands and goal
// signals go, and the event loop that feeds it poses and trajectories one at a time.
package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"go.viam.com/dronenav/components/base"
	"go.viam.com/dronenav/services/navigation"
)

// VelocitySink receives every published velocity command, in both plain and stamped form.
type VelocitySink interface {
	PublishVelocity(ctx context.Context, cmd navigation.VelocityCommand) error
	PublishStampedVelocity(ctx context.Context, cmd navigation.StampedVelocityCommand) error
}

// GoalSink receives the signal raised when the final waypoint of a trajectory is reached.
type GoalSink interface {
	PublishGoalReached(ctx context.Context, trajectoryID uuid.UUID, reached bool) error
}

// Sink is both a VelocitySink and a GoalSink.
type Sink interface {
	VelocitySink
	GoalSink
}

// TrajectoryObserver is optionally implemented by sinks that want to see each accepted
// trajectory.
type TrajectoryObserver interface {
	ObserveTrajectory(ctx context.Context, traj navigation.Trajectory) error
}

// Dispatch publishes the result of one control cycle. A nil cmd publishes nothing; a command
// is published in both forms stamped with now. All sinks are attempted and their errors
// combined.
func Dispatch(
	ctx context.Context,
	sink Sink,
	trajectoryID uuid.UUID,
	cmd *navigation.VelocityCommand,
	reached bool,
	now time.Time,
) error {
	var err error
	if cmd != nil {
		err = multierr.Combine(
			sink.PublishVelocity(ctx, *cmd),
			sink.PublishStampedVelocity(ctx, cmd.Stamped(now)),
		)
	}
	if reached {
		err = multierr.Combine(err, sink.PublishGoalReached(ctx, trajectoryID, true))
	}
	return err
}

// MultiSink fans out to every member.
type MultiSink []Sink

// PublishVelocity implements VelocitySink.
func (ms MultiSink) PublishVelocity(ctx context.Context, cmd navigation.VelocityCommand) error {
	var err error
	for _, s := range ms {
		err = multierr.Combine(err, s.PublishVelocity(ctx, cmd))
	}
	return err
}

// PublishStampedVelocity implements VelocitySink.
func (ms MultiSink) PublishStampedVelocity(ctx context.Context, cmd navigation.StampedVelocityCommand) error {
	var err error
	for _, s := range ms {
		err = multierr.Combine(err, s.PublishStampedVelocity(ctx, cmd))
	}
	return err
}

// PublishGoalReached implements GoalSink.
func (ms MultiSink) PublishGoalReached(ctx context.Context, trajectoryID uuid.UUID, reached bool) error {
	var err error
	for _, s := range ms {
		err = multierr.Combine(err, s.PublishGoalReached(ctx, trajectoryID, reached))
	}
	return err
}

// ObserveTrajectory forwards to members implementing TrajectoryObserver.
func (ms MultiSink) ObserveTrajectory(ctx context.Context, traj navigation.Trajectory) error {
	var err error
	for _, s := range ms {
		if obs, ok := s.(TrajectoryObserver); ok {
			err = multierr.Combine(err, obs.ObserveTrajectory(ctx, traj))
		}
	}
	return err
}

// Close closes every member that is an io.Closer.
func (ms MultiSink) Close() error {
	var err error
	for _, s := range ms {
		if closer, ok := s.(io.Closer); ok {
			err = multierr.Combine(err, closer.Close())
		}
	}
	return err
}

// BaseSink drives a base with the published commands and stops it when the goal is reached.
type BaseSink struct {
	Base base.Base
}

// PublishVelocity sets the base's velocity.
func (bs BaseSink) PublishVelocity(ctx context.Context, cmd navigation.VelocityCommand) error {
	return bs.Base.SetVelocity(ctx, cmd.Linear, cmd.Angular(), nil)
}

// PublishStampedVelocity does nothing; the unstamped command already moved the base.
func (bs BaseSink) PublishStampedVelocity(ctx context.Context, cmd navigation.StampedVelocityCommand) error {
	return nil
}

// PublishGoalReached stops the base.
func (bs BaseSink) PublishGoalReached(ctx context.Context, trajectoryID uuid.UUID, reached bool) error {
	if !reached {
		return nil
	}
	return bs.Base.Stop(ctx, nil)
}

// GoalEvent is a goal reached signal as seen by a Recorder.
type GoalEvent struct {
	TrajectoryID uuid.UUID
	Reached      bool
}

// Recorder keeps everything published to it in memory.
type Recorder struct {
	mu           sync.Mutex
	commands     []navigation.VelocityCommand
	stamped      []navigation.StampedVelocityCommand
	goals        []GoalEvent
	trajectories []navigation.Trajectory
}

// PublishVelocity implements VelocitySink.
func (r *Recorder) PublishVelocity(ctx context.Context, cmd navigation.VelocityCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return nil
}

// PublishStampedVelocity implements VelocitySink.
func (r *Recorder) PublishStampedVelocity(ctx context.Context, cmd navigation.StampedVelocityCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stamped = append(r.stamped, cmd)
	return nil
}

// PublishGoalReached implements GoalSink.
func (r *Recorder) PublishGoalReached(ctx context.Context, trajectoryID uuid.UUID, reached bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals = append(r.goals, GoalEvent{TrajectoryID: trajectoryID, Reached: reached})
	return nil
}

// ObserveTrajectory implements TrajectoryObserver.
func (r *Recorder) ObserveTrajectory(ctx context.Context, traj navigation.Trajectory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trajectories = append(r.trajectories, traj)
	return nil
}

// Commands returns a copy of the unstamped commands received.
func (r *Recorder) Commands() []navigation.VelocityCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]navigation.VelocityCommand(nil), r.commands...)
}

// StampedCommands returns a copy of the stamped commands received.
func (r *Recorder) StampedCommands() []navigation.StampedVelocityCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]navigation.StampedVelocityCommand(nil), r.stamped...)
}

// Goals returns a copy of the goal signals received.
func (r *Recorder) Goals() []GoalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GoalEvent(nil), r.goals...)
}

// Trajectories returns a copy of the trajectories observed.
func (r *Recorder) Trajectories() []navigation.Trajectory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]navigation.Trajectory(nil), r.trajectories...)
}
