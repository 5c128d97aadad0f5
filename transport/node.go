package transport

import (
	"context"
	"io"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
)

// ErrNodeClosed is returned when submitting to a node that has been closed.
var ErrNodeClosed = errors.New("navigation node closed")

// eventQueueSize matches the subscriber queue depth of the pose topic.
const eventQueueSize = 5

type event struct {
	pose   *navigation.PoseEstimate
	traj   *navigation.Trajectory
	result chan error
}

// NodeStats counts what a node has done since it started.
type NodeStats struct {
	Cycles        int64
	Commands      int64
	GoalsReached  int64
	Trajectories  int64
	PublishErrors int64
}

// A Node owns a navigator and feeds it trajectories and poses from a single goroutine, in the
// order they were submitted, publishing each cycle's result to its sink.
type Node struct {
	nav    *navigation.Navigator
	sink   Sink
	clock  clock.Clock
	logger logging.Logger

	events chan event

	cycles, commands, goals, trajectories, publishErrors atomic.Int64

	cancelCtx               context.Context
	cancelFunc              context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
	closeOnce               sync.Once
	closeErr                error
}

// NewNode starts a node. The node takes ownership of sink and closes it on Close if it is an
// io.Closer.
func NewNode(nav *navigation.Navigator, sink Sink, clk clock.Clock, logger logging.Logger) *Node {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	n := &Node{
		nav:        nav,
		sink:       sink,
		clock:      clk,
		logger:     logger,
		events:     make(chan event, eventQueueSize),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}

	n.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer n.activeBackgroundWorkers.Done()
		n.run()
	})
	return n
}

func (n *Node) run() {
	for {
		select {
		case <-n.cancelCtx.Done():
			return
		case ev := <-n.events:
			switch {
			case ev.traj != nil:
				ev.result <- n.handleTrajectory(n.cancelCtx, *ev.traj)
			case ev.pose != nil:
				n.handlePose(n.cancelCtx, *ev.pose)
			}
		}
	}
}

func (n *Node) handleTrajectory(ctx context.Context, traj navigation.Trajectory) error {
	if err := n.nav.OnTrajectory(ctx, traj); err != nil {
		return err
	}
	n.trajectories.Inc()
	if obs, ok := n.sink.(TrajectoryObserver); ok {
		if err := obs.ObserveTrajectory(ctx, traj); err != nil {
			n.publishErrors.Inc()
			n.logger.Warnw("failed to record trajectory", "trajectory", traj.ID, "error", err)
		}
	}
	return nil
}

func (n *Node) handlePose(ctx context.Context, pose navigation.PoseEstimate) {
	cmd, reached := n.nav.OnPose(ctx, pose)
	n.cycles.Inc()
	if cmd != nil {
		n.commands.Inc()
	}
	if reached {
		n.goals.Inc()
	}
	if err := Dispatch(ctx, n.sink, n.nav.TrajectoryID(), cmd, reached, n.clock.Now()); err != nil {
		n.publishErrors.Inc()
		n.logger.Warnw("failed to publish", "error", err)
	}
}

// SubmitTrajectory hands traj to the navigator and waits for it to be accepted or rejected.
func (n *Node) SubmitTrajectory(ctx context.Context, traj navigation.Trajectory) error {
	result := make(chan error, 1)
	if err := n.submit(ctx, event{traj: &traj, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.cancelCtx.Done():
		return ErrNodeClosed
	}
}

// SubmitPose queues pose for the next control cycle. It blocks while the queue is full.
func (n *Node) SubmitPose(ctx context.Context, pose navigation.PoseEstimate) error {
	return n.submit(ctx, event{pose: &pose})
}

func (n *Node) submit(ctx context.Context, ev event) error {
	if n.cancelCtx.Err() != nil {
		return ErrNodeClosed
	}
	select {
	case n.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.cancelCtx.Done():
		return ErrNodeClosed
	}
}

// Stats returns the node's counters.
func (n *Node) Stats() NodeStats {
	return NodeStats{
		Cycles:        n.cycles.Load(),
		Commands:      n.commands.Load(),
		GoalsReached:  n.goals.Load(),
		Trajectories:  n.trajectories.Load(),
		PublishErrors: n.publishErrors.Load(),
	}
}

// Close stops the node. Events still queued are dropped.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.cancelFunc()
		n.activeBackgroundWorkers.Wait()
		if closer, ok := n.sink.(io.Closer); ok {
			n.closeErr = closer.Close()
		}
	})
	return n.closeErr
}
