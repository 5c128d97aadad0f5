// Package flightlog records what a navigation node did to a sqlite database: the trajectories it
// accepted, the commands it published and the goals it reached.
package flightlog

import (
	"context"
	"database/sql"
	// schema.sql is applied on open.
	_ "embed"
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	// registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
)

//go:embed schema.sql
var schemaSQL string

// Log is a flight log backed by sqlite. It can be used as a sink by a navigation node.
type Log struct {
	db     *sql.DB
	clock  clock.Clock
	logger logging.Logger

	mu      sync.Mutex
	current uuid.NullUUID
}

// Open opens or creates the flight log at path. ":memory:" is accepted. A nil clk uses the
// wall clock.
func Open(path string, clk clock.Clock, logger logging.Logger) (*Log, error) {
	if clk == nil {
		clk = clock.New()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "initialising flight log schema at %q", path), db.Close())
	}
	logger.Debugw("flight log open", "path", path)
	return &Log{db: db, clock: clk, logger: logger}, nil
}

// ObserveTrajectory records traj and attributes subsequent commands to it.
func (l *Log) ObserveTrajectory(ctx context.Context, traj navigation.Trajectory) error {
	waypoints, err := json.Marshal(traj.Waypoints)
	if err != nil {
		return err
	}
	received := traj.Stamp
	if received.IsZero() {
		received = l.clock.Now()
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trajectories (trajectory_id, received_ns, waypoint_count, waypoints) VALUES (?, ?, ?, ?)`,
		traj.ID.String(), received.UnixNano(), len(traj.Waypoints), string(waypoints))
	if err != nil {
		return errors.Wrap(err, "failed to insert trajectory")
	}

	l.mu.Lock()
	l.current = uuid.NullUUID{UUID: traj.ID, Valid: true}
	l.mu.Unlock()
	return nil
}

// PublishVelocity does nothing; commands are recorded in their stamped form.
func (l *Log) PublishVelocity(ctx context.Context, cmd navigation.VelocityCommand) error {
	return nil
}

// PublishStampedVelocity records cmd against the current trajectory.
func (l *Log) PublishStampedVelocity(ctx context.Context, cmd navigation.StampedVelocityCommand) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO commands (trajectory_id, stamp_ns, linear_x, linear_y, linear_z, angular_z) VALUES (?, ?, ?, ?, ?, ?)`,
		l.currentTrajectory(), cmd.Stamp.UnixNano(), cmd.Linear.X, cmd.Linear.Y, cmd.Linear.Z, cmd.AngularZ)
	if err != nil {
		return errors.Wrap(err, "failed to insert command")
	}
	return nil
}

// PublishGoalReached records an arrival.
func (l *Log) PublishGoalReached(ctx context.Context, trajectoryID uuid.UUID, reached bool) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO arrivals (trajectory_id, stamp_ns, reached) VALUES (?, ?, ?)`,
		trajectoryID.String(), l.clock.Now().UnixNano(), reached)
	if err != nil {
		return errors.Wrap(err, "failed to insert arrival")
	}
	return nil
}

func (l *Log) currentTrajectory() sql.NullString {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.current.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: l.current.UUID.String(), Valid: true}
}

// TrajectoryRecord is a row of the trajectories table.
type TrajectoryRecord struct {
	ID        uuid.UUID
	Received  time.Time
	Waypoints []navigation.Waypoint
}

// Trajectories returns every recorded trajectory, oldest first.
func (l *Log) Trajectories(ctx context.Context) ([]TrajectoryRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT trajectory_id, received_ns, waypoints FROM trajectories ORDER BY received_ns, rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query trajectories")
	}
	defer rows.Close()

	var out []TrajectoryRecord
	for rows.Next() {
		var (
			id, waypoints string
			receivedNs    int64
			rec           TrajectoryRecord
		)
		if err := rows.Scan(&id, &receivedNs, &waypoints); err != nil {
			return nil, err
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(waypoints), &rec.Waypoints); err != nil {
			return nil, errors.Wrapf(err, "trajectory %s", id)
		}
		rec.Received = time.Unix(0, receivedNs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Commands returns the commands recorded against a trajectory, in order.
func (l *Log) Commands(ctx context.Context, trajectoryID uuid.UUID) ([]navigation.StampedVelocityCommand, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT stamp_ns, linear_x, linear_y, linear_z, angular_z FROM commands
		WHERE trajectory_id = ? ORDER BY command_id`, trajectoryID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query commands")
	}
	defer rows.Close()

	var out []navigation.StampedVelocityCommand
	for rows.Next() {
		var (
			stampNs int64
			linear  r3.Vector
			yawRate float64
		)
		if err := rows.Scan(&stampNs, &linear.X, &linear.Y, &linear.Z, &yawRate); err != nil {
			return nil, err
		}
		cmd := navigation.VelocityCommand{Linear: linear, AngularZ: yawRate}
		out = append(out, cmd.Stamped(time.Unix(0, stampNs)))
	}
	return out, rows.Err()
}

// Arrival is a row of the arrivals table.
type Arrival struct {
	TrajectoryID uuid.UUID
	Time         time.Time
	Reached      bool
}

// Arrivals returns every recorded arrival, oldest first.
func (l *Log) Arrivals(ctx context.Context) ([]Arrival, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT trajectory_id, stamp_ns, reached FROM arrivals ORDER BY arrival_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query arrivals")
	}
	defer rows.Close()

	var out []Arrival
	for rows.Next() {
		var (
			id      string
			stampNs int64
			a       Arrival
		)
		if err := rows.Scan(&id, &stampNs, &a.Reached); err != nil {
			return nil, err
		}
		if a.TrajectoryID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		a.Time = time.Unix(0, stampNs)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}
