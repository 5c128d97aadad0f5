package serial

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
)

// A twist frame is 56 bytes, little-endian:
//
//	0-23   linear x, y, z  (float64, m/s)
//	24-47  angular x, y, z (float64, rad/s)
//	48-55  timestamp       (uint64, ms since the epoch)
const (
	TwistFrameSize = 56
	// TwistFrameSizeLegacy is the older frame without a timestamp.
	TwistFrameSizeLegacy = 48
)

// ErrInvalidFrameSize is returned when decoding a frame of the wrong length.
var ErrInvalidFrameSize = errors.New("invalid twist frame size")

// TwistFrame is the decoded content of one frame.
type TwistFrame struct {
	Linear    r3.Vector
	Angular   r3.Vector
	Timestamp uint64
}

// NewTwistFrame converts a stamped velocity command.
func NewTwistFrame(cmd navigation.StampedVelocityCommand) TwistFrame {
	var ts uint64
	if !cmd.Stamp.IsZero() {
		ts = unixMilli(cmd.Stamp)
	}
	return TwistFrame{Linear: cmd.Linear, Angular: cmd.Angular(), Timestamp: ts}
}

// unixMilli returns t in milliseconds since the epoch. Times before the epoch map to 0.
func unixMilli(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

// Time returns the frame's timestamp.
func (f TwistFrame) Time() time.Time {
	return time.UnixMilli(int64(f.Timestamp))
}

// EncodeTwistFrame writes f into a new TwistFrameSize byte slice.
func EncodeTwistFrame(f TwistFrame) []byte {
	buf := make([]byte, TwistFrameSize)
	for i, v := range []float64{f.Linear.X, f.Linear.Y, f.Linear.Z, f.Angular.X, f.Angular.Y, f.Angular.Z} {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	binary.LittleEndian.PutUint64(buf[48:], f.Timestamp)
	return buf
}

// DecodeTwistFrame parses a frame. Legacy frames decode with a zero timestamp.
func DecodeTwistFrame(data []byte) (TwistFrame, error) {
	if len(data) != TwistFrameSize && len(data) != TwistFrameSizeLegacy {
		return TwistFrame{}, errors.Wrapf(ErrInvalidFrameSize, "expected %d or %d bytes, got %d",
			TwistFrameSize, TwistFrameSizeLegacy, len(data))
	}
	var vals [6]float64
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	f := TwistFrame{
		Linear:  r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]},
		Angular: r3.Vector{X: vals[3], Y: vals[4], Z: vals[5]},
	}
	if len(data) == TwistFrameSize {
		f.Timestamp = binary.LittleEndian.Uint64(data[48:])
	}
	return f, nil
}

// TwistWriter writes one frame per stamped velocity command to a serial device and a zero
// velocity frame when the final goal is reached. Unstamped commands carry the same content as
// their stamped counterparts and are not written.
type TwistWriter struct {
	logger logging.Logger
	clock  clock.Clock

	mu  sync.Mutex
	dev io.WriteCloser
}

// NewTwistWriter opens devicePath with Open and returns a writer over it.
func NewTwistWriter(devicePath string, options Options, logger logging.Logger) (*TwistWriter, error) {
	dev, err := Open(devicePath, options)
	if err != nil {
		return nil, err
	}
	logger.Infow("serial link open", "path", devicePath, "baud_rate", options.BaudRate)
	return NewTwistWriterFrom(dev, clock.New(), logger), nil
}

// NewTwistWriterFrom returns a writer over an already open device.
func NewTwistWriterFrom(dev io.WriteCloser, clk clock.Clock, logger logging.Logger) *TwistWriter {
	return &TwistWriter{logger: logger, clock: clk, dev: dev}
}

// PublishVelocity does nothing; see TwistWriter.
func (w *TwistWriter) PublishVelocity(ctx context.Context, cmd navigation.VelocityCommand) error {
	return nil
}

// PublishStampedVelocity writes cmd as one frame. A zero stamp is replaced with the current time.
func (w *TwistWriter) PublishStampedVelocity(ctx context.Context, cmd navigation.StampedVelocityCommand) error {
	if cmd.Stamp.IsZero() {
		cmd.Stamp = w.clock.Now()
	}
	return w.write(NewTwistFrame(cmd))
}

// PublishGoalReached writes a zero velocity frame when reached is true.
func (w *TwistWriter) PublishGoalReached(ctx context.Context, trajectoryID uuid.UUID, reached bool) error {
	if !reached {
		return nil
	}
	w.logger.CDebugw(ctx, "goal reached, sending stop frame", "trajectory", trajectoryID)
	return w.write(TwistFrame{Timestamp: unixMilli(w.clock.Now())})
}

func (w *TwistWriter) write(f TwistFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dev == nil {
		return errors.New("serial link closed")
	}
	if _, err := w.dev.Write(EncodeTwistFrame(f)); err != nil {
		return errors.Wrap(err, "writing twist frame")
	}
	return nil
}

// Close closes the device.
func (w *TwistWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dev == nil {
		return nil
	}
	err := w.dev.Close()
	w.dev = nil
	return err
}
