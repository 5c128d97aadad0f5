package serial

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
)

type fakeDevice struct {
	bytes.Buffer
	closed bool
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestTwistFrameLayout(t *testing.T) {
	f := TwistFrame{
		Linear:    r3.Vector{X: 1, Y: -2, Z: 0.5},
		Angular:   r3.Vector{Z: 0.25},
		Timestamp: 1700000000123,
	}
	data := EncodeTwistFrame(f)
	test.That(t, data, test.ShouldHaveLength, TwistFrameSize)
	test.That(t, math.Float64frombits(binary.LittleEndian.Uint64(data[8:16])), test.ShouldEqual, -2.0)
	test.That(t, math.Float64frombits(binary.LittleEndian.Uint64(data[40:48])), test.ShouldEqual, 0.25)
	test.That(t, binary.LittleEndian.Uint64(data[48:56]), test.ShouldEqual, uint64(1700000000123))

	decoded, err := DecodeTwistFrame(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded, test.ShouldResemble, f)
	test.That(t, decoded.Time().Equal(time.UnixMilli(1700000000123)), test.ShouldBeTrue)

	legacy, err := DecodeTwistFrame(data[:TwistFrameSizeLegacy])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, legacy.Linear, test.ShouldResemble, f.Linear)
	test.That(t, legacy.Timestamp, test.ShouldEqual, uint64(0))

	_, err = DecodeTwistFrame(data[:10])
	test.That(t, errors.Is(err, ErrInvalidFrameSize), test.ShouldBeTrue)
}

func TestTwistFrameBeforeEpoch(t *testing.T) {
	cmd := navigation.VelocityCommand{Linear: r3.Vector{X: 1}}
	f := NewTwistFrame(cmd.Stamped(time.Unix(-5, 0)))
	test.That(t, f.Timestamp, test.ShouldEqual, uint64(0))
	test.That(t, f.Linear, test.ShouldResemble, r3.Vector{X: 1})

	dev := &fakeDevice{}
	clk := clock.NewMock()
	clk.Set(time.Unix(-1, 0))
	w := NewTwistWriterFrom(dev, clk, logging.NewTestLogger(t))
	test.That(t, w.PublishGoalReached(context.Background(), uuid.New(), true), test.ShouldBeNil)
	stop, err := DecodeTwistFrame(dev.Next(TwistFrameSize))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stop.Timestamp, test.ShouldEqual, uint64(0))
}

func TestTwistWriter(t *testing.T) {
	ctx := context.Background()
	dev := &fakeDevice{}
	prevOpen := Open
	defer func() { Open = prevOpen }()
	var openedWith Options
	Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
		test.That(t, devicePath, test.ShouldEqual, "/dev/ttyACM0")
		openedWith = options
		return dev, nil
	}

	w, err := NewTwistWriter("/dev/ttyACM0", DefaultOptions(57600), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, openedWith.BaudRate, test.ShouldEqual, 57600)
	test.That(t, openedWith.DataBits, test.ShouldEqual, 8)
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(5000))
	w.clock = clk

	cmd := navigation.VelocityCommand{Linear: r3.Vector{X: 0.5}, AngularZ: -0.1}
	test.That(t, w.PublishVelocity(ctx, cmd), test.ShouldBeNil)
	test.That(t, dev.Len(), test.ShouldEqual, 0)

	test.That(t, w.PublishStampedVelocity(ctx, cmd.Stamped(time.UnixMilli(4200))), test.ShouldBeNil)
	test.That(t, w.PublishStampedVelocity(ctx, cmd.Stamped(time.Time{})), test.ShouldBeNil)
	test.That(t, w.PublishGoalReached(ctx, uuid.New(), false), test.ShouldBeNil)
	test.That(t, w.PublishGoalReached(ctx, uuid.New(), true), test.ShouldBeNil)
	test.That(t, dev.Len(), test.ShouldEqual, 3*TwistFrameSize)

	first, err := DecodeTwistFrame(dev.Next(TwistFrameSize))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Linear, test.ShouldResemble, r3.Vector{X: 0.5})
	test.That(t, first.Angular, test.ShouldResemble, r3.Vector{Z: -0.1})
	test.That(t, first.Timestamp, test.ShouldEqual, uint64(4200))

	second, err := DecodeTwistFrame(dev.Next(TwistFrameSize))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Timestamp, test.ShouldEqual, uint64(5000))

	stop, err := DecodeTwistFrame(dev.Next(TwistFrameSize))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stop.Linear, test.ShouldResemble, r3.Vector{})
	test.That(t, stop.Angular, test.ShouldResemble, r3.Vector{})

	test.That(t, w.Close(), test.ShouldBeNil)
	test.That(t, dev.closed, test.ShouldBeTrue)
	test.That(t, w.Close(), test.ShouldBeNil)
	err = w.PublishStampedVelocity(ctx, cmd.Stamped(time.Now()))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOpenFailure(t *testing.T) {
	prevOpen := Open
	defer func() { Open = prevOpen }()
	Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}
	_, err := NewTwistWriter("/dev/missing", DefaultOptions(115200), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no such device")
}
