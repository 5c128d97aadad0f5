// Package serial carries velocity commands to a flight controller over a serial link.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
	"go.uber.org/multierr"
)

// Options to be passed to Open(), closely mirrors go.bug.st/serial's Mode.
type Options struct {
	BaudRate    int
	DataBits    int
	StopBits    StopBits
	ReadTimeout time.Duration
	Parity      Parity
}

// DefaultOptions are 8N1 at the given baud rate.
func DefaultOptions(baudRate int) Options {
	return Options{BaudRate: baudRate, DataBits: 8, StopBits: OneStopBit, Parity: NoParity}
}

// Parity describes a serial port parity setting.
type Parity int

const (
	// NoParity disable parity control (default).
	NoParity Parity = iota
	// OddParity enable odd-parity check.
	OddParity
	// EvenParity enable even-parity check.
	EvenParity
	// MarkParity enable mark-parity (always 1) check.
	MarkParity
	// SpaceParity enable space-parity (always 0) check.
	SpaceParity
)

// StopBits describe a serial port stop bits setting.
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default).
	OneStopBit StopBits = iota
	// OnePointFiveStopBits sets 1.5 stop bits.
	OnePointFiveStopBits
	// TwoStopBits sets 2 stop bits.
	TwoStopBits
)

func (options Options) mode() *ser.Mode {
	return &ser.Mode{
		BaudRate: options.BaudRate,
		Parity:   ser.Parity(options.Parity),
		DataBits: options.DataBits,
		StopBits: ser.StopBits(options.StopBits),
	}
}

// Open attempts to open a serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
	device, err := ser.Open(devicePath, options.mode())
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial device %q", devicePath)
	}
	if options.ReadTimeout > 0 {
		if err := device.SetReadTimeout(options.ReadTimeout); err != nil {
			return nil, multierr.Combine(err, device.Close())
		}
	}

	return device, nil
}

// SetOptions changes the configuration of a serial port already open.
func SetOptions(b io.ReadWriteCloser, options Options) error {
	p, ok := b.(ser.Port)
	if !ok {
		return errors.New("couldn't convert to underlying Port interface")
	}
	return p.SetMode(options.mode())
}
