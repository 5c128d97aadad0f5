package control

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// IntegralMode selects how the integral term accumulates error.
type IntegralMode string

const (
	// IntegralRescaled reapplies Ki to the whole accumulated history every cycle:
	// integral = Ki * (integral + e*dt). The term contributed is the accumulator itself.
	IntegralRescaled IntegralMode = "rescaled"
	// IntegralAccumulated keeps a plain running sum and scales it once:
	// integral += e*dt, term = Ki * integral.
	IntegralAccumulated IntegralMode = "accumulated"
)

// ParseIntegralMode returns the mode named by s. An empty string selects IntegralRescaled.
func ParseIntegralMode(s string) (IntegralMode, error) {
	switch IntegralMode(s) {
	case "", IntegralRescaled:
		return IntegralRescaled, nil
	case IntegralAccumulated:
		return IntegralAccumulated, nil
	}
	return "", errors.Errorf("unknown integral mode %q, expected %q or %q", s, IntegralRescaled, IntegralAccumulated)
}

// Gains are the three PID coefficients for one axis.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

func (g Gains) String() string {
	return fmt.Sprintf("kp=%g ki=%g kd=%g", g.Kp, g.Ki, g.Kd)
}

// AxisPID is a three-term controller over a single scalar error. One instance is used per
// controlled axis. It does not clamp its output; callers bound the summed action.
// AxisPID is not safe for concurrent use.
type AxisPID struct {
	name  string
	gains Gains
	mode  IntegralMode

	previousError float64
	integral      float64

	// terms of the most recent action, kept for diagnostics
	proportional float64
	integralTerm float64
	derivative   float64
}

// NewAxisPID returns a controller with zeroed state.
func NewAxisPID(name string, gains Gains, mode IntegralMode) *AxisPID {
	if mode == "" {
		mode = IntegralRescaled
	}
	return &AxisPID{name: name, gains: gains, mode: mode}
}

// Next returns the control action for error e observed dt after the previous call.
//
// A non-positive dt has no meaningful rate, so the integral and derivative terms are left
// untouched and contribute nothing to this action; only the proportional term is returned.
func (p *AxisPID) Next(e float64, dt time.Duration) float64 {
	p.proportional = p.gains.Kp * e

	dtS := dt.Seconds()
	if dtS <= 0 {
		p.integralTerm = 0
		p.derivative = 0
		p.previousError = e
		return p.proportional
	}

	switch p.mode {
	case IntegralAccumulated:
		p.integral += e * dtS
		p.integralTerm = p.gains.Ki * p.integral
	default:
		p.integral = p.gains.Ki * (p.integral + e*dtS)
		p.integralTerm = p.integral
	}

	p.derivative = p.gains.Kd * (e - p.previousError) / dtS
	p.previousError = e

	return p.proportional + p.integralTerm + p.derivative
}

// Reset zeroes the accumulated state.
func (p *AxisPID) Reset() {
	p.previousError = 0
	p.integral = 0
	p.proportional = 0
	p.integralTerm = 0
	p.derivative = 0
}

// Terms returns the proportional, integral and derivative contributions of the last action.
func (p *AxisPID) Terms() (proportional, integral, derivative float64) {
	return p.proportional, p.integralTerm, p.derivative
}

// Name returns the axis name the controller was built for.
func (p *AxisPID) Name() string {
	return p.name
}

// Gains returns the configured coefficients.
func (p *AxisPID) Gains() Gains {
	return p.gains
}

// Mode returns the integral policy in use.
func (p *AxisPID) Mode() IntegralMode {
	return p.mode
}

// Integral returns the raw integral accumulator.
func (p *AxisPID) Integral() float64 {
	return p.integral
}

// PreviousError returns the error seen on the last call to Next.
func (p *AxisPID) PreviousError() float64 {
	return p.previousError
}
