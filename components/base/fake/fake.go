// Package fake implements a fake base.
package fake

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"

	"go.viam.com/dronenav/components/base"
	"go.viam.com/dronenav/logging"
)

var _ base.Base = (*Base)(nil)

// Base is a fake base that remembers the last velocity it was given.
type Base struct {
	logger logging.Logger

	mu         sync.Mutex
	linear     r3.Vector
	angular    r3.Vector
	SetCount   int
	StopCount  int
	CloseCount int
}

// NewBase instantiates a new fake base.
func NewBase(logger logging.Logger) *Base {
	return &Base{logger: logger}
}

// SetVelocity records the velocity.
func (b *Base) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linear = linear
	b.angular = angular
	b.SetCount++
	b.logger.CDebugw(ctx, "set velocity", "linear", linear, "angular", angular)
	return nil
}

// Stop zeroes the recorded velocity.
func (b *Base) Stop(ctx context.Context, extra map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linear = r3.Vector{}
	b.angular = r3.Vector{}
	b.StopCount++
	return nil
}

// IsMoving returns true if the last velocity set was non-zero.
func (b *Base) IsMoving(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linear != (r3.Vector{}) || b.angular != (r3.Vector{}), nil
}

// Velocity returns the last velocity set.
func (b *Base) Velocity() (linear, angular r3.Vector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linear, b.angular
}

// Counts returns how many times SetVelocity and Stop were called.
func (b *Base) Counts() (set, stop int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.SetCount, b.StopCount
}

// Close does nothing.
func (b *Base) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCount++
	return nil
}
