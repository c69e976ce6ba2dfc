// Package probe drives the hardware debug probe that erases, programs
// and resets the target chip.
package probe

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNoDeviceFound indicates no probe was enumerated.
	ErrNoDeviceFound = errors.New("no probe found, connect a probe and retry")

	// ErrProbe wraps probe command failures.
	ErrProbe = errors.New("probe command error")

	// ErrSerialNotFound indicates the configured probe serial was not
	// among the enumerated probes.
	ErrSerialNotFound = errors.New("configured probe serial not enumerated")
)

// Driver abstracts the debug probe operations for one session.
//
// Connect selects the probe all subsequent operations are pinned to.
type Driver interface {
	// Enumerate returns the serial numbers of attached probes.
	Enumerate(ctx context.Context) ([]string, error)
	// Connect verifies the probe with the given serial answers and pins
	// the session to it.
	Connect(ctx context.Context, serial string) error
	// Recover clears the chip protection state.
	Recover(ctx context.Context) error
	// EraseAll erases all non-volatile memory.
	EraseAll(ctx context.Context) error
	// ProgramFile programs a hex image.
	ProgramFile(ctx context.Context, path string) error
	// Run starts CPU execution.
	Run(ctx context.Context) error
	// SysReset issues a system reset.
	SysReset(ctx context.Context) error
	// Close releases the probe session.
	Close() error
}
