// Package kernel implements the synchronous core of the Nexus Cortex
// cognitive kernel: the shared state root, the delta reducer, the per-tick
// reactor, the crystallization gate, the scheduler and the presence
// projection. Everything in this package is pure with respect to I/O; all
// effects are returned as values and executed by the driver.
package kernel

import "time"

// Tick is the kernel's only clock: a monotonic logical frame counter.
// No wall time appears inside pure logic.
type Tick uint64

// Next returns the following tick.
func (t Tick) Next() Tick { return t + 1 }

// Since returns the number of ticks elapsed since earlier, saturating at 0.
func (t Tick) Since(earlier Tick) uint64 {
	if earlier > t {
		return 0
	}
	return uint64(t - earlier)
}

// DefaultTickInterval is the wall interval between ticks. The driver owns
// the cadence; the reactor never reads it.
const DefaultTickInterval = 50 * time.Millisecond
