// Package execution applies strategy signals to the simulated position and
// journals the resulting fills.
//
// Execution is synchronous: a signal for day d is filled at d's close before
// the simulator moves on to d+1.
package execution

import "crossover-sim/internal/strategy"

// Executor fills strategy signals.
type Executor interface {
	// Execute applies sig. It returns nil, nil for HOLD.
	Execute(sig strategy.Signal) (*Fill, error)
}
