//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks all interrupts and returns the previous state.
// Calls nest: each Restore puts back exactly what its Disable saw.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state saved by disableInterrupts
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}

// InInterrupt reports whether the caller runs in interrupt context.
func InInterrupt() bool {
	return interrupt.In()
}
