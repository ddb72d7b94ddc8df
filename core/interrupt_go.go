//go:build !tinygo

package core

import "sync/atomic"

// State is the saved PRIMASK value on regular Go.
type State uintptr

// primask models the Cortex-M PRIMASK bit so host tests can observe the
// critical-section discipline.
var primask atomic.Uint32

// HostHooks lets a simulated part stand in for the instructions that only
// exist on the target.
type HostHooks struct {
	// Idle runs once per iteration of every polling loop.
	Idle func()
	// WaitForInterrupt runs for WFI; it should return after an interrupt.
	WaitForInterrupt func()
}

var hostHooks HostHooks

// SetHostHooks installs the host stand-ins for idle and WFI.
func SetHostHooks(h HostHooks) {
	hostHooks = h
}

// disableInterrupts masks interrupts and returns the previous state
func disableInterrupts() State {
	return State(primask.Swap(1))
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state State) {
	primask.Store(uint32(state))
}

// InterruptsMasked reports whether maskable interrupts are disabled.
func InterruptsMasked() bool {
	return primask.Load() != 0
}

// memoryBarrier is a no-op; the atomics used for shared indices order
// accesses on regular Go.
func memoryBarrier() {}

func dataSyncBarrier() {}

func waitForInterrupt() {
	if hostHooks.WaitForInterrupt != nil {
		hostHooks.WaitForInterrupt()
	} else if hostHooks.Idle != nil {
		hostHooks.Idle()
	}
}

func cpuRelax() {
	if hostHooks.Idle != nil {
		hostHooks.Idle()
	}
}

// spinNop is one calibrated busy-wait iteration.
func spinNop() {}
