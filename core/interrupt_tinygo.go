//go:build tinygo

package core

import (
	"device/arm"
	"runtime/interrupt"
)

// State is the saved PRIMASK value.
type State = interrupt.State

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() State {
	state := interrupt.Disable()
	arm.Asm("dmb")
	return state
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state State) {
	arm.Asm("dmb")
	interrupt.Restore(state)
}

// InterruptsMasked reports whether maskable interrupts are disabled.
func InterruptsMasked() bool {
	state := interrupt.Disable()
	interrupt.Restore(state)
	return state != 0
}

func memoryBarrier() {
	arm.Asm("dmb")
}

func dataSyncBarrier() {
	arm.Asm("dsb")
}

func waitForInterrupt() {
	arm.Asm("wfi")
}

func cpuRelax() {
	arm.Asm("nop")
}

func spinNop() {
	arm.Asm("nop")
}
