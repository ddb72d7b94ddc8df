//go:build tinygo

package core

import "runtime/volatile"

// Written only by the SysTick handler; aligned 32-bit loads are atomic.
var systemTicks volatile.Register32

// getSystemTicks returns the current system ticks
func getSystemTicks() uint32 {
	return systemTicks.Get()
}

// setSystemTicks sets the system ticks
func setSystemTicks(ticks uint32) {
	systemTicks.Set(ticks)
}

func incSystemTicks() {
	systemTicks.Set(systemTicks.Get() + 1)
}
