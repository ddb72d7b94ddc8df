//go:build !tinygo

package core

// PowerOnReset returns the package state to what a freshly reset part
// holds: ticks zero, interrupts enabled, no EXTI or UART registrations,
// empty event ring, core clock on HSI. Simulators call it before reuse.
func PowerOnReset() {
	setSystemTicks(0)
	primask.Store(0)
	extiTable = [16]extiSlot{}
	uarts = [uartCount]*UART{}
	eventRing = [EventRingSize]Event{}
	eventRingHead = 0
	systemClockHz = HSIClockHz
	debugEnabled = false
	debugPrintln = func(string) {}
}
