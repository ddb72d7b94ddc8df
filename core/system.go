package core

// Cortex-M system control space.
const (
	systCSR = 0xE000E010
	systRVR = 0xE000E014
	systCVR = 0xE000E018

	scbAIRCR = 0xE000ED0C
	scbSCR   = 0xE000ED10
	scbSHCSR = 0xE000ED24

	uniqueIDBase = 0x1FFF7A10
)

const (
	systCSREnable    = 1 << 0
	systCSRTickInt   = 1 << 1
	systCSRClkSource = 1 << 2

	aircrVectKey      = 0x05FA << 16
	aircrSysResetReq  = 1 << 2
	aircrPriGroupMask = 7 << 8
	aircrPriGroup4    = 3 << 8 // 4 preemption bits, 0 subpriority bits

	scrSleepDeep = 1 << 2

	shcsrMemFaultEna = 1 << 16
	shcsrBusFaultEna = 1 << 17
	shcsrUsgFaultEna = 1 << 18

	sysTickMaxReload = 0x00FFFFFF
)

// Init brings up the clock tree, arms SysTick at TickRateHz and selects
// 4 bits of preemption priority. It returns nil once SysTick is armed.
func Init() error {
	initClocks()
	if err := configureSysTick(systemClockHz); err != nil {
		return err
	}
	reg(scbAIRCR).Set(aircrVectKey | aircrPriGroup4)
	return nil
}

func configureSysTick(clockHz uint32) error {
	reload := clockHz/TickRateHz - 1
	if clockHz < TickRateHz || reload > sysTickMaxReload {
		return ErrInvalidArg
	}
	reg(systCSR).Set(0)
	reg(systRVR).Set(reload)
	reg(systCVR).Set(0)
	reg(systCSR).Set(systCSRClkSource | systCSRTickInt | systCSREnable)
	if !reg(systCSR).HasAll(systCSRTickInt | systCSREnable) {
		return ErrHardware
	}
	return nil
}

// SysTickHandler advances the tick counter. It does nothing else.
func SysTickHandler() {
	incSystemTicks()
}

// Ticks returns the monotonic millisecond count. It wraps after 2^32 ms.
func Ticks() uint32 {
	return getSystemTicks()
}

// SetTicks sets the tick counter (for testing/hardware integration)
func SetTicks(ticks uint32) {
	setSystemTicks(ticks)
}

// DelayMs blocks for at least ms ticks. Interrupts stay enabled.
func DelayMs(ms uint32) {
	start := Ticks()
	for Ticks()-start < ms {
		cpuRelax()
	}
}

// delayUsLoops converts microseconds into spin iterations of roughly four
// cycles each at the current core clock.
func delayUsLoops(us uint32) uint32 {
	return uint32(uint64(systemClockHz/1000000) * uint64(us) / 4)
}

// DelayUs busy-waits for approximately us microseconds.
func DelayUs(us uint32) {
	for n := delayUsLoops(us); n > 0; n-- {
		spinNop()
	}
}

// Sleep waits for the next interrupt.
func Sleep() {
	waitForInterrupt()
}

// DeepSleep selects deep sleep for the next WFI and clears the selection
// on wake.
func DeepSleep() {
	scr := reg(scbSCR)
	scr.SetBits(scrSleepDeep)
	dataSyncBarrier()
	waitForInterrupt()
	scr.ClearBits(scrSleepDeep)
}

// Reset requests a system reset and does not return.
func Reset() {
	RecordEvent(EvtReset, 0, 0, 0)
	dataSyncBarrier()
	aircr := reg(scbAIRCR)
	aircr.Set(aircrVectKey | aircr.Get()&aircrPriGroupMask | aircrSysResetReq)
	dataSyncBarrier()
	for {
		cpuRelax()
	}
}

// EnableFaultHandlers routes MemManage, BusFault and UsageFault to their
// own vectors. Until then the core escalates them to HardFault.
func EnableFaultHandlers() {
	reg(scbSHCSR).SetBits(shcsrMemFaultEna | shcsrBusFaultEna | shcsrUsgFaultEna)
	dataSyncBarrier()
}

// UniqueID returns the 96-bit factory device identifier.
func UniqueID() [3]uint32 {
	var id [3]uint32
	for i := range id {
		id[i] = reg(uniqueIDBase + uintptr(i)*4).Get()
	}
	return id
}
