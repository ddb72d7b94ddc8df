package core

const (
	rccBase    = 0x40023800
	rccCR      = rccBase + 0x00
	rccPLLCFGR = rccBase + 0x04
	rccCFGR    = rccBase + 0x08
	rccAHB1ENR = rccBase + 0x30
	rccAPB1ENR = rccBase + 0x40
	rccAPB2ENR = rccBase + 0x44

	flashACR = 0x40023C00
	pwrCR    = 0x40007000
)

const (
	crHSEON  = 1 << 16
	crHSERDY = 1 << 17
	crPLLON  = 1 << 24
	crPLLRDY = 1 << 25

	pllcfgrSrcHSE = 1 << 22

	cfgrSWMask  = 3
	cfgrSWPLL   = 2
	cfgrSWSPos  = 2
	cfgrPPRE1   = 10
	cfgrPPRE2   = 13
	cfgrPPREDiv = 4 // top bit of a PPRE field enables division

	ppreDiv2 = 4
	ppreDiv4 = 5

	acrLatency5 = 5
	acrPRFTEN   = 1 << 8
	acrICEN     = 1 << 9
	acrDCEN     = 1 << 10

	apb1PWREN = 1 << 28
	pwrCRVOS  = 1 << 14
)

// PLL for 168 MHz from an 8 MHz crystal: VCO in = 8/M = 1 MHz,
// VCO out = 336 MHz, SYSCLK = VCO/P, 48 MHz domain = VCO/Q.
const (
	pllM = 8
	pllN = 336
	pllP = 2
	pllQ = 7

	clockStartupLoops = 50000
)

// systemClockHz is the core clock actually achieved by initClocks.
var systemClockHz uint32 = HSIClockHz

// SystemClock returns the current core clock in Hz.
func SystemClock() uint32 {
	return systemClockHz
}

// initClocks switches SYSCLK to the PLL fed by HSE. The part is left on
// HSI when the crystal or PLL never reports ready.
func initClocks() {
	cfgr := reg(rccCFGR)
	if (cfgr.Get()>>cfgrSWSPos)&cfgrSWMask == cfgrSWPLL {
		systemClockHz = SystemClockHz
		return
	}

	cr := reg(rccCR)
	cr.SetBits(crHSEON)
	if !spinUntil(cr, crHSERDY) {
		cr.ClearBits(crHSEON)
		systemClockHz = HSIClockHz
		RecordEvent(EvtClockFallback, 0, crHSERDY, 0)
		return
	}

	reg(rccAPB1ENR).SetBits(apb1PWREN)
	reg(pwrCR).SetBits(pwrCRVOS)
	reg(flashACR).Set(acrPRFTEN | acrICEN | acrDCEN | acrLatency5)

	cfgr.ReplaceBits(ppreDiv4, 7, cfgrPPRE1)
	cfgr.ReplaceBits(ppreDiv2, 7, cfgrPPRE2)

	reg(rccPLLCFGR).Set(pllM | pllN<<6 | ((pllP/2)-1)<<16 | pllcfgrSrcHSE | pllQ<<24)
	cr.SetBits(crPLLON)
	if !spinUntil(cr, crPLLRDY) {
		systemClockHz = HSIClockHz
		RecordEvent(EvtClockFallback, 0, crPLLRDY, 0)
		return
	}

	cfgr.ReplaceBits(cfgrSWPLL, cfgrSWMask, 0)
	for n := 0; (cfgr.Get()>>cfgrSWSPos)&cfgrSWMask != cfgrSWPLL; n++ {
		if n == clockStartupLoops {
			systemClockHz = HSIClockHz
			RecordEvent(EvtClockFallback, 0, cfgrSWPLL, 0)
			return
		}
	}
	systemClockHz = SystemClockHz
}

// spinUntil polls for a ready flag before SysTick exists. The bound is a
// loop count, not ticks, so it must not idle the core.
func spinUntil(r reg, mask uint32) bool {
	for n := 0; n < clockStartupLoops; n++ {
		if r.HasAll(mask) {
			return true
		}
		spinNop()
	}
	return false
}

func apbClock(pos uint8) uint32 {
	ppre := (reg(rccCFGR).Get() >> pos) & 7
	if ppre&cfgrPPREDiv == 0 {
		return systemClockHz
	}
	return systemClockHz >> ((ppre & 3) + 1)
}

// PClk1 returns the APB1 peripheral clock in Hz.
func PClk1() uint32 {
	return apbClock(cfgrPPRE1)
}

// PClk2 returns the APB2 peripheral clock in Hz.
func PClk2() uint32 {
	return apbClock(cfgrPPRE2)
}

// Peripheral identifies a clock-gated peripheral.
type Peripheral uint8

const (
	PeriphGPIOA Peripheral = iota
	PeriphGPIOB
	PeriphGPIOC
	PeriphGPIOD
	PeriphGPIOE
	PeriphGPIOF
	PeriphGPIOG
	PeriphGPIOH
	PeriphGPIOI
	PeriphUSART1
	PeriphUSART2
	PeriphUSART3
	PeriphUSART6
	PeriphI2C1
	PeriphI2C2
	PeriphI2C3
	PeriphSPI1
	PeriphSPI2
	PeriphSPI3
	PeriphSYSCFG
	periphCount
)

type clockGate struct {
	enr uintptr
	bit uint32
}

var clockGates = [periphCount]clockGate{
	PeriphGPIOA:  {rccAHB1ENR, 1 << 0},
	PeriphGPIOB:  {rccAHB1ENR, 1 << 1},
	PeriphGPIOC:  {rccAHB1ENR, 1 << 2},
	PeriphGPIOD:  {rccAHB1ENR, 1 << 3},
	PeriphGPIOE:  {rccAHB1ENR, 1 << 4},
	PeriphGPIOF:  {rccAHB1ENR, 1 << 5},
	PeriphGPIOG:  {rccAHB1ENR, 1 << 6},
	PeriphGPIOH:  {rccAHB1ENR, 1 << 7},
	PeriphGPIOI:  {rccAHB1ENR, 1 << 8},
	PeriphUSART1: {rccAPB2ENR, 1 << 4},
	PeriphUSART2: {rccAPB1ENR, 1 << 17},
	PeriphUSART3: {rccAPB1ENR, 1 << 18},
	PeriphUSART6: {rccAPB2ENR, 1 << 5},
	PeriphI2C1:   {rccAPB1ENR, 1 << 21},
	PeriphI2C2:   {rccAPB1ENR, 1 << 22},
	PeriphI2C3:   {rccAPB1ENR, 1 << 23},
	PeriphSPI1:   {rccAPB2ENR, 1 << 12},
	PeriphSPI2:   {rccAPB1ENR, 1 << 14},
	PeriphSPI3:   {rccAPB1ENR, 1 << 15},
	PeriphSYSCFG: {rccAPB2ENR, 1 << 14},
}

// EnablePeripheralClock ungates the clock of p.
func EnablePeripheralClock(p Peripheral) error {
	if p >= periphCount {
		return ErrInvalidArg
	}
	g := clockGates[p]
	reg(g.enr).SetBits(g.bit)
	_ = reg(g.enr).Get() // two-cycle delay after enable
	return nil
}

// DisablePeripheralClock gates the clock of p.
func DisablePeripheralClock(p Peripheral) error {
	if p >= periphCount {
		return ErrInvalidArg
	}
	g := clockGates[p]
	reg(g.enr).ClearBits(g.bit)
	return nil
}

// PeripheralClockEnabled reports whether the clock of p is ungated.
func PeripheralClockEnabled(p Peripheral) bool {
	if p >= periphCount {
		return false
	}
	g := clockGates[p]
	return reg(g.enr).HasBits(g.bit)
}
