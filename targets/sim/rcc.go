package sim

// rcc models the reset and clock control ready handshakes.
type rcc struct {
	cr, pllcfgr, cfgr uint32
	enr               map[uintptr]uint32
	hseBroken         bool
}

const (
	offRCCCR      = 0x00
	offRCCPLLCFGR = 0x04
	offRCCCFGR    = 0x08
)

func newRCC() *rcc {
	return &rcc{
		cr:      0x00000083, // HSION | HSIRDY
		pllcfgr: 0x24003010,
		enr:     make(map[uintptr]uint32),
	}
}

func (r *rcc) load(off uintptr) uint32 {
	switch off {
	case offRCCCR:
		return r.cr
	case offRCCPLLCFGR:
		return r.pllcfgr
	case offRCCCFGR:
		return r.cfgr
	}
	return r.enr[off]
}

func (r *rcc) store(off uintptr, v uint32) {
	switch off {
	case offRCCCR:
		r.cr = v &^ (1<<1 | 1<<17 | 1<<25)
		r.cr |= 1 << 1 // HSI always ready
		if v&(1<<16) != 0 && !r.hseBroken {
			r.cr |= 1 << 17
		}
		if v&(1<<24) != 0 && (r.pllcfgr&(1<<22) == 0 || r.cr&(1<<17) != 0) {
			r.cr |= 1 << 25
		}
	case offRCCPLLCFGR:
		r.pllcfgr = v
	case offRCCCFGR:
		sw := v & 3
		if sw == 2 && r.cr&(1<<25) == 0 {
			sw = r.cfgr >> 2 & 3
		}
		r.cfgr = v&^0xC | sw<<2
	default:
		r.enr[off] = v
	}
}

// ClockEnabled reports whether enable bit of the enable register at
// offset off is set.
func (m *Machine) ClockEnabled(off uintptr, bit uint) bool {
	return m.rcc.enr[off]&(1<<bit) != 0
}

// OnPLL reports whether SYSCLK is switched to the PLL.
func (m *Machine) OnPLL() bool {
	return m.rcc.cfgr>>2&3 == 2
}

// pclk derives an APB clock from the RCC state.
func (m *Machine) pclk(apb2 bool) uint32 {
	sys := uint32(16000000)
	if m.OnPLL() {
		sys = 168000000
	}
	pos := uint32(10)
	if apb2 {
		pos = 13
	}
	ppre := m.rcc.cfgr >> pos & 7
	if ppre&4 == 0 {
		return sys
	}
	return sys >> (ppre&3 + 1)
}
