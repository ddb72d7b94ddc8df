package sim

import "firmkit/core"

// OutputWatcher observes every change of a port's output latch.
type OutputWatcher func(old, new uint16)

// Port models one GPIO port, including externally driven inputs and the
// configuration lock.
type Port struct {
	m  *Machine
	id core.Port

	moder, otyper, ospeedr, pupdr uint32
	afrl, afrh                    uint32
	odr                           uint16

	driven uint16 // pins forced by the outside world
	level  uint16 // forced levels

	lockStep   int
	lockKey    uint32
	lockedPins uint16
	locked     bool

	lastIDR       uint16
	watchers      []OutputWatcher
	inputWatchers []OutputWatcher
}

const (
	offMODER   = 0x00
	offOTYPER  = 0x04
	offOSPEEDR = 0x08
	offPUPDR   = 0x0C
	offIDR     = 0x10
	offODR     = 0x14
	offBSRR    = 0x18
	offLCKR    = 0x1C
	offAFRL    = 0x20
	offAFRH    = 0x24
)

func newPort(m *Machine, id core.Port) *Port {
	return &Port{m: m, id: id}
}

func (p *Port) mode(pin uint8) uint32 {
	return (p.moder >> (pin * 2)) & 3
}

func (p *Port) pull(pin uint8) uint32 {
	return (p.pupdr >> (pin * 2)) & 3
}

// idr computes what the input data register reads.
func (p *Port) idr() uint16 {
	var v uint16
	for pin := uint8(0); pin < 16; pin++ {
		bit := uint16(1) << pin
		var high bool
		switch {
		case p.mode(pin) == 1 && p.otyper&uint32(bit) == 0:
			high = p.odr&bit != 0
		case p.mode(pin) == 1:
			// Open drain: low when driven low by either side.
			high = p.odr&bit != 0 && (p.driven&bit == 0 || p.level&bit != 0)
		case p.driven&bit != 0:
			high = p.level&bit != 0
		default:
			high = p.pull(pin) == 1
		}
		if high {
			v |= bit
		}
	}
	return v
}

// keep returns the bits of a 2-bit-per-pin register frozen by the lock.
func (p *Port) keep2() uint32 {
	var mask uint32
	for pin := uint8(0); pin < 16; pin++ {
		if p.lockedPins&(1<<pin) != 0 {
			mask |= 3 << (pin * 2)
		}
	}
	return mask
}

func (p *Port) keep4(first uint8) uint32 {
	var mask uint32
	for pin := first; pin < first+8; pin++ {
		if p.lockedPins&(1<<pin) != 0 {
			mask |= 0xF << ((pin - first) * 4)
		}
	}
	return mask
}

func merge(old, new, keep uint32) uint32 {
	return old&keep | new&^keep
}

func (p *Port) load(off uintptr) uint32 {
	switch off {
	case offMODER:
		return p.moder
	case offOTYPER:
		return p.otyper
	case offOSPEEDR:
		return p.ospeedr
	case offPUPDR:
		return p.pupdr
	case offIDR:
		return uint32(p.idr())
	case offODR:
		return uint32(p.odr)
	case offLCKR:
		if p.locked {
			return 1<<16 | uint32(p.lockedPins)
		}
		return p.lockKey & 0xFFFF
	case offAFRL:
		return p.afrl
	case offAFRH:
		return p.afrh
	}
	return 0
}

func (p *Port) store(off uintptr, v uint32) {
	switch off {
	case offMODER:
		p.moder = merge(p.moder, v, p.keep2())
	case offOTYPER:
		p.otyper = merge(p.otyper, v&0xFFFF, uint32(p.lockedPins))
	case offOSPEEDR:
		p.ospeedr = merge(p.ospeedr, v, p.keep2())
	case offPUPDR:
		p.pupdr = merge(p.pupdr, v, p.keep2())
	case offODR:
		p.setODR(uint16(v))
	case offBSRR:
		p.setODR((p.odr | uint16(v)) &^ uint16(v>>16))
	case offLCKR:
		p.lockWrite(v)
	case offAFRL:
		p.afrl = merge(p.afrl, v, p.keep4(0))
	case offAFRH:
		p.afrh = merge(p.afrh, v, p.keep4(8))
	}
	p.changed()
}

// lockWrite runs the LCKK write sequence 1, 0, 1 with a constant pin mask.
func (p *Port) lockWrite(v uint32) {
	if p.locked {
		return
	}
	key := v&(1<<16) != 0
	pins := v & 0xFFFF
	switch {
	case p.lockStep == 0 && key:
		p.lockStep, p.lockKey = 1, pins
	case p.lockStep == 1 && !key && pins == p.lockKey:
		p.lockStep = 2
	case p.lockStep == 2 && key && pins == p.lockKey:
		p.locked = true
		p.lockedPins = uint16(pins)
		p.lockStep = 0
	default:
		p.lockStep, p.lockKey = 0, pins
	}
}

func (p *Port) setODR(v uint16) {
	old := p.odr
	p.odr = v
	if old != v {
		for _, w := range p.watchers {
			w(old, v)
		}
	}
}

// changed feeds input edges to EXTI.
func (p *Port) changed() {
	now := p.idr()
	old := p.lastIDR
	diff := now ^ old
	p.lastIDR = now
	if diff != 0 {
		p.m.exti.edges(p.id, diff&now, diff&^now)
		for _, w := range p.inputWatchers {
			w(old, now)
		}
	}
}

// Drive forces pin to a level from outside the part.
func (p *Port) Drive(pin uint8, s core.PinState) {
	p.driven |= 1 << pin
	if s == core.High {
		p.level |= 1 << pin
	} else {
		p.level &^= 1 << pin
	}
	p.changed()
	p.m.deliver()
}

// Release stops forcing pin.
func (p *Port) Release(pin uint8) {
	p.driven &^= 1 << pin
	p.changed()
	p.m.deliver()
}

// Output returns the output latch level of pin.
func (p *Port) Output(pin uint8) core.PinState {
	if p.odr&(1<<pin) != 0 {
		return core.High
	}
	return core.Low
}

// Input returns what the input register reads for pin.
func (p *Port) Input(pin uint8) core.PinState {
	if p.idr()&(1<<pin) != 0 {
		return core.High
	}
	return core.Low
}

// ModeOf returns the 2-bit MODER field of pin.
func (p *Port) ModeOf(pin uint8) uint32 {
	return p.mode(pin)
}

// AlternateFunction returns the AF selection of pin.
func (p *Port) AlternateFunction(pin uint8) uint8 {
	if pin < 8 {
		return uint8(p.afrl >> (pin * 4) & 0xF)
	}
	return uint8(p.afrh >> ((pin - 8) * 4) & 0xF)
}

// Locked reports whether pin is frozen by the lock sequence.
func (p *Port) Locked(pin uint8) bool {
	return p.locked && p.lockedPins&(1<<pin) != 0
}

// Watch registers w for output latch changes.
func (p *Port) Watch(w OutputWatcher) {
	p.watchers = append(p.watchers, w)
}

// WatchInput registers w for changes of the levels the pins read, which
// includes mode switches and external drive.
func (p *Port) WatchInput(w OutputWatcher) {
	p.inputWatchers = append(p.inputWatchers, w)
}

// syscfg holds the EXTI port selection registers.
type syscfg struct {
	exticr [4]uint32
	other  map[uintptr]uint32
}

func (s *syscfg) load(off uintptr) uint32 {
	if off >= 0x08 && off < 0x18 {
		return s.exticr[(off-0x08)/4]
	}
	return s.other[off]
}

func (s *syscfg) store(off uintptr, v uint32) {
	if off >= 0x08 && off < 0x18 {
		s.exticr[(off-0x08)/4] = v & 0xFFFF
		return
	}
	if s.other == nil {
		s.other = make(map[uintptr]uint32)
	}
	s.other[off] = v
}

func (s *syscfg) portFor(line uint8) core.Port {
	return core.Port((s.exticr[line/4] >> ((line % 4) * 4)) & 0xF)
}

// exti models the external interrupt controller.
type exti struct {
	m                        *Machine
	imr, emr, rtsr, ftsr, pr uint32
}

const (
	offIMR   = 0x00
	offEMR   = 0x04
	offRTSR  = 0x08
	offFTSR  = 0x0C
	offSWIER = 0x10
	offPR    = 0x14
)

func (e *exti) load(off uintptr) uint32 {
	switch off {
	case offIMR:
		return e.imr
	case offEMR:
		return e.emr
	case offRTSR:
		return e.rtsr
	case offFTSR:
		return e.ftsr
	case offPR:
		return e.pr
	}
	return 0
}

func (e *exti) store(off uintptr, v uint32) {
	switch off {
	case offIMR:
		e.imr = v & 0x7FFFFF
	case offEMR:
		e.emr = v & 0x7FFFFF
	case offRTSR:
		e.rtsr = v & 0x7FFFFF
	case offFTSR:
		e.ftsr = v & 0x7FFFFF
	case offSWIER:
		e.pr |= v & e.imr
	case offPR:
		e.pr &^= v
	}
}

// edges latches pending bits for lines routed to port.
func (e *exti) edges(port core.Port, rising, falling uint16) {
	for line := uint8(0); line < 16; line++ {
		if e.m.syscfg.portFor(line) != port {
			continue
		}
		bit := uint32(1) << line
		if (uint32(rising)&bit != 0 && e.rtsr&bit != 0) || (uint32(falling)&bit != 0 && e.ftsr&bit != 0) {
			e.pr |= bit
		}
	}
}

func (e *exti) pending() uint32 {
	return e.pr & e.imr
}

// FireEXTI latches an edge on line as if the routed pin had toggled.
func (m *Machine) FireEXTI(line uint8) {
	m.exti.pr |= 1 << line
	m.deliver()
}

// EXTIPending returns the EXTI pending register.
func (m *Machine) EXTIPending() uint32 {
	return m.exti.pr
}
