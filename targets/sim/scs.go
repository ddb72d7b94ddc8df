package sim

// scs models the Cortex-M system control space: SysTick, NVIC and the
// SCB registers the HAL touches.
type scs struct {
	m *Machine

	csr, rvr, cvr  uint32
	sysTickPending bool

	iser [3]uint32
	ispr [3]uint32
	ipr  [21]uint32

	priGroup uint32
	scr      uint32
	shpr     [3]uint32
	shcsr    uint32
}

const (
	offCSR   = 0x010
	offRVR   = 0x014
	offCVR   = 0x018
	offISER  = 0x100
	offICER  = 0x180
	offISPR  = 0x200
	offICPR  = 0x280
	offIPR   = 0x400
	offCPUID = 0xD00
	offAIRCR = 0xD0C
	offSCR   = 0xD10
	offSHPR  = 0xD18
	offSHCSR = 0xD24

	csrCountFlag = 1 << 16
)

func (s *scs) load(off uintptr) uint32 {
	switch {
	case off == offCSR:
		v := s.csr
		s.csr &^= csrCountFlag
		return v
	case off == offRVR:
		return s.rvr
	case off == offCVR:
		return s.cvr
	case off >= offISER && off < offISER+12:
		return s.iser[(off-offISER)/4]
	case off >= offICER && off < offICER+12:
		return s.iser[(off-offICER)/4]
	case off >= offISPR && off < offISPR+12:
		return s.ispr[(off-offISPR)/4]
	case off >= offICPR && off < offICPR+12:
		return s.ispr[(off-offICPR)/4]
	case off >= offIPR && off < offIPR+84:
		return s.ipr[(off-offIPR)/4]
	case off == offCPUID:
		return 0x410FC241 // Cortex-M4 r0p1
	case off == offAIRCR:
		return 0xFA050000 | s.priGroup<<8
	case off == offSCR:
		return s.scr
	case off >= offSHPR && off < offSHPR+12:
		return s.shpr[(off-offSHPR)/4]
	case off == offSHCSR:
		return s.shcsr
	}
	return 0
}

func (s *scs) store(off uintptr, v uint32) {
	switch {
	case off == offCSR:
		s.csr = v & 7
		if v&1 != 0 {
			s.cvr = s.rvr
		}
	case off == offRVR:
		s.rvr = v & 0x00FFFFFF
	case off == offCVR:
		s.cvr = 0
		s.csr &^= csrCountFlag
	case off >= offISER && off < offISER+12:
		s.iser[(off-offISER)/4] |= v
	case off >= offICER && off < offICER+12:
		s.iser[(off-offICER)/4] &^= v
	case off >= offISPR && off < offISPR+12:
		s.ispr[(off-offISPR)/4] |= v
	case off >= offICPR && off < offICPR+12:
		s.ispr[(off-offICPR)/4] &^= v
	case off >= offIPR && off < offIPR+84:
		s.ipr[(off-offIPR)/4] = v & 0xF0F0F0F0
	case off == offAIRCR:
		if v>>16 != 0x05FA {
			return
		}
		s.priGroup = (v >> 8) & 7
		if v&(1<<2) != 0 {
			panic(ErrResetRequested)
		}
	case off == offSCR:
		s.scr = v & 0x16
	case off >= offSHPR && off < offSHPR+12:
		s.shpr[(off-offSHPR)/4] = v & 0xF0F0F0F0
	case off == offSHCSR:
		s.shcsr = v & 0x0007FFFF
	}
}

// tick runs one SysTick period.
func (s *scs) tick() {
	if s.csr&1 == 0 {
		return
	}
	s.cvr = s.rvr
	s.csr |= csrCountFlag
	if s.csr&2 != 0 {
		s.sysTickPending = true
	}
}

func (s *scs) enabled(irq int) bool {
	return s.iser[irq/32]&(1<<(irq%32)) != 0
}

func (s *scs) swPending(irq int) bool {
	return s.ispr[irq/32]&(1<<(irq%32)) != 0
}

func (s *scs) clearSWPending(irq int) {
	s.ispr[irq/32] &^= 1 << (irq % 32)
}

func (s *scs) priority(irq int) uint32 {
	return (s.ipr[irq/4] >> (uint(irq%4)*8 + 4)) & 0xF
}
