package core

const (
	syscfgBase    = 0x40013800
	syscfgEXTICR1 = syscfgBase + 0x08

	extiBase  = 0x40013C00
	extiIMR   = extiBase + 0x00
	extiRTSR  = extiBase + 0x08
	extiFTSR  = extiBase + 0x0C
	extiSWIER = extiBase + 0x10
	extiPR    = extiBase + 0x14
)

// Trigger selects the edges that raise an EXTI request.
type Trigger uint8

const (
	TriggerRising Trigger = iota
	TriggerFalling
	TriggerBoth
)

// ExtiCallback runs in interrupt context with the context value given at
// registration. It must not block.
type ExtiCallback func(ctx any)

type extiSlot struct {
	cb     ExtiCallback
	ctx    any
	port   Port
	active bool
}

// One line per pin index, shared by all ports. Foreground mutation happens
// inside a CriticalSection.
var extiTable [16]extiSlot

func extiIRQ(line uint8) IRQ {
	switch {
	case line <= 4:
		return IRQ_EXTI0 + IRQ(line)
	case line <= 9:
		return IRQ_EXTI9_5
	default:
		return IRQ_EXTI15_10
	}
}

// EnableInterrupt routes edges on the pin to cb. The pin must be in input
// mode. Only one port may own a line at a time; a line held by another
// port is left untouched and ErrBusy is returned.
func (g *GPIO) EnableInterrupt(t Trigger, cb ExtiCallback, ctx any) error {
	if !g.valid() || cb == nil || t > TriggerBoth {
		return ErrInvalidArg
	}
	if !g.configured || g.mode != ModeInput {
		return ErrInvalidArg
	}

	cs := EnterCritical()
	defer cs.Exit()

	slot := &extiTable[g.pin]
	if slot.active && slot.port != g.port {
		return ErrBusy
	}
	*slot = extiSlot{cb: cb, ctx: ctx, port: g.port, active: true}

	EnablePeripheralClock(PeriphSYSCFG)
	reg(syscfgEXTICR1+uintptr(g.pin/4)*4).ReplaceBits(uint32(g.port), 0xF, (g.pin%4)*4)

	bit := uint32(1) << g.pin
	if t == TriggerRising || t == TriggerBoth {
		reg(extiRTSR).SetBits(bit)
	} else {
		reg(extiRTSR).ClearBits(bit)
	}
	if t == TriggerFalling || t == TriggerBoth {
		reg(extiFTSR).SetBits(bit)
	} else {
		reg(extiFTSR).ClearBits(bit)
	}
	reg(extiPR).Set(bit)
	reg(extiIMR).SetBits(bit)
	EnableIRQ(extiIRQ(g.pin))
	return nil
}

// DisableInterrupt masks the line and clears its dispatch entry. Lines
// owned by another port are not touched.
func (g *GPIO) DisableInterrupt() error {
	if !g.valid() {
		return ErrInvalidArg
	}
	cs := EnterCritical()
	defer cs.Exit()

	slot := &extiTable[g.pin]
	if !slot.active || slot.port != g.port {
		return nil
	}
	bit := uint32(1) << g.pin
	reg(extiIMR).ClearBits(bit)
	reg(extiRTSR).ClearBits(bit)
	reg(extiFTSR).ClearBits(bit)
	reg(extiPR).Set(bit)
	*slot = extiSlot{}
	return nil
}

// SetInterruptPriority sets the NVIC priority of the pin's EXTI vector.
// Lines 5-9 and 10-15 share a vector.
func (g *GPIO) SetInterruptPriority(p IrqPriority) error {
	if !g.valid() {
		return ErrInvalidArg
	}
	return SetIRQPriority(extiIRQ(g.pin), p)
}

// TriggerSoftwareInterrupt raises the pin's EXTI line from software.
func (g *GPIO) TriggerSoftwareInterrupt() {
	reg(extiSWIER).Set(1 << g.pin)
}

// extiHandleLines services pending lines first..last. The pending bit is
// cleared before the callback runs.
func extiHandleLines(first, last uint8) {
	pr := reg(extiPR)
	pending := pr.Get() & reg(extiIMR).Get()
	for line := first; line <= last; line++ {
		bit := uint32(1) << line
		if pending&bit == 0 {
			continue
		}
		pr.Set(bit)
		slot := extiTable[line]
		if slot.active && slot.cb != nil {
			slot.cb(slot.ctx)
		}
	}
}
