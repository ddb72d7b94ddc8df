// Package startup holds the reset path and the interrupt vector table.
package startup

import "errors"

// Vector is an exception number: 1-15 are the Cortex-M core exceptions,
// 16 and up are device interrupts. Slot 0 holds the initial stack pointer.
type Vector uint16

const (
	VectorReset        Vector = 1
	VectorNMI          Vector = 2
	VectorHardFault    Vector = 3
	VectorMemManage    Vector = 4
	VectorBusFault     Vector = 5
	VectorUsageFault   Vector = 6
	VectorSVCall       Vector = 11
	VectorDebugMonitor Vector = 12
	VectorPendSV       Vector = 14
	VectorSysTick      Vector = 15

	// NumIRQs is the device interrupt count of the STM32F40x.
	NumIRQs    = 82
	NumVectors = 16 + NumIRQs
)

var (
	ErrReservedVector = errors.New("startup: reserved vector")
	ErrVectorRange    = errors.New("startup: vector out of range")
)

// IRQ returns the vector of device interrupt n.
func IRQ(n int) Vector {
	return Vector(16 + n)
}

// IsReserved reports whether v is a reserved core slot.
func (v Vector) IsReserved() bool {
	switch v {
	case 7, 8, 9, 10, 13:
		return true
	}
	return false
}

func (v Vector) String() string {
	switch v {
	case 0:
		return "StackTop"
	case VectorReset:
		return "Reset"
	case VectorNMI:
		return "NMI"
	case VectorHardFault:
		return "HardFault"
	case VectorMemManage:
		return "MemManage"
	case VectorBusFault:
		return "BusFault"
	case VectorUsageFault:
		return "UsageFault"
	case VectorSVCall:
		return "SVCall"
	case VectorDebugMonitor:
		return "DebugMonitor"
	case VectorPendSV:
		return "PendSV"
	case VectorSysTick:
		return "SysTick"
	}
	if v.IsReserved() {
		return "Reserved"
	}
	return "IRQ" + itoa(int(v)-16)
}

// Handler services one exception.
type Handler func()

// spin executes one idle instruction.
var spin = func() {}

// DefaultHandler traps: it spins forever.
func DefaultHandler() {
	for {
		spin()
	}
}

// VectorTable maps exception numbers to handlers. Slots without an
// override run DefaultHandler.
type VectorTable struct {
	stackTop   uintptr
	handlers   [NumVectors]Handler
	overridden [NumVectors]bool
}

// NewVectorTable builds a table with stackTop in slot 0, reset in the reset
// slot and the given overrides. Overriding slot 0, a reserved slot or a
// vector past the table is an error.
func NewVectorTable(stackTop uintptr, reset Handler, overrides map[Vector]Handler) (*VectorTable, error) {
	vt := &VectorTable{stackTop: stackTop}
	for i := 1; i < NumVectors; i++ {
		vt.handlers[i] = DefaultHandler
	}
	if reset != nil {
		vt.handlers[VectorReset] = reset
		vt.overridden[VectorReset] = true
	}
	for v, h := range overrides {
		if err := vt.Set(v, h); err != nil {
			return nil, err
		}
	}
	return vt, nil
}

// Set installs h for v. A nil h restores the default.
func (vt *VectorTable) Set(v Vector, h Handler) error {
	if v == 0 || int(v) >= NumVectors {
		return ErrVectorRange
	}
	if v.IsReserved() {
		return ErrReservedVector
	}
	if h == nil {
		vt.handlers[v] = DefaultHandler
		vt.overridden[v] = false
		return nil
	}
	vt.handlers[v] = h
	vt.overridden[v] = true
	return nil
}

// StackTop returns slot 0.
func (vt *VectorTable) StackTop() uintptr {
	return vt.stackTop
}

// Handler returns the handler installed for v.
func (vt *VectorTable) Handler(v Vector) Handler {
	if v == 0 || int(v) >= NumVectors {
		return nil
	}
	return vt.handlers[v]
}

// IsDefault reports whether v still runs DefaultHandler.
func (vt *VectorTable) IsDefault(v Vector) bool {
	if v == 0 || int(v) >= NumVectors {
		return false
	}
	return !vt.overridden[v]
}

// Overridden lists the vectors with an installed handler, ascending.
func (vt *VectorTable) Overridden() []Vector {
	var out []Vector
	for i := 1; i < NumVectors; i++ {
		if vt.overridden[i] {
			out = append(out, Vector(i))
		}
	}
	return out
}

// Dispatch runs the handler for v.
func (vt *VectorTable) Dispatch(v Vector) {
	if h := vt.Handler(v); h != nil {
		h()
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
