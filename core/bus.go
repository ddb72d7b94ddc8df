package core

// Bus is the register access path used by every HAL type. TinyGo builds
// install volatile MMIO at init; host builds install a simulated part.
type Bus interface {
	Load32(addr uintptr) uint32
	Store32(addr uintptr, value uint32)
}

// Global singleton used by the HAL.
var bus Bus

// SetBus is called by target-specific code to register its register bus.
func SetBus(b Bus) {
	bus = b
}

// MustBus returns the configured bus or panics if missing.
func MustBus() Bus {
	if bus == nil {
		panic("register bus not configured")
	}
	return bus
}

// reg is a 32-bit peripheral register at a fixed address.
type reg uintptr

func (r reg) Get() uint32 {
	return MustBus().Load32(uintptr(r))
}

func (r reg) Set(value uint32) {
	MustBus().Store32(uintptr(r), value)
}

func (r reg) SetBits(mask uint32) {
	r.Set(r.Get() | mask)
}

func (r reg) ClearBits(mask uint32) {
	r.Set(r.Get() &^ mask)
}

// HasBits reports whether any bit of mask is set.
func (r reg) HasBits(mask uint32) bool {
	return r.Get()&mask != 0
}

// HasAll reports whether every bit of mask is set.
func (r reg) HasAll(mask uint32) bool {
	return r.Get()&mask == mask
}

// ReplaceBits writes value into the field of width mask at pos.
func (r reg) ReplaceBits(value, mask uint32, pos uint8) {
	r.Set(r.Get()&^(mask<<pos) | (value&mask)<<pos)
}
