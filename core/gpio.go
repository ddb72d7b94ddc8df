package core

const (
	gpioABase   = 0x40020000
	gpioStride  = 0x400
	gpioMODER   = 0x00
	gpioOTYPER  = 0x04
	gpioOSPEEDR = 0x08
	gpioPUPDR   = 0x0C
	gpioIDR     = 0x10
	gpioODR     = 0x14
	gpioBSRR    = 0x18
	gpioLCKR    = 0x1C
	gpioAFRL    = 0x20
	gpioAFRH    = 0x24

	lckrLCKK = 1 << 16
)

// Port identifies a GPIO port.
type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
	PortD
	PortE
	PortF
	PortG
	PortH
	PortI
)

func (p Port) String() string {
	if p > PortI {
		return "P?"
	}
	return "P" + string(rune('A'+p))
}

func (p Port) reg(off uintptr) reg {
	return reg(gpioABase + uintptr(p)*gpioStride + off)
}

// Mode is a pin function.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	ModeOutputOD
	ModeAlternate
	ModeAnalog
)

// Pull selects the internal bias resistor.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Speed selects the output driver strength. No slew rate is implied.
type Speed uint8

const (
	SpeedLow Speed = iota
	SpeedMedium
	SpeedHigh
	SpeedVeryHigh
)

// GPIO drives one pin. Construction touches no hardware; configuration
// happens through the setters. Dropping a GPIO leaves the pin as it is.
type GPIO struct {
	port       Port
	pin        uint8
	mode       Mode
	configured bool
}

// NewGPIO returns an unconfigured handle for pin of port.
func NewGPIO(port Port, pin uint8) *GPIO {
	return &GPIO{port: port, pin: pin}
}

// NewGPIOPin returns an unconfigured handle for p.
func NewGPIOPin(p Pin) *GPIO {
	return NewGPIO(p.Port, p.Num)
}

// Pin returns the pin this handle drives.
func (g *GPIO) Pin() Pin {
	return Pin{Port: g.port, Num: g.pin}
}

// Mode returns the last mode written by SetMode.
func (g *GPIO) Mode() Mode {
	return g.mode
}

// Configured reports whether SetMode has succeeded.
func (g *GPIO) Configured() bool {
	return g.configured
}

func (g *GPIO) valid() bool {
	return g.Pin().Valid()
}

// Locked reports whether the pin configuration is frozen until reset.
func (g *GPIO) Locked() bool {
	if !g.valid() {
		return false
	}
	return g.port.reg(gpioLCKR).HasAll(lckrLCKK | 1<<g.pin)
}

func (g *GPIO) checkWritable() error {
	if !g.valid() {
		return ErrInvalidArg
	}
	if g.Locked() {
		return ErrPermission
	}
	return nil
}

// SetMode writes the pin function. Output modes reset speed to low and
// drop any pull. Alternate must be followed by SetAlternateFunction.
func (g *GPIO) SetMode(m Mode) error {
	if err := g.checkWritable(); err != nil {
		return err
	}
	var bits uint32
	switch m {
	case ModeInput:
		bits = 0
	case ModeOutput, ModeOutputOD:
		bits = 1
	case ModeAlternate:
		bits = 2
	case ModeAnalog:
		bits = 3
	default:
		return ErrInvalidArg
	}
	EnablePeripheralClock(PeriphGPIOA + Peripheral(g.port))

	pos := g.pin * 2
	g.port.reg(gpioMODER).ReplaceBits(bits, 3, pos)
	if m == ModeOutputOD {
		g.port.reg(gpioOTYPER).SetBits(1 << g.pin)
	} else {
		g.port.reg(gpioOTYPER).ClearBits(1 << g.pin)
	}
	if m == ModeOutput || m == ModeOutputOD {
		g.port.reg(gpioOSPEEDR).ReplaceBits(uint32(SpeedLow), 3, pos)
		g.port.reg(gpioPUPDR).ReplaceBits(uint32(PullNone), 3, pos)
	}
	g.mode = m
	g.configured = true
	return nil
}

// SetPull selects the bias resistor. Writing the current value is a no-op.
func (g *GPIO) SetPull(p Pull) error {
	if err := g.checkWritable(); err != nil {
		return err
	}
	if p > PullDown {
		return ErrUnspecified
	}
	g.port.reg(gpioPUPDR).ReplaceBits(uint32(p), 3, g.pin*2)
	return nil
}

// SetSpeed selects the output driver strength.
func (g *GPIO) SetSpeed(s Speed) error {
	if err := g.checkWritable(); err != nil {
		return err
	}
	if s > SpeedVeryHigh {
		return ErrUnspecified
	}
	g.port.reg(gpioOSPEEDR).ReplaceBits(uint32(s), 3, g.pin*2)
	return nil
}

// SetAlternateFunction routes peripheral function af (0-15) to the pin.
func (g *GPIO) SetAlternateFunction(af uint8) error {
	if err := g.checkWritable(); err != nil {
		return err
	}
	if af > 15 {
		return ErrInvalidArg
	}
	if g.pin < 8 {
		g.port.reg(gpioAFRL).ReplaceBits(uint32(af), 0xF, g.pin*4)
	} else {
		g.port.reg(gpioAFRH).ReplaceBits(uint32(af), 0xF, (g.pin-8)*4)
	}
	return nil
}

// Lock freezes the pin configuration until the next reset. The lock
// register of a port is itself frozen once any pin is locked, so a port
// accepts one Lock; later calls for other pins return ErrPermission.
func (g *GPIO) Lock() error {
	if !g.valid() {
		return ErrInvalidArg
	}
	if g.Locked() {
		return nil
	}
	lckr := g.port.reg(gpioLCKR)
	if lckr.HasBits(lckrLCKK) {
		return ErrPermission
	}
	pins := uint32(1) << g.pin
	lckr.Set(lckrLCKK | pins)
	lckr.Set(pins)
	lckr.Set(lckrLCKK | pins)
	_ = lckr.Get()
	if !lckr.HasBits(lckrLCKK) {
		return ErrHardware
	}
	return nil
}

// SetOpenDrain selects the open-drain output stage without changing the
// mode. Alternate-function buses such as I2C need it after SetMode.
func (g *GPIO) SetOpenDrain(od bool) error {
	if err := g.checkWritable(); err != nil {
		return err
	}
	if od {
		g.port.reg(gpioOTYPER).SetBits(1 << g.pin)
	} else {
		g.port.reg(gpioOTYPER).ClearBits(1 << g.pin)
	}
	return nil
}

// SetHigh drives the pin high.
func (g *GPIO) SetHigh() {
	g.port.reg(gpioBSRR).Set(1 << g.pin)
}

// SetLow drives the pin low.
func (g *GPIO) SetLow() {
	g.port.reg(gpioBSRR).Set(1 << (g.pin + 16))
}

// Toggle inverts the output latch.
func (g *GPIO) Toggle() {
	if g.port.reg(gpioODR).HasBits(1 << g.pin) {
		g.SetLow()
	} else {
		g.SetHigh()
	}
}

// Write drives the pin to s.
func (g *GPIO) Write(s PinState) {
	if s == High {
		g.SetHigh()
	} else {
		g.SetLow()
	}
}

// Read samples the input data register.
func (g *GPIO) Read() PinState {
	if g.port.reg(gpioIDR).HasBits(1 << g.pin) {
		return High
	}
	return Low
}

// IsHigh reports whether the pin reads high.
func (g *GPIO) IsHigh() bool {
	return g.Read() == High
}

// IsLow reports whether the pin reads low.
func (g *GPIO) IsLow() bool {
	return g.Read() == Low
}
