package core

const (
	i2cCR1   = 0x00
	i2cCR2   = 0x04
	i2cOAR1  = 0x08
	i2cDR    = 0x10
	i2cSR1   = 0x14
	i2cSR2   = 0x18
	i2cCCR   = 0x1C
	i2cTRISE = 0x20
	i2cFLTR  = 0x24

	i2cCR1PE    = 1 << 0
	i2cCR1START = 1 << 8
	i2cCR1STOP  = 1 << 9
	i2cCR1ACK   = 1 << 10
	i2cCR1SWRST = 1 << 15

	i2cSR1SB    = 1 << 0
	i2cSR1ADDR  = 1 << 1
	i2cSR1BTF   = 1 << 2
	i2cSR1ADD10 = 1 << 3
	i2cSR1RXNE  = 1 << 6
	i2cSR1TXE   = 1 << 7
	i2cSR1BERR  = 1 << 8
	i2cSR1ARLO  = 1 << 9
	i2cSR1AF    = 1 << 10

	i2cSR2BUSY = 1 << 1

	i2cCCRFS = 1 << 15

	i2cFLTRANOFF = 1 << 4

	i2cScanFirst = 0x08
	i2cScanLast  = 0x77

	i2cRecoveryClocks = 9
)

// I2CInstance selects an I2C peripheral.
type I2CInstance uint8

const (
	I2C1 I2CInstance = iota
	I2C2
	I2C3
	i2cCount
)

type i2cHW struct {
	base     uintptr
	periph   Peripheral
	scl, sda Pin
	af       uint8
}

var i2cHWs = [i2cCount]i2cHW{
	I2C1: {0x40005400, PeriphI2C1, Pin{PortB, 6}, Pin{PortB, 7}, 4},
	I2C2: {0x40005800, PeriphI2C2, Pin{PortB, 10}, Pin{PortB, 11}, 4},
	I2C3: {0x40005C00, PeriphI2C3, Pin{PortA, 8}, Pin{PortC, 9}, 4},
}

// I2CSpeed selects the bus clock.
type I2CSpeed uint8

const (
	I2CStandard I2CSpeed = iota // 100 kHz
	I2CFast                     // 400 kHz
	I2CFastPlus                 // 1 MHz, not available on this part
)

// I2CAddressing selects 7- or 10-bit slave addresses.
type I2CAddressing uint8

const (
	I2CAddr7Bit I2CAddressing = iota
	I2CAddr10Bit
)

// I2CPins overrides the default pin routing of an instance.
type I2CPins struct {
	SCL, SDA Pin
	AF       uint8
}

// I2CConfig describes the bus.
type I2CConfig struct {
	Speed         I2CSpeed
	Addressing    I2CAddressing
	AnalogFilter  bool
	DigitalFilter uint8    // 0 disables, 1-15 filters that many PCLK1 cycles
	Pins          *I2CPins // nil selects the instance default
}

// DefaultI2CConfig returns standard mode, 7-bit addressing, analog filter on.
func DefaultI2CConfig() I2CConfig {
	return I2CConfig{
		Speed:        I2CStandard,
		Addressing:   I2CAddr7Bit,
		AnalogFilter: true,
	}
}

// I2C is a bus master. Transfers are synchronous and bounded by a timeout.
type I2C struct {
	hw          *i2cHW
	inst        I2CInstance
	cfg         I2CConfig
	pins        I2CPins
	initialized bool
}

// NewI2C returns an uninitialized handle for inst.
func NewI2C(inst I2CInstance) *I2C {
	i := &I2C{inst: inst}
	if inst < i2cCount {
		i.hw = &i2cHWs[inst]
	}
	return i
}

func (i *I2C) reg(off uintptr) reg {
	return reg(i.hw.base + off)
}

// Init programs timing, filters and pins and enables the peripheral.
func (i *I2C) Init(cfg I2CConfig) error {
	if i.hw == nil || cfg.Speed > I2CFast || cfg.Addressing > I2CAddr10Bit || cfg.DigitalFilter > 15 {
		return ErrInvalidArg
	}
	pins := I2CPins{SCL: i.hw.scl, SDA: i.hw.sda, AF: i.hw.af}
	if cfg.Pins != nil {
		pins = *cfg.Pins
	}
	if !pins.SCL.Valid() || !pins.SDA.Valid() {
		return ErrInvalidArg
	}

	pclk := PClk1()
	freq := pclk / 1000000
	if freq < 2 || freq > 50 {
		return ErrInvalidArg
	}
	EnablePeripheralClock(i.hw.periph)
	i.pins = pins
	if err := i.routePins(); err != nil {
		return err
	}

	cr1 := i.reg(i2cCR1)
	cr1.Set(i2cCR1SWRST)
	cr1.Set(0)
	i.reg(i2cCR2).Set(freq)

	var ccr, trise uint32
	if cfg.Speed == I2CStandard {
		ccr = pclk / (2 * 100000)
		if ccr < 4 {
			ccr = 4
		}
		trise = freq + 1
	} else {
		ccr = pclk / (3 * 400000)
		if ccr < 1 {
			ccr = 1
		}
		ccr |= i2cCCRFS
		trise = freq*300/1000 + 1
	}
	i.reg(i2cCCR).Set(ccr)
	i.reg(i2cTRISE).Set(trise)

	fltr := uint32(cfg.DigitalFilter)
	if !cfg.AnalogFilter {
		fltr |= i2cFLTRANOFF
	}
	i.reg(i2cFLTR).Set(fltr)

	cr1.Set(i2cCR1PE)
	cr1.SetBits(i2cCR1ACK)

	i.cfg = cfg
	i.initialized = true
	return nil
}

func (i *I2C) routePins() error {
	for _, p := range [2]Pin{i.pins.SCL, i.pins.SDA} {
		g := NewGPIOPin(p)
		if err := g.SetPull(PullUp); err != nil {
			return err
		}
		if err := g.SetOpenDrain(true); err != nil {
			return err
		}
		if err := g.SetAlternateFunction(i.pins.AF); err != nil {
			return err
		}
		if err := g.SetMode(ModeAlternate); err != nil {
			return err
		}
		if err := g.SetSpeed(SpeedHigh); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the active configuration.
func (i *I2C) Config() I2CConfig {
	return i.cfg
}

// IsBusy reports the bus-busy flag.
func (i *I2C) IsBusy() bool {
	return i.initialized && i.reg(i2cSR2).HasBits(i2cSR2BUSY)
}

func (i *I2C) checkAddr(addr uint16) error {
	if i.cfg.Addressing == I2CAddr10Bit {
		if addr > 0x3FF {
			return ErrInvalidArg
		}
	} else if addr > 0x7F {
		return ErrInvalidArg
	}
	return nil
}

// Write sends buf to addr with the default timeout.
func (i *I2C) Write(addr uint16, buf []byte) error {
	return i.WriteTimeout(addr, buf, I2CTimeoutMs)
}

// WriteTimeout sends buf to addr: [S][addr,W][buf...][P].
func (i *I2C) WriteTimeout(addr uint16, buf []byte, timeoutMs uint32) error {
	return i.transfer(addr, buf, nil, nil, timeoutMs)
}

// Read fills buf from addr with the default timeout.
func (i *I2C) Read(addr uint16, buf []byte) error {
	return i.ReadTimeout(addr, buf, I2CTimeoutMs)
}

// ReadTimeout fills buf from addr: [S][addr,R][buf...][P]. The last byte is
// NACKed so the slave releases the bus.
func (i *I2C) ReadTimeout(addr uint16, buf []byte, timeoutMs uint32) error {
	if len(buf) == 0 {
		return ErrInvalidArg
	}
	return i.transfer(addr, nil, nil, buf, timeoutMs)
}

// WriteRegister writes data to register r of addr with the default timeout.
func (i *I2C) WriteRegister(addr uint16, r uint8, data []byte) error {
	return i.WriteRegisterTimeout(addr, r, data, I2CTimeoutMs)
}

// WriteRegisterTimeout issues [S][addr,W][r][data...][P].
func (i *I2C) WriteRegisterTimeout(addr uint16, r uint8, data []byte, timeoutMs uint32) error {
	prefix := [1]byte{r}
	return i.transfer(addr, prefix[:], data, nil, timeoutMs)
}

// WriteRegisterByte writes a single register.
func (i *I2C) WriteRegisterByte(addr uint16, r, value uint8) error {
	data := [1]byte{value}
	return i.WriteRegister(addr, r, data[:])
}

// ReadRegister reads len(out) bytes from register r of addr with the
// default timeout.
func (i *I2C) ReadRegister(addr uint16, r uint8, out []byte) error {
	return i.ReadRegisterTimeout(addr, r, out, I2CTimeoutMs)
}

// ReadRegisterTimeout issues [S][addr,W][r][Sr][addr,R][out...][P].
func (i *I2C) ReadRegisterTimeout(addr uint16, r uint8, out []byte, timeoutMs uint32) error {
	if len(out) == 0 {
		return ErrInvalidArg
	}
	prefix := [1]byte{r}
	return i.transfer(addr, prefix[:], nil, out, timeoutMs)
}

// ReadRegisterByte reads a single register.
func (i *I2C) ReadRegisterByte(addr uint16, r uint8) (uint8, error) {
	var out [1]byte
	err := i.ReadRegister(addr, r, out[:])
	return out[0], err
}

// Tx writes w then reads r in one transaction with a repeated start.
func (i *I2C) Tx(addr uint16, w, r []byte) error {
	return i.transfer(addr, w, nil, r, I2CTimeoutMs)
}

// IsDevicePresent probes addr with a zero-length write.
func (i *I2C) IsDevicePresent(addr uint16) bool {
	return i.transfer(addr, nil, nil, nil, I2CTimeoutMs) == nil
}

// ScanBus probes 7-bit addresses 0x08-0x77 in ascending order and stores
// responders in found until it is full. It returns the count stored.
func (i *I2C) ScanBus(found []uint8) int {
	n := 0
	for addr := uint16(i2cScanFirst); addr <= i2cScanLast && n < len(found); addr++ {
		if i.IsDevicePresent(addr) {
			found[n] = uint8(addr)
			n++
		}
	}
	return n
}

// transfer runs [S][addr,W][w1][w2][P] when rbuf is empty, otherwise
// [S][addr,W][w1][w2][Sr][addr,R][rbuf][P], skipping the write phase when
// there is nothing to write.
func (i *I2C) transfer(addr uint16, w1, w2, rbuf []byte, timeoutMs uint32) error {
	if !i.initialized {
		return ErrNotReady
	}
	if err := i.checkAddr(addr); err != nil {
		return err
	}
	if i.reg(i2cSR2).HasBits(i2cSR2BUSY) {
		RecordEvent(EvtI2CBusBusy, uint8(i.inst), uint32(addr), 0)
		return ErrBusy
	}

	d := newDeadline(timeoutMs)
	wrote := false
	if len(w1)+len(w2) > 0 || len(rbuf) == 0 {
		if err := i.start(d); err != nil {
			return err
		}
		if err := i.sendAddress(addr, false, d); err != nil {
			return err
		}
		if err := i.writeBytes(addr, w1, 0, d); err != nil {
			return err
		}
		if err := i.writeBytes(addr, w2, len(w1), d); err != nil {
			return err
		}
		if n := len(w1) + len(w2); n > 0 && !i.waitFlag(i2cSR1BTF, d) {
			if i.nacked() {
				RecordEvent(EvtI2CNack, uint8(i.inst), uint32(addr), uint32(n-1))
				return i.abort(ErrHardware, i2cSR1BTF)
			}
			return i.abort(ErrTimeout, i2cSR1BTF)
		}
		wrote = true
	}

	if len(rbuf) == 0 {
		i.reg(i2cCR1).SetBits(i2cCR1STOP)
		return nil
	}
	if err := i.start(d); err != nil {
		return err
	}
	if wrote && i.cfg.Addressing == I2CAddr10Bit {
		// Header only: the slave stays addressed after the write phase.
		return i.readBytes(addr, rbuf, true, d)
	}
	return i.readBytes(addr, rbuf, false, d)
}

func (i *I2C) start(d deadline) error {
	i.reg(i2cCR1).SetBits(i2cCR1START)
	if !d.waitSet(i.reg(i2cSR1), i2cSR1SB) {
		return i.abort(ErrTimeout, i2cSR1SB)
	}
	return nil
}

// waitFlag waits for flag or a NACK. It returns false on timeout or NACK;
// the caller distinguishes with nacked.
func (i *I2C) waitFlag(flag uint32, d deadline) bool {
	sr1 := i.reg(i2cSR1)
	if !d.waitSet(sr1, flag|i2cSR1AF) {
		return false
	}
	return !sr1.HasBits(i2cSR1AF)
}

func (i *I2C) nacked() bool {
	return i.reg(i2cSR1).HasBits(i2cSR1AF)
}

// clearAddr clears ADDR by reading SR1 then SR2.
func (i *I2C) clearAddr() {
	_ = i.reg(i2cSR1).Get()
	_ = i.reg(i2cSR2).Get()
}

// abort generates STOP, clears a pending NACK and returns err.
func (i *I2C) abort(err error, flag uint32) error {
	i.reg(i2cCR1).SetBits(i2cCR1STOP)
	if i.nacked() {
		i.reg(i2cSR1).ClearBits(i2cSR1AF)
	}
	if err == ErrTimeout {
		RecordEvent(EvtI2CTimeout, uint8(i.inst), flag, 0)
	}
	return err
}

// sendAddress runs the address phase and leaves ADDR set for the caller.
func (i *I2C) sendAddress(addr uint16, read bool, d deadline) error {
	dr := i.reg(i2cDR)
	if i.cfg.Addressing == I2CAddr10Bit {
		header := uint32(0xF0 | (addr>>7)&0x06)
		dr.Set(header)
		if !i.waitFlag(i2cSR1ADD10, d) {
			return i.addrFailed(addr, i2cSR1ADD10)
		}
		dr.Set(uint32(addr & 0xFF))
		if !i.waitFlag(i2cSR1ADDR, d) {
			return i.addrFailed(addr, i2cSR1ADDR)
		}
		i.clearAddr()
		if !read {
			return nil
		}
		if err := i.start(d); err != nil {
			return err
		}
		dr.Set(header | 1)
	} else {
		var rw uint32
		if read {
			rw = 1
		}
		dr.Set(uint32(addr)<<1 | rw)
	}
	if !i.waitFlag(i2cSR1ADDR, d) {
		return i.addrFailed(addr, i2cSR1ADDR)
	}
	if !read {
		i.clearAddr()
	}
	return nil
}

func (i *I2C) addrFailed(addr uint16, flag uint32) error {
	if i.nacked() {
		RecordEvent(EvtI2CNack, uint8(i.inst), uint32(addr), 0xFFFF)
		return i.abort(ErrNotFound, flag)
	}
	return i.abort(ErrTimeout, flag)
}

func (i *I2C) writeBytes(addr uint16, buf []byte, offset int, d deadline) error {
	dr := i.reg(i2cDR)
	for n, c := range buf {
		if !i.waitFlag(i2cSR1TXE, d) {
			if i.nacked() {
				RecordEvent(EvtI2CNack, uint8(i.inst), uint32(addr), uint32(offset+n))
				return i.abort(ErrHardware, i2cSR1TXE)
			}
			return i.abort(ErrTimeout, i2cSR1TXE)
		}
		dr.Set(uint32(c))
	}
	return nil
}

// readBytes runs the address phase for reading and receives buf. ACK is
// cleared before the last byte is read so it is NACKed, with STOP queued
// behind it. headerOnly selects the 10-bit repeated-start form.
func (i *I2C) readBytes(addr uint16, buf []byte, headerOnly bool, d deadline) error {
	cr1 := i.reg(i2cCR1)
	cr1.SetBits(i2cCR1ACK)
	if headerOnly {
		i.reg(i2cDR).Set(uint32(0xF0|(addr>>7)&0x06) | 1)
		if !i.waitFlag(i2cSR1ADDR, d) {
			return i.addrFailed(addr, i2cSR1ADDR)
		}
	} else if err := i.sendAddress(addr, true, d); err != nil {
		return err
	}

	if len(buf) == 1 {
		cr1.ClearBits(i2cCR1ACK)
		i.clearAddr()
		cr1.SetBits(i2cCR1STOP)
	} else {
		i.clearAddr()
	}

	dr := i.reg(i2cDR)
	sr1 := i.reg(i2cSR1)
	for n := range buf {
		if n == len(buf)-1 && len(buf) > 1 {
			cr1.ClearBits(i2cCR1ACK)
			cr1.SetBits(i2cCR1STOP)
		}
		if !d.waitSet(sr1, i2cSR1RXNE) {
			cr1.SetBits(i2cCR1ACK)
			return i.abort(ErrTimeout, i2cSR1RXNE)
		}
		buf[n] = byte(dr.Get())
	}
	cr1.SetBits(i2cCR1ACK)
	return nil
}

// ResetBus frees a bus held low by a slave: SCL is clocked by hand up to
// nine times until SDA reads high, a STOP is generated, and the pins and
// peripheral are restored. It is never invoked implicitly.
func (i *I2C) ResetBus() error {
	if !i.initialized {
		return ErrNotReady
	}
	cr1 := i.reg(i2cCR1)
	cr1.ClearBits(i2cCR1PE)

	scl := NewGPIOPin(i.pins.SCL)
	sda := NewGPIOPin(i.pins.SDA)
	// Latch high before leaving the alternate function so neither line
	// dips, which slaves would read as a START.
	for _, g := range [2]*GPIO{scl, sda} {
		g.SetHigh()
		if err := g.SetMode(ModeOutputOD); err != nil {
			return err
		}
	}
	DelayUs(5)

	clocks := uint32(0)
	for clocks < i2cRecoveryClocks && sda.IsLow() {
		scl.SetLow()
		DelayUs(5)
		scl.SetHigh()
		DelayUs(5)
		clocks++
	}
	released := sda.IsHigh()

	// STOP: SDA goes low while SCL is low, then rises while SCL is high.
	scl.SetLow()
	DelayUs(5)
	sda.SetLow()
	DelayUs(5)
	scl.SetHigh()
	DelayUs(5)
	sda.SetHigh()
	DelayUs(5)

	RecordEvent(EvtI2CRecovery, uint8(i.inst), clocks, boolToU32(released))

	if err := i.Init(i.cfg); err != nil {
		return err
	}
	if !released {
		return ErrHardware
	}
	return nil
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
