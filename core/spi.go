package core

import "sync/atomic"

const (
	spiCR1 = 0x00
	spiCR2 = 0x04
	spiSR  = 0x08
	spiDR  = 0x0C

	spiCR1CPHA     = 1 << 0
	spiCR1CPOL     = 1 << 1
	spiCR1MSTR     = 1 << 2
	spiCR1BRPos    = 3
	spiCR1SPE      = 1 << 6
	spiCR1LSBFIRST = 1 << 7
	spiCR1SSI      = 1 << 8
	spiCR1SSM      = 1 << 9
	spiCR1DFF      = 1 << 11

	spiSRRXNE = 1 << 0
	spiSRTXE  = 1 << 1
	spiSRBSY  = 1 << 7

	spiDummy = 0xFF
)

// SPIInstance selects an SPI peripheral.
type SPIInstance uint8

const (
	SPI1 SPIInstance = iota
	SPI2
	SPI3
	spiCount
)

type spiHW struct {
	base            uintptr
	periph          Peripheral
	apb2            bool
	sck, miso, mosi Pin
	af              uint8
}

var spiHWs = [spiCount]spiHW{
	SPI1: {0x40013000, PeriphSPI1, true, Pin{PortA, 5}, Pin{PortA, 6}, Pin{PortA, 7}, 5},
	SPI2: {0x40003800, PeriphSPI2, false, Pin{PortB, 13}, Pin{PortB, 14}, Pin{PortB, 15}, 5},
	SPI3: {0x40003C00, PeriphSPI3, false, Pin{PortC, 10}, Pin{PortC, 11}, Pin{PortC, 12}, 6},
}

// SPIRole selects master or slave operation.
type SPIRole uint8

const (
	SPIMaster SPIRole = iota
	SPISlave
)

// SPIBitOrder selects which bit is shifted first.
type SPIBitOrder uint8

const (
	SPIMSBFirst SPIBitOrder = iota
	SPILSBFirst
)

// SPIPins overrides the default pin routing of an instance.
type SPIPins struct {
	SCK, MISO, MOSI Pin
	AF              uint8
}

// SPIConfig describes the bus.
type SPIConfig struct {
	Role       SPIRole
	CPOL       uint8 // clock idle level, 0 or 1
	CPHA       uint8 // sample edge, 0 or 1
	DataSize   uint8 // 8 or 16 bit frames
	BitOrder   SPIBitOrder
	ClockHz    uint32
	SoftwareCS bool
	Pins       *SPIPins // nil selects the instance default
}

// DefaultSPIConfig returns mode 0, 8-bit MSB first master at 1 MHz with
// software chip select.
func DefaultSPIConfig() SPIConfig {
	return SPIConfig{
		Role:       SPIMaster,
		DataSize:   8,
		BitOrder:   SPIMSBFirst,
		ClockHz:    1000000,
		SoftwareCS: true,
	}
}

// SPI is a synchronous full-duplex bus.
type SPI struct {
	hw          *spiHW
	inst        SPIInstance
	cfg         SPIConfig
	cs          *GPIO // not owned
	clockHz     uint32
	busy        uint32
	initialized bool
}

// NewSPI returns an uninitialized handle for inst.
func NewSPI(inst SPIInstance) *SPI {
	s := &SPI{inst: inst}
	if inst < spiCount {
		s.hw = &spiHWs[inst]
	}
	return s
}

func (s *SPI) reg(off uintptr) reg {
	return reg(s.hw.base + off)
}

func (s *SPI) pclk() uint32 {
	if s.hw.apb2 {
		return PClk2()
	}
	return PClk1()
}

// spiPrescaler picks the smallest divider (2..256) whose rate does not
// exceed hz.
func spiPrescaler(pclk, hz uint32) (br uint32, achieved uint32, ok bool) {
	if hz == 0 {
		return 0, 0, false
	}
	for br = 0; br < 8; br++ {
		achieved = pclk >> (br + 1)
		if achieved <= hz {
			return br, achieved, true
		}
	}
	return 0, 0, false
}

// Init programs framing, role and clock and enables the peripheral.
func (s *SPI) Init(cfg SPIConfig) error {
	if s.hw == nil || cfg.Role > SPISlave || cfg.CPOL > 1 || cfg.CPHA > 1 || cfg.BitOrder > SPILSBFirst {
		return ErrInvalidArg
	}
	if cfg.DataSize != 8 && cfg.DataSize != 16 {
		return ErrInvalidArg
	}
	br, achieved, ok := spiPrescaler(s.pclk(), cfg.ClockHz)
	if !ok {
		return ErrInvalidArg
	}
	EnablePeripheralClock(s.hw.periph)
	if err := s.routePins(cfg.Pins); err != nil {
		return err
	}

	cr1 := uint32(br << spiCR1BRPos)
	if cfg.CPHA == 1 {
		cr1 |= spiCR1CPHA
	}
	if cfg.CPOL == 1 {
		cr1 |= spiCR1CPOL
	}
	if cfg.BitOrder == SPILSBFirst {
		cr1 |= spiCR1LSBFIRST
	}
	if cfg.DataSize == 16 {
		cr1 |= spiCR1DFF
	}
	if cfg.SoftwareCS {
		cr1 |= spiCR1SSM
		if cfg.Role == SPIMaster {
			cr1 |= spiCR1SSI
		}
	}
	if cfg.Role == SPIMaster {
		cr1 |= spiCR1MSTR
	}
	s.reg(spiCR1).Set(0)
	s.reg(spiCR2).Set(0)
	s.reg(spiCR1).Set(cr1)
	s.reg(spiCR1).SetBits(spiCR1SPE)

	s.cfg = cfg
	s.clockHz = achieved
	s.initialized = true
	if s.cs != nil && cfg.SoftwareCS {
		s.cs.SetHigh()
	}
	return nil
}

func (s *SPI) routePins(p *SPIPins) error {
	pins := SPIPins{SCK: s.hw.sck, MISO: s.hw.miso, MOSI: s.hw.mosi, AF: s.hw.af}
	if p != nil {
		pins = *p
	}
	for _, pin := range [3]Pin{pins.SCK, pins.MISO, pins.MOSI} {
		if !pin.Valid() {
			return ErrInvalidArg
		}
		g := NewGPIOPin(pin)
		if err := g.SetMode(ModeAlternate); err != nil {
			return err
		}
		if err := g.SetAlternateFunction(pins.AF); err != nil {
			return err
		}
		if err := g.SetSpeed(SpeedVeryHigh); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the active configuration.
func (s *SPI) Config() SPIConfig {
	return s.cfg
}

// ClockFrequency returns the achieved bus clock.
func (s *SPI) ClockFrequency() uint32 {
	return s.clockHz
}

// SetClockFrequency selects a new divider and returns the achieved rate.
func (s *SPI) SetClockFrequency(hz uint32) (uint32, error) {
	if !s.initialized {
		return 0, ErrNotReady
	}
	br, achieved, ok := spiPrescaler(s.pclk(), hz)
	if !ok {
		return 0, ErrInvalidArg
	}
	if !atomic.CompareAndSwapUint32(&s.busy, 0, 1) {
		return 0, ErrBusy
	}
	defer atomic.StoreUint32(&s.busy, 0)
	cr1 := s.reg(spiCR1)
	cr1.ClearBits(spiCR1SPE)
	cr1.ReplaceBits(br, 7, spiCR1BRPos)
	cr1.SetBits(spiCR1SPE)
	s.cfg.ClockHz = hz
	s.clockHz = achieved
	return achieved, nil
}

// SetChipSelect attaches the GPIO driven by Select and Deselect. The pin is
// configured as a push-pull output and driven high.
func (s *SPI) SetChipSelect(cs *GPIO) error {
	if cs == nil {
		s.cs = nil
		return nil
	}
	if err := cs.SetMode(ModeOutput); err != nil {
		return err
	}
	if err := cs.SetSpeed(SpeedHigh); err != nil {
		return err
	}
	cs.SetHigh()
	s.cs = cs
	return nil
}

// Select drives chip select low. Callers bracket transfers themselves.
func (s *SPI) Select() error {
	if !s.cfg.SoftwareCS || s.cs == nil {
		return ErrInvalidArg
	}
	s.cs.SetLow()
	return nil
}

// Deselect drives chip select high.
func (s *SPI) Deselect() error {
	if !s.cfg.SoftwareCS || s.cs == nil {
		return ErrInvalidArg
	}
	s.cs.SetHigh()
	return nil
}

// IsBusy reports a transfer in progress or the peripheral busy flag.
func (s *SPI) IsBusy() bool {
	if atomic.LoadUint32(&s.busy) != 0 {
		return true
	}
	return s.initialized && s.reg(spiSR).HasBits(spiSRBSY)
}

func (s *SPI) acquire() error {
	if !s.initialized {
		return ErrNotReady
	}
	if !atomic.CompareAndSwapUint32(&s.busy, 0, 1) {
		return ErrBusy
	}
	return nil
}

func (s *SPI) release() {
	atomic.StoreUint32(&s.busy, 0)
}

// exchange shifts one frame out and returns the frame shifted in.
func (s *SPI) exchange(v uint16, d deadline) (uint16, error) {
	sr := s.reg(spiSR)
	if !d.waitSet(sr, spiSRTXE) {
		RecordEvent(EvtSPITimeout, uint8(s.inst), spiSRTXE, 0)
		return 0, ErrTimeout
	}
	s.reg(spiDR).Set(uint32(v))
	if !d.waitSet(sr, spiSRRXNE) {
		RecordEvent(EvtSPITimeout, uint8(s.inst), spiSRRXNE, 0)
		return 0, ErrTimeout
	}
	return uint16(s.reg(spiDR).Get()), nil
}

// Transfer writes b and returns the byte received in the same frame.
func (s *SPI) Transfer(b byte) (byte, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.release()
	v, err := s.exchange(uint16(b), newDeadline(SPITimeoutMs))
	return byte(v), err
}

// Transfer16 exchanges a 16-bit word: one frame in 16-bit mode, two frames
// MSB first in 8-bit mode.
func (s *SPI) Transfer16(w uint16) (uint16, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.release()
	d := newDeadline(SPITimeoutMs)
	if s.cfg.DataSize == 16 {
		return s.exchange(w, d)
	}
	hi, err := s.exchange(w>>8, d)
	if err != nil {
		return 0, err
	}
	lo, err := s.exchange(w&0xFF, d)
	if err != nil {
		return 0, err
	}
	return hi<<8 | lo&0xFF, nil
}

// Tx exchanges w and r. Either may be nil: a nil r discards received
// bytes and a nil w sends 0xFF. When both are set they must be the same
// length.
func (s *SPI) Tx(w, r []byte) error {
	n := len(w)
	if w == nil {
		n = len(r)
	} else if r != nil && len(r) != len(w) {
		return ErrInvalidArg
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	d := newDeadline(SPITimeoutMs)
	for k := 0; k < n; k++ {
		out := uint16(spiDummy)
		if w != nil {
			out = uint16(w[k])
		}
		in, err := s.exchange(out, d)
		if err != nil {
			return err
		}
		if r != nil {
			r[k] = byte(in)
		}
	}
	return nil
}

// TransferBuffer is Tx with the full-duplex argument order of the HAL.
func (s *SPI) TransferBuffer(tx, rx []byte) error {
	return s.Tx(tx, rx)
}

// Transmit sends tx and discards what is received.
func (s *SPI) Transmit(tx []byte) error {
	return s.Tx(tx, nil)
}

// Receive fills rx while sending 0xFF.
func (s *SPI) Receive(rx []byte) error {
	return s.Tx(nil, rx)
}

// Deinit waits for the bus to idle, disables the peripheral and gates its
// clock.
func (s *SPI) Deinit() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	newDeadline(SPITimeoutMs).waitClear(s.reg(spiSR), spiSRBSY)
	s.reg(spiCR1).Set(0)
	DisablePeripheralClock(s.hw.periph)
	s.initialized = false
	return nil
}
