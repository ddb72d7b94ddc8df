package core

import "sync/atomic"

const (
	usartSR   = 0x00
	usartDR   = 0x04
	usartBRR  = 0x08
	usartCR1  = 0x0C
	usartCR2  = 0x10
	usartCR3  = 0x14
	usartGTPR = 0x18

	srPE   = 1 << 0
	srFE   = 1 << 1
	srNF   = 1 << 2
	srORE  = 1 << 3
	srRXNE = 1 << 5
	srTC   = 1 << 6
	srTXE  = 1 << 7

	srErrors = srPE | srFE | srNF | srORE

	cr1RE     = 1 << 2
	cr1TE     = 1 << 3
	cr1RXNEIE = 1 << 5
	cr1TCIE   = 1 << 6
	cr1TXEIE  = 1 << 7
	cr1PEIE   = 1 << 8
	cr1PS     = 1 << 9
	cr1PCE    = 1 << 10
	cr1M      = 1 << 12
	cr1UE     = 1 << 13

	cr2StopPos = 12

	cr3RTSE = 1 << 8
	cr3CTSE = 1 << 9

	baudTolerancePct = 2
)

// UARTInstance selects a USART peripheral.
type UARTInstance uint8

const (
	USART1 UARTInstance = iota
	USART2
	USART3
	USART6
	uartCount
)

type uartHW struct {
	base   uintptr
	periph Peripheral
	irq    IRQ
	apb2   bool
	tx, rx Pin
	af     uint8
}

var uartHWs = [uartCount]uartHW{
	USART1: {0x40011000, PeriphUSART1, IRQ_USART1, true, Pin{PortA, 9}, Pin{PortA, 10}, 7},
	USART2: {0x40004400, PeriphUSART2, IRQ_USART2, false, Pin{PortA, 2}, Pin{PortA, 3}, 7},
	USART3: {0x40004800, PeriphUSART3, IRQ_USART3, false, Pin{PortB, 10}, Pin{PortB, 11}, 7},
	USART6: {0x40011400, PeriphUSART6, IRQ_USART6, true, Pin{PortC, 6}, Pin{PortC, 7}, 8},
}

// Parity selects the parity bit.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// StopBits selects the stop bit length.
type StopBits uint8

const (
	StopBits1 StopBits = iota
	StopBits1_5
	StopBits2
)

// FlowControl selects hardware handshaking.
type FlowControl uint8

const (
	FlowNone FlowControl = iota
	FlowRTS
	FlowCTS
	FlowRTSCTS
)

// UARTPins overrides the default pin routing of an instance.
type UARTPins struct {
	TX, RX Pin
	AF     uint8
}

// UARTConfig describes the line framing. The byte-oriented transfer
// methods carry 8 payload bits: with DataBits 9 the ninth bit is sent as 0
// and dropped on receive.
type UARTConfig struct {
	BaudRate    uint32
	DataBits    uint8 // 8 or 9, parity excluded
	Parity      Parity
	StopBits    StopBits
	FlowControl FlowControl
	Pins        *UARTPins // nil selects the instance default
}

// DefaultUARTConfig returns 115200 8N1 without flow control.
func DefaultUARTConfig() UARTConfig {
	return UARTConfig{
		BaudRate: DebugBaudRate,
		DataBits: 8,
		Parity:   ParityNone,
		StopBits: StopBits1,
	}
}

// RxCallback receives one byte in interrupt context.
type RxCallback func(c byte, ctx any)

// TxCallback runs in interrupt context when the TX ring drains.
type TxCallback func(ctx any)

// UART is a USART instance with blocking and interrupt-driven paths.
type UART struct {
	hw          *uartHW
	inst        UARTInstance
	cfg         UARTConfig
	initialized bool
	released    bool

	rxCb  RxCallback
	rxCtx any
	txCb  TxCallback
	txCtx any
	tx    RingBuffer

	// Line error bits latched by the interrupt handler.
	lineErr uint32
}

// Instances registered by Init, looked up by the interrupt dispatcher.
var uarts [uartCount]*UART

func uartForIRQ(irq IRQ) *UART {
	for i := range uartHWs {
		if uartHWs[i].irq == irq {
			return uarts[i]
		}
	}
	return nil
}

// NewUART returns an uninitialized handle for inst.
func NewUART(inst UARTInstance) *UART {
	u := &UART{inst: inst}
	if inst < uartCount {
		u.hw = &uartHWs[inst]
	}
	return u
}

func (u *UART) reg(off uintptr) reg {
	return reg(u.hw.base + off)
}

func (u *UART) pclk() uint32 {
	if u.hw.apb2 {
		return PClk2()
	}
	return PClk1()
}

// uartBRR returns the 16x oversampling divider for baud, or false when the
// achieved rate is off by more than the tolerance.
func uartBRR(pclk, baud uint32) (uint32, bool) {
	if baud == 0 {
		return 0, false
	}
	brr := (pclk + baud/2) / baud
	if brr < 16 || brr > 0xFFFF {
		return 0, false
	}
	actual := pclk / brr
	diff := actual - baud
	if actual < baud {
		diff = baud - actual
	}
	if uint64(diff)*100 > uint64(baud)*baudTolerancePct {
		return 0, false
	}
	return brr, true
}

// Init enables the clock, routes the pins and programs the framing.
func (u *UART) Init(cfg UARTConfig) error {
	if u.hw == nil {
		return ErrInvalidArg
	}
	if cfg.DataBits != 8 && cfg.DataBits != 9 {
		return ErrInvalidArg
	}
	if cfg.Parity > ParityOdd || cfg.StopBits > StopBits2 || cfg.FlowControl > FlowRTSCTS {
		return ErrInvalidArg
	}
	if cfg.DataBits == 9 && cfg.Parity != ParityNone {
		return ErrInvalidArg
	}

	brr, ok := uartBRR(u.pclk(), cfg.BaudRate)
	if !ok {
		return ErrInvalidArg
	}
	EnablePeripheralClock(u.hw.periph)
	if err := u.initPins(cfg.Pins); err != nil {
		return err
	}

	u.reg(usartCR1).Set(0)

	var stop uint32
	switch cfg.StopBits {
	case StopBits1:
		stop = 0
	case StopBits1_5:
		stop = 3
	case StopBits2:
		stop = 2
	}
	u.reg(usartCR2).ReplaceBits(stop, 3, cr2StopPos)

	var cr3 uint32
	if cfg.FlowControl == FlowRTS || cfg.FlowControl == FlowRTSCTS {
		cr3 |= cr3RTSE
	}
	if cfg.FlowControl == FlowCTS || cfg.FlowControl == FlowRTSCTS {
		cr3 |= cr3CTSE
	}
	u.reg(usartCR3).Set(cr3)
	u.reg(usartBRR).Set(brr)

	// M selects a 9-bit word, which holds the parity bit when enabled.
	cr1 := uint32(cr1UE | cr1TE | cr1RE)
	if cfg.DataBits == 9 || cfg.Parity != ParityNone {
		cr1 |= cr1M
	}
	switch cfg.Parity {
	case ParityEven:
		cr1 |= cr1PCE
	case ParityOdd:
		cr1 |= cr1PCE | cr1PS
	}
	u.reg(usartCR1).Set(cr1)

	cs := EnterCritical()
	u.tx.Reset()
	u.rxCb, u.rxCtx = nil, nil
	u.txCb, u.txCtx = nil, nil
	atomic.StoreUint32(&u.lineErr, 0)
	uarts[u.inst] = u
	cs.Exit()

	EnableIRQ(u.hw.irq)
	u.cfg = cfg
	u.initialized = true
	u.released = false
	return nil
}

func (u *UART) initPins(p *UARTPins) error {
	pins := UARTPins{TX: u.hw.tx, RX: u.hw.rx, AF: u.hw.af}
	if p != nil {
		pins = *p
	}
	if !pins.TX.Valid() || !pins.RX.Valid() {
		return ErrInvalidArg
	}
	tx := NewGPIOPin(pins.TX)
	rx := NewGPIOPin(pins.RX)
	for _, g := range []*GPIO{tx, rx} {
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
	return rx.SetPull(PullUp)
}

// Config returns the active configuration.
func (u *UART) Config() UARTConfig {
	return u.cfg
}

// SetBaudRate reprograms the divider, keeping the framing.
func (u *UART) SetBaudRate(baud uint32) error {
	if !u.initialized {
		return ErrNotReady
	}
	brr, ok := uartBRR(u.pclk(), baud)
	if !ok {
		return ErrInvalidArg
	}
	cr1 := u.reg(usartCR1)
	cr1.ClearBits(cr1UE)
	u.reg(usartBRR).Set(brr)
	cr1.SetBits(cr1UE)
	u.cfg.BaudRate = baud
	return nil
}

// charTimeoutMs bounds one blocking byte: two character times, at least 2 ms.
func (u *UART) charTimeoutMs() uint32 {
	bits := uint32(u.cfg.DataBits) + 3
	ms := 2 * (bits*1000 + u.cfg.BaudRate - 1) / u.cfg.BaudRate
	if ms < 2 {
		ms = 2
	}
	return ms
}

// takeLineError returns a latched line error once.
func (u *UART) takeLineError() error {
	if atomic.SwapUint32(&u.lineErr, 0) != 0 {
		return ErrHardware
	}
	return nil
}

func (u *UART) ready() error {
	if !u.initialized {
		return ErrNotReady
	}
	return u.takeLineError()
}

// WriteByte blocks until c is in the data register.
func (u *UART) WriteByte(c byte) error {
	if err := u.ready(); err != nil {
		return err
	}
	if u.reg(usartCR1).HasBits(cr1TXEIE) {
		return ErrBusy
	}
	return u.writeByte(c)
}

func (u *UART) writeByte(c byte) error {
	if !newDeadline(u.charTimeoutMs()).waitSet(u.reg(usartSR), srTXE) {
		RecordEvent(EvtUARTTimeout, uint8(u.inst), uint32(c), 0)
		return ErrTimeout
	}
	u.reg(usartDR).Set(uint32(c))
	return nil
}

// Transmit writes buf with blocking byte writes.
func (u *UART) Transmit(buf []byte) error {
	if err := u.ready(); err != nil {
		return err
	}
	if u.reg(usartCR1).HasBits(cr1TXEIE) {
		return ErrBusy
	}
	for _, c := range buf {
		if err := u.writeByte(c); err != nil {
			return err
		}
	}
	return nil
}

// Write implements io.Writer over Transmit.
func (u *UART) Write(p []byte) (int, error) {
	if err := u.Transmit(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Print writes s with blocking byte writes.
func (u *UART) Print(s string) error {
	if err := u.ready(); err != nil {
		return err
	}
	if u.reg(usartCR1).HasBits(cr1TXEIE) {
		return ErrBusy
	}
	for i := 0; i < len(s); i++ {
		if err := u.writeByte(s[i]); err != nil {
			return err
		}
	}
	return nil
}

// Receive waits up to timeoutMs for one byte. A zero timeout polls once.
func (u *UART) Receive(timeoutMs uint32) (byte, error) {
	var b [1]byte
	if _, err := u.ReceiveBuffer(b[:], timeoutMs); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReceiveBuffer fills out within timeoutMs. It returns the number of bytes
// received with ErrTimeout when the deadline passes first.
func (u *UART) ReceiveBuffer(out []byte, timeoutMs uint32) (int, error) {
	if err := u.ready(); err != nil {
		return 0, err
	}
	if u.reg(usartCR1).HasBits(cr1RXNEIE) {
		return 0, ErrBusy
	}
	d := newDeadline(timeoutMs)
	sr := u.reg(usartSR)
	for n := range out {
		if !d.waitSet(sr, srRXNE|srORE) {
			return n, ErrTimeout
		}
		status := sr.Get()
		c := byte(u.reg(usartDR).Get())
		if status&srErrors != 0 {
			RecordEvent(EvtUARTLineError, uint8(u.inst), status&srErrors, 0)
			return n, ErrHardware
		}
		out[n] = c
	}
	return len(out), nil
}

// StartReceiveIT delivers every received byte to cb from interrupt context.
func (u *UART) StartReceiveIT(cb RxCallback, ctx any) error {
	if cb == nil {
		return ErrInvalidArg
	}
	if !u.initialized {
		return ErrNotReady
	}
	cs := EnterCritical()
	u.rxCb, u.rxCtx = cb, ctx
	u.reg(usartCR1).SetBits(cr1RXNEIE | cr1PEIE)
	cs.Exit()
	return nil
}

// StopReceiveIT disables the receive interrupt and clears the callback.
func (u *UART) StopReceiveIT() {
	if !u.initialized {
		return
	}
	cs := EnterCritical()
	u.reg(usartCR1).ClearBits(cr1RXNEIE | cr1PEIE)
	u.rxCb, u.rxCtx = nil, nil
	cs.Exit()
}

// TransmitIT queues data for interrupt-driven transmission. Either all of
// data is queued or ErrNoMemory is returned. cb, if set, runs in interrupt
// context once the queue drains; a later call replaces it.
func (u *UART) TransmitIT(data []byte, cb TxCallback, ctx any) error {
	if err := u.ready(); err != nil {
		return err
	}
	cs := EnterCritical()
	defer cs.Exit()

	if !u.tx.Write(data) {
		return ErrNoMemory
	}
	u.txCb, u.txCtx = cb, ctx

	cr1 := u.reg(usartCR1)
	if !cr1.HasBits(cr1TXEIE) {
		if u.reg(usartSR).HasBits(srTXE) {
			if c, ok := u.tx.Get(); ok {
				u.reg(usartDR).Set(uint32(c))
			}
		}
		cr1.SetBits(cr1TXEIE)
	}
	return nil
}

// TxPending returns the number of bytes queued for interrupt transmission.
func (u *UART) TxPending() int {
	return u.tx.Len()
}

// IsTxReady reports whether the TX queue is drained and the last frame
// has left the shift register.
func (u *UART) IsTxReady() bool {
	if !u.initialized {
		return false
	}
	return u.tx.IsEmpty() && !u.reg(usartCR1).HasBits(cr1TXEIE) && u.reg(usartSR).HasBits(srTC)
}

// IsRxAvailable reports whether a byte is waiting in the data register.
func (u *UART) IsRxAvailable() bool {
	return u.initialized && u.reg(usartSR).HasBits(srRXNE)
}

// FlushTx waits up to timeoutMs for queued and in-flight bytes to leave.
func (u *UART) FlushTx(timeoutMs uint32) error {
	if !u.initialized {
		return ErrNotReady
	}
	d := newDeadline(timeoutMs)
	for !u.IsTxReady() {
		if d.expired() {
			return ErrTimeout
		}
		cpuRelax()
	}
	return nil
}

// FlushRx discards any byte in the data register along with latched line
// errors.
func (u *UART) FlushRx() {
	if !u.initialized {
		return
	}
	sr := u.reg(usartSR)
	for sr.HasBits(srRXNE | srORE) {
		_ = u.reg(usartDR).Get()
	}
	atomic.StoreUint32(&u.lineErr, 0)
}

// handleIRQ services the instance vector.
func (u *UART) handleIRQ() {
	sr := u.reg(usartSR).Get()
	cr1 := u.reg(usartCR1).Get()

	if cr1&cr1RXNEIE != 0 && sr&(srRXNE|srORE) != 0 {
		c := byte(u.reg(usartDR).Get())
		if errs := sr & srErrors; errs != 0 {
			atomic.StoreUint32(&u.lineErr, errs)
			RecordEvent(EvtUARTLineError, uint8(u.inst), errs, uint32(c))
		} else if u.rxCb != nil {
			u.rxCb(c, u.rxCtx)
		}
	}

	if cr1&cr1TXEIE != 0 && sr&srTXE != 0 {
		if c, ok := u.tx.Get(); ok {
			u.reg(usartDR).Set(uint32(c))
		} else {
			u.reg(usartCR1).ClearBits(cr1TXEIE)
			if u.txCb != nil {
				u.txCb(u.txCtx)
			}
		}
	}
}

// Deinit disables the peripheral, drops pending output and gates its clock.
func (u *UART) Deinit() error {
	if !u.initialized {
		return ErrNotReady
	}
	DisableIRQ(u.hw.irq)
	cs := EnterCritical()
	u.reg(usartCR1).Set(0)
	u.tx.Reset()
	u.rxCb, u.rxCtx = nil, nil
	u.txCb, u.txCtx = nil, nil
	if uarts[u.inst] == u {
		uarts[u.inst] = nil
	}
	cs.Exit()
	DisablePeripheralClock(u.hw.periph)
	u.initialized = false
	u.released = true
	return nil
}

// Close releases the peripheral unless Deinit already did.
func (u *UART) Close() error {
	if u.released || !u.initialized {
		return nil
	}
	return u.Deinit()
}
