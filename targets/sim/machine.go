// Package sim is a register-level model of an STM32F407 used to run the HAL
// and the firmware on a host. It implements core.Bus, advances SysTick one
// millisecond per Step and delivers interrupts through a startup vector
// table.
package sim

import (
	"encoding/binary"
	"errors"

	"firmkit/core"
	"firmkit/startup"
)

// ErrResetRequested is raised (as a panic value) when firmware writes the
// software reset request. Run recovers it.
var ErrResetRequested = errors.New("sim: system reset requested")

// UnhandledError is raised (as a panic value) when an enabled exception
// fires into a vector that still holds the default spin handler.
type UnhandledError struct {
	Vector startup.Vector
}

func (e UnhandledError) Error() string {
	return "sim: unhandled exception " + e.Vector.String()
}

// maxChained bounds the handlers run back to back in one delivery.
const maxChained = 64

// maxWFISteps bounds a WFI with nothing enabled.
const maxWFISteps = 10000

type peripheral interface {
	load(off uintptr) uint32
	store(off uintptr, value uint32)
}

type stepper interface {
	step()
}

type region struct {
	base, size uintptr
	dev        peripheral
}

// Option configures a Machine.
type Option func(*Machine)

// WithoutHSE models a board whose crystal never starts.
func WithoutHSE() Option {
	return func(m *Machine) { m.rcc.hseBroken = true }
}

// WithUniqueID sets the factory device identifier.
func WithUniqueID(id [3]uint32) Option {
	return func(m *Machine) { m.uid = id }
}

// Machine is a simulated STM32F407.
type Machine struct {
	mem      map[uintptr]uint32
	regions  []region
	steppers []stepper
	vectors  *startup.VectorTable
	uid      [3]uint32

	scs    *scs
	rcc    *rcc
	ports  [9]*Port
	syscfg *syscfg
	exti   *exti
	usarts [4]*USART
	i2cs   [3]*I2C
	spis   [3]*SPI

	now        uint64
	inHandler  bool
	dispatched uint64
}

// New returns a powered-on machine installed as the core register bus.
func New(opts ...Option) *Machine {
	m := &Machine{
		uid: [3]uint32{0x00290031, 0x3235510B, 0x37363338},
	}
	m.build()
	for _, opt := range opts {
		opt(m)
	}
	m.install()
	return m
}

func (m *Machine) build() {
	m.mem = make(map[uintptr]uint32)
	m.regions = nil
	m.steppers = nil

	m.scs = &scs{m: m}
	m.rcc = newRCC()
	m.syscfg = &syscfg{}
	m.exti = &exti{m: m}
	m.attach(0xE000E000, 0x1000, m.scs)
	m.attach(0x40023800, 0x400, m.rcc)
	m.attach(0x40013800, 0x400, m.syscfg)
	m.attach(0x40013C00, 0x400, m.exti)
	for i := range m.ports {
		p := newPort(m, core.Port(i))
		m.ports[i] = p
		m.attach(0x40020000+uintptr(i)*0x400, 0x400, p)
	}
	usartBases := [4]uintptr{0x40011000, 0x40004400, 0x40004800, 0x40011400}
	usartAPB2 := [4]bool{true, false, false, true}
	for i, base := range usartBases {
		u := newUSART(m, usartAPB2[i])
		m.usarts[i] = u
		m.attach(base, 0x400, u)
		m.steppers = append(m.steppers, u)
	}
	for i, base := range [3]uintptr{0x40005400, 0x40005800, 0x40005C00} {
		d := newI2C()
		m.i2cs[i] = d
		m.attach(base, 0x400, d)
	}
	for i, base := range [3]uintptr{0x40013000, 0x40003800, 0x40003C00} {
		s := newSPI()
		m.spis[i] = s
		m.attach(base, 0x400, s)
	}
}

func (m *Machine) attach(base, size uintptr, dev peripheral) {
	m.regions = append(m.regions, region{base: base, size: size, dev: dev})
}

func (m *Machine) install() {
	for i, w := range m.uid {
		m.mem[0x1FFF7A10+uintptr(i)*4] = w
	}
	core.PowerOnReset()
	core.SetBus(m)
	core.SetHostHooks(core.HostHooks{
		Idle:             m.Step,
		WaitForInterrupt: m.waitForInterrupt,
	})
	if m.vectors == nil {
		m.vectors = DefaultVectors()
	}
}

// PowerOn returns every model and the core package to reset state. The
// vector table and attached bus devices are kept.
func (m *Machine) PowerOn() {
	vectors := m.vectors
	i2cDevs := make([]map[uint16]I2CDevice, len(m.i2cs))
	for i, d := range m.i2cs {
		i2cDevs[i] = d.devices
	}
	spiDevs := make([]SPIDevice, len(m.spis))
	for i, s := range m.spis {
		spiDevs[i] = s.device
	}
	hse := m.rcc.hseBroken

	m.build()
	m.rcc.hseBroken = hse
	for i, d := range m.i2cs {
		d.devices = i2cDevs[i]
	}
	for i, s := range m.spis {
		s.device = spiDevs[i]
	}
	m.now = 0
	m.vectors = vectors
	m.install()
}

// DefaultVectors routes SysTick and every HAL interrupt into core.
func DefaultVectors() *startup.VectorTable {
	overrides := map[startup.Vector]startup.Handler{
		startup.VectorSysTick: core.SysTickHandler,
	}
	for _, irq := range core.HandledIRQs() {
		overrides[startup.IRQ(int(irq))] = func() { core.DispatchIRQ(irq) }
	}
	vt, err := startup.NewVectorTable(0x20020000, nil, overrides)
	if err != nil {
		panic(err)
	}
	return vt
}

// SetVectors replaces the vector table used for delivery.
func (m *Machine) SetVectors(vt *startup.VectorTable) {
	m.vectors = vt
}

// Vectors returns the vector table used for delivery.
func (m *Machine) Vectors() *startup.VectorTable {
	return m.vectors
}

func (m *Machine) find(addr uintptr) (peripheral, uintptr) {
	for _, r := range m.regions {
		if addr >= r.base && addr < r.base+r.size {
			return r.dev, addr - r.base
		}
	}
	return nil, 0
}

// Load32 implements core.Bus.
func (m *Machine) Load32(addr uintptr) uint32 {
	if dev, off := m.find(addr); dev != nil {
		return dev.load(off)
	}
	return m.mem[addr&^3]
}

// Store32 implements core.Bus.
func (m *Machine) Store32(addr uintptr, value uint32) {
	if dev, off := m.find(addr); dev != nil {
		dev.store(off, value)
		return
	}
	m.mem[addr&^3] = value
}

// WriteBytes stores b at addr in plain memory.
func (m *Machine) WriteBytes(addr uintptr, b []byte) {
	for i, c := range b {
		a := addr + uintptr(i)
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], m.mem[a&^3])
		w[a&3] = c
		m.mem[a&^3] = binary.LittleEndian.Uint32(w[:])
	}
}

// ReadBytes loads n bytes at addr from plain memory.
func (m *Machine) ReadBytes(addr uintptr, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		a := addr + uintptr(i)
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], m.mem[a&^3])
		out[i] = w[a&3]
	}
	return out
}

// Now returns the simulated milliseconds since power-on.
func (m *Machine) Now() uint64 {
	return m.now
}

// Step advances the part by one millisecond and delivers pending
// interrupts.
func (m *Machine) Step() {
	m.now++
	m.scs.tick()
	for _, s := range m.steppers {
		s.step()
	}
	m.deliver()
}

// RunFor steps ms times.
func (m *Machine) RunFor(ms int) {
	for i := 0; i < ms; i++ {
		m.Step()
	}
}

// StepUntil steps until cond holds or limit steps pass. It reports whether
// cond held.
func (m *Machine) StepUntil(cond func() bool, limit int) bool {
	for i := 0; i < limit; i++ {
		if cond() {
			return true
		}
		m.Step()
	}
	return cond()
}

func (m *Machine) waitForInterrupt() {
	start := m.dispatched
	for i := 0; i < maxWFISteps && m.dispatched == start; i++ {
		m.Step()
	}
}

// Dispatched returns the number of handlers run so far.
func (m *Machine) Dispatched() uint64 {
	return m.dispatched
}

// Run calls fn and reports whether it ended with a reset request.
func (m *Machine) Run(fn func()) (reset bool) {
	defer func() {
		if r := recover(); r != nil {
			if r == ErrResetRequested {
				reset = true
				return
			}
			panic(r)
		}
	}()
	fn()
	return false
}

// irqLine reports whether a device line requests service.
func (m *Machine) irqLine(irq core.IRQ) bool {
	switch irq {
	case core.IRQ_EXTI0, core.IRQ_EXTI1, core.IRQ_EXTI2, core.IRQ_EXTI3, core.IRQ_EXTI4:
		return m.exti.pending()&(1<<(irq-core.IRQ_EXTI0)) != 0
	case core.IRQ_EXTI9_5:
		return m.exti.pending()&0x03E0 != 0
	case core.IRQ_EXTI15_10:
		return m.exti.pending()&0xFC00 != 0
	case core.IRQ_USART1:
		return m.usarts[0].irqLine()
	case core.IRQ_USART2:
		return m.usarts[1].irqLine()
	case core.IRQ_USART3:
		return m.usarts[2].irqLine()
	case core.IRQ_USART6:
		return m.usarts[3].irqLine()
	}
	return false
}

// nextPending picks the most urgent deliverable exception.
func (m *Machine) nextPending() (startup.Vector, bool) {
	if m.scs.sysTickPending {
		return startup.VectorSysTick, true
	}
	best := -1
	bestPrio := uint32(0x100)
	for irq := 0; irq < startup.NumIRQs; irq++ {
		if !m.scs.enabled(irq) {
			continue
		}
		if !m.scs.swPending(irq) && !m.irqLine(core.IRQ(irq)) {
			continue
		}
		if p := m.scs.priority(irq); p < bestPrio {
			best, bestPrio = irq, p
		}
	}
	if best < 0 {
		return 0, false
	}
	return startup.IRQ(best), true
}

// deliver runs pending handlers while interrupts are unmasked. Handlers do
// not nest.
func (m *Machine) deliver() {
	if m.inHandler || m.vectors == nil {
		return
	}
	m.inHandler = true
	defer func() { m.inHandler = false }()

	for n := 0; n < maxChained; n++ {
		if core.InterruptsMasked() {
			return
		}
		v, ok := m.nextPending()
		if !ok {
			return
		}
		if v == startup.VectorSysTick {
			m.scs.sysTickPending = false
		} else {
			m.scs.clearSWPending(int(v) - 16)
		}
		if m.vectors.IsDefault(v) {
			panic(UnhandledError{Vector: v})
		}
		m.dispatched++
		m.vectors.Dispatch(v)
	}
}

// Port returns the GPIO port model.
func (m *Machine) Port(p core.Port) *Port {
	return m.ports[p]
}

// USART returns the model behind inst.
func (m *Machine) USART(inst core.UARTInstance) *USART {
	return m.usarts[inst]
}

// I2C returns the model behind inst.
func (m *Machine) I2C(inst core.I2CInstance) *I2C {
	return m.i2cs[inst]
}

// SPI returns the model behind inst.
func (m *Machine) SPI(inst core.SPIInstance) *SPI {
	return m.spis[inst]
}

// SysTickEnabled reports whether firmware armed SysTick.
func (m *Machine) SysTickEnabled() bool {
	return m.scs.csr&1 != 0
}

// SysTickReload returns the programmed SysTick reload value.
func (m *Machine) SysTickReload() uint32 {
	return m.scs.rvr
}

// PriorityGroup returns AIRCR.PRIGROUP.
func (m *Machine) PriorityGroup() uint32 {
	return m.scs.priGroup
}

// SleepDeepSelected reports SCR.SLEEPDEEP.
func (m *Machine) SleepDeepSelected() bool {
	return m.scs.scr&(1<<2) != 0
}

// FaultHandlersEnabled reports the SHCSR MEMFAULTENA, BUSFAULTENA and
// USGFAULTENA bits, MemManage in bit 0.
func (m *Machine) FaultHandlersEnabled() uint32 {
	return m.scs.shcsr >> 16 & 7
}

// PendIRQ sets the NVIC software pending bit of irq.
func (m *Machine) PendIRQ(irq core.IRQ) {
	m.scs.ispr[irq/32] |= 1 << (irq % 32)
}
