package sim

import (
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"firmkit/core"
)

// I2CDevice is a slave on a simulated bus.
type I2CDevice interface {
	// Start is called when the device is addressed.
	Start(read bool)
	// Write receives one byte and returns whether it is ACKed.
	Write(c byte) bool
	// Read supplies the next byte.
	Read() byte
	// Stop ends the transaction.
	Stop()
}

type i2cState uint8

const (
	i2cIdle i2cState = iota
	i2cStarted
	i2cHeader10
	i2cAddressed
	i2cTransmit
	i2cReceive
	i2cNacked
)

// I2C models an I2C master peripheral and the bus behind it. Every wire
// event is recorded in a trace: "S", "Sr", "P", "N" for NACK and bytes as
// "0x%02X".
type I2C struct {
	cr1, cr2, oar1, ccr, trise, fltr uint32

	sr1, sr2 uint32
	dr       byte

	state    i2cState
	sr1Read  bool
	read     bool
	header   byte
	target   I2CDevice
	lastAddr uint16

	devices  map[uint16]I2CDevice
	trace    []string
	holdBusy bool
}

const (
	offI2CCR1   = 0x00
	offI2CCR2   = 0x04
	offI2COAR1  = 0x08
	offI2CDR    = 0x10
	offI2CSR1   = 0x14
	offI2CSR2   = 0x18
	offI2CCCR   = 0x1C
	offI2CTRISE = 0x20
	offI2CFLTR  = 0x24

	i2cPE    = 1 << 0
	i2cSTART = 1 << 8
	i2cSTOP  = 1 << 9
	i2cACK   = 1 << 10
	i2cSWRST = 1 << 15

	sr1SB    = 1 << 0
	sr1ADDR  = 1 << 1
	sr1BTF   = 1 << 2
	sr1ADD10 = 1 << 3
	sr1RXNE  = 1 << 6
	sr1TXE   = 1 << 7
	sr1AF    = 1 << 10
	sr1RCW0  = 0xDF00 // error flags cleared by writing 0

	sr2MSL  = 1 << 0
	sr2BUSY = 1 << 1
	sr2TRA  = 1 << 2
)

func newI2C() *I2C {
	return &I2C{devices: make(map[uint16]I2CDevice)}
}

func (d *I2C) load(off uintptr) uint32 {
	switch off {
	case offI2CCR1:
		return d.cr1
	case offI2CCR2:
		return d.cr2
	case offI2COAR1:
		return d.oar1
	case offI2CDR:
		return uint32(d.readDR())
	case offI2CSR1:
		d.sr1Read = true
		return d.sr1
	case offI2CSR2:
		return d.readSR2()
	case offI2CCCR:
		return d.ccr
	case offI2CTRISE:
		return d.trise
	case offI2CFLTR:
		return d.fltr
	}
	return 0
}

func (d *I2C) store(off uintptr, v uint32) {
	switch off {
	case offI2CCR1:
		d.writeCR1(v)
	case offI2CCR2:
		d.cr2 = v
	case offI2COAR1:
		d.oar1 = v
	case offI2CDR:
		d.writeDR(byte(v))
	case offI2CSR1:
		d.sr1 &^= ^v & sr1RCW0
	case offI2CCCR:
		d.ccr = v
	case offI2CTRISE:
		d.trise = v
	case offI2CFLTR:
		d.fltr = v
	}
}

func (d *I2C) record(tok string) {
	d.trace = append(d.trace, tok)
}

func hexToken(c byte) string {
	s := strings.ToUpper(strconv.FormatUint(uint64(c), 16))
	if len(s) == 1 {
		s = "0" + s
	}
	return "0x" + s
}

func (d *I2C) writeCR1(v uint32) {
	if v&i2cSWRST != 0 {
		*d = I2C{devices: d.devices, trace: d.trace, holdBusy: d.holdBusy, cr1: i2cSWRST}
		return
	}
	d.cr1 = v &^ (i2cSTART | i2cSTOP)
	if v&i2cPE == 0 {
		d.sr1, d.sr2 = 0, 0
		d.state = i2cIdle
		return
	}
	if v&i2cSTART != 0 {
		d.start()
	}
	if v&i2cSTOP != 0 {
		d.stop()
	}
}

func (d *I2C) start() {
	if d.state == i2cIdle {
		d.record("S")
	} else {
		d.record("Sr")
	}
	d.sr1 = sr1SB
	d.sr2 = sr2MSL | sr2BUSY
	d.state = i2cStarted
}

func (d *I2C) stop() {
	if d.state == i2cReceive {
		d.record("N")
	}
	if d.state != i2cIdle {
		d.record("P")
		if d.target != nil {
			d.target.Stop()
		}
	}
	d.target = nil
	d.state = i2cIdle
	d.sr1 &^= sr1SB | sr1ADDR | sr1BTF | sr1TXE | sr1ADD10
	d.sr2 = 0
}

func (d *I2C) address(addr uint16, read bool) {
	d.lastAddr = addr
	dev, ok := d.devices[addr]
	if !ok {
		d.record("N")
		d.sr1 |= sr1AF
		d.state = i2cNacked
		d.target = nil
		return
	}
	d.target = dev
	d.read = read
	dev.Start(read)
	d.sr1 |= sr1ADDR
	d.state = i2cAddressed
	d.sr1Read = false
}

func (d *I2C) writeDR(c byte) {
	switch d.state {
	case i2cStarted:
		d.record(hexToken(c))
		d.sr1 &^= sr1SB
		if c&0xF8 == 0xF0 {
			if c&1 == 0 {
				d.header = c
				d.sr1 |= sr1ADD10
				d.state = i2cHeader10
				return
			}
			// Repeated start with read header: the slave is still selected.
			addr := uint16(c>>1&3)<<8 | d.lastAddr&0xFF
			d.address(addr, true)
			return
		}
		d.address(uint16(c>>1), c&1 != 0)
	case i2cHeader10:
		d.record(hexToken(c))
		d.sr1 &^= sr1ADD10
		d.address(uint16(d.header>>1&3)<<8|uint16(c), false)
	case i2cTransmit:
		d.record(hexToken(c))
		d.sr1 &^= sr1BTF
		if d.target.Write(c) {
			d.sr1 |= sr1TXE | sr1BTF
		} else {
			d.record("N")
			d.sr1 &^= sr1TXE
			d.sr1 |= sr1AF
			d.state = i2cNacked
		}
	}
}

func (d *I2C) readSR2() uint32 {
	v := d.sr2
	if d.holdBusy {
		v |= sr2BUSY
	}
	if d.state == i2cAddressed && d.sr1&sr1ADDR != 0 && d.sr1Read {
		d.sr1 &^= sr1ADDR
		if d.read {
			d.state = i2cReceive
			d.sr2 &^= sr2TRA
			d.receive()
		} else {
			d.state = i2cTransmit
			d.sr2 |= sr2TRA
			d.sr1 |= sr1TXE
		}
	}
	d.sr1Read = false
	return v
}

// receive shifts the next byte from the slave into DR.
func (d *I2C) receive() {
	d.dr = d.target.Read()
	d.record(hexToken(d.dr))
	d.sr1 |= sr1RXNE
}

func (d *I2C) readDR() byte {
	c := d.dr
	if d.sr1&sr1RXNE == 0 {
		return c
	}
	d.sr1 &^= sr1RXNE
	if d.state == i2cReceive && d.cr1&i2cACK != 0 {
		d.receive()
	}
	return c
}

// Attach puts dev on the bus at addr (7- or 10-bit).
func (d *I2C) Attach(addr uint16, dev I2CDevice) {
	d.devices[addr] = dev
}

// Detach removes the device at addr.
func (d *I2C) Detach(addr uint16) {
	delete(d.devices, addr)
}

// Addresses lists attached device addresses, ascending.
func (d *I2C) Addresses() []uint16 {
	addrs := maps.Keys(d.devices)
	slices.Sort(addrs)
	return addrs
}

// Trace returns the recorded wire events.
func (d *I2C) Trace() []string {
	return slices.Clone(d.trace)
}

// ResetTrace forgets the recorded wire events.
func (d *I2C) ResetTrace() {
	d.trace = nil
}

// SetHoldBusy makes the bus-busy flag read set, as when another master or
// a stuck slave holds a line.
func (d *I2C) SetHoldBusy(on bool) {
	d.holdBusy = on
}

// Enabled reports whether the peripheral is enabled.
func (d *I2C) Enabled() bool {
	return d.cr1&i2cPE != 0
}

// StickSDA models a slave holding SDA low until it has seen clocks full
// SCL pulses. The bus reads busy meanwhile.
func (m *Machine) StickSDA(inst core.I2CInstance, sda, scl core.Pin, clocks int) {
	d := m.i2cs[inst]
	sdaPort := m.ports[sda.Port]
	sclPort := m.ports[scl.Port]
	d.holdBusy = true
	sdaPort.Drive(sda.Num, core.Low)

	bit := uint16(1) << scl.Num
	lows, released := 0, false
	sclPort.Watch(func(old, new uint16) {
		if released || (old^new)&bit == 0 {
			return
		}
		if new&bit == 0 {
			lows++
			return
		}
		if lows >= clocks {
			released = true
			sdaPort.Release(sda.Num)
			d.holdBusy = false
		}
	})
}
