package sim

import "golang.org/x/exp/slices"

// USART models one USART with a holding register, a shift register and a
// receive queue. Each Step shifts out as many frames as the programmed
// baud rate allows in a millisecond.
type USART struct {
	m    *Machine
	apb2 bool

	sr, brr, cr1, cr2, cr3 uint32

	rxData  uint32
	rxQueue []uint32 // pending frames, error bits in 16-23

	holding    byte
	hasHolding bool
	shift      byte
	shifting   bool

	wire     []byte
	loopback bool
	stalled  bool
}

const (
	offSR  = 0x00
	offDR  = 0x04
	offBRR = 0x08
	offCR1 = 0x0C
	offCR2 = 0x10
	offCR3 = 0x14

	usartTXE  = 1 << 7
	usartTC   = 1 << 6
	usartRXNE = 1 << 5
	usartORE  = 1 << 3
	usartErr  = 0x0F

	cr1UE     = 1 << 13
	cr1TE     = 1 << 3
	cr1RE     = 1 << 2
	cr1TXEIE  = 1 << 7
	cr1TCIE   = 1 << 6
	cr1RXNEIE = 1 << 5
	cr1PEIE   = 1 << 8
)

func newUSART(m *Machine, apb2 bool) *USART {
	return &USART{m: m, apb2: apb2, sr: usartTXE | usartTC}
}

func (u *USART) load(off uintptr) uint32 {
	switch off {
	case offSR:
		sr := u.sr
		if u.stalled {
			sr &^= usartTXE | usartTC
		}
		return sr
	case offDR:
		u.sr &^= usartRXNE | usartErr
		return u.rxData
	case offBRR:
		return u.brr
	case offCR1:
		return u.cr1
	case offCR2:
		return u.cr2
	case offCR3:
		return u.cr3
	}
	return 0
}

func (u *USART) store(off uintptr, v uint32) {
	switch off {
	case offSR:
		// RXNE and TC are rc_w0.
		u.sr &^= ^v & (usartRXNE | usartTC)
	case offDR:
		u.writeDR(byte(v))
	case offBRR:
		u.brr = v & 0xFFFF
	case offCR1:
		u.cr1 = v
	case offCR2:
		u.cr2 = v
	case offCR3:
		u.cr3 = v
	}
}

func (u *USART) enabled(bit uint32) bool {
	return u.cr1&cr1UE != 0 && u.cr1&bit != 0
}

func (u *USART) writeDR(c byte) {
	if !u.enabled(cr1TE) {
		return
	}
	u.sr &^= usartTC
	if u.stalled || u.shifting {
		u.holding, u.hasHolding = c, true
		u.sr &^= usartTXE
		return
	}
	u.shift, u.shifting = c, true
	u.sr |= usartTXE
}

// framesPerStep converts the programmed divider into frames per millisecond.
func (u *USART) framesPerStep() int {
	if u.brr == 0 {
		return 1
	}
	n := int(u.m.pclk(u.apb2) / u.brr / 10 / 1000)
	if n < 1 {
		n = 1
	}
	return n
}

func (u *USART) step() {
	if u.cr1&cr1UE == 0 {
		return
	}
	if !u.stalled {
		for n := u.framesPerStep(); n > 0 && u.shifting; n-- {
			u.wire = append(u.wire, u.shift)
			if u.loopback {
				u.rxQueue = append(u.rxQueue, uint32(u.shift))
			}
			u.shifting = false
			if u.hasHolding {
				u.shift, u.shifting = u.holding, true
				u.hasHolding = false
				u.sr |= usartTXE
			}
		}
		if !u.shifting && !u.hasHolding {
			u.sr |= usartTC | usartTXE
		}
	}
	if u.enabled(cr1RE) && len(u.rxQueue) > 0 {
		if u.sr&usartRXNE != 0 {
			return
		}
		frame := u.rxQueue[0]
		u.rxQueue = u.rxQueue[1:]
		u.rxData = frame & 0x1FF
		u.sr |= usartRXNE | (frame>>16)&usartErr
	}
}

func (u *USART) irqLine() bool {
	sr := u.load(offSR)
	return (u.cr1&cr1TXEIE != 0 && sr&usartTXE != 0) ||
		(u.cr1&cr1TCIE != 0 && sr&usartTC != 0) ||
		(u.cr1&cr1RXNEIE != 0 && sr&(usartRXNE|usartORE) != 0)
}

// Wire returns every frame shifted out so far.
func (u *USART) Wire() []byte {
	return slices.Clone(u.wire)
}

// ClearWire forgets the transmitted frames.
func (u *USART) ClearWire() {
	u.wire = nil
}

// SetLoopback ties TX to RX.
func (u *USART) SetLoopback(on bool) {
	u.loopback = on
}

// SetStalled holds the transmitter: TXE and TC read 0 and nothing shifts.
func (u *USART) SetStalled(on bool) {
	u.stalled = on
}

// Inject queues frames for reception.
func (u *USART) Inject(b ...byte) {
	for _, c := range b {
		u.rxQueue = append(u.rxQueue, uint32(c))
	}
}

// InjectString queues s for reception.
func (u *USART) InjectString(s string) {
	u.Inject([]byte(s)...)
}

// InjectError queues a frame received with the given SR error bits
// (parity 0x1, framing 0x2, noise 0x4, overrun 0x8).
func (u *USART) InjectError(c byte, errBits uint32) {
	u.rxQueue = append(u.rxQueue, uint32(c)|(errBits&usartErr)<<16)
}

// BaudRate returns the rate implied by the divider.
func (u *USART) BaudRate() uint32 {
	if u.brr == 0 {
		return 0
	}
	return u.m.pclk(u.apb2) / u.brr
}

// Control returns CR1, CR2 and CR3.
func (u *USART) Control() (cr1, cr2, cr3 uint32) {
	return u.cr1, u.cr2, u.cr3
}
