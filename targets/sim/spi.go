package sim

import "golang.org/x/exp/slices"

// SPIDevice is the slave on a simulated SPI bus.
type SPIDevice interface {
	// Exchange receives one frame and returns the frame shifted back.
	Exchange(v uint16) uint16
}

// EchoDevice returns every frame it receives in the same transfer.
type EchoDevice struct{}

func (EchoDevice) Exchange(v uint16) uint16 { return v }

// SPI models an SPI peripheral. Frames complete as soon as DR is written.
type SPI struct {
	cr1, cr2, sr uint32
	rx           uint16
	device       SPIDevice
	sent         []uint16
}

const (
	offSPICR1 = 0x00
	offSPICR2 = 0x04
	offSPISR  = 0x08
	offSPIDR  = 0x0C

	spiSPE  = 1 << 6
	spiRXNE = 1 << 0
	spiTXE  = 1 << 1
	spiOVR  = 1 << 6
)

func newSPI() *SPI {
	return &SPI{sr: spiTXE}
}

func (s *SPI) load(off uintptr) uint32 {
	switch off {
	case offSPICR1:
		return s.cr1
	case offSPICR2:
		return s.cr2
	case offSPISR:
		return s.sr
	case offSPIDR:
		s.sr &^= spiRXNE
		return uint32(s.rx)
	}
	return 0
}

func (s *SPI) store(off uintptr, v uint32) {
	switch off {
	case offSPICR1:
		s.cr1 = v
	case offSPICR2:
		s.cr2 = v
	case offSPIDR:
		if s.cr1&spiSPE == 0 {
			return
		}
		f := uint16(v)
		s.sent = append(s.sent, f)
		in := uint16(0xFFFF)
		if s.device != nil {
			in = s.device.Exchange(f)
		}
		if s.sr&spiRXNE != 0 {
			s.sr |= spiOVR
		}
		s.rx = in
		s.sr |= spiRXNE | spiTXE
	}
}

// Attach connects dev as the slave.
func (s *SPI) Attach(dev SPIDevice) {
	s.device = dev
}

// Sent returns every frame written so far.
func (s *SPI) Sent() []uint16 {
	return slices.Clone(s.sent)
}

// Control returns CR1.
func (s *SPI) Control() uint32 {
	return s.cr1
}
