package core_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"firmkit/core"
	"firmkit/targets/sim"
)

func TestSPIEcho(t *testing.T) {
	m := boot(t)
	m.SPI(core.SPI1).Attach(sim.EchoDevice{})
	bus := core.NewSPI(core.SPI1)
	if err := bus.Init(core.DefaultSPIConfig()); err != nil {
		t.Fatalf("SPI Init failed: %v", err)
	}

	tx := make([]byte, 64)
	rand.New(rand.NewSource(3)).Read(tx)
	rx := make([]byte, len(tx))
	if err := bus.TransferBuffer(tx, rx); err != nil {
		t.Fatalf("TransferBuffer failed: %v", err)
	}
	if diff := cmp.Diff(tx, rx); diff != "" {
		t.Errorf("Echo mismatch (-sent +received):\n%s", diff)
	}

	got, err := bus.Transfer(0x5A)
	if err != nil || got != 0x5A {
		t.Errorf("Transfer returned 0x%02X, %v", got, err)
	}
	w, err := bus.Transfer16(0xBEEF)
	if err != nil || w != 0xBEEF {
		t.Errorf("Transfer16 returned 0x%04X, %v", w, err)
	}
}

func TestSPIReceiveSendsDummy(t *testing.T) {
	m := boot(t)
	bus := core.NewSPI(core.SPI2)
	if err := bus.Init(core.DefaultSPIConfig()); err != nil {
		t.Fatalf("SPI Init failed: %v", err)
	}

	rx := make([]byte, 3)
	if err := bus.Receive(rx); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if diff := cmp.Diff([]uint16{0xFF, 0xFF, 0xFF}, m.SPI(core.SPI2).Sent()); diff != "" {
		t.Errorf("Dummy frames mismatch (-want +got):\n%s", diff)
	}
	if err := bus.Transmit([]byte{1, 2}); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if got := len(m.SPI(core.SPI2).Sent()); got != 5 {
		t.Errorf("Expected 5 frames sent, got %d", got)
	}
}

func TestSPIRejectsMismatchedBuffers(t *testing.T) {
	boot(t)
	bus := core.NewSPI(core.SPI1)
	if err := bus.Tx([]byte{1}, nil); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("Expected ErrNotReady before Init, got %v", err)
	}
	if err := bus.Init(core.DefaultSPIConfig()); err != nil {
		t.Fatalf("SPI Init failed: %v", err)
	}
	if err := bus.Tx(make([]byte, 4), make([]byte, 3)); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for length mismatch, got %v", err)
	}
}

func TestSPIModeAndClock(t *testing.T) {
	m := boot(t)
	bus := core.NewSPI(core.SPI1)
	cfg := core.DefaultSPIConfig()
	cfg.CPOL, cfg.CPHA = 1, 1
	cfg.ClockHz = 10000000
	if err := bus.Init(cfg); err != nil {
		t.Fatalf("SPI Init failed: %v", err)
	}

	cr1 := m.SPI(core.SPI1).Control()
	if cr1&3 != 3 {
		t.Errorf("Expected CPOL and CPHA set, CR1=0x%04X", cr1)
	}
	if br := cr1 >> 3 & 7; br != 3 {
		t.Errorf("Expected BR=3 for 10 MHz from 84 MHz, got %d", br)
	}
	if got := bus.ClockFrequency(); got != 5250000 {
		t.Errorf("Expected 5.25 MHz, got %d", got)
	}

	got, err := bus.SetClockFrequency(42000000)
	if err != nil || got != 42000000 {
		t.Errorf("SetClockFrequency returned %d, %v", got, err)
	}
	if _, err := bus.SetClockFrequency(1000); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg below the slowest divider, got %v", err)
	}

	cfg.DataSize = 12
	if err := core.NewSPI(core.SPI3).Init(cfg); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for 12-bit frames, got %v", err)
	}
}

func TestSPIChipSelect(t *testing.T) {
	m := boot(t)
	bus := core.NewSPI(core.SPI1)
	if err := bus.Init(core.DefaultSPIConfig()); err != nil {
		t.Fatalf("SPI Init failed: %v", err)
	}
	if err := bus.Select(); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg without a CS pin, got %v", err)
	}

	cs := core.NewGPIO(core.PortE, 3)
	if err := bus.SetChipSelect(cs); err != nil {
		t.Fatalf("SetChipSelect failed: %v", err)
	}
	if m.Port(core.PortE).Output(3) != core.High {
		t.Error("Expected CS idle high")
	}
	if err := bus.Select(); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if m.Port(core.PortE).Output(3) != core.Low {
		t.Error("Expected CS low after Select")
	}
	if err := bus.Deselect(); err != nil {
		t.Fatalf("Deselect failed: %v", err)
	}
	if m.Port(core.PortE).Output(3) != core.High {
		t.Error("Expected CS high after Deselect")
	}
}

func TestSPIDeinit(t *testing.T) {
	boot(t)
	bus := core.NewSPI(core.SPI1)
	if err := bus.Init(core.DefaultSPIConfig()); err != nil {
		t.Fatalf("SPI Init failed: %v", err)
	}
	if err := bus.Deinit(); err != nil {
		t.Fatalf("Deinit failed: %v", err)
	}
	if core.PeripheralClockEnabled(core.PeriphSPI1) {
		t.Error("Expected SPI1 clock gated")
	}
	if _, err := bus.Transfer(0); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("Expected ErrNotReady after Deinit, got %v", err)
	}
}
