package sim

import (
	"testing"

	"firmkit/core"
	"firmkit/startup"
)

func TestUnhandledInterruptPanics(t *testing.T) {
	m := New()
	vt, err := startup.NewVectorTable(0x20020000, nil, nil)
	if err != nil {
		t.Fatalf("NewVectorTable failed: %v", err)
	}
	m.SetVectors(vt)

	core.EnableIRQ(core.IRQ_SPI1)
	defer func() {
		r := recover()
		u, ok := r.(UnhandledError)
		if !ok {
			t.Fatalf("Expected UnhandledError panic, got %v", r)
		}
		if u.Vector != startup.IRQ(int(core.IRQ_SPI1)) {
			t.Errorf("Expected vector for SPI1, got %v", u.Vector)
		}
	}()
	m.PendIRQ(core.IRQ_SPI1)
	m.Step()
}

func TestPriorityOrder(t *testing.T) {
	m := New()
	var order []string
	vt, err := startup.NewVectorTable(0x20020000, nil, map[startup.Vector]startup.Handler{
		startup.IRQ(int(core.IRQ_SPI1)): func() { order = append(order, "spi1") },
		startup.IRQ(int(core.IRQ_SPI2)): func() { order = append(order, "spi2") },
	})
	if err != nil {
		t.Fatalf("NewVectorTable failed: %v", err)
	}
	m.SetVectors(vt)

	core.SetIRQPriority(core.IRQ_SPI1, core.PriorityLow)
	core.SetIRQPriority(core.IRQ_SPI2, core.PriorityHigh)
	core.EnableIRQ(core.IRQ_SPI1)
	core.EnableIRQ(core.IRQ_SPI2)
	m.PendIRQ(core.IRQ_SPI1)
	m.PendIRQ(core.IRQ_SPI2)
	m.Step()

	if len(order) != 2 || order[0] != "spi2" || order[1] != "spi1" {
		t.Errorf("Expected [spi2 spi1], got %v", order)
	}
}

func TestPowerOnKeepsDevices(t *testing.T) {
	m := New()
	dev := NewRegisterDevice(nil)
	m.I2C(core.I2C1).Attach(0x50, dev)
	m.SPI(core.SPI1).Attach(EchoDevice{})
	core.SetTicks(1234)

	m.PowerOn()
	if core.Ticks() != 0 {
		t.Errorf("Expected ticks reset, got %d", core.Ticks())
	}
	if got := m.I2C(core.I2C1).Addresses(); len(got) != 1 || got[0] != 0x50 {
		t.Errorf("Expected I2C device kept, got %v", got)
	}
	if m.Now() != 0 {
		t.Errorf("Expected clock reset, got %d", m.Now())
	}
}

func TestMemoryBytes(t *testing.T) {
	m := New()
	m.WriteBytes(0x20000001, []byte{0xAA, 0xBB, 0xCC})
	if got := m.Load32(0x20000000); got != 0xCCBBAA00 {
		t.Errorf("Expected 0xCCBBAA00, got 0x%08X", got)
	}
	if got := m.ReadBytes(0x20000002, 2); got[0] != 0xBB || got[1] != 0xCC {
		t.Errorf("Unexpected bytes % X", got)
	}
}
