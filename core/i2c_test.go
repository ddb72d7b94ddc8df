package core_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"firmkit/core"
	"firmkit/targets/sim"
)

func initI2C(t *testing.T, cfg core.I2CConfig) *core.I2C {
	t.Helper()
	bus := core.NewI2C(core.I2C1)
	if err := bus.Init(cfg); err != nil {
		t.Fatalf("I2C Init failed: %v", err)
	}
	return bus
}

func TestI2CInitRoutesPins(t *testing.T) {
	m := boot(t)
	initI2C(t, core.DefaultI2CConfig())

	for _, pin := range []uint8{6, 7} {
		if got := m.Port(core.PortB).AlternateFunction(pin); got != 4 {
			t.Errorf("PB%d: expected AF4, got AF%d", pin, got)
		}
	}
	if !m.I2C(core.I2C1).Enabled() {
		t.Error("Expected peripheral enabled")
	}
}

func TestI2CInitRejectsFastPlus(t *testing.T) {
	boot(t)
	cfg := core.DefaultI2CConfig()
	cfg.Speed = core.I2CFastPlus
	if err := core.NewI2C(core.I2C1).Init(cfg); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for fast-mode plus, got %v", err)
	}
}

func TestI2CWriteRegisterFrame(t *testing.T) {
	m := boot(t)
	imu := sim.NewRegisterDevice(nil)
	m.I2C(core.I2C1).Attach(0x68, imu)
	bus := initI2C(t, core.DefaultI2CConfig())

	if err := bus.WriteRegister(0x68, 0x6B, []byte{0x00}); err != nil {
		t.Fatalf("WriteRegister failed: %v", err)
	}
	want := []string{"S", "0xD0", "0x6B", "0x00", "P"}
	if diff := cmp.Diff(want, m.I2C(core.I2C1).Trace()); diff != "" {
		t.Errorf("Bus trace mismatch (-want +got):\n%s", diff)
	}
}

func TestI2CReadRegister(t *testing.T) {
	m := boot(t)
	imu := sim.NewRegisterDevice(map[byte]byte{0x75: 0x68, 0x3B: 0x12, 0x3C: 0x34, 0x3D: 0x56})
	m.I2C(core.I2C1).Attach(0x68, imu)
	bus := initI2C(t, core.DefaultI2CConfig())

	who, err := bus.ReadRegisterByte(0x68, 0x75)
	if err != nil {
		t.Fatalf("ReadRegisterByte failed: %v", err)
	}
	if who != 0x68 {
		t.Errorf("Expected WHO_AM_I 0x68, got 0x%02X", who)
	}
	want := []string{"S", "0xD0", "0x75", "Sr", "0xD1", "0x68", "N", "P"}
	if diff := cmp.Diff(want, m.I2C(core.I2C1).Trace()); diff != "" {
		t.Errorf("Bus trace mismatch (-want +got):\n%s", diff)
	}

	out := make([]byte, 3)
	if err := bus.ReadRegister(0x68, 0x3B, out); err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0x12, 0x34, 0x56}, out); diff != "" {
		t.Errorf("Register burst mismatch (-want +got):\n%s", diff)
	}
}

func TestI2CWriteThenRead(t *testing.T) {
	m := boot(t)
	eeprom := sim.NewRegisterDevice(nil)
	m.I2C(core.I2C1).Attach(0x50, eeprom)
	bus := initI2C(t, core.DefaultI2CConfig())

	if err := bus.Write(0x50, []byte{0x10, 'g', 'o'}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := bus.Write(0x50, []byte{0x10}); err != nil {
		t.Fatalf("Pointer write failed: %v", err)
	}
	got := make([]byte, 2)
	if err := bus.Read(0x50, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "go" {
		t.Errorf("Expected %q, got %q", "go", got)
	}
}

func TestI2CScanBus(t *testing.T) {
	m := boot(t)
	for _, addr := range []uint16{0x68, 0x1D, 0x50} {
		m.I2C(core.I2C1).Attach(addr, sim.NewRegisterDevice(nil))
	}
	bus := initI2C(t, core.DefaultI2CConfig())

	found := make([]uint8, 8)
	n := bus.ScanBus(found)
	if n != 3 {
		t.Fatalf("Expected 3 devices, got %d", n)
	}
	if diff := cmp.Diff([]uint8{0x1D, 0x50, 0x68}, found[:n]); diff != "" {
		t.Errorf("Scan mismatch (-want +got):\n%s", diff)
	}

	// A short result buffer stops the scan early.
	if n := bus.ScanBus(found[:1]); n != 1 || found[0] != 0x1D {
		t.Errorf("Expected first responder only, got %d (0x%02X)", n, found[0])
	}
}

func TestI2CAddressNack(t *testing.T) {
	m := boot(t)
	bus := initI2C(t, core.DefaultI2CConfig())

	start := core.Ticks()
	if err := bus.Write(0x3C, []byte{0x00}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if core.Ticks()-start > core.I2CTimeoutMs+1 {
		t.Errorf("NACK took %d ms", core.Ticks()-start)
	}
	want := []string{"S", "0x78", "N", "P"}
	if diff := cmp.Diff(want, m.I2C(core.I2C1).Trace()); diff != "" {
		t.Errorf("Bus trace mismatch (-want +got):\n%s", diff)
	}
	evt, ok := lastEvent(core.EvtI2CNack)
	if !ok || evt.Value1 != 0x3C || evt.Value2 != 0xFFFF {
		t.Errorf("Expected address NACK event, got %+v", evt)
	}
	if bus.IsBusy() {
		t.Error("Expected bus released after NACK")
	}
}

func TestI2CDataNack(t *testing.T) {
	m := boot(t)
	dev := sim.NewRegisterDevice(nil)
	dev.NackAfter = 2
	m.I2C(core.I2C1).Attach(0x50, dev)
	bus := initI2C(t, core.DefaultI2CConfig())

	if err := bus.WriteRegister(0x50, 0x00, []byte{1, 2, 3}); !errors.Is(err, core.ErrHardware) {
		t.Errorf("Expected ErrHardware for data NACK, got %v", err)
	}
	want := []string{"S", "0xA0", "0x00", "0x01", "0x02", "N", "P"}
	if diff := cmp.Diff(want, m.I2C(core.I2C1).Trace()); diff != "" {
		t.Errorf("Bus trace mismatch (-want +got):\n%s", diff)
	}

	// NACK on the final byte is reported the same way.
	m.I2C(core.I2C1).ResetTrace()
	if err := bus.WriteRegister(0x50, 0x00, []byte{1, 2}); !errors.Is(err, core.ErrHardware) {
		t.Errorf("Expected ErrHardware for NACK on last byte, got %v", err)
	}
}

func TestI2CBusBusy(t *testing.T) {
	m := boot(t)
	m.I2C(core.I2C1).Attach(0x68, sim.NewRegisterDevice(nil))
	bus := initI2C(t, core.DefaultI2CConfig())

	m.I2C(core.I2C1).SetHoldBusy(true)
	if !bus.IsBusy() {
		t.Error("Expected IsBusy while the bus is held")
	}
	if err := bus.WriteRegisterByte(0x68, 0x6B, 0); !errors.Is(err, core.ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if len(m.I2C(core.I2C1).Trace()) != 0 {
		t.Errorf("Expected nothing on the wire, got %v", m.I2C(core.I2C1).Trace())
	}
	if _, ok := lastEvent(core.EvtI2CBusBusy); !ok {
		t.Error("Expected bus busy event")
	}
}

func TestI2CArgumentChecks(t *testing.T) {
	boot(t)
	bus := core.NewI2C(core.I2C1)
	if err := bus.Write(0x50, []byte{0}); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("Expected ErrNotReady before Init, got %v", err)
	}
	bus = initI2C(t, core.DefaultI2CConfig())
	if err := bus.Write(0x80, []byte{0}); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for 8-bit address, got %v", err)
	}
	if err := bus.Read(0x50, nil); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for empty read, got %v", err)
	}
}

func TestI2CTenBitAddressing(t *testing.T) {
	m := boot(t)
	dev := sim.NewRegisterDevice(map[byte]byte{0x01: 0xAB})
	m.I2C(core.I2C1).Attach(0x2A5, dev)
	cfg := core.DefaultI2CConfig()
	cfg.Addressing = core.I2CAddr10Bit
	bus := initI2C(t, cfg)

	if err := bus.WriteRegisterByte(0x2A5, 0x02, 0xCD); err != nil {
		t.Fatalf("WriteRegisterByte failed: %v", err)
	}
	if dev.Regs[0x02] != 0xCD {
		t.Errorf("Expected register 2 = 0xCD, got 0x%02X", dev.Regs[0x02])
	}
	got, err := bus.ReadRegisterByte(0x2A5, 0x01)
	if err != nil {
		t.Fatalf("ReadRegisterByte failed: %v", err)
	}
	if got != 0xAB {
		t.Errorf("Expected 0xAB, got 0x%02X", got)
	}
	if err := bus.Write(0x400, []byte{0}); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg above 0x3FF, got %v", err)
	}
}

func TestI2CResetBus(t *testing.T) {
	m := boot(t)
	m.I2C(core.I2C1).Attach(0x68, sim.NewRegisterDevice(nil))
	bus := initI2C(t, core.DefaultI2CConfig())

	scl := core.Pin{Port: core.PortB, Num: 6}
	sda := core.Pin{Port: core.PortB, Num: 7}
	m.StickSDA(core.I2C1, sda, scl, 3)

	if err := bus.WriteRegisterByte(0x68, 0x6B, 0); !errors.Is(err, core.ErrBusy) {
		t.Fatalf("Expected ErrBusy with SDA stuck, got %v", err)
	}
	if err := bus.ResetBus(); err != nil {
		t.Fatalf("ResetBus failed: %v", err)
	}
	evt, ok := lastEvent(core.EvtI2CRecovery)
	if !ok || evt.Value1 != 3 || evt.Value2 != 1 {
		t.Errorf("Expected recovery after 3 clocks, got %+v", evt)
	}
	if got := m.Port(core.PortB).AlternateFunction(6); got != 4 {
		t.Errorf("Expected SCL back on AF4, got AF%d", got)
	}
	if err := bus.WriteRegisterByte(0x68, 0x6B, 0); err != nil {
		t.Errorf("Expected bus usable after recovery, got %v", err)
	}
}

func TestI2CResetBusWithoutStart(t *testing.T) {
	m := boot(t)
	bus := initI2C(t, core.DefaultI2CConfig())

	const scl, sda = 1 << 6, 1 << 7
	starts, stops, sclFalls := 0, 0, 0
	m.Port(core.PortB).WatchInput(func(old, new uint16) {
		sclHigh := old&scl != 0 && new&scl != 0
		switch {
		case sclHigh && old&sda != 0 && new&sda == 0:
			starts++
		case sclHigh && old&sda == 0 && new&sda != 0:
			stops++
		case old&scl != 0 && new&scl == 0:
			sclFalls++
		}
	})

	if err := bus.ResetBus(); err != nil {
		t.Fatalf("ResetBus failed: %v", err)
	}
	if starts != 0 {
		t.Errorf("Expected no START during recovery, got %d", starts)
	}
	if stops != 1 {
		t.Errorf("Expected one STOP, got %d", stops)
	}
	if sclFalls != 1 {
		t.Errorf("Expected SCL low only for the STOP, got %d falls", sclFalls)
	}
}

func TestI2CResetBusGivesUp(t *testing.T) {
	m := boot(t)
	bus := initI2C(t, core.DefaultI2CConfig())

	m.StickSDA(core.I2C1, core.Pin{Port: core.PortB, Num: 7}, core.Pin{Port: core.PortB, Num: 6}, 100)
	if err := bus.ResetBus(); !errors.Is(err, core.ErrHardware) {
		t.Errorf("Expected ErrHardware when SDA never releases, got %v", err)
	}
	evt, _ := lastEvent(core.EvtI2CRecovery)
	if evt.Value1 != 9 {
		t.Errorf("Expected 9 recovery clocks, got %d", evt.Value1)
	}
}
