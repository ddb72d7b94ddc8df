package core_test

import (
	"errors"
	"strings"
	"testing"

	"firmkit/core"
)

func TestGPIOOutput(t *testing.T) {
	m := boot(t)
	led := core.NewGPIO(core.PortD, 12)

	if err := led.SetMode(core.ModeOutput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if !core.PeripheralClockEnabled(core.PeriphGPIOD) {
		t.Error("Expected GPIOD clock enabled by SetMode")
	}
	if got := m.Port(core.PortD).ModeOf(12); got != 1 {
		t.Errorf("Expected MODER output (1), got %d", got)
	}

	led.SetHigh()
	if m.Port(core.PortD).Output(12) != core.High {
		t.Error("Expected pin high after SetHigh")
	}
	led.Toggle()
	if m.Port(core.PortD).Output(12) != core.Low {
		t.Error("Expected pin low after Toggle")
	}
	led.Write(core.High)
	if !led.IsHigh() {
		t.Error("Expected push-pull output to read back high")
	}
	led.SetLow()
	if !led.IsLow() {
		t.Error("Expected output to read back low")
	}
}

func TestGPIOInputPull(t *testing.T) {
	m := boot(t)
	btn := core.NewGPIO(core.PortA, 0)

	if err := btn.SetMode(core.ModeInput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := btn.SetPull(core.PullUp); err != nil {
		t.Fatalf("SetPull failed: %v", err)
	}
	if btn.Read() != core.High {
		t.Error("Expected pulled-up input to read high")
	}
	m.Port(core.PortA).Drive(0, core.Low)
	if btn.Read() != core.Low {
		t.Error("Expected driven input to read low")
	}
	m.Port(core.PortA).Release(0)
	if btn.Read() != core.High {
		t.Error("Expected released input to read high again")
	}
	if err := btn.SetPull(core.Pull(7)); !errors.Is(err, core.ErrUnspecified) {
		t.Errorf("Expected ErrUnspecified for bad pull, got %v", err)
	}
}

func TestGPIOAlternateFunction(t *testing.T) {
	m := boot(t)
	g := core.NewGPIO(core.PortB, 10)

	if err := g.SetMode(core.ModeAlternate); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := g.SetAlternateFunction(7); err != nil {
		t.Fatalf("SetAlternateFunction failed: %v", err)
	}
	if got := m.Port(core.PortB).AlternateFunction(10); got != 7 {
		t.Errorf("Expected AF7, got AF%d", got)
	}
	if err := g.SetAlternateFunction(16); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for AF16, got %v", err)
	}
}

func TestGPIOInvalidPin(t *testing.T) {
	boot(t)

	g := core.NewGPIO(core.PortA, 16)
	if err := g.SetMode(core.ModeOutput); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for pin 16, got %v", err)
	}
	g = core.NewGPIO(core.Port(12), 0)
	if err := g.SetMode(core.ModeOutput); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for unknown port, got %v", err)
	}
}

func TestGPIOLock(t *testing.T) {
	m := boot(t)
	g := core.NewGPIO(core.PortC, 3)
	other := core.NewGPIO(core.PortC, 4)

	if err := g.SetMode(core.ModeOutput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := g.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !g.Locked() || !m.Port(core.PortC).Locked(3) {
		t.Fatal("Expected pin locked")
	}

	for name, err := range map[string]error{
		"SetMode":  g.SetMode(core.ModeInput),
		"SetPull":  g.SetPull(core.PullDown),
		"SetSpeed": g.SetSpeed(core.SpeedHigh),
		"SetAF":    g.SetAlternateFunction(1),
	} {
		if !errors.Is(err, core.ErrPermission) {
			t.Errorf("%s: expected ErrPermission, got %v", name, err)
		}
	}
	if got := m.Port(core.PortC).ModeOf(3); got != 1 {
		t.Errorf("Locked pin mode changed to %d", got)
	}

	// Level writes still work on a locked output.
	g.SetHigh()
	if m.Port(core.PortC).Output(3) != core.High {
		t.Error("Expected locked output to follow SetHigh")
	}

	// The port lock register is frozen after the first lock.
	if err := other.SetMode(core.ModeOutput); err != nil {
		t.Fatalf("SetMode on unlocked pin failed: %v", err)
	}
	if err := other.Lock(); !errors.Is(err, core.ErrPermission) {
		t.Errorf("Expected ErrPermission locking a second pin, got %v", err)
	}
	if other.Locked() {
		t.Error("Expected second pin to stay unlocked")
	}
	if err := g.Lock(); err != nil {
		t.Errorf("Expected relocking a locked pin to succeed, got %v", err)
	}
}

func TestEXTIButton(t *testing.T) {
	m := boot(t)
	btn := core.NewGPIO(core.PortA, 0)
	if err := btn.SetMode(core.ModeInput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	var calls int
	var gotCtx any
	cb := func(ctx any) {
		calls++
		gotCtx = ctx
	}
	if err := btn.EnableInterrupt(core.TriggerRising, cb, "button"); err != nil {
		t.Fatalf("EnableInterrupt failed: %v", err)
	}
	if !core.IRQEnabled(core.IRQ_EXTI0) {
		t.Error("Expected EXTI0 enabled in the NVIC")
	}

	port := m.Port(core.PortA)
	port.Drive(0, core.High)
	if calls != 1 {
		t.Fatalf("Expected one callback on rising edge, got %d", calls)
	}
	if gotCtx != "button" {
		t.Errorf("Expected ctx %q, got %v", "button", gotCtx)
	}
	if m.EXTIPending()&1 != 0 {
		t.Error("Expected pending bit cleared")
	}

	port.Drive(0, core.Low)
	if calls != 1 {
		t.Errorf("Falling edge fired a rising-only line, calls=%d", calls)
	}

	if err := btn.DisableInterrupt(); err != nil {
		t.Fatalf("DisableInterrupt failed: %v", err)
	}
	port.Drive(0, core.High)
	if calls != 1 {
		t.Errorf("Expected no callback after DisableInterrupt, got %d", calls)
	}
}

func TestEXTIBothEdgesSharedVector(t *testing.T) {
	m := boot(t)
	g := core.NewGPIO(core.PortE, 11)
	if err := g.SetMode(core.ModeInput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	calls := 0
	if err := g.EnableInterrupt(core.TriggerBoth, func(any) { calls++ }, nil); err != nil {
		t.Fatalf("EnableInterrupt failed: %v", err)
	}
	m.Port(core.PortE).Drive(11, core.High)
	m.Port(core.PortE).Drive(11, core.Low)
	if calls != 2 {
		t.Errorf("Expected two callbacks, got %d", calls)
	}
}

func TestEXTILineOwnedByOtherPort(t *testing.T) {
	m := boot(t)
	a := core.NewGPIO(core.PortA, 1)
	b := core.NewGPIO(core.PortB, 1)
	for _, g := range []*core.GPIO{a, b} {
		if err := g.SetMode(core.ModeInput); err != nil {
			t.Fatalf("SetMode failed: %v", err)
		}
	}

	var fromA, fromB int
	if err := a.EnableInterrupt(core.TriggerRising, func(any) { fromA++ }, nil); err != nil {
		t.Fatalf("EnableInterrupt failed: %v", err)
	}
	if err := b.EnableInterrupt(core.TriggerRising, func(any) { fromB++ }, nil); !errors.Is(err, core.ErrBusy) {
		t.Fatalf("Expected ErrBusy for line held by port A, got %v", err)
	}

	// Port A still owns the line.
	m.Port(core.PortA).Drive(1, core.High)
	if fromA != 1 || fromB != 0 {
		t.Errorf("Expected only port A callback, got A=%d B=%d", fromA, fromB)
	}

	// Disabling from port B leaves A's registration alone.
	if err := b.DisableInterrupt(); err != nil {
		t.Fatalf("DisableInterrupt failed: %v", err)
	}
	m.Port(core.PortA).Drive(1, core.Low)
	m.Port(core.PortA).Drive(1, core.High)
	if fromA != 2 {
		t.Errorf("Expected port A still registered, got %d callbacks", fromA)
	}
}

func TestEXTIRequiresInput(t *testing.T) {
	boot(t)
	g := core.NewGPIO(core.PortA, 5)
	if err := g.SetMode(core.ModeOutput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := g.EnableInterrupt(core.TriggerRising, func(any) {}, nil); !errors.Is(err, core.ErrInvalidArg) {
		t.Errorf("Expected ErrInvalidArg for output pin, got %v", err)
	}
}

func TestEXTISoftwareTrigger(t *testing.T) {
	m := boot(t)
	g := core.NewGPIO(core.PortC, 13)
	if err := g.SetMode(core.ModeInput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	calls := 0
	if err := g.EnableInterrupt(core.TriggerFalling, func(any) { calls++ }, nil); err != nil {
		t.Fatalf("EnableInterrupt failed: %v", err)
	}
	if err := g.SetInterruptPriority(core.PriorityHigh); err != nil {
		t.Fatalf("SetInterruptPriority failed: %v", err)
	}
	if got := core.IRQPriority(core.IRQ_EXTI15_10); got != core.PriorityHigh {
		t.Errorf("Expected shared vector priority %d, got %d", core.PriorityHigh, got)
	}
	g.TriggerSoftwareInterrupt()
	m.Step()
	if calls != 1 {
		t.Errorf("Expected one callback from software trigger, got %d", calls)
	}
}

func TestEXTIFallingEdgeContext(t *testing.T) {
	m := boot(t)
	g := core.NewGPIO(core.PortC, 13)
	if err := g.SetMode(core.ModeInput); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	type button struct{ presses int }
	b := &button{}
	cb := func(ctx any) { ctx.(*button).presses++ }
	if err := g.EnableInterrupt(core.TriggerFalling, cb, b); err != nil {
		t.Fatalf("EnableInterrupt failed: %v", err)
	}

	m.FireEXTI(13)
	if b.presses != 1 {
		t.Fatalf("Expected exactly one callback, got %d", b.presses)
	}

	if err := g.DisableInterrupt(); err != nil {
		t.Fatalf("DisableInterrupt failed: %v", err)
	}
	m.FireEXTI(13)
	m.Step()
	if b.presses != 1 {
		t.Errorf("Expected no callback after DisableInterrupt, got %d", b.presses)
	}
}

func TestParsePin(t *testing.T) {
	tests := []struct {
		name string
		want core.Pin
		ok   bool
	}{
		{"PD12", core.Pin{Port: core.PortD, Num: 12}, true},
		{"pb6", core.Pin{Port: core.PortB, Num: 6}, true},
		{"PA0", core.Pin{Port: core.PortA, Num: 0}, true},
		{"PI15", core.Pin{Port: core.PortI, Num: 15}, true},
		{"PJ1", core.Pin{}, false},
		{"PA16", core.Pin{}, false},
		{"PA", core.Pin{}, false},
		{"D12", core.Pin{}, false},
		{"PA1x", core.Pin{}, false},
	}
	for _, tt := range tests {
		got, err := core.ParsePin(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("ParsePin(%q): expected ok=%v, got err %v", tt.name, tt.ok, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePin(%q): expected %v, got %v", tt.name, tt.want, got)
		}
		if tt.ok && got.String() != strings.ToUpper(tt.name) {
			t.Errorf("Expected %q to print as %q, got %q", tt.name, strings.ToUpper(tt.name), got.String())
		}
	}
}
