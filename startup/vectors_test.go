package startup

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVectorTableDefaults(t *testing.T) {
	vt, err := NewVectorTable(0x20020000, nil, nil)
	if err != nil {
		t.Fatalf("NewVectorTable failed: %v", err)
	}
	for _, v := range []Vector{VectorNMI, VectorHardFault, VectorMemManage, VectorBusFault,
		VectorUsageFault, VectorSVCall, VectorPendSV, VectorSysTick, IRQ(0), IRQ(NumIRQs - 1)} {
		if !vt.IsDefault(v) {
			t.Errorf("Expected %v to use the default handler", v)
		}
		if vt.Handler(v) == nil {
			t.Errorf("Expected %v to have a handler", v)
		}
	}
	if got := vt.Overridden(); len(got) != 0 {
		t.Errorf("Expected no overrides, got %v", got)
	}
}

func TestVectorTableOverrides(t *testing.T) {
	var calls []string
	vt, err := NewVectorTable(0x20020000, nil, map[Vector]Handler{
		VectorSysTick:   func() { calls = append(calls, "systick") },
		VectorHardFault: func() { calls = append(calls, "hardfault") },
		IRQ(38):         func() { calls = append(calls, "usart2") },
	})
	if err != nil {
		t.Fatalf("NewVectorTable failed: %v", err)
	}

	vt.Dispatch(VectorSysTick)
	vt.Dispatch(IRQ(38))
	vt.Dispatch(VectorHardFault)

	if diff := cmp.Diff([]string{"systick", "usart2", "hardfault"}, calls); diff != "" {
		t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
	}
	want := []Vector{VectorHardFault, VectorSysTick, IRQ(38)}
	if diff := cmp.Diff(want, vt.Overridden()); diff != "" {
		t.Errorf("overridden mismatch (-want +got):\n%s", diff)
	}

	if err := vt.Set(VectorSysTick, nil); err != nil {
		t.Fatalf("Set(nil) failed: %v", err)
	}
	if !vt.IsDefault(VectorSysTick) {
		t.Error("Expected SysTick restored to default")
	}
}

func TestVectorTableRejectsBadSlots(t *testing.T) {
	tests := []struct {
		v    Vector
		want error
	}{
		{0, ErrVectorRange},
		{7, ErrReservedVector},
		{13, ErrReservedVector},
		{NumVectors, ErrVectorRange},
	}
	for _, tt := range tests {
		_, err := NewVectorTable(0, nil, map[Vector]Handler{tt.v: func() {}})
		if !errors.Is(err, tt.want) {
			t.Errorf("vector %d: expected %v, got %v", tt.v, tt.want, err)
		}
	}
}

func TestVectorNames(t *testing.T) {
	tests := map[Vector]string{
		0:             "StackTop",
		VectorReset:   "Reset",
		VectorSysTick: "SysTick",
		9:             "Reserved",
		IRQ(40):       "IRQ40",
	}
	for v, want := range tests {
		if got := v.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
