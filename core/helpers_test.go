package core_test

import (
	"testing"

	"firmkit/core"
	"firmkit/targets/sim"
)

// boot powers on a simulated part and runs system init.
func boot(t *testing.T, opts ...sim.Option) *sim.Machine {
	t.Helper()
	m := sim.New(opts...)
	if err := core.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return m
}

// lastEvent returns the most recent recorded event of kind.
func lastEvent(kind uint8) (core.Event, bool) {
	var buf [core.EventRingSize]core.Event
	n := core.Events(buf[:])
	for i := n - 1; i >= 0; i-- {
		if buf[i].Kind == kind {
			return buf[i], true
		}
	}
	return core.Event{}, false
}
