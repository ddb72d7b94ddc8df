package core

import (
	"math/rand"
	"testing"
)

func TestRingBufferFIFO(t *testing.T) {
	var r RingBuffer
	if !r.IsEmpty() {
		t.Fatal("Expected new buffer to be empty")
	}
	for i := 0; i < 10; i++ {
		if !r.Put(byte(i)) {
			t.Fatalf("Put %d failed", i)
		}
	}
	if r.Len() != 10 {
		t.Errorf("Expected length 10, got %d", r.Len())
	}
	for i := 0; i < 10; i++ {
		c, ok := r.Get()
		if !ok || c != byte(i) {
			t.Errorf("Expected %d, got %d (ok=%v)", i, c, ok)
		}
	}
	if _, ok := r.Get(); ok {
		t.Error("Expected Get on empty buffer to fail")
	}
}

func TestRingBufferCapacity(t *testing.T) {
	var r RingBuffer
	for i := 0; i < UARTBufferSize; i++ {
		if !r.Put(byte(i)) {
			t.Fatalf("Put %d failed before capacity", i)
		}
	}
	if r.Put(0xAA) {
		t.Error("Expected Put on full buffer to fail")
	}
	if r.Free() != 0 {
		t.Errorf("Expected 0 free, got %d", r.Free())
	}
	if c, _ := r.Get(); c != 0 {
		t.Errorf("Expected oldest byte 0, got %d", c)
	}
	if !r.Put(0xAA) {
		t.Error("Expected Put to succeed after one Get")
	}
}

func TestRingBufferWriteAllOrNothing(t *testing.T) {
	var r RingBuffer
	if !r.Write(make([]byte, UARTBufferSize-1)) {
		t.Fatal("Expected write of capacity-1 bytes to fit")
	}
	if r.Write([]byte{1, 2}) {
		t.Error("Expected two-byte write to be rejected")
	}
	if r.Len() != UARTBufferSize-1 {
		t.Errorf("Rejected write changed length to %d", r.Len())
	}
	if !r.Write([]byte{1}) {
		t.Error("Expected one-byte write to fit")
	}
}

func TestRingBufferReset(t *testing.T) {
	var r RingBuffer
	r.Write([]byte("hello"))
	r.Reset()
	if !r.IsEmpty() || r.Len() != 0 {
		t.Errorf("Expected empty after Reset, len %d", r.Len())
	}
}

// A random interleaving of puts and gets behaves like a bounded queue,
// including across index wrap.
func TestRingBufferRandomInterleaving(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var r RingBuffer
	var model []byte
	var next byte
	for step := 0; step < 20000; step++ {
		if rng.Intn(2) == 0 {
			ok := r.Put(next)
			if ok != (len(model) < UARTBufferSize) {
				t.Fatalf("step %d: Put returned %v with %d queued", step, ok, len(model))
			}
			if ok {
				model = append(model, next)
			}
			next++
		} else {
			c, ok := r.Get()
			if ok != (len(model) > 0) {
				t.Fatalf("step %d: Get returned %v with %d queued", step, ok, len(model))
			}
			if ok {
				if c != model[0] {
					t.Fatalf("step %d: expected %d, got %d", step, model[0], c)
				}
				model = model[1:]
			}
		}
		if r.Len() != len(model) {
			t.Fatalf("step %d: expected length %d, got %d", step, len(model), r.Len())
		}
	}
}

func TestRingBufferIndexWrap(t *testing.T) {
	r := RingBuffer{head: 0xFFFFFFFE, tail: 0xFFFFFFFE}
	for i := 0; i < 4; i++ {
		if !r.Put(byte(i)) {
			t.Fatalf("Put %d failed", i)
		}
	}
	if r.Len() != 4 {
		t.Errorf("Expected length 4 across wrap, got %d", r.Len())
	}
	for i := 0; i < 4; i++ {
		if c, ok := r.Get(); !ok || c != byte(i) {
			t.Errorf("Expected %d, got %d", i, c)
		}
	}
}
