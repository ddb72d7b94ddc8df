//go:build tinygo

package core

import (
	"runtime/volatile"
	"unsafe"
)

// mmio accesses peripheral registers with volatile loads and stores.
type mmio struct{}

func (mmio) Load32(addr uintptr) uint32 {
	return volatile.LoadUint32((*uint32)(unsafe.Pointer(addr)))
}

func (mmio) Store32(addr uintptr, value uint32) {
	volatile.StoreUint32((*uint32)(unsafe.Pointer(addr)), value)
}

func init() {
	bus = mmio{}
}
