//go:build tinygo

package startup

import "unsafe"

//go:extern _sidata
var _sidata [0]byte

//go:extern _sdata
var _sdata [0]byte

//go:extern _edata
var _edata [0]byte

//go:extern _sbss
var _sbss [0]byte

//go:extern _ebss
var _ebss [0]byte

//go:extern _stack_top
var _stack_top [0]byte

// LinkerSymbols returns the section bounds of the running image.
func LinkerSymbols() Symbols {
	return Symbols{
		ImageLoadStart: uintptr(unsafe.Pointer(&_sidata)),
		DataStart:      uintptr(unsafe.Pointer(&_sdata)),
		DataEnd:        uintptr(unsafe.Pointer(&_edata)),
		BssStart:       uintptr(unsafe.Pointer(&_sbss)),
		BssEnd:         uintptr(unsafe.Pointer(&_ebss)),
		StackTop:       uintptr(unsafe.Pointer(&_stack_top)),
	}
}
