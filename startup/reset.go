package startup

// Memory is word access to the address space.
type Memory interface {
	Load32(addr uintptr) uint32
	Store32(addr uintptr, value uint32)
}

// Symbols are the linker-provided section bounds consumed by the reset
// routine. All addresses are word aligned.
type Symbols struct {
	ImageLoadStart uintptr // flash address of the initialized-data image
	DataStart      uintptr // RAM address of .data
	DataEnd        uintptr
	BssStart       uintptr
	BssEnd         uintptr
	StackTop       uintptr
}

// DataSize returns the size of .data in bytes.
func (s Symbols) DataSize() uintptr {
	return s.DataEnd - s.DataStart
}

// BssSize returns the size of .bss in bytes.
func (s Symbols) BssSize() uintptr {
	return s.BssEnd - s.BssStart
}

// Halt runs when the application entry returns. It spins forever.
var Halt = func() {
	for {
		spin()
	}
}

// Runtime is the C-runtime bring-up performed by the reset handler.
type Runtime struct {
	Mem     Memory
	Syms    Symbols
	PreInit []func()
	Init    []func()
	Main    func()
}

// Reset copies .data from its load image, zero-fills .bss, runs the
// pre-init and init arrays in order, calls Main and then Halt.
func (rt *Runtime) Reset() {
	CopyData(rt.Mem, rt.Syms)
	ZeroBss(rt.Mem, rt.Syms)
	for _, fn := range rt.PreInit {
		fn()
	}
	for _, fn := range rt.Init {
		fn()
	}
	if rt.Main != nil {
		rt.Main()
	}
	Halt()
}

// CopyData copies the initialized-data image into RAM.
func CopyData(mem Memory, s Symbols) {
	src := s.ImageLoadStart
	for dst := s.DataStart; dst < s.DataEnd; dst += 4 {
		mem.Store32(dst, mem.Load32(src))
		src += 4
	}
}

// ZeroBss clears .bss.
func ZeroBss(mem Memory, s Symbols) {
	for dst := s.BssStart; dst < s.BssEnd; dst += 4 {
		mem.Store32(dst, 0)
	}
}

// NewResetTable builds a vector table whose reset slot runs rt.
func NewResetTable(rt *Runtime, overrides map[Vector]Handler) (*VectorTable, error) {
	return NewVectorTable(rt.Syms.StackTop, rt.Reset, overrides)
}
