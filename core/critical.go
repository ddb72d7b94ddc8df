package core

// noCopy makes go vet flag copies of the enclosing struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// CriticalSection masks maskable interrupts from EnterCritical until Exit
// and then restores the mask that was in effect on entry, so sections nest.
//
//	cs := core.EnterCritical()
//	defer cs.Exit()
type CriticalSection struct {
	_     noCopy
	state State
}

// EnterCritical snapshots the interrupt mask and disables interrupts.
func EnterCritical() CriticalSection {
	return CriticalSection{state: disableInterrupts()}
}

// Exit restores the mask saved by EnterCritical.
func (cs *CriticalSection) Exit() {
	restoreInterrupts(cs.state)
}
