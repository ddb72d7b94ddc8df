package core

// deadline bounds a wait against the tick counter.
type deadline struct {
	start uint32
	ms    uint32
}

func newDeadline(ms uint32) deadline {
	return deadline{start: Ticks(), ms: ms}
}

func (d deadline) expired() bool {
	return Ticks()-d.start >= d.ms
}

// waitSet polls r until any bit of mask is set. A zero timeout polls once.
func (d deadline) waitSet(r reg, mask uint32) bool {
	for {
		if r.HasBits(mask) {
			return true
		}
		if d.expired() {
			return false
		}
		cpuRelax()
	}
}

// waitClear polls r until every bit of mask is clear.
func (d deadline) waitClear(r reg, mask uint32) bool {
	for {
		if !r.HasBits(mask) {
			return true
		}
		if d.expired() {
			return false
		}
		cpuRelax()
	}
}
