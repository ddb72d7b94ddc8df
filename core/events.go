package core

// Event captures a HAL fault or recovery for post-mortem analysis
type Event struct {
	Kind   uint8  // Event kind code
	ID     uint8  // Peripheral instance or line
	Tick   uint32 // Tick counter at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event kind codes
const (
	EvtClockFallback = 1 // HSE or PLL never became ready
	EvtI2CTimeout    = 2 // flag wait expired (v1 = flag mask)
	EvtI2CNack       = 3 // NACK (v1 = address, v2 = data index or 0xFFFF for address)
	EvtI2CBusBusy    = 4 // bus busy at start
	EvtI2CRecovery   = 5 // bus recovery (v1 = clocks issued)
	EvtUARTLineError = 6 // v1 = status register error bits
	EvtUARTTimeout   = 7 // TX watchdog expired
	EvtSPITimeout    = 8 // flag wait expired
	EvtFault         = 9 // fault handler (v1 = exception number)
	EvtReset         = 10
)

const (
	EventRingSize = 32 // Keep last 32 events
)

var (
	eventRing     [EventRingSize]Event
	eventRingHead uint8
)

// RecordEvent stores an event stamped with the current tick. Safe from
// interrupt context.
func RecordEvent(kind, id uint8, value1, value2 uint32) {
	cs := EnterCritical()
	idx := eventRingHead
	eventRing[idx] = Event{
		Kind:   kind,
		ID:     id,
		Tick:   Ticks(),
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	cs.Exit()
}

// Events copies recorded events into out, oldest first, and returns the
// number copied.
func Events(out []Event) int {
	cs := EnterCritical()
	defer cs.Exit()
	n := 0
	for i := uint8(0); i < EventRingSize && n < len(out); i++ {
		evt := eventRing[(eventRingHead+i)%EventRingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		out[n] = evt
		n++
	}
	return n
}

// EventName returns a short name for an event kind.
func EventName(kind uint8) string {
	switch kind {
	case EvtClockFallback:
		return "CLOCK_FALLBACK"
	case EvtI2CTimeout:
		return "I2C_TIMEOUT"
	case EvtI2CNack:
		return "I2C_NACK"
	case EvtI2CBusBusy:
		return "I2C_BUSY"
	case EvtI2CRecovery:
		return "I2C_RECOVERY"
	case EvtUARTLineError:
		return "UART_LINE_ERR"
	case EvtUARTTimeout:
		return "UART_TIMEOUT"
	case EvtSPITimeout:
		return "SPI_TIMEOUT"
	case EvtFault:
		return "FAULT"
	case EvtReset:
		return "RESET"
	}
	return "UNKNOWN"
}

// DumpEvents writes the event ring through DebugPrintln, so nothing is
// written while debug output is disabled.
func DumpEvents() {
	if !debugEnabled || debugPrintln == nil {
		return
	}
	var buf [EventRingSize]Event
	n := Events(buf[:])
	DebugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range buf[:n] {
		DebugPrintln("[EVENTS] " + EventName(evt.Kind) +
			" id=" + utoa(uint32(evt.ID)) +
			" tick=" + utoa(evt.Tick) +
			" v1=0x" + hex32(evt.Value1) +
			" v2=0x" + hex32(evt.Value2))
	}
	DebugPrintln("[EVENTS] === End Dump ===")
}

// ClearEvents clears the event ring
func ClearEvents() {
	cs := EnterCritical()
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
	cs.Exit()
}
