package core

// PinState is the logic level of a GPIO line.
type PinState uint8

const (
	Low PinState = iota
	High
)

func (s PinState) String() string {
	if s == High {
		return "high"
	}
	return "low"
}

// IrqPriority is a preemption priority. Lower values are more urgent. The
// value lands in the 4 implemented bits of the NVIC priority byte.
type IrqPriority uint8

const (
	PriorityHighest IrqPriority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityLowest
)

// Pin names a physical GPIO line.
type Pin struct {
	Port Port
	Num  uint8
}

// Valid reports whether the pin exists on the part.
func (p Pin) Valid() bool {
	return p.Port <= PortI && p.Num < 16
}

// String returns the board name of the pin, such as "PD12".
func (p Pin) String() string {
	return p.Port.String() + utoa(uint32(p.Num))
}

// ParsePin parses a board pin name such as "PD12" or "pb6".
func ParsePin(s string) (Pin, error) {
	if len(s) < 3 || len(s) > 4 || (s[0] != 'P' && s[0] != 'p') {
		return Pin{}, ErrInvalidArg
	}
	port := s[1] | 0x20
	if port < 'a' || port > 'i' {
		return Pin{}, ErrInvalidArg
	}
	num := 0
	for i := 2; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Pin{}, ErrInvalidArg
		}
		num = num*10 + int(s[i]-'0')
	}
	p := Pin{Port: Port(port - 'a'), Num: uint8(num)}
	if num > 15 || !p.Valid() {
		return Pin{}, ErrInvalidArg
	}
	return p, nil
}
