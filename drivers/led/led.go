// Package led drives an indicator LED through timed blink patterns. The
// engine keeps no clock of its own: the owner calls Update with the
// milliseconds elapsed since the previous call, typically from the main
// loop using the system tick counter.
package led

import "firmkit/core"

// Pin is the output line driving the LED. *core.GPIO satisfies it.
type Pin interface {
	Write(s core.PinState)
}

// Polarity selects which line level lights the LED.
type Polarity uint8

const (
	ActiveHigh Polarity = iota
	ActiveLow
)

// Pattern is a blink program.
type Pattern uint8

const (
	Solid     Pattern = iota // steady, on or off
	Blink                    // 500/500 ms
	FastBlink                // 100/100 ms
	SlowBlink                // 1000/1000 ms
	Heartbeat                // two 100 ms pulses, 100 ms apart, then 700 ms dark
	SOS                      // ... --- ... in morse
	Custom                   // caller timing from SetBlinkTiming
)

var patternNames = [...]string{"solid", "blink", "fast", "slow", "heartbeat", "sos", "custom"}

func (p Pattern) String() string {
	if int(p) < len(patternNames) {
		return patternNames[p]
	}
	return "unknown"
}

// ParsePattern returns the pattern named s.
func ParsePattern(s string) (Pattern, bool) {
	for i, name := range patternNames {
		if name == s {
			return Pattern(i), true
		}
	}
	return Solid, false
}

// Default timings in milliseconds.
const (
	BlinkOnMs      = 500
	BlinkOffMs     = 500
	CountOnMs      = 200
	CountOffMs     = 200
	sosDotMs       = 200
	sosDashMs      = 3 * sosDotMs
	sosLetterGapMs = 3 * sosDotMs
	sosWordGapMs   = 7 * sosDotMs
)

type phase struct {
	on bool
	ms uint32
}

var (
	fastPhases      = []phase{{true, 100}, {false, 100}}
	slowPhases      = []phase{{true, 1000}, {false, 1000}}
	heartbeatPhases = []phase{{true, 100}, {false, 100}, {true, 100}, {false, 700}}
	sosPhases       = []phase{
		{true, sosDotMs}, {false, sosDotMs},
		{true, sosDotMs}, {false, sosDotMs},
		{true, sosDotMs}, {false, sosLetterGapMs},
		{true, sosDashMs}, {false, sosDotMs},
		{true, sosDashMs}, {false, sosDotMs},
		{true, sosDashMs}, {false, sosLetterGapMs},
		{true, sosDotMs}, {false, sosDotMs},
		{true, sosDotMs}, {false, sosDotMs},
		{true, sosDotMs}, {false, sosWordGapMs},
	}
)

// Driver runs one LED. It is not safe for concurrent use.
type Driver struct {
	pin      Pin
	polarity Polarity
	pattern  Pattern
	on       bool

	elapsed uint32
	step    int

	blink     [2]phase // Blink timing
	custom    [2]phase // Custom and BlinkCount timing
	remaining uint32   // blinks left in a BlinkCount run
}

// New returns a driver with the LED off.
func New(pin Pin, polarity Polarity) *Driver {
	d := &Driver{
		pin:      pin,
		polarity: polarity,
		blink:    [2]phase{{true, BlinkOnMs}, {false, BlinkOffMs}},
		custom:   [2]phase{{true, BlinkOnMs}, {false, BlinkOffMs}},
	}
	d.setPhysical(false)
	return d
}

func (d *Driver) setPhysical(on bool) {
	d.on = on
	level := core.Low
	if on == (d.polarity == ActiveHigh) {
		level = core.High
	}
	d.pin.Write(level)
}

func (d *Driver) setSolid(on bool) {
	d.pattern = Solid
	d.remaining = 0
	d.elapsed, d.step = 0, 0
	d.setPhysical(on)
}

// On stops any pattern and lights the LED.
func (d *Driver) On() { d.setSolid(true) }

// Off stops any pattern and darkens the LED.
func (d *Driver) Off() { d.setSolid(false) }

// Toggle stops any pattern and inverts the LED.
func (d *Driver) Toggle() { d.setSolid(!d.on) }

// IsOn reports whether the LED is lit.
func (d *Driver) IsOn() bool {
	return d.on
}

// Pattern returns the running pattern.
func (d *Driver) Pattern() Pattern {
	return d.pattern
}

// SetPattern starts p from its first phase. Solid lights the LED.
func (d *Driver) SetPattern(p Pattern) error {
	if p > Custom {
		return core.ErrInvalidArg
	}
	if p == Solid {
		d.On()
		return nil
	}
	d.start(p)
	return nil
}

func (d *Driver) start(p Pattern) {
	d.pattern = p
	d.elapsed, d.step = 0, 0
	d.setPhysical(d.phases()[0].on)
}

// SetBlinkTiming sets the Custom on and off times and starts Custom.
func (d *Driver) SetBlinkTiming(onMs, offMs uint32) error {
	if onMs == 0 || offMs == 0 {
		return core.ErrInvalidArg
	}
	d.custom = [2]phase{{true, onMs}, {false, offMs}}
	d.remaining = 0
	d.start(Custom)
	return nil
}

// BlinkCount flashes the LED n times and then leaves it solid off. A zero
// count turns the LED off at once.
func (d *Driver) BlinkCount(n, onMs, offMs uint32) error {
	if onMs == 0 || offMs == 0 {
		return core.ErrInvalidArg
	}
	if n == 0 {
		d.Off()
		return nil
	}
	d.custom = [2]phase{{true, onMs}, {false, offMs}}
	d.start(Custom)
	d.remaining = n
	return nil
}

// Remaining returns the blinks left in a BlinkCount run.
func (d *Driver) Remaining() uint32 {
	return d.remaining
}

func (d *Driver) phases() []phase {
	switch d.pattern {
	case Blink:
		return d.blink[:]
	case FastBlink:
		return fastPhases
	case SlowBlink:
		return slowPhases
	case Heartbeat:
		return heartbeatPhases
	case SOS:
		return sosPhases
	case Custom:
		return d.custom[:]
	}
	return nil
}

// Update advances the pattern by elapsedMs. Time left over at a phase
// boundary carries into the next phase so the cadence does not drift.
func (d *Driver) Update(elapsedMs uint32) {
	phases := d.phases()
	if phases == nil {
		return
	}
	d.elapsed += elapsedMs
	for d.elapsed >= phases[d.step].ms {
		d.elapsed -= phases[d.step].ms
		d.step++
		if d.step == len(phases) {
			d.step = 0
			if d.remaining > 0 {
				d.remaining--
				if d.remaining == 0 {
					d.setSolid(false)
					return
				}
			}
		}
		if on := phases[d.step].on; on != d.on {
			d.setPhysical(on)
		}
	}
}
