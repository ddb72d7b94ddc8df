package app

import (
	"strconv"
	"strings"

	"tinygo.org/x/drivers"

	"firmkit/console"
	"firmkit/core"
	"firmkit/drivers/led"
)

func (a *App) registerCommands(r *console.Registry) {
	r.Register("version", "version", a.cmdVersion)
	r.Register("uptime", "uptime", a.cmdUptime)
	r.Register("uid", "uid", a.cmdUID)
	r.Register("clock", "clock", a.cmdClock)
	r.Register("led", "led [on|off|toggle|<pattern>|blink <on> <off>|count <n> <on> <off>]", a.cmdLED)
	r.Register("heartbeat", "heartbeat on|off", a.cmdHeartbeat)
	r.Register("scan", "scan", a.cmdScan)
	r.Register("accel", "accel", a.cmdAccel)
	r.Register("spi", "spi <byte>...", a.cmdSPI)
	r.Register("trace", "trace [clear]", a.cmdTrace)
	r.Register("reset", "reset", a.cmdReset)
}

func (a *App) cmdVersion(c *console.Console, _ []string) error {
	c.Println("firmkit " + core.Version() + " (" + core.BuildDate + ")")
	return nil
}

func (a *App) cmdUptime(c *console.Console, _ []string) error {
	ms := core.Ticks()
	frac := strconv.FormatUint(uint64(ms%1000)+1000, 10)[1:]
	c.Println("uptime: " + strconv.FormatUint(uint64(ms/1000), 10) + "." + frac + "s")
	return nil
}

func (a *App) cmdUID(c *console.Console, _ []string) error {
	id := core.UniqueID()
	c.Println(hex32(id[0]) + "-" + hex32(id[1]) + "-" + hex32(id[2]))
	return nil
}

func (a *App) cmdClock(c *console.Console, _ []string) error {
	c.Println("sysclk=" + strconv.FormatUint(uint64(core.SystemClock()), 10) +
		" pclk1=" + strconv.FormatUint(uint64(core.PClk1()), 10) +
		" pclk2=" + strconv.FormatUint(uint64(core.PClk2()), 10))
	return nil
}

func (a *App) cmdLED(c *console.Console, args []string) error {
	if len(args) == 1 {
		state := "off"
		if a.LED.IsOn() {
			state = "on"
		}
		c.Println("led: " + a.LED.Pattern().String() + " " + state)
		return nil
	}
	switch args[1] {
	case "on":
		a.LED.On()
		return nil
	case "off":
		a.LED.Off()
		return nil
	case "toggle":
		a.LED.Toggle()
		return nil
	case "blink":
		ms, err := parseUints(args[2:], 2)
		if err != nil {
			return err
		}
		return a.LED.SetBlinkTiming(ms[0], ms[1])
	case "count":
		v, err := parseUints(args[2:], 3)
		if err != nil {
			return err
		}
		return a.LED.BlinkCount(v[0], v[1], v[2])
	}
	p, ok := led.ParsePattern(args[1])
	if !ok || p == led.Custom {
		return core.ErrInvalidArg
	}
	return a.LED.SetPattern(p)
}

func (a *App) cmdHeartbeat(c *console.Console, args []string) error {
	if len(args) != 2 {
		return core.ErrInvalidArg
	}
	switch args[1] {
	case "on":
		a.heartbeat = true
	case "off":
		a.heartbeat = false
	default:
		return core.ErrInvalidArg
	}
	return nil
}

func (a *App) cmdScan(c *console.Console, _ []string) error {
	if a.I2C == nil {
		return core.ErrNotReady
	}
	var found [16]uint8
	n := a.I2C.ScanBus(found[:])
	if n == 0 {
		c.Println("no devices")
		return nil
	}
	names := make([]string, n)
	for i, addr := range found[:n] {
		names[i] = "0x" + hex8(addr)
	}
	c.Println(strings.Join(names, " "))
	return nil
}

func (a *App) cmdAccel(c *console.Console, _ []string) error {
	if a.Accel == nil {
		return core.ErrNotReady
	}
	if !a.Accel.Present() && !a.Accel.Probe() {
		return core.ErrNotFound
	}
	x, y, z, err := a.Accel.Read()
	if err != nil {
		return err
	}
	c.Println("x=" + strconv.Itoa(int(x)) + " y=" + strconv.Itoa(int(y)) + " z=" + strconv.Itoa(int(z)))
	return nil
}

func (a *App) cmdSPI(c *console.Console, args []string) error {
	if a.SPI == nil {
		return core.ErrNotReady
	}
	if len(args) < 2 {
		return core.ErrInvalidArg
	}
	w := make([]byte, len(args)-1)
	for i, s := range args[1:] {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
		if err != nil {
			return core.ErrInvalidArg
		}
		w[i] = byte(v)
	}
	if a.cs != nil {
		a.SPI.Select()
		defer a.SPI.Deselect()
	}
	r, err := exchange(a.SPI, w)
	if err != nil {
		return err
	}
	out := make([]string, len(r))
	for i, b := range r {
		out[i] = hex8(b)
	}
	c.Println(strings.Join(out, " "))
	return nil
}

// exchange clocks w out on bus and returns what came back.
func exchange(bus drivers.SPI, w []byte) ([]byte, error) {
	r := make([]byte, len(w))
	if err := bus.Tx(w, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (a *App) cmdTrace(c *console.Console, args []string) error {
	if len(args) > 1 && args[1] == "clear" {
		core.ClearEvents()
		return nil
	}
	core.DumpEvents()
	return nil
}

func (a *App) cmdReset(c *console.Console, _ []string) error {
	c.Println("resetting")
	a.UART.FlushTx(100)
	core.Reset()
	return nil
}

func parseUints(args []string, n int) ([]uint32, error) {
	if len(args) != n {
		return nil, core.ErrInvalidArg
	}
	out := make([]uint32, n)
	for i, s := range args {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, core.ErrInvalidArg
		}
		out[i] = uint32(v)
	}
	return out, nil
}

func hex8(b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}

func hex32(v uint32) string {
	return hex8(uint8(v>>24)) + hex8(uint8(v>>16)) + hex8(uint8(v>>8)) + hex8(uint8(v))
}
