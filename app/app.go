// Package app is the firmware application: it brings the board up, prints
// the banner, runs the LED pattern engine and the heartbeat, and serves
// the command console on the debug UART.
package app

import (
	"strconv"
	"sync/atomic"

	"firmkit/console"
	"firmkit/core"
	"firmkit/drivers/led"
	"firmkit/startup"
)

// App holds the board peripherals. Setup must run before Loop.
type App struct {
	board *Board

	UART    *core.UART
	LED     *led.Driver
	I2C     *core.I2C
	SPI     *core.SPI
	Accel   *Accel
	Console *console.Console

	ledPin *core.GPIO
	button *core.GPIO
	cs     *core.GPIO

	heartbeat bool
	lastTick  uint32
	lastBeat  uint32

	presses uint32 // written by the button interrupt
}

// New returns an application for board. A nil board selects DefaultBoard.
func New(board *Board) *App {
	if board == nil {
		board = DefaultBoard()
	}
	return &App{board: board, heartbeat: true}
}

// Board returns the board description.
func (a *App) Board() *Board {
	return a.board
}

// Setup initializes the system, the LED and the console UART, prints the
// banner and brings up the optional peripherals. A failure before the
// console is up is returned; later failures are reported on the console
// and the peripheral is left out.
func (a *App) Setup() error {
	if err := a.board.Validate(); err != nil {
		return err
	}
	if err := core.Init(); err != nil {
		return err
	}
	core.EnableFaultHandlers()
	if err := a.setupLED(); err != nil {
		return err
	}
	if err := a.setupUART(); err != nil {
		return err
	}

	core.SetDebugWriter(func(s string) {
		a.UART.Print(s + "\r\n")
	})
	core.SetDebugEnabled(true)
	a.banner()

	if err := a.setupButton(); err != nil {
		a.report("button", err)
	}
	if err := a.setupI2C(); err != nil {
		a.report("i2c", err)
	}
	if err := a.setupSPI(); err != nil {
		a.report("spi", err)
	}

	a.Console = console.New(a.UART, nil)
	a.registerCommands(a.Console.Registry())
	if err := a.Console.Start(); err != nil {
		return err
	}
	a.UART.Print("System initialized successfully.\r\n")
	a.Console.Print(console.Prompt)

	a.lastTick = core.Ticks()
	a.lastBeat = a.lastTick
	return nil
}

func (a *App) setupLED() error {
	pin, _ := core.ParsePin(a.board.LED)
	polarity, _ := a.board.Polarity()
	pattern, _ := led.ParsePattern(a.board.Pattern)

	a.ledPin = core.NewGPIOPin(pin)
	if err := a.ledPin.SetMode(core.ModeOutput); err != nil {
		return err
	}
	if err := a.ledPin.SetSpeed(core.SpeedLow); err != nil {
		return err
	}
	if err := a.ledPin.SetPull(core.PullNone); err != nil {
		return err
	}
	a.LED = led.New(a.ledPin, polarity)
	return a.LED.SetPattern(pattern)
}

func (a *App) setupUART() error {
	inst, _ := a.board.UARTInstance()
	cfg, err := a.board.UARTConfig()
	if err != nil {
		return err
	}
	a.UART = core.NewUART(inst)
	return a.UART.Init(cfg)
}

func (a *App) setupButton() error {
	if a.board.Button == "" {
		return nil
	}
	pin, err := core.ParsePin(a.board.Button)
	if err != nil {
		return err
	}
	a.button = core.NewGPIOPin(pin)
	if err := a.button.SetMode(core.ModeInput); err != nil {
		return err
	}
	if err := a.button.SetPull(core.PullDown); err != nil {
		return err
	}
	return a.button.EnableInterrupt(core.TriggerRising, a.onButton, nil)
}

// onButton runs in interrupt context.
func (a *App) onButton(any) {
	atomic.AddUint32(&a.presses, 1)
}

func (a *App) setupI2C() error {
	if a.board.I2C.Disable {
		return nil
	}
	inst, _ := a.board.I2CInstance()
	cfg, err := a.board.I2CConfig()
	if err != nil {
		return err
	}
	a.I2C = core.NewI2C(inst)
	if err := a.I2C.Init(cfg); err != nil {
		a.I2C = nil
		return err
	}
	a.Accel = NewAccel(a.I2C)
	if a.Accel.Probe() {
		a.UART.Print("ADXL345 found at 0x53\r\n")
	}
	return nil
}

func (a *App) setupSPI() error {
	if a.board.SPI.Disable {
		return nil
	}
	inst, _ := a.board.SPIInstance()
	cfg, err := a.board.SPIConfig()
	if err != nil {
		return err
	}
	a.SPI = core.NewSPI(inst)
	if err := a.SPI.Init(cfg); err != nil {
		a.SPI = nil
		return err
	}
	if a.board.SPI.CS == "" {
		return nil
	}
	pin, _ := core.ParsePin(a.board.SPI.CS)
	a.cs = core.NewGPIOPin(pin)
	return a.SPI.SetChipSelect(a.cs)
}

func (a *App) report(what string, err error) {
	a.UART.Print(what + ": " + err.Error() + "\r\n")
}

func (a *App) banner() {
	a.UART.Print("\r\n")
	a.UART.Print("================================\r\n")
	a.UART.Print("  Embedded Firmware Framework\r\n")
	a.UART.Print("  Version " + core.Version() + " (" + core.BuildDate + ")\r\n")
	a.UART.Print("================================\r\n")
	a.UART.Print("\r\n")
	a.UART.Print("Board: " + a.board.Name + "\r\n")
	a.UART.Print("SYSCLK: " + strconv.FormatUint(uint64(core.SystemClock()/1000000), 10) + " MHz\r\n")
}

// Loop runs one pass of the foreground loop: it advances the LED by the
// ticks elapsed since the last pass, handles button presses, prints the
// heartbeat and serves the console.
func (a *App) Loop() {
	now := core.Ticks()
	a.LED.Update(now - a.lastTick)
	a.lastTick = now

	if atomic.SwapUint32(&a.presses, 0) != 0 {
		a.nextPattern()
	}

	if now-a.lastBeat >= a.board.HeartbeatMs {
		a.lastBeat = now
		if a.heartbeat {
			a.Console.Println("Heartbeat: " + strconv.FormatUint(uint64(now/1000), 10) + "s")
		}
	}

	a.Console.Poll()
}

// Run calls Setup and then loops forever, sleeping between passes.
func (a *App) Run() error {
	if err := a.Setup(); err != nil {
		return err
	}
	for {
		a.Loop()
		core.Sleep()
	}
}

// nextPattern steps the LED through the animated patterns.
func (a *App) nextPattern() {
	cycle := [...]led.Pattern{led.Heartbeat, led.Blink, led.FastBlink, led.SlowBlink, led.SOS, led.Solid}
	next := cycle[0]
	for i, p := range cycle {
		if p == a.LED.Pattern() {
			next = cycle[(i+1)%len(cycle)]
			break
		}
	}
	a.LED.SetPattern(next)
	a.Console.Println("led: " + next.String())
}

var trap = startup.DefaultHandler

// FaultVectors returns handlers for the configurable fault exceptions.
// Each records the fault in the event ring, dumps the ring through the
// debug writer and traps.
func FaultVectors() map[startup.Vector]startup.Handler {
	handlers := make(map[startup.Vector]startup.Handler)
	for _, v := range []startup.Vector{
		startup.VectorHardFault,
		startup.VectorMemManage,
		startup.VectorBusFault,
		startup.VectorUsageFault,
	} {
		v := v
		handlers[v] = func() {
			core.RecordEvent(core.EvtFault, 0, uint32(v), 0)
			core.DumpEvents()
			trap()
		}
	}
	return handlers
}
