// Command firmkit-sim boots the firmware on the simulated STM32F407 and
// streams the console UART to stdout.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firmkit/app"
	"firmkit/core"
	"firmkit/startup"
	"firmkit/targets/sim"
)

// maxBoots bounds the reset loop.
const maxBoots = 8

// simImage places a small initialized-data image in flash so the reset
// path has something to copy.
var simImage = startup.Symbols{
	ImageLoadStart: 0x08010000,
	DataStart:      0x20000000,
	DataEnd:        0x20000010,
	BssStart:       0x20000010,
	BssEnd:         0x20000100,
	StackTop:       0x20020000,
}

type options struct {
	boardFile string
	duration  int
	commands  []string
	accel     bool
	spiEcho   bool
	noHSE     bool
}

var (
	opts options

	rootCmd = &cobra.Command{
		Use:   "firmkit-sim",
		Short: "Run the firmware on a simulated STM32F407",
		Long: "Boot the firmware on a register-level STM32F407 model, type the given console " +
			"commands and print everything the console UART sends.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return simulate(opts, cmd.OutOrStdout())
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&opts.boardFile, "board", "b", "", "board description (JSON); default STM32F4-Discovery")
	rootCmd.Flags().IntVarP(&opts.duration, "duration", "d", 3000, "simulated run time in milliseconds")
	rootCmd.Flags().StringArrayVarP(&opts.commands, "command", "c", nil, "console command to type after boot (repeatable)")
	rootCmd.Flags().BoolVar(&opts.accel, "accel", false, "attach an ADXL345 to the board I2C bus")
	rootCmd.Flags().BoolVar(&opts.spiEcho, "spi-echo", false, "attach a loopback device to the board SPI bus")
	rootCmd.Flags().BoolVar(&opts.noHSE, "no-hse", false, "simulate a board whose crystal never starts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// simulate runs the firmware until opts.duration simulated milliseconds
// have passed, following software resets.
func simulate(opts options, out io.Writer) error {
	board := app.DefaultBoard()
	if opts.boardFile != "" {
		data, err := os.ReadFile(opts.boardFile)
		if err != nil {
			return err
		}
		if board, err = app.LoadBoard(data); err != nil {
			return fmt.Errorf("board %s: %w", opts.boardFile, err)
		}
	}
	inst, err := board.UARTInstance()
	if err != nil {
		return err
	}

	var simOpts []sim.Option
	if opts.noHSE {
		simOpts = append(simOpts, sim.WithoutHSE())
	}
	m := sim.New(simOpts...)
	if opts.accel {
		dev := sim.NewADXL345()
		dev.SetAcceleration(0, 0, 256)
		i2c, _ := board.I2CInstance()
		m.I2C(i2c).Attach(sim.ADXL345Address, dev)
	}
	if opts.spiEcho {
		spi, _ := board.SPIInstance()
		m.SPI(spi).Attach(sim.EchoDevice{})
	}

	vt := sim.DefaultVectors()
	for v, h := range app.FaultVectors() {
		if err := vt.Set(v, h); err != nil {
			return err
		}
	}
	m.SetVectors(vt)
	flash := func() {
		m.WriteBytes(simImage.ImageLoadStart, []byte("firmkit sim data"))
	}
	flash()

	halt := startup.Halt
	startup.Halt = func() {}
	defer func() { startup.Halt = halt }()

	// PowerOn rebuilds the peripheral models, so the USART is looked up
	// on every use.
	flush := func() {
		u := m.USART(inst)
		out.Write(u.Wire())
		u.ClearWire()
	}

	commands := opts.commands
	remaining := uint64(opts.duration)
	for boot := 0; boot < maxBoots; boot++ {
		var setupErr error
		a := app.New(board)
		rt := &startup.Runtime{
			Mem:  m,
			Syms: simImage,
			Main: func() {
				if setupErr = a.Setup(); setupErr != nil {
					return
				}
				u := m.USART(inst)
				for _, c := range commands {
					u.InjectString(c + "\r")
				}
				commands = nil
				for m.Now() < remaining {
					a.Loop()
					flush()
					core.Sleep()
				}
			},
		}

		reset := m.Run(rt.Reset)
		flush()
		if setupErr != nil {
			return fmt.Errorf("setup: %w", setupErr)
		}
		if !reset || m.Now() >= remaining {
			return nil
		}
		remaining -= m.Now()
		fmt.Fprint(out, "\r\n[sim] system reset\r\n")
		m.PowerOn()
		flash()
	}
	return fmt.Errorf("stopped after %d resets", maxBoots)
}
