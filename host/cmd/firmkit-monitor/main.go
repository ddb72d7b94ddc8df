// Command firmkit-monitor is the host side of the firmware debug console.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firmkit/host/monitor"
	"firmkit/host/serial"
)

var (
	device  string
	baud    int
	timeout time.Duration
	ticks   bool

	rootCmd = &cobra.Command{
		Use:   "firmkit-monitor",
		Short: "Serial monitor for the firmware console",
		Long:  "Stream, script or drive the firmware console on the board's debug UART.",
	}

	listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Print console output as it arrives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := connect()
			if err != nil {
				return err
			}
			defer m.Close()
			return listen(m, cmd.OutOrStdout(), ticks)
		},
	}

	consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "Type commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := connect()
			if err != nil {
				return err
			}
			defer m.Close()
			return interact(m, cmd.InOrStdin(), cmd.OutOrStdout(), timeout)
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Run one console command and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := connect()
			if err != nil {
				return err
			}
			defer m.Close()
			reply, err := m.Command(strings.Join(args, " "), timeout)
			for _, l := range reply {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return err
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&device, "device", "d", "/dev/ttyACM0", "serial device path")
	rootCmd.PersistentFlags().IntVarP(&baud, "baud", "b", 115200, "baud rate")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "reply timeout")
	listenCmd.Flags().BoolVar(&ticks, "ticks", false, "compare heartbeat uptime with host time")

	rootCmd.AddCommand(listenCmd, consoleCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect() (*monitor.Monitor, error) {
	cfg := serial.DefaultConfig(device)
	cfg.Baud = baud
	return monitor.ConnectWithConfig(cfg)
}

// listen copies console lines to out until the port closes. With ticks
// set, heartbeat lines are annotated with the drift of the board uptime
// against the host clock since the first heartbeat.
func listen(m *monitor.Monitor, out io.Writer, ticks bool) error {
	var (
		first      time.Time
		firstBoard time.Duration
	)
	for l := range m.Lines() {
		if l.IsPrompt() {
			continue
		}
		up, beat := l.Heartbeat()
		if !ticks || !beat {
			fmt.Fprintln(out, l.Text)
			continue
		}
		if first.IsZero() {
			first, firstBoard = l.Received, up
		}
		host := l.Received.Sub(first)
		board := up - firstBoard
		fmt.Fprintf(out, "%s (host %+.1fs, drift %+.1fs)\n", l.Text, host.Seconds(), (board - host).Seconds())
	}
	return m.Err()
}

// interact reads commands from in and prints the replies. quit, exit or
// end of input leave.
func interact(m *monitor.Monitor, in io.Reader, out io.Writer, timeout time.Duration) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, monitor.Prompt)
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		}

		reply, err := m.Command(line, timeout)
		for _, l := range reply {
			fmt.Fprintln(out, l)
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			if err == monitor.ErrClosed {
				return err
			}
		}
	}
	return scanner.Err()
}
