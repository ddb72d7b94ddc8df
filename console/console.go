// Package console is a line-oriented command shell over a UART. Received
// bytes are queued by the receive interrupt; lines are assembled, echoed
// and dispatched from the foreground loop by Poll.
package console

import (
	"io"
	"strings"
	"sync/atomic"

	"firmkit/core"
)

// MaxLine bounds an input line. Longer lines are discarded whole.
const MaxLine = 80

// Prompt is written after every dispatched line.
const Prompt = "> "

// Port is the serial line the console runs on. *core.UART satisfies it.
type Port interface {
	io.Writer
	StartReceiveIT(cb core.RxCallback, ctx any) error
}

// Console reads commands from a Port and dispatches them to a Registry.
type Console struct {
	port Port
	reg  *Registry
	rx   core.RingBuffer

	line     [MaxLine]byte
	n        int
	overflow bool
	lastCR   bool

	// Echo writes typed characters back to the terminal.
	Echo bool

	dropped uint32
}

// New returns a console over port. A nil reg gets an empty registry.
// The help command is always registered.
func New(port Port, reg *Registry) *Console {
	if reg == nil {
		reg = NewRegistry()
	}
	c := &Console{port: port, reg: reg, Echo: true}
	reg.Register("help", "help", cmdHelp)
	return c
}

// Registry returns the command registry.
func (c *Console) Registry() *Registry {
	return c.reg
}

// Start enables interrupt-driven reception.
func (c *Console) Start() error {
	return c.port.StartReceiveIT(c.receive, nil)
}

// receive runs in interrupt context.
func (c *Console) receive(b byte, _ any) {
	if !c.rx.Put(b) {
		atomic.AddUint32(&c.dropped, 1)
	}
}

// Dropped returns the number of received bytes lost to a full queue.
func (c *Console) Dropped() uint32 {
	return atomic.LoadUint32(&c.dropped)
}

// Poll drains received bytes and runs every completed line. It returns
// the number of lines dispatched.
func (c *Console) Poll() int {
	lines := 0
	for {
		b, ok := c.rx.Get()
		if !ok {
			return lines
		}
		if c.feed(b) {
			lines++
		}
	}
}

// feed handles one input byte and reports whether a line was run. CR, LF
// and CRLF all end a line.
func (c *Console) feed(b byte) bool {
	switch b {
	case '\r', '\n':
		if b == '\n' && c.lastCR {
			c.lastCR = false
			return false
		}
		c.lastCR = b == '\r'
		if c.Echo {
			c.Print("\r\n")
		}
		line := string(c.line[:c.n])
		overflow := c.overflow
		c.n, c.overflow = 0, false
		if overflow {
			c.Println("error: line too long")
		} else {
			c.Execute(line)
		}
		c.Print(Prompt)
		return true
	case 0x08, 0x7F:
		c.lastCR = false
		if c.n > 0 {
			c.n--
			if c.Echo {
				c.Print("\b \b")
			}
		}
		return false
	}
	c.lastCR = false
	if b < 0x20 {
		return false
	}
	if c.n == MaxLine {
		c.overflow = true
		return false
	}
	c.line[c.n] = b
	c.n++
	if c.Echo {
		c.port.Write([]byte{b})
	}
	return false
}

// Execute runs one command line and reports failures on the console.
func (c *Console) Execute(line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}
	err := c.reg.Dispatch(c, args)
	switch {
	case err == ErrUnknownCommand:
		c.Println("unknown command: " + args[0])
	case err != nil:
		c.Println("error: " + err.Error())
	}
}

// Print writes s to the port.
func (c *Console) Print(s string) {
	io.WriteString(c.port, s)
}

// Println writes s and a CRLF.
func (c *Console) Println(s string) {
	c.Print(s + "\r\n")
}

func cmdHelp(c *Console, _ []string) error {
	for _, name := range c.reg.Names() {
		if cmd, ok := c.reg.Lookup(name); ok {
			c.Println("  " + cmd.Usage)
		}
	}
	return nil
}
