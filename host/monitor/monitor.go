// Package monitor talks to the firmware console over a serial port: it
// splits the byte stream into lines, recognizes the prompt and the
// heartbeat, and runs commands.
package monitor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"firmkit/host/serial"
)

// Prompt is what the console prints when it is ready for a command.
const Prompt = "> "

// maxLine bounds a command line; the firmware discards longer ones.
const maxLine = 80

var (
	ErrClosed  = errors.New("monitor: connection closed")
	ErrTimeout = errors.New("monitor: no prompt before timeout")
)

// Line is one line of console output.
type Line struct {
	Text     string
	Received time.Time
}

// IsPrompt reports whether the line is the console prompt.
func (l Line) IsPrompt() bool {
	return l.Text == Prompt
}

// Heartbeat parses the firmware heartbeat line "Heartbeat: <n>s" and
// returns the uptime it carries.
func (l Line) Heartbeat() (time.Duration, bool) {
	s, ok := strings.CutPrefix(l.Text, "Heartbeat: ")
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, "s")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// Monitor is a connection to the firmware console.
type Monitor struct {
	port serial.Port

	lines chan Line
	done  chan struct{}

	mu     sync.Mutex // serializes commands
	err    error
	closed bool
}

// Connect opens device with the console defaults.
func Connect(device string) (*Monitor, error) {
	return ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the port described by cfg.
func ConnectWithConfig(cfg *serial.Config) (*Monitor, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return New(port), nil
}

// New starts reading console output from port.
func New(port serial.Port) *Monitor {
	m := &Monitor{
		port:  port,
		lines: make(chan Line, 64),
		done:  make(chan struct{}),
	}
	go m.read()
	return m
}

// Lines delivers console output. The channel closes when the port fails
// or the monitor is closed.
func (m *Monitor) Lines() <-chan Line {
	return m.lines
}

// Err returns the error that ended reading, if any.
func (m *Monitor) Err() error {
	<-m.done
	return m.err
}

func (m *Monitor) read() {
	defer close(m.done)
	defer close(m.lines)

	scanner := bufio.NewScanner(m.port)
	scanner.Split(splitConsole)
	for scanner.Scan() {
		m.lines <- Line{Text: scanner.Text(), Received: time.Now()}
	}
	m.err = scanner.Err()
}

// splitConsole returns CRLF or LF terminated lines without the terminator,
// and the prompt as a token of its own.
func splitConsole(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[:len(Prompt)], nil
	}
	if len(data) < len(Prompt) && bytes.HasPrefix([]byte(Prompt), data) && !atEOF {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimRight(data[:i], "\r"), nil
	}
	if atEOF && len(data) > 0 {
		return len(data), bytes.TrimRight(data, "\r"), nil
	}
	return 0, nil, nil
}

// Normalize splits a typed command line with shell quoting rules and
// rejoins it the way the firmware tokenizes: single spaces between
// arguments. Arguments containing blanks cannot be expressed and are
// rejected.
func Normalize(line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t") {
			return "", fmt.Errorf("argument %q cannot be sent to the console", a)
		}
	}
	out := strings.Join(args, " ")
	if len(out) > maxLine {
		return "", fmt.Errorf("command longer than %d characters", maxLine)
	}
	return out, nil
}

// Send writes one command line.
func (m *Monitor) Send(line string) error {
	cmd, err := Normalize(line)
	if err != nil {
		return err
	}
	_, err = m.port.Write([]byte(cmd + "\r"))
	return err
}

// Command sends line and collects the reply up to the next prompt. The
// echo of the command and heartbeat lines are left out.
func (m *Monitor) Command(line string, timeout time.Duration) ([]string, error) {
	cmd, err := Normalize(line)
	if err != nil {
		return nil, err
	}
	if cmd == "" {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.drain()
	if _, err := m.port.Write([]byte(cmd + "\r")); err != nil {
		return nil, err
	}

	var reply []string
	echoed := false
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case l, ok := <-m.lines:
			if !ok {
				return reply, ErrClosed
			}
			switch {
			case l.IsPrompt():
				if echoed {
					return reply, nil
				}
			case !echoed && strings.HasSuffix(l.Text, cmd):
				echoed = true
			case echoed:
				if _, beat := l.Heartbeat(); !beat {
					reply = append(reply, l.Text)
				}
			}
		case <-deadline.C:
			return reply, ErrTimeout
		}
	}
}

// drain discards output that arrived before a command.
func (m *Monitor) drain() {
	for {
		select {
		case _, ok := <-m.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close closes the port and waits for the reader to stop.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.port.Close()
	for range m.lines {
	}
	return err
}
