package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"firmkit/host/monitor"
)

// boardPort answers console commands from a fixed table.
type boardPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	replies map[string]string
}

func newBoardPort(replies map[string]string) *boardPort {
	r, w := io.Pipe()
	return &boardPort{r: r, w: w, replies: replies}
}

func (p *boardPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *boardPort) Write(b []byte) (int, error) {
	cmd := strings.TrimSuffix(string(b), "\r")
	reply, ok := p.replies[cmd]
	if !ok {
		reply = "unknown command: " + cmd + "\r\n"
	}
	go p.w.Write([]byte(cmd + "\r\n" + reply + monitor.Prompt))
	return len(b), nil
}

func (p *boardPort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func (p *boardPort) Flush() error { return nil }

func TestInteract(t *testing.T) {
	m := monitor.New(newBoardPort(map[string]string{
		"uptime": "uptime: 3.250s\r\n",
	}))
	defer m.Close()

	var out bytes.Buffer
	in := strings.NewReader("uptime\n\nfoo\nquit\nuptime\n")
	if err := interact(m, in, &out, time.Second); err != nil {
		t.Fatalf("interact failed: %v", err)
	}
	want := "> uptime: 3.250s\n> > unknown command: foo\n> "
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestListenTicks(t *testing.T) {
	port := newBoardPort(nil)
	m := monitor.New(port)

	go func() {
		port.w.Write([]byte("> Heartbeat: 10s\r\nled: sos\r\nHeartbeat: 11s\r\n"))
		port.w.Close()
	}()

	var out bytes.Buffer
	if err := listen(m, &out, true); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %q", lines)
	}
	if !strings.HasPrefix(lines[0], "Heartbeat: 10s (host +0.0s") {
		t.Errorf("Unexpected first heartbeat %q", lines[0])
	}
	if lines[1] != "led: sos" {
		t.Errorf("Expected plain line passed through, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "Heartbeat: 11s (host ") {
		t.Errorf("Unexpected second heartbeat %q", lines[2])
	}
}
