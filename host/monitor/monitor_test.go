package monitor

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakePort plays the firmware: every command written gets the scripted
// reply, echo included.
type fakePort struct {
	r  *io.PipeReader
	fw *io.PipeWriter

	mu      sync.Mutex
	sent    bytes.Buffer
	replies map[string]string
}

func newFakePort(replies map[string]string) *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, fw: w, replies: replies}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.sent.Write(b)
	p.mu.Unlock()
	cmd := strings.TrimSuffix(string(b), "\r")
	if reply, ok := p.replies[cmd]; ok {
		go p.fw.Write([]byte(cmd + "\r\n" + reply + Prompt))
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.fw.Close()
	return p.r.Close()
}

func (p *fakePort) Flush() error { return nil }

func (p *fakePort) Sent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent.String()
}

func TestSplitConsole(t *testing.T) {
	s := bufio.NewScanner(strings.NewReader("\r\n  Banner\r\n> Heartbeat: 3s\r\nled: sos\n> "))
	s.Split(splitConsole)
	var got []string
	for s.Scan() {
		got = append(got, s.Text())
	}
	want := []string{"", "  Banner", "> ", "Heartbeat: 3s", "led: sos", "> "}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Token mismatch (-want +got):\n%s", diff)
	}
}

func TestHeartbeat(t *testing.T) {
	tests := []struct {
		text string
		want time.Duration
		ok   bool
	}{
		{"Heartbeat: 0s", 0, true},
		{"Heartbeat: 125s", 125 * time.Second, true},
		{"Heartbeat: 12", 0, false},
		{"Heartbeat: xs", 0, false},
		{"led: sos", 0, false},
	}
	for _, tt := range tests {
		got, ok := Line{Text: tt.text}.Heartbeat()
		if ok != tt.ok || got != tt.want {
			t.Errorf("%q: expected %v/%v, got %v/%v", tt.text, tt.want, tt.ok, got, ok)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"led   sos", "led sos", true},
		{"  spi 'ff' \"01\"", "spi ff 01", true},
		{"", "", true},
		{"led \"a b\"", "", false},
		{"led 'open", "", false},
		{"x " + strings.Repeat("y", 80), "", false},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("Normalize(%q): expected %q ok=%v, got %q err=%v", tt.in, tt.want, tt.ok, got, err)
		}
	}
}

func TestCommand(t *testing.T) {
	port := newFakePort(map[string]string{
		"version": "firmkit 1.0.0 (2016-01-01)\r\nHeartbeat: 4s\r\n",
		"led":     "led: heartbeat on\r\n",
	})
	m := New(port)
	defer m.Close()

	got, err := m.Command("version", time.Second)
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if diff := cmp.Diff([]string{"firmkit 1.0.0 (2016-01-01)"}, got); diff != "" {
		t.Errorf("Reply mismatch (-want +got):\n%s", diff)
	}

	got, err = m.Command("  led ", time.Second)
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if diff := cmp.Diff([]string{"led: heartbeat on"}, got); diff != "" {
		t.Errorf("Reply mismatch (-want +got):\n%s", diff)
	}

	if sent := port.Sent(); sent != "version\rled\r" {
		t.Errorf("Expected normalized commands on the wire, got %q", sent)
	}
}

func TestCommandTimeout(t *testing.T) {
	port := newFakePort(nil)
	m := New(port)
	defer m.Close()

	if _, err := m.Command("uptime", 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestLinesAndClose(t *testing.T) {
	port := newFakePort(nil)
	m := New(port)

	go port.fw.Write([]byte("Heartbeat: 7s\r\n"))
	select {
	case l := <-m.Lines():
		if d, ok := l.Heartbeat(); !ok || d != 7*time.Second {
			t.Errorf("Expected a 7s heartbeat, got %q", l.Text)
		}
		if l.Received.IsZero() {
			t.Error("Expected a receive time")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for a line")
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, ok := <-m.Lines(); ok {
		t.Error("Expected the line channel closed")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}
