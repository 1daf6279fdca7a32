// Package adaptertest runs an in-process GPIB-to-LAN adapter on a
// loopback port for tests.  It records every line it receives, tracks
// the selected address like the real adapter, answers "++addr" queries
// and replies to scripted instrument commands.
package adaptertest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Adapter is a fake GPIB-to-LAN adapter serving one loopback listener.
type Adapter struct {
	t  testing.TB
	ln net.Listener

	mu        sync.Mutex
	address   int
	addrReply []byte // overrides the "++addr" answer when set
	replies   map[string]string
	conns     []net.Conn
	lines     []string
	changed   chan struct{}
}

// New starts an adapter that reports gpibAddr as its selected address.
// It is shut down by t.Cleanup.
func New(t testing.TB, gpibAddr int) *Adapter {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("adaptertest: listen: %v", err)
	}
	a := &Adapter{
		t:       t,
		ln:      ln,
		address: gpibAddr,
		replies: make(map[string]string),
		changed: make(chan struct{}),
	}
	go a.serve()
	t.Cleanup(a.Close)
	return a
}

// Host returns the listening IP.
func (a *Adapter) Host() string { return "127.0.0.1" }

// Port returns the listening port.
func (a *Adapter) Port() int { return a.ln.Addr().(*net.TCPAddr).Port }

// Addr returns host:port.
func (a *Adapter) Addr() string { return a.ln.Addr().String() }

// Address returns the GPIB address the adapter currently has selected.
func (a *Adapter) Address() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.address
}

// SetAddressReply replaces the answer to "++addr" with raw bytes.
func (a *Adapter) SetAddressReply(b []byte) {
	a.mu.Lock()
	a.addrReply = b
	a.mu.Unlock()
}

// Reply makes the adapter answer command (without its newline) with
// resp, whatever address is selected.
func (a *Adapter) Reply(command, resp string) {
	a.mu.Lock()
	a.replies[command] = resp
	a.mu.Unlock()
}

// ReplyAt is Reply restricted to one GPIB address.
func (a *Adapter) ReplyAt(addr int, command, resp string) {
	a.mu.Lock()
	a.replies[strconv.Itoa(addr)+" "+command] = resp
	a.mu.Unlock()
}

// Push writes b to the most recently accepted connection.
func (a *Adapter) Push(b []byte) {
	a.t.Helper()

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.conns) == 0 {
		a.t.Fatalf("adaptertest: push with no client connected")
	}
	if _, err := a.conns[len(a.conns)-1].Write(b); err != nil {
		a.t.Fatalf("adaptertest: push: %v", err)
	}
}

// Lines returns every line received so far, without newlines.
func (a *Adapter) Lines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines...)
}

// WaitLines blocks until at least n lines were received and returns
// them.  The test fails after two seconds.
func (a *Adapter) WaitLines(n int) []string {
	a.t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		a.mu.Lock()
		if len(a.lines) >= n {
			out := append([]string(nil), a.lines...)
			a.mu.Unlock()
			return out
		}
		changed := a.changed
		a.mu.Unlock()

		select {
		case <-changed:
		case <-deadline:
			a.t.Fatalf("adaptertest: waited for %d lines, have %q", n, a.Lines())
			return nil
		}
	}
}

// Close stops listening and drops all connections.
func (a *Adapter) Close() {
	a.ln.Close()
	a.mu.Lock()
	for _, c := range a.conns {
		c.Close()
	}
	a.mu.Unlock()
}

func (a *Adapter) serve() {
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			return
		}
		a.mu.Lock()
		a.conns = append(a.conns, conn)
		a.mu.Unlock()
		go a.handle(conn)
	}
}

func (a *Adapter) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimRight(raw, "\r\n")

		a.mu.Lock()
		a.lines = append(a.lines, line)
		close(a.changed)
		a.changed = make(chan struct{})
		resp := a.respond(line)
		if resp != nil {
			conn.Write(resp) //nolint:errcheck
		}
		a.mu.Unlock()
	}
}

// respond updates adapter state for line and returns the answer, if
// any.  Called with a.mu held.
func (a *Adapter) respond(line string) []byte {
	switch {
	case line == "++addr":
		if a.addrReply != nil {
			return a.addrReply
		}
		return []byte(fmt.Sprintf("%d\n", a.address))
	case strings.HasPrefix(line, "++addr "):
		if n, err := strconv.Atoi(strings.TrimPrefix(line, "++addr ")); err == nil {
			a.address = n
		}
		return nil
	case strings.HasPrefix(line, "++"):
		return nil
	}
	if resp, ok := a.replies[strconv.Itoa(a.address)+" "+line]; ok {
		return []byte(resp)
	}
	if resp, ok := a.replies[line]; ok {
		return []byte(resp)
	}
	return nil
}
