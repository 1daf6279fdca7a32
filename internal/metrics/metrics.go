// Package metrics provides lightweight, lock-free counters for the
// traffic a gpiblan session exchanges with its adapter.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one or more adapter sessions.
// A nil Collector is safe to use: all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	writes         atomic.Int64
	reads          atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	addrSelects    atomic.Int64
	addrSkips      atomic.Int64
	overflows      atomic.Int64
	reconnects     atomic.Int64
	errorsTotal    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total session counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// Reconnect records a reconnection attempt made by the caller.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// ── I/O metrics ──────────────────────────────────────────────────────

// CommandSent records one write of n bytes to the adapter.
func (c *Collector) CommandSent(n int) {
	if c == nil {
		return
	}
	c.writes.Add(1)
	c.bytesOut.Add(int64(n))
}

// ResponseRead records one read that returned n bytes.
func (c *Collector) ResponseRead(n int) {
	if c == nil {
		return
	}
	c.reads.Add(1)
	c.bytesIn.Add(int64(n))
}

// Writes returns the number of writes sent to the adapter.
func (c *Collector) Writes() int64 {
	if c == nil {
		return 0
	}
	return c.writes.Load()
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// Overflow records a response that did not fit the receive buffer.
func (c *Collector) Overflow() {
	if c == nil {
		return
	}
	c.overflows.Add(1)
}

// ── Addressing metrics ───────────────────────────────────────────────

// AddressSelected records a "++addr <n>" write.
func (c *Collector) AddressSelected() {
	if c == nil {
		return
	}
	c.addrSelects.Add(1)
}

// AddressSkipped records a selection elided because the address was
// already current.
func (c *Collector) AddressSkipped() {
	if c == nil {
		return
	}
	c.addrSkips.Add(1)
}

// AddressSelects returns the number of address-select writes.
func (c *Collector) AddressSelects() int64 {
	if c == nil {
		return 0
	}
	return c.addrSelects.Load()
}

// AddressSkips returns the number of elided address selections.
func (c *Collector) AddressSkips() int64 {
	if c == nil {
		return 0
	}
	return c.addrSkips.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	Writes           int64  `json:"writes"`
	Reads            int64  `json:"reads"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	AddressSelects   int64  `json:"address_selects"`
	AddressSkips     int64  `json:"address_skips"`
	Overflows        int64  `json:"overflows"`
	Reconnects       int64  `json:"reconnects"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Millisecond).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		Writes:         c.writes.Load(),
		Reads:          c.reads.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		AddressSelects: c.addrSelects.Load(),
		AddressSkips:   c.addrSkips.Load(),
		Overflows:      c.overflows.Load(),
		Reconnects:     c.reconnects.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
