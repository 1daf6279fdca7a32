// Package errors provides the error taxonomy for gpiblan.
//
// Every operation on an adapter session fails with one of the
// structured types below.  They carry enough context to tell a network
// failure, a misbehaving adapter and a caller mistake apart without
// inspecting lower-level codes.
package errors

import (
	"errors"
	"fmt"
	"net"
	"unicode/utf8"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected  = errors.New("not connected")
	ErrSessionClosed = errors.New("session is closed")
	ErrTunnelClosed  = errors.New("tunnel is closed")
)

// ── Transport ────────────────────────────────────────────────────────

// TransportError represents a failed network operation against the
// adapter: dial, read, write or deadline setup.
type TransportError struct {
	Op        string // "dial", "read", "write", "deadline"
	Addr      string // adapter address
	Err       error  // underlying error
	Retryable bool   // whether the caller may retry
}

func (e *TransportError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the operation failed because its deadline
// elapsed.
func (e *TransportError) Timeout() bool { return isTimeout(e.Err) }

// ── Adapter responses ────────────────────────────────────────────────

// MalformedResponseError means the adapter sent bytes that are not
// valid UTF-8 text.
type MalformedResponseError struct {
	Data []byte
}

func (e *MalformedResponseError) Error() string {
	off := invalidOffset(e.Data)
	return fmt.Sprintf("malformed response: invalid UTF-8 at byte %d of %d", off, len(e.Data))
}

// IntegerParseError means a response that should hold a small
// unsigned integer could not be parsed as one.
type IntegerParseError struct {
	Input string
	Err   error
}

func (e *IntegerParseError) Error() string {
	return fmt.Sprintf("parse integer from response %q: %v", e.Input, e.Err)
}

func (e *IntegerParseError) Unwrap() error { return e.Err }

// BufferOverflowError means a single response did not fit into the
// session's receive buffer.  The unread remainder is lost, so the
// stream position relative to command framing is unknown.
type BufferOverflowError struct {
	Capacity int
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("response exceeds receive buffer of %d bytes", e.Capacity)
}

// ── Caller misuse ────────────────────────────────────────────────────

// InvalidAddressError means a GPIB address outside 0-30 or 96-126.
type InvalidAddressError struct {
	Address int
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid GPIB address %d (must be 0-30 or 96-126)", e.Address)
}

// UnknownDeviceError means a device was used with a registry it was
// never added to.
type UnknownDeviceError struct {
	Address int
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("device at GPIB address %d is not registered", e.Address)
}

// ── Ambient ──────────────────────────────────────────────────────────

// SSHError represents an SSH gateway failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // flag or bench-file key
	Value   interface{} // the invalid value (nil if missing)
	Message string
	Hint    string // optional suggestion
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a TransportError, detecting retryability from the
// underlying error.
func Wrap(op, addr string, err error) *TransportError {
	return &TransportError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return classifyRetryable(err)
}

// IsTimeout reports whether err stems from an elapsed deadline.
func IsTimeout(err error) bool { return isTimeout(err) }

// IsMisuse reports whether err is a caller error that never touched
// the network.
func IsMisuse(err error) bool {
	var ia *InvalidAddressError
	var ud *UnknownDeviceError
	return errors.As(err, &ia) || errors.As(err, &ud)
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if isTimeout(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(b)
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
