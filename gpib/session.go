package gpib

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	gerr "gpiblan/internal/errors"
	"gpiblan/internal/metrics"
	"gpiblan/internal/transport"
	"gpiblan/util"
)

// Defaults used by Connect.
const (
	DefaultPort           = 1234
	DefaultTimeout        = 1500 * time.Millisecond
	DefaultConnectTimeout = 1500 * time.Millisecond
	DefaultBufferSize     = 4096
)

// Adapter meta-commands sent by the session.
const (
	cmdQueryAddress   = "++addr\n"
	cmdReadAfterWrite = "++auto 1\n"
	cmdControllerMode = "++mode 1\n"
)

func selectAddressCommand(a int) string {
	return "++addr " + strconv.Itoa(a) + "\n"
}

// ── Options ──────────────────────────────────────────────────────────

type options struct {
	port           int
	timeout        time.Duration
	connectTimeout time.Duration
	bufferSize     int
	dialer         transport.Dialer
	logger         *util.Logger
	metrics        *metrics.Collector
}

// Option configures Connect and NewSession.
type Option func(*options)

// WithPort sets the adapter's TCP port (default 1234).
func WithPort(port int) Option { return func(o *options) { o.port = port } }

// WithTimeout sets the per-operation read and write timeout
// (default 1.5s).  Zero disables deadlines.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithConnectTimeout bounds the TCP connect of the default dialer
// (default 1.5s).
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithBufferSize sets the receive buffer capacity (default 4096).
// Responses longer than this fail with BufferOverflowError.
func WithBufferSize(n int) Option { return func(o *options) { o.bufferSize = n } }

// WithDialer replaces the default TCP dialer, e.g. to go through an
// SSH gateway.  The dialer enforces its own connect timeout.  The
// session does not close the dialer.
func WithDialer(d transport.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithLogger sets the logger for connection and wire traces.
func WithLogger(l *util.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(o *options) { o.metrics = c } }

func buildOptions(opts []Option) options {
	o := options{
		port:           DefaultPort,
		timeout:        DefaultTimeout,
		connectTimeout: DefaultConnectTimeout,
		bufferSize:     DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize <= 0 {
		o.bufferSize = DefaultBufferSize
	}
	return o
}

// ── Session ──────────────────────────────────────────────────────────

// Session is one live TCP connection to one adapter.
type Session struct {
	conn     net.Conn
	remote   string
	current  int
	timeout  time.Duration
	capacity int
	buf      []byte // capacity+1 so an oversized response is detectable
	closed   bool

	logger  *util.Logger
	metrics *metrics.Collector
}

// Connect dials the adapter at host and performs the handshake:
// query the selected address, enable read-after-write, switch to
// controller mode.
func Connect(ctx context.Context, host string, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	address := util.FormatAddr(host, o.port)

	// A supplied dialer bounds its own connect: an SSH gateway may
	// prompt for a password before it dials anything.
	dialer := o.dialer
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: o.connectTimeout}
	}

	o.logger.Verbose("connecting to adapter %s", address)
	conn, err := dialer.Dial(ctx, "tcp", address)
	if err != nil {
		o.metrics.RecordError(err.Error())
		return nil, gerr.Wrap("dial", address, err)
	}
	return newSession(conn, address, o)
}

// NewSession performs the handshake over an established connection
// and takes ownership of it.  conn is closed if the handshake fails.
func NewSession(conn net.Conn, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	return newSession(conn, conn.RemoteAddr().String(), o)
}

func newSession(conn net.Conn, remote string, o options) (*Session, error) {
	s := &Session{
		conn:     conn,
		remote:   remote,
		current:  AddressUnset,
		timeout:  o.timeout,
		capacity: o.bufferSize,
		buf:      make([]byte, o.bufferSize+1),
		logger:   o.logger,
		metrics:  o.metrics,
	}
	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	s.metrics.SessionOpened()
	s.logger.Verbose("adapter %s ready, GPIB address %d selected", remote, s.current)
	return s, nil
}

func (s *Session) handshake() error {
	if _, err := s.SendRaw(cmdQueryAddress); err != nil {
		return err
	}
	resp, err := s.Read()
	if err != nil {
		return err
	}
	if resp == "" {
		// A silent adapter is an I/O timeout, not a garbled reply.
		return s.fail(gerr.Wrap("read", s.remote, os.ErrDeadlineExceeded))
	}
	text := strings.TrimSpace(resp)
	n, err := strconv.ParseUint(text, 10, 8)
	if err != nil {
		return s.fail(&gerr.IntegerParseError{Input: text, Err: err})
	}
	s.current = int(n)

	if _, err := s.SendRaw(cmdReadAfterWrite); err != nil {
		return err
	}
	_, err = s.SendRaw(cmdControllerMode)
	return err
}

// SendRaw writes command verbatim.  The caller supplies any trailing
// newline the adapter needs.
func (s *Session) SendRaw(command string) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return 0, s.fail(gerr.Wrap("deadline", s.remote, err))
	}
	n, err := io.WriteString(s.conn, command)
	if err != nil {
		return n, s.fail(gerr.Wrap("write", s.remote, err))
	}
	s.metrics.CommandSent(n)
	s.logger.Debug("%s <- %q", s.remote, command)
	return n, nil
}

// Read returns whatever the adapter has sent since the last command,
// decoded as UTF-8.  It performs a single read bounded by the session
// timeout.  An empty string with a nil error means nothing arrived
// before the timeout; the caller may read again.
func (s *Session) Read() (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if err := s.conn.SetReadDeadline(s.deadline()); err != nil {
		return "", s.fail(gerr.Wrap("deadline", s.remote, err))
	}
	n, err := s.conn.Read(s.buf)
	if n == 0 && err != nil {
		if gerr.IsTimeout(err) {
			s.metrics.ResponseRead(0)
			s.logger.Debug("%s -> (nothing before timeout)", s.remote)
			return "", nil
		}
		return "", s.fail(gerr.Wrap("read", s.remote, err))
	}
	s.metrics.ResponseRead(n)

	if n > s.capacity {
		s.metrics.Overflow()
		return "", s.fail(&gerr.BufferOverflowError{Capacity: s.capacity})
	}
	data := s.buf[:n]
	if !utf8.Valid(data) {
		return "", s.fail(&gerr.MalformedResponseError{Data: append([]byte(nil), data...)})
	}
	s.logger.Debug("%s -> %q", s.remote, data)
	return string(data), nil
}

// SelectAddress makes a the adapter's target for pass-through commands.
// It is a no-op when a is already selected.
func (s *Session) SelectAddress(a int) error {
	if err := CheckAddress(a); err != nil {
		return err
	}
	if s.closed {
		return ErrSessionClosed
	}
	if a == s.current {
		s.metrics.AddressSkipped()
		return nil
	}
	if _, err := s.SendRaw(selectAddressCommand(a)); err != nil {
		return err
	}
	s.current = a
	s.metrics.AddressSelected()
	return nil
}

// SendTo selects address a, then writes command verbatim.
func (s *Session) SendTo(a int, command string) (int, error) {
	if err := s.SelectAddress(a); err != nil {
		return 0, err
	}
	return s.SendRaw(command)
}

// Query sends command to address a and reads the instrument's reply.
// It relies on read-after-write, which the handshake enables.
func (s *Session) Query(a int, command string) (string, error) {
	if _, err := s.SendTo(a, command); err != nil {
		return "", err
	}
	return s.Read()
}

// CurrentAddress returns the GPIB address currently selected on the
// adapter, or AddressUnset.
func (s *Session) CurrentAddress() int { return s.current }

// RemoteAddr returns the adapter's host:port.
func (s *Session) RemoteAddr() string { return s.remote }

// BufferSize returns the receive buffer capacity.
func (s *Session) BufferSize() int { return s.capacity }

// Close closes the connection.  Calling it again is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.metrics.SessionClosed()
	s.logger.Verbose("closing adapter %s", s.remote)
	return s.conn.Close()
}

func (s *Session) deadline() time.Time {
	if s.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.timeout)
}

func (s *Session) fail(err error) error {
	s.metrics.RecordError(err.Error())
	return err
}

func (s *Session) String() string {
	return fmt.Sprintf("gpib.Session(%s, addr=%d)", s.remote, s.current)
}
