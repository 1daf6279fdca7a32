// Package config defines the runtime configuration for gpiblan and
// provides helpers for parsing tunnel specifications and bench files.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"gpiblan/gpib"
	gerr "gpiblan/internal/errors"
)

// Config holds every tuneable for a single gpiblan run.
type Config struct {
	// ── Adapter ──────────────────────────────────────────────────────
	Host           string
	Port           int
	NoDNS          bool
	Timeout        time.Duration // per read/write
	ConnectTimeout time.Duration
	BufferSize     int
	Retries        int // extra connect attempts

	// Set when Timeout or BufferSize came from a flag or the
	// environment, so they override a bench file even at their
	// default values.
	TimeoutSet    bool
	BufferSizeSet bool

	// ── Target ───────────────────────────────────────────────────────
	Address   int    // GPIB address, gpib.AddressUnset if not given
	Device    string // device name from the bench file
	Command   string // empty → interactive console
	Query     bool   // read the reply after sending
	Broadcast bool   // send Command to every bench device
	Probe     bool   // only check that adapters answer the handshake

	// ── Bench ────────────────────────────────────────────────────────
	BenchPath string
	Bench     *Bench // loaded from BenchPath by the CLI

	// ── SSH gateway ──────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	Stats   bool
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Port:           DefaultPort,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		BufferSize:     DefaultBufferSize,
		Address:        gpib.AddressUnset,
		Verbose:        1,
	}
}

// HasAddress reports whether a GPIB address was given.
func (c *Config) HasAddress() bool { return c.Address != gpib.AddressUnset }

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "lab@gateway.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q - expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.BenchPath == "" {
		if c.Host == "" {
			return &gerr.ConfigError{
				Field:   "host",
				Message: "adapter host is required",
				Hint:    "pass the adapter's IP as the first argument, or use --bench",
			}
		}
		if c.Device != "" {
			return &gerr.ConfigError{Field: "device", Value: c.Device, Message: "requires --bench"}
		}
		if c.Broadcast {
			return &gerr.ConfigError{Field: "broadcast", Message: "requires --bench"}
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		return &gerr.ConfigError{Field: "port", Value: c.Port, Message: "out of range 1-65535"}
	}
	if c.Timeout <= 0 {
		return &gerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must be positive"}
	}
	if c.ConnectTimeout <= 0 {
		return &gerr.ConfigError{
			Field:   "connect-timeout",
			Value:   c.ConnectTimeout,
			Message: "must be positive",
			Hint:    "the adapter answers within a few hundred milliseconds; try 1500",
		}
	}
	if c.BufferSize < 1 {
		return &gerr.ConfigError{Field: "buffer", Value: c.BufferSize, Message: "must be at least 1 byte"}
	}
	if c.Retries < 0 {
		return &gerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}

	if c.HasAddress() && !gpib.ValidAddress(c.Address) {
		return &gerr.ConfigError{
			Field:   "addr",
			Value:   c.Address,
			Message: "not a GPIB address",
			Hint:    "use 0-30 or 96-126",
		}
	}
	if c.HasAddress() && c.Device != "" {
		return fmt.Errorf("--addr and --device are mutually exclusive")
	}
	if c.Broadcast {
		if c.Device != "" || c.HasAddress() {
			return fmt.Errorf("--broadcast targets every bench device; drop --addr/--device")
		}
		if c.Command == "" {
			return &gerr.ConfigError{Field: "broadcast", Message: "needs a command to send"}
		}
	}
	if c.Probe {
		if c.Broadcast || c.Device != "" || c.Command != "" {
			return &gerr.ConfigError{
				Field:   "probe",
				Message: "takes no command, device or broadcast",
				Hint:    "probe checks adapters only; run the command separately",
			}
		}
		return c.validateTunnel()
	}
	if c.Query && c.Command == "" {
		return &gerr.ConfigError{
			Field:   "query",
			Message: "needs a command",
			Hint:    "without a command gpiblan starts the console, which reads replies itself",
		}
	}

	return c.validateTunnel()
}

func (c *Config) validateTunnel() error {
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &gerr.ConfigError{Field: "tunnel", Message: "gateway host is required"}
	}
	return nil
}
