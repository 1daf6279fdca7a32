package core

import (
	"testing"
	"time"

	"gpiblan/config"
	"gpiblan/gpib"
	"gpiblan/internal/transport"
	"gpiblan/util"
)

func benchConfig(t *testing.T) *config.Config {
	t.Helper()
	b, err := config.ParseBench(`
timeout = "2s"
buffer_size = 8192

[[adapter]]
name = "rack-a"
host = "192.168.1.82"
timeout = "750ms"

  [[adapter.device]]
  name = "dmm"
  address = 22
`)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.BenchPath = "bench.toml"
	cfg.Bench = b
	return cfg
}

// TestBuild_Query verifies that Build produces a QueryMode for a
// one-shot command.
func TestBuild_Query(t *testing.T) {
	cfg := config.New()
	cfg.Host = "192.168.1.82"
	cfg.Address = 16
	cfg.Command = "*IDN?"

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	qm, ok := mode.(*QueryMode)
	if !ok {
		t.Fatalf("expected *QueryMode, got %T", mode)
	}
	if qm.Address != 16 || qm.Port != config.DefaultPort {
		t.Errorf("QueryMode = %+v", qm)
	}
	if _, ok := qm.Options.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("dialer = %T, want *TCPDialer", qm.Options.Dialer)
	}
	if qm.Options.Timeout != config.DefaultTimeout || qm.Options.BufferSize != config.DefaultBufferSize {
		t.Errorf("options = %+v", qm.Options)
	}
}

// TestBuild_Console verifies that no command yields a ConsoleMode.
func TestBuild_Console(t *testing.T) {
	cfg := config.New()
	cfg.Host = "192.168.1.82"

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	cm, ok := mode.(*ConsoleMode)
	if !ok {
		t.Fatalf("expected *ConsoleMode, got %T", mode)
	}
	if cm.Address != gpib.AddressUnset {
		t.Errorf("Address = %d, want unset", cm.Address)
	}
}

// TestBuild_Device verifies that a bench device name resolves to its
// adapter, address and per-adapter settings.
func TestBuild_Device(t *testing.T) {
	cfg := benchConfig(t)
	cfg.Device = "dmm"
	cfg.Command = "READ?"

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	qm, ok := mode.(*QueryMode)
	if !ok {
		t.Fatalf("expected *QueryMode, got %T", mode)
	}
	if qm.Host != "192.168.1.82" || qm.Port != 1234 || qm.Address != 22 {
		t.Errorf("target = %s:%d@%d", qm.Host, qm.Port, qm.Address)
	}
	if qm.Options.Timeout != 750*time.Millisecond {
		t.Errorf("Timeout = %v, want adapter's 750ms", qm.Options.Timeout)
	}
	if qm.Options.BufferSize != 8192 {
		t.Errorf("BufferSize = %d, want bench's 8192", qm.Options.BufferSize)
	}
}

// TestBuild_DeviceFlagOverrides verifies that explicit values beat the
// bench file, including values equal to the built-in defaults.
func TestBuild_DeviceFlagOverrides(t *testing.T) {
	tests := []struct {
		name       string
		set        func(*config.Config)
		wantTime   time.Duration
		wantBuffer int
	}{
		{"none", func(*config.Config) {}, 750 * time.Millisecond, 8192},
		{"timeout", func(c *config.Config) {
			c.Timeout, c.TimeoutSet = 5*time.Second, true
		}, 5 * time.Second, 8192},
		{"default values", func(c *config.Config) {
			c.Timeout, c.TimeoutSet = config.DefaultTimeout, true
			c.BufferSize, c.BufferSizeSet = config.DefaultBufferSize, true
		}, config.DefaultTimeout, config.DefaultBufferSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := benchConfig(t)
			cfg.Device = "dmm"
			tt.set(cfg)

			mode, err := Build(cfg, util.NewLogger(0), nil)
			if err != nil {
				t.Fatal(err)
			}
			o := mode.(*ConsoleMode).Options
			if o.Timeout != tt.wantTime || o.BufferSize != tt.wantBuffer {
				t.Errorf("Timeout/BufferSize = %v/%d, want %v/%d",
					o.Timeout, o.BufferSize, tt.wantTime, tt.wantBuffer)
			}
		})
	}
}

func TestBuild_UnknownDevice(t *testing.T) {
	cfg := benchConfig(t)
	cfg.Device = "scope"
	if _, err := Build(cfg, util.NewLogger(0), nil); err == nil {
		t.Error("expected error for unknown device")
	}
}

func TestBuild_BenchNotLoaded(t *testing.T) {
	cfg := config.New()
	cfg.BenchPath = "bench.toml"
	cfg.Device = "dmm"
	if _, err := Build(cfg, util.NewLogger(0), nil); err == nil {
		t.Error("expected error when the bench is not loaded")
	}
}

// TestBuild_Broadcast verifies Build produces a BroadcastMode.
func TestBuild_Broadcast(t *testing.T) {
	cfg := benchConfig(t)
	cfg.Broadcast = true
	cfg.Command = "*CLS"

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	bm, ok := mode.(*BroadcastMode)
	if !ok {
		t.Fatalf("expected *BroadcastMode, got %T", mode)
	}
	if bm.Options.Timeout != 0 || bm.Options.BufferSize != 0 {
		t.Errorf("bench settings should not be overridden: %+v", bm.Options)
	}
}

// TestBuild_NoDNS_Error verifies that a hostname with -n is rejected.
func TestBuild_NoDNS_Error(t *testing.T) {
	cfg := config.New()
	cfg.Host = "adapter.lab.local"
	cfg.NoDNS = true

	if _, err := Build(cfg, util.NewLogger(0), nil); err == nil {
		t.Error("expected error for hostname with -n")
	}
}

// TestBuild_Tunnel verifies that a gateway selects the SSH dialer.
func TestBuild_Tunnel(t *testing.T) {
	cfg := config.New()
	cfg.Host = "10.0.0.5"
	cfg.Command = "*RST"
	cfg.TunnelEnabled = true
	cfg.TunnelUser = "lab"
	cfg.TunnelHost = "gateway"
	cfg.TunnelPort = 22

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	qm := mode.(*QueryMode)
	if _, ok := qm.Options.Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("dialer = %T, want *SSHDialer", qm.Options.Dialer)
	}
}

// TestBuild_Probe verifies Build produces a ProbeMode listing every
// bench adapter.
func TestBuild_Probe(t *testing.T) {
	cfg := benchConfig(t)
	cfg.Probe = true

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	pm, ok := mode.(*ProbeMode)
	if !ok {
		t.Fatalf("expected *ProbeMode, got %T", mode)
	}
	if len(pm.Targets) != 1 || pm.Targets[0].Name != "rack-a" || pm.Targets[0].Timeout != 750*time.Millisecond {
		t.Errorf("targets = %+v", pm.Targets)
	}
	if pm.Options.BufferSize != 8192 {
		t.Errorf("BufferSize = %d, want bench's 8192", pm.Options.BufferSize)
	}
}
