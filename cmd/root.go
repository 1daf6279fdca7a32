// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"gpiblan/config"
	"gpiblan/gpib"
	"gpiblan/internal/core"
	"gpiblan/internal/metrics"
	"gpiblan/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X gpiblan/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stderr receives usage, stats and dry-run output.  Tests replace it.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs the appropriate gpiblan mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()
	config.LoadFromEnv(cfg)
	fs := flag.NewFlagSet("gpiblan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── adapter ──────────────────────────────────────────────────
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Adapter TCP port")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")

	timeoutMS := int(cfg.Timeout / time.Millisecond)
	connectMS := int(cfg.ConnectTimeout / time.Millisecond)
	fs.IntVarP(&timeoutMS, "timeout", "w", timeoutMS, "Read/write timeout in milliseconds")
	fs.IntVar(&connectMS, "connect-timeout", connectMS, "Connect timeout in milliseconds")
	fs.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "Receive buffer size in bytes")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Extra connect attempts on network errors")

	// ── target ───────────────────────────────────────────────────
	fs.IntVarP(&cfg.Address, "addr", "a", cfg.Address, "GPIB address (0-30, 96-126; -1 keeps the adapter's)")
	fs.BoolVarP(&cfg.Query, "query", "q", false, "Read and print a reply after the command")

	// ── bench ────────────────────────────────────────────────────
	fs.StringVarP(&cfg.BenchPath, "bench", "b", cfg.BenchPath, "Bench file (TOML) naming adapters and devices")
	fs.StringVarP(&cfg.Device, "device", "d", "", "Device name from the bench file")
	fs.BoolVar(&cfg.Broadcast, "broadcast", false, "Send the command to every device on the bench")
	fs.BoolVarP(&cfg.Probe, "probe", "z", false, "Check that the adapter(s) answer the handshake, then exit")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the adapter through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.Stats, "stats", false, "Print session statistics as JSON on exit")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate and show what would run, then exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stderr, "gpiblan %s\n", version)
		return nil
	}

	cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
	cfg.ConnectTimeout = time.Duration(connectMS) * time.Millisecond
	cfg.Verbose += verbose
	if fs.Changed("timeout") {
		cfg.TimeoutSet = true
	}
	if fs.Changed("buffer") {
		cfg.BufferSizeSet = true
	}
	// A device names its own address; only an explicit -a conflicts.
	if fs.Changed("device") && !fs.Changed("addr") {
		cfg.Address = gpib.AddressUnset
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.BenchPath != "" {
		b, err := config.LoadBench(cfg.BenchPath)
		if err != nil {
			return err
		}
		cfg.Bench = b
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	var stats *metrics.Collector
	if cfg.Stats {
		stats = metrics.New()
	}

	mode, err := core.Build(cfg, logger, stats)
	if err != nil {
		return err
	}
	if dryRun {
		describe(stderr, cfg, mode)
		return nil
	}

	err = mode.Run(ctx)
	if stats != nil {
		fmt.Fprintln(stderr, stats.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional takes "<host>[:port] [command...]" without a bench
// file and "[command...]" with one.
func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.BenchPath == "" && len(remaining) > 0 {
		host, port, err := util.SplitHostPort(remaining[0], cfg.Port)
		if err != nil {
			return err
		}
		cfg.Host, cfg.Port = host, port
		remaining = remaining[1:]
	}
	cfg.Command = strings.Join(remaining, " ")
	return nil
}

func describe(w io.Writer, cfg *config.Config, mode core.Mode) {
	switch m := mode.(type) {
	case *core.QueryMode:
		fmt.Fprintf(w, "would send %q to %s, GPIB address %d (read reply: %v)\n",
			m.Command, util.FormatAddr(m.Host, m.Port), m.Address, m.Query)
		fmt.Fprintf(w, "timeout %v, buffer %d bytes\n", m.Options.Timeout, m.Options.BufferSize)
	case *core.ConsoleMode:
		fmt.Fprintf(w, "would open a console on %s, GPIB address %d\n",
			util.FormatAddr(m.Host, m.Port), m.Address)
		fmt.Fprintf(w, "timeout %v, buffer %d bytes\n", m.Options.Timeout, m.Options.BufferSize)
	case *core.ProbeMode:
		fmt.Fprintf(w, "would probe %d adapter(s)\n", len(m.Targets))
	case *core.BroadcastMode:
		n := 0
		for _, a := range m.Bench.Adapters {
			n += len(a.Devices)
		}
		fmt.Fprintf(w, "would broadcast %q to %d device(s) on %d adapter(s)\n",
			m.Command, n, len(m.Bench.Adapters))
	}
	if cfg.TunnelEnabled {
		fmt.Fprintf(w, "via SSH gateway %s@%s:%d\n", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `gpiblan - GPIB-LAN adapter client v%s

Talks to instruments behind a Prologix-style GPIB-to-Ethernet adapter.

Usage:
  gpiblan [options] <adapter-host>[:port] [command]     One command, or a console
  gpiblan --bench <file> --device <name> [command]       Device from a bench file
  gpiblan --bench <file> --broadcast <command>           Every bench device
  gpiblan -z [--bench <file> | <adapter-host>]           Probe adapters

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  gpiblan -a 16 192.168.1.82 '*IDN?'                   Identify instrument 16
  gpiblan -a 5 192.168.1.82 'VSET 12.0'                Program a supply
  gpiblan -a 22 192.168.1.82                           Interactive console
  gpiblan -b bench.toml -d dmm 'MEAS:VOLT:DC?'         Query by device name
  gpiblan -b bench.toml --broadcast '*RST'             Reset the whole bench
  gpiblan -z -b bench.toml                             Which adapters answer?
  gpiblan -T lab@gateway -a 16 10.0.0.5 '*IDN?'        Through an SSH gateway

Environment:
  GPIBLAN_HOST, GPIBLAN_PORT, GPIBLAN_ADDR, GPIBLAN_TIMEOUT_MS,
  GPIBLAN_CONNECT_TIMEOUT_MS, GPIBLAN_BUFFER, GPIBLAN_RETRIES,
  GPIBLAN_BENCH, GPIBLAN_TUNNEL, GPIBLAN_SSH_KEY, GPIBLAN_VERBOSE
`)
}
