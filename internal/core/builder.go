package core

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"gpiblan/bench"
	"gpiblan/config"
	"gpiblan/internal/metrics"
	"gpiblan/internal/transport"
	"gpiblan/tunnel"
	"gpiblan/util"
)

// Build constructs the appropriate Mode from the given configuration.
// cfg must have passed Validate; when cfg.BenchPath is set cfg.Bench
// must already be loaded.
func Build(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) (Mode, error) {
	if cfg.BenchPath != "" && cfg.Bench == nil {
		return nil, fmt.Errorf("bench file %s not loaded", cfg.BenchPath)
	}
	if cfg.Broadcast {
		return buildBroadcast(cfg, logger, stats)
	}
	if cfg.Probe {
		return buildProbe(cfg, logger, stats)
	}

	opts := buildOptions(cfg, logger, stats)
	host, port, address := cfg.Host, cfg.Port, cfg.Address
	if cfg.Device != "" {
		as, ds, ok := cfg.Bench.FindDevice(cfg.Device)
		if !ok {
			return nil, fmt.Errorf("no device named %q in %s", cfg.Device, cfg.BenchPath)
		}
		host, port, address = as.Host, as.Port, ds.Address
		if opts.Timeout == 0 {
			opts.Timeout = as.Timeout
		}
		if opts.BufferSize == 0 {
			opts.BufferSize = cfg.Bench.BufferSize
		}
	}

	if _, err := util.ResolveAddr(host, port, cfg.NoDNS); err != nil {
		return nil, err
	}

	if cfg.Command == "" {
		return &ConsoleMode{
			Host:       host,
			Port:       port,
			Address:    address,
			Options:    opts,
			ShowPrompt: term.IsTerminal(int(os.Stdin.Fd())),
		}, nil
	}
	return &QueryMode{
		Host:    host,
		Port:    port,
		Address: address,
		Command: cfg.Command,
		Query:   cfg.Query,
		Options: opts,
	}, nil
}

func buildBroadcast(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) (Mode, error) {
	if cfg.NoDNS {
		for _, a := range cfg.Bench.Adapters {
			if _, err := util.ResolveAddr(a.Host, a.Port, true); err != nil {
				return nil, fmt.Errorf("adapter %s: %w", a.Name, err)
			}
		}
	}
	return &BroadcastMode{
		Bench:   cfg.Bench,
		Command: cfg.Command,
		Query:   cfg.Query,
		Options: buildOptions(cfg, logger, stats),
	}, nil
}

func buildProbe(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) (Mode, error) {
	var targets []ProbeTarget
	if cfg.Bench != nil {
		for _, a := range cfg.Bench.Adapters {
			targets = append(targets, ProbeTarget{Name: a.Name, Host: a.Host, Port: a.Port, Timeout: a.Timeout})
		}
	} else {
		targets = []ProbeTarget{{Name: cfg.Host, Host: cfg.Host, Port: cfg.Port}}
	}
	for _, t := range targets {
		if _, err := util.ResolveAddr(t.Host, t.Port, cfg.NoDNS); err != nil {
			return nil, fmt.Errorf("adapter %s: %w", t.Name, err)
		}
	}

	opts := buildOptions(cfg, logger, stats)
	if opts.BufferSize == 0 {
		opts.BufferSize = cfg.Bench.BufferSize
	}
	return &ProbeMode{Targets: targets, Options: opts}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

func buildOptions(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) bench.Options {
	o := bench.Options{
		Dialer:         buildDialer(cfg, logger),
		ConnectTimeout: cfg.ConnectTimeout,
		Retries:        cfg.Retries,
		Logger:         logger,
		Metrics:        stats,
	}
	// Bench files set their own buffer size; an explicit value wins.
	if cfg.Bench == nil || cfg.BufferSizeSet {
		o.BufferSize = cfg.BufferSize
	}
	// Likewise for timeouts, where each adapter entry carries its own.
	if cfg.Bench == nil || cfg.TimeoutSet {
		o.Timeout = cfg.Timeout
	}
	return o
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   config.DefaultTunnelTimeout,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.ConnectTimeout}
}
