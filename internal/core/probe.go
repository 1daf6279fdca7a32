package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"gpiblan/bench"
	"gpiblan/config"
	"gpiblan/util"
)

// ProbeTarget is one adapter to check.
type ProbeTarget struct {
	Name    string
	Host    string
	Port    int
	Timeout time.Duration // used when the options carry none
}

// ProbeResult records whether an adapter completed the handshake.
type ProbeResult struct {
	Target  ProbeTarget
	Up      bool
	Address int // GPIB address the adapter reported
	Latency time.Duration
	Err     error
}

// ProbeMode opens a session to each target, reports the GPIB address
// the adapter has selected, and closes it again.  No instrument
// commands are sent.
type ProbeMode struct {
	Targets []ProbeTarget
	Options bench.Options

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

// Run probes all targets and prints one line per adapter.
func (m *ProbeMode) Run(ctx context.Context) error {
	if m.Options.Dialer != nil {
		defer m.Options.Dialer.Close()
	}
	if len(m.Targets) == 0 {
		return fmt.Errorf("no adapters to probe")
	}

	m.Options.Logger.Verbose("probing %d adapter(s)", len(m.Targets))
	results := ProbeAdapters(ctx, m.Targets, m.Options)

	out := stdoutOr(m.Stdout)
	down := 0
	for _, r := range results {
		addr := util.FormatAddr(r.Target.Host, r.Target.Port)
		if r.Up {
			fmt.Fprintf(out, "%s %s up, GPIB address %d (%v)\n",
				r.Target.Name, addr, r.Address, r.Latency.Round(time.Millisecond))
			continue
		}
		down++
		fmt.Fprintf(out, "%s %s down\n", r.Target.Name, addr)
		m.Options.Logger.Verbose("%s: %v", r.Target.Name, r.Err)
	}

	if down > 0 {
		return fmt.Errorf("probe: %d of %d adapters unreachable", down, len(results))
	}
	return nil
}

// ProbeAdapters checks every target concurrently and returns results
// in the same order as the input slice.
func ProbeAdapters(ctx context.Context, targets []ProbeTarget, o bench.Options) []ProbeResult {
	results := make([]ProbeResult, len(targets))
	sem := make(chan struct{}, config.DefaultMaxParallelAdapters)
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(idx int, t ProbeTarget) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			to := o
			if to.Timeout <= 0 {
				to.Timeout = t.Timeout
			}
			start := time.Now()
			sess, err := bench.Connect(ctx, t.Host, t.Port, to)
			if err != nil {
				results[idx] = ProbeResult{Target: t, Err: err}
				return
			}
			results[idx] = ProbeResult{
				Target:  t,
				Up:      true,
				Address: sess.CurrentAddress(),
				Latency: time.Since(start),
			}
			sess.Close()
		}(i, target)
	}

	wg.Wait()
	return results
}
