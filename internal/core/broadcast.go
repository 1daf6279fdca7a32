package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gpiblan/bench"
	"gpiblan/config"
)

// BroadcastMode opens every adapter of a bench and sends one command
// to every device on it.
type BroadcastMode struct {
	Bench   *config.Bench
	Command string
	Query   bool
	Options bench.Options

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

// Run opens the bench, broadcasts, and prints one line per device.
func (m *BroadcastMode) Run(ctx context.Context) error {
	if m.Options.Dialer != nil {
		defer m.Options.Dialer.Close()
	}

	b, err := bench.Open(ctx, m.Bench, m.Options)
	if err != nil {
		return err
	}
	defer b.Close()

	query := m.Query || expectsReply(m.Command)
	results := b.Broadcast(ctx, withNewline(m.Command), query)

	out := stdoutOr(m.Stdout)
	for _, r := range results {
		label := fmt.Sprintf("%s/%s@%d", r.Adapter, r.Device, r.Address)
		switch {
		case r.Err != nil:
			m.Options.Logger.Error("%s: %v", label, r.Err)
		case query:
			fmt.Fprintf(out, "%s: %s\n", label, strings.TrimRight(r.Reply, "\r\n"))
		default:
			m.Options.Logger.Verbose("%s: sent", label)
		}
	}

	if failed := bench.Failed(results); len(failed) > 0 {
		return fmt.Errorf("broadcast: %d of %d devices failed", len(failed), len(results))
	}
	return nil
}
