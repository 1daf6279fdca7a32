package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gpiblan/bench"
	"gpiblan/gpib"
)

// QueryMode connects to one adapter, sends a single command and
// optionally prints the instrument's reply.
type QueryMode struct {
	Host    string
	Port    int
	Address int // gpib.AddressUnset sends to whatever is selected
	Command string
	Query   bool // read a reply even if Command does not end in '?'
	Options bench.Options

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

// Run executes the command.
func (m *QueryMode) Run(ctx context.Context) error {
	if m.Options.Dialer != nil {
		defer m.Options.Dialer.Close()
	}

	sess, err := bench.Connect(ctx, m.Host, m.Port, m.Options)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Host, err)
	}
	defer sess.Close()

	command := withNewline(m.Command)
	switch {
	case strings.HasPrefix(command, "++"):
		_, err = sess.SendRaw(command)
	case m.Address != gpib.AddressUnset:
		_, err = sess.SendTo(m.Address, command)
	default:
		_, err = sess.SendRaw(command)
	}
	if err != nil {
		return err
	}

	if !m.Query && !expectsReply(m.Command) {
		return nil
	}
	reply, err := sess.Read()
	if err != nil {
		return err
	}
	if reply == "" {
		m.Options.Logger.Warn("no reply from GPIB address %d before timeout", sess.CurrentAddress())
		return nil
	}
	return printReply(stdoutOr(m.Stdout), reply)
}
