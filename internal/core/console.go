package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gpiblan/bench"
	"gpiblan/gpib"
	gerr "gpiblan/internal/errors"
)

// ConsoleMode reads commands line by line and sends them to one
// adapter.
//
// Line syntax:
//
//	*IDN?          send to the current address, print the reply
//	@22 READ?      select address 22, then send
//	@22            select address 22
//	++addr 22      same as "@22"
//	++ver          other adapter commands are sent verbatim
type ConsoleMode struct {
	Host       string
	Port       int
	Address    int // initial address, gpib.AddressUnset keeps the adapter's
	Options    bench.Options
	ShowPrompt bool

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

// Run connects and processes input until EOF.
func (m *ConsoleMode) Run(ctx context.Context) error {
	if m.Options.Dialer != nil {
		defer m.Options.Dialer.Close()
	}

	sess, err := bench.Connect(ctx, m.Host, m.Port, m.Options)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Host, err)
	}
	defer sess.Close()

	if m.Address != gpib.AddressUnset {
		if err := sess.SelectAddress(m.Address); err != nil {
			return err
		}
	}

	in := m.Stdin
	if in == nil {
		in = os.Stdin
	}
	out := stdoutOr(m.Stdout)

	sc := bufio.NewScanner(in)
	for {
		if m.ShowPrompt {
			fmt.Fprintf(out, "gpib[%d]> ", sess.CurrentAddress())
		}
		if !sc.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := m.execute(sess, strings.TrimSpace(sc.Text()), out)
		if err == nil {
			continue
		}
		// Typos and bad addresses are reported; the session is intact.
		var pe *gerr.IntegerParseError
		if gerr.IsMisuse(err) || gerr.As(err, &pe) {
			m.Options.Logger.Error("%v", err)
			continue
		}
		return err
	}
	if m.ShowPrompt {
		fmt.Fprintln(out)
	}
	return sc.Err()
}

func (m *ConsoleMode) execute(sess *gpib.Session, line string, out io.Writer) error {
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	switch {
	case strings.HasPrefix(line, "@"):
		addrText, command, _ := strings.Cut(line[1:], " ")
		a, err := gpib.ParseAddress(addrText)
		if err != nil {
			return err
		}
		if err := sess.SelectAddress(a); err != nil {
			return err
		}
		// The rest is an ordinary line for the newly selected device.
		return m.execute(sess, strings.TrimSpace(command), out)

	case strings.HasPrefix(line, "++addr "):
		// Route through the session so its address cache stays right.
		a, err := gpib.ParseAddress(strings.TrimPrefix(line, "++addr "))
		if err != nil {
			return err
		}
		return sess.SelectAddress(a)

	case strings.HasPrefix(line, "++"):
		if _, err := sess.SendRaw(withNewline(line)); err != nil {
			return err
		}
		// An adapter command without arguments reports its setting.
		if !strings.Contains(line, " ") {
			return m.readReply(sess, out)
		}
		return nil
	}

	if _, err := sess.SendRaw(withNewline(line)); err != nil {
		return err
	}
	if expectsReply(line) {
		return m.readReply(sess, out)
	}
	return nil
}

func (m *ConsoleMode) readReply(sess *gpib.Session, out io.Writer) error {
	reply, err := sess.Read()
	if err != nil {
		return err
	}
	if reply == "" {
		m.Options.Logger.Verbose("no reply before timeout")
		return nil
	}
	return printReply(out, reply)
}
