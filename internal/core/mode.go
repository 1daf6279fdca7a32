// Package core is the orchestration layer.  It composes the gpib
// session, the bench and the transport into complete operational
// modes and provides a builder that selects the right mode from a
// Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  gpib  →  bench  →  core  →  cmd (CLI)
package core

import (
	"context"
	"io"
	"os"
	"strings"
)

// Mode represents a complete operational mode of gpiblan (one-shot
// command, interactive console, or bench broadcast).  Each mode owns
// its full lifecycle from connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}

// ── shared helpers ───────────────────────────────────────────────────

func stdoutOr(w io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return os.Stdout
}

// withNewline terminates command with "\n" unless it already is.
func withNewline(command string) string {
	if strings.HasSuffix(command, "\n") {
		return command
	}
	return command + "\n"
}

// expectsReply reports whether command is an instrument query by the
// SCPI/IEEE 488.2 convention of a trailing '?'.
func expectsReply(command string) bool {
	return strings.HasSuffix(strings.TrimSpace(command), "?")
}

// printReply writes reply to w, terminated by a newline.
func printReply(w io.Writer, reply string) error {
	if reply == "" {
		return nil
	}
	if !strings.HasSuffix(reply, "\n") {
		reply += "\n"
	}
	_, err := io.WriteString(w, reply)
	return err
}
