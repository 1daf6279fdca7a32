package config

import (
	"time"

	"gpiblan/gpib"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the bench file, and environment variables.

const (
	// DefaultPort is the adapter's TCP port.
	DefaultPort = gpib.DefaultPort

	// DefaultTimeout is the per-operation read/write timeout.
	DefaultTimeout = gpib.DefaultTimeout

	// DefaultConnectTimeout bounds the TCP connect to an adapter.
	DefaultConnectTimeout = gpib.DefaultConnectTimeout

	// DefaultBufferSize is the receive buffer capacity per session.
	DefaultBufferSize = gpib.DefaultBufferSize

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultTunnelTimeout bounds the SSH gateway connect.
	DefaultTunnelTimeout = 10 * time.Second

	// DefaultMaxParallelAdapters limits how many adapters a broadcast
	// or probe drives at once.
	DefaultMaxParallelAdapters = 16
)
