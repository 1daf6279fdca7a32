// Package transport decides how a connection to an adapter is opened:
// directly over TCP, or forwarded through an SSH gateway.  What is
// spoken over the connection is the gpib package's business.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to adapters.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
