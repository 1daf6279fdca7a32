package bench

import (
	"context"
	"errors"
	"time"

	"gpiblan/gpib"
	gerr "gpiblan/internal/errors"
	"gpiblan/internal/metrics"
	"gpiblan/internal/retry"
	"gpiblan/internal/transport"
	"gpiblan/util"
)

// Options controls how adapter sessions are opened.
type Options struct {
	Dialer         transport.Dialer // nil → plain TCP
	ConnectTimeout time.Duration    // 0 → gpib default
	Timeout        time.Duration    // overrides the bench/adapter timeout when > 0
	BufferSize     int              // overrides the bench buffer size when > 0
	Retries        int              // extra connect attempts after the first
	Logger         *util.Logger
	Metrics        *metrics.Collector
}

// Connect opens a session to host:port, retrying dial and handshake
// I/O failures up to o.Retries more times.  Protocol errors from the
// handshake (a garbled address reply) are not retried.
func Connect(ctx context.Context, host string, port int, o Options, extra ...gpib.Option) (*gpib.Session, error) {
	opts := []gpib.Option{
		gpib.WithPort(port),
		gpib.WithLogger(o.Logger),
		gpib.WithMetrics(o.Metrics),
	}
	if o.Dialer != nil {
		opts = append(opts, gpib.WithDialer(o.Dialer))
	}
	if o.ConnectTimeout > 0 {
		opts = append(opts, gpib.WithConnectTimeout(o.ConnectTimeout))
	}
	if o.Timeout > 0 {
		opts = append(opts, gpib.WithTimeout(o.Timeout))
	}
	if o.BufferSize > 0 {
		opts = append(opts, gpib.WithBufferSize(o.BufferSize))
	}
	opts = append(opts, extra...)

	b := retry.Attempts(o.Retries + 1)
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		o.Metrics.Reconnect()
		o.Logger.Warn("adapter %s: attempt %d failed: %v (retrying in %v)",
			util.FormatAddr(host, port), attempt, err, wait.Round(time.Millisecond))
	}

	var sess *gpib.Session
	err := b.Do(ctx, func(int) error {
		s, err := gpib.Connect(ctx, host, opts...)
		if err != nil {
			var te *gerr.TransportError
			if !errors.As(err, &te) {
				return retry.Permanent(err)
			}
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}
