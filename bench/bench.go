// Package bench drives every adapter and instrument listed in a bench
// file.  It keeps one shared session per adapter, resolves device
// names to (adapter, address) pairs and broadcasts commands to the
// whole bench in parallel.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gpiblan/config"
	"gpiblan/gpib"
	"gpiblan/util"
)

// Bench holds the open sessions of a bench.
type Bench struct {
	adapters []*Adapter
	byName   map[string]*Adapter
	logger   *util.Logger

	// MaxParallel caps concurrently driven adapters in Broadcast.
	MaxParallel int
}

// Adapter is one open adapter of the bench.
type Adapter struct {
	spec     config.AdapterSpec
	shared   *gpib.Shared
	registry *gpib.Registry
	devices  map[string]gpib.Device
}

// Name returns the adapter's bench name.
func (a *Adapter) Name() string { return a.spec.Name }

// Spec returns the adapter's bench-file entry.
func (a *Adapter) Spec() config.AdapterSpec { return a.spec }

// Shared returns the adapter's lock-guarded session.
func (a *Adapter) Shared() *gpib.Shared { return a.shared }

// Devices returns the devices registered on this adapter, in bench
// file order.
func (a *Adapter) Devices() []config.DeviceSpec { return a.spec.Devices }

// Open connects to every adapter in spec and registers its devices.
// If any adapter cannot be opened, the ones already open are closed.
func Open(ctx context.Context, spec *config.Bench, o Options) (*Bench, error) {
	b := &Bench{
		byName:      make(map[string]*Adapter, len(spec.Adapters)),
		logger:      o.Logger,
		MaxParallel: config.DefaultMaxParallelAdapters,
	}
	if o.BufferSize <= 0 {
		o.BufferSize = spec.BufferSize
	}

	for _, as := range spec.Adapters {
		ao := o
		if ao.Timeout <= 0 {
			ao.Timeout = as.Timeout
		}
		sess, err := Connect(ctx, as.Host, as.Port, ao)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("adapter %s: %w", as.Name, err)
		}

		a := &Adapter{
			spec:     as,
			shared:   gpib.Share(sess),
			registry: gpib.NewRegistry(sess),
			devices:  make(map[string]gpib.Device, len(as.Devices)),
		}
		for _, ds := range as.Devices {
			dev, err := a.registry.Add(ds.Address)
			if err != nil {
				sess.Close()
				b.Close()
				return nil, fmt.Errorf("adapter %s: device %s: %w", as.Name, ds.Name, err)
			}
			a.devices[ds.Name] = dev
		}
		b.adapters = append(b.adapters, a)
		b.byName[as.Name] = a
		o.Logger.Verbose("bench: adapter %s open with %d device(s)", as.Name, a.registry.Len())
	}
	return b, nil
}

// Adapters returns the open adapters in bench file order.
func (b *Bench) Adapters() []*Adapter {
	out := make([]*Adapter, len(b.adapters))
	copy(out, b.adapters)
	return out
}

// Adapter returns the open adapter with the given name.
func (b *Bench) Adapter(name string) (*Adapter, bool) {
	a, ok := b.byName[name]
	return a, ok
}

// Resolve looks up a device by its bench name.
func (b *Bench) Resolve(name string) (*Target, error) {
	for _, a := range b.adapters {
		if dev, ok := a.devices[name]; ok {
			return &Target{Name: name, adapter: a, device: dev}, nil
		}
	}
	return nil, fmt.Errorf("no device named %q on the bench", name)
}

// Exclusive runs fn while holding every adapter of the bench.  The
// map passed to fn is keyed by adapter name; its sessions may be used
// freely until fn returns.
func (b *Bench) Exclusive(fn func(map[string]*gpib.Session) error) error {
	shared := make([]*gpib.Shared, len(b.adapters))
	sessions := make(map[string]*gpib.Session, len(b.adapters))
	for i, a := range b.adapters {
		shared[i] = a.shared
		sessions[a.Name()] = a.shared.Session()
	}

	l := gpib.LockAll(shared...)
	l.Lock()
	defer l.Unlock()
	return fn(sessions)
}

// Close closes every adapter session.
func (b *Bench) Close() error {
	var errs []error
	for _, a := range b.adapters {
		if err := a.shared.Close(); err != nil {
			errs = append(errs, fmt.Errorf("adapter %s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ── Target ───────────────────────────────────────────────────────────

// Target is a named device bound to its adapter session.
type Target struct {
	Name    string
	adapter *Adapter
	device  gpib.Device
}

// Adapter returns the adapter the device sits on.
func (t *Target) Adapter() *Adapter { return t.adapter }

// Device returns the device identity.
func (t *Target) Device() gpib.Device { return t.device }

// Send writes command to the device.
func (t *Target) Send(command string) (int, error) {
	var n int
	err := t.adapter.shared.Do(func(*gpib.Session) error {
		var err error
		n, err = t.adapter.registry.SendToDevice(t.device, command)
		return err
	})
	return n, err
}

// Query writes command to the device and reads its reply while holding
// the adapter, so no other command can slip in between.
func (t *Target) Query(command string) (string, error) {
	var reply string
	err := t.adapter.shared.Do(func(s *gpib.Session) error {
		if _, err := t.adapter.registry.SendToDevice(t.device, command); err != nil {
			return err
		}
		var err error
		reply, err = s.Read()
		return err
	})
	return reply, err
}

func (t *Target) String() string {
	return fmt.Sprintf("%s (%s %s)", t.Name, t.adapter.Name(), t.device)
}

// ── Broadcast ────────────────────────────────────────────────────────

// Result is the outcome of a broadcast for one device.
type Result struct {
	Adapter string
	Device  string
	Address int
	Reply   string
	Err     error
}

// Broadcast sends command to every device on the bench.  Adapters are
// driven in parallel, devices on one adapter in order while holding
// that adapter.  With query set each device's reply is read.  Results
// come back in bench file order; one device failing does not stop the
// others.
func (b *Bench) Broadcast(ctx context.Context, command string, query bool) []Result {
	offsets := make([]int, len(b.adapters))
	total := 0
	for i, a := range b.adapters {
		offsets[i] = total
		total += len(a.spec.Devices)
	}
	results := make([]Result, total)

	limit := b.MaxParallel
	if limit <= 0 {
		limit = len(b.adapters)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, a := range b.adapters {
		wg.Add(1)
		go func(a *Adapter, out []Result) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			b.broadcastAdapter(ctx, a, command, query, out)
		}(a, results[offsets[i]:offsets[i]+len(a.spec.Devices)])
	}
	wg.Wait()
	return results
}

func (b *Bench) broadcastAdapter(ctx context.Context, a *Adapter, command string, query bool, out []Result) {
	a.shared.Do(func(s *gpib.Session) error { //nolint:errcheck // per-device errors land in out
		for i, ds := range a.spec.Devices {
			r := &out[i]
			r.Adapter, r.Device, r.Address = a.Name(), ds.Name, ds.Address

			if err := ctx.Err(); err != nil {
				r.Err = err
				continue
			}
			if _, err := a.registry.SendToDevice(a.devices[ds.Name], command); err != nil {
				r.Err = err
				b.logger.Verbose("broadcast: %s/%s: %v", a.Name(), ds.Name, err)
				continue
			}
			if query {
				r.Reply, r.Err = s.Read()
			}
		}
		return nil
	})
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
