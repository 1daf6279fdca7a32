package gpib

import gerr "gpiblan/internal/errors"

// Dispatcher sends a command to a GPIB address.  *Session and *Shared
// implement it.
type Dispatcher interface {
	SendTo(address int, command string) (int, error)
}

// Registry remembers the devices attached to one session and routes
// commands to them by identity.  Insertion order is kept; duplicate
// addresses are not rejected.
type Registry struct {
	dispatch Dispatcher
	devices  []Device
}

// NewRegistry returns an empty registry dispatching through d.
func NewRegistry(d Dispatcher) *Registry {
	return &Registry{dispatch: d}
}

// Add registers the device at address a and returns it.
func (r *Registry) Add(a int) (Device, error) {
	dev, err := NewDevice(a)
	if err != nil {
		return Device{}, err
	}
	r.devices = append(r.devices, dev)
	return dev, nil
}

// List returns a snapshot of the registered devices in insertion order.
func (r *Registry) List() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Lookup returns the registered device at address a.
func (r *Registry) Lookup(a int) (Device, bool) {
	for _, d := range r.devices {
		if d.address == a {
			return d, true
		}
	}
	return Device{}, false
}

// Len returns the number of registered devices.
func (r *Registry) Len() int { return len(r.devices) }

// SendToDevice sends command to dev.  dev must have been registered
// here; otherwise it fails with UnknownDeviceError without any I/O.
func (r *Registry) SendToDevice(dev Device, command string) (int, error) {
	if _, ok := r.Lookup(dev.address); !ok {
		return 0, &gerr.UnknownDeviceError{Address: dev.address}
	}
	return r.dispatch.SendTo(dev.address, command)
}
