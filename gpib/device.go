package gpib

import "fmt"

// Device identifies one instrument on the bus by its GPIB address.
// It holds no connection state; two Devices are equal when their
// addresses are.  Instrument drivers build their command strings
// around [Device.Address] and hand them to [Session.SendTo] or
// [Registry.SendToDevice].
type Device struct {
	address int
}

// NewDevice returns the Device at address a.
func NewDevice(a int) (Device, error) {
	if err := CheckAddress(a); err != nil {
		return Device{}, err
	}
	return Device{address: a}, nil
}

// Address returns the device's GPIB address.
func (d Device) Address() int { return d.address }

func (d Device) String() string { return fmt.Sprintf("GPIB::%d", d.address) }
