package gpib

import gerr "gpiblan/internal/errors"

// Error kinds returned by this package.  They are defined in
// gpiblan/internal/errors and re-exported here so callers can match
// them with errors.As.
type (
	TransportError         = gerr.TransportError
	MalformedResponseError = gerr.MalformedResponseError
	IntegerParseError      = gerr.IntegerParseError
	BufferOverflowError    = gerr.BufferOverflowError
	InvalidAddressError    = gerr.InvalidAddressError
	UnknownDeviceError     = gerr.UnknownDeviceError
)

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = gerr.ErrSessionClosed
