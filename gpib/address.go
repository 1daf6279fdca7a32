package gpib

import (
	"strconv"
	"strings"

	gerr "gpiblan/internal/errors"
)

// GPIB address ranges accepted by the adapter's "++addr" command.
const (
	MinPrimaryAddress   = 0
	MaxPrimaryAddress   = 30
	MinSecondaryAddress = 96
	MaxSecondaryAddress = 126
)

// AddressUnset is the current address of a session whose adapter has
// not reported or been given one.
const AddressUnset = -1

// ValidAddress reports whether a is in 0-30 or 96-126.
func ValidAddress(a int) bool {
	return (a >= MinPrimaryAddress && a <= MaxPrimaryAddress) ||
		(a >= MinSecondaryAddress && a <= MaxSecondaryAddress)
}

// CheckAddress returns an [InvalidAddressError] for addresses outside
// the adapter's ranges.
func CheckAddress(a int) error {
	if !ValidAddress(a) {
		return &gerr.InvalidAddressError{Address: a}
	}
	return nil
}

// ParseAddress parses a decimal GPIB address such as "16".
func ParseAddress(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &gerr.IntegerParseError{Input: s, Err: err}
	}
	if err := CheckAddress(n); err != nil {
		return 0, err
	}
	return n, nil
}
