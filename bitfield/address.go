package bitfield

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

const AddressBytes = 20

// Address identifies an account. The zero value is the null identifier and
// never owns a range.
type Address [AddressBytes]byte

// ParseAddress accepts a 40 character hex string, with or without the 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(s, "0x")
	if len(s) != AddressBytes*2 {
		return a, fmt.Errorf("%w: %q", ErrAddressLength, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Compare orders addresses by their bytes. It defines the global lock
// acquisition order for operations that touch two owners.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}
