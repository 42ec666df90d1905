package bitfield

import "errors"

var (
	ErrRangeTooLarge   = errors.New("the range size exceeds the width reserved for it in a range record")
	ErrStartIDTooLarge = errors.New("the range start id exceeds the width reserved for it in a range record")
	ErrInvalidOwner    = errors.New("a range record can not be owned by the null address")
	ErrRangeEmpty      = errors.New("a range record must cover at least one glyph")
	ErrAddressLength   = errors.New("an address must be exactly 20 bytes")
	ErrWordLength      = errors.New("a packed word must be exactly 32 bytes")
)
