package engine

import "errors"

var (
	ErrGlyphNotFound       = errors.New("the owner queue holds fewer glyphs than requested")
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrInvalidRangeSplits  = errors.New("sub range sizes do not sum to the size of the range")
	ErrRangesNotSequential = errors.New("sub ranges must be strictly increasing and contiguous")
	ErrRangeOutOfBounds    = errors.New("a sub range escapes the bounds of the range")
	ErrInvalidCursor       = errors.New("the cursor is not a node in the owner queue")
	ErrInvalidState        = errors.New("ledger and owner queue disagree")
)
