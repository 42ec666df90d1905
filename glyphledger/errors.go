package glyphledger

import "errors"

var (
	ErrInsufficientBalance = errors.New("the owner does not hold enough glyphs")
	ErrNotOwner            = errors.New("the glyph belongs to another owner")
	ErrAlreadyStaked       = errors.New("the glyph is already staked")
	ErrNotStaked           = errors.New("the glyph is not staked")
	ErrInvariant           = errors.New("ledger invariant violated")
	ErrIDSpaceExhausted    = errors.New("no token ids remain to mint")
)
