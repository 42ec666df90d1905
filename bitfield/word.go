package bitfield

import (
	"encoding/binary"
	"fmt"
)

const (
	WordBytes = 32

	RangeOwnerFirstByte = 0
	RangeOwnerEnd       = RangeOwnerFirstByte + AddressBytes
	// The low 96 bits are split in to a high uint64 and a low uint32
	RangeHiFirstByte = RangeOwnerEnd
	RangeHiEnd       = RangeHiFirstByte + 8
	RangeLoFirstByte = RangeHiEnd
	RangeLoEnd       = RangeLoFirstByte + 4

	StartIDBits = 63
	SizeBits    = 32

	MaxStartID   = uint64(1)<<StartIDBits - 1
	MaxRangeSize = uint64(1)<<SizeBits - 1

	sizeShift = 1
	// the top bit of size spills from the low uint32 in to the high uint64
	sizeSpill = SizeBits - 1
)

// Word is a packed fixed width record.
type Word [WordBytes]byte

// WordFromBytes copies b in to a Word.
func WordFromBytes(b []byte) (Word, error) {
	var w Word
	if len(b) != WordBytes {
		return w, fmt.Errorf("%w: got %d", ErrWordLength, len(b))
	}
	copy(w[:], b)
	return w, nil
}

func (w Word) IsZero() bool {
	return w == Word{}
}

// Range is the unpacked form of a range record: the glyph ids
// [StartID, StartID+Size) all owned by Owner and all sharing Staked.
type Range struct {
	Owner   Address
	StartID uint64
	Size    uint64
	Staked  bool
}

// End returns the first id after the range.
func (r Range) End() uint64 { return r.StartID + r.Size }

// Last returns the last id in the range. It is undefined for an empty range.
func (r Range) Last() uint64 { return r.StartID + r.Size - 1 }

func (r Range) Contains(id uint64) bool {
	return id >= r.StartID && id < r.StartID+r.Size
}

func (r Range) String() string {
	state := "queued"
	if r.Staked {
		state = "staked"
	}
	return fmt.Sprintf("%s[%d,%d) %s", r.Owner, r.StartID, r.End(), state)
}

// PackRange encodes r in the range record layout.
func PackRange(r Range) (Word, error) {
	var w Word
	if r.Owner.IsZero() {
		return w, ErrInvalidOwner
	}
	if r.Size == 0 {
		return w, ErrRangeEmpty
	}
	if r.Size > MaxRangeSize {
		return w, fmt.Errorf("%w: %d", ErrRangeTooLarge, r.Size)
	}
	if r.StartID > MaxStartID {
		return w, fmt.Errorf("%w: %d", ErrStartIDTooLarge, r.StartID)
	}

	var staked uint32
	if r.Staked {
		staked = 1
	}
	hi := r.StartID<<1 | r.Size>>sizeSpill
	lo := uint32(r.Size<<sizeShift) | staked

	copy(w[RangeOwnerFirstByte:RangeOwnerEnd], r.Owner[:])
	binary.BigEndian.PutUint64(w[RangeHiFirstByte:RangeHiEnd], hi)
	binary.BigEndian.PutUint32(w[RangeLoFirstByte:RangeLoEnd], lo)
	return w, nil
}

// MustPackRange is PackRange for callers that have already validated r.
func MustPackRange(r Range) Word {
	w, err := PackRange(r)
	if err != nil {
		panic(err)
	}
	return w
}

// UnpackRange decodes a word produced by PackRange.
func UnpackRange(w Word) Range {
	var r Range
	copy(r.Owner[:], w[RangeOwnerFirstByte:RangeOwnerEnd])
	hi := binary.BigEndian.Uint64(w[RangeHiFirstByte:RangeHiEnd])
	lo := binary.BigEndian.Uint32(w[RangeLoFirstByte:RangeLoEnd])

	r.Staked = lo&1 == 1
	r.Size = (hi&1)<<sizeSpill | uint64(lo>>sizeShift)
	r.StartID = hi >> 1
	return r
}
