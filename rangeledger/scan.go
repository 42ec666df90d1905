package rangeledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
)

var ErrOverlap = errors.New("two range records overlap")

// Getter reads the record stored exactly at a key.
type Getter interface {
	Get(startID uint64) (bitfield.Range, bool)
}

// ScanEnclosing resolves id by scanning backwards, one key at a time, from id
// towards zero. It is the reference resolution that FindEnclosing must agree
// with.
//
// The cost is O(id) in the worst case. That is a scalability ceiling of the
// scan, which is why the store answers FindEnclosing with a predecessor seek
// instead.
func ScanEnclosing(g Getter, id uint64) (bitfield.Range, error) {
	cursor := id
	for cursor > 0 {
		r, ok := g.Get(cursor)
		if !ok {
			cursor--
			continue
		}
		if r.Contains(id) {
			return r, nil
		}
		// A record whose start is behind its slot lets us skip straight to it.
		if r.StartID < cursor {
			cursor = r.StartID
			continue
		}
		cursor--
	}
	return bitfield.Range{}, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
}

// Check verifies that every record is stored under its own start id and
// that no two records overlap.
func (s *Store) Check() error {
	var prev bitfield.Range
	var havePrev bool
	var err error
	s.tree().Root().Walk(func(k []byte, w bitfield.Word) bool {
		r := bitfield.UnpackRange(w)
		if binary.BigEndian.Uint64(k) != r.StartID {
			err = fmt.Errorf("%w: key %d holds %v", ErrKeyMismatch, binary.BigEndian.Uint64(k), r)
			return true
		}
		if havePrev && prev.End() > r.StartID {
			err = fmt.Errorf("%w: %v and %v", ErrOverlap, prev, r)
			return true
		}
		prev, havePrev = r, true
		return false
	})
	return err
}
