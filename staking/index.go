// Package staking enumerates each owner's staked glyph ids.
//
// The range ledger's staked flag is authoritative. The index exists so an
// owner's staked glyphs can be listed without scanning the ledger. Each owner
// has a dense array of ids, and a reverse map records where in that array an
// id lives so removal is a swap with the last element. The order of an
// owner's array is not meaningful.
package staking

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/forestrie/go-glyphledger/bitfield"
)

var (
	ErrAlreadyIndexed = errors.New("the glyph is already in the staking index")
	ErrNotIndexed     = errors.New("the glyph is not in the staking index")
	ErrWrongOwner     = errors.New("the glyph is indexed under a different owner")
	ErrCorrupt        = errors.New("the staking index is inconsistent")
)

// Entry locates a staked id in its owner's array.
type Entry struct {
	Owner bitfield.Address
	Pos   int
}

// Index is safe for concurrent use. Different owners are mutated under
// different owner locks, and they share the reverse map.
type Index struct {
	mu      sync.RWMutex
	staked  map[bitfield.Address][]uint64
	entries map[uint64]Entry
}

func NewIndex() *Index {
	return &Index{
		staked:  make(map[bitfield.Address][]uint64),
		entries: make(map[uint64]Entry),
	}
}

// Stake appends id to the owner's array.
func (x *Index) Stake(owner bitfield.Address, id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[id]; ok {
		return fmt.Errorf("%w: %d held by %s", ErrAlreadyIndexed, id, e.Owner)
	}
	x.entries[id] = Entry{Owner: owner, Pos: len(x.staked[owner])}
	x.staked[owner] = append(x.staked[owner], id)
	return nil
}

// Unstake removes id by moving the owner's last staked id in to its slot.
func (x *Index) Unstake(owner bitfield.Address, id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotIndexed, id)
	}
	if e.Owner != owner {
		return fmt.Errorf("%w: %d held by %s", ErrWrongOwner, id, e.Owner)
	}
	ids := x.staked[owner]
	last := len(ids) - 1
	if e.Pos != last {
		moved := ids[last]
		ids[e.Pos] = moved
		x.entries[moved] = Entry{Owner: owner, Pos: e.Pos}
	}
	ids = ids[:last]
	if len(ids) == 0 {
		delete(x.staked, owner)
	} else {
		x.staked[owner] = ids
	}
	delete(x.entries, id)
	return nil
}

// Staked returns a copy of the owner's staked ids.
func (x *Index) Staked(owner bitfield.Address) []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]uint64(nil), x.staked[owner]...)
}

func (x *Index) Count(owner bitfield.Address) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.staked[owner])
}

// Total is the number of staked glyphs across all owners.
func (x *Index) Total() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func (x *Index) Entry(id uint64) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[id]
	return e, ok
}

// Owners lists every owner with at least one staked glyph, in address order.
func (x *Index) Owners() []bitfield.Address {
	x.mu.RLock()
	defer x.mu.RUnlock()
	owners := make([]bitfield.Address, 0, len(x.staked))
	for o := range x.staked {
		owners = append(owners, o)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Compare(owners[j]) < 0 })
	return owners
}

// Check verifies the arrays and the reverse map describe the same set.
func (x *Index) Check() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var n int
	for owner, ids := range x.staked {
		if len(ids) == 0 {
			return fmt.Errorf("%w: empty array kept for %s", ErrCorrupt, owner)
		}
		for pos, id := range ids {
			e, ok := x.entries[id]
			if !ok || e.Owner != owner || e.Pos != pos {
				return fmt.Errorf("%w: %s[%d] = %d, reverse entry %+v", ErrCorrupt, owner, pos, id, e)
			}
		}
		n += len(ids)
	}
	if n != len(x.entries) {
		return fmt.Errorf("%w: %d array slots, %d reverse entries", ErrCorrupt, n, len(x.entries))
	}
	return nil
}

// Export copies every owner's array.
func (x *Index) Export() map[bitfield.Address][]uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[bitfield.Address][]uint64, len(x.staked))
	for o, ids := range x.staked {
		out[o] = append([]uint64(nil), ids...)
	}
	return out
}

// Restore builds an index whose arrays are exactly those given.
func Restore(staked map[bitfield.Address][]uint64) (*Index, error) {
	x := NewIndex()
	for owner, ids := range staked {
		for _, id := range ids {
			if err := x.Stake(owner, id); err != nil {
				return nil, err
			}
		}
	}
	return x, nil
}
