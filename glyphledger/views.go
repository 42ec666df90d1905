package glyphledger

import (
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/ownerqueue"
)

// AccountInfo is the aggregate view of one owner.
type AccountInfo struct {
	Owner    bitfield.Address
	Balance  uint64
	Unstaked uint64
	Staked   uint64
	Minted   uint64
	Burned   uint64
	Received uint64
	Sent     uint64
}

// QueueRanges lists owner's unstaked ranges in queue order.
func (l *Ledger) QueueRanges(owner bitfield.Address) []ownerqueue.Span {
	unlock := l.lock(owner)
	defer unlock()
	if q, ok := l.st.lookup(owner); ok {
		return q.Ranges()
	}
	return nil
}

// QueueGlyphIDs lists every unstaked glyph id of owner in queue order. It is
// proportional to the owner's balance and meant for diagnostics.
func (l *Ledger) QueueGlyphIDs(owner bitfield.Address) []uint64 {
	unlock := l.lock(owner)
	defer unlock()
	if q, ok := l.st.lookup(owner); ok {
		return q.GlyphIDs()
	}
	return nil
}

// RangeInfo resolves id to the range holding it.
func (l *Ledger) RangeInfo(id uint64) (bitfield.Range, error) {
	l.global.RLock()
	defer l.global.RUnlock()
	return l.st.store.FindEnclosing(id)
}

func (l *Ledger) OwnerOf(id uint64) (bitfield.Address, error) {
	r, err := l.RangeInfo(id)
	if err != nil {
		return bitfield.Address{}, err
	}
	return r.Owner, nil
}

// IsStaked reads the staked flag of the range record holding id.
func (l *Ledger) IsStaked(id uint64) (bool, error) {
	r, err := l.RangeInfo(id)
	if err != nil {
		return false, err
	}
	return r.Staked, nil
}

// StakedIDs lists owner's staked glyphs in no particular order.
func (l *Ledger) StakedIDs(owner bitfield.Address) []uint64 {
	l.global.RLock()
	defer l.global.RUnlock()
	return l.st.staked.Staked(owner)
}

func (l *Ledger) BalanceOf(owner bitfield.Address) uint64 {
	l.global.RLock()
	defer l.global.RUnlock()
	return l.balance(l.st, owner)
}

func (l *Ledger) Account(owner bitfield.Address) AccountInfo {
	unlock := l.lock(owner)
	defer unlock()
	st := l.st
	info := AccountInfo{
		Owner:  owner,
		Staked: uint64(st.staked.Count(owner)),
	}
	if q, ok := st.lookup(owner); ok {
		info.Unstaked = q.Units()
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if a, ok := st.accounts[owner]; ok {
		info.Balance = a.Balance
		info.Minted = a.Minted
		info.Burned = a.Burned
		info.Received = a.Received
		info.Sent = a.Sent
	}
	return info
}

// Owners lists every owner that has held a glyph, in address order.
func (l *Ledger) Owners() []bitfield.Address {
	l.global.RLock()
	defer l.global.RUnlock()
	return l.st.owners()
}

// Minted is the number of glyphs ever minted.
func (l *Ledger) Minted() uint64 {
	l.global.RLock()
	defer l.global.RUnlock()
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	return l.st.minted
}

// Burned is the number of glyphs ever burned.
func (l *Ledger) Burned() uint64 {
	l.global.RLock()
	defer l.global.RUnlock()
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	return l.st.burned
}

// NextTokenID is the id the next minted glyph will get.
func (l *Ledger) NextTokenID() uint64 {
	l.global.RLock()
	defer l.global.RUnlock()
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	return l.st.nextID
}

func (l *Ledger) LiveRanges() int {
	l.global.RLock()
	defer l.global.RUnlock()
	return l.st.store.Len()
}

func (l *Ledger) StakedTotal() int {
	l.global.RLock()
	defer l.global.RUnlock()
	return l.st.staked.Total()
}

// WalkRanges visits every range record in id order until fn returns false.
func (l *Ledger) WalkRanges(fn func(r bitfield.Range) bool) {
	l.global.RLock()
	defer l.global.RUnlock()
	l.st.store.Walk(fn)
}
