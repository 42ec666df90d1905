package glyphledger

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/engine"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/rangeledger"
)

// Mint creates size glyphs for owner with the next unassigned ids and
// returns the first of them.
func (l *Ledger) Mint(owner bitfield.Address, size uint64) (startID uint64, err error) {
	defer func() { l.metrics.observe("mint", size, err) }()
	if owner.IsZero() {
		return 0, bitfield.ErrInvalidOwner
	}
	if size == 0 {
		return 0, engine.ErrInvalidQuantity
	}
	if size > bitfield.MaxRangeSize {
		return 0, fmt.Errorf("%w: %d", bitfield.ErrRangeTooLarge, size)
	}

	unlock := l.lock(owner)
	defer unlock()
	st := l.st

	st.mu.Lock()
	startID = st.nextID
	if startID > bitfield.MaxStartID || bitfield.MaxStartID-startID < size-1 {
		st.mu.Unlock()
		return 0, fmt.Errorf("%w: next id %d, size %d", ErrIDSpaceExhausted, startID, size)
	}
	// Ids are reserved before the write so concurrent mints for other
	// owners get disjoint ids. An id reserved by a failed mint is skipped.
	st.nextID += size
	st.mu.Unlock()

	q := st.queue(owner)
	err = st.store.Update(func(tx *rangeledger.Txn) error {
		_, err := l.engine.Mint(tx, q, startID, size)
		return err
	})
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	a := st.account(owner)
	a.Balance += size
	a.Minted += size
	st.minted += size
	st.mu.Unlock()

	l.publish(BatchMint{To: owner, StartID: startID, Quantity: size})
	return startID, nil
}

// Transfer moves qty unstaked glyphs from the head of from's queue to to.
// One BatchTransfer is published per contiguous piece moved.
func (l *Ledger) Transfer(from, to bitfield.Address, qty uint64) (err error) {
	defer func() { l.metrics.observe("transfer", qty, err) }()
	if from.IsZero() || to.IsZero() {
		return bitfield.ErrInvalidOwner
	}
	if qty == 0 {
		return engine.ErrInvalidQuantity
	}

	unlock := l.lock(from, to)
	defer unlock()
	st := l.st

	if bal := l.balance(st, from); qty > bal {
		return fmt.Errorf("%w: %s holds %d, wants to send %d", ErrInsufficientBalance, from, bal, qty)
	}
	src, dst := st.queue(from), st.queue(to)
	var pieces []bitfield.Range
	err = st.store.Update(func(tx *rangeledger.Txn) (err error) {
		pieces, err = l.engine.Transfer(tx, src, dst, qty)
		return err
	})
	if err != nil || from == to {
		return err
	}

	st.mu.Lock()
	st.account(from).Balance -= qty
	st.account(from).Sent += qty
	st.account(to).Balance += qty
	st.account(to).Received += qty
	st.mu.Unlock()

	evs := make([]Event, 0, len(pieces))
	for _, p := range pieces {
		evs = append(evs, BatchTransfer{From: from, To: to, StartID: p.StartID, Quantity: p.Size})
	}
	l.publish(evs...)
	return nil
}

// Stake stakes the glyph id, which owner must hold unstaked.
func (l *Ledger) Stake(owner bitfield.Address, id uint64) (err error) {
	defer func() { l.metrics.observe("stake", 1, err) }()
	unlock := l.lock(owner)
	defer unlock()
	st := l.st

	r, err := st.store.FindEnclosing(id)
	if err != nil {
		return err
	}
	if r.Owner != owner {
		return fmt.Errorf("%w: %d", ErrNotOwner, id)
	}
	if r.Staked {
		return fmt.Errorf("%w: %d", ErrAlreadyStaked, id)
	}
	q := st.queue(owner)
	err = st.store.Update(func(tx *rangeledger.Txn) error {
		_, err := l.engine.ExtractSingle(tx, q, st.staked, id)
		return err
	})
	if err != nil {
		return err
	}
	l.publish(Staked{Owner: owner, StartID: id, Quantity: 1})
	return nil
}

// Unstake returns the staked glyph id to owner's queue, merging it with an
// adjacent range where there is one.
func (l *Ledger) Unstake(owner bitfield.Address, id uint64) (err error) {
	defer func() { l.metrics.observe("unstake", 1, err) }()
	unlock := l.lock(owner)
	defer unlock()
	st := l.st

	r, err := st.store.FindEnclosing(id)
	if err != nil {
		return err
	}
	if r.Owner != owner {
		return fmt.Errorf("%w: %d", ErrNotOwner, id)
	}
	if !r.Staked {
		return fmt.Errorf("%w: %d", ErrNotStaked, id)
	}
	q := st.queue(owner)
	err = st.store.Update(func(tx *rangeledger.Txn) error {
		_, err := l.engine.Coalesce(tx, q, st.staked, id)
		return err
	})
	if err != nil {
		return err
	}
	l.publish(Unstaked{Owner: owner, TokenID: id})
	return nil
}

// Burn destroys qty unstaked glyphs from the head of owner's queue.
func (l *Ledger) Burn(owner bitfield.Address, qty uint64) (err error) {
	defer func() { l.metrics.observe("burn", qty, err) }()
	if qty == 0 {
		return engine.ErrInvalidQuantity
	}
	unlock := l.lock(owner)
	defer unlock()
	st := l.st

	if bal := l.balance(st, owner); qty > bal {
		return fmt.Errorf("%w: %s holds %d, wants to burn %d", ErrInsufficientBalance, owner, bal, qty)
	}
	q := st.queue(owner)
	var pieces []bitfield.Range
	err = st.store.Update(func(tx *rangeledger.Txn) (err error) {
		pieces, err = l.engine.Burn(tx, q, qty)
		return err
	})
	if err != nil {
		return err
	}

	st.mu.Lock()
	a := st.account(owner)
	a.Balance -= qty
	a.Burned += qty
	st.burned += qty
	st.mu.Unlock()

	evs := make([]Event, 0, len(pieces))
	for _, p := range pieces {
		evs = append(evs, BatchBurn{From: owner, StartID: p.StartID, Quantity: p.Size})
	}
	l.publish(evs...)
	return nil
}

// Decompose replaces the unstaked range holding id with parts. Requeued
// parts go in before cursor, or where the range was when cursor is
// ownerqueue.NilNode. Staked parts publish one Staked event each.
func (l *Ledger) Decompose(
	owner bitfield.Address, id uint64, parts []engine.SubRange, cursor ownerqueue.NodeID,
) (err error) {
	defer func() { l.metrics.observe("decompose", 0, err) }()
	unlock := l.lock(owner)
	defer unlock()
	st := l.st

	r, err := st.store.FindEnclosing(id)
	if err != nil {
		return err
	}
	if r.Owner != owner {
		return fmt.Errorf("%w: %d", ErrNotOwner, id)
	}
	if r.Staked {
		return fmt.Errorf("%w: %d", ErrAlreadyStaked, id)
	}
	q := st.queue(owner)
	var out []bitfield.Range
	err = st.store.Update(func(tx *rangeledger.Txn) (err error) {
		out, err = l.engine.Decompose(tx, q, st.staked, id, parts, cursor)
		return err
	})
	if err != nil {
		return err
	}

	var evs []Event
	var staked uint64
	for _, p := range out {
		if p.Staked {
			evs = append(evs, Staked{Owner: owner, StartID: p.StartID, Quantity: p.Size})
			staked += p.Size
		}
	}
	if staked > 0 {
		l.metrics.observe("stake", staked, nil)
	}
	l.publish(evs...)
	return nil
}

func (l *Ledger) balance(st *state, owner bitfield.Address) uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	if a, ok := st.accounts[owner]; ok {
		return a.Balance
	}
	return 0
}

// IsNotFound reports whether err means a glyph id or quantity could not be
// found in the ledger.
func IsNotFound(err error) bool {
	return errors.Is(err, rangeledger.ErrTokenNotFound) || errors.Is(err, engine.ErrGlyphNotFound)
}
