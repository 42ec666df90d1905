// Package engine implements the operations that change the range ledger and
// the owner queues together: mint, transfer, stake, unstake, decompose and
// burn.
//
// Every operation validates completely before it writes anything. The ledger
// writes go through a rangeledger.Txn and are discarded unless the caller
// commits, but queue and staking index changes apply immediately, so an error
// returned after validation means the structures were already inconsistent.
// Such errors wrap ErrInvalidState.
//
// The caller holds the locks of every owner whose queue is passed in.
package engine

import (
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/rangeledger"
)

type Engine struct {
	log logger.Logger
}

func New(log logger.Logger) *Engine {
	return &Engine{log: log}
}

// Mint records size fresh glyphs starting at startID for the queue's owner.
// When the queue's tail ends exactly at startID the tail grows in place,
// otherwise a new tail node is appended. The returned range is the minted
// piece, not the node that holds it.
func (e *Engine) Mint(tx *rangeledger.Txn, q *ownerqueue.Queue, startID, size uint64) (bitfield.Range, error) {
	minted := bitfield.Range{Owner: q.Owner(), StartID: startID, Size: size}
	if size == 0 {
		return bitfield.Range{}, ErrInvalidQuantity
	}
	if _, err := bitfield.PackRange(minted); err != nil {
		return bitfield.Range{}, err
	}
	if minted.Last() > bitfield.MaxStartID || minted.Last() < startID {
		return bitfield.Range{}, fmt.Errorf("%w: last id of %v", bitfield.ErrStartIDTooLarge, minted)
	}
	if r, err := tx.FindEnclosing(startID); err == nil {
		return bitfield.Range{}, fmt.Errorf("%w: %d already belongs to %v", ErrInvalidState, startID, r)
	}

	if tail, ok := q.Node(q.Tail()); ok && tail.End() == startID && tail.Size+size <= bitfield.MaxRangeSize {
		if _, err := e.record(tx, q, tail); err != nil {
			return bitfield.Range{}, err
		}
		grown := bitfield.Range{Owner: q.Owner(), StartID: tail.StartID, Size: tail.Size + size}
		if err := put(tx, grown); err != nil {
			return bitfield.Range{}, err
		}
		if err := q.Resize(tail.ID, grown.StartID, grown.Size); err != nil {
			return bitfield.Range{}, inconsistent(err)
		}
		e.log.Debugf("mint: %s extended tail to %v", q.Owner(), grown)
		return minted, nil
	}

	if err := put(tx, minted); err != nil {
		return bitfield.Range{}, err
	}
	if _, err := q.Append(startID, size); err != nil {
		return bitfield.Range{}, inconsistent(err)
	}
	e.log.Debugf("mint: %v", minted)
	return minted, nil
}

// Burn destroys qty glyphs from the head of the queue, lowest ids of each
// node first. It returns one piece per node consumed.
func (e *Engine) Burn(tx *rangeledger.Txn, q *ownerqueue.Queue, qty uint64) ([]bitfield.Range, error) {
	if err := e.checkHeadTake(tx, q, qty); err != nil {
		return nil, err
	}

	var pieces []bitfield.Range
	for remaining := qty; remaining > 0; {
		n, _ := q.Node(q.Head())
		cut := min(n.Size, remaining)
		tx.Delete(n.StartID)
		if cut == n.Size {
			if _, err := q.Remove(n.ID); err != nil {
				return nil, inconsistent(err)
			}
		} else {
			rest := bitfield.Range{Owner: q.Owner(), StartID: n.StartID + cut, Size: n.Size - cut}
			if err := put(tx, rest); err != nil {
				return nil, err
			}
			if err := q.Resize(n.ID, rest.StartID, rest.Size); err != nil {
				return nil, inconsistent(err)
			}
		}
		pieces = append(pieces, bitfield.Range{Owner: q.Owner(), StartID: n.StartID, Size: cut})
		remaining -= cut
	}
	e.log.Debugf("burn: %s %d glyphs in %d pieces", q.Owner(), qty, len(pieces))
	return pieces, nil
}

// checkHeadTake validates taking qty glyphs from the head of q, including
// the ledger record of every node that would be touched.
func (e *Engine) checkHeadTake(tx *rangeledger.Txn, q *ownerqueue.Queue, qty uint64) error {
	if qty == 0 {
		return ErrInvalidQuantity
	}
	if qty > q.Units() {
		return fmt.Errorf("%w: want %d, %s has %d unstaked", ErrGlyphNotFound, qty, q.Owner(), q.Units())
	}
	var err error
	remaining := qty
	q.Walk(func(n ownerqueue.Node) bool {
		if _, err = e.record(tx, q, n); err != nil {
			return false
		}
		remaining -= min(n.Size, remaining)
		return remaining > 0
	})
	return err
}

// record returns the ledger record backing n, which must be an unstaked
// range of the queue's owner with exactly the node's bounds.
func (e *Engine) record(tx *rangeledger.Txn, q *ownerqueue.Queue, n ownerqueue.Node) (bitfield.Range, error) {
	r, ok := tx.Get(n.StartID)
	if !ok {
		return bitfield.Range{}, fmt.Errorf("%w: no record for node %d at %d", ErrInvalidState, n.ID, n.StartID)
	}
	if r.Owner != q.Owner() || r.Staked || r.Size != n.Size {
		return bitfield.Range{}, fmt.Errorf("%w: node %d of %s is backed by %v", ErrInvalidState, n.ID, q.Owner(), r)
	}
	return r, nil
}

func put(tx *rangeledger.Txn, r bitfield.Range) error {
	if err := tx.Put(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return nil
}

func inconsistent(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidState, err)
}
