package engine

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/rangeledger"
	"github.com/forestrie/go-glyphledger/staking"
)

// ExtractSingle stakes one glyph. The glyph leaves its queue node, which is
// removed, shrunk from either end, or split in two with the right remainder
// inserted directly after the left. The glyph becomes a size 1 staked record
// listed in the staking index.
func (e *Engine) ExtractSingle(
	tx *rangeledger.Txn, q *ownerqueue.Queue, idx *staking.Index, id uint64,
) (bitfield.Range, error) {
	r, err := tx.FindEnclosing(id)
	if err != nil {
		return bitfield.Range{}, err
	}
	if r.Owner != q.Owner() || r.Staked {
		return bitfield.Range{}, fmt.Errorf("%w: %s can not stake %d from %v", ErrInvalidState, q.Owner(), id, r)
	}
	n, ok := q.NodeAt(r.StartID)
	if !ok || n.Size != r.Size {
		return bitfield.Range{}, fmt.Errorf("%w: %v is not queued for %s", ErrInvalidState, r, q.Owner())
	}
	if ent, ok := idx.Entry(id); ok {
		return bitfield.Range{}, fmt.Errorf("%w: unstaked %d is indexed for %s", ErrInvalidState, id, ent.Owner)
	}

	staked := bitfield.Range{Owner: q.Owner(), StartID: id, Size: 1, Staked: true}
	if err := put(tx, staked); err != nil {
		return bitfield.Range{}, err
	}
	switch {
	case r.Size == 1:
		if _, err = q.Remove(n.ID); err != nil {
			return bitfield.Range{}, inconsistent(err)
		}
	case id == r.StartID:
		err = e.shrink(tx, q, n.ID, bitfield.Range{Owner: r.Owner, StartID: id + 1, Size: r.Size - 1})
	case id == r.Last():
		err = e.shrink(tx, q, n.ID, bitfield.Range{Owner: r.Owner, StartID: r.StartID, Size: r.Size - 1})
	default:
		left := bitfield.Range{Owner: r.Owner, StartID: r.StartID, Size: id - r.StartID}
		right := bitfield.Range{Owner: r.Owner, StartID: id + 1, Size: r.End() - id - 1}
		if err = e.shrink(tx, q, n.ID, left); err != nil {
			break
		}
		if err = put(tx, right); err != nil {
			break
		}
		if _, err = q.InsertAfter(n.ID, right.StartID, right.Size); err != nil {
			err = inconsistent(err)
		}
	}
	if err != nil {
		return bitfield.Range{}, err
	}
	if err := idx.Stake(q.Owner(), id); err != nil {
		return bitfield.Range{}, inconsistent(err)
	}
	e.log.Debugf("stake: %s %d from %v", q.Owner(), id, r)
	return staked, nil
}

// shrink rewrites a node and its record to cover r.
func (e *Engine) shrink(tx *rangeledger.Txn, q *ownerqueue.Queue, node ownerqueue.NodeID, r bitfield.Range) error {
	if err := put(tx, r); err != nil {
		return err
	}
	if err := q.Resize(node, r.StartID, r.Size); err != nil {
		return inconsistent(err)
	}
	return nil
}

// Coalesce unstakes one glyph and folds it back in to the queue. An unstaked
// neighbor of the same owner ending at id, or starting at id+1, absorbs it.
// With both neighbors present they merge in to one node. With neither, the
// glyph becomes a new head node. It returns the range now holding the glyph.
func (e *Engine) Coalesce(
	tx *rangeledger.Txn, q *ownerqueue.Queue, idx *staking.Index, id uint64,
) (bitfield.Range, error) {
	owner := q.Owner()
	r, ok := tx.Get(id)
	if !ok {
		return bitfield.Range{}, fmt.Errorf("%w: %d", rangeledger.ErrTokenNotFound, id)
	}
	if r.Owner != owner || !r.Staked || r.Size != 1 {
		return bitfield.Range{}, fmt.Errorf("%w: %s can not unstake %d from %v", ErrInvalidState, owner, id, r)
	}
	if ent, ok := idx.Entry(id); !ok || ent.Owner != owner {
		return bitfield.Range{}, fmt.Errorf("%w: staked %d is not indexed for %s", ErrInvalidState, id, owner)
	}

	left, hasLeft, err := e.neighbor(tx, q, id, -1)
	if err != nil {
		return bitfield.Range{}, err
	}
	right, hasRight, err := e.neighbor(tx, q, id, 1)
	if err != nil {
		return bitfield.Range{}, err
	}
	// A merge may not exceed the width of the size field.
	if hasLeft && hasRight && left.Size+1+right.Size > bitfield.MaxRangeSize {
		hasRight = false
	}
	if hasLeft && left.Size+1 > bitfield.MaxRangeSize {
		hasLeft = false
	}
	if hasRight && right.Size+1 > bitfield.MaxRangeSize {
		hasRight = false
	}

	var merged bitfield.Range
	switch {
	case hasLeft && hasRight:
		merged = bitfield.Range{Owner: owner, StartID: left.StartID, Size: left.Size + 1 + right.Size}
		tx.Delete(id)
		tx.Delete(right.StartID)
		if err = put(tx, merged); err != nil {
			break
		}
		if err = q.Resize(left.ID, merged.StartID, merged.Size); err != nil {
			err = inconsistent(err)
			break
		}
		if _, err = q.Remove(right.ID); err != nil {
			err = inconsistent(err)
		}
	case hasLeft:
		merged = bitfield.Range{Owner: owner, StartID: left.StartID, Size: left.Size + 1}
		tx.Delete(id)
		err = e.shrink(tx, q, left.ID, merged)
	case hasRight:
		// the glyph's own key becomes the start of the grown range
		merged = bitfield.Range{Owner: owner, StartID: id, Size: right.Size + 1}
		tx.Delete(right.StartID)
		err = e.shrink(tx, q, right.ID, merged)
	default:
		merged = bitfield.Range{Owner: owner, StartID: id, Size: 1}
		if err = put(tx, merged); err != nil {
			break
		}
		if _, err = q.Prepend(id, 1); err != nil {
			err = inconsistent(err)
		}
	}
	if err != nil {
		return bitfield.Range{}, err
	}
	if err := idx.Unstake(owner, id); err != nil {
		return bitfield.Range{}, inconsistent(err)
	}
	e.log.Debugf("unstake: %s %d in to %v", owner, id, merged)
	return merged, nil
}

// neighbor finds the queue node adjacent to id on the given side, if it
// holds unstaked glyphs of the queue's owner.
func (e *Engine) neighbor(
	tx *rangeledger.Txn, q *ownerqueue.Queue, id uint64, side int,
) (ownerqueue.Node, bool, error) {
	var r bitfield.Range
	switch {
	case side < 0 && id > 0:
		var err error
		r, err = tx.FindEnclosing(id - 1)
		if errors.Is(err, rangeledger.ErrTokenNotFound) {
			return ownerqueue.Node{}, false, nil
		}
		if err != nil {
			return ownerqueue.Node{}, false, err
		}
	case side > 0:
		var ok bool
		if r, ok = tx.Get(id + 1); !ok {
			return ownerqueue.Node{}, false, nil
		}
	default:
		return ownerqueue.Node{}, false, nil
	}
	if r.Owner != q.Owner() || r.Staked {
		return ownerqueue.Node{}, false, nil
	}
	n, ok := q.NodeAt(r.StartID)
	if !ok || n.Size != r.Size {
		return ownerqueue.Node{}, false, fmt.Errorf("%w: neighbor %v is not queued for %s", ErrInvalidState, r, q.Owner())
	}
	return n, true, nil
}
