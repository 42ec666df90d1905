package engine

import (
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/rangeledger"
	"github.com/forestrie/go-glyphledger/staking"
)

type Action uint8

const (
	// Requeue puts the sub range back in the owner's queue as its own node.
	Requeue Action = iota
	// Stake stakes every glyph of the sub range.
	Stake
)

func (a Action) String() string {
	switch a {
	case Requeue:
		return "requeue"
	case Stake:
		return "stake"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// SubRange is one piece of a decomposition.
type SubRange struct {
	StartID uint64
	Size    uint64
	Action  Action
}

func (s SubRange) End() uint64 { return s.StartID + s.Size }

// Decompose replaces the unstaked range enclosing id with the given
// partition of it. parts must be in ascending id order, contiguous, and cover
// the range exactly.
//
// Requeued parts keep ascending order and go in before cursor. A NilNode
// cursor means the position the range occupied. Staked parts become one size
// 1 staked record per glyph.
//
// The returned ranges mirror parts, with Staked set for the staked parts.
func (e *Engine) Decompose(
	tx *rangeledger.Txn, q *ownerqueue.Queue, idx *staking.Index,
	id uint64, parts []SubRange, cursor ownerqueue.NodeID,
) ([]bitfield.Range, error) {
	owner := q.Owner()
	r, err := tx.FindEnclosing(id)
	if err != nil {
		return nil, err
	}
	if r.Owner != owner || r.Staked {
		return nil, fmt.Errorf("%w: %s can not decompose %v", ErrInvalidState, owner, r)
	}
	n, ok := q.NodeAt(r.StartID)
	if !ok || n.Size != r.Size {
		return nil, fmt.Errorf("%w: %v is not queued for %s", ErrInvalidState, r, owner)
	}
	if err := checkPartition(r, parts); err != nil {
		return nil, err
	}
	before := n.Next
	if cursor != ownerqueue.NilNode {
		if _, ok := q.Node(cursor); !ok || cursor == n.ID {
			return nil, fmt.Errorf("%w: %d", ErrInvalidCursor, cursor)
		}
		before = cursor
	}
	for _, p := range parts {
		if p.Action != Stake {
			continue
		}
		for g := p.StartID; g < p.End(); g++ {
			if ent, ok := idx.Entry(g); ok {
				return nil, fmt.Errorf("%w: unstaked %d is indexed for %s", ErrInvalidState, g, ent.Owner)
			}
		}
	}

	if _, err := q.Remove(n.ID); err != nil {
		return nil, inconsistent(err)
	}
	tx.Delete(r.StartID)

	out := make([]bitfield.Range, 0, len(parts))
	for _, p := range parts {
		piece := bitfield.Range{Owner: owner, StartID: p.StartID, Size: p.Size, Staked: p.Action == Stake}
		out = append(out, piece)
		if !piece.Staked {
			if err := put(tx, piece); err != nil {
				return nil, err
			}
			if _, err := q.InsertBefore(before, p.StartID, p.Size); err != nil {
				return nil, inconsistent(err)
			}
			continue
		}
		for g := p.StartID; g < p.End(); g++ {
			if err := put(tx, bitfield.Range{Owner: owner, StartID: g, Size: 1, Staked: true}); err != nil {
				return nil, err
			}
			if err := idx.Stake(owner, g); err != nil {
				return nil, inconsistent(err)
			}
		}
	}
	e.log.Debugf("decompose: %s %v in to %d parts", owner, r, len(parts))
	return out, nil
}

// checkPartition reports the first way parts fails to partition r. Quantity
// is checked first, then the sum, then ordering, then bounds.
func checkPartition(r bitfield.Range, parts []SubRange) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: no sub ranges", ErrInvalidQuantity)
	}
	var sum uint64
	for i, p := range parts {
		if p.Size == 0 {
			return fmt.Errorf("%w: sub range %d is empty", ErrInvalidQuantity, i)
		}
		if p.Action != Requeue && p.Action != Stake {
			return fmt.Errorf("%w: sub range %d has action %v", ErrInvalidRangeSplits, i, p.Action)
		}
		if p.Size > r.Size || sum > r.Size-p.Size {
			return fmt.Errorf("%w: sizes exceed %d", ErrInvalidRangeSplits, r.Size)
		}
		sum += p.Size
	}
	if sum != r.Size {
		return fmt.Errorf("%w: sizes sum to %d, range has %d", ErrInvalidRangeSplits, sum, r.Size)
	}
	for i := 1; i < len(parts); i++ {
		if parts[i].StartID != parts[i-1].End() {
			return fmt.Errorf("%w: sub range %d starts at %d, want %d",
				ErrRangesNotSequential, i, parts[i].StartID, parts[i-1].End())
		}
	}
	if parts[0].StartID != r.StartID || parts[len(parts)-1].End() != r.End() {
		return fmt.Errorf("%w: [%d, %d) against %v",
			ErrRangeOutOfBounds, parts[0].StartID, parts[len(parts)-1].End(), r)
	}
	return nil
}
