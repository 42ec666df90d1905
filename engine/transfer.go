package engine

import (
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/rangeledger"
)

// TransferPartial moves the lowest cut ids of node to the recipient, where
// they become a new tail node. The rest of the node stays where it is in the
// sender's queue, shrunk from the front. When cut is the whole node it is
// unlinked from the sender.
func (e *Engine) TransferPartial(
	tx *rangeledger.Txn, from, to *ownerqueue.Queue, node ownerqueue.NodeID, cut uint64,
) (bitfield.Range, error) {
	n, ok := from.Node(node)
	if !ok {
		return bitfield.Range{}, fmt.Errorf("%w: node %d of %s", ErrGlyphNotFound, node, from.Owner())
	}
	if cut == 0 || cut > n.Size {
		return bitfield.Range{}, fmt.Errorf("%w: cut %d from a node of %d", ErrInvalidQuantity, cut, n.Size)
	}
	if to.Owner().IsZero() {
		return bitfield.Range{}, bitfield.ErrInvalidOwner
	}
	if _, err := e.record(tx, from, n); err != nil {
		return bitfield.Range{}, err
	}
	return e.transferPartial(tx, from, to, n, cut)
}

func (e *Engine) transferPartial(
	tx *rangeledger.Txn, from, to *ownerqueue.Queue, n ownerqueue.Node, cut uint64,
) (bitfield.Range, error) {
	moved := bitfield.Range{Owner: to.Owner(), StartID: n.StartID, Size: cut}

	// The moved piece keeps the original key, so its record replaces the
	// combined one.
	if err := put(tx, moved); err != nil {
		return bitfield.Range{}, err
	}
	if cut == n.Size {
		if _, err := from.Remove(n.ID); err != nil {
			return bitfield.Range{}, inconsistent(err)
		}
	} else {
		kept := bitfield.Range{Owner: from.Owner(), StartID: n.StartID + cut, Size: n.Size - cut}
		if err := put(tx, kept); err != nil {
			return bitfield.Range{}, err
		}
		if err := from.Resize(n.ID, kept.StartID, kept.Size); err != nil {
			return bitfield.Range{}, inconsistent(err)
		}
	}
	if _, err := to.Append(moved.StartID, moved.Size); err != nil {
		return bitfield.Range{}, inconsistent(err)
	}
	return moved, nil
}

// Transfer moves qty unstaked glyphs from the head of the sender's queue to
// the recipient, one TransferPartial per node consumed. The returned pieces
// are in the order they were moved. Transferring to the sender validates and
// then changes nothing.
func (e *Engine) Transfer(tx *rangeledger.Txn, from, to *ownerqueue.Queue, qty uint64) ([]bitfield.Range, error) {
	if to.Owner().IsZero() {
		return nil, bitfield.ErrInvalidOwner
	}
	if err := e.checkHeadTake(tx, from, qty); err != nil {
		return nil, err
	}
	if from.Owner() == to.Owner() {
		return nil, nil
	}

	var pieces []bitfield.Range
	for remaining := qty; remaining > 0; {
		n, _ := from.Node(from.Head())
		cut := min(n.Size, remaining)
		moved, err := e.transferPartial(tx, from, to, n, cut)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, moved)
		remaining -= cut
	}
	e.log.Debugf("transfer: %s -> %s %d glyphs in %d pieces", from.Owner(), to.Owner(), qty, len(pieces))
	return pieces, nil
}
