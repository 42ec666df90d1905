package ownerqueue

import (
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
)

// Check walks the queue in both directions and verifies the links, the
// metadata word and the start id index agree with each other.
func (q *Queue) Check() error {
	m := q.Meta()
	if int(m.Size) != len(q.nodes) {
		return fmt.Errorf("%w: meta size %d, %d nodes", ErrCorrupt, m.Size, len(q.nodes))
	}
	if len(q.byStart) != len(q.nodes) {
		return fmt.Errorf("%w: %d indexed starts, %d nodes", ErrCorrupt, len(q.byStart), len(q.nodes))
	}

	var forward []NodeID
	var units uint64
	prev := NilNode
	for id := NodeID(m.Head); id != NilNode; {
		n, ok := q.nodes[id]
		if !ok {
			return fmt.Errorf("%w: dangling link to %d", ErrCorrupt, id)
		}
		if n.Prev != prev {
			return fmt.Errorf("%w: node %d prev %d, want %d", ErrCorrupt, id, n.Prev, prev)
		}
		if n.Size == 0 {
			return fmt.Errorf("%w: node %d is empty", ErrCorrupt, id)
		}
		if q.byStart[n.StartID] != id {
			return fmt.Errorf("%w: start %d not indexed to node %d", ErrCorrupt, n.StartID, id)
		}
		if uint64(id) >= m.NextNodeID {
			return fmt.Errorf("%w: node %d not below next id %d", ErrCorrupt, id, m.NextNodeID)
		}
		forward = append(forward, id)
		if len(forward) > len(q.nodes) {
			return fmt.Errorf("%w: cycle through node %d", ErrCorrupt, id)
		}
		units += n.Size
		prev, id = id, n.Next
	}
	if prev != NodeID(m.Tail) {
		return fmt.Errorf("%w: forward walk ends at %d, tail is %d", ErrCorrupt, prev, m.Tail)
	}
	if len(forward) != len(q.nodes) {
		return fmt.Errorf("%w: %d reachable of %d nodes", ErrCorrupt, len(forward), len(q.nodes))
	}
	if units != q.units {
		return fmt.Errorf("%w: nodes cover %d glyphs, counted %d", ErrCorrupt, units, q.units)
	}

	i := len(forward) - 1
	for id := NodeID(m.Tail); id != NilNode; id = q.nodes[id].Prev {
		if i < 0 || forward[i] != id {
			return fmt.Errorf("%w: backward walk diverges at node %d", ErrCorrupt, id)
		}
		i--
	}
	if i != -1 {
		return fmt.Errorf("%w: backward walk stopped short", ErrCorrupt)
	}
	return nil
}

// Export returns the metadata word and the nodes head to tail.
func (q *Queue) Export() (bitfield.Word, []Node) {
	nodes := make([]Node, 0, q.Len())
	q.Walk(func(n Node) bool {
		nodes = append(nodes, n)
		return true
	})
	return q.meta, nodes
}

// Restore rebuilds a queue from an exported metadata word and its nodes. The
// result is checked before it is returned.
func Restore(owner bitfield.Address, meta bitfield.Word, nodes []Node) (*Queue, error) {
	q := New(owner)
	q.meta = meta
	for _, n := range nodes {
		if n.ID == NilNode {
			return nil, fmt.Errorf("%w: node with the null id", ErrCorrupt)
		}
		if _, dup := q.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %d", ErrCorrupt, n.ID)
		}
		if _, dup := q.byStart[n.StartID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrStartInUse, n.StartID)
		}
		node := n
		q.nodes[n.ID] = &node
		q.byStart[n.StartID] = n.ID
		q.units += n.Size
	}
	if err := q.Check(); err != nil {
		return nil, err
	}
	return q, nil
}
