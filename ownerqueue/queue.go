// Package ownerqueue maintains each owner's unstaked ranges as a doubly
// linked list of nodes.
//
// Queue order is whatever the callers impose through the insert primitives.
// It is not sorted by id.
//
// Node ids are allocated from the owner's metadata word and are never
// reused. They are unrelated to glyph ids. The zero node id is the null link.
//
// A Queue is not safe for concurrent use. Callers hold the owner's lock.
package ownerqueue

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
)

type NodeID uint64

const NilNode NodeID = 0

var (
	ErrNodeNotFound = errors.New("the node is not in the owner queue")
	ErrEmptyRange   = errors.New("a queue node must cover at least one glyph")
	ErrStartInUse   = errors.New("another node in the queue already starts at this id")
	ErrCorrupt      = errors.New("the owner queue is inconsistent")
)

// Node wraps one unstaked range.
type Node struct {
	ID      NodeID
	StartID uint64
	Size    uint64
	Prev    NodeID
	Next    NodeID
}

// End returns the first id after the node's range.
func (n Node) End() uint64 { return n.StartID + n.Size }

// Span is the (start id, size) view of a queued range.
type Span struct {
	StartID uint64
	Size    uint64
}

type Queue struct {
	owner bitfield.Address
	// meta is the packed bitfield.QueueMeta word
	meta    bitfield.Word
	nodes   map[NodeID]*Node
	byStart map[uint64]NodeID
	units   uint64
}

func New(owner bitfield.Address) *Queue {
	return &Queue{
		owner:   owner,
		meta:    bitfield.PackQueueMeta(bitfield.QueueMeta{NextNodeID: 1}),
		nodes:   make(map[NodeID]*Node),
		byStart: make(map[uint64]NodeID),
	}
}

func (q *Queue) Owner() bitfield.Address { return q.owner }

// Meta returns the unpacked metadata word.
func (q *Queue) Meta() bitfield.QueueMeta { return bitfield.UnpackQueueMeta(q.meta) }

// MetaWord returns the packed metadata word.
func (q *Queue) MetaWord() bitfield.Word { return q.meta }

func (q *Queue) setMeta(m bitfield.QueueMeta) { q.meta = bitfield.PackQueueMeta(m) }

func (q *Queue) Head() NodeID { return NodeID(q.Meta().Head) }
func (q *Queue) Tail() NodeID { return NodeID(q.Meta().Tail) }
func (q *Queue) Len() int     { return int(q.Meta().Size) }

// Units returns the number of glyphs covered by the queue.
func (q *Queue) Units() uint64 { return q.units }

// Node returns a copy of the node with the given id.
func (q *Queue) Node(id NodeID) (Node, bool) {
	n, ok := q.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// NodeAt returns the node whose range starts at startID.
func (q *Queue) NodeAt(startID uint64) (Node, bool) {
	id, ok := q.byStart[startID]
	if !ok {
		return Node{}, false
	}
	return q.Node(id)
}

func (q *Queue) newNode(startID, size uint64) (*Node, error) {
	if size == 0 {
		return nil, ErrEmptyRange
	}
	if _, ok := q.byStart[startID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrStartInUse, startID)
	}
	m := q.Meta()
	n := &Node{ID: NodeID(m.NextNodeID), StartID: startID, Size: size}
	m.NextNodeID++
	m.Size++
	q.setMeta(m)

	q.nodes[n.ID] = n
	q.byStart[startID] = n.ID
	q.units += size
	return n, nil
}

// Append adds a new tail node.
func (q *Queue) Append(startID, size uint64) (NodeID, error) {
	n, err := q.newNode(startID, size)
	if err != nil {
		return NilNode, err
	}
	m := q.Meta()
	n.Prev = NodeID(m.Tail)
	if n.Prev != NilNode {
		q.nodes[n.Prev].Next = n.ID
	} else {
		m.Head = uint64(n.ID)
	}
	m.Tail = uint64(n.ID)
	q.setMeta(m)
	return n.ID, nil
}

// Prepend adds a new head node.
func (q *Queue) Prepend(startID, size uint64) (NodeID, error) {
	n, err := q.newNode(startID, size)
	if err != nil {
		return NilNode, err
	}
	m := q.Meta()
	n.Next = NodeID(m.Head)
	if n.Next != NilNode {
		q.nodes[n.Next].Prev = n.ID
	} else {
		m.Tail = uint64(n.ID)
	}
	m.Head = uint64(n.ID)
	q.setMeta(m)
	return n.ID, nil
}

// InsertBefore adds a new node immediately before cursor. A NilNode cursor
// means the end of the queue, making this an Append.
func (q *Queue) InsertBefore(cursor NodeID, startID, size uint64) (NodeID, error) {
	if cursor == NilNode {
		return q.Append(startID, size)
	}
	c, ok := q.nodes[cursor]
	if !ok {
		return NilNode, fmt.Errorf("%w: %d", ErrNodeNotFound, cursor)
	}
	if c.Prev == NilNode {
		return q.Prepend(startID, size)
	}
	n, err := q.newNode(startID, size)
	if err != nil {
		return NilNode, err
	}
	n.Prev, n.Next = c.Prev, c.ID
	q.nodes[c.Prev].Next = n.ID
	c.Prev = n.ID
	return n.ID, nil
}

// InsertAfter adds a new node immediately after cursor, which inherits the
// cursor's successor link.
func (q *Queue) InsertAfter(cursor NodeID, startID, size uint64) (NodeID, error) {
	c, ok := q.nodes[cursor]
	if !ok {
		return NilNode, fmt.Errorf("%w: %d", ErrNodeNotFound, cursor)
	}
	return q.InsertBefore(c.Next, startID, size)
}

// Remove unlinks the node and returns its final state.
func (q *Queue) Remove(id NodeID) (Node, error) {
	n, ok := q.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	m := q.Meta()
	if n.Prev != NilNode {
		q.nodes[n.Prev].Next = n.Next
	} else {
		m.Head = uint64(n.Next)
	}
	if n.Next != NilNode {
		q.nodes[n.Next].Prev = n.Prev
	} else {
		m.Tail = uint64(n.Prev)
	}
	m.Size--
	q.setMeta(m)

	delete(q.nodes, id)
	delete(q.byStart, n.StartID)
	q.units -= n.Size
	return *n, nil
}

// Resize changes the range a node covers without moving it in the queue.
func (q *Queue) Resize(id NodeID, newStartID, newSize uint64) error {
	n, ok := q.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if newSize == 0 {
		return ErrEmptyRange
	}
	if newStartID != n.StartID {
		if _, taken := q.byStart[newStartID]; taken {
			return fmt.Errorf("%w: %d", ErrStartInUse, newStartID)
		}
		delete(q.byStart, n.StartID)
		q.byStart[newStartID] = id
	}
	q.units = q.units - n.Size + newSize
	n.StartID, n.Size = newStartID, newSize
	return nil
}

// Walk visits the nodes head to tail until fn returns false.
func (q *Queue) Walk(fn func(n Node) bool) {
	for id := q.Head(); id != NilNode; {
		n := q.nodes[id]
		if !fn(*n) {
			return
		}
		id = n.Next
	}
}

// Ranges lists the queued ranges head to tail.
func (q *Queue) Ranges() []Span {
	spans := make([]Span, 0, q.Len())
	q.Walk(func(n Node) bool {
		spans = append(spans, Span{StartID: n.StartID, Size: n.Size})
		return true
	})
	return spans
}

// GlyphIDs expands every queued range to its ids, head to tail. This is
// proportional to the number of glyphs held and is meant for diagnostics.
func (q *Queue) GlyphIDs() []uint64 {
	ids := make([]uint64, 0, q.units)
	q.Walk(func(n Node) bool {
		for id := n.StartID; id < n.End(); id++ {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}
