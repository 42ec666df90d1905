// Package rangeledger holds one packed range record per live range, keyed by
// the range start id. It is the source of truth for who owns a glyph id and
// whether it is staked.
package rangeledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/forestrie/go-glyphledger/bitfield"
	iradix "github.com/hashicorp/go-immutable-radix/v2"
)

var (
	ErrTokenNotFound = errors.New("no range encloses the token id")
	ErrKeyMismatch   = errors.New("a range record is stored under a key other than its start id")
)

const keyBytes = 8

// Reader resolves ids against a consistent view of the ledger.
type Reader interface {
	Get(startID uint64) (bitfield.Range, bool)
	FindEnclosing(id uint64) (bitfield.Range, error)
}

func key(id uint64) []byte {
	var k [keyBytes]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

// Store keeps the records in an immutable radix tree. The big endian keys
// sort numerically, so the predecessor of any id is a single reverse seek.
//
// Readers use the most recently committed tree and never block. Writers are
// serialized by Update.
type Store struct {
	writer sync.Mutex
	root   atomic.Pointer[iradix.Tree[bitfield.Word]]
}

func NewStore() *Store {
	s := &Store{}
	s.root.Store(iradix.New[bitfield.Word]())
	return s
}

func (s *Store) tree() *iradix.Tree[bitfield.Word] {
	return s.root.Load()
}

// Len returns the number of live range records.
func (s *Store) Len() int {
	return s.tree().Len()
}

func (s *Store) Get(startID uint64) (bitfield.Range, bool) {
	return get(s.tree().Root(), startID)
}

// GetWord returns the packed record stored at startID.
func (s *Store) GetWord(startID uint64) (bitfield.Word, bool) {
	return s.tree().Get(key(startID))
}

func (s *Store) FindEnclosing(id uint64) (bitfield.Range, error) {
	return findEnclosing(s.tree().Root(), id)
}

// Walk visits every record in ascending start id order until fn returns false.
func (s *Store) Walk(fn func(r bitfield.Range) bool) {
	s.tree().Root().Walk(func(_ []byte, w bitfield.Word) bool {
		// iradix stops walking when the callback returns true
		return !fn(bitfield.UnpackRange(w))
	})
}

// Update runs fn in a write transaction. The writes become visible to
// readers together, and only if fn returns nil.
func (s *Store) Update(fn func(tx *Txn) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	tx := &Txn{txn: s.tree().Txn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.root.Store(tx.txn.Commit())
	return nil
}

// Replace discards every record and installs words in their place. The
// words are validated as range records before anything is replaced.
func (s *Store) Replace(words []bitfield.Word) error {
	txn := iradix.New[bitfield.Word]().Txn()
	for _, w := range words {
		r := bitfield.UnpackRange(w)
		if _, err := bitfield.PackRange(r); err != nil {
			return err
		}
		txn.Insert(key(r.StartID), w)
	}
	s.writer.Lock()
	defer s.writer.Unlock()
	s.root.Store(txn.Commit())
	return nil
}

// Txn is a write transaction. Reads through a Txn observe its own writes.
type Txn struct {
	txn *iradix.Txn[bitfield.Word]
}

func (t *Txn) Get(startID uint64) (bitfield.Range, bool) {
	return get(t.txn.Root(), startID)
}

func (t *Txn) FindEnclosing(id uint64) (bitfield.Range, error) {
	return findEnclosing(t.txn.Root(), id)
}

// Put writes r under its start id, replacing any record already there.
func (t *Txn) Put(r bitfield.Range) error {
	w, err := bitfield.PackRange(r)
	if err != nil {
		return err
	}
	t.txn.Insert(key(r.StartID), w)
	return nil
}

// Delete removes the record keyed by startID, reporting whether it existed.
func (t *Txn) Delete(startID uint64) bool {
	_, existed := t.txn.Delete(key(startID))
	return existed
}

func get(root *iradix.Node[bitfield.Word], startID uint64) (bitfield.Range, bool) {
	w, ok := root.Get(key(startID))
	if !ok {
		return bitfield.Range{}, false
	}
	return bitfield.UnpackRange(w), true
}

func findEnclosing(root *iradix.Node[bitfield.Word], id uint64) (bitfield.Range, error) {
	it := root.ReverseIterator()
	it.SeekReverseLowerBound(key(id))
	_, w, ok := it.Previous()
	if !ok {
		return bitfield.Range{}, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	r := bitfield.UnpackRange(w)
	if !r.Contains(id) {
		return bitfield.Range{}, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	return r, nil
}
