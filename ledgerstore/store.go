// Package ledgerstore persists glyph ledger snapshots in a bbolt database.
//
// Buckets:
//
//	ranges    big endian start id -> packed 32 byte range record
//	queues    owner address -> cbor queue metadata word and nodes
//	staked    owner address -> cbor staked ids
//	accounts  owner address -> cbor account counters
//	meta      "header" -> cbor header
//
// The header carries a keccak256 digest over the other buckets, checked on
// every load.
package ledgerstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/glyphledger"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

const FormatVersion = 1

var (
	ErrNoSnapshot     = errors.New("the store holds no ledger snapshot")
	ErrFormatVersion  = errors.New("unsupported snapshot format version")
	ErrDigestMismatch = errors.New("snapshot digest does not match the stored records")
	ErrRecordCount    = errors.New("stored record count does not match the header")
	ErrBadKey         = errors.New("malformed record key")
)

var (
	bucketRanges   = []byte("ranges")
	bucketQueues   = []byte("queues")
	bucketStaked   = []byte("staked")
	bucketAccounts = []byte("accounts")
	bucketMeta     = []byte("meta")
	keyHeader      = []byte("header")

	// digested in this order
	recordBuckets = [][]byte{bucketRanges, bucketQueues, bucketStaked, bucketAccounts}
)

// Header describes the snapshot held by a store.
type Header struct {
	Version      uint32 `cbor:"1,keyasint"`
	FirstTokenID uint64 `cbor:"2,keyasint"`
	NextTokenID  uint64 `cbor:"3,keyasint"`
	Minted       uint64 `cbor:"4,keyasint"`
	Burned       uint64 `cbor:"5,keyasint"`
	Ranges       uint64 `cbor:"6,keyasint"`
	Owners       uint64 `cbor:"7,keyasint"`
	Digest       []byte `cbor:"8,keyasint"`
}

type queueRecord struct {
	Meta  []byte            `cbor:"1,keyasint"`
	Nodes []ownerqueue.Node `cbor:"2,keyasint"`
}

type accountRecord struct {
	Balance  uint64 `cbor:"1,keyasint"`
	Minted   uint64 `cbor:"2,keyasint"`
	Burned   uint64 `cbor:"3,keyasint"`
	Received uint64 `cbor:"4,keyasint"`
	Sent     uint64 `cbor:"5,keyasint"`
}

type Store struct {
	log   logger.Logger
	db    *bolt.DB
	path  string
	codec commoncbor.CBORCodec
}

// Open opens, or creates, the database at path.
func Open(log logger.Logger, path string, opts ...Option) (*Store, error) {
	options := StoreOptions{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Store{log: log, path: path}
	if options.Codec != nil {
		s.codec = *options.Codec
	} else {
		codec, err := NewCodec()
		if err != nil {
			return nil, err
		}
		s.codec = codec
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: options.Timeout, ReadOnly: options.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s.db = db
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot with snap in one transaction.
func (s *Store) Save(snap *glyphledger.Snapshot) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range append(recordBuckets, bucketMeta) {
			if tx.Bucket(name) == nil {
				continue
			}
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		buckets := make(map[string]*bolt.Bucket)
		for _, name := range append(recordBuckets, bucketMeta) {
			b, err := tx.CreateBucket(name)
			if err != nil {
				return err
			}
			buckets[string(name)] = b
		}

		ranges := buckets[string(bucketRanges)]
		for _, w := range snap.Ranges {
			r := bitfield.UnpackRange(w)
			if err := ranges.Put(rangeKey(r.StartID), w[:]); err != nil {
				return err
			}
		}
		for _, q := range snap.Queues {
			if err := s.put(buckets[string(bucketQueues)], q.Owner, queueRecord{Meta: q.Meta[:], Nodes: q.Nodes}); err != nil {
				return err
			}
		}
		for _, st := range snap.Staked {
			if err := s.put(buckets[string(bucketStaked)], st.Owner, st.IDs); err != nil {
				return err
			}
		}
		for _, a := range snap.Accounts {
			rec := accountRecord{Balance: a.Balance, Minted: a.Minted, Burned: a.Burned, Received: a.Received, Sent: a.Sent}
			if err := s.put(buckets[string(bucketAccounts)], a.Owner, rec); err != nil {
				return err
			}
		}

		hdr := Header{
			Version:      FormatVersion,
			FirstTokenID: snap.FirstTokenID,
			NextTokenID:  snap.NextTokenID,
			Minted:       snap.Minted,
			Burned:       snap.Burned,
			Ranges:       uint64(len(snap.Ranges)),
			Owners:       uint64(len(snap.Accounts)),
		}
		hdr.Digest = digest(tx, hdr)
		data, err := s.codec.MarshalCBOR(hdr)
		if err != nil {
			return err
		}
		return buckets[string(bucketMeta)].Put(keyHeader, data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot to %s: %w", s.path, err)
	}
	s.log.Infof("saved ledger snapshot: %d ranges, %d owners, next token id %d",
		len(snap.Ranges), len(snap.Accounts), snap.NextTokenID)
	return nil
}

func (s *Store) put(b *bolt.Bucket, owner bitfield.Address, v any) error {
	data, err := s.codec.MarshalCBOR(v)
	if err != nil {
		return err
	}
	return b.Put(owner[:], data)
}

// Header returns the stored snapshot header without reading the records.
func (s *Store) Header() (Header, error) {
	var hdr Header
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		hdr, err = readHeader(tx)
		return err
	})
	return hdr, err
}

func readHeader(tx *bolt.Tx) (Header, error) {
	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return Header{}, ErrNoSnapshot
	}
	data := meta.Get(keyHeader)
	if data == nil {
		return Header{}, ErrNoSnapshot
	}
	var hdr Header
	if err := cbor.Unmarshal(data, &hdr); err != nil {
		return Header{}, err
	}
	if hdr.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: %d", ErrFormatVersion, hdr.Version)
	}
	return hdr, nil
}

// Load reads the stored snapshot after checking its digest.
func (s *Store) Load() (*glyphledger.Snapshot, error) {
	var snap *glyphledger.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		hdr, err := readHeader(tx)
		if err != nil {
			return err
		}
		for _, name := range recordBuckets {
			if tx.Bucket(name) == nil {
				return fmt.Errorf("%w: bucket %s missing", ErrDigestMismatch, name)
			}
		}
		if got := digest(tx, hdr); string(got) != string(hdr.Digest) {
			return fmt.Errorf("%w: stored %x, computed %x", ErrDigestMismatch, hdr.Digest, got)
		}

		snap = &glyphledger.Snapshot{
			FirstTokenID: hdr.FirstTokenID,
			NextTokenID:  hdr.NextTokenID,
			Minted:       hdr.Minted,
			Burned:       hdr.Burned,
		}
		err = tx.Bucket(bucketRanges).ForEach(func(k, v []byte) error {
			if len(k) != rangeKeyBytes {
				return fmt.Errorf("%w: range key %x", ErrBadKey, k)
			}
			w, err := bitfield.WordFromBytes(v)
			if err != nil {
				return err
			}
			snap.Ranges = append(snap.Ranges, w)
			return nil
		})
		if err != nil {
			return err
		}
		err = forEachOwner(tx.Bucket(bucketQueues), func(owner bitfield.Address, v []byte) error {
			var rec queueRecord
			if err := s.codec.UnmarshalInto(v, &rec); err != nil {
				return err
			}
			meta, err := bitfield.WordFromBytes(rec.Meta)
			if err != nil {
				return err
			}
			snap.Queues = append(snap.Queues, glyphledger.QueueSnapshot{Owner: owner, Meta: meta, Nodes: rec.Nodes})
			return nil
		})
		if err != nil {
			return err
		}
		err = forEachOwner(tx.Bucket(bucketStaked), func(owner bitfield.Address, v []byte) error {
			var ids []uint64
			if err := s.codec.UnmarshalInto(v, &ids); err != nil {
				return err
			}
			snap.Staked = append(snap.Staked, glyphledger.StakedSnapshot{Owner: owner, IDs: ids})
			return nil
		})
		if err != nil {
			return err
		}
		err = forEachOwner(tx.Bucket(bucketAccounts), func(owner bitfield.Address, v []byte) error {
			var rec accountRecord
			if err := s.codec.UnmarshalInto(v, &rec); err != nil {
				return err
			}
			snap.Accounts = append(snap.Accounts, glyphledger.AccountSnapshot{
				Owner: owner, Balance: rec.Balance, Minted: rec.Minted, Burned: rec.Burned,
				Received: rec.Received, Sent: rec.Sent,
			})
			return nil
		})
		if err != nil {
			return err
		}
		if uint64(len(snap.Ranges)) != hdr.Ranges || uint64(len(snap.Accounts)) != hdr.Owners {
			return fmt.Errorf("%w: %d ranges and %d owners, header says %d and %d",
				ErrRecordCount, len(snap.Ranges), len(snap.Accounts), hdr.Ranges, hdr.Owners)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot from %s: %w", s.path, err)
	}
	s.log.Debugf("loaded ledger snapshot: %d ranges, %d owners", len(snap.Ranges), len(snap.Accounts))
	return snap, nil
}

// SaveLedger saves a snapshot of l.
func (s *Store) SaveLedger(l *glyphledger.Ledger) error {
	return s.Save(l.Snapshot())
}

// LoadLedger restores l from the stored snapshot.
func (s *Store) LoadLedger(l *glyphledger.Ledger) error {
	snap, err := s.Load()
	if err != nil {
		return err
	}
	return l.Restore(snap)
}

func forEachOwner(b *bolt.Bucket, fn func(owner bitfield.Address, v []byte) error) error {
	return b.ForEach(func(k, v []byte) error {
		if len(k) != bitfield.AddressBytes {
			return fmt.Errorf("%w: owner key %x", ErrBadKey, k)
		}
		var owner bitfield.Address
		copy(owner[:], k)
		return fn(owner, v)
	})
}

const rangeKeyBytes = 8

func rangeKey(startID uint64) []byte {
	var k [rangeKeyBytes]byte
	binary.BigEndian.PutUint64(k[:], startID)
	return k[:]
}
