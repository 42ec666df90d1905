package ledgerstore

import (
	"encoding/binary"
	"hash"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"
)

// digest hashes the header scalars followed by every record bucket in a
// fixed order. Keys and values are length prefixed so that record
// boundaries are part of the digest.
func digest(tx *bolt.Tx, hdr Header) []byte {
	h := sha3.NewLegacyKeccak256()

	var scalars [8 * 7]byte
	binary.BigEndian.PutUint64(scalars[0:], uint64(hdr.Version))
	binary.BigEndian.PutUint64(scalars[8:], hdr.FirstTokenID)
	binary.BigEndian.PutUint64(scalars[16:], hdr.NextTokenID)
	binary.BigEndian.PutUint64(scalars[24:], hdr.Minted)
	binary.BigEndian.PutUint64(scalars[32:], hdr.Burned)
	binary.BigEndian.PutUint64(scalars[40:], hdr.Ranges)
	binary.BigEndian.PutUint64(scalars[48:], hdr.Owners)
	h.Write(scalars[:])

	for _, name := range recordBuckets {
		writeField(h, name)
		b := tx.Bucket(name)
		if b == nil {
			continue
		}
		// bbolt iterates in key order
		_ = b.ForEach(func(k, v []byte) error {
			writeField(h, k)
			writeField(h, v)
			return nil
		})
	}
	return h.Sum(nil)
}

func writeField(h hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}
