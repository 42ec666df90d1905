package rangeledger

import (
	"errors"
	"testing"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	ownerA = bitfield.MustParseAddress("0xaaaa000000000000000000000000000000000001")
	ownerB = bitfield.MustParseAddress("0xbbbb000000000000000000000000000000000002")
)

func newTestStore(t *testing.T, ranges ...bitfield.Range) *Store {
	s := NewStore()
	err := s.Update(func(tx *Txn) error {
		for _, r := range ranges {
			if err := tx.Put(r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return s
}

func TestFindEnclosing(t *testing.T) {
	s := newTestStore(t,
		bitfield.Range{Owner: ownerA, StartID: 1, Size: 3},
		bitfield.Range{Owner: ownerB, StartID: 4, Size: 1, Staked: true},
		bitfield.Range{Owner: ownerA, StartID: 8, Size: 2},
	)

	tests := []struct {
		name      string
		id        uint64
		wantStart uint64
		wantErr   error
	}{
		{"zero is never a glyph", 0, 0, ErrTokenNotFound},
		{"first id of a range", 1, 1, nil},
		{"inside a range", 2, 1, nil},
		{"last id of a range", 3, 1, nil},
		{"single staked glyph", 4, 4, nil},
		{"gap after a range (burned)", 5, 0, ErrTokenNotFound},
		{"gap before a range", 7, 0, ErrTokenNotFound},
		{"last range", 9, 8, nil},
		{"beyond every range", 10, 0, ErrTokenNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindEnclosing(tt.id)
			scanned, scanErr := ScanEnclosing(s, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, scanErr, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, scanErr)
			assert.Equal(t, tt.wantStart, got.StartID)
			assert.Equal(t, got, scanned)
		})
	}
}

func TestUpdateDiscardsOnError(t *testing.T) {
	s := newTestStore(t, bitfield.Range{Owner: ownerA, StartID: 1, Size: 10})

	boom := errors.New("boom")
	err := s.Update(func(tx *Txn) error {
		require.True(t, tx.Delete(1))
		require.NoError(t, tx.Put(bitfield.Range{Owner: ownerA, StartID: 4, Size: 7}))
		// the txn observes its own writes
		_, ok := tx.Get(1)
		require.False(t, ok)
		r, err := tx.FindEnclosing(5)
		require.NoError(t, err)
		require.Equal(t, uint64(4), r.StartID)
		return boom
	})
	require.ErrorIs(t, err, boom)

	r, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(10), r.Size)
	_, ok = s.Get(4)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestPutRejectsInvalidRecords(t *testing.T) {
	s := NewStore()
	err := s.Update(func(tx *Txn) error {
		return tx.Put(bitfield.Range{StartID: 1, Size: 1})
	})
	assert.ErrorIs(t, err, bitfield.ErrInvalidOwner)
	assert.Equal(t, 0, s.Len())
}

func TestCheckDetectsOverlap(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Replace([]bitfield.Word{
		bitfield.MustPackRange(bitfield.Range{Owner: ownerA, StartID: 1, Size: 5}),
		bitfield.MustPackRange(bitfield.Range{Owner: ownerB, StartID: 6, Size: 2}),
	}))
	require.NoError(t, s.Check())

	require.NoError(t, s.Replace([]bitfield.Word{
		bitfield.MustPackRange(bitfield.Range{Owner: ownerA, StartID: 1, Size: 5}),
		bitfield.MustPackRange(bitfield.Range{Owner: ownerA, StartID: 4, Size: 2}),
	}))
	assert.ErrorIs(t, s.Check(), ErrOverlap)
}

func TestWalkOrder(t *testing.T) {
	s := newTestStore(t,
		bitfield.Range{Owner: ownerA, StartID: 300, Size: 1},
		bitfield.Range{Owner: ownerA, StartID: 2, Size: 1},
		bitfield.Range{Owner: ownerB, StartID: 256, Size: 44},
	)
	var starts []uint64
	s.Walk(func(r bitfield.Range) bool {
		starts = append(starts, r.StartID)
		return true
	})
	assert.Equal(t, []uint64{2, 256, 300}, starts)

	starts = starts[:0]
	s.Walk(func(r bitfield.Range) bool {
		starts = append(starts, r.StartID)
		return false
	})
	assert.Equal(t, []uint64{2}, starts)
}

// TestResolutionMatchesScan checks that the predecessor seek resolves every
// id exactly as the backward scan does.
func TestResolutionMatchesScan(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		var next uint64 = 1
		n := rapid.IntRange(0, 20).Draw(t, "ranges")
		err := s.Update(func(tx *Txn) error {
			for i := 0; i < n; i++ {
				next += rapid.Uint64Range(0, 3).Draw(t, "gap")
				size := rapid.Uint64Range(1, 6).Draw(t, "size")
				owner := ownerA
				if rapid.Bool().Draw(t, "b") {
					owner = ownerB
				}
				if err := tx.Put(bitfield.Range{Owner: owner, StartID: next, Size: size}); err != nil {
					return err
				}
				next += size
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		for id := uint64(0); id <= next+1; id++ {
			got, err := s.FindEnclosing(id)
			want, wantErr := ScanEnclosing(s, id)
			if (err == nil) != (wantErr == nil) {
				t.Fatalf("id %d: FindEnclosing err %v, ScanEnclosing err %v", id, err, wantErr)
			}
			if got != want {
				t.Fatalf("id %d: FindEnclosing %v, ScanEnclosing %v", id, got, want)
			}
		}
	})
}
