package engine

import (
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/rangeledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func (f *fixture) stake(owner bitfield.Address, id uint64) error {
	return f.update(func(tx *rangeledger.Txn) error {
		_, err := f.e.ExtractSingle(tx, f.q(owner), f.idx, id)
		return err
	})
}

func (f *fixture) unstake(owner bitfield.Address, id uint64) error {
	return f.update(func(tx *rangeledger.Txn) error {
		_, err := f.e.Coalesce(tx, f.q(owner), f.idx, id)
		return err
	})
}

func TestExtractSingle(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	tests := []struct {
		name string
		// alice is minted sizes in order, with a bob glyph between each
		sizes []uint64
		id    uint64
		want  []ownerqueue.Span
	}{
		{"single glyph range is removed", []uint64{2, 1, 3}, 4, spans(1, 2, 6, 3)},
		{"first id shrinks from the front", []uint64{4}, 1, spans(2, 3)},
		{"last id shrinks from the back", []uint64{4}, 4, spans(1, 3)},
		{"middle id splits in place", []uint64{3, 5, 2}, 7, spans(1, 3, 5, 2, 8, 2, 11, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for i, size := range tt.sizes {
				if i > 0 {
					f.mint(bob, 1)
				}
				f.mint(alice, size)
			}
			require.NoError(t, f.stake(alice, tt.id))
			assert.Equal(t, tt.want, f.ranges(alice))
			assert.Equal(t, []uint64{tt.id}, f.idx.Staked(alice))
			r, err := f.store.FindEnclosing(tt.id)
			require.NoError(t, err)
			assert.Equal(t, bitfield.Range{Owner: alice, StartID: tt.id, Size: 1, Staked: true}, r)
			f.check()
		})
	}
}

func TestExtractSingleRejections(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	f := newFixture(t)
	f.mint(alice, 3)
	f.mint(bob, 3)
	require.NoError(t, f.stake(alice, 2))

	assert.ErrorIs(t, f.stake(alice, 2), ErrInvalidState, "already staked")
	assert.ErrorIs(t, f.stake(alice, 5), ErrInvalidState, "owned by bob")
	assert.ErrorIs(t, f.stake(alice, 40), rangeledger.ErrTokenNotFound)
	assert.Equal(t, spans(1, 1, 3, 1), f.ranges(alice))
	f.check()
}

func TestCoalesce(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	t.Run("no neighbor prepends", func(t *testing.T) {
		f := newFixture(t)
		f.mint(alice, 1) // 1
		f.mint(bob, 1)   // 2
		f.mint(alice, 3) // 3-5
		f.mint(bob, 1)   // 6
		require.NoError(t, f.stake(alice, 1))
		assert.Equal(t, spans(3, 3), f.ranges(alice))
		require.NoError(t, f.unstake(alice, 1))
		assert.Equal(t, spans(1, 1, 3, 3), f.ranges(alice))
		f.check()
	})
	t.Run("left neighbor grows at the back", func(t *testing.T) {
		f := newFixture(t)
		f.mint(alice, 4) // 1-4
		f.mint(bob, 1)   // 5
		require.NoError(t, f.stake(alice, 4))
		require.NoError(t, f.stake(alice, 3))
		require.NoError(t, f.unstake(alice, 3))
		assert.Equal(t, spans(1, 3), f.ranges(alice))
		assert.Equal(t, []uint64{4}, f.idx.Staked(alice))
		f.check()
	})
	t.Run("right neighbor grows at the front", func(t *testing.T) {
		f := newFixture(t)
		f.mint(bob, 1)   // 1
		f.mint(alice, 4) // 2-5
		f.mint(carol, 1) // 6
		f.mint(alice, 1) // 7
		require.NoError(t, f.stake(alice, 2))
		assert.Equal(t, spans(3, 3, 7, 1), f.ranges(alice))
		require.NoError(t, f.unstake(alice, 2))
		assert.Equal(t, spans(2, 4, 7, 1), f.ranges(alice))
		r, ok := f.store.Get(2)
		require.True(t, ok)
		assert.Equal(t, uint64(4), r.Size)
		_, ok = f.store.Get(3)
		assert.False(t, ok)
		f.check()
	})
	t.Run("both neighbors merge", func(t *testing.T) {
		f := newFixture(t)
		f.mint(alice, 5)
		f.mint(bob, 2)
		f.mint(alice, 5)
		require.NoError(t, f.stake(alice, 3))
		require.NoError(t, f.stake(alice, 9))
		assert.Equal(t, spans(1, 2, 4, 2, 8, 1, 10, 3), f.ranges(alice))
		require.NoError(t, f.unstake(alice, 3))
		assert.Equal(t, spans(1, 5, 8, 1, 10, 3), f.ranges(alice))
		assert.Equal(t, []uint64{9}, f.idx.Staked(alice))
		f.check()
	})
	t.Run("other owners and staked neighbors do not merge", func(t *testing.T) {
		f := newFixture(t)
		f.mint(alice, 3) // 1-3
		f.mint(bob, 1)   // 4
		require.NoError(t, f.stake(alice, 2))
		require.NoError(t, f.stake(alice, 3))
		require.NoError(t, f.unstake(alice, 3))
		assert.Equal(t, spans(3, 1, 1, 1), f.ranges(alice))
		f.check()
	})
}

func TestCoalesceRejections(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	f := newFixture(t)
	f.mint(alice, 3)
	require.NoError(t, f.stake(alice, 2))

	assert.ErrorIs(t, f.unstake(alice, 1), ErrInvalidState, "not staked")
	assert.ErrorIs(t, f.unstake(bob, 2), ErrInvalidState, "not bob's")
	assert.ErrorIs(t, f.unstake(alice, 7), rangeledger.ErrTokenNotFound)
	assert.Equal(t, []uint64{2}, f.idx.Staked(alice))
	f.check()
}

// TestStakeUnstakeRestores checks that staking then unstaking a glyph
// restores the owner's ranges when no adjacent range of the owner was
// already waiting to merge.
func TestStakeUnstakeRestores(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	owners := []bitfield.Address{alice, bob}
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		for i := rapid.IntRange(1, 12).Draw(rt, "mints"); i > 0; i-- {
			owner := owners[rapid.IntRange(0, 1).Draw(rt, "owner")]
			f.mint(owner, rapid.Uint64Range(1, 6).Draw(rt, "size"))
		}
		if q := f.q(bob); q.Units() > 0 {
			qty := rapid.Uint64Range(1, q.Units()).Draw(rt, "give")
			require.NoError(rt, f.update(func(tx *rangeledger.Txn) error {
				_, err := f.e.Transfer(tx, q, f.q(alice), qty)
				return err
			}))
		}
		q := f.q(alice)
		if q.Units() == 0 {
			return
		}
		ids := q.GlyphIDs()
		id := ids[rapid.IntRange(0, len(ids)-1).Draw(rt, "id")]

		r, err := f.store.FindEnclosing(id)
		require.NoError(rt, err)
		mergeable := func(other uint64) bool {
			o, err := f.store.FindEnclosing(other)
			return err == nil && o.Owner == alice && !o.Staked
		}
		if (id == r.StartID && id > 1 && mergeable(id-1)) || (id == r.Last() && mergeable(id+1)) {
			rt.Skip("an adjacent range of the owner would absorb the glyph")
		}

		before := q.Ranges()
		require.NoError(rt, f.stake(alice, id))
		require.NoError(rt, f.unstake(alice, id))
		after := q.Ranges()

		if id == r.StartID && id == r.Last() {
			// a lone glyph comes back at the head
			assert.ElementsMatch(rt, before, after)
		} else {
			assert.Equal(rt, before, after)
		}
		f.check()
	})
}
