package glyphledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/engine"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var propertyOwners = []bitfield.Address{alice, bob, carol}

// ledgerMachine drives random operations and compares balances with a
// model that only knows the arithmetic of each operation.
type ledgerMachine struct {
	l       *Ledger
	balance map[bitfield.Address]uint64
	minted  uint64
	burned  uint64
}

func (m *ledgerMachine) owner(t *rapid.T, label string) bitfield.Address {
	return rapid.SampledFrom(propertyOwners).Draw(t, label)
}

// someID draws an id that is usually live.
func (m *ledgerMachine) someID(t *rapid.T) uint64 {
	return rapid.Uint64Range(0, m.l.NextTokenID()).Draw(t, "id")
}

func (m *ledgerMachine) mint(t *rapid.T) {
	owner := m.owner(t, "to")
	size := rapid.Uint64Range(1, 8).Draw(t, "size")
	if _, err := m.l.Mint(owner, size); err != nil {
		t.Fatalf("mint: %v", err)
	}
	m.balance[owner] += size
	m.minted += size
}

func (m *ledgerMachine) transfer(t *rapid.T) {
	from, to := m.owner(t, "from"), m.owner(t, "to")
	qty := rapid.Uint64Range(1, 10).Draw(t, "qty")
	err := m.l.Transfer(from, to, qty)
	if err == nil {
		m.balance[from] -= qty
		m.balance[to] += qty
		return
	}
	if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, engine.ErrGlyphNotFound) {
		t.Fatalf("transfer: %v", err)
	}
}

func (m *ledgerMachine) stake(t *rapid.T) {
	owner := m.owner(t, "owner")
	err := m.l.Stake(owner, m.someID(t))
	if err != nil && !IsNotFound(err) && !errors.Is(err, ErrNotOwner) && !errors.Is(err, ErrAlreadyStaked) {
		t.Fatalf("stake: %v", err)
	}
}

func (m *ledgerMachine) unstake(t *rapid.T) {
	owner := m.owner(t, "owner")
	ids := m.l.StakedIDs(owner)
	if len(ids) == 0 {
		t.Skip("nothing staked")
	}
	if err := m.l.Unstake(owner, rapid.SampledFrom(ids).Draw(t, "id")); err != nil {
		t.Fatalf("unstake: %v", err)
	}
}

func (m *ledgerMachine) burn(t *rapid.T) {
	owner := m.owner(t, "owner")
	qty := rapid.Uint64Range(1, 10).Draw(t, "qty")
	err := m.l.Burn(owner, qty)
	if err == nil {
		m.balance[owner] -= qty
		m.burned += qty
		return
	}
	if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, engine.ErrGlyphNotFound) {
		t.Fatalf("burn: %v", err)
	}
}

func (m *ledgerMachine) decompose(t *rapid.T) {
	owner := m.owner(t, "owner")
	ranges := m.l.QueueRanges(owner)
	if len(ranges) == 0 {
		t.Skip("nothing queued")
	}
	r := rapid.SampledFrom(ranges).Draw(t, "range")
	var parts []engine.SubRange
	for at := r.StartID; at < r.StartID+r.Size; {
		size := rapid.Uint64Range(1, r.StartID+r.Size-at).Draw(t, "part")
		action := engine.Requeue
		if rapid.Bool().Draw(t, "stake") {
			action = engine.Stake
		}
		parts = append(parts, engine.SubRange{StartID: at, Size: size, Action: action})
		at += size
	}
	if err := m.l.Decompose(owner, r.StartID, parts, ownerqueue.NilNode); err != nil {
		t.Fatalf("decompose %v: %v", parts, err)
	}
}

func (m *ledgerMachine) check(t *rapid.T) {
	if err := m.l.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	for _, owner := range propertyOwners {
		if got := m.l.BalanceOf(owner); got != m.balance[owner] {
			t.Fatalf("balance of %s is %d, want %d", owner, got, m.balance[owner])
		}
		a := m.l.Account(owner)
		if a.Unstaked+a.Staked != a.Minted+a.Received-a.Sent-a.Burned {
			t.Fatalf("conservation broken for %+v", a)
		}
	}
	if m.l.Minted() != m.minted || m.l.Burned() != m.burned {
		t.Fatalf("minted %d burned %d, want %d and %d", m.l.Minted(), m.l.Burned(), m.minted, m.burned)
	}
	var prev bitfield.Range
	m.l.WalkRanges(func(r bitfield.Range) bool {
		if prev.Size > 0 && prev.End() > r.StartID {
			t.Fatalf("%v overlaps %v", prev, r)
		}
		prev = r
		return true
	})
}

func TestLedgerProperties(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	rapid.Check(t, func(t *rapid.T) {
		m := &ledgerMachine{l: newTestLedger(t), balance: map[bitfield.Address]uint64{}}
		defer m.l.Close()
		t.Repeat(map[string]func(*rapid.T){
			"mint":      m.mint,
			"transfer":  m.transfer,
			"stake":     m.stake,
			"unstake":   m.unstake,
			"burn":      m.burn,
			"decompose": m.decompose,
			"":          m.check,
		})
	})
}

// TestStakeUnstakeIdempotent stakes and unstakes a glyph inside a single
// mint, where no neighboring range can absorb it.
func TestStakeUnstakeIdempotent(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	rapid.Check(t, func(t *rapid.T) {
		l := newTestLedger(t)
		defer l.Close()
		var sizes []uint64
		for i := rapid.IntRange(1, 6).Draw(t, "mints"); i > 0; i-- {
			size := rapid.Uint64Range(2, 20).Draw(t, "size")
			if _, err := l.Mint(alice, size); err != nil {
				t.Fatal(err)
			}
			sizes = append(sizes, size)
			// a glyph of bob's separates alice's mints
			if _, err := l.Mint(bob, 1); err != nil {
				t.Fatal(err)
			}
		}
		before := l.QueueRanges(alice)
		id := rapid.SampledFrom(l.QueueGlyphIDs(alice)).Draw(t, "id")
		if err := l.Stake(alice, id); err != nil {
			t.Fatal(err)
		}
		if err := l.Unstake(alice, id); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(before, l.QueueRanges(alice)); diff != "" {
			t.Fatalf("ranges changed (-before +after):\n%s", diff)
		}
	})
}

func TestConcurrentTransfers(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	l := newTestLedger(t)
	defer l.Close()
	for _, owner := range propertyOwners {
		_, err := l.Mint(owner, 200)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				from := propertyOwners[(w+i)%3]
				to := propertyOwners[(w+i+1)%3]
				// failures for want of balance are expected
				_ = l.Transfer(from, to, uint64(1+i%5))
				if i%10 == 0 {
					_ = l.Stake(from, uint64(1+(w*97+i*31)%600))
				}
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, l.CheckInvariants())
	var total uint64
	for _, owner := range propertyOwners {
		total += l.BalanceOf(owner)
	}
	assert.Equal(t, uint64(600), total)
}
