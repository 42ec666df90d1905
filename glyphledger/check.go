package glyphledger

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/rangeledger"
)

// CheckInvariants verifies the whole ledger. It waits for in flight
// operations and holds off new ones while it runs, and costs time in
// proportion to the number of ranges and owners.
func (l *Ledger) CheckInvariants() error {
	l.global.Lock()
	defer l.global.Unlock()
	return checkState(l.st)
}

// checkState requires exclusive access to st.
func checkState(st *state) error {
	if err := st.store.Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	if err := st.staked.Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}

	// Every record is either a queued unstaked range or an indexed staked
	// glyph of the same owner.
	held := make(map[bitfield.Address]uint64)
	var live uint64
	var err error
	st.store.Walk(func(r bitfield.Range) bool {
		live += r.Size
		held[r.Owner] += r.Size
		if r.End() > st.nextID {
			err = fmt.Errorf("%w: %v reaches past next token id %d", ErrInvariant, r, st.nextID)
			return false
		}
		if r.Staked {
			e, ok := st.staked.Entry(r.StartID)
			if r.Size != 1 || !ok || e.Owner != r.Owner {
				err = fmt.Errorf("%w: staked %v is not indexed for its owner", ErrInvariant, r)
			}
			return err == nil
		}
		q, ok := st.queues[r.Owner]
		if !ok {
			err = fmt.Errorf("%w: %v has no owner queue", ErrInvariant, r)
			return false
		}
		if n, ok := q.NodeAt(r.StartID); !ok || n.Size != r.Size {
			err = fmt.Errorf("%w: %v is not queued", ErrInvariant, r)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	if live != st.minted-st.burned {
		return fmt.Errorf("%w: %d live glyphs, %d minted less %d burned", ErrInvariant, live, st.minted, st.burned)
	}

	var queued, indexed int
	for owner, q := range st.queues {
		if err := q.Check(); err != nil {
			return fmt.Errorf("%w: queue of %s: %w", ErrInvariant, owner, err)
		}
		queued += q.Len()
	}
	for _, owner := range st.staked.Owners() {
		for _, id := range st.staked.Staked(owner) {
			r, ok := st.store.Get(id)
			if !ok || !r.Staked || r.Owner != owner {
				return fmt.Errorf("%w: indexed %d of %s has record %v", ErrInvariant, id, owner, r)
			}
		}
		indexed += st.staked.Count(owner)
	}
	if queued+indexed != st.store.Len() {
		return fmt.Errorf("%w: %d queued and %d staked for %d records", ErrInvariant, queued, indexed, st.store.Len())
	}

	// Conservation per owner.
	var balances uint64
	for owner, a := range st.accounts {
		var units uint64
		if q, ok := st.queues[owner]; ok {
			units = q.Units()
		}
		units += uint64(st.staked.Count(owner))
		if units != a.Balance || units != held[owner] {
			return fmt.Errorf("%w: %s balance %d, holds %d, ranges cover %d", ErrInvariant, owner, a.Balance, units, held[owner])
		}
		if a.Minted+a.Received-a.Sent-a.Burned != a.Balance {
			return fmt.Errorf("%w: %s counters %+v do not add up", ErrInvariant, owner, *a)
		}
		balances += a.Balance
	}
	if balances != live {
		return fmt.Errorf("%w: balances sum to %d, %d glyphs live", ErrInvariant, balances, live)
	}
	return checkResolution(st.store)
}

// scanProbeLimit bounds the ranges whose interior is cross checked. The
// backward scan walks a range one id at a time.
const scanProbeLimit = 1 << 12

// checkResolution compares the predecessor seek with the backward scan. Every
// range start is probed, and the last id of ranges no larger than
// scanProbeLimit. Ids outside every range are not probed because the scan only
// gives up at zero.
func checkResolution(s *rangeledger.Store) error {
	var err error
	s.Walk(func(r bitfield.Range) bool {
		probes := []uint64{r.StartID}
		if r.Size <= scanProbeLimit {
			probes = append(probes, r.Last())
		}
		for _, id := range probes {
			got, gotErr := s.FindEnclosing(id)
			want, wantErr := rangeledger.ScanEnclosing(s, id)
			if errors.Is(gotErr, rangeledger.ErrTokenNotFound) != errors.Is(wantErr, rangeledger.ErrTokenNotFound) || got != want {
				err = fmt.Errorf("%w: id %d resolves to %v by seek, %v by scan", ErrInvariant, id, got, want)
				return false
			}
		}
		return true
	})
	return err
}
