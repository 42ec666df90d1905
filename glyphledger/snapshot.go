package glyphledger

import (
	"fmt"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/staking"
)

// Snapshot is a complete copy of a ledger's state. Owners appear in address
// order and range records in id order.
type Snapshot struct {
	FirstTokenID uint64
	NextTokenID  uint64
	Minted       uint64
	Burned       uint64
	Ranges       []bitfield.Word
	Queues       []QueueSnapshot
	Staked       []StakedSnapshot
	Accounts     []AccountSnapshot
}

type QueueSnapshot struct {
	Owner bitfield.Address
	Meta  bitfield.Word
	Nodes []ownerqueue.Node
}

type StakedSnapshot struct {
	Owner bitfield.Address
	IDs   []uint64
}

type AccountSnapshot struct {
	Owner    bitfield.Address
	Balance  uint64
	Minted   uint64
	Burned   uint64
	Received uint64
	Sent     uint64
}

// Snapshot copies the ledger's state. It waits for in flight operations and
// holds off new ones while it copies.
func (l *Ledger) Snapshot() *Snapshot {
	l.global.Lock()
	defer l.global.Unlock()
	st := l.st

	s := &Snapshot{
		FirstTokenID: l.cfg.FirstTokenID,
		NextTokenID:  st.nextID,
		Minted:       st.minted,
		Burned:       st.burned,
	}
	st.store.Walk(func(r bitfield.Range) bool {
		s.Ranges = append(s.Ranges, bitfield.MustPackRange(r))
		return true
	})
	for _, owner := range st.owners() {
		if q, ok := st.queues[owner]; ok && q.Len() > 0 {
			meta, nodes := q.Export()
			s.Queues = append(s.Queues, QueueSnapshot{Owner: owner, Meta: meta, Nodes: nodes})
		}
		if ids := st.staked.Staked(owner); len(ids) > 0 {
			s.Staked = append(s.Staked, StakedSnapshot{Owner: owner, IDs: ids})
		}
		a := st.accounts[owner]
		s.Accounts = append(s.Accounts, AccountSnapshot{
			Owner: owner, Balance: a.Balance, Minted: a.Minted, Burned: a.Burned,
			Received: a.Received, Sent: a.Sent,
		})
	}
	l.log.Debugf("snapshot: %d ranges, %d owners", len(s.Ranges), len(s.Accounts))
	return s
}

// Restore replaces the ledger's state with s. The snapshot is rebuilt and
// checked in full first, and the ledger is left untouched if that fails.
// Subscribers and the event sequence carry on across a restore.
func (l *Ledger) Restore(s *Snapshot) error {
	st, err := stateFromSnapshot(s)
	if err != nil {
		return err
	}
	if err := checkState(st); err != nil {
		return err
	}

	l.global.Lock()
	defer l.global.Unlock()
	l.cfg.FirstTokenID = s.FirstTokenID
	l.st = st
	l.log.Infof("restored ledger: %d ranges, %d owners, next token id %d",
		len(s.Ranges), len(s.Accounts), s.NextTokenID)
	return nil
}

func stateFromSnapshot(s *Snapshot) (*state, error) {
	st := newState(s.NextTokenID)
	st.minted, st.burned = s.Minted, s.Burned
	if err := st.store.Replace(s.Ranges); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	for _, qs := range s.Queues {
		if _, dup := st.queues[qs.Owner]; dup {
			return nil, fmt.Errorf("%w: two queues for %s", ErrInvariant, qs.Owner)
		}
		q, err := ownerqueue.Restore(qs.Owner, qs.Meta, qs.Nodes)
		if err != nil {
			return nil, fmt.Errorf("%w: queue of %s: %w", ErrInvariant, qs.Owner, err)
		}
		st.queues[qs.Owner] = q
	}
	staked := make(map[bitfield.Address][]uint64, len(s.Staked))
	for _, ss := range s.Staked {
		staked[ss.Owner] = append(staked[ss.Owner], ss.IDs...)
	}
	idx, err := staking.Restore(staked)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	st.staked = idx
	for _, as := range s.Accounts {
		if _, dup := st.accounts[as.Owner]; dup {
			return nil, fmt.Errorf("%w: two accounts for %s", ErrInvariant, as.Owner)
		}
		st.accounts[as.Owner] = &account{
			Balance: as.Balance, Minted: as.Minted, Burned: as.Burned,
			Received: as.Received, Sent: as.Sent,
		}
	}
	return st, nil
}
