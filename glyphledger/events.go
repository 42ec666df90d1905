package glyphledger

import (
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/google/uuid"
)

// Header identifies an event. Seq increases by one for every event the
// ledger publishes, in publication order.
type Header struct {
	ID  uuid.UUID
	Seq uint64
}

func (h Header) EventHeader() Header { return h }

// Event is implemented by every event the ledger publishes.
type Event interface {
	EventHeader() Header
}

type BatchMint struct {
	Header
	To       bitfield.Address
	StartID  uint64
	Quantity uint64
}

type BatchBurn struct {
	Header
	From     bitfield.Address
	StartID  uint64
	Quantity uint64
}

// BatchTransfer is published once for each contiguous piece moved.
type BatchTransfer struct {
	Header
	From     bitfield.Address
	To       bitfield.Address
	StartID  uint64
	Quantity uint64
}

// Staked reports Quantity glyphs from StartID becoming staked. A single
// stake has Quantity 1.
type Staked struct {
	Header
	Owner    bitfield.Address
	StartID  uint64
	Quantity uint64
}

type Unstaked struct {
	Header
	Owner   bitfield.Address
	TokenID uint64
}

func stamp(e Event, h Header) Event {
	switch ev := e.(type) {
	case BatchMint:
		ev.Header = h
		return ev
	case BatchBurn:
		ev.Header = h
		return ev
	case BatchTransfer:
		ev.Header = h
		return ev
	case Staked:
		ev.Header = h
		return ev
	case Unstaked:
		ev.Header = h
		return ev
	}
	return e
}

// publish stamps and writes evs in order. The state they describe has
// already committed, so a delivery failure is logged and not returned.
func (l *Ledger) publish(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	for _, e := range evs {
		id, err := l.newID()
		if err != nil {
			l.log.Infof("event id: %v", err)
		}
		e = stamp(e, Header{ID: id, Seq: l.seq.Add(1)})
		if err := l.broadcaster.Write(e); err != nil {
			l.log.Infof("publish %T: %v", e, err)
		}
	}
}
