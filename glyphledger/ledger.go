// Package glyphledger is the entry point to the glyph range ledger. A Ledger
// owns the range records, every owner's queue, the staking index and the
// aggregate counters, and serializes access to them.
//
// Mutations lock the owners they touch. A transfer locks both owners, in
// address order. Reads that resolve a glyph id go to the range store, which
// serves the last committed state without locking.
//
// State changes are announced to subscribers as batch events after they
// commit.
package glyphledger

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/docker/go-events"
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/engine"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/forestrie/go-glyphledger/rangeledger"
	"github.com/forestrie/go-glyphledger/staking"
	"github.com/google/uuid"
	"github.com/moby/locker"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultFirstTokenID = 1

type Config struct {
	// FirstTokenID is the id given to the first glyph minted. Zero means
	// DefaultFirstTokenID.
	FirstTokenID uint64
}

type Option func(*Ledger)

// WithMetrics registers the ledger's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Ledger) { l.registerer = reg }
}

// WithEventSink subscribes sink from the start.
func WithEventSink(sink events.Sink) Option {
	return func(l *Ledger) { l.initialSinks = append(l.initialSinks, sink) }
}

// WithIDSource replaces the event id generator, uuid.NewV7 by default.
func WithIDSource(fn func() (uuid.UUID, error)) Option {
	return func(l *Ledger) { l.newID = fn }
}

// account holds the aggregate counters of one owner. Balance counts staked
// and unstaked glyphs.
type account struct {
	Balance  uint64
	Minted   uint64
	Burned   uint64
	Received uint64
	Sent     uint64
}

// state is everything Restore replaces.
type state struct {
	store  *rangeledger.Store
	staked *staking.Index

	// mu guards the maps and the totals. The queues themselves are guarded
	// by their owner's lock.
	mu       sync.Mutex
	queues   map[bitfield.Address]*ownerqueue.Queue
	accounts map[bitfield.Address]*account
	nextID   uint64
	minted   uint64
	burned   uint64
}

func newState(firstID uint64) *state {
	return &state{
		store:    rangeledger.NewStore(),
		staked:   staking.NewIndex(),
		queues:   make(map[bitfield.Address]*ownerqueue.Queue),
		accounts: make(map[bitfield.Address]*account),
		nextID:   firstID,
	}
}

func (s *state) queue(owner bitfield.Address) *ownerqueue.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[owner]
	if !ok {
		q = ownerqueue.New(owner)
		s.queues[owner] = q
	}
	return q
}

func (s *state) lookup(owner bitfield.Address) (*ownerqueue.Queue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[owner]
	return q, ok
}

// account returns the owner's counters, creating them. Callers hold mu.
func (s *state) account(owner bitfield.Address) *account {
	a, ok := s.accounts[owner]
	if !ok {
		a = &account{}
		s.accounts[owner] = a
	}
	return a
}

// owners lists every owner that has ever held a glyph, in address order.
func (s *state) owners() []bitfield.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make([]bitfield.Address, 0, len(s.accounts))
	for o := range s.accounts {
		owners = append(owners, o)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Compare(owners[j]) < 0 })
	return owners
}

type Ledger struct {
	cfg    Config
	log    logger.Logger
	engine *engine.Engine

	// global is held shared by every operation and exclusively by Snapshot,
	// Restore and CheckInvariants.
	global sync.RWMutex
	owners *locker.Locker
	st     *state

	seq          atomic.Uint64
	emitMu       sync.Mutex
	broadcaster  *events.Broadcaster
	sinksMu      sync.Mutex
	sinks        map[events.Sink]*events.Queue
	initialSinks []events.Sink
	newID        func() (uuid.UUID, error)

	registerer prometheus.Registerer
	metrics    *metrics
}

func New(cfg Config, log logger.Logger, opts ...Option) (*Ledger, error) {
	if cfg.FirstTokenID == 0 {
		cfg.FirstTokenID = DefaultFirstTokenID
	}
	l := &Ledger{
		cfg:         cfg,
		log:         log,
		engine:      engine.New(log),
		owners:      locker.New(),
		st:          newState(cfg.FirstTokenID),
		broadcaster: events.NewBroadcaster(),
		sinks:       make(map[events.Sink]*events.Queue),
		newID:       uuid.NewV7,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.registerer != nil {
		m, err := newMetrics(l, l.registerer)
		if err != nil {
			return nil, err
		}
		l.metrics = m
	}
	for _, sink := range l.initialSinks {
		if err := l.Subscribe(sink); err != nil {
			return nil, err
		}
	}
	l.log.Infof("glyph ledger ready, first token id %d", cfg.FirstTokenID)
	return l, nil
}

// Subscribe delivers every subsequent event to sink. Each sink gets its own
// queue so a slow sink does not hold up the others.
func (l *Ledger) Subscribe(sink events.Sink) error {
	l.sinksMu.Lock()
	defer l.sinksMu.Unlock()
	if _, ok := l.sinks[sink]; ok {
		return nil
	}
	q := events.NewQueue(sink)
	if err := l.broadcaster.Add(q); err != nil {
		return err
	}
	l.sinks[sink] = q
	return nil
}

// Unsubscribe stops delivery to sink and closes it once its queue drains.
func (l *Ledger) Unsubscribe(sink events.Sink) error {
	l.sinksMu.Lock()
	defer l.sinksMu.Unlock()
	q, ok := l.sinks[sink]
	if !ok {
		return nil
	}
	delete(l.sinks, sink)
	if err := l.broadcaster.Remove(q); err != nil {
		return err
	}
	return q.Close()
}

// Close stops event delivery and closes every subscribed sink.
func (l *Ledger) Close() error {
	if l.metrics != nil {
		l.metrics.unregister()
	}
	return l.broadcaster.Close()
}

// lock takes the ledger's shared lock and the owner locks in address order.
// The returned func releases them.
func (l *Ledger) lock(owners ...bitfield.Address) func() {
	l.global.RLock()
	sort.Slice(owners, func(i, j int) bool { return owners[i].Compare(owners[j]) < 0 })
	var held []string
	for i, o := range owners {
		if i > 0 && o == owners[i-1] {
			continue
		}
		name := o.String()
		l.owners.Lock(name)
		held = append(held, name)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.owners.Unlock(held[i])
		}
		l.global.RUnlock()
	}
}
