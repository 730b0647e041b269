// Package memory provides an in-process implementation of every ledger
// repository, used by tests and by the server when storage is "memory".
package memory

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
)

var errReadOnly = errors.New("memory: write inside read-only transaction")

// Store holds all data behind one RWMutex. Transactions work on a copy of
// the state that replaces the live one on commit.
type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	seq       int64
	products  map[id.ID]entity.Product
	types     map[id.ID]entity.MovementType
	locations map[id.ID]entity.StockLocation
	seeds     map[id.ID][]entity.SeedBalance // per product, ordered by seed date
	movements []entity.Movement              // append order
	byKey     map[string]int                 // idempotency key -> index in movements
	balances  map[entity.BalanceKey]entity.Balance
	documents map[id.ID]entity.FiscalDocument
	lines     []entity.FiscalLine
}

func newState() *state {
	return &state{
		products:  make(map[id.ID]entity.Product),
		types:     make(map[id.ID]entity.MovementType),
		locations: make(map[id.ID]entity.StockLocation),
		seeds:     make(map[id.ID][]entity.SeedBalance),
		byKey:     make(map[string]int),
		balances:  make(map[entity.BalanceKey]entity.Balance),
		documents: make(map[id.ID]entity.FiscalDocument),
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:       s.seq,
		products:  maps.Clone(s.products),
		types:     maps.Clone(s.types),
		locations: maps.Clone(s.locations),
		seeds:     make(map[id.ID][]entity.SeedBalance, len(s.seeds)),
		movements: append([]entity.Movement(nil), s.movements...),
		byKey:     maps.Clone(s.byKey),
		balances:  maps.Clone(s.balances),
		documents: maps.Clone(s.documents),
		lines:     append([]entity.FiscalLine(nil), s.lines...),
	}
	for k, v := range s.seeds {
		c.seeds[k] = append([]entity.SeedBalance(nil), v...)
	}
	return c
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

var _ tx.ReadOnlyManager = (*Store)(nil)

type txKey struct{}

type txState struct {
	st       *state
	writable bool
}

func activeTx(ctx context.Context) *txState {
	if t, ok := ctx.Value(txKey{}).(*txState); ok {
		return t
	}
	return nil
}

// RunInTransaction runs fn on a private copy of the state and publishes it
// when fn succeeds. Writers are serialized.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if activeTx(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, &txState{st: work, writable: true})); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Ping always succeeds; it lets the store stand in for a database in health checks.
func (s *Store) Ping(context.Context) error { return nil }

// ReadOnly runs fn while holding the read lock, so every read sees the same state.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if activeTx(ctx) != nil {
		return fn(ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(context.WithValue(ctx, txKey{}, &txState{st: s.st}))
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if t := activeTx(ctx); t != nil {
		return fn(t.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if t := activeTx(ctx); t != nil {
		if !t.writable {
			return errReadOnly
		}
		return fn(t.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// --- fixtures: catalog and fiscal data are owned by other systems ---

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p entity.Product) {
	_ = s.write(context.Background(), func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// PutMovementType inserts or replaces a movement type.
func (s *Store) PutMovementType(mt entity.MovementType) {
	_ = s.write(context.Background(), func(st *state) error {
		st.types[mt.ID] = mt
		return nil
	})
}

// PutLocation inserts or replaces a stock location.
func (s *Store) PutLocation(l entity.StockLocation) {
	_ = s.write(context.Background(), func(st *state) error {
		st.locations[l.ID] = l
		return nil
	})
}

// PutSeed inserts or replaces the seed of (product, seed date).
func (s *Store) PutSeed(seed entity.SeedBalance) {
	_ = s.write(context.Background(), func(st *state) error {
		list := st.seeds[seed.ProductID]
		i := sort.Search(len(list), func(i int) bool { return !list[i].SeedDate.Before(seed.SeedDate) })
		if i < len(list) && list[i].SeedDate.Equal(seed.SeedDate) {
			list[i] = seed
		} else {
			list = append(list, entity.SeedBalance{})
			copy(list[i+1:], list[i:])
			list[i] = seed
		}
		st.seeds[seed.ProductID] = list
		return nil
	})
}

// PutFiscalDocument stores a document with its lines.
func (s *Store) PutFiscalDocument(doc entity.FiscalDocument, lines ...entity.FiscalLine) {
	_ = s.write(context.Background(), func(st *state) error {
		st.documents[doc.ID] = doc
		for _, l := range lines {
			l.DocumentID = doc.ID
			st.lines = append(st.lines, l)
		}
		return nil
	})
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func containsID(ids []id.ID, v id.ID) bool {
	for _, x := range ids {
		if x == v {
			return true
		}
	}
	return false
}

func sortIDs(ids []id.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
