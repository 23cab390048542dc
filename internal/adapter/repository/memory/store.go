// Package memory implements the storage and custody ports in process memory.
// A transaction holds the store-wide lock until it commits or rolls back;
// every write registers an undo step so rollback restores the prior state.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already finished")

// ErrForeignTx is returned when a transaction from another backend is passed in.
var ErrForeignTx = errors.New("memory: transaction does not belong to this store")

type disputeKey struct {
	group     common.Address
	expenseID uint64
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Store holds all state of the in-memory backend.
type Store struct {
	mu sync.RWMutex

	groups      map[common.Address]*domain.Group
	groupOrder  []common.Address
	members     map[common.Address]map[common.Address]*domain.Member
	memberOrder map[common.Address][]common.Address
	expenses    map[common.Address][]*domain.Expense
	disputes    map[disputeKey]*domain.Dispute
	reputations map[common.Address]*domain.Reputation
	repOrder    []common.Address
	caps        map[common.Address]domain.CapabilitySet
	nonces      map[common.Address]uint64
	outbox      []*domain.OutboxEvent
	seq         int64

	balances   map[common.Address]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		groups:      make(map[common.Address]*domain.Group),
		members:     make(map[common.Address]map[common.Address]*domain.Member),
		memberOrder: make(map[common.Address][]common.Address),
		expenses:    make(map[common.Address][]*domain.Expense),
		disputes:    make(map[disputeKey]*domain.Dispute),
		reputations: make(map[common.Address]*domain.Reputation),
		caps:        make(map[common.Address]domain.CapabilitySet),
		nonces:      make(map[common.Address]uint64),
		balances:    make(map[common.Address]decimal.Decimal),
		allowances:  make(map[allowanceKey]decimal.Decimal),
	}
}

// NewStores wires every repository of s.
func NewStores(s *Store) usecase.Stores {
	return usecase.Stores{
		TxManager:    NewTxManager(s),
		Groups:       NewGroupRepository(s),
		Members:      NewMemberRepository(s),
		Expenses:     NewExpenseRepository(s),
		Disputes:     NewDisputeRepository(s),
		Reputations:  NewReputationRepository(s),
		Capabilities: NewCapabilityRepository(s),
		Nonces:       NewNonceRepository(s),
		Outbox:       NewOutboxRepository(s),
	}
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin takes the store lock and starts a transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	return &Tx{store: m.store}, nil
}

// Tx is an exclusive transaction with an undo journal.
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

// Commit keeps all writes and releases the store.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

// Rollback reverts all writes and releases the store. Rolling back a
// finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *Tx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

// open validates that tx is a live transaction of store.
func open(store *Store, tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != store {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, ErrTxDone
	}
	return t, nil
}

func cloneGroup(g *domain.Group) *domain.Group {
	c := *g
	return &c
}

func cloneMember(m *domain.Member) *domain.Member {
	c := *m
	if m.DebtSince != nil {
		t := *m.DebtSince
		c.DebtSince = &t
	}
	c.DebtLots = append([]domain.DebtLot(nil), m.DebtLots...)
	return &c
}

func cloneExpense(e *domain.Expense) *domain.Expense {
	c := *e
	c.Participants = append([]common.Address(nil), e.Participants...)
	c.Splits = append([]decimal.Decimal(nil), e.Splits...)
	if e.FinalizedAt != nil {
		t := *e.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}

func cloneDispute(d *domain.Dispute) *domain.Dispute {
	c := *d
	c.Votes = make(map[common.Address]bool, len(d.Votes))
	for k, v := range d.Votes {
		c.Votes[k] = v
	}
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func cloneReputation(r *domain.Reputation) *domain.Reputation {
	c := *r
	return &c
}

func cloneEvent(e *domain.OutboxEvent) *domain.OutboxEvent {
	c := *e
	c.Payload = make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		c.Payload[k] = v
	}
	if e.PublishedAt != nil {
		t := *e.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
