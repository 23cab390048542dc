package memory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// ExpenseRepository implements usecase.ExpenseRepository.
type ExpenseRepository struct {
	store *Store
}

// NewExpenseRepository creates a new ExpenseRepository.
func NewExpenseRepository(store *Store) *ExpenseRepository {
	return &ExpenseRepository{store: store}
}

// NextID returns the id the next expense of group will get.
func (r *ExpenseRepository) NextID(ctx context.Context, tx usecase.Transaction, group common.Address) (uint64, error) {
	if _, err := open(r.store, tx); err != nil {
		return 0, err
	}
	return uint64(len(r.store.expenses[group])), nil
}

// Create appends an expense. Ids are dense per group.
func (r *ExpenseRepository) Create(ctx context.Context, tx usecase.Transaction, expense *domain.Expense) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}
	s := r.store
	group := expense.GroupAddress

	if want := uint64(len(s.expenses[group])); expense.ID != want {
		return fmt.Errorf("memory: expense id %d out of sequence, want %d", expense.ID, want)
	}

	s.expenses[group] = append(s.expenses[group], cloneExpense(expense))
	t.onRollback(func() {
		s.expenses[group] = s.expenses[group][:len(s.expenses[group])-1]
	})
	return nil
}

// Get retrieves an expense.
func (r *ExpenseRepository) Get(ctx context.Context, group common.Address, id uint64) (*domain.Expense, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.get(group, id)
}

// GetForUpdate retrieves an expense inside a transaction.
func (r *ExpenseRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, group common.Address, id uint64) (*domain.Expense, error) {
	if _, err := open(r.store, tx); err != nil {
		return nil, err
	}
	return r.get(group, id)
}

// UpdateStatus stores the status and finalization time of an expense.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, expense *domain.Expense) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}

	list := r.store.expenses[expense.GroupAddress]
	if expense.ID >= uint64(len(list)) {
		return domain.ErrExpenseNotFound
	}

	prev := list[expense.ID]
	next := cloneExpense(prev)
	next.Status = expense.Status
	next.FinalizedAt = expense.FinalizedAt
	list[expense.ID] = next

	t.onRollback(func() { list[expense.ID] = prev })
	return nil
}

// Count returns the number of expenses of group.
func (r *ExpenseRepository) Count(ctx context.Context, group common.Address) (uint64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return uint64(len(r.store.expenses[group])), nil
}

// List lists expenses in id order.
func (r *ExpenseRepository) List(ctx context.Context, group common.Address, limit, offset int) ([]*domain.Expense, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	items := page(r.store.expenses[group], limit, offset)
	out := make([]*domain.Expense, 0, len(items))
	for _, e := range items {
		out = append(out, cloneExpense(e))
	}
	return out, nil
}

// HasUnresolved reports whether member is party to a non-terminal expense.
func (r *ExpenseRepository) HasUnresolved(ctx context.Context, tx usecase.Transaction, group, member common.Address) (bool, error) {
	if _, err := open(r.store, tx); err != nil {
		return false, err
	}
	for _, e := range r.store.expenses[group] {
		if !e.Status.IsTerminal() && e.Involves(member) {
			return true, nil
		}
	}
	return false, nil
}

func (r *ExpenseRepository) get(group common.Address, id uint64) (*domain.Expense, error) {
	list := r.store.expenses[group]
	if id >= uint64(len(list)) {
		return nil, domain.ErrExpenseNotFound
	}
	return cloneExpense(list[id]), nil
}
