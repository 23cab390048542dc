package memory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// DisputeRepository implements usecase.DisputeRepository.
type DisputeRepository struct {
	store *Store
}

// NewDisputeRepository creates a new DisputeRepository.
func NewDisputeRepository(store *Store) *DisputeRepository {
	return &DisputeRepository{store: store}
}

// Create stores a new dispute. Only one dispute may exist per expense.
func (r *DisputeRepository) Create(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}

	key := disputeKey{group: dispute.GroupAddress, expenseID: dispute.ExpenseID}
	if _, exists := r.store.disputes[key]; exists {
		return domain.ErrInvalidExpenseStatus
	}

	r.store.disputes[key] = cloneDispute(dispute)
	t.onRollback(func() { delete(r.store.disputes, key) })
	return nil
}

// Get retrieves the dispute of an expense.
func (r *DisputeRepository) Get(ctx context.Context, group common.Address, expenseID uint64) (*domain.Dispute, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.get(group, expenseID)
}

// GetForUpdate retrieves the dispute of an expense inside a transaction.
func (r *DisputeRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, group common.Address, expenseID uint64) (*domain.Dispute, error) {
	if _, err := open(r.store, tx); err != nil {
		return nil, err
	}
	return r.get(group, expenseID)
}

// RecordVote stores the dispute with voter's vote applied.
func (r *DisputeRepository) RecordVote(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute, voter common.Address, support bool) error {
	return r.replace(tx, dispute)
}

// Resolve stores the resolved dispute.
func (r *DisputeRepository) Resolve(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute) error {
	return r.replace(tx, dispute)
}

func (r *DisputeRepository) replace(tx usecase.Transaction, dispute *domain.Dispute) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}

	key := disputeKey{group: dispute.GroupAddress, expenseID: dispute.ExpenseID}
	prev, ok := r.store.disputes[key]
	if !ok {
		return domain.ErrDisputeNotFound
	}

	r.store.disputes[key] = cloneDispute(dispute)
	t.onRollback(func() { r.store.disputes[key] = prev })
	return nil
}

func (r *DisputeRepository) get(group common.Address, expenseID uint64) (*domain.Dispute, error) {
	d, ok := r.store.disputes[disputeKey{group: group, expenseID: expenseID}]
	if !ok {
		return nil, domain.ErrDisputeNotFound
	}
	return cloneDispute(d), nil
}
