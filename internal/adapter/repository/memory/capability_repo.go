package memory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// CapabilityRepository implements usecase.CapabilityRepository.
type CapabilityRepository struct {
	store *Store
}

// NewCapabilityRepository creates a new CapabilityRepository.
func NewCapabilityRepository(store *Store) *CapabilityRepository {
	return &CapabilityRepository{store: store}
}

// Grant adds a capability. Granting a held capability is a no-op.
func (r *CapabilityRepository) Grant(ctx context.Context, tx usecase.Transaction, grant domain.Grant) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}
	if !grant.Capability.IsValid() {
		return fmt.Errorf("%w: unknown capability %q", domain.ErrInvalidParams, grant.Capability)
	}

	set, ok := r.store.caps[grant.Address]
	if !ok {
		set = make(domain.CapabilitySet)
		r.store.caps[grant.Address] = set
	}
	if set[grant.Capability] {
		return nil
	}

	set[grant.Capability] = true
	t.onRollback(func() { delete(set, grant.Capability) })
	return nil
}

// Get returns the capabilities of addr.
func (r *CapabilityRepository) Get(ctx context.Context, addr common.Address) (domain.CapabilitySet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.get(addr), nil
}

// GetTx returns the capabilities of addr inside a transaction.
func (r *CapabilityRepository) GetTx(ctx context.Context, tx usecase.Transaction, addr common.Address) (domain.CapabilitySet, error) {
	if _, err := open(r.store, tx); err != nil {
		return nil, err
	}
	return r.get(addr), nil
}

func (r *CapabilityRepository) get(addr common.Address) domain.CapabilitySet {
	out := make(domain.CapabilitySet)
	for c, held := range r.store.caps[addr] {
		out[c] = held
	}
	return out
}
