package memory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// ReputationRepository implements usecase.ReputationRepository.
type ReputationRepository struct {
	store *Store
}

// NewReputationRepository creates a new ReputationRepository.
func NewReputationRepository(store *Store) *ReputationRepository {
	return &ReputationRepository{store: store}
}

// Get returns member's record or an empty one.
func (r *ReputationRepository) Get(ctx context.Context, member common.Address) (*domain.Reputation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.get(member), nil
}

// GetForUpdate returns member's record inside a transaction.
func (r *ReputationRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, member common.Address) (*domain.Reputation, error) {
	if _, err := open(r.store, tx); err != nil {
		return nil, err
	}
	return r.get(member), nil
}

// Save inserts or replaces a record.
func (r *ReputationRepository) Save(ctx context.Context, tx usecase.Transaction, rep *domain.Reputation) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}
	s := r.store

	prev, existed := s.reputations[rep.Member]
	s.reputations[rep.Member] = cloneReputation(rep)
	if !existed {
		s.repOrder = append(s.repOrder, rep.Member)
	}

	t.onRollback(func() {
		if existed {
			s.reputations[rep.Member] = prev
			return
		}
		delete(s.reputations, rep.Member)
		s.repOrder = s.repOrder[:len(s.repOrder)-1]
	})
	return nil
}

// List lists records in first-seen order.
func (r *ReputationRepository) List(ctx context.Context, limit, offset int) ([]*domain.Reputation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	addrs := page(r.store.repOrder, limit, offset)
	out := make([]*domain.Reputation, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, cloneReputation(r.store.reputations[a]))
	}
	return out, nil
}

func (r *ReputationRepository) get(member common.Address) *domain.Reputation {
	if rep, ok := r.store.reputations[member]; ok {
		return cloneReputation(rep)
	}
	return domain.NewReputation(member)
}
