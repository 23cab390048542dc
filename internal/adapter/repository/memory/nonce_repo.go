package memory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/usecase"
)

// NonceRepository implements usecase.NonceRepository.
type NonceRepository struct {
	store *Store
}

// NewNonceRepository creates a new NonceRepository.
func NewNonceRepository(store *Store) *NonceRepository {
	return &NonceRepository{store: store}
}

// Next returns owner's next nonce, starting at zero.
func (r *NonceRepository) Next(ctx context.Context, tx usecase.Transaction, owner common.Address) (uint64, error) {
	t, err := open(r.store, tx)
	if err != nil {
		return 0, err
	}

	n := r.store.nonces[owner]
	r.store.nonces[owner] = n + 1
	t.onRollback(func() { r.store.nonces[owner] = n })
	return n, nil
}
