package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/usecase"
)

// NonceRepository implements usecase.NonceRepository.
type NonceRepository struct {
	db DB
}

// NewNonceRepository creates a new NonceRepository.
func NewNonceRepository(db DB) *NonceRepository {
	return &NonceRepository{db: db}
}

// Next returns owner's next nonce, starting at zero.
func (r *NonceRepository) Next(ctx context.Context, tx usecase.Transaction, owner common.Address) (uint64, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return 0, err
	}

	const query = `INSERT INTO nonces (owner, next) VALUES ($1, 1)
		ON CONFLICT (owner) DO UPDATE SET next = nonces.next + 1
		RETURNING next - 1`
	var n int64
	if err := q.QueryRow(ctx, query, owner.Bytes()).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: next nonce: %w", err)
	}
	return uint64(n), nil
}
