package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// CapabilityRepository implements usecase.CapabilityRepository.
type CapabilityRepository struct {
	db DB
}

// NewCapabilityRepository creates a new CapabilityRepository.
func NewCapabilityRepository(db DB) *CapabilityRepository {
	return &CapabilityRepository{db: db}
}

// Grant adds a capability. Granting a held capability is a no-op.
func (r *CapabilityRepository) Grant(ctx context.Context, tx usecase.Transaction, grant domain.Grant) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}
	if !grant.Capability.IsValid() {
		return fmt.Errorf("%w: unknown capability %q", domain.ErrInvalidParams, grant.Capability)
	}

	const query = `INSERT INTO capabilities (address, capability, granted_by) VALUES ($1, $2, $3)
		ON CONFLICT (address, capability) DO NOTHING`
	if _, err := q.Exec(ctx, query, grant.Address.Bytes(), string(grant.Capability), grant.GrantedBy.Bytes()); err != nil {
		return fmt.Errorf("postgres: grant capability: %w", err)
	}
	return nil
}

// Get returns the capabilities of addr.
func (r *CapabilityRepository) Get(ctx context.Context, addr common.Address) (domain.CapabilitySet, error) {
	return r.get(ctx, r.db, addr)
}

// GetTx returns the capabilities of addr inside a transaction.
func (r *CapabilityRepository) GetTx(ctx context.Context, tx usecase.Transaction, addr common.Address) (domain.CapabilitySet, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, addr)
}

func (r *CapabilityRepository) get(ctx context.Context, q querier, addr common.Address) (domain.CapabilitySet, error) {
	rows, err := q.Query(ctx, `SELECT capability FROM capabilities WHERE address = $1`, addr.Bytes())
	if err != nil {
		return nil, fmt.Errorf("postgres: get capabilities: %w", err)
	}
	defer rows.Close()

	out := make(domain.CapabilitySet)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("postgres: scan capability: %w", err)
		}
		out[domain.Capability(c)] = true
	}
	return out, rows.Err()
}
