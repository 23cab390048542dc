// Package postgres implements the storage and custody ports on PostgreSQL
// through pgx. Repositories join the caller's transaction for writes and
// read from the pool otherwise.
package postgres

import "github.com/iho/bondtab/internal/usecase"

// NewStores wires every repository on db. retrier may be nil.
func NewStores(db DB, retrier *Retrier) usecase.Stores {
	stores := usecase.Stores{
		TxManager:    NewTxManager(db),
		Groups:       NewGroupRepository(db),
		Members:      NewMemberRepository(db),
		Expenses:     NewExpenseRepository(db),
		Disputes:     NewDisputeRepository(db),
		Reputations:  NewReputationRepository(db),
		Capabilities: NewCapabilityRepository(db),
		Nonces:       NewNonceRepository(db),
		Outbox:       NewOutboxRepository(db),
	}
	if retrier != nil {
		stores.Retrier = retrier
	}
	return stores
}
