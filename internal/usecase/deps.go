package usecase

import (
	"bytes"
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/iho/bondtab/internal/domain"
)

// Dependencies are the collaborators shared by every group module.
type Dependencies struct {
	Stores
	Custody  Custody
	Clock    Clock
	IDGen    IDGenerator
	Logger   zerolog.Logger
	Recorder Recorder
}

func (d Dependencies) events() eventLog {
	return eventLog{outbox: d.Outbox, idGen: d.IDGen}
}

// runInTx executes fn inside a bounded transaction and commits on success.
// With a retrier configured, the whole transaction is retried on transient
// storage conflicts, so fn must not accumulate state across attempts.
func runInTx(ctx context.Context, stores Stores, fn func(ctx context.Context, tx Transaction) error) error {
	if stores.Retrier == nil {
		return runOnce(ctx, stores.TxManager, fn)
	}
	return stores.Retrier.Retry(ctx, func() error {
		return runOnce(ctx, stores.TxManager, fn)
	})
}

func runOnce(ctx context.Context, tm TransactionManager, fn func(ctx context.Context, tx Transaction) error) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := tm.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := fn(txCtx, tx); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// lockMembers locks the given members in address order (deadlock prevention).
func lockMembers(
	ctx context.Context,
	tx Transaction,
	repo MemberRepository,
	group common.Address,
	addrs []common.Address,
) (map[common.Address]*domain.Member, error) {
	unique := make([]common.Address, 0, len(addrs))
	seen := make(map[common.Address]bool, len(addrs))
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			unique = append(unique, a)
		}
	}
	sort.Slice(unique, func(i, j int) bool {
		return bytes.Compare(unique[i][:], unique[j][:]) < 0
	})

	members := make(map[common.Address]*domain.Member, len(unique))
	for _, a := range unique {
		m, err := repo.GetForUpdate(ctx, tx, group, a)
		if err != nil {
			return nil, err
		}
		members[a] = m
	}
	return members, nil
}
