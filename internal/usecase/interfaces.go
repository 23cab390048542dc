package usecase

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// GroupRepository defines data access for groups.
type GroupRepository interface {
	Create(ctx context.Context, tx Transaction, group *domain.Group) error
	GetByAddress(ctx context.Context, addr common.Address) (*domain.Group, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Group, error)
	ListByMember(ctx context.Context, member common.Address) ([]*domain.Group, error)
	Count(ctx context.Context) (int, error)
}

// MemberRepository defines data access for group members.
type MemberRepository interface {
	Create(ctx context.Context, tx Transaction, member *domain.Member) error
	Delete(ctx context.Context, tx Transaction, group, addr common.Address) error
	Get(ctx context.Context, group, addr common.Address) (*domain.Member, error)
	GetForUpdate(ctx context.Context, tx Transaction, group, addr common.Address) (*domain.Member, error)
	ListByGroup(ctx context.Context, group common.Address) ([]*domain.Member, error)
	ListByGroupForUpdate(ctx context.Context, tx Transaction, group common.Address) ([]*domain.Member, error)
	Update(ctx context.Context, tx Transaction, member *domain.Member) error
}

// ExpenseRepository defines data access for expenses.
type ExpenseRepository interface {
	// NextID reserves the next sequential expense id of a group.
	NextID(ctx context.Context, tx Transaction, group common.Address) (uint64, error)
	Create(ctx context.Context, tx Transaction, expense *domain.Expense) error
	Get(ctx context.Context, group common.Address, id uint64) (*domain.Expense, error)
	GetForUpdate(ctx context.Context, tx Transaction, group common.Address, id uint64) (*domain.Expense, error)
	UpdateStatus(ctx context.Context, tx Transaction, expense *domain.Expense) error
	Count(ctx context.Context, group common.Address) (uint64, error)
	List(ctx context.Context, group common.Address, limit, offset int) ([]*domain.Expense, error)
	// HasUnresolved reports whether member pays or shares a proposed or
	// challenged expense of group.
	HasUnresolved(ctx context.Context, tx Transaction, group, member common.Address) (bool, error)
}

// DisputeRepository defines data access for disputes.
type DisputeRepository interface {
	Create(ctx context.Context, tx Transaction, dispute *domain.Dispute) error
	Get(ctx context.Context, group common.Address, expenseID uint64) (*domain.Dispute, error)
	GetForUpdate(ctx context.Context, tx Transaction, group common.Address, expenseID uint64) (*domain.Dispute, error)
	RecordVote(ctx context.Context, tx Transaction, dispute *domain.Dispute, voter common.Address, support bool) error
	Resolve(ctx context.Context, tx Transaction, dispute *domain.Dispute) error
}

// ReputationRepository defines data access for reputation records.
// Unknown members yield an empty record, never an error.
type ReputationRepository interface {
	Get(ctx context.Context, member common.Address) (*domain.Reputation, error)
	GetForUpdate(ctx context.Context, tx Transaction, member common.Address) (*domain.Reputation, error)
	Save(ctx context.Context, tx Transaction, rep *domain.Reputation) error
	List(ctx context.Context, limit, offset int) ([]*domain.Reputation, error)
}

// CapabilityRepository stores the registry's address to capability table.
type CapabilityRepository interface {
	Grant(ctx context.Context, tx Transaction, grant domain.Grant) error
	Get(ctx context.Context, addr common.Address) (domain.CapabilitySet, error)
	GetTx(ctx context.Context, tx Transaction, addr common.Address) (domain.CapabilitySet, error)
}

// NonceRepository hands out the factory's address derivation nonces.
type NonceRepository interface {
	Next(ctx context.Context, tx Transaction, owner common.Address) (uint64, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	// GetByAggregate returns events in append order.
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// Stores bundles the repositories a storage backend provides.
type Stores struct {
	TxManager    TransactionManager
	Groups       GroupRepository
	Members      MemberRepository
	Expenses     ExpenseRepository
	Disputes     DisputeRepository
	Reputations  ReputationRepository
	Capabilities CapabilityRepository
	Nonces       NonceRepository
	Outbox       OutboxRepository
	// Retrier is optional; when set, transactions are retried on conflicts.
	Retrier      Retrier
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// ValueTransfer moves units of account on behalf of one custodian module.
// All movements join the caller's transaction and are undone on rollback.
type ValueTransfer interface {
	// Deposit pulls amount from an external account into custody. The owner
	// must have approved the custodian.
	Deposit(ctx context.Context, tx Transaction, from common.Address, amount decimal.Decimal) error
	// Withdraw pays amount out of custody.
	Withdraw(ctx context.Context, tx Transaction, to common.Address, amount decimal.Decimal) error
	// Transfer moves amount between two external accounts using the
	// custodian's allowance from the sender.
	Transfer(ctx context.Context, tx Transaction, from, to common.Address, amount decimal.Decimal) error
	// Holding is the amount currently held in custody.
	Holding(ctx context.Context, tx Transaction) (decimal.Decimal, error)
}

// Custody hands out value-transfer capabilities per custodian address.
type Custody interface {
	For(custodian common.Address) ValueTransfer
}

// Vault is the custody backend with its account management surface.
type Vault interface {
	Custody
	BalanceOf(ctx context.Context, addr common.Address) (decimal.Decimal, error)
	Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error)
	Approve(ctx context.Context, tx Transaction, owner, spender common.Address, amount decimal.Decimal) error
	Mint(ctx context.Context, tx Transaction, to common.Address, amount decimal.Decimal) error
}

// Retrier re-executes an operation on transient storage errors.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Recorder observes use case outcomes. Implemented by the metrics package.
type Recorder interface {
	ObserveOperation(operation string, duration time.Duration, err error)
	ObserveAmount(operation string, amount decimal.Decimal)
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key so the request may be retried.
	Release(ctx context.Context, key string) error
}

// BalanceBook is the ledger surface the expense lifecycle mutates.
type BalanceBook interface {
	RequireMemberTx(ctx context.Context, tx Transaction, addr common.Address) (*domain.Member, error)
	ApplyExpenseTx(ctx context.Context, tx Transaction, expense *domain.Expense, at time.Time) error
}

// Membership is the ledger surface the dispute module reads.
type Membership interface {
	RequireMemberTx(ctx context.Context, tx Transaction, addr common.Address) (*domain.Member, error)
	MemberCountTx(ctx context.Context, tx Transaction) (int, error)
}

// ExpenseTransitions are the status changes driven by dispute resolution.
type ExpenseTransitions interface {
	MarkChallengedTx(ctx context.Context, tx Transaction, id uint64, challenger common.Address) (*domain.Expense, error)
	UpholdTx(ctx context.Context, tx Transaction, id uint64) (*domain.Expense, error)
	RejectTx(ctx context.Context, tx Transaction, id uint64) (*domain.Expense, error)
}

// ReputationReporter receives settlement and dispute reports from group modules.
type ReputationReporter interface {
	RecordSettlementTx(ctx context.Context, tx Transaction, reporter, member common.Address, amount decimal.Decimal, onTime bool, elapsed time.Duration) error
	RecordDisputeOutcomeTx(ctx context.Context, tx Transaction, reporter, member common.Address, won bool) error
}
