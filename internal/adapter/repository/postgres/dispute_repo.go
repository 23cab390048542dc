package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

const disputeColumns = `group_address, expense_id, challenger, reason_code, evidence_hash, challenged_at,
	challenger_bond, votes_for, votes_against, resolved, upheld, resolved_at`

// DisputeRepository implements usecase.DisputeRepository.
type DisputeRepository struct {
	db DB
}

// NewDisputeRepository creates a new DisputeRepository.
func NewDisputeRepository(db DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create stores a new dispute. Only one dispute may exist per expense.
func (r *DisputeRepository) Create(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	const query = `INSERT INTO disputes (` + disputeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = q.Exec(ctx, query,
		dispute.GroupAddress.Bytes(),
		int64(dispute.ExpenseID),
		dispute.Challenger.Bytes(),
		int16(dispute.ReasonCode),
		dispute.EvidenceHash.Bytes(),
		dispute.ChallengedAt,
		decimalToNumeric(dispute.ChallengerBond),
		dispute.VotesFor,
		dispute.VotesAgainst,
		dispute.Resolved,
		dispute.Upheld,
		timestamptz(dispute.ResolvedAt),
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return domain.ErrInvalidExpenseStatus
	}
	if err != nil {
		return fmt.Errorf("postgres: insert dispute: %w", err)
	}
	return nil
}

// Get retrieves the dispute of an expense with its votes.
func (r *DisputeRepository) Get(ctx context.Context, group common.Address, expenseID uint64) (*domain.Dispute, error) {
	return r.get(ctx, r.db, group, expenseID, "")
}

// GetForUpdate retrieves the dispute of an expense and locks its row.
func (r *DisputeRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, group common.Address, expenseID uint64) (*domain.Dispute, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, group, expenseID, " FOR UPDATE")
}

// RecordVote stores voter's ballot and the dispute's updated tallies.
func (r *DisputeRepository) RecordVote(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute, voter common.Address, support bool) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	const voteQuery = `INSERT INTO dispute_votes (group_address, expense_id, voter, support) VALUES ($1, $2, $3, $4)`
	_, err = q.Exec(ctx, voteQuery, dispute.GroupAddress.Bytes(), int64(dispute.ExpenseID), voter.Bytes(), support)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return domain.ErrAlreadyVoted
	}
	if err != nil {
		return fmt.Errorf("postgres: insert vote: %w", err)
	}

	const query = `UPDATE disputes SET votes_for = $3, votes_against = $4 WHERE group_address = $1 AND expense_id = $2`
	return r.exec(ctx, q, query,
		dispute.GroupAddress.Bytes(),
		int64(dispute.ExpenseID),
		dispute.VotesFor,
		dispute.VotesAgainst,
	)
}

// Resolve stores the outcome of a dispute.
func (r *DisputeRepository) Resolve(ctx context.Context, tx usecase.Transaction, dispute *domain.Dispute) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	const query = `UPDATE disputes SET resolved = $3, upheld = $4, resolved_at = $5
		WHERE group_address = $1 AND expense_id = $2`
	return r.exec(ctx, q, query,
		dispute.GroupAddress.Bytes(),
		int64(dispute.ExpenseID),
		dispute.Resolved,
		dispute.Upheld,
		timestamptz(dispute.ResolvedAt),
	)
}

func (r *DisputeRepository) exec(ctx context.Context, q querier, query string, args ...any) error {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDisputeNotFound
	}
	return nil
}

func (r *DisputeRepository) get(ctx context.Context, q querier, group common.Address, expenseID uint64, lock string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE group_address = $1 AND expense_id = $2` + lock
	d, err := scanDispute(q.QueryRow(ctx, query, group.Bytes(), int64(expenseID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get dispute: %w", err)
	}

	const voteQuery = `SELECT voter, support FROM dispute_votes WHERE group_address = $1 AND expense_id = $2`
	rows, err := q.Query(ctx, voteQuery, group.Bytes(), int64(expenseID))
	if err != nil {
		return nil, fmt.Errorf("postgres: get votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			voter   []byte
			support bool
		)
		if err := rows.Scan(&voter, &support); err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		d.Votes[common.BytesToAddress(voter)] = support
	}
	return d, rows.Err()
}

func scanDispute(row pgx.Row) (*domain.Dispute, error) {
	var (
		group, challenger, evidence []byte
		expenseID                   int64
		reason                      int16
		bond                        pgtype.Numeric
		resolvedAt                  pgtype.Timestamptz
		d                           domain.Dispute
	)
	err := row.Scan(
		&group,
		&expenseID,
		&challenger,
		&reason,
		&evidence,
		&d.ChallengedAt,
		&bond,
		&d.VotesFor,
		&d.VotesAgainst,
		&d.Resolved,
		&d.Upheld,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	d.GroupAddress = common.BytesToAddress(group)
	d.ExpenseID = uint64(expenseID)
	d.Challenger = common.BytesToAddress(challenger)
	d.ReasonCode = domain.ReasonCode(reason)
	d.EvidenceHash = common.BytesToHash(evidence)
	d.ChallengedAt = d.ChallengedAt.UTC()
	d.ChallengerBond = numericToDecimal(bond)
	d.ResolvedAt = timePtr(resolvedAt)
	d.Votes = make(map[common.Address]bool)
	return &d, nil
}
