package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

const expenseColumns = `group_address, id, payer, total_amount, receipt_hash, metadata_hash,
	external_ref, status, proposed_at, finalized_at`

// ExpenseRepository implements usecase.ExpenseRepository.
type ExpenseRepository struct {
	db DB
}

// NewExpenseRepository creates a new ExpenseRepository.
func NewExpenseRepository(db DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// NextID reserves the next id of group from its counter row.
func (r *ExpenseRepository) NextID(ctx context.Context, tx usecase.Transaction, group common.Address) (uint64, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return 0, err
	}

	const query = `UPDATE expense_counters SET next_id = next_id + 1
		WHERE group_address = $1 RETURNING next_id - 1`
	var id int64
	err = q.QueryRow(ctx, query, group.Bytes()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrGroupNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: reserve expense id: %w", err)
	}
	return uint64(id), nil
}

// Create stores an expense with its split rows.
func (r *ExpenseRepository) Create(ctx context.Context, tx usecase.Transaction, expense *domain.Expense) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	const query = `INSERT INTO expenses (` + expenseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := q.Exec(ctx, query,
		expense.GroupAddress.Bytes(),
		int64(expense.ID),
		expense.Payer.Bytes(),
		decimalToNumeric(expense.TotalAmount),
		expense.ReceiptHash.Bytes(),
		expense.MetadataHash.Bytes(),
		expense.ExternalRef,
		int16(expense.Status),
		expense.ProposedAt,
		timestamptz(expense.FinalizedAt),
	); err != nil {
		return fmt.Errorf("postgres: insert expense: %w", err)
	}

	const splitQuery = `INSERT INTO expense_splits (group_address, expense_id, position, participant, amount)
		VALUES ($1, $2, $3, $4, $5)`
	for i, p := range expense.Participants {
		if _, err := q.Exec(ctx, splitQuery,
			expense.GroupAddress.Bytes(),
			int64(expense.ID),
			i,
			p.Bytes(),
			decimalToNumeric(expense.Splits[i]),
		); err != nil {
			return fmt.Errorf("postgres: insert expense split: %w", err)
		}
	}
	return nil
}

// Get retrieves an expense.
func (r *ExpenseRepository) Get(ctx context.Context, group common.Address, id uint64) (*domain.Expense, error) {
	return r.get(ctx, r.db, group, id, "")
}

// GetForUpdate retrieves an expense and locks its row.
func (r *ExpenseRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, group common.Address, id uint64) (*domain.Expense, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, group, id, " FOR UPDATE")
}

// UpdateStatus stores the status and finalization time of an expense.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, expense *domain.Expense) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	const query = `UPDATE expenses SET status = $3, finalized_at = $4 WHERE group_address = $1 AND id = $2`
	tag, err := q.Exec(ctx, query,
		expense.GroupAddress.Bytes(),
		int64(expense.ID),
		int16(expense.Status),
		timestamptz(expense.FinalizedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: update expense status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExpenseNotFound
	}
	return nil
}

// Count returns the number of expenses of group.
func (r *ExpenseRepository) Count(ctx context.Context, group common.Address) (uint64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM expenses WHERE group_address = $1`, group.Bytes()).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count expenses: %w", err)
	}
	return uint64(n), nil
}

// List lists expenses in id order.
func (r *ExpenseRepository) List(ctx context.Context, group common.Address, limit, offset int) ([]*domain.Expense, error) {
	const query = `SELECT ` + expenseColumns + ` FROM expenses WHERE group_address = $1
		ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, group.Bytes(), pgLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expenses: %w", err)
	}

	var (
		out []*domain.Expense
		ids []int64
	)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan expense: %w", err)
		}
		out = append(out, e)
		ids = append(ids, int64(e.ID))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	const splitQuery = `SELECT expense_id, participant, amount FROM expense_splits
		WHERE group_address = $1 AND expense_id = ANY($2) ORDER BY expense_id, position`
	splitRows, err := r.db.Query(ctx, splitQuery, group.Bytes(), ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expense splits: %w", err)
	}
	defer splitRows.Close()

	byID := make(map[uint64]*domain.Expense, len(out))
	for _, e := range out {
		byID[e.ID] = e
	}
	for splitRows.Next() {
		var (
			id          int64
			participant []byte
			amount      pgtype.Numeric
		)
		if err := splitRows.Scan(&id, &participant, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan expense split: %w", err)
		}
		e := byID[uint64(id)]
		e.Participants = append(e.Participants, common.BytesToAddress(participant))
		e.Splits = append(e.Splits, numericToDecimal(amount))
	}
	return out, splitRows.Err()
}

// HasUnresolved reports whether member pays or shares a proposed or
// challenged expense of group.
func (r *ExpenseRepository) HasUnresolved(ctx context.Context, tx usecase.Transaction, group, member common.Address) (bool, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return false, err
	}

	const query = `SELECT EXISTS (
		SELECT 1 FROM expenses e
		WHERE e.group_address = $1 AND e.status IN ($3, $4)
		  AND (e.payer = $2 OR EXISTS (
			SELECT 1 FROM expense_splits s
			WHERE s.group_address = e.group_address AND s.expense_id = e.id AND s.participant = $2)))`
	var pending bool
	if err := q.QueryRow(ctx, query,
		group.Bytes(),
		member.Bytes(),
		int16(domain.ExpenseStatusProposed),
		int16(domain.ExpenseStatusChallenged),
	).Scan(&pending); err != nil {
		return false, fmt.Errorf("postgres: check unresolved expenses: %w", err)
	}
	return pending, nil
}

func (r *ExpenseRepository) get(ctx context.Context, q querier, group common.Address, id uint64, lock string) (*domain.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE group_address = $1 AND id = $2` + lock
	e, err := scanExpense(q.QueryRow(ctx, query, group.Bytes(), int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get expense: %w", err)
	}

	const splitQuery = `SELECT participant, amount FROM expense_splits
		WHERE group_address = $1 AND expense_id = $2 ORDER BY position`
	rows, err := q.Query(ctx, splitQuery, group.Bytes(), int64(id))
	if err != nil {
		return nil, fmt.Errorf("postgres: get expense splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			participant []byte
			amount      pgtype.Numeric
		)
		if err := rows.Scan(&participant, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan expense split: %w", err)
		}
		e.Participants = append(e.Participants, common.BytesToAddress(participant))
		e.Splits = append(e.Splits, numericToDecimal(amount))
	}
	return e, rows.Err()
}

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var (
		group, payer, receipt, metadata []byte
		id                              int64
		total                           pgtype.Numeric
		status                          int16
		finalizedAt                     pgtype.Timestamptz
		e                               domain.Expense
	)
	err := row.Scan(
		&group,
		&id,
		&payer,
		&total,
		&receipt,
		&metadata,
		&e.ExternalRef,
		&status,
		&e.ProposedAt,
		&finalizedAt,
	)
	if err != nil {
		return nil, err
	}

	e.GroupAddress = common.BytesToAddress(group)
	e.ID = uint64(id)
	e.Payer = common.BytesToAddress(payer)
	e.TotalAmount = numericToDecimal(total)
	e.ReceiptHash = common.BytesToHash(receipt)
	e.MetadataHash = common.BytesToHash(metadata)
	e.Status = domain.ExpenseStatus(status)
	e.ProposedAt = e.ProposedAt.UTC()
	e.FinalizedAt = timePtr(finalizedAt)
	e.Participants = []common.Address{}
	e.Splits = []decimal.Decimal{}
	return &e, nil
}
