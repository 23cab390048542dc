package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

const groupColumns = `address, expense_module, dispute_module, name, admin, min_bond,
	challenge_window_sec, vote_window_sec, settlement_grace_sec, quorum_bps, slash_bps, created_at`

// GroupRepository implements usecase.GroupRepository.
type GroupRepository struct {
	db DB
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create stores a new group and its expense counter.
func (r *GroupRepository) Create(ctx context.Context, tx usecase.Transaction, group *domain.Group) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	const query = `INSERT INTO groups (` + groupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	p := group.Params
	if _, err := q.Exec(ctx, query,
		group.Address.Bytes(),
		group.ExpenseModule.Bytes(),
		group.DisputeModule.Bytes(),
		group.Name,
		group.Admin.Bytes(),
		decimalToNumeric(p.MinBond),
		seconds(p.ChallengeWindow),
		seconds(p.VoteWindow),
		seconds(p.SettlementGrace),
		p.QuorumBps,
		p.SlashBps,
		group.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert group: %w", err)
	}

	if _, err := q.Exec(ctx, `INSERT INTO expense_counters (group_address, next_id) VALUES ($1, 0)`, group.Address.Bytes()); err != nil {
		return fmt.Errorf("postgres: insert expense counter: %w", err)
	}
	return nil
}

// GetByAddress retrieves a group by its ledger address.
func (r *GroupRepository) GetByAddress(ctx context.Context, addr common.Address) (*domain.Group, error) {
	const query = `SELECT ` + groupColumns + ` FROM groups WHERE address = $1`
	g, err := scanGroup(r.db.QueryRow(ctx, query, addr.Bytes()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGroupNotFound
	}
	return g, err
}

// List lists groups in creation order.
func (r *GroupRepository) List(ctx context.Context, limit, offset int) ([]*domain.Group, error) {
	const query = `SELECT ` + groupColumns + ` FROM groups ORDER BY seq LIMIT $1 OFFSET $2`
	return r.query(ctx, query, pgLimit(limit), offset)
}

// ListByMember lists the groups member belongs to.
func (r *GroupRepository) ListByMember(ctx context.Context, member common.Address) ([]*domain.Group, error) {
	const query = `SELECT ` + groupColumns + ` FROM groups g
		WHERE EXISTS (SELECT 1 FROM members m WHERE m.group_address = g.address AND m.address = $1)
		ORDER BY g.seq`
	return r.query(ctx, query, member.Bytes())
}

// Count returns the number of groups.
func (r *GroupRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM groups`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count groups: %w", err)
	}
	return n, nil
}

func (r *GroupRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Group, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list groups: %w", err)
	}
	defer rows.Close()

	var out []*domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func groupExists(ctx context.Context, q querier, addr common.Address) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE address = $1)`, addr.Bytes()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check group: %w", err)
	}
	return exists, nil
}

func scanGroup(row pgx.Row) (*domain.Group, error) {
	var (
		addr, expenseModule, disputeModule, admin []byte
		minBond                                   pgtype.Numeric
		challengeSec, voteSec, graceSec           int64
		g                                         domain.Group
	)
	err := row.Scan(
		&addr,
		&expenseModule,
		&disputeModule,
		&g.Name,
		&admin,
		&minBond,
		&challengeSec,
		&voteSec,
		&graceSec,
		&g.Params.QuorumBps,
		&g.Params.SlashBps,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Address = common.BytesToAddress(addr)
	g.ExpenseModule = common.BytesToAddress(expenseModule)
	g.DisputeModule = common.BytesToAddress(disputeModule)
	g.Admin = common.BytesToAddress(admin)
	g.Params.MinBond = numericToDecimal(minBond)
	g.Params.ChallengeWindow = time.Duration(challengeSec) * time.Second
	g.Params.VoteWindow = time.Duration(voteSec) * time.Second
	g.Params.SettlementGrace = time.Duration(graceSec) * time.Second
	g.CreatedAt = g.CreatedAt.UTC()
	return &g, nil
}
