package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

const (
	memberColumns = `group_address, address, bond, net_balance, debt_since, joined_at, debt_lots`

	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// MemberRepository implements usecase.MemberRepository.
type MemberRepository struct {
	db DB
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(db DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Create adds a member to a group.
func (r *MemberRepository) Create(ctx context.Context, tx usecase.Transaction, member *domain.Member) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	lots, err := encodeDebtLots(member.DebtLots)
	if err != nil {
		return err
	}

	const query = `INSERT INTO members (` + memberColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = q.Exec(ctx, query,
		member.GroupAddress.Bytes(),
		member.Address.Bytes(),
		decimalToNumeric(member.Bond),
		decimalToNumeric(member.NetBalance),
		timestamptz(member.DebtSince),
		member.JoinedAt,
		lots,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return domain.ErrAlreadyMember
		case pgErrForeignKeyViolation:
			return domain.ErrGroupNotFound
		}
	}
	if err != nil {
		return fmt.Errorf("postgres: insert member: %w", err)
	}
	return nil
}

// Delete removes a member from a group.
func (r *MemberRepository) Delete(ctx context.Context, tx usecase.Transaction, group, addr common.Address) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM members WHERE group_address = $1 AND address = $2`, group.Bytes(), addr.Bytes())
	if err != nil {
		return fmt.Errorf("postgres: delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotMember
	}
	return nil
}

// Get retrieves a member.
func (r *MemberRepository) Get(ctx context.Context, group, addr common.Address) (*domain.Member, error) {
	return r.get(ctx, r.db, group, addr, "")
}

// GetForUpdate retrieves a member and locks its row.
func (r *MemberRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, group, addr common.Address) (*domain.Member, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, group, addr, " FOR UPDATE")
}

// ListByGroup lists members in join order.
func (r *MemberRepository) ListByGroup(ctx context.Context, group common.Address) ([]*domain.Member, error) {
	return r.list(ctx, r.db, group, "")
}

// ListByGroupForUpdate lists members and locks their rows.
func (r *MemberRepository) ListByGroupForUpdate(ctx context.Context, tx usecase.Transaction, group common.Address) ([]*domain.Member, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, q, group, " FOR UPDATE")
}

// Update stores the bond, net balance and debt lots of a member.
func (r *MemberRepository) Update(ctx context.Context, tx usecase.Transaction, member *domain.Member) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	lots, err := encodeDebtLots(member.DebtLots)
	if err != nil {
		return err
	}

	const query = `UPDATE members SET bond = $3, net_balance = $4, debt_since = $5, debt_lots = $6
		WHERE group_address = $1 AND address = $2`
	tag, err := q.Exec(ctx, query,
		member.GroupAddress.Bytes(),
		member.Address.Bytes(),
		decimalToNumeric(member.Bond),
		decimalToNumeric(member.NetBalance),
		timestamptz(member.DebtSince),
		lots,
	)
	if err != nil {
		return fmt.Errorf("postgres: update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotMember
	}
	return nil
}

func (r *MemberRepository) get(ctx context.Context, q querier, group, addr common.Address, lock string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE group_address = $1 AND address = $2` + lock
	m, err := scanMember(q.QueryRow(ctx, query, group.Bytes(), addr.Bytes()))
	if errors.Is(err, pgx.ErrNoRows) {
		exists, err := groupExists(ctx, q, group)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrGroupNotFound
		}
		return nil, domain.ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get member: %w", err)
	}
	return m, nil
}

func (r *MemberRepository) list(ctx context.Context, q querier, group common.Address, lock string) ([]*domain.Member, error) {
	exists, err := groupExists(ctx, q, group)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrGroupNotFound
	}

	query := `SELECT ` + memberColumns + ` FROM members WHERE group_address = $1 ORDER BY seq` + lock
	rows, err := q.Query(ctx, query, group.Bytes())
	if err != nil {
		return nil, fmt.Errorf("postgres: list members: %w", err)
	}
	defer rows.Close()

	out := []*domain.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	var (
		group, addr      []byte
		bond, netBalance pgtype.Numeric
		debtSince        pgtype.Timestamptz
		lots             []byte
		m                domain.Member
	)
	if err := row.Scan(&group, &addr, &bond, &netBalance, &debtSince, &m.JoinedAt, &lots); err != nil {
		return nil, err
	}
	debtLots, err := decodeDebtLots(lots)
	if err != nil {
		return nil, err
	}
	m.DebtLots = debtLots
	m.GroupAddress = common.BytesToAddress(group)
	m.Address = common.BytesToAddress(addr)
	m.Bond = numericToDecimal(bond)
	m.NetBalance = numericToDecimal(netBalance)
	m.DebtSince = timePtr(debtSince)
	m.JoinedAt = m.JoinedAt.UTC()
	return &m, nil
}

// debtLotRow is the JSON form of a debt lot in members.debt_lots.
type debtLotRow struct {
	Amount decimal.Decimal `json:"amount"`
	Since  time.Time       `json:"since"`
}

func encodeDebtLots(lots []domain.DebtLot) ([]byte, error) {
	rows := make([]debtLotRow, len(lots))
	for i, l := range lots {
		rows[i] = debtLotRow{Amount: l.Amount, Since: l.Since.UTC()}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode debt lots: %w", err)
	}
	return raw, nil
}

func decodeDebtLots(raw []byte) ([]domain.DebtLot, error) {
	var rows []debtLotRow
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("postgres: decode debt lots: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	lots := make([]domain.DebtLot, len(rows))
	for i, r := range rows {
		lots[i] = domain.DebtLot{Amount: r.Amount, Since: r.Since.UTC()}
	}
	return lots, nil
}
