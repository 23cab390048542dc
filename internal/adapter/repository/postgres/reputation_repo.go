package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

const reputationColumns = `member, on_time_settlements, late_settlements, disputes_won, disputes_lost,
	volume_settled, total_settle_time_sec, settle_count, updated_at`

// ReputationRepository implements usecase.ReputationRepository.
type ReputationRepository struct {
	db DB
}

// NewReputationRepository creates a new ReputationRepository.
func NewReputationRepository(db DB) *ReputationRepository {
	return &ReputationRepository{db: db}
}

// Get returns member's record or an empty one.
func (r *ReputationRepository) Get(ctx context.Context, member common.Address) (*domain.Reputation, error) {
	return r.get(ctx, r.db, member, "")
}

// GetForUpdate returns member's record and locks its row when present.
func (r *ReputationRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, member common.Address) (*domain.Reputation, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, member, " FOR UPDATE")
}

// Save inserts or replaces a record.
func (r *ReputationRepository) Save(ctx context.Context, tx usecase.Transaction, rep *domain.Reputation) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	const query = `INSERT INTO reputations (` + reputationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (member) DO UPDATE SET
			on_time_settlements = EXCLUDED.on_time_settlements,
			late_settlements = EXCLUDED.late_settlements,
			disputes_won = EXCLUDED.disputes_won,
			disputes_lost = EXCLUDED.disputes_lost,
			volume_settled = EXCLUDED.volume_settled,
			total_settle_time_sec = EXCLUDED.total_settle_time_sec,
			settle_count = EXCLUDED.settle_count,
			updated_at = EXCLUDED.updated_at`
	if _, err := q.Exec(ctx, query,
		rep.Member.Bytes(),
		int64(rep.OnTimeSettlements),
		int64(rep.LateSettlements),
		int64(rep.DisputesWon),
		int64(rep.DisputesLost),
		decimalToNumeric(rep.VolumeSettled),
		int64(rep.TotalSettleTimeSec),
		int64(rep.SettleCount),
		rep.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres: save reputation: %w", err)
	}
	return nil
}

// List lists records in first-seen order.
func (r *ReputationRepository) List(ctx context.Context, limit, offset int) ([]*domain.Reputation, error) {
	const query = `SELECT ` + reputationColumns + ` FROM reputations ORDER BY seq LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, pgLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reputations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Reputation
	for rows.Next() {
		rep, err := scanReputation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan reputation: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *ReputationRepository) get(ctx context.Context, q querier, member common.Address, lock string) (*domain.Reputation, error) {
	query := `SELECT ` + reputationColumns + ` FROM reputations WHERE member = $1` + lock
	rep, err := scanReputation(q.QueryRow(ctx, query, member.Bytes()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewReputation(member), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get reputation: %w", err)
	}
	return rep, nil
}

func scanReputation(row pgx.Row) (*domain.Reputation, error) {
	var (
		member                                  []byte
		onTime, late, won, lost, totalSec, cnt int64
		volume                                  pgtype.Numeric
		rep                                     domain.Reputation
	)
	if err := row.Scan(&member, &onTime, &late, &won, &lost, &volume, &totalSec, &cnt, &rep.UpdatedAt); err != nil {
		return nil, err
	}
	rep.Member = common.BytesToAddress(member)
	rep.OnTimeSettlements = uint64(onTime)
	rep.LateSettlements = uint64(late)
	rep.DisputesWon = uint64(won)
	rep.DisputesLost = uint64(lost)
	rep.VolumeSettled = numericToDecimal(volume)
	rep.TotalSettleTimeSec = uint64(totalSec)
	rep.SettleCount = uint64(cnt)
	rep.UpdatedAt = rep.UpdatedAt.UTC()
	return &rep, nil
}
