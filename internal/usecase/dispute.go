package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// DisputeResolution runs the challenge, vote and resolve protocol of a group.
// Challenger bonds are escrowed in the custody of the dispute module.
type DisputeResolution struct {
	group      *domain.Group
	deps       Dependencies
	membership Membership
	expenses   ExpenseTransitions
	reporter   ReputationReporter
	custody    ValueTransfer
	events     eventLog
	logger     zerolog.Logger
}

// NewDisputeResolution creates the dispute module of a group.
func NewDisputeResolution(
	group *domain.Group,
	deps Dependencies,
	membership Membership,
	expenses ExpenseTransitions,
	reporter ReputationReporter,
) *DisputeResolution {
	return &DisputeResolution{
		group:      group,
		deps:       deps,
		membership: membership,
		expenses:   expenses,
		reporter:   reporter,
		custody:    deps.Custody.For(group.DisputeModule),
		events:     deps.events(),
		logger:     deps.Logger.With().Str("group", group.Address.Hex()).Str("module", "dispute").Logger(),
	}
}

// ChallengerBondAmount returns the amount a challenger escrows.
func (uc *DisputeResolution) ChallengerBondAmount() decimal.Decimal {
	return domain.ChallengerBondAmount
}

// ChallengeExpense opens a dispute against a proposed expense and escrows the
// challenger bond.
func (uc *DisputeResolution) ChallengeExpense(
	ctx context.Context,
	caller common.Address,
	expenseID uint64,
	reason domain.ReasonCode,
	evidence common.Hash,
) (dispute *domain.Dispute, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "challenge_expense", start, err) }()

	if err := domain.ValidateReasonCode(reason); err != nil {
		return nil, err
	}

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		if _, err := uc.membership.RequireMemberTx(ctx, tx, caller); err != nil {
			return err
		}

		if _, err := uc.expenses.MarkChallengedTx(ctx, tx, expenseID, caller); err != nil {
			return err
		}

		bond := domain.ChallengerBondAmount
		if err := uc.custody.Deposit(ctx, tx, caller, bond); err != nil {
			return fmt.Errorf("escrow challenger bond: %w", err)
		}

		now := uc.deps.Clock.Now()
		d := &domain.Dispute{
			GroupAddress:   uc.group.Address,
			ExpenseID:      expenseID,
			Challenger:     caller,
			ReasonCode:     reason,
			EvidenceHash:   evidence,
			ChallengedAt:   now,
			ChallengerBond: bond,
			Votes:          make(map[common.Address]bool),
		}
		if err := uc.deps.Disputes.Create(ctx, tx, d); err != nil {
			return err
		}

		if err := uc.appendEvent(ctx, tx, domain.EventTypeDisputeOpened, domain.DisputeOpenedEvent{
			Group:        uc.group.Address.Hex(),
			ExpenseID:    expenseID,
			Challenger:   caller.Hex(),
			ReasonCode:   uint8(reason),
			EvidenceHash: evidence.Hex(),
			Bond:         bond.String(),
			EventAt:      domain.FormatEventTime(now),
		}, now); err != nil {
			return err
		}

		dispute = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info().
		Uint64("expense_id", expenseID).
		Str("challenger", caller.Hex()).
		Str("reason", reason.String()).
		Msg("expense challenged")

	return dispute, nil
}

// VoteOnDispute records the caller's vote. support keeps the expense.
func (uc *DisputeResolution) VoteOnDispute(ctx context.Context, caller common.Address, expenseID uint64, support bool) (dispute *domain.Dispute, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "vote_on_dispute", start, err) }()

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		if _, err := uc.membership.RequireMemberTx(ctx, tx, caller); err != nil {
			return err
		}

		d, err := uc.deps.Disputes.GetForUpdate(ctx, tx, uc.group.Address, expenseID)
		if err != nil {
			return err
		}
		if d.Resolved {
			return domain.ErrDisputeResolved
		}

		now := uc.deps.Clock.Now()
		if !now.Before(d.VoteDeadline(uc.group.Params.VoteWindow)) {
			return domain.ErrVoteWindowClosed
		}

		if err := d.RecordVote(caller, support); err != nil {
			return err
		}
		if err := uc.deps.Disputes.RecordVote(ctx, tx, d, caller, support); err != nil {
			return err
		}

		if err := uc.appendEvent(ctx, tx, domain.EventTypeDisputeVoteCast, domain.DisputeVoteCastEvent{
			Group:        uc.group.Address.Hex(),
			ExpenseID:    expenseID,
			Voter:        caller.Hex(),
			Support:      support,
			VotesFor:     d.VotesFor,
			VotesAgainst: d.VotesAgainst,
			EventAt:      domain.FormatEventTime(now),
		}, now); err != nil {
			return err
		}

		dispute = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Debug().
		Uint64("expense_id", expenseID).
		Str("voter", caller.Hex()).
		Bool("support", support).
		Int("votes_for", dispute.VotesFor).
		Int("votes_against", dispute.VotesAgainst).
		Msg("vote cast")

	return dispute, nil
}

// ResolutionResult describes how a dispute was closed.
type ResolutionResult struct {
	Dispute       *domain.Dispute
	Expense       *domain.Expense
	QuorumReached bool
	Slashed       decimal.Decimal
	Refunded      decimal.Decimal
}

// ResolveDispute closes a dispute after its vote window. A majority against
// rejects the expense and refunds the challenger. Otherwise the expense is
// finalized and part of the challenger bond goes to the payer.
func (uc *DisputeResolution) ResolveDispute(ctx context.Context, expenseID uint64) (result *ResolutionResult, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "resolve_dispute", start, err) }()

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		d, err := uc.deps.Disputes.GetForUpdate(ctx, tx, uc.group.Address, expenseID)
		if err != nil {
			return err
		}
		if d.Resolved {
			return domain.ErrDisputeResolved
		}

		now := uc.deps.Clock.Now()
		if now.Before(d.VoteDeadline(uc.group.Params.VoteWindow)) {
			return domain.ErrVoteWindowActive
		}

		memberCount, err := uc.membership.MemberCountTx(ctx, tx)
		if err != nil {
			return err
		}

		res := &ResolutionResult{
			Dispute:       d,
			QuorumReached: d.QuorumReached(uc.group.Params.QuorumBps, memberCount),
			Slashed:       decimal.Zero,
			Refunded:      d.ChallengerBond,
		}

		upheld := d.Outcome()
		if upheld {
			res.Expense, err = uc.expenses.UpholdTx(ctx, tx, expenseID)
			if err != nil {
				return err
			}
			res.Slashed, res.Refunded = domain.SlashSplit(d.ChallengerBond, uc.group.Params.SlashBps)
		} else {
			res.Expense, err = uc.expenses.RejectTx(ctx, tx, expenseID)
			if err != nil {
				return err
			}
		}
		payer := res.Expense.Payer

		if res.Slashed.IsPositive() {
			if err := uc.custody.Withdraw(ctx, tx, payer, res.Slashed); err != nil {
				return fmt.Errorf("pay slashed bond: %w", err)
			}
		}
		if res.Refunded.IsPositive() {
			if err := uc.custody.Withdraw(ctx, tx, d.Challenger, res.Refunded); err != nil {
				return fmt.Errorf("refund challenger bond: %w", err)
			}
		}

		resolvedAt := now
		d.Resolved = true
		d.Upheld = upheld
		d.ResolvedAt = &resolvedAt
		if err := uc.deps.Disputes.Resolve(ctx, tx, d); err != nil {
			return err
		}

		reporter := uc.group.DisputeModule
		if err := uc.reporter.RecordDisputeOutcomeTx(ctx, tx, reporter, d.Challenger, !upheld); err != nil {
			return err
		}
		if err := uc.reporter.RecordDisputeOutcomeTx(ctx, tx, reporter, payer, upheld); err != nil {
			return err
		}

		if err := uc.appendEvent(ctx, tx, domain.EventTypeDisputeResolved, domain.DisputeResolvedEvent{
			Group:         uc.group.Address.Hex(),
			ExpenseID:     expenseID,
			Upheld:        upheld,
			VotesFor:      d.VotesFor,
			VotesAgainst:  d.VotesAgainst,
			QuorumReached: res.QuorumReached,
			Slashed:       res.Slashed.String(),
			Refunded:      res.Refunded.String(),
			EventAt:       domain.FormatEventTime(now),
		}, now); err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info().
		Uint64("expense_id", expenseID).
		Bool("upheld", result.Dispute.Upheld).
		Bool("quorum_reached", result.QuorumReached).
		Str("slashed", result.Slashed.String()).
		Msg("dispute resolved")

	return result, nil
}

// Dispute returns the dispute opened against an expense.
func (uc *DisputeResolution) Dispute(ctx context.Context, expenseID uint64) (*domain.Dispute, error) {
	return uc.deps.Disputes.Get(ctx, uc.group.Address, expenseID)
}

// HasUserVoted reports whether voter voted on the dispute of an expense.
func (uc *DisputeResolution) HasUserVoted(ctx context.Context, expenseID uint64, voter common.Address) (bool, error) {
	d, err := uc.Dispute(ctx, expenseID)
	if err != nil {
		return false, err
	}
	return d.HasVoted(voter), nil
}

// UserVote returns voter's vote and whether it voted at all.
func (uc *DisputeResolution) UserVote(ctx context.Context, expenseID uint64, voter common.Address) (support, voted bool, err error) {
	d, err := uc.Dispute(ctx, expenseID)
	if err != nil {
		return false, false, err
	}
	support, voted = d.Votes[voter]
	return support, voted, nil
}

func (uc *DisputeResolution) appendEvent(ctx context.Context, tx Transaction, eventType string, payload any, at time.Time) error {
	return uc.events.append(ctx, tx, domain.AggregateTypeGroup, uc.group.Address.Hex(), eventType, payload, at)
}
