package usecase

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// ExpenseLifecycle records expense proposals and drives them to a terminal
// status.
type ExpenseLifecycle struct {
	group  *domain.Group
	deps   Dependencies
	book   BalanceBook
	events eventLog
	logger zerolog.Logger
}

// NewExpenseLifecycle creates the expense module of a group.
func NewExpenseLifecycle(group *domain.Group, deps Dependencies, book BalanceBook) *ExpenseLifecycle {
	return &ExpenseLifecycle{
		group:  group,
		deps:   deps,
		book:   book,
		events: deps.events(),
		logger: deps.Logger.With().Str("group", group.Address.Hex()).Str("module", "expense").Logger(),
	}
}

// ProposeExpenseInput represents input for proposing an expense.
type ProposeExpenseInput struct {
	TotalAmount  decimal.Decimal
	Participants []common.Address
	Splits       []decimal.Decimal
	ReceiptHash  common.Hash
	MetadataHash common.Hash
	ExternalRef  string
}

// ProposeExpense records an expense paid by caller. The expense becomes
// final once the challenge window passes without a challenge.
func (uc *ExpenseLifecycle) ProposeExpense(ctx context.Context, caller common.Address, input ProposeExpenseInput) (expense *domain.Expense, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "propose_expense", start, err) }()

	if err := domain.ValidateExternalRef(input.ExternalRef); err != nil {
		return nil, err
	}

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		payer, err := uc.book.RequireMemberTx(ctx, tx, caller)
		if err != nil {
			return err
		}
		if !payer.HasBond(uc.group.Params.MinBond) {
			return domain.ErrNoBond
		}

		now := uc.deps.Clock.Now()
		e := &domain.Expense{
			GroupAddress: uc.group.Address,
			Payer:        caller,
			TotalAmount:  input.TotalAmount,
			Participants: input.Participants,
			Splits:       input.Splits,
			ReceiptHash:  input.ReceiptHash,
			MetadataHash: input.MetadataHash,
			ExternalRef:  input.ExternalRef,
			Status:       domain.ExpenseStatusProposed,
			ProposedAt:   now,
		}

		if err := e.Validate(func(p common.Address) error {
			if p == caller {
				return nil
			}
			_, err := uc.book.RequireMemberTx(ctx, tx, p)
			return err
		}); err != nil {
			return err
		}

		id, err := uc.deps.Expenses.NextID(ctx, tx, uc.group.Address)
		if err != nil {
			return err
		}
		e.ID = id

		if err := uc.deps.Expenses.Create(ctx, tx, e); err != nil {
			return err
		}

		participants := make([]string, len(e.Participants))
		splits := make([]string, len(e.Splits))
		for i := range e.Participants {
			participants[i] = e.Participants[i].Hex()
			splits[i] = e.Splits[i].String()
		}

		if err := uc.appendEvent(ctx, tx, domain.EventTypeExpenseProposed, domain.ExpenseProposedEvent{
			Group:        uc.group.Address.Hex(),
			ExpenseID:    e.ID,
			Payer:        caller.Hex(),
			TotalAmount:  e.TotalAmount.String(),
			Participants: participants,
			Splits:       splits,
			ReceiptHash:  e.ReceiptHash.Hex(),
			MetadataHash: e.MetadataHash.Hex(),
			ExternalRef:  e.ExternalRef,
			EventAt:      domain.FormatEventTime(now),
		}, now); err != nil {
			return err
		}

		expense = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.deps.Recorder != nil {
		uc.deps.Recorder.ObserveAmount("propose_expense", expense.TotalAmount)
	}
	uc.logger.Info().
		Uint64("expense_id", expense.ID).
		Str("payer", caller.Hex()).
		Str("amount", expense.TotalAmount.String()).
		Int("participants", len(expense.Participants)).
		Msg("expense proposed")

	return expense, nil
}

// FinalizeExpense finalizes an unchallenged expense once its challenge
// window has passed and applies its split. Anyone may call it.
func (uc *ExpenseLifecycle) FinalizeExpense(ctx context.Context, id uint64) (expense *domain.Expense, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "finalize_expense", start, err) }()

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		e, err := uc.deps.Expenses.GetForUpdate(ctx, tx, uc.group.Address, id)
		if err != nil {
			return err
		}
		if e.Status != domain.ExpenseStatusProposed {
			return domain.ErrInvalidExpenseStatus
		}

		now := uc.deps.Clock.Now()
		if now.Before(e.ChallengeDeadline(uc.group.Params.ChallengeWindow)) {
			return domain.ErrChallengeWindowActive
		}

		if err := uc.finalizeTx(ctx, tx, e, now); err != nil {
			return err
		}

		expense = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info().Uint64("expense_id", id).Msg("expense finalized")
	return expense, nil
}

// MarkChallengedTx moves a proposed expense to Challenged on behalf of
// challenger. The challenger may not be the payer and the challenge window
// must still be open.
func (uc *ExpenseLifecycle) MarkChallengedTx(ctx context.Context, tx Transaction, id uint64, challenger common.Address) (*domain.Expense, error) {
	e, err := uc.deps.Expenses.GetForUpdate(ctx, tx, uc.group.Address, id)
	if err != nil {
		return nil, err
	}
	if e.Payer == challenger {
		return nil, domain.ErrCannotChallengeOwnExpense
	}
	if e.Status != domain.ExpenseStatusProposed {
		return nil, domain.ErrInvalidExpenseStatus
	}

	now := uc.deps.Clock.Now()
	if !now.Before(e.ChallengeDeadline(uc.group.Params.ChallengeWindow)) {
		return nil, domain.ErrChallengeWindowClosed
	}

	if err := uc.transitionTx(ctx, tx, e, domain.ExpenseStatusChallenged, now); err != nil {
		return nil, err
	}
	return e, nil
}

// UpholdTx finalizes a challenged expense after a dispute kept it.
func (uc *ExpenseLifecycle) UpholdTx(ctx context.Context, tx Transaction, id uint64) (*domain.Expense, error) {
	e, err := uc.challengedTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.finalizeTx(ctx, tx, e, uc.deps.Clock.Now()); err != nil {
		return nil, err
	}
	return e, nil
}

// RejectTx rejects a challenged expense. Net balances are untouched.
func (uc *ExpenseLifecycle) RejectTx(ctx context.Context, tx Transaction, id uint64) (*domain.Expense, error) {
	e, err := uc.challengedTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := uc.deps.Clock.Now()
	if err := uc.transitionTx(ctx, tx, e, domain.ExpenseStatusRejected, now); err != nil {
		return nil, err
	}

	if err := uc.appendEvent(ctx, tx, domain.EventTypeExpenseRejected, domain.ExpenseClosedEvent{
		Group:     uc.group.Address.Hex(),
		ExpenseID: e.ID,
		EventAt:   domain.FormatEventTime(now),
	}, now); err != nil {
		return nil, err
	}
	return e, nil
}

// Expense returns an expense by id.
func (uc *ExpenseLifecycle) Expense(ctx context.Context, id uint64) (*domain.Expense, error) {
	return uc.deps.Expenses.Get(ctx, uc.group.Address, id)
}

// ExpenseParticipants returns the participants and splits of an expense.
func (uc *ExpenseLifecycle) ExpenseParticipants(ctx context.Context, id uint64) ([]common.Address, []decimal.Decimal, error) {
	e, err := uc.Expense(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return e.Participants, e.Splits, nil
}

// ExpenseStatus returns the status of an expense.
func (uc *ExpenseLifecycle) ExpenseStatus(ctx context.Context, id uint64) (domain.ExpenseStatus, error) {
	e, err := uc.Expense(ctx, id)
	if err != nil {
		return 0, err
	}
	return e.Status, nil
}

// ExpenseCount returns how many expenses the group has recorded.
func (uc *ExpenseLifecycle) ExpenseCount(ctx context.Context) (uint64, error) {
	return uc.deps.Expenses.Count(ctx, uc.group.Address)
}

// ListExpenses lists expenses in id order.
func (uc *ExpenseLifecycle) ListExpenses(ctx context.Context, limit, offset int) ([]*domain.Expense, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.deps.Expenses.List(ctx, uc.group.Address, limit, offset)
}

func (uc *ExpenseLifecycle) challengedTx(ctx context.Context, tx Transaction, id uint64) (*domain.Expense, error) {
	e, err := uc.deps.Expenses.GetForUpdate(ctx, tx, uc.group.Address, id)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.ExpenseStatusChallenged {
		return nil, domain.ErrInvalidExpenseStatus
	}
	return e, nil
}

func (uc *ExpenseLifecycle) finalizeTx(ctx context.Context, tx Transaction, e *domain.Expense, now time.Time) error {
	if err := uc.book.ApplyExpenseTx(ctx, tx, e, now); err != nil {
		return err
	}

	finalizedAt := now
	e.FinalizedAt = &finalizedAt
	if err := uc.transitionTx(ctx, tx, e, domain.ExpenseStatusFinalized, now); err != nil {
		return err
	}

	return uc.appendEvent(ctx, tx, domain.EventTypeExpenseFinalized, domain.ExpenseClosedEvent{
		Group:     uc.group.Address.Hex(),
		ExpenseID: e.ID,
		EventAt:   domain.FormatEventTime(now),
	}, now)
}

func (uc *ExpenseLifecycle) transitionTx(ctx context.Context, tx Transaction, e *domain.Expense, to domain.ExpenseStatus, now time.Time) error {
	from := e.Status
	e.Status = to
	if err := uc.deps.Expenses.UpdateStatus(ctx, tx, e); err != nil {
		return err
	}

	uc.logger.Debug().
		Uint64("expense_id", e.ID).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("expense status changed")

	return uc.appendEvent(ctx, tx, domain.EventTypeExpenseStatusChanged, domain.ExpenseStatusChangedEvent{
		Group:     uc.group.Address.Hex(),
		ExpenseID: e.ID,
		From:      from.String(),
		To:        to.String(),
		EventAt:   domain.FormatEventTime(now),
	}, now)
}

func (uc *ExpenseLifecycle) appendEvent(ctx context.Context, tx Transaction, eventType string, payload any, at time.Time) error {
	return uc.events.append(ctx, tx, domain.AggregateTypeGroup, uc.group.Address.Hex(), eventType, payload, at)
}
