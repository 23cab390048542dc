package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// GroupLedger handles membership, bond custody, net balances and settlement
// for one group.
type GroupLedger struct {
	group    *domain.Group
	deps     Dependencies
	custody  ValueTransfer
	reporter ReputationReporter
	events   eventLog
	logger   zerolog.Logger
}

// NewGroupLedger creates the ledger module of a group.
func NewGroupLedger(group *domain.Group, deps Dependencies, reporter ReputationReporter) *GroupLedger {
	return &GroupLedger{
		group:    group,
		deps:     deps,
		custody:  deps.Custody.For(group.Address),
		reporter: reporter,
		events:   deps.events(),
		logger:   deps.Logger.With().Str("group", group.Address.Hex()).Logger(),
	}
}

// Group returns the group this ledger belongs to.
func (uc *GroupLedger) Group() *domain.Group {
	return uc.group
}

// Params returns the group's protocol parameters.
func (uc *GroupLedger) Params() domain.GroupParams {
	return uc.group.Params
}

// AddMember adds addr to the group. Admin only.
func (uc *GroupLedger) AddMember(ctx context.Context, caller, addr common.Address) (member *domain.Member, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "add_member", start, err) }()

	if !uc.group.IsAdmin(caller) {
		return nil, domain.ErrNotAdmin
	}

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		_, err := uc.deps.Members.GetForUpdate(ctx, tx, uc.group.Address, addr)
		switch {
		case err == nil:
			return domain.ErrAlreadyMember
		case !errors.Is(err, domain.ErrNotMember):
			return err
		}

		now := uc.deps.Clock.Now()
		member = &domain.Member{
			GroupAddress: uc.group.Address,
			Address:      addr,
			Bond:         decimal.Zero,
			NetBalance:   decimal.Zero,
			JoinedAt:     now,
		}
		if err := uc.deps.Members.Create(ctx, tx, member); err != nil {
			return err
		}

		return uc.appendEvent(ctx, tx, domain.EventTypeMemberAdded, domain.MembershipEvent{
			Group:   uc.group.Address.Hex(),
			Member:  addr.Hex(),
			EventAt: domain.FormatEventTime(now),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info().Str("member", addr.Hex()).Msg("member added")
	return member, nil
}

// RemoveMember removes addr from the group. The member must have withdrawn
// its bond, carry no net balance and be party to no proposed or challenged
// expense. Admin only.
func (uc *GroupLedger) RemoveMember(ctx context.Context, caller, addr common.Address) (err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "remove_member", start, err) }()

	if !uc.group.IsAdmin(caller) {
		return domain.ErrNotAdmin
	}
	if uc.group.IsAdmin(addr) {
		return domain.ErrCannotRemoveAdmin
	}

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		member, err := uc.deps.Members.GetForUpdate(ctx, tx, uc.group.Address, addr)
		if err != nil {
			return err
		}
		if !member.Bond.IsZero() {
			return domain.ErrBondNotWithdrawn
		}
		if !member.NetBalance.IsZero() {
			return domain.ErrOutstandingBalance
		}
		// an unresolved expense must still be able to book against addr
		pending, err := uc.deps.Expenses.HasUnresolved(ctx, tx, uc.group.Address, addr)
		if err != nil {
			return err
		}
		if pending {
			return domain.ErrPendingExpense
		}

		if err := uc.deps.Members.Delete(ctx, tx, uc.group.Address, addr); err != nil {
			return err
		}

		now := uc.deps.Clock.Now()
		return uc.appendEvent(ctx, tx, domain.EventTypeMemberRemoved, domain.MembershipEvent{
			Group:   uc.group.Address.Hex(),
			Member:  addr.Hex(),
			EventAt: domain.FormatEventTime(now),
		}, now)
	})
	if err != nil {
		return err
	}

	uc.logger.Info().Str("member", addr.Hex()).Msg("member removed")
	return nil
}

// DepositBond pulls amount from the caller's external account into the
// group's custody and credits the caller's bond.
func (uc *GroupLedger) DepositBond(ctx context.Context, caller common.Address, amount decimal.Decimal) (member *domain.Member, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "deposit_bond", start, err) }()

	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		m, err := uc.deps.Members.GetForUpdate(ctx, tx, uc.group.Address, caller)
		if err != nil {
			return err
		}

		if err := uc.custody.Deposit(ctx, tx, caller, amount); err != nil {
			return fmt.Errorf("deposit bond: %w", err)
		}

		m.Bond = m.Bond.Add(amount)
		if err := uc.deps.Members.Update(ctx, tx, m); err != nil {
			return err
		}

		now := uc.deps.Clock.Now()
		if err := uc.appendEvent(ctx, tx, domain.EventTypeBondDeposited, domain.BondChangedEvent{
			Group:   uc.group.Address.Hex(),
			Member:  caller.Hex(),
			Amount:  amount.String(),
			Bond:    m.Bond.String(),
			EventAt: domain.FormatEventTime(now),
		}, now); err != nil {
			return err
		}

		member = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.deps.Recorder != nil {
		uc.deps.Recorder.ObserveAmount("deposit_bond", amount)
	}
	uc.logger.Info().
		Str("member", caller.Hex()).
		Str("amount", amount.String()).
		Str("bond", member.Bond.String()).
		Msg("bond deposited")

	return member, nil
}

// WithdrawBond returns amount of the caller's bond to its external account.
func (uc *GroupLedger) WithdrawBond(ctx context.Context, caller common.Address, amount decimal.Decimal) (member *domain.Member, err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "withdraw_bond", start, err) }()

	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		m, err := uc.deps.Members.GetForUpdate(ctx, tx, uc.group.Address, caller)
		if err != nil {
			return err
		}
		if err := m.ValidateWithdraw(amount); err != nil {
			return err
		}

		if err := uc.custody.Withdraw(ctx, tx, caller, amount); err != nil {
			return fmt.Errorf("withdraw bond: %w", err)
		}

		m.Bond = m.Bond.Sub(amount)
		if err := uc.deps.Members.Update(ctx, tx, m); err != nil {
			return err
		}

		now := uc.deps.Clock.Now()
		if err := uc.appendEvent(ctx, tx, domain.EventTypeBondWithdrawn, domain.BondChangedEvent{
			Group:   uc.group.Address.Hex(),
			Member:  caller.Hex(),
			Amount:  amount.String(),
			Bond:    m.Bond.String(),
			EventAt: domain.FormatEventTime(now),
		}, now); err != nil {
			return err
		}

		member = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info().
		Str("member", caller.Hex()).
		Str("amount", amount.String()).
		Msg("bond withdrawn")

	return member, nil
}

// SettleBatch applies debtor to creditor settlements atomically. Each amount
// moves from the debtor's external account to the creditor's and may not
// exceed the running debt of the debtor or the running credit of the creditor.
// The caller need not be a party.
func (uc *GroupLedger) SettleBatch(
	ctx context.Context,
	caller common.Address,
	debtors, creditors []common.Address,
	amounts []decimal.Decimal,
) (err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "settle_batch", start, err) }()

	if len(debtors) == 0 || len(debtors) != len(creditors) || len(debtors) != len(amounts) {
		return domain.ErrLengthMismatch
	}
	if len(debtors) > MaxBatchSettlements {
		return fmt.Errorf("%w: at most %d settlements per batch", domain.ErrLengthMismatch, MaxBatchSettlements)
	}
	for i := range debtors {
		if debtors[i] == creditors[i] {
			return domain.ErrSameParty
		}
		if err := domain.ValidateAmount(amounts[i]); err != nil {
			return err
		}
	}

	var total decimal.Decimal
	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		total = decimal.Zero
		members, err := lockMembers(ctx, tx, uc.deps.Members, uc.group.Address, append(append([]common.Address{}, debtors...), creditors...))
		if err != nil {
			return err
		}

		now := uc.deps.Clock.Now()
		for i := range debtors {
			debtor, creditor := members[debtors[i]], members[creditors[i]]
			amount := amounts[i]

			if amount.GreaterThan(debtor.Debt()) || amount.GreaterThan(creditor.Credit()) {
				return fmt.Errorf("%w: element %d", domain.ErrSettlementExceedsBalance, i)
			}

			debtSince, _ := debtor.OldestDebtSince()
			onTime := !now.After(debtSince.Add(uc.group.Params.SettlementGrace))
			elapsed := now.Sub(debtSince)

			if err := uc.custody.Transfer(ctx, tx, debtor.Address, creditor.Address, amount); err != nil {
				return fmt.Errorf("settle %s -> %s: %w", debtor.Address.Hex(), creditor.Address.Hex(), err)
			}

			debtor.ApplyNet(amount, now)
			creditor.ApplyNet(amount.Neg(), now)

			if err := uc.reporter.RecordSettlementTx(ctx, tx, uc.group.Address, debtor.Address, amount, onTime, elapsed); err != nil {
				return err
			}

			if err := uc.appendEvent(ctx, tx, domain.EventTypeSettlementExecuted, domain.SettlementEvent{
				Group:    uc.group.Address.Hex(),
				Debtor:   debtor.Address.Hex(),
				Creditor: creditor.Address.Hex(),
				Amount:   amount.String(),
				OnTime:   onTime,
				EventAt:  domain.FormatEventTime(now),
			}, now); err != nil {
				return err
			}
			total = total.Add(amount)
		}

		for _, m := range members {
			if err := uc.deps.Members.Update(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if uc.deps.Recorder != nil {
		uc.deps.Recorder.ObserveAmount("settle_batch", total)
	}
	uc.logger.Info().
		Str("caller", caller.Hex()).
		Int("settlements", len(debtors)).
		Str("total", total.String()).
		Msg("settlement batch executed")

	return nil
}

// SettleFromBond pays overdue debt out of the debtor's bond. Anyone may call
// it. Each part of the debt becomes overdue once the grace period after the
// finalization that created it has elapsed; amount may not exceed the
// overdue part.
func (uc *GroupLedger) SettleFromBond(
	ctx context.Context,
	caller, debtorAddr, creditorAddr common.Address,
	amount decimal.Decimal,
) (err error) {
	start := time.Now()
	defer func() { observe(uc.deps.Recorder, "settle_from_bond", start, err) }()

	if debtorAddr == creditorAddr {
		return domain.ErrSameParty
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}

	err = runInTx(ctx, uc.deps.Stores, func(ctx context.Context, tx Transaction) error {
		members, err := lockMembers(ctx, tx, uc.deps.Members, uc.group.Address, []common.Address{debtorAddr, creditorAddr})
		if err != nil {
			return err
		}
		debtor, creditor := members[debtorAddr], members[creditorAddr]

		now := uc.deps.Clock.Now()
		if amount.GreaterThan(debtor.Debt()) || amount.GreaterThan(creditor.Credit()) {
			return domain.ErrSettlementExceedsBalance
		}
		// only debt past its own grace period may be forced
		if amount.GreaterThan(debtor.OverdueDebt(now, uc.group.Params.SettlementGrace)) {
			return domain.ErrGracePeriodActive
		}
		if amount.GreaterThan(debtor.Bond) {
			return domain.ErrInsufficientBond
		}
		debtSince, _ := debtor.OldestDebtSince()
		elapsed := now.Sub(debtSince)

		if err := uc.custody.Withdraw(ctx, tx, creditor.Address, amount); err != nil {
			return fmt.Errorf("settle from bond: %w", err)
		}

		debtor.Bond = debtor.Bond.Sub(amount)
		debtor.ApplyNet(amount, now)
		creditor.ApplyNet(amount.Neg(), now)

		if err := uc.deps.Members.Update(ctx, tx, debtor); err != nil {
			return err
		}
		if err := uc.deps.Members.Update(ctx, tx, creditor); err != nil {
			return err
		}

		if err := uc.reporter.RecordSettlementTx(ctx, tx, uc.group.Address, debtor.Address, amount, false, elapsed); err != nil {
			return err
		}

		return uc.appendEvent(ctx, tx, domain.EventTypeSettlementForced, domain.SettlementEvent{
			Group:    uc.group.Address.Hex(),
			Debtor:   debtor.Address.Hex(),
			Creditor: creditor.Address.Hex(),
			Amount:   amount.String(),
			OnTime:   false,
			EventAt:  domain.FormatEventTime(now),
		}, now)
	})
	if err != nil {
		return err
	}

	uc.logger.Warn().
		Str("caller", caller.Hex()).
		Str("debtor", debtorAddr.Hex()).
		Str("creditor", creditorAddr.Hex()).
		Str("amount", amount.String()).
		Msg("settlement forced from bond")

	return nil
}

// Member returns a member of the group.
func (uc *GroupLedger) Member(ctx context.Context, addr common.Address) (*domain.Member, error) {
	return uc.deps.Members.Get(ctx, uc.group.Address, addr)
}

// IsMember reports whether addr belongs to the group.
func (uc *GroupLedger) IsMember(ctx context.Context, addr common.Address) (bool, error) {
	_, err := uc.Member(ctx, addr)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotMember):
		return false, nil
	default:
		return false, err
	}
}

// HasBond reports whether addr meets the group's minimum bond.
func (uc *GroupLedger) HasBond(ctx context.Context, addr common.Address) (bool, error) {
	m, err := uc.Member(ctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			return false, nil
		}
		return false, err
	}
	return m.HasBond(uc.group.Params.MinBond), nil
}

// BondBalance returns the bond of addr. Non-members hold zero.
func (uc *GroupLedger) BondBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	m, err := uc.Member(ctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return m.Bond, nil
}

// NetBalance returns the net balance of addr. Non-members hold zero.
func (uc *GroupLedger) NetBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	m, err := uc.Member(ctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return m.NetBalance, nil
}

// Members lists the group's members.
func (uc *GroupLedger) Members(ctx context.Context) ([]*domain.Member, error) {
	return uc.deps.Members.ListByGroup(ctx, uc.group.Address)
}

// MemberCount returns the number of members.
func (uc *GroupLedger) MemberCount(ctx context.Context) (int, error) {
	members, err := uc.Members(ctx)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// ConsistencyReport summarizes the ledger's accounting invariants.
type ConsistencyReport struct {
	Group       common.Address
	NetSum      decimal.Decimal
	BondSum     decimal.Decimal
	Holding     decimal.Decimal
	MemberCount int
	Consistent  bool
}

// CheckConsistency verifies that net balances sum to zero and that custody
// holds exactly the sum of all bonds.
func (uc *GroupLedger) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	members, err := uc.Members(ctx)
	if err != nil {
		return nil, err
	}

	holding, err := uc.custody.Holding(ctx, nil)
	if err != nil {
		return nil, err
	}

	report := &ConsistencyReport{
		Group:       uc.group.Address,
		NetSum:      decimal.Zero,
		BondSum:     decimal.Zero,
		Holding:     holding,
		MemberCount: len(members),
	}
	for _, m := range members {
		report.NetSum = report.NetSum.Add(m.NetBalance)
		report.BondSum = report.BondSum.Add(m.Bond)
	}
	report.Consistent = report.NetSum.IsZero() && report.BondSum.Equal(holding)

	if !report.Consistent {
		uc.logger.Error().
			Str("net_sum", report.NetSum.String()).
			Str("bond_sum", report.BondSum.String()).
			Str("holding", holding.String()).
			Msg("ledger inconsistency detected")
	}

	return report, nil
}

// SuggestSettlements proposes a settlement plan that clears all net balances.
func (uc *GroupLedger) SuggestSettlements(ctx context.Context) ([]SuggestedSettlement, error) {
	members, err := uc.Members(ctx)
	if err != nil {
		return nil, err
	}
	return SuggestSettlements(members), nil
}

// RequireMemberTx locks and returns a member inside tx.
func (uc *GroupLedger) RequireMemberTx(ctx context.Context, tx Transaction, addr common.Address) (*domain.Member, error) {
	return uc.deps.Members.GetForUpdate(ctx, tx, uc.group.Address, addr)
}

// MemberCountTx counts members inside tx.
func (uc *GroupLedger) MemberCountTx(ctx context.Context, tx Transaction) (int, error) {
	members, err := uc.deps.Members.ListByGroupForUpdate(ctx, tx, uc.group.Address)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// ApplyExpenseTx books a finalized expense into the participants' net balances.
func (uc *GroupLedger) ApplyExpenseTx(ctx context.Context, tx Transaction, expense *domain.Expense, at time.Time) error {
	deltas := expense.BalanceDeltas()

	addrs := make([]common.Address, 0, len(deltas))
	for addr := range deltas {
		addrs = append(addrs, addr)
	}

	members, err := lockMembers(ctx, tx, uc.deps.Members, uc.group.Address, addrs)
	if err != nil {
		return fmt.Errorf("apply expense %d: %w", expense.ID, err)
	}

	for addr, delta := range deltas {
		m := members[addr]
		m.ApplyNet(delta, at)
		if err := uc.deps.Members.Update(ctx, tx, m); err != nil {
			return err
		}
	}

	uc.logger.Debug().Uint64("expense_id", expense.ID).Int("members", len(deltas)).Msg("expense applied to balances")
	return nil
}

func (uc *GroupLedger) appendEvent(ctx context.Context, tx Transaction, eventType string, payload any, at time.Time) error {
	return uc.events.append(ctx, tx, domain.AggregateTypeGroup, uc.group.Address.Hex(), eventType, payload, at)
}
