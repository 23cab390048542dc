package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Member is a group participant with its bond and running net balance.
// A positive NetBalance is owed to the member, a negative one is owed by it.
type Member struct {
	GroupAddress common.Address
	Address      common.Address
	Bond         decimal.Decimal
	NetBalance   decimal.Decimal
	// DebtLots splits the debt by when it was taken on, oldest first. The
	// amounts sum to Debt(). Repayments retire the oldest lots first.
	DebtLots []DebtLot
	// DebtSince is when the oldest open lot was taken on, nil without debt.
	DebtSince *time.Time
	JoinedAt  time.Time
}

// DebtLot is debt taken on at one moment, usually an expense finalization.
// The settlement grace period of a lot runs from Since.
type DebtLot struct {
	Amount decimal.Decimal
	Since  time.Time
}

// HasBond reports whether the member meets the group's minimum bond.
func (m *Member) HasBond(minBond decimal.Decimal) bool {
	return m.Bond.GreaterThanOrEqual(minBond)
}

// Debt returns how much the member owes, or zero.
func (m *Member) Debt() decimal.Decimal {
	if m.NetBalance.IsNegative() {
		return m.NetBalance.Neg()
	}
	return decimal.Zero
}

// Credit returns how much the member is owed, or zero.
func (m *Member) Credit() decimal.Decimal {
	if m.NetBalance.IsPositive() {
		return m.NetBalance
	}
	return decimal.Zero
}

// ValidateWithdraw checks a bond withdrawal.
func (m *Member) ValidateWithdraw(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(m.Bond) {
		return ErrInsufficientBond
	}
	return nil
}

// ApplyNet adds delta to the net balance. New debt opens a lot dated at;
// reduced debt retires lots oldest first.
func (m *Member) ApplyNet(delta decimal.Decimal, at time.Time) {
	lots := m.openLots()
	before := m.Debt()
	m.NetBalance = m.NetBalance.Add(delta)
	after := m.Debt()

	switch {
	case after.IsZero():
		lots = nil
	case after.GreaterThan(before):
		lots = append(lots, DebtLot{Amount: after.Sub(before), Since: at})
	case after.LessThan(before):
		lots = retireLots(lots, before.Sub(after))
	}
	m.setLots(lots)
}

// OverdueAt returns when the oldest part of the member's debt becomes
// overdue.
func (m *Member) OverdueAt(grace time.Duration) (time.Time, bool) {
	if m.DebtSince == nil {
		return time.Time{}, false
	}
	return m.DebtSince.Add(grace), true
}

// OldestDebtSince returns when the oldest open part of the debt was taken
// on, or false without debt.
func (m *Member) OldestDebtSince() (time.Time, bool) {
	lots := m.openLots()
	if len(lots) == 0 {
		return time.Time{}, false
	}
	return lots[0].Since, true
}

// OverdueDebt returns the part of the debt whose grace period ended before
// now.
func (m *Member) OverdueDebt(now time.Time, grace time.Duration) decimal.Decimal {
	overdue := decimal.Zero
	for _, lot := range m.openLots() {
		if !now.After(lot.Since.Add(grace)) {
			break
		}
		overdue = overdue.Add(lot.Amount)
	}
	return overdue
}

// openLots returns the debt lots. A debt stored without lots is treated as
// one lot dated DebtSince.
func (m *Member) openLots() []DebtLot {
	debt := m.Debt()
	if debt.IsZero() {
		return nil
	}
	if len(m.DebtLots) == 0 {
		since := m.JoinedAt
		if m.DebtSince != nil {
			since = *m.DebtSince
		}
		return []DebtLot{{Amount: debt, Since: since}}
	}
	return append([]DebtLot(nil), m.DebtLots...)
}

func (m *Member) setLots(lots []DebtLot) {
	m.DebtLots = lots
	m.DebtSince = nil
	if len(lots) > 0 {
		since := lots[0].Since
		m.DebtSince = &since
	}
}

// retireLots removes amount from lots, oldest first.
func retireLots(lots []DebtLot, amount decimal.Decimal) []DebtLot {
	for len(lots) > 0 && amount.IsPositive() {
		if lots[0].Amount.GreaterThan(amount) {
			lots[0].Amount = lots[0].Amount.Sub(amount)
			break
		}
		amount = amount.Sub(lots[0].Amount)
		lots = lots[1:]
	}
	if len(lots) == 0 {
		return nil
	}
	return lots
}
