package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMember_HasBond(t *testing.T) {
	tests := []struct {
		name    string
		bond    decimal.Decimal
		minBond decimal.Decimal
		want    bool
	}{
		{name: "no bond", bond: decimal.Zero, minBond: decimal.NewFromInt(10), want: false},
		{name: "below minimum", bond: decimal.NewFromInt(9), minBond: decimal.NewFromInt(10), want: false},
		{name: "exactly minimum", bond: decimal.NewFromInt(10), minBond: decimal.NewFromInt(10), want: true},
		{name: "above minimum", bond: decimal.NewFromInt(50), minBond: decimal.NewFromInt(10), want: true},
		{name: "zero minimum", bond: decimal.Zero, minBond: decimal.Zero, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Member{Bond: tt.bond}
			if got := m.HasBond(tt.minBond); got != tt.want {
				t.Errorf("HasBond() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMember_ValidateWithdraw(t *testing.T) {
	m := &Member{Bond: decimal.NewFromInt(10)}

	if err := m.ValidateWithdraw(decimal.Zero); !errors.Is(err, ErrAmountZero) {
		t.Errorf("expected ErrAmountZero, got %v", err)
	}
	if err := m.ValidateWithdraw(decimal.NewFromInt(20)); !errors.Is(err, ErrInsufficientBond) {
		t.Errorf("expected ErrInsufficientBond, got %v", err)
	}
	if err := m.ValidateWithdraw(decimal.NewFromInt(10)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMember_ApplyNetTracksDebtLots(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Member{}

	m.ApplyNet(decimal.NewFromInt(-10), t0)
	if m.DebtSince == nil || !m.DebtSince.Equal(t0) {
		t.Fatalf("expected debt since %v, got %v", t0, m.DebtSince)
	}

	// Deeper debt opens a second lot and keeps the oldest anchor.
	m.ApplyNet(decimal.NewFromInt(-5), t0.Add(time.Hour))
	if !m.DebtSince.Equal(t0) {
		t.Fatalf("expected anchor to stay at %v, got %v", t0, m.DebtSince)
	}
	if len(m.DebtLots) != 2 || !m.DebtLots[1].Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected two lots, got %+v", m.DebtLots)
	}

	// Repaying the first lot moves the anchor to the second.
	m.ApplyNet(decimal.NewFromInt(10), t0.Add(2*time.Hour))
	if len(m.DebtLots) != 1 || !m.DebtSince.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected remaining lot from %v, got %+v", t0.Add(time.Hour), m.DebtLots)
	}

	m.ApplyNet(decimal.NewFromInt(5), t0.Add(3*time.Hour))
	if m.DebtSince != nil || m.DebtLots != nil {
		t.Fatalf("expected debt cleared, got %v %+v", m.DebtSince, m.DebtLots)
	}
	if !m.NetBalance.IsZero() {
		t.Fatalf("expected zero balance, got %s", m.NetBalance)
	}

	due, ok := m.OverdueAt(time.Hour)
	if ok {
		t.Fatalf("expected no overdue time, got %v", due)
	}
}

func TestMember_ApplyNetFromCredit(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Member{NetBalance: decimal.NewFromInt(4)}

	m.ApplyNet(decimal.NewFromInt(-10), t0)
	if len(m.DebtLots) != 1 || !m.DebtLots[0].Amount.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected one lot of 6, got %+v", m.DebtLots)
	}

	m.ApplyNet(decimal.NewFromInt(8), t0.Add(time.Hour))
	if m.DebtLots != nil || !m.NetBalance.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected credit of 2 and no lots, got %s %+v", m.NetBalance, m.DebtLots)
	}
}

func TestMember_OverdueDebtAgesEachLot(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	grace := 48 * time.Hour
	m := &Member{}
	m.ApplyNet(decimal.NewFromInt(-10), t0)
	m.ApplyNet(decimal.NewFromInt(-20), t0.Add(72*time.Hour))

	tests := []struct {
		at   time.Time
		want int64
	}{
		{t0.Add(grace), 0},
		{t0.Add(grace + time.Second), 10},
		{t0.Add(72*time.Hour + time.Second), 10},
		{t0.Add(72*time.Hour + grace + time.Second), 30},
	}
	for _, tt := range tests {
		if got := m.OverdueDebt(tt.at, grace); !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("OverdueDebt(%v) = %s, want %d", tt.at, got, tt.want)
		}
	}
}

func TestMember_OverdueDebtWithoutLots(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Member{NetBalance: decimal.NewFromInt(-7), DebtSince: &t0}

	if got := m.OverdueDebt(t0.Add(2*time.Hour), time.Hour); !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected whole debt overdue, got %s", got)
	}
	if since, ok := m.OldestDebtSince(); !ok || !since.Equal(t0) {
		t.Fatalf("expected oldest debt at %v, got %v %v", t0, since, ok)
	}

	m.DebtSince = nil
	m.JoinedAt = t0.Add(-time.Hour)
	if since, ok := m.OldestDebtSince(); !ok || !since.Equal(m.JoinedAt) {
		t.Fatalf("expected join time without an anchor, got %v %v", since, ok)
	}
}
