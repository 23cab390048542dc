package usecase_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// Scenario A.
func TestExpenseLifecycle_FinalizeAfterWindow(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()

	e := h.finalizedDinner(g)
	assert.Equal(t, domain.ExpenseStatusFinalized, e.Status)
	require.NotNil(t, e.FinalizedAt)

	requireDecimal(t, 20, h.net(g, alice))
	requireDecimal(t, -10, h.net(g, bob))
	requireDecimal(t, -10, h.net(g, charlie))
	h.requireConsistent(g)

	status, err := g.Expenses.ExpenseStatus(h.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExpenseStatusFinalized, status)

	participants, splits, err := g.Expenses.ExpenseParticipants(h.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{alice, bob, charlie}, participants)
	require.Len(t, splits, 3)
	requireDecimal(t, 10, splits[1])
}

// Scenario B.
func TestExpenseLifecycle_FinalizeBeforeWindow(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()
	e := h.equalSplit(g, alice, 30, alice, bob, charlie)

	_, err := g.Expenses.FinalizeExpense(h.ctx, e.ID)
	require.ErrorIs(t, err, domain.ErrChallengeWindowActive)

	h.clock.Advance(day - time.Second)
	_, err = g.Expenses.FinalizeExpense(h.ctx, e.ID)
	require.ErrorIs(t, err, domain.ErrChallengeWindowActive)

	for _, m := range []common.Address{alice, bob, charlie} {
		assert.True(t, h.net(g, m).IsZero())
	}

	h.clock.Advance(time.Second)
	_, err = g.Expenses.FinalizeExpense(h.ctx, e.ID)
	require.NoError(t, err, "window closes at its deadline")
}

// Scenario D.
func TestExpenseLifecycle_ProposeWithoutBond(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()

	_, err := g.Ledger.AddMember(h.ctx, alice, dave)
	require.NoError(t, err)

	_, err = g.Expenses.ProposeExpense(h.ctx, dave, usecase.ProposeExpenseInput{
		TotalAmount:  units(20),
		Participants: []common.Address{dave, alice},
		Splits:       []decimal.Decimal{units(10), units(10)},
	})
	require.ErrorIs(t, err, domain.ErrNoBond)

	count, err := g.Expenses.ExpenseCount(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpenseLifecycle_ProposeValidation(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()

	tests := []struct {
		name   string
		caller common.Address
		input  usecase.ProposeExpenseInput
		err    error
	}{
		{
			name:   "non-member payer",
			caller: dave,
			input: usecase.ProposeExpenseInput{
				TotalAmount:  units(10),
				Participants: []common.Address{alice},
				Splits:       []decimal.Decimal{units(10)},
			},
			err: domain.ErrNotMember,
		},
		{
			name:   "zero total",
			caller: alice,
			input: usecase.ProposeExpenseInput{
				TotalAmount:  decimal.Zero,
				Participants: []common.Address{alice},
				Splits:       []decimal.Decimal{decimal.Zero},
			},
			err: domain.ErrAmountZero,
		},
		{
			name:   "no participants",
			caller: alice,
			input:  usecase.ProposeExpenseInput{TotalAmount: units(10)},
			err:    domain.ErrLengthMismatch,
		},
		{
			name:   "length mismatch",
			caller: alice,
			input: usecase.ProposeExpenseInput{
				TotalAmount:  units(10),
				Participants: []common.Address{alice, bob},
				Splits:       []decimal.Decimal{units(10)},
			},
			err: domain.ErrLengthMismatch,
		},
		{
			name:   "duplicate participant",
			caller: alice,
			input: usecase.ProposeExpenseInput{
				TotalAmount:  units(10),
				Participants: []common.Address{bob, bob},
				Splits:       []decimal.Decimal{units(5), units(5)},
			},
			err: domain.ErrDuplicateParticipant,
		},
		{
			name:   "participant outside the group",
			caller: alice,
			input: usecase.ProposeExpenseInput{
				TotalAmount:  units(10),
				Participants: []common.Address{bob, dave},
				Splits:       []decimal.Decimal{units(5), units(5)},
			},
			err: domain.ErrNotMember,
		},
		{
			name:   "splits do not sum",
			caller: alice,
			input: usecase.ProposeExpenseInput{
				TotalAmount:  units(10),
				Participants: []common.Address{bob, charlie},
				Splits:       []decimal.Decimal{units(5), units(4)},
			},
			err: domain.ErrSplitSumMismatch,
		},
		{
			name:   "external reference too long",
			caller: alice,
			input: usecase.ProposeExpenseInput{
				TotalAmount:  units(10),
				Participants: []common.Address{bob},
				Splits:       []decimal.Decimal{units(10)},
				ExternalRef:  string(make([]byte, domain.MaxExternalRefLength+1)),
			},
			err: domain.ErrExternalRefTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Expenses.ProposeExpense(h.ctx, tt.caller, tt.input)
			require.ErrorIs(t, err, tt.err)
		})
	}

	count, err := g.Expenses.ExpenseCount(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpenseLifecycle_PayerOutsideSplit(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()

	e := h.equalSplit(g, alice, 20, bob, charlie)
	h.clock.Advance(day)
	_, err := g.Expenses.FinalizeExpense(h.ctx, e.ID)
	require.NoError(t, err)

	requireDecimal(t, 20, h.net(g, alice))
	requireDecimal(t, -10, h.net(g, bob))
	requireDecimal(t, -10, h.net(g, charlie))
}

func TestExpenseLifecycle_TerminalStatesAreFinal(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()
	e := h.finalizedDinner(g)

	_, err := g.Expenses.FinalizeExpense(h.ctx, e.ID)
	require.ErrorIs(t, err, domain.ErrInvalidExpenseStatus)

	_, err = g.Disputes.ChallengeExpense(h.ctx, bob, e.ID, domain.ReasonInflated, common.Hash{})
	require.ErrorIs(t, err, domain.ErrInvalidExpenseStatus)

	requireDecimal(t, 20, h.net(g, alice))
}

func TestExpenseLifecycle_IDsAndListing(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()

	first := h.equalSplit(g, alice, 30, alice, bob, charlie)
	second := h.equalSplit(g, bob, 20, alice, bob)
	assert.Equal(t, uint64(0), first.ID)
	assert.Equal(t, uint64(1), second.ID)

	count, err := g.Expenses.ExpenseCount(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	list, err := g.Expenses.ListExpenses(h.ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, bob, list[1].Payer)

	_, err = g.Expenses.Expense(h.ctx, 7)
	require.ErrorIs(t, err, domain.ErrExpenseNotFound)
}

func TestExpenseLifecycle_EventsFollowTransitions(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()
	h.finalizedDinner(g)

	var types []string
	for _, ev := range h.events(g) {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{
		domain.EventTypeGroupCreated,
		domain.EventTypeBondDeposited,
		domain.EventTypeBondDeposited,
		domain.EventTypeBondDeposited,
		domain.EventTypeExpenseProposed,
		domain.EventTypeExpenseStatusChanged,
		domain.EventTypeExpenseFinalized,
	}, types)

	evs := h.events(g)
	var changed domain.ExpenseStatusChangedEvent
	require.NoError(t, evs[5].DecodePayload(&changed))
	assert.Equal(t, "proposed", changed.From)
	assert.Equal(t, "finalized", changed.To)
}
