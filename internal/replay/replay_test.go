package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/adapter/repository/memory"
	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/clock"
	"github.com/iho/bondtab/internal/infrastructure/idgen"
	"github.com/iho/bondtab/internal/replay"
	"github.com/iho/bondtab/internal/usecase"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	factory = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	charlie = common.HexToAddress("0x0000000000000000000000000000000000000c4a")
	dave    = common.HexToAddress("0x0000000000000000000000000000000000000da5")
)

const day = 24 * time.Hour

func units(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

type fixture struct {
	ctx   context.Context
	deps  usecase.Dependencies
	clock *clock.Fake
	group *usecase.GroupHandles
}

// newFixture runs a mixed history: deposits, a finalized expense, a rejected
// one, a membership change, a voluntary and a forced settlement.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	vault := memory.NewVault(store)
	clk := clock.NewFake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	deps := usecase.Dependencies{
		Stores:  memory.NewStores(store),
		Custody: vault,
		Clock:   clk,
		IDGen:   idgen.NewULIDGenerator(),
		Logger:  zerolog.Nop(),
	}
	registry := usecase.NewReputationRegistry(admin, deps)
	require.NoError(t, registry.Bootstrap(ctx, factory))
	f := usecase.NewGroupFactory(factory, deps, registry)
	vaultUC := usecase.NewVaultUseCase(vault, deps, true)

	g, err := f.CreateGroup(ctx, alice, usecase.CreateGroupInput{
		Name:    "cabin",
		Members: []common.Address{bob, charlie},
		Params: domain.GroupParams{
			MinBond:         units(10),
			ChallengeWindow: day,
			VoteWindow:      day,
			SettlementGrace: 2 * day,
			QuorumBps:       5000,
			SlashBps:        1000,
		},
	})
	require.NoError(t, err)

	for _, m := range []common.Address{alice, bob, charlie, dave} {
		require.NoError(t, vaultUC.Mint(ctx, m, units(100_000_000)))
		require.NoError(t, vaultUC.Approve(ctx, m, g.Group.Address, units(100_000_000)))
		require.NoError(t, vaultUC.Approve(ctx, m, g.Group.DisputeModule, units(100_000_000)))
	}
	for _, m := range []common.Address{alice, bob, charlie} {
		_, err := g.Ledger.DepositBond(ctx, m, units(50))
		require.NoError(t, err)
	}

	dinner, err := g.Expenses.ProposeExpense(ctx, alice, usecase.ProposeExpenseInput{
		TotalAmount:  units(30),
		Participants: []common.Address{alice, bob, charlie},
		Splits:       []decimal.Decimal{units(10), units(10), units(10)},
	})
	require.NoError(t, err)
	taxi, err := g.Expenses.ProposeExpense(ctx, bob, usecase.ProposeExpenseInput{
		TotalAmount:  units(12),
		Participants: []common.Address{alice, charlie},
		Splits:       []decimal.Decimal{units(6), units(6)},
	})
	require.NoError(t, err)

	_, err = g.Disputes.ChallengeExpense(ctx, charlie, taxi.ID, domain.ReasonNotIncurred, common.Hash{})
	require.NoError(t, err)
	_, err = g.Disputes.VoteOnDispute(ctx, alice, taxi.ID, false)
	require.NoError(t, err)

	clk.Advance(day)
	_, err = g.Expenses.FinalizeExpense(ctx, dinner.ID)
	require.NoError(t, err)
	_, err = g.Disputes.ResolveDispute(ctx, taxi.ID)
	require.NoError(t, err)

	_, err = g.Ledger.AddMember(ctx, alice, dave)
	require.NoError(t, err)
	require.NoError(t, g.Ledger.RemoveMember(ctx, alice, dave))

	require.NoError(t, g.Ledger.SettleBatch(ctx, charlie,
		[]common.Address{charlie}, []common.Address{alice}, []decimal.Decimal{units(10)}))

	clk.Advance(2*day + time.Second)
	require.NoError(t, g.Ledger.SettleFromBond(ctx, charlie, bob, alice, units(10)))

	_, err = g.Ledger.WithdrawBond(ctx, charlie, units(20))
	require.NoError(t, err)

	return &fixture{ctx: ctx, deps: deps, clock: clk, group: g}
}

func (f *fixture) live(t *testing.T) ([]*domain.Member, []*domain.Expense) {
	t.Helper()
	members, err := f.group.Ledger.Members(f.ctx)
	require.NoError(t, err)
	expenses, err := f.group.Expenses.ListExpenses(f.ctx, 100, 0)
	require.NoError(t, err)
	return members, expenses
}

func TestRebuild_ReproducesLedger(t *testing.T) {
	f := newFixture(t)

	state, err := replay.Rebuild(f.ctx, f.deps.Outbox, f.group.Group.Address)
	require.NoError(t, err)

	assert.Equal(t, "cabin", state.Name)
	assert.Equal(t, alice, state.Admin)
	require.Len(t, state.Members, 3)
	assert.NotContains(t, state.Members, dave)

	assert.True(t, state.Members[alice].NetBalance.IsZero())
	assert.True(t, state.Members[bob].NetBalance.IsZero())
	assert.True(t, state.Members[charlie].NetBalance.IsZero())
	assert.True(t, state.Members[bob].Bond.Equal(units(40)))
	assert.True(t, state.Members[charlie].Bond.Equal(units(30)))

	assert.Equal(t, domain.ExpenseStatusFinalized, state.Expenses[0].Status)
	assert.Equal(t, domain.ExpenseStatusRejected, state.Expenses[1].Status)
	require.Contains(t, state.Disputes, uint64(1))
	assert.True(t, state.Disputes[1].Resolved)
	assert.False(t, state.Disputes[1].Upheld)
}

func TestVerify_NoMismatches(t *testing.T) {
	f := newFixture(t)
	members, expenses := f.live(t)

	mismatches, err := replay.Verify(f.ctx, f.deps.Outbox, f.group.Group.Address, members, expenses)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestCompare_ReportsDrift(t *testing.T) {
	f := newFixture(t)
	members, expenses := f.live(t)

	state, err := replay.Rebuild(f.ctx, f.deps.Outbox, f.group.Group.Address)
	require.NoError(t, err)

	members[0].NetBalance = units(3)
	expenses = expenses[:1]

	mismatches := replay.Compare(state, members, expenses)
	require.Len(t, mismatches, 2)
	assert.Equal(t, "net_balance", mismatches[0].Field)
	assert.Equal(t, "count", mismatches[1].Field)
}

func TestRebuild_UnknownGroup(t *testing.T) {
	f := newFixture(t)

	_, err := replay.Rebuild(f.ctx, f.deps.Outbox, dave)
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestProject_RejectsDivergentBond(t *testing.T) {
	f := newFixture(t)

	events, err := f.deps.Outbox.GetByAggregate(f.ctx, domain.AggregateTypeGroup, f.group.Group.Address.Hex(), 0, 0)
	require.NoError(t, err)

	for _, ev := range events {
		if ev.EventType == domain.EventTypeBondDeposited {
			ev.Payload["bond"] = "999"
			break
		}
	}

	_, err = replay.Project(f.group.Group.Address, events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diverged")
}
