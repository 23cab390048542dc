package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/adapter/repository/memory"
	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/clock"
	"github.com/iho/bondtab/internal/infrastructure/idgen"
	"github.com/iho/bondtab/internal/usecase"
	"github.com/iho/bondtab/internal/usecase/mocks"
)

var (
	registryAdmin = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	factoryAddr   = common.HexToAddress("0x00000000000000000000000000000000000000f0")

	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	charlie = common.HexToAddress("0x0000000000000000000000000000000000000c4a")
	dave    = common.HexToAddress("0x0000000000000000000000000000000000000da5")

	day = 24 * time.Hour

	startTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func units(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func testParams() domain.GroupParams {
	return domain.GroupParams{
		MinBond:         units(10),
		ChallengeWindow: day,
		VoteWindow:      day,
		SettlementGrace: 2 * day,
		QuorumBps:       5000,
		SlashBps:        1000,
	}
}

// harness wires every module against the in-memory backend and a fake clock.
type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	vault    *memory.Vault
	clock    *clock.Fake
	recorder *mocks.MockRecorder
	deps     usecase.Dependencies
	registry *usecase.ReputationRegistry
	factory  *usecase.GroupFactory
	vaultUC  *usecase.VaultUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	vault := memory.NewVault(store)
	clk := clock.NewFake(startTime)
	rec := mocks.NewMockRecorder()

	deps := usecase.Dependencies{
		Stores:   memory.NewStores(store),
		Custody:  vault,
		Clock:    clk,
		IDGen:    idgen.NewULIDGenerator(),
		Logger:   zerolog.Nop(),
		Recorder: rec,
	}

	registry := usecase.NewReputationRegistry(registryAdmin, deps)
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		vault:    vault,
		clock:    clk,
		recorder: rec,
		deps:     deps,
		registry: registry,
		factory:  usecase.NewGroupFactory(factoryAddr, deps, registry),
		vaultUC:  usecase.NewVaultUseCase(vault, deps, true),
	}
	require.NoError(t, registry.Bootstrap(h.ctx, factoryAddr))
	return h
}

// fund mints external units to addr and approves both custodians of g.
func (h *harness) fund(g *usecase.GroupHandles, addrs ...common.Address) {
	h.t.Helper()
	for _, a := range addrs {
		require.NoError(h.t, h.vaultUC.Mint(h.ctx, a, units(100_000_000)))
		require.NoError(h.t, h.vaultUC.Approve(h.ctx, a, g.Group.Address, units(100_000_000)))
		require.NoError(h.t, h.vaultUC.Approve(h.ctx, a, g.Group.DisputeModule, units(100_000_000)))
	}
}

// threeFriends is the common setup: Alice, Bob and Charlie each bonded 50.
func (h *harness) threeFriends() *usecase.GroupHandles {
	h.t.Helper()
	g, err := h.factory.CreateGroup(h.ctx, alice, usecase.CreateGroupInput{
		Name:    "trip",
		Members: []common.Address{alice, bob, charlie},
		Params:  testParams(),
	})
	require.NoError(h.t, err)

	h.fund(g, alice, bob, charlie)
	for _, m := range []common.Address{alice, bob, charlie} {
		_, err := g.Ledger.DepositBond(h.ctx, m, units(50))
		require.NoError(h.t, err)
	}
	return g
}

// equalSplit proposes total paid by payer, split evenly over participants.
func (h *harness) equalSplit(g *usecase.GroupHandles, payer common.Address, total int64, participants ...common.Address) *domain.Expense {
	h.t.Helper()
	share := total / int64(len(participants))
	splits := make([]decimal.Decimal, len(participants))
	for i := range splits {
		splits[i] = units(share)
	}
	e, err := g.Expenses.ProposeExpense(h.ctx, payer, usecase.ProposeExpenseInput{
		TotalAmount:  units(total),
		Participants: participants,
		Splits:       splits,
		ReceiptHash:  common.HexToHash("0x01"),
	})
	require.NoError(h.t, err)
	return e
}

// finalizedDinner runs scenario A and returns the finalized expense.
func (h *harness) finalizedDinner(g *usecase.GroupHandles) *domain.Expense {
	h.t.Helper()
	e := h.equalSplit(g, alice, 30, alice, bob, charlie)
	h.clock.Advance(day + time.Second)
	e, err := g.Expenses.FinalizeExpense(h.ctx, e.ID)
	require.NoError(h.t, err)
	return e
}

func (h *harness) net(g *usecase.GroupHandles, addr common.Address) decimal.Decimal {
	h.t.Helper()
	n, err := g.Ledger.NetBalance(h.ctx, addr)
	require.NoError(h.t, err)
	return n
}

func (h *harness) bond(g *usecase.GroupHandles, addr common.Address) decimal.Decimal {
	h.t.Helper()
	b, err := g.Ledger.BondBalance(h.ctx, addr)
	require.NoError(h.t, err)
	return b
}

func (h *harness) balance(addr common.Address) decimal.Decimal {
	h.t.Helper()
	b, err := h.vaultUC.BalanceOf(h.ctx, addr)
	require.NoError(h.t, err)
	return b
}

func (h *harness) events(g *usecase.GroupHandles) []*domain.OutboxEvent {
	h.t.Helper()
	evs, err := h.deps.Outbox.GetByAggregate(h.ctx, domain.AggregateTypeGroup, g.Group.Address.Hex(), 0, 0)
	require.NoError(h.t, err)
	return evs
}

func (h *harness) requireConsistent(g *usecase.GroupHandles) {
	h.t.Helper()
	report, err := g.Ledger.CheckConsistency(h.ctx)
	require.NoError(h.t, err)
	require.True(h.t, report.Consistent, "net sum %s, bonds %s, holding %s", report.NetSum, report.BondSum, report.Holding)
}

func requireDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(units(want)), "want %d, got %s", want, got)
}
