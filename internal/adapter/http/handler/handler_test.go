package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/adapter/http/dto"
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
)

// api serves the handlers over an in-memory backend. The caller of each
// request is taken from the X-Caller-Address header, as the caller middleware
// would set it.
type api struct {
	t       *testing.T
	clock   *clock.Fake
	factory *usecase.GroupFactory
	router  chi.Router
}

func newAPI(t *testing.T) *api {
	t.Helper()

	store := memory.NewStore()
	vault := memory.NewVault(store)
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	deps := usecase.Dependencies{
		Stores:   memory.NewStores(store),
		Custody:  vault,
		Clock:    clk,
		IDGen:    idgen.NewULIDGenerator(),
		Logger:   zerolog.Nop(),
		Recorder: mocks.NewMockRecorder(),
	}
	registry := usecase.NewReputationRegistry(registryAdmin, deps)
	require.NoError(t, registry.Bootstrap(context.Background(), factoryAddr))
	factory := usecase.NewGroupFactory(factoryAddr, deps, registry)

	groups := NewGroupHandler(factory)
	ledger := NewLedgerHandler(factory)
	expenses := NewExpenseHandler(factory)
	disputes := NewDisputeHandler(factory)
	reputation := NewReputationHandler(registry)
	vaultHandler := NewVaultHandler(usecase.NewVaultUseCase(vault, deps, true))
	events := NewEventHandler(deps.Outbox, factory)
	reconciliation := NewReconciliationHandler(usecase.NewReconciliationUseCase(factory, clk))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h := r.Header.Get("X-Caller-Address"); h != "" {
				r = r.WithContext(domain.WithCaller(r.Context(), common.HexToAddress(h)))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/groups", groups.Create)
	r.Get("/groups", groups.List)
	r.Get("/groups/{group}", groups.Get)
	r.Get("/members/{address}/groups", groups.ListByMember)
	r.Post("/groups/{group}/members", ledger.AddMember)
	r.Get("/groups/{group}/members", ledger.ListMembers)
	r.Get("/groups/{group}/members/{address}", ledger.GetMember)
	r.Delete("/groups/{group}/members/{address}", ledger.RemoveMember)
	r.Post("/groups/{group}/bond/deposit", ledger.DepositBond)
	r.Post("/groups/{group}/bond/withdraw", ledger.WithdrawBond)
	r.Post("/groups/{group}/settlements", ledger.SettleBatch)
	r.Post("/groups/{group}/settlements/forced", ledger.SettleFromBond)
	r.Get("/groups/{group}/settlements/suggested", ledger.SuggestSettlements)
	r.Get("/groups/{group}/consistency", ledger.CheckConsistency)
	r.Post("/groups/{group}/expenses", expenses.Propose)
	r.Get("/groups/{group}/expenses", expenses.List)
	r.Get("/groups/{group}/expenses/{id}", expenses.Get)
	r.Post("/groups/{group}/expenses/{id}/finalize", expenses.Finalize)
	r.Post("/groups/{group}/expenses/{id}/dispute", disputes.Challenge)
	r.Get("/groups/{group}/expenses/{id}/dispute", disputes.Get)
	r.Post("/groups/{group}/expenses/{id}/dispute/votes", disputes.Vote)
	r.Get("/groups/{group}/expenses/{id}/dispute/votes/{voter}", disputes.GetVote)
	r.Post("/groups/{group}/expenses/{id}/dispute/resolve", disputes.Resolve)
	r.Get("/groups/{group}/events", events.ListByGroup)
	r.Get("/groups/{group}/replay", events.Replay)
	r.Get("/reputation/{address}", reputation.Get)
	r.Get("/registry/capabilities/{address}", reputation.Capabilities)
	r.Post("/registry/factories", reputation.GrantFactory)
	r.Post("/vault/approve", vaultHandler.Approve)
	r.Post("/vault/mint", vaultHandler.Mint)
	r.Get("/vault/balances/{address}", vaultHandler.Balance)
	r.Get("/vault/allowances/{owner}/{spender}", vaultHandler.Allowance)
	r.Get("/reconciliation", reconciliation.Report)

	return &api{t: t, clock: clk, factory: factory, router: r}
}

func (a *api) do(method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req.Header.Set("X-Caller-Address", caller.Hex())
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) ok(rec *httptest.ResponseRecorder, status int, dst any) {
	a.t.Helper()
	require.Equal(a.t, status, rec.Code, rec.Body.String())
	if dst != nil {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), dst))
	}
}

func (a *api) errCode(rec *httptest.ResponseRecorder, status int, code string) {
	a.t.Helper()
	var resp dto.ErrorResponse
	a.ok(rec, status, &resp)
	assert.Equal(a.t, code, resp.Code, resp.Message)
}

// threeFriends creates a group of Alice, Bob and Charlie, funds each of them
// and has them all bond 50.
func (a *api) threeFriends() *dto.GroupResponse {
	a.t.Helper()
	var g dto.GroupResponse
	a.ok(a.do(http.MethodPost, "/groups", &alice, dto.CreateGroupRequest{
		Name:    "trip",
		Members: []string{alice.Hex(), bob.Hex(), charlie.Hex()},
		Params: dto.GroupParamsRequest{
			MinBond:            decimal.NewFromInt(10),
			ChallengeWindowSec: int64(day / time.Second),
			VoteWindowSec:      int64(day / time.Second),
			SettlementGraceSec: int64(2 * day / time.Second),
			QuorumBps:          5000,
			SlashBps:           1000,
		},
	}), http.StatusCreated, &g)

	for _, m := range []common.Address{alice, bob, charlie} {
		m := m
		a.fund(&g, m)
		a.ok(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/bond/deposit", &m,
			dto.AmountRequest{Amount: decimal.NewFromInt(50)}), http.StatusOK, nil)
	}
	return &g
}

func (a *api) fund(g *dto.GroupResponse, m common.Address) {
	a.t.Helper()
	a.ok(a.do(http.MethodPost, "/vault/mint", nil, dto.MintRequest{To: m.Hex(), Amount: decimal.NewFromInt(100_000_000)}), http.StatusOK, nil)
	for _, spender := range []common.Address{g.Address, g.DisputeModule} {
		a.ok(a.do(http.MethodPost, "/vault/approve", &m, dto.ApproveRequest{
			Spender: spender.Hex(),
			Amount:  decimal.NewFromInt(100_000_000),
		}), http.StatusOK, nil)
	}
}

func (a *api) dinner(g *dto.GroupResponse) *dto.ExpenseResponse {
	a.t.Helper()
	var e dto.ExpenseResponse
	a.ok(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/expenses", &alice, dto.ProposeExpenseRequest{
		TotalAmount:  decimal.NewFromInt(30),
		Participants: []string{alice.Hex(), bob.Hex(), charlie.Hex()},
		Splits:       []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(10), decimal.NewFromInt(10)},
	}), http.StatusCreated, &e)
	return &e
}

// expensePath addresses e, or one of its sub-resources when suffix is set.
func expensePath(g *dto.GroupResponse, e *dto.ExpenseResponse, suffix string) string {
	return "/groups/" + g.Address.Hex() + "/expenses/" + strconv.FormatUint(e.ID, 10) + suffix
}

func (a *api) member(g *dto.GroupResponse, addr common.Address) dto.MemberResponse {
	a.t.Helper()
	var m dto.MemberResponse
	a.ok(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/members/"+addr.Hex(), nil, nil), http.StatusOK, &m)
	return m
}

func requireUnits(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func TestHandlers_ProposeAndFinalize(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()
	e := a.dinner(g)
	assert.Equal(t, "proposed", e.Status)
	assert.Equal(t, uint64(0), e.ID, "expense ids start at zero")
	assert.Len(t, e.Shares, 3)

	path := expensePath(g, e, "/finalize")
	a.errCode(a.do(http.MethodPost, path, nil, nil), http.StatusConflict, "challenge_window_active")

	a.clock.Advance(day + time.Second)
	var finalized dto.ExpenseResponse
	a.ok(a.do(http.MethodPost, path, nil, nil), http.StatusOK, &finalized)
	assert.Equal(t, "finalized", finalized.Status)
	require.NotNil(t, finalized.FinalizedAt)

	requireUnits(t, 20, a.member(g, alice).NetBalance)
	requireUnits(t, -10, a.member(g, bob).NetBalance)
	requireUnits(t, -10, a.member(g, charlie).NetBalance)

	var report dto.ConsistencyResponse
	a.ok(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/consistency", nil, nil), http.StatusOK, &report)
	assert.True(t, report.Consistent)
	requireUnits(t, 150, report.Holding)
}

func TestHandlers_SettleBatchZeroesBalances(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()
	e := a.dinner(g)
	a.clock.Advance(day + time.Second)
	a.ok(a.do(http.MethodPost, expensePath(g, e, "/finalize"), nil, nil), http.StatusOK, nil)

	var plan []dto.SuggestionResponse
	a.ok(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/settlements/suggested", nil, nil), http.StatusOK, &plan)
	require.Len(t, plan, 2)

	var members []dto.MemberResponse
	a.ok(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/settlements", &bob, dto.SettleBatchRequest{
		Settlements: []dto.SettlementItem{
			{Debtor: bob.Hex(), Creditor: alice.Hex(), Amount: decimal.NewFromInt(10)},
			{Debtor: charlie.Hex(), Creditor: alice.Hex(), Amount: decimal.NewFromInt(10)},
		},
	}), http.StatusOK, &members)
	require.Len(t, members, 3)
	for _, m := range members {
		assert.True(t, m.NetBalance.IsZero(), "%s net %s", m.Address.Hex(), m.NetBalance)
	}
}

func TestHandlers_SettleFromBondAfterGrace(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()
	e := a.dinner(g)
	a.clock.Advance(day + time.Second)
	a.ok(a.do(http.MethodPost, expensePath(g, e, "/finalize"), nil, nil), http.StatusOK, nil)

	forced := dto.SettleFromBondRequest{Debtor: bob.Hex(), Creditor: alice.Hex(), Amount: decimal.NewFromInt(10)}
	path := "/groups/" + g.Address.Hex() + "/settlements/forced"
	a.errCode(a.do(http.MethodPost, path, &alice, forced), http.StatusConflict, "grace_period_active")

	a.clock.Advance(2*day + time.Second)
	a.ok(a.do(http.MethodPost, path, &alice, forced), http.StatusOK, nil)
	requireUnits(t, 40, a.member(g, bob).Bond)
	requireUnits(t, 0, a.member(g, bob).NetBalance)
}

func TestHandlers_DisputeRejectsExpense(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()
	e := a.dinner(g)
	base := expensePath(g, e, "/dispute")

	a.errCode(a.do(http.MethodPost, base, &alice, dto.ChallengeRequest{}), http.StatusForbidden, "cannot_challenge_own_expense")

	var d dto.DisputeResponse
	a.ok(a.do(http.MethodPost, base, &bob, dto.ChallengeRequest{Reason: "inflated"}), http.StatusCreated, &d)
	assert.Equal(t, "inflated", d.Reason)

	a.ok(a.do(http.MethodPost, base+"/votes", &bob, dto.VoteRequest{Support: false}), http.StatusOK, nil)
	a.ok(a.do(http.MethodPost, base+"/votes", &charlie, dto.VoteRequest{Support: false}), http.StatusOK, nil)
	a.errCode(a.do(http.MethodPost, base+"/votes", &charlie, dto.VoteRequest{Support: true}), http.StatusConflict, "already_voted")

	var vote dto.VoteResponse
	a.ok(a.do(http.MethodGet, base+"/votes/"+charlie.Hex(), nil, nil), http.StatusOK, &vote)
	assert.True(t, vote.Voted)
	assert.False(t, vote.Support)

	a.errCode(a.do(http.MethodPost, base+"/resolve", nil, nil), http.StatusConflict, "vote_window_active")

	a.clock.Advance(day + time.Second)
	var res dto.ResolutionResponse
	a.ok(a.do(http.MethodPost, base+"/resolve", nil, nil), http.StatusOK, &res)
	assert.Equal(t, "rejected", res.Expense.Status)
	assert.True(t, res.Dispute.Resolved)
	assert.False(t, res.Dispute.Upheld)
	requireUnits(t, 0, a.member(g, alice).NetBalance)
}

func TestHandlers_ProposeWithoutBond(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()

	a.ok(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/members", &alice, dto.MemberRequest{Address: dave.Hex()}), http.StatusCreated, nil)
	a.errCode(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/members", &bob, dto.MemberRequest{Address: bob.Hex()}), http.StatusForbidden, "not_admin")

	a.errCode(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/expenses", &dave, dto.ProposeExpenseRequest{
		TotalAmount:  decimal.NewFromInt(10),
		Participants: []string{dave.Hex()},
		Splits:       []decimal.Decimal{decimal.NewFromInt(10)},
	}), http.StatusUnprocessableEntity, "no_bond")
}

func TestHandlers_Lookups(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()

	a.errCode(a.do(http.MethodGet, "/groups/"+common.HexToAddress("0xdead").Hex(), nil, nil), http.StatusNotFound, "group_not_found")
	a.errCode(a.do(http.MethodGet, "/groups/not-an-address", nil, nil), http.StatusBadRequest, "invalid_address")
	a.errCode(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/members/"+dave.Hex(), nil, nil), http.StatusNotFound, "not_member")
	a.errCode(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/expenses/7", nil, nil), http.StatusNotFound, "expense_not_found")
	a.errCode(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/expenses/x", nil, nil), http.StatusBadRequest, "invalid_request")
	a.errCode(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/bond/deposit", nil, dto.AmountRequest{Amount: decimal.NewFromInt(1)}), http.StatusUnauthorized, "unauthorized")

	var byMember []dto.GroupResponse
	a.ok(a.do(http.MethodGet, "/members/"+bob.Hex()+"/groups", nil, nil), http.StatusOK, &byMember)
	require.Len(t, byMember, 1)
	assert.Equal(t, g.Address, byMember[0].Address)

	var all []dto.GroupResponse
	a.ok(a.do(http.MethodGet, "/groups?limit=5", nil, nil), http.StatusOK, &all)
	assert.Len(t, all, 1)
}

func TestHandlers_RemoveMember(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()
	path := "/groups/" + g.Address.Hex() + "/members/" + charlie.Hex()

	a.errCode(a.do(http.MethodDelete, path, &alice, nil), http.StatusConflict, "bond_not_withdrawn")
	a.ok(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/bond/withdraw", &charlie, dto.AmountRequest{Amount: decimal.NewFromInt(50)}), http.StatusOK, nil)
	a.ok(a.do(http.MethodDelete, path, &alice, nil), http.StatusNoContent, nil)

	var members []dto.MemberResponse
	a.ok(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/members", nil, nil), http.StatusOK, &members)
	assert.Len(t, members, 2)
}

func TestHandlers_RemoveMemberWithPendingExpense(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()
	a.dinner(g)
	path := "/groups/" + g.Address.Hex() + "/members/" + charlie.Hex()

	a.ok(a.do(http.MethodPost, "/groups/"+g.Address.Hex()+"/bond/withdraw", &charlie, dto.AmountRequest{Amount: decimal.NewFromInt(50)}), http.StatusOK, nil)
	a.errCode(a.do(http.MethodDelete, path, &alice, nil), http.StatusConflict, "pending_expense")
}

func TestHandlers_ReplayMatchesLedger(t *testing.T) {
	a := newAPI(t)
	g := a.threeFriends()
	e := a.dinner(g)
	a.clock.Advance(day + time.Second)
	a.ok(a.do(http.MethodPost, expensePath(g, e, "/finalize"), nil, nil), http.StatusOK, nil)

	var rep dto.ReplayResponse
	a.ok(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/replay", nil, nil), http.StatusOK, &rep)
	assert.True(t, rep.Consistent, "%+v", rep.Mismatches)
	assert.Len(t, rep.Members, 3)
	require.Len(t, rep.Expenses, 1)
	assert.Equal(t, "finalized", rep.Expenses[0].Status)

	var events []dto.EventResponse
	a.ok(a.do(http.MethodGet, "/groups/"+g.Address.Hex()+"/events?limit=2", nil, nil), http.StatusOK, &events)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypeGroupCreated, events[0].EventType)
	assert.Less(t, events[0].Sequence, events[1].Sequence)
}

func TestHandlers_RegistryAndVault(t *testing.T) {
	a := newAPI(t)

	var rep dto.ReputationResponse
	a.ok(a.do(http.MethodGet, "/reputation/"+dave.Hex(), nil, nil), http.StatusOK, &rep)
	assert.Equal(t, domain.BasisPoints, rep.ReliabilityScore)

	a.errCode(a.do(http.MethodPost, "/registry/factories", &bob, dto.GrantRequest{Address: dave.Hex()}), http.StatusForbidden, "not_admin")

	admin := registryAdmin
	var caps dto.CapabilitiesResponse
	a.ok(a.do(http.MethodPost, "/registry/factories", &admin, dto.GrantRequest{Address: dave.Hex()}), http.StatusOK, &caps)
	assert.Equal(t, []string{"factory"}, caps.Capabilities)

	var balance dto.BalanceResponse
	a.ok(a.do(http.MethodPost, "/vault/mint", nil, dto.MintRequest{To: bob.Hex(), Amount: decimal.NewFromInt(25)}), http.StatusOK, &balance)
	requireUnits(t, 25, balance.Balance)
	a.errCode(a.do(http.MethodPost, "/vault/mint", nil, dto.MintRequest{To: bob.Hex(), Amount: decimal.Zero}), http.StatusBadRequest, "amount_zero")

	a.ok(a.do(http.MethodPost, "/vault/approve", &bob, dto.ApproveRequest{Spender: alice.Hex(), Amount: decimal.NewFromInt(7)}), http.StatusOK, nil)
	var allowance dto.AllowanceResponse
	a.ok(a.do(http.MethodGet, "/vault/allowances/"+bob.Hex()+"/"+alice.Hex(), nil, nil), http.StatusOK, &allowance)
	requireUnits(t, 7, allowance.Amount)
}

func TestHandlers_ReconciliationReport(t *testing.T) {
	a := newAPI(t)
	a.threeFriends()
	a.threeFriends()

	var report dto.ReconciliationResponse
	a.ok(a.do(http.MethodGet, "/reconciliation", nil, nil), http.StatusOK, &report)
	assert.Equal(t, 2, report.TotalGroups)
	assert.Equal(t, 2, report.ConsistentGroups)
	assert.Empty(t, report.Discrepancies)
}

func TestHandlers_RejectsUnknownFields(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"x","colour":"red"}`))
	req.Header.Set("X-Caller-Address", alice.Hex())
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	a.errCode(rec, http.StatusBadRequest, "invalid_request")
}
