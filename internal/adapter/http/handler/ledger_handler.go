package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/domain"
)

// LedgerHandler handles membership, bonds and settlements of one group.
type LedgerHandler struct {
	groups GroupOpener
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(groups GroupOpener) *LedgerHandler {
	return &LedgerHandler{groups: groups}
}

// AddMember adds an address to the group. Admin only.
func (h *LedgerHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	var req dto.MemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, "invalid member address", err)
		return
	}

	member, err := g.Ledger.AddMember(r.Context(), caller, addr)
	if err != nil {
		writeDomainError(w, "failed to add member", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.MemberFromDomain(member))
}

// RemoveMember removes a settled, unbonded member. Admin only.
func (h *LedgerHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	addr, ok := urlAddress(w, r, "address")
	if !ok {
		return
	}

	if err := g.Ledger.RemoveMember(r.Context(), caller, addr); err != nil {
		writeDomainError(w, "failed to remove member", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetMember returns one member's bond and net balance.
func (h *LedgerHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	addr, ok := urlAddress(w, r, "address")
	if !ok {
		return
	}

	member, err := g.Ledger.Member(r.Context(), addr)
	if errors.Is(err, domain.ErrNotMember) {
		writeError(w, http.StatusNotFound, "member not found", domain.ErrorCode(err), err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, "failed to get member", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MemberFromDomain(member))
}

// ListMembers lists members in join order.
func (h *LedgerHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	members, err := g.Ledger.Members(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list members", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MembersFromDomain(members))
}

// DepositBond pulls the caller's funds into its bond.
func (h *LedgerHandler) DepositBond(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	var req dto.AmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	member, err := g.Ledger.DepositBond(r.Context(), caller, req.Amount)
	if err != nil {
		writeDomainError(w, "failed to deposit bond", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MemberFromDomain(member))
}

// WithdrawBond pays part of the caller's bond back out.
func (h *LedgerHandler) WithdrawBond(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	var req dto.AmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	member, err := g.Ledger.WithdrawBond(r.Context(), caller, req.Amount)
	if err != nil {
		writeDomainError(w, "failed to withdraw bond", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MemberFromDomain(member))
}

// SettleBatch records voluntary payments between members.
func (h *LedgerHandler) SettleBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	var req dto.SettleBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	debtors, creditors, amounts, err := req.Columns()
	if err != nil {
		writeBadRequest(w, "invalid settlement batch", err)
		return
	}

	if err := g.Ledger.SettleBatch(r.Context(), caller, debtors, creditors, amounts); err != nil {
		writeDomainError(w, "failed to settle batch", err)
		return
	}

	h.writeMembers(w, r, g.Ledger.Members)
}

// SettleFromBond forces an overdue debtor's bond to pay a creditor.
func (h *LedgerHandler) SettleFromBond(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	var req dto.SettleFromBondRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	debtor, err := domain.ParseAddress(req.Debtor)
	if err != nil {
		writeBadRequest(w, "invalid debtor", err)
		return
	}
	creditor, err := domain.ParseAddress(req.Creditor)
	if err != nil {
		writeBadRequest(w, "invalid creditor", err)
		return
	}

	if err := g.Ledger.SettleFromBond(r.Context(), caller, debtor, creditor, req.Amount); err != nil {
		writeDomainError(w, "failed to settle from bond", err)
		return
	}

	h.writeMembers(w, r, g.Ledger.Members)
}

// SuggestSettlements proposes payments that clear every net balance.
func (h *LedgerHandler) SuggestSettlements(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	plan, err := g.Ledger.SuggestSettlements(r.Context())
	if err != nil {
		writeDomainError(w, "failed to suggest settlements", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuggestionsFromUseCase(plan))
}

// CheckConsistency checks that net balances sum to zero and custody holds
// exactly the bonds.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	report, err := g.Ledger.CheckConsistency(r.Context())
	if err != nil {
		writeDomainError(w, "failed to check consistency", err)
		return
	}

	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ConsistencyFromUseCase(report))
}

// writeMembers answers a settlement with the members' updated balances.
func (h *LedgerHandler) writeMembers(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]*domain.Member, error)) {
	members, err := list(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list members", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MembersFromDomain(members))
}
