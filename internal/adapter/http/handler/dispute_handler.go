package handler

import (
	"net/http"

	"github.com/iho/bondtab/internal/adapter/http/dto"
)

// DisputeHandler handles challenges, votes and resolution.
type DisputeHandler struct {
	groups GroupOpener
}

// NewDisputeHandler creates a new DisputeHandler.
func NewDisputeHandler(groups GroupOpener) *DisputeHandler {
	return &DisputeHandler{groups: groups}
}

// Challenge opens a dispute against a proposed expense, escrowing the
// caller's challenger bond.
func (h *DisputeHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	id, ok := urlExpenseID(w, r)
	if !ok {
		return
	}

	var req dto.ChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reason, evidence, err := req.Parse()
	if err != nil {
		writeBadRequest(w, "invalid challenge request", err)
		return
	}

	dispute, err := g.Disputes.ChallengeExpense(r.Context(), caller, id, reason, evidence)
	if err != nil {
		writeDomainError(w, "failed to challenge expense", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.DisputeFromDomain(dispute))
}

// Vote casts the caller's vote on an open dispute.
func (h *DisputeHandler) Vote(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	id, ok := urlExpenseID(w, r)
	if !ok {
		return
	}

	var req dto.VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	dispute, err := g.Disputes.VoteOnDispute(r.Context(), caller, id, req.Support)
	if err != nil {
		writeDomainError(w, "failed to vote on dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DisputeFromDomain(dispute))
}

// Resolve closes a dispute after its vote window. Anyone may call it.
func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	id, ok := urlExpenseID(w, r)
	if !ok {
		return
	}

	result, err := g.Disputes.ResolveDispute(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to resolve dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ResolutionFromUseCase(result))
}

// Get retrieves the dispute of an expense.
func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	id, ok := urlExpenseID(w, r)
	if !ok {
		return
	}

	dispute, err := g.Disputes.Dispute(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DisputeFromDomain(dispute))
}

// GetVote reports whether and how a member voted.
func (h *DisputeHandler) GetVote(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	id, ok := urlExpenseID(w, r)
	if !ok {
		return
	}
	voter, ok := urlAddress(w, r, "voter")
	if !ok {
		return
	}

	support, voted, err := g.Disputes.UserVote(r.Context(), id, voter)
	if err != nil {
		writeDomainError(w, "failed to get vote", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VoteResponse{
		ExpenseID: id,
		Voter:     voter,
		Voted:     voted,
		Support:   support,
	})
}
