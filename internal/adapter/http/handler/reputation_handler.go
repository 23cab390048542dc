package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/domain"
)

// ReputationService defines the behavior needed by ReputationHandler.
type ReputationService interface {
	Reputation(ctx context.Context, member common.Address) (*domain.Reputation, error)
	ListReputations(ctx context.Context, limit, offset int) ([]*domain.Reputation, error)
	Capabilities(ctx context.Context, addr common.Address) (domain.CapabilitySet, error)
	GrantFactoryRole(ctx context.Context, caller, addr common.Address) error
	GrantReporterRole(ctx context.Context, caller, addr common.Address) error
}

// ReputationHandler exposes the cross-group reputation registry.
type ReputationHandler struct {
	registry ReputationService
}

// NewReputationHandler creates a new ReputationHandler.
func NewReputationHandler(registry ReputationService) *ReputationHandler {
	return &ReputationHandler{registry: registry}
}

// Get returns the reputation of an address. Unknown addresses have an empty
// record with the maximum score.
func (h *ReputationHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := urlAddress(w, r, "address")
	if !ok {
		return
	}

	rep, err := h.registry.Reputation(r.Context(), addr)
	if err != nil {
		writeDomainError(w, "failed to get reputation", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReputationFromDomain(rep))
}

// List lists recorded reputations.
func (h *ReputationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	reps, err := h.registry.ListReputations(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list reputations", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReputationsFromDomain(reps))
}

// Capabilities lists what an address may do in the registry.
func (h *ReputationHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
	addr, ok := urlAddress(w, r, "address")
	if !ok {
		return
	}

	caps, err := h.registry.Capabilities(r.Context(), addr)
	if err != nil {
		writeDomainError(w, "failed to get capabilities", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CapabilitiesFromDomain(addr, caps))
}

// GrantFactory lets an address provision groups. Registry admin only.
func (h *ReputationHandler) GrantFactory(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, h.registry.GrantFactoryRole)
}

// GrantReporter lets an address record outcomes. Factory holders only.
func (h *ReputationHandler) GrantReporter(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, h.registry.GrantReporterRole)
}

func (h *ReputationHandler) grant(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, caller, addr common.Address) error) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.GrantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, "invalid grantee", err)
		return
	}

	if err := fn(r.Context(), caller, addr); err != nil {
		writeDomainError(w, "failed to grant capability", err)
		return
	}

	caps, err := h.registry.Capabilities(r.Context(), addr)
	if err != nil {
		writeDomainError(w, "failed to get capabilities", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CapabilitiesFromDomain(addr, caps))
}
