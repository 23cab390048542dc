package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// GroupService defines the behavior needed by GroupHandler.
type GroupService interface {
	GroupOpener
	CreateGroup(ctx context.Context, caller common.Address, input usecase.CreateGroupInput) (*usecase.GroupHandles, error)
	GroupsByMember(ctx context.Context, addr common.Address) ([]*domain.Group, error)
	ListGroups(ctx context.Context, limit, offset int) ([]*domain.Group, error)
}

// GroupHandler handles group provisioning and lookup.
type GroupHandler struct {
	factory GroupService
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(factory GroupService) *GroupHandler {
	return &GroupHandler{factory: factory}
}

// Create provisions a group administered by the caller.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.CreateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.ToUseCaseInput()
	if err != nil {
		writeBadRequest(w, "invalid group request", err)
		return
	}

	g, err := h.factory.CreateGroup(r.Context(), caller, input)
	if err != nil {
		writeDomainError(w, "failed to create group", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.GroupFromDomain(g.Group))
}

// Get retrieves a group by address.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.factory)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.GroupFromDomain(g.Group))
}

// List lists groups in creation order.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	groups, err := h.factory.ListGroups(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list groups", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.GroupsFromDomain(groups))
}

// ListByMember lists the groups an address belongs to.
func (h *GroupHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
	addr, ok := urlAddress(w, r, "address")
	if !ok {
		return
	}

	groups, err := h.factory.GroupsByMember(r.Context(), addr)
	if err != nil {
		writeDomainError(w, "failed to list member groups", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.GroupsFromDomain(groups))
}
