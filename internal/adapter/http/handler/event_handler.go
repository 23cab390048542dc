package handler

import (
	"context"
	"net/http"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/replay"
	"github.com/iho/bondtab/internal/usecase"
)

// replayPageSize is the page size used to load live expenses for comparison.
const replayPageSize = 1000

// EventHandler exposes the event log and its replay.
type EventHandler struct {
	outbox usecase.OutboxRepository
	groups GroupOpener
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(outbox usecase.OutboxRepository, groups GroupOpener) *EventHandler {
	return &EventHandler{outbox: outbox, groups: groups}
}

// ListByGroup lists a group's events in append order.
func (h *EventHandler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	addr, ok := urlAddress(w, r, "group")
	if !ok {
		return
	}
	h.list(w, r, domain.AggregateTypeGroup, addr.Hex())
}

// ListByMember lists the reputation events of an address.
func (h *EventHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
	addr, ok := urlAddress(w, r, "address")
	if !ok {
		return
	}
	h.list(w, r, domain.AggregateTypeReputation, addr.Hex())
}

func (h *EventHandler) list(w http.ResponseWriter, r *http.Request, aggregateType, aggregateID string) {
	limit, offset, err := domain.ValidatePagination(parseIntQuery(r, "limit", 100), parseIntQuery(r, "offset", 0))
	if err != nil {
		writeBadRequest(w, "invalid pagination", err)
		return
	}

	events, err := h.outbox.GetByAggregate(r.Context(), aggregateType, aggregateID, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list events", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EventsFromDomain(events))
}

// Replay rebuilds a group from its events and compares the result with the
// live ledger. Any mismatch answers 409.
func (h *EventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	state, err := replay.Rebuild(r.Context(), h.outbox, g.Group.Address)
	if err != nil {
		writeDomainError(w, "failed to replay events", err)
		return
	}

	members, err := g.Ledger.Members(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list members", err)
		return
	}
	expenses, err := allExpenses(r.Context(), g.Expenses)
	if err != nil {
		writeDomainError(w, "failed to list expenses", err)
		return
	}

	resp := dto.ReplayFromState(state, replay.Compare(state, members, expenses))
	status := http.StatusOK
	if !resp.Consistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func allExpenses(ctx context.Context, expenses *usecase.ExpenseLifecycle) ([]*domain.Expense, error) {
	var out []*domain.Expense
	for offset := 0; ; offset += replayPageSize {
		page, err := expenses.ListExpenses(ctx, replayPageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < replayPageSize {
			return out, nil
		}
	}
}
