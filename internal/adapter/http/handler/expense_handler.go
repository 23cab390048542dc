package handler

import (
	"net/http"

	"github.com/iho/bondtab/internal/adapter/http/dto"
)

// ExpenseHandler handles the expense lifecycle of one group.
type ExpenseHandler struct {
	groups GroupOpener
}

// NewExpenseHandler creates a new ExpenseHandler.
func NewExpenseHandler(groups GroupOpener) *ExpenseHandler {
	return &ExpenseHandler{groups: groups}
}

// Propose records an expense paid by the caller.
func (h *ExpenseHandler) Propose(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}

	var req dto.ProposeExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.ToUseCaseInput()
	if err != nil {
		writeBadRequest(w, "invalid expense request", err)
		return
	}

	expense, err := g.Expenses.ProposeExpense(r.Context(), caller, input)
	if err != nil {
		writeDomainError(w, "failed to propose expense", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ExpenseFromDomain(expense))
}

// Finalize closes an unchallenged expense after its challenge window.
// Anyone may call it.
func (h *ExpenseHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	id, ok := urlExpenseID(w, r)
	if !ok {
		return
	}

	expense, err := g.Expenses.FinalizeExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to finalize expense", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ExpenseFromDomain(expense))
}

// Get retrieves an expense by id.
func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	id, ok := urlExpenseID(w, r)
	if !ok {
		return
	}

	expense, err := g.Expenses.Expense(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get expense", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ExpenseFromDomain(expense))
}

// List lists expenses in id order.
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	g, ok := openGroup(w, r, h.groups)
	if !ok {
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	expenses, err := g.Expenses.ListExpenses(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list expenses", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ExpensesFromDomain(expenses))
}
