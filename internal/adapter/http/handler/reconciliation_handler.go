package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/usecase"
)

// ReconciliationService defines the behavior needed by ReconciliationHandler.
type ReconciliationService interface {
	ReconcileGroup(ctx context.Context, addr common.Address) (*usecase.ConsistencyReport, error)
	GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// ReconciliationHandler checks accounting invariants across groups.
type ReconciliationHandler struct {
	reconciler ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(reconciler ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{reconciler: reconciler}
}

// Report checks every group. Any discrepancy answers 409.
func (h *ReconciliationHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.GenerateReconciliationReport(r.Context())
	if err != nil {
		writeDomainError(w, "failed to reconcile", err)
		return
	}

	status := http.StatusOK
	if len(report.Discrepancies) > 0 {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ReconciliationFromUseCase(report))
}

// Group checks a single group.
func (h *ReconciliationHandler) Group(w http.ResponseWriter, r *http.Request) {
	addr, ok := urlAddress(w, r, "group")
	if !ok {
		return
	}

	report, err := h.reconciler.ReconcileGroup(r.Context(), addr)
	if err != nil {
		writeDomainError(w, "failed to reconcile group", err)
		return
	}

	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ConsistencyFromUseCase(report))
}
