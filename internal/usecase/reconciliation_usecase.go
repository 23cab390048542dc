package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
)

// ReconciliationUseCase checks the accounting invariants of every group.
type ReconciliationUseCase struct {
	factory *GroupFactory
	clock   Clock
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(factory *GroupFactory, clock Clock) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		factory: factory,
		clock:   clock,
	}
}

// ReconcileGroup checks a single group.
func (uc *ReconciliationUseCase) ReconcileGroup(ctx context.Context, addr common.Address) (*ConsistencyReport, error) {
	h, err := uc.factory.Open(ctx, addr)
	if err != nil {
		return nil, err
	}
	return h.Ledger.CheckConsistency(ctx)
}

// ReconcileAllGroups checks every provisioned group.
func (uc *ReconciliationUseCase) ReconcileAllGroups(ctx context.Context) ([]*ConsistencyReport, error) {
	limit, offset, _ := domain.ValidatePagination(1000, 0)

	var reports []*ConsistencyReport
	for {
		groups, err := uc.factory.ListGroups(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, g := range groups {
			report, err := uc.ReconcileGroup(ctx, g.Address)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile group %s: %w", g.Address.Hex(), err)
			}
			reports = append(reports, report)
		}

		if len(groups) < limit {
			return reports, nil
		}
		offset += limit
	}
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalGroups      int
	ConsistentGroups int
	Discrepancies    []*ConsistencyReport
	CheckedAt        time.Time
}

// GenerateReconciliationReport generates a comprehensive reconciliation report
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllGroups(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		TotalGroups:   len(results),
		Discrepancies: make([]*ConsistencyReport, 0),
		CheckedAt:     uc.clock.Now(),
	}

	for _, result := range results {
		if result.Consistent {
			report.ConsistentGroups++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	return report, nil
}
