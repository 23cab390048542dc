package usecase

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// ReputationRegistry accumulates reliability statistics per address across
// all groups. Only holders of the factory or reporter capability may record.
type ReputationRegistry struct {
	admin        common.Address
	stores       Stores
	reputations  ReputationRepository
	capabilities CapabilityRepository
	clock        Clock
	recorder     Recorder
	events       eventLog
	logger       zerolog.Logger
}

// NewReputationRegistry creates the process-wide registry administered by admin.
func NewReputationRegistry(admin common.Address, deps Dependencies) *ReputationRegistry {
	return &ReputationRegistry{
		admin:        admin,
		stores:       deps.Stores,
		reputations:  deps.Reputations,
		capabilities: deps.Capabilities,
		clock:        deps.Clock,
		recorder:     deps.Recorder,
		events:       deps.events(),
		logger:       deps.Logger.With().Str("module", "reputation").Logger(),
	}
}

// Admin returns the registry administrator.
func (uc *ReputationRegistry) Admin() common.Address {
	return uc.admin
}

// Bootstrap persists the administrator's capability and grants the factory
// capability to each of factories. Safe to call repeatedly.
func (uc *ReputationRegistry) Bootstrap(ctx context.Context, factories ...common.Address) error {
	return runInTx(ctx, uc.stores, func(ctx context.Context, tx Transaction) error {
		if err := uc.capabilities.Grant(ctx, tx, domain.Grant{
			Address:    uc.admin,
			Capability: domain.CapabilityAdmin,
			GrantedBy:  uc.admin,
		}); err != nil {
			return err
		}
		for _, f := range factories {
			if err := uc.grantTx(ctx, tx, uc.admin, f, domain.CapabilityFactory); err != nil {
				return err
			}
		}
		return nil
	})
}

// GrantFactoryRole lets addr provision groups. Admin only.
func (uc *ReputationRegistry) GrantFactoryRole(ctx context.Context, caller, addr common.Address) error {
	return runInTx(ctx, uc.stores, func(ctx context.Context, tx Transaction) error {
		caps, err := uc.capabilities.GetTx(ctx, tx, caller)
		if err != nil {
			return err
		}
		if caller != uc.admin && !caps.Has(domain.CapabilityAdmin) {
			return domain.ErrNotAdmin
		}
		return uc.grantTx(ctx, tx, caller, addr, domain.CapabilityFactory)
	})
}

// GrantReporterRole lets addr record settlements and dispute outcomes.
// Admin or factory only.
func (uc *ReputationRegistry) GrantReporterRole(ctx context.Context, caller, addr common.Address) error {
	return runInTx(ctx, uc.stores, func(ctx context.Context, tx Transaction) error {
		return uc.GrantReporterRoleTx(ctx, tx, caller, addr)
	})
}

// GrantReporterRoleTx is GrantReporterRole inside an open transaction.
func (uc *ReputationRegistry) GrantReporterRoleTx(ctx context.Context, tx Transaction, caller, addr common.Address) error {
	caps, err := uc.capabilities.GetTx(ctx, tx, caller)
	if err != nil {
		return err
	}
	if caller != uc.admin && !caps.Has(domain.CapabilityAdmin, domain.CapabilityFactory) {
		return domain.ErrMissingRole
	}
	return uc.grantTx(ctx, tx, caller, addr, domain.CapabilityReporter)
}

// Capabilities returns the capabilities held by addr.
func (uc *ReputationRegistry) Capabilities(ctx context.Context, addr common.Address) (domain.CapabilitySet, error) {
	caps, err := uc.capabilities.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if addr == uc.admin {
		caps[domain.CapabilityAdmin] = true
	}
	return caps, nil
}

// RecordSettlement records one settlement by member.
func (uc *ReputationRegistry) RecordSettlement(
	ctx context.Context,
	reporter, member common.Address,
	amount decimal.Decimal,
	onTime bool,
	elapsed time.Duration,
) error {
	return runInTx(ctx, uc.stores, func(ctx context.Context, tx Transaction) error {
		return uc.RecordSettlementTx(ctx, tx, reporter, member, amount, onTime, elapsed)
	})
}

// RecordSettlementTx is RecordSettlement inside an open transaction.
func (uc *ReputationRegistry) RecordSettlementTx(
	ctx context.Context,
	tx Transaction,
	reporter, member common.Address,
	amount decimal.Decimal,
	onTime bool,
	elapsed time.Duration,
) error {
	return uc.updateTx(ctx, tx, reporter, member, "settlement", func(rep *domain.Reputation) {
		rep.RecordSettlement(amount, onTime, elapsed)
	})
}

// RecordDisputeOutcome records one dispute won or lost by member.
func (uc *ReputationRegistry) RecordDisputeOutcome(ctx context.Context, reporter, member common.Address, won bool) error {
	return runInTx(ctx, uc.stores, func(ctx context.Context, tx Transaction) error {
		return uc.RecordDisputeOutcomeTx(ctx, tx, reporter, member, won)
	})
}

// RecordDisputeOutcomeTx is RecordDisputeOutcome inside an open transaction.
func (uc *ReputationRegistry) RecordDisputeOutcomeTx(ctx context.Context, tx Transaction, reporter, member common.Address, won bool) error {
	return uc.updateTx(ctx, tx, reporter, member, "dispute", func(rep *domain.Reputation) {
		rep.RecordDisputeOutcome(won)
	})
}

// Reputation returns member's record. Unknown members get an empty record.
func (uc *ReputationRegistry) Reputation(ctx context.Context, member common.Address) (*domain.Reputation, error) {
	return uc.reputations.Get(ctx, member)
}

// ReliabilityScore returns member's score in basis points.
func (uc *ReputationRegistry) ReliabilityScore(ctx context.Context, member common.Address) (int, error) {
	rep, err := uc.Reputation(ctx, member)
	if err != nil {
		return 0, err
	}
	return rep.ReliabilityScore(), nil
}

// ListReputations lists known records.
func (uc *ReputationRegistry) ListReputations(ctx context.Context, limit, offset int) ([]*domain.Reputation, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return uc.reputations.List(ctx, limit, offset)
}

func (uc *ReputationRegistry) updateTx(
	ctx context.Context,
	tx Transaction,
	reporter, member common.Address,
	action string,
	apply func(*domain.Reputation),
) (err error) {
	start := time.Now()
	defer func() { observe(uc.recorder, "record_"+action, start, err) }()

	caps, err := uc.capabilities.GetTx(ctx, tx, reporter)
	if err != nil {
		return err
	}
	if !caps.Has(domain.CapabilityFactory, domain.CapabilityReporter) {
		return domain.ErrMissingRole
	}

	rep, err := uc.reputations.GetForUpdate(ctx, tx, member)
	if err != nil {
		return err
	}

	now := uc.clock.Now()
	apply(rep)
	rep.UpdatedAt = now

	if err := uc.reputations.Save(ctx, tx, rep); err != nil {
		return err
	}

	if err := uc.events.append(ctx, tx, domain.AggregateTypeReputation, member.Hex(), domain.EventTypeReputationUpdated, domain.ReputationUpdatedEvent{
		Member:            member.Hex(),
		Reporter:          reporter.Hex(),
		Action:            action,
		OnTimeSettlements: rep.OnTimeSettlements,
		LateSettlements:   rep.LateSettlements,
		DisputesWon:       rep.DisputesWon,
		DisputesLost:      rep.DisputesLost,
		VolumeSettled:     rep.VolumeSettled.String(),
		Score:             rep.ReliabilityScore(),
		EventAt:           domain.FormatEventTime(now),
	}, now); err != nil {
		return err
	}

	uc.logger.Debug().
		Str("member", member.Hex()).
		Str("action", action).
		Int("score", rep.ReliabilityScore()).
		Msg("reputation updated")

	return nil
}

func (uc *ReputationRegistry) grantTx(ctx context.Context, tx Transaction, grantedBy, addr common.Address, capability domain.Capability) error {
	if err := uc.capabilities.Grant(ctx, tx, domain.Grant{
		Address:    addr,
		Capability: capability,
		GrantedBy:  grantedBy,
	}); err != nil {
		return err
	}

	uc.logger.Info().
		Str("address", addr.Hex()).
		Str("capability", string(capability)).
		Str("granted_by", grantedBy.Hex()).
		Msg("capability granted")
	return nil
}
