package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// GroupHandles are the three modules of one provisioned group.
type GroupHandles struct {
	Group    *domain.Group
	Ledger   *GroupLedger
	Expenses *ExpenseLifecycle
	Disputes *DisputeResolution
}

// GroupFactory provisions groups and keeps a registry of their modules.
type GroupFactory struct {
	address  common.Address
	deps     Dependencies
	registry *ReputationRegistry
	events   eventLog
	logger   zerolog.Logger

	mu     sync.RWMutex
	groups map[common.Address]*GroupHandles
}

// NewGroupFactory creates a factory deriving module addresses from address.
// The factory address must hold the factory capability in registry.
func NewGroupFactory(address common.Address, deps Dependencies, registry *ReputationRegistry) *GroupFactory {
	return &GroupFactory{
		address:  address,
		deps:     deps,
		registry: registry,
		events:   deps.events(),
		logger:   deps.Logger.With().Str("module", "factory").Logger(),
		groups:   make(map[common.Address]*GroupHandles),
	}
}

// Address returns the factory address.
func (f *GroupFactory) Address() common.Address {
	return f.address
}

// Registry returns the reputation registry the factory reports to.
func (f *GroupFactory) Registry() *ReputationRegistry {
	return f.registry
}

// CreateGroupInput represents input for creating a group.
type CreateGroupInput struct {
	Name    string
	Members []common.Address
	Params  domain.GroupParams
}

// CreateGroup provisions a group administered by caller. The caller is
// always part of the roster.
func (f *GroupFactory) CreateGroup(ctx context.Context, caller common.Address, input CreateGroupInput) (handles *GroupHandles, err error) {
	start := time.Now()
	defer func() { observe(f.deps.Recorder, "create_group", start, err) }()

	if len(input.Members) == 0 {
		return nil, domain.ErrNoMembers
	}
	if err := domain.ValidateGroupName(input.Name); err != nil {
		return nil, err
	}
	if err := input.Params.Validate(); err != nil {
		return nil, err
	}

	roster := buildRoster(caller, input.Members)
	if len(roster) > domain.MaxParticipants {
		return nil, domain.ErrInvalidParams
	}

	var group *domain.Group
	err = runInTx(ctx, f.deps.Stores, func(ctx context.Context, tx Transaction) error {
		var modules [3]common.Address
		for i := range modules {
			nonce, err := f.deps.Nonces.Next(ctx, tx, f.address)
			if err != nil {
				return err
			}
			modules[i] = crypto.CreateAddress(f.address, nonce)
		}

		now := f.deps.Clock.Now()
		group = &domain.Group{
			Address:       modules[0],
			ExpenseModule: modules[1],
			DisputeModule: modules[2],
			Name:          strings.TrimSpace(input.Name),
			Admin:         caller,
			Params:        input.Params,
			CreatedAt:     now,
		}
		if err := f.deps.Groups.Create(ctx, tx, group); err != nil {
			return err
		}

		members := make([]string, len(roster))
		for i, addr := range roster {
			if err := f.deps.Members.Create(ctx, tx, &domain.Member{
				GroupAddress: group.Address,
				Address:      addr,
				Bond:         decimal.Zero,
				NetBalance:   decimal.Zero,
				JoinedAt:     now,
			}); err != nil {
				return err
			}
			members[i] = addr.Hex()
		}

		for _, reporter := range []common.Address{group.Address, group.DisputeModule} {
			if err := f.registry.GrantReporterRoleTx(ctx, tx, f.address, reporter); err != nil {
				return err
			}
		}

		p := group.Params
		return f.events.append(ctx, tx, domain.AggregateTypeGroup, group.Address.Hex(), domain.EventTypeGroupCreated, domain.GroupCreatedEvent{
			Group:              group.Address.Hex(),
			ExpenseModule:      group.ExpenseModule.Hex(),
			DisputeModule:      group.DisputeModule.Hex(),
			Name:               group.Name,
			Admin:              caller.Hex(),
			Members:            members,
			MinBond:            p.MinBond.String(),
			ChallengeWindowSec: int64(p.ChallengeWindow / time.Second),
			VoteWindowSec:      int64(p.VoteWindow / time.Second),
			SettlementGraceSec: int64(p.SettlementGrace / time.Second),
			QuorumBps:          p.QuorumBps,
			SlashBps:           p.SlashBps,
			EventAt:            domain.FormatEventTime(now),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	handles = f.register(group)

	f.logger.Info().
		Str("group", group.Address.Hex()).
		Str("admin", caller.Hex()).
		Str("name", group.Name).
		Int("members", len(roster)).
		Msg("group created")

	return handles, nil
}

// Open returns the modules of a group, rebuilding them from storage when the
// group is not cached.
func (f *GroupFactory) Open(ctx context.Context, addr common.Address) (*GroupHandles, error) {
	f.mu.RLock()
	h, ok := f.groups[addr]
	f.mu.RUnlock()
	if ok {
		return h, nil
	}

	group, err := f.deps.Groups.GetByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	return f.register(group), nil
}

// GroupsByMember lists the groups addr belongs to.
func (f *GroupFactory) GroupsByMember(ctx context.Context, addr common.Address) ([]*domain.Group, error) {
	return f.deps.Groups.ListByMember(ctx, addr)
}

// GroupCount returns the number of provisioned groups.
func (f *GroupFactory) GroupCount(ctx context.Context) (int, error) {
	return f.deps.Groups.Count(ctx)
}

// ListGroups lists provisioned groups.
func (f *GroupFactory) ListGroups(ctx context.Context, limit, offset int) ([]*domain.Group, error) {
	limit, offset, err := domain.ValidatePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	return f.deps.Groups.List(ctx, limit, offset)
}

// IsGroup reports whether addr is a provisioned group.
func (f *GroupFactory) IsGroup(ctx context.Context, addr common.Address) (bool, error) {
	_, err := f.Open(ctx, addr)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrGroupNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (f *GroupFactory) register(group *domain.Group) *GroupHandles {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.groups[group.Address]; ok {
		return h
	}

	ledger := NewGroupLedger(group, f.deps, f.registry)
	expenses := NewExpenseLifecycle(group, f.deps, ledger)
	disputes := NewDisputeResolution(group, f.deps, ledger, expenses, f.registry)

	h := &GroupHandles{
		Group:    group,
		Ledger:   ledger,
		Expenses: expenses,
		Disputes: disputes,
	}
	f.groups[group.Address] = h
	return h
}

// buildRoster returns the distinct members with admin first.
func buildRoster(admin common.Address, members []common.Address) []common.Address {
	roster := []common.Address{admin}
	seen := map[common.Address]bool{admin: true}
	for _, m := range members {
		if !seen[m] {
			seen[m] = true
			roster = append(roster, m)
		}
	}
	return roster
}
