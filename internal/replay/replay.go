// Package replay rebuilds a group's ledger state from its event log.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// GroupState is the projection of one group's events.
type GroupState struct {
	Address  common.Address
	Name     string
	Admin    common.Address
	Members  map[common.Address]*domain.Member
	Expenses map[uint64]*domain.Expense
	Disputes map[uint64]*domain.Dispute
	Applied  int
}

func newGroupState(addr common.Address) *GroupState {
	return &GroupState{
		Address:  addr,
		Members:  make(map[common.Address]*domain.Member),
		Expenses: make(map[uint64]*domain.Expense),
		Disputes: make(map[uint64]*domain.Dispute),
	}
}

// Rebuild loads all events of group and projects them.
func Rebuild(ctx context.Context, outbox usecase.OutboxRepository, group common.Address) (*GroupState, error) {
	events, err := outbox.GetByAggregate(ctx, domain.AggregateTypeGroup, group.Hex(), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return nil, domain.ErrGroupNotFound
	}
	return Project(group, events)
}

// Project applies events in order. Bond events carry the resulting bond,
// which is checked against the projection.
func Project(group common.Address, events []*domain.OutboxEvent) (*GroupState, error) {
	s := newGroupState(group)
	for _, ev := range events {
		if err := s.apply(ev); err != nil {
			return nil, fmt.Errorf("event %s (%s): %w", ev.ID, ev.EventType, err)
		}
		s.Applied++
	}
	return s, nil
}

func (s *GroupState) apply(ev *domain.OutboxEvent) error {
	switch ev.EventType {
	case domain.EventTypeGroupCreated:
		var p domain.GroupCreatedEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		at, err := domain.ParseEventTime(p.EventAt)
		if err != nil {
			return err
		}
		s.Name = p.Name
		s.Admin = common.HexToAddress(p.Admin)
		for _, m := range p.Members {
			s.addMember(common.HexToAddress(m), at)
		}

	case domain.EventTypeMemberAdded, domain.EventTypeMemberRemoved:
		var p domain.MembershipEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		at, err := domain.ParseEventTime(p.EventAt)
		if err != nil {
			return err
		}
		addr := common.HexToAddress(p.Member)
		if ev.EventType == domain.EventTypeMemberAdded {
			s.addMember(addr, at)
		} else {
			delete(s.Members, addr)
		}

	case domain.EventTypeBondDeposited, domain.EventTypeBondWithdrawn:
		var p domain.BondChangedEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		m, err := s.member(p.Member)
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return err
		}
		if ev.EventType == domain.EventTypeBondWithdrawn {
			amount = amount.Neg()
		}
		m.Bond = m.Bond.Add(amount)
		if want, err := decimal.NewFromString(p.Bond); err != nil || !want.Equal(m.Bond) {
			return fmt.Errorf("bond of %s diverged: projected %s, recorded %s", p.Member, m.Bond, p.Bond)
		}

	case domain.EventTypeExpenseProposed:
		var p domain.ExpenseProposedEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e, err := expenseFromEvent(s.Address, p)
		if err != nil {
			return err
		}
		s.Expenses[e.ID] = e

	case domain.EventTypeExpenseStatusChanged:
		var p domain.ExpenseStatusChangedEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e, ok := s.Expenses[p.ExpenseID]
		if !ok {
			return domain.ErrExpenseNotFound
		}
		status, err := domain.ParseExpenseStatus(p.To)
		if err != nil {
			return err
		}
		e.Status = status

	case domain.EventTypeExpenseFinalized:
		var p domain.ExpenseClosedEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		at, err := domain.ParseEventTime(p.EventAt)
		if err != nil {
			return err
		}
		e, ok := s.Expenses[p.ExpenseID]
		if !ok {
			return domain.ErrExpenseNotFound
		}
		for addr, delta := range e.BalanceDeltas() {
			m, ok := s.Members[addr]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrNotMember, addr.Hex())
			}
			m.ApplyNet(delta, at)
		}
		e.FinalizedAt = &at

	case domain.EventTypeExpenseRejected:
		// status arrives with expense.status_changed

	case domain.EventTypeDisputeOpened:
		var p domain.DisputeOpenedEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		at, err := domain.ParseEventTime(p.EventAt)
		if err != nil {
			return err
		}
		bond, err := decimal.NewFromString(p.Bond)
		if err != nil {
			return err
		}
		s.Disputes[p.ExpenseID] = &domain.Dispute{
			GroupAddress:   s.Address,
			ExpenseID:      p.ExpenseID,
			Challenger:     common.HexToAddress(p.Challenger),
			ReasonCode:     domain.ReasonCode(p.ReasonCode),
			EvidenceHash:   common.HexToHash(p.EvidenceHash),
			ChallengedAt:   at,
			ChallengerBond: bond,
			Votes:          make(map[common.Address]bool),
		}

	case domain.EventTypeDisputeVoteCast:
		var p domain.DisputeVoteCastEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		d, ok := s.Disputes[p.ExpenseID]
		if !ok {
			return domain.ErrDisputeNotFound
		}
		if err := d.RecordVote(common.HexToAddress(p.Voter), p.Support); err != nil {
			return err
		}

	case domain.EventTypeDisputeResolved:
		var p domain.DisputeResolvedEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		at, err := domain.ParseEventTime(p.EventAt)
		if err != nil {
			return err
		}
		d, ok := s.Disputes[p.ExpenseID]
		if !ok {
			return domain.ErrDisputeNotFound
		}
		d.Resolved = true
		d.Upheld = p.Upheld
		d.ResolvedAt = &at

	case domain.EventTypeSettlementExecuted, domain.EventTypeSettlementForced:
		var p domain.SettlementEvent
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		at, err := domain.ParseEventTime(p.EventAt)
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return err
		}
		debtor, err := s.member(p.Debtor)
		if err != nil {
			return err
		}
		creditor, err := s.member(p.Creditor)
		if err != nil {
			return err
		}
		if ev.EventType == domain.EventTypeSettlementForced {
			debtor.Bond = debtor.Bond.Sub(amount)
		}
		debtor.ApplyNet(amount, at)
		creditor.ApplyNet(amount.Neg(), at)

	default:
		return fmt.Errorf("unknown event type %q", ev.EventType)
	}
	return nil
}

func (s *GroupState) addMember(addr common.Address, at time.Time) {
	s.Members[addr] = &domain.Member{
		GroupAddress: s.Address,
		Address:      addr,
		Bond:         decimal.Zero,
		NetBalance:   decimal.Zero,
		JoinedAt:     at,
	}
}

func (s *GroupState) member(hex string) (*domain.Member, error) {
	m, ok := s.Members[common.HexToAddress(hex)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotMember, hex)
	}
	return m, nil
}

func expenseFromEvent(group common.Address, p domain.ExpenseProposedEvent) (*domain.Expense, error) {
	total, err := decimal.NewFromString(p.TotalAmount)
	if err != nil {
		return nil, err
	}
	at, err := domain.ParseEventTime(p.EventAt)
	if err != nil {
		return nil, err
	}
	if len(p.Participants) != len(p.Splits) {
		return nil, domain.ErrLengthMismatch
	}

	e := &domain.Expense{
		GroupAddress: group,
		ID:           p.ExpenseID,
		Payer:        common.HexToAddress(p.Payer),
		TotalAmount:  total,
		Participants: make([]common.Address, len(p.Participants)),
		Splits:       make([]decimal.Decimal, len(p.Splits)),
		ReceiptHash:  common.HexToHash(p.ReceiptHash),
		MetadataHash: common.HexToHash(p.MetadataHash),
		ExternalRef:  p.ExternalRef,
		Status:       domain.ExpenseStatusProposed,
		ProposedAt:   at,
	}
	for i := range p.Participants {
		e.Participants[i] = common.HexToAddress(p.Participants[i])
		split, err := decimal.NewFromString(p.Splits[i])
		if err != nil {
			return nil, err
		}
		e.Splits[i] = split
	}
	return e, nil
}
