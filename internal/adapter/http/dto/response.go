package dto

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/replay"
	"github.com/iho/bondtab/internal/usecase"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// GroupParamsResponse mirrors GroupParamsRequest.
type GroupParamsResponse struct {
	MinBond            decimal.Decimal `json:"min_bond"`
	ChallengeWindowSec int64           `json:"challenge_window_sec"`
	VoteWindowSec      int64           `json:"vote_window_sec"`
	SettlementGraceSec int64           `json:"settlement_grace_sec"`
	QuorumBps          int             `json:"quorum_bps"`
	SlashBps           int             `json:"slash_bps"`
}

// GroupResponse represents a group in API responses.
type GroupResponse struct {
	Address       common.Address      `json:"address"`
	ExpenseModule common.Address      `json:"expense_module"`
	DisputeModule common.Address      `json:"dispute_module"`
	Name          string              `json:"name"`
	Admin         common.Address      `json:"admin"`
	Params        GroupParamsResponse `json:"params"`
	CreatedAt     time.Time           `json:"created_at"`
}

// GroupFromDomain converts a domain group to response.
func GroupFromDomain(g *domain.Group) *GroupResponse {
	return &GroupResponse{
		Address:       g.Address,
		ExpenseModule: g.ExpenseModule,
		DisputeModule: g.DisputeModule,
		Name:          g.Name,
		Admin:         g.Admin,
		Params: GroupParamsResponse{
			MinBond:            g.Params.MinBond,
			ChallengeWindowSec: int64(g.Params.ChallengeWindow / time.Second),
			VoteWindowSec:      int64(g.Params.VoteWindow / time.Second),
			SettlementGraceSec: int64(g.Params.SettlementGrace / time.Second),
			QuorumBps:          g.Params.QuorumBps,
			SlashBps:           g.Params.SlashBps,
		},
		CreatedAt: g.CreatedAt,
	}
}

// GroupsFromDomain converts domain groups to responses.
func GroupsFromDomain(groups []*domain.Group) []*GroupResponse {
	result := make([]*GroupResponse, len(groups))
	for i, g := range groups {
		result[i] = GroupFromDomain(g)
	}
	return result
}

// MemberResponse represents a group member in API responses.
type MemberResponse struct {
	Group      common.Address  `json:"group"`
	Address    common.Address  `json:"address"`
	Bond       decimal.Decimal `json:"bond"`
	NetBalance decimal.Decimal `json:"net_balance"`
	DebtSince  *time.Time      `json:"debt_since,omitempty"`
	DebtLots   []DebtLot       `json:"debt_lots,omitempty"`
	JoinedAt   time.Time       `json:"joined_at"`
}

// DebtLot is one part of a member's debt and when it was taken on.
type DebtLot struct {
	Amount decimal.Decimal `json:"amount"`
	Since  time.Time       `json:"since"`
}

// MemberFromDomain converts a domain member to response.
func MemberFromDomain(m *domain.Member) *MemberResponse {
	resp := &MemberResponse{
		Group:      m.GroupAddress,
		Address:    m.Address,
		Bond:       m.Bond,
		NetBalance: m.NetBalance,
		DebtSince:  m.DebtSince,
		JoinedAt:   m.JoinedAt,
	}
	for _, l := range m.DebtLots {
		resp.DebtLots = append(resp.DebtLots, DebtLot{Amount: l.Amount, Since: l.Since})
	}
	return resp
}

// MembersFromDomain converts domain members to responses.
func MembersFromDomain(members []*domain.Member) []*MemberResponse {
	result := make([]*MemberResponse, len(members))
	for i, m := range members {
		result[i] = MemberFromDomain(m)
	}
	return result
}

// ShareResponse is one participant's share of an expense.
type ShareResponse struct {
	Address common.Address  `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// ExpenseResponse represents an expense in API responses.
type ExpenseResponse struct {
	Group        common.Address  `json:"group"`
	ID           uint64          `json:"id"`
	Payer        common.Address  `json:"payer"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Shares       []ShareResponse `json:"shares"`
	ReceiptHash  common.Hash     `json:"receipt_hash"`
	MetadataHash common.Hash     `json:"metadata_hash"`
	ExternalRef  string          `json:"external_ref,omitempty"`
	Status       string          `json:"status"`
	ProposedAt   time.Time       `json:"proposed_at"`
	FinalizedAt  *time.Time      `json:"finalized_at,omitempty"`
}

// ExpenseFromDomain converts a domain expense to response.
func ExpenseFromDomain(e *domain.Expense) *ExpenseResponse {
	shares := make([]ShareResponse, len(e.Participants))
	for i, p := range e.Participants {
		shares[i] = ShareResponse{Address: p, Amount: e.Splits[i]}
	}
	return &ExpenseResponse{
		Group:        e.GroupAddress,
		ID:           e.ID,
		Payer:        e.Payer,
		TotalAmount:  e.TotalAmount,
		Shares:       shares,
		ReceiptHash:  e.ReceiptHash,
		MetadataHash: e.MetadataHash,
		ExternalRef:  e.ExternalRef,
		Status:       e.Status.String(),
		ProposedAt:   e.ProposedAt,
		FinalizedAt:  e.FinalizedAt,
	}
}

// ExpensesFromDomain converts domain expenses to responses.
func ExpensesFromDomain(expenses []*domain.Expense) []*ExpenseResponse {
	result := make([]*ExpenseResponse, len(expenses))
	for i, e := range expenses {
		result[i] = ExpenseFromDomain(e)
	}
	return result
}

// DisputeResponse represents a dispute in API responses.
type DisputeResponse struct {
	Group          common.Address  `json:"group"`
	ExpenseID      uint64          `json:"expense_id"`
	Challenger     common.Address  `json:"challenger"`
	Reason         string          `json:"reason"`
	EvidenceHash   common.Hash     `json:"evidence_hash"`
	ChallengedAt   time.Time       `json:"challenged_at"`
	ChallengerBond decimal.Decimal `json:"challenger_bond"`
	VotesFor       int             `json:"votes_for"`
	VotesAgainst   int             `json:"votes_against"`
	Resolved       bool            `json:"resolved"`
	Upheld         bool            `json:"upheld"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// DisputeFromDomain converts a domain dispute to response. Individual votes
// are exposed through the vote lookup only.
func DisputeFromDomain(d *domain.Dispute) *DisputeResponse {
	return &DisputeResponse{
		Group:          d.GroupAddress,
		ExpenseID:      d.ExpenseID,
		Challenger:     d.Challenger,
		Reason:         d.ReasonCode.String(),
		EvidenceHash:   d.EvidenceHash,
		ChallengedAt:   d.ChallengedAt,
		ChallengerBond: d.ChallengerBond,
		VotesFor:       d.VotesFor,
		VotesAgainst:   d.VotesAgainst,
		Resolved:       d.Resolved,
		Upheld:         d.Upheld,
		ResolvedAt:     d.ResolvedAt,
	}
}

// ResolutionResponse describes a resolved dispute.
type ResolutionResponse struct {
	Dispute       *DisputeResponse `json:"dispute"`
	Expense       *ExpenseResponse `json:"expense"`
	QuorumReached bool             `json:"quorum_reached"`
	Slashed       decimal.Decimal  `json:"slashed"`
	Refunded      decimal.Decimal  `json:"refunded"`
}

// ResolutionFromUseCase converts a resolution result to response.
func ResolutionFromUseCase(r *usecase.ResolutionResult) *ResolutionResponse {
	return &ResolutionResponse{
		Dispute:       DisputeFromDomain(r.Dispute),
		Expense:       ExpenseFromDomain(r.Expense),
		QuorumReached: r.QuorumReached,
		Slashed:       r.Slashed,
		Refunded:      r.Refunded,
	}
}

// VoteResponse reports one member's vote on a dispute.
type VoteResponse struct {
	ExpenseID uint64         `json:"expense_id"`
	Voter     common.Address `json:"voter"`
	Voted     bool           `json:"voted"`
	Support   bool           `json:"support"`
}

// ReputationResponse represents a reputation record in API responses.
type ReputationResponse struct {
	Member            common.Address  `json:"member"`
	OnTimeSettlements uint64          `json:"on_time_settlements"`
	LateSettlements   uint64          `json:"late_settlements"`
	DisputesWon       uint64          `json:"disputes_won"`
	DisputesLost      uint64          `json:"disputes_lost"`
	VolumeSettled     decimal.Decimal `json:"volume_settled"`
	AvgSettleTimeSec  uint64          `json:"avg_settle_time_sec"`
	ReliabilityScore  int             `json:"reliability_score"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ReputationFromDomain converts a domain reputation to response.
func ReputationFromDomain(r *domain.Reputation) *ReputationResponse {
	return &ReputationResponse{
		Member:            r.Member,
		OnTimeSettlements: r.OnTimeSettlements,
		LateSettlements:   r.LateSettlements,
		DisputesWon:       r.DisputesWon,
		DisputesLost:      r.DisputesLost,
		VolumeSettled:     r.VolumeSettled,
		AvgSettleTimeSec:  r.AvgSettleTimeSec(),
		ReliabilityScore:  r.ReliabilityScore(),
		UpdatedAt:         r.UpdatedAt,
	}
}

// ReputationsFromDomain converts domain reputations to responses.
func ReputationsFromDomain(reps []*domain.Reputation) []*ReputationResponse {
	result := make([]*ReputationResponse, len(reps))
	for i, r := range reps {
		result[i] = ReputationFromDomain(r)
	}
	return result
}

// CapabilitiesResponse lists the capabilities held by an address.
type CapabilitiesResponse struct {
	Address      common.Address `json:"address"`
	Capabilities []string       `json:"capabilities"`
}

// CapabilitiesFromDomain converts a capability set to a sorted response.
func CapabilitiesFromDomain(addr common.Address, set domain.CapabilitySet) *CapabilitiesResponse {
	caps := make([]string, 0, len(set))
	for c, held := range set {
		if held {
			caps = append(caps, string(c))
		}
	}
	sort.Strings(caps)
	return &CapabilitiesResponse{Address: addr, Capabilities: caps}
}

// ConsistencyResponse represents a ledger consistency check.
type ConsistencyResponse struct {
	Group       common.Address  `json:"group"`
	NetSum      decimal.Decimal `json:"net_sum"`
	BondSum     decimal.Decimal `json:"bond_sum"`
	Holding     decimal.Decimal `json:"holding"`
	MemberCount int             `json:"member_count"`
	Consistent  bool            `json:"consistent"`
}

// ConsistencyFromUseCase converts a consistency report to response.
func ConsistencyFromUseCase(r *usecase.ConsistencyReport) *ConsistencyResponse {
	return &ConsistencyResponse{
		Group:       r.Group,
		NetSum:      r.NetSum,
		BondSum:     r.BondSum,
		Holding:     r.Holding,
		MemberCount: r.MemberCount,
		Consistent:  r.Consistent,
	}
}

// ReconciliationResponse summarizes consistency across all groups.
type ReconciliationResponse struct {
	TotalGroups      int                    `json:"total_groups"`
	ConsistentGroups int                    `json:"consistent_groups"`
	Discrepancies    []*ConsistencyResponse `json:"discrepancies"`
	CheckedAt        time.Time              `json:"checked_at"`
}

// ReconciliationFromUseCase converts a reconciliation report to response.
func ReconciliationFromUseCase(r *usecase.ReconciliationReport) *ReconciliationResponse {
	out := &ReconciliationResponse{
		TotalGroups:      r.TotalGroups,
		ConsistentGroups: r.ConsistentGroups,
		Discrepancies:    make([]*ConsistencyResponse, len(r.Discrepancies)),
		CheckedAt:        r.CheckedAt,
	}
	for i, d := range r.Discrepancies {
		out.Discrepancies[i] = ConsistencyFromUseCase(d)
	}
	return out
}

// SuggestionResponse is one payment of a suggested settlement plan.
type SuggestionResponse struct {
	Debtor   common.Address  `json:"debtor"`
	Creditor common.Address  `json:"creditor"`
	Amount   decimal.Decimal `json:"amount"`
}

// SuggestionsFromUseCase converts a settlement plan to response.
func SuggestionsFromUseCase(plan []usecase.SuggestedSettlement) []SuggestionResponse {
	result := make([]SuggestionResponse, len(plan))
	for i, s := range plan {
		result[i] = SuggestionResponse{Debtor: s.Debtor, Creditor: s.Creditor, Amount: s.Amount}
	}
	return result
}

// BalanceResponse reports an external custody balance.
type BalanceResponse struct {
	Address common.Address  `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// AllowanceResponse reports what spender may pull from owner.
type AllowanceResponse struct {
	Owner   common.Address  `json:"owner"`
	Spender common.Address  `json:"spender"`
	Amount  decimal.Decimal `json:"amount"`
}

// EventResponse represents an outbox event in API responses.
type EventResponse struct {
	ID            string         `json:"id"`
	Sequence      int64          `json:"sequence"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
}

// EventsFromDomain converts outbox events to responses.
func EventsFromDomain(events []*domain.OutboxEvent) []*EventResponse {
	result := make([]*EventResponse, len(events))
	for i, e := range events {
		result[i] = &EventResponse{
			ID:            e.ID,
			Sequence:      e.Sequence,
			AggregateType: e.AggregateType,
			AggregateID:   e.AggregateID,
			EventType:     e.EventType,
			Payload:       e.Payload,
			CreatedAt:     e.CreatedAt,
			PublishedAt:   e.PublishedAt,
		}
	}
	return result
}

// MismatchResponse is one difference between live and replayed state.
type MismatchResponse struct {
	Subject string `json:"subject"`
	Field   string `json:"field"`
	Live    string `json:"live"`
	Replay  string `json:"replay"`
}

// ReplayResponse is the state rebuilt from a group's event log, compared
// with the live ledger.
type ReplayResponse struct {
	Group      common.Address     `json:"group"`
	Name       string             `json:"name"`
	Admin      common.Address     `json:"admin"`
	Applied    int                `json:"applied"`
	Members    []*MemberResponse  `json:"members"`
	Expenses   []*ExpenseResponse `json:"expenses"`
	Mismatches []MismatchResponse `json:"mismatches"`
	Consistent bool               `json:"consistent"`
}

// ReplayFromState converts a projection and its comparison to response.
// Members are ordered by address and expenses by id.
func ReplayFromState(state *replay.GroupState, mismatches []replay.Mismatch) *ReplayResponse {
	members := make([]*domain.Member, 0, len(state.Members))
	for _, m := range state.Members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Address.Cmp(members[j].Address) < 0
	})

	expenses := make([]*domain.Expense, 0, len(state.Expenses))
	for _, e := range state.Expenses {
		expenses = append(expenses, e)
	}
	sort.Slice(expenses, func(i, j int) bool { return expenses[i].ID < expenses[j].ID })

	out := &ReplayResponse{
		Group:      state.Address,
		Name:       state.Name,
		Admin:      state.Admin,
		Applied:    state.Applied,
		Members:    MembersFromDomain(members),
		Expenses:   ExpensesFromDomain(expenses),
		Mismatches: make([]MismatchResponse, len(mismatches)),
		Consistent: len(mismatches) == 0,
	}
	for i, m := range mismatches {
		out.Mismatches[i] = MismatchResponse{Subject: m.Subject, Field: m.Field, Live: m.Live, Replay: m.Replay}
	}
	return out
}
