package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	EventTypeGroupCreated         = "group.created"
	EventTypeBondDeposited        = "bond.deposited"
	EventTypeBondWithdrawn        = "bond.withdrawn"
	EventTypeMemberAdded          = "member.added"
	EventTypeMemberRemoved        = "member.removed"
	EventTypeExpenseProposed      = "expense.proposed"
	EventTypeExpenseFinalized     = "expense.finalized"
	EventTypeExpenseRejected      = "expense.rejected"
	EventTypeExpenseStatusChanged = "expense.status_changed"
	EventTypeDisputeOpened        = "dispute.opened"
	EventTypeDisputeVoteCast      = "dispute.vote_cast"
	EventTypeDisputeResolved      = "dispute.resolved"
	EventTypeSettlementExecuted   = "settlement.executed"
	EventTypeSettlementForced     = "settlement.forced"
	EventTypeReputationUpdated    = "reputation.updated"
)

// Aggregate types
const (
	AggregateTypeGroup      = "group"
	AggregateTypeReputation = "reputation"
)

// OutboxEvent represents an event to be published. Events of one aggregate
// are ordered by Sequence, which storage assigns on append.
type OutboxEvent struct {
	ID            string
	Sequence      int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewPayload flattens a typed event payload into the generic outbox form.
func NewPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}

// DecodePayload decodes the event payload into dst.
func (e *OutboxEvent) DecodePayload(dst any) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.EventType, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// GroupCreatedEvent payload
type GroupCreatedEvent struct {
	Group              string   `json:"group"`
	ExpenseModule      string   `json:"expense_module"`
	DisputeModule      string   `json:"dispute_module"`
	Name               string   `json:"name"`
	Admin              string   `json:"admin"`
	Members            []string `json:"members"`
	MinBond            string   `json:"min_bond"`
	ChallengeWindowSec int64    `json:"challenge_window_sec"`
	VoteWindowSec      int64    `json:"vote_window_sec"`
	SettlementGraceSec int64    `json:"settlement_grace_sec"`
	QuorumBps          int      `json:"quorum_bps"`
	SlashBps           int      `json:"slash_bps"`
	EventAt            string   `json:"event_at"`
}

// BondChangedEvent payload for bond deposits and withdrawals. Bond is the
// member's bond after the change.
type BondChangedEvent struct {
	Group   string `json:"group"`
	Member  string `json:"member"`
	Amount  string `json:"amount"`
	Bond    string `json:"bond"`
	EventAt string `json:"event_at"`
}

// MembershipEvent payload for member additions and removals.
type MembershipEvent struct {
	Group   string `json:"group"`
	Member  string `json:"member"`
	EventAt string `json:"event_at"`
}

// ExpenseProposedEvent payload
type ExpenseProposedEvent struct {
	Group        string   `json:"group"`
	ExpenseID    uint64   `json:"expense_id"`
	Payer        string   `json:"payer"`
	TotalAmount  string   `json:"total_amount"`
	Participants []string `json:"participants"`
	Splits       []string `json:"splits"`
	ReceiptHash  string   `json:"receipt_hash"`
	MetadataHash string   `json:"metadata_hash"`
	ExternalRef  string   `json:"external_ref"`
	EventAt      string   `json:"event_at"`
}

// ExpenseClosedEvent payload for finalized and rejected expenses.
type ExpenseClosedEvent struct {
	Group     string `json:"group"`
	ExpenseID uint64 `json:"expense_id"`
	EventAt   string `json:"event_at"`
}

// ExpenseStatusChangedEvent payload
type ExpenseStatusChangedEvent struct {
	Group     string `json:"group"`
	ExpenseID uint64 `json:"expense_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	EventAt   string `json:"event_at"`
}

// DisputeOpenedEvent payload
type DisputeOpenedEvent struct {
	Group        string `json:"group"`
	ExpenseID    uint64 `json:"expense_id"`
	Challenger   string `json:"challenger"`
	ReasonCode   uint8  `json:"reason_code"`
	EvidenceHash string `json:"evidence_hash"`
	Bond         string `json:"bond"`
	EventAt      string `json:"event_at"`
}

// DisputeVoteCastEvent payload. The tallies include this vote.
type DisputeVoteCastEvent struct {
	Group        string `json:"group"`
	ExpenseID    uint64 `json:"expense_id"`
	Voter        string `json:"voter"`
	Support      bool   `json:"support"`
	VotesFor     int    `json:"votes_for"`
	VotesAgainst int    `json:"votes_against"`
	EventAt      string `json:"event_at"`
}

// DisputeResolvedEvent payload. Slashed went to the payer, Refunded back to
// the challenger.
type DisputeResolvedEvent struct {
	Group         string `json:"group"`
	ExpenseID     uint64 `json:"expense_id"`
	Upheld        bool   `json:"upheld"`
	VotesFor      int    `json:"votes_for"`
	VotesAgainst  int    `json:"votes_against"`
	QuorumReached bool   `json:"quorum_reached"`
	Slashed       string `json:"slashed"`
	Refunded      string `json:"refunded"`
	EventAt       string `json:"event_at"`
}

// SettlementEvent payload for batch and bond-backed settlements.
type SettlementEvent struct {
	Group    string `json:"group"`
	Debtor   string `json:"debtor"`
	Creditor string `json:"creditor"`
	Amount   string `json:"amount"`
	OnTime   bool   `json:"on_time"`
	EventAt  string `json:"event_at"`
}

// ReputationUpdatedEvent payload
type ReputationUpdatedEvent struct {
	Member            string `json:"member"`
	Reporter          string `json:"reporter"`
	Action            string `json:"action"`
	OnTimeSettlements uint64 `json:"on_time_settlements"`
	LateSettlements   uint64 `json:"late_settlements"`
	DisputesWon       uint64 `json:"disputes_won"`
	DisputesLost      uint64 `json:"disputes_lost"`
	VolumeSettled     string `json:"volume_settled"`
	Score             int    `json:"score"`
	EventAt           string `json:"event_at"`
}

// FormatEventTime renders an event timestamp.
func FormatEventTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseEventTime parses a timestamp written by FormatEventTime.
func ParseEventTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
