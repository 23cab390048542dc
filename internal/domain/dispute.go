package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// UnitDecimals is the number of decimals of the unit of account. Amounts are
// always carried in the smallest unit.
const UnitDecimals = 6

// ChallengerBondAmount is the fixed amount a challenger escrows: 5.000000.
var ChallengerBondAmount = decimal.NewFromInt(5_000_000)

// ReasonCode classifies why an expense was challenged.
type ReasonCode uint8

const (
	ReasonUnspecified ReasonCode = iota
	ReasonInflated
	ReasonDuplicate
	ReasonNotIncurred
	ReasonWrongSplit
)

var reasonNames = [...]string{"unspecified", "inflated", "duplicate", "not_incurred", "wrong_split"}

func (r ReasonCode) String() string {
	if r.IsValid() {
		return reasonNames[r]
	}
	return "unknown"
}

// IsValid reports whether r is a known reason code.
func (r ReasonCode) IsValid() bool {
	return int(r) < len(reasonNames)
}

// Dispute is the vote opened by a challenge against a proposed expense.
type Dispute struct {
	GroupAddress   common.Address
	ExpenseID      uint64
	Challenger     common.Address
	ReasonCode     ReasonCode
	EvidenceHash   common.Hash
	ChallengedAt   time.Time
	ChallengerBond decimal.Decimal
	VotesFor       int
	VotesAgainst   int
	Votes          map[common.Address]bool
	Resolved       bool
	Upheld         bool
	ResolvedAt     *time.Time
}

// VoteDeadline is the first instant at which the dispute can be resolved.
func (d *Dispute) VoteDeadline(window time.Duration) time.Time {
	return d.ChallengedAt.Add(window)
}

// HasVoted reports whether voter has cast a vote.
func (d *Dispute) HasVoted(voter common.Address) bool {
	_, ok := d.Votes[voter]
	return ok
}

// RecordVote registers one vote per member.
func (d *Dispute) RecordVote(voter common.Address, support bool) error {
	if d.Resolved {
		return ErrDisputeResolved
	}
	if d.HasVoted(voter) {
		return ErrAlreadyVoted
	}
	if d.Votes == nil {
		d.Votes = make(map[common.Address]bool)
	}
	d.Votes[voter] = support
	if support {
		d.VotesFor++
	} else {
		d.VotesAgainst++
	}
	return nil
}

// Outcome reports whether the expense stands. Ties, including no votes at
// all, leave the proposed expense in place.
func (d *Dispute) Outcome() (upheld bool) {
	return d.VotesAgainst <= d.VotesFor
}

// QuorumReached reports whether enough members voted relative to quorumBps.
// It is informational and never gates resolution.
func (d *Dispute) QuorumReached(quorumBps, memberCount int) bool {
	return (d.VotesFor+d.VotesAgainst)*BasisPoints >= quorumBps*memberCount
}

// SlashSplit divides the challenger bond into the slashed share and the refund.
func SlashSplit(bond decimal.Decimal, slashBps int) (slashed, refund decimal.Decimal) {
	slashed = bond.Mul(decimal.NewFromInt(int64(slashBps))).Div(decimal.NewFromInt(BasisPoints)).Floor()
	return slashed, bond.Sub(slashed)
}

// ValidateReasonCode rejects unknown reason codes.
func ValidateReasonCode(r ReasonCode) error {
	if !r.IsValid() {
		return fmt.Errorf("%w: unknown reason code %d", ErrInvalidParams, r)
	}
	return nil
}
