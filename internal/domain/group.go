package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BasisPoints is the denominator for fractional parameters and scores.
const BasisPoints = 10000

// GroupParams holds the per-group protocol configuration.
type GroupParams struct {
	MinBond         decimal.Decimal
	ChallengeWindow time.Duration
	VoteWindow      time.Duration
	SettlementGrace time.Duration
	QuorumBps       int
	SlashBps        int
}

// Validate checks parameter ranges.
func (p GroupParams) Validate() error {
	if p.MinBond.IsNegative() || !p.MinBond.IsInteger() {
		return fmt.Errorf("%w: min bond must be a non-negative whole amount", ErrInvalidParams)
	}
	if p.ChallengeWindow <= 0 || p.VoteWindow <= 0 {
		return fmt.Errorf("%w: challenge and vote windows must be positive", ErrInvalidParams)
	}
	if p.SettlementGrace < 0 {
		return fmt.Errorf("%w: settlement grace must not be negative", ErrInvalidParams)
	}
	if p.QuorumBps < 0 || p.QuorumBps > BasisPoints {
		return fmt.Errorf("%w: quorum must be within [0, %d] bps", ErrInvalidParams, BasisPoints)
	}
	if p.SlashBps < 0 || p.SlashBps > BasisPoints {
		return fmt.Errorf("%w: slash must be within [0, %d] bps", ErrInvalidParams, BasisPoints)
	}
	return nil
}

// Group is one provisioned expense-sharing group. Address identifies the
// group's ledger module; the expense and dispute modules have their own
// addresses so that each can hold custody and report independently.
type Group struct {
	Address       common.Address
	ExpenseModule common.Address
	DisputeModule common.Address
	Name          string
	Admin         common.Address
	Params        GroupParams
	CreatedAt     time.Time
}

// IsAdmin reports whether addr administers the group.
func (g *Group) IsAdmin(addr common.Address) bool {
	return g.Admin == addr
}
