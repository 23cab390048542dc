package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Reputation accumulates an address's settlement and dispute history across
// every group it has joined.
type Reputation struct {
	Member             common.Address
	OnTimeSettlements  uint64
	LateSettlements    uint64
	DisputesWon        uint64
	DisputesLost       uint64
	VolumeSettled      decimal.Decimal
	TotalSettleTimeSec uint64
	SettleCount        uint64
	UpdatedAt          time.Time
}

// NewReputation returns an empty record for member.
func NewReputation(member common.Address) *Reputation {
	return &Reputation{Member: member, VolumeSettled: decimal.Zero}
}

// RecordSettlement adds one settlement to the record.
func (r *Reputation) RecordSettlement(amount decimal.Decimal, onTime bool, elapsed time.Duration) {
	if onTime {
		r.OnTimeSettlements++
	} else {
		r.LateSettlements++
	}
	if elapsed < 0 {
		elapsed = 0
	}
	r.VolumeSettled = r.VolumeSettled.Add(amount)
	r.TotalSettleTimeSec += uint64(elapsed / time.Second)
	r.SettleCount++
}

// RecordDisputeOutcome adds one dispute outcome to the record.
func (r *Reputation) RecordDisputeOutcome(won bool) {
	if won {
		r.DisputesWon++
	} else {
		r.DisputesLost++
	}
}

// AvgSettleTimeSec is the mean elapsed time between debt and settlement.
func (r *Reputation) AvgSettleTimeSec() uint64 {
	if r.SettleCount == 0 {
		return 0
	}
	return r.TotalSettleTimeSec / r.SettleCount
}

// ReliabilityScore returns the score in basis points. Lost disputes weigh
// twice as much as late settlements; an empty history scores the maximum.
func (r *Reputation) ReliabilityScore() int {
	positive := r.OnTimeSettlements + r.DisputesWon
	negative := r.LateSettlements + 2*r.DisputesLost
	if positive+negative == 0 {
		return BasisPoints
	}
	return int(positive * BasisPoints / (positive + negative))
}
