package dto

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// GroupParamsRequest carries group parameters. Windows are in seconds.
type GroupParamsRequest struct {
	MinBond            decimal.Decimal `json:"min_bond"`
	ChallengeWindowSec int64           `json:"challenge_window_sec"`
	VoteWindowSec      int64           `json:"vote_window_sec"`
	SettlementGraceSec int64           `json:"settlement_grace_sec"`
	QuorumBps          int             `json:"quorum_bps"`
	SlashBps           int             `json:"slash_bps"`
}

// ToDomain converts to domain parameters.
func (p GroupParamsRequest) ToDomain() domain.GroupParams {
	return domain.GroupParams{
		MinBond:         p.MinBond,
		ChallengeWindow: time.Duration(p.ChallengeWindowSec) * time.Second,
		VoteWindow:      time.Duration(p.VoteWindowSec) * time.Second,
		SettlementGrace: time.Duration(p.SettlementGraceSec) * time.Second,
		QuorumBps:       p.QuorumBps,
		SlashBps:        p.SlashBps,
	}
}

// CreateGroupRequest represents a request to provision a group.
type CreateGroupRequest struct {
	Name    string             `json:"name"`
	Members []string           `json:"members"`
	Params  GroupParamsRequest `json:"params"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateGroupRequest) ToUseCaseInput() (usecase.CreateGroupInput, error) {
	members, err := domain.ParseAddresses(r.Members)
	if err != nil {
		return usecase.CreateGroupInput{}, err
	}
	return usecase.CreateGroupInput{
		Name:    r.Name,
		Members: members,
		Params:  r.Params.ToDomain(),
	}, nil
}

// MemberRequest names one address, used to add a member.
type MemberRequest struct {
	Address string `json:"address"`
}

// AmountRequest carries a single amount in the smallest unit.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// SettlementItem is one debtor to creditor payment.
type SettlementItem struct {
	Debtor   string          `json:"debtor"`
	Creditor string          `json:"creditor"`
	Amount   decimal.Decimal `json:"amount"`
}

// SettleBatchRequest represents a batch of voluntary settlements.
type SettleBatchRequest struct {
	Settlements []SettlementItem `json:"settlements"`
}

// Columns splits the batch into the parallel lists the ledger takes.
func (r *SettleBatchRequest) Columns() (debtors, creditors []common.Address, amounts []decimal.Decimal, err error) {
	debtors = make([]common.Address, len(r.Settlements))
	creditors = make([]common.Address, len(r.Settlements))
	amounts = make([]decimal.Decimal, len(r.Settlements))
	for i, s := range r.Settlements {
		if debtors[i], err = domain.ParseAddress(s.Debtor); err != nil {
			return nil, nil, nil, fmt.Errorf("settlement %d: %w", i, err)
		}
		if creditors[i], err = domain.ParseAddress(s.Creditor); err != nil {
			return nil, nil, nil, fmt.Errorf("settlement %d: %w", i, err)
		}
		amounts[i] = s.Amount
	}
	return debtors, creditors, amounts, nil
}

// SettleFromBondRequest represents a forced settlement out of a debtor's bond.
type SettleFromBondRequest struct {
	Debtor   string          `json:"debtor"`
	Creditor string          `json:"creditor"`
	Amount   decimal.Decimal `json:"amount"`
}

// ProposeExpenseRequest represents a request to propose an expense.
type ProposeExpenseRequest struct {
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	Participants []string          `json:"participants"`
	Splits       []decimal.Decimal `json:"splits"`
	ReceiptHash  string            `json:"receipt_hash,omitempty"`
	MetadataHash string            `json:"metadata_hash,omitempty"`
	ExternalRef  string            `json:"external_ref,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ProposeExpenseRequest) ToUseCaseInput() (usecase.ProposeExpenseInput, error) {
	participants, err := domain.ParseAddresses(r.Participants)
	if err != nil {
		return usecase.ProposeExpenseInput{}, err
	}
	receipt, err := domain.ParseHash(r.ReceiptHash)
	if err != nil {
		return usecase.ProposeExpenseInput{}, err
	}
	metadata, err := domain.ParseHash(r.MetadataHash)
	if err != nil {
		return usecase.ProposeExpenseInput{}, err
	}
	return usecase.ProposeExpenseInput{
		TotalAmount:  r.TotalAmount,
		Participants: participants,
		Splits:       r.Splits,
		ReceiptHash:  receipt,
		MetadataHash: metadata,
		ExternalRef:  r.ExternalRef,
	}, nil
}

// ChallengeRequest represents a challenge against a proposed expense.
// Reason is either a reason name or empty for unspecified.
type ChallengeRequest struct {
	Reason       string `json:"reason,omitempty"`
	EvidenceHash string `json:"evidence_hash,omitempty"`
}

// Parse returns the reason code and evidence hash.
func (r *ChallengeRequest) Parse() (domain.ReasonCode, common.Hash, error) {
	reason := domain.ReasonUnspecified
	if r.Reason != "" {
		parsed, err := ParseReason(r.Reason)
		if err != nil {
			return 0, common.Hash{}, err
		}
		reason = parsed
	}
	evidence, err := domain.ParseHash(r.EvidenceHash)
	if err != nil {
		return 0, common.Hash{}, err
	}
	return reason, evidence, nil
}

// ParseReason maps a reason name to its code.
func ParseReason(name string) (domain.ReasonCode, error) {
	for code := domain.ReasonUnspecified; code.IsValid(); code++ {
		if code.String() == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown reason %q", name)
}

// VoteRequest represents a vote on an open dispute. Support true keeps the
// expense, false votes to reject it.
type VoteRequest struct {
	Support bool `json:"support"`
}

// ApproveRequest lets the caller authorize a custodian to pull funds.
type ApproveRequest struct {
	Spender string          `json:"spender"`
	Amount  decimal.Decimal `json:"amount"`
}

// MintRequest credits development units to an address.
type MintRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// GrantRequest names the address receiving a capability.
type GrantRequest struct {
	Address string `json:"address"`
}
