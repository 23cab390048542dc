package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ExpenseStatus is the lifecycle state of an expense.
type ExpenseStatus uint8

const (
	ExpenseStatusProposed ExpenseStatus = iota
	ExpenseStatusChallenged
	ExpenseStatusFinalized
	ExpenseStatusRejected
)

var expenseStatusNames = map[ExpenseStatus]string{
	ExpenseStatusProposed:   "proposed",
	ExpenseStatusChallenged: "challenged",
	ExpenseStatusFinalized:  "finalized",
	ExpenseStatusRejected:   "rejected",
}

func (s ExpenseStatus) String() string {
	if name, ok := expenseStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// IsTerminal reports whether no further transition is possible.
func (s ExpenseStatus) IsTerminal() bool {
	return s == ExpenseStatusFinalized || s == ExpenseStatusRejected
}

// ParseExpenseStatus parses the lower-case status name.
func ParseExpenseStatus(s string) (ExpenseStatus, error) {
	for status, name := range expenseStatusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown expense status %q", s)
}

// Expense is a shared cost proposed by a payer and split across participants.
type Expense struct {
	GroupAddress common.Address
	ID           uint64
	Payer        common.Address
	TotalAmount  decimal.Decimal
	Participants []common.Address
	Splits       []decimal.Decimal
	ReceiptHash  common.Hash
	MetadataHash common.Hash
	ExternalRef  string
	Status       ExpenseStatus
	ProposedAt   time.Time
	FinalizedAt  *time.Time
}

// Validate checks the split shape and arithmetic. checkMember, when set, is
// consulted for each distinct participant and its error is returned as is.
func (e *Expense) Validate(checkMember func(common.Address) error) error {
	if err := ValidateAmount(e.TotalAmount); err != nil {
		return err
	}
	if len(e.Participants) == 0 || len(e.Participants) != len(e.Splits) {
		return ErrLengthMismatch
	}

	seen := make(map[common.Address]bool, len(e.Participants))
	sum := decimal.Zero
	for i, p := range e.Participants {
		if seen[p] {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.Hex())
		}
		seen[p] = true
		if checkMember != nil {
			if err := checkMember(p); err != nil {
				return err
			}
		}

		split := e.Splits[i]
		if split.IsNegative() || !split.IsInteger() {
			return fmt.Errorf("%w: split %s for %s", ErrInvalidAmount, split, p.Hex())
		}
		sum = sum.Add(split)
	}

	if !sum.Equal(e.TotalAmount) {
		return ErrSplitSumMismatch
	}
	return nil
}

// ChallengeDeadline is the first instant at which the expense can no longer
// be challenged and may be finalized.
func (e *Expense) ChallengeDeadline(window time.Duration) time.Time {
	return e.ProposedAt.Add(window)
}

// ShareOf returns addr's split, or zero if addr is not a participant.
func (e *Expense) ShareOf(addr common.Address) decimal.Decimal {
	for i, p := range e.Participants {
		if p == addr {
			return e.Splits[i]
		}
	}
	return decimal.Zero
}

// Involves reports whether addr pays or shares the expense.
func (e *Expense) Involves(addr common.Address) bool {
	if e.Payer == addr {
		return true
	}
	for _, p := range e.Participants {
		if p == addr {
			return true
		}
	}
	return false
}

// BalanceDeltas returns the net-balance change finalization applies to each
// affected member. The deltas always sum to zero.
func (e *Expense) BalanceDeltas() map[common.Address]decimal.Decimal {
	deltas := make(map[common.Address]decimal.Decimal, len(e.Participants)+1)
	deltas[e.Payer] = e.TotalAmount.Sub(e.ShareOf(e.Payer))
	for i, p := range e.Participants {
		if p == e.Payer {
			continue
		}
		deltas[p] = e.Splits[i].Neg()
	}
	return deltas
}
