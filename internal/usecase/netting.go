package usecase

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// SuggestedSettlement is one debtor to creditor payment of a netting plan.
type SuggestedSettlement struct {
	Debtor   common.Address
	Creditor common.Address
	Amount   decimal.Decimal
}

type netPosition struct {
	addr   common.Address
	amount decimal.Decimal
}

// SuggestSettlements computes a greedy netting plan from members' net
// balances: the largest debtor pays the largest creditor until both sides are
// exhausted. Applying the plan with SettleBatch zeroes every balance.
//
// The result is deterministic: ties are broken by address.
func SuggestSettlements(members []*domain.Member) []SuggestedSettlement {
	var debtors, creditors []netPosition
	for _, m := range members {
		switch {
		case m.NetBalance.IsNegative():
			debtors = append(debtors, netPosition{addr: m.Address, amount: m.NetBalance.Neg()})
		case m.NetBalance.IsPositive():
			creditors = append(creditors, netPosition{addr: m.Address, amount: m.NetBalance})
		}
	}

	byAmountDesc := func(ps []netPosition) func(i, j int) bool {
		return func(i, j int) bool {
			if c := ps[i].amount.Cmp(ps[j].amount); c != 0 {
				return c > 0
			}
			return bytes.Compare(ps[i].addr[:], ps[j].addr[:]) < 0
		}
	}
	sort.Slice(debtors, byAmountDesc(debtors))
	sort.Slice(creditors, byAmountDesc(creditors))

	var plan []SuggestedSettlement
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].amount, creditors[j].amount)
		plan = append(plan, SuggestedSettlement{
			Debtor:   debtors[i].addr,
			Creditor: creditors[j].addr,
			Amount:   amount,
		})

		debtors[i].amount = debtors[i].amount.Sub(amount)
		creditors[j].amount = creditors[j].amount.Sub(amount)

		if debtors[i].amount.IsZero() {
			i++
		}
		if creditors[j].amount.IsZero() {
			j++
		}
	}

	return plan
}
