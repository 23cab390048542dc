package replay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// Mismatch is one difference between live and replayed state.
type Mismatch struct {
	Subject string
	Field   string
	Live    string
	Replay  string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: live=%s replay=%s", m.Subject, m.Field, m.Live, m.Replay)
}

// Verify replays a group's events and compares the result with the live
// members and expenses.
func Verify(
	ctx context.Context,
	outbox usecase.OutboxRepository,
	group common.Address,
	members []*domain.Member,
	expenses []*domain.Expense,
) ([]Mismatch, error) {
	state, err := Rebuild(ctx, outbox, group)
	if err != nil {
		return nil, err
	}
	return Compare(state, members, expenses), nil
}

// Compare diffs a projection against live state.
func Compare(state *GroupState, members []*domain.Member, expenses []*domain.Expense) []Mismatch {
	var out []Mismatch

	live := make(map[common.Address]bool, len(members))
	for _, m := range members {
		live[m.Address] = true
		subject := "member " + m.Address.Hex()

		r, ok := state.Members[m.Address]
		if !ok {
			out = append(out, Mismatch{Subject: subject, Field: "presence", Live: "present", Replay: "absent"})
			continue
		}
		if !r.Bond.Equal(m.Bond) {
			out = append(out, Mismatch{Subject: subject, Field: "bond", Live: m.Bond.String(), Replay: r.Bond.String()})
		}
		if !r.NetBalance.Equal(m.NetBalance) {
			out = append(out, Mismatch{Subject: subject, Field: "net_balance", Live: m.NetBalance.String(), Replay: r.NetBalance.String()})
		}
	}
	for addr := range state.Members {
		if !live[addr] {
			out = append(out, Mismatch{Subject: "member " + addr.Hex(), Field: "presence", Live: "absent", Replay: "present"})
		}
	}

	for _, e := range expenses {
		subject := fmt.Sprintf("expense %d", e.ID)
		r, ok := state.Expenses[e.ID]
		if !ok {
			out = append(out, Mismatch{Subject: subject, Field: "presence", Live: "present", Replay: "absent"})
			continue
		}
		if r.Status != e.Status {
			out = append(out, Mismatch{Subject: subject, Field: "status", Live: e.Status.String(), Replay: r.Status.String()})
		}
	}
	if len(expenses) != len(state.Expenses) {
		out = append(out, Mismatch{
			Subject: "expenses",
			Field:   "count",
			Live:    fmt.Sprint(len(expenses)),
			Replay:  fmt.Sprint(len(state.Expenses)),
		})
	}

	return out
}
