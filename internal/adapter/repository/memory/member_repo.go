package memory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// MemberRepository implements usecase.MemberRepository.
type MemberRepository struct {
	store *Store
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(store *Store) *MemberRepository {
	return &MemberRepository{store: store}
}

// Create adds a member to a group.
func (r *MemberRepository) Create(ctx context.Context, tx usecase.Transaction, member *domain.Member) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}
	s := r.store

	roster, ok := s.members[member.GroupAddress]
	if !ok {
		return domain.ErrGroupNotFound
	}
	if _, exists := roster[member.Address]; exists {
		return domain.ErrAlreadyMember
	}

	prevOrder := s.memberOrder[member.GroupAddress]
	roster[member.Address] = cloneMember(member)
	s.memberOrder[member.GroupAddress] = append(append([]common.Address(nil), prevOrder...), member.Address)

	t.onRollback(func() {
		delete(roster, member.Address)
		s.memberOrder[member.GroupAddress] = prevOrder
	})
	return nil
}

// Delete removes a member from a group.
func (r *MemberRepository) Delete(ctx context.Context, tx usecase.Transaction, group, addr common.Address) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}
	s := r.store

	prev, ok := s.members[group][addr]
	if !ok {
		return domain.ErrNotMember
	}

	prevOrder := s.memberOrder[group]
	order := make([]common.Address, 0, len(prevOrder))
	for _, a := range prevOrder {
		if a != addr {
			order = append(order, a)
		}
	}

	delete(s.members[group], addr)
	s.memberOrder[group] = order

	t.onRollback(func() {
		s.members[group][addr] = prev
		s.memberOrder[group] = prevOrder
	})
	return nil
}

// Get retrieves a member.
func (r *MemberRepository) Get(ctx context.Context, group, addr common.Address) (*domain.Member, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.get(group, addr)
}

// GetForUpdate retrieves a member inside a transaction.
func (r *MemberRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, group, addr common.Address) (*domain.Member, error) {
	if _, err := open(r.store, tx); err != nil {
		return nil, err
	}
	return r.get(group, addr)
}

// ListByGroup lists members in join order.
func (r *MemberRepository) ListByGroup(ctx context.Context, group common.Address) ([]*domain.Member, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.list(group)
}

// ListByGroupForUpdate lists members inside a transaction.
func (r *MemberRepository) ListByGroupForUpdate(ctx context.Context, tx usecase.Transaction, group common.Address) ([]*domain.Member, error) {
	if _, err := open(r.store, tx); err != nil {
		return nil, err
	}
	return r.list(group)
}

// Update stores the bond, net balance and debt anchor of a member.
func (r *MemberRepository) Update(ctx context.Context, tx usecase.Transaction, member *domain.Member) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}

	roster := r.store.members[member.GroupAddress]
	prev, ok := roster[member.Address]
	if !ok {
		return domain.ErrNotMember
	}

	roster[member.Address] = cloneMember(member)
	t.onRollback(func() { roster[member.Address] = prev })
	return nil
}

func (r *MemberRepository) get(group, addr common.Address) (*domain.Member, error) {
	roster, ok := r.store.members[group]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	m, ok := roster[addr]
	if !ok {
		return nil, domain.ErrNotMember
	}
	return cloneMember(m), nil
}

func (r *MemberRepository) list(group common.Address) ([]*domain.Member, error) {
	roster, ok := r.store.members[group]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	out := make([]*domain.Member, 0, len(roster))
	for _, a := range r.store.memberOrder[group] {
		out = append(out, cloneMember(roster[a]))
	}
	return out, nil
}
