package memory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// GroupRepository implements usecase.GroupRepository.
type GroupRepository struct {
	store *Store
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(store *Store) *GroupRepository {
	return &GroupRepository{store: store}
}

// Create stores a new group.
func (r *GroupRepository) Create(ctx context.Context, tx usecase.Transaction, group *domain.Group) error {
	t, err := open(r.store, tx)
	if err != nil {
		return err
	}
	s := r.store

	s.groups[group.Address] = cloneGroup(group)
	s.groupOrder = append(s.groupOrder, group.Address)
	s.members[group.Address] = make(map[common.Address]*domain.Member)

	t.onRollback(func() {
		delete(s.groups, group.Address)
		delete(s.members, group.Address)
		delete(s.memberOrder, group.Address)
		s.groupOrder = s.groupOrder[:len(s.groupOrder)-1]
	})
	return nil
}

// GetByAddress retrieves a group by its ledger address.
func (r *GroupRepository) GetByAddress(ctx context.Context, addr common.Address) (*domain.Group, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	g, ok := r.store.groups[addr]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

// List lists groups in creation order.
func (r *GroupRepository) List(ctx context.Context, limit, offset int) ([]*domain.Group, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	addrs := page(r.store.groupOrder, limit, offset)
	out := make([]*domain.Group, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, cloneGroup(r.store.groups[a]))
	}
	return out, nil
}

// ListByMember lists the groups member belongs to.
func (r *GroupRepository) ListByMember(ctx context.Context, member common.Address) ([]*domain.Group, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Group
	for _, a := range r.store.groupOrder {
		if _, ok := r.store.members[a][member]; ok {
			out = append(out, cloneGroup(r.store.groups[a]))
		}
	}
	return out, nil
}

// Count returns the number of groups.
func (r *GroupRepository) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.groupOrder), nil
}
