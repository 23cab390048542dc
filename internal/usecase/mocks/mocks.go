package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Hand-written fakes for ports whose tests inspect recorded state. Ports that
// tests drive through expectations use the gomock types in mock_interfaces.go.

// MockTransaction is a Transaction that belongs to no backend. Repositories
// must reject it.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (t *MockTransaction) Commit(ctx context.Context) error {
	if t.CommitFunc == nil {
		return nil
	}
	return t.CommitFunc(ctx)
}

func (t *MockTransaction) Rollback(ctx context.Context) error {
	if t.RollbackFunc == nil {
		return nil
	}
	return t.RollbackFunc(ctx)
}

// MockRecorder counts operations and failures and sums amounts per operation.
type MockRecorder struct {
	mu         sync.Mutex
	Operations map[string]int
	Errors     map[string]int
	Amounts    map[string]decimal.Decimal
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Operations: map[string]int{},
		Errors:     map[string]int{},
		Amounts:    map[string]decimal.Decimal{},
	}
}

func (r *MockRecorder) ObserveOperation(operation string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Operations[operation]++
	if err != nil {
		r.Errors[operation]++
	}
}

func (r *MockRecorder) ObserveAmount(operation string, amount decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Amounts[operation] = r.Amounts[operation].Add(amount)
}

// inProgress is what CheckAndSet stores when called without a response.
var inProgress = []byte("processing")

// MockIdempotencyStore keeps keys in memory without expiry. The Func fields
// override the default behaviour of each method.
type MockIdempotencyStore struct {
	mu    sync.RWMutex
	slots map[string][]byte

	CheckAndSetFunc func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	UpdateFunc      func(ctx context.Context, key string, response []byte, ttl time.Duration) error
	ReleaseFunc     func(ctx context.Context, key string) error
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{slots: map[string][]byte{}}
}

// CheckAndSet claims key unless it is taken, in which case the stored value
// comes back with exists set.
func (s *MockIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if s.CheckAndSetFunc != nil {
		return s.CheckAndSetFunc(ctx, key, response, ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, taken := s.slots[key]; taken {
		return true, stored, nil
	}
	if response == nil {
		response = inProgress
	}
	s.slots[key] = response
	return false, nil, nil
}

func (s *MockIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if s.UpdateFunc != nil {
		return s.UpdateFunc(ctx, key, response, ttl)
	}
	s.mu.Lock()
	s.slots[key] = response
	s.mu.Unlock()
	return nil
}

func (s *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	if s.ReleaseFunc != nil {
		return s.ReleaseFunc(ctx, key)
	}
	s.mu.Lock()
	delete(s.slots, key)
	s.mu.Unlock()
	return nil
}

// Get returns the stored value of key.
func (s *MockIdempotencyStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.slots[key]
	return v, ok
}
