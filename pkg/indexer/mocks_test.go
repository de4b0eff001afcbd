package indexer

// TODO: remove the mock impl and use mockery to generate mock

import (
	"context"
	"sync"

	"github.com/noskodmi/commit2consumer/pkg/bounty"
	"github.com/noskodmi/commit2consumer/pkg/bountystore"
)

// MockStore is a mock implementation of bountystore.Store. When a Func
// field is nil the call falls through to an in-memory map, so tests get a
// working store by default and override only what they need.
type MockStore struct {
	CreateBountyFunc func(ctx context.Context, b *bounty.Bounty) error
	MarkResolvedFunc func(ctx context.Context, id, resolver string) error
	GetBountyFunc    func(ctx context.Context, id string) (*bounty.Bounty, error)
	ListBountiesFunc func(ctx context.Context, limit int) ([]*bounty.Bounty, error)
	GetOffsetFunc    func(ctx context.Context) (uint64, bool, error)
	SetOffsetFunc    func(ctx context.Context, offset uint64) error
	ResetFunc        func(ctx context.Context) error

	mu        sync.Mutex
	bounties  map[string]*bounty.Bounty
	order     []string
	offset    uint64
	hasOffset bool
}

// NewMockStore creates a MockStore backed by an empty in-memory mirror
func NewMockStore() *MockStore {
	return &MockStore{bounties: make(map[string]*bounty.Bounty)}
}

func (m *MockStore) CreateBounty(ctx context.Context, b *bounty.Bounty) error {
	if m.CreateBountyFunc != nil {
		return m.CreateBountyFunc(ctx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bounties[b.ID]; ok {
		return nil
	}
	clone := *b
	m.bounties[b.ID] = &clone
	m.order = append(m.order, b.ID)
	return nil
}

func (m *MockStore) MarkResolved(ctx context.Context, id, resolver string) error {
	if m.MarkResolvedFunc != nil {
		return m.MarkResolvedFunc(ctx, id, resolver)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bounties[id]
	if !ok {
		return bountystore.ErrBountyNotFound
	}
	b.Resolved = true
	b.Resolver = resolver
	return nil
}

func (m *MockStore) GetBounty(ctx context.Context, id string) (*bounty.Bounty, error) {
	if m.GetBountyFunc != nil {
		return m.GetBountyFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bounties[id]
	if !ok {
		return nil, bountystore.ErrBountyNotFound
	}
	clone := *b
	return &clone, nil
}

func (m *MockStore) ListBounties(ctx context.Context, limit int) ([]*bounty.Bounty, error) {
	if m.ListBountiesFunc != nil {
		return m.ListBountiesFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*bounty.Bounty, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *m.bounties[m.order[i]]
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockStore) GetOffset(ctx context.Context) (uint64, bool, error) {
	if m.GetOffsetFunc != nil {
		return m.GetOffsetFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset, m.hasOffset, nil
}

func (m *MockStore) SetOffset(ctx context.Context, offset uint64) error {
	if m.SetOffsetFunc != nil {
		return m.SetOffsetFunc(ctx, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = offset
	m.hasOffset = true
	return nil
}

func (m *MockStore) Reset(ctx context.Context) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bounties = make(map[string]*bounty.Bounty)
	m.order = nil
	m.offset = 0
	m.hasOffset = false
	return nil
}

// snapshot returns a copy of the mirror keyed by id, for state comparisons
func (m *MockStore) snapshot() map[string]bounty.Bounty {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bounty.Bounty, len(m.bounties))
	for id, b := range m.bounties {
		out[id] = *b
	}
	return out
}
