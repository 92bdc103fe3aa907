package webhook

import (
	"context"
	"sync"
)

// SubscriptionStore is the storage boundary behind the registry. The default
// implementation is process-memory; a durable store may replace it without
// changing delivery semantics.
type SubscriptionStore interface {
	Insert(ctx context.Context, sub Subscription) error
	Get(ctx context.Context, id string) (Subscription, bool, error)
	Update(ctx context.Context, sub Subscription) error
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]Subscription, error)
	// ListByEventType returns active subscriptions whose event-type set
	// contains eventType. Order is unspecified.
	ListByEventType(ctx context.Context, eventType string) ([]Subscription, error)
}

// MemoryStore is the in-memory SubscriptionStore.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]Subscription)}
}

func (m *MemoryStore) Insert(_ context.Context, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[id]
	if !ok {
		return Subscription{}, false, nil
	}
	return sub.clone(), true, nil
}

func (m *MemoryStore) Update(_ context.Context, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub.clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return false, nil
	}
	delete(m.subs, id)
	return true, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub.clone())
	}
	return out, nil
}

func (m *MemoryStore) ListByEventType(_ context.Context, eventType string) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Subscription
	for _, sub := range m.subs {
		if sub.Active && sub.Matches(eventType) {
			out = append(out, sub.clone())
		}
	}
	return out, nil
}
