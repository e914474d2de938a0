package acr

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists ACRs. Implementations must return ErrACRNotFound (wrapped)
// from Get and Update for unknown ids, and list in (CreatedAt, ID) order.
type Store interface {
	Insert(ctx context.Context, a *ACR) error
	Get(ctx context.Context, id string) (*ACR, error)
	Update(ctx context.Context, a *ACR) error
	ListByStatus(ctx context.Context, statuses ...Status) ([]*ACR, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	acrs map[string]*ACR
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{acrs: make(map[string]*ACR)}
}

func (s *MemoryStore) Insert(_ context.Context, a *ACR) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.acrs[a.ID]; exists {
		return fmt.Errorf("acr %s already exists", a.ID)
	}
	s.acrs[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*ACR, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.acrs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrACRNotFound, id)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, a *ACR) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.acrs[a.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrACRNotFound, a.ID)
	}
	s.acrs[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, statuses ...Status) ([]*ACR, error) {
	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	out := make([]*ACR, 0, len(s.acrs))
	for _, a := range s.acrs {
		if want[a.Status] {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	sortByCreation(out)
	return out, nil
}

func sortByCreation(acrs []*ACR) {
	sort.SliceStable(acrs, func(i, j int) bool {
		if !acrs[i].CreatedAt.Equal(acrs[j].CreatedAt) {
			return acrs[i].CreatedAt.Before(acrs[j].CreatedAt)
		}
		return acrs[i].ID < acrs[j].ID
	})
}
