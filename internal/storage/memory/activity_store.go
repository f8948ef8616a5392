package memory

import (
	"context"
	"sort"
	"sync"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/storage"
)

// ActivityStore is an in-memory implementation of storage.ActivityStore.
type ActivityStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Activity // keyed by id
}

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		data: make(map[string]*domain.Activity),
	}
}

// Insert adds a new activity. Returns ErrDuplicateKey if id exists.
func (s *ActivityStore) Insert(_ context.Context, a *domain.Activity) error {
	if err := storage.ValidateActivity(a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	activityCopy := *a
	s.data[a.ID] = &activityCopy
	return nil
}

// GetByID retrieves an activity by its ID. Returns ErrNotFound if not exists.
func (s *ActivityStore) GetByID(_ context.Context, id string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	activityCopy := *a
	return &activityCopy, nil
}

// ListByIdentity returns up to limit activities of identity, newest first.
func (s *ActivityStore) ListByIdentity(_ context.Context, identity string, limit int) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Activity
	for _, a := range s.data {
		if a.Identity == identity {
			activityCopy := *a
			result = append(result, &activityCopy)
		}
	}

	// Sort by created_at DESC, id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByMint returns all activities for a mint, oldest first.
func (s *ActivityStore) ListByMint(_ context.Context, mint string) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Activity
	for _, a := range s.data {
		if a.Mint == mint {
			activityCopy := *a
			result = append(result, &activityCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ActivityStore = (*ActivityStore)(nil)
