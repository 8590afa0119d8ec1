package memory

import (
	"context"
	"sort"
	"sync"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/storage"
)

// DatasetStore is an in-memory implementation of storage.DatasetStore.
type DatasetStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.Dataset // keyed by token, ordered by FetchedAt ASC
}

// NewDatasetStore creates a new in-memory dataset store.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{
		data: make(map[string][]*domain.Dataset),
	}
}

// Save stores a copy of ds. Returns ErrDuplicateKey if (token, fetched_at) exists.
func (s *DatasetStore) Save(_ context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.TokenID == "" || ds.FetchedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	seen := make(map[string]struct{}, len(ds.Accounts))
	for _, a := range ds.Accounts {
		if _, exists := seen[a.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[a.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.data[ds.TokenID]
	for _, existing := range list {
		if existing.FetchedAt.Equal(ds.FetchedAt) {
			return storage.ErrDuplicateKey
		}
	}

	list = append(list, cloneDataset(ds))
	sort.Slice(list, func(i, j int) bool {
		return list[i].FetchedAt.Before(list[j].FetchedAt)
	})
	s.data[ds.TokenID] = list
	return nil
}

// Latest retrieves the most recent dataset of a token.
func (s *DatasetStore) Latest(_ context.Context, tokenID string) (*domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.data[tokenID]
	if len(list) == 0 {
		return nil, storage.ErrNotFound
	}
	return cloneDataset(list[len(list)-1]), nil
}

// Tokens lists the tokens that have at least one dataset.
func (s *DatasetStore) Tokens(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]string, 0, len(s.data))
	for token := range s.data {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens, nil
}

func cloneDataset(ds *domain.Dataset) *domain.Dataset {
	return &domain.Dataset{
		TokenID:   ds.TokenID,
		Accounts:  append([]domain.Account(nil), ds.Accounts...),
		Transfers: append([]domain.Transfer(nil), ds.Transfers...),
		FetchedAt: ds.FetchedAt,
	}
}

var _ storage.DatasetStore = (*DatasetStore)(nil)
