package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/idhash"
	"token-graph-lab/internal/storage"
)

// TransferStore is an in-memory implementation of storage.TransferStore.
type TransferStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Transfer   // keyed by token
	ids  map[string]map[string]struct{} // stored transfer ids per token
}

// NewTransferStore creates a new in-memory transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{
		data: make(map[string][]domain.Transfer),
		ids:  make(map[string]map[string]struct{}),
	}
}

// InsertBulk adds the timestamped transfers of a token. Transfers already
// stored, by idhash.TransferIDs, are skipped.
func (s *TransferStore) InsertBulk(_ context.Context, tokenID string, transfers []domain.Transfer) error {
	if tokenID == "" {
		return storage.ErrInvalidInput
	}
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.ids[tokenID]
	if seen == nil {
		seen = make(map[string]struct{})
		s.ids[tokenID] = seen
	}

	list := s.data[tokenID]
	for i, id := range idhash.TransferIDs(tokenID, transfers) {
		tr := transfers[i]
		if tr.Timestamp.IsZero() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		tr.Timestamp = tr.Timestamp.UTC()
		list = append(list, tr)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
	s.data[tokenID] = list
	return nil
}

// GetByTimeRange retrieves transfers within [start, end] (inclusive).
func (s *TransferStore) GetByTimeRange(_ context.Context, tokenID string, start, end time.Time) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Transfer
	for _, tr := range s.data[tokenID] {
		if !tr.Timestamp.Before(start) && !tr.Timestamp.After(end) {
			result = append(result, tr)
		}
	}
	return result, nil
}

// MonthlyVolume aggregates transfers per calendar month.
func (s *TransferStore) MonthlyVolume(_ context.Context, tokenID string) ([]domain.MonthlyVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.MonthlyVolume
	for _, tr := range s.data[tokenID] {
		month := time.Date(tr.Timestamp.Year(), tr.Timestamp.Month(), 1, 0, 0, 0, 0, time.UTC)
		if n := len(result); n > 0 && result[n-1].Month.Equal(month) {
			result[n-1].Transfers++
			result[n-1].Volume += tr.Amount
			continue
		}
		result = append(result, domain.MonthlyVolume{Month: month, Transfers: 1, Volume: tr.Amount})
	}
	return result, nil
}

var _ storage.TransferStore = (*TransferStore)(nil)
