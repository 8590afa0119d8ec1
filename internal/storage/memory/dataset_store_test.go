package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/storage"
)

func testDataset(token string, fetchedAt time.Time) *domain.Dataset {
	return &domain.Dataset{
		TokenID: token,
		Accounts: []domain.Account{
			{ID: "0.0.1", Balance: 100, IsTreasury: true},
			{ID: "0.0.2", Balance: 50},
		},
		Transfers: []domain.Transfer{
			{Timestamp: fetchedAt.Add(-time.Hour), TxID: "tx1", Sender: "0.0.1", Receiver: "0.0.2", Amount: 5},
		},
		FetchedAt: fetchedAt,
	}
}

func TestDatasetStore_SaveAndLatest(t *testing.T) {
	store := NewDatasetStore()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, testDataset("0.0.9", t0.Add(time.Hour))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, testDataset("0.0.9", t0)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Latest(ctx, "0.0.9")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if !got.FetchedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("FetchedAt mismatch: got %v, want %v", got.FetchedAt, t0.Add(time.Hour))
	}
	if len(got.Accounts) != 2 || len(got.Transfers) != 1 {
		t.Errorf("unexpected dataset: %+v", got)
	}

	// Returned copies are isolated from the store.
	got.Accounts[0].Balance = 0
	again, _ := store.Latest(ctx, "0.0.9")
	if again.Accounts[0].Balance != 100 {
		t.Error("store data was mutated through returned dataset")
	}
}

func TestDatasetStore_DuplicateKey(t *testing.T) {
	store := NewDatasetStore()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, testDataset("0.0.9", t0)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, testDataset("0.0.9", t0)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	dup := testDataset("0.0.10", t0)
	dup.Accounts = append(dup.Accounts, domain.Account{ID: "0.0.2", Balance: 1})
	if err := store.Save(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for repeated account, got %v", err)
	}
}

func TestDatasetStore_InvalidAndNotFound(t *testing.T) {
	store := NewDatasetStore()
	ctx := context.Background()

	if err := store.Save(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := store.Save(ctx, &domain.Dataset{TokenID: "0.0.1"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero FetchedAt, got %v", err)
	}
	if _, err := store.Latest(ctx, "0.0.404"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDatasetStore_Tokens(t *testing.T) {
	store := NewDatasetStore()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, token := range []string{"0.0.3", "0.0.1", "0.0.2"} {
		if err := store.Save(ctx, testDataset(token, t0)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	tokens, err := store.Tokens(ctx)
	if err != nil {
		t.Fatalf("Tokens failed: %v", err)
	}
	want := []string{"0.0.1", "0.0.2", "0.0.3"}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("Tokens mismatch: got %v, want %v", tokens, want)
		}
	}
}

func TestDatasetStore_Concurrent(t *testing.T) {
	store := NewDatasetStore()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Save(ctx, testDataset("0.0.9", t0.Add(time.Duration(i)*time.Minute)))
			_, _ = store.Latest(ctx, "0.0.9")
		}(i)
	}
	wg.Wait()

	got, err := store.Latest(ctx, "0.0.9")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if !got.FetchedAt.Equal(t0.Add(19 * time.Minute)) {
		t.Errorf("expected newest fetch, got %v", got.FetchedAt)
	}
}
