package storage

import (
	"context"
	"time"

	"token-graph-lab/internal/domain"
)

// DatasetStore provides access to the raw inputs of analysis fetches.
// Datasets are append-only; a token keeps every fetch.
type DatasetStore interface {
	// Save stores a dataset. Returns ErrDuplicateKey if (token_id, fetched_at) exists
	// or an account appears twice.
	Save(ctx context.Context, ds *domain.Dataset) error

	// Latest retrieves the most recent dataset of a token. Returns ErrNotFound if none.
	Latest(ctx context.Context, tokenID string) (*domain.Dataset, error)

	// Tokens lists the tokens that have at least one dataset, sorted.
	Tokens(ctx context.Context) ([]string, error)
}

// TransferStore provides time-window queries over transfers.
// Transfers without a timestamp are not stored.
type TransferStore interface {
	// InsertBulk adds the transfers of a token.
	InsertBulk(ctx context.Context, tokenID string, transfers []domain.Transfer) error

	// GetByTimeRange retrieves transfers within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Transfer, error)

	// MonthlyVolume aggregates transfers per calendar month, ordered by month ASC.
	MonthlyVolume(ctx context.Context, tokenID string) ([]domain.MonthlyVolume, error)
}
