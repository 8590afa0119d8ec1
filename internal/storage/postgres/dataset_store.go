package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/storage"
)

// DatasetStore implements storage.DatasetStore using PostgreSQL.
type DatasetStore struct {
	pool *Pool
}

// NewDatasetStore creates a new DatasetStore.
func NewDatasetStore(pool *Pool) *DatasetStore {
	return &DatasetStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DatasetStore = (*DatasetStore)(nil)

// Save stores a dataset with its holders and transfers in one transaction.
func (s *DatasetStore) Save(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.TokenID == "" || ds.FetchedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	return s.pool.withTx(ctx, func(tx pgx.Tx) error {
		var datasetID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO datasets (token_id, fetched_at)
			VALUES ($1, $2)
			RETURNING id
		`, ds.TokenID, ds.FetchedAt.UTC()).Scan(&datasetID)
		if err != nil {
			return classify("insert dataset", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"dataset_holders"},
			[]string{"dataset_id", "account_id", "balance", "is_treasury"},
			pgx.CopyFromSlice(len(ds.Accounts), func(i int) ([]any, error) {
				a := ds.Accounts[i]
				return []any{datasetID, a.ID, a.Balance, a.IsTreasury}, nil
			}),
		)
		if err != nil {
			// A repeated account id violates the holders primary key.
			return classify("copy holders", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"dataset_transfers"},
			[]string{"dataset_id", "seq", "ts", "tx_id", "sender", "receiver", "amount"},
			pgx.CopyFromSlice(len(ds.Transfers), func(i int) ([]any, error) {
				t := ds.Transfers[i]
				var ts *time.Time
				if !t.Timestamp.IsZero() {
					utc := t.Timestamp.UTC()
					ts = &utc
				}
				return []any{datasetID, i, ts, t.TxID, t.Sender, t.Receiver, t.Amount}, nil
			}),
		)
		return classify("copy transfers", err)
	})
}

// Latest retrieves the most recent dataset of a token.
func (s *DatasetStore) Latest(ctx context.Context, tokenID string) (*domain.Dataset, error) {
	ds := domain.Dataset{TokenID: tokenID}
	var datasetID int64

	err := s.pool.QueryRow(ctx, `
		SELECT id, fetched_at
		FROM datasets
		WHERE token_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1
	`, tokenID).Scan(&datasetID, &ds.FetchedAt)
	if err != nil {
		return nil, classify("get latest dataset", err)
	}
	ds.FetchedAt = ds.FetchedAt.UTC()

	holders, err := s.pool.Query(ctx, `
		SELECT account_id, balance, is_treasury
		FROM dataset_holders
		WHERE dataset_id = $1
		ORDER BY account_id ASC
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("get holders: %w", err)
	}
	ds.Accounts, err = pgx.CollectRows(holders, func(row pgx.CollectableRow) (domain.Account, error) {
		var a domain.Account
		err := row.Scan(&a.ID, &a.Balance, &a.IsTreasury)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan holders: %w", err)
	}

	transfers, err := s.pool.Query(ctx, `
		SELECT ts, tx_id, sender, receiver, amount
		FROM dataset_transfers
		WHERE dataset_id = $1
		ORDER BY seq ASC
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("get transfers: %w", err)
	}
	ds.Transfers, err = pgx.CollectRows(transfers, func(row pgx.CollectableRow) (domain.Transfer, error) {
		var t domain.Transfer
		var ts *time.Time
		if err := row.Scan(&ts, &t.TxID, &t.Sender, &t.Receiver, &t.Amount); err != nil {
			return t, err
		}
		if ts != nil {
			t.Timestamp = ts.UTC()
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan transfers: %w", err)
	}

	return &ds, nil
}

// Tokens lists the tokens that have at least one dataset.
func (s *DatasetStore) Tokens(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT token_id FROM datasets ORDER BY token_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan tokens: %w", err)
	}
	return tokens, nil
}
