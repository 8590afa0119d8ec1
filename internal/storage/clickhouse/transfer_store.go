package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/idhash"
	"token-graph-lab/internal/storage"
)

// TransferStore implements storage.TransferStore using ClickHouse.
type TransferStore struct {
	conn *Conn
}

// NewTransferStore creates a new TransferStore.
func NewTransferStore(conn *Conn) *TransferStore {
	return &TransferStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransferStore = (*TransferStore)(nil)

// InsertBulk adds the timestamped transfers of a token in one batch.
// Rows carry idhash.TransferIDs so repeated fetches replace each other.
func (s *TransferStore) InsertBulk(ctx context.Context, tokenID string, transfers []domain.Transfer) error {
	if tokenID == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transfers (token_id, transfer_id, ts, tx_id, sender, receiver, amount)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer batch.Abort()

	appended := 0
	for i, id := range idhash.TransferIDs(tokenID, transfers) {
		t := transfers[i]
		if t.Timestamp.IsZero() {
			continue
		}
		err = batch.Append(tokenID, id, t.Timestamp.UTC(), t.TxID, t.Sender, t.Receiver, t.Amount)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
		appended++
	}
	if appended == 0 {
		return nil
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves transfers within [start, end] (inclusive).
func (s *TransferStore) GetByTimeRange(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Transfer, error) {
	query := `
		SELECT ts, tx_id, sender, receiver, amount
		FROM transfers FINAL
		WHERE token_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	var result []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(&t.Timestamp, &t.TxID, &t.Sender, &t.Receiver, &t.Amount); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// MonthlyVolume aggregates transfers per calendar month.
func (s *TransferStore) MonthlyVolume(ctx context.Context, tokenID string) ([]domain.MonthlyVolume, error) {
	query := `
		SELECT toStartOfMonth(ts) AS month, count() AS transfers, sum(amount) AS volume
		FROM transfers FINAL
		WHERE token_id = ?
		GROUP BY month
		ORDER BY month ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query monthly volume: %w", err)
	}
	defer rows.Close()

	var result []domain.MonthlyVolume
	for rows.Next() {
		var (
			month  time.Time
			count  uint64
			volume float64
		)
		if err := rows.Scan(&month, &count, &volume); err != nil {
			return nil, fmt.Errorf("scan monthly volume: %w", err)
		}
		result = append(result, domain.MonthlyVolume{
			Month:     time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC),
			Transfers: int(count),
			Volume:    volume,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
