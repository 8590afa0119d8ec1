package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/observability"
	"token-graph-lab/internal/storage"
	chstore "token-graph-lab/internal/storage/clickhouse"
	"token-graph-lab/internal/storage/memory"
	"token-graph-lab/internal/storage/migrations"
	pgstore "token-graph-lab/internal/storage/postgres"
)

// stores holds the storage implementations used by the server.
type stores struct {
	datasets  storage.DatasetStore
	transfers storage.TransferStore // nil when no analytical store is configured
}

// createStores opens the configured backends. With useMemory both stores
// live in memory; otherwise datasets go to PostgreSQL and, when a DSN is
// given, transfers go to ClickHouse.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory, migrate bool, logger *zap.Logger) (*stores, func(), error) {
	if useMemory {
		return &stores{
			datasets:  memory.NewDatasetStore(),
			transfers: memory.NewTransferStore(),
		}, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("postgres migrations", zap.Strings("applied", applied))
	}

	s := &stores{
		datasets: &timedDatasetStore{next: pgstore.NewDatasetStore(pool)},
	}
	if clickhouseDSN == "" {
		return s, pool.Close, nil
	}

	// ClickHouse
	var chConn *chstore.Conn
	if migrate {
		var applied []string
		chConn, applied, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err == nil {
			logger.Info("clickhouse migrations", zap.Strings("applied", applied))
		}
	} else {
		chConn, err = chstore.NewConn(ctx, clickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	s.transfers = &timedTransferStore{next: chstore.NewTransferStore(chConn)}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return s, cleanup, nil
}

// timedDatasetStore records query metrics for a PostgreSQL dataset store.
type timedDatasetStore struct {
	next storage.DatasetStore
}

var _ storage.DatasetStore = (*timedDatasetStore)(nil)

func (s *timedDatasetStore) Save(ctx context.Context, ds *domain.Dataset) error {
	start := time.Now()
	err := s.next.Save(ctx, ds)
	observability.RecordDBQuery("postgres", "save_dataset", time.Since(start).Seconds(), err)
	return err
}

func (s *timedDatasetStore) Latest(ctx context.Context, tokenID string) (*domain.Dataset, error) {
	start := time.Now()
	ds, err := s.next.Latest(ctx, tokenID)
	observability.RecordDBQuery("postgres", "latest_dataset", time.Since(start).Seconds(), err)
	return ds, err
}

func (s *timedDatasetStore) Tokens(ctx context.Context) ([]string, error) {
	start := time.Now()
	tokens, err := s.next.Tokens(ctx)
	observability.RecordDBQuery("postgres", "tokens", time.Since(start).Seconds(), err)
	return tokens, err
}

// timedTransferStore records query metrics for a ClickHouse transfer store.
type timedTransferStore struct {
	next storage.TransferStore
}

var _ storage.TransferStore = (*timedTransferStore)(nil)

func (s *timedTransferStore) InsertBulk(ctx context.Context, tokenID string, transfers []domain.Transfer) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, tokenID, transfers)
	observability.RecordDBQuery("clickhouse", "insert_transfers", time.Since(start).Seconds(), err)
	return err
}

func (s *timedTransferStore) GetByTimeRange(ctx context.Context, tokenID string, start, end time.Time) ([]domain.Transfer, error) {
	began := time.Now()
	transfers, err := s.next.GetByTimeRange(ctx, tokenID, start, end)
	observability.RecordDBQuery("clickhouse", "transfers_by_time", time.Since(began).Seconds(), err)
	return transfers, err
}

func (s *timedTransferStore) MonthlyVolume(ctx context.Context, tokenID string) ([]domain.MonthlyVolume, error) {
	start := time.Now()
	volume, err := s.next.MonthlyVolume(ctx, tokenID)
	observability.RecordDBQuery("clickhouse", "monthly_volume", time.Since(start).Seconds(), err)
	return volume, err
}
