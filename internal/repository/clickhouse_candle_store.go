// Package repository contains the storage and messaging adapters behind the
// domain interfaces.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/clickhouse"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

const defaultCandleTable = "botai.candles"

// CandleSchema creates the candle table. ReplacingMergeTree collapses
// duplicate (symbol, exchange, interval, timestamp) rows on merge.
var CandleSchema = []string{
	`CREATE DATABASE IF NOT EXISTS botai`,
	`CREATE TABLE IF NOT EXISTS ` + defaultCandleTable + ` (
		symbol       LowCardinality(String),
		exchange     LowCardinality(String),
		interval_sec UInt32,
		timestamp    DateTime64(3, 'UTC'),
		open         Float64,
		high         Float64,
		low          Float64,
		close        Float64,
		volume       Float64,
		turnover     Float64
	) ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (symbol, exchange, interval_sec, timestamp)`,
}

// ClickHouseCandleStore reads OHLCV history from ClickHouse.
type ClickHouseCandleStore struct {
	client *clickhouse.Client
	table  string
	log    *applogger.Logger
}

// CandleStoreOption configures the store.
type CandleStoreOption func(*ClickHouseCandleStore)

// WithCandleTable overrides the source table.
func WithCandleTable(table string) CandleStoreOption {
	return func(s *ClickHouseCandleStore) { s.table = table }
}

// NewCandleStore wraps a ClickHouse client.
func NewCandleStore(client *clickhouse.Client, log *applogger.Logger, opts ...CandleStoreOption) *ClickHouseCandleStore {
	s := &ClickHouseCandleStore{client: client, table: defaultCandleTable, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns candles in [since, until) sorted ascending.
func (s *ClickHouseCandleStore) Fetch(ctx context.Context, symbol, exchange string, interval time.Duration, since, until time.Time) (*models.CandleSeries, error) {
	query := fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume, turnover
		FROM %s FINAL
		WHERE symbol = ? AND exchange = ? AND interval_sec = ?
		  AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`, s.table)

	rows, err := s.client.DB().QueryContext(ctx, query,
		symbol, exchange, uint32(interval.Seconds()), since, until)
	if err != nil {
		return nil, fmt.Errorf("candle fetch %s/%s: %w", exchange, symbol, err)
	}
	defer rows.Close()

	return s.scanSeries(rows, symbol, exchange, interval, false)
}

// Latest returns the most recent n candles sorted ascending.
func (s *ClickHouseCandleStore) Latest(ctx context.Context, symbol, exchange string, interval time.Duration, n int) (*models.CandleSeries, error) {
	query := fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume, turnover
		FROM %s FINAL
		WHERE symbol = ? AND exchange = ? AND interval_sec = ?
		ORDER BY timestamp DESC
		LIMIT ?`, s.table)

	rows, err := s.client.DB().QueryContext(ctx, query,
		symbol, exchange, uint32(interval.Seconds()), n)
	if err != nil {
		return nil, fmt.Errorf("candle latest %s/%s: %w", exchange, symbol, err)
	}
	defer rows.Close()

	return s.scanSeries(rows, symbol, exchange, interval, true)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func (s *ClickHouseCandleStore) scanSeries(rows rowScanner, symbol, exchange string, interval time.Duration, reverse bool) (*models.CandleSeries, error) {
	var candles []*models.Candle
	for rows.Next() {
		c := &models.Candle{}
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Turnover); err != nil {
			return nil, fmt.Errorf("candle scan: %w", err)
		}
		c.DeriveTurnover()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("candle rows: %w", err)
	}

	if reverse {
		for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
			candles[i], candles[j] = candles[j], candles[i]
		}
	}

	series := &models.CandleSeries{
		Symbol:   symbol,
		Exchange: exchange,
		Interval: interval,
		Candles:  candles,
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("candle series %s/%s: %w", exchange, symbol, err)
	}
	return series, nil
}

// Insert writes candles (used by the live stream path).
func (s *ClickHouseCandleStore) Insert(ctx context.Context, exchange string, interval time.Duration, candles []*models.Candle, symbol string) error {
	if len(candles) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s
		(symbol, exchange, interval_sec, timestamp, open, high, low, close, volume, turnover)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("candle insert begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("candle insert prepare: %w", err)
	}
	defer stmt.Close()

	intervalSec := uint32(interval.Seconds())
	for _, c := range candles {
		c.DeriveTurnover()
		if _, err := stmt.ExecContext(ctx, symbol, exchange, intervalSec,
			c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, c.Turnover); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("candle insert exec: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("candle insert commit: %w", err)
	}
	return nil
}

// Health pings the backing connection.
func (s *ClickHouseCandleStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close releases the connection pool.
func (s *ClickHouseCandleStore) Close() error {
	return s.client.Close()
}
