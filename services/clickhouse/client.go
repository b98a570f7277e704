// Package clickhouse loads canonical OHLCV bars from the ClickHouse
// warehouse as an alternative to CSV files.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"btlab/services/engine"
)

// Config holds connection parameters for the bars warehouse.
type Config struct {
	Addr     string `toml:"addr"`
	Database string `toml:"database"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Table    string `toml:"table"`
}

// Client wraps a ClickHouse connection scoped to bar loading.
type Client struct {
	conn   driver.Conn
	table  string
	logger *zap.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:9000"
	}
	if cfg.Database == "" {
		cfg.Database = "backtest"
	}
	if cfg.Table == "" {
		cfg.Table = "backtest.data"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{conn: conn, table: cfg.Table, logger: logger}, nil
}

// LoadBars fetches bars for a symbol/interval window ordered by open time.
// fromMs/toMs bound the open timestamp; a zero toMs means "no upper bound".
func (c *Client) LoadBars(ctx context.Context, symbol, interval string, fromMs, toMs int64) ([]engine.Bar, error) {
	if toMs <= 0 {
		toMs = time.Now().UnixMilli()
	}
	query := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms`, c.table)

	rows, err := c.conn.Query(ctx, query, symbol, interval, uint64(fromMs), uint64(toMs))
	if err != nil {
		return nil, fmt.Errorf("clickhouse query bars: %w", err)
	}
	defer rows.Close()

	var bars []engine.Bar
	for rows.Next() {
		var (
			ts                           uint64
			open, high, low, cls, volume decimal.Decimal
		)
		if err := rows.Scan(&ts, &open, &high, &low, &cls, &volume); err != nil {
			return nil, fmt.Errorf("clickhouse scan bar: %w", err)
		}
		bars = append(bars, engine.Bar{
			Timestamp: int64(ts),
			Open:      open.InexactFloat64(),
			High:      high.InexactFloat64(),
			Low:       low.InexactFloat64(),
			Close:     cls.InexactFloat64(),
			Volume:    volume.InexactFloat64(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}

	c.logger.Info("bars loaded from clickhouse",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }
