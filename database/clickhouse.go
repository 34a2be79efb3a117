package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"playlog/api/config"
)

// Conn is the slice of the ClickHouse driver the stores actually use.
// Keeping it narrow lets tests substitute a fake connection.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	PrepareBatch(ctx context.Context, query string) (Batch, error)
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

type Row interface {
	Scan(dest ...any) error
	Err() error
}

type Batch interface {
	Append(v ...any) error
	Send() error
}

type ClickHouseClient struct {
	conn driver.Conn
	log  *slog.Logger
}

func NewClickHouseDB(ctx context.Context, log *slog.Logger, cfg config.ClickHouse) (*ClickHouseClient, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("clickhouse host and database must be configured")
	}

	options := &clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "playlog-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("connected to ClickHouse", "addr", cfg.Addr(), "database", cfg.Database)
	return &ClickHouseClient{conn: conn, log: log}, nil
}

// Conn returns the narrow connection used by the stores.
func (c *ClickHouseClient) Conn() Conn {
	return &chConn{conn: c.conn}
}

func (c *ClickHouseClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.log.Info("ClickHouse connection closed")
	}
}

type chConn struct {
	conn driver.Conn
}

func (c *chConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *chConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *chConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return c.conn.QueryRow(ctx, query, args...)
}

func (c *chConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}
