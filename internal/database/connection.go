// Package database stores scraped records in PostgreSQL.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	infraconfig "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/config"
)

const pingTimeout = 5 * time.Second

// Connection wraps the sqlx pool.
type Connection struct {
	DB *sqlx.DB
}

// NewConnection opens the pool and verifies it with a ping.
func NewConnection(cfg *infraconfig.DatabaseConfig) (*Connection, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return &Connection{DB: db}, nil
}

// Ping checks database connectivity.
func (c *Connection) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the pool.
func (c *Connection) Close() error {
	return c.DB.Close()
}
