package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Client owns one database connection pool.
type Client struct {
	DB *gorm.DB
}

// NewClient connects to Postgres using a libpq-style DSN. GORM messages go
// to log; a nil log discards them.
func NewClient(dsn string, log *zap.Logger) (*Client, error) {
	client, err := NewClientWithDialector(postgres.Open(dsn), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return client, nil
}

// NewClientWithDialector connects through any GORM dialector.
func NewClientWithDialector(dialector gorm.Dialector, log *zap.Logger) (*Client, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, err
	}
	return &Client{DB: db}, nil
}

// Ping verifies the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.DB.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (c *Client) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
