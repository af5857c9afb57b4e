package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/manja7304/stock-pipeline/internal/config"
	"github.com/manja7304/stock-pipeline/internal/quote"
)

// Store pairs a connection with the persister that writes through it.
// Closing the store releases the connection.
type Store struct {
	client    *Client
	persister *Persister
}

// Open connects to the configured database and checks that it is reachable.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	client, err := NewClient(cfg.DSN(), logger)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("postgres not reachable: %w", err)
	}
	return NewStore(client, cfg.Schema, cfg.Table, cfg.BatchSize, logger), nil
}

// NewStore wraps an existing client.
func NewStore(client *Client, schema, table string, batchSize int, logger *zap.Logger) *Store {
	return &Store{
		client:    client,
		persister: NewPersister(client.DB, schema, table, batchSize, logger),
	}
}

func (s *Store) Persist(ctx context.Context, quotes []quote.Quote) (int, error) {
	return s.persister.Persist(ctx, quotes)
}

func (s *Store) Close() error {
	return s.client.Close()
}
