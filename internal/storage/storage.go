// Package storage holds the durable media for the event collection. Every
// backend stores the whole collection as one unit and replaces it atomically;
// there are no secondary indices.
package storage

import (
	"context"
	"fmt"

	"eventcal/internal/config"
	"eventcal/internal/model"
)

// Backend is an opaque durable key-space holding one event collection.
type Backend interface {
	// Load returns the stored collection. A collection that was never written
	// is empty, not an error.
	Load(ctx context.Context) ([]model.Event, error)
	// Replace atomically swaps the stored collection for events.
	Replace(ctx context.Context, events []model.Event) error
	Close() error
}

// Open constructs the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverFile, "":
		return NewFileBackend(cfg.Path)
	case config.DriverRedis:
		return NewRedisBackend(ctx, cfg.Redis)
	case config.DriverPostgres:
		return NewPostgresBackend(ctx, cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
