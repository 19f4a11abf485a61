package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CedrosPay/cardcheckout/internal/config"
)

// ErrNotFound is returned when a slot does not exist (or has expired).
var ErrNotFound = errors.New("storage: not found")

// KV is a keyed slot store. Values are opaque byte strings, usually JSON.
//
// The saved-card cache is deliberately non-durable: callers must tolerate
// lost or stale slots.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewKV creates a KV backend from the storage configuration.
func NewKV(cfg config.StorageConfig) (KV, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryKV(cfg.SessionTTL.Duration, cfg.CleanupInterval.Duration), nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file backend requires file_path")
		}
		return NewFileKV(cfg.FilePath)
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		return NewPostgresKV(cfg.PostgresURL, cfg.PostgresTable, cfg.PostgresPool)
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		return NewMongoKV(cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.MongoDBCollection)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// DefaultQueryTimeout bounds database round trips when the caller set no deadline.
const DefaultQueryTimeout = 5 * time.Second

// withQueryTimeout adds DefaultQueryTimeout unless ctx already has a deadline.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}
