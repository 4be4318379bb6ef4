package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mstgnz/paypal-proxy/infra/config"
	"github.com/mstgnz/paypal-proxy/proxy"
)

// Store is everything the proxy persists: sites, the transaction ledger,
// TTL entries and the product catalog.
type Store interface {
	proxy.SiteAdmin
	proxy.Ledger
	proxy.KVStore
	proxy.Catalog

	UpsertProduct(ctx context.Context, product proxy.Product) error
	PurgeExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// Clock returns the current time. Tests replace it to move across TTL boundaries.
type Clock func() time.Time

// Open connects the configured storage driver, retrying transient failures
func Open(ctx context.Context, cfg *config.AppConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	for attempt := 1; attempt <= 5; attempt++ {
		switch cfg.StorageDriver {
		case "postgres", "postgresql":
			store, err = NewPostgresStore(ctx, cfg.DatabaseURL, nil)
		case "sqlite", "sqlite3", "":
			sqlite, err := NewSQLiteStore(cfg.SQLitePath, nil)
			if err != nil {
				return nil, err
			}
			return sqlite, nil
		default:
			return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
		}
		if err == nil {
			return store, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("storage connection cancelled: %w", err)
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to %s after 5 attempts: %w", cfg.StorageDriver, err)
}
