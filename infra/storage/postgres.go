package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mstgnz/paypal-proxy/proxy"
)

// PostgresStore is the Store used when several proxy replicas share one database
type PostgresStore struct {
	db  *pgxpool.Pool
	now Clock
}

// NewPostgresStore connects, pings and migrates the database. A nil clock uses time.Now.
func NewPostgresStore(ctx context.Context, connString string, now Clock) (*PostgresStore, error) {
	if now == nil {
		now = time.Now
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	config.MaxConns = 25
	config.MaxConnIdleTime = 2 * time.Minute
	config.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool, now: now}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS sites (
		id BIGSERIAL PRIMARY KEY,
		api_key TEXT NOT NULL UNIQUE,
		api_secret TEXT NOT NULL,
		site_url TEXT NOT NULL DEFAULT '',
		site_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS transaction_log (
		id BIGSERIAL PRIMARY KEY,
		site_id BIGINT NOT NULL,
		order_id TEXT NOT NULL,
		provider_order_id TEXT NOT NULL,
		amount NUMERIC(14, 2) NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		transaction_data JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		UNIQUE (site_id, order_id, provider_order_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_log_provider ON transaction_log (site_id, provider_order_id);

	CREATE TABLE IF NOT EXISTS kv_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BYTEA NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (namespace, key)
	);

	CREATE INDEX IF NOT EXISTS idx_kv_entries_expires ON kv_entries (expires_at);

	CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		short_description TEXT NOT NULL DEFAULT ''
	);
	`)
	return err
}

// Driver returns "postgres"
func (s *PostgresStore) Driver() string {
	return "postgres"
}

// Ping checks the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// FindActiveByAPIKey resolves an exact, active API key
func (s *PostgresStore) FindActiveByAPIKey(ctx context.Context, apiKey string) (*proxy.Site, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, api_key, api_secret, site_url, site_name, status, created_at
		FROM sites WHERE api_key = $1 AND status = $2`, apiKey, string(proxy.SiteActive))

	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, proxy.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load site: %w", err)
	}
	return site, nil
}

// CreateSite inserts a site and returns its id
func (s *PostgresStore) CreateSite(ctx context.Context, site *proxy.Site) (int64, error) {
	if site.Status == "" {
		site.Status = proxy.SiteActive
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.now().UTC()
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO sites (api_key, api_secret, site_url, site_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		site.APIKey, site.APISecret, site.SiteURL, site.SiteName, string(site.Status), site.CreatedAt).Scan(&site.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to create site: %w", err)
	}
	return site.ID, nil
}

// ListSites returns every site ordered by id
func (s *PostgresStore) ListSites(ctx context.Context) ([]proxy.Site, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, api_key, api_secret, site_url, site_name, status, created_at
		FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []proxy.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

// SetSiteStatus activates or deactivates a site
func (s *PostgresStore) SetSiteStatus(ctx context.Context, id int64, status proxy.SiteStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE sites SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update site status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return proxy.ErrSiteNotFound
	}
	return nil
}

// Upsert inserts a pending ledger row or resets the existing one for the same triple
func (s *PostgresStore) Upsert(ctx context.Context, siteID int64, orderID, providerOrderID string, amount float64, currency string, now time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO transaction_log (site_id, order_id, provider_order_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (site_id, order_id, provider_order_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at
		RETURNING id`,
		siteID, orderID, providerOrderID, amount, currency, string(proxy.TxPending), now.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return id, nil
}

const pgTransactionColumns = `id, site_id, order_id, provider_order_id, amount::float8, currency, status, transaction_data, created_at, completed_at`

// Find returns the ledger row for the triple
func (s *PostgresStore) Find(ctx context.Context, providerOrderID, orderID string, siteID int64) (*proxy.Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgTransactionColumns+`
		FROM transaction_log WHERE provider_order_id = $1 AND order_id = $2 AND site_id = $3`,
		providerOrderID, orderID, siteID)
	return scanPgTransaction(row)
}

// FindLatestByOrder returns the newest ledger row of a storefront order
func (s *PostgresStore) FindLatestByOrder(ctx context.Context, siteID int64, orderID string) (*proxy.Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgTransactionColumns+`
		FROM transaction_log WHERE site_id = $1 AND order_id = $2
		ORDER BY created_at DESC, id DESC LIMIT 1`, siteID, orderID)
	return scanPgTransaction(row)
}

// MarkCompleted completes one row; a nil payload keeps the stored one
func (s *PostgresStore) MarkCompleted(ctx context.Context, id int64, payload json.RawMessage, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE transaction_log
		SET status = $1, completed_at = $2, transaction_data = COALESCE($3::jsonb, transaction_data)
		WHERE id = $4`,
		string(proxy.TxCompleted), now.UTC(), nullableJSON(payload), id)
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	return nil
}

// MarkCompletedByProviderOrder completes every row of the site for the provider order
func (s *PostgresStore) MarkCompletedByProviderOrder(ctx context.Context, siteID int64, providerOrderID string, payload json.RawMessage, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE transaction_log
		SET status = $1, completed_at = $2, transaction_data = COALESCE($3::jsonb, transaction_data)
		WHERE site_id = $4 AND provider_order_id = $5`,
		string(proxy.TxCompleted), now.UTC(), nullableJSON(payload), siteID, providerOrderID)
	if err != nil {
		return 0, fmt.Errorf("failed to complete transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Set stores value under namespace/key until ttl elapses, replacing any entry
func (s *PostgresStore) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO kv_entries (namespace, key, value, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		namespace, key, value, s.now().Add(ttl).UTC())
	if err != nil {
		return fmt.Errorf("failed to write %s entry: %w", namespace, err)
	}
	return nil
}

// Get returns a live entry; expired entries are reported as missing
func (s *PostgresStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `
		SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2 AND expires_at > $3`,
		namespace, key, s.now().UTC()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s entry: %w", namespace, err)
	}
	return value, true, nil
}

// PurgeExpired deletes expired TTL entries and reports how many were removed
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Product resolves a catalog product
func (s *PostgresStore) Product(ctx context.Context, id int64) (*proxy.Product, error) {
	var p proxy.Product
	err := s.db.QueryRow(ctx, `SELECT id, name, sku, short_description FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.SKU, &p.ShortDescription)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, proxy.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &p, nil
}

// UpsertProduct creates or replaces a catalog product
func (s *PostgresStore) UpsertProduct(ctx context.Context, product proxy.Product) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO products (id, name, sku, short_description) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sku = EXCLUDED.sku, short_description = EXCLUDED.short_description`,
		product.ID, product.Name, product.SKU, product.ShortDescription)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func scanPgTransaction(row pgx.Row) (*proxy.Transaction, error) {
	var (
		tx     proxy.Transaction
		status string
		data   []byte
	)
	err := row.Scan(&tx.ID, &tx.SiteID, &tx.OrderID, &tx.ProviderOrderID, &tx.Amount, &tx.Currency,
		&status, &data, &tx.CreatedAt, &tx.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, proxy.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	tx.Status = proxy.TxStatus(status)
	if len(data) > 0 {
		tx.TransactionData = json.RawMessage(data)
	}
	return &tx, nil
}
