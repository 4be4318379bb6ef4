package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mstgnz/paypal-proxy/proxy"
)

// SQLiteStore is the default Store, optimized for several processes sharing one file
type SQLiteStore struct {
	db    *sql.DB
	path  string
	now   Clock
	mu    sync.Mutex
	retry int
}

// NewSQLiteStore opens (and migrates) the database at dbPath. A nil clock uses time.Now.
func NewSQLiteStore(dbPath string, now Clock) (*SQLiteStore, error) {
	if now == nil {
		now = time.Now
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:    db,
		path:  dbPath,
		now:   now,
		retry: 4,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.optimizeForMultiProcess(); err != nil {
		log.Printf("Warning: Failed to apply optimizations: %v", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_key TEXT NOT NULL UNIQUE,
		api_secret TEXT NOT NULL,
		site_url TEXT NOT NULL DEFAULT '',
		site_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transaction_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site_id INTEGER NOT NULL,
		order_id TEXT NOT NULL,
		provider_order_id TEXT NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		transaction_data TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME,
		UNIQUE(site_id, order_id, provider_order_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_log_provider ON transaction_log(site_id, provider_order_id);

	CREATE TABLE IF NOT EXISTS kv_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);

	CREATE INDEX IF NOT EXISTS idx_kv_entries_expires ON kv_entries(expires_at);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		short_description TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) optimizeForMultiProcess() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA temp_store = memory;",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			log.Printf("Warning: Failed to execute %s: %v", pragma, err)
		}
	}

	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	return nil
}

// retryOperation retries operation on SQLITE_BUSY with exponential backoff (10ms, 20ms, 40ms...)
func (s *SQLiteStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= s.retry; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}

		lastErr = err
		if attempt < s.retry {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(10*(1<<attempt)) * time.Millisecond):
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", s.retry+1, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Driver returns "sqlite"
func (s *SQLiteStore) Driver() string {
	return "sqlite"
}

// Ping checks the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// FindActiveByAPIKey resolves an exact, active API key
func (s *SQLiteStore) FindActiveByAPIKey(ctx context.Context, apiKey string) (*proxy.Site, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key, api_secret, site_url, site_name, status, created_at
		FROM sites WHERE api_key = ? AND status = ?`, apiKey, proxy.SiteActive)

	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, proxy.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load site: %w", err)
	}
	return site, nil
}

// CreateSite inserts a site and returns its id
func (s *SQLiteStore) CreateSite(ctx context.Context, site *proxy.Site) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if site.Status == "" {
		site.Status = proxy.SiteActive
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.now().UTC()
	}

	var id int64
	err := s.retryOperation(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO sites (api_key, api_secret, site_url, site_name, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			site.APIKey, site.APISecret, site.SiteURL, site.SiteName, site.Status, site.CreatedAt)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create site: %w", err)
	}

	site.ID = id
	return id, nil
}

// ListSites returns every site ordered by id
func (s *SQLiteStore) ListSites(ctx context.Context) ([]proxy.Site, error) {
	rows, err := s.db.QueryContext(ctx, `
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
func (s *SQLiteStore) SetSiteStatus(ctx context.Context, id int64, status proxy.SiteStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := s.retryOperation(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE sites SET status = ? WHERE id = ?`, status, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update site status: %w", err)
	}
	if affected == 0 {
		return proxy.ErrSiteNotFound
	}
	return nil
}

// Upsert inserts a pending ledger row or resets the existing one for the same triple
func (s *SQLiteStore) Upsert(ctx context.Context, siteID int64, orderID, providerOrderID string, amount float64, currency string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.retryOperation(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO transaction_log (site_id, order_id, provider_order_id, amount, currency, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(site_id, order_id, provider_order_id) DO UPDATE SET
				amount = excluded.amount,
				currency = excluded.currency,
				status = excluded.status,
				created_at = excluded.created_at
			RETURNING id`,
			siteID, orderID, providerOrderID, amount, currency, proxy.TxPending, now.UTC()).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return id, nil
}

// Find returns the ledger row for the triple
func (s *SQLiteStore) Find(ctx context.Context, providerOrderID, orderID string, siteID int64) (*proxy.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, site_id, order_id, provider_order_id, amount, currency, status, transaction_data, created_at, completed_at
		FROM transaction_log WHERE provider_order_id = ? AND order_id = ? AND site_id = ?`,
		providerOrderID, orderID, siteID)
	return scanTransactionRow(row)
}

// FindLatestByOrder returns the newest ledger row of a storefront order
func (s *SQLiteStore) FindLatestByOrder(ctx context.Context, siteID int64, orderID string) (*proxy.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, site_id, order_id, provider_order_id, amount, currency, status, transaction_data, created_at, completed_at
		FROM transaction_log WHERE site_id = ? AND order_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, siteID, orderID)
	return scanTransactionRow(row)
}

// MarkCompleted completes one row; a nil payload keeps the stored one
func (s *SQLiteStore) MarkCompleted(ctx context.Context, id int64, payload json.RawMessage, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE transaction_log
			SET status = ?, completed_at = ?, transaction_data = COALESCE(?, transaction_data)
			WHERE id = ?`,
			proxy.TxCompleted, now.UTC(), nullableJSON(payload), id)
		return err
	})
}

// MarkCompletedByProviderOrder completes every row of the site for the provider order
func (s *SQLiteStore) MarkCompletedByProviderOrder(ctx context.Context, siteID int64, providerOrderID string, payload json.RawMessage, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := s.retryOperation(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE transaction_log
			SET status = ?, completed_at = ?, transaction_data = COALESCE(?, transaction_data)
			WHERE site_id = ? AND provider_order_id = ?`,
			proxy.TxCompleted, now.UTC(), nullableJSON(payload), siteID, providerOrderID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to complete transaction: %w", err)
	}
	return affected, nil
}

// Set stores value under namespace/key until ttl elapses, replacing any entry
func (s *SQLiteStore) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(ttl).UnixMilli()
	return s.retryOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO kv_entries (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
			namespace, key, value, expiresAt)
		return err
	})
}

// Get returns a live entry; expired entries are reported as missing
func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries WHERE namespace = ? AND key = ? AND expires_at > ?`,
		namespace, key, s.now().UnixMilli()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s entry: %w", namespace, err)
	}
	return value, true, nil
}

// PurgeExpired deletes expired TTL entries and reports how many were removed
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := s.retryOperation(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at <= ?`, s.now().UnixMilli())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// Product resolves a catalog product
func (s *SQLiteStore) Product(ctx context.Context, id int64) (*proxy.Product, error) {
	var p proxy.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, sku, short_description FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.SKU, &p.ShortDescription)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, proxy.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &p, nil
}

// UpsertProduct creates or replaces a catalog product
func (s *SQLiteStore) UpsertProduct(ctx context.Context, product proxy.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO products (id, name, sku, short_description) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, sku = excluded.sku, short_description = excluded.short_description`,
			product.ID, product.Name, product.SKU, product.ShortDescription)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*proxy.Site, error) {
	var site proxy.Site
	if err := row.Scan(&site.ID, &site.APIKey, &site.APISecret, &site.SiteURL, &site.SiteName, &site.Status, &site.CreatedAt); err != nil {
		return nil, err
	}
	return &site, nil
}

func scanTransactionRow(row rowScanner) (*proxy.Transaction, error) {
	var (
		tx          proxy.Transaction
		data        sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&tx.ID, &tx.SiteID, &tx.OrderID, &tx.ProviderOrderID, &tx.Amount, &tx.Currency,
		&tx.Status, &data, &tx.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, proxy.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	if data.Valid && data.String != "" {
		tx.TransactionData = json.RawMessage(data.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}
	return &tx, nil
}

func nullableJSON(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}
