package proxy

import (
	"context"
	"encoding/json"
	"time"
)

// TxStatus is the settlement status of a ledger row.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
)

// Transaction correlates a storefront order with a provider order.
type Transaction struct {
	ID              int64           `json:"id"`
	SiteID          int64           `json:"site_id"`
	OrderID         string          `json:"order_id"`
	ProviderOrderID string          `json:"provider_order_id"`
	Amount          float64         `json:"amount"`
	Currency        string          `json:"currency"`
	Status          TxStatus        `json:"status"`
	TransactionData json.RawMessage `json:"transaction_data,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Ledger is the durable transaction table. Rows are unique per
// (site_id, order_id, provider_order_id).
type Ledger interface {
	// Upsert inserts a pending row or resets the existing one, returning its id.
	Upsert(ctx context.Context, siteID int64, orderID, providerOrderID string, amount float64, currency string, now time.Time) (int64, error)

	// Find returns ErrTransactionNotFound when no row matches.
	Find(ctx context.Context, providerOrderID, orderID string, siteID int64) (*Transaction, error)

	// FindLatestByOrder returns the newest row for a storefront order.
	FindLatestByOrder(ctx context.Context, siteID int64, orderID string) (*Transaction, error)

	// MarkCompleted completes one row. A nil payload keeps the stored one.
	MarkCompleted(ctx context.Context, id int64, payload json.RawMessage, now time.Time) error

	// MarkCompletedByProviderOrder completes every row of the site for the
	// provider order and reports how many rows changed.
	MarkCompletedByProviderOrder(ctx context.Context, siteID int64, providerOrderID string, payload json.RawMessage, now time.Time) (int64, error)
}
