package proxy

import (
	"context"
	"time"
)

// Key-value namespaces used by the proxy.
const (
	NamespaceOrderContext     = "order_context"
	NamespaceSellerProtection = "seller_protection"
)

// DefaultEphemeralTTL is how long order context and seller protection records live.
const DefaultEphemeralTTL = 24 * time.Hour

// KVStore is a key-value store with per-entry expiry. Set overwrites; Get
// reports found=false for missing or expired entries without an error.
type KVStore interface {
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
}
