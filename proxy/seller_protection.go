package proxy

import (
	"context"
	"fmt"
	"time"
)

// SellerProtectionUnknown is reported when no verdict was recorded.
const SellerProtectionUnknown = "UNKNOWN"

// SellerProtectionCache remembers the provider's seller protection verdict per
// provider order id.
type SellerProtectionCache struct {
	kv  KVStore
	ttl time.Duration
}

func NewSellerProtectionCache(kv KVStore, ttl time.Duration) *SellerProtectionCache {
	if ttl <= 0 {
		ttl = DefaultEphemeralTTL
	}
	return &SellerProtectionCache{kv: kv, ttl: ttl}
}

// Record stores status, replacing any earlier verdict.
func (c *SellerProtectionCache) Record(ctx context.Context, providerOrderID, status string) error {
	if err := c.kv.Set(ctx, NamespaceSellerProtection, providerOrderID, []byte(status), c.ttl); err != nil {
		return fmt.Errorf("failed to record seller protection: %w", err)
	}
	return nil
}

// Lookup returns the recorded verdict or SellerProtectionUnknown.
func (c *SellerProtectionCache) Lookup(ctx context.Context, providerOrderID string) (string, error) {
	data, found, err := c.kv.Get(ctx, NamespaceSellerProtection, providerOrderID)
	if err != nil {
		return "", fmt.Errorf("failed to load seller protection: %w", err)
	}
	if !found || len(data) == 0 {
		return SellerProtectionUnknown, nil
	}
	return string(data), nil
}
