package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/paypal-proxy/infra/logger"
)

// OrderContextStore keeps order staging data per (site, order) for a limited time.
type OrderContextStore struct {
	kv      KVStore
	catalog Catalog
	ttl     time.Duration
}

// NewOrderContextStore creates a store. catalog may be nil, in which case line
// items are stored as received.
func NewOrderContextStore(kv KVStore, catalog Catalog, ttl time.Duration) *OrderContextStore {
	if ttl <= 0 {
		ttl = DefaultEphemeralTTL
	}
	return &OrderContextStore{kv: kv, catalog: catalog, ttl: ttl}
}

func orderContextKey(siteID int64, orderID string) string {
	return fmt.Sprintf("%d:%s", siteID, orderID)
}

// Put enriches the line items and overwrites any existing entry.
func (s *OrderContextStore) Put(ctx context.Context, siteID int64, orderID string, oc *OrderContext) error {
	oc.OrderID = orderID
	oc.LineItems = s.enrich(ctx, siteID, oc.LineItems)

	data, err := json.Marshal(oc)
	if err != nil {
		return fmt.Errorf("failed to marshal order context: %w", err)
	}

	if err := s.kv.Set(ctx, NamespaceOrderContext, orderContextKey(siteID, orderID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to store order context: %w", err)
	}
	return nil
}

// Get returns the stored context. Missing or expired entries yield (nil, false, nil).
func (s *OrderContextStore) Get(ctx context.Context, siteID int64, orderID string) (*OrderContext, bool, error) {
	data, found, err := s.kv.Get(ctx, NamespaceOrderContext, orderContextKey(siteID, orderID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load order context: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	var oc OrderContext
	if err := json.Unmarshal(data, &oc); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal order context: %w", err)
	}
	return &oc, true, nil
}

// enrich swaps catalog metadata into mapped items. Prices are never touched.
func (s *OrderContextStore) enrich(ctx context.Context, siteID int64, items []LineItem) []LineItem {
	if s.catalog == nil || len(items) == 0 {
		return items
	}

	for i := range items {
		mappedID := items[i].MappedProductID
		if mappedID == 0 {
			continue
		}

		product, err := s.catalog.Product(ctx, mappedID)
		if err != nil {
			if !errors.Is(err, ErrProductNotFound) {
				logger.Error("Catalog lookup failed", err, logger.LogContext{
					SiteID: siteID,
					Fields: map[string]any{"mapped_product_id": mappedID},
				})
			} else {
				logger.Warn("Mapped product not found", logger.LogContext{
					SiteID: siteID,
					Fields: map[string]any{"mapped_product_id": mappedID},
				})
			}
			continue
		}

		items[i].Name = product.Name
		items[i].SKU = product.SKU
		items[i].Description = ""
		if product.ShortDescription != "" {
			items[i].Description = Truncate(StripTags(product.ShortDescription), ShortDescriptionLimit)
		}
		items[i].ActualProductID = mappedID

		logger.Debug("Mapped line item to catalog product", logger.LogContext{
			SiteID: siteID,
			Fields: map[string]any{
				"product_id":        items[i].ProductID,
				"mapped_product_id": mappedID,
				"name":              product.Name,
			},
		})
	}
	return items
}
