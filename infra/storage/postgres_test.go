package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paypal-proxy/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable database: TEST_DATABASE_URL=postgres://...
func newTestPostgresStore(t *testing.T, clock *fakeClock) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	var now Clock
	if clock != nil {
		now = clock.Now
	}
	store, err := NewPostgresStore(context.Background(), dsn, now)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore_SitesAndLedger(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgresStore(t, nil)

	apiKey := "key_" + uuid.NewString()
	id, err := store.CreateSite(ctx, &proxy.Site{APIKey: apiKey, APISecret: "secret"})
	require.NoError(t, err)

	site, err := store.FindActiveByAPIKey(ctx, apiKey)
	require.NoError(t, err)
	assert.Equal(t, id, site.ID)

	orderID := "ORD-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	txID1, err := store.Upsert(ctx, id, orderID, "PPO-1", 19.99, "USD", now)
	require.NoError(t, err)
	txID2, err := store.Upsert(ctx, id, orderID, "PPO-1", 5.00, "EUR", now)
	require.NoError(t, err)
	assert.Equal(t, txID1, txID2)

	tx, err := store.Find(ctx, "PPO-1", orderID, id)
	require.NoError(t, err)
	assert.Equal(t, 5.00, tx.Amount)
	assert.Equal(t, "EUR", tx.Currency)

	n, err := store.MarkCompletedByProviderOrder(ctx, id, "PPO-1", []byte(`{"ok":true}`), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tx, err = store.FindLatestByOrder(ctx, id, orderID)
	require.NoError(t, err)
	assert.Equal(t, proxy.TxCompleted, tx.Status)
	assert.JSONEq(t, `{"ok":true}`, string(tx.TransactionData))

	_, err = store.Find(ctx, "PPO-missing", orderID, id)
	assert.ErrorIs(t, err, proxy.ErrTransactionNotFound)

	require.NoError(t, store.SetSiteStatus(ctx, id, proxy.SiteInactive))
	_, err = store.FindActiveByAPIKey(ctx, apiKey)
	assert.ErrorIs(t, err, proxy.ErrSiteNotFound)
}

func TestPostgresStore_KV(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newTestPostgresStore(t, clock)

	key := uuid.NewString()
	require.NoError(t, store.Set(ctx, proxy.NamespaceSellerProtection, key, []byte("ELIGIBLE"), time.Hour))

	value, found, err := store.Get(ctx, proxy.NamespaceSellerProtection, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ELIGIBLE", string(value))

	clock.Advance(time.Hour)
	_, found, err = store.Get(ctx, proxy.NamespaceSellerProtection, key)
	require.NoError(t, err)
	assert.False(t, found)
}
