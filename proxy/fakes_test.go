package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mstgnz/paypal-proxy/gateway"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memSites struct {
	sites []Site
}

func (m *memSites) FindActiveByAPIKey(_ context.Context, apiKey string) (*Site, error) {
	for i := range m.sites {
		if m.sites[i].APIKey == apiKey && m.sites[i].Status == SiteActive {
			s := m.sites[i]
			return &s, nil
		}
	}
	return nil, ErrSiteNotFound
}

type memKV struct {
	mu      sync.Mutex
	clock   *testClock
	entries map[string]memEntry
}

type memEntry struct {
	value   []byte
	expires time.Time
}

func newMemKV(clock *testClock) *memKV {
	return &memKV{clock: clock, entries: map[string]memEntry{}}
}

func (m *memKV) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[namespace+"/"+key] = memEntry{value: append([]byte(nil), value...), expires: m.clock.Now().Add(ttl)}
	return nil
}

func (m *memKV) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[namespace+"/"+key]
	if !ok || !m.clock.Now().Before(e.expires) {
		return nil, false, nil
	}
	return e.value, true, nil
}

type memLedger struct {
	mu   sync.Mutex
	rows []Transaction
}

func (m *memLedger) Upsert(_ context.Context, siteID int64, orderID, providerOrderID string, amount float64, currency string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		r := &m.rows[i]
		if r.SiteID == siteID && r.OrderID == orderID && r.ProviderOrderID == providerOrderID {
			r.Amount, r.Currency, r.Status, r.CreatedAt = amount, currency, TxPending, now
			return r.ID, nil
		}
	}
	id := int64(len(m.rows) + 1)
	m.rows = append(m.rows, Transaction{
		ID: id, SiteID: siteID, OrderID: orderID, ProviderOrderID: providerOrderID,
		Amount: amount, Currency: currency, Status: TxPending, CreatedAt: now,
	})
	return id, nil
}

func (m *memLedger) Find(_ context.Context, providerOrderID, orderID string, siteID int64) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SiteID == siteID && r.OrderID == orderID && r.ProviderOrderID == providerOrderID {
			return &r, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *memLedger) FindLatestByOrder(_ context.Context, siteID int64, orderID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if r := m.rows[i]; r.SiteID == siteID && r.OrderID == orderID {
			return &r, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *memLedger) MarkCompleted(_ context.Context, id int64, payload json.RawMessage, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.complete(&m.rows[i], payload, now)
		}
	}
	return nil
}

func (m *memLedger) MarkCompletedByProviderOrder(_ context.Context, siteID int64, providerOrderID string, payload json.RawMessage, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].SiteID == siteID && m.rows[i].ProviderOrderID == providerOrderID {
			m.complete(&m.rows[i], payload, now)
			n++
		}
	}
	return n, nil
}

func (m *memLedger) complete(r *Transaction, payload json.RawMessage, now time.Time) {
	r.Status = TxCompleted
	t := now
	r.CompletedAt = &t
	if payload != nil {
		r.TransactionData = payload
	}
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memCatalog map[int64]*Product

func (c memCatalog) Product(_ context.Context, id int64) (*Product, error) {
	if p, ok := c[id]; ok {
		return p, nil
	}
	return nil, ErrProductNotFound
}

// fakeGateway issues PPO-<n> ids and completes orders on capture.
type fakeGateway struct {
	mu          sync.Mutex
	seq         int
	orders      map[string]string // provider id -> status
	lastRequest gateway.OrderRequest
	protection  string
	fixedID     string
	createErr   error
	webhook     *gateway.WebhookEvent
	webhookErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: map[string]string{}, protection: "ELIGIBLE"}
}

func (g *fakeGateway) Name() string        { return "paypal" }
func (g *fakeGateway) ClientID() string    { return "client-id" }
func (g *fakeGateway) Environment() string { return "sandbox" }

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := "PPO-" + strconv.Itoa(g.seq)
	if g.fixedID != "" {
		id = g.fixedID
	}
	g.orders[id] = gateway.StatusCreated
	g.lastRequest = req
	return &gateway.Order{
		ID:     id,
		Status: gateway.StatusCreated,
		Links:  []gateway.Link{{Href: "https://paypal.test/approve/" + id, Rel: "approve", Method: http.MethodGet}},
	}, nil
}

func (g *fakeGateway) CaptureOrder(_ context.Context, id string) (*gateway.Capture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.orders[id]; !ok {
		return nil, &gateway.APIError{Gateway: "paypal", StatusCode: 404, Name: "RESOURCE_NOT_FOUND", Message: "order not found"}
	}
	g.orders[id] = gateway.StatusCompleted
	return &gateway.Capture{
		OrderID:          id,
		Status:           gateway.StatusCompleted,
		CaptureID:        "CAP-" + id,
		SellerProtection: g.protection,
		Raw:              json.RawMessage(`{"id":"` + id + `","status":"COMPLETED"}`),
	}, nil
}

func (g *fakeGateway) GetOrder(_ context.Context, id string) (*gateway.OrderDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.orders[id]
	if !ok {
		return nil, &gateway.APIError{Gateway: "paypal", StatusCode: 404, Name: "RESOURCE_NOT_FOUND", Message: "order not found"}
	}
	d := &gateway.OrderDetails{ID: id, Status: status}
	if status == gateway.StatusCompleted {
		d.CaptureID = "CAP-" + id
		d.PayerEmail = "buyer@example.com"
	}
	return d, nil
}

// complete marks an order completed at the provider without a capture call.
func (g *fakeGateway) complete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[id] = gateway.StatusCompleted
}

func (g *fakeGateway) ParseWebhookEvent(_ context.Context, _ []byte, _ http.Header) (*gateway.WebhookEvent, error) {
	if g.webhookErr != nil {
		return nil, g.webhookErr
	}
	if g.webhook != nil {
		return g.webhook, nil
	}
	return &gateway.WebhookEvent{ID: "WH-1", Type: "PAYMENT.CAPTURE.COMPLETED"}, nil
}
