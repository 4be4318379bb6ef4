package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/mstgnz/paypal-proxy/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc     *Service
	clock   *testClock
	ledger  *memLedger
	kv      *memKV
	gateway *fakeGateway
	site    Site
}

func newServiceFixture(t *testing.T, requireSignatures bool) *serviceFixture {
	t.Helper()
	clock := newTestClock()
	f := &serviceFixture{
		clock:   clock,
		ledger:  &memLedger{},
		kv:      newMemKV(clock),
		gateway: newFakeGateway(),
		site: Site{
			ID: 7, APIKey: "key-7", APISecret: "secret-7",
			SiteURL: "https://shop.example", SiteName: "Example Shop", Status: SiteActive,
		},
	}
	sites := &memSites{sites: []Site{
		f.site,
		{ID: 8, APIKey: "key-8", APISecret: "secret-8", Status: SiteInactive},
	}}

	svc, err := NewService(Deps{
		Sites:             sites,
		Ledger:            f.ledger,
		KV:                f.kv,
		Catalog:           memCatalog{42: {ID: 42, Name: "Proxy Mug", SKU: "PM-42"}},
		Gateway:           f.gateway,
		RequireSignatures: requireSignatures,
		Now:               clock.Now,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// creds signs canonical (built with the site's api key) at the current fixture time.
func (f *serviceFixture) creds(canonical func(ts, apiKey string) string) Credentials {
	ts := strconv.FormatInt(f.clock.Now().Unix(), 10)
	return Credentials{
		APIKey:    FlexString(f.site.APIKey),
		Timestamp: FlexString(ts),
		Hash:      FlexString(Sign(f.site.APISecret, canonical(ts, f.site.APIKey))),
	}
}

func (f *serviceFixture) apiKeyOnly() Credentials {
	return Credentials{APIKey: FlexString(f.site.APIKey)}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), err.Error())
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	clock := newTestClock()
	_, err := NewService(Deps{Ledger: &memLedger{}, KV: newMemKV(clock), Gateway: newFakeGateway()})
	assert.Error(t, err)
	_, err = NewService(Deps{Sites: &memSites{}, KV: newMemKV(clock), Gateway: newFakeGateway()})
	assert.Error(t, err)
	_, err = NewService(Deps{Sites: &memSites{}, Ledger: &memLedger{}, Gateway: newFakeGateway()})
	assert.Error(t, err)
	_, err = NewService(Deps{Sites: &memSites{}, Ledger: &memLedger{}, KV: newMemKV(clock)})
	assert.Error(t, err)
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	registered, err := f.svc.RegisterOrder(ctx, RegisterOrderRequest{
		Credentials: f.apiKeyOnly(),
		OrderData:   b64(`{"order_id":"ORD-1","order_total":"19.99","currency":"USD"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", registered.OrderID)

	created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{
		Credentials: f.creds(func(ts, k string) string { return CanonicalCreateOrder(ts, "ORD-1", "19.99", k) }),
		OrderID:     "ORD-1",
		Amount:      "19.99",
		Currency:    "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "PPO-1", created.ProviderOrderID)
	assert.Equal(t, TxPending, created.LedgerStatus)
	assert.Equal(t, gateway.StatusCreated, created.Status)
	assert.NotEmpty(t, created.Links)

	state, err := f.svc.OrderState(ctx, OrderStateRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, StateOrderCreated, state.State)

	captured, err := f.svc.CapturePayment(ctx, CaptureRequest{
		Credentials:     f.creds(func(ts, k string) string { return CanonicalCapture(ts, "PPO-1", k) }),
		ProviderOrderID: "PPO-1",
	})
	require.NoError(t, err)
	assert.Equal(t, TxCompleted, captured.Status)
	assert.NotEmpty(t, captured.TransactionID)
	assert.Equal(t, "ELIGIBLE", captured.SellerProtection)

	verified, err := f.svc.VerifyPayment(ctx, VerifyRequest{
		Credentials:     f.apiKeyOnly(),
		ProviderOrderID: "PPO-1",
		OrderID:         "ORD-1",
	})
	require.NoError(t, err)
	assert.Equal(t, TxCompleted, verified.Status)
	assert.Equal(t, captured.TransactionID, verified.TransactionID)
	assert.Equal(t, "buyer@example.com", verified.PayerEmail)
	assert.Equal(t, "paypal", verified.PaymentMethod)

	tx, err := f.ledger.Find(ctx, "PPO-1", "ORD-1", f.site.ID)
	require.NoError(t, err)
	assert.Equal(t, TxCompleted, tx.Status)
	assert.NotNil(t, tx.CompletedAt)
	assert.JSONEq(t, `{"id":"PPO-1","status":"COMPLETED"}`, string(tx.TransactionData))

	protection, err := f.svc.SellerProtection(ctx, SellerProtectionRequest{
		Credentials:     f.creds(func(ts, k string) string { return CanonicalSellerProtection(ts, "PPO-1", k) }),
		ProviderOrderID: "PPO-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ELIGIBLE", protection.SellerProtection)

	state, err = f.svc.OrderState(ctx, OrderStateRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, StateCaptured, state.State)
	assert.Equal(t, "PPO-1", state.ProviderOrderID)
}

func TestService_Authentication(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)
	req := func(c Credentials) CaptureRequest {
		return CaptureRequest{Credentials: c, ProviderOrderID: "PPO-1"}
	}
	f.gateway.orders["PPO-1"] = gateway.StatusApproved

	tests := []struct {
		name  string
		creds Credentials
		kind  ErrorKind
	}{
		{"missing api key", Credentials{}, KindMissingParameter},
		{"unknown api key", Credentials{APIKey: "nope"}, KindInvalidAPIKey},
		{"inactive site", Credentials{APIKey: "key-8"}, KindInvalidAPIKey},
		{"api key is case sensitive", Credentials{APIKey: "KEY-7"}, KindInvalidAPIKey},
		{"api key is not trimmed", Credentials{APIKey: " key-7"}, KindInvalidAPIKey},
		{"timestamp without hash", Credentials{APIKey: "key-7", Timestamp: "1700000000"}, KindMissingParameter},
		{"hash without timestamp", Credentials{APIKey: "key-7", Hash: "abc"}, KindMissingParameter},
		{"wrong hash", Credentials{APIKey: "key-7", Timestamp: "1700000000", Hash: "abc"}, KindInvalidSignature},
		{"stale timestamp", Credentials{APIKey: "key-7", Timestamp: "1600000000", Hash: "abc"}, KindExpiredTimestamp},
		{"signature over other order", f.creds(func(ts, k string) string { return CanonicalCapture(ts, "PPO-2", k) }), KindInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CapturePayment(ctx, req(tt.creds))
			requireKind(t, err, tt.kind)
		})
	}

	t.Run("unsigned request is accepted", func(t *testing.T) {
		_, err := f.svc.CapturePayment(ctx, req(f.apiKeyOnly()))
		assert.NoError(t, err)
	})
}

func TestService_RequireSignatures(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, true)

	_, err := f.svc.TestConnection(ctx, TestConnectionRequest{Credentials: f.apiKeyOnly()})
	requireKind(t, err, KindMissingParameter)

	res, err := f.svc.TestConnection(ctx, TestConnectionRequest{
		Credentials: f.creds(CanonicalTestConnection),
		SiteURL:     b64("https://shop.example"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Example Shop", res.SiteName)
	assert.Equal(t, int64(7), res.SiteID)

	_, err = f.svc.VerifyPayment(ctx, VerifyRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: "PPO-1", OrderID: "ORD-1"})
	requireKind(t, err, KindMissingParameter)
}

func TestService_TestConnection_URLMismatchIsNotFatal(t *testing.T) {
	f := newServiceFixture(t, false)
	res, err := f.svc.TestConnection(context.Background(), TestConnectionRequest{
		Credentials: f.apiKeyOnly(),
		SiteURL:     b64("https://moved.example"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Example Shop", res.SiteName)

	_, err = f.svc.TestConnection(context.Background(), TestConnectionRequest{
		Credentials: f.apiKeyOnly(),
		SiteURL:     "%%%not-base64",
	})
	requireKind(t, err, KindInvalidPayloadFormat)
}

func TestService_PaymentButtons(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	_, err := f.svc.PaymentButtons(ctx, ButtonsRequest{Credentials: f.apiKeyOnly(), Amount: "10.00"})
	requireKind(t, err, KindMissingParameter)

	// the buttons signature covers the timestamp alone
	_, err = f.svc.PaymentButtons(ctx, ButtonsRequest{
		Credentials: f.creds(func(ts, k string) string { return ts + k }),
		Amount:      "10.00",
	})
	requireKind(t, err, KindInvalidSignature)

	cfg, err := f.svc.PaymentButtons(ctx, ButtonsRequest{
		Credentials: f.creds(func(ts, _ string) string { return CanonicalButtons(ts) }),
		Amount:      "10.00",
		CallbackURL: b64("https://shop.example/callback"),
		SiteURL:     b64("https://shop.example"),
	})
	require.NoError(t, err)
	assert.Equal(t, "client-id", cfg.ClientID)
	assert.Equal(t, "sandbox", cfg.Environment)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "10.00", cfg.Amount)
	assert.Equal(t, "https://shop.example/callback", cfg.CallbackURL)
	assert.Equal(t, "https://shop.example", cfg.SiteURL)
}

func TestService_RegisterOrder_Validation(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	tests := []struct {
		name      string
		orderData string
		kind      ErrorKind
	}{
		{"missing", "", KindMissingParameter},
		{"not base64", "***", KindInvalidPayloadFormat},
		{"not json", b64("hello"), KindInvalidPayloadFormat},
		{"json array", b64(`[1,2]`), KindInvalidPayloadFormat},
		{"empty object", b64(`{}`), KindInvalidPayloadFormat},
		{"missing order id", b64(`{"order_total":"10","currency":"USD"}`), KindMissingParameter},
		{"empty total", b64(`{"order_id":"1","order_total":"","currency":"USD"}`), KindMissingParameter},
		{"zero total", b64(`{"order_id":"1","order_total":0,"currency":"USD"}`), KindMissingParameter},
		{"missing currency", b64(`{"order_id":"1","order_total":"10"}`), KindMissingParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RegisterOrder(ctx, RegisterOrderRequest{Credentials: f.apiKeyOnly(), OrderData: tt.orderData})
			requireKind(t, err, tt.kind)
		})
	}

	t.Run("numeric order id and enrichment", func(t *testing.T) {
		res, err := f.svc.RegisterOrder(ctx, RegisterOrderRequest{
			Credentials: f.apiKeyOnly(),
			OrderData: b64(`{"order_id":1234,"order_total":25,"currency":"eur","site_url":"https://elsewhere.example",
				"line_items":[{"product_id":1,"mapped_product_id":42,"name":"Mug","quantity":1,"unit_price":"25.00"}]}`),
		})
		require.NoError(t, err)
		assert.Equal(t, "1234", res.OrderID)

		oc, found, err := f.svc.contexts.Get(ctx, f.site.ID, "1234")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "EUR", oc.Currency)
		require.Len(t, oc.LineItems, 1)
		assert.Equal(t, "Proxy Mug", oc.LineItems[0].Name)
		assert.Equal(t, Amount(25), oc.LineItems[0].UnitPrice)
		assert.Equal(t, f.clock.Now().Unix(), oc.StoredAt.Unix())
	})
}

func TestService_RegisterOrder_LooseTypes(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	tests := []struct {
		name      string
		orderData string
		check     func(t *testing.T, oc *OrderContext)
	}{
		{
			name:      "string quantity",
			orderData: `{"order_id":"ORD-1","order_total":"19.99","currency":"USD","line_items":[{"name":"Mug","quantity":"2","unit_price":"9.99"}]}`,
			check: func(t *testing.T, oc *OrderContext) {
				require.Len(t, oc.LineItems, 1)
				assert.Equal(t, 2, oc.LineItems[0].Quantity)
			},
		},
		{
			name:      "string product id",
			orderData: `{"order_id":"ORD-2","order_total":"5","currency":"USD","line_items":[{"product_id":"12","name":"Cap","quantity":1,"unit_price":5}]}`,
			check: func(t *testing.T, oc *OrderContext) {
				require.Len(t, oc.LineItems, 1)
				assert.Equal(t, int64(12), oc.LineItems[0].ProductID)
			},
		},
		{
			name:      "string mapped product id",
			orderData: `{"order_id":"ORD-3","order_total":"25","currency":"USD","line_items":[{"mapped_product_id":"42","name":"Mug","quantity":"1","unit_price":"25"}]}`,
			check: func(t *testing.T, oc *OrderContext) {
				require.Len(t, oc.LineItems, 1)
				assert.Equal(t, int64(42), oc.LineItems[0].ActualProductID)
				assert.Equal(t, "Proxy Mug", oc.LineItems[0].Name)
			},
		},
		{
			name:      "numeric prices include tax",
			orderData: `{"order_id":"ORD-4","order_total":"10","currency":"USD","prices_include_tax":1}`,
			check: func(t *testing.T, oc *OrderContext) {
				require.NotNil(t, oc.PricesIncludeTax)
				assert.True(t, *oc.PricesIncludeTax)
			},
		},
		{
			name:      "string prices include tax",
			orderData: `{"order_id":"ORD-5","order_total":"10","currency":"USD","prices_include_tax":"no"}`,
			check: func(t *testing.T, oc *OrderContext) {
				require.NotNil(t, oc.PricesIncludeTax)
				assert.False(t, *oc.PricesIncludeTax)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.RegisterOrder(ctx, RegisterOrderRequest{Credentials: f.apiKeyOnly(), OrderData: b64(tt.orderData)})
			require.NoError(t, err)

			oc, found, err := f.svc.contexts.Get(ctx, f.site.ID, res.OrderID)
			require.NoError(t, err)
			require.True(t, found)
			tt.check(t, oc)
		})
	}

	t.Run("non numeric quantity", func(t *testing.T) {
		_, err := f.svc.RegisterOrder(ctx, RegisterOrderRequest{
			Credentials: f.apiKeyOnly(),
			OrderData:   b64(`{"order_id":"ORD-6","order_total":"10","currency":"USD","line_items":[{"name":"Mug","quantity":"two"}]}`),
		})
		requireKind(t, err, KindInvalidPayloadFormat)
	})
}

func TestService_StoreOrderData_LooseTypes(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	var req StoreOrderDataRequest
	require.NoError(t, json.Unmarshal([]byte(`{"api_key":"key-7","order_id":"ORD-7","prices_include_tax":"1",
		"line_items":[{"product_id":"3","name":"Hat","quantity":"4","unit_price":"2.50"}]}`), &req))

	res, err := f.svc.StoreOrderData(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Stored)

	oc, found, err := f.svc.contexts.Get(ctx, f.site.ID, "ORD-7")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, oc.PricesIncludeTax)
	assert.True(t, *oc.PricesIncludeTax)
	require.Len(t, oc.LineItems, 1)
	assert.Equal(t, int64(3), oc.LineItems[0].ProductID)
	assert.Equal(t, 4, oc.LineItems[0].Quantity)
}

func TestService_StoreOrderData(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	_, err := f.svc.StoreOrderData(ctx, StoreOrderDataRequest{Credentials: f.apiKeyOnly()})
	requireKind(t, err, KindMissingParameter)

	res, err := f.svc.StoreOrderData(ctx, StoreOrderDataRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-9"})
	require.NoError(t, err)
	assert.False(t, res.Stored)
	_, found, _ := f.svc.contexts.Get(ctx, f.site.ID, "ORD-9")
	assert.False(t, found)

	note := "<b>Leave</b> at the door"
	shipping := Amount(4.99)
	res, err = f.svc.StoreOrderData(ctx, StoreOrderDataRequest{
		Credentials:     f.creds(func(ts, k string) string { return CanonicalStoreOrderData(ts, "ORD-9", k) }),
		OrderID:         "ORD-9",
		TestData:        &note,
		ShippingAmount:  &shipping,
		ShippingAddress: &Address{FirstName: "Jane", LastName: "Doe", Address1: "1 Main St", City: "Austin", Postcode: "78701", Country: "us"},
		BillingAddress:  &Address{Email: "jane@example.com"},
		LineItems:       []LineItem{{Name: "Shirt", Quantity: 2, UnitPrice: 10, TaxAmount: 1}},
	})
	require.NoError(t, err)
	assert.True(t, res.Stored)

	created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{
		Credentials: f.apiKeyOnly(),
		OrderID:     "ORD-9",
		Amount:      "25.99",
		Currency:    "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "PPO-1", created.ProviderOrderID)

	sent := f.gateway.lastRequest
	assert.Equal(t, "ORD-9", sent.ReferenceID)
	assert.Equal(t, 25.99, sent.Amount)
	assert.Equal(t, "USD", sent.Currency)
	assert.Equal(t, "Leave at the door", sent.Description)
	require.Len(t, sent.Items, 1)
	assert.Equal(t, 0.5, sent.Items[0].Tax)
	require.NotNil(t, sent.ShippingAmount)
	assert.Equal(t, 4.99, *sent.ShippingAmount)
	require.NotNil(t, sent.Shipping)
	assert.Equal(t, "Jane Doe", sent.Shipping.FullName())
	assert.Equal(t, "US", sent.Shipping.Address.Country)
	require.NotNil(t, sent.Payer)
	assert.Equal(t, "jane@example.com", sent.Payer.Email)
	assert.Nil(t, sent.Payer.Address)
}

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("required parameters", func(t *testing.T) {
		f := newServiceFixture(t, false)
		base := CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "USD"}

		r := base
		r.OrderID = ""
		_, err := f.svc.CreateOrder(ctx, r)
		requireKind(t, err, KindMissingParameter)

		r = base
		r.Amount = ""
		_, err = f.svc.CreateOrder(ctx, r)
		requireKind(t, err, KindMissingParameter)

		r = base
		r.Currency = ""
		_, err = f.svc.CreateOrder(ctx, r)
		requireKind(t, err, KindMissingParameter)

		r = base
		r.Amount = "-5"
		_, err = f.svc.CreateOrder(ctx, r)
		requireKind(t, err, KindInvalidPayloadFormat)
	})

	t.Run("absent context is tolerated", func(t *testing.T) {
		f := newServiceFixture(t, false)
		_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "USD"})
		require.NoError(t, err)
		assert.Empty(t, f.gateway.lastRequest.Items)
		assert.Nil(t, f.gateway.lastRequest.Shipping)
	})

	t.Run("signature covers the amount literal", func(t *testing.T) {
		f := newServiceFixture(t, false)
		creds := f.creds(func(ts, k string) string { return CanonicalCreateOrder(ts, "ORD-1", "19.90", k) })

		_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: creds, OrderID: "ORD-1", Amount: "19.9", Currency: "USD"})
		requireKind(t, err, KindInvalidSignature)

		_, err = f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: creds, OrderID: "ORD-1", Amount: "19.90", Currency: "USD"})
		require.NoError(t, err)
	})

	t.Run("repeat create updates the same ledger row", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.gateway.fixedID = "PPO-1"

		first, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "USD"})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
		second, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "12.50", Currency: "EUR"})
		require.NoError(t, err)

		assert.Equal(t, first.LedgerID, second.LedgerID)
		assert.Equal(t, 1, f.ledger.count())
		tx, err := f.ledger.Find(ctx, "PPO-1", "ORD-1", f.site.ID)
		require.NoError(t, err)
		assert.Equal(t, 12.5, tx.Amount)
		assert.Equal(t, "EUR", tx.Currency)
	})

	t.Run("gateway failure", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.gateway.createErr = &gateway.APIError{Gateway: "paypal", StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Message: "currency not supported"}

		_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "XXX"})
		requireKind(t, err, KindGatewayError)
		var pe *Error
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "currency not supported", pe.Message)
		assert.Equal(t, http.StatusInternalServerError, pe.StatusCode())
		assert.Equal(t, 0, f.ledger.count())
	})
}

func TestService_Capture(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown provider order", func(t *testing.T) {
		f := newServiceFixture(t, false)
		_, err := f.svc.CapturePayment(ctx, CaptureRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: "PPO-404"})
		requireKind(t, err, KindGatewayError)
	})

	t.Run("missing id", func(t *testing.T) {
		f := newServiceFixture(t, false)
		_, err := f.svc.CapturePayment(ctx, CaptureRequest{Credentials: f.apiKeyOnly()})
		requireKind(t, err, KindMissingParameter)
	})

	t.Run("no verdict leaves UNKNOWN", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.gateway.protection = ""
		created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "USD"})
		require.NoError(t, err)

		res, err := f.svc.CapturePayment(ctx, CaptureRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: FlexString(created.ProviderOrderID)})
		require.NoError(t, err)
		assert.Equal(t, SellerProtectionUnknown, res.SellerProtection)
	})

	t.Run("rows of other sites are untouched", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.gateway.fixedID = "PPO-1"
		_, err := f.ledger.Upsert(ctx, 99, "ORD-1", "PPO-1", 10, "USD", f.clock.Now())
		require.NoError(t, err)
		_, err = f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "USD"})
		require.NoError(t, err)

		_, err = f.svc.CapturePayment(ctx, CaptureRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: "PPO-1"})
		require.NoError(t, err)

		other, err := f.ledger.Find(ctx, "PPO-1", "ORD-1", 99)
		require.NoError(t, err)
		assert.Equal(t, TxPending, other.Status)
	})
}

func TestService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("completed at provider but unknown to ledger", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.gateway.complete("PPO-X")
		_, err := f.svc.VerifyPayment(ctx, VerifyRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: "PPO-X", OrderID: "ORD-1"})
		requireKind(t, err, KindTransactionNotFound)
	})

	t.Run("not completed", func(t *testing.T) {
		f := newServiceFixture(t, false)
		created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "USD"})
		require.NoError(t, err)

		_, err = f.svc.VerifyPayment(ctx, VerifyRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: FlexString(created.ProviderOrderID), OrderID: "ORD-1"})
		requireKind(t, err, KindPaymentIncomplete)
	})

	t.Run("completes a pending row", func(t *testing.T) {
		f := newServiceFixture(t, false)
		created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1", Amount: "10", Currency: "USD"})
		require.NoError(t, err)
		f.gateway.complete(created.ProviderOrderID)

		signed := f.creds(func(ts, k string) string { return CanonicalVerifyPayment(ts, created.ProviderOrderID, "ORD-1", k) })
		res, err := f.svc.VerifyPayment(ctx, VerifyRequest{Credentials: signed, ProviderOrderID: FlexString(created.ProviderOrderID), OrderID: "ORD-1"})
		require.NoError(t, err)
		assert.Equal(t, TxCompleted, res.Status)

		tx, err := f.ledger.Find(ctx, created.ProviderOrderID, "ORD-1", f.site.ID)
		require.NoError(t, err)
		assert.Equal(t, TxCompleted, tx.Status)
	})

	t.Run("missing ids", func(t *testing.T) {
		f := newServiceFixture(t, false)
		_, err := f.svc.VerifyPayment(ctx, VerifyRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-1"})
		requireKind(t, err, KindMissingParameter)
		_, err = f.svc.VerifyPayment(ctx, VerifyRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: "PPO-1"})
		requireKind(t, err, KindMissingParameter)
	})
}

func TestService_SellerProtection(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	_, err := f.svc.SellerProtection(ctx, SellerProtectionRequest{Credentials: f.apiKeyOnly(), ProviderOrderID: "PPO-1"})
	requireKind(t, err, KindMissingParameter)

	res, err := f.svc.SellerProtection(ctx, SellerProtectionRequest{
		Credentials:     f.creds(func(ts, k string) string { return CanonicalSellerProtection(ts, "PPO-unknown", k) }),
		ProviderOrderID: "PPO-unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, SellerProtectionUnknown, res.SellerProtection)
}

func TestService_HandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid payloads", func(t *testing.T) {
		f := newServiceFixture(t, false)
		for _, payload := range []string{"", "   ", "not json", "{}", "[]", "null"} {
			_, err := f.svc.HandleWebhook(ctx, []byte(payload), http.Header{})
			requireKind(t, err, KindInvalidPayloadFormat)
		}
	})

	t.Run("gateway rejects the event", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.gateway.webhookErr = errors.New("signature mismatch")
		_, err := f.svc.HandleWebhook(ctx, []byte(`{"id":"WH-1"}`), http.Header{})
		requireKind(t, err, KindWebhookProcessing)
		assert.Contains(t, err.Error(), "signature mismatch")
	})

	t.Run("records seller protection", func(t *testing.T) {
		f := newServiceFixture(t, false)
		f.gateway.webhook = &gateway.WebhookEvent{
			ID: "WH-2", Type: "PAYMENT.CAPTURE.COMPLETED",
			ProviderOrderID: "PPO-7", SellerProtection: "ELIGIBLE",
		}
		res, err := f.svc.HandleWebhook(ctx, []byte(`{"id":"WH-2"}`), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, "WH-2", res.EventID)

		status, err := f.svc.protection.Lookup(ctx, "PPO-7")
		require.NoError(t, err)
		assert.Equal(t, "ELIGIBLE", status)
	})
}

func TestService_OrderState(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, false)

	state, err := f.svc.OrderState(ctx, OrderStateRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-5"})
	require.NoError(t, err)
	assert.Equal(t, StateNone, state.State)

	_, err = f.svc.RegisterOrder(ctx, RegisterOrderRequest{
		Credentials: f.apiKeyOnly(),
		OrderData:   b64(`{"order_id":"ORD-5","order_total":"5","currency":"USD"}`),
	})
	require.NoError(t, err)

	state, err = f.svc.OrderState(ctx, OrderStateRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-5"})
	require.NoError(t, err)
	assert.Equal(t, StateRegistered, state.State)

	f.clock.Advance(DefaultEphemeralTTL)
	state, err = f.svc.OrderState(ctx, OrderStateRequest{Credentials: f.apiKeyOnly(), OrderID: "ORD-5"})
	require.NoError(t, err)
	assert.Equal(t, StateNone, state.State)
}

func TestService_ReportsResolvedSite(t *testing.T) {
	f := newServiceFixture(t, false)

	var siteID int64
	ctx := WithSiteSink(context.Background(), &siteID)
	_, err := f.svc.TestConnection(ctx, TestConnectionRequest{Credentials: f.apiKeyOnly()})
	require.NoError(t, err)
	assert.Equal(t, f.site.ID, siteID)

	// no sink installed
	_, err = f.svc.TestConnection(context.Background(), TestConnectionRequest{Credentials: f.apiKeyOnly()})
	assert.NoError(t, err)
}
