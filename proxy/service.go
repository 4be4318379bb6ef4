package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/paypal-proxy/gateway"
	"github.com/mstgnz/paypal-proxy/infra/logger"
)

// Deps are the collaborators a Service is built from.
type Deps struct {
	Sites   SiteStore
	Ledger  Ledger
	KV      KVStore
	Catalog Catalog
	Gateway gateway.Gateway

	// RequireSignatures makes timestamp+hash mandatory on every authenticated call.
	RequireSignatures   bool
	SignatureWindow     time.Duration
	OrderContextTTL     time.Duration
	SellerProtectionTTL time.Duration
	Now                 func() time.Time
}

// Service composes site authentication, the stores and the gateway into the
// register → create → capture → verify workflow. It holds no per-request state.
type Service struct {
	sites             SiteStore
	ledger            Ledger
	contexts          *OrderContextStore
	protection        *SellerProtectionCache
	gateway           gateway.Gateway
	signer            *Signer
	requireSignatures bool
	now               func() time.Time
}

// NewService wires a Service. Sites, Ledger, KV and Gateway are required.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Sites == nil:
		return nil, errors.New("proxy: site store is required")
	case d.Ledger == nil:
		return nil, errors.New("proxy: ledger is required")
	case d.KV == nil:
		return nil, errors.New("proxy: key-value store is required")
	case d.Gateway == nil:
		return nil, errors.New("proxy: gateway is required")
	}

	now := d.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		sites:             d.Sites,
		ledger:            d.Ledger,
		contexts:          NewOrderContextStore(d.KV, d.Catalog, d.OrderContextTTL),
		protection:        NewSellerProtectionCache(d.KV, d.SellerProtectionTTL),
		gateway:           d.Gateway,
		signer:            NewSigner(d.SignatureWindow, now),
		requireSignatures: d.RequireSignatures,
		now:               now,
	}, nil
}

// Gateway returns the payment gateway the service talks to.
func (s *Service) Gateway() gateway.Gateway {
	return s.gateway
}

// authenticate resolves the API key and checks the signature. canonical builds
// the signed string from the site's API key. The signature is checked when
// the caller supplied one, when mandatory is set, or when the service
// requires signatures everywhere.
func (s *Service) authenticate(ctx context.Context, creds Credentials, mandatory bool, canonical func(apiKey string) string) (*Site, error) {
	if creds.APIKey == "" {
		return nil, missingParam("api_key")
	}

	site, err := s.sites.FindActiveByAPIKey(ctx, creds.APIKey.String())
	if err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			return nil, newError(KindInvalidAPIKey, "Invalid API key or site not registered", nil)
		}
		return nil, internalError("failed to resolve API key", err)
	}

	reportSite(ctx, site.ID)

	if !mandatory && !s.requireSignatures && !creds.signed() {
		return site, nil
	}
	if creds.Timestamp == "" {
		return nil, missingParam("timestamp")
	}
	if creds.Hash == "" {
		return nil, missingParam("hash")
	}

	if err := s.signer.Verify(site, creds.Timestamp.String(), creds.Hash.String(), canonical(site.APIKey)); err != nil {
		logger.Warn("Request signature rejected", logger.LogContext{
			SiteID:  site.ID,
			Gateway: s.gateway.Name(),
			Fields:  map[string]any{"reason": string(KindOf(err))},
		})
		return nil, err
	}
	return site, nil
}

// TestConnection lets a storefront check its credentials.
func (s *Service) TestConnection(ctx context.Context, req TestConnectionRequest) (*TestConnectionResult, error) {
	site, err := s.authenticate(ctx, req.Credentials, false, func(apiKey string) string {
		return CanonicalTestConnection(req.Timestamp.String(), apiKey)
	})
	if err != nil {
		return nil, err
	}

	siteURL, err := decodeBase64Param("site_url", req.SiteURL)
	if err != nil {
		return nil, err
	}
	s.checkSiteURL(site, siteURL, "test connection")

	return &TestConnectionResult{
		SiteID:   site.ID,
		SiteName: site.SiteName,
		Gateway:  s.gateway.Name(),
	}, nil
}

// PaymentButtons returns the button configuration. The signature covers the
// timestamp only and is always required.
func (s *Service) PaymentButtons(ctx context.Context, req ButtonsRequest) (*ButtonsConfig, error) {
	site, err := s.authenticate(ctx, req.Credentials, true, func(string) string {
		return CanonicalButtons(req.Timestamp.String())
	})
	if err != nil {
		return nil, err
	}

	callbackURL, err := decodeBase64Param("callback_url", req.CallbackURL)
	if err != nil {
		return nil, err
	}
	siteURL, err := decodeBase64Param("site_url", req.SiteURL)
	if err != nil {
		return nil, err
	}
	s.checkSiteURL(site, siteURL, "payment buttons")

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &ButtonsConfig{
		Gateway:     s.gateway.Name(),
		ClientID:    s.gateway.ClientID(),
		Environment: s.gateway.Environment(),
		Amount:      req.Amount,
		Currency:    currency,
		CallbackURL: callbackURL,
		SiteURL:     siteURL,
		SiteName:    site.SiteName,
	}, nil
}

// RegisterOrder stores the decoded order_data as the order's context,
// replacing any earlier registration.
func (s *Service) RegisterOrder(ctx context.Context, req RegisterOrderRequest) (*RegisterOrderResult, error) {
	if req.APIKey == "" {
		return nil, missingParam("api_key")
	}
	if req.OrderData == "" {
		return nil, missingParam("order_data")
	}

	site, err := s.authenticate(ctx, req.Credentials, false, func(apiKey string) string {
		return CanonicalRegisterOrder(req.Timestamp.String(), req.OrderData, apiKey)
	})
	if err != nil {
		return nil, err
	}

	oc, err := parseOrderData(req.OrderData)
	if err != nil {
		return nil, err
	}
	s.checkSiteURL(site, oc.SiteURL, "order registration")

	oc.StoredAt = s.now()
	if err := s.contexts.Put(ctx, site.ID, oc.OrderID, oc); err != nil {
		return nil, internalError("failed to store order data", err)
	}

	logger.Info("Order registered", logger.LogContext{
		SiteID:  site.ID,
		Gateway: s.gateway.Name(),
		Fields:  map[string]any{"order_id": oc.OrderID, "line_items": len(oc.LineItems)},
	})
	return &RegisterOrderResult{OrderID: oc.OrderID}, nil
}

// StoreOrderData stores the supplied enrichment fields. Nothing is written
// when no field was supplied.
func (s *Service) StoreOrderData(ctx context.Context, req StoreOrderDataRequest) (*StoreOrderDataResult, error) {
	if req.APIKey == "" {
		return nil, missingParam("api_key")
	}
	if req.OrderID == "" {
		return nil, missingParam("order_id")
	}

	site, err := s.authenticate(ctx, req.Credentials, false, func(apiKey string) string {
		return CanonicalStoreOrderData(req.Timestamp.String(), req.OrderID.String(), apiKey)
	})
	if err != nil {
		return nil, err
	}

	oc := &OrderContext{
		ShippingAddress:  nonEmptyAddress(req.ShippingAddress),
		BillingAddress:   nonEmptyAddress(req.BillingAddress),
		LineItems:        req.LineItems,
		ShippingAmount:   req.ShippingAmount,
		ShippingTax:      req.ShippingTax,
		TaxTotal:         req.TaxTotal,
		PricesIncludeTax: req.PricesIncludeTax,
	}
	if req.TestData != nil {
		oc.Description = StripTags(*req.TestData)
	}
	if req.Currency != nil {
		oc.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.TaxDisplayCart != nil {
		oc.TaxDisplayCart = StripTags(*req.TaxDisplayCart)
	}
	if req.TaxDisplayShop != nil {
		oc.TaxDisplayShop = StripTags(*req.TaxDisplayShop)
	}

	orderID := req.OrderID.String()
	if !oc.HasData() {
		return &StoreOrderDataResult{OrderID: orderID, Stored: false}, nil
	}

	oc.StoredAt = s.now()
	if err := s.contexts.Put(ctx, site.ID, orderID, oc); err != nil {
		return nil, internalError("failed to store order data", err)
	}

	logger.Debug("Stored order enrichment data", logger.LogContext{
		SiteID: site.ID,
		Fields: map[string]any{"order_id": orderID, "line_items": len(oc.LineItems)},
	})
	return &StoreOrderDataResult{OrderID: orderID, Stored: true}, nil
}

// CreateOrder creates the provider order, merging any registered context, and
// records it in the ledger as pending.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	switch {
	case req.APIKey == "":
		return nil, missingParam("api_key")
	case req.OrderID == "":
		return nil, missingParam("order_id")
	case req.Amount == "":
		return nil, missingParam("amount")
	case req.Currency == "":
		return nil, missingParam("currency")
	}

	site, err := s.authenticate(ctx, req.Credentials, false, func(apiKey string) string {
		return CanonicalCreateOrder(req.Timestamp.String(), req.OrderID.String(), req.Amount.String(), apiKey)
	})
	if err != nil {
		return nil, err
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(req.Amount.String()), 64)
	if err != nil || amount <= 0 {
		return nil, newError(KindInvalidPayloadFormat, "Invalid amount: "+req.Amount.String(), err)
	}
	orderID := req.OrderID.String()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))

	oc, found, err := s.contexts.Get(ctx, site.ID, orderID)
	if err != nil {
		// Context only enriches the order; losing it is not fatal.
		logger.Error("Failed to load order context", err, logger.LogContext{
			SiteID: site.ID,
			Fields: map[string]any{"order_id": orderID},
		})
		found = false
	}
	if !found {
		oc = nil
	}

	order, err := s.gateway.CreateOrder(ctx, buildGatewayOrder(orderID, amount, currency, req.ReturnURL, req.CancelURL, oc))
	if err != nil {
		return nil, gatewayError(err)
	}

	ledgerID, err := s.ledger.Upsert(ctx, site.ID, orderID, order.ID, amount, currency, s.now())
	if err != nil {
		return nil, internalError("failed to record transaction", err)
	}

	logger.Info("Provider order created", logger.LogContext{
		SiteID:  site.ID,
		Gateway: s.gateway.Name(),
		Fields: map[string]any{
			"order_id":          orderID,
			"provider_order_id": order.ID,
			"amount":            amount,
			"currency":          currency,
			"has_context":       found,
		},
	})

	return &CreateOrderResult{
		ProviderOrderID: order.ID,
		Status:          order.Status,
		Links:           order.Links,
		LedgerID:        ledgerID,
		LedgerStatus:    TxPending,
	}, nil
}

// CapturePayment captures the provider order, completes its ledger rows and
// remembers the seller protection verdict.
func (s *Service) CapturePayment(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if req.APIKey == "" {
		return nil, missingParam("api_key")
	}
	if req.ProviderOrderID == "" {
		return nil, missingParam("paypal_order_id")
	}

	providerOrderID := req.ProviderOrderID.String()
	site, err := s.authenticate(ctx, req.Credentials, false, func(apiKey string) string {
		return CanonicalCapture(req.Timestamp.String(), providerOrderID, apiKey)
	})
	if err != nil {
		return nil, err
	}

	capture, err := s.gateway.CaptureOrder(ctx, providerOrderID)
	if err != nil {
		return nil, gatewayError(err)
	}

	payload := capture.Raw
	if len(payload) == 0 {
		payload = rawJSON(capture)
	}
	rows, err := s.ledger.MarkCompletedByProviderOrder(ctx, site.ID, providerOrderID, payload, s.now())
	if err != nil {
		return nil, internalError("failed to update transaction", err)
	}

	lc := logger.LogContext{
		SiteID:  site.ID,
		Gateway: s.gateway.Name(),
		Fields: map[string]any{
			"provider_order_id": providerOrderID,
			"capture_id":        capture.CaptureID,
			"rows":              rows,
		},
	}
	if rows == 0 {
		logger.Warn("Captured order has no ledger row", lc)
	}

	protection := SellerProtectionUnknown
	if capture.SellerProtection != "" {
		protection = capture.SellerProtection
		if err := s.protection.Record(ctx, providerOrderID, protection); err != nil {
			logger.Error("Failed to record seller protection", err, lc)
		}
	}

	logger.Info("Payment captured", lc)
	return &CaptureResult{
		TransactionID:    capture.CaptureID,
		Status:           TxCompleted,
		ProviderStatus:   capture.Status,
		SellerProtection: protection,
	}, nil
}

// VerifyPayment confirms with the provider that the order is completed and
// that the ledger knows it.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	switch {
	case req.APIKey == "":
		return nil, missingParam("api_key")
	case req.ProviderOrderID == "":
		return nil, missingParam("paypal_order_id")
	case req.OrderID == "":
		return nil, missingParam("order_id")
	}

	providerOrderID, orderID := req.ProviderOrderID.String(), req.OrderID.String()
	site, err := s.authenticate(ctx, req.Credentials, false, func(apiKey string) string {
		return CanonicalVerifyPayment(req.Timestamp.String(), providerOrderID, orderID, apiKey)
	})
	if err != nil {
		return nil, err
	}

	details, err := s.gateway.GetOrder(ctx, providerOrderID)
	if err != nil {
		return nil, gatewayError(err)
	}
	if details.Status != gateway.StatusCompleted {
		return nil, newError(KindPaymentIncomplete, "Payment has not been completed", nil)
	}

	tx, err := s.ledger.Find(ctx, providerOrderID, orderID, site.ID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, newError(KindTransactionNotFound, "Transaction not found in logs", nil)
		}
		return nil, internalError("failed to load transaction", err)
	}

	if tx.Status != TxCompleted {
		if err := s.ledger.MarkCompleted(ctx, tx.ID, nil, s.now()); err != nil {
			return nil, internalError("failed to update transaction", err)
		}
	}

	return &VerifyResult{
		Status:        TxCompleted,
		TransactionID: details.CaptureID,
		PayerEmail:    details.PayerEmail,
		PaymentMethod: s.gateway.Name(),
	}, nil
}

// SellerProtection returns the verdict recorded at capture, or UNKNOWN.
func (s *Service) SellerProtection(ctx context.Context, req SellerProtectionRequest) (*SellerProtectionResult, error) {
	if req.ProviderOrderID == "" {
		return nil, missingParam("order_id")
	}

	if _, err := s.authenticate(ctx, req.Credentials, true, func(apiKey string) string {
		return CanonicalSellerProtection(req.Timestamp.String(), req.ProviderOrderID, apiKey)
	}); err != nil {
		return nil, err
	}

	status, err := s.protection.Lookup(ctx, req.ProviderOrderID)
	if err != nil {
		return nil, internalError("failed to load seller protection", err)
	}
	return &SellerProtectionResult{
		ProviderOrderID:  req.ProviderOrderID,
		SellerProtection: status,
	}, nil
}

// HandleWebhook hands a provider notification to the gateway and records any
// seller protection verdict it carries.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookResult, error) {
	var probe map[string]json.RawMessage
	if len(strings.TrimSpace(string(payload))) == 0 || json.Unmarshal(payload, &probe) != nil || len(probe) == 0 {
		return nil, newError(KindInvalidPayloadFormat, "Invalid webhook payload", nil)
	}

	event, err := s.gateway.ParseWebhookEvent(ctx, payload, headers)
	if err != nil {
		return nil, newError(KindWebhookProcessing, err.Error(), err)
	}

	lc := logger.LogContext{
		Gateway: s.gateway.Name(),
		Fields: map[string]any{
			"event_id":          event.ID,
			"event_type":        event.Type,
			"provider_order_id": event.ProviderOrderID,
		},
	}

	if event.SellerProtection != "" && event.ProviderOrderID != "" {
		if err := s.protection.Record(ctx, event.ProviderOrderID, event.SellerProtection); err != nil {
			return nil, newError(KindWebhookProcessing, "failed to record seller protection", err)
		}
	}

	logger.Info("Webhook processed", lc)
	return &WebhookResult{EventID: event.ID, EventType: event.Type}, nil
}

// OrderState derives where an order stands from the ledger and the context store.
func (s *Service) OrderState(ctx context.Context, req OrderStateRequest) (*OrderStateResult, error) {
	if req.APIKey == "" {
		return nil, missingParam("api_key")
	}
	if req.OrderID == "" {
		return nil, missingParam("order_id")
	}

	orderID := req.OrderID.String()
	site, err := s.authenticate(ctx, req.Credentials, false, func(apiKey string) string {
		return CanonicalOrderState(req.Timestamp.String(), orderID, apiKey)
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.ledger.FindLatestByOrder(ctx, site.ID, orderID)
	if err != nil && !errors.Is(err, ErrTransactionNotFound) {
		return nil, internalError("failed to load transaction", err)
	}
	if err != nil {
		tx = nil
	}

	_, hasContext, err := s.contexts.Get(ctx, site.ID, orderID)
	if err != nil {
		return nil, internalError("failed to load order context", err)
	}

	result := &OrderStateResult{
		OrderID: orderID,
		State:   DeriveState(hasContext, tx),
	}
	if tx != nil {
		result.ProviderOrderID = tx.ProviderOrderID
		result.LedgerStatus = tx.Status
	}
	return result, nil
}

func (s *Service) checkSiteURL(site *Site, supplied, operation string) {
	if supplied == "" || supplied == site.SiteURL {
		return
	}
	logger.Warn("Site URL mismatch in "+operation, logger.LogContext{
		SiteID: site.ID,
		Fields: map[string]any{"supplied": supplied, "registered": site.SiteURL},
	})
}

func gatewayError(err error) *Error {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return newError(KindGatewayError, apiErr.Message, err)
	}
	return newError(KindGatewayError, err.Error(), err)
}
