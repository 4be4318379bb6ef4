package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paypal-proxy/infra/metrics"
	"github.com/mstgnz/paypal-proxy/infra/response"
	"github.com/mstgnz/paypal-proxy/proxy"
)

// ProxyService is the storefront-facing workflow the handlers drive
type ProxyService interface {
	TestConnection(ctx context.Context, req proxy.TestConnectionRequest) (*proxy.TestConnectionResult, error)
	PaymentButtons(ctx context.Context, req proxy.ButtonsRequest) (*proxy.ButtonsConfig, error)
	RegisterOrder(ctx context.Context, req proxy.RegisterOrderRequest) (*proxy.RegisterOrderResult, error)
	StoreOrderData(ctx context.Context, req proxy.StoreOrderDataRequest) (*proxy.StoreOrderDataResult, error)
	CreateOrder(ctx context.Context, req proxy.CreateOrderRequest) (*proxy.CreateOrderResult, error)
	CapturePayment(ctx context.Context, req proxy.CaptureRequest) (*proxy.CaptureResult, error)
	VerifyPayment(ctx context.Context, req proxy.VerifyRequest) (*proxy.VerifyResult, error)
	SellerProtection(ctx context.Context, req proxy.SellerProtectionRequest) (*proxy.SellerProtectionResult, error)
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*proxy.WebhookResult, error)
	OrderState(ctx context.Context, req proxy.OrderStateRequest) (*proxy.OrderStateResult, error)
}

// requestTimeout bounds every proxy call including the provider round trip
const requestTimeout = 30 * time.Second

// ProxyHandler serves the storefront endpoints
type ProxyHandler struct {
	service  ProxyService
	validate *validator.Validate
	metrics  *metrics.Metrics
}

// NewProxyHandler creates a new proxy handler. m may be nil.
func NewProxyHandler(service ProxyService, validate *validator.Validate, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{service: service, validate: validate, metrics: m}
}

// serve binds the request, runs call under the request timeout and writes the
// envelope.
func serve[Req any, Res any](h *ProxyHandler, w http.ResponseWriter, r *http.Request, operation, message string, prepare func(*Req), call func(context.Context, Req) (*Res, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	start := time.Now()

	var req Req
	err := bind(r, h.validate, &req)
	var res *Res
	if err == nil {
		if prepare != nil {
			prepare(&req)
		}
		res, err = call(ctx, req)
	}
	h.metrics.ObserveOperation(operation, err, time.Since(start))

	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, message, res)
}

// TestConnection handles GET /v1/test-connection
func (h *ProxyHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "test_connection", "Connection successful", nil, h.service.TestConnection)
}

// PaymentButtons handles GET /v1/paypal-buttons
func (h *ProxyHandler) PaymentButtons(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "payment_buttons", "Button configuration", nil, h.service.PaymentButtons)
}

// RegisterOrder handles GET /v1/register-order
func (h *ProxyHandler) RegisterOrder(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "register_order", "Order registered", nil, h.service.RegisterOrder)
}

// VerifyPayment handles GET /v1/verify-payment
func (h *ProxyHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "verify_payment", "Payment verified", nil, h.service.VerifyPayment)
}

// CreateOrder handles POST /v1/create-paypal-order
func (h *ProxyHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "create_order", "Order created", nil, h.service.CreateOrder)
}

// CapturePayment handles POST /v1/capture-payment
func (h *ProxyHandler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "capture_payment", "Payment captured", nil, h.service.CapturePayment)
}

// StoreOrderData handles POST /v1/store-test-data
func (h *ProxyHandler) StoreOrderData(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "store_order_data", "Order data processed", nil, h.service.StoreOrderData)
}

// SellerProtection handles GET /v1/seller-protection/{order_id}
func (h *ProxyHandler) SellerProtection(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "seller_protection", "Seller protection status", func(req *proxy.SellerProtectionRequest) {
		if id := chi.URLParam(r, "order_id"); id != "" {
			req.ProviderOrderID = id
		}
	}, h.service.SellerProtection)
}

// OrderStatus handles GET /v1/order-status
func (h *ProxyHandler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "order_state", "Order state", nil, h.service.OrderState)
}

// Webhook handles POST /v1/paypal-webhook. The raw body is handed to the
// gateway untouched since its signature covers the exact bytes.
func (h *ProxyHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	var res *proxy.WebhookResult
	if err != nil {
		err = &proxy.Error{Kind: proxy.KindInvalidPayloadFormat, Message: "Unable to read webhook payload", Err: err}
	} else {
		res, err = h.service.HandleWebhook(ctx, payload, r.Header)
	}
	h.metrics.ObserveOperation("webhook", err, time.Since(start))

	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Webhook processed", res)
}
