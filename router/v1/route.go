package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paypal-proxy/handler"
)

// Routes registers the storefront endpoints
func Routes(r chi.Router, h *handler.ProxyHandler) {
	r.Get("/test-connection", h.TestConnection)
	r.Get("/paypal-buttons", h.PaymentButtons)
	r.Get("/register-order", h.RegisterOrder)
	r.Get("/verify-payment", h.VerifyPayment)
	r.Get("/order-status", h.OrderStatus)
	r.Get("/seller-protection/{order_id}", h.SellerProtection)

	r.Post("/create-paypal-order", h.CreateOrder)
	r.Post("/capture-payment", h.CapturePayment)
	r.Post("/store-test-data", h.StoreOrderData)

	// Provider notifications; the body is forwarded unparsed.
	r.Post("/paypal-webhook", h.Webhook)
}

// AdminRoutes registers the audit log endpoints. Callers mount them behind
// admin authentication.
func AdminRoutes(r chi.Router, h *handler.LogsHandler) {
	r.Get("/logs", h.ListLogs)
	r.Get("/logs/stats", h.GetLogStats)
}
