// Package handler provides the HTTP handlers of the proxy.
//
// # Proxy Handler
//
// ProxyHandler exposes the storefront workflow. Every endpoint accepts its
// parameters as a query string on GET, and as a JSON body (or form post) on
// POST:
//
//	h := handler.NewProxyHandler(service, validate.CustomValidate(), metrics)
//
//	r.Get("/v1/paypal-buttons", h.PaymentButtons)
//	r.Get("/v1/test-connection", h.TestConnection)
//	r.Get("/v1/register-order", h.RegisterOrder)
//	r.Post("/v1/create-paypal-order", h.CreateOrder)
//	r.Post("/v1/capture-payment", h.CapturePayment)
//	r.Get("/v1/verify-payment", h.VerifyPayment)
//	r.Post("/v1/store-test-data", h.StoreOrderData)
//	r.Get("/v1/seller-protection/{order_id}", h.SellerProtection)
//	r.Post("/v1/paypal-webhook", h.Webhook)
//
// Example create request:
//
//	POST /v1/create-paypal-order
//	Content-Type: application/json
//
//	{
//	  "api_key": "3f1c...",
//	  "timestamp": 1718000000,
//	  "hash": "9a0b...",
//	  "order_id": 1042,
//	  "amount": "59.90",
//	  "currency": "EUR"
//	}
//
// Responses share one envelope:
//
//	{
//	  "code": 200,
//	  "success": true,
//	  "message": "Order created",
//	  "data": {"order_id": "5O190127TN364715T", "status": "CREATED", ...}
//	}
//
//	{
//	  "code": 401,
//	  "success": false,
//	  "message": "Invalid hash",
//	  "error": "Invalid hash",
//	  "error_code": "invalid_hash"
//	}
//
// The webhook body is passed to the gateway unparsed, since the provider
// signature covers the raw bytes.
//
// # Health and Logs
//
// HealthHandler reports storage reachability and the configured gateway.
// LogsHandler queries the OpenSearch audit trail and is mounted behind the
// admin key.
package handler
