package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Provider order statuses, normalized across gateways.
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusVoided    = "VOIDED"
	StatusPending   = "PENDING"
)

// Address is a postal address in provider-neutral form.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Party is a payer or shipping recipient.
type Party struct {
	GivenName string   `json:"given_name,omitempty"`
	Surname   string   `json:"surname,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Address   *Address `json:"address,omitempty"`
}

// FullName joins the given name and surname.
func (p *Party) FullName() string {
	switch {
	case p.GivenName == "":
		return p.Surname
	case p.Surname == "":
		return p.GivenName
	}
	return p.GivenName + " " + p.Surname
}

// Item is an order line sent to the provider.
type Item struct {
	Name        string  `json:"name"`
	SKU         string  `json:"sku,omitempty"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitAmount  float64 `json:"unit_amount"`
	Tax         float64 `json:"tax,omitempty"`
}

// OrderRequest is everything the proxy knows about an order at creation time.
type OrderRequest struct {
	ReferenceID    string   `json:"reference_id"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
	Description    string   `json:"description,omitempty"`
	ReturnURL      string   `json:"return_url,omitempty"`
	CancelURL      string   `json:"cancel_url,omitempty"`
	Items          []Item   `json:"items,omitempty"`
	ShippingAmount *float64 `json:"shipping_amount,omitempty"`
	ShippingTax    *float64 `json:"shipping_tax,omitempty"`
	TaxTotal       *float64 `json:"tax_total,omitempty"`
	Shipping       *Party   `json:"shipping,omitempty"`
	Payer          *Party   `json:"payer,omitempty"`
}

// Link is a HATEOAS link returned by the provider.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// Order is a freshly created provider order.
type Order struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Links  []Link          `json:"links"`
	Raw    json.RawMessage `json:"-"`
}

// Capture is the result of capturing a provider order.
type Capture struct {
	OrderID          string          `json:"order_id"`
	Status           string          `json:"status"`
	CaptureID        string          `json:"capture_id"`
	SellerProtection string          `json:"seller_protection,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

// OrderDetails is the current provider view of an order.
type OrderDetails struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	CaptureID  string          `json:"capture_id"`
	PayerEmail string          `json:"payer_email"`
	Raw        json.RawMessage `json:"-"`
}

// WebhookEvent is a provider notification interpreted by the gateway.
type WebhookEvent struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	ProviderOrderID  string `json:"provider_order_id,omitempty"`
	CaptureID        string `json:"capture_id,omitempty"`
	Status           string `json:"status,omitempty"`
	SellerProtection string `json:"seller_protection,omitempty"`
}

// Gateway is the payment provider's order/capture API as the proxy consumes it.
type Gateway interface {
	// Name identifies the gateway ("paypal", "stripe").
	Name() string

	// ClientID is the public client identifier storefront buttons are rendered with.
	ClientID() string

	// Environment is "sandbox" or "production".
	Environment() string

	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*Capture, error)
	GetOrder(ctx context.Context, providerOrderID string) (*OrderDetails, error)

	// ParseWebhookEvent authenticates and interprets a provider notification.
	ParseWebhookEvent(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error)
}

// ErrInvalidConfig is wrapped by factories rejecting their configuration.
var ErrInvalidConfig = errors.New("invalid gateway configuration")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Gateway    string
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%d): %s", e.Gateway, e.Name, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Gateway, e.StatusCode, e.Message)
}
