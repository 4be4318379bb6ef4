package proxy

import (
	"encoding/json"

	"github.com/mstgnz/paypal-proxy/gateway"
)

// Credentials are the authentication parameters every storefront call carries.
// Timestamp and Hash are optional unless the operation or configuration makes
// signatures mandatory.
type Credentials struct {
	APIKey    FlexString `json:"api_key" validate:"required"`
	Timestamp FlexString `json:"timestamp,omitempty"`
	Hash      FlexString `json:"hash,omitempty"`
}

func (c Credentials) signed() bool {
	return c.Timestamp != "" || c.Hash != ""
}

type TestConnectionRequest struct {
	Credentials
	SiteURL string `json:"site_url,omitempty"` // base64
}

type TestConnectionResult struct {
	SiteID   int64  `json:"site_id"`
	SiteName string `json:"site_name"`
	Gateway  string `json:"gateway"`
}

type ButtonsRequest struct {
	Credentials
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"` // base64
	SiteURL     string `json:"site_url,omitempty"`     // base64
}

// ButtonsConfig is everything a storefront needs to render the provider's
// payment buttons.
type ButtonsConfig struct {
	Gateway     string `json:"gateway"`
	ClientID    string `json:"client_id"`
	Environment string `json:"environment"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url"`
	SiteURL     string `json:"site_url"`
	SiteName    string `json:"site_name"`
}

type RegisterOrderRequest struct {
	Credentials
	OrderData string `json:"order_data"` // base64 JSON object
}

type RegisterOrderResult struct {
	OrderID string `json:"order_id"`
}

// StoreOrderDataRequest carries optional enrichment fields. Nil means "not
// supplied"; only supplied fields end up in the stored context.
type StoreOrderDataRequest struct {
	Credentials
	OrderID          FlexString `json:"order_id" validate:"required"`
	TestData         *string    `json:"test_data,omitempty"`
	ShippingAddress  *Address   `json:"shipping_address,omitempty"`
	BillingAddress   *Address   `json:"billing_address,omitempty"`
	LineItems        []LineItem `json:"line_items,omitempty"`
	ShippingAmount   *Amount    `json:"shipping_amount,omitempty"`
	ShippingTax      *Amount    `json:"shipping_tax,omitempty"`
	TaxTotal         *Amount    `json:"tax_total,omitempty"`
	Currency         *string    `json:"currency,omitempty"`
	PricesIncludeTax *bool      `json:"prices_include_tax,omitempty"`
	TaxDisplayCart   *string    `json:"tax_display_cart,omitempty"`
	TaxDisplayShop   *string    `json:"tax_display_shop,omitempty"`
}

// UnmarshalJSON accepts prices_include_tax in any FlexBool form.
func (r *StoreOrderDataRequest) UnmarshalJSON(data []byte) error {
	type plain StoreOrderDataRequest
	aux := struct {
		*plain
		PricesIncludeTax *FlexBool `json:"prices_include_tax"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.PricesIncludeTax != nil {
		r.PricesIncludeTax = optionalBool(aux.PricesIncludeTax)
	}
	return nil
}

type StoreOrderDataResult struct {
	OrderID string `json:"order_id"`
	Stored  bool   `json:"stored"`
}

// CreateOrderRequest keeps Amount as the literal the storefront sent since the
// signature covers it byte for byte.
type CreateOrderRequest struct {
	Credentials
	OrderID   FlexString `json:"order_id" validate:"required"`
	Amount    FlexString `json:"amount" validate:"required,amount"`
	Currency  string     `json:"currency" validate:"required,currency"`
	ReturnURL string     `json:"return_url,omitempty"`
	CancelURL string     `json:"cancel_url,omitempty"`
}

type CreateOrderResult struct {
	ProviderOrderID string         `json:"order_id"`
	Status          string         `json:"status"`
	Links           []gateway.Link `json:"links"`
	LedgerID        int64          `json:"ledger_id"`
	LedgerStatus    TxStatus       `json:"ledger_status"`
}

type CaptureRequest struct {
	Credentials
	ProviderOrderID FlexString `json:"paypal_order_id" validate:"required"`
}

type CaptureResult struct {
	TransactionID    string   `json:"transaction_id"`
	Status           TxStatus `json:"status"`
	ProviderStatus   string   `json:"provider_status"`
	SellerProtection string   `json:"seller_protection"`
}

type VerifyRequest struct {
	Credentials
	ProviderOrderID FlexString `json:"paypal_order_id" validate:"required"`
	OrderID         FlexString `json:"order_id" validate:"required"`
}

type VerifyResult struct {
	Status        TxStatus `json:"status"`
	TransactionID string   `json:"transaction_id"`
	PayerEmail    string   `json:"payer_email"`
	PaymentMethod string   `json:"payment_method"`
}

type SellerProtectionRequest struct {
	Credentials
	ProviderOrderID string `json:"order_id"`
}

type SellerProtectionResult struct {
	ProviderOrderID  string `json:"order_id"`
	SellerProtection string `json:"seller_protection"`
}

type OrderStateRequest struct {
	Credentials
	OrderID FlexString `json:"order_id" validate:"required"`
}

type OrderStateResult struct {
	OrderID         string        `json:"order_id"`
	State           WorkflowState `json:"state"`
	ProviderOrderID string        `json:"provider_order_id,omitempty"`
	LedgerStatus    TxStatus      `json:"ledger_status,omitempty"`
}

type WebhookResult struct {
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
}
