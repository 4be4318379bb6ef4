package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/mstgnz/paypal-proxy/gateway"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	headerSignature = "Stripe-Signature"

	// Events the proxy interprets
	eventSucceeded         = "payment_intent.succeeded"
	eventCapturableUpdated = "payment_intent.amount_capturable_updated"
)

// Currencies Stripe takes in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// Client maps the order/capture model onto PaymentIntents with manual capture.
type Client struct {
	secretKey      string
	publishableKey string
	webhookSecret  string
	environment    string
	intents        *paymentintent.Client
}

// New builds a Stripe client from secretKey and the optional publishableKey,
// webhookSecret, environment and baseURL keys.
func New(conf map[string]string) (gateway.Gateway, error) {
	return NewClient(conf)
}

// NewClient is New returning the concrete type.
func NewClient(conf map[string]string) (*Client, error) {
	c := &Client{
		secretKey:      conf["secretKey"],
		publishableKey: conf["publishableKey"],
		webhookSecret:  conf["webhookSecret"],
		environment:    "sandbox",
	}
	if c.secretKey == "" {
		return nil, fmt.Errorf("stripe: secretKey is required: %w", gateway.ErrInvalidConfig)
	}
	if strings.HasPrefix(c.secretKey, "sk_live_") || conf["environment"] == "production" {
		c.environment = "production"
	}

	backend := stripeapi.GetBackend(stripeapi.APIBackend)
	if baseURL := conf["baseURL"]; baseURL != "" {
		backend = stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
			URL:               stripeapi.String(baseURL),
			MaxNetworkRetries: stripeapi.Int64(0),
		})
	}
	c.intents = &paymentintent.Client{B: backend, Key: c.secretKey}
	return c, nil
}

func (c *Client) Name() string        { return "stripe" }
func (c *Client) ClientID() string    { return c.publishableKey }
func (c *Client) Environment() string { return c.environment }

// CreateOrder creates an uncaptured PaymentIntent. The client secret is
// returned as a "client_secret" link for Stripe.js confirmation.
func (c *Client) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	if req.ReferenceID == "" {
		return nil, errors.New("stripe: reference id is required")
	}
	if req.Amount <= 0 {
		return nil, errors.New("stripe: amount must be greater than 0")
	}

	params := &stripeapi.PaymentIntentParams{
		Amount:        stripeapi.Int64(toMinorUnits(req.Amount, req.Currency)),
		Currency:      stripeapi.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripeapi.String(string(stripeapi.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("reference_id", req.ReferenceID)
	if req.Description != "" {
		params.Description = stripeapi.String(req.Description)
	}
	if req.Payer != nil && req.Payer.Email != "" {
		params.ReceiptEmail = stripeapi.String(req.Payer.Email)
	}
	if s := req.Shipping; s != nil && s.Address != nil && s.Address.Country != "" {
		params.Shipping = &stripeapi.ShippingDetailsParams{
			Name: stripeapi.String(s.FullName()),
			Address: &stripeapi.AddressParams{
				Line1:      stripeapi.String(s.Address.Line1),
				Line2:      stripeapi.String(s.Address.Line2),
				City:       stripeapi.String(s.Address.City),
				State:      stripeapi.String(s.Address.State),
				PostalCode: stripeapi.String(s.Address.PostalCode),
				Country:    stripeapi.String(strings.ToUpper(s.Address.Country)),
			},
		}
	}

	pi, err := c.intents.New(params)
	if err != nil {
		return nil, wrapError(err)
	}

	order := &gateway.Order{
		ID:     pi.ID,
		Status: normalizeStatus(pi.Status),
		Raw:    rawIntent(pi),
	}
	if pi.ClientSecret != "" {
		order.Links = append(order.Links, gateway.Link{Href: pi.ClientSecret, Rel: "client_secret"})
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		order.Links = append(order.Links, gateway.Link{Href: pi.NextAction.RedirectToURL.URL, Rel: "approve", Method: http.MethodGet})
	}
	return order, nil
}

// CaptureOrder captures the full authorized amount.
func (c *Client) CaptureOrder(ctx context.Context, providerOrderID string) (*gateway.Capture, error) {
	if providerOrderID == "" {
		return nil, errors.New("stripe: payment intent id is required")
	}

	params := &stripeapi.PaymentIntentCaptureParams{}
	params.Context = ctx
	pi, err := c.intents.Capture(providerOrderID, params)
	if err != nil {
		return nil, wrapError(err)
	}

	return &gateway.Capture{
		OrderID:   pi.ID,
		Status:    normalizeStatus(pi.Status),
		CaptureID: latestChargeID(pi),
		Raw:       rawIntent(pi),
	}, nil
}

// GetOrder retrieves the PaymentIntent with its latest charge expanded.
func (c *Client) GetOrder(ctx context.Context, providerOrderID string) (*gateway.OrderDetails, error) {
	if providerOrderID == "" {
		return nil, errors.New("stripe: payment intent id is required")
	}

	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := c.intents.Get(providerOrderID, params)
	if err != nil {
		return nil, wrapError(err)
	}

	details := &gateway.OrderDetails{
		ID:         pi.ID,
		Status:     normalizeStatus(pi.Status),
		CaptureID:  latestChargeID(pi),
		PayerEmail: pi.ReceiptEmail,
		Raw:        rawIntent(pi),
	}
	if details.PayerEmail == "" && pi.LatestCharge != nil && pi.LatestCharge.BillingDetails != nil {
		details.PayerEmail = pi.LatestCharge.BillingDetails.Email
	}
	return details, nil
}

// ParseWebhookEvent checks the Stripe-Signature header against the webhook
// secret and interprets PaymentIntent events.
func (c *Client) ParseWebhookEvent(ctx context.Context, payload []byte, headers http.Header) (*gateway.WebhookEvent, error) {
	if c.webhookSecret == "" {
		return nil, errors.New("stripe: webhookSecret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, headers.Get(headerSignature), c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("stripe: webhook verification failed: %w", err)
	}

	result := &gateway.WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch string(event.Type) {
	case eventSucceeded, eventCapturableUpdated:
		if event.Data == nil {
			return nil, errors.New("stripe: webhook event has no data")
		}
		var pi stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("stripe: invalid payment intent in webhook: %w", err)
		}
		result.ProviderOrderID = pi.ID
		result.Status = normalizeStatus(pi.Status)
		result.CaptureID = latestChargeID(&pi)
	}
	return result, nil
}

// normalizeStatus maps PaymentIntent states onto the gateway statuses.
func normalizeStatus(status stripeapi.PaymentIntentStatus) string {
	switch status {
	case stripeapi.PaymentIntentStatusSucceeded:
		return gateway.StatusCompleted
	case stripeapi.PaymentIntentStatusRequiresCapture:
		return gateway.StatusApproved
	case stripeapi.PaymentIntentStatusCanceled:
		return gateway.StatusVoided
	case stripeapi.PaymentIntentStatusProcessing:
		return gateway.StatusPending
	default:
		return gateway.StatusCreated
	}
}

func latestChargeID(pi *stripeapi.PaymentIntent) string {
	if pi.LatestCharge == nil {
		return ""
	}
	return pi.LatestCharge.ID
}

func toMinorUnits(amount float64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func rawIntent(pi *stripeapi.PaymentIntent) json.RawMessage {
	if pi.LastResponse != nil && len(pi.LastResponse.RawJSON) > 0 {
		return pi.LastResponse.RawJSON
	}
	raw, err := json.Marshal(pi)
	if err != nil {
		return nil
	}
	return raw
}

// wrapError converts stripe-go errors into gateway API errors.
func wrapError(err error) error {
	var serr *stripeapi.Error
	if errors.As(err, &serr) {
		name := string(serr.Code)
		if name == "" {
			name = string(serr.Type)
		}
		return &gateway.APIError{
			Gateway:    "stripe",
			StatusCode: serr.HTTPStatusCode,
			Name:       name,
			Message:    serr.Msg,
		}
	}
	return fmt.Errorf("stripe: %w", err)
}
