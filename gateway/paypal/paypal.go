package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/paypal-proxy/gateway"
)

const (
	// API URLs
	apiSandboxURL    = "https://api-m.sandbox.paypal.com"
	apiProductionURL = "https://api-m.paypal.com"

	// API Endpoints
	endpointToken         = "/v1/oauth2/token"
	endpointOrders        = "/v2/checkout/orders"
	endpointOrder         = "/v2/checkout/orders/%s"         // %s will be replaced with order ID
	endpointOrderCapture  = "/v2/checkout/orders/%s/capture" // %s will be replaced with order ID
	endpointVerifyWebhook = "/v1/notifications/verify-webhook-signature"

	// Webhook event types the proxy acts on
	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	eventOrderApproved    = "CHECKOUT.ORDER.APPROVED"

	// Token is refreshed this long before PayPal expires it
	tokenRefreshMargin = 60 * time.Second

	defaultTimeout = 30 * time.Second
)

// Currencies PayPal rejects decimals for.
var zeroDecimalCurrencies = map[string]bool{
	"HUF": true,
	"JPY": true,
	"TWD": true,
}

// Client talks to the PayPal Orders v2 REST API.
type Client struct {
	clientID     string
	clientSecret string
	webhookID    string
	environment  string
	http         *gateway.HTTPClient
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New builds a PayPal client from clientId, clientSecret, environment and the
// optional webhookId and baseURL keys.
func New(conf map[string]string) (gateway.Gateway, error) {
	return NewClient(conf)
}

// NewClient is New returning the concrete type.
func NewClient(conf map[string]string) (*Client, error) {
	c := &Client{
		clientID:     conf["clientId"],
		clientSecret: conf["clientSecret"],
		webhookID:    conf["webhookId"],
		environment:  conf["environment"],
		now:          time.Now,
	}

	if c.clientID == "" || c.clientSecret == "" {
		return nil, fmt.Errorf("paypal: clientId and clientSecret are required: %w", gateway.ErrInvalidConfig)
	}
	if c.environment != "production" {
		c.environment = "sandbox"
	}

	baseURL := conf["baseURL"]
	if baseURL == "" {
		baseURL = apiSandboxURL
		if c.environment == "production" {
			baseURL = apiProductionURL
		}
	}

	c.http = gateway.NewHTTPClient(&gateway.HTTPClientConfig{
		Gateway: "paypal",
		BaseURL: baseURL,
		Timeout: defaultTimeout,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
	})
	return c, nil
}

func (c *Client) Name() string        { return "paypal" }
func (c *Client) ClientID() string    { return c.clientID }
func (c *Client) Environment() string { return c.environment }

// accessToken returns a cached client-credentials token, fetching a new one
// when the cached token is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	_, err := c.http.DoJSON(ctx, &gateway.HTTPRequest{
		Method:    http.MethodPost,
		Endpoint:  endpointToken,
		FormData:  map[string]string{"grant_type": "client_credentials"},
		BasicAuth: &[2]string{c.clientID, c.clientSecret},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("paypal: failed to obtain access token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("paypal: empty access token in response")
	}

	c.token = resp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenRefreshMargin)
	return c.token, nil
}

func (c *Client) authorized(ctx context.Context, req *gateway.HTTPRequest, target any) (*gateway.HTTPResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Authorization"] = "Bearer " + token
	return c.http.DoJSON(ctx, req, target)
}

// CreateOrder creates a CAPTURE intent order for the request.
func (c *Client) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	if req.ReferenceID == "" {
		return nil, errors.New("paypal: reference id is required")
	}
	if req.Amount <= 0 {
		return nil, errors.New("paypal: amount must be greater than 0")
	}

	var out orderResponse
	resp, err := c.authorized(ctx, &gateway.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointOrders,
		Headers:  map[string]string{"Prefer": "return=representation"},
		Body:     buildOrderPayload(req),
	}, &out)
	if err != nil {
		return nil, err
	}

	order := &gateway.Order{
		ID:     out.ID,
		Status: strings.ToUpper(out.Status),
		Raw:    resp.Body,
	}
	for _, link := range out.Links {
		order.Links = append(order.Links, gateway.Link{Href: link.Href, Rel: link.Rel, Method: link.Method})
	}
	return order, nil
}

// CaptureOrder captures an approved order.
func (c *Client) CaptureOrder(ctx context.Context, providerOrderID string) (*gateway.Capture, error) {
	if providerOrderID == "" {
		return nil, errors.New("paypal: order id is required")
	}

	var out orderResponse
	resp, err := c.authorized(ctx, &gateway.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: fmt.Sprintf(endpointOrderCapture, providerOrderID),
		Headers:  map[string]string{"Prefer": "return=representation"},
		Body:     json.RawMessage(`{}`),
	}, &out)
	if err != nil {
		return nil, err
	}

	capture := out.firstCapture()
	result := &gateway.Capture{
		OrderID: out.ID,
		Status:  strings.ToUpper(out.Status),
		Raw:     resp.Body,
	}
	if capture != nil {
		result.CaptureID = capture.ID
		if capture.SellerProtection != nil {
			result.SellerProtection = capture.SellerProtection.Status
		}
	}
	return result, nil
}

// GetOrder fetches the current order representation.
func (c *Client) GetOrder(ctx context.Context, providerOrderID string) (*gateway.OrderDetails, error) {
	if providerOrderID == "" {
		return nil, errors.New("paypal: order id is required")
	}

	var out orderResponse
	resp, err := c.authorized(ctx, &gateway.HTTPRequest{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf(endpointOrder, providerOrderID),
	}, &out)
	if err != nil {
		return nil, err
	}

	details := &gateway.OrderDetails{
		ID:     out.ID,
		Status: strings.ToUpper(out.Status),
		Raw:    resp.Body,
	}
	if out.Payer != nil {
		details.PayerEmail = out.Payer.EmailAddress
	}
	if capture := out.firstCapture(); capture != nil {
		details.CaptureID = capture.ID
	}
	return details, nil
}

// ParseWebhookEvent verifies the transmission signature with PayPal when a
// webhook id is configured and interprets capture and approval events.
func (c *Client) ParseWebhookEvent(ctx context.Context, payload []byte, headers http.Header) (*gateway.WebhookEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("paypal: invalid webhook payload: %w", err)
	}
	if event.EventType == "" {
		return nil, errors.New("paypal: webhook event_type is missing")
	}

	if c.webhookID != "" {
		if err := c.verifyWebhookSignature(ctx, payload, headers); err != nil {
			return nil, err
		}
	}

	result := &gateway.WebhookEvent{
		ID:   event.ID,
		Type: event.EventType,
	}

	switch event.EventType {
	case eventCaptureCompleted:
		var res captureResource
		if err := json.Unmarshal(event.Resource, &res); err != nil {
			return nil, fmt.Errorf("paypal: invalid capture resource: %w", err)
		}
		result.CaptureID = res.ID
		result.Status = strings.ToUpper(res.Status)
		result.ProviderOrderID = res.SupplementaryData.RelatedIDs.OrderID
		if res.SellerProtection != nil {
			result.SellerProtection = res.SellerProtection.Status
		}
	case eventOrderApproved:
		var res orderResponse
		if err := json.Unmarshal(event.Resource, &res); err != nil {
			return nil, fmt.Errorf("paypal: invalid order resource: %w", err)
		}
		result.ProviderOrderID = res.ID
		result.Status = strings.ToUpper(res.Status)
	}
	return result, nil
}

func (c *Client) verifyWebhookSignature(ctx context.Context, payload []byte, headers http.Header) error {
	body := map[string]any{
		"auth_algo":         headers.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          headers.Get("PAYPAL-CERT-URL"),
		"transmission_id":   headers.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  headers.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": headers.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        c.webhookID,
		"webhook_event":     json.RawMessage(payload),
	}
	if body["transmission_id"] == "" || body["transmission_sig"] == "" {
		return errors.New("paypal: webhook transmission headers are missing")
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if _, err := c.authorized(ctx, &gateway.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointVerifyWebhook,
		Body:     body,
	}, &out); err != nil {
		return fmt.Errorf("paypal: webhook verification failed: %w", err)
	}
	if out.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("paypal: webhook signature rejected: %s", out.VerificationStatus)
	}
	return nil
}

// formatAmount renders v the way PayPal expects for currency.
func formatAmount(v float64, currency string) string {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
