package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/mstgnz/paypal-proxy/gateway"
)

type instrumentedGateway struct {
	gateway.Gateway
	metrics *Metrics
}

// InstrumentGateway wraps g so every provider call is counted and timed.
func InstrumentGateway(g gateway.Gateway, m *Metrics) gateway.Gateway {
	if m == nil {
		return g
	}
	return &instrumentedGateway{Gateway: g, metrics: m}
}

func (g *instrumentedGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	start := time.Now()
	order, err := g.Gateway.CreateOrder(ctx, req)
	g.metrics.observeGateway(g.Name(), "create_order", err, time.Since(start))
	return order, err
}

func (g *instrumentedGateway) CaptureOrder(ctx context.Context, providerOrderID string) (*gateway.Capture, error) {
	start := time.Now()
	capture, err := g.Gateway.CaptureOrder(ctx, providerOrderID)
	g.metrics.observeGateway(g.Name(), "capture_order", err, time.Since(start))
	return capture, err
}

func (g *instrumentedGateway) GetOrder(ctx context.Context, providerOrderID string) (*gateway.OrderDetails, error) {
	start := time.Now()
	details, err := g.Gateway.GetOrder(ctx, providerOrderID)
	g.metrics.observeGateway(g.Name(), "get_order", err, time.Since(start))
	return details, err
}

func (g *instrumentedGateway) ParseWebhookEvent(ctx context.Context, payload []byte, headers http.Header) (*gateway.WebhookEvent, error) {
	start := time.Now()
	event, err := g.Gateway.ParseWebhookEvent(ctx, payload, headers)
	g.metrics.observeGateway(g.Name(), "webhook", err, time.Since(start))
	return event, err
}
