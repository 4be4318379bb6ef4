package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	name string
}

func (s *stubGateway) Name() string        { return s.name }
func (s *stubGateway) ClientID() string    { return "client" }
func (s *stubGateway) Environment() string { return "sandbox" }
func (s *stubGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	return &Order{ID: "X"}, nil
}
func (s *stubGateway) CaptureOrder(ctx context.Context, id string) (*Capture, error) {
	return &Capture{OrderID: id}, nil
}
func (s *stubGateway) GetOrder(ctx context.Context, id string) (*OrderDetails, error) {
	return &OrderDetails{ID: id}, nil
}
func (s *stubGateway) ParseWebhookEvent(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error) {
	return &WebhookEvent{}, nil
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(config map[string]string) (Gateway, error) {
		return &stubGateway{name: config["name"]}, nil
	})

	gw, err := r.New("stub", map[string]string{"name": "configured"})
	require.NoError(t, err)
	assert.Equal(t, "configured", gw.Name())
	assert.Equal(t, []string{"stub"}, r.Names())
}

func TestRegistry_UnknownGateway(t *testing.T) {
	r := NewRegistry()

	_, err := r.New("missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", func(config map[string]string) (Gateway, error) {
		return nil, ErrInvalidConfig
	})

	_, err := r.New("broken", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestFullName(t *testing.T) {
	tests := []struct {
		party    Party
		expected string
	}{
		{Party{GivenName: "Ada", Surname: "Lovelace"}, "Ada Lovelace"},
		{Party{GivenName: "Ada"}, "Ada"},
		{Party{Surname: "Lovelace"}, "Lovelace"},
		{Party{}, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.party.FullName())
	}
}
