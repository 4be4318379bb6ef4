package logger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	entries []SystemLog
	done    chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{done: make(chan struct{}, 16)}
}

func (c *captureSink) LogSystemEvent(_ context.Context, entry any) error {
	c.mu.Lock()
	c.entries = append(c.entries, entry.(SystemLog))
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func newTestLogger(level LogLevel) (*SystemLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewSystemLogger(nil, SystemLoggerConfig{
		EnableConsole: true,
		MinLevel:      level,
		Service:       "test-service",
		Version:       "1.0.0",
		Environment:   "test",
		Console:       buf,
	}), buf
}

func TestNewSystemLogger(t *testing.T) {
	logger := NewSystemLogger(nil, SystemLoggerConfig{
		EnableConsole:    true,
		EnableOpenSearch: true,
		MinLevel:         LevelWarn,
		Service:          "test-service",
		Version:          "1.0.0",
		Environment:      "test",
	})

	require.NotNil(t, logger)
	assert.True(t, logger.enableConsole)
	assert.False(t, logger.enableSink, "sink must be disabled without a sink")
	assert.Equal(t, LevelWarn, logger.minLevel)
	assert.Equal(t, "test-service", logger.service)
}

func TestSystemLogger_LevelFiltering(t *testing.T) {
	logger, buf := newTestLogger(LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message - Error: boom")
}

func TestSystemLogger_ConsoleContext(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.Info("with context", LogContext{
		SiteID:    12,
		Gateway:   "paypal",
		RequestID: "0123456789abcdef",
		Fields:    map[string]any{"order_id": "ORD-1"},
	})

	out := buf.String()
	assert.Contains(t, out, "site=12")
	assert.Contains(t, out, "gateway=paypal")
	assert.Contains(t, out, "req_id=01234567")
	assert.Contains(t, out, "order_id: ORD-1")
}

func TestSystemLogger_ShortRequestID(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	assert.NotPanics(t, func() {
		logger.Info("short", LogContext{RequestID: "abc"})
	})
	assert.Contains(t, buf.String(), "req_id=abc")
}

func TestSystemLogger_ErrorDoesNotMutateFields(t *testing.T) {
	logger, _ := newTestLogger(LevelDebug)
	fields := map[string]any{"k": "v"}

	logger.Error("failed", errors.New("boom"), LogContext{Fields: fields})
	assert.NotContains(t, fields, "error")
}

func TestSystemLogger_Sink(t *testing.T) {
	sink := newCaptureSink()
	logger := NewSystemLogger(sink, SystemLoggerConfig{
		EnableOpenSearch: true,
		MinLevel:         LevelInfo,
		Service:          "test-service",
		Environment:      "test",
	})

	logger.Error("sink message", errors.New("boom"), LogContext{SiteID: 3, Gateway: "stripe"})

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not receive entry")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, LevelError, entry.Level)
	assert.Equal(t, "sink message", entry.Message)
	assert.Equal(t, "boom", entry.Error)
	assert.Equal(t, int64(3), entry.SiteID)
	assert.Equal(t, "stripe", entry.Gateway)
	assert.Equal(t, "TestSystemLogger_Sink", entry.Function)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestExtractComponent(t *testing.T) {
	tests := []struct {
		file     string
		expected string
	}{
		{"/src/paypal-proxy/gateway/paypal/client.go", "gateway/paypal"},
		{"/src/paypal-proxy/proxy/service.go", "proxy"},
		{"/other/place/handler/proxy.go", "handler"},
		{"main.go", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractComponent(tt.file))
		})
	}
}

func TestContextLogger(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	cl := logger.WithContext(LogContext{SiteID: 5}).AddField("order_id", "ORD-9")
	cl.Warn("context warning")
	cl.Error("context error", errors.New("bad"))

	out := buf.String()
	assert.Contains(t, out, "site=5")
	assert.Contains(t, out, "order_id: ORD-9")
	assert.Contains(t, out, "context error - Error: bad")
}
