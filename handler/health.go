package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/paypal-proxy/infra/response"
	"github.com/mstgnz/paypal-proxy/infra/storage"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

// GatewayInfo describes the configured payment gateway
type GatewayInfo interface {
	Name() string
	Environment() string
}

// CacheReporter exposes in-process cache counters
type CacheReporter interface {
	Stats() storage.CacheStats
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store       Pinger
	cache       CacheReporter
	gateway     GatewayInfo
	auditLogs   bool
	environment string
	startTime   time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string              `json:"status"`
	Timestamp   time.Time           `json:"timestamp"`
	Uptime      string              `json:"uptime"`
	Environment string              `json:"environment"`
	Storage     *StorageHealth      `json:"storage"`
	Gateway     *GatewayHealth      `json:"gateway"`
	AuditLogs   string              `json:"audit_logs"`
	Cache       *storage.CacheStats `json:"cache,omitempty"`
	System      *SystemHealth       `json:"system"`
}

// StorageHealth represents storage backend health
type StorageHealth struct {
	Status       string `json:"status"`
	Driver       string `json:"driver,omitempty"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// GatewayHealth describes the configured gateway. The provider is not called.
type GatewayHealth struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	Configured  bool   `json:"configured"`
}

// SystemHealth represents process resource usage
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, gateway GatewayInfo, auditLogs bool, environment string) *HealthHandler {
	return &HealthHandler{
		store:       store,
		gateway:     gateway,
		auditLogs:   auditLogs,
		environment: environment,
		startTime:   time.Now(),
	}
}

// WithCache adds the in-process cache counters to the report
func (h *HealthHandler) WithCache(cache CacheReporter) *HealthHandler {
	h.cache = cache
	return h
}

// CheckHealth reports storage reachability plus static gateway and process info
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := &HealthStatus{
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: h.environment,
		Storage:     h.checkStorage(ctx),
		Gateway:     h.checkGateway(),
		AuditLogs:   "disabled",
		System:      checkSystem(),
	}
	if h.auditLogs {
		health.AuditLogs = "enabled"
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		health.Cache = &stats
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkStorage(ctx context.Context) *StorageHealth {
	if h.store == nil {
		return &StorageHealth{Status: "not_configured", Error: "storage not configured"}
	}

	start := time.Now()
	err := h.store.Ping(ctx)
	sh := &StorageHealth{
		Driver:       h.store.Driver(),
		ResponseTime: time.Since(start).String(),
		Status:       "healthy",
	}
	if err != nil {
		sh.Status = "unhealthy"
		sh.Error = err.Error()
	}
	return sh
}

func (h *HealthHandler) checkGateway() *GatewayHealth {
	if h.gateway == nil {
		return &GatewayHealth{Configured: false}
	}
	return &GatewayHealth{
		Name:        h.gateway.Name(),
		Environment: h.gateway.Environment(),
		Configured:  true,
	}
}

func checkSystem() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func determineOverallStatus(health *HealthStatus) string {
	if health.Storage.Status != "healthy" || !health.Gateway.Configured {
		return "unhealthy"
	}
	if !health.gatewayLive() {
		return "degraded"
	}
	return "healthy"
}

// gatewayLive is false while a production deployment still talks to a sandbox
func (health *HealthStatus) gatewayLive() bool {
	return health.Environment != "production" || health.Gateway.Environment == "production"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
