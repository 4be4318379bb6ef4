package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/mstgnz/paypal-proxy/infra/opensearch"
	"github.com/mstgnz/paypal-proxy/infra/response"
)

// LogSearcher defines the audit log queries the admin endpoints expose
type LogSearcher interface {
	IsEnabled() bool
	SearchLogs(ctx context.Context, gateway string, filter opensearch.LogFilter) ([]opensearch.ProxyLog, error)
	GetStats(ctx context.Context, gateway string, hours int) (map[string]any, error)
}

const (
	defaultLogHours = 24
	defaultLogSize  = 100
	maxLogSize      = 1000
)

// LogsHandler serves the audit log admin endpoints
type LogsHandler struct {
	logger  LogSearcher
	gateway string
}

// NewLogsHandler creates a new logs handler for the given gateway's index
func NewLogsHandler(logger LogSearcher, gateway string) *LogsHandler {
	return &LogsHandler{logger: logger, gateway: gateway}
}

// ListLogs handles GET /v1/admin/logs. Filters: site_id, order_id,
// operation, errors_only, hours and size.
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if h.logger == nil || !h.logger.IsEnabled() {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return
	}

	q := r.URL.Query()
	filter := opensearch.LogFilter{
		OrderID:    q.Get("order_id"),
		Operation:  q.Get("operation"),
		ErrorsOnly: q.Get("errors_only") == "true",
		Hours:      positiveInt(q.Get("hours"), defaultLogHours),
		Size:       min(positiveInt(q.Get("size"), defaultLogSize), maxLogSize),
	}
	if raw := q.Get("site_id"); raw != "" {
		siteID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || siteID <= 0 {
			response.Error(w, http.StatusBadRequest, "site_id must be a positive integer", nil)
			return
		}
		filter.SiteID = siteID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.logger.SearchLogs(ctx, h.gateway, filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to search logs", err)
		return
	}

	response.Success(w, http.StatusOK, "Logs retrieved successfully", map[string]any{
		"gateway": h.gateway,
		"filters": map[string]any{
			"site_id":     filter.SiteID,
			"order_id":    filter.OrderID,
			"operation":   filter.Operation,
			"errors_only": filter.ErrorsOnly,
			"hours":       filter.Hours,
		},
		"count": len(logs),
		"logs":  logs,
	})
}

// GetLogStats handles GET /v1/admin/logs/stats
func (h *LogsHandler) GetLogStats(w http.ResponseWriter, r *http.Request) {
	if h.logger == nil || !h.logger.IsEnabled() {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return
	}

	hours := positiveInt(r.URL.Query().Get("hours"), defaultLogHours)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	stats, err := h.logger.GetStats(ctx, h.gateway, hours)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve log statistics", err)
		return
	}

	response.Success(w, http.StatusOK, "Log statistics retrieved successfully", map[string]any{
		"stats":   stats,
		"gateway": h.gateway,
		"hours":   hours,
	})
}

func positiveInt(raw string, fallback int) int {
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return fallback
}
