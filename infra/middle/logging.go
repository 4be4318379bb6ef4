package middle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mstgnz/paypal-proxy/infra/logger"
	"github.com/mstgnz/paypal-proxy/infra/opensearch"
	"github.com/mstgnz/paypal-proxy/proxy"
)

// maxLoggedBody caps how much of a request or response body is audited.
const maxLoggedBody = 64 << 10

// responseWriter wraps http.ResponseWriter to capture the status and,
// optionally, the body
type responseWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func newResponseWriter(w http.ResponseWriter, captureBody bool) *responseWriter {
	rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	if captureBody {
		rw.body = &bytes.Buffer{}
	}
	return rw
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.body != nil && rw.body.Len() < maxLoggedBody {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// RequestIDMiddleware keeps an incoming X-Request-ID or assigns a new UUID,
// echoes it on the response and stores it where chi's GetReqID finds it.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > 128 {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProxyLoggingMiddleware audits every storefront request to OpenSearch with
// credentials and signatures masked. Indexing happens off the request path.
func ProxyLoggingMiddleware(l *opensearch.Logger, gatewayName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var requestBody []byte
			if r.Body != nil && r.Method != http.MethodGet {
				requestBody, _ = io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(requestBody), r.Body))
			}

			var siteID int64
			r = r.WithContext(proxy.WithSiteSink(r.Context(), &siteID))
			rw := newResponseWriter(w, true)

			next.ServeHTTP(rw, r)

			entry := opensearch.ProxyLog{
				Timestamp: start,
				SiteID:    siteID,
				Gateway:   gatewayName,
				Operation: operationName(r),
				Method:    r.Method,
				Endpoint:  r.URL.Path,
				RequestID: requestID(r),
				UserAgent: r.UserAgent(),
				ClientIP:  GetClientIP(r),
				Request: opensearch.RequestLog{
					Body:   opensearch.SanitizeForLog(string(requestBody)),
					Params: sanitizedParams(r),
				},
				Response: opensearch.ResponseLog{
					StatusCode:       rw.statusCode,
					Body:             opensearch.SanitizeForLog(rw.body.String()),
					ProcessingTimeMs: time.Since(start).Milliseconds(),
				},
				OrderInfo: extractOrderInfo(r, requestBody, rw.body.Bytes()),
			}
			if rw.statusCode >= http.StatusBadRequest {
				entry.Error = extractErrorInfo(rw.body.Bytes())
			}

			logger.Debug("Request served", logger.LogContext{
				SiteID:    siteID,
				Gateway:   gatewayName,
				RequestID: entry.RequestID,
				Fields: map[string]any{
					"operation": entry.Operation,
					"status":    rw.statusCode,
					"ms":        entry.Response.ProcessingTimeMs,
				},
			})

			if !l.IsEnabled() {
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := l.LogProxyRequest(ctx, entry); err != nil {
					logger.Warn("Failed to index request log", logger.LogContext{
						RequestID: entry.RequestID,
						Fields:    map[string]any{"error": err.Error()},
					})
				}
			}()
		})
	}
}

// operationName is the last static segment of the matched route, e.g.
// "create-paypal-order" or "seller-protection".
func operationName(r *http.Request) string {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		pattern = rctx.RoutePattern()
	}
	for pattern != "/" && pattern != "." && pattern != "" {
		base := path.Base(pattern)
		if !strings.HasPrefix(base, "{") {
			return base
		}
		pattern = path.Dir(pattern)
	}
	return "root"
}

func sanitizedParams(r *http.Request) map[string]string {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil
	}
	params := make(map[string]string, len(query))
	for k := range query {
		if opensearch.IsSensitiveField(k) {
			params[k] = opensearch.Redacted
			continue
		}
		params[opensearch.SanitizeForLog(k)] = opensearch.SanitizeForLog(query.Get(k))
	}
	return params
}

// extractOrderInfo collects order identifiers from the query string, the
// JSON request body and the response envelope's data.
func extractOrderInfo(r *http.Request, requestBody, responseBody []byte) opensearch.OrderInfo {
	fields := map[string]any{}
	for k := range r.URL.Query() {
		fields[k] = r.URL.Query().Get(k)
	}
	if len(requestBody) > 0 {
		var body map[string]any
		if json.Unmarshal(requestBody, &body) == nil {
			for k, v := range body {
				fields[k] = v
			}
		}
	}

	info := opensearch.OrderInfo{
		ProviderOrderID: stringField(fields["paypal_order_id"]),
		Currency:        strings.ToUpper(stringField(fields["currency"])),
	}
	if chi.URLParam(r, "order_id") != "" {
		info.ProviderOrderID = chi.URLParam(r, "order_id")
	}
	if v, ok := fields["order_id"]; ok {
		info.OrderID = stringField(v)
	}
	switch amount := fields["amount"].(type) {
	case float64:
		info.Amount = amount
	case string:
		var f float64
		if json.Unmarshal([]byte(amount), &f) == nil {
			info.Amount = f
		}
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if json.Unmarshal(responseBody, &envelope) == nil && envelope.Data != nil {
		if status := stringField(envelope.Data["status"]); status != "" {
			info.Status = status
		}
		// create-paypal-order answers with the provider's id under order_id
		if id := stringField(envelope.Data["order_id"]); id != "" && id != info.OrderID {
			info.ProviderOrderID = id
		}
	}
	return info
}

func extractErrorInfo(responseBody []byte) opensearch.ErrorInfo {
	var envelope struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		ErrorCode string `json:"error_code"`
	}
	if json.Unmarshal(responseBody, &envelope) != nil {
		return opensearch.ErrorInfo{}
	}
	info := opensearch.ErrorInfo{Code: envelope.ErrorCode, Message: envelope.Error}
	if info.Message == "" {
		info.Message = envelope.Message
	}
	return info
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	case json.Number:
		return t.String()
	}
	return ""
}
