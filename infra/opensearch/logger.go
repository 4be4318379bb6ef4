package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// ProxyLog is one audited storefront request
type ProxyLog struct {
	Timestamp time.Time   `json:"timestamp"`
	SiteID    int64       `json:"site_id,omitempty"`
	Gateway   string      `json:"gateway"`
	Operation string      `json:"operation"`
	Method    string      `json:"method"`
	Endpoint  string      `json:"endpoint"`
	RequestID string      `json:"request_id"`
	UserAgent string      `json:"user_agent,omitempty"`
	ClientIP  string      `json:"client_ip,omitempty"`
	Request   RequestLog  `json:"request"`
	Response  ResponseLog `json:"response"`
	OrderInfo OrderInfo   `json:"order_info,omitempty"`
	Error     ErrorInfo   `json:"error,omitempty"`
}

// RequestLog represents request details
type RequestLog struct {
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// ResponseLog represents response details
type ResponseLog struct {
	StatusCode       int    `json:"status_code"`
	Body             string `json:"body,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// OrderInfo carries the order identifiers a request touched
type OrderInfo struct {
	OrderID         string  `json:"order_id,omitempty"`
	ProviderOrderID string  `json:"provider_order_id,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Status          string  `json:"status,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// IsEnabled reports whether documents are actually shipped
func (l *Logger) IsEnabled() bool {
	return l != nil && l.client.IsEnabled()
}

// LogProxyRequest indexes a request audit document
func (l *Logger) LogProxyRequest(ctx context.Context, entry ProxyLog) error {
	if !l.IsEnabled() {
		return nil
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.RequestID == "" {
		entry.RequestID = uuid.New().String()
	}

	return l.index(ctx, l.client.GetLogIndexName(entry.Gateway), entry)
}

// LogSystemEvent indexes a system log document
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.IsEnabled() {
		return nil
	}
	return l.index(ctx, l.client.SystemIndexName(), entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}
	return nil
}

// LogFilter narrows a request log search
type LogFilter struct {
	SiteID     int64
	OrderID    string
	Operation  string
	ErrorsOnly bool
	Hours      int
	Size       int
}

// Query builds the OpenSearch bool query for the filter
func (f LogFilter) Query() map[string]any {
	hours := f.Hours
	if hours <= 0 {
		hours = 24
	}

	must := []map[string]any{
		{"range": map[string]any{"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)}}},
	}
	if f.SiteID != 0 {
		must = append(must, map[string]any{"term": map[string]any{"site_id": f.SiteID}})
	}
	if f.OrderID != "" {
		must = append(must, map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{"term": map[string]any{"order_info.order_id": f.OrderID}},
					{"term": map[string]any{"order_info.provider_order_id": f.OrderID}},
				},
				"minimum_should_match": 1,
			},
		})
	}
	if f.Operation != "" {
		must = append(must, map[string]any{"term": map[string]any{"operation": f.Operation}})
	}
	if f.ErrorsOnly {
		must = append(must, map[string]any{"exists": map[string]any{"field": "error.code"}})
	}

	return map[string]any{"bool": map[string]any{"must": must}}
}

// SearchLogs returns the newest request logs of a gateway matching filter
func (l *Logger) SearchLogs(ctx context.Context, gateway string, filter LogFilter) ([]ProxyLog, error) {
	if !l.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	size := filter.Size
	if size <= 0 || size > 500 {
		size = 100
	}

	searchQuery := map[string]any{
		"query": filter.Query(),
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source ProxyLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := l.search(ctx, gateway, searchQuery, &searchResult); err != nil {
		return nil, err
	}

	logs := make([]ProxyLog, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		logs[i] = hit.Source
	}
	return logs, nil
}

// GetStats aggregates request counts, failures and latency over the last hours
func (l *Logger) GetStats(ctx context.Context, gateway string, hours int) (map[string]any, error) {
	if !l.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	aggQuery := map[string]any{
		"query": LogFilter{Hours: hours}.Query(),
		"aggs": map[string]any{
			"total_requests": map[string]any{
				"value_count": map[string]any{"field": "request_id"},
			},
			"error_count": map[string]any{
				"filter": map[string]any{"exists": map[string]any{"field": "error.code"}},
			},
			"avg_processing_time": map[string]any{
				"avg": map[string]any{"field": "response.processing_time_ms"},
			},
			"operations": map[string]any{
				"terms": map[string]any{"field": "operation", "size": 20},
			},
			"status_codes": map[string]any{
				"terms": map[string]any{"field": "response.status_code", "size": 10},
			},
		},
		"size": 0,
	}

	var result struct {
		Aggregations map[string]any `json:"aggregations"`
	}
	if err := l.search(ctx, gateway, aggQuery, &result); err != nil {
		return nil, err
	}
	return result.Aggregations, nil
}

func (l *Logger) search(ctx context.Context, gateway string, query map[string]any, target any) error {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{l.client.GetLogIndexName(gateway)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch search error: %s", res.String())
	}

	if err := json.NewDecoder(res.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode search results: %w", err)
	}
	return nil
}

// Redacted replaces masked values in audit documents
const Redacted = "***REDACTED***"

const sensitiveFields = `api_key|apiKey|api_secret|apiSecret|hash|secret|client_secret|password|token|access_token|authorization`

var (
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`("(?i:` + sensitiveFields + `)"\s*:\s*)"[^"]*"`),
		regexp.MustCompile(`(\b(?i:` + sensitiveFields + `)=)[^&\s]*`),
	}
	sensitiveName = regexp.MustCompile(`^(?i:` + sensitiveFields + `)$`)
)

// IsSensitiveField reports whether a parameter name carries credentials
func IsSensitiveField(name string) bool {
	return sensitiveName.MatchString(name)
}

// SanitizeForLog masks credentials and signatures in JSON bodies and query strings
func SanitizeForLog(data string) string {
	data = sensitivePatterns[0].ReplaceAllString(data, `$1"`+Redacted+`"`)
	return sensitivePatterns[1].ReplaceAllString(data, `${1}`+Redacted)
}
