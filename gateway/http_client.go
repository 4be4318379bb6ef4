package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClientConfig represents configuration for the provider HTTP client
type HTTPClientConfig struct {
	Gateway        string
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
	Transport      http.RoundTripper
}

// HTTPRequest represents a provider API request
type HTTPRequest struct {
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        any
	FormData    map[string]string
	QueryParams map[string]string
	BasicAuth   *[2]string
}

// HTTPResponse represents a provider API response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HTTPClient performs JSON and form requests against a provider REST API
type HTTPClient struct {
	config *HTTPClientConfig
	client *http.Client
}

// NewHTTPClient creates a new provider HTTP client
func NewHTTPClient(config *HTTPClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	client := &http.Client{
		Timeout: config.Timeout,
	}
	if config.Transport != nil {
		client.Transport = config.Transport
	}

	return &HTTPClient{
		config: config,
		client: client,
	}
}

// Do sends the request. Bodies are JSON encoded unless FormData is set.
// Non-2xx answers return the response together with an *APIError.
func (c *HTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	contentType := ""

	switch {
	case len(req.FormData) > 0:
		form := url.Values{}
		for key, value := range req.FormData {
			form.Set(key, value)
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		switch raw := req.Body.(type) {
		case []byte:
			body = bytes.NewReader(raw)
		case json.RawMessage:
			body = bytes.NewReader(raw)
		default:
			jsonData, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal JSON body: %w", err)
			}
			body = bytes.NewReader(jsonData)
		}
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.buildURL(req.Endpoint, req.QueryParams), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.BasicAuth != nil {
		httpReq.SetBasicAuth(req.BasicAuth[0], req.BasicAuth[1])
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: HTTP request failed: %w", c.config.Gateway, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", c.config.Gateway, err)
	}

	response := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, c.apiError(resp.StatusCode, respBody)
	}
	return response, nil
}

// DoJSON sends the request and decodes a successful body into target
func (c *HTTPClient) DoJSON(ctx context.Context, req *HTTPRequest, target any) (*HTTPResponse, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if target != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, target); err != nil {
			return resp, fmt.Errorf("%s: failed to parse response: %w", c.config.Gateway, err)
		}
	}
	return resp, nil
}

// apiError extracts the provider's error name and message when present
func (c *HTTPClient) apiError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Gateway:    c.config.Gateway,
		StatusCode: statusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var parsed struct {
		Name             string `json:"name"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Details          []struct {
			Issue       string `json:"issue"`
			Description string `json:"description"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}

	switch {
	case parsed.Name != "":
		apiErr.Name = parsed.Name
		apiErr.Message = parsed.Message
		if len(parsed.Details) > 0 {
			apiErr.Message = fmt.Sprintf("%s (%s: %s)", parsed.Message, parsed.Details[0].Issue, parsed.Details[0].Description)
		}
	case parsed.Error != "":
		apiErr.Name = parsed.Error
		apiErr.Message = parsed.ErrorDescription
	}
	return apiErr
}

func joinURL(base, endpoint string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(endpoint, "/") {
		return base + endpoint[1:]
	}
	if !strings.HasSuffix(base, "/") && !strings.HasPrefix(endpoint, "/") {
		return base + "/" + endpoint
	}
	return base + endpoint
}

// buildURL constructs the full URL with query parameters
func (c *HTTPClient) buildURL(endpoint string, queryParams map[string]string) string {
	fullURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		fullURL = joinURL(c.config.BaseURL, endpoint)
	}

	if len(queryParams) == 0 {
		return fullURL
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return fullURL
	}
	q := u.Query()
	for key, value := range queryParams {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
