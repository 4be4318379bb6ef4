package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mstgnz/paypal-proxy/proxy"
)

// Response is the envelope every proxy endpoint answers with
type Response struct {
	Code      int    `json:"code"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// WriteJSON writes v as JSON with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}

// Success writes a successful response with data
func Success(w http.ResponseWriter, statusCode int, message string, data any) {
	_ = WriteJSON(w, statusCode, Response{
		Code:    statusCode,
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error writes an error response
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := Response{
		Code:      statusCode,
		Success:   false,
		Message:   message,
		ErrorCode: codeForStatus(statusCode),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = WriteJSON(w, statusCode, resp)
}

// FromError writes err with the status and machine code of its proxy error
// kind. Internal details of non-proxy errors are not exposed.
func FromError(w http.ResponseWriter, err error) {
	var pe *proxy.Error
	if !errors.As(err, &pe) {
		pe = &proxy.Error{Kind: proxy.KindInternal, Message: "Internal server error"}
	}

	resp := Response{
		Code:      pe.StatusCode(),
		Success:   false,
		Message:   pe.Message,
		Error:     pe.Message,
		ErrorCode: pe.Code(),
	}
	if pe.Kind == proxy.KindInternal {
		resp.Error = "Internal server error"
	}
	_ = WriteJSON(w, resp.Code, resp)
}

func codeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if statusCode >= http.StatusInternalServerError {
		return "internal_error"
	}
	return ""
}
