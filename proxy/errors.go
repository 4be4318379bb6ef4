package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed proxy operation.
type ErrorKind string

const (
	KindMissingParameter     ErrorKind = "MissingParameter"
	KindInvalidAPIKey        ErrorKind = "InvalidApiKey"
	KindInvalidSignature     ErrorKind = "InvalidSignature"
	KindExpiredTimestamp     ErrorKind = "ExpiredTimestamp"
	KindInvalidPayloadFormat ErrorKind = "InvalidPayloadFormat"
	KindGatewayError         ErrorKind = "GatewayError"
	KindPaymentIncomplete    ErrorKind = "PaymentIncomplete"
	KindTransactionNotFound  ErrorKind = "TransactionNotFound"
	KindWebhookProcessing    ErrorKind = "WebhookProcessing"
	KindInternal             ErrorKind = "Internal"
)

var kindMeta = map[ErrorKind]struct {
	status int
	code   string
}{
	KindMissingParameter:     {http.StatusBadRequest, "missing_param"},
	KindInvalidAPIKey:        {http.StatusUnauthorized, "invalid_api_key"},
	KindInvalidSignature:     {http.StatusUnauthorized, "invalid_hash"},
	KindExpiredTimestamp:     {http.StatusUnauthorized, "expired_timestamp"},
	KindInvalidPayloadFormat: {http.StatusBadRequest, "invalid_data"},
	KindGatewayError:         {http.StatusInternalServerError, "paypal_error"},
	KindPaymentIncomplete:    {http.StatusBadRequest, "payment_incomplete"},
	KindTransactionNotFound:  {http.StatusNotFound, "transaction_not_found"},
	KindWebhookProcessing:    {http.StatusInternalServerError, "webhook_processing_error"},
	KindInternal:             {http.StatusInternalServerError, "internal_error"},
}

// Sentinel errors returned by storage collaborators.
var (
	ErrSiteNotFound        = errors.New("site not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Error is the terminal failure of a proxy operation. None of them are retried
// by the proxy; the storefront decides whether to try again.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind so callers can test with
// errors.Is(err, &proxy.Error{Kind: proxy.KindInvalidSignature}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// StatusCode returns the HTTP status the error is reported with.
func (e *Error) StatusCode() int {
	if meta, ok := kindMeta[e.Kind]; ok {
		return meta.status
	}
	return http.StatusInternalServerError
}

// Code returns the machine-readable error code.
func (e *Error) Code() string {
	if meta, ok := kindMeta[e.Kind]; ok {
		return meta.code
	}
	return "internal_error"
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func missingParam(name string) *Error {
	return newError(KindMissingParameter, fmt.Sprintf("Missing required parameter: %s", name), nil)
}

func internalError(message string, err error) *Error {
	return newError(KindInternal, message, err)
}

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
