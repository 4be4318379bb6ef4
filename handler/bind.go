package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paypal-proxy/infra/validate"
	"github.com/mstgnz/paypal-proxy/proxy"
)

// bind decodes a storefront request into dst. GET requests and form posts
// are read from their parameters; JSON posts from the body, falling back to
// the query string when the body is empty. The decoded value is validated.
func bind(r *http.Request, v *validator.Validate, dst any) error {
	var raw []byte
	var err error

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case r.Method == http.MethodGet:
		raw, err = valuesJSON(r.URL.Query())
	case mediaType == "application/x-www-form-urlencoded":
		if err = r.ParseForm(); err == nil {
			raw, err = valuesJSON(r.Form)
		}
	default:
		raw, err = io.ReadAll(r.Body)
		if err == nil && len(raw) == 0 {
			raw, err = valuesJSON(r.URL.Query())
		}
	}
	if err != nil {
		return &proxy.Error{Kind: proxy.KindInvalidPayloadFormat, Message: "Unable to read request", Err: err}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return &proxy.Error{Kind: proxy.KindInvalidPayloadFormat, Message: "Invalid request format", Err: err}
	}

	if err := v.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// valuesJSON turns request parameters into a flat JSON object of strings.
func valuesJSON(values url.Values) ([]byte, error) {
	flat := make(map[string]string, len(values))
	for k := range values {
		flat[k] = values.Get(k)
	}
	return json.Marshal(flat)
}

func validationError(err error) error {
	fe, ok := validate.First(err)
	if !ok {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return &proxy.Error{Kind: proxy.KindInternal, Message: "validation misconfigured", Err: err}
		}
		return &proxy.Error{Kind: proxy.KindInvalidPayloadFormat, Message: "Validation error", Err: err}
	}
	if fe.Tag == "required" {
		return &proxy.Error{Kind: proxy.KindMissingParameter, Message: "Missing required parameter: " + fe.Field}
	}
	return &proxy.Error{Kind: proxy.KindInvalidPayloadFormat, Message: "Invalid value for parameter: " + fe.Field}
}
