package proxy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// decodeBase64Param decodes a base64 request parameter into UTF-8 text. An
// empty value decodes to "".
func decodeBase64Param(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	var decoded []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err = enc.DecodeString(value); err == nil {
			break
		}
	}
	if err != nil {
		return "", newError(KindInvalidPayloadFormat, fmt.Sprintf("Invalid base64 in %s", name), err)
	}
	if !utf8.Valid(decoded) {
		return "", newError(KindInvalidPayloadFormat, fmt.Sprintf("Invalid UTF-8 in %s", name), nil)
	}
	return string(decoded), nil
}

// parseOrderData decodes the base64 JSON order_data parameter and checks the
// fields registration requires.
func parseOrderData(encoded string) (*OrderContext, error) {
	text, err := decodeBase64Param("order_data", encoded)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || len(fields) == 0 {
		return nil, newError(KindInvalidPayloadFormat, "Invalid order data format", err)
	}

	for _, name := range []string{"order_id", "order_total", "currency"} {
		if isEmptyJSON(fields[name]) {
			return nil, newError(KindMissingParameter, "Missing required field: "+name, nil)
		}
	}

	var orderID FlexString
	if err := json.Unmarshal(fields["order_id"], &orderID); err != nil {
		return nil, newError(KindInvalidPayloadFormat, "Invalid order_id", err)
	}
	delete(fields, "order_id")

	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, internalError("failed to re-encode order data", err)
	}
	var oc OrderContext
	if err := json.Unmarshal(rest, &oc); err != nil {
		return nil, newError(KindInvalidPayloadFormat, "Invalid order data format", err)
	}
	oc.OrderID = orderID.String()
	oc.Currency = strings.ToUpper(oc.Currency)
	return &oc, nil
}

// isEmptyJSON mirrors "empty" for a storefront field: absent, null, "", "0",
// 0, false, [] and {} all count.
func isEmptyJSON(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`, `"0"`, "0", "0.0", "false", "[]", "{}":
		return true
	}
	return false
}

func nonEmptyAddress(a *Address) *Address {
	if a == nil || *a == (Address{}) {
		return nil
	}
	return a
}
