package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Amount is a monetary value that storefronts send either as a JSON number or
// as a numeric string.
type Amount float64

// UnmarshalJSON accepts 12.5, "12.50" and "" (zero).
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid amount %s: %w", raw, err)
		}
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*a = 0
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", raw, err)
	}
	*a = Amount(v)
	return nil
}

// Float64 returns the amount as a float64.
func (a Amount) Float64() float64 {
	return float64(a)
}

// FlexInt is an integer storefronts send as a JSON number or a numeric
// string. Fractions are truncated.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid integer %s: %w", raw, err)
		}
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*n = 0
			return nil
		}
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = FlexInt(v)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
		return fmt.Errorf("invalid integer %s", raw)
	}
	*n = FlexInt(int64(v))
	return nil
}

// FlexBool is a flag storefronts send as true/false, 0/1, "0"/"1" or
// "yes"/"no". An empty string is false.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid flag %s: %w", raw, err)
		}
		raw = unquoted
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		*b = true
	case "0", "false", "no", "off", "":
		*b = false
	default:
		return fmt.Errorf("invalid flag %s", data)
	}
	return nil
}

// optionalBool converts a decoded flag back to the stored *bool shape.
func optionalBool(b *FlexBool) *bool {
	if b == nil {
		return nil
	}
	v := bool(*b)
	return &v
}

// Address uses the storefront's (WooCommerce) field names.
type Address struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1,omitempty"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// IsEmpty reports whether no address line was supplied.
func (a *Address) IsEmpty() bool {
	return a == nil || (a.Address1 == "" && a.City == "" && a.Country == "" && a.Postcode == "")
}

// LineItem is an ordered product. Price fields are always the storefront's.
type LineItem struct {
	ProductID       int64  `json:"product_id,omitempty"`
	MappedProductID int64  `json:"mapped_product_id,omitempty"`
	ActualProductID int64  `json:"actual_product_id,omitempty"`
	Name            string `json:"name"`
	SKU             string `json:"sku,omitempty"`
	Description     string `json:"description,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPrice       Amount `json:"unit_price"`
	TaxAmount       Amount `json:"tax_amount,omitempty"`
	LineTotal       Amount `json:"line_total,omitempty"`
}

// UnmarshalJSON accepts the integer fields as numbers or numeric strings.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	type plain LineItem
	aux := struct {
		*plain
		ProductID       FlexInt `json:"product_id"`
		MappedProductID FlexInt `json:"mapped_product_id"`
		ActualProductID FlexInt `json:"actual_product_id"`
		Quantity        FlexInt `json:"quantity"`
	}{
		plain:           (*plain)(li),
		ProductID:       FlexInt(li.ProductID),
		MappedProductID: FlexInt(li.MappedProductID),
		ActualProductID: FlexInt(li.ActualProductID),
		Quantity:        FlexInt(li.Quantity),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	li.ProductID = int64(aux.ProductID)
	li.MappedProductID = int64(aux.MappedProductID)
	li.ActualProductID = int64(aux.ActualProductID)
	li.Quantity = int(aux.Quantity)
	return nil
}

// OrderContext is the staging data for an order, kept between registration and
// order creation.
type OrderContext struct {
	OrderID          string     `json:"order_id"`
	Description      string     `json:"description,omitempty"`
	ShippingAddress  *Address   `json:"shipping_address,omitempty"`
	BillingAddress   *Address   `json:"billing_address,omitempty"`
	LineItems        []LineItem `json:"line_items,omitempty"`
	ShippingAmount   *Amount    `json:"shipping_amount,omitempty"`
	ShippingTax      *Amount    `json:"shipping_tax,omitempty"`
	TaxTotal         *Amount    `json:"tax_total,omitempty"`
	OrderTotal       *Amount    `json:"order_total,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	PricesIncludeTax *bool      `json:"prices_include_tax,omitempty"`
	TaxDisplayCart   string     `json:"tax_display_cart,omitempty"`
	TaxDisplayShop   string     `json:"tax_display_shop,omitempty"`
	SiteURL          string     `json:"site_url,omitempty"`
	StoredAt         time.Time  `json:"stored_at"`
}

// UnmarshalJSON accepts prices_include_tax in any FlexBool form.
func (c *OrderContext) UnmarshalJSON(data []byte) error {
	type plain OrderContext
	aux := struct {
		*plain
		PricesIncludeTax *FlexBool `json:"prices_include_tax"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.PricesIncludeTax != nil {
		c.PricesIncludeTax = optionalBool(aux.PricesIncludeTax)
	}
	return nil
}

// HasData reports whether the context carries anything besides its key.
func (c *OrderContext) HasData() bool {
	return c.Description != "" ||
		nonEmptyAddress(c.ShippingAddress) != nil ||
		nonEmptyAddress(c.BillingAddress) != nil ||
		len(c.LineItems) > 0 ||
		c.ShippingAmount != nil ||
		c.ShippingTax != nil ||
		c.TaxTotal != nil ||
		c.OrderTotal != nil ||
		c.Currency != "" ||
		c.PricesIncludeTax != nil ||
		c.TaxDisplayCart != "" ||
		c.TaxDisplayShop != ""
}

// FlexString is a request field storefronts send either as a JSON string or
// as a bare number. Numbers keep their literal text so signed values stay
// byte-identical.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*f = FlexString(data)
		return nil
	}

	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(data)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// rawJSON marshals v for audit storage; nil on failure.
func rawJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
