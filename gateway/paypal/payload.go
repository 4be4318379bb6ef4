package paypal

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mstgnz/paypal-proxy/gateway"
)

// Breakdown and items are dropped unless they add up to the order total
// within this tolerance; PayPal rejects mismatching orders.
const reconcileTolerance = 0.01

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type amountBreakdown struct {
	ItemTotal *money `json:"item_total,omitempty"`
	Shipping  *money `json:"shipping,omitempty"`
	TaxTotal  *money `json:"tax_total,omitempty"`
}

type orderAmount struct {
	CurrencyCode string           `json:"currency_code"`
	Value        string           `json:"value"`
	Breakdown    *amountBreakdown `json:"breakdown,omitempty"`
}

type orderItem struct {
	Name        string `json:"name"`
	Quantity    string `json:"quantity"`
	UnitAmount  money  `json:"unit_amount"`
	Tax         *money `json:"tax,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Description string `json:"description,omitempty"`
}

type postalAddress struct {
	AddressLine1 string `json:"address_line_1,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	AdminArea2   string `json:"admin_area_2,omitempty"`
	AdminArea1   string `json:"admin_area_1,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	CountryCode  string `json:"country_code"`
}

type shippingDetail struct {
	Name *struct {
		FullName string `json:"full_name"`
	} `json:"name,omitempty"`
	Address *postalAddress `json:"address,omitempty"`
}

type purchaseUnit struct {
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description,omitempty"`
	Amount      orderAmount     `json:"amount"`
	Items       []orderItem     `json:"items,omitempty"`
	Shipping    *shippingDetail `json:"shipping,omitempty"`
}

type payerName struct {
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

type payer struct {
	Name         *payerName     `json:"name,omitempty"`
	EmailAddress string         `json:"email_address,omitempty"`
	Address      *postalAddress `json:"address,omitempty"`
}

type applicationContext struct {
	ReturnURL          string `json:"return_url,omitempty"`
	CancelURL          string `json:"cancel_url,omitempty"`
	ShippingPreference string `json:"shipping_preference"`
	UserAction         string `json:"user_action"`
}

type orderPayload struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	Payer              *payer             `json:"payer,omitempty"`
	ApplicationContext applicationContext `json:"application_context"`
}

// buildOrderPayload maps a provider-neutral order request onto Orders v2.
func buildOrderPayload(req gateway.OrderRequest) orderPayload {
	currency := strings.ToUpper(req.Currency)
	amt := func(v float64) money {
		return money{CurrencyCode: currency, Value: formatAmount(v, currency)}
	}

	unit := purchaseUnit{
		ReferenceID: req.ReferenceID,
		Description: truncate(req.Description, 127),
		Amount: orderAmount{
			CurrencyCode: currency,
			Value:        formatAmount(req.Amount, currency),
		},
	}

	if breakdown, items, ok := reconcile(req, amt); ok {
		unit.Amount.Breakdown = breakdown
		unit.Items = items
	}

	pref := "GET_FROM_FILE"
	if req.Shipping != nil && req.Shipping.Address != nil && req.Shipping.Address.Country != "" {
		unit.Shipping = &shippingDetail{Address: toPostalAddress(req.Shipping.Address)}
		if name := req.Shipping.FullName(); name != "" {
			unit.Shipping.Name = &struct {
				FullName string `json:"full_name"`
			}{FullName: name}
		}
		pref = "SET_PROVIDED_ADDRESS"
	}

	payload := orderPayload{
		Intent:        "CAPTURE",
		PurchaseUnits: []purchaseUnit{unit},
		ApplicationContext: applicationContext{
			ReturnURL:          req.ReturnURL,
			CancelURL:          req.CancelURL,
			ShippingPreference: pref,
			UserAction:         "PAY_NOW",
		},
	}

	if p := req.Payer; p != nil {
		out := &payer{EmailAddress: p.Email}
		if p.GivenName != "" || p.Surname != "" {
			out.Name = &payerName{GivenName: p.GivenName, Surname: p.Surname}
		}
		if p.Address != nil && p.Address.Country != "" {
			out.Address = toPostalAddress(p.Address)
		}
		if out.EmailAddress != "" || out.Name != nil || out.Address != nil {
			payload.Payer = out
		}
	}

	return payload
}

// reconcile builds the amount breakdown and item list, reporting false when
// there are no items or the parts do not sum to the requested total.
func reconcile(req gateway.OrderRequest, amt func(float64) money) (*amountBreakdown, []orderItem, bool) {
	if len(req.Items) == 0 {
		return nil, nil, false
	}

	var itemTotal, itemTax float64
	items := make([]orderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 || it.Name == "" {
			return nil, nil, false
		}
		qty := float64(it.Quantity)
		itemTotal += roundCents(it.UnitAmount) * qty
		itemTax += roundCents(it.Tax) * qty

		oi := orderItem{
			Name:        truncate(it.Name, 127),
			Quantity:    strconv.Itoa(it.Quantity),
			UnitAmount:  amt(it.UnitAmount),
			SKU:         truncate(it.SKU, 127),
			Description: truncate(it.Description, 127),
		}
		if it.Tax > 0 {
			tax := amt(it.Tax)
			oi.Tax = &tax
		}
		items = append(items, oi)
	}

	taxTotal := itemTax
	if req.TaxTotal != nil {
		taxTotal = *req.TaxTotal
	} else if req.ShippingTax != nil {
		taxTotal += *req.ShippingTax
	}

	var shipping float64
	if req.ShippingAmount != nil {
		shipping = *req.ShippingAmount
	}

	if math.Abs(itemTotal+taxTotal+shipping-req.Amount) > reconcileTolerance {
		return nil, nil, false
	}

	b := &amountBreakdown{}
	itemMoney := amt(itemTotal)
	b.ItemTotal = &itemMoney
	if taxTotal > 0 {
		m := amt(taxTotal)
		b.TaxTotal = &m
	}
	if shipping > 0 {
		m := amt(shipping)
		b.Shipping = &m
	}
	return b, items, true
}

func toPostalAddress(a *gateway.Address) *postalAddress {
	return &postalAddress{
		AddressLine1: a.Line1,
		AddressLine2: a.Line2,
		AdminArea2:   a.City,
		AdminArea1:   a.State,
		PostalCode:   a.PostalCode,
		CountryCode:  strings.ToUpper(a.Country),
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// Response side

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type sellerProtection struct {
	Status string `json:"status"`
}

type captureResource struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	SellerProtection *sellerProtection `json:"seller_protection,omitempty"`

	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
	Payer  *struct {
		EmailAddress string `json:"email_address"`
		PayerID      string `json:"payer_id"`
	} `json:"payer,omitempty"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    *struct {
			Captures []captureResource `json:"captures"`
		} `json:"payments,omitempty"`
	} `json:"purchase_units"`
}

// firstCapture returns purchase_units[0].payments.captures[0] when present.
func (o *orderResponse) firstCapture() *captureResource {
	if len(o.PurchaseUnits) == 0 {
		return nil
	}
	pu := o.PurchaseUnits[0]
	if pu.Payments == nil || len(pu.Payments.Captures) == 0 {
		return nil
	}
	return &pu.Payments.Captures[0]
}

type webhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}
