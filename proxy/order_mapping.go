package proxy

import (
	"strings"

	"github.com/mstgnz/paypal-proxy/gateway"
)

// buildGatewayOrder merges the stored context (nil when none was registered)
// into the provider order request. Amount and currency always come from the
// create call itself.
func buildGatewayOrder(orderID string, amount float64, currency, returnURL, cancelURL string, oc *OrderContext) gateway.OrderRequest {
	req := gateway.OrderRequest{
		ReferenceID: orderID,
		Amount:      amount,
		Currency:    currency,
		ReturnURL:   returnURL,
		CancelURL:   cancelURL,
	}
	if oc == nil {
		return req
	}

	req.Description = oc.Description
	taxInclusive := oc.PricesIncludeTax != nil && *oc.PricesIncludeTax

	for _, li := range oc.LineItems {
		item := gateway.Item{
			Name:        li.Name,
			SKU:         li.SKU,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitAmount:  li.UnitPrice.Float64(),
		}
		// tax_amount is the line's tax; providers want it per unit
		if !taxInclusive && li.Quantity > 0 {
			item.Tax = li.TaxAmount.Float64() / float64(li.Quantity)
		}
		req.Items = append(req.Items, item)
	}

	req.ShippingAmount = floatPtr(oc.ShippingAmount)
	req.ShippingTax = floatPtr(oc.ShippingTax)
	req.TaxTotal = floatPtr(oc.TaxTotal)
	if taxInclusive {
		zero := 0.0
		req.ShippingTax = nil
		req.TaxTotal = &zero
	}

	if a := oc.ShippingAddress; !a.IsEmpty() {
		req.Shipping = toParty(a)
	}
	if a := oc.BillingAddress; a != nil && *a != (Address{}) {
		req.Payer = toParty(a)
		if a.IsEmpty() {
			req.Payer.Address = nil
		}
	}
	return req
}

func toParty(a *Address) *gateway.Party {
	return &gateway.Party{
		GivenName: strings.TrimSpace(a.FirstName),
		Surname:   strings.TrimSpace(a.LastName),
		Email:     strings.TrimSpace(a.Email),
		Phone:     strings.TrimSpace(a.Phone),
		Address: &gateway.Address{
			Line1:      a.Address1,
			Line2:      a.Address2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.Postcode,
			Country:    strings.ToUpper(a.Country),
		},
	}
}

func floatPtr(a *Amount) *float64 {
	if a == nil {
		return nil
	}
	v := a.Float64()
	return &v
}
