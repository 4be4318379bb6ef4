package paypal

import "github.com/mstgnz/paypal-proxy/gateway"

// Register PayPal with the gateway registry
func init() {
	gateway.Register("paypal", New)
}
