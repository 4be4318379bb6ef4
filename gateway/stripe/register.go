package stripe

import "github.com/mstgnz/paypal-proxy/gateway"

// Register Stripe with the gateway registry
func init() {
	gateway.Register("stripe", New)
}
