// Package paypalproxy is a multi-tenant payment proxy that lets storefronts
// take PayPal (or Stripe) payments without holding provider credentials.
// Storefronts authenticate with a per-site API key and an optional HMAC
// signature; the proxy talks to the provider with one set of merchant
// credentials and keeps its own ledger of created and captured orders.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Storefronts   │◄──►│   paypal-proxy  │◄──►│  PayPal/Stripe  │
//	│ (site API keys) │    │ (ledger, cache) │    │                 │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Payment Flow
//
//  1. register-order stores the cart (order context) under the storefront's
//     order id.
//  2. store-test-data optionally enriches it with addresses, line items and
//     tax details.
//  3. create-paypal-order creates the provider order from the stored context
//     and writes a pending ledger row.
//  4. The buyer approves in the provider's UI; capture-payment captures it and
//     completes the ledger row.
//  5. verify-payment lets the storefront confirm the payment before it marks
//     the order paid.
//
// Webhooks record seller protection eligibility, which storefronts read back
// through seller-protection/{order_id}.
//
// # Layout
//
//   - proxy: sites, signatures, order context, ledger and the Service
//     orchestrating them
//   - gateway: the provider client interface and registry, with paypal and
//     stripe implementations
//   - infra: configuration, logging, storage (SQLite, PostgreSQL, memory),
//     OpenSearch audit logs, metrics, middleware and response helpers
//   - handler and router: the HTTP surface
//   - cmd: the server, and sitectl for site administration
//
// # Configuration
//
// Everything is configured from the environment (optionally a .env file):
//
//	GATEWAY_PROVIDER=paypal
//	PAYPAL_CLIENT_ID=...
//	PAYPAL_CLIENT_SECRET=...
//	PAYPAL_ENVIRONMENT=sandbox
//	PAYPAL_WEBHOOK_ID=...
//	STORAGE_DRIVER=sqlite
//	SQLITE_PATH=./data/paypal-proxy.db
//	REQUIRE_SIGNATURES=true
//	ADMIN_API_KEY=...
//	ENABLE_OPENSEARCH_LOGGING=false
package paypalproxy
