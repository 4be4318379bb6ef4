package proxy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureWindow is the maximum distance between a request timestamp
// and server time, in either direction.
const DefaultSignatureWindow = 3600 * time.Second

// Canonical signing strings. Each operation has exactly one builder so the
// byte order of the HMAC input cannot drift between client and server.

// CanonicalButtons signs the timestamp alone.
func CanonicalButtons(timestamp string) string {
	return timestamp
}

// CanonicalTestConnection signs timestamp + api_key.
func CanonicalTestConnection(timestamp, apiKey string) string {
	return timestamp + apiKey
}

// CanonicalRegisterOrder signs timestamp + raw order_data param + api_key.
func CanonicalRegisterOrder(timestamp, orderData, apiKey string) string {
	return timestamp + orderData + apiKey
}

// CanonicalVerifyPayment signs timestamp + provider order id + order id + api_key.
func CanonicalVerifyPayment(timestamp, providerOrderID, orderID, apiKey string) string {
	return timestamp + providerOrderID + orderID + apiKey
}

// CanonicalCreateOrder signs timestamp + order id + amount literal + api_key.
func CanonicalCreateOrder(timestamp, orderID, amount, apiKey string) string {
	return timestamp + orderID + amount + apiKey
}

// CanonicalCapture signs timestamp + provider order id + api_key.
func CanonicalCapture(timestamp, providerOrderID, apiKey string) string {
	return timestamp + providerOrderID + apiKey
}

// CanonicalStoreOrderData signs timestamp + order id + api_key.
func CanonicalStoreOrderData(timestamp, orderID, apiKey string) string {
	return timestamp + orderID + apiKey
}

// CanonicalSellerProtection signs timestamp + provider order id + api_key.
func CanonicalSellerProtection(timestamp, providerOrderID, apiKey string) string {
	return timestamp + providerOrderID + apiKey
}

// CanonicalOrderState signs timestamp + order id + api_key.
func CanonicalOrderState(timestamp, orderID, apiKey string) string {
	return timestamp + orderID + apiKey
}

// Sign returns the hex encoded HMAC-SHA256 of message keyed by secret.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Signer verifies time-bounded request signatures.
type Signer struct {
	window time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. A zero window falls back to DefaultSignatureWindow
// and a nil clock to time.Now.
func NewSigner(window time.Duration, now func() time.Time) *Signer {
	if window <= 0 {
		window = DefaultSignatureWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{window: window, now: now}
}

// CheckTimestamp rejects timestamps outside the window. The boundary is inclusive.
func (s *Signer) CheckTimestamp(timestamp string) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return newError(KindExpiredTimestamp, "Authentication timestamp is invalid", err)
	}

	now := s.now().Unix()
	window := int64(s.window / time.Second)
	if ts < now-window || ts > now+window {
		return newError(KindExpiredTimestamp, "Authentication timestamp has expired", nil)
	}
	return nil
}

// Verify checks the timestamp window and then compares signature against the
// HMAC of canonical keyed by the site secret in constant time.
func (s *Signer) Verify(site *Site, timestamp, signature, canonical string) error {
	if err := s.CheckTimestamp(timestamp); err != nil {
		return err
	}

	expected := Sign(site.APISecret, canonical)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return newError(KindInvalidSignature, "Invalid authentication hash", nil)
	}
	return nil
}
