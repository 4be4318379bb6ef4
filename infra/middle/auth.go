package middle

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/mstgnz/paypal-proxy/infra/auth"
	"github.com/mstgnz/paypal-proxy/infra/logger"
	"github.com/mstgnz/paypal-proxy/infra/response"
)

// AdminAuthMiddleware guards operator endpoints. The bearer token is either
// the admin key itself or an operator token signed with it. When no key is
// configured the endpoints are disabled.
func AdminAuthMiddleware(adminKey string) func(http.Handler) http.Handler {
	tokens := auth.NewAdminTokens(adminKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				response.Error(w, http.StatusServiceUnavailable, "Admin API key not configured", nil)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <api_key>", nil)
				return
			}
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "API key required", nil)
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(adminKey)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					response.Error(w, http.StatusUnauthorized, "Token expired", err)
					return
				}
				response.Error(w, http.StatusUnauthorized, "Invalid API key", nil)
				return
			}
			logger.Debug("Admin request", logger.LogContext{
				RequestID: requestID(r),
				Fields:    map[string]any{"operator": claims.Operator, "path": r.URL.Path},
			})

			next.ServeHTTP(w, r)
		})
	}
}
